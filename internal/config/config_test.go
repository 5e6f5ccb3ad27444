package config

import (
	"reflect"
	"testing"
)

func TestValidate_NormalizesCommaDelimitedRepos(t *testing.T) {
	cfg := New()
	cfg.Targeting.Repos = []string{"acme/foo, acme/bar", "acme/baz", ",,"}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() returned error: %v", err)
	}

	want := []string{"acme/foo", "acme/bar", "acme/baz"}
	if !reflect.DeepEqual(cfg.Targeting.Repos, want) {
		t.Fatalf("Repos normalized mismatch: got %v want %v", cfg.Targeting.Repos, want)
	}
}

func TestValidate_NormalizesCommaDelimitedTopics(t *testing.T) {
	cfg := New()
	cfg.Targeting.Repos = []string{"acme/repo"}
	cfg.Targeting.Topic = []string{"security, compliance", "devops", ",,"}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() returned error: %v", err)
	}

	want := []string{"security", "compliance", "devops"}
	if !reflect.DeepEqual(cfg.Targeting.Topic, want) {
		t.Fatalf("Topic normalized mismatch: got %v want %v", cfg.Targeting.Topic, want)
	}
}

func TestParseRuleOptionAssignments(t *testing.T) {
	got, err := ParseRuleOptionAssignments([]string{
		"copyleft.allow.artifacts=npm:a@1, vulnerable.allow.topics=legacy",
		"proprietary.allow.patterns=", // empty value allowed
		"strong-copyleft.allow.patterns=github:acme/*",
	})
	if err != nil {
		t.Fatalf("ParseRuleOptionAssignments returned error: %v", err)
	}
	if got["strong-copyleft"]["allow.patterns"] != "github:acme/*" {
		t.Fatalf("unexpected parsed value: %v", got)
	}
	if got["copyleft"]["allow.artifacts"] != "npm:a@1" {
		t.Fatalf("unexpected parsed value: %v", got)
	}
	if got["vulnerable"]["allow.topics"] != "legacy" {
		t.Fatalf("unexpected parsed value: %v", got)
	}
	if got["proprietary"]["allow.patterns"] != "" {
		t.Fatalf("expected empty string value to be preserved: %v", got)
	}
}

func TestParseRuleOptionAssignments_ErrorsOnInvalidSyntax(t *testing.T) {
	tests := []struct {
		name   string
		values []string
	}{
		{name: "missing_equals", values: []string{"a.b"}},
		{name: "missing_dot", values: []string{"ab=true"}},
		{name: "empty_rule", values: []string{".b=true"}},
		{name: "empty_opt", values: []string{"a.=true"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseRuleOptionAssignments(tt.values); err == nil {
				t.Fatalf("expected error, got nil")
			}
		})
	}
}

func TestValidate_RejectsInvalidSetSyntax(t *testing.T) {
	cfg := New()
	cfg.Targeting.Repos = []string{"acme/repo"}
	cfg.Inputs.Set = []string{"nope"}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error, got nil")
	}
}

func TestValidate_NormalizesOrgAndUserFromGitHubURLs(t *testing.T) {
	cfg := New()
	cfg.Targeting.Org = "https://github.com/acme"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() returned error: %v", err)
	}
	if cfg.Targeting.Org != "acme" {
		t.Fatalf("expected org to normalize to %q, got %q", "acme", cfg.Targeting.Org)
	}

	cfg = New()
	cfg.Targeting.User = "github.com/daneelvt"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() returned error: %v", err)
	}
	if cfg.Targeting.User != "daneelvt" {
		t.Fatalf("expected user to normalize to %q, got %q", "daneelvt", cfg.Targeting.User)
	}
}

func TestValidate_RejectsOrgAndUserTogether(t *testing.T) {
	cfg := New()
	cfg.Targeting.Org = "acme"
	cfg.Targeting.User = "someone"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error, got nil")
	}
}

func TestValidate_RejectsInvalidConsoleFormat(t *testing.T) {
	tests := []struct {
		name          string
		consoleFormat string
	}{
		{name: "empty", consoleFormat: ""},
		{name: "spaces", consoleFormat: "   "},
		{name: "unknown", consoleFormat: "yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			cfg.Targeting.Repos = []string{"acme/repo"}
			cfg.Output.ConsoleFormat = tt.consoleFormat
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected error, got nil")
			}
		})
	}
}

func TestValidate_AllowsKnownConsoleFormats(t *testing.T) {
	tests := []struct {
		name          string
		consoleFormat string
	}{
		{name: "text", consoleFormat: "text"},
		{name: "json", consoleFormat: "json"},
		{name: "ndjson", consoleFormat: "ndjson"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			cfg.Targeting.Repos = []string{"acme/repo"}
			cfg.Output.ConsoleFormat = tt.consoleFormat
			if err := cfg.Validate(); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
		})
	}
}

func TestValidate_RejectsInvalidTargetingEnums(t *testing.T) {
	tests := []struct {
		name      string
		mutateCfg func(cfg *Config)
	}{
		{
			name: "visibility",
			mutateCfg: func(cfg *Config) {
				cfg.Targeting.Visibility = "maybe"
			},
		},
		{
			name: "archived",
			mutateCfg: func(cfg *Config) {
				cfg.Targeting.Archived = "sometimes"
			},
		},
		{
			name: "forks",
			mutateCfg: func(cfg *Config) {
				cfg.Targeting.Forks = "perhaps"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			cfg.Targeting.Repos = []string{"acme/repo"}
			tt.mutateCfg(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected error, got nil")
			}
		})
	}
}

func TestValidate_NormalizesTargetingEnums(t *testing.T) {
	cfg := New()
	cfg.Targeting.Repos = []string{"acme/repo"}
	cfg.Targeting.Visibility = "  PRIVATE "
	cfg.Targeting.Archived = " INCLUDE "
	cfg.Targeting.Forks = " Only "

	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Targeting.Visibility != "private" {
		t.Fatalf("expected visibility to normalize to %q, got %q", "private", cfg.Targeting.Visibility)
	}
	if cfg.Targeting.Archived != "include" {
		t.Fatalf("expected archived to normalize to %q, got %q", "include", cfg.Targeting.Archived)
	}
	if cfg.Targeting.Forks != "only" {
		t.Fatalf("expected forks to normalize to %q, got %q", "only", cfg.Targeting.Forks)
	}
}

func TestValidate_RejectsInvalidEmit(t *testing.T) {
	tests := []struct {
		name string
		emit []string
	}{
		{name: "empty", emit: []string{""}},
		{name: "unknown", emit: []string{"yaml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			cfg.Targeting.Repos = []string{"acme/repo"}
			cfg.Output.Emit = tt.emit
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected error, got nil")
			}
		})
	}
}

func TestValidate_RejectsInvalidRuntimeBounds(t *testing.T) {
	tests := []struct {
		name      string
		mutateCfg func(cfg *Config)
	}{
		{
			name: "negative_max_repos",
			mutateCfg: func(cfg *Config) {
				cfg.Targeting.MaxRepos = -1
			},
		},
		{
			name: "zero_concurrency",
			mutateCfg: func(cfg *Config) {
				cfg.Runtime.Concurrency = 0
			},
		},
		{
			name: "negative_timeout",
			mutateCfg: func(cfg *Config) {
				cfg.Runtime.Timeout = -1
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			cfg.Targeting.Repos = []string{"acme/repo"}
			tt.mutateCfg(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected error, got nil")
			}
		})
	}
}

func TestParseRuleOptionAssignments_ContinuesCommaSeparatedValues(t *testing.T) {
	got, err := ParseRuleOptionAssignments([]string{"no-gpl.allow.artifacts=npm:a@1,npm:b@2", "no-gpl.allow.topics=x"})
	if err != nil {
		t.Fatalf("ParseRuleOptionAssignments returned error: %v", err)
	}
	if got["no-gpl"]["allow.artifacts"] != "npm:a@1,npm:b@2" {
		t.Fatalf("expected continued list value, got %q", got["no-gpl"]["allow.artifacts"])
	}
	if got["no-gpl"]["allow.topics"] != "x" {
		t.Fatalf("unexpected parsed value: %v", got)
	}
}

func TestValidate_RequiresASource(t *testing.T) {
	cfg := New()
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error without artifacts or targeting")
	}

	cfg = New()
	cfg.Inputs.Artifacts = []string{"a.yaml, b.json"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() returned error: %v", err)
	}
	if want := []string{"a.yaml", "b.json"}; !reflect.DeepEqual(cfg.Inputs.Artifacts, want) {
		t.Fatalf("Artifacts normalized mismatch: got %v want %v", cfg.Inputs.Artifacts, want)
	}
}

func TestNew_RulesetFromEnv(t *testing.T) {
	t.Setenv(RulesetEnvVar, "  policy.yaml ")
	if got := New().Inputs.Ruleset; got != "policy.yaml" {
		t.Fatalf("expected ruleset from env, got %q", got)
	}

	t.Setenv(RulesetEnvVar, "")
	if got := New().Inputs.Ruleset; got != "builtin:default" {
		t.Fatalf("expected builtin default, got %q", got)
	}
}

func TestValidate_FailOn(t *testing.T) {
	cfg := New()
	cfg.Inputs.Artifacts = []string{"a.yaml"}
	cfg.Output.FailOn = " WARNING "
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() returned error: %v", err)
	}
	if cfg.Output.FailOn != "warn" {
		t.Fatalf("expected fail-on to normalize to warn, got %q", cfg.Output.FailOn)
	}

	cfg = New()
	cfg.Inputs.Artifacts = []string{"a.yaml"}
	cfg.Output.FailOn = "fatal"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for unknown severity")
	}
}

func TestValidate_OutFormatInference(t *testing.T) {
	tests := []struct {
		out     string
		format  string
		want    string
		wantErr bool
	}{
		{out: "findings.json", want: "json"},
		{out: "findings.NDJSON", want: "ndjson"},
		{out: "findings.txt", wantErr: true},
		{out: "findings", wantErr: true},
		{out: "findings", format: " NDJSON ", want: "ndjson"},
		{out: "findings.json", format: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.out+"/"+tt.format, func(t *testing.T) {
			cfg := New()
			cfg.Inputs.Artifacts = []string{"a.yaml"}
			cfg.Output.Out = tt.out
			cfg.Output.OutFormat = tt.format
			err := cfg.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() returned error: %v", err)
			}
			if cfg.Output.OutFormat != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, cfg.Output.OutFormat)
			}
		})
	}
}

func TestValidate_RuntimeModes(t *testing.T) {
	tests := []struct {
		name      string
		mutateCfg func(cfg *Config)
		wantErr   bool
	}{
		{name: "schedule", mutateCfg: func(cfg *Config) { cfg.Runtime.Schedule = "*/5 * * * *" }},
		{name: "bad_schedule", mutateCfg: func(cfg *Config) { cfg.Runtime.Schedule = "every tuesday" }, wantErr: true},
		{name: "watch_and_schedule", mutateCfg: func(cfg *Config) {
			cfg.Runtime.Watch = true
			cfg.Runtime.Schedule = "@hourly"
		}, wantErr: true},
		{name: "update_without_baseline", mutateCfg: func(cfg *Config) { cfg.Baseline.Update = true }, wantErr: true},
		{name: "zero_workers", mutateCfg: func(cfg *Config) { cfg.Runtime.Workers = 0 }, wantErr: true},
		{name: "bad_log_level", mutateCfg: func(cfg *Config) { cfg.Logging.Level = "trace" }, wantErr: true},
		{name: "bad_log_format", mutateCfg: func(cfg *Config) { cfg.Logging.Format = "xml" }, wantErr: true},
		{name: "bad_github_url", mutateCfg: func(cfg *Config) { cfg.Targeting.GitHubURL = "ghe.example.com" }, wantErr: true},
		{name: "github_url", mutateCfg: func(cfg *Config) { cfg.Targeting.GitHubURL = "https://ghe.example.com/api/v3/" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			cfg.Inputs.Artifacts = []string{"a.yaml"}
			tt.mutateCfg(cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
		})
	}
}

func TestValidate_VerboseForcesDebugLogging(t *testing.T) {
	cfg := New()
	cfg.Inputs.Artifacts = []string{"a.yaml"}
	cfg.Runtime.Verbose = true
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() returned error: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected debug level, got %q", cfg.Logging.Level)
	}
}

func TestValidateServe(t *testing.T) {
	cfg := New()
	if err := cfg.ValidateServe(); err != nil {
		t.Fatalf("ValidateServe() returned error: %v", err)
	}

	cfg.Server.Addr = " "
	if err := cfg.ValidateServe(); err == nil {
		t.Fatalf("expected error for empty addr")
	}
}
