package rules

import (
	"strings"
	"testing"

	"licensemedic/internal/artifact"
	"licensemedic/internal/violation"
)

func TestAllowList_IsAllowed(t *testing.T) {
	repo := artifact.New(artifact.Coordinates{Name: "Acme/Widget", Version: "main", Source: "github"}, nil, nil, map[string]string{"topics": "internal-tool, docs"})

	tests := []struct {
		name       string
		artifacts  []string
		patterns   []string
		topics     []string
		wantOK     bool
		wantReason string
	}{
		{name: "empty", wantOK: false},
		{name: "exact_id", artifacts: []string{"github:acme/widget@main"}, wantOK: true, wantReason: OptionAllowArtifacts},
		{name: "exact_id_other_version", artifacts: []string{"github:acme/widget@v2"}, wantOK: false},
		{name: "pattern_on_id", patterns: []string{"github:acme/*"}, wantOK: true, wantReason: OptionAllowPatterns},
		{name: "pattern_on_name", patterns: []string{"acme/wid*"}, wantOK: true, wantReason: OptionAllowPatterns},
		{name: "pattern_miss", patterns: []string{"npm:*"}, wantOK: false},
		{name: "topic", topics: []string{"DOCS"}, wantOK: true, wantReason: OptionAllowTopics},
		{name: "topic_miss", topics: []string{"security"}, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := NewAllowList(tt.artifacts, tt.patterns, tt.topics)
			if err != nil {
				t.Fatalf("NewAllowList returned error: %v", err)
			}
			ok, reason := a.IsAllowed(repo)
			if ok != tt.wantOK || reason != tt.wantReason {
				t.Fatalf("IsAllowed = (%v, %q) want (%v, %q)", ok, reason, tt.wantOK, tt.wantReason)
			}
		})
	}
}

func TestAllowList_Configure(t *testing.T) {
	base, err := NewAllowList([]string{"npm:left-pad"}, []string{"github:acme/*"}, nil)
	if err != nil {
		t.Fatalf("NewAllowList returned error: %v", err)
	}

	got, err := base.Configure(map[string]string{OptionAllowPatterns: "", OptionAllowTopics: "docs,archived"})
	if err != nil {
		t.Fatalf("Configure returned error: %v", err)
	}
	if len(got.Patterns) != 0 {
		t.Fatalf("expected patterns cleared, got %v", got.Patterns)
	}
	if !got.Artifacts["npm:left-pad"] {
		t.Fatalf("expected artifacts kept, got %v", got.Artifacts)
	}
	if strings.Join(got.Topics, ",") != "docs,archived" {
		t.Fatalf("unexpected topics %v", got.Topics)
	}
	if len(base.Patterns) != 1 {
		t.Fatalf("Configure modified the receiver: %v", base.Patterns)
	}

	if _, err := base.Configure(map[string]string{"deny.repos": "x"}); err == nil {
		t.Fatalf("expected error for unknown option")
	}
}

func TestRuleSet_SelectAndOptions(t *testing.T) {
	rs, err := NewRuleSet(Provenance{Name: "test"}, []Rule{
		{ID: "b", Severity: violation.SeverityWarn, Condition: LicenseMissing{}},
		{ID: "a", Condition: CopyrightMissing{}},
	})
	if err != nil {
		t.Fatalf("NewRuleSet returned error: %v", err)
	}
	if got := strings.Join(rs.IDs(), ","); got != "a,b" {
		t.Fatalf("IDs() = %q", got)
	}
	if r, _ := rs.Rule("a"); r.Severity != violation.SeverityError {
		t.Fatalf("expected default severity error, got %q", r.Severity)
	}

	sel, err := rs.Select("a")
	if err != nil {
		t.Fatalf("Select returned error: %v", err)
	}
	if sel.Len() != 1 {
		t.Fatalf("expected 1 rule, got %d", sel.Len())
	}
	if all, _ := rs.Select(""); all != rs {
		t.Fatalf("empty selector should return the same RuleSet")
	}
	if _, err := rs.Select("missing"); err == nil || !strings.Contains(err.Error(), "available: a, b") {
		t.Fatalf("expected unknown rule error listing sorted ids, got %v", err)
	}

	opts := map[string]map[string]string{"b": {OptionAllowPatterns: "npm:*"}}
	configured, err := rs.WithOptions(opts)
	if err != nil {
		t.Fatalf("WithOptions returned error: %v", err)
	}
	b, _ := configured.Rule("b")
	if len(b.Allow.Patterns) != 1 {
		t.Fatalf("expected allow pattern applied, got %+v", b.Allow)
	}
	orig, _ := rs.Rule("b")
	if len(orig.Allow.Patterns) != 0 {
		t.Fatalf("WithOptions modified the original RuleSet")
	}
	if _, err := rs.WithOptions(map[string]map[string]string{"zzz": {OptionAllowTopics: "x"}}); err == nil {
		t.Fatalf("expected error for unknown rule")
	}
}

func TestRule_RenderAndIdentity(t *testing.T) {
	rs, err := NewRuleSet(Provenance{}, []Rule{
		{ID: "meta", Condition: MetadataFlagSet{Key: "vulnerable"}, Message: "{{.Name}} owner={{.Metadata.owner}} {{.Value}}", Dedup: DedupArtifact},
		{ID: "plain", Condition: LicenseMissing{}},
	})
	if err != nil {
		t.Fatalf("NewRuleSet returned error: %v", err)
	}
	a := artifact.New(artifact.Coordinates{Name: "lib", Source: "npm"}, nil, nil, nil)

	meta, _ := rs.Rule("meta")
	msg, err := meta.Render(NewTemplateData(meta, a, []string{"vulnerable=true"}))
	if err != nil {
		t.Fatalf("Render returned error: %v", err)
	}
	if msg != "lib owner= vulnerable=true" {
		t.Fatalf("unexpected message %q", msg)
	}
	if got := meta.IdentityValues(a, []string{"x"}); strings.Join(got, "|") != "x|artifact=npm:lib" {
		t.Fatalf("unexpected identity values %v", got)
	}

	plain, _ := rs.Rule("plain")
	msg, err = plain.Render(NewTemplateData(plain, a, nil))
	if err != nil {
		t.Fatalf("Render returned error: %v", err)
	}
	if msg != "npm:lib violates plain" {
		t.Fatalf("unexpected default message %q", msg)
	}
	if got := plain.IdentityValues(a, []string{"x"}); len(got) != 1 {
		t.Fatalf("value dedup must not add the artifact: %v", got)
	}

	var zero Rule
	if _, err := zero.Render(TemplateData{}); err == nil {
		t.Fatalf("expected error rendering an uncompiled rule")
	}
}
