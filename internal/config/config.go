package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"licensemedic/internal/rules"
	"licensemedic/internal/violation"
)

// RulesetEnvVar provides the default for --ruleset.
const RulesetEnvVar = "LICENSEMEDIC_RULESET"

type Config struct {
	// MAINTAINER NOTE: If you add/change/remove config fields that affect audit
	// behavior, keep these in sync:
	// - CLI flags in internal/cli/audit.go
	// - flag names in internal/flags
	Inputs    Inputs
	Targeting Targeting
	Baseline  Baseline
	Output    Output
	Runtime   Runtime
	Logging   Logging
	Server    Server
}

type Inputs struct {
	// Ruleset is the ruleset location: a file path or builtin:<name> (see --ruleset).
	// Defaults to $LICENSEMEDIC_RULESET, then builtin:default.
	Ruleset string

	// Artifacts are artifact documents (YAML or JSON) to audit (see --artifacts).
	// Values may be provided as repeated flags and/or comma-separated lists.
	Artifacts []string

	// Rules selects which rules to run: empty means all, otherwise a comma-separated
	// list of rule ids (see --rules).
	Rules string

	// Set provides per-rule option overrides from the CLI.
	// Entries are of the form ruleID.option=value (repeatable; comma-separated accepted; see --set).
	Set []string
}

type Targeting struct {
	// GitHubURL is the REST API root of a GitHub Enterprise Server (see --github-url).
	// Empty means github.com.
	GitHubURL string

	// Org is the GitHub organization account to collect (name or URL; see --org).
	Org string

	// User is the GitHub user account to collect (name or URL; see --user).
	User string

	// Repos is an explicit list of repositories as OWNER/REPO (see --repos).
	// With --org or --user, entries act as include filters and may be globs.
	Repos []string

	// Include filters repositories by name using Go path.Match style (see --include).
	// If a pattern contains '/', it matches OWNER/REPO; otherwise it matches repo name.
	Include []string

	// Exclude filters repositories by name using Go path.Match style (see --exclude).
	// Same matching rules as Include.
	Exclude []string

	// Topic requires repositories to have at least one matching topic (exact match; see --topic).
	Topic []string

	// Visibility filters repositories by visibility (see --visibility).
	// Allowed values: public, private, internal, all.
	Visibility string

	// Archived controls how archived repos are handled (see --archived).
	// Allowed values: include, exclude, only.
	Archived string

	// Forks controls how forked repos are handled (see --forks).
	// Allowed values: include, exclude, only.
	Forks string

	// MaxRepos limits how many repositories to collect (see --max-repos). 0 means unlimited.
	MaxRepos int

	// Copyrights fetches each repository's license file and extracts its
	// copyright lines (see --copyrights). Costs one API request per repository.
	Copyrights bool
}

type Baseline struct {
	// Path is the baseline store (see --baseline). .db/.sqlite/.sqlite3 select SQLite,
	// anything else a YAML file. Empty disables baselining.
	Path string

	// Update accepts every open violation of this run into the baseline (see --update-baseline).
	Update bool
}

type Output struct {
	// ConsoleFormat controls the human-facing console sink format (see --console-format).
	// Allowed values: text, json, ndjson.
	ConsoleFormat string

	// ConsoleFilterStatus filters console output by finding status (see --console-filter-status).
	// Allowed values: OPEN, SUPPRESSED.
	ConsoleFilterStatus []string

	// Report writes a Markdown report to this path (see --report).
	Report string

	// Out writes structured output to this path (see --out).
	Out string

	// OutFormat selects the format for --out (see --out-format).
	// Allowed values: json, ndjson. If empty, it is inferred from the --out file extension.
	OutFormat string

	// Emit writes an additional structured event stream to stdout (see --emit).
	// Allowed values: json, ndjson.
	Emit []string

	// NoConsole suppresses the console sink (see --no-console).
	NoConsole bool

	// FailOn is the lowest severity of an open violation that fails the run (see --fail-on).
	// Allowed values: info, warn, error.
	FailOn string
}

type Runtime struct {
	// Concurrency bounds concurrent GitHub requests while collecting (see --concurrency).
	Concurrency int

	// Workers is the number of parallel evaluation partitions (see --workers).
	Workers int

	// Timeout bounds the whole run, collection included (see --timeout).
	Timeout time.Duration

	// Verbose forces debug logging and traces GitHub API calls (see --verbose).
	Verbose bool

	// Watch re-runs the audit whenever the ruleset or an artifact document changes (see --watch).
	Watch bool

	// Schedule re-runs the audit on a cron schedule (see --schedule).
	Schedule string

	// MetricsTextfile writes Prometheus metrics in text format after each run (see --metrics-textfile).
	MetricsTextfile string
}

type Logging struct {
	// Level is one of debug, info, warn, error (see --log-level).
	Level string

	// Format is one of text, json (see --log-format).
	Format string
}

type Server struct {
	// Addr is the listen address of the HTTP API (see --addr).
	Addr string
}

func New() *Config {
	ruleset := strings.TrimSpace(os.Getenv(RulesetEnvVar))
	if ruleset == "" {
		ruleset = rules.BuiltinPrefix + rules.DefaultBuiltin
	}
	return &Config{
		Inputs: Inputs{
			Ruleset: ruleset,
		},
		Targeting: Targeting{
			Visibility: "all",
			Archived:   "exclude",
			Forks:      "exclude",
		},
		Output: Output{
			ConsoleFormat: "text",
			FailOn:        string(violation.SeverityError),
		},
		Runtime: Runtime{
			Concurrency: 5,
			Workers:     4,
			Timeout:     30 * time.Minute,
		},
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
		Server: Server{
			Addr: ":8080",
		},
	}
}

// HasGitHubTarget reports whether any GitHub targeting selector is set.
func (c *Config) HasGitHubTarget() bool {
	return c.Targeting.Org != "" || c.Targeting.User != "" || len(c.Targeting.Repos) > 0
}

// Validate normalizes and checks the configuration of an audit run.
func (c *Config) Validate() error {
	if err := c.validateCommon(); err != nil {
		return err
	}
	if err := c.ValidateTargeting(); err != nil {
		return err
	}

	if len(c.Inputs.Artifacts) == 0 && !c.HasGitHubTarget() {
		return errors.New("at least one of --artifacts, --org, --user, or --repos must be provided")
	}

	// Output validation
	c.Output.ConsoleFormat = normalizeEnumValue(c.Output.ConsoleFormat)
	if c.Output.ConsoleFormat == "" {
		return errors.New("--console-format must be one of: text, json, ndjson")
	}
	if c.Output.ConsoleFormat != "text" && c.Output.ConsoleFormat != "json" && c.Output.ConsoleFormat != "ndjson" {
		return fmt.Errorf("unsupported --console-format: %s (must be one of: text, json, ndjson)", c.Output.ConsoleFormat)
	}

	for i, status := range c.Output.ConsoleFilterStatus {
		v := strings.ToUpper(strings.TrimSpace(status))
		if v != "OPEN" && v != "SUPPRESSED" {
			return fmt.Errorf("unsupported --console-filter-status value: %s (must be one of: OPEN, SUPPRESSED)", status)
		}
		c.Output.ConsoleFilterStatus[i] = v
	}

	for i, emit := range c.Output.Emit {
		v := normalizeEnumValue(emit)
		if v == "" {
			return errors.New("--emit must be one of: json, ndjson")
		}
		if v != "json" && v != "ndjson" {
			return fmt.Errorf("unsupported --emit value: %s (must be one of: json, ndjson)", v)
		}
		c.Output.Emit[i] = v
	}

	sev, err := violation.ParseSeverity(c.Output.FailOn)
	if err != nil {
		return fmt.Errorf("invalid --fail-on: %w", err)
	}
	c.Output.FailOn = string(sev)

	if c.Output.Out != "" {
		c.Output.OutFormat = normalizeEnumValue(c.Output.OutFormat)
		if c.Output.OutFormat == "" {
			ext := strings.ToLower(filepath.Ext(c.Output.Out))
			switch ext {
			case ".json":
				c.Output.OutFormat = "json"
			case ".ndjson":
				c.Output.OutFormat = "ndjson"
			default:
				if ext == "" {
					return errors.New("cannot infer output format from file extension (missing extension); use --out-format")
				}
				return fmt.Errorf("cannot infer output format from file extension %q; use --out-format", ext)
			}
		} else if c.Output.OutFormat != "json" && c.Output.OutFormat != "ndjson" {
			return fmt.Errorf("unsupported output format: %s", c.Output.OutFormat)
		}
	}

	if c.Baseline.Update && strings.TrimSpace(c.Baseline.Path) == "" {
		return errors.New("--update-baseline requires --baseline")
	}

	// Runtime validation
	if c.Runtime.Concurrency <= 0 {
		return errors.New("--concurrency must be >= 1")
	}
	if c.Runtime.Timeout <= 0 {
		return errors.New("--timeout must be > 0")
	}
	c.Runtime.Schedule = strings.TrimSpace(c.Runtime.Schedule)
	if c.Runtime.Schedule != "" {
		if _, err := cron.ParseStandard(c.Runtime.Schedule); err != nil {
			return fmt.Errorf("invalid --schedule %q: %w", c.Runtime.Schedule, err)
		}
	}
	if c.Runtime.Watch && c.Runtime.Schedule != "" {
		return errors.New("--watch and --schedule are mutually exclusive")
	}
	return nil
}

// ValidateServe normalizes and checks the configuration of the HTTP API.
func (c *Config) ValidateServe() error {
	if err := c.validateCommon(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Server.Addr) == "" {
		return errors.New("--addr must not be empty")
	}
	return nil
}

// ValidateTargeting normalizes and checks the GitHub targeting selectors.
func (c *Config) ValidateTargeting() error {
	c.Targeting.Repos = splitCommaList(c.Targeting.Repos)
	c.Targeting.Topic = splitCommaList(c.Targeting.Topic)
	c.Targeting.Include = splitCommaList(c.Targeting.Include)
	c.Targeting.Exclude = splitCommaList(c.Targeting.Exclude)

	// Normalize account selectors.
	if c.Targeting.Org != "" {
		org, err := normalizeAccountSelector(c.Targeting.Org)
		if err != nil {
			return fmt.Errorf("invalid --org value: %w", err)
		}
		c.Targeting.Org = org
	}
	if c.Targeting.User != "" {
		user, err := normalizeAccountSelector(c.Targeting.User)
		if err != nil {
			return fmt.Errorf("invalid --user value: %w", err)
		}
		c.Targeting.User = user
	}
	if c.Targeting.Org != "" && c.Targeting.User != "" {
		return errors.New("--org and --user are mutually exclusive")
	}

	c.Targeting.GitHubURL = strings.TrimSpace(c.Targeting.GitHubURL)
	if c.Targeting.GitHubURL != "" {
		u, err := url.Parse(c.Targeting.GitHubURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid --github-url %q: expected an http(s) URL", c.Targeting.GitHubURL)
		}
	}

	c.Targeting.Visibility = normalizeEnumValue(c.Targeting.Visibility)
	if c.Targeting.Visibility == "" {
		c.Targeting.Visibility = "all"
	}
	if c.Targeting.Visibility != "public" && c.Targeting.Visibility != "private" && c.Targeting.Visibility != "internal" && c.Targeting.Visibility != "all" {
		return fmt.Errorf("unsupported --visibility: %s (must be one of: public, private, internal, all)", c.Targeting.Visibility)
	}

	c.Targeting.Archived = normalizeEnumValue(c.Targeting.Archived)
	if c.Targeting.Archived == "" {
		c.Targeting.Archived = "exclude"
	}
	if c.Targeting.Archived != "include" && c.Targeting.Archived != "exclude" && c.Targeting.Archived != "only" {
		return fmt.Errorf("unsupported --archived: %s (must be one of: include, exclude, only)", c.Targeting.Archived)
	}

	c.Targeting.Forks = normalizeEnumValue(c.Targeting.Forks)
	if c.Targeting.Forks == "" {
		c.Targeting.Forks = "exclude"
	}
	if c.Targeting.Forks != "include" && c.Targeting.Forks != "exclude" && c.Targeting.Forks != "only" {
		return fmt.Errorf("unsupported --forks: %s (must be one of: include, exclude, only)", c.Targeting.Forks)
	}

	if c.Targeting.MaxRepos < 0 {
		return errors.New("--max-repos must be >= 0")
	}
	return nil
}

func (c *Config) validateCommon() error {
	c.Inputs.Artifacts = splitCommaList(c.Inputs.Artifacts)
	c.Inputs.Set = splitCommaList(c.Inputs.Set)
	c.Output.ConsoleFilterStatus = splitCommaList(c.Output.ConsoleFilterStatus)

	c.Inputs.Ruleset = strings.TrimSpace(c.Inputs.Ruleset)
	if c.Inputs.Ruleset == "" {
		c.Inputs.Ruleset = rules.BuiltinPrefix + rules.DefaultBuiltin
	}

	// Rule option syntax validation (rule.option=value)
	if len(c.Inputs.Set) > 0 {
		if _, err := ParseRuleOptionAssignments(c.Inputs.Set); err != nil {
			return err
		}
	}

	if c.Runtime.Workers <= 0 {
		return errors.New("--workers must be >= 1")
	}

	c.Logging.Level = normalizeEnumValue(c.Logging.Level)
	switch c.Logging.Level {
	case "":
		c.Logging.Level = "info"
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported --log-level: %s (must be one of: debug, info, warn, error)", c.Logging.Level)
	}
	if c.Runtime.Verbose {
		c.Logging.Level = "debug"
	}

	c.Logging.Format = normalizeEnumValue(c.Logging.Format)
	switch c.Logging.Format {
	case "":
		c.Logging.Format = "text"
	case "text", "json":
	default:
		return fmt.Errorf("unsupported --log-format: %s (must be one of: text, json)", c.Logging.Format)
	}
	return nil
}

func normalizeEnumValue(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func normalizeAccountSelector(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}

	// Accept a raw account name, or a GitHub URL like:
	//   https://github.com/<name>
	//   https://github.com/orgs/<name>
	//   https://github.com/users/<name>
	//   github.com/<name>
	if strings.HasPrefix(raw, "github.com/") || strings.HasPrefix(raw, "www.github.com/") {
		raw = "https://" + raw
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", fmt.Errorf("%q", raw)
		}
		host := strings.ToLower(u.Hostname())
		if host == "www.github.com" {
			host = "github.com"
		}
		if host != "github.com" {
			return "", fmt.Errorf("%q", raw)
		}
		parts := strings.FieldsFunc(strings.Trim(u.Path, "/"), func(r rune) bool { return r == '/' })
		if len(parts) == 0 {
			return "", fmt.Errorf("%q", raw)
		}
		if parts[0] == "orgs" || parts[0] == "users" {
			if len(parts) < 2 {
				return "", fmt.Errorf("%q", raw)
			}
			return parts[1], nil
		}
		return parts[0], nil
	}

	// Basic sanity: reject obvious repo-like inputs.
	if strings.Contains(raw, "/") {
		return "", fmt.Errorf("%q", raw)
	}
	return raw, nil
}

// ParseRuleOptionAssignments parses values of the form "ruleID.option=value".
//
// Notes:
//   - Entries may be provided via repeated flags and/or comma-delimited lists.
//     Because allow list values are themselves comma-separated, a bare entry
//     without "=" continues the value of the previous entry.
//   - This validates syntax only (no validation of rule IDs or option names).
//   - Empty values are allowed ("rule.option=").
func ParseRuleOptionAssignments(values []string) (map[string]map[string]string, error) {
	out := make(map[string]map[string]string)
	var lastRule, lastOpt string
	for _, raw := range splitCommaList(values) {
		left, value, ok := strings.Cut(raw, "=")
		if !ok {
			if lastRule == "" {
				return nil, fmt.Errorf("invalid --set entry %q: expected rule.option=value", raw)
			}
			prev := out[lastRule][lastOpt]
			if prev == "" {
				out[lastRule][lastOpt] = strings.TrimSpace(raw)
			} else {
				out[lastRule][lastOpt] = prev + "," + strings.TrimSpace(raw)
			}
			continue
		}
		value = strings.TrimSpace(value)
		ruleID, opt, ok := strings.Cut(strings.TrimSpace(left), ".")
		if !ok {
			return nil, fmt.Errorf("invalid --set entry %q: expected rule.option=value", raw)
		}
		ruleID = strings.TrimSpace(ruleID)
		opt = strings.TrimSpace(opt)
		if ruleID == "" || opt == "" {
			return nil, fmt.Errorf("invalid --set entry %q: expected non-empty rule and option", raw)
		}
		if _, ok := out[ruleID]; !ok {
			out[ruleID] = make(map[string]string)
		}
		out[ruleID][opt] = value
		lastRule, lastOpt = ruleID, opt
	}
	return out, nil
}

func splitCommaList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			p := strings.TrimSpace(part)
			if p == "" {
				continue
			}
			out = append(out, p)
		}
	}
	return out
}
