package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"licensemedic/internal/audit"
	"licensemedic/internal/config"
	"licensemedic/internal/flags"
	"licensemedic/internal/metrics"
	"licensemedic/internal/watch"
)

const auditHelpTemplate = `{{with (or .Long .Short)}}{{. | trimTrailingWhitespaces}}

{{end}}Usage:
  {{.UseLine}}

{{if .HasAvailableLocalFlags}}Flags:
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}

{{end}}{{if .HasAvailableInheritedFlags}}Global Flags:
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}

{{end}}Environment:
  LICENSEMEDIC_RULESET   default for --ruleset (otherwise builtin:default)

  GitHub sources (--org, --user, --repos) need an access token.

  Sources (in order):
  1) LICENSEMEDIC_GITHUB_TOKEN environment variable
  2) GITHUB_TOKEN environment variable
  3) GH_TOKEN environment variable
  4) GitHub CLI (gh) authentication via gh auth token (if gh is installed and logged in)

  Token guidance (brief):
  - PAT (classic): typically needs repo (to read private repos) and read:org
    (to enumerate org repositories).
  - Fine-grained PAT: grant access to the target repositories with
    Metadata: Read and Contents: Read (for --copyrights).

  Examples:
    # macOS/Linux
    export GITHUB_TOKEN="<your_token>"
    licensemedic audit --org my-org

    # GitHub CLI auth
    gh auth login
    licensemedic audit --org my-org

{{if .HasAvailableSubCommands}}Available Commands:
{{range .Commands}}{{if (or .IsAvailableCommand (eq .Name "help"))}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}

{{end}}{{if .HasHelpSubCommands}}Additional help topics:
{{range .Commands}}{{if .IsAdditionalHelpTopicCommand}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}

{{end}}{{if .HasAvailableSubCommands}}Use "{{.CommandPath}} [command] --help" for more information about a command.
{{end}}`

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit artifacts against a ruleset",
	Long: `Audit artifacts against a ruleset and report policy violations.

Artifacts are read from artifact documents (--artifacts) and/or collected from
GitHub repositories (--org, --user, --repos). Every rule is evaluated against
every artifact; violations with the same identity hash are reported once.

Baseline:
	--baseline points at a store of accepted violation hashes (.yaml file, or
	.db/.sqlite/.sqlite3 for SQLite). Accepted violations are reported as
	SUPPRESSED and never fail the run. --update-baseline accepts every open
	violation of this run.

Output:
	Console output is controlled by --console-format (default: text).
	Structured outputs can be written via:
	- --out / --out-format: write an aggregate JSON document or NDJSON stream to a file
	- --emit: write an additional structured stream to stdout (json or ndjson)
	- --report: write a Markdown compliance report
	- --no-console: suppress the console sink (use with --emit/--out for machine output)

	NDJSON mode emits one JSON object per line. Objects are lifecycle Events with a
	"type" field (run.started, violation, evaluation.warning, collection.partial,
	run.finished). Violations carry their rule_id, message, hash and status
	(OPEN or SUPPRESSED).

Exit codes:
	0 = clean run, no open violations at or above --fail-on
	1 = open violations at or above --fail-on
	2 = partial run (evaluation warnings or collection failures)
	3 = fatal error (audit did not run)

Examples:
  # Audit an artifact document with the built-in ruleset
  licensemedic audit --artifacts sbom.yaml

  # Use a custom ruleset and fail on warnings too
  licensemedic audit --ruleset rules.yaml --artifacts sbom.yaml --fail-on warn

  # Accept today's violations, then only report new ones
  licensemedic audit --artifacts sbom.yaml --baseline baseline.yaml --update-baseline
  licensemedic audit --artifacts sbom.yaml --baseline baseline.yaml

  # Audit an organization, including copyright notices from license files
  licensemedic audit --org my-org --copyrights --report report.md

  # Re-run whenever the inputs change
  licensemedic audit --ruleset rules.yaml --artifacts sbom.yaml --watch

	# AI Agent: stream machine-readable events to stdout
	licensemedic audit --artifacts sbom.yaml --no-console --emit ndjson
`,
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 0 && cmd.Flags().NFlag() == 0 {
			_ = cmd.Help()
			return
		}

		applyImplicitDefaults(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			fatalf("%v", err)
		}
		if cfg.Runtime.Watch && len(audit.WatchPaths(cfg)) == 0 {
			fatalf("--%s requires --%s or a ruleset file", flags.FlagWatch, flags.FlagArtifacts)
		}

		logger, err := newLogger()
		if err != nil {
			fatalf("%v", err)
		}

		ctx, stop := signalContext()
		defer stop()

		runner := audit.NewRunner(cfg, audit.WithLogger(logger), audit.WithMetrics(metrics.NewCollector(nil)))
		last := runOnce(ctx, runner)
		if !cfg.Runtime.Watch && cfg.Runtime.Schedule == "" {
			os.Exit(last)
		}

		rerun := func(ctx context.Context) { last = runOnce(ctx, runner) }
		if cfg.Runtime.Watch {
			w, err := watch.NewFileWatcher(audit.WatchPaths(cfg), 0, logger)
			if err != nil {
				fatalf("%v", err)
			}
			err = w.Watch(ctx, rerun)
		} else {
			err = watch.Schedule(ctx, cfg.Runtime.Schedule, logger, rerun)
		}
		if err != nil {
			fatalf("%v", err)
		}
		os.Exit(last)
	},
}

func runOnce(ctx context.Context, runner *audit.Runner) int {
	out := runner.Run(ctx)
	if out.Err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", out.Err)
	}
	return out.ExitCode
}

func applyImplicitDefaults(cmd *cobra.Command, cfg *config.Config) {
	// When auditing a user account, include forks by default. Many GitHub users
	// have a significant portion of their repos as forks, and excluding them by
	// default is surprising.
	if cfg.Targeting.User != "" && cmd != nil {
		if !cmd.Flags().Changed(flags.FlagForks) {
			cfg.Targeting.Forks = "include"
		}
	}
}

// addInputFlags binds the ruleset and artifact selection flags.
func addInputFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&cfg.Inputs.Ruleset, flags.FlagRuleset, cfg.Inputs.Ruleset, "Ruleset document path, or builtin:<name> (default: $LICENSEMEDIC_RULESET, else builtin:default)")
	cmd.Flags().StringVar(&cfg.Inputs.Rules, flags.FlagRules, "", "Comma-separated rule ids to evaluate (empty = all rules)")
	cmd.Flags().StringSliceVar(&cfg.Inputs.Set, flags.FlagSet, nil, "Per-rule options as ruleID.option=value, e.g. no-gpl.allow.patterns=npm:internal-* (repeatable)")
	cmd.Flags().IntVar(&cfg.Runtime.Workers, flags.FlagWorkers, cfg.Runtime.Workers, "Parallel evaluation partitions")
}

// addTargetingFlags binds the GitHub collection flags.
func addTargetingFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&cfg.Targeting.GitHubURL, flags.FlagGitHubURL, "", "GitHub Enterprise Server REST API root (e.g. https://ghe.example.com/api/v3/)")
	cmd.Flags().StringVar(&cfg.Targeting.Org, flags.FlagOrg, "", "GitHub organization account to collect (name or URL)")
	cmd.Flags().StringVar(&cfg.Targeting.User, flags.FlagUser, "", "GitHub user account to collect (name or URL)")
	cmd.Flags().StringSliceVar(&cfg.Targeting.Repos, flags.FlagRepos, nil, "Repositories to collect as OWNER/REPO (repeatable; comma-separated accepted)")
	cmd.Flags().StringSliceVar(&cfg.Targeting.Include, flags.FlagInclude, nil, "Include pattern(s) (repeatable; comma-separated accepted). Go path.Match style; if pattern contains '/', matches OWNER/REPO, else matches repo name")
	cmd.Flags().StringSliceVar(&cfg.Targeting.Exclude, flags.FlagExclude, nil, "Exclude pattern(s) (repeatable; comma-separated accepted). Same matching rules as --include")
	cmd.Flags().StringSliceVar(&cfg.Targeting.Topic, flags.FlagTopic, nil, "Require at least one topic match (repeatable; comma-separated accepted; exact match)")
	cmd.Flags().StringVar(&cfg.Targeting.Visibility, flags.FlagVisibility, "all", "Visibility filter: public|private|internal|all")
	cmd.Flags().StringVar(&cfg.Targeting.Archived, flags.FlagArchived, "exclude", "Archived repos policy: include|exclude|only")
	cmd.Flags().StringVar(&cfg.Targeting.Forks, flags.FlagForks, "exclude", "Forks policy: include|exclude|only. If --user is set and this flag is omitted, forks default to include")
	cmd.Flags().IntVar(&cfg.Targeting.MaxRepos, flags.FlagMaxRepos, 0, "Maximum number of repositories to collect (0 = default limit)")
	cmd.Flags().BoolVar(&cfg.Targeting.Copyrights, flags.FlagCopyrights, false, "Fetch each repository's license file and extract copyright notices (one extra API call per repo)")
	cmd.Flags().IntVar(&cfg.Runtime.Concurrency, flags.FlagConcurrency, cfg.Runtime.Concurrency, "Concurrent GitHub requests")
	cmd.Flags().DurationVar(&cfg.Runtime.Timeout, flags.FlagTimeout, cfg.Runtime.Timeout, "Global timeout per run")
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.SetHelpTemplate(auditHelpTemplate)

	// Inputs
	addInputFlags(auditCmd)
	auditCmd.Flags().StringSliceVar(&cfg.Inputs.Artifacts, flags.FlagArtifacts, nil, "Artifact documents to audit, YAML or JSON (repeatable; comma-separated accepted)")

	// Targeting
	addTargetingFlags(auditCmd)

	// Baseline
	auditCmd.Flags().StringVar(&cfg.Baseline.Path, flags.FlagBaseline, "", "Baseline store of accepted violations (.yaml, or .db/.sqlite/.sqlite3 for SQLite)")
	auditCmd.Flags().BoolVar(&cfg.Baseline.Update, flags.FlagUpdateBaseline, false, "Accept every open violation of this run into the baseline")

	// Output
	auditCmd.Flags().StringVar(&cfg.Output.ConsoleFormat, flags.FlagConsoleFormat, "text", "Console output format: text|json|ndjson")
	auditCmd.Flags().StringSliceVar(&cfg.Output.ConsoleFilterStatus, flags.FlagConsoleFilterStatus, nil, "Filter console output by status (OPEN, SUPPRESSED). Comma-separated.")
	auditCmd.Flags().StringVar(&cfg.Output.Report, flags.FlagReport, "", "Write a Markdown compliance report to this path")
	auditCmd.Flags().StringVar(&cfg.Output.Out, flags.FlagOut, "", "Write structured output to this path")
	auditCmd.Flags().StringVar(&cfg.Output.OutFormat, flags.FlagOutFormat, "", "Structured output format for --out: json|ndjson (default: inferred from file extension)")
	auditCmd.Flags().StringArrayVar(&cfg.Output.Emit, flags.FlagEmit, nil, "Emit additional structured stream to stdout: json|ndjson (repeatable)")
	auditCmd.Flags().BoolVar(&cfg.Output.NoConsole, flags.FlagNoConsole, false, "Suppress console output (use with --emit/--out/--report)")
	auditCmd.Flags().StringVar(&cfg.Output.FailOn, flags.FlagFailOn, cfg.Output.FailOn, "Lowest severity of an open violation that fails the run: info|warn|error")

	// Runtime
	auditCmd.Flags().BoolVar(&cfg.Runtime.Watch, flags.FlagWatch, false, "Re-run the audit whenever the ruleset file or an artifact document changes")
	auditCmd.Flags().StringVar(&cfg.Runtime.Schedule, flags.FlagSchedule, "", "Re-run the audit on a cron schedule (e.g. \"0 3 * * *\" or \"@every 1h\")")
	auditCmd.Flags().StringVar(&cfg.Runtime.MetricsTextfile, flags.FlagMetricsTextfile, "", "Write Prometheus metrics to this file after each run (node_exporter textfile format)")
}
