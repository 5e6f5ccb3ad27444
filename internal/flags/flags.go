package flags

// Package flags defines canonical CLI flag names shared across the CLI and
// config validation messages.
// IMPORTANT: These are flag *names* without leading dashes.
// Example usage:
//
//	cmd.Flags().StringVar(&cfg.Targeting.Org, flags.FlagOrg, "", "...")
//	arg := "--" + flags.FlagOrg
const (
	// Inputs
	FlagRuleset   = "ruleset"
	FlagArtifacts = "artifacts"
	FlagRules     = "rules"
	FlagSet       = "set"

	// Targeting
	FlagGitHubURL  = "github-url"
	FlagOrg        = "org"
	FlagUser       = "user"
	FlagRepos      = "repos"
	FlagInclude    = "include"
	FlagExclude    = "exclude"
	FlagTopic      = "topic"
	FlagVisibility = "visibility"
	FlagArchived   = "archived"
	FlagForks      = "forks"
	FlagMaxRepos   = "max-repos"
	FlagCopyrights = "copyrights"

	// Baseline
	FlagBaseline       = "baseline"
	FlagUpdateBaseline = "update-baseline"

	// Output
	FlagConsoleFormat       = "console-format"
	FlagConsoleFilterStatus = "console-filter-status"
	FlagReport              = "report"
	FlagOut                 = "out"
	FlagOutFormat           = "out-format"
	FlagEmit                = "emit"
	FlagNoConsole           = "no-console"
	FlagFailOn              = "fail-on"

	// Runtime
	FlagConcurrency     = "concurrency"
	FlagWorkers         = "workers"
	FlagTimeout         = "timeout"
	FlagVerbose         = "verbose"
	FlagWatch           = "watch"
	FlagSchedule        = "schedule"
	FlagMetricsTextfile = "metrics-textfile"

	// Logging
	FlagLogLevel  = "log-level"
	FlagLogFormat = "log-format"

	// Server
	FlagAddr = "addr"
)
