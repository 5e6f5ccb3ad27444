package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"licensemedic/internal/config"
	"licensemedic/internal/flags"
	"licensemedic/internal/logging"
)

var (
	buildVersion = "dev"
	buildCommit  = "unknown"
	buildDate    = "unknown"
)

var cfg = config.New()

var rootCmd = &cobra.Command{
	Use:   "licensemedic",
	Short: "Audit software components against license compliance rules",
	Long: `licensemedic audits software components ("artifacts") against a declarative
set of license compliance rules and reports deduplicated policy violations with
stable identity hashes.

Artifacts come from artifact documents (YAML or JSON) and/or GitHub repositories.
Rules come from a ruleset document or the built-in default ruleset.

Examples:
	# Show available commands and global flags
	licensemedic --help

	# Audit an artifact document against the built-in rules
	licensemedic audit --artifacts sbom.yaml

	# Audit every repository of an organization
	licensemedic audit --org my-org

	# List rules
	licensemedic rules list

	# Serve the evaluation API
	licensemedic serve --ruleset rules.yaml

	# Print build info
	licensemedic version

Output:
	By default, commands write human-readable output to stdout and logs to stderr.
	Some commands support structured output via emitter flags (see each command's --help).`,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&cfg.Runtime.Verbose, flags.FlagVerbose, false, "Enable verbose logging (forces debug level and logs every GitHub API call)")
	rootCmd.PersistentFlags().StringVar(&cfg.Logging.Level, flags.FlagLogLevel, cfg.Logging.Level, "Log level: debug|info|warn|error")
	rootCmd.PersistentFlags().StringVar(&cfg.Logging.Format, flags.FlagLogFormat, cfg.Logging.Format, "Log format: text|json")
}

func SetBuildInfo(version, commit, date string) {
	if version != "" {
		buildVersion = version
	}
	if commit != "" {
		buildCommit = commit
	}
	if date != "" {
		buildDate = date
	}

	rootCmd.Version = fmt.Sprintf("%s (%s) %s", buildVersion, buildCommit, buildDate)
	rootCmd.SetVersionTemplate("{{.Version}}\n")
}

func BuildInfo() (version, commit, date string) {
	return buildVersion, buildCommit, buildDate
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newLogger builds the stderr logger from the validated logging config.
func newLogger() (*slog.Logger, error) {
	return logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Writer: os.Stderr})
}

// fatalf reports a fatal error and exits with the fatal exit code.
func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(3)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
