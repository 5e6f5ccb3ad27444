package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"licensemedic/internal/artifact"
	"licensemedic/internal/audit"
	"licensemedic/internal/collector"
	"licensemedic/internal/flags"
)

var collectOut string

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Collect artifacts into an artifact document",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var collectGitHubCmd = &cobra.Command{
	Use:   "github",
	Short: "Collect GitHub repositories as artifacts",
	Long: `Collect GitHub repositories and write them as an artifact document.

Each repository becomes one artifact: name OWNER/REPO, version the default
branch, source "github", its detected SPDX license, and metadata for archived,
fork, visibility, topics and url. The document can be edited and audited later
with "licensemedic audit --artifacts".

Exit codes:
	0 = every repository collected
	2 = some license files could not be read (document still written)
	3 = fatal error

Examples:
  licensemedic collect github --org my-org --out artifacts.yaml
  licensemedic collect github --repos acme/api,acme/web --copyrights
`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		applyImplicitDefaults(cmd, cfg)
		if err := cfg.ValidateTargeting(); err != nil {
			fatalf("%v", err)
		}
		if !cfg.HasGitHubTarget() {
			fatalf("at least one of --%s, --%s, or --%s must be provided", flags.FlagOrg, flags.FlagUser, flags.FlagRepos)
		}
		logger, err := newLogger()
		if err != nil {
			fatalf("%v", err)
		}

		ctx, stop := signalContext()
		defer stop()

		client, err := audit.NewGitHubClient(ctx, cfg, logger)
		if err != nil {
			fatalf("%v", err)
		}
		res, err := collector.NewGitHub(client, cfg.Targeting, cfg.Runtime.Concurrency, logger).Collect(ctx)
		if err != nil {
			fatalf("%v", err)
		}

		var w io.Writer = cmd.OutOrStdout()
		if collectOut != "" {
			f, err := os.Create(collectOut)
			if err != nil {
				fatalf("create %s: %v", collectOut, err)
			}
			defer f.Close()
			w = f
		}
		if err := artifact.Encode(w, res.Artifacts); err != nil {
			fatalf("%v", err)
		}

		for _, p := range res.Partial {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", p)
		}
		if len(res.Partial) > 0 {
			os.Exit(audit.ExitPartial)
		}
	},
}

func init() {
	rootCmd.AddCommand(collectCmd)
	collectCmd.AddCommand(collectGitHubCmd)
	addTargetingFlags(collectGitHubCmd)
	collectGitHubCmd.Flags().StringVar(&collectOut, flags.FlagOut, "", "Write the artifact document to this path (default: stdout)")
}
