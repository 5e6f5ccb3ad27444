package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"licensemedic/internal/audit"
	"licensemedic/internal/baseline"
	"licensemedic/internal/flags"
)

var baselineListFormat string

var baselineCmd = &cobra.Command{
	Use:   "baseline",
	Short: "Inspect and update a violation baseline",
	Long: `A baseline records accepted violations by identity hash. Audits run with
--baseline report accepted violations as SUPPRESSED instead of OPEN.

Stores ending in .db, .sqlite or .sqlite3 are SQLite databases; anything else is
a YAML document.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var baselineListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accepted violations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Baseline.Path == "" {
			return fmt.Errorf("--%s is required", flags.FlagBaseline)
		}
		store, err := baseline.Open(cfg.Baseline.Path)
		if err != nil {
			return err
		}
		defer store.Close()

		entries, err := store.List(context.Background())
		if err != nil {
			return err
		}
		return printBaseline(cmd.OutOrStdout(), entries, baselineListFormat)
	},
}

func printBaseline(w io.Writer, entries []baseline.Entry, format string) error {
	switch format {
	case "json":
		if entries == nil {
			entries = []baseline.Entry{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case "", "text":
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "HASH\tRULE\tARTIFACT\tRUN\tACCEPTED")
		for _, e := range entries {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.Hash, e.RuleID, e.Artifact, e.RunID, e.AcceptedAt.Format("2006-01-02"))
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unsupported --format: %s (must be one of: text, json)", format)
	}
}

var baselineAcceptCmd = &cobra.Command{
	Use:   "accept",
	Short: "Audit and accept every current violation",
	Long: `Run an audit and accept every open violation into the baseline. Nothing is
printed except the number of newly accepted violations.

Examples:
  licensemedic baseline accept --baseline baseline.yaml --artifacts sbom.yaml
  licensemedic baseline accept --baseline baseline.db --org my-org --rules strong-copyleft
`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		applyImplicitDefaults(cmd, cfg)
		cfg.Baseline.Update = true
		cfg.Output.NoConsole = true
		if cfg.Baseline.Path == "" {
			fatalf("--%s is required", flags.FlagBaseline)
		}
		if err := cfg.Validate(); err != nil {
			fatalf("%v", err)
		}
		logger, err := newLogger()
		if err != nil {
			fatalf("%v", err)
		}

		ctx, stop := signalContext()
		defer stop()

		before, err := countBaseline(ctx, cfg.Baseline.Path)
		if err != nil {
			fatalf("%v", err)
		}
		out := audit.NewRunner(cfg, audit.WithLogger(logger)).Run(ctx)
		if out.Err != nil {
			fatalf("%v", out.Err)
		}
		after, err := countBaseline(ctx, cfg.Baseline.Path)
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Accepted %d new violations (%d total) into %s\n", after-before, after, cfg.Baseline.Path)
		if out.ExitCode == audit.ExitPartial {
			os.Exit(audit.ExitPartial)
		}
	},
}

func countBaseline(ctx context.Context, path string) (int, error) {
	store, err := baseline.Open(path)
	if err != nil {
		return 0, err
	}
	defer store.Close()
	entries, err := store.List(ctx)
	return len(entries), err
}

func init() {
	rootCmd.AddCommand(baselineCmd)
	baselineCmd.PersistentFlags().StringVar(&cfg.Baseline.Path, flags.FlagBaseline, "", "Baseline store (.yaml, or .db/.sqlite/.sqlite3 for SQLite)")

	baselineCmd.AddCommand(baselineListCmd)
	baselineListCmd.Flags().StringVar(&baselineListFormat, "format", "text", "Output format: text|json")

	baselineCmd.AddCommand(baselineAcceptCmd)
	addInputFlags(baselineAcceptCmd)
	baselineAcceptCmd.Flags().StringSliceVar(&cfg.Inputs.Artifacts, flags.FlagArtifacts, nil, "Artifact documents to audit, YAML or JSON (repeatable; comma-separated accepted)")
	addTargetingFlags(baselineAcceptCmd)
}
