package cli

import (
	"context"

	"github.com/spf13/cobra"

	"licensemedic/internal/audit"
	"licensemedic/internal/baseline"
	"licensemedic/internal/engine"
	"licensemedic/internal/flags"
	"licensemedic/internal/metrics"
	"licensemedic/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the evaluation API over HTTP",
	Long: `Load a ruleset once and serve it over HTTP.

Endpoints:
  POST /v1/evaluate    body: artifact document (YAML or JSON);
                       response: {violations, suppressed, warnings, stats}
  GET  /v1/rules       the loaded rules
  GET  /v1/rules/{id}  one rule
  GET  /healthz        liveness
  GET  /metrics        Prometheus metrics

With --baseline, violations accepted in the baseline are returned under
"suppressed". The baseline is read once at startup.

Examples:
  licensemedic serve --ruleset rules.yaml --addr :8080
`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if err := cfg.ValidateServe(); err != nil {
			fatalf("%v", err)
		}
		logger, err := newLogger()
		if err != nil {
			fatalf("%v", err)
		}

		rs, err := audit.LoadRuleSet(cfg.Inputs)
		if err != nil {
			fatalf("%v", err)
		}
		mc := metrics.NewCollector(nil)
		eng, err := engine.New(rs, engine.WithWorkers(cfg.Runtime.Workers), engine.WithLogger(logger), engine.WithRecorder(mc))
		if err != nil {
			fatalf("%v", err)
		}

		opts := []server.Option{server.WithLogger(logger), server.WithMetrics(mc)}
		if cfg.Baseline.Path != "" {
			set, err := loadBaselineSet(context.Background(), cfg.Baseline.Path)
			if err != nil {
				fatalf("%v", err)
			}
			opts = append(opts, server.WithBaseline(set))
		}

		ctx, stop := signalContext()
		defer stop()
		if err := server.New(eng, opts...).Run(ctx, cfg.Server.Addr); err != nil {
			fatalf("%v", err)
		}
	},
}

func loadBaselineSet(ctx context.Context, path string) (baseline.Set, error) {
	store, err := baseline.Open(path)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	entries, err := store.List(ctx)
	if err != nil {
		return nil, err
	}
	return baseline.NewSet(entries), nil
}

func init() {
	rootCmd.AddCommand(serveCmd)
	addInputFlags(serveCmd)
	serveCmd.Flags().StringVar(&cfg.Baseline.Path, flags.FlagBaseline, "", "Baseline store whose accepted violations are reported as suppressed")
	serveCmd.Flags().StringVar(&cfg.Server.Addr, flags.FlagAddr, cfg.Server.Addr, "Listen address")
}
