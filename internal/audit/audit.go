// Package audit runs one complete license audit: load the ruleset, collect
// artifacts, evaluate, apply the baseline, write the outputs and decide the
// exit code.
package audit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"licensemedic/internal/baseline"
	"licensemedic/internal/collector"
	"licensemedic/internal/config"
	"licensemedic/internal/engine"
	gh "licensemedic/internal/github"
	"licensemedic/internal/metrics"
	"licensemedic/internal/output"
	"licensemedic/internal/rules"
	"licensemedic/internal/violation"
)

// Exit codes of an audit run.
const (
	ExitClean   = 0
	ExitFailed  = 1
	ExitPartial = 2
	ExitFatal   = 3
)

func exitCodeForRun(fatal, partial, failed bool) int {
	if fatal {
		return ExitFatal
	}
	if partial {
		return ExitPartial
	}
	if failed {
		return ExitFailed
	}
	return ExitClean
}

// Outcome summarizes a finished run.
type Outcome struct {
	RunID    string
	ExitCode int
	Summary  output.Summary
	// Err is the fatal error when ExitCode is ExitFatal.
	Err error
}

type Runner struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Collector
	stdout  io.Writer
	github  *gh.Client
	now     func() time.Time
	runID   func() string
}

type Option func(*Runner)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics records evaluations and run outcomes in c.
func WithMetrics(c *metrics.Collector) Option {
	return func(r *Runner) { r.metrics = c }
}

// WithStdout redirects console and --emit output.
func WithStdout(w io.Writer) Option {
	return func(r *Runner) {
		if w != nil {
			r.stdout = w
		}
	}
}

// WithGitHubClient uses client instead of resolving a token and building one.
func WithGitHubClient(client *gh.Client) Option {
	return func(r *Runner) { r.github = client }
}

func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRunner returns a runner for cfg, which must already be validated.
func NewRunner(cfg *config.Config, opts ...Option) *Runner {
	r := &Runner{
		cfg:    cfg,
		logger: slog.New(slog.DiscardHandler),
		stdout: os.Stdout,
		now:    time.Now,
		runID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "audit")
	return r
}

// Run performs one audit bounded by the configured timeout.
func (r *Runner) Run(ctx context.Context) Outcome {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Runtime.Timeout)
	defer cancel()

	out := r.run(ctx)
	if out.Err != nil {
		r.logger.Error("audit failed", "run_id", out.RunID, "err", out.Err)
	}
	if r.metrics != nil {
		r.metrics.ObserveAudit(out.ExitCode, r.now())
		if path := r.cfg.Runtime.MetricsTextfile; path != "" {
			if err := r.metrics.WriteTextfile(path); err != nil {
				r.logger.Warn("metrics textfile not written", "path", path, "err", err)
			}
		}
	}
	return out
}

func fatal(runID string, err error) Outcome {
	return Outcome{RunID: runID, ExitCode: ExitFatal, Err: err}
}

func (r *Runner) run(ctx context.Context) Outcome {
	runID := r.runID()

	rs, err := LoadRuleSet(r.cfg.Inputs)
	if err != nil {
		return fatal(runID, err)
	}
	r.logger.Debug("ruleset loaded", "ruleset", rs.Provenance().String(), "rules", rs.Len())

	col, err := r.collector(ctx)
	if err != nil {
		return fatal(runID, err)
	}
	collection, err := col.Collect(ctx)
	if err != nil {
		return fatal(runID, fmt.Errorf("collect artifacts: %w", err))
	}
	r.logger.Info("artifacts collected", "artifacts", len(collection.Artifacts), "partial", len(collection.Partial))

	engOpts := []engine.Option{engine.WithWorkers(r.cfg.Runtime.Workers), engine.WithLogger(r.logger)}
	if r.metrics != nil {
		engOpts = append(engOpts, engine.WithRecorder(r.metrics))
	}
	eng, err := engine.New(rs, engOpts...)
	if err != nil {
		return fatal(runID, err)
	}
	res := eng.EvaluateDetailed(collection.Artifacts)

	accepted, err := r.applyBaseline(ctx, runID, res.Violations)
	if err != nil {
		return fatal(runID, err)
	}

	outMgr, err := setupOutputManager(r.cfg, r.stdout)
	if err != nil {
		return fatal(runID, fmt.Errorf("create output sinks: %w", err))
	}

	ruleset := rs.Provenance().String()
	var writeErrs []error
	write := func(v any) {
		if err := outMgr.Write(v); err != nil {
			writeErrs = append(writeErrs, err)
		}
	}

	write(output.Event{Type: output.EventRunStarted, RunID: runID, Ruleset: ruleset, Artifacts: len(collection.Artifacts), Rules: rs.Len()})
	for _, p := range collection.Partial {
		write(output.PartialEvent(p))
	}

	threshold := violation.Severity(r.cfg.Output.FailOn)
	sum := output.Summary{
		Artifacts:    res.Stats.Artifacts,
		Rules:        res.Stats.Rules,
		Warnings:     len(res.Warnings),
		Deduplicated: res.Stats.Deduplicated,
		Partial:      len(collection.Partial),
	}
	failed := false
	for _, v := range res.Violations {
		f := output.Finding{PolicyViolation: v, Status: output.StatusOpen}
		if accepted.Contains(v.Hash) {
			f.Status = output.StatusSuppressed
			sum.Suppressed++
		} else {
			sum.Open++
			if v.Severity.AtLeast(threshold) {
				failed = true
			}
		}
		write(output.Event{Type: output.EventViolation, Finding: &f})
	}
	for _, w := range res.Warnings {
		write(output.WarningEvent(w))
	}

	sum.ExitCode = exitCodeForRun(false, len(res.Warnings) > 0 || len(collection.Partial) > 0, failed)
	write(output.Event{Type: output.EventRunFinished, RunID: runID, Summary: &sum})

	if err := outMgr.Close(); err != nil {
		writeErrs = append(writeErrs, err)
	}
	if len(writeErrs) > 0 {
		return Outcome{RunID: runID, ExitCode: ExitFatal, Summary: sum, Err: errors.Join(writeErrs...)}
	}

	r.logger.Info("audit finished",
		"run_id", runID,
		"open", sum.Open,
		"suppressed", sum.Suppressed,
		"warnings", sum.Warnings,
		"exit_code", sum.ExitCode,
	)
	return Outcome{RunID: runID, ExitCode: sum.ExitCode, Summary: sum}
}

// LoadRuleSet loads the configured ruleset and applies the rule selection and
// per-rule options.
func LoadRuleSet(in config.Inputs) (*rules.RuleSet, error) {
	rs, err := rules.Configure(in.Ruleset)
	if err != nil {
		return nil, err
	}
	if rs, err = rs.Select(in.Rules); err != nil {
		return nil, fmt.Errorf("select rules: %w", err)
	}
	if len(in.Set) > 0 {
		assignments, err := config.ParseRuleOptionAssignments(in.Set)
		if err != nil {
			return nil, err
		}
		if rs, err = rs.WithOptions(assignments); err != nil {
			return nil, fmt.Errorf("configure rules: %w", err)
		}
	}
	return rs, nil
}

func (r *Runner) collector(ctx context.Context) (collector.Collector, error) {
	var m collector.Multi
	if len(r.cfg.Inputs.Artifacts) > 0 {
		m = append(m, collector.NewFiles(r.cfg.Inputs.Artifacts...))
	}
	if r.cfg.HasGitHubTarget() {
		client, err := r.githubClient(ctx)
		if err != nil {
			return nil, err
		}
		m = append(m, collector.NewGitHub(client, r.cfg.Targeting, r.cfg.Runtime.Concurrency, r.logger))
	}
	if len(m) == 0 {
		return nil, errors.New("no artifact source configured")
	}
	return m, nil
}

func (r *Runner) githubClient(ctx context.Context) (*gh.Client, error) {
	if r.github != nil {
		return r.github, nil
	}
	return NewGitHubClient(ctx, r.cfg, r.logger)
}

// NewGitHubClient resolves a token for the configured GitHub host and builds a
// client. With --verbose every API round trip is logged.
func NewGitHubClient(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*gh.Client, error) {
	var opts []gh.Option
	if cfg.Targeting.GitHubURL != "" {
		opts = append(opts, gh.WithBaseURL(cfg.Targeting.GitHubURL))
	}
	if cfg.Runtime.Verbose && logger != nil {
		opts = append(opts, gh.WithLogger(logger))
	}

	// Token lookup needs the host, which the client derives from its base URL.
	hostClient, err := gh.NewClient(ctx, "", opts...)
	if err != nil {
		return nil, err
	}
	token, source, err := gh.ResolveAuthToken(ctx, "", hostClient.Host())
	if err != nil {
		return nil, fmt.Errorf("failed to resolve GitHub auth token: %w", err)
	}
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("GitHub auth token is required (set GITHUB_TOKEN or run 'gh auth login')")
	}
	if logger != nil {
		logger.Debug("github token resolved", "source", source)
	}
	return gh.NewClient(ctx, token, opts...)
}

// applyBaseline returns the set of accepted hashes for this run. With
// --update-baseline, every open violation is accepted first.
func (r *Runner) applyBaseline(ctx context.Context, runID string, vs []violation.PolicyViolation) (baseline.Set, error) {
	if r.cfg.Baseline.Path == "" {
		return baseline.Set{}, nil
	}
	store, err := baseline.Open(r.cfg.Baseline.Path)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	entries, err := store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("read baseline: %w", err)
	}
	set := baseline.NewSet(entries)
	if !r.cfg.Baseline.Update {
		return set, nil
	}

	open, _ := set.Split(vs)
	if len(open) == 0 {
		return set, nil
	}
	newEntries := baseline.EntriesFor(open, runID, r.now())
	added, err := store.Accept(ctx, newEntries)
	if err != nil {
		return nil, fmt.Errorf("update baseline: %w", err)
	}
	r.logger.Info("baseline updated", "path", r.cfg.Baseline.Path, "added", added)
	for _, e := range newEntries {
		if _, ok := set[e.Hash]; !ok {
			set[e.Hash] = e
		}
	}
	return set, nil
}

// WatchPaths lists the local files whose change should trigger a new run:
// the ruleset when it is a file, and every artifact document.
func WatchPaths(cfg *config.Config) []string {
	var paths []string
	if loc := cfg.Inputs.Ruleset; loc != "" && !strings.HasPrefix(loc, rules.BuiltinPrefix) {
		paths = append(paths, loc)
	}
	return append(paths, cfg.Inputs.Artifacts...)
}
