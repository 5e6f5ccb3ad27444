package engine

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"

	"licensemedic/internal/artifact"
	"licensemedic/internal/rules"
	"licensemedic/internal/violation"
)

// Recorder observes finished evaluations. metrics.Collector implements it.
type Recorder interface {
	ObserveEvaluation(res Result, elapsed time.Duration)
}

// Stats summarizes one evaluation.
type Stats struct {
	Artifacts int `json:"artifacts"`
	Rules     int `json:"rules"`
	// Pairs is the number of (rule, artifact) combinations evaluated.
	Pairs int `json:"pairs"`
	// Allowed counts pairs skipped because the artifact is on the rule's allow list.
	Allowed      int `json:"allowed"`
	Candidates   int `json:"candidates"`
	Deduplicated int `json:"deduplicated"`
	Violations   int `json:"violations"`
	Warnings     int `json:"warnings"`
}

// Result is the outcome of EvaluateDetailed.
type Result struct {
	// Violations are unique by hash and sorted by (rule id, hash).
	Violations []violation.PolicyViolation `json:"violations"`
	Warnings   []EvaluationWarning         `json:"warnings,omitempty"`
	Stats      Stats                       `json:"stats"`
}

type Option func(*Engine)

// WithWorkers sets how many partitions of the artifact list are evaluated in parallel.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		e.workers = n
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		e.recorder = r
	}
}

// Engine evaluates every rule of a RuleSet against collections of artifacts.
// It holds no state between calls and is safe for concurrent use.
type Engine struct {
	ruleset  *rules.RuleSet
	rules    []rules.Rule
	workers  int
	logger   *slog.Logger
	recorder Recorder

	// evaluate is rules.Evaluate; tests replace it to inject failures.
	evaluate func(rules.Condition, artifact.Artifact) (rules.Match, error)
}

func New(rs *rules.RuleSet, opts ...Option) (*Engine, error) {
	if rs == nil {
		return nil, errors.New("ruleset is nil")
	}
	e := &Engine{
		ruleset:  rs,
		rules:    rs.Rules(),
		workers:  runtime.GOMAXPROCS(0),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		evaluate: rules.Evaluate,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.workers <= 0 {
		return nil, fmt.Errorf("workers must be >= 1, got %d", e.workers)
	}
	e.logger = e.logger.With("component", "engine")
	return e, nil
}

func (e *Engine) RuleSet() *rules.RuleSet {
	return e.ruleset
}

// Evaluate returns the deduplicated violations of every rule across artifacts.
// Pairs that cannot be judged are logged and left out.
func (e *Engine) Evaluate(artifacts []artifact.Artifact) []violation.PolicyViolation {
	return e.EvaluateDetailed(artifacts).Violations
}

// EvaluateDetailed is Evaluate with the warnings and counters of the run.
func (e *Engine) EvaluateDetailed(artifacts []artifact.Artifact) Result {
	start := time.Now()

	parts := partition(len(artifacts), e.workers)
	partials := make([]partial, len(parts))

	// Workers never fail: pair-level errors and panics become warnings in
	// their partial.
	var wg sync.WaitGroup
	for i, p := range parts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			partials[i] = e.evaluateRange(artifacts[p.lo:p.hi])
		}()
	}
	wg.Wait()

	res := merge(partials)
	res.Stats.Artifacts = len(artifacts)
	res.Stats.Rules = len(e.rules)

	for _, w := range res.Warnings {
		e.logger.Warn("rule could not be evaluated",
			"rule_id", w.RuleID,
			"artifact", w.Artifact,
			"stage", w.Stage,
			"error", w.Detail,
		)
	}

	elapsed := time.Since(start)
	e.logger.Debug("evaluation finished",
		"artifacts", res.Stats.Artifacts,
		"rules", res.Stats.Rules,
		"violations", res.Stats.Violations,
		"deduplicated", res.Stats.Deduplicated,
		"warnings", res.Stats.Warnings,
		"duration", elapsed,
	)
	if e.recorder != nil {
		e.recorder.ObserveEvaluation(res, elapsed)
	}
	return res
}

// partial is the private output of one worker.
type partial struct {
	candidates map[string]violation.PolicyViolation
	warnings   []EvaluationWarning
	stats      Stats
}

func (e *Engine) evaluateRange(artifacts []artifact.Artifact) partial {
	p := partial{candidates: make(map[string]violation.PolicyViolation)}
	for _, a := range artifacts {
		for _, r := range e.rules {
			if ok, _ := r.Allow.IsAllowed(a); ok {
				p.stats.Allowed++
				continue
			}
			p.stats.Pairs++

			v, fired, warn := e.evaluatePair(r, a)
			if warn != nil {
				p.warnings = append(p.warnings, *warn)
				continue
			}
			if !fired {
				continue
			}
			p.stats.Candidates++
			if cur, ok := p.candidates[v.Hash]; !ok || preferred(v, cur) {
				p.candidates[v.Hash] = v
			}
		}
	}
	return p
}

// evaluatePair judges one (rule, artifact) combination. A panic anywhere in it
// is turned into a warning.
func (e *Engine) evaluatePair(r rules.Rule, a artifact.Artifact) (v violation.PolicyViolation, fired bool, warn *EvaluationWarning) {
	defer func() {
		if rec := recover(); rec != nil {
			w := newWarning(r.ID, a.ID(), StageCondition, fmt.Errorf("%w: %v", ErrRulePanic, rec))
			v, fired, warn = violation.PolicyViolation{}, false, &w
		}
	}()

	m, err := e.evaluate(r.Condition, a)
	if err != nil {
		w := newWarning(r.ID, a.ID(), StageCondition, err)
		return v, false, &w
	}
	if !m.Violates {
		return v, false, nil
	}

	values := append([]string(nil), m.Values...)
	sort.Strings(values)

	msg, err := r.Render(rules.NewTemplateData(r, a, values))
	if err != nil {
		w := newWarning(r.ID, a.ID(), StageMessage, err)
		return v, false, &w
	}

	digest, err := violation.Hash(r.ID, r.IdentityValues(a, m.IdentityKeys()))
	if err != nil {
		w := newWarning(r.ID, a.ID(), StageHash, err)
		return v, false, &w
	}

	return violation.PolicyViolation{
		RuleID:   r.ID,
		Title:    r.Title,
		Severity: r.Severity,
		Message:  msg,
		Artifact: a.ID(),
		Values:   values,
		Hash:     digest.String(),
	}, true, nil
}

// preferred reports whether a should replace b as the representative of their
// shared hash. The smallest (artifact, message) wins so input order never matters.
func preferred(a, b violation.PolicyViolation) bool {
	if a.Artifact != b.Artifact {
		return a.Artifact < b.Artifact
	}
	return a.Message < b.Message
}

func merge(partials []partial) Result {
	var res Result
	unique := make(map[string]violation.PolicyViolation)
	for _, p := range partials {
		for h, v := range p.candidates {
			if cur, ok := unique[h]; !ok || preferred(v, cur) {
				unique[h] = v
			}
		}
		res.Warnings = append(res.Warnings, p.warnings...)
		res.Stats.Pairs += p.stats.Pairs
		res.Stats.Allowed += p.stats.Allowed
		res.Stats.Candidates += p.stats.Candidates
	}

	res.Violations = make([]violation.PolicyViolation, 0, len(unique))
	for _, v := range unique {
		res.Violations = append(res.Violations, v)
	}
	sort.Slice(res.Violations, func(i, j int) bool {
		a, b := res.Violations[i], res.Violations[j]
		if a.RuleID != b.RuleID {
			return a.RuleID < b.RuleID
		}
		return a.Hash < b.Hash
	})

	sort.SliceStable(res.Warnings, func(i, j int) bool {
		a, b := res.Warnings[i], res.Warnings[j]
		if a.RuleID != b.RuleID {
			return a.RuleID < b.RuleID
		}
		if a.Artifact != b.Artifact {
			return a.Artifact < b.Artifact
		}
		return a.Detail < b.Detail
	})

	res.Stats.Violations = len(res.Violations)
	res.Stats.Deduplicated = res.Stats.Candidates - res.Stats.Violations
	res.Stats.Warnings = len(res.Warnings)
	return res
}

type span struct{ lo, hi int }

// partition splits n items into at most workers contiguous, non-empty spans.
func partition(n, workers int) []span {
	if n == 0 {
		return nil
	}
	if workers > n {
		workers = n
	}
	spans := make([]span, 0, workers)
	size, rem := n/workers, n%workers
	lo := 0
	for i := 0; i < workers; i++ {
		hi := lo + size
		if i < rem {
			hi++
		}
		spans = append(spans, span{lo: lo, hi: hi})
		lo = hi
	}
	return spans
}
