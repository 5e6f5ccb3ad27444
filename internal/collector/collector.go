// Package collector gathers the artifacts an audit evaluates, either from
// artifact documents on disk or from repositories on GitHub.
package collector

import (
	"context"
	"fmt"

	"licensemedic/internal/artifact"
)

// Collection is the outcome of one collection pass.
type Collection struct {
	Artifacts []artifact.Artifact

	// Partial holds per-item failures that did not abort the pass. A
	// non-empty Partial means Artifacts is incomplete.
	Partial []error
}

// Collector produces artifacts. A returned error aborts the run; recoverable
// per-item failures are reported through Collection.Partial instead.
type Collector interface {
	Collect(ctx context.Context) (Collection, error)
}

// FileCollector reads artifact documents (YAML or JSON).
type FileCollector struct {
	paths []string
}

func NewFiles(paths ...string) *FileCollector {
	return &FileCollector{paths: append([]string(nil), paths...)}
}

func (c *FileCollector) Collect(ctx context.Context) (Collection, error) {
	var out Collection
	for _, p := range c.paths {
		if err := ctx.Err(); err != nil {
			return Collection{}, err
		}
		arts, err := artifact.LoadFile(p)
		if err != nil {
			return Collection{}, err
		}
		out.Artifacts = append(out.Artifacts, arts...)
	}
	return out, nil
}

// Multi runs collectors in order and concatenates their results. When two
// collectors yield the same artifact id, the first one wins.
type Multi []Collector

func (m Multi) Collect(ctx context.Context) (Collection, error) {
	var out Collection
	seen := make(map[string]struct{})
	for i, c := range m {
		res, err := c.Collect(ctx)
		if err != nil {
			return Collection{}, fmt.Errorf("collector %d: %w", i, err)
		}
		for _, a := range res.Artifacts {
			if _, ok := seen[a.ID()]; ok {
				continue
			}
			seen[a.ID()] = struct{}{}
			out.Artifacts = append(out.Artifacts, a)
		}
		out.Partial = append(out.Partial, res.Partial...)
	}
	return out, nil
}
