// Package baseline records accepted violations by hash so later runs can
// report them as suppressed instead of open.
package baseline

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"licensemedic/internal/violation"
)

// Entry is one accepted violation.
type Entry struct {
	Hash       string    `json:"hash" yaml:"hash"`
	RuleID     string    `json:"rule_id" yaml:"rule_id"`
	Artifact   string    `json:"artifact,omitempty" yaml:"artifact,omitempty"`
	Message    string    `json:"message,omitempty" yaml:"message,omitempty"`
	RunID      string    `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	AcceptedAt time.Time `json:"accepted_at" yaml:"accepted_at"`
}

// Store persists baseline entries. Accept never replaces an entry that
// already exists for the same hash.
type Store interface {
	List(ctx context.Context) ([]Entry, error)
	Accept(ctx context.Context, entries []Entry) (added int, err error)
	Close() error
}

// Open picks a store by file extension: .db, .sqlite and .sqlite3 use SQLite,
// anything else is a YAML file.
func Open(location string) (Store, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, fmt.Errorf("baseline location is empty")
	}
	switch strings.ToLower(filepath.Ext(location)) {
	case ".db", ".sqlite", ".sqlite3":
		return NewSQLiteStore(location)
	default:
		return NewFileStore(location), nil
	}
}

// Set is an in-memory index of baseline entries by hash.
type Set map[string]Entry

func NewSet(entries []Entry) Set {
	s := make(Set, len(entries))
	for _, e := range entries {
		if _, ok := s[e.Hash]; !ok {
			s[e.Hash] = e
		}
	}
	return s
}

func (s Set) Contains(hash string) bool {
	_, ok := s[hash]
	return ok
}

// Split separates violations into those not yet accepted and those suppressed
// by the baseline. Input order is preserved in both slices.
func (s Set) Split(vs []violation.PolicyViolation) (open, suppressed []violation.PolicyViolation) {
	for _, v := range vs {
		if s.Contains(v.Hash) {
			suppressed = append(suppressed, v)
			continue
		}
		open = append(open, v)
	}
	return open, suppressed
}

// EntriesFor converts violations into baseline entries stamped with runID and at.
func EntriesFor(vs []violation.PolicyViolation, runID string, at time.Time) []Entry {
	out := make([]Entry, 0, len(vs))
	for _, v := range vs {
		out = append(out, Entry{
			Hash:       v.Hash,
			RuleID:     v.RuleID,
			Artifact:   v.Artifact,
			Message:    v.Message,
			RunID:      runID,
			AcceptedAt: at.UTC(),
		})
	}
	return out
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].RuleID != entries[j].RuleID {
			return entries[i].RuleID < entries[j].RuleID
		}
		return entries[i].Hash < entries[j].Hash
	})
}

func validateEntry(e Entry) error {
	if _, err := violation.ParseDigest(e.Hash); err != nil {
		return fmt.Errorf("baseline entry for rule %q: %w", e.RuleID, err)
	}
	if e.RuleID == "" {
		return fmt.Errorf("baseline entry %s: rule id is required", e.Hash)
	}
	return nil
}
