package rules

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"licensemedic/internal/violation"
)

// Provenance describes where a RuleSet came from. It is informational only.
type Provenance struct {
	Name    string `json:"name,omitempty" yaml:"name,omitempty"`
	Version string `json:"version,omitempty" yaml:"version,omitempty"`
	Source  string `json:"source,omitempty" yaml:"source,omitempty"`
}

func (p Provenance) String() string {
	name := p.Name
	if name == "" {
		name = "unnamed"
	}
	if p.Version != "" {
		name += "@" + p.Version
	}
	if p.Source != "" {
		name += " (" + p.Source + ")"
	}
	return name
}

// RuleSet is an ordered, validated collection of rules with unique ids.
// It is never mutated after construction and is safe for concurrent use.
type RuleSet struct {
	provenance Provenance
	rules      []Rule
	index      map[string]int
}

// NewRuleSet validates rules and builds a RuleSet from them, in the given order.
// All problems are reported together; no partial RuleSet is returned.
func NewRuleSet(prov Provenance, rules []Rule) (*RuleSet, error) {
	if len(rules) == 0 {
		return nil, &ConfigurationError{Source: prov.Source, Field: "rules", Err: errors.New("ruleset defines no rules")}
	}

	rs := &RuleSet{
		provenance: prov,
		rules:      make([]Rule, 0, len(rules)),
		index:      make(map[string]int, len(rules)),
	}

	var errs []error
	fail := func(ruleID, field string, err error) {
		errs = append(errs, &ConfigurationError{Source: prov.Source, RuleID: ruleID, Field: field, Err: err})
	}

	for i, r := range rules {
		r = r.clone()
		r.ID = strings.TrimSpace(r.ID)
		if r.ID == "" {
			fail(fmt.Sprintf("#%d", i+1), "id", errors.New("rule id is required"))
			continue
		}
		if _, dup := rs.index[r.ID]; dup {
			fail(r.ID, "id", errors.New("duplicate rule id"))
			continue
		}

		ok := true
		if r.Severity == "" {
			r.Severity = violation.SeverityError
		} else if sev, err := violation.ParseSeverity(string(r.Severity)); err != nil {
			fail(r.ID, "severity", err)
			ok = false
		} else {
			r.Severity = sev
		}

		if mode, err := ParseDedupMode(string(r.Dedup)); err != nil {
			fail(r.ID, "dedup", err)
			ok = false
		} else {
			r.Dedup = mode
		}

		if r.Condition == nil {
			fail(r.ID, "condition", errors.New("condition is required"))
			ok = false
		} else if err := r.Condition.validate(); err != nil {
			fail(r.ID, "condition", fmt.Errorf("%s: %w", r.Condition.Kind(), err))
			ok = false
		}

		if err := r.compile(); err != nil {
			fail(r.ID, "message", err)
			ok = false
		}

		// Index even invalid rules so later duplicates are still reported.
		rs.index[r.ID] = len(rs.rules)
		if ok {
			rs.rules = append(rs.rules, r)
		} else {
			rs.rules = append(rs.rules, Rule{ID: r.ID})
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return rs, nil
}

func (rs *RuleSet) Provenance() Provenance {
	return rs.provenance
}

func (rs *RuleSet) Len() int {
	return len(rs.rules)
}

// Rules returns the rules in document order.
func (rs *RuleSet) Rules() []Rule {
	return append([]Rule(nil), rs.rules...)
}

// Rule looks up a rule by id.
func (rs *RuleSet) Rule(id string) (Rule, bool) {
	i, ok := rs.index[id]
	if !ok {
		return Rule{}, false
	}
	return rs.rules[i], true
}

// IDs returns the rule ids sorted lexically.
func (rs *RuleSet) IDs() []string {
	ids := make([]string, 0, len(rs.rules))
	for _, r := range rs.rules {
		ids = append(ids, r.ID)
	}
	sort.Strings(ids)
	return ids
}

// Select returns a RuleSet restricted to the comma-separated rule ids in
// selector, preserving document order. An empty selector selects every rule.
func (rs *RuleSet) Select(selector string) (*RuleSet, error) {
	if strings.TrimSpace(selector) == "" {
		return rs, nil
	}
	want := make(map[string]bool)
	for _, id := range strings.Split(selector, ",") {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := rs.index[id]; !ok {
			return nil, fmt.Errorf("rule not found: %s (available: %s)", id, strings.Join(rs.IDs(), ", "))
		}
		want[id] = true
	}
	var selected []Rule
	for _, r := range rs.rules {
		if want[r.ID] {
			selected = append(selected, r)
		}
	}
	return NewRuleSet(rs.provenance, selected)
}

// WithOptions returns a RuleSet whose rules have the given per-rule options
// applied (rule id -> option name -> value). Only allow list options exist.
func (rs *RuleSet) WithOptions(opts map[string]map[string]string) (*RuleSet, error) {
	if len(opts) == 0 {
		return rs, nil
	}
	for id := range opts {
		if _, ok := rs.index[id]; !ok {
			return nil, fmt.Errorf("--set references unknown rule %q", id)
		}
	}
	out := make([]Rule, len(rs.rules))
	for i, r := range rs.rules {
		if o, ok := opts[r.ID]; ok {
			allow, err := r.Allow.Configure(o)
			if err != nil {
				return nil, fmt.Errorf("rule %s: %w", r.ID, err)
			}
			r.Allow = allow
		}
		out[i] = r
	}
	return NewRuleSet(rs.provenance, out)
}
