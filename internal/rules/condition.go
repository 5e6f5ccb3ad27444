package rules

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"

	"licensemedic/internal/artifact"
)

// Kind names one entry of the closed condition vocabulary.
type Kind string

const (
	KindLicenseDenied         Kind = "license-denied"
	KindLicenseNotAllowed     Kind = "license-not-allowed"
	KindLicenseMissing        Kind = "license-missing"
	KindCopyrightMissing      Kind = "copyright-missing"
	KindCopyrightMatches      Kind = "copyright-matches"
	KindMetadataFlagSet       Kind = "metadata-flag-set"
	KindMetadataEquals        Kind = "metadata-equals"
	KindCoordinatesIncomplete Kind = "coordinates-incomplete"
)

var (
	// ErrAttributeMissing means the artifact lacks an attribute the condition requires.
	ErrAttributeMissing = errors.New("required attribute missing")

	// ErrMalformedAttribute means an artifact attribute could not be interpreted.
	ErrMalformedAttribute = errors.New("malformed attribute")

	// ErrUnsupportedCondition means a condition outside the vocabulary reached evaluation.
	ErrUnsupportedCondition = errors.New("unsupported condition")
)

// Condition is the predicate of a Rule. The set of implementations is closed:
// only the types declared in this file satisfy it.
type Condition interface {
	Kind() Kind
	validate() error
	clone() Condition
}

// LicenseDenied violates when a declared license matches one of Patterns.
type LicenseDenied struct {
	Patterns []string
}

// LicenseNotAllowed violates when a declared license matches none of Patterns.
type LicenseNotAllowed struct {
	Patterns []string
}

// LicenseMissing violates when the artifact declares no license.
type LicenseMissing struct{}

// CopyrightMissing violates when the artifact carries no copyright statement.
type CopyrightMissing struct{}

// CopyrightMatches violates when a copyright statement matches Pattern.
type CopyrightMatches struct {
	Pattern *regexp.Regexp
}

// MetadataFlagSet violates when metadata[Key] parses as true. An absent key
// counts as not set.
type MetadataFlagSet struct {
	Key string
}

// MetadataEquals violates when metadata[Key] is one of Values. The key is
// required: artifacts without it cannot be judged.
type MetadataEquals struct {
	Key    string
	Values []string
	// Keys are the canonical forms of Values used for violation identity, so
	// spellings the condition treats as equal hash the same. Nil means Values.
	Keys []string
}

// IdentityKeys returns the values that identify the violation.
func (m Match) IdentityKeys() []string {
	if m.Keys != nil {
		return m.Keys
	}
	return m.Values
}

// CoordinatesIncomplete violates when one of Fields (name, version, source) is empty.
type CoordinatesIncomplete struct {
	Fields []string
}

func (LicenseDenied) Kind() Kind         { return KindLicenseDenied }
func (LicenseNotAllowed) Kind() Kind     { return KindLicenseNotAllowed }
func (LicenseMissing) Kind() Kind        { return KindLicenseMissing }
func (CopyrightMissing) Kind() Kind      { return KindCopyrightMissing }
func (CopyrightMatches) Kind() Kind      { return KindCopyrightMatches }
func (MetadataFlagSet) Kind() Kind       { return KindMetadataFlagSet }
func (MetadataEquals) Kind() Kind        { return KindMetadataEquals }
func (CoordinatesIncomplete) Kind() Kind { return KindCoordinatesIncomplete }

func (c LicenseDenied) validate() error     { return validateGlobs("licenses", c.Patterns) }
func (c LicenseNotAllowed) validate() error { return validateGlobs("licenses", c.Patterns) }
func (LicenseMissing) validate() error      { return nil }
func (CopyrightMissing) validate() error    { return nil }

func (c CopyrightMatches) validate() error {
	if c.Pattern == nil {
		return errors.New("pattern is required")
	}
	return nil
}

func (c MetadataFlagSet) validate() error {
	if strings.TrimSpace(c.Key) == "" {
		return errors.New("key is required")
	}
	return nil
}

func (c MetadataEquals) validate() error {
	if strings.TrimSpace(c.Key) == "" {
		return errors.New("key is required")
	}
	if len(c.Values) == 0 {
		return errors.New("values must not be empty")
	}
	return nil
}

func (c CoordinatesIncomplete) validate() error {
	for _, f := range c.Fields {
		switch f {
		case "name", "version", "source":
		default:
			return fmt.Errorf("unsupported coordinate field %q (must be one of: name, version, source)", f)
		}
	}
	return nil
}

func (c LicenseDenied) clone() Condition {
	return LicenseDenied{Patterns: append([]string(nil), c.Patterns...)}
}

func (c LicenseNotAllowed) clone() Condition {
	return LicenseNotAllowed{Patterns: append([]string(nil), c.Patterns...)}
}

func (c LicenseMissing) clone() Condition   { return c }
func (c CopyrightMissing) clone() Condition { return c }
func (c CopyrightMatches) clone() Condition { return c }
func (c MetadataFlagSet) clone() Condition  { return c }

func (c MetadataEquals) clone() Condition {
	return MetadataEquals{Key: c.Key, Values: append([]string(nil), c.Values...)}
}

func (c CoordinatesIncomplete) clone() Condition {
	return CoordinatesIncomplete{Fields: append([]string(nil), c.Fields...)}
}

func validateGlobs(field string, patterns []string) error {
	if len(patterns) == 0 {
		return fmt.Errorf("%s must not be empty", field)
	}
	for _, p := range patterns {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("%s contains an empty pattern", field)
		}
		if _, err := path.Match(strings.ToLower(p), "x"); err != nil {
			return fmt.Errorf("%s: invalid pattern %q: %w", field, p, err)
		}
	}
	return nil
}

// Match is the outcome of one condition evaluated against one artifact.
type Match struct {
	Violates bool
	// Values are the attribute values that define the violation (e.g. the
	// offending license ids). Empty for conditions that only detect absence.
	Values []string
}

// Evaluate applies c to a. Every vocabulary kind is handled here; anything else
// is rejected with ErrUnsupportedCondition.
func Evaluate(c Condition, a artifact.Artifact) (Match, error) {
	switch c := c.(type) {
	case LicenseDenied:
		var hits []string
		for _, l := range a.Licenses() {
			if matchesAnyGlob(c.Patterns, l) {
				hits = append(hits, l)
			}
		}
		return licenseMatch(hits), nil

	case LicenseNotAllowed:
		var hits []string
		for _, l := range a.Licenses() {
			if !matchesAnyGlob(c.Patterns, l) {
				hits = append(hits, l)
			}
		}
		return licenseMatch(hits), nil

	case LicenseMissing:
		return Match{Violates: len(a.Licenses()) == 0}, nil

	case CopyrightMissing:
		return Match{Violates: len(a.Copyrights()) == 0}, nil

	case CopyrightMatches:
		var hits []string
		for _, s := range a.Copyrights() {
			if c.Pattern.MatchString(s) {
				hits = append(hits, s)
			}
		}
		return Match{Violates: len(hits) > 0, Values: hits}, nil

	case MetadataFlagSet:
		raw, ok := a.Metadata(c.Key)
		if !ok {
			return Match{}, nil
		}
		raw = strings.TrimSpace(raw)
		set, err := strconv.ParseBool(raw)
		if err != nil {
			return Match{}, fmt.Errorf("%w: metadata %q=%q is not a boolean", ErrMalformedAttribute, c.Key, raw)
		}
		if !set {
			return Match{}, nil
		}
		return Match{Violates: true, Values: []string{c.Key + "=" + raw}, Keys: []string{c.Key + "=true"}}, nil

	case MetadataEquals:
		raw, ok := a.Metadata(c.Key)
		if !ok {
			return Match{}, fmt.Errorf("%w: metadata %q", ErrAttributeMissing, c.Key)
		}
		raw = strings.TrimSpace(raw)
		for _, v := range c.Values {
			if raw == strings.TrimSpace(v) {
				return Match{Violates: true, Values: []string{c.Key + "=" + raw}}, nil
			}
		}
		return Match{}, nil

	case CoordinatesIncomplete:
		fields := c.Fields
		if len(fields) == 0 {
			fields = []string{"name", "version", "source"}
		}
		coords := a.Coordinates()
		var missing []string
		for _, f := range fields {
			var v string
			switch f {
			case "name":
				v = coords.Name
			case "version":
				v = coords.Version
			case "source":
				v = coords.Source
			}
			if v == "" {
				missing = append(missing, f)
			}
		}
		return Match{Violates: len(missing) > 0, Values: missing}, nil

	default:
		return Match{}, fmt.Errorf("%w: %T", ErrUnsupportedCondition, c)
	}
}

// licenseMatch reports license hits as written and keys them by their
// case-folded SPDX id, since license patterns match case-insensitively.
func licenseMatch(hits []string) Match {
	if len(hits) == 0 {
		return Match{}
	}
	keys := make([]string, len(hits))
	for i, h := range hits {
		keys[i] = strings.ToLower(h)
	}
	return Match{Violates: true, Values: hits, Keys: keys}
}

// matchesAnyGlob matches value against path.Match style patterns, case-insensitively.
func matchesAnyGlob(patterns []string, value string) bool {
	value = strings.ToLower(value)
	for _, p := range patterns {
		if ok, _ := path.Match(strings.ToLower(p), value); ok {
			return true
		}
	}
	return false
}
