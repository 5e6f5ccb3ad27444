package rules

import (
	"errors"
	"strings"
)

// ErrConfiguration is matched by every error the loader returns.
var ErrConfiguration = errors.New("invalid ruleset configuration")

// ConfigurationError reports a ruleset that cannot be loaded.
type ConfigurationError struct {
	// Source is the file path, builtin name or reader label the ruleset came from.
	Source string
	// RuleID is set when the problem is specific to one rule.
	RuleID string
	// Field names the offending document field, if known.
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	var b strings.Builder
	b.WriteString("ruleset")
	if e.Source != "" {
		b.WriteString(" ")
		b.WriteString(e.Source)
	}
	if e.RuleID != "" {
		b.WriteString(": rule ")
		b.WriteString(e.RuleID)
	}
	if e.Field != "" {
		b.WriteString(": ")
		b.WriteString(e.Field)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}
