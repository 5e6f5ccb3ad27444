package violation

import (
	"fmt"
	"strings"
)

type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

// ParseSeverity normalizes raw into a Severity. An empty value is an error.
func ParseSeverity(raw string) (Severity, error) {
	switch s := Severity(strings.ToLower(strings.TrimSpace(raw))); s {
	case SeverityInfo, SeverityWarn, SeverityError:
		return s, nil
	case "warning":
		return SeverityWarn, nil
	default:
		return "", fmt.Errorf("unsupported severity %q (must be one of: info, warn, error)", raw)
	}
}

// Rank orders severities from least (1) to most (3) severe. Unknown values rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityInfo:
		return 1
	case SeverityWarn:
		return 2
	case SeverityError:
		return 3
	default:
		return 0
	}
}

// AtLeast reports whether s is as severe as threshold.
func (s Severity) AtLeast(threshold Severity) bool {
	return s.Rank() >= threshold.Rank()
}

// PolicyViolation is one reported instance of a rule firing.
//
// RuleID, Message and Hash form the stable contract downstream tooling keys on.
type PolicyViolation struct {
	RuleID   string   `json:"rule_id" yaml:"rule_id"`
	Title    string   `json:"title,omitempty" yaml:"title,omitempty"`
	Severity Severity `json:"severity" yaml:"severity"`
	Message  string   `json:"message" yaml:"message"`
	Artifact string   `json:"artifact" yaml:"artifact"`
	// Values are the violation-defining attribute values fed into Hash.
	Values []string `json:"values,omitempty" yaml:"values,omitempty"`
	Hash   string   `json:"hash" yaml:"hash"`
}
