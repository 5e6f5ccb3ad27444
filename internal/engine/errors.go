package engine

import (
	"errors"
	"fmt"
)

// ErrRulePanic is wrapped by warnings raised when a rule panicked.
var ErrRulePanic = errors.New("rule evaluation panicked")

// Stage names the step of a (rule, artifact) evaluation that failed.
type Stage string

const (
	StageCondition Stage = "condition"
	StageMessage   Stage = "message"
	StageHash      Stage = "hash"
)

// EvaluationWarning records a (rule, artifact) pair that could not be judged.
// The pair is excluded from the result; evaluation of every other pair continues.
type EvaluationWarning struct {
	RuleID   string `json:"rule_id"`
	Artifact string `json:"artifact"`
	Stage    Stage  `json:"stage"`
	Detail   string `json:"detail"`
	Err      error  `json:"-"`
}

func newWarning(ruleID, artifactID string, stage Stage, err error) EvaluationWarning {
	return EvaluationWarning{
		RuleID:   ruleID,
		Artifact: artifactID,
		Stage:    stage,
		Detail:   err.Error(),
		Err:      err,
	}
}

func (w EvaluationWarning) Error() string {
	return fmt.Sprintf("rule %s on %s: %s: %s", w.RuleID, w.Artifact, w.Stage, w.Detail)
}

func (w EvaluationWarning) Unwrap() error {
	return w.Err
}
