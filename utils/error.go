package utils

import (
	"errors"
	"fmt"
)

var ErrorRecordNotFound = errors.New("record not found")

// ErrorNoDataAvailable means no line items exist for the requested
// property/period, so a reconciliation session cannot start.
var ErrorNoDataAvailable = errors.New("no line items available for property/period")

// ErrorSessionAlreadyRunning means another reconciliation session holds the
// lock for the same property/period. The caller should retry later.
var ErrorSessionAlreadyRunning = errors.New("reconciliation session already running")

// RuleEvaluationError marks a calculated rule that could not be evaluated
// (missing operand, bad formula). The rule is skipped for the pair and
// matching continues; a single bad rule never aborts the session.
type RuleEvaluationError struct {
	RuleName string
	Version  int
	Reason   string
}

func (e *RuleEvaluationError) Error() string {
	return fmt.Sprintf("calculated rule %s v%d: %s", e.RuleName, e.Version, e.Reason)
}
