package automation

import "errors"

// Domain errors for the automation package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, automation.ErrRuleNotFound) {
//	    // handle not found case
//	}
var (
	// ErrRuleNotFound is returned when a rule ID does not exist.
	ErrRuleNotFound = errors.New("rule: not found")

	// ErrRuleExists is returned when creating a rule with an ID that already exists.
	ErrRuleExists = errors.New("rule: already exists")

	// ErrRuleDisabled is returned when attempting to run a disabled rule.
	ErrRuleDisabled = errors.New("rule: disabled")

	// ErrInvalidRule is returned when rule validation fails.
	ErrInvalidRule = errors.New("rule: invalid")

	// ErrInvalidName is returned when a rule name is empty or too long.
	ErrInvalidName = errors.New("rule: invalid name")

	// ErrInvalidKind is returned when a rule kind is unrecognised.
	ErrInvalidKind = errors.New("rule: invalid kind")

	// ErrInvalidSchedule is returned when a cron expression is malformed.
	ErrInvalidSchedule = errors.New("rule: invalid schedule")

	// ErrNoHandler is returned when no handler is registered for a rule's kind.
	ErrNoHandler = errors.New("rule: no handler for kind")

	// ErrRunNotFound is returned when a run ID does not exist.
	ErrRunNotFound = errors.New("rule: run not found")
)
