package automation

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Validation constants.
const (
	maxNameLength     = 100
	maxDescriptionLen = 500
	maxParameterKeys  = 20
	cronFields        = 5
)

// Pre-computed validation set for O(1) kind lookups.
var validKinds map[Kind]struct{}

func init() {
	validKinds = make(map[Kind]struct{}, len(AllKinds()))
	for _, k := range AllKinds() {
		validKinds[k] = struct{}{}
	}
}

// ValidKind reports whether a rule kind is recognised.
func ValidKind(k Kind) bool {
	_, ok := validKinds[k]
	return ok
}

// ValidateRule performs comprehensive validation on a rule.
// Returns an error describing the first validation failure found.
func ValidateRule(r *Rule) error {
	if r == nil {
		return ErrInvalidRule
	}

	if err := ValidateName(r.Name); err != nil {
		return err
	}

	if !ValidKind(r.Kind) {
		return fmt.Errorf("%w: %q", ErrInvalidKind, r.Kind)
	}

	if r.Description != nil && len(*r.Description) > maxDescriptionLen {
		return fmt.Errorf("%w: description exceeds %d characters", ErrInvalidRule, maxDescriptionLen)
	}

	if r.Schedule != "" {
		if err := ValidateSchedule(r.Schedule); err != nil {
			return err
		}
	}

	if len(r.Parameters) > maxParameterKeys {
		return fmt.Errorf("%w: parameters exceeds %d keys", ErrInvalidRule, maxParameterKeys)
	}

	return nil
}

// ValidateName checks if a rule name is valid.
func ValidateName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// ValidateSchedule checks that a cron expression has the standard five
// fields. The expression is stored metadata; field contents are left to
// whatever scheduler eventually consumes it, only the shape is checked.
func ValidateSchedule(schedule string) error {
	fields := strings.Fields(schedule)
	if len(fields) != cronFields {
		return fmt.Errorf("%w: expected %d cron fields, got %d", ErrInvalidSchedule, cronFields, len(fields))
	}
	return nil
}

// GenerateID creates a new UUID for a rule or run.
func GenerateID() string {
	return uuid.New().String()
}
