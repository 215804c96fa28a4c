package school

import (
	"fmt"
	"regexp"
	"strings"
)

// Validation constants.
const (
	maxNameLength = 150
	maxCodeLength = 20
	maxPlaceLen   = 100
	codePattern   = `^[A-Z0-9]+(?:-[A-Z0-9]+)*$`
)

var codeRegex = regexp.MustCompile(codePattern)

// Pre-computed validation sets for O(1) lookups.
var (
	validTypes    map[Type]struct{}
	validStatuses map[Status]struct{}
)

func init() {
	validTypes = map[Type]struct{}{
		TypePrimary:   {},
		TypeSecondary: {},
		TypeTVET:      {},
		TypeOther:     {},
	}
	validStatuses = map[Status]struct{}{
		StatusActive:   {},
		StatusInactive: {},
	}
}

// ValidType reports whether t is a recognised school type.
func ValidType(t Type) bool {
	_, ok := validTypes[t]
	return ok
}

// ValidStatus reports whether s is a recognised school status.
func ValidStatus(s Status) bool {
	_, ok := validStatuses[s]
	return ok
}

// ValidateSchool performs comprehensive validation on a school record.
// Returns an error describing the first validation failure found.
func ValidateSchool(s *School) error {
	name := strings.TrimSpace(s.Name)
	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}

	code := strings.TrimSpace(s.Code)
	if code == "" {
		return fmt.Errorf("%w: code cannot be empty", ErrInvalidCode)
	}
	if len(code) > maxCodeLength {
		return fmt.Errorf("%w: code exceeds %d characters", ErrInvalidCode, maxCodeLength)
	}
	if !codeRegex.MatchString(code) {
		return fmt.Errorf("%w: code must be uppercase alphanumeric with hyphens", ErrInvalidCode)
	}

	district := strings.TrimSpace(s.District)
	if district == "" {
		return fmt.Errorf("%w: district cannot be empty", ErrInvalidDistrict)
	}
	if len(district) > maxPlaceLen {
		return fmt.Errorf("%w: district exceeds %d characters", ErrInvalidDistrict, maxPlaceLen)
	}

	if s.Type != "" && !ValidType(s.Type) {
		return fmt.Errorf("%w: %q", ErrInvalidType, s.Type)
	}
	if s.Status != "" && !ValidStatus(s.Status) {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, s.Status)
	}

	return nil
}
