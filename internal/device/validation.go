package device

import (
	"fmt"
	"strings"
)

// Validation constants.
const (
	maxSerialLength       = 64
	maxModelLength        = 100
	maxManufacturerLength = 100

	// Size limits for JSON blob fields to prevent memory exhaustion
	// through oversized import payloads.
	maxBlobKeys           = 100
	maxStringValueLen     = 2048
	maxMaintenanceRecords = 500
)

// Pre-computed validation sets for O(1) lookups.
var (
	validCategories map[Category]struct{}
	validStatuses   map[Status]struct{}
	validConditions map[Condition]struct{}
)

func init() {
	validCategories = make(map[Category]struct{}, len(AllCategories()))
	for _, c := range AllCategories() {
		validCategories[c] = struct{}{}
	}

	validStatuses = make(map[Status]struct{}, len(AllStatuses()))
	for _, s := range AllStatuses() {
		validStatuses[s] = struct{}{}
	}

	validConditions = make(map[Condition]struct{}, len(AllConditions()))
	for _, c := range AllConditions() {
		validConditions[c] = struct{}{}
	}
}

// ValidCategory reports whether c is a recognised category.
func ValidCategory(c Category) bool {
	_, ok := validCategories[c]
	return ok
}

// ValidStatus reports whether s is a recognised status.
func ValidStatus(s Status) bool {
	_, ok := validStatuses[s]
	return ok
}

// ValidCondition reports whether c is a recognised condition.
func ValidCondition(c Condition) bool {
	_, ok := validConditions[c]
	return ok
}

// ValidateDevice performs comprehensive validation on a device.
// Returns an error describing the first validation failure found.
func ValidateDevice(d *Device) error {
	if d == nil {
		return ErrInvalidDevice
	}

	serial := strings.TrimSpace(d.SerialNumber)
	if serial == "" {
		return fmt.Errorf("%w: serial number cannot be empty", ErrInvalidSerial)
	}
	if len(serial) > maxSerialLength {
		return fmt.Errorf("%w: serial number exceeds %d characters", ErrInvalidSerial, maxSerialLength)
	}

	model := strings.TrimSpace(d.Model)
	if model == "" {
		return fmt.Errorf("%w: model cannot be empty", ErrInvalidModel)
	}
	if len(model) > maxModelLength {
		return fmt.Errorf("%w: model exceeds %d characters", ErrInvalidModel, maxModelLength)
	}

	if len(d.Manufacturer) > maxManufacturerLength {
		return fmt.Errorf("%w: manufacturer exceeds %d characters", ErrInvalidModel, maxManufacturerLength)
	}

	if d.PurchaseCost < 0 {
		return fmt.Errorf("%w: purchase cost cannot be negative", ErrInvalidCost)
	}

	if !ValidCategory(d.Category) {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, d.Category)
	}
	if d.Status != "" && !ValidStatus(d.Status) {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, d.Status)
	}
	if d.Condition != "" && !ValidCondition(d.Condition) {
		return fmt.Errorf("%w: %q", ErrInvalidCondition, d.Condition)
	}

	if err := validateBlob(d.Specification, "specification"); err != nil {
		return err
	}
	if err := validateBlob(d.Software, "software"); err != nil {
		return err
	}
	if len(d.MaintenanceRecords) > maxMaintenanceRecords {
		return fmt.Errorf("%w: maintenance history exceeds %d records", ErrInvalidDevice, maxMaintenanceRecords)
	}

	return nil
}

// validateBlob enforces size limits on a free-form JSON map.
func validateBlob(m map[string]any, fieldName string) error {
	if m == nil {
		return nil
	}
	if len(m) > maxBlobKeys {
		return fmt.Errorf("%w: %s exceeds %d keys", ErrInvalidDevice, fieldName, maxBlobKeys)
	}
	for k, v := range m {
		if len(k) > maxStringValueLen {
			return fmt.Errorf("%w: %s key too long", ErrInvalidDevice, fieldName)
		}
		if s, ok := v.(string); ok && len(s) > maxStringValueLen {
			return fmt.Errorf("%w: %s string value too long", ErrInvalidDevice, fieldName)
		}
	}
	return nil
}
