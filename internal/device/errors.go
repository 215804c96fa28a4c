package device

import "errors"

// Sentinel errors for device operations. Check with errors.Is.
var (
	// ErrNotFound is returned when a device ID or serial does not exist.
	ErrNotFound = errors.New("device: not found")

	// ErrDuplicateSerial is returned when a serial number is already registered.
	ErrDuplicateSerial = errors.New("device: serial number already exists")

	// ErrDuplicateTag is returned when a generated name tag collides with an
	// existing one. For school-scoped tags this is transient (concurrent
	// creation) and retried; surfacing it means the bounded retry was
	// exhausted, or an unassigned device of the category already holds the
	// default tag.
	ErrDuplicateTag = errors.New("device: name tag already exists")

	// ErrInvalidDevice is returned for a nil or structurally invalid device.
	ErrInvalidDevice = errors.New("device: invalid device")

	// ErrInvalidSerial is returned when the serial number fails validation.
	ErrInvalidSerial = errors.New("device: invalid serial number")

	// ErrInvalidModel is returned when the model is missing or too long.
	ErrInvalidModel = errors.New("device: invalid model")

	// ErrInvalidCost is returned when the purchase cost is missing or negative.
	ErrInvalidCost = errors.New("device: invalid purchase cost")

	// ErrInvalidCategory is returned for an unrecognised category.
	ErrInvalidCategory = errors.New("device: invalid category")

	// ErrInvalidStatus is returned for an unrecognised status.
	ErrInvalidStatus = errors.New("device: invalid status")

	// ErrInvalidCondition is returned for an unrecognised condition.
	ErrInvalidCondition = errors.New("device: invalid condition")
)
