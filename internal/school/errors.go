package school

import "errors"

var (
	// ErrNotFound is returned when a school ID or code does not exist.
	ErrNotFound = errors.New("school: not found")

	// ErrDuplicateCode is returned when a school code is already in use.
	ErrDuplicateCode = errors.New("school: code already exists")

	// ErrInvalidName is returned when a school name fails validation.
	ErrInvalidName = errors.New("school: invalid name")

	// ErrInvalidCode is returned when a school code fails validation.
	ErrInvalidCode = errors.New("school: invalid code")

	// ErrInvalidDistrict is returned when the district is missing or malformed.
	ErrInvalidDistrict = errors.New("school: invalid district")

	// ErrInvalidType is returned for an unrecognised school type.
	ErrInvalidType = errors.New("school: invalid type")

	// ErrInvalidStatus is returned for an unrecognised school status.
	ErrInvalidStatus = errors.New("school: invalid status")
)
