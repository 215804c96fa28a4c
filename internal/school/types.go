package school

import "time"

// Type classifies a school by education level.
type Type string

// School types.
const (
	TypePrimary   Type = "primary"
	TypeSecondary Type = "secondary"
	TypeTVET      Type = "tvet"
	TypeOther     Type = "other"
)

// Status represents the operational state of a school.
type Status string

// School statuses.
const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// School represents a school that devices can be assigned to.
//
// Code is a short human-assigned identifier, unique across the directory.
// The administrative location fields follow the national hierarchy:
// province > district > sector > cell > village. District is the field
// device name tags derive their scope code from.
type School struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Code        string    `json:"code"`
	Province    string    `json:"province"`
	District    string    `json:"district"`
	Sector      string    `json:"sector,omitempty"`
	Cell        string    `json:"cell,omitempty"`
	Village     string    `json:"village,omitempty"`
	Type        Type      `json:"type"`
	Status      Status    `json:"status"`
	OwnerUserID *string   `json:"owner_user_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
