package device

import "time"

// Category classifies a device by hardware type.
type Category string

// Device categories.
const (
	CategoryLaptop    Category = "laptop"
	CategoryDesktop   Category = "desktop"
	CategoryProjector Category = "projector"
	CategoryOther     Category = "other"
)

// AllCategories returns every recognised device category.
func AllCategories() []Category {
	return []Category{CategoryLaptop, CategoryDesktop, CategoryProjector, CategoryOther}
}

// Status represents the lifecycle state of a device.
type Status string

// Device statuses.
const (
	StatusActive      Status = "active"
	StatusInactive    Status = "inactive"
	StatusMaintenance Status = "maintenance"
	StatusDamaged     Status = "damaged"
	StatusLost        Status = "lost"
	StatusDisposed    Status = "disposed"
)

// AllStatuses returns every recognised device status.
func AllStatuses() []Status {
	return []Status{StatusActive, StatusInactive, StatusMaintenance,
		StatusDamaged, StatusLost, StatusDisposed}
}

// Condition represents the physical condition of a device.
type Condition string

// Device conditions.
const (
	ConditionExcellent Condition = "excellent"
	ConditionGood      Condition = "good"
	ConditionFair      Condition = "fair"
	ConditionPoor      Condition = "poor"
	ConditionBroken    Condition = "broken"
)

// AllConditions returns every recognised device condition.
func AllConditions() []Condition {
	return []Condition{ConditionExcellent, ConditionGood, ConditionFair,
		ConditionPoor, ConditionBroken}
}

// MaintenanceRecord is a single repair or service entry in a device's
// maintenance history.
type MaintenanceRecord struct {
	Description string    `json:"description"`
	Cost        float64   `json:"cost"`
	PerformedAt time.Time `json:"performed_at"`
}

// Device represents a tracked asset: a laptop, desktop, projector or
// other piece of hardware issued to a school or held in central stock.
//
// SerialNumber and NameTag are both globally unique. NameTag is derived
// from Category and the assigned school's district; it is regenerated on
// every assignment or category change and never edited directly.
type Device struct {
	ID           string   `json:"id"`
	SerialNumber string   `json:"serial_number"`
	NameTag      string   `json:"name_tag"`
	Category     Category `json:"category"`
	Status       Status   `json:"status"`
	Condition    Condition `json:"condition"`

	Model        string  `json:"model"`
	Manufacturer string  `json:"manufacturer,omitempty"`
	PurchaseCost float64 `json:"purchase_cost"`

	PurchaseDate   *time.Time `json:"purchase_date,omitempty"`
	WarrantyExpiry *time.Time `json:"warranty_expiry,omitempty"`
	LastSeenAt     *time.Time `json:"last_seen_at,omitempty"`

	LastMaintenanceDate *time.Time `json:"last_maintenance_date,omitempty"`
	NextMaintenanceDate *time.Time `json:"next_maintenance_date,omitempty"`

	// SchoolID is nil while the device sits unassigned in central stock.
	SchoolID *string `json:"school_id,omitempty"`

	// Specification and Software are free-form JSON blobs (CPU, RAM,
	// installed packages, OS version) supplied by import tooling.
	Specification map[string]any `json:"specification,omitempty"`
	Software      map[string]any `json:"software,omitempty"`

	MaintenanceRecords []MaintenanceRecord `json:"maintenance_records,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeepCopy returns an independent copy of the device.
// Mutating the copy's maps, slices or pointer fields does not affect
// the original.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}
	cp := *d

	cp.PurchaseDate = copyTime(d.PurchaseDate)
	cp.WarrantyExpiry = copyTime(d.WarrantyExpiry)
	cp.LastSeenAt = copyTime(d.LastSeenAt)
	cp.LastMaintenanceDate = copyTime(d.LastMaintenanceDate)
	cp.NextMaintenanceDate = copyTime(d.NextMaintenanceDate)

	if d.SchoolID != nil {
		v := *d.SchoolID
		cp.SchoolID = &v
	}
	if d.Specification != nil {
		cp.Specification = make(map[string]any, len(d.Specification))
		for k, v := range d.Specification {
			cp.Specification[k] = v
		}
	}
	if d.Software != nil {
		cp.Software = make(map[string]any, len(d.Software))
		for k, v := range d.Software {
			cp.Software[k] = v
		}
	}
	if d.MaintenanceRecords != nil {
		cp.MaintenanceRecords = make([]MaintenanceRecord, len(d.MaintenanceRecords))
		copy(cp.MaintenanceRecords, d.MaintenanceRecords)
	}
	return &cp
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
