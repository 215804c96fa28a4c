package device

import (
	"math"
	"time"
)

// Depreciation model constants.
//
// Devices lose 20% of purchase cost per year for the first three years,
// then 10% per year, capped at 90% total. Book value never drops below
// 10% of purchase cost.
const (
	// OnlineWindow is how recently a device must have been seen to
	// count as online.
	OnlineWindow = 30 * time.Minute

	earlyDepreciationRate = 0.2
	lateDepreciationRate  = 0.1
	earlyDepreciationYrs  = 3
	maxDepreciationRate   = 0.9
	residualValueFraction = 0.1

	hoursPerDay = 24
)

// Metrics aggregates the derived read-time properties of a device.
// Computed on every read; never persisted.
type Metrics struct {
	AgeInYears           *int    `json:"age_in_years"`
	IsWarrantyActive     bool    `json:"is_warranty_active"`
	DaysSinceLastSeen    *int    `json:"days_since_last_seen"`
	IsOnline             bool    `json:"is_online"`
	NeedsMaintenance     bool    `json:"needs_maintenance"`
	MaintenanceOverdue   bool    `json:"maintenance_overdue"`
	DepreciationValue    float64 `json:"depreciation_value"`
	TotalMaintenanceCost float64 `json:"total_maintenance_cost"`
}

// ComputeMetrics derives all metrics for a device at the given instant.
func ComputeMetrics(d *Device, now time.Time) Metrics {
	return Metrics{
		AgeInYears:           AgeInYears(d, now),
		IsWarrantyActive:     IsWarrantyActive(d, now),
		DaysSinceLastSeen:    DaysSinceLastSeen(d, now),
		IsOnline:             IsOnline(d, now),
		NeedsMaintenance:     NeedsMaintenance(d, now),
		MaintenanceOverdue:   MaintenanceOverdue(d, now),
		DepreciationValue:    DepreciationValue(d, now),
		TotalMaintenanceCost: TotalMaintenanceCost(d),
	}
}

// AgeInYears returns the device age in whole calendar years at now, or
// nil when no purchase date is recorded. The year difference is
// decremented by one when now's month/day precedes the purchase
// month/day, matching how ages are counted in the field.
func AgeInYears(d *Device, now time.Time) *int {
	if d.PurchaseDate == nil {
		return nil
	}
	p := *d.PurchaseDate

	years := now.Year() - p.Year()
	if now.Month() < p.Month() || (now.Month() == p.Month() && now.Day() < p.Day()) {
		years--
	}
	if years < 0 {
		years = 0
	}
	return &years
}

// IsWarrantyActive reports whether the device is still under warranty.
// False (not unknown) when no warranty expiry is recorded.
func IsWarrantyActive(d *Device, now time.Time) bool {
	return d.WarrantyExpiry != nil && now.Before(*d.WarrantyExpiry)
}

// DaysSinceLastSeen returns the number of days since the device last
// checked in, rounded up, or nil when the device has never been seen.
func DaysSinceLastSeen(d *Device, now time.Time) *int {
	if d.LastSeenAt == nil {
		return nil
	}
	hours := math.Abs(now.Sub(*d.LastSeenAt).Hours())
	days := int(math.Ceil(hours / hoursPerDay))
	return &days
}

// IsOnline reports whether the device was seen within OnlineWindow.
// False when the device has never been seen.
func IsOnline(d *Device, now time.Time) bool {
	if d.LastSeenAt == nil {
		return false
	}
	return now.Sub(*d.LastSeenAt) <= OnlineWindow
}

// NeedsMaintenance reports whether scheduled maintenance is due:
// next_maintenance_date is set and now is at or past it.
func NeedsMaintenance(d *Device, now time.Time) bool {
	return d.NextMaintenanceDate != nil && !now.Before(*d.NextMaintenanceDate)
}

// MaintenanceOverdue reports whether now is strictly past the scheduled
// maintenance date. At the exact boundary only NeedsMaintenance is
// true; MaintenanceOverdue follows one instant later.
func MaintenanceOverdue(d *Device, now time.Time) bool {
	return d.NextMaintenanceDate != nil && now.After(*d.NextMaintenanceDate)
}

// DepreciationValue returns the current book value of the device.
//
// rate = age*0.2 for age <= 3, else 0.6 + (age-3)*0.1, capped at 0.9.
// Value floors at 10% of purchase cost. A device with no purchase date
// or non-positive age is worth its full purchase cost.
func DepreciationValue(d *Device, now time.Time) float64 {
	age := AgeInYears(d, now)
	if age == nil || *age <= 0 {
		return d.PurchaseCost
	}

	years := float64(*age)
	var rate float64
	if years <= earlyDepreciationYrs {
		rate = years * earlyDepreciationRate
	} else {
		rate = earlyDepreciationYrs*earlyDepreciationRate + (years-earlyDepreciationYrs)*lateDepreciationRate
	}
	if rate > maxDepreciationRate {
		rate = maxDepreciationRate
	}

	value := d.PurchaseCost * (1 - rate)
	floor := d.PurchaseCost * residualValueFraction
	if value < floor {
		value = floor
	}
	return value
}

// TotalMaintenanceCost sums all recorded repair costs. Zero when the
// device has no maintenance history.
func TotalMaintenanceCost(d *Device) float64 {
	var total float64
	for _, r := range d.MaintenanceRecords {
		total += r.Cost
	}
	return total
}
