package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/schooltrack/asset-core/internal/device"
	"github.com/schooltrack/asset-core/internal/infrastructure/mqtt"
	"github.com/schooltrack/asset-core/internal/school"
)

// Handler parameter defaults. Each can be overridden per rule via the
// Parameters map.
const (
	defaultReminderAheadDays = 7
	defaultWarrantyAheadDays = 30
	defaultOfflineIdleHours  = 24

	eventQoS = 1
)

// DeviceSource is the slice of the device repository the handlers need.
type DeviceSource interface {
	List(ctx context.Context) ([]device.Device, error)
}

// SchoolSource provides the school directory for ownership sweeps.
type SchoolSource interface {
	List(ctx context.Context) ([]school.School, error)
}

// Publisher publishes rule events to the broker.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Telemetry receives depreciation snapshots. Writes are fire-and-forget.
type Telemetry interface {
	WriteDeviceValue(nameTag, category string, currentValue float64)
}

// deviceFinding is the per-device payload published with rule events.
type deviceFinding struct {
	NameTag      string  `json:"name_tag"`
	SerialNumber string  `json:"serial_number"`
	SchoolID     *string `json:"school_id,omitempty"`
	Detail       string  `json:"detail"`
}

// publishFindings emits one event on the rule's topic carrying all
// findings. A publish failure is reported to the engine as a handler
// error; the findings themselves were still computed.
func publishFindings(pub Publisher, ruleID string, findings []deviceFinding) error {
	if pub == nil || len(findings) == 0 {
		return nil
	}
	payload, err := json.Marshal(map[string]any{
		"rule_id":  ruleID,
		"findings": findings,
	})
	if err != nil {
		return fmt.Errorf("marshalling findings: %w", err)
	}
	topic := mqtt.Topics{}.CoreRuleFired(ruleID)
	if err := pub.Publish(topic, payload, eventQoS, false); err != nil {
		return fmt.Errorf("publishing to %q: %w", topic, err)
	}
	return nil
}

// paramInt reads an integer parameter, tolerating the float64 that
// JSON decoding produces.
func paramInt(params map[string]any, key string, fallback int) int {
	v, ok := params[key]
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return fallback
	}
}

// MaintenanceReminderHandler finds devices whose scheduled maintenance
// is due within a configurable window, or already overdue.
//
// Parameters: ahead_days (default 7).
type MaintenanceReminderHandler struct {
	Devices   DeviceSource
	Publisher Publisher
}

func (MaintenanceReminderHandler) Kind() Kind { return KindMaintenanceReminder }

func (h MaintenanceReminderHandler) Execute(ctx context.Context, rc RunContext) (Result, error) {
	devices, err := h.Devices.List(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("listing devices: %w", err)
	}

	ahead := paramInt(rc.Rule.Parameters, "ahead_days", defaultReminderAheadDays)
	horizon := rc.Now.AddDate(0, 0, ahead)

	var findings []deviceFinding
	overdue := 0
	for i := range devices {
		d := &devices[i]
		if d.NextMaintenanceDate == nil || d.NextMaintenanceDate.After(horizon) {
			continue
		}
		detail := fmt.Sprintf("maintenance due %s", d.NextMaintenanceDate.Format("2006-01-02"))
		if device.MaintenanceOverdue(d, rc.Now) {
			detail = fmt.Sprintf("maintenance overdue since %s", d.NextMaintenanceDate.Format("2006-01-02"))
			overdue++
		}
		findings = append(findings, deviceFinding{
			NameTag:      d.NameTag,
			SerialNumber: d.SerialNumber,
			SchoolID:     d.SchoolID,
			Detail:       detail,
		})
	}

	if err := publishFindings(h.Publisher, rc.Rule.ID, findings); err != nil {
		return Result{Matched: len(findings)}, err
	}
	return Result{
		Matched: len(findings),
		Acted:   len(findings),
		Message: fmt.Sprintf("%d due within %dd, %d overdue", len(findings), ahead, overdue),
	}, nil
}

// WarrantyAlertHandler finds devices whose warranty has expired or
// expires within a configurable window.
//
// Parameters: ahead_days (default 30).
type WarrantyAlertHandler struct {
	Devices   DeviceSource
	Publisher Publisher
}

func (WarrantyAlertHandler) Kind() Kind { return KindWarrantyAlert }

func (h WarrantyAlertHandler) Execute(ctx context.Context, rc RunContext) (Result, error) {
	devices, err := h.Devices.List(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("listing devices: %w", err)
	}

	ahead := paramInt(rc.Rule.Parameters, "ahead_days", defaultWarrantyAheadDays)
	horizon := rc.Now.AddDate(0, 0, ahead)

	var findings []deviceFinding
	expired := 0
	for i := range devices {
		d := &devices[i]
		if d.WarrantyExpiry == nil || d.WarrantyExpiry.After(horizon) {
			continue
		}
		detail := fmt.Sprintf("warranty expires %s", d.WarrantyExpiry.Format("2006-01-02"))
		if !device.IsWarrantyActive(d, rc.Now) {
			detail = fmt.Sprintf("warranty expired %s", d.WarrantyExpiry.Format("2006-01-02"))
			expired++
		}
		findings = append(findings, deviceFinding{
			NameTag:      d.NameTag,
			SerialNumber: d.SerialNumber,
			SchoolID:     d.SchoolID,
			Detail:       detail,
		})
	}

	if err := publishFindings(h.Publisher, rc.Rule.ID, findings); err != nil {
		return Result{Matched: len(findings)}, err
	}
	return Result{
		Matched: len(findings),
		Acted:   len(findings),
		Message: fmt.Sprintf("%d expiring within %dd, %d expired", len(findings), ahead, expired),
	}, nil
}

// OfflineDetectionHandler finds devices that have not been seen for
// longer than a configurable idle window. Devices that have never
// reported a heartbeat are excluded; silence from a device that never
// speaks is not news.
//
// Parameters: idle_hours (default 24).
type OfflineDetectionHandler struct {
	Devices   DeviceSource
	Publisher Publisher
}

func (OfflineDetectionHandler) Kind() Kind { return KindOfflineDetection }

func (h OfflineDetectionHandler) Execute(ctx context.Context, rc RunContext) (Result, error) {
	devices, err := h.Devices.List(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("listing devices: %w", err)
	}

	idleHours := paramInt(rc.Rule.Parameters, "idle_hours", defaultOfflineIdleHours)
	cutoff := rc.Now.Add(-time.Duration(idleHours) * time.Hour)

	var findings []deviceFinding
	for i := range devices {
		d := &devices[i]
		if d.LastSeenAt == nil || d.LastSeenAt.After(cutoff) {
			continue
		}
		days := device.DaysSinceLastSeen(d, rc.Now)
		detail := "offline"
		if days != nil {
			detail = fmt.Sprintf("silent for %d days", *days)
		}
		findings = append(findings, deviceFinding{
			NameTag:      d.NameTag,
			SerialNumber: d.SerialNumber,
			SchoolID:     d.SchoolID,
			Detail:       detail,
		})
	}

	if err := publishFindings(h.Publisher, rc.Rule.ID, findings); err != nil {
		return Result{Matched: len(findings)}, err
	}
	return Result{
		Matched: len(findings),
		Acted:   len(findings),
		Message: fmt.Sprintf("%d devices silent beyond %dh", len(findings), idleHours),
	}, nil
}

// AgingUpdateHandler writes the current book value of every device to
// the telemetry sink, producing the depreciation time series.
type AgingUpdateHandler struct {
	Devices   DeviceSource
	Telemetry Telemetry
}

func (AgingUpdateHandler) Kind() Kind { return KindAgingUpdate }

func (h AgingUpdateHandler) Execute(ctx context.Context, rc RunContext) (Result, error) {
	devices, err := h.Devices.List(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("listing devices: %w", err)
	}
	if h.Telemetry == nil {
		return Result{
			Matched: len(devices),
			Message: "telemetry sink disabled, nothing written",
		}, nil
	}

	var total float64
	for i := range devices {
		d := &devices[i]
		value := device.DepreciationValue(d, rc.Now)
		total += value
		h.Telemetry.WriteDeviceValue(d.NameTag, string(d.Category), value)
	}

	return Result{
		Matched: len(devices),
		Acted:   len(devices),
		Message: fmt.Sprintf("wrote %d values, fleet book value %.0f", len(devices), total),
	}, nil
}

// UserAssignmentHandler sweeps the school directory for active schools
// with no owning user, and for owned schools reports their device
// counts so coordinators can chase unaccounted stock.
type UserAssignmentHandler struct {
	Devices   DeviceSource
	Schools   SchoolSource
	Publisher Publisher
}

func (UserAssignmentHandler) Kind() Kind { return KindUserAssignment }

func (h UserAssignmentHandler) Execute(ctx context.Context, rc RunContext) (Result, error) {
	schools, err := h.Schools.List(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("listing schools: %w", err)
	}
	devices, err := h.Devices.List(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("listing devices: %w", err)
	}

	perSchool := make(map[string]int)
	for i := range devices {
		if devices[i].SchoolID != nil {
			perSchool[*devices[i].SchoolID]++
		}
	}

	var findings []deviceFinding
	unowned := 0
	for i := range schools {
		s := &schools[i]
		if s.Status != school.StatusActive {
			continue
		}
		if s.OwnerUserID != nil {
			continue
		}
		unowned++
		id := s.ID
		findings = append(findings, deviceFinding{
			SchoolID: &id,
			Detail:   fmt.Sprintf("school %s (%s) holds %d devices with no owner account", s.Name, s.Code, perSchool[s.ID]),
		})
	}

	if err := publishFindings(h.Publisher, rc.Rule.ID, findings); err != nil {
		return Result{Matched: unowned}, err
	}
	return Result{
		Matched: unowned,
		Acted:   len(findings),
		Message: fmt.Sprintf("%d active schools without an owner account", unowned),
	}, nil
}
