package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/schooltrack/asset-core/internal/infrastructure/logging"
)

// tagAttempts bounds how many times a tag derivation is retried when a
// concurrent writer wins the race for the same sequence number. Each
// retry recomputes the sequence from current data, so three attempts is
// enough outside of pathological contention.
const tagAttempts = 3

// SchoolLookup resolves the district used to scope name tags.
// *school.SQLiteRepository satisfies it.
type SchoolLookup interface {
	DistrictByID(ctx context.Context, schoolID string) (string, error)
}

// BulkResult reports the outcome of one item in a bulk operation.
// Err is nil on success.
type BulkResult struct {
	ID           string
	SerialNumber string
	NameTag      string
	Err          error
}

// FleetStats summarises the device fleet at a point in time.
type FleetStats struct {
	Total         int              `json:"total"`
	Online        int              `json:"online"`
	Assigned      int              `json:"assigned"`
	BookValue     float64          `json:"book_value"`
	PurchaseValue float64          `json:"purchase_value"`
	ByStatus      map[Status]int   `json:"by_status"`
	ByCategory    map[Category]int `json:"by_category"`
}

// Manager coordinates device mutations that span tag derivation,
// school lookups and persistence. Read paths go straight to the
// repository; every write that touches a name tag goes through here so
// the bounded retry and scope rules live in one place.
type Manager struct {
	repo    Repository
	schools SchoolLookup
	logger  *logging.Logger
	now     func() time.Time
}

// NewManager creates a device manager.
func NewManager(repo Repository, schools SchoolLookup, logger *logging.Logger) *Manager {
	return &Manager{
		repo:    repo,
		schools: schools,
		logger:  logger,
		now:     time.Now,
	}
}

// CreateDevice validates, tags and persists a new device.
//
// An unassigned device receives the shared default tag for its
// category. An assigned device receives the next free sequence in its
// category/district scope; on a tag collision the sequence is
// recomputed and the insert retried up to tagAttempts times.
func (m *Manager) CreateDevice(ctx context.Context, d *Device) (*Device, error) {
	if err := ValidateDevice(d); err != nil {
		return nil, err
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Status == "" {
		d.Status = StatusActive
	}
	if d.Condition == "" {
		d.Condition = ConditionGood
	}

	if d.SchoolID == nil {
		d.NameTag = DefaultTag(d.Category)
		if err := m.repo.Create(ctx, d); err != nil {
			return nil, err
		}
		m.logger.Info("device created",
			"device_id", d.ID, "serial", d.SerialNumber, "tag", d.NameTag)
		return d, nil
	}

	district, err := m.schools.DistrictByID(ctx, *d.SchoolID)
	if err != nil {
		return nil, fmt.Errorf("resolving school %s: %w", *d.SchoolID, err)
	}
	prefix := CategoryPrefix(d.Category)
	scope := DistrictCode(district)

	var lastErr error
	for attempt := 1; attempt <= tagAttempts; attempt++ {
		seq, err := m.repo.MaxTagSequence(ctx, prefix, scope)
		if err != nil {
			return nil, err
		}
		d.NameTag = FormatTag(prefix, scope, seq+1)

		err = m.repo.Create(ctx, d)
		if err == nil {
			m.logger.Info("device created",
				"device_id", d.ID, "serial", d.SerialNumber, "tag", d.NameTag)
			return d, nil
		}
		if !errors.Is(err, ErrDuplicateTag) {
			return nil, err
		}
		lastErr = err
		m.logger.Warn("tag collision, retrying",
			"device_id", d.ID, "tag", d.NameTag, "attempt", attempt)
	}
	return nil, fmt.Errorf("deriving tag after %d attempts: %w", tagAttempts, lastErr)
}

// GetDevice retrieves a device by ID.
func (m *Manager) GetDevice(ctx context.Context, id string) (*Device, error) {
	return m.repo.GetByID(ctx, id)
}

// GetDeviceMetrics retrieves a device and computes its derived metrics.
func (m *Manager) GetDeviceMetrics(ctx context.Context, id string) (*Device, Metrics, error) {
	d, err := m.repo.GetByID(ctx, id)
	if err != nil {
		return nil, Metrics{}, err
	}
	return d, ComputeMetrics(d, m.now()), nil
}

// UpdateDevice modifies an existing device's editable fields.
//
// The tag is re-derived whenever the patch changes the category or
// moves the device to a different school. A school move goes through
// the same transactional reassign path as AssignToSchool; the field
// update lands first, so a combined category+school patch is retagged
// once, in the target scope and with the new prefix.
func (m *Manager) UpdateDevice(ctx context.Context, d *Device) (*Device, error) {
	if err := ValidateDevice(d); err != nil {
		return nil, err
	}

	existing, err := m.repo.GetByID(ctx, d.ID)
	if err != nil {
		return nil, err
	}

	target := d.SchoolID
	schoolChanged := !sameSchool(target, existing.SchoolID)
	targetScope := ScopeDefault
	if schoolChanged && target != nil {
		district, err := m.schools.DistrictByID(ctx, *target)
		if err != nil {
			return nil, fmt.Errorf("resolving school %s: %w", *target, err)
		}
		targetScope = DistrictCode(district)
	}

	d.SchoolID = existing.SchoolID
	d.NameTag = existing.NameTag
	d.LastSeenAt = existing.LastSeenAt

	if schoolChanged {
		if err := m.repo.Update(ctx, d); err != nil {
			return nil, err
		}
		if target == nil {
			moved, err := m.repo.Reassign(ctx, d.ID, nil, ScopeDefault)
			if err != nil {
				return nil, err
			}
			m.logger.Info("device unassigned", "device_id", d.ID, "tag", moved.NameTag)
			return moved, nil
		}
		return m.reassign(ctx, d.ID, target, targetScope)
	}

	if d.Category == existing.Category {
		if err := m.repo.Update(ctx, d); err != nil {
			return nil, err
		}
		return d, nil
	}

	scope := ScopeDefault
	if existing.SchoolID != nil {
		district, err := m.schools.DistrictByID(ctx, *existing.SchoolID)
		if err != nil {
			return nil, fmt.Errorf("resolving school %s: %w", *existing.SchoolID, err)
		}
		scope = DistrictCode(district)
	}
	prefix := CategoryPrefix(d.Category)

	if existing.SchoolID == nil {
		d.NameTag = DefaultTag(d.Category)
		if err := m.repo.Update(ctx, d); err != nil {
			return nil, err
		}
		m.logger.Info("device retagged",
			"device_id", d.ID, "old_tag", existing.NameTag, "new_tag", d.NameTag)
		return d, nil
	}

	var lastErr error
	for attempt := 1; attempt <= tagAttempts; attempt++ {
		seq, err := m.repo.MaxTagSequence(ctx, prefix, scope)
		if err != nil {
			return nil, err
		}
		d.NameTag = FormatTag(prefix, scope, seq+1)

		err = m.repo.Update(ctx, d)
		if err == nil {
			m.logger.Info("device retagged",
				"device_id", d.ID, "old_tag", existing.NameTag, "new_tag", d.NameTag)
			return d, nil
		}
		if !errors.Is(err, ErrDuplicateTag) {
			return nil, err
		}
		lastErr = err
		m.logger.Warn("tag collision, retrying",
			"device_id", d.ID, "tag", d.NameTag, "attempt", attempt)
	}
	return nil, fmt.Errorf("deriving tag after %d attempts: %w", tagAttempts, lastErr)
}

// AssignToSchool moves a device to a school and issues it a new tag in
// the school's district scope. The tag and the assignment are written
// in one transaction.
func (m *Manager) AssignToSchool(ctx context.Context, deviceID, schoolID string) (*Device, error) {
	district, err := m.schools.DistrictByID(ctx, schoolID)
	if err != nil {
		return nil, fmt.Errorf("resolving school %s: %w", schoolID, err)
	}
	return m.reassign(ctx, deviceID, &schoolID, DistrictCode(district))
}

// Unassign returns a device to the unassigned pool under the default
// scope. The default tag is shared, not sequenced, so a collision with
// another unassigned device of the same category is returned as
// ErrDuplicateTag rather than retried.
func (m *Manager) Unassign(ctx context.Context, deviceID string) (*Device, error) {
	d, err := m.repo.Reassign(ctx, deviceID, nil, ScopeDefault)
	if err != nil {
		return nil, err
	}
	m.logger.Info("device unassigned", "device_id", deviceID, "tag", d.NameTag)
	return d, nil
}

func (m *Manager) reassign(ctx context.Context, deviceID string, schoolID *string, scope string) (*Device, error) {
	var lastErr error
	for attempt := 1; attempt <= tagAttempts; attempt++ {
		d, err := m.repo.Reassign(ctx, deviceID, schoolID, scope)
		if err == nil {
			m.logger.Info("device reassigned",
				"device_id", deviceID, "tag", d.NameTag, "scope", scope)
			return d, nil
		}
		if !errors.Is(err, ErrDuplicateTag) {
			return nil, err
		}
		lastErr = err
		m.logger.Warn("tag collision, retrying",
			"device_id", deviceID, "scope", scope, "attempt", attempt)
	}
	return nil, fmt.Errorf("deriving tag after %d attempts: %w", tagAttempts, lastErr)
}

// sameSchool compares two optional school IDs, treating nil as the
// unassigned pool.
func sameSchool(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// BulkCreate creates a batch of devices, collecting a per-item outcome
// for each. One bad item never aborts the rest of the batch.
func (m *Manager) BulkCreate(ctx context.Context, devices []Device) []BulkResult {
	results := make([]BulkResult, 0, len(devices))
	for i := range devices {
		d := &devices[i]
		created, err := m.CreateDevice(ctx, d)
		res := BulkResult{SerialNumber: d.SerialNumber, Err: err}
		if err == nil {
			res.ID = created.ID
			res.NameTag = created.NameTag
		}
		results = append(results, res)
	}
	return results
}

// BulkAssign assigns a batch of devices to one school, collecting a
// per-item outcome for each.
func (m *Manager) BulkAssign(ctx context.Context, deviceIDs []string, schoolID string) []BulkResult {
	results := make([]BulkResult, 0, len(deviceIDs))
	for _, id := range deviceIDs {
		d, err := m.AssignToSchool(ctx, id, schoolID)
		res := BulkResult{ID: id, Err: err}
		if err == nil {
			res.SerialNumber = d.SerialNumber
			res.NameTag = d.NameTag
		}
		results = append(results, res)
	}
	return results
}

// DeleteDevice removes a device permanently.
func (m *Manager) DeleteDevice(ctx context.Context, id string) error {
	if err := m.repo.Delete(ctx, id); err != nil {
		return err
	}
	m.logger.Info("device deleted", "device_id", id)
	return nil
}

// RecordHeartbeat marks a device as seen. Unknown serials return
// ErrNotFound so ingest loops can drop stray traffic quietly.
func (m *Manager) RecordHeartbeat(ctx context.Context, serial string, seenAt time.Time) error {
	return m.repo.UpdateLastSeen(ctx, serial, seenAt)
}

// Stats computes fleet-wide statistics at the current instant.
func (m *Manager) Stats(ctx context.Context) (*FleetStats, error) {
	devices, err := m.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	now := m.now()
	stats := &FleetStats{
		Total:      len(devices),
		ByStatus:   make(map[Status]int),
		ByCategory: make(map[Category]int),
	}
	for i := range devices {
		d := &devices[i]
		stats.ByStatus[d.Status]++
		stats.ByCategory[d.Category]++
		stats.PurchaseValue += d.PurchaseCost
		stats.BookValue += DepreciationValue(d, now)
		if IsOnline(d, now) {
			stats.Online++
		}
		if d.SchoolID != nil {
			stats.Assigned++
		}
	}
	return stats, nil
}
