package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for device persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetByID retrieves a device by its unique identifier.
	// Returns ErrNotFound if the device does not exist.
	GetByID(ctx context.Context, id string) (*Device, error)

	// GetBySerial retrieves a device by its serial number.
	// Returns ErrNotFound if no device carries the serial.
	GetBySerial(ctx context.Context, serial string) (*Device, error)

	// List retrieves all devices ordered by name tag.
	List(ctx context.Context) ([]Device, error)

	// ListBySchool retrieves all devices assigned to a school.
	ListBySchool(ctx context.Context, schoolID string) ([]Device, error)

	// ListByCategory retrieves all devices of a category.
	ListByCategory(ctx context.Context, category Category) ([]Device, error)

	// ListByStatus retrieves all devices with a given status.
	ListByStatus(ctx context.Context, status Status) ([]Device, error)

	// Search retrieves devices whose name tag, serial number or model
	// contains the query string, case-insensitively.
	Search(ctx context.Context, query string) ([]Device, error)

	// Create inserts a new device.
	// Returns ErrDuplicateSerial if the serial number is taken and
	// ErrDuplicateTag if the name tag is taken.
	Create(ctx context.Context, d *Device) error

	// Update modifies an existing device.
	// Returns ErrNotFound if the device does not exist.
	Update(ctx context.Context, d *Device) error

	// Delete removes a device by ID.
	// Returns ErrNotFound if the device does not exist.
	Delete(ctx context.Context, id string) error

	// MaxTagSequence returns the highest sequence number among tags
	// already issued for the prefix/scope pair, or 0 when none exist.
	MaxTagSequence(ctx context.Context, prefix, scope string) (int, error)

	// Reassign moves a device to a new school (nil for the unassigned
	// pool) and issues it a fresh name tag, atomically. In a district
	// scope the sequence is derived inside the same transaction that
	// writes the tag; in the default scope the device takes the shared
	// literal default tag for its category.
	// Returns ErrNotFound if the device does not exist and
	// ErrDuplicateTag if a concurrent writer took the tag first.
	Reassign(ctx context.Context, id string, schoolID *string, scope string) (*Device, error)

	// UpdateLastSeen records a heartbeat for the device with the given
	// serial number. Returns ErrNotFound for unknown serials.
	UpdateLastSeen(ctx context.Context, serial string, seenAt time.Time) error

	// Count returns the total number of devices.
	Count(ctx context.Context) (int, error)

	// CountByStatus returns device counts grouped by status.
	CountByStatus(ctx context.Context) (map[Status]int, error)

	// CountByCategory returns device counts grouped by category.
	CountByCategory(ctx context.Context) (map[Category]int, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed device repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const deviceColumns = `id, serial_number, name_tag, category, status, condition,
	model, manufacturer, purchase_cost, purchase_date, warranty_expiry,
	last_seen_at, last_maintenance_date, next_maintenance_date, school_id,
	specification, software, maintenance_records, created_at, updated_at`

// GetByID retrieves a device by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE id = ?`
	d, err := scanDevice(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting device %s: %w", id, err)
	}
	return d, nil
}

// GetBySerial retrieves a device by its serial number.
func (r *SQLiteRepository) GetBySerial(ctx context.Context, serial string) (*Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE serial_number = ?`
	d, err := scanDevice(r.db.QueryRowContext(ctx, query, serial))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting device by serial %s: %w", serial, err)
	}
	return d, nil
}

// List retrieves all devices ordered by name tag.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices ORDER BY name_tag`
	return r.queryDevices(ctx, query)
}

// ListBySchool retrieves all devices assigned to a school.
func (r *SQLiteRepository) ListBySchool(ctx context.Context, schoolID string) ([]Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE school_id = ? ORDER BY name_tag`
	return r.queryDevices(ctx, query, schoolID)
}

// ListByCategory retrieves all devices of a category.
func (r *SQLiteRepository) ListByCategory(ctx context.Context, category Category) ([]Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE category = ? ORDER BY name_tag`
	return r.queryDevices(ctx, query, string(category))
}

// ListByStatus retrieves all devices with a given status.
func (r *SQLiteRepository) ListByStatus(ctx context.Context, status Status) ([]Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE status = ? ORDER BY name_tag`
	return r.queryDevices(ctx, query, string(status))
}

// Search retrieves devices matching the query string.
func (r *SQLiteRepository) Search(ctx context.Context, query string) ([]Device, error) {
	pattern := "%" + escapeLike(query) + "%"
	q := `SELECT ` + deviceColumns + ` FROM devices
		WHERE name_tag LIKE ? ESCAPE '\'
		   OR serial_number LIKE ? ESCAPE '\'
		   OR model LIKE ? ESCAPE '\'
		ORDER BY name_tag`
	return r.queryDevices(ctx, q, pattern, pattern, pattern)
}

// Create inserts a new device.
func (r *SQLiteRepository) Create(ctx context.Context, d *Device) error {
	query := `INSERT INTO devices (id, serial_number, name_tag, category, status,
		condition, model, manufacturer, purchase_cost, purchase_date,
		warranty_expiry, last_seen_at, last_maintenance_date,
		next_maintenance_date, school_id, specification, software,
		maintenance_records)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	spec, err := marshalBlob(d.Specification)
	if err != nil {
		return fmt.Errorf("encoding specification for device %s: %w", d.ID, err)
	}
	software, err := marshalBlob(d.Software)
	if err != nil {
		return fmt.Errorf("encoding software for device %s: %w", d.ID, err)
	}
	records, err := marshalRecords(d.MaintenanceRecords)
	if err != nil {
		return fmt.Errorf("encoding maintenance records for device %s: %w", d.ID, err)
	}

	_, err = r.db.ExecContext(ctx, query,
		d.ID, d.SerialNumber, d.NameTag, string(d.Category), string(d.Status),
		string(d.Condition), d.Model, d.Manufacturer, d.PurchaseCost,
		nullTime(d.PurchaseDate), nullTime(d.WarrantyExpiry), nullTime(d.LastSeenAt),
		nullTime(d.LastMaintenanceDate), nullTime(d.NextMaintenanceDate),
		nullStr(d.SchoolID), spec, software, records)
	if err != nil {
		if isUniqueConstraintError(err) {
			return classifyDuplicate(err, d)
		}
		return fmt.Errorf("inserting device %s: %w", d.ID, err)
	}
	return nil
}

// Update modifies an existing device.
func (r *SQLiteRepository) Update(ctx context.Context, d *Device) error {
	query := `UPDATE devices SET serial_number = ?, name_tag = ?, category = ?,
		status = ?, condition = ?, model = ?, manufacturer = ?,
		purchase_cost = ?, purchase_date = ?, warranty_expiry = ?,
		last_seen_at = ?, last_maintenance_date = ?, next_maintenance_date = ?,
		school_id = ?, specification = ?, software = ?, maintenance_records = ?,
		updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		WHERE id = ?`

	spec, err := marshalBlob(d.Specification)
	if err != nil {
		return fmt.Errorf("encoding specification for device %s: %w", d.ID, err)
	}
	software, err := marshalBlob(d.Software)
	if err != nil {
		return fmt.Errorf("encoding software for device %s: %w", d.ID, err)
	}
	records, err := marshalRecords(d.MaintenanceRecords)
	if err != nil {
		return fmt.Errorf("encoding maintenance records for device %s: %w", d.ID, err)
	}

	result, err := r.db.ExecContext(ctx, query,
		d.SerialNumber, d.NameTag, string(d.Category), string(d.Status),
		string(d.Condition), d.Model, d.Manufacturer, d.PurchaseCost,
		nullTime(d.PurchaseDate), nullTime(d.WarrantyExpiry), nullTime(d.LastSeenAt),
		nullTime(d.LastMaintenanceDate), nullTime(d.NextMaintenanceDate),
		nullStr(d.SchoolID), spec, software, records, d.ID)
	if err != nil {
		if isUniqueConstraintError(err) {
			return classifyDuplicate(err, d)
		}
		return fmt.Errorf("updating device %s: %w", d.ID, err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // SQLite always supports RowsAffected
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a device by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM devices WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting device %s: %w", id, err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // SQLite always supports RowsAffected
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// MaxTagSequence returns the highest issued sequence for a prefix/scope.
// Sequences are parsed in Go rather than with substr so tags that have
// grown past three digits still sort correctly.
func (r *SQLiteRepository) MaxTagSequence(ctx context.Context, prefix, scope string) (int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT name_tag FROM devices WHERE name_tag LIKE ?`, TagPattern(prefix, scope))
	if err != nil {
		return 0, fmt.Errorf("querying tag sequences for %s/%s: %w", prefix, scope, err)
	}
	defer rows.Close()

	maxSeq := 0
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return 0, fmt.Errorf("scanning tag row: %w", err)
		}
		if seq := ParseTagSequence(tag); seq > maxSeq {
			maxSeq = seq
		}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterating tag rows: %w", err)
	}
	return maxSeq, nil
}

// Reassign moves a device and issues its new tag in one transaction.
func (r *SQLiteRepository) Reassign(ctx context.Context, id string, schoolID *string, scope string) (*Device, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning reassign transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var category string
	err = tx.QueryRowContext(ctx, "SELECT category FROM devices WHERE id = ?", id).Scan(&category)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading device %s for reassign: %w", id, err)
	}

	prefix := CategoryPrefix(Category(category))

	var newTag string
	if scope == ScopeDefault {
		// The default scope does not sequence: every unassigned device
		// of a category shares the literal default tag, and a second
		// one collides on the name_tag index.
		newTag = DefaultTag(Category(category))
	} else {
		rows, err := tx.QueryContext(ctx,
			`SELECT name_tag FROM devices WHERE name_tag LIKE ?`, TagPattern(prefix, scope))
		if err != nil {
			return nil, fmt.Errorf("querying tag sequences for %s/%s: %w", prefix, scope, err)
		}
		maxSeq := 0
		for rows.Next() {
			var tag string
			if err := rows.Scan(&tag); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scanning tag row: %w", err)
			}
			if seq := ParseTagSequence(tag); seq > maxSeq {
				maxSeq = seq
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("iterating tag rows: %w", err)
		}
		rows.Close()
		newTag = FormatTag(prefix, scope, maxSeq+1)
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE devices SET school_id = ?, name_tag = ?,
			updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
			WHERE id = ?`,
		nullStr(schoolID), newTag, id)
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTag, newTag)
		}
		return nil, fmt.Errorf("reassigning device %s: %w", id, err)
	}

	query := `SELECT ` + deviceColumns + ` FROM devices WHERE id = ?`
	d, err := scanDevice(tx.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("reading device %s after reassign: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing reassign for device %s: %w", id, err)
	}
	return d, nil
}

// UpdateLastSeen records a heartbeat for the device.
func (r *SQLiteRepository) UpdateLastSeen(ctx context.Context, serial string, seenAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE devices SET last_seen_at = ?,
			updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
			WHERE serial_number = ?`,
		seenAt.UTC().Format(time.RFC3339), serial)
	if err != nil {
		return fmt.Errorf("updating last seen for serial %s: %w", serial, err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // SQLite always supports RowsAffected
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Count returns the total number of devices.
func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM devices").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting devices: %w", err)
	}
	return count, nil
}

// CountByStatus returns device counts grouped by status.
func (r *SQLiteRepository) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT status, COUNT(*) FROM devices GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("counting devices by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning status count: %w", err)
		}
		counts[Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating status counts: %w", err)
	}
	return counts, nil
}

// CountByCategory returns device counts grouped by category.
func (r *SQLiteRepository) CountByCategory(ctx context.Context) (map[Category]int, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT category, COUNT(*) FROM devices GROUP BY category")
	if err != nil {
		return nil, fmt.Errorf("counting devices by category: %w", err)
	}
	defer rows.Close()

	counts := make(map[Category]int)
	for rows.Next() {
		var category string
		var n int
		if err := rows.Scan(&category, &n); err != nil {
			return nil, fmt.Errorf("scanning category count: %w", err)
		}
		counts[Category(category)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating category counts: %w", err)
	}
	return counts, nil
}

// queryDevices executes a query and returns a slice of Device.
func (r *SQLiteRepository) queryDevices(ctx context.Context, query string, args ...any) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device row: %w", err)
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating device rows: %w", err)
	}
	return devices, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanDevice scans a full device row.
func scanDevice(row rowScanner) (*Device, error) {
	var d Device
	var category, status, condition string
	var manufacturer sql.NullString
	var purchaseDate, warrantyExpiry, lastSeenAt sql.NullString
	var lastMaint, nextMaint sql.NullString
	var schoolID sql.NullString
	var spec, software, records sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&d.ID, &d.SerialNumber, &d.NameTag, &category, &status,
		&condition, &d.Model, &manufacturer, &d.PurchaseCost, &purchaseDate,
		&warrantyExpiry, &lastSeenAt, &lastMaint, &nextMaint, &schoolID,
		&spec, &software, &records, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	d.Category = Category(category)
	d.Status = Status(status)
	d.Condition = Condition(condition)
	if manufacturer.Valid {
		d.Manufacturer = manufacturer.String
	}
	d.PurchaseDate = parseNullTime(purchaseDate)
	d.WarrantyExpiry = parseNullTime(warrantyExpiry)
	d.LastSeenAt = parseNullTime(lastSeenAt)
	d.LastMaintenanceDate = parseNullTime(lastMaint)
	d.NextMaintenanceDate = parseNullTime(nextMaint)
	if schoolID.Valid {
		d.SchoolID = &schoolID.String
	}

	if spec.Valid && spec.String != "" {
		if err := json.Unmarshal([]byte(spec.String), &d.Specification); err != nil {
			return nil, fmt.Errorf("decoding specification: %w", err)
		}
	}
	if software.Valid && software.String != "" {
		if err := json.Unmarshal([]byte(software.String), &d.Software); err != nil {
			return nil, fmt.Errorf("decoding software: %w", err)
		}
	}
	if records.Valid && records.String != "" {
		if err := json.Unmarshal([]byte(records.String), &d.MaintenanceRecords); err != nil {
			return nil, fmt.Errorf("decoding maintenance records: %w", err)
		}
	}

	d.CreatedAt = parseTime(createdAt)
	d.UpdatedAt = parseTime(updatedAt)
	return &d, nil
}

// classifyDuplicate maps a unique violation to the sentinel for the
// column that collided. SQLite names the failing index in the message.
func classifyDuplicate(err error, d *Device) error {
	msg := err.Error()
	if strings.Contains(msg, "serial_number") {
		return fmt.Errorf("%w: %s", ErrDuplicateSerial, d.SerialNumber)
	}
	if strings.Contains(msg, "name_tag") {
		return fmt.Errorf("%w: %s", ErrDuplicateTag, d.NameTag)
	}
	return fmt.Errorf("device %s: %w", d.ID, err)
}

// marshalBlob encodes a free-form attribute map as JSON, NULL when empty.
func marshalBlob(m map[string]any) (sql.NullString, error) {
	if len(m) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

// marshalRecords encodes maintenance history as JSON, NULL when empty.
func marshalRecords(records []MaintenanceRecord) (sql.NullString, error) {
	if len(records) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(records)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

// nullStr converts a *string to a sql.NullString for nullable columns.
func nullStr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// nullTime converts a *time.Time to a nullable RFC 3339 string.
func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

// parseNullTime parses a nullable ISO 8601 timestamp column.
func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	if t.IsZero() {
		return nil
	}
	return &t
}

// parseTime parses an ISO 8601 timestamp from SQLite.
func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t, err = time.Parse("2006-01-02T15:04:05Z", s)
		if err != nil {
			return time.Time{}
		}
	}
	return t
}

// escapeLike escapes LIKE wildcards in user-supplied search input.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	return strings.ReplaceAll(s, "_", `\_`)
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
