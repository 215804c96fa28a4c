package school

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for school persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetByID retrieves a school by its unique identifier.
	// Returns ErrNotFound if the school does not exist.
	GetByID(ctx context.Context, id string) (*School, error)

	// GetByCode retrieves a school by its directory code.
	// Returns ErrNotFound if no school carries the code.
	GetByCode(ctx context.Context, code string) (*School, error)

	// List retrieves all schools ordered by name.
	List(ctx context.Context) ([]School, error)

	// ListByDistrict retrieves all schools in a district.
	ListByDistrict(ctx context.Context, district string) ([]School, error)

	// Create inserts a new school.
	// Returns ErrDuplicateCode if the code is already taken.
	Create(ctx context.Context, s *School) error

	// Update modifies an existing school.
	// Returns ErrNotFound if the school does not exist.
	Update(ctx context.Context, s *School) error

	// Delete removes a school by ID. Devices assigned to the school are
	// removed by the FK cascade on the devices table.
	// Returns ErrNotFound if the school does not exist.
	Delete(ctx context.Context, id string) error

	// Count returns the number of schools in the directory.
	Count(ctx context.Context) (int, error)

	// DistrictByID returns the district of a school without loading the
	// full record. Returns ErrNotFound if the school does not exist.
	DistrictByID(ctx context.Context, id string) (string, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed school repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const schoolColumns = `id, name, code, province, district, sector, cell, village,
	type, status, owner_user_id, created_at, updated_at`

// GetByID retrieves a school by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*School, error) {
	query := `SELECT ` + schoolColumns + ` FROM schools WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, id)
	s, err := scanSchool(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting school %s: %w", id, err)
	}
	return s, nil
}

// GetByCode retrieves a school by its directory code.
func (r *SQLiteRepository) GetByCode(ctx context.Context, code string) (*School, error) {
	query := `SELECT ` + schoolColumns + ` FROM schools WHERE code = ?`
	row := r.db.QueryRowContext(ctx, query, code)
	s, err := scanSchool(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting school by code %s: %w", code, err)
	}
	return s, nil
}

// List retrieves all schools ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]School, error) {
	query := `SELECT ` + schoolColumns + ` FROM schools ORDER BY name`
	return r.querySchools(ctx, query)
}

// ListByDistrict retrieves all schools in a district.
func (r *SQLiteRepository) ListByDistrict(ctx context.Context, district string) ([]School, error) {
	query := `SELECT ` + schoolColumns + ` FROM schools WHERE district = ? ORDER BY name`
	return r.querySchools(ctx, query, district)
}

// Create inserts a new school.
func (r *SQLiteRepository) Create(ctx context.Context, s *School) error {
	query := `INSERT INTO schools (id, name, code, province, district, sector,
		cell, village, type, status, owner_user_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.Name, s.Code, s.Province, s.District, s.Sector,
		s.Cell, s.Village, string(s.Type), string(s.Status), nullStr(s.OwnerUserID))
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateCode, s.Code)
		}
		return fmt.Errorf("inserting school %s: %w", s.ID, err)
	}
	return nil
}

// Update modifies an existing school.
func (r *SQLiteRepository) Update(ctx context.Context, s *School) error {
	query := `UPDATE schools SET name = ?, code = ?, province = ?, district = ?,
		sector = ?, cell = ?, village = ?, type = ?, status = ?, owner_user_id = ?,
		updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		WHERE id = ?`
	result, err := r.db.ExecContext(ctx, query,
		s.Name, s.Code, s.Province, s.District,
		s.Sector, s.Cell, s.Village, string(s.Type), string(s.Status),
		nullStr(s.OwnerUserID), s.ID)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateCode, s.Code)
		}
		return fmt.Errorf("updating school %s: %w", s.ID, err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // SQLite always supports RowsAffected
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a school by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM schools WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting school %s: %w", id, err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // SQLite always supports RowsAffected
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Count returns the number of schools in the directory.
func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schools").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting schools: %w", err)
	}
	return count, nil
}

// DistrictByID returns the district of a school.
func (r *SQLiteRepository) DistrictByID(ctx context.Context, id string) (string, error) {
	var district string
	err := r.db.QueryRowContext(ctx, "SELECT district FROM schools WHERE id = ?", id).Scan(&district)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("getting district for school %s: %w", id, err)
	}
	return district, nil
}

// querySchools executes a query and returns a slice of School.
func (r *SQLiteRepository) querySchools(ctx context.Context, query string, args ...any) ([]School, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying schools: %w", err)
	}
	defer rows.Close()

	var schools []School
	for rows.Next() {
		s, err := scanSchoolRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning school row: %w", err)
		}
		schools = append(schools, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating school rows: %w", err)
	}
	return schools, nil
}

// scanSchool scans a single row into a School (for QueryRow).
func scanSchool(row *sql.Row) (*School, error) {
	var s School
	var typ, status string
	var owner sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&s.ID, &s.Name, &s.Code, &s.Province, &s.District,
		&s.Sector, &s.Cell, &s.Village, &typ, &status, &owner,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	s.Type = Type(typ)
	s.Status = Status(status)
	if owner.Valid {
		s.OwnerUserID = &owner.String
	}
	s.CreatedAt = parseTime(createdAt)
	s.UpdatedAt = parseTime(updatedAt)
	return &s, nil
}

// scanSchoolRow scans a school from a Rows cursor.
func scanSchoolRow(rows *sql.Rows) (*School, error) {
	var s School
	var typ, status string
	var owner sql.NullString
	var createdAt, updatedAt string

	err := rows.Scan(&s.ID, &s.Name, &s.Code, &s.Province, &s.District,
		&s.Sector, &s.Cell, &s.Village, &typ, &status, &owner,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	s.Type = Type(typ)
	s.Status = Status(status)
	if owner.Valid {
		s.OwnerUserID = &owner.String
	}
	s.CreatedAt = parseTime(createdAt)
	s.UpdatedAt = parseTime(updatedAt)
	return &s, nil
}

// nullStr converts a *string to a sql.NullString for nullable columns.
func nullStr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
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

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
