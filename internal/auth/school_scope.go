package auth

import (
	"context"
	"database/sql"
	"fmt"
)

// ScopeRepository defines the interface for resolving school-level visibility.
type ScopeRepository interface {
	GetOwnedSchoolIDs(ctx context.Context, userID string) ([]string, error)
	ResolveSchoolScope(ctx context.Context, user *User) (*SchoolScope, error)
}

// SQLiteScopeRepository implements ScopeRepository against the schools table.
// Scoping is derived from schools.owner_user_id rather than a separate grant
// table, so a school transfer updates visibility without extra bookkeeping.
type SQLiteScopeRepository struct {
	db *sql.DB
}

// NewScopeRepository creates a new SQLite-backed scope repository.
func NewScopeRepository(db *sql.DB) *SQLiteScopeRepository {
	return &SQLiteScopeRepository{db: db}
}

// GetOwnedSchoolIDs returns the IDs of all schools owned by a user.
func (r *SQLiteScopeRepository) GetOwnedSchoolIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id FROM schools WHERE owner_user_id = ? ORDER BY id", userID)
	if err != nil {
		return nil, fmt.Errorf("getting owned schools: %w", err)
	}
	defer rows.Close()

	var schoolIDs []string
	for rows.Next() {
		var schoolID string
		if err := rows.Scan(&schoolID); err != nil {
			return nil, fmt.Errorf("scanning school ID: %w", err)
		}
		schoolIDs = append(schoolIDs, schoolID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating school IDs: %w", err)
	}

	if schoolIDs == nil {
		schoolIDs = []string{}
	}
	return schoolIDs, nil
}

// ResolveSchoolScope resolves the school scope for a user request context.
// Coordinators and admins get nil (unrestricted). A school owner with no
// owned schools gets an empty scope: they can see nothing until a school
// is transferred to them.
func (r *SQLiteScopeRepository) ResolveSchoolScope(ctx context.Context, user *User) (*SchoolScope, error) {
	if !IsSchoolScoped(user.Role) {
		return nil, nil
	}

	schoolIDs, err := r.GetOwnedSchoolIDs(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	return &SchoolScope{SchoolIDs: schoolIDs}, nil
}
