package automation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for rule persistence.
// This abstraction allows different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// Rule CRUD
	GetByID(ctx context.Context, id string) (*Rule, error)
	List(ctx context.Context) ([]Rule, error)
	ListByKind(ctx context.Context, kind Kind) ([]Rule, error)
	Create(ctx context.Context, rule *Rule) error
	Update(ctx context.Context, rule *Rule) error
	Delete(ctx context.Context, id string) error

	// UpdateLastRun denormalises the latest outcome onto the rule row.
	UpdateLastRun(ctx context.Context, id string, at time.Time, result string) error

	// Run logging
	CreateRun(ctx context.Context, run *RuleRun) error
	UpdateRun(ctx context.Context, run *RuleRun) error
	GetRun(ctx context.Context, id string) (*RuleRun, error)
	ListRuns(ctx context.Context, ruleID string, limit int) ([]RuleRun, error)
}

// ruleColumns is the SELECT column list for rule queries.
const ruleColumns = `id, name, description, kind, enabled, schedule, parameters,
			last_run_at, last_result, created_at, updated_at`

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// GetByID retrieves a rule by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM automation_rules WHERE id = ?`

	rule, err := scanRule(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRuleNotFound
		}
		return nil, fmt.Errorf("querying rule by id: %w", err)
	}
	return rule, nil
}

// List retrieves all rules ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM automation_rules ORDER BY name`
	return r.queryRules(ctx, query)
}

// ListByKind retrieves all rules of a specific kind.
func (r *SQLiteRepository) ListByKind(ctx context.Context, kind Kind) ([]Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM automation_rules WHERE kind = ? ORDER BY name`
	return r.queryRules(ctx, query, string(kind))
}

// Create inserts a new rule.
func (r *SQLiteRepository) Create(ctx context.Context, rule *Rule) error {
	paramsJSON, err := marshalParams(rule.Parameters)
	if err != nil {
		return fmt.Errorf("marshalling parameters: %w", err)
	}

	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	query := `
		INSERT INTO automation_rules (
			id, name, description, kind, enabled, schedule, parameters,
			last_run_at, last_result, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		rule.ID,
		rule.Name,
		nullableString(rule.Description),
		string(rule.Kind),
		boolToInt(rule.Enabled),
		rule.Schedule,
		paramsJSON,
		nullableTime(rule.LastRunAt),
		nullableString(rule.LastResult),
		rule.CreatedAt.Format(time.RFC3339),
		rule.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrRuleExists
		}
		return fmt.Errorf("inserting rule: %w", err)
	}
	return nil
}

// Update modifies an existing rule.
func (r *SQLiteRepository) Update(ctx context.Context, rule *Rule) error {
	paramsJSON, err := marshalParams(rule.Parameters)
	if err != nil {
		return fmt.Errorf("marshalling parameters: %w", err)
	}

	rule.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE automation_rules SET
			name = ?, description = ?, kind = ?, enabled = ?, schedule = ?,
			parameters = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		rule.Name,
		nullableString(rule.Description),
		string(rule.Kind),
		boolToInt(rule.Enabled),
		rule.Schedule,
		paramsJSON,
		rule.UpdatedAt.Format(time.RFC3339),
		rule.ID,
	)
	if err != nil {
		return fmt.Errorf("updating rule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// Delete removes a rule by ID. Run history cascades via FK.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM automation_rules WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting rule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// UpdateLastRun denormalises the latest run outcome onto the rule.
func (r *SQLiteRepository) UpdateLastRun(ctx context.Context, id string, at time.Time, result string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE automation_rules SET last_run_at = ?, last_result = ? WHERE id = ?`,
		at.UTC().Format(time.RFC3339), result, id)
	if err != nil {
		return fmt.Errorf("updating last run: %w", err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// CreateRun inserts a new run record.
func (r *SQLiteRepository) CreateRun(ctx context.Context, run *RuleRun) error {
	query := `
		INSERT INTO rule_runs (
			id, rule_id, triggered_at, completed_at, trigger_type, status,
			matched, acted, message, error, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		run.ID,
		run.RuleID,
		run.TriggeredAt.Format(time.RFC3339),
		nullableTime(run.CompletedAt),
		run.Trigger,
		string(run.Status),
		run.Matched,
		run.Acted,
		run.Message,
		nullableString(run.Error),
		run.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	return nil
}

// UpdateRun updates an existing run record.
func (r *SQLiteRepository) UpdateRun(ctx context.Context, run *RuleRun) error {
	query := `
		UPDATE rule_runs SET
			completed_at = ?, status = ?, matched = ?, acted = ?,
			message = ?, error = ?, duration_ms = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		nullableTime(run.CompletedAt),
		string(run.Status),
		run.Matched,
		run.Acted,
		run.Message,
		nullableString(run.Error),
		run.DurationMS,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("updating run: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrRunNotFound
	}
	return nil
}

// GetRun retrieves a run by ID.
func (r *SQLiteRepository) GetRun(ctx context.Context, id string) (*RuleRun, error) {
	query := `
		SELECT id, rule_id, triggered_at, completed_at, trigger_type, status,
			matched, acted, message, error, duration_ms
		FROM rule_runs
		WHERE id = ?`

	run, err := scanRun(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("querying run by id: %w", err)
	}
	return run, nil
}

// ListRuns retrieves the most recent runs for a rule, newest first.
func (r *SQLiteRepository) ListRuns(ctx context.Context, ruleID string, limit int) ([]RuleRun, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, rule_id, triggered_at, completed_at, trigger_type, status,
			matched, acted, message, error, duration_ms
		FROM rule_runs
		WHERE rule_id = ?
		ORDER BY triggered_at DESC
		LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, ruleID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []RuleRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating run rows: %w", err)
	}
	return runs, nil
}

// queryRules executes a query and returns a slice of Rule.
func (r *SQLiteRepository) queryRules(ctx context.Context, query string, args ...any) ([]Rule, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying rules: %w", err)
	}
	defer rows.Close()

	var rules []Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning rule row: %w", err)
		}
		rules = append(rules, *rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rule rows: %w", err)
	}
	return rules, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanRule scans a full rule row.
func scanRule(row rowScanner) (*Rule, error) {
	var rule Rule
	var kind string
	var enabled int
	var description, lastResult, lastRunAt, params sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&rule.ID, &rule.Name, &description, &kind, &enabled,
		&rule.Schedule, &params, &lastRunAt, &lastResult, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	rule.Kind = Kind(kind)
	rule.Enabled = enabled != 0
	if description.Valid {
		rule.Description = &description.String
	}
	if lastResult.Valid {
		rule.LastResult = &lastResult.String
	}
	if lastRunAt.Valid {
		if t, err := time.Parse(time.RFC3339, lastRunAt.String); err == nil {
			rule.LastRunAt = &t
		}
	}
	if params.Valid && params.String != "" {
		if err := json.Unmarshal([]byte(params.String), &rule.Parameters); err != nil {
			return nil, fmt.Errorf("decoding parameters: %w", err)
		}
	}
	rule.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	rule.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &rule, nil
}

// scanRun scans a full run row.
func scanRun(row rowScanner) (*RuleRun, error) {
	var run RuleRun
	var status string
	var completedAt, errMsg sql.NullString
	var triggeredAt string
	var durationMS sql.NullInt64

	err := row.Scan(&run.ID, &run.RuleID, &triggeredAt, &completedAt,
		&run.Trigger, &status, &run.Matched, &run.Acted, &run.Message,
		&errMsg, &durationMS)
	if err != nil {
		return nil, err
	}

	run.Status = RunStatus(status)
	run.TriggeredAt, _ = time.Parse(time.RFC3339, triggeredAt)
	if completedAt.Valid {
		if t, err := time.Parse(time.RFC3339, completedAt.String); err == nil {
			run.CompletedAt = &t
		}
	}
	if errMsg.Valid {
		run.Error = &errMsg.String
	}
	if durationMS.Valid {
		d := int(durationMS.Int64)
		run.DurationMS = &d
	}
	return &run, nil
}

// marshalParams encodes handler parameters as JSON, NULL when empty.
func marshalParams(m map[string]any) (sql.NullString, error) {
	if len(m) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

// nullableString converts a *string to sql.NullString.
func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// nullableTime converts a *time.Time to a nullable RFC 3339 string.
func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

// boolToInt converts a bool for SQLite integer columns.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
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
