package automation

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates an in-memory SQLite database with the rule tables.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE automation_rules (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT,
			kind TEXT NOT NULL,
			enabled INTEGER NOT NULL DEFAULT 1,
			schedule TEXT NOT NULL DEFAULT '',
			parameters TEXT,
			last_run_at TEXT,
			last_result TEXT,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;

		CREATE TABLE rule_runs (
			id TEXT PRIMARY KEY,
			rule_id TEXT NOT NULL REFERENCES automation_rules(id) ON DELETE CASCADE,
			triggered_at TEXT NOT NULL,
			completed_at TEXT,
			trigger_type TEXT NOT NULL,
			status TEXT NOT NULL,
			matched INTEGER NOT NULL DEFAULT 0,
			acted INTEGER NOT NULL DEFAULT 0,
			message TEXT NOT NULL DEFAULT '',
			error TEXT,
			duration_ms INTEGER
		) STRICT;
	`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func seedRule(t *testing.T, repo *SQLiteRepository, id string, kind Kind, enabled bool) *Rule {
	t.Helper()
	rule := &Rule{
		ID:       id,
		Name:     "rule " + id,
		Kind:     kind,
		Enabled:  enabled,
		Schedule: "0 6 * * *",
		Parameters: map[string]any{
			"ahead_days": 14,
		},
	}
	if err := repo.Create(context.Background(), rule); err != nil {
		t.Fatalf("seeding rule %s: %v", id, err)
	}
	return rule
}

func TestRepositoryRuleCRUD(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	seedRule(t, repo, "rule-001", KindOfflineDetection, true)

	got, err := repo.GetByID(ctx, "rule-001")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Kind != KindOfflineDetection {
		t.Errorf("Kind = %q, want offline_detection", got.Kind)
	}
	if !got.Enabled {
		t.Error("Enabled = false, want true")
	}
	if got.Parameters["ahead_days"] != float64(14) {
		t.Errorf("Parameters[ahead_days] = %v, want 14", got.Parameters["ahead_days"])
	}

	got.Name = "renamed"
	got.Enabled = false
	if err := repo.Update(ctx, got); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	updated, err := repo.GetByID(ctx, "rule-001")
	if err != nil {
		t.Fatalf("GetByID() after update error = %v", err)
	}
	if updated.Name != "renamed" || updated.Enabled {
		t.Errorf("after update: name=%q enabled=%v", updated.Name, updated.Enabled)
	}

	if err := repo.Delete(ctx, "rule-001"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := repo.GetByID(ctx, "rule-001"); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("GetByID() after delete error = %v, want ErrRuleNotFound", err)
	}
}

func TestRepositoryCreate_Duplicate(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))

	rule := seedRule(t, repo, "rule-dup", KindWarrantyAlert, true)
	err := repo.Create(context.Background(), rule)
	if !errors.Is(err, ErrRuleExists) {
		t.Errorf("Create() duplicate error = %v, want ErrRuleExists", err)
	}
}

func TestRepositoryListByKind(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	seedRule(t, repo, "rule-a", KindOfflineDetection, true)
	seedRule(t, repo, "rule-b", KindWarrantyAlert, true)
	seedRule(t, repo, "rule-c", KindOfflineDetection, false)

	all, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 3 {
		t.Errorf("List() returned %d rules, want 3", len(all))
	}

	offline, err := repo.ListByKind(ctx, KindOfflineDetection)
	if err != nil {
		t.Fatalf("ListByKind() error = %v", err)
	}
	if len(offline) != 2 {
		t.Errorf("ListByKind(offline_detection) returned %d rules, want 2", len(offline))
	}
}

func TestRepositoryUpdateLastRun(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	seedRule(t, repo, "rule-lr", KindAgingUpdate, true)

	at := time.Date(2026, 6, 15, 6, 0, 0, 0, time.UTC)
	if err := repo.UpdateLastRun(ctx, "rule-lr", at, "wrote 12 values"); err != nil {
		t.Fatalf("UpdateLastRun() error = %v", err)
	}

	got, err := repo.GetByID(ctx, "rule-lr")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.LastRunAt == nil || !got.LastRunAt.Equal(at) {
		t.Errorf("LastRunAt = %v, want %v", got.LastRunAt, at)
	}
	if got.LastResult == nil || *got.LastResult != "wrote 12 values" {
		t.Errorf("LastResult = %v, want 'wrote 12 values'", got.LastResult)
	}

	if err := repo.UpdateLastRun(ctx, "rule-missing", at, "x"); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("UpdateLastRun() unknown rule error = %v, want ErrRuleNotFound", err)
	}
}

func TestRepositoryRunLogging(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	seedRule(t, repo, "rule-run", KindMaintenanceReminder, true)

	run := &RuleRun{
		ID:          "run-001",
		RuleID:      "rule-run",
		TriggeredAt: time.Date(2026, 6, 15, 6, 0, 0, 0, time.UTC),
		Trigger:     "api",
		Status:      RunRunning,
	}
	if err := repo.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}

	completed := run.TriggeredAt.Add(2 * time.Second)
	duration := 2000
	run.CompletedAt = &completed
	run.Status = RunCompleted
	run.Matched = 5
	run.Acted = 5
	run.Message = "5 due within 7d, 2 overdue"
	run.DurationMS = &duration
	if err := repo.UpdateRun(ctx, run); err != nil {
		t.Fatalf("UpdateRun() error = %v", err)
	}

	got, err := repo.GetRun(ctx, "run-001")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if got.Status != RunCompleted || got.Matched != 5 {
		t.Errorf("run = %+v, want completed with 5 matched", got)
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(completed) {
		t.Errorf("CompletedAt = %v, want %v", got.CompletedAt, completed)
	}
	if got.DurationMS == nil || *got.DurationMS != 2000 {
		t.Errorf("DurationMS = %v, want 2000", got.DurationMS)
	}

	runs, err := repo.ListRuns(ctx, "rule-run", 10)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 1 {
		t.Errorf("ListRuns() returned %d runs, want 1", len(runs))
	}

	if _, err := repo.GetRun(ctx, "run-missing"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetRun() unknown run error = %v, want ErrRunNotFound", err)
	}
}

func TestRepositoryListRuns_NewestFirst(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	seedRule(t, repo, "rule-hist", KindOfflineDetection, true)

	base := time.Date(2026, 6, 15, 6, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		run := &RuleRun{
			ID:          GenerateID(),
			RuleID:      "rule-hist",
			TriggeredAt: base.Add(time.Duration(i) * time.Hour),
			Trigger:     "api",
			Status:      RunCompleted,
		}
		if err := repo.CreateRun(ctx, run); err != nil {
			t.Fatalf("CreateRun() error = %v", err)
		}
	}

	runs, err := repo.ListRuns(ctx, "rule-hist", 2)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("ListRuns() returned %d runs, want 2", len(runs))
	}
	if !runs[0].TriggeredAt.After(runs[1].TriggeredAt) {
		t.Error("ListRuns() not ordered newest first")
	}
}
