package device

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates an in-memory SQLite database with the devices table.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE devices (
			id TEXT PRIMARY KEY,
			serial_number TEXT NOT NULL,
			name_tag TEXT NOT NULL,
			category TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'active',
			condition TEXT NOT NULL DEFAULT 'good',
			model TEXT NOT NULL,
			manufacturer TEXT,
			purchase_cost REAL NOT NULL DEFAULT 0,
			purchase_date TEXT,
			warranty_expiry TEXT,
			last_seen_at TEXT,
			last_maintenance_date TEXT,
			next_maintenance_date TEXT,
			school_id TEXT,
			specification TEXT,
			software TEXT,
			maintenance_records TEXT,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;

		CREATE UNIQUE INDEX idx_devices_serial_number ON devices(serial_number);
		CREATE UNIQUE INDEX idx_devices_name_tag ON devices(name_tag);

		INSERT INTO devices (id, serial_number, name_tag, category, status, condition,
			model, purchase_cost, school_id) VALUES
			('dev-001', 'SN-AAA-001', 'RTB/LT/KIG/001', 'laptop', 'active', 'good',
				'ThinkPad T14', 850000, 'sch-001'),
			('dev-002', 'SN-AAA-002', 'RTB/LT/KIG/002', 'laptop', 'maintenance', 'fair',
				'ThinkPad T14', 850000, 'sch-001'),
			('dev-003', 'SN-BBB-001', 'RTB/PT/HUY/001', 'projector', 'active', 'good',
				'Epson EB-X06', 420000, 'sch-002'),
			('dev-004', 'SN-CCC-001', 'RTB/DT/DEFAULT/001', 'desktop', 'inactive', 'poor',
				'OptiPlex 3090', 600000, NULL);
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

func TestRepositoryGetByID(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))

	d, err := repo.GetByID(context.Background(), "dev-001")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}

	if d.SerialNumber != "SN-AAA-001" {
		t.Errorf("SerialNumber = %q, want %q", d.SerialNumber, "SN-AAA-001")
	}
	if d.NameTag != "RTB/LT/KIG/001" {
		t.Errorf("NameTag = %q, want %q", d.NameTag, "RTB/LT/KIG/001")
	}
	if d.Category != CategoryLaptop {
		t.Errorf("Category = %q, want %q", d.Category, CategoryLaptop)
	}
	if d.SchoolID == nil || *d.SchoolID != "sch-001" {
		t.Errorf("SchoolID = %v, want sch-001", d.SchoolID)
	}
}

func TestRepositoryGetByID_NotFound(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))

	_, err := repo.GetByID(context.Background(), "dev-missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID() error = %v, want ErrNotFound", err)
	}
}

func TestRepositoryGetBySerial(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))

	d, err := repo.GetBySerial(context.Background(), "SN-BBB-001")
	if err != nil {
		t.Fatalf("GetBySerial() error = %v", err)
	}
	if d.ID != "dev-003" {
		t.Errorf("ID = %q, want dev-003", d.ID)
	}

	_, err = repo.GetBySerial(context.Background(), "SN-NOPE")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetBySerial() error = %v, want ErrNotFound", err)
	}
}

func TestRepositoryCreate_RoundTrip(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	purchase := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	schoolID := "sch-002"
	d := &Device{
		ID:           "dev-new",
		SerialNumber: "SN-NEW-001",
		NameTag:      "RTB/LT/HUY/001",
		Category:     CategoryLaptop,
		Status:       StatusActive,
		Condition:    ConditionExcellent,
		Model:        "Latitude 5440",
		Manufacturer: "Dell",
		PurchaseCost: 950000,
		PurchaseDate: &purchase,
		SchoolID:     &schoolID,
		Specification: map[string]any{
			"ram_gb":  16.0,
			"storage": "512GB NVMe",
		},
		Software: map[string]any{
			"os": "Ubuntu 24.04",
		},
		MaintenanceRecords: []MaintenanceRecord{
			{Description: "initial setup", Cost: 5000, PerformedAt: purchase},
		},
	}

	if err := repo.Create(ctx, d); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := repo.GetByID(ctx, "dev-new")
	if err != nil {
		t.Fatalf("GetByID() after create error = %v", err)
	}
	if got.Manufacturer != "Dell" {
		t.Errorf("Manufacturer = %q, want Dell", got.Manufacturer)
	}
	if got.PurchaseDate == nil || !got.PurchaseDate.Equal(purchase) {
		t.Errorf("PurchaseDate = %v, want %v", got.PurchaseDate, purchase)
	}
	if got.Specification["storage"] != "512GB NVMe" {
		t.Errorf("Specification[storage] = %v, want 512GB NVMe", got.Specification["storage"])
	}
	if got.Software["os"] != "Ubuntu 24.04" {
		t.Errorf("Software[os] = %v, want Ubuntu 24.04", got.Software["os"])
	}
	if len(got.MaintenanceRecords) != 1 || got.MaintenanceRecords[0].Cost != 5000 {
		t.Errorf("MaintenanceRecords = %+v, want one record costing 5000", got.MaintenanceRecords)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt not populated")
	}
}

func TestRepositoryCreate_DuplicateSerial(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))

	d := &Device{
		ID:           "dev-dup",
		SerialNumber: "SN-AAA-001",
		NameTag:      "RTB/LT/KIG/099",
		Category:     CategoryLaptop,
		Status:       StatusActive,
		Condition:    ConditionGood,
		Model:        "ThinkPad T14",
	}
	err := repo.Create(context.Background(), d)
	if !errors.Is(err, ErrDuplicateSerial) {
		t.Errorf("Create() error = %v, want ErrDuplicateSerial", err)
	}
}

func TestRepositoryCreate_DuplicateTag(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))

	d := &Device{
		ID:           "dev-dup",
		SerialNumber: "SN-FRESH-001",
		NameTag:      "RTB/LT/KIG/001",
		Category:     CategoryLaptop,
		Status:       StatusActive,
		Condition:    ConditionGood,
		Model:        "ThinkPad T14",
	}
	err := repo.Create(context.Background(), d)
	if !errors.Is(err, ErrDuplicateTag) {
		t.Errorf("Create() error = %v, want ErrDuplicateTag", err)
	}
}

func TestRepositoryList(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))

	devices, err := repo.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(devices) != 4 {
		t.Fatalf("List() returned %d devices, want 4", len(devices))
	}
	for i := 1; i < len(devices); i++ {
		if devices[i-1].NameTag > devices[i].NameTag {
			t.Errorf("List() not ordered by name tag: %q before %q",
				devices[i-1].NameTag, devices[i].NameTag)
		}
	}
}

func TestRepositoryListBySchool(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))

	devices, err := repo.ListBySchool(context.Background(), "sch-001")
	if err != nil {
		t.Fatalf("ListBySchool() error = %v", err)
	}
	if len(devices) != 2 {
		t.Errorf("ListBySchool(sch-001) returned %d devices, want 2", len(devices))
	}
}

func TestRepositoryListByCategory(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))

	devices, err := repo.ListByCategory(context.Background(), CategoryProjector)
	if err != nil {
		t.Fatalf("ListByCategory() error = %v", err)
	}
	if len(devices) != 1 || devices[0].ID != "dev-003" {
		t.Errorf("ListByCategory(projector) = %+v, want [dev-003]", devices)
	}
}

func TestRepositoryListByStatus(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))

	devices, err := repo.ListByStatus(context.Background(), StatusMaintenance)
	if err != nil {
		t.Fatalf("ListByStatus() error = %v", err)
	}
	if len(devices) != 1 || devices[0].ID != "dev-002" {
		t.Errorf("ListByStatus(maintenance) = %+v, want [dev-002]", devices)
	}
}

func TestRepositorySearch(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	byTag, err := repo.Search(ctx, "PT/HUY")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(byTag) != 1 || byTag[0].ID != "dev-003" {
		t.Errorf("Search(PT/HUY) = %+v, want [dev-003]", byTag)
	}

	byModel, err := repo.Search(ctx, "thinkpad")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(byModel) != 2 {
		t.Errorf("Search(thinkpad) returned %d devices, want 2", len(byModel))
	}

	// LIKE wildcards in the query must be treated literally.
	none, err := repo.Search(ctx, "100%")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(none) != 0 {
		t.Errorf("Search(100%%) returned %d devices, want 0", len(none))
	}
}

func TestRepositoryUpdate(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	d, err := repo.GetByID(ctx, "dev-004")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}

	d.Status = StatusActive
	d.Condition = ConditionFair
	d.MaintenanceRecords = []MaintenanceRecord{
		{Description: "PSU replacement", Cost: 60000, PerformedAt: time.Now().UTC()},
	}
	if err := repo.Update(ctx, d); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, err := repo.GetByID(ctx, "dev-004")
	if err != nil {
		t.Fatalf("GetByID() after update error = %v", err)
	}
	if got.Status != StatusActive {
		t.Errorf("Status = %q, want active", got.Status)
	}
	if len(got.MaintenanceRecords) != 1 {
		t.Errorf("MaintenanceRecords count = %d, want 1", len(got.MaintenanceRecords))
	}
}

func TestRepositoryUpdate_NotFound(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))

	d := &Device{
		ID:           "dev-missing",
		SerialNumber: "SN-ZZZ-001",
		NameTag:      "RTB/OT/DEFAULT/001",
		Category:     CategoryOther,
		Status:       StatusActive,
		Condition:    ConditionGood,
		Model:        "Unknown",
	}
	if err := repo.Update(context.Background(), d); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update() error = %v, want ErrNotFound", err)
	}
}

func TestRepositoryDelete(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	if err := repo.Delete(ctx, "dev-001"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := repo.GetByID(ctx, "dev-001"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID() after delete error = %v, want ErrNotFound", err)
	}
	if err := repo.Delete(ctx, "dev-001"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete() second call error = %v, want ErrNotFound", err)
	}
}

func TestRepositoryMaxTagSequence(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	seq, err := repo.MaxTagSequence(ctx, "LT", "KIG")
	if err != nil {
		t.Fatalf("MaxTagSequence() error = %v", err)
	}
	if seq != 2 {
		t.Errorf("MaxTagSequence(LT, KIG) = %d, want 2", seq)
	}

	seq, err = repo.MaxTagSequence(ctx, "LT", "MUS")
	if err != nil {
		t.Fatalf("MaxTagSequence() error = %v", err)
	}
	if seq != 0 {
		t.Errorf("MaxTagSequence(LT, MUS) = %d, want 0", seq)
	}
}

func TestRepositoryMaxTagSequence_BeyondThreeDigits(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)

	_, err := db.Exec(`INSERT INTO devices (id, serial_number, name_tag, category,
		model, purchase_cost) VALUES
		('dev-big', 'SN-BIG-001', 'RTB/LT/KIG/1042', 'laptop', 'ThinkPad', 0)`)
	if err != nil {
		t.Fatalf("seeding large sequence: %v", err)
	}

	seq, err := repo.MaxTagSequence(context.Background(), "LT", "KIG")
	if err != nil {
		t.Fatalf("MaxTagSequence() error = %v", err)
	}
	if seq != 1042 {
		t.Errorf("MaxTagSequence(LT, KIG) = %d, want 1042", seq)
	}
}

func TestRepositoryReassign(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	schoolID := "sch-002"
	d, err := repo.Reassign(ctx, "dev-001", &schoolID, "HUY")
	if err != nil {
		t.Fatalf("Reassign() error = %v", err)
	}
	if d.SchoolID == nil || *d.SchoolID != "sch-002" {
		t.Errorf("SchoolID = %v, want sch-002", d.SchoolID)
	}
	if d.NameTag != "RTB/LT/HUY/001" {
		t.Errorf("NameTag = %q, want RTB/LT/HUY/001", d.NameTag)
	}
}

func TestRepositoryReassign_SequenceContinues(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	// dev-004 is a desktop joining the Kigali scope where no DT tags exist.
	schoolID := "sch-001"
	d, err := repo.Reassign(ctx, "dev-004", &schoolID, "KIG")
	if err != nil {
		t.Fatalf("Reassign() error = %v", err)
	}
	if d.NameTag != "RTB/DT/KIG/001" {
		t.Errorf("NameTag = %q, want RTB/DT/KIG/001", d.NameTag)
	}

	// The projector starts its own sequence in the same scope.
	d2, err := repo.Reassign(ctx, "dev-003", &schoolID, "KIG")
	if err != nil {
		t.Fatalf("Reassign() error = %v", err)
	}
	if d2.NameTag != "RTB/PT/KIG/001" {
		t.Errorf("NameTag = %q, want RTB/PT/KIG/001", d2.NameTag)
	}
}

func TestRepositoryReassign_Unassign(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	d, err := repo.Reassign(ctx, "dev-001", nil, ScopeDefault)
	if err != nil {
		t.Fatalf("Reassign() error = %v", err)
	}
	if d.SchoolID != nil {
		t.Errorf("SchoolID = %v, want nil", d.SchoolID)
	}
	if d.NameTag != "RTB/LT/DEFAULT/001" {
		t.Errorf("NameTag = %q, want RTB/LT/DEFAULT/001", d.NameTag)
	}
}

func TestRepositoryReassign_DefaultTagCollision(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)

	// dev-004 already holds the shared desktop default tag, so a second
	// desktop returning to the pool collides.
	_, err := db.Exec(`INSERT INTO devices (id, serial_number, name_tag, category,
		model, purchase_cost, school_id) VALUES
		('dev-dt2', 'SN-DT-002', 'RTB/DT/KIG/001', 'desktop', 'OptiPlex', 0, 'sch-001')`)
	if err != nil {
		t.Fatalf("seeding second desktop: %v", err)
	}

	_, err = repo.Reassign(context.Background(), "dev-dt2", nil, ScopeDefault)
	if !errors.Is(err, ErrDuplicateTag) {
		t.Errorf("Reassign() to default pool error = %v, want ErrDuplicateTag", err)
	}
}

func TestRepositoryReassign_NotFound(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))

	schoolID := "sch-001"
	_, err := repo.Reassign(context.Background(), "dev-missing", &schoolID, "KIG")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Reassign() error = %v, want ErrNotFound", err)
	}
}

func TestRepositoryUpdateLastSeen(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	seen := time.Date(2026, 6, 15, 10, 30, 0, 0, time.UTC)
	if err := repo.UpdateLastSeen(ctx, "SN-AAA-001", seen); err != nil {
		t.Fatalf("UpdateLastSeen() error = %v", err)
	}

	d, err := repo.GetByID(ctx, "dev-001")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if d.LastSeenAt == nil || !d.LastSeenAt.Equal(seen) {
		t.Errorf("LastSeenAt = %v, want %v", d.LastSeenAt, seen)
	}

	if err := repo.UpdateLastSeen(ctx, "SN-NOPE", seen); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateLastSeen() unknown serial error = %v, want ErrNotFound", err)
	}
}

func TestRepositoryCounts(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	total, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if total != 4 {
		t.Errorf("Count() = %d, want 4", total)
	}

	byStatus, err := repo.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("CountByStatus() error = %v", err)
	}
	if byStatus[StatusActive] != 2 || byStatus[StatusMaintenance] != 1 || byStatus[StatusInactive] != 1 {
		t.Errorf("CountByStatus() = %v", byStatus)
	}

	byCategory, err := repo.CountByCategory(ctx)
	if err != nil {
		t.Fatalf("CountByCategory() error = %v", err)
	}
	if byCategory[CategoryLaptop] != 2 || byCategory[CategoryProjector] != 1 || byCategory[CategoryDesktop] != 1 {
		t.Errorf("CountByCategory() = %v", byCategory)
	}
}
