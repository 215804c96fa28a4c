package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/schooltrack/asset-core/internal/audit"
	"github.com/schooltrack/asset-core/internal/auth"
)

func TestListAuditLogs(t *testing.T) {
	_, router, db := testServer(t)
	admin := seedUser(t, db, "admin", auth.RoleAdmin)
	token := tokenFor(t, admin)

	repo := audit.NewSQLiteRepository(db)
	entries := []*audit.AuditLog{
		{Action: audit.ActionCreate, EntityType: audit.EntityDevice, EntityID: "dev-001", UserID: admin.ID, Source: "api"},
		{Action: audit.ActionAssign, EntityType: audit.EntityDevice, EntityID: "dev-001", UserID: admin.ID, Source: "api"},
		{Action: audit.ActionCreate, EntityType: audit.EntitySchool, EntityID: "sch-001", UserID: "usr-other", Source: "api"},
	}
	for _, e := range entries {
		if err := repo.Create(context.Background(), e); err != nil {
			t.Fatalf("seeding audit entry: %v", err)
		}
	}

	w := doRequest(t, router, http.MethodGet, "/api/v1/audit", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d; body: %s", w.Code, w.Body.String())
	}
	if got := int(decodeBody(t, w)["total"].(float64)); got != 3 {
		t.Errorf("total = %d, want 3", got)
	}

	cases := []struct {
		name  string
		query string
		want  int
	}{
		{"by action", "?action=create", 2},
		{"by entity type", "?entity_type=device", 2},
		{"by entity id", "?entity_type=device&entity_id=dev-001", 2},
		{"by user", "?user_id=usr-other", 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doRequest(t, router, http.MethodGet, "/api/v1/audit"+tc.query, token, nil)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
			}
			if got := int(decodeBody(t, w)["total"].(float64)); got != tc.want {
				t.Errorf("total = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestAuditLogWrittenThroughServer(t *testing.T) {
	srv, router, db := testServer(t)
	admin := seedUser(t, db, "admin", auth.RoleAdmin)
	token := tokenFor(t, admin)

	// Start launches the async audit writer; the listener itself is not
	// used because requests go through the router directly.
	ctx := context.Background()
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	w := doRequest(t, router, http.MethodPost, "/api/v1/devices", token, map[string]any{
		"serial_number": "SN-AUDIT",
		"category":      "laptop",
		"model":         "ThinkPad",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d; body: %s", w.Code, w.Body.String())
	}

	if err := srv.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	// The audit writer is asynchronous, so poll briefly for the entry.
	repo := audit.NewSQLiteRepository(db)
	var result *audit.ListResult
	deadline := time.Now().Add(2 * time.Second)
	for {
		var err error
		result, err = repo.List(ctx, audit.Filter{EntityType: audit.EntityDevice})
		if err != nil {
			t.Fatalf("listing audit logs: %v", err)
		}
		if result.Total == 1 || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if result.Total != 1 {
		t.Fatalf("audit total = %d, want 1", result.Total)
	}
	entry := result.Logs[0]
	if entry.Action != audit.ActionCreate {
		t.Errorf("action = %s, want %s", entry.Action, audit.ActionCreate)
	}
	if entry.UserID != admin.ID {
		t.Errorf("user_id = %s, want %s", entry.UserID, admin.ID)
	}
}
