package api

import (
	"net/http"
	"testing"

	"github.com/schooltrack/asset-core/internal/auth"
)

// createRule creates a rule through the API and returns its ID.
func createRule(t *testing.T, router http.Handler, token string, body map[string]any) string {
	t.Helper()

	w := doRequest(t, router, http.MethodPost, "/api/v1/rules", token, body)
	if w.Code != http.StatusCreated {
		t.Fatalf("create rule status = %d; body: %s", w.Code, w.Body.String())
	}
	id, _ := decodeBody(t, w)["id"].(string)
	if id == "" {
		t.Fatal("expected generated rule id")
	}
	return id
}

func TestCreateRule(t *testing.T) {
	_, router, db := testServer(t)
	admin := seedUser(t, db, "admin", auth.RoleAdmin)
	token := tokenFor(t, admin)

	id := createRule(t, router, token, map[string]any{
		"name":    "Upcoming maintenance",
		"kind":    "maintenance_reminder",
		"enabled": true,
		"parameters": map[string]any{
			"ahead_days": 14,
		},
	})

	w := doRequest(t, router, http.MethodGet, "/api/v1/rules/"+id, token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get rule status = %d; body: %s", w.Code, w.Body.String())
	}
	resp := decodeBody(t, w)
	if resp["kind"] != "maintenance_reminder" {
		t.Errorf("kind = %v, want maintenance_reminder", resp["kind"])
	}
	if resp["enabled"] != true {
		t.Errorf("enabled = %v, want true", resp["enabled"])
	}
}

func TestCreateRule_InvalidKind(t *testing.T) {
	_, router, db := testServer(t)
	admin := seedUser(t, db, "admin", auth.RoleAdmin)
	token := tokenFor(t, admin)

	w := doRequest(t, router, http.MethodPost, "/api/v1/rules", token,
		map[string]any{"name": "bogus", "kind": "time_travel"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid kind status = %d, want %d; body: %s",
			w.Code, http.StatusBadRequest, w.Body.String())
	}
}

func TestListRules_KindFilter(t *testing.T) {
	_, router, db := testServer(t)
	admin := seedUser(t, db, "admin", auth.RoleAdmin)
	token := tokenFor(t, admin)

	createRule(t, router, token, map[string]any{"name": "r1", "kind": "maintenance_reminder", "enabled": true})
	createRule(t, router, token, map[string]any{"name": "r2", "kind": "warranty_alert", "enabled": true})
	createRule(t, router, token, map[string]any{"name": "r3", "kind": "warranty_alert", "enabled": false})

	w := doRequest(t, router, http.MethodGet, "/api/v1/rules", token, nil)
	if got := int(decodeBody(t, w)["count"].(float64)); got != 3 {
		t.Errorf("count = %d, want 3", got)
	}

	w = doRequest(t, router, http.MethodGet, "/api/v1/rules?kind=warranty_alert", token, nil)
	if got := int(decodeBody(t, w)["count"].(float64)); got != 2 {
		t.Errorf("kind-filtered count = %d, want 2", got)
	}
}

func TestUpdateRule(t *testing.T) {
	_, router, db := testServer(t)
	admin := seedUser(t, db, "admin", auth.RoleAdmin)
	token := tokenFor(t, admin)

	id := createRule(t, router, token, map[string]any{"name": "r1", "kind": "offline_detection", "enabled": true})

	w := doRequest(t, router, http.MethodPatch, "/api/v1/rules/"+id, token,
		map[string]any{"enabled": false})
	if w.Code != http.StatusOK {
		t.Fatalf("patch status = %d; body: %s", w.Code, w.Body.String())
	}
	resp := decodeBody(t, w)
	if resp["enabled"] != false {
		t.Errorf("enabled = %v, want false", resp["enabled"])
	}
	if resp["name"] != "r1" {
		t.Errorf("name = %v, want r1", resp["name"])
	}
}

func TestDeleteRule(t *testing.T) {
	_, router, db := testServer(t)
	admin := seedUser(t, db, "admin", auth.RoleAdmin)
	token := tokenFor(t, admin)

	id := createRule(t, router, token, map[string]any{"name": "r1", "kind": "aging_update", "enabled": true})

	w := doRequest(t, router, http.MethodDelete, "/api/v1/rules/"+id, token, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want %d", w.Code, http.StatusNoContent)
	}

	w = doRequest(t, router, http.MethodGet, "/api/v1/rules/"+id, token, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestRunRule(t *testing.T) {
	_, router, db := testServer(t)
	admin := seedUser(t, db, "admin", auth.RoleAdmin)
	token := tokenFor(t, admin)

	// A device with overdue maintenance gives the handler something to match.
	seedDevice(t, db, "dev-001", "SN-001", "RTB/LT/DEFAULT/001", "laptop", "active", nil)
	if _, err := db.Exec("UPDATE devices SET next_maintenance_date = '2020-01-01T00:00:00Z' WHERE id = 'dev-001'"); err != nil {
		t.Fatalf("setting maintenance date: %v", err)
	}

	id := createRule(t, router, token, map[string]any{
		"name": "Maintenance sweep", "kind": "maintenance_reminder", "enabled": true,
	})

	w := doRequest(t, router, http.MethodPost, "/api/v1/rules/"+id+"/run", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("run status = %d; body: %s", w.Code, w.Body.String())
	}

	run := decodeBody(t, w)
	if run["status"] != "completed" {
		t.Errorf("run status = %v, want completed", run["status"])
	}
	if run["trigger"] != "api" {
		t.Errorf("trigger = %v, want api", run["trigger"])
	}
	if got := int(run["matched"].(float64)); got != 1 {
		t.Errorf("matched = %d, want 1", got)
	}

	// The run shows up in the rule's history.
	w = doRequest(t, router, http.MethodGet, "/api/v1/rules/"+id+"/runs", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("runs status = %d; body: %s", w.Code, w.Body.String())
	}
	if got := int(decodeBody(t, w)["count"].(float64)); got != 1 {
		t.Errorf("runs count = %d, want 1", got)
	}
}

func TestRunRule_Disabled(t *testing.T) {
	_, router, db := testServer(t)
	admin := seedUser(t, db, "admin", auth.RoleAdmin)
	token := tokenFor(t, admin)

	id := createRule(t, router, token, map[string]any{
		"name": "Dormant", "kind": "maintenance_reminder", "enabled": false,
	})

	w := doRequest(t, router, http.MethodPost, "/api/v1/rules/"+id+"/run", token, nil)
	if w.Code != http.StatusConflict {
		t.Errorf("disabled rule run status = %d, want %d; body: %s",
			w.Code, http.StatusConflict, w.Body.String())
	}
}

func TestRunRule_NoHandler(t *testing.T) {
	_, router, db := testServer(t)
	admin := seedUser(t, db, "admin", auth.RoleAdmin)
	token := tokenFor(t, admin)

	// user_assignment has no handler registered in the test server.
	id := createRule(t, router, token, map[string]any{
		"name": "Orphan", "kind": "user_assignment", "enabled": true,
	})

	w := doRequest(t, router, http.MethodPost, "/api/v1/rules/"+id+"/run", token, nil)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("no-handler run status = %d, want %d; body: %s",
			w.Code, http.StatusInternalServerError, w.Body.String())
	}
}

func TestRunRule_NotFound(t *testing.T) {
	_, router, db := testServer(t)
	admin := seedUser(t, db, "admin", auth.RoleAdmin)
	token := tokenFor(t, admin)

	w := doRequest(t, router, http.MethodPost, "/api/v1/rules/no-such/run", token, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing rule run status = %d, want %d", w.Code, http.StatusNotFound)
	}
}
