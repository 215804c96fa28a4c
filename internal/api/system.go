package api

import (
	"encoding/json"
	"net/http"
)

// SystemResetRequest defines the options for a data reset.
type SystemResetRequest struct {
	ClearDevices bool   `json:"clear_devices"`
	ClearSchools bool   `json:"clear_schools"`
	ClearRules   bool   `json:"clear_rules"`
	ClearAudit   bool   `json:"clear_audit"`
	Confirm      string `json:"confirm"`
}

// SystemResetResponse reports what was deleted.
type SystemResetResponse struct {
	Status  string         `json:"status"`
	Deleted map[string]int `json:"deleted"`
}

// handleSystemReset clears selected data from the database in a single
// transaction, then refreshes in-memory caches.
//
// This is a destructive operation and requires an exact confirmation
// string as a safety guard. User accounts are never cleared here.
func (s *Server) handleSystemReset(w http.ResponseWriter, r *http.Request) {
	var req SystemResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	// Safety guard: require exact confirmation string.
	if req.Confirm != "RESET ALL DATA" {
		writeBadRequest(w, `confirm field must be exactly "RESET ALL DATA"`)
		return
	}

	if !req.ClearDevices && !req.ClearSchools && !req.ClearRules && !req.ClearAudit {
		writeBadRequest(w, "at least one clear_* option must be true")
		return
	}

	if s.db == nil {
		writeInternalError(w, "database not configured")
		return
	}

	ctx := r.Context()
	deleted := make(map[string]int)

	// Execute all DELETEs in a single transaction, respecting FK order.
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.logger.Error("system reset: failed to begin transaction", "error", err)
		writeInternalError(w, "failed to begin transaction")
		return
	}
	defer tx.Rollback() //nolint:errcheck // rollback is a no-op after commit

	// Helper to execute a DELETE and record the count.
	deleteFrom := func(table string) error {
		result, err := tx.ExecContext(ctx, "DELETE FROM "+table)
		if err != nil {
			return err
		}
		n, _ := result.RowsAffected()
		deleted[table] = int(n)
		return nil
	}

	// Devices first: they reference schools.
	if req.ClearDevices || req.ClearSchools {
		if err := deleteFrom("devices"); err != nil {
			s.logger.Error("system reset: failed to clear devices", "error", err)
			writeInternalError(w, "failed to clear devices")
			return
		}
	}

	if req.ClearSchools {
		if err := deleteFrom("schools"); err != nil {
			s.logger.Error("system reset: failed to clear schools", "error", err)
			writeInternalError(w, "failed to clear schools")
			return
		}
	}

	// Rule runs before rules.
	if req.ClearRules {
		if err := deleteFrom("rule_runs"); err != nil {
			s.logger.Error("system reset: failed to clear rule_runs", "error", err)
			writeInternalError(w, "failed to clear rule runs")
			return
		}
		if err := deleteFrom("automation_rules"); err != nil {
			s.logger.Error("system reset: failed to clear automation_rules", "error", err)
			writeInternalError(w, "failed to clear rules")
			return
		}
	}

	if req.ClearAudit {
		if err := deleteFrom("audit_logs"); err != nil {
			s.logger.Error("system reset: failed to clear audit_logs", "error", err)
			writeInternalError(w, "failed to clear audit logs")
			return
		}
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("system reset: failed to commit transaction", "error", err)
		writeInternalError(w, "failed to commit reset")
		return
	}

	s.logger.Info("system reset committed", "deleted", deleted)

	// Refresh in-memory caches after the DB wipe.
	if req.ClearRules && s.rules != nil {
		if err := s.rules.RefreshCache(ctx); err != nil {
			s.logger.Warn("system reset: failed to refresh rule cache", "error", err)
		}
	}

	claims := claimsFromContext(ctx)
	s.auditLog("reset", "system", "system", claims.Subject, map[string]any{
		"deleted": deleted,
	})

	writeJSON(w, http.StatusOK, SystemResetResponse{
		Status:  "ok",
		Deleted: deleted,
	})
}
