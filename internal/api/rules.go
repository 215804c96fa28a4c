package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/schooltrack/asset-core/internal/audit"
	"github.com/schooltrack/asset-core/internal/automation"
)

// defaultRunHistoryLimit bounds GET /rules/{id}/runs when no limit is given.
const defaultRunHistoryLimit = 20

// handleListRules returns all automation rules, optionally filtered by kind.
func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var (
		rules []automation.Rule
		err   error
	)
	if kind := r.URL.Query().Get("kind"); kind != "" {
		rules, err = s.rules.ListRulesByKind(ctx, automation.Kind(kind))
	} else {
		rules, err = s.rules.ListRules(ctx)
	}
	if err != nil {
		s.logger.Error("failed to list rules", "error", err)
		writeInternalError(w, "failed to list rules")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"rules": rules, "count": len(rules)})
}

// handleGetRule returns a single rule by ID.
func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rule, err := s.rules.GetRule(r.Context(), id)
	if err != nil {
		if errors.Is(err, automation.ErrRuleNotFound) {
			writeNotFound(w, "rule not found")
			return
		}
		writeInternalError(w, "failed to get rule")
		return
	}

	writeJSON(w, http.StatusOK, rule)
}

// handleCreateRule creates a new automation rule.
func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var rule automation.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.rules.CreateRule(r.Context(), &rule); err != nil {
		if errors.Is(err, automation.ErrRuleExists) {
			writeConflict(w, "rule already exists")
			return
		}
		if errors.Is(err, automation.ErrInvalidRule) {
			writeBadRequest(w, err.Error())
			return
		}
		writeInternalError(w, "failed to create rule")
		return
	}

	claims := claimsFromContext(r.Context())
	s.auditLog(audit.ActionCreate, audit.EntityRule, rule.ID, claims.Subject, map[string]any{
		"name": rule.Name,
		"kind": string(rule.Kind),
	})

	writeJSON(w, http.StatusCreated, rule)
}

// handleUpdateRule partially updates a rule.
func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	existing, err := s.rules.GetRule(r.Context(), id)
	if err != nil {
		if errors.Is(err, automation.ErrRuleNotFound) {
			writeNotFound(w, "rule not found")
			return
		}
		writeInternalError(w, "failed to get rule")
		return
	}

	if err := json.NewDecoder(r.Body).Decode(existing); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	existing.ID = id // ID cannot be changed

	if err := s.rules.UpdateRule(r.Context(), existing); err != nil {
		if errors.Is(err, automation.ErrInvalidRule) {
			writeBadRequest(w, err.Error())
			return
		}
		if errors.Is(err, automation.ErrRuleNotFound) {
			writeNotFound(w, "rule not found")
			return
		}
		writeInternalError(w, "failed to update rule")
		return
	}

	claims := claimsFromContext(r.Context())
	s.auditLog(audit.ActionUpdate, audit.EntityRule, id, claims.Subject, nil)

	writeJSON(w, http.StatusOK, existing)
}

// handleDeleteRule removes a rule and its run history.
func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.rules.DeleteRule(r.Context(), id); err != nil {
		if errors.Is(err, automation.ErrRuleNotFound) {
			writeNotFound(w, "rule not found")
			return
		}
		writeInternalError(w, "failed to delete rule")
		return
	}

	claims := claimsFromContext(r.Context())
	s.auditLog(audit.ActionDelete, audit.EntityRule, id, claims.Subject, nil)

	w.WriteHeader(http.StatusNoContent)
}

// handleRunRule executes a rule immediately and returns the completed run.
func (s *Server) handleRunRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if s.engine == nil {
		writeInternalError(w, "rule engine not configured")
		return
	}

	run, err := s.engine.RunRule(r.Context(), id, "api")
	if err != nil {
		switch {
		case errors.Is(err, automation.ErrRuleNotFound):
			writeNotFound(w, "rule not found")
		case errors.Is(err, automation.ErrRuleDisabled):
			writeConflict(w, "rule is disabled")
		case errors.Is(err, automation.ErrNoHandler):
			writeInternalError(w, "no handler registered for rule kind")
		default:
			s.logger.Error("rule run failed", "rule_id", id, "error", err)
			writeInternalError(w, "rule run failed")
		}
		return
	}

	claims := claimsFromContext(r.Context())
	s.auditLog(audit.ActionRun, audit.EntityRule, id, claims.Subject, map[string]any{
		"run_id":  run.ID,
		"status":  string(run.Status),
		"matched": run.Matched,
		"acted":   run.Acted,
	})

	writeJSON(w, http.StatusOK, run)
}

// handleListRuleRuns returns recent executions of a rule, newest first.
//
// Query parameters:
//   - limit: max results (default 20)
func (s *Server) handleListRuleRuns(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	limit := defaultRunHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	runs, err := s.rules.ListRuns(r.Context(), id, limit)
	if err != nil {
		if errors.Is(err, automation.ErrRuleNotFound) {
			writeNotFound(w, "rule not found")
			return
		}
		writeInternalError(w, "failed to list rule runs")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
}
