package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/schooltrack/asset-core/internal/audit"
	"github.com/schooltrack/asset-core/internal/auth"
	"github.com/schooltrack/asset-core/internal/device"
	"github.com/schooltrack/asset-core/internal/school"
)

// handleListDevices returns devices, with optional query filters.
//
// Query parameters:
//   - school_id: filter by assigned school
//   - category: filter by category (laptop, desktop, projector, other)
//   - status: filter by lifecycle status (active, inactive, maintenance,
//     damaged, lost, disposed)
//   - q: free-text search over serial number, name tag, model and manufacturer
//
// School-scoped users only see devices assigned to their own schools,
// whatever filter they pass.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scope := scopeFromContext(ctx)

	var (
		devices []device.Device
		err     error
	)

	switch q := r.URL.Query(); {
	case q.Get("school_id") != "":
		schoolID := q.Get("school_id")
		if !scope.CanAccessSchool(schoolID) {
			writeForbidden(w, "school outside your scope")
			return
		}
		devices, err = s.deviceRepo.ListBySchool(ctx, schoolID)
	case q.Get("category") != "":
		devices, err = s.deviceRepo.ListByCategory(ctx, device.Category(q.Get("category")))
	case q.Get("status") != "":
		devices, err = s.deviceRepo.ListByStatus(ctx, device.Status(q.Get("status")))
	case q.Get("q") != "":
		devices, err = s.deviceRepo.Search(ctx, q.Get("q"))
	default:
		devices, err = s.deviceRepo.List(ctx)
	}
	if err != nil {
		s.logger.Error("failed to list devices", "error", err)
		writeInternalError(w, "failed to list devices")
		return
	}

	devices = filterDevicesByScope(scope, devices)
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a single device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	dev, err := s.devices.GetDevice(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}
	if !deviceInScope(scopeFromContext(r.Context()), dev) {
		writeForbidden(w, "device outside your scope")
		return
	}

	writeJSON(w, http.StatusOK, dev)
}

// handleGetDeviceMetrics returns a device together with its derived
// metrics (age, warranty, online state, book value).
func (s *Server) handleGetDeviceMetrics(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	dev, metrics, err := s.devices.GetDeviceMetrics(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device metrics")
		return
	}
	if !deviceInScope(scopeFromContext(r.Context()), dev) {
		writeForbidden(w, "device outside your scope")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"device": dev, "metrics": metrics})
}

// handleCreateDevice registers a new device. The name tag is derived
// server-side from the category and, when assigned, the school's district.
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var dev device.Device
	if err := json.NewDecoder(r.Body).Decode(&dev); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	created, err := s.devices.CreateDevice(r.Context(), &dev)
	if err != nil {
		writeDeviceError(w, err, "failed to create device")
		return
	}

	claims := claimsFromContext(r.Context())
	s.auditLog(audit.ActionCreate, audit.EntityDevice, created.ID, claims.Subject, map[string]any{
		"serial_number": created.SerialNumber,
		"name_tag":      created.NameTag,
	})

	writeJSON(w, http.StatusCreated, created)
}

// handleUpdateDevice partially updates a device.
func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	existing, err := s.devices.GetDevice(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}

	// Decode partial update onto a copy of the stored device
	patched := existing.DeepCopy()
	if err := json.NewDecoder(r.Body).Decode(patched); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	patched.ID = id // ID cannot be changed

	updated, err := s.devices.UpdateDevice(r.Context(), patched)
	if err != nil {
		if errors.Is(err, school.ErrNotFound) {
			writeBadRequest(w, "school not found")
			return
		}
		writeDeviceError(w, err, "failed to update device")
		return
	}

	claims := claimsFromContext(r.Context())
	s.auditLog(audit.ActionUpdate, audit.EntityDevice, id, claims.Subject, nil)

	writeJSON(w, http.StatusOK, updated)
}

// handleDeleteDevice removes a device by ID.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.devices.DeleteDevice(r.Context(), id); err != nil {
		if errors.Is(err, device.ErrNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to delete device")
		return
	}

	claims := claimsFromContext(r.Context())
	s.auditLog(audit.ActionDelete, audit.EntityDevice, id, claims.Subject, nil)

	w.WriteHeader(http.StatusNoContent)
}

// handleDeviceStats returns fleet-wide statistics.
func (s *Server) handleDeviceStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.devices.Stats(r.Context())
	if err != nil {
		s.logger.Error("failed to compute fleet stats", "error", err)
		writeInternalError(w, "failed to compute fleet stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// assignRequest is the request body for assign and bulk-assign.
type assignRequest struct {
	DeviceIDs []string `json:"device_ids,omitempty"`
	SchoolID  string   `json:"school_id"`
}

// handleAssignDevice assigns a device to a school. The name tag is
// re-derived for the school's district scope.
func (s *Server) handleAssignDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.SchoolID == "" {
		writeBadRequest(w, "school_id is required")
		return
	}

	dev, err := s.devices.AssignToSchool(r.Context(), id, req.SchoolID)
	if err != nil {
		if errors.Is(err, school.ErrNotFound) {
			writeBadRequest(w, "school not found")
			return
		}
		writeDeviceError(w, err, "failed to assign device")
		return
	}

	claims := claimsFromContext(r.Context())
	s.auditLog(audit.ActionAssign, audit.EntityDevice, id, claims.Subject, map[string]any{
		"school_id": req.SchoolID,
		"name_tag":  dev.NameTag,
	})

	writeJSON(w, http.StatusOK, dev)
}

// handleUnassignDevice detaches a device from its school and reverts
// the name tag to the category default.
func (s *Server) handleUnassignDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	dev, err := s.devices.Unassign(r.Context(), id)
	if err != nil {
		writeDeviceError(w, err, "failed to unassign device")
		return
	}

	claims := claimsFromContext(r.Context())
	s.auditLog(audit.ActionUnassign, audit.EntityDevice, id, claims.Subject, nil)

	writeJSON(w, http.StatusOK, dev)
}

// bulkCreateRequest is the request body for POST /devices/bulk.
type bulkCreateRequest struct {
	Devices []device.Device `json:"devices"`
}

// bulkItemResult is the per-item outcome of a bulk operation.
type bulkItemResult struct {
	ID           string `json:"id,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
	NameTag      string `json:"name_tag,omitempty"`
	Error        string `json:"error,omitempty"`
}

// handleBulkCreateDevices registers a batch of devices. Items succeed
// or fail independently; the response reports each outcome in order.
func (s *Server) handleBulkCreateDevices(w http.ResponseWriter, r *http.Request) {
	var req bulkCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if len(req.Devices) == 0 {
		writeBadRequest(w, "devices list is empty")
		return
	}

	results := s.devices.BulkCreate(r.Context(), req.Devices)
	items, created := bulkResults(results)

	claims := claimsFromContext(r.Context())
	s.auditLog(audit.ActionCreate, audit.EntityDevice, "bulk", claims.Subject, map[string]any{
		"requested": len(req.Devices),
		"created":   created,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"results": items,
		"created": created,
		"failed":  len(items) - created,
	})
}

// handleBulkAssignDevices assigns a batch of devices to one school.
func (s *Server) handleBulkAssignDevices(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if len(req.DeviceIDs) == 0 {
		writeBadRequest(w, "device_ids list is empty")
		return
	}
	if req.SchoolID == "" {
		writeBadRequest(w, "school_id is required")
		return
	}

	results := s.devices.BulkAssign(r.Context(), req.DeviceIDs, req.SchoolID)
	items, assigned := bulkResults(results)

	claims := claimsFromContext(r.Context())
	s.auditLog(audit.ActionAssign, audit.EntityDevice, "bulk", claims.Subject, map[string]any{
		"school_id": req.SchoolID,
		"requested": len(req.DeviceIDs),
		"assigned":  assigned,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"results":  items,
		"assigned": assigned,
		"failed":   len(items) - assigned,
	})
}

// bulkResults converts manager bulk results into the wire shape and
// counts successes.
func bulkResults(results []device.BulkResult) ([]bulkItemResult, int) {
	items := make([]bulkItemResult, 0, len(results))
	succeeded := 0
	for _, res := range results {
		item := bulkItemResult{
			ID:           res.ID,
			SerialNumber: res.SerialNumber,
			NameTag:      res.NameTag,
		}
		if res.Err != nil {
			item.Error = res.Err.Error()
		} else {
			succeeded++
		}
		items = append(items, item)
	}
	return items, succeeded
}

// filterDevicesByScope drops devices the scope cannot see. A nil scope
// passes everything through; unassigned devices are never visible to a
// school-scoped user.
func filterDevicesByScope(scope *auth.SchoolScope, devices []device.Device) []device.Device {
	if scope == nil {
		return devices
	}
	filtered := make([]device.Device, 0, len(devices))
	for i := range devices {
		if deviceInScope(scope, &devices[i]) {
			filtered = append(filtered, devices[i])
		}
	}
	return filtered
}

// deviceInScope reports whether the scope may see the device.
func deviceInScope(scope *auth.SchoolScope, d *device.Device) bool {
	if scope == nil {
		return true
	}
	return d.SchoolID != nil && scope.CanAccessSchool(*d.SchoolID)
}

// writeDeviceError maps device package errors onto HTTP responses.
func writeDeviceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, device.ErrNotFound):
		writeNotFound(w, "device not found")
	case errors.Is(err, device.ErrDuplicateSerial):
		writeConflict(w, "serial number already registered")
	case errors.Is(err, device.ErrDuplicateTag):
		writeConflict(w, "name tag already in use")
	case isDeviceValidationError(err):
		writeBadRequest(w, err.Error())
	default:
		writeInternalError(w, fallback)
	}
}

// isDeviceValidationError checks whether an error is a device validation error.
// ValidateDevice wraps several sentinel errors so we check all of them
// rather than just ErrInvalidDevice.
func isDeviceValidationError(err error) bool {
	return errors.Is(err, device.ErrInvalidDevice) ||
		errors.Is(err, device.ErrInvalidSerial) ||
		errors.Is(err, device.ErrInvalidModel) ||
		errors.Is(err, device.ErrInvalidCost) ||
		errors.Is(err, device.ErrInvalidCategory) ||
		errors.Is(err, device.ErrInvalidStatus) ||
		errors.Is(err, device.ErrInvalidCondition)
}
