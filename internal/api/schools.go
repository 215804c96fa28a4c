package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/schooltrack/asset-core/internal/audit"
	"github.com/schooltrack/asset-core/internal/auth"
	"github.com/schooltrack/asset-core/internal/school"
)

// handleListSchools returns all schools, optionally filtered by district.
// School-scoped users only see schools they own.
func (s *Server) handleListSchools(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var (
		schools []school.School
		err     error
	)
	if district := r.URL.Query().Get("district"); district != "" {
		schools, err = s.schools.ListByDistrict(ctx, district)
	} else {
		schools, err = s.schools.List(ctx)
	}
	if err != nil {
		s.logger.Error("failed to list schools", "error", err)
		writeInternalError(w, "failed to list schools")
		return
	}

	schools = filterSchoolsByScope(scopeFromContext(ctx), schools)
	writeJSON(w, http.StatusOK, map[string]any{"schools": schools, "count": len(schools)})
}

// handleGetSchool returns a single school by ID.
func (s *Server) handleGetSchool(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sch, err := s.schools.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, school.ErrNotFound) {
			writeNotFound(w, "school not found")
			return
		}
		writeInternalError(w, "failed to get school")
		return
	}
	if !scopeFromContext(r.Context()).CanAccessSchool(sch.ID) {
		writeForbidden(w, "school outside your scope")
		return
	}

	writeJSON(w, http.StatusOK, sch)
}

// handleListSchoolDevices returns the devices assigned to a school.
func (s *Server) handleListSchoolDevices(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	if _, err := s.schools.GetByID(ctx, id); err != nil {
		if errors.Is(err, school.ErrNotFound) {
			writeNotFound(w, "school not found")
			return
		}
		writeInternalError(w, "failed to get school")
		return
	}
	if !scopeFromContext(ctx).CanAccessSchool(id) {
		writeForbidden(w, "school outside your scope")
		return
	}

	devices, err := s.deviceRepo.ListBySchool(ctx, id)
	if err != nil {
		s.logger.Error("failed to list school devices", "school_id", id, "error", err)
		writeInternalError(w, "failed to list school devices")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleCreateSchool adds a school to the directory.
func (s *Server) handleCreateSchool(w http.ResponseWriter, r *http.Request) {
	var sch school.School
	if err := json.NewDecoder(r.Body).Decode(&sch); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := school.ValidateSchool(&sch); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if sch.ID == "" {
		sch.ID = uuid.NewString()
	}
	if sch.Type == "" {
		sch.Type = school.TypeOther
	}
	if sch.Status == "" {
		sch.Status = school.StatusActive
	}

	if err := s.schools.Create(r.Context(), &sch); err != nil {
		if errors.Is(err, school.ErrDuplicateCode) {
			writeConflict(w, "school code already exists")
			return
		}
		s.logger.Error("failed to create school", "code", sch.Code, "error", err)
		writeInternalError(w, "failed to create school")
		return
	}

	claims := claimsFromContext(r.Context())
	s.auditLog(audit.ActionCreate, audit.EntitySchool, sch.ID, claims.Subject, map[string]any{
		"code": sch.Code,
		"name": sch.Name,
	})

	writeJSON(w, http.StatusCreated, sch)
}

// handleUpdateSchool partially updates a school.
func (s *Server) handleUpdateSchool(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	existing, err := s.schools.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, school.ErrNotFound) {
			writeNotFound(w, "school not found")
			return
		}
		writeInternalError(w, "failed to get school")
		return
	}

	if err := json.NewDecoder(r.Body).Decode(existing); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	existing.ID = id // ID cannot be changed

	if err := school.ValidateSchool(existing); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	if err := s.schools.Update(r.Context(), existing); err != nil {
		if errors.Is(err, school.ErrDuplicateCode) {
			writeConflict(w, "school code already exists")
			return
		}
		if errors.Is(err, school.ErrNotFound) {
			writeNotFound(w, "school not found")
			return
		}
		writeInternalError(w, "failed to update school")
		return
	}

	claims := claimsFromContext(r.Context())
	s.auditLog(audit.ActionUpdate, audit.EntitySchool, id, claims.Subject, nil)

	writeJSON(w, http.StatusOK, existing)
}

// handleDeleteSchool removes a school along with its assigned devices.
func (s *Server) handleDeleteSchool(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.schools.Delete(r.Context(), id); err != nil {
		if errors.Is(err, school.ErrNotFound) {
			writeNotFound(w, "school not found")
			return
		}
		writeInternalError(w, "failed to delete school")
		return
	}

	claims := claimsFromContext(r.Context())
	s.auditLog(audit.ActionDelete, audit.EntitySchool, id, claims.Subject, nil)

	w.WriteHeader(http.StatusNoContent)
}

// filterSchoolsByScope drops schools the scope cannot see. A nil scope
// passes everything through.
func filterSchoolsByScope(scope *auth.SchoolScope, schools []school.School) []school.School {
	if scope == nil {
		return schools
	}
	filtered := make([]school.School, 0, len(schools))
	for i := range schools {
		if scope.CanAccessSchool(schools[i].ID) {
			filtered = append(filtered, schools[i])
		}
	}
	return filtered
}
