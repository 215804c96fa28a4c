package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/schooltrack/asset-core/internal/audit"
	"github.com/schooltrack/asset-core/internal/auth"
)

// defaultRefreshTTLMinutes is the refresh token lifetime when the config
// does not specify one (7 days).
const defaultRefreshTTLMinutes = 7 * 24 * 60

// loginRequest is the request body for POST /auth/login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// tokenResponse is the response body for login and refresh.
type tokenResponse struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	TokenType    string     `json:"token_type"`
	ExpiresIn    int        `json:"expires_in"`
	User         *auth.User `json:"user,omitempty"`
}

// refreshRequest is the request body for POST /auth/refresh and /auth/logout.
type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// handleLogin authenticates a user against the user database and returns
// an access token plus a refresh token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeBadRequest(w, "username and password are required")
		return
	}

	user, err := s.userRepo.GetByUsername(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			// Same response as a wrong password, no username probing
			writeUnauthorized(w, "invalid credentials")
			return
		}
		s.logger.Error("login lookup failed", "error", err)
		writeInternalError(w, "login failed")
		return
	}

	ok, err := auth.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil || !ok {
		writeUnauthorized(w, "invalid credentials")
		return
	}

	if !user.IsActive {
		writeUnauthorized(w, "account is inactive")
		return
	}

	resp, err := s.issueTokens(r, user, "")
	if err != nil {
		s.logger.Error("token issue failed", "user_id", user.ID, "error", err)
		writeInternalError(w, "login failed")
		return
	}
	resp.User = user

	s.logger.Info("user logged in", "user_id", user.ID, "username", user.Username, "role", user.Role)
	s.auditLog(audit.ActionLogin, audit.EntityUser, user.ID, user.ID, nil)

	writeJSON(w, http.StatusOK, resp)
}

// handleRefresh rotates a refresh token and returns a fresh token pair.
// Reuse of a revoked token invalidates the whole family.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.RefreshToken == "" {
		writeBadRequest(w, "refresh_token is required")
		return
	}
	if s.tokenRepo == nil {
		writeInternalError(w, "refresh tokens not configured")
		return
	}

	ctx := r.Context()

	stored, err := s.tokenRepo.GetByTokenHash(ctx, auth.HashToken(req.RefreshToken))
	if err != nil {
		writeUnauthorized(w, "invalid refresh token")
		return
	}

	if stored.Revoked {
		// Reuse of a rotated token: assume theft, kill the family
		if err := s.tokenRepo.RevokeFamily(ctx, stored.FamilyID); err != nil {
			s.logger.Error("family revocation failed", "family_id", stored.FamilyID, "error", err)
		}
		s.logger.Warn("refresh token reuse detected", "user_id", stored.UserID, "family_id", stored.FamilyID)
		writeUnauthorized(w, "refresh token reuse detected")
		return
	}

	if time.Now().After(stored.ExpiresAt) {
		writeUnauthorized(w, "refresh token expired")
		return
	}

	user, err := s.userRepo.GetByID(ctx, stored.UserID)
	if err != nil {
		writeUnauthorized(w, "invalid refresh token")
		return
	}
	if !user.IsActive {
		writeUnauthorized(w, "account is inactive")
		return
	}

	resp, err := s.rotateTokens(r, user, stored)
	if err != nil {
		s.logger.Error("token rotation failed", "user_id", user.ID, "error", err)
		writeInternalError(w, "refresh failed")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleLogout revokes the presented refresh token.
// The access token simply expires; only the refresh token is stateful.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	claims := claimsFromContext(r.Context())

	if req.RefreshToken != "" && s.tokenRepo != nil {
		stored, err := s.tokenRepo.GetByTokenHash(r.Context(), auth.HashToken(req.RefreshToken))
		if err == nil && stored.UserID == claims.Subject {
			if err := s.tokenRepo.Revoke(r.Context(), stored.ID); err != nil {
				s.logger.Error("logout revocation failed", "token_id", stored.ID, "error", err)
			}
		}
	}

	s.auditLog(audit.ActionLogout, audit.EntityUser, claims.Subject, claims.Subject, nil)

	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// handleMe returns the authenticated user's account and permissions.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	user, err := s.userRepo.GetByID(r.Context(), claims.Subject)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeUnauthorized(w, "account no longer exists")
			return
		}
		s.logger.Error("me lookup failed", "user_id", claims.Subject, "error", err)
		writeInternalError(w, "failed to load account")
		return
	}

	resp := map[string]any{
		"user":        user,
		"permissions": auth.PermissionsForRole(user.Role),
	}
	if scope := scopeFromContext(r.Context()); scope != nil {
		resp["school_ids"] = scope.SchoolIDs
	}

	writeJSON(w, http.StatusOK, resp)
}

// issueTokens creates a fresh access token and a new refresh token family.
func (s *Server) issueTokens(r *http.Request, user *auth.User, familyID string) (*tokenResponse, error) {
	ttl := s.secCfg.JWT.AccessTokenTTL

	access, err := auth.GenerateAccessToken(user, s.secCfg.JWT.Secret, ttl)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = 15 //nolint:mnd // GenerateAccessToken applies the same default
	}

	raw, err := auth.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}

	if s.tokenRepo != nil {
		rt := &auth.RefreshToken{
			UserID:     user.ID,
			FamilyID:   familyID,
			TokenHash:  auth.HashToken(raw),
			DeviceInfo: r.UserAgent(),
			ExpiresAt:  time.Now().UTC().Add(s.refreshTTL()),
		}
		if err := s.tokenRepo.Create(r.Context(), rt); err != nil {
			return nil, err
		}
	}

	return &tokenResponse{
		AccessToken:  access,
		RefreshToken: raw,
		TokenType:    "Bearer",
		ExpiresIn:    ttl * 60, // seconds
	}, nil
}

// rotateTokens atomically revokes the consumed refresh token and issues a
// replacement in the same family.
func (s *Server) rotateTokens(r *http.Request, user *auth.User, old *auth.RefreshToken) (*tokenResponse, error) {
	ttl := s.secCfg.JWT.AccessTokenTTL

	access, err := auth.GenerateAccessToken(user, s.secCfg.JWT.Secret, ttl)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = 15 //nolint:mnd // GenerateAccessToken applies the same default
	}

	raw, err := auth.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}

	replacement := &auth.RefreshToken{
		UserID:     user.ID,
		FamilyID:   old.FamilyID,
		TokenHash:  auth.HashToken(raw),
		DeviceInfo: r.UserAgent(),
		ExpiresAt:  time.Now().UTC().Add(s.refreshTTL()),
	}
	if err := s.tokenRepo.RotateRefreshToken(r.Context(), old.ID, replacement); err != nil {
		return nil, err
	}

	return &tokenResponse{
		AccessToken:  access,
		RefreshToken: raw,
		TokenType:    "Bearer",
		ExpiresIn:    ttl * 60, // seconds
	}, nil
}

// refreshTTL returns the configured refresh token lifetime.
func (s *Server) refreshTTL() time.Duration {
	minutes := s.secCfg.JWT.RefreshTokenTTL
	if minutes <= 0 {
		minutes = defaultRefreshTTLMinutes
	}
	return time.Duration(minutes) * time.Minute
}
