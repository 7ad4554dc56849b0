package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/edustack-labs/edustack/internal/auth"
	"github.com/edustack-labs/edustack/internal/platform"
)

type authedHandler func(w http.ResponseWriter, r *http.Request, id *auth.Identity)

// withAuth verifies the bearer token and, when roles are given, requires the
// identity to carry one of them.
func (s *Server) withAuth(next authedHandler, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get("Authorization"))
		token, ok := strings.CutPrefix(raw, "Bearer ")
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		id, err := s.tokens.Verify(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		if len(roles) > 0 && !id.HasRole(roles...) {
			writeError(w, http.StatusForbidden, "insufficient role")
			return
		}
		next(w, r, id)
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string         `json:"token"`
	User  *platform.User `json:"user"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	// Unknown account and wrong password answer identically.
	user, err := s.users.GetByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, platform.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, auth.ErrInvalidCredentials.Error())
			return
		}
		s.log.Error("login lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err := auth.VerifyPassword(user.PasswordHash, req.Password); err != nil {
		writeError(w, http.StatusUnauthorized, auth.ErrInvalidCredentials.Error())
		return
	}
	if !user.IsActive {
		writeError(w, http.StatusForbidden, "account disabled")
		return
	}

	if err := s.users.TouchLastLogin(r.Context(), user.ID); err != nil {
		s.log.Warn("touch last login failed", "user_id", user.ID, "error", err)
	}

	token, err := s.tokens.Issue(auth.Identity{
		ID:    user.ID.String(),
		Email: user.Email,
		Role:  user.Role,
		Name:  user.FullName(),
	})
	if err != nil {
		s.log.Error("token issue failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token, User: user})
}

type signupRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role,omitempty"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.Role = strings.TrimSpace(req.Role)
	if req.Role == "" {
		req.Role = "student"
	}

	switch {
	case req.Email == "" || !strings.Contains(req.Email, "@"):
		writeError(w, http.StatusBadRequest, "valid email is required")
		return
	case len(req.Password) < 8:
		writeError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	case req.FirstName == "" || req.LastName == "":
		writeError(w, http.StatusBadRequest, "first and last name are required")
		return
	case !platform.ValidRole(req.Role):
		writeError(w, http.StatusBadRequest, "invalid role")
		return
	case req.Role == "super_admin":
		// Bootstrapped out of band, never via self-service signup.
		writeError(w, http.StatusForbidden, "role not permitted at signup")
		return
	}

	_, domain, _ := strings.Cut(req.Email, "@")
	inst, err := s.institutions.GetByDomain(r.Context(), domain)
	switch {
	case errors.Is(err, platform.ErrNotFound):
		// Students join an existing institution; staff signups establish one.
		if req.Role == "student" {
			writeError(w, http.StatusNotFound, "no institution registered for this email domain")
			return
		}
		inst = &platform.Institution{Name: platform.NameForDomain(domain), Domain: domain}
		if err := s.institutions.Create(r.Context(), inst); err != nil && !errors.Is(err, platform.ErrDuplicate) {
			s.log.Error("institution create failed", "domain", domain, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
	case err != nil:
		s.log.Error("institution lookup failed", "domain", domain, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid password")
		return
	}

	user := &platform.User{
		Email:         req.Email,
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		Role:          req.Role,
		PasswordHash:  hash,
		InstitutionID: &inst.ID,
		IsActive:      true,
	}
	if err := s.users.Create(r.Context(), user); err != nil {
		if errors.Is(err, platform.ErrDuplicate) {
			writeError(w, http.StatusConflict, "email already registered")
			return
		}
		s.log.Error("user create failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	token, err := s.tokens.Issue(auth.Identity{
		ID:    user.ID.String(),
		Email: user.Email,
		Role:  user.Role,
		Name:  user.FullName(),
	})
	if err != nil {
		s.log.Error("token issue failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusCreated, tokenResponse{Token: token, User: user})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request, id *auth.Identity) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	uid, err := uuid.Parse(id.ID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	user, err := s.users.GetByID(r.Context(), uid)
	if err != nil {
		if errors.Is(err, platform.ErrNotFound) {
			writeError(w, http.StatusNotFound, "account no longer exists")
			return
		}
		s.log.Error("profile lookup failed", "user_id", uid, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request, _ *auth.Identity) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	users, err := s.users.List(r.Context())
	if err != nil {
		s.log.Error("list users failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

type updateRoleRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

func (s *Server) handleUpdateRole(w http.ResponseWriter, r *http.Request, id *auth.Identity) {
	if r.Method != http.MethodPut {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req updateRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	uid, err := uuid.Parse(strings.TrimSpace(req.UserID))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user_id")
		return
	}
	if !platform.ValidRole(req.Role) {
		writeError(w, http.StatusBadRequest, "invalid role")
		return
	}
	if uid.String() == id.ID && req.Role != "super_admin" {
		writeError(w, http.StatusBadRequest, "cannot demote own account")
		return
	}

	if err := s.users.UpdateRole(r.Context(), uid, req.Role); err != nil {
		if errors.Is(err, platform.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		s.log.Error("role update failed", "user_id", uid, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.log.Info("role updated", "user_id", uid, "role", req.Role, "actor", id.ID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}
