package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/storekit/identity/internal/audit"
	"github.com/storekit/identity/internal/auth"
	"github.com/storekit/identity/internal/obs"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

type userSummary struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles"`
}

type loginResponse struct {
	Message string      `json:"message"`
	Token   string      `json:"token"`
	User    userSummary `json:"user"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type profileResponse struct {
	ID        string     `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	Enabled   bool       `json:"enabled"`
	CreatedAt time.Time  `json:"created_at"`
	LastLogin *time.Time `json:"last_login,omitempty"`
	Roles     []string   `json:"roles"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	user, err := a.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			obs.ObserveLogin("failure")
			_ = audit.LogEvent(r.Context(), "auth.login.failed", map[string]any{
				"username": req.Username,
			})
			writeError(w, r, http.StatusUnauthorized, "invalid username or password")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "login failed")
		return
	}

	token, err := a.auth.IssueToken(user)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}

	obs.ObserveLogin("success")
	_ = audit.LogEvent(r.Context(), "auth.login.succeeded", map[string]any{
		"username": user.Username,
	})

	writeJSON(w, http.StatusOK, loginResponse{
		Message: "Login successful",
		Token:   token,
		User: userSummary{
			ID:       user.ID,
			Username: user.Username,
			Email:    user.Email,
			Roles:    user.RoleNames(),
		},
	})
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	user, err := a.auth.Register(r.Context(), req.Username, req.Password, req.Email)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrDuplicateAccount):
			writeError(w, r, http.StatusBadRequest, "username is already taken")
		case errors.Is(err, auth.ErrInvalidInput):
			writeError(w, r, http.StatusBadRequest, err.Error())
		default:
			writeError(w, r, http.StatusInternalServerError, "registration failed")
		}
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.account.registered", map[string]any{
		"username": user.Username,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Account registered",
		"user": userSummary{
			ID:       user.ID,
			Username: user.Username,
			Email:    user.Email,
			Roles:    user.RoleNames(),
		},
	})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	token := bearerToken(r.Header.Get(authHeader))
	if token == "" {
		w.Header().Set("WWW-Authenticate", `Bearer realm="identity"`)
		writeError(w, r, http.StatusUnauthorized, "missing bearer token")
		return
	}

	refreshed, err := a.auth.RefreshToken(token)
	if err != nil {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		writeError(w, r, http.StatusUnauthorized, "invalid or expired token")
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.token.refreshed", nil)
	writeJSON(w, http.StatusOK, tokenResponse{Token: refreshed})
}

func (a *API) handleProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	user, err := a.auth.FindUser(r.Context(), id.Principal)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "account not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "profile lookup failed")
		return
	}

	writeJSON(w, http.StatusOK, profileResponse{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		Enabled:   user.Enabled,
		CreatedAt: user.CreatedAt,
		LastLogin: user.LastLogin,
		Roles:     user.RoleNames(),
	})
}
