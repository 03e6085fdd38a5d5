package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/storekit/identity/internal/audit"
	"github.com/storekit/identity/internal/auth"
)

type createRoleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type updateRoleRequest struct {
	Description string `json:"description"`
}

type createPermissionRequest struct {
	Name     string `json:"name"`
	Resource string `json:"resource"`
	Action   string `json:"action"`
}

type setEnabledRequest struct {
	Enabled *bool `json:"enabled"`
}

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		roles, err := a.rbac.ListRoles(r.Context())
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
	case http.MethodPost:
		var req createRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role, err := a.rbac.CreateRole(r.Context(), req.Name, req.Description)
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.role.created", map[string]any{
			"role": role.Name,
		})
		writeJSON(w, http.StatusCreated, role)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// handleRoleResource routes /v1/roles/{name}[/permissions[/{permission}]].
func (a *API) handleRoleResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/roles/")
	path = strings.Trim(path, "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	name := parts[0]

	switch len(parts) {
	case 1:
		a.handleRole(w, r, name)
	case 2:
		if parts[1] != "permissions" {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		a.handleRolePermissions(w, r, name)
	case 3:
		if parts[1] != "permissions" {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		a.handleRolePermission(w, r, name, parts[2])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleRole(w http.ResponseWriter, r *http.Request, name string) {
	switch r.Method {
	case http.MethodPatch:
		var req updateRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role, err := a.rbac.UpdateRole(r.Context(), name, req.Description)
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.role.updated", map[string]any{
			"role": role.Name,
		})
		writeJSON(w, http.StatusOK, role)
	case http.MethodDelete:
		if err := a.rbac.DeleteRole(r.Context(), name); err != nil {
			handleRBACError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.role.deleted", map[string]any{
			"role": name,
		})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) handleRolePermissions(w http.ResponseWriter, r *http.Request, name string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	perms, err := a.rbac.RolePermissions(r.Context(), name)
	if err != nil {
		handleRBACError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"permissions": perms})
}

func (a *API) handleRolePermission(w http.ResponseWriter, r *http.Request, name, permission string) {
	switch r.Method {
	case http.MethodPost:
		if err := a.rbac.AddPermissionToRole(r.Context(), name, permission); err != nil {
			handleRBACError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.role.permission.granted", map[string]any{
			"role":       name,
			"permission": permission,
		})
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		if err := a.rbac.RemovePermissionFromRole(r.Context(), name, permission); err != nil {
			handleRBACError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.role.permission.revoked", map[string]any{
			"role":       name,
			"permission": permission,
		})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodDelete)
	}
}

func (a *API) handlePermissions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req createPermissionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	perm, err := a.rbac.CreatePermission(r.Context(), req.Name, req.Resource, req.Action)
	if err != nil {
		handleRBACError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "rbac.permission.created", map[string]any{
		"permission": perm.Name,
	})
	writeJSON(w, http.StatusCreated, perm)
}

// handleUserResource routes /v1/users/{username}/roles[/{role}] and
// /v1/users/{username}/enabled.
func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/users/")
	path = strings.Trim(path, "/")
	parts := strings.Split(path, "/")
	if path == "" || len(parts) < 2 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	username := parts[0]

	switch {
	case parts[1] == "enabled" && len(parts) == 2:
		a.handleUserEnabled(w, r, username)
	case parts[1] == "roles" && len(parts) == 2:
		a.handleUserRoles(w, r, username)
	case parts[1] == "roles" && len(parts) == 3:
		a.handleUserRole(w, r, username, parts[2])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleUserEnabled(w http.ResponseWriter, r *http.Request, username string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	var req setEnabledRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Enabled == nil {
		writeError(w, r, http.StatusBadRequest, "enabled is required")
		return
	}
	if err := a.auth.SetUserEnabled(r.Context(), username, *req.Enabled); err != nil {
		handleRBACError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "rbac.user.enabled.changed", map[string]any{
		"username": username,
		"enabled":  *req.Enabled,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleUserRoles(w http.ResponseWriter, r *http.Request, username string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	roles, err := a.rbac.UserRoles(r.Context(), username)
	if err != nil {
		handleRBACError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (a *API) handleUserRole(w http.ResponseWriter, r *http.Request, username, role string) {
	switch r.Method {
	case http.MethodPost:
		if err := a.rbac.AddRoleToUser(r.Context(), username, role); err != nil {
			handleRBACError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.user.role.granted", map[string]any{
			"username": username,
			"role":     role,
		})
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		if err := a.rbac.RemoveRoleFromUser(r.Context(), username, role); err != nil {
			handleRBACError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.user.role.revoked", map[string]any{
			"username": username,
			"role":     role,
		})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodDelete)
	}
}

func handleRBACError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrAlreadyExists), errors.Is(err, auth.ErrRoleInUse):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "operation failed")
	}
}
