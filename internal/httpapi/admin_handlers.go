package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"custodia.org/internal/auth"
	"custodia.org/internal/rbac"
)

type createRoleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type roleView struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type assignRoleRequest struct {
	RoleID string `json:"role_id"`
}

func viewRole(role *auth.Role) roleView {
	return roleView{
		ID:          role.ID,
		Name:        role.Name,
		Description: role.Description,
		CreatedAt:   role.CreatedAt,
		UpdatedAt:   role.UpdatedAt,
	}
}

func (a *API) handlePrincipals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.requireAdmin(w, r) {
		return
	}
	principals, err := a.auth.ListPrincipals(r.Context())
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	views := make([]principalView, 0, len(principals))
	for _, p := range principals {
		views = append(views, viewPrincipal(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": views})
}

// handlePrincipalScoped routes /v1/principals/{id}/approve and
// /v1/principals/{id}/role.
func (a *API) handlePrincipalScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/principals/"), "/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	principalID := parts[0]
	switch parts[1] {
	case "approve":
		a.approvePrincipal(w, r, principalID)
	case "role":
		a.assignRole(w, r, principalID)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) approvePrincipal(w http.ResponseWriter, r *http.Request, principalID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.requireAdmin(w, r) {
		return
	}
	if err := a.auth.Approve(r.Context(), principalID); err != nil {
		handleAuthError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) assignRole(w http.ResponseWriter, r *http.Request, principalID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.requireAdmin(w, r) {
		return
	}
	var req assignRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.auth.SetRole(r.Context(), principalID, req.RoleID); err != nil {
		handleAuthError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createRole(w, r)
	case http.MethodGet:
		a.listRoles(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

func (a *API) createRole(w http.ResponseWriter, r *http.Request) {
	if !a.requireAdmin(w, r) {
		return
	}
	var req createRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := a.auth.CreateRole(r.Context(), req.Name, req.Description)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/v1/roles/%s", role.ID))
	writeJSON(w, http.StatusCreated, viewRole(role))
}

func (a *API) listRoles(w http.ResponseWriter, r *http.Request) {
	if !a.requireAdmin(w, r) {
		return
	}
	roles, err := a.auth.ListRoles(r.Context())
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	views := make([]roleView, 0, len(roles))
	for _, role := range roles {
		views = append(views, viewRole(role))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": views})
}

// handleRoleScoped routes /v1/roles/{id}/permissions.
func (a *API) handleRoleScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/roles/"), "/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "permissions" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	roleID := parts[0]
	switch r.Method {
	case http.MethodGet:
		a.getRolePermissions(w, r, roleID)
	case http.MethodPut:
		a.setRolePermissions(w, r, roleID)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
	}
}

func (a *API) getRolePermissions(w http.ResponseWriter, r *http.Request, roleID string) {
	if !a.requireAdmin(w, r) {
		return
	}
	set, err := a.perms.Permissions(r.Context(), roleID)
	if err != nil {
		handleRBACError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"permissions": set})
}

func (a *API) setRolePermissions(w http.ResponseWriter, r *http.Request, roleID string) {
	if !a.requireAdmin(w, r) {
		return
	}
	var req map[string][]string
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	set := rbac.PermissionSet{}
	for key, tokens := range req {
		resource, err := rbac.ParseResource(key)
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		set[resource] = tokens
	}
	if err := a.perms.SetPermissions(r.Context(), roleID, set); err != nil {
		handleRBACError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func handleRBACError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, rbac.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, rbac.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "permission operation failed")
	}
}
