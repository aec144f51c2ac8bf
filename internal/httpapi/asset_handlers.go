package httpapi

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"custodia.org/internal/asset"
	"custodia.org/internal/rbac"
	"custodia.org/internal/vault"
)

type createAssetRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	MimeType    string `json:"mime_type"`
	Content     string `json:"content"` // base64
}

type updateAssetRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	MimeType    *string `json:"mime_type"`
	Content     *string `json:"content"` // base64
}

type assetView struct {
	ID          string     `json:"id"`
	Kind        string     `json:"kind"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	MimeType    string     `json:"mime_type"`
	Checksum    string     `json:"checksum"`
	KeyVersion  string     `json:"key_version,omitempty"`
	CreatedBy   string     `json:"created_by"`
	UpdatedBy   string     `json:"updated_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

type assetContentResponse struct {
	Asset   assetView `json:"asset"`
	Content string    `json:"content"` // base64
}

func viewAsset(rec *asset.Record) assetView {
	return assetView{
		ID:          rec.ID,
		Kind:        string(rec.Kind),
		Title:       rec.Title,
		Description: rec.Description,
		MimeType:    rec.MimeType,
		Checksum:    rec.Checksum,
		KeyVersion:  rec.KeyVersion,
		CreatedBy:   rec.CreatedBy,
		UpdatedBy:   rec.UpdatedBy,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
		DeletedAt:   rec.DeletedAt,
	}
}

// handleAssets routes /v1/assets/{kind} and /v1/assets/{kind}/{id}.
func (a *API) handleAssets(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/assets/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	kind, err := rbac.ParseResource(parts[0])
	if err != nil {
		writeError(w, r, http.StatusNotFound, "unknown asset kind")
		return
	}
	actor, ok := actorFromRequest(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	switch len(parts) {
	case 1:
		switch r.Method {
		case http.MethodPost:
			a.createAsset(w, r, actor, kind)
		case http.MethodGet:
			a.listAssets(w, r, actor, kind)
		default:
			methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
		}
	case 2:
		id := parts[1]
		switch r.Method {
		case http.MethodGet:
			a.fetchAsset(w, r, actor, kind, id)
		case http.MethodPut:
			a.updateAsset(w, r, actor, kind, id)
		case http.MethodDelete:
			a.deleteAsset(w, r, actor, kind, id)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
		}
	case 3:
		if parts[2] != "meta" {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.describeAsset(w, r, actor, kind, parts[1])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

// describeAsset returns metadata without touching blob storage.
func (a *API) describeAsset(w http.ResponseWriter, r *http.Request, actor asset.Actor, kind rbac.Resource, id string) {
	rec, err := a.assets.Describe(r.Context(), actor, kind, id)
	if err != nil {
		handleAssetError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewAsset(rec))
}

func (a *API) createAsset(w http.ResponseWriter, r *http.Request, actor asset.Actor, kind rbac.Resource) {
	var req createAssetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	content, err := base64.StdEncoding.DecodeString(req.Content)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "content must be base64")
		return
	}
	rec, err := a.assets.Create(r.Context(), actor, asset.CreateInput{
		Kind:        kind,
		Title:       req.Title,
		Description: req.Description,
		MimeType:    req.MimeType,
		Content:     content,
	})
	if err != nil {
		handleAssetError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/v1/assets/%s/%s", kind, rec.ID))
	writeJSON(w, http.StatusCreated, viewAsset(rec))
}

func (a *API) fetchAsset(w http.ResponseWriter, r *http.Request, actor asset.Actor, kind rbac.Resource, id string) {
	rec, content, err := a.assets.Fetch(r.Context(), actor, kind, id)
	if err != nil {
		handleAssetError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, assetContentResponse{
		Asset:   viewAsset(rec),
		Content: base64.StdEncoding.EncodeToString(content),
	})
}

func (a *API) updateAsset(w http.ResponseWriter, r *http.Request, actor asset.Actor, kind rbac.Resource, id string) {
	var req updateAssetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	input := asset.UpdateInput{
		Title:       req.Title,
		Description: req.Description,
		MimeType:    req.MimeType,
	}
	if req.Content != nil {
		content, err := base64.StdEncoding.DecodeString(*req.Content)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "content must be base64")
			return
		}
		input.Content = content
	}
	rec, err := a.assets.Update(r.Context(), actor, kind, id, input)
	if err != nil {
		handleAssetError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewAsset(rec))
}

func (a *API) deleteAsset(w http.ResponseWriter, r *http.Request, actor asset.Actor, kind rbac.Resource, id string) {
	if err := a.assets.Delete(r.Context(), actor, kind, id); err != nil {
		handleAssetError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) listAssets(w http.ResponseWriter, r *http.Request, actor asset.Actor, kind rbac.Resource) {
	limit, err := parseBoundedInt(r.URL.Query().Get("limit"), 50, 1, 200)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "limit must be between 1 and 200")
		return
	}
	offset, err := parseBoundedInt(r.URL.Query().Get("offset"), 0, 0, 1<<30)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}
	records, err := a.assets.List(r.Context(), actor, kind, limit, offset)
	if err != nil {
		handleAssetError(w, r, err)
		return
	}
	views := make([]assetView, 0, len(records))
	for _, rec := range records {
		views = append(views, viewAsset(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": views})
}

func handleAssetError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, asset.ErrForbidden):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, asset.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, asset.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, vault.ErrDecrypt):
		// Sealed-content failures reduce to one opaque server error.
		writeError(w, r, http.StatusInternalServerError, "content unavailable")
	default:
		writeError(w, r, http.StatusInternalServerError, "asset operation failed")
	}
}
