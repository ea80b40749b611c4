package httpx

import (
	"context"
	"errors"
	"net/http"

	domainauth "github.com/target/institute-web/internal/domain/auth"
	"github.com/target/institute-web/internal/domain/model"
)

// ContentAPI is the service surface shared by the archive, books and gallery collections.
type ContentAPI[T model.Visible, C any, U any] interface {
	ListVisible(ctx context.Context, viewer domainauth.Role) ([]T, error)
	GetVisible(ctx context.Context, id string, viewer domainauth.Role) (T, error)
	List(ctx context.Context) ([]T, error)
	Create(ctx context.Context, req *C) (T, error)
	Update(ctx context.Context, id string, req U) (T, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// ContentHandlers serves one content collection. Reads filter by the viewer's role;
// writes are mounted under the gated admin prefix.
type ContentHandlers[T model.Visible, C any, U any] struct {
	Svc ContentAPI[T, C, U]
	// Collection names the list key in responses, e.g. "books".
	Collection string
	// OnCreate lets a collection stamp the creating admin onto the request.
	OnCreate func(req *C, v *Viewer)
}

var errMissingID = errors.New("id is required")

// List returns the records visible to the viewer.
func (h *ContentHandlers[T, C, U]) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.Svc.ListVisible(r.Context(), ViewerRole(r.Context()))
	if err != nil {
		writeServiceError(w, err, "list_failed")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{h.Collection: items})
}

// Get returns one record; records above the viewer's tier are reported as not found.
func (h *ContentHandlers[T, C, U]) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errMissingID})
		return
	}
	item, err := h.Svc.GetVisible(r.Context(), id, ViewerRole(r.Context()))
	if err != nil {
		writeServiceError(w, err, "get_failed")
		return
	}
	WriteJSON(w, http.StatusOK, item)
}

// AdminList returns every record regardless of visibility.
func (h *ContentHandlers[T, C, U]) AdminList(w http.ResponseWriter, r *http.Request) {
	items, err := h.Svc.List(r.Context())
	if err != nil {
		writeServiceError(w, err, "list_failed")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{h.Collection: items})
}

// Create inserts a record.
func (h *ContentHandlers[T, C, U]) Create(w http.ResponseWriter, r *http.Request) {
	var req C
	if !DecodeJSON(w, r, &req) {
		return
	}
	if h.OnCreate != nil {
		if v, ok := ViewerFromContext(r.Context()); ok {
			h.OnCreate(&req, v)
		}
	}
	item, err := h.Svc.Create(r.Context(), &req)
	if err != nil {
		writeServiceError(w, err, "create_failed")
		return
	}
	WriteJSON(w, http.StatusCreated, item)
}

// Update applies a partial update.
func (h *ContentHandlers[T, C, U]) Update(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errMissingID})
		return
	}
	var req U
	if !DecodeJSON(w, r, &req) {
		return
	}
	item, err := h.Svc.Update(r.Context(), id, req)
	if err != nil {
		writeServiceError(w, err, "update_failed")
		return
	}
	WriteJSON(w, http.StatusOK, item)
}

// Delete removes a record.
func (h *ContentHandlers[T, C, U]) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errMissingID})
		return
	}
	deleted, err := h.Svc.Delete(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, "delete_failed")
		return
	}
	if !deleted {
		WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "not_found", Err: errors.New(h.Collection + " record not found")})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// stampArchiveCreator records the creating admin on new archive entries.
func stampArchiveCreator(req *model.CreateArchiveEntryRequest, v *Viewer) {
	id := v.UserID
	req.CreatedBy = &id
}
