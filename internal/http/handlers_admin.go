package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	domainauth "github.com/target/institute-web/internal/domain/auth"
	"github.com/target/institute-web/internal/domain/model"
	"github.com/target/institute-web/internal/service"
)

// RoleAdmin is the elevated role management surface.
type RoleAdmin interface {
	ListUsers(ctx context.Context) ([]*domainauth.Profile, error)
	SetRole(ctx context.Context, actorID, targetID string, req model.UpdateRoleRequest) (*domainauth.Profile, error)
}

// Uploader stores admin uploads and returns their public URL.
type Uploader interface {
	Upload(ctx context.Context, in service.UploadInput) (string, error)
}

// OwnProfileReader reads the caller's own profile through the restricted store.
type OwnProfileReader interface {
	Own(ctx context.Context, viewerID string) (*domainauth.Profile, error)
}

// AdminHandlers serves the gated administration API.
type AdminHandlers struct {
	Roles   RoleAdmin
	Uploads Uploader
	// MaxUploadBytes bounds multipart bodies.
	MaxUploadBytes int64
	Logger         *slog.Logger
}

func (h *AdminHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// Dashboard describes the signed-in administrator and the admin API.
// GET /admin.
func (h *AdminHandlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	v, _ := ViewerFromContext(r.Context())
	WriteJSON(w, http.StatusOK, map[string]any{
		"user": map[string]any{"id": v.UserID, "email": v.Email, "role": v.Role},
		"links": map[string]string{
			"users":   "/api/admin/users",
			"archive": "/api/admin/archive",
			"books":   "/api/admin/books",
			"gallery": "/api/admin/gallery",
			"uploads": "/api/admin/uploads",
		},
	})
}

// CSRF returns the double-submit token for clients that cannot read cookies.
// GET /api/admin/csrf.
func (h *AdminHandlers) CSRF(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"csrf_token": CSRFToken(r)})
}

// ListUsers returns every profile, newest first.
// GET /api/admin/users.
func (h *AdminHandlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Roles.ListUsers(r.Context())
	if err != nil {
		writeServiceError(w, err, "list_failed")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"users": users})
}

// serviceActor is recorded as the actor of role changes made with the service key.
const serviceActor = "service_role"

// SetRole changes a user's role; the change applies on the user's next request.
// PUT /api/admin/users/{id}/role and PUT /api/service/users/{id}/role.
func (h *AdminHandlers) SetRole(w http.ResponseWriter, r *http.Request) {
	targetID := r.PathValue("id")
	if targetID == "" {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errMissingID})
		return
	}
	var req model.UpdateRoleRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	actor := serviceActor
	if v, ok := ViewerFromContext(r.Context()); ok && v.UserID != "" {
		actor = v.UserID
	}
	p, err := h.Roles.SetRole(r.Context(), actor, targetID, req)
	if err != nil {
		writeServiceError(w, err, "update_failed")
		return
	}
	WriteJSON(w, http.StatusOK, p)
}

// Upload stores a multipart "file" part under the "folder" form value.
// POST /api/admin/uploads.
func (h *AdminHandlers) Upload(w http.ResponseWriter, r *http.Request) {
	limit := h.MaxUploadBytes
	if limit <= 0 {
		limit = 10 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit+1<<20)
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, ErrorParams{Code: http.StatusRequestEntityTooLarge, ErrCode: "too_large", Err: err})
			return
		}
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_form", Err: err})
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, hdr, err := r.FormFile("file")
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "validation", Err: errors.New("file is required.")})
		return
	}
	defer file.Close()
	if hdr.Size > limit {
		WriteError(w, ErrorParams{Code: http.StatusRequestEntityTooLarge, ErrCode: "too_large",
			Err: errors.New("file exceeds the upload limit")})
		return
	}

	url, err := h.Uploads.Upload(r.Context(), service.UploadInput{
		Folder:      r.FormValue("folder"),
		ContentType: hdr.Header.Get("Content-Type"),
		Size:        hdr.Size,
		Body:        file,
	})
	if err != nil {
		h.logger().WarnContext(r.Context(), "upload failed", "error", err)
		writeServiceError(w, err, "upload_failed")
		return
	}
	WriteJSON(w, http.StatusCreated, map[string]string{"url": url})
}

// MeHandlers serves the caller's own records.
type MeHandlers struct {
	Profiles OwnProfileReader
}

// Profile returns the caller's profile row via the restricted store.
// GET /api/me/profile.
func (h *MeHandlers) Profile(w http.ResponseWriter, r *http.Request) {
	v, ok := ViewerFromContext(r.Context())
	if !ok {
		WriteError(w, ErrorParams{Code: http.StatusUnauthorized, ErrCode: "no_session", Err: service.ErrNoSession})
		return
	}
	p, err := h.Profiles.Own(r.Context(), v.UserID)
	if err != nil {
		writeServiceError(w, err, "get_failed")
		return
	}
	WriteJSON(w, http.StatusOK, p)
}
