// Package httpx provides the HTTP surface: public content, auth endpoints and the gated admin API.
package httpx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	domainauth "github.com/target/institute-web/internal/domain/auth"
	"github.com/target/institute-web/internal/domain/model"
	"github.com/target/institute-web/internal/observability/metrics"
)

type (
	archiveAPI = ContentAPI[*model.ArchiveEntry, model.CreateArchiveEntryRequest, model.UpdateArchiveEntryRequest]
	bookAPI    = ContentAPI[*model.Book, model.CreateBookRequest, model.UpdateBookRequest]
	galleryAPI = ContentAPI[*model.GalleryItem, model.CreateGalleryItemRequest, model.UpdateGalleryItemRequest]
)

// RoleManager reads and changes stored roles with elevated credentials.
type RoleManager interface {
	RoleReader
	RoleAdmin
}

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Auth     AuthAPI
	Gate     AccessDecider
	Roles    RoleManager
	Profiles OwnProfileReader
	Archive  archiveAPI
	Books    bookAPI
	Gallery  galleryAPI
	// Uploads is optional; nil leaves POST /api/admin/uploads unregistered.
	Uploads Uploader

	Cookies CookieConfig
	// AnonKey is required as the apikey header on sign-up and sign-in.
	AnonKey string
	// ServiceKey authenticates the server-to-server /api/service calls;
	// empty leaves them unregistered.
	ServiceKey string
	// SignIn limits sign-up and sign-in per client IP; nil disables limiting.
	SignIn *RateLimiter

	OIDCEnabled     bool
	OIDCRedirectURL string
	EventsHeartbeat time.Duration
	MaxUploadBytes  int64

	Metrics *metrics.Metrics
	// Gatherer backs GET /metrics; nil leaves it unregistered.
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// NewRouter builds the handler tree. The access gate and request middleware wrap every route.
func NewRouter(s RouterServices) http.Handler {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	identify := IdentifyViewer(s.Auth, s.Roles, logger)
	authHandlers := &AuthHandlers{
		Svc:             s.Auth,
		Cookies:         s.Cookies,
		OIDCRedirectURL: s.OIDCRedirectURL,
		Heartbeat:       s.EventsHeartbeat,
		Metrics:         s.Metrics,
		Logger:          logger,
	}
	pages := &PageHandlers{OIDCEnabled: s.OIDCEnabled, Logger: logger}

	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))
	if s.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}))
	}

	registerPageRoutes(mux, pages, identify)
	registerAuthRoutes(mux, authHandlers, s, identify)
	registerContentRoutes(mux, s, identify)
	mux.Handle("GET /api/me/profile", identify(http.HandlerFunc((&MeHandlers{Profiles: s.Profiles}).Profile)))
	registerAdminRoutes(mux, s, logger)
	registerServiceRoutes(mux, s, logger)

	return Chain(mux,
		Recover(logger),
		Logging(logger, s.Metrics),
		AccessGate(s.Gate, s.Cookies),
	)
}

func registerPageRoutes(mux *http.ServeMux, h *PageHandlers, identify func(http.Handler) http.Handler) {
	mux.Handle("GET /{$}", identify(http.HandlerFunc(h.Index)))
	mux.Handle("GET /pages/{slug}", identify(http.HandlerFunc(h.Page)))
	mux.Handle("GET /unauthorized", identify(http.HandlerFunc(h.Unauthorized)))
	mux.Handle("GET /auth/sign-in", identify(http.HandlerFunc(h.SignIn)))
}

func registerAuthRoutes(
	mux *http.ServeMux,
	h *AuthHandlers,
	s RouterServices,
	identify func(http.Handler) http.Handler,
) {
	credentialed := []func(http.Handler) http.Handler{RequireAPIKey(s.AnonKey)}
	if s.SignIn != nil {
		credentialed = append(credentialed, s.SignIn.Middleware)
	}
	mux.Handle("POST /auth/sign-up", Chain(http.HandlerFunc(h.SignUp), credentialed...))
	mux.Handle("POST /auth/sign-in", Chain(http.HandlerFunc(h.SignIn), credentialed...))
	mux.Handle("POST /auth/sign-out", http.HandlerFunc(h.SignOut))
	mux.Handle("POST /auth/refresh", http.HandlerFunc(h.Refresh))
	mux.Handle("GET /auth/session", http.HandlerFunc(h.Session))
	mux.Handle("GET /auth/events", identify(http.HandlerFunc(h.Events)))
	if s.OIDCEnabled {
		mux.Handle("GET /auth/oidc/login", http.HandlerFunc(h.OIDCLogin))
		mux.Handle("GET /auth/oidc/callback", http.HandlerFunc(h.OIDCCallback))
	}
}

func registerContentRoutes(mux *http.ServeMux, s RouterServices, identify func(http.Handler) http.Handler) {
	archive := &ContentHandlers[*model.ArchiveEntry, model.CreateArchiveEntryRequest, model.UpdateArchiveEntryRequest]{
		Svc: s.Archive, Collection: "archive", OnCreate: stampArchiveCreator,
	}
	books := &ContentHandlers[*model.Book, model.CreateBookRequest, model.UpdateBookRequest]{
		Svc: s.Books, Collection: "books",
	}
	gallery := &ContentHandlers[*model.GalleryItem, model.CreateGalleryItemRequest, model.UpdateGalleryItemRequest]{
		Svc: s.Gallery, Collection: "gallery",
	}
	admin := RequireViewRole(domainauth.RoleAdmin)
	csrf := CSRFProtection(s.Cookies)

	type collection struct {
		name                           string
		list, get                      http.HandlerFunc
		adminList, create, update, del http.HandlerFunc
	}
	for _, c := range []collection{
		{"archive", archive.List, archive.Get, archive.AdminList, archive.Create, archive.Update, archive.Delete},
		{"books", books.List, books.Get, books.AdminList, books.Create, books.Update, books.Delete},
		{"gallery", gallery.List, gallery.Get, gallery.AdminList, gallery.Create, gallery.Update, gallery.Delete},
	} {
		mux.Handle("GET /api/"+c.name, identify(c.list))
		mux.Handle("GET /api/"+c.name+"/{id}", identify(c.get))
		mux.Handle("GET /api/admin/"+c.name, Chain(c.adminList, admin))
		mux.Handle("POST /api/admin/"+c.name, Chain(c.create, admin, csrf))
		mux.Handle("PUT /api/admin/"+c.name+"/{id}", Chain(c.update, admin, csrf))
		mux.Handle("DELETE /api/admin/"+c.name+"/{id}", Chain(c.del, admin, csrf))
	}
}

func registerAdminRoutes(mux *http.ServeMux, s RouterServices, logger *slog.Logger) {
	h := &AdminHandlers{Roles: s.Roles, Uploads: s.Uploads, MaxUploadBytes: s.MaxUploadBytes, Logger: logger}
	admin := RequireViewRole(domainauth.RoleAdmin)
	csrf := CSRFProtection(s.Cookies)

	mux.Handle("GET /admin", Chain(http.HandlerFunc(h.Dashboard), admin, csrf))
	mux.Handle("GET /api/admin/csrf", Chain(http.HandlerFunc(h.CSRF), admin, csrf))
	mux.Handle("GET /api/admin/users", Chain(http.HandlerFunc(h.ListUsers), admin))
	mux.Handle("PUT /api/admin/users/{id}/role", Chain(http.HandlerFunc(h.SetRole), admin, csrf))
	if s.Uploads != nil {
		mux.Handle("POST /api/admin/uploads", Chain(http.HandlerFunc(h.Upload), admin, csrf))
	}
}

// registerServiceRoutes mounts role management for trusted backends. Callers present
// the service key instead of a session, so there is no viewer and no CSRF cookie.
func registerServiceRoutes(mux *http.ServeMux, s RouterServices, logger *slog.Logger) {
	if s.ServiceKey == "" {
		return
	}
	h := &AdminHandlers{Roles: s.Roles, Logger: logger}
	keyed := RequireAPIKey(s.ServiceKey)

	mux.Handle("GET /api/service/users", Chain(http.HandlerFunc(h.ListUsers), keyed))
	mux.Handle("PUT /api/service/users/{id}/role", Chain(http.HandlerFunc(h.SetRole), keyed))
}
