package httpx

import (
	"bytes"
	"html/template"
	"log/slog"
	"net/http"

	domainauth "github.com/target/institute-web/internal/domain/auth"
)

// page is one public document. Body copy is managed outside this service.
type page struct {
	Slug  string
	Title string
}

var publicPages = map[string]page{
	"about":   {Slug: "about", Title: "About the Institute"},
	"history": {Slug: "history", Title: "History"},
	"bylaws":  {Slug: "bylaws", Title: "Bylaws"},
}

var pageTemplate = template.Must(template.New("page").Parse(`<!doctype html>
<html lang="en">
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
<nav>
<a href="/">Home</a>
{{range .Nav}}<a href="/pages/{{.Slug}}">{{.Title}}</a>
{{end}}{{if .IsAdmin}}<a href="/admin">Admin</a>
{{end}}{{if .SignedIn}}<form method="post" action="/auth/sign-out"><button>Sign out</button></form>
{{else}}<a href="/auth/sign-in">Sign in</a>
{{end}}</nav>
<main>
<h1>{{.Title}}</h1>
{{if .Message}}<p>{{.Message}}</p>{{end}}
{{if .Links}}<ul>{{range .Links}}<li><a href="{{.Href}}">{{.Label}}</a></li>{{end}}</ul>{{end}}
</main>
</body>
</html>
`))

type pageLink struct {
	Href  string
	Label string
}

type pageView struct {
	Title    string
	Message  string
	Nav      []page
	Links    []pageLink
	SignedIn bool
	IsAdmin  bool
}

// PageHandlers serves the public documents, the sign-in landing page and the unauthorized page.
type PageHandlers struct {
	OIDCEnabled bool
	Logger      *slog.Logger
}

func (h *PageHandlers) render(w http.ResponseWriter, r *http.Request, status int, v pageView) {
	viewer, ok := ViewerFromContext(r.Context())
	v.SignedIn = ok
	// The admin link is a menu hint only; the gate decides on /admin.
	v.IsAdmin = ok && domainauth.IsAdmin(viewer.Role)
	v.Nav = []page{publicPages["about"], publicPages["history"], publicPages["bylaws"]}

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, v); err != nil {
		logger := h.Logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.ErrorContext(r.Context(), "page render failed", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// Index serves the site landing page.
// GET /{$}.
func (h *PageHandlers) Index(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, pageView{
		Title: "Theological Institute",
		Links: []pageLink{
			{Href: "/api/archive", Label: "Archive"},
			{Href: "/api/books", Label: "Publications"},
			{Href: "/api/gallery", Label: "Gallery"},
		},
	})
}

// Page serves one of the static documents.
// GET /pages/{slug}.
func (h *PageHandlers) Page(w http.ResponseWriter, r *http.Request) {
	p, ok := publicPages[r.PathValue("slug")]
	if !ok {
		h.render(w, r, http.StatusNotFound, pageView{Title: "Page not found"})
		return
	}
	h.render(w, r, http.StatusOK, pageView{Title: p.Title})
}

// Unauthorized is the target of every gate denial.
// GET /unauthorized.
func (h *PageHandlers) Unauthorized(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusForbidden, pageView{
		Title:   "Unauthorized",
		Message: "You do not have access to this page. Sign in with an account that has the required role.",
		Links:   []pageLink{{Href: "/auth/sign-in", Label: "Sign in"}},
	})
}

// SignIn lists the available sign-in methods.
// GET /auth/sign-in.
func (h *PageHandlers) SignIn(w http.ResponseWriter, r *http.Request) {
	v := pageView{
		Title:   "Sign in",
		Message: "Sign in with your email and password, or with your institute account.",
	}
	if h.OIDCEnabled {
		v.Links = []pageLink{{Href: "/auth/oidc/login?redirect_uri=%2F", Label: "Sign in with institute account"}}
	}
	h.render(w, r, http.StatusOK, v)
}
