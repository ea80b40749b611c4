package httpx

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/institute-web/internal/accessgate"
	domainauth "github.com/target/institute-web/internal/domain/auth"
	"github.com/target/institute-web/internal/service"
)

func TestAdminRoutes_AnonymousIsRedirected(t *testing.T) {
	h := newHarness(t)
	for _, path := range []string{"/admin", "/api/admin/users", "/api/admin/books", "/api/admin/csrf"} {
		t.Run(path, func(t *testing.T) {
			rec := h.get(t, path)
			assert.Equal(t, http.StatusSeeOther, rec.Code)
			assert.Equal(t, accessgate.UnauthorizedPath, rec.Header().Get("Location"))
		})
	}
}

func TestAdminRoutes_UserIsRedirected(t *testing.T) {
	h := newHarness(t)
	_, cookies := h.session(t, "reader@example.org", domainauth.RoleUser)

	rec := h.get(t, "/api/admin/users", cookies...)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, accessgate.UnauthorizedPath, rec.Header().Get("Location"))
}

func TestAdminRoutes_AdminListsUsers(t *testing.T) {
	h := newHarness(t)
	_, cookies := h.session(t, "dean@example.org", domainauth.RoleAdmin)
	h.stack.SignUp(t, "reader@example.org", domainauth.RoleUser)

	rec := h.get(t, "/api/admin/users", cookies...)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody[struct {
		Users []domainauth.Profile `json:"users"`
	}](t, rec)
	assert.Len(t, body.Users, 2)

	dash := h.get(t, "/admin", cookies...)
	require.Equal(t, http.StatusOK, dash.Code)
	assert.Contains(t, dash.Body.String(), "dean@example.org")
}

func TestAdminRoutes_UnknownStoredRoleIsRedirected(t *testing.T) {
	h := newHarness(t)
	_, cookies := h.session(t, "odd@example.org", domainauth.Role("superuser"))

	rec := h.get(t, "/admin", cookies...)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
}

func TestAdminRoutes_RoleChangeAppliesToExistingSession(t *testing.T) {
	h := newHarness(t)
	_, adminCookies := h.session(t, "dean@example.org", domainauth.RoleAdmin)
	target, targetCookies := h.session(t, "lecturer@example.org", domainauth.RoleUser)

	require.Equal(t, http.StatusSeeOther, h.get(t, "/admin", targetCookies...).Code)

	token, csrfCookie := h.csrf(t, adminCookies)
	req := jsonRequest(t, http.MethodPut, "/api/admin/users/"+target.ID+"/role", map[string]string{"role": "admin"})
	req.Header.Set(CSRFHeaderName, token)
	rec := h.do(t, req, append(adminCookies, csrfCookie)...)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domainauth.RoleAdmin, decodeBody[domainauth.Profile](t, rec).Role)

	// Same cookies, no re-login.
	assert.Equal(t, http.StatusOK, h.get(t, "/admin", targetCookies...).Code)
	assert.Contains(t, h.stack.Events.Kinds(), domainauth.EventUserUpdated)

	// Demotion is immediate as well.
	req = jsonRequest(t, http.MethodPut, "/api/admin/users/"+target.ID+"/role", map[string]string{"role": "user"})
	req.Header.Set(CSRFHeaderName, token)
	require.Equal(t, http.StatusOK, h.do(t, req, append(adminCookies, csrfCookie)...).Code)
	assert.Equal(t, http.StatusSeeOther, h.get(t, "/admin", targetCookies...).Code)
}

func TestAdminRoutes_SetRoleValidation(t *testing.T) {
	h := newHarness(t)
	_, adminCookies := h.session(t, "dean@example.org", domainauth.RoleAdmin)
	target := h.stack.SignUp(t, "reader@example.org", domainauth.RoleUser)
	token, csrfCookie := h.csrf(t, adminCookies)

	tests := []struct {
		name     string
		path     string
		body     any
		wantCode int
		wantErr  string
	}{
		{"unknown role", "/api/admin/users/" + target.ID + "/role", map[string]string{"role": "superuser"}, http.StatusBadRequest, "validation"},
		{"unknown user", "/api/admin/users/missing/role", map[string]string{"role": "admin"}, http.StatusNotFound, "not_found"},
		{"unknown field", "/api/admin/users/" + target.ID + "/role", map[string]string{"rank": "admin"}, http.StatusBadRequest, "invalid_json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := jsonRequest(t, http.MethodPut, tt.path, tt.body)
			req.Header.Set(CSRFHeaderName, token)
			rec := h.do(t, req, append(adminCookies, csrfCookie)...)
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantErr, decodeBody[map[string]string](t, rec)["error"])
		})
	}
}

func TestAdminRoutes_MutationsRequireCSRF(t *testing.T) {
	h := newHarness(t)
	_, adminCookies := h.session(t, "dean@example.org", domainauth.RoleAdmin)
	target := h.stack.SignUp(t, "reader@example.org", domainauth.RoleUser)
	_, csrfCookie := h.csrf(t, adminCookies)

	req := jsonRequest(t, http.MethodPut, "/api/admin/users/"+target.ID+"/role", map[string]string{"role": "admin"})
	rec := h.do(t, req, append(adminCookies, csrfCookie)...)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = jsonRequest(t, http.MethodPut, "/api/admin/users/"+target.ID+"/role", map[string]string{"role": "admin"})
	req.Header.Set(CSRFHeaderName, "forged")
	rec = h.do(t, req, append(adminCookies, csrfCookie)...)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	role, err := h.stack.Roles.Resolve(req.Context(), target.ID)
	require.NoError(t, err)
	assert.Equal(t, domainauth.RoleUser, role)
}

func TestAdminRoutes_ExpiredAccessTokenIsRefreshedByGate(t *testing.T) {
	h := newHarness(t)
	_, cookies := h.session(t, "dean@example.org", domainauth.RoleAdmin)
	h.stack.Clock.Advance(20 * time.Minute)

	rec := h.get(t, "/api/admin/users", cookies...)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	set := rec.Result().Cookies()
	access := findCookie(set, AccessCookieName)
	refresh := findCookie(set, RefreshCookieName)
	require.NotNil(t, access)
	require.NotNil(t, refresh)
	assert.NotEqual(t, cookies[0].Value, access.Value)
	assert.NotEqual(t, cookies[1].Value, refresh.Value)
	assert.True(t, access.HttpOnly)

	// The rotated pair keeps working.
	assert.Equal(t, http.StatusOK, h.get(t, "/api/admin/users", access, refresh).Code)
}

func TestAdminRoutes_RefreshedCookiesSurviveDenial(t *testing.T) {
	h := newHarness(t)
	_, cookies := h.session(t, "reader@example.org", domainauth.RoleUser)
	h.stack.Clock.Advance(20 * time.Minute)

	rec := h.get(t, "/admin", cookies...)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.NotNil(t, findCookie(rec.Result().Cookies(), RefreshCookieName))
}

func TestAdminRoutes_RevokedRefreshClearsCookies(t *testing.T) {
	h := newHarness(t)
	_, cookies := h.session(t, "dean@example.org", domainauth.RoleAdmin)
	h.stack.Clock.Advance(20 * time.Minute)
	require.NoError(t, h.stack.Sessions.Delete(t.Context(), service.SessionIDFromRefreshToken(cookies[1].Value)))

	rec := h.get(t, "/admin", cookies...)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	cleared := findCookie(rec.Result().Cookies(), AccessCookieName)
	require.NotNil(t, cleared)
	assert.Equal(t, -1, cleared.MaxAge)
}

func TestAdminRoutes_Upload(t *testing.T) {
	h := newHarness(t)
	_, cookies := h.session(t, "dean@example.org", domainauth.RoleAdmin)
	token, csrfCookie := h.csrf(t, cookies)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("folder", "gallery"))
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="chapel.png"`)
	hdr.Set("Content-Type", "image/png")
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write([]byte("\x89PNG fake image"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/admin/uploads", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(CSRFHeaderName, token)
	rec := h.do(t, req, append(cookies, csrfCookie)...)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	url := decodeBody[map[string]string](t, rec)["url"]
	require.True(t, strings.HasPrefix(url, "https://cdn.example.org/gallery/"), url)
	stored, ok := h.blobs.Object(strings.TrimPrefix(url, "https://cdn.example.org/"))
	require.True(t, ok)
	assert.Equal(t, "\x89PNG fake image", string(stored))
}

func TestAdminRoutes_UploadRejectsUnknownFolder(t *testing.T) {
	h := newHarness(t)
	_, cookies := h.session(t, "dean@example.org", domainauth.RoleAdmin)
	token, csrfCookie := h.csrf(t, cookies)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("folder", "../etc"))
	fw, err := mw.CreateFormFile("file", "notes.pdf")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("%PDF-1.7"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/admin/uploads", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(CSRFHeaderName, token)
	rec := h.do(t, req, append(cookies, csrfCookie)...)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation", decodeBody[map[string]string](t, rec)["error"])
}

func TestRequireViewRole(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	handler := RequireViewRole(domainauth.RoleAdmin)(ok)

	tests := []struct {
		name   string
		viewer *Viewer
		want   int
	}{
		{"no viewer", nil, http.StatusSeeOther},
		{"viewer without identity", &Viewer{Role: domainauth.RoleAdmin}, http.StatusSeeOther},
		{"user", &Viewer{UserID: "u1", Role: domainauth.RoleUser}, http.StatusSeeOther},
		{"no role", &Viewer{UserID: "u1"}, http.StatusSeeOther},
		{"admin", &Viewer{UserID: "u1", Role: domainauth.RoleAdmin}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			req = req.WithContext(WithViewer(req.Context(), tt.viewer))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestMetricsEndpointExposesGateDecisions(t *testing.T) {
	h := newHarness(t)
	h.get(t, "/admin")

	rec := h.get(t, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `institute_gate_decisions_total{reason="no_session",result="deny"} 1`)
}

func TestServiceRoutes_RequireServiceKey(t *testing.T) {
	h := newHarness(t)
	target := h.stack.SignUp(t, "lecturer@example.org", domainauth.RoleUser)
	_, userCookies := h.session(t, "reader@example.org", domainauth.RoleUser)

	tests := []struct {
		name    string
		key     string
		cookies []*http.Cookie
	}{
		{"no key", "", nil},
		{"anon key", testAnonKey, nil},
		{"session without key", "", userCookies},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := jsonRequest(t, http.MethodPut, "/api/service/users/"+target.ID+"/role", map[string]string{"role": "admin"})
			if tt.key != "" {
				req.Header.Set(APIKeyHeader, tt.key)
			}
			rec := h.do(t, req, tt.cookies...)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}

	role, err := h.stack.Roles.Resolve(t.Context(), target.ID)
	require.NoError(t, err)
	assert.Equal(t, domainauth.RoleUser, role)
}

func TestServiceRoutes_SetRoleWithServiceKey(t *testing.T) {
	h := newHarness(t)
	target, targetCookies := h.session(t, "lecturer@example.org", domainauth.RoleUser)

	list := httptest.NewRequest(http.MethodGet, "/api/service/users", nil)
	list.Header.Set(APIKeyHeader, testServiceKey)
	rec := h.do(t, list)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, decodeBody[struct {
		Users []domainauth.Profile `json:"users"`
	}](t, rec).Users, 1)

	req := jsonRequest(t, http.MethodPut, "/api/service/users/"+target.ID+"/role", map[string]string{"role": "admin"})
	req.Header.Set(APIKeyHeader, testServiceKey)
	rec = h.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domainauth.RoleAdmin, decodeBody[domainauth.Profile](t, rec).Role)

	assert.Equal(t, http.StatusOK, h.get(t, "/admin", targetCookies...).Code, "promotion applies to the live session")
	assert.Contains(t, h.stack.Events.Kinds(), domainauth.EventUserUpdated)
}
