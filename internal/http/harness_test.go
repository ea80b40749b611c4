package httpx

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"github.com/target/institute-web/internal/accessgate"
	domainauth "github.com/target/institute-web/internal/domain/auth"
	"github.com/target/institute-web/internal/mocks"
	mockauth "github.com/target/institute-web/internal/mocks/auth"
	"github.com/target/institute-web/internal/observability/metrics"
	"github.com/target/institute-web/internal/service"
	"github.com/target/institute-web/internal/service/servicetest"
	"go.uber.org/mock/gomock"
)

const (
	testAnonKey    = "anon-test-key"
	testServiceKey = "service-test-key"
)

type harness struct {
	stack   *servicetest.Stack
	archive *mocks.MockArchiveRepository
	books   *mocks.MockBookRepository
	gallery *mocks.MockGalleryRepository
	blobs   *mockauth.MemoryBlobStore
	handler http.Handler
}

type harnessOptions struct {
	signIn *RateLimiter
}

func newHarness(t *testing.T, opts ...harnessOptions) *harness {
	t.Helper()
	var o harnessOptions
	if len(opts) > 0 {
		o = opts[0]
	}
	st := servicetest.New(t)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	gate, err := accessgate.New(accessgate.Options{Auth: st.Auth, Roles: st.Roles, Metrics: m})
	require.NoError(t, err)

	ctrl := gomock.NewController(t)
	h := &harness{
		stack:   st,
		archive: mocks.NewMockArchiveRepository(ctrl),
		books:   mocks.NewMockBookRepository(ctrl),
		gallery: mocks.NewMockGalleryRepository(ctrl),
		blobs:   mockauth.NewMemoryBlobStore("https://cdn.example.org"),
	}
	h.handler = NewRouter(RouterServices{
		Auth:            st.Auth,
		Gate:            gate,
		Roles:           st.Roles,
		Profiles:        st.Own,
		Archive:         service.NewArchiveService(h.archive),
		Books:           service.NewBookService(h.books),
		Gallery:         service.NewGalleryService(h.gallery),
		Uploads:         service.NewUploadService(h.blobs, nil),
		AnonKey:         testAnonKey,
		ServiceKey:      testServiceKey,
		SignIn:          o.signIn,
		OIDCEnabled:     true,
		OIDCRedirectURL: "http://localhost:8080/auth/oidc/callback",
		Metrics:         m,
		Gatherer:        reg,
	})
	return h
}

// session signs up a fresh account with role and returns its session cookies.
func (h *harness) session(t *testing.T, email string, role domainauth.Role) (*domainauth.Identity, []*http.Cookie) {
	t.Helper()
	ident := h.stack.SignUp(t, email, role)
	res := h.stack.SignIn(t, email)
	return ident, tokenCookies(res.Tokens)
}

func tokenCookies(t domainauth.Tokens) []*http.Cookie {
	return []*http.Cookie{
		{Name: AccessCookieName, Value: t.AccessToken},
		{Name: RefreshCookieName, Value: t.RefreshToken},
	}
}

func (h *harness) do(t *testing.T, req *http.Request, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func (h *harness) get(t *testing.T, path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	return h.do(t, httptest.NewRequest(http.MethodGet, path, nil), cookies...)
}

// csrf fetches a double-submit token for an admin session and returns it with its cookie.
func (h *harness) csrf(t *testing.T, cookies []*http.Cookie) (string, *http.Cookie) {
	t.Helper()
	rec := h.get(t, "/api/admin/csrf", cookies...)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	c := findCookie(rec.Result().Cookies(), CSRFCookieName)
	require.NotNil(t, c)
	return body["csrf_token"], c
}

func jsonRequest(t *testing.T, method, path string, v any) *http.Request {
	t.Helper()
	var body io.Reader = http.NoBody
	if v != nil {
		b, err := json.Marshal(v)
		require.NoError(t, err)
		body = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func findCookie(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}
