// Package client is a Go SDK for the institute web API. It keeps the session in a
// cookie jar the way a browser would and implements the authstate sources so a
// process can run an Auth Context against a remote server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/target/institute-web/internal/authstate"
	domainauth "github.com/target/institute-web/internal/domain/auth"
	"golang.org/x/net/publicsuffix"
)

// Cookie and header names shared with the server.
const (
	accessCookie   = "sb-access-token"
	refreshCookie  = "sb-refresh-token"
	csrfHeader     = "X-Csrf-Token"
	apiKeyHeader   = "apikey"
	defaultTimeout = 30 * time.Second
)

var (
	_ authstate.SessionSource = (*Client)(nil)
	_ authstate.ProfileSource = (*Client)(nil)
)

var (
	// ErrNotSignedIn is returned by calls that need a session when the jar holds none.
	ErrNotSignedIn = errors.New("not signed in")
	// ErrNoServiceKey is returned by the service calls on a client built without one.
	ErrNoServiceKey = errors.New("no service key configured")
)

// APIError is a JSON error response from the server.
type APIError struct {
	Status  int
	Code    string `json:"error"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error %d: %s", e.Status, e.Code)
	}
	return fmt.Sprintf("api error %d: %s: %s", e.Status, e.Code, e.Message)
}

// Options configures a Client.
type Options struct {
	// BaseURL is the server root, e.g. https://institute.example.org.
	BaseURL string
	// AnonKey is the public key sent as the apikey header on sign-up and sign-in.
	AnonKey string
	// ServiceKey is the elevated server-only key for the /api/service calls.
	// Leave it empty in anything that runs on an end user's machine.
	ServiceKey string
	// Timeout bounds ordinary requests; the event stream is not bounded.
	Timeout   time.Duration
	Transport http.RoundTripper
	Logger    *slog.Logger
}

// Client talks to one server. It is safe for concurrent use.
type Client struct {
	base       *url.URL
	anonKey    string
	serviceKey string
	jar        *cookiejar.Jar
	http       *http.Client
	stream     *http.Client
	logger     *slog.Logger

	mu   sync.Mutex
	csrf string

	local *eventHub
}

// New builds a Client with an empty cookie jar.
func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url %q must be http or https", opts.BaseURL)
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	// Gate denials are 303s to the unauthorized page; they are reported, not followed.
	noRedirect := func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	return &Client{
		base:       base,
		anonKey:    opts.AnonKey,
		serviceKey: opts.ServiceKey,
		jar:        jar,
		http:       &http.Client{Jar: jar, Transport: transport, Timeout: timeout, CheckRedirect: noRedirect},
		stream:     &http.Client{Jar: jar, Transport: transport, CheckRedirect: noRedirect},
		logger:     logger.With("component", "api_client"),
		local:      newEventHub(),
	}, nil
}

// Tokens is the pair of session cookies held by the jar.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Tokens returns the session cookies currently in the jar.
func (c *Client) Tokens() Tokens {
	var t Tokens
	for _, ck := range c.jar.Cookies(c.base) {
		switch ck.Name {
		case accessCookie:
			t.AccessToken = ck.Value
		case refreshCookie:
			t.RefreshToken = ck.Value
		}
	}
	return t
}

// SetTokens loads a previously saved session into the jar.
func (c *Client) SetTokens(t Tokens) {
	var cookies []*http.Cookie
	if t.AccessToken != "" {
		cookies = append(cookies, &http.Cookie{Name: accessCookie, Value: t.AccessToken, Path: "/"})
	}
	if t.RefreshToken != "" {
		cookies = append(cookies, &http.Cookie{Name: refreshCookie, Value: t.RefreshToken, Path: "/"})
	}
	c.jar.SetCookies(c.base, cookies)
}

func (c *Client) clearTokens() {
	expired := time.Unix(0, 0)
	c.jar.SetCookies(c.base, []*http.Cookie{
		{Name: accessCookie, Path: "/", Expires: expired, MaxAge: -1},
		{Name: refreshCookie, Path: "/", Expires: expired, MaxAge: -1},
	})
	c.mu.Lock()
	c.csrf = ""
	c.mu.Unlock()
}

type requestParams struct {
	method     string
	path       string
	body       any
	apiKey     bool
	serviceKey bool
	csrf       bool
	headers    http.Header
}

func (c *Client) newRequest(ctx context.Context, p requestParams) (*http.Request, error) {
	var body io.Reader = http.NoBody
	if p.body != nil {
		b, err := json.Marshal(p.body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, p.method, c.base.JoinPath(p.path).String(), body)
	if err != nil {
		return nil, err
	}
	if p.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	switch {
	case p.serviceKey:
		req.Header.Set(apiKeyHeader, c.serviceKey)
	case p.apiKey:
		req.Header.Set(apiKeyHeader, c.anonKey)
	}
	for k, vs := range p.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return req, nil
}

// do sends a request and decodes a 2xx JSON body into out (nil skips decoding).
func (c *Client) do(ctx context.Context, p requestParams, out any) error {
	if p.csrf {
		token, err := c.csrfToken(ctx)
		if err != nil {
			return err
		}
		if p.headers == nil {
			p.headers = make(http.Header)
		}
		p.headers.Set(csrfHeader, token)
	}
	req, err := c.newRequest(ctx, p)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", p.method, p.path, err)
	}
	defer resp.Body.Close()
	return c.decodeResponse(resp, out)
}

func (c *Client) decodeResponse(resp *http.Response, out any) error {
	switch {
	case resp.StatusCode == http.StatusSeeOther:
		_, _ = io.Copy(io.Discard, resp.Body)
		return &authstate.DeniedError{Redirect: resp.Header.Get("Location"), Reason: "denied by server"}
	case resp.StatusCode >= 300:
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(apiErr); err != nil {
			apiErr.Code = http.StatusText(resp.StatusCode)
		}
		return apiErr
	case out == nil || resp.StatusCode == http.StatusNoContent:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	default:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
}

// csrfToken fetches the double-submit token once per session; the jar keeps its cookie.
func (c *Client) csrfToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	token := c.csrf
	c.mu.Unlock()
	if token != "" {
		return token, nil
	}
	var body struct {
		Token string `json:"csrf_token"`
	}
	if err := c.do(ctx, requestParams{method: http.MethodGet, path: "/api/admin/csrf"}, &body); err != nil {
		return "", fmt.Errorf("fetch csrf token: %w", err)
	}
	c.mu.Lock()
	c.csrf = body.Token
	c.mu.Unlock()
	return body.Token, nil
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// publishLocal fans a locally observed change out to subscribers.
func (c *Client) publishLocal(kind domainauth.EventKind, sess *domainauth.Session) {
	ev := domainauth.SessionEvent{Kind: kind, Session: sess}
	if sess != nil {
		ev.UserID = sess.UserID
	}
	c.local.publish(ev)
}
