package client

import (
	"context"
	"net/http"

	domainauth "github.com/target/institute-web/internal/domain/auth"
	"github.com/target/institute-web/internal/domain/model"
)

// The admin calls go through the gated /api/admin prefix. The server re-reads the
// caller's role on every call and answers 303 to the unauthorized page otherwise,
// which surfaces as an *authstate.DeniedError.

// ListUsers returns every profile.
func (c *Client) ListUsers(ctx context.Context) ([]*domainauth.Profile, error) {
	var body struct {
		Users []*domainauth.Profile `json:"users"`
	}
	if err := c.do(ctx, requestParams{method: http.MethodGet, path: "/api/admin/users"}, &body); err != nil {
		return nil, err
	}
	return body.Users, nil
}

// SetRole changes a user's stored role.
func (c *Client) SetRole(ctx context.Context, userID string, role domainauth.Role) (*domainauth.Profile, error) {
	var p domainauth.Profile
	err := c.do(ctx, requestParams{
		method: http.MethodPut,
		path:   "/api/admin/users/" + userID + "/role",
		body:   model.UpdateRoleRequest{Role: role},
		csrf:   true,
	}, &p)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListArchive returns every archive entry regardless of visibility.
func (c *Client) ListArchive(ctx context.Context) ([]*model.ArchiveEntry, error) {
	var body struct {
		Archive []*model.ArchiveEntry `json:"archive"`
	}
	if err := c.do(ctx, requestParams{method: http.MethodGet, path: "/api/admin/archive"}, &body); err != nil {
		return nil, err
	}
	return body.Archive, nil
}

// ListBooks returns the publications visible to the caller.
func (c *Client) ListBooks(ctx context.Context) ([]*model.Book, error) {
	var body struct {
		Books []*model.Book `json:"books"`
	}
	if err := c.do(ctx, requestParams{method: http.MethodGet, path: "/api/books"}, &body); err != nil {
		return nil, err
	}
	return body.Books, nil
}

// ServiceListUsers lists every profile over the server-to-server path, authenticated
// by the service key instead of an admin session.
func (c *Client) ServiceListUsers(ctx context.Context) ([]*domainauth.Profile, error) {
	if c.serviceKey == "" {
		return nil, ErrNoServiceKey
	}
	var body struct {
		Users []*domainauth.Profile `json:"users"`
	}
	err := c.do(ctx, requestParams{method: http.MethodGet, path: "/api/service/users", serviceKey: true}, &body)
	if err != nil {
		return nil, err
	}
	return body.Users, nil
}

// ServiceSetRole changes a stored role over the server-to-server path.
func (c *Client) ServiceSetRole(ctx context.Context, userID string, role domainauth.Role) (*domainauth.Profile, error) {
	if c.serviceKey == "" {
		return nil, ErrNoServiceKey
	}
	var p domainauth.Profile
	err := c.do(ctx, requestParams{
		method:     http.MethodPut,
		path:       "/api/service/users/" + userID + "/role",
		body:       model.UpdateRoleRequest{Role: role},
		serviceKey: true,
	}, &p)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
