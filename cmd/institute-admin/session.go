package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/target/institute-web/internal/authstate"
	"github.com/target/institute-web/internal/client"
)

// savedSession is the on-disk form of a signed-in client.
type savedSession struct {
	APIURL string        `json:"api_url"`
	Tokens client.Tokens `json:"tokens"`
}

func (a *app) sessionPath() (string, error) {
	if a.sessionFile != "" {
		return a.sessionFile, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, sessionDirName, "session.json"), nil
}

// loadSession returns the saved tokens for apiURL; a missing file or another server's
// session yields empty tokens.
func (a *app) loadSession(apiURL string) (client.Tokens, error) {
	path, err := a.sessionPath()
	if err != nil {
		return client.Tokens{}, err
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return client.Tokens{}, nil
	}
	if err != nil {
		return client.Tokens{}, fmt.Errorf("read session: %w", err)
	}
	var s savedSession
	if err := json.Unmarshal(raw, &s); err != nil {
		return client.Tokens{}, fmt.Errorf("decode session %s: %w", path, err)
	}
	if s.APIURL != apiURL {
		return client.Tokens{}, nil
	}
	return s.Tokens, nil
}

// saveSession writes the tokens, or removes the file once signed out.
func (a *app) saveSession(apiURL string, t client.Tokens) error {
	path, err := a.sessionPath()
	if err != nil {
		return err
	}
	if t == (client.Tokens{}) {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove session: %w", err)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	raw, err := json.Marshal(savedSession{APIURL: apiURL, Tokens: t})
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// withClient runs fn with a client restored from the session file, then persists
// whatever tokens the client ends up holding (refreshes rotate them).
func (a *app) withClient(ctx context.Context, fn func(ctx context.Context, c *client.Client) error) error {
	apiURL := a.resolvedAPIURL()
	c, err := client.New(client.Options{BaseURL: apiURL, AnonKey: a.resolvedAnonKey(), Logger: a.logger})
	if err != nil {
		return err
	}
	tokens, err := a.loadSession(apiURL)
	if err != nil {
		return err
	}
	c.SetTokens(tokens)

	runErr := fn(ctx, c)
	return errors.Join(runErr, a.saveSession(apiURL, c.Tokens()))
}

// withServiceClient runs fn with a client that presents the service key instead of a
// session. The saved session is neither read nor written.
func (a *app) withServiceClient(ctx context.Context, fn func(ctx context.Context, c *client.Client) error) error {
	key := os.Getenv(envServiceKey)
	if key == "" {
		return fmt.Errorf("--service requires %s", envServiceKey)
	}
	c, err := client.New(client.Options{BaseURL: a.resolvedAPIURL(), ServiceKey: key, Logger: a.logger})
	if err != nil {
		return err
	}
	return fn(ctx, c)
}

// withAuth additionally resolves identity and role through an auth context.
func (a *app) withAuth(
	ctx context.Context,
	fn func(ctx context.Context, c *client.Client, auth *authstate.Context) error,
) error {
	return a.withClient(ctx, func(ctx context.Context, c *client.Client) error {
		auth := authstate.New(authstate.Options{Sessions: c, Profiles: c, Logger: a.logger})
		if err := auth.Start(ctx); err != nil {
			return err
		}
		defer auth.Close()
		return fn(ctx, c, auth)
	})
}
