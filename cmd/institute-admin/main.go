// Command institute-admin is the operator CLI. Views run against the HTTP API behind the
// same role guard the site uses; seed-admin and migrate talk to the database directly.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/target/institute-web/config"
	"github.com/target/institute-web/internal/bootstrap"
)

const (
	envAPIURL      = "INSTITUTE_API_URL"
	envAnonKey     = "AUTH_ANON_KEY"
	envServiceKey  = "AUTH_SERVICE_ROLE_KEY"
	defaultAPIURL  = "http://localhost:8080"
	sessionDirName = "institute"
)

// app carries the global flags and the seams tests replace.
type app struct {
	apiURL      string
	anonKey     string
	sessionFile string
	jsonOutput  bool

	logger     *slog.Logger
	loadConfig func() (config.AppConfig, error)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{
		logger:     slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})),
		loadConfig: bootstrap.LoadConfig,
	}
	if err := newRootCmd(a).ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "institute-admin",
		Short: "Administer the institute website",
		Long: `institute-admin signs in against the institute API and runs guarded admin views.

Environment Variables:
  INSTITUTE_API_URL      API base URL (default: http://localhost:8080)
  AUTH_ANON_KEY          Public API key sent on sign-in
  AUTH_SERVICE_ROLE_KEY  Service key for "users --service" (operator hosts only)`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&a.apiURL, "api-url", "", "API base URL (overrides "+envAPIURL+")")
	root.PersistentFlags().StringVar(&a.anonKey, "anon-key", "", "public API key (overrides "+envAnonKey+")")
	root.PersistentFlags().StringVar(&a.sessionFile, "session-file", "", "where the signed-in session is kept")
	root.PersistentFlags().BoolVar(&a.jsonOutput, "json", false, "output JSON instead of tables")

	root.AddCommand(
		newSignInCmd(a),
		newSignOutCmd(a),
		newWhoamiCmd(a),
		newUsersCmd(a),
		newArchiveCmd(a),
		newSeedAdminCmd(a),
		newMigrateCmd(a),
	)
	return root
}

func (a *app) resolvedAPIURL() string {
	if a.apiURL != "" {
		return a.apiURL
	}
	if v := os.Getenv(envAPIURL); v != "" {
		return v
	}
	return defaultAPIURL
}

func (a *app) resolvedAnonKey() string {
	if a.anonKey != "" {
		return a.anonKey
	}
	return os.Getenv(envAnonKey)
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}
