package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/target/institute-web/config"
	redisadapter "github.com/target/institute-web/internal/adapters/redis"
	"github.com/target/institute-web/internal/bootstrap"
	"github.com/target/institute-web/internal/data"
	domainauth "github.com/target/institute-web/internal/domain/auth"
	"github.com/target/institute-web/internal/domain/model"
	"github.com/target/institute-web/internal/ports"
	"github.com/target/institute-web/internal/service"
)

const (
	seedActor               = "institute-admin:seed-admin"
	defaultMigrationTimeout = 5 * time.Minute
)

type identityLookup interface {
	GetByEmail(ctx context.Context, email string) (*domainauth.Account, error)
}

type roleSetter interface {
	SetRole(ctx context.Context, actorID, targetID string, req model.UpdateRoleRequest) (*domainauth.Profile, error)
}

func newSeedAdminCmd(a *app) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "seed-admin",
		Short: "Promote an existing account to admin using elevated database credentials",
		Long: `seed-admin bootstraps the first administrator. The account must already exist
(sign up first). It connects with the DB_SERVICE_* credentials and never falls back to
the restricted pool. Redis is optional; when reachable, open sessions of the promoted
user are told to re-resolve their role.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(email) == "" {
				return errors.New("--email is required")
			}
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			elevated, err := connectElevated(a.logger, &cfg)
			if err != nil {
				return err
			}
			defer closeDB(a.logger, elevated)

			profiles, err := data.NewProfileRepo(elevated)
			if err != nil {
				return err
			}
			events, closeEvents := optionalEvents(a.logger, &cfg)
			defer closeEvents()

			roles, err := service.NewRoleService(service.RoleServiceOptions{
				Profiles: profiles,
				Events:   events,
				Logger:   a.logger,
			})
			if err != nil {
				return err
			}
			return seedAdmin(ctx, cmd.OutOrStdout(), data.NewIdentityRepo(elevated), roles, email)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email of the account to promote")
	return cmd
}

// seedAdmin promotes the account registered under email. Re-running it is a no-op.
func seedAdmin(ctx context.Context, out io.Writer, identities identityLookup, roles roleSetter, email string) error {
	acct, err := identities.GetByEmail(ctx, email)
	if errors.Is(err, data.ErrIdentityNotFound) {
		return fmt.Errorf("no account for %s; sign up first", email)
	}
	if err != nil {
		return fmt.Errorf("look up %s: %w", email, err)
	}
	p, err := roles.SetRole(ctx, seedActor, acct.ID, model.UpdateRoleRequest{Role: domainauth.RoleAdmin})
	if err != nil {
		return fmt.Errorf("promote %s: %w", email, err)
	}
	return writef(out, "%s (%s) is now %s\n", p.Email, p.ID, p.Role)
}

func newMigrateCmd(a *app) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations through the elevated pool",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			elevated, err := connectElevated(a.logger, &cfg)
			if err != nil {
				return err
			}
			defer closeDB(a.logger, elevated)

			if err := bootstrap.RunMigrations(ctx, elevated, a.logger); err != nil {
				return err
			}
			return writef(cmd.OutOrStdout(), "Migrations completed\n")
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", defaultMigrationTimeout, "maximum time to wait for migrations")
	return cmd
}

func connectElevated(logger *slog.Logger, cfg *config.AppConfig) (*sql.DB, error) {
	db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{DBConfig: cfg.Elevated, Tier: "elevated", Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("connect elevated db: %w", err)
	}
	return db, nil
}

func closeDB(logger *slog.Logger, db *sql.DB) {
	if err := db.Close(); err != nil {
		logger.Warn("db close failed", "error", err)
	}
}

// optionalEvents connects the session event bus when Redis is reachable.
//
//nolint:ireturn // nil disables publishing.
func optionalEvents(logger *slog.Logger, cfg *config.AppConfig) (ports.SessionEvents, func()) {
	client, err := bootstrap.ConnectRedis(bootstrap.DatabaseConfig{RedisConfig: cfg.Redis})
	if err != nil {
		logger.Warn("redis unavailable; open sessions pick up the new role on their next request", "error", err)
		return nil, func() {}
	}
	events := redisadapter.NewSessionEvents(redisadapter.SessionEventsOptions{
		Client:  client,
		Channel: cfg.Redis.EventsChannel,
		Logger:  logger,
	})
	return events, func() {
		if err := client.Close(); err != nil {
			logger.Warn("redis close failed", "error", err)
		}
	}
}
