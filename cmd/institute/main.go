package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/target/institute-web/config"
	"github.com/target/institute-web/internal/bootstrap"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx := context.Background()
	logger := bootstrap.InitLogger(slog.LevelInfo)
	if err := run(ctx, logger); err != nil {
		logger.ErrorContext(ctx, "fatal error", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}
	logger = bootstrap.InitLogger(cfg.Observability.SlogLevel())

	if err = bootstrap.ValidateConfig(&cfg); err != nil {
		return err
	}
	logStartupInfo(ctx, logger, &cfg)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	infra, err := initInfrastructure(ctx, &cfg, logger)
	if err != nil {
		return err
	}
	defer infra.close(ctx, logger)

	// Migrations need DDL rights, so they only ever run through the elevated pool.
	if cfg.Elevated.RunMigrationsOnStart {
		if err = bootstrap.RunMigrations(ctx, infra.elevated, logger); err != nil {
			return err
		}
	} else {
		logger.InfoContext(ctx, "skipping database migrations on startup", "reason", "disabled via config")
	}

	services, err := bootstrap.BuildServices(ctx, bootstrap.ServiceDeps{
		Config:      &cfg,
		DB:          infra.db,
		Elevated:    infra.elevated,
		RedisClient: infra.redis,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	server, err := bootstrap.NewHTTPServer(&bootstrap.HTTPServerConfig{
		Config:   &cfg,
		Services: services,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return bootstrap.ServeHTTP(gctx, server, cfg.HTTP.ShutdownTimeout, logger)
	})
	if err = g.Wait(); err != nil {
		return err
	}
	logger.InfoContext(ctx, "institute web stopped")
	return nil
}

func logStartupInfo(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig) {
	logger.InfoContext(ctx, "starting institute web",
		"auth_mode", cfg.Auth.Mode,
		"db_host", cfg.Postgres.Host,
		"db_port", cfg.Postgres.Port,
		"db_name", cfg.Postgres.Name,
		"uploads_enabled", cfg.Storage.Enabled(),
		"metrics_enabled", cfg.Observability.MetricsEnabled,
		"dev", cfg.IsDev)
}

type infrastructure struct {
	db       *sql.DB
	elevated *sql.DB
	redis    redis.UniversalClient
}

func (i *infrastructure) close(ctx context.Context, logger *slog.Logger) {
	if i.redis != nil {
		if err := i.redis.Close(); err != nil {
			logger.ErrorContext(ctx, "close redis failed", "error", err)
		}
	}
	for name, db := range map[string]*sql.DB{"restricted": i.db, "elevated": i.elevated} {
		if db == nil {
			continue
		}
		if err := db.Close(); err != nil {
			logger.ErrorContext(ctx, "close database failed", "tier", name, "error", err)
		}
	}
}

// initInfrastructure connects both database tiers and Redis.
func initInfrastructure(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*infrastructure, error) {
	infra := &infrastructure{}
	var err error

	infra.db, err = bootstrap.ConnectDB(bootstrap.DatabaseConfig{DBConfig: cfg.Postgres, Tier: "restricted", Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	infra.elevated, err = bootstrap.ConnectDB(bootstrap.DatabaseConfig{DBConfig: cfg.Elevated, Tier: "elevated", Logger: logger})
	if err != nil {
		infra.close(ctx, logger)
		return nil, fmt.Errorf("connect elevated db: %w", err)
	}

	infra.redis, err = bootstrap.ConnectRedis(bootstrap.DatabaseConfig{RedisConfig: cfg.Redis, Logger: logger})
	if err != nil {
		infra.close(ctx, logger)
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	return infra, nil
}
