package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/redis/go-redis/v9"
	"github.com/target/institute-web/config"
	"github.com/target/institute-web/internal/data"
)

// DatabaseConfig contains configuration for database connections.
type DatabaseConfig struct {
	DBConfig    config.DBConfig
	RedisConfig config.RedisConfig
	// Tier labels the pool in logs ("restricted" or "elevated").
	Tier   string
	Logger *slog.Logger
}

// ConnectDB opens and verifies a PostgreSQL pool for one trust tier.
func ConnectDB(cfg DatabaseConfig) (*sql.DB, error) {
	if !cfg.DBConfig.Configured() {
		if cfg.Tier == tierElevated {
			return nil, config.ErrElevatedUnavailable
		}
		return nil, fmt.Errorf("%s database credentials are not configured", tierName(cfg.Tier))
	}

	db, err := sql.Open("pgx", cfg.DBConfig.DSN())
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", tierName(cfg.Tier), err)
	}

	maxOpen := cfg.DBConfig.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 25
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(min(5, maxOpen))
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, errors.Join(fmt.Errorf("ping %s database: %w", tierName(cfg.Tier), err), db.Close())
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("database connected",
			"tier", tierName(cfg.Tier),
			"host", cfg.DBConfig.Host,
			"port", cfg.DBConfig.Port,
			"database", cfg.DBConfig.Name,
		)
	}

	return db, nil
}

const (
	tierRestricted = "restricted"
	tierElevated   = "elevated"
)

func tierName(tier string) string {
	if tier == "" {
		return tierRestricted
	}
	return tier
}

// ConnectRedis builds the client for the configured topology and pings it.
//
//nolint:ireturn // single, sentinel or cluster is chosen from config.
func ConnectRedis(cfg DatabaseConfig) (redis.UniversalClient, error) {
	opts, target, err := redisOptions(cfg.RedisConfig)
	if err != nil {
		return nil, err
	}

	var client redis.UniversalClient
	switch {
	case cfg.RedisConfig.UseCluster:
		client = redis.NewClusterClient(opts.Cluster())
	case cfg.RedisConfig.UseSentinel:
		client = redis.NewFailoverClient(opts.Failover())
	default:
		client = redis.NewClient(opts.Simple())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Join(fmt.Errorf("ping redis %s: %w", target, err), client.Close())
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("redis connected", "target", target)
	}
	return client, nil
}

// redisOptions folds the URI, node lists and passwords into one UniversalOptions and
// returns a credential-free description of the target. Credentials embedded in a
// redis:// or rediss:// URI win over RedisConfig.Password.
func redisOptions(cfg config.RedisConfig) (*redis.UniversalOptions, string, error) {
	opts := &redis.UniversalOptions{Password: cfg.Password}

	addr := strings.TrimSpace(cfg.URI)
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, "", fmt.Errorf("parse redis url: %w", err)
		}
		addr = parsed.Addr
		opts.Username = parsed.Username
		if parsed.Password != "" {
			opts.Password = parsed.Password
		}
		opts.DB = parsed.DB
		opts.TLSConfig = parsed.TLSConfig
	}

	switch {
	case cfg.UseCluster:
		opts.Addrs = nonEmpty(cfg.ClusterNodes)
		if len(opts.Addrs) == 0 && addr != "" {
			opts.Addrs = []string{addr}
		}
		if len(opts.Addrs) == 0 {
			return nil, "", errors.New("redis cluster needs CLUSTER_NODES or URI")
		}
		opts.DB = 0
		return opts, "cluster:" + strings.Join(opts.Addrs, ","), nil

	case cfg.UseSentinel:
		opts.Addrs = nonEmpty(cfg.SentinelNodes)
		if len(opts.Addrs) == 0 {
			return nil, "", errors.New("redis sentinel needs SENTINEL_NODES")
		}
		opts.MasterName = cfg.SentinelMasterName
		opts.SentinelPassword = cfg.SentinelPassword
		return opts, "sentinel:" + cfg.SentinelMasterName, nil

	default:
		if addr == "" {
			return nil, "", errors.New("redis needs a URI")
		}
		opts.Addrs = []string{addr}
		return opts, addr, nil
	}
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// RunMigrations applies pending schema migrations through the elevated pool.
func RunMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	if err := data.RunMigrations(ctx, db, logger); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	if logger != nil {
		logger.InfoContext(ctx, "database migrations completed")
	}
	return nil
}
