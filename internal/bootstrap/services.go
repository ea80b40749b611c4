package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/target/institute-web/config"
	"github.com/target/institute-web/internal/accessgate"
	"github.com/target/institute-web/internal/adapters/s3blob"
	"github.com/target/institute-web/internal/data"
	"github.com/target/institute-web/internal/observability/metrics"
	"github.com/target/institute-web/internal/service"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Auth     *service.AuthService
	Roles    *service.RoleService
	Profiles *service.ProfileService
	Archive  *service.ArchiveService
	Books    *service.BookService
	Gallery  *service.GalleryService
	// Uploads is nil when blob storage is not configured.
	Uploads *service.UploadService
	Gate    *accessgate.Gate

	Metrics *metrics.Metrics
	// Registry is nil when metrics are disabled.
	Registry *prometheus.Registry
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config *config.AppConfig
	// DB is the restricted pool; row-level security applies to every query through it.
	DB *sql.DB
	// Elevated bypasses row-level security. It backs role reads and writes only.
	Elevated    *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// BuildServices wires repositories, adapters and services.
func BuildServices(ctx context.Context, deps ServiceDeps) (*ServiceContainer, error) {
	if deps.Config == nil {
		return nil, errors.New("config is required")
	}
	if deps.DB == nil {
		return nil, errors.New("restricted database is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	c := &ServiceContainer{}
	if cfg.Observability.MetricsEnabled {
		c.Registry = prometheus.NewRegistry()
		c.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		c.Metrics = metrics.New(c.Registry)
	}

	profiles, err := data.NewProfileRepo(deps.Elevated)
	if err != nil {
		return nil, fmt.Errorf("build role store: %w", err)
	}

	auth, err := BuildAuthService(AuthConfig{
		Auth:        cfg.Auth,
		Redis:       cfg.Redis,
		RedisClient: deps.RedisClient,
		Identities:  data.NewIdentityRepo(deps.DB),
		Profiles:    profiles,
		Metrics:     c.Metrics,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}
	c.Auth = auth.Service

	c.Roles, err = service.NewRoleService(service.RoleServiceOptions{
		Profiles: profiles,
		Events:   auth.Events,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	c.Profiles = service.NewProfileService(data.NewOwnProfileRepo(deps.DB))

	c.Archive = service.NewArchiveService(data.NewArchiveRepo(deps.DB))
	c.Books = service.NewBookService(data.NewBookRepo(deps.DB))
	c.Gallery = service.NewGalleryService(data.NewGalleryRepo(deps.DB))

	if cfg.Storage.Enabled() {
		blobs, blobErr := s3blob.New(ctx, s3blob.Config{
			Bucket:        cfg.Storage.Bucket,
			Region:        cfg.Storage.Region,
			Endpoint:      cfg.Storage.Endpoint,
			AccessKey:     cfg.Storage.AccessKey,
			SecretKey:     cfg.Storage.SecretKey,
			UsePathStyle:  cfg.Storage.UsePathStyle,
			PublicBaseURL: cfg.Storage.PublicBaseURL,
			KeyPrefix:     cfg.Storage.KeyPrefix,
			MaxBytes:      cfg.HTTP.MaxUploadBytes,
		})
		if blobErr != nil {
			return nil, fmt.Errorf("build blob store: %w", blobErr)
		}
		c.Uploads = service.NewUploadService(blobs, logger)
	} else {
		logger.InfoContext(ctx, "uploads disabled: STORAGE_BUCKET not set")
	}

	c.Gate, err = accessgate.New(accessgate.Options{
		Auth:    c.Auth,
		Roles:   c.Roles,
		Metrics: c.Metrics,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build access gate: %w", err)
	}

	return c, nil
}
