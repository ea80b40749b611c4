// Package testutil provides Postgres fixtures for integration tests. Tests that need a
// database skip unless one is reachable, or fail when TEST_REQUIRE_DB is set.
package testutil

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"net"
	"net/url"
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/target/institute-web/internal/migrate"
)

// DBConfig locates the integration test database.
type DBConfig struct {
	Host      string `env:"TEST_DB_HOST"      envDefault:"localhost"`
	Port      string `env:"TEST_DB_PORT"      envDefault:"55432"`
	User      string `env:"TEST_DB_USER"      envDefault:"institute"`
	Password  string `env:"TEST_DB_PASSWORD"  envDefault:"institute"`
	Name      string `env:"TEST_DB_NAME"      envDefault:"institute"`
	SSLMode   string `env:"DB_SSL_MODE"       envDefault:"disable"`
	Ephemeral bool   `env:"TEST_DB_EPHEMERAL"`
	Require   bool   `env:"TEST_REQUIRE_DB"`
}

// LoadDBConfig reads DBConfig from the environment.
func LoadDBConfig() (DBConfig, error) {
	return env.ParseAs[DBConfig]()
}

// DSN renders a pgx connection URL, optionally pinned to schema.
func (c DBConfig) DSN(schema string) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   net.JoinHostPort(c.Host, c.Port),
		Path:   "/" + c.Name,
	}
	q := url.Values{"sslmode": {c.SSLMode}}
	if schema != "" {
		q.Set("search_path", schema+",public")
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func mustConfig(t testing.TB) DBConfig {
	t.Helper()
	cfg, err := LoadDBConfig()
	if err != nil {
		t.Fatalf("test db config: %v", err)
	}
	return cfg
}

func open(t testing.TB, dsn string) (*sql.DB, error) {
	t.Helper()
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// SkipIfNoTestDB skips t when the test database cannot be reached.
func SkipIfNoTestDB(t testing.TB) {
	t.Helper()
	cfg := mustConfig(t)
	db, err := open(t, cfg.DSN(""))
	if err != nil {
		if cfg.Require {
			t.Fatalf("test database not available: %v", err)
		}
		t.Skipf("test database not available: %v", err)
	}
	_ = db.Close()
}

// WithAutoDB runs fn against a migrated database. With TEST_DB_EPHEMERAL set, each test
// gets its own schema, dropped afterwards; otherwise the shared schema is emptied.
func WithAutoDB(t testing.TB, fn func(*sql.DB)) {
	t.Helper()
	SkipIfNoTestDB(t)
	cfg := mustConfig(t)

	schema := ""
	if cfg.Ephemeral {
		schema = createSchema(t, cfg)
	}
	db, err := open(t, cfg.DSN(schema))
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := migrate.Run(ctx, db); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	if schema == "" {
		truncate(t, db)
		t.Cleanup(func() { truncate(t, db) })
	}
	fn(db)
}

func createSchema(t testing.TB, cfg DBConfig) string {
	t.Helper()
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	schema := "t_" + hex.EncodeToString(b)

	admin, err := open(t, cfg.DSN(""))
	if err != nil {
		t.Fatalf("open admin connection: %v", err)
	}
	if _, err := admin.Exec("CREATE SCHEMA " + schema); err != nil {
		_ = admin.Close()
		t.Fatalf("create schema %s: %v", schema, err)
	}
	t.Logf("using ephemeral schema %s", schema)
	t.Cleanup(func() {
		if _, err := admin.Exec("DROP SCHEMA IF EXISTS " + schema + " CASCADE"); err != nil {
			t.Logf("drop schema %s: %v", schema, err)
		}
		_ = admin.Close()
	})
	return schema
}

// truncate empties every application table. Content and profiles reference identities.
func truncate(t testing.TB, db *sql.DB) {
	t.Helper()
	const stmt = `TRUNCATE archive_entries, books, gallery_items, profiles, identities CASCADE`
	if _, err := db.Exec(stmt); err != nil {
		t.Fatalf("truncate test tables: %v", err)
	}
}

// CreateTestIdentity inserts an identity plus its profile with role and returns the id.
func CreateTestIdentity(t testing.TB, db *sql.DB, email, role string) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var id string
	if err := db.QueryRowContext(ctx,
		`INSERT INTO identities (email) VALUES ($1) RETURNING id`, email).Scan(&id); err != nil {
		t.Fatalf("create identity %s: %v", email, err)
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO profiles (id, email, role) VALUES ($1, $2, $3)`, id, email, role); err != nil {
		t.Fatalf("create profile %s: %v", email, err)
	}
	return id
}

// StringPtr returns &s.
func StringPtr(s string) *string { return &s }

// String hides the password.
func (c DBConfig) String() string {
	return fmt.Sprintf("%s@%s/%s", c.User, net.JoinHostPort(c.Host, c.Port), c.Name)
}
