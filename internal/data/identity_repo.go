package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/target/institute-web/internal/data/pgxutil"
	domainauth "github.com/target/institute-web/internal/domain/auth"
)

const identityColumns = `id, email, password_hash, provider, provider_subject, user_metadata, created_at`

// IdentityRepo stores accounts and their credentials. It runs on the elevated pool.
type IdentityRepo struct {
	DB *sql.DB
	// Now stamps created_at; nil means time.Now.
	Now func() time.Time
}

// NewIdentityRepo creates a new IdentityRepo.
func NewIdentityRepo(db *sql.DB) *IdentityRepo {
	return &IdentityRepo{DB: db}
}


// Create inserts a new identity. A blank PasswordHash marks a federated-only account.
func (r *IdentityRepo) Create(ctx context.Context, acct *domainauth.Account) (*domainauth.Identity, error) {
	if acct == nil {
		return nil, errors.New("account is required")
	}
	email := strings.ToLower(strings.TrimSpace(acct.Email))
	if email == "" {
		return nil, errors.New("email is required")
	}

	metadata := acct.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	var hash *string
	if acct.PasswordHash != "" {
		hash = &acct.PasswordHash
	}
	provider := acct.Provider
	if provider == "" {
		provider = "password"
	}
	var subject *string
	if acct.Subject != "" {
		subject = &acct.Subject
	}

	var out domainauth.Identity
	err := pgxutil.WithConn(ctx, r.DB, func(conn *pgx.Conn) error {
		return conn.QueryRow(ctx, `
			INSERT INTO identities (email, password_hash, provider, provider_subject, user_metadata, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id, email, created_at`,
			email, hash, provider, subject, metadata, clock(r.Now),
		).Scan(&out.ID, &out.Email, &out.CreatedAt)
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create identity: %w", err)
	}
	return &out, nil
}

// GetByEmail retrieves an account by its (case-insensitive) email.
func (r *IdentityRepo) GetByEmail(ctx context.Context, email string) (*domainauth.Account, error) {
	return r.getBy(ctx, `SELECT `+identityColumns+` FROM identities WHERE email = $1`,
		strings.ToLower(strings.TrimSpace(email)))
}

// GetByID retrieves an account by id.
func (r *IdentityRepo) GetByID(ctx context.Context, id string) (*domainauth.Account, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrIdentityNotFound
	}
	return r.getBy(ctx, `SELECT `+identityColumns+` FROM identities WHERE id = $1`, id)
}

// GetBySubject retrieves a federated account by its provider and provider-issued subject.
func (r *IdentityRepo) GetBySubject(ctx context.Context, provider, subject string) (*domainauth.Account, error) {
	if provider == "" || subject == "" {
		return nil, ErrIdentityNotFound
	}
	return r.getBy(ctx, `SELECT `+identityColumns+` FROM identities WHERE provider = $1 AND provider_subject = $2`,
		provider, subject)
}

func (r *IdentityRepo) getBy(ctx context.Context, q string, args ...any) (*domainauth.Account, error) {
	var (
		acct      domainauth.Account
		hash      *string
		subject   *string
		metadata  map[string]any
		createdAt time.Time
	)
	err := pgxutil.WithConn(ctx, r.DB, func(conn *pgx.Conn) error {
		return conn.QueryRow(ctx, q, args...).Scan(&acct.ID, &acct.Email, &hash, &acct.Provider, &subject, &metadata, &createdAt)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrIdentityNotFound
		}
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}
	if hash != nil {
		acct.PasswordHash = *hash
	}
	if subject != nil {
		acct.Subject = *subject
	}
	acct.Metadata = metadata
	acct.CreatedAt = createdAt
	return &acct, nil
}
