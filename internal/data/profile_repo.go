package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/target/institute-web/internal/data/pgxutil"
	domainauth "github.com/target/institute-web/internal/domain/auth"
)

const profileColumns = `id, email, role, created_at, updated_at`

// restrictedRole is the database role whose row-level security policy limits a reader to its own profile.
const restrictedRole = "app_authenticated"

// ProfileRepo is the elevated profile store. It connects with service credentials and
// bypasses row-level security, so it must only be constructed on the server side.
type ProfileRepo struct {
	DB *sql.DB
}

// NewProfileRepo returns ErrElevatedUnavailable when no elevated pool is configured.
func NewProfileRepo(elevated *sql.DB) (*ProfileRepo, error) {
	if elevated == nil {
		return nil, ErrElevatedUnavailable
	}
	return &ProfileRepo{DB: elevated}, nil
}

// Create inserts the default profile for a new identity. Re-running it for an existing
// identity refreshes the email and leaves the role untouched.
func (r *ProfileRepo) Create(ctx context.Context, id, email string) (*domainauth.Profile, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrProfileNotFound
	}
	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO profiles (id, email, role) VALUES ($1, $2, 'user')
		ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email
		RETURNING `+profileColumns, id, email)
	p, err := scanProfile(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}
	return p, nil
}

// GetRole returns the stored role string as-is; unrecognized values rank lowest downstream.
func (r *ProfileRepo) GetRole(ctx context.Context, id string) (domainauth.Role, error) {
	if _, err := uuid.Parse(id); err != nil {
		return domainauth.RoleNone, ErrProfileNotFound
	}
	var role string
	err := r.DB.QueryRowContext(ctx, `SELECT role FROM profiles WHERE id = $1`, id).Scan(&role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domainauth.RoleNone, ErrProfileNotFound
		}
		return domainauth.RoleNone, fmt.Errorf("failed to get role: %w", err)
	}
	return domainauth.Role(role), nil
}

// SetRole overwrites the role. Concurrent writers are last-write-wins.
func (r *ProfileRepo) SetRole(ctx context.Context, id string, role domainauth.Role) (*domainauth.Profile, error) {
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrProfileNotFound
	}
	row := r.DB.QueryRowContext(ctx,
		`UPDATE profiles SET role = $2 WHERE id = $1 RETURNING `+profileColumns, id, string(role))
	p, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to set role: %w", err)
	}
	return p, nil
}

// List returns every profile, newest first.
func (r *ProfileRepo) List(ctx context.Context) ([]*domainauth.Profile, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+profileColumns+` FROM profiles ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	var out []*domainauth.Profile
	for rows.Next() {
		p, scanErr := scanProfile(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", scanErr)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	return out, nil
}

// OwnProfileRepo reads profiles with restricted credentials. Every read runs in a
// transaction as the restricted database role with app.user_id bound to the viewer,
// so the row-level security policy only ever exposes the viewer's own row.
type OwnProfileRepo struct {
	DB *sql.DB
}

// NewOwnProfileRepo creates an OwnProfileRepo on the restricted pool.
func NewOwnProfileRepo(restricted *sql.DB) *OwnProfileRepo {
	return &OwnProfileRepo{DB: restricted}
}

// GetOwn returns the viewer's profile.
func (r *OwnProfileRepo) GetOwn(ctx context.Context, viewerID string) (*domainauth.Profile, error) {
	if _, err := uuid.Parse(viewerID); err != nil {
		return nil, ErrProfileNotFound
	}

	var out *domainauth.Profile
	err := pgxutil.InTx(ctx, r.DB, &sql.TxOptions{ReadOnly: true}, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SET LOCAL ROLE `+restrictedRole); err != nil {
			return fmt.Errorf("assume restricted role: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `SELECT set_config('app.user_id', $1, true)`, viewerID); err != nil {
			return fmt.Errorf("bind viewer: %w", err)
		}
		p, err := scanProfile(tx.QueryRowContext(ctx,
			`SELECT `+profileColumns+` FROM profiles WHERE id = $1`, viewerID))
		if err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to read own profile: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*domainauth.Profile, error) {
	var (
		p    domainauth.Profile
		role string
	)
	if err := row.Scan(&p.ID, &p.Email, &role, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Role = domainauth.Role(role)
	return &p, nil
}
