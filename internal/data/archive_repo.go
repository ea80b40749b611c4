package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/target/institute-web/internal/domain/model"
	apperrors "github.com/target/institute-web/internal/errors"
)

const archiveColumns = `id, title, description, category, file_url, min_role, created_by, created_at, updated_at`

// ArchiveRepo provides database operations for archive entries.
type ArchiveRepo struct {
	DB *sql.DB
	// Now stamps created_at and updated_at; nil means time.Now.
	Now func() time.Time
}

// NewArchiveRepo creates a new ArchiveRepo.
func NewArchiveRepo(db *sql.DB) *ArchiveRepo {
	return &ArchiveRepo{DB: db}
}


// Create inserts a new archive entry.
func (r *ArchiveRepo) Create(ctx context.Context, req *model.CreateArchiveEntryRequest) (*model.ArchiveEntry, error) {
	if req == nil {
		return nil, errors.New("create archive entry request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := clock(r.Now)
	out, err := queryOne[model.ArchiveEntry](ctx, r.DB, ErrArchiveEntryNotFound, `
		INSERT INTO archive_entries (title, description, category, file_url, min_role, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		RETURNING `+archiveColumns,
		req.Title, trimmedOrNil(req.Description), trimmedOrNil(req.Category), trimmedOrNil(req.FileURL),
		string(req.MinRole), req.CreatedBy, now,
	)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return out, nil
}

// GetByID retrieves an archive entry by ID.
func (r *ArchiveRepo) GetByID(ctx context.Context, id string) (*model.ArchiveEntry, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrArchiveEntryNotFound
	}
	out, err := queryOne[model.ArchiveEntry](ctx, r.DB, ErrArchiveEntryNotFound,
		`SELECT `+archiveColumns+` FROM archive_entries WHERE id = $1`, id)
	if err != nil && !errors.Is(err, ErrArchiveEntryNotFound) {
		return nil, fmt.Errorf("failed to get archive entry: %w", err)
	}
	return out, err
}

// List returns every archive entry, newest first.
func (r *ArchiveRepo) List(ctx context.Context) ([]*model.ArchiveEntry, error) {
	out, err := queryAll[model.ArchiveEntry](ctx, r.DB,
		`SELECT `+archiveColumns+` FROM archive_entries ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list archive entries: %w", err)
	}
	return out, nil
}

// Update applies the non-nil fields of req.
func (r *ArchiveRepo) Update(
	ctx context.Context,
	id string,
	req model.UpdateArchiveEntryRequest,
) (*model.ArchiveEntry, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrArchiveEntryNotFound
	}

	var set setClause
	if req.Title != nil {
		set.add("title", strings.TrimSpace(*req.Title))
	}
	set.addNullable("description", req.Description)
	set.addNullable("category", req.Category)
	set.addNullable("file_url", req.FileURL)
	if req.MinRole != nil {
		set.add("min_role", string(*req.MinRole))
	}
	if set.empty() {
		return r.GetByID(ctx, id)
	}

	q, args := set.updateQuery("archive_entries", id, archiveColumns)
	out, err := queryOne[model.ArchiveEntry](ctx, r.DB, ErrArchiveEntryNotFound, q, args...)
	if err != nil {
		if errors.Is(err, ErrArchiveEntryNotFound) {
			return nil, err
		}
		return nil, apperrors.MapDBError(err)
	}
	return out, nil
}

// Delete deletes an archive entry by ID.
func (r *ArchiveRepo) Delete(ctx context.Context, id string) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, nil
	}
	return deleteByID(ctx, r.DB, "archive_entries", id)
}

// trimmedOrNil maps blank optional strings to NULL.
func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
