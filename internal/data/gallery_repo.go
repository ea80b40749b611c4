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

const galleryColumns = `id, title, description, image_url, min_role, created_at, updated_at`

// GalleryRepo provides database operations for gallery items.
type GalleryRepo struct {
	DB *sql.DB
	// Now stamps created_at and updated_at; nil means time.Now.
	Now func() time.Time
}

// NewGalleryRepo creates a new GalleryRepo.
func NewGalleryRepo(db *sql.DB) *GalleryRepo {
	return &GalleryRepo{DB: db}
}

// Create inserts a new gallery item.
func (r *GalleryRepo) Create(ctx context.Context, req *model.CreateGalleryItemRequest) (*model.GalleryItem, error) {
	if req == nil {
		return nil, errors.New("create gallery item request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := clock(r.Now)
	out, err := queryOne[model.GalleryItem](ctx, r.DB, ErrGalleryItemNotFound, `
		INSERT INTO gallery_items (title, description, image_url, min_role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING `+galleryColumns,
		req.Title, trimmedOrNil(req.Description), strings.TrimSpace(req.ImageURL), string(req.MinRole), now,
	)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return out, nil
}

// GetByID retrieves a gallery item by ID.
func (r *GalleryRepo) GetByID(ctx context.Context, id string) (*model.GalleryItem, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrGalleryItemNotFound
	}
	out, err := queryOne[model.GalleryItem](ctx, r.DB, ErrGalleryItemNotFound,
		`SELECT `+galleryColumns+` FROM gallery_items WHERE id = $1`, id)
	if err != nil && !errors.Is(err, ErrGalleryItemNotFound) {
		return nil, fmt.Errorf("failed to get gallery item: %w", err)
	}
	return out, err
}

// List returns every gallery item, newest first.
func (r *GalleryRepo) List(ctx context.Context) ([]*model.GalleryItem, error) {
	out, err := queryAll[model.GalleryItem](ctx, r.DB,
		`SELECT `+galleryColumns+` FROM gallery_items ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list gallery items: %w", err)
	}
	return out, nil
}

// Update applies the non-nil fields of req.
func (r *GalleryRepo) Update(
	ctx context.Context,
	id string,
	req model.UpdateGalleryItemRequest,
) (*model.GalleryItem, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrGalleryItemNotFound
	}

	var set setClause
	if req.Title != nil {
		set.add("title", strings.TrimSpace(*req.Title))
	}
	set.addNullable("description", req.Description)
	if req.ImageURL != nil {
		set.add("image_url", strings.TrimSpace(*req.ImageURL))
	}
	if req.MinRole != nil {
		set.add("min_role", string(*req.MinRole))
	}
	if set.empty() {
		return r.GetByID(ctx, id)
	}

	q, args := set.updateQuery("gallery_items", id, galleryColumns)
	out, err := queryOne[model.GalleryItem](ctx, r.DB, ErrGalleryItemNotFound, q, args...)
	if err != nil {
		if errors.Is(err, ErrGalleryItemNotFound) {
			return nil, err
		}
		return nil, apperrors.MapDBError(err)
	}
	return out, nil
}

// Delete deletes a gallery item by ID.
func (r *GalleryRepo) Delete(ctx context.Context, id string) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, nil
	}
	return deleteByID(ctx, r.DB, "gallery_items", id)
}
