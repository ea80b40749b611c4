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

const bookColumns = `id, title, author, publisher, published_year, description, cover_url, purchase_url,
	min_role, created_at, updated_at`

// BookRepo provides database operations for the publications catalog.
type BookRepo struct {
	DB *sql.DB
	// Now stamps created_at and updated_at; nil means time.Now.
	Now func() time.Time
}

// NewBookRepo creates a new BookRepo.
func NewBookRepo(db *sql.DB) *BookRepo {
	return &BookRepo{DB: db}
}

// Create inserts a new book.
func (r *BookRepo) Create(ctx context.Context, req *model.CreateBookRequest) (*model.Book, error) {
	if req == nil {
		return nil, errors.New("create book request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := clock(r.Now)
	out, err := queryOne[model.Book](ctx, r.DB, ErrBookNotFound, `
		INSERT INTO books (title, author, publisher, published_year, description, cover_url, purchase_url,
		                   min_role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		RETURNING `+bookColumns,
		req.Title, req.Author, trimmedOrNil(req.Publisher), req.PublishedYear, trimmedOrNil(req.Description),
		trimmedOrNil(req.CoverURL), trimmedOrNil(req.PurchaseURL), string(req.MinRole), now,
	)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return out, nil
}

// GetByID retrieves a book by ID.
func (r *BookRepo) GetByID(ctx context.Context, id string) (*model.Book, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrBookNotFound
	}
	out, err := queryOne[model.Book](ctx, r.DB, ErrBookNotFound,
		`SELECT `+bookColumns+` FROM books WHERE id = $1`, id)
	if err != nil && !errors.Is(err, ErrBookNotFound) {
		return nil, fmt.Errorf("failed to get book: %w", err)
	}
	return out, err
}

// List returns every book, newest first.
func (r *BookRepo) List(ctx context.Context) ([]*model.Book, error) {
	out, err := queryAll[model.Book](ctx, r.DB,
		`SELECT `+bookColumns+` FROM books ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	return out, nil
}

// Update applies the non-nil fields of req.
func (r *BookRepo) Update(ctx context.Context, id string, req model.UpdateBookRequest) (*model.Book, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrBookNotFound
	}

	var set setClause
	if req.Title != nil {
		set.add("title", strings.TrimSpace(*req.Title))
	}
	if req.Author != nil {
		set.add("author", strings.TrimSpace(*req.Author))
	}
	set.addNullable("publisher", req.Publisher)
	if req.PublishedYear != nil {
		set.add("published_year", *req.PublishedYear)
	}
	set.addNullable("description", req.Description)
	set.addNullable("cover_url", req.CoverURL)
	set.addNullable("purchase_url", req.PurchaseURL)
	if req.MinRole != nil {
		set.add("min_role", string(*req.MinRole))
	}
	if set.empty() {
		return r.GetByID(ctx, id)
	}

	q, args := set.updateQuery("books", id, bookColumns)
	out, err := queryOne[model.Book](ctx, r.DB, ErrBookNotFound, q, args...)
	if err != nil {
		if errors.Is(err, ErrBookNotFound) {
			return nil, err
		}
		return nil, apperrors.MapDBError(err)
	}
	return out, nil
}

// Delete deletes a book by ID.
func (r *BookRepo) Delete(ctx context.Context, id string) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, nil
	}
	return deleteByID(ctx, r.DB, "books", id)
}
