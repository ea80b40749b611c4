package service

import (
	"context"

	"github.com/target/institute-web/internal/core"
	"github.com/target/institute-web/internal/data"
	domainauth "github.com/target/institute-web/internal/domain/auth"
	"github.com/target/institute-web/internal/domain/model"
)

// ContentRepository is the CRUD shape shared by every content collection.
type ContentRepository[T model.Visible, C any, U any] interface {
	Create(ctx context.Context, req *C) (T, error)
	GetByID(ctx context.Context, id string) (T, error)
	List(ctx context.Context) ([]T, error)
	Update(ctx context.Context, id string, req U) (T, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// ContentService applies min_role visibility on reads and passes admin writes through.
// Writes are only reachable behind the access gate.
type ContentService[T model.Visible, C any, U any] struct {
	repo     ContentRepository[T, C, U]
	notFound error
}

// ListVisible returns the records viewer may see, in store order (newest first).
func (s *ContentService[T, C, U]) ListVisible(ctx context.Context, viewer domainauth.Role) ([]T, error) {
	items, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	return model.FilterVisible(items, viewer), nil
}

// GetVisible returns one record; records above the viewer's tier are reported as not found.
func (s *ContentService[T, C, U]) GetVisible(ctx context.Context, id string, viewer domainauth.Role) (T, error) {
	item, err := s.repo.GetByID(ctx, id)
	if err != nil {
		var zero T
		return zero, err
	}
	if !domainauth.CanAccess(item.RequiredRole(), viewer) {
		var zero T
		return zero, s.notFound
	}
	return item, nil
}

// List returns every record regardless of visibility (admin views).
func (s *ContentService[T, C, U]) List(ctx context.Context) ([]T, error) { return s.repo.List(ctx) }

// Create inserts a record.
func (s *ContentService[T, C, U]) Create(ctx context.Context, req *C) (T, error) {
	return s.repo.Create(ctx, req)
}

// Update applies a partial update.
func (s *ContentService[T, C, U]) Update(ctx context.Context, id string, req U) (T, error) {
	return s.repo.Update(ctx, id, req)
}

// Delete removes a record and reports whether it existed.
func (s *ContentService[T, C, U]) Delete(ctx context.Context, id string) (bool, error) {
	return s.repo.Delete(ctx, id)
}

type (
	// ArchiveService serves archive entries.
	ArchiveService = ContentService[*model.ArchiveEntry, model.CreateArchiveEntryRequest, model.UpdateArchiveEntryRequest]
	// BookService serves the publications catalog.
	BookService = ContentService[*model.Book, model.CreateBookRequest, model.UpdateBookRequest]
	// GalleryService serves gallery items.
	GalleryService = ContentService[*model.GalleryItem, model.CreateGalleryItemRequest, model.UpdateGalleryItemRequest]
)

// NewArchiveService constructs an ArchiveService.
func NewArchiveService(repo core.ArchiveRepository) *ArchiveService {
	return &ArchiveService{repo: repo, notFound: data.ErrArchiveEntryNotFound}
}

// NewBookService constructs a BookService.
func NewBookService(repo core.BookRepository) *BookService {
	return &BookService{repo: repo, notFound: data.ErrBookNotFound}
}

// NewGalleryService constructs a GalleryService.
func NewGalleryService(repo core.GalleryRepository) *GalleryService {
	return &GalleryService{repo: repo, notFound: data.ErrGalleryItemNotFound}
}
