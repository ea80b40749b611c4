package core

import (
	"context"

	domainauth "github.com/target/institute-web/internal/domain/auth"
	"github.com/target/institute-web/internal/domain/model"
)

// This file contains repository interface definitions (ports in hexagonal architecture).
// These interfaces define the contracts between the service layer and data layer.
// Service implementations should depend on these interfaces, not concrete implementations.

// IdentityRepository defines the interface for account data operations.
type IdentityRepository interface {
	Create(ctx context.Context, acct *domainauth.Account) (*domainauth.Identity, error)
	GetByEmail(ctx context.Context, email string) (*domainauth.Account, error)
	GetByID(ctx context.Context, id string) (*domainauth.Account, error)
	GetBySubject(ctx context.Context, provider, subject string) (*domainauth.Account, error)
}

// ProfileRepository is the elevated view of the profile store. Implementations bypass
// row-level security and must only be reachable from server-side code.
type ProfileRepository interface {
	Create(ctx context.Context, id, email string) (*domainauth.Profile, error)
	GetRole(ctx context.Context, id string) (domainauth.Role, error)
	SetRole(ctx context.Context, id string, role domainauth.Role) (*domainauth.Profile, error)
	List(ctx context.Context) ([]*domainauth.Profile, error)
}

// OwnProfileReader is the restricted view of the profile store: a caller can only read its own row.
type OwnProfileReader interface {
	GetOwn(ctx context.Context, viewerID string) (*domainauth.Profile, error)
}

// ArchiveRepository defines the interface for archive entry data operations.
type ArchiveRepository interface {
	Create(ctx context.Context, req *model.CreateArchiveEntryRequest) (*model.ArchiveEntry, error)
	GetByID(ctx context.Context, id string) (*model.ArchiveEntry, error)
	List(ctx context.Context) ([]*model.ArchiveEntry, error)
	Update(ctx context.Context, id string, req model.UpdateArchiveEntryRequest) (*model.ArchiveEntry, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// BookRepository defines the interface for publications catalog data operations.
type BookRepository interface {
	Create(ctx context.Context, req *model.CreateBookRequest) (*model.Book, error)
	GetByID(ctx context.Context, id string) (*model.Book, error)
	List(ctx context.Context) ([]*model.Book, error)
	Update(ctx context.Context, id string, req model.UpdateBookRequest) (*model.Book, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// GalleryRepository defines the interface for gallery data operations.
type GalleryRepository interface {
	Create(ctx context.Context, req *model.CreateGalleryItemRequest) (*model.GalleryItem, error)
	GetByID(ctx context.Context, id string) (*model.GalleryItem, error)
	List(ctx context.Context) ([]*model.GalleryItem, error)
	Update(ctx context.Context, id string, req model.UpdateGalleryItemRequest) (*model.GalleryItem, error)
	Delete(ctx context.Context, id string) (bool, error)
}
