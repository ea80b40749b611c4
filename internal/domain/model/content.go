//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import (
	"strings"
	"time"

	domainauth "github.com/target/institute-web/internal/domain/auth"
)

// Visible is implemented by every content record carrying a min_role visibility tag.
type Visible interface {
	RequiredRole() domainauth.Role
}

// FilterVisible keeps only the records viewer may see under domainauth.CanAccess.
func FilterVisible[T Visible](items []T, viewer domainauth.Role) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		if domainauth.CanAccess(it.RequiredRole(), viewer) {
			out = append(out, it)
		}
	}
	return out
}

// normalizeMinRole defaults an empty min_role to the lowest tier.
func normalizeMinRole(r domainauth.Role) domainauth.Role {
	if strings.TrimSpace(string(r)) == "" {
		return domainauth.RoleUser
	}
	return r
}

// ArchiveEntry is a document in the institute archive (minutes, papers, PDFs).
type ArchiveEntry struct {
	ID          string          `json:"id"                  db:"id"`
	Title       string          `json:"title"               db:"title"`
	Description *string         `json:"description,omitempty" db:"description"`
	Category    *string         `json:"category,omitempty"  db:"category"`
	FileURL     *string         `json:"file_url,omitempty"  db:"file_url"`
	MinRole     domainauth.Role `json:"min_role"            db:"min_role"`
	CreatedBy   *string         `json:"created_by,omitempty" db:"created_by"`
	CreatedAt   time.Time       `json:"created_at"          db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"          db:"updated_at"`
}

// RequiredRole implements Visible.
func (e *ArchiveEntry) RequiredRole() domainauth.Role { return e.MinRole }

// CreateArchiveEntryRequest represents parameters to create an ArchiveEntry.
type CreateArchiveEntryRequest struct {
	Title       string          `json:"title"                 validate:"required,max=255"`
	Description *string         `json:"description,omitempty" validate:"omitempty,max=5000"`
	Category    *string         `json:"category,omitempty"    validate:"omitempty,max=100"`
	FileURL     *string         `json:"file_url,omitempty"    validate:"omitempty,url"`
	MinRole     domainauth.Role `json:"min_role,omitempty"    validate:"omitempty,role"`
	CreatedBy   *string         `json:"-"`
}

// Validate validates CreateArchiveEntryRequest and applies defaults.
func (r *CreateArchiveEntryRequest) Validate() error {
	r.Title = strings.TrimSpace(r.Title)
	if err := validateStruct(r); err != nil {
		return err
	}
	r.MinRole = normalizeMinRole(r.MinRole)
	return nil
}

// UpdateArchiveEntryRequest represents parameters to update an ArchiveEntry.
type UpdateArchiveEntryRequest struct {
	Title       *string          `json:"title,omitempty"       validate:"omitempty,min=1,max=255"`
	Description *string          `json:"description,omitempty" validate:"omitempty,max=5000"`
	Category    *string          `json:"category,omitempty"    validate:"omitempty,max=100"`
	FileURL     *string          `json:"file_url,omitempty"    validate:"omitempty,url"`
	MinRole     *domainauth.Role `json:"min_role,omitempty"    validate:"omitempty,role"`
}

// Validate validates UpdateArchiveEntryRequest.
func (r *UpdateArchiveEntryRequest) Validate() error { return validateStruct(r) }

// Book is an entry in the publications catalog.
type Book struct {
	ID            string          `json:"id"                       db:"id"`
	Title         string          `json:"title"                    db:"title"`
	Author        string          `json:"author"                   db:"author"`
	Publisher     *string         `json:"publisher,omitempty"      db:"publisher"`
	PublishedYear *int            `json:"published_year,omitempty" db:"published_year"`
	Description   *string         `json:"description,omitempty"    db:"description"`
	CoverURL      *string         `json:"cover_url,omitempty"      db:"cover_url"`
	PurchaseURL   *string         `json:"purchase_url,omitempty"   db:"purchase_url"`
	MinRole       domainauth.Role `json:"min_role"                 db:"min_role"`
	CreatedAt     time.Time       `json:"created_at"               db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"               db:"updated_at"`
}

// RequiredRole implements Visible.
func (b *Book) RequiredRole() domainauth.Role { return b.MinRole }

// CreateBookRequest represents parameters to create a Book.
type CreateBookRequest struct {
	Title         string          `json:"title"                    validate:"required,max=255"`
	Author        string          `json:"author"                   validate:"required,max=255"`
	Publisher     *string         `json:"publisher,omitempty"      validate:"omitempty,max=255"`
	PublishedYear *int            `json:"published_year,omitempty" validate:"omitempty,gte=1400,lte=3000"`
	Description   *string         `json:"description,omitempty"    validate:"omitempty,max=5000"`
	CoverURL      *string         `json:"cover_url,omitempty"      validate:"omitempty,url"`
	PurchaseURL   *string         `json:"purchase_url,omitempty"   validate:"omitempty,url"`
	MinRole       domainauth.Role `json:"min_role,omitempty"       validate:"omitempty,role"`
}

// Validate validates CreateBookRequest and applies defaults.
func (r *CreateBookRequest) Validate() error {
	r.Title = strings.TrimSpace(r.Title)
	r.Author = strings.TrimSpace(r.Author)
	if err := validateStruct(r); err != nil {
		return err
	}
	r.MinRole = normalizeMinRole(r.MinRole)
	return nil
}

// UpdateBookRequest represents parameters to update a Book.
type UpdateBookRequest struct {
	Title         *string          `json:"title,omitempty"          validate:"omitempty,min=1,max=255"`
	Author        *string          `json:"author,omitempty"         validate:"omitempty,min=1,max=255"`
	Publisher     *string          `json:"publisher,omitempty"      validate:"omitempty,max=255"`
	PublishedYear *int             `json:"published_year,omitempty" validate:"omitempty,gte=1400,lte=3000"`
	Description   *string          `json:"description,omitempty"    validate:"omitempty,max=5000"`
	CoverURL      *string          `json:"cover_url,omitempty"      validate:"omitempty,url"`
	PurchaseURL   *string          `json:"purchase_url,omitempty"   validate:"omitempty,url"`
	MinRole       *domainauth.Role `json:"min_role,omitempty"       validate:"omitempty,role"`
}

// Validate validates UpdateBookRequest.
func (r *UpdateBookRequest) Validate() error { return validateStruct(r) }

// GalleryItem is an image shown in the gallery.
type GalleryItem struct {
	ID          string          `json:"id"                    db:"id"`
	Title       string          `json:"title"                 db:"title"`
	Description *string         `json:"description,omitempty" db:"description"`
	ImageURL    string          `json:"image_url"             db:"image_url"`
	MinRole     domainauth.Role `json:"min_role"              db:"min_role"`
	CreatedAt   time.Time       `json:"created_at"            db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"            db:"updated_at"`
}

// RequiredRole implements Visible.
func (g *GalleryItem) RequiredRole() domainauth.Role { return g.MinRole }

// CreateGalleryItemRequest represents parameters to create a GalleryItem.
type CreateGalleryItemRequest struct {
	Title       string          `json:"title"                 validate:"required,max=255"`
	Description *string         `json:"description,omitempty" validate:"omitempty,max=2000"`
	ImageURL    string          `json:"image_url"             validate:"required,url"`
	MinRole     domainauth.Role `json:"min_role,omitempty"    validate:"omitempty,role"`
}

// Validate validates CreateGalleryItemRequest and applies defaults.
func (r *CreateGalleryItemRequest) Validate() error {
	r.Title = strings.TrimSpace(r.Title)
	if err := validateStruct(r); err != nil {
		return err
	}
	r.MinRole = normalizeMinRole(r.MinRole)
	return nil
}

// UpdateGalleryItemRequest represents parameters to update a GalleryItem.
type UpdateGalleryItemRequest struct {
	Title       *string          `json:"title,omitempty"       validate:"omitempty,min=1,max=255"`
	Description *string          `json:"description,omitempty" validate:"omitempty,max=2000"`
	ImageURL    *string          `json:"image_url,omitempty"   validate:"omitempty,url"`
	MinRole     *domainauth.Role `json:"min_role,omitempty"    validate:"omitempty,role"`
}

// Validate validates UpdateGalleryItemRequest.
func (r *UpdateGalleryItemRequest) Validate() error { return validateStruct(r) }

// UpdateRoleRequest is the admin payload for changing a profile's role.
type UpdateRoleRequest struct {
	Role domainauth.Role `json:"role" validate:"required,role"`
}

// Validate validates UpdateRoleRequest.
func (r *UpdateRoleRequest) Validate() error { return validateStruct(r) }

// SignUpRequest carries credentials for a new identity.
type SignUpRequest struct {
	Email    string `json:"email"    validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// Validate validates SignUpRequest.
func (r *SignUpRequest) Validate() error {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	return validateStruct(r)
}

// SignInRequest carries credentials for signing in.
type SignInRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Validate validates SignInRequest.
func (r *SignInRequest) Validate() error {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	return validateStruct(r)
}
