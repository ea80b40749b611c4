package data

import "errors"

// Shared sentinel errors for data-layer repositories.
var (
	// Identity repository sentinels.
	ErrIdentityNotFound = errors.New("identity not found")
	ErrEmailTaken       = errors.New("email already registered")

	// Profile repository sentinels.
	ErrProfileNotFound = errors.New("profile not found")
	ErrInvalidRole     = errors.New("invalid role")
	// ErrElevatedUnavailable is returned when the elevated (service) credentials are not configured.
	// The elevated path fails closed rather than falling back to restricted credentials.
	ErrElevatedUnavailable = errors.New("elevated database credentials not configured")

	// Content repository sentinels.
	ErrArchiveEntryNotFound = errors.New("archive entry not found")
	ErrBookNotFound         = errors.New("book not found")
	ErrGalleryItemNotFound  = errors.New("gallery item not found")
)
