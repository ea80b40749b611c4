// Package mocks provides gomock implementations of the repository interfaces in internal/core.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	profiles := mocks.NewMockProfileRepository(ctrl)
//	profiles.EXPECT().GetRole(gomock.Any(), userID).Return(domainauth.RoleAdmin, nil)
package mocks

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=identity_repository_mock.go github.com/target/institute-web/internal/core IdentityRepository
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=profile_repository_mock.go github.com/target/institute-web/internal/core ProfileRepository
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=own_profile_reader_mock.go github.com/target/institute-web/internal/core OwnProfileReader

// Content repositories share one shape: Create, GetByID, List, Update, Delete.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=archive_repository_mock.go github.com/target/institute-web/internal/core ArchiveRepository
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=book_repository_mock.go github.com/target/institute-web/internal/core BookRepository
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=gallery_repository_mock.go github.com/target/institute-web/internal/core GalleryRepository
