package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/institute-web/internal/data"
	domainauth "github.com/target/institute-web/internal/domain/auth"
	"github.com/target/institute-web/internal/domain/model"
	"github.com/target/institute-web/internal/mocks"
	"go.uber.org/mock/gomock"
)

func archiveFixture() []*model.ArchiveEntry {
	return []*model.ArchiveEntry{
		{ID: "board", Title: "Board resolutions", MinRole: domainauth.RoleAdmin},
		{ID: "minutes", Title: "Synod minutes", MinRole: domainauth.RoleUser},
		{ID: "odd", Title: "Legacy import", MinRole: domainauth.Role("editor")},
	}
}

func TestArchiveService_ListVisible(t *testing.T) {
	tests := []struct {
		name   string
		viewer domainauth.Role
		want   []string
	}{
		{name: "anonymous", viewer: domainauth.RoleNone, want: []string{"minutes"}},
		{name: "user", viewer: domainauth.RoleUser, want: []string{"minutes", "odd"}},
		{name: "admin", viewer: domainauth.RoleAdmin, want: []string{"board", "minutes", "odd"}},
		{name: "unknown role", viewer: domainauth.Role("guest"), want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			repo := mocks.NewMockArchiveRepository(ctrl)
			repo.EXPECT().List(gomock.Any()).Return(archiveFixture(), nil)

			out, err := NewArchiveService(repo).ListVisible(context.Background(), tt.viewer)
			require.NoError(t, err)
			ids := make([]string, 0, len(out))
			for _, e := range out {
				ids = append(ids, e.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestArchiveService_GetVisibleHidesRestricted(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockArchiveRepository(ctrl)
	svc := NewArchiveService(repo)
	ctx := context.Background()

	board := archiveFixture()[0]
	repo.EXPECT().GetByID(ctx, "board").Return(board, nil).Times(2)

	_, err := svc.GetVisible(ctx, "board", domainauth.RoleUser)
	assert.ErrorIs(t, err, data.ErrArchiveEntryNotFound)

	got, err := svc.GetVisible(ctx, "board", domainauth.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, "board", got.ID)
}

func TestBookService_WritesPassThrough(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockBookRepository(ctrl)
	svc := NewBookService(repo)
	ctx := context.Background()

	req := &model.CreateBookRequest{Title: "T", Author: "A"}
	repo.EXPECT().Create(ctx, req).Return(&model.Book{ID: "b1"}, nil)
	repo.EXPECT().Update(ctx, "b1", gomock.Any()).Return(&model.Book{ID: "b1", Title: "T2"}, nil)
	repo.EXPECT().Delete(ctx, "b1").Return(true, nil)
	repo.EXPECT().GetByID(ctx, "nope").Return(nil, data.ErrBookNotFound)

	b, err := svc.Create(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "b1", b.ID)

	b, err = svc.Update(ctx, "b1", model.UpdateBookRequest{Title: stringPtr("T2")})
	require.NoError(t, err)
	assert.Equal(t, "T2", b.Title)

	ok, err := svc.Delete(ctx, "b1")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = svc.GetVisible(ctx, "nope", domainauth.RoleAdmin)
	assert.ErrorIs(t, err, data.ErrBookNotFound)
}

func TestGalleryService_AdminListIsUnfiltered(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockGalleryRepository(ctrl)
	repo.EXPECT().List(gomock.Any()).Return([]*model.GalleryItem{
		{ID: "g1", MinRole: domainauth.RoleAdmin},
		{ID: "g2", MinRole: domainauth.RoleUser},
	}, nil)

	out, err := NewGalleryService(repo).List(context.Background())
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func stringPtr(s string) *string { return &s }
