package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/institute-web/internal/data"
	domainauth "github.com/target/institute-web/internal/domain/auth"
	"github.com/target/institute-web/internal/domain/model"
	"github.com/target/institute-web/internal/mocks"
	mockauth "github.com/target/institute-web/internal/mocks/auth"
	"go.uber.org/mock/gomock"
)

func TestNewRoleService_RequiresElevatedStore(t *testing.T) {
	_, err := NewRoleService(RoleServiceOptions{})
	assert.Error(t, err)
}

func TestRoleService_ResolveIsAFreshReadEachTime(t *testing.T) {
	ctrl := gomock.NewController(t)
	profiles := mocks.NewMockProfileRepository(ctrl)
	svc, err := NewRoleService(RoleServiceOptions{Profiles: profiles})
	require.NoError(t, err)
	ctx := context.Background()

	gomock.InOrder(
		profiles.EXPECT().GetRole(ctx, "u1").Return(domainauth.RoleUser, nil),
		profiles.EXPECT().GetRole(ctx, "u1").Return(domainauth.RoleAdmin, nil),
	)

	r1, err := svc.Resolve(ctx, "u1")
	require.NoError(t, err)
	r2, err := svc.Resolve(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domainauth.RoleUser, r1)
	assert.Equal(t, domainauth.RoleAdmin, r2)

	_, err = svc.Resolve(ctx, "")
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestRoleService_SetRolePublishesUserUpdated(t *testing.T) {
	ctrl := gomock.NewController(t)
	profiles := mocks.NewMockProfileRepository(ctrl)
	events := mockauth.NewMemoryEvents()
	svc, err := NewRoleService(RoleServiceOptions{Profiles: profiles, Events: events})
	require.NoError(t, err)
	ctx := context.Background()

	profiles.EXPECT().SetRole(ctx, "target", domainauth.RoleAdmin).
		Return(&domainauth.Profile{ID: "target", Role: domainauth.RoleAdmin}, nil)

	p, err := svc.SetRole(ctx, "actor", "target", model.UpdateRoleRequest{Role: domainauth.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, domainauth.RoleAdmin, p.Role)

	evs := events.Published()
	require.Len(t, evs, 1)
	assert.Equal(t, domainauth.EventUserUpdated, evs[0].Kind)
	assert.Equal(t, "target", evs[0].UserID)
}

func TestRoleService_SetRoleFailures(t *testing.T) {
	ctrl := gomock.NewController(t)
	profiles := mocks.NewMockProfileRepository(ctrl)
	events := mockauth.NewMemoryEvents()
	svc, err := NewRoleService(RoleServiceOptions{Profiles: profiles, Events: events})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = svc.SetRole(ctx, "actor", "target", model.UpdateRoleRequest{Role: "owner"})
	require.Error(t, err)

	profiles.EXPECT().SetRole(ctx, "missing", domainauth.RoleUser).Return(nil, data.ErrProfileNotFound)
	_, err = svc.SetRole(ctx, "actor", "missing", model.UpdateRoleRequest{Role: domainauth.RoleUser})
	assert.ErrorIs(t, err, data.ErrProfileNotFound)

	assert.Empty(t, events.Published(), "failed writes announce nothing")
}

func TestRoleService_ListUsers(t *testing.T) {
	ctrl := gomock.NewController(t)
	profiles := mocks.NewMockProfileRepository(ctrl)
	svc, err := NewRoleService(RoleServiceOptions{Profiles: profiles})
	require.NoError(t, err)

	profiles.EXPECT().List(gomock.Any()).Return([]*domainauth.Profile{{ID: "a"}, {ID: "b"}}, nil)
	out, err := svc.ListUsers(context.Background())
	require.NoError(t, err)
	assert.Len(t, out, 2)

	profiles.EXPECT().List(gomock.Any()).Return(nil, errors.New("boom"))
	_, err = svc.ListUsers(context.Background())
	assert.Error(t, err)
}

func TestProfileService_Own(t *testing.T) {
	ctrl := gomock.NewController(t)
	own := mocks.NewMockOwnProfileReader(ctrl)
	svc := NewProfileService(own)

	own.EXPECT().GetOwn(gomock.Any(), "u1").Return(&domainauth.Profile{ID: "u1", Role: domainauth.RoleUser}, nil)
	p, err := svc.Own(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", p.ID)

	_, err = svc.Own(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoSession)
}
