package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/institute-web/internal/core"
	domainauth "github.com/target/institute-web/internal/domain/auth"
	"github.com/target/institute-web/internal/domain/model"
	"github.com/target/institute-web/internal/ports"
)

// RoleServiceOptions groups dependencies for RoleService.
type RoleServiceOptions struct {
	// Profiles must be the elevated profile store.
	Profiles core.ProfileRepository
	Events   ports.SessionEvents
	Logger   *slog.Logger
}

// RoleService is the single administrative path that reads and mutates roles with elevated credentials.
type RoleService struct {
	profiles core.ProfileRepository
	events   ports.SessionEvents
	logger   *slog.Logger
}

// NewRoleService constructs a RoleService. It fails when the elevated store is missing.
func NewRoleService(opts RoleServiceOptions) (*RoleService, error) {
	if opts.Profiles == nil {
		return nil, errors.New("elevated profile store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &RoleService{
		profiles: opts.Profiles,
		events:   opts.Events,
		logger:   logger.With("component", "role_service"),
	}, nil
}

// Resolve returns the stored role for userID. Every call is a fresh read.
// The raw value is returned; callers rank unknown strings at 0.
func (s *RoleService) Resolve(ctx context.Context, userID string) (domainauth.Role, error) {
	if userID == "" {
		return domainauth.RoleNone, ErrNoSession
	}
	return s.profiles.GetRole(ctx, userID)
}

// SetRole changes targetID's role. Concurrent edits are last-write-wins at the store.
// The change applies to the target's existing sessions on their next request.
func (s *RoleService) SetRole(
	ctx context.Context,
	actorID, targetID string,
	req model.UpdateRoleRequest,
) (*domainauth.Profile, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	p, err := s.profiles.SetRole(ctx, targetID, req.Role)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "role updated", "actor_id", actorID, "target_id", targetID, "role", string(p.Role))

	if s.events != nil {
		ev := domainauth.SessionEvent{Kind: domainauth.EventUserUpdated, UserID: targetID}
		if pubErr := s.events.Publish(ctx, ev); pubErr != nil {
			s.logger.WarnContext(ctx, "failed to publish role change", "target_id", targetID, "error", pubErr)
		}
	}
	return p, nil
}

// ListUsers returns every profile, newest first.
func (s *RoleService) ListUsers(ctx context.Context) ([]*domainauth.Profile, error) {
	out, err := s.profiles.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	return out, nil
}

// ProfileService serves a signed-in caller's own profile through the restricted store.
type ProfileService struct {
	own core.OwnProfileReader
}

// NewProfileService constructs a ProfileService.
func NewProfileService(own core.OwnProfileReader) *ProfileService {
	return &ProfileService{own: own}
}

// Own returns the viewer's profile row.
func (s *ProfileService) Own(ctx context.Context, viewerID string) (*domainauth.Profile, error) {
	if viewerID == "" {
		return nil, ErrNoSession
	}
	return s.own.GetOwn(ctx, viewerID)
}
