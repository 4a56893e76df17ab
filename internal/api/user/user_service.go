package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/FACorreiaa/go-user-accounts/internal/api"
	"github.com/FACorreiaa/go-user-accounts/internal/api/auth"
	"github.com/FACorreiaa/go-user-accounts/internal/featureflags"
	"github.com/FACorreiaa/go-user-accounts/internal/types"
)

// Ensure implementation satisfies the interface
var _ UserService = (*UserServiceImpl)(nil)

// UserService defines the business logic contract for user operations.
type UserService interface {
	GetProfile(ctx context.Context, user *types.User) (*types.UserProfile, error)
	UpdateProfile(ctx context.Context, user *types.User, params types.UpdateProfileParams) (*types.User, error)
	SetReleaseNotesViewed(ctx context.Context, user *types.User) error
	SetCommentState(ctx context.Context, user *types.User, state types.CommentOnboardingState) (types.CommentOnboardingState, error)
	GetFeatureFlags(ctx context.Context, user *types.User) (map[string]bool, error)
}

// UserServiceImpl provides the implementation for UserService.
type UserServiceImpl struct {
	logger     *slog.Logger
	repo       UserRepo
	flags      featureflags.Provider
	appVersion string
	sanitizer  *bluemonday.Policy
}

// NewUserService creates a new user service instance.
func NewUserService(repo UserRepo, flags featureflags.Provider, appVersion string, logger *slog.Logger) *UserServiceImpl {
	return &UserServiceImpl{
		logger:     logger,
		repo:       repo,
		flags:      flags,
		appVersion: appVersion,
		sanitizer:  bluemonday.StrictPolicy(),
	}
}

// GetProfile loads the user and their user data concurrently and builds
// the profile view.
func (s *UserServiceImpl) GetProfile(ctx context.Context, user *types.User) (*types.UserProfile, error) {
	ctx, span := otel.Tracer("UserService").Start(ctx, "GetProfile", trace.WithAttributes(
		attribute.String("user.id", user.ID.String()),
	))
	defer span.End()
	l := s.logger.With(slog.String("method", "GetProfile"), slog.String("userID", user.ID.String()))

	var (
		current *types.User
		data    *types.UserData
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		current, err = s.repo.GetUserByID(gctx, user.ID)
		return err
	})
	g.Go(func() error {
		var err error
		data, err = s.repo.GetUserData(gctx, user.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		l.ErrorContext(ctx, "Failed to load profile", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "load failed")
		return nil, fmt.Errorf("error loading profile: %w", err)
	}

	span.SetStatus(codes.Ok, "Profile loaded")
	return &types.UserProfile{
		ID:                        current.ID,
		Email:                     current.Email,
		Username:                  current.Email,
		Name:                      current.Name,
		Role:                      current.Role,
		UseCase:                   current.UseCase,
		IsEnabled:                 current.IsEnabled,
		ReleaseNotesViewedVersion: data.ReleaseNotesViewedVersion,
		CommentOnboardingState:    data.CommentOnboardingState,
		HasProfilePhoto:           data.ProfilePhotoKey != "",
		CreatedAt:                 current.CreatedAt,
	}, nil
}

// UpdateProfile validates every field of params before applying any.
// An empty patch returns the current user unchanged.
func (s *UserServiceImpl) UpdateProfile(ctx context.Context, user *types.User, params types.UpdateProfileParams) (*types.User, error) {
	ctx, span := otel.Tracer("UserService").Start(ctx, "UpdateProfile", trace.WithAttributes(
		attribute.String("user.id", user.ID.String()),
	))
	defer span.End()
	l := s.logger.With(slog.String("method", "UpdateProfile"), slog.String("userID", user.ID.String()))

	params, err := s.normalize(params)
	if err != nil {
		span.SetStatus(codes.Error, "invalid patch")
		return nil, err
	}
	if params.Empty() {
		return s.repo.GetUserByID(ctx, user.ID)
	}

	updated, err := s.repo.UpdateProfile(ctx, user.ID, params)
	if err != nil {
		l.WarnContext(ctx, "Failed to update profile", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return nil, fmt.Errorf("error updating profile: %w", err)
	}
	l.InfoContext(ctx, "Profile updated")
	span.SetStatus(codes.Ok, "Profile updated")
	return updated, nil
}

func (s *UserServiceImpl) normalize(params types.UpdateProfileParams) (types.UpdateProfileParams, error) {
	if params.Email != nil {
		e := auth.NormalizeEmail(*params.Email)
		params.Email = &e
	}
	fields := map[string]string{}
	if params.Name != nil {
		name := strings.TrimSpace(s.sanitizer.Sanitize(*params.Name))
		params.Name = &name
		if name == "" {
			fields["name"] = "must not be empty"
		}
	}
	if err := api.ValidateStruct(params); err != nil {
		var ve *types.ValidationError
		if !errors.As(err, &ve) {
			return params, err
		}
		for k, v := range ve.Fields {
			fields[k] = v
		}
	}
	if len(fields) > 0 {
		return params, &types.ValidationError{Fields: fields}
	}
	return params, nil
}

// SetReleaseNotesViewed records the running version as seen by user.
func (s *UserServiceImpl) SetReleaseNotesViewed(ctx context.Context, user *types.User) error {
	ctx, span := otel.Tracer("UserService").Start(ctx, "SetReleaseNotesViewed")
	defer span.End()

	if err := s.repo.SetReleaseNotesViewed(ctx, user.ID, s.appVersion); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "save failed")
		return fmt.Errorf("error setting release notes viewed: %w", err)
	}
	return nil
}

func (s *UserServiceImpl) SetCommentState(ctx context.Context, user *types.User, state types.CommentOnboardingState) (types.CommentOnboardingState, error) {
	ctx, span := otel.Tracer("UserService").Start(ctx, "SetCommentState")
	defer span.End()

	if !state.Valid() {
		return "", &types.ValidationError{Fields: map[string]string{
			"commentOnboardingState": "must be one of ONBOARDED, SKIPPED, COMMENTED, RESOLVED",
		}}
	}
	if err := s.repo.SetCommentState(ctx, user.ID, state); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "save failed")
		return "", fmt.Errorf("error setting comment state: %w", err)
	}
	return state, nil
}

func (s *UserServiceImpl) GetFeatureFlags(ctx context.Context, user *types.User) (map[string]bool, error) {
	flags, err := s.flags.FlagsFor(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("error evaluating feature flags: %w", err)
	}
	return flags, nil
}
