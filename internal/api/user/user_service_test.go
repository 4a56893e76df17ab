package user

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/go-user-accounts/config"
	"github.com/FACorreiaa/go-user-accounts/internal/featureflags"
	"github.com/FACorreiaa/go-user-accounts/internal/types"
)

type MockUserRepo struct {
	mock.Mock
}

func (m *MockUserRepo) GetUserByID(ctx context.Context, userID uuid.UUID) (*types.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.User), args.Error(1)
}

func (m *MockUserRepo) GetUserData(ctx context.Context, userID uuid.UUID) (*types.UserData, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.UserData), args.Error(1)
}

func (m *MockUserRepo) UpdateProfile(ctx context.Context, userID uuid.UUID, params types.UpdateProfileParams) (*types.User, error) {
	args := m.Called(ctx, userID, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.User), args.Error(1)
}

func (m *MockUserRepo) SetReleaseNotesViewed(ctx context.Context, userID uuid.UUID, version string) error {
	return m.Called(ctx, userID, version).Error(0)
}

func (m *MockUserRepo) SetCommentState(ctx context.Context, userID uuid.UUID, state types.CommentOnboardingState) error {
	return m.Called(ctx, userID, state).Error(0)
}

func (m *MockUserRepo) SetProfilePhotoKey(ctx context.Context, userID uuid.UUID, key string) (string, error) {
	args := m.Called(ctx, userID, key)
	return args.String(0), args.Error(1)
}

// memUserRepo keeps one user in memory so update-then-read can be checked.
type memUserRepo struct {
	mu   sync.Mutex
	user types.User
	data types.UserData
}

func (m *memUserRepo) GetUserByID(_ context.Context, _ uuid.UUID) (*types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.user
	return &u, nil
}

func (m *memUserRepo) GetUserData(_ context.Context, _ uuid.UUID) (*types.UserData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.data
	return &d, nil
}

func (m *memUserRepo) UpdateProfile(_ context.Context, _ uuid.UUID, p types.UpdateProfileParams) (*types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.Name != nil {
		m.user.Name = *p.Name
	}
	if p.Email != nil {
		m.user.Email = *p.Email
	}
	if p.Role != nil {
		m.user.Role = *p.Role
	}
	if p.UseCase != nil {
		m.user.UseCase = *p.UseCase
	}
	u := m.user
	return &u, nil
}

func (m *memUserRepo) SetReleaseNotesViewed(_ context.Context, _ uuid.UUID, v string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.ReleaseNotesViewedVersion = v
	return nil
}

func (m *memUserRepo) SetCommentState(_ context.Context, _ uuid.UUID, s types.CommentOnboardingState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.CommentOnboardingState = s
	return nil
}

func (m *memUserRepo) SetProfilePhotoKey(_ context.Context, _ uuid.UUID, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.data.ProfilePhotoKey
	m.data.ProfilePhotoKey = key
	return prev, nil
}

func ptr(s string) *string { return &s }

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func setupUserServiceTest() (*UserServiceImpl, *MockUserRepo) {
	repo := new(MockUserRepo)
	flags := featureflags.NewConfigProvider(config.FeatureFlagsConfig{Flags: map[string]config.FlagRule{"release_comments_enabled": {Enabled: true}}})
	return NewUserService(repo, flags, "v1.2.3", discardLogger()), repo
}

func TestUserService_GetProfile(t *testing.T) {
	ctx := context.Background()
	user := &types.User{ID: uuid.New(), Email: "a@x.com", Name: "Ann", IsEnabled: true, CreatedAt: time.Now()}

	t.Run("composes user and user data", func(t *testing.T) {
		svc, repo := setupUserServiceTest()
		repo.On("GetUserByID", mock.Anything, user.ID).Return(user, nil).Once()
		repo.On("GetUserData", mock.Anything, user.ID).Return(&types.UserData{
			UserID:                    user.ID,
			ReleaseNotesViewedVersion: "v1.2.0",
			CommentOnboardingState:    types.CommentSkipped,
			ProfilePhotoKey:           "profile-photos/x.jpg",
		}, nil).Once()

		profile, err := svc.GetProfile(ctx, user)
		require.NoError(t, err)
		assert.Equal(t, "a@x.com", profile.Username)
		assert.Equal(t, "Ann", profile.Name)
		assert.Equal(t, "v1.2.0", profile.ReleaseNotesViewedVersion)
		assert.Equal(t, types.CommentSkipped, profile.CommentOnboardingState)
		assert.True(t, profile.HasProfilePhoto)
		repo.AssertExpectations(t)
	})

	t.Run("either load failing fails the profile", func(t *testing.T) {
		svc, repo := setupUserServiceTest()
		repo.On("GetUserByID", mock.Anything, user.ID).Return(user, nil).Maybe()
		repo.On("GetUserData", mock.Anything, user.ID).Return(nil, errors.New("db down")).Once()

		_, err := svc.GetProfile(ctx, user)
		assert.ErrorContains(t, err, "db down")
	})
}

func TestUserService_UpdateProfile(t *testing.T) {
	ctx := context.Background()
	user := &types.User{ID: uuid.New(), Email: "a@x.com"}

	t.Run("invalid field rejects the whole patch", func(t *testing.T) {
		svc, repo := setupUserServiceTest()
		_, err := svc.UpdateProfile(ctx, user, types.UpdateProfileParams{
			Name:  ptr("Valid Name"),
			Email: ptr("not-an-email"),
		})
		var ve *types.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Contains(t, ve.Fields, "email")
		repo.AssertNotCalled(t, "UpdateProfile", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("markup-only name is empty after sanitizing", func(t *testing.T) {
		svc, repo := setupUserServiceTest()
		_, err := svc.UpdateProfile(ctx, user, types.UpdateProfileParams{Name: ptr("<script></script>")})
		assert.ErrorIs(t, err, types.ErrValidation)
		repo.AssertNotCalled(t, "UpdateProfile", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("too long", func(t *testing.T) {
		svc, _ := setupUserServiceTest()
		_, err := svc.UpdateProfile(ctx, user, types.UpdateProfileParams{UseCase: ptr(strings.Repeat("x", 256))})
		assert.ErrorIs(t, err, types.ErrValidation)
	})

	t.Run("sanitizes and normalizes before saving", func(t *testing.T) {
		svc, repo := setupUserServiceTest()
		repo.On("UpdateProfile", mock.Anything, user.ID, mock.MatchedBy(func(p types.UpdateProfileParams) bool {
			return *p.Name == "Ann" && *p.Email == "ann@x.com" && p.Role == nil
		})).Return(&types.User{ID: user.ID, Name: "Ann", Email: "ann@x.com"}, nil).Once()

		updated, err := svc.UpdateProfile(ctx, user, types.UpdateProfileParams{Name: ptr("<b>Ann</b>"), Email: ptr(" Ann@X.com ")})
		require.NoError(t, err)
		assert.Equal(t, "Ann", updated.Name)
		repo.AssertExpectations(t)
	})

	t.Run("email taken", func(t *testing.T) {
		svc, repo := setupUserServiceTest()
		repo.On("UpdateProfile", mock.Anything, user.ID, mock.Anything).Return(nil, types.ErrConflict).Once()
		_, err := svc.UpdateProfile(ctx, user, types.UpdateProfileParams{Email: ptr("b@x.com")})
		assert.ErrorIs(t, err, types.ErrConflict)
	})

	t.Run("empty patch is a read", func(t *testing.T) {
		svc, repo := setupUserServiceTest()
		repo.On("GetUserByID", mock.Anything, user.ID).Return(user, nil).Once()
		got, err := svc.UpdateProfile(ctx, user, types.UpdateProfileParams{})
		require.NoError(t, err)
		assert.Equal(t, user, got)
		repo.AssertNotCalled(t, "UpdateProfile", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestUserService_ProfileReflectsUpdate(t *testing.T) {
	ctx := context.Background()
	user := types.User{ID: uuid.New(), Email: "a@x.com", Name: "Old"}
	repo := &memUserRepo{user: user, data: types.UserData{UserID: user.ID}}
	svc := NewUserService(repo, featureflags.NewConfigProvider(config.FeatureFlagsConfig{}), "v1", discardLogger())

	patch := types.UpdateProfileParams{
		Name:    ptr("New Name"),
		Email:   ptr("new@x.com"),
		Role:    ptr("Engineer"),
		UseCase: ptr("dashboards"),
	}
	_, err := svc.UpdateProfile(ctx, &user, patch)
	require.NoError(t, err)

	profile, err := svc.GetProfile(ctx, &user)
	require.NoError(t, err)
	assert.Equal(t, "New Name", profile.Name)
	assert.Equal(t, "new@x.com", profile.Email)
	assert.Equal(t, "Engineer", profile.Role)
	assert.Equal(t, "dashboards", profile.UseCase)

	_, err = svc.UpdateProfile(ctx, &user, types.UpdateProfileParams{Name: ptr("Newer"), Email: ptr("broken")})
	require.Error(t, err)
	profile, err = svc.GetProfile(ctx, &user)
	require.NoError(t, err)
	assert.Equal(t, "New Name", profile.Name, "rejected patch must not be partially applied")
}

func TestUserService_SetReleaseNotesViewed(t *testing.T) {
	svc, repo := setupUserServiceTest()
	user := &types.User{ID: uuid.New()}
	repo.On("SetReleaseNotesViewed", mock.Anything, user.ID, "v1.2.3").Return(nil).Once()

	require.NoError(t, svc.SetReleaseNotesViewed(context.Background(), user))
	repo.AssertExpectations(t)
}

func TestUserService_SetCommentState(t *testing.T) {
	user := &types.User{ID: uuid.New()}

	t.Run("valid", func(t *testing.T) {
		svc, repo := setupUserServiceTest()
		repo.On("SetCommentState", mock.Anything, user.ID, types.CommentCommented).Return(nil).Once()
		state, err := svc.SetCommentState(context.Background(), user, types.CommentCommented)
		require.NoError(t, err)
		assert.Equal(t, types.CommentCommented, state)
	})

	t.Run("unknown state", func(t *testing.T) {
		svc, repo := setupUserServiceTest()
		_, err := svc.SetCommentState(context.Background(), user, "DONE")
		assert.ErrorIs(t, err, types.ErrValidation)
		repo.AssertNotCalled(t, "SetCommentState", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestUserService_GetFeatureFlags(t *testing.T) {
	svc, _ := setupUserServiceTest()
	flags, err := svc.GetFeatureFlags(context.Background(), &types.User{ID: uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"release_comments_enabled": true}, flags)
}
