package types

import (
	"time"

	"github.com/google/uuid"
)

// User is the stored identity. PasswordHash is empty for invited users
// that have not signed up yet.
type User struct {
	ID                uuid.UUID  `json:"id" example:"d290f1ee-6c54-4b01-90e6-d701748f0851"`
	Email             string     `json:"email" example:"john.doe@example.com"`
	Name              string     `json:"name" example:"John Doe"`
	Role              string     `json:"role,omitempty" example:"Developer"`
	UseCase           string     `json:"useCase,omitempty" example:"internal tools"`
	PasswordHash      string     `json:"-"`
	IsEnabled         bool       `json:"isEnabled"`
	PasswordChangedAt *time.Time `json:"-"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// UserData carries per-user auxiliary state.
type UserData struct {
	UserID                    uuid.UUID              `json:"userId"`
	ReleaseNotesViewedVersion string                 `json:"releaseNotesViewedVersion,omitempty"`
	CommentOnboardingState    CommentOnboardingState `json:"commentOnboardingState,omitempty"`
	ProfilePhotoKey           string                 `json:"-"`
	HasProfilePhoto           bool                   `json:"hasProfilePhoto"`
	UpdatedAt                 time.Time              `json:"updatedAt"`
}

// UserProfile is the view returned by GET /users/me. It is never stored.
type UserProfile struct {
	ID                        uuid.UUID              `json:"id"`
	Email                     string                 `json:"email"`
	Username                  string                 `json:"username"`
	Name                      string                 `json:"name"`
	Role                      string                 `json:"role,omitempty"`
	UseCase                   string                 `json:"useCase,omitempty"`
	IsEnabled                 bool                   `json:"isEnabled"`
	ReleaseNotesViewedVersion string                 `json:"releaseNotesViewedVersion,omitempty"`
	CommentOnboardingState    CommentOnboardingState `json:"commentOnboardingState,omitempty"`
	HasProfilePhoto           bool                   `json:"hasProfilePhoto"`
	CreatedAt                 time.Time              `json:"createdAt"`
}

// UpdateProfileParams is a partial update; nil fields are left unchanged.
type UpdateProfileParams struct {
	Name    *string `json:"name,omitempty" validate:"omitempty,min=1,max=255"`
	Email   *string `json:"email,omitempty" validate:"omitempty,email,max=255"`
	Role    *string `json:"role,omitempty" validate:"omitempty,max=100"`
	UseCase *string `json:"useCase,omitempty" validate:"omitempty,max=255"`
}

// Empty reports whether the patch changes nothing.
func (p UpdateProfileParams) Empty() bool {
	return p.Name == nil && p.Email == nil && p.Role == nil && p.UseCase == nil
}

type CommentOnboardingState string

const (
	CommentOnboarded CommentOnboardingState = "ONBOARDED"
	CommentSkipped   CommentOnboardingState = "SKIPPED"
	CommentCommented CommentOnboardingState = "COMMENTED"
	CommentResolved  CommentOnboardingState = "RESOLVED"
)

// Valid reports whether s is one of the known onboarding states.
func (s CommentOnboardingState) Valid() bool {
	switch s {
	case CommentOnboarded, CommentSkipped, CommentCommented, CommentResolved:
		return true
	}
	return false
}

// ResetToken is the stored side of a password reset token. Only the
// SHA-256 digest of the token handed to the user is kept.
type ResetToken struct {
	UserID     uuid.UUID
	TokenHash  string
	IssuedAt   time.Time
	ExpiresAt  time.Time
	ConsumedAt *time.Time
}

type WorkspaceRole string

const (
	RoleAdministrator WorkspaceRole = "Administrator"
	RoleDeveloper     WorkspaceRole = "Developer"
	RoleAppViewer     WorkspaceRole = "App Viewer"
)

func (r WorkspaceRole) Valid() bool {
	switch r {
	case RoleAdministrator, RoleDeveloper, RoleAppViewer:
		return true
	}
	return false
}

type WorkspaceMember struct {
	WorkspaceID string        `json:"workspaceId"`
	UserID      uuid.UUID     `json:"userId"`
	Role        WorkspaceRole `json:"role"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// InviteUsersRequest is the body of POST /users/invite.
type InviteUsersRequest struct {
	Usernames   []string      `json:"usernames" validate:"required,min=1,dive,required,email"`
	WorkspaceID string        `json:"workspaceId" validate:"required"`
	RoleName    WorkspaceRole `json:"roleName" validate:"required"`
}
