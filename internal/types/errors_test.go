package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationError(t *testing.T) {
	err := &ValidationError{Fields: map[string]string{"name": "is required", "email": "must be a valid email"}}
	wrapped := fmt.Errorf("update profile: %w", err)

	assert.True(t, errors.Is(wrapped, ErrValidation))
	assert.Equal(t, "invalid request: email: must be a valid email; name: is required", err.Error())

	var ve *ValidationError
	assert.True(t, errors.As(wrapped, &ve))
	assert.Len(t, ve.Fields, 2)

	assert.Equal(t, "password too short", NewValidationError("password too short").Error())
}

func TestIsTokenError(t *testing.T) {
	assert.True(t, IsTokenError(fmt.Errorf("consume: %w", ErrTokenUsed)))
	assert.True(t, IsTokenError(ErrTokenExpired))
	assert.True(t, IsTokenError(ErrTokenInvalid))
	assert.False(t, IsTokenError(ErrNotFound))
}

func TestEnumValidity(t *testing.T) {
	assert.True(t, CommentResolved.Valid())
	assert.False(t, CommentOnboardingState("DONE").Valid())
	assert.True(t, RoleAppViewer.Valid())
	assert.False(t, WorkspaceRole("Owner").Valid())
}
