package passwordReset

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/FACorreiaa/go-user-accounts/internal/types"
)

const tokenBytes = 32

// ResetPasswordRequest is the body of forgotPassword and resetPassword.
// forgotPassword reads Email; resetPassword reads Token and Password.
type ResetPasswordRequest struct {
	Email    string `json:"email,omitempty"`
	Password string `json:"password,omitempty"`
	Token    string `json:"token,omitempty"`
}

// newToken returns a random token for the user and its stored digest.
func newToken() (token, digest string, err error) {
	b := make([]byte, tokenBytes)
	if _, err = rand.Read(b); err != nil {
		return "", "", fmt.Errorf("error generating reset token: %w", err)
	}
	token = base64.RawURLEncoding.EncodeToString(b)
	return token, hashToken(token), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// wellFormed reports whether token could have been produced by newToken.
func wellFormed(token string) bool {
	if len(token) != base64.RawURLEncoding.EncodedLen(tokenBytes) {
		return false
	}
	b, err := base64.RawURLEncoding.DecodeString(token)
	return err == nil && len(b) == tokenBytes
}

// classify returns the reason a stored token cannot be used at now, or nil.
func classify(tok *types.ResetToken, now time.Time) error {
	switch {
	case tok.ConsumedAt != nil:
		return types.ErrTokenUsed
	case !now.Before(tok.ExpiresAt):
		return types.ErrTokenExpired
	default:
		return nil
	}
}
