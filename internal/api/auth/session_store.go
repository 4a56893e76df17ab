package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/FACorreiaa/go-user-accounts/config"
	"github.com/FACorreiaa/go-user-accounts/internal/api"
	"github.com/FACorreiaa/go-user-accounts/internal/types"
)

// UserFinder loads users by id.
type UserFinder interface {
	GetUserByID(ctx context.Context, userID uuid.UUID) (*types.User, error)
}

// SessionStore issues and resolves signed session tokens. It holds no
// mutable state and is safe for concurrent use.
type SessionStore struct {
	users    UserFinder
	key      []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

func NewSessionStore(users UserFinder, cfg config.JWTConfig) *SessionStore {
	key := make([]byte, len(cfg.SecretKey))
	copy(key, cfg.SecretKey)
	return &SessionStore{
		users:    users,
		key:      key,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		ttl:      cfg.AccessTokenTTL,
		now:      time.Now,
	}
}

// Issue mints a session token for user.
func (s *SessionStore) Issue(user *types.User) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := Claims{
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID.String(),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	if s.audience != "" {
		claims.Audience = jwt.ClaimStrings{s.audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("error signing session token: %w", err)
	}
	return signed, expiresAt, nil
}

// ResolveCurrentUser verifies credential and returns the user it belongs
// to. Every failure is types.ErrUnauthenticated.
func (s *SessionStore) ResolveCurrentUser(ctx context.Context, credential string) (*types.User, error) {
	if credential == "" {
		return nil, types.ErrUnauthenticated
	}

	claims := &Claims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	}
	_, err := jwt.ParseWithClaims(credential, claims, func(*jwt.Token) (any, error) {
		return s.key, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrUnauthenticated, err)
	}
	if !api.VerifyAudience(claims.Audience, s.audience) {
		return nil, fmt.Errorf("%w: audience mismatch", types.ErrUnauthenticated)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: bad subject", types.ErrUnauthenticated)
	}
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown user", types.ErrUnauthenticated)
		}
		return nil, fmt.Errorf("error loading session user: %w", err)
	}
	if !user.IsEnabled {
		return nil, fmt.Errorf("%w: user disabled", types.ErrUnauthenticated)
	}
	// iat has second precision.
	if user.PasswordChangedAt != nil && claims.IssuedAt.Time.Before(user.PasswordChangedAt.Truncate(time.Second)) {
		return nil, fmt.Errorf("%w: session predates password change", types.ErrUnauthenticated)
	}
	return user, nil
}
