package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/FACorreiaa/go-user-accounts/internal/types"
)

// SignupRequest is the body of POST /users.
type SignupRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required"`
	Name     string `json:"name,omitempty" validate:"max=255"`
	Role     string `json:"role,omitempty" validate:"max=100"`
	UseCase  string `json:"useCase,omitempty" validate:"max=255"`
}

// LoginRequest is the body of POST /users/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse is the data of a successful login.
type LoginResponse struct {
	User        *types.User `json:"user"`
	AccessToken string      `json:"accessToken"`
	ExpiresAt   time.Time   `json:"expiresAt"`
}

// Session is a freshly issued credential for a user.
type Session struct {
	User        *types.User
	AccessToken string
	ExpiresAt   time.Time
}

// Claims are carried by the session token. The subject is the user id.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}
