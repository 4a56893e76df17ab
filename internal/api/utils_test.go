package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/go-user-accounts/internal/types"
)

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) types.ResponseDTO {
	t.Helper()
	var env types.ResponseDTO
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	return env
}

func TestRespond(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	Respond(rr, req, http.StatusOK, true)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"statusCode":200,"data":true}`, rr.Body.String())
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"unauthenticated", fmt.Errorf("resolve: %w", types.ErrUnauthenticated), http.StatusUnauthorized},
		{"validation", &types.ValidationError{Fields: map[string]string{"email": "is required"}}, http.StatusBadRequest},
		{"token invalid", types.ErrTokenInvalid, http.StatusBadRequest},
		{"token expired", types.ErrTokenExpired, http.StatusBadRequest},
		{"token used", fmt.Errorf("consume: %w", types.ErrTokenUsed), http.StatusBadRequest},
		{"not found", types.ErrNotFound, http.StatusNotFound},
		{"conflict", types.ErrConflict, http.StatusConflict},
		{"forbidden", types.ErrForbidden, http.StatusForbidden},
		{"bad credentials", types.ErrInvalidCredentials, http.StatusUnauthorized},
		{"unknown", errors.New("connection refused"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := StatusFor(tt.err)
			assert.Equal(t, tt.status, status)
		})
	}
}

func TestStatusFor_TokenErrorsShareMessage(t *testing.T) {
	_, invalid := StatusFor(types.ErrTokenInvalid)
	_, expired := StatusFor(types.ErrTokenExpired)
	_, used := StatusFor(types.ErrTokenUsed)
	assert.Equal(t, invalid, expired)
	assert.Equal(t, invalid, used)
}

func TestStatusFor_NotFoundHidesWrapChain(t *testing.T) {
	err := fmt.Errorf("error loading profile: %w", fmt.Errorf("user: %w", types.ErrNotFound))
	status, message := StatusFor(err)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Resource not found", message)
	assert.NotContains(t, message, "profile")
}

func TestHandleError_HidesInternalDetail(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	HandleError(rr, req, logger, errors.New("pq: password authentication failed for user postgres"))

	env := decodeEnvelope(t, rr)
	assert.Equal(t, http.StatusInternalServerError, env.StatusCode)
	assert.Equal(t, msgInternal, env.Error)
	assert.Nil(t, env.Data)
}

func TestDecodeJSONBody(t *testing.T) {
	type payload struct {
		Email string `json:"email"`
	}

	t.Run("valid", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@x.com"}`))
		var p payload
		require.NoError(t, DecodeJSONBody(httptest.NewRecorder(), req, &p))
		assert.Equal(t, "a@x.com", p.Email)
	})

	for name, body := range map[string]string{
		"empty":       "",
		"malformed":   `{"email":`,
		"unknown key": `{"mail":"a@x.com"}`,
		"two values":  `{"email":"a"}{"email":"b"}`,
		"wrong type":  `{"email":12}`,
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
			var p payload
			err := DecodeJSONBody(httptest.NewRecorder(), req, &p)
			assert.ErrorIs(t, err, types.ErrValidation)
		})
	}
}

func TestValidateStruct(t *testing.T) {
	type invite struct {
		Usernames []string `json:"usernames" validate:"required,min=1,dive,required,email"`
		Name      string   `json:"name" validate:"required"`
	}

	err := ValidateStruct(invite{Usernames: []string{"not-an-email"}})
	var ve *types.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "must be a valid email", ve.Fields["usernames[0]"])
	assert.Equal(t, "is required", ve.Fields["name"])

	assert.NoError(t, ValidateStruct(invite{Usernames: []string{"a@x.com"}, Name: "A"}))
}

func TestRequestOrigin(t *testing.T) {
	tests := []struct {
		origin string
		want   string
		ok     bool
	}{
		{"https://app.example.com", "https://app.example.com", true},
		{"http://localhost:3000/some/path", "http://localhost:3000", true},
		{"", "", false},
		{"app.example.com", "", false},
		{"javascript:alert(1)", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			got, err := RequestOrigin(req)
			if !tt.ok {
				assert.ErrorIs(t, err, types.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVerifyAudience(t *testing.T) {
	assert.True(t, VerifyAudience(jwt.ClaimStrings{"web", "cli"}, "cli"))
	assert.False(t, VerifyAudience(jwt.ClaimStrings{"web"}, "cli"))
	assert.False(t, VerifyAudience(nil, "cli"))
	assert.True(t, VerifyAudience(nil, ""))
}
