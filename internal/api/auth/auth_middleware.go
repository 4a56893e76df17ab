package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/FACorreiaa/go-user-accounts/internal/api"
	"github.com/FACorreiaa/go-user-accounts/internal/types"
)

type contextKey string

const userKey contextKey = "user"

// SessionResolver turns a raw credential into a user.
type SessionResolver interface {
	ResolveCurrentUser(ctx context.Context, credential string) (*types.User, error)
}

// Authenticate resolves the session from the session cookie or a Bearer
// header and stores the user in the request context. Requests without a
// valid session get a 401 envelope.
func Authenticate(logger *slog.Logger, sessions SessionResolver, cookieName string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			l := logger.With(slog.String("middleware", "Authenticate"))

			user, err := sessions.ResolveCurrentUser(ctx, credentialFrom(r, cookieName))
			if err != nil {
				l.DebugContext(ctx, "Session rejected", slog.Any("error", err))
				api.HandleError(w, r, l, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(ctx, user)))
		})
	}
}

func credentialFrom(r *http.Request, cookieName string) string {
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	authHeader := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(authHeader, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// WithUser returns a context carrying the authenticated user.
func WithUser(ctx context.Context, user *types.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext returns the user stored by Authenticate.
func UserFromContext(ctx context.Context) (*types.User, bool) {
	user, ok := ctx.Value(userKey).(*types.User)
	return user, ok && user != nil
}
