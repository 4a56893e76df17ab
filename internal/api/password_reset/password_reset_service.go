package passwordReset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/FACorreiaa/go-user-accounts/app/observability/metrics"
	"github.com/FACorreiaa/go-user-accounts/config"
	"github.com/FACorreiaa/go-user-accounts/internal/api/auth"
	"github.com/FACorreiaa/go-user-accounts/internal/notify"
	"github.com/FACorreiaa/go-user-accounts/internal/types"
)

var _ ResetService = (*ResetServiceImpl)(nil)

type ResetService interface {
	// RequestReset never reports failure; see ResetServiceImpl.RequestReset.
	RequestReset(ctx context.Context, email, origin string)
	VerifyToken(ctx context.Context, token string) (bool, error)
	ConsumeReset(ctx context.Context, token, newPassword string) (*types.User, error)
}

// UserFinder looks users up by normalized email.
type UserFinder interface {
	GetUserByEmail(ctx context.Context, email string) (*types.User, error)
}

type ResetServiceImpl struct {
	logger  *slog.Logger
	repo    ResetRepo
	users   UserFinder
	mailer  notify.Mailer
	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time

	wg sync.WaitGroup
}

func NewResetService(repo ResetRepo, users UserFinder, mailer notify.Mailer, cfg config.PasswordResetConfig, logger *slog.Logger) *ResetServiceImpl {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ResetServiceImpl{
		logger:  logger,
		repo:    repo,
		users:   users,
		mailer:  mailer,
		ttl:     ttl,
		timeout: timeout,
		now:     time.Now,
	}
}

// RequestReset starts a reset for email and returns immediately. Callers
// get the same outcome whether or not the email is registered: lookup,
// storage and mail errors are logged and dropped.
func (s *ResetServiceImpl) RequestReset(ctx context.Context, email, origin string) {
	metrics.Get().PasswordResetRequestsTotal.Add(ctx, 1)

	// Detached from the request so the response does not wait on it.
	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		if err := s.requestReset(bg, auth.NormalizeEmail(email), origin); err != nil {
			s.logger.ErrorContext(bg, "Password reset request failed", slog.Any("error", err))
		}
	}()
}

// Wait blocks until every background reset request has finished.
func (s *ResetServiceImpl) Wait() {
	s.wg.Wait()
}

func (s *ResetServiceImpl) requestReset(ctx context.Context, email, origin string) error {
	ctx, span := otel.Tracer("ResetService").Start(ctx, "RequestReset")
	defer span.End()
	l := s.logger.With(slog.String("method", "RequestReset"))

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			l.DebugContext(ctx, "Reset requested for unknown email")
			return nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "lookup failed")
		return fmt.Errorf("error looking up user: %w", err)
	}

	token, digest, err := newToken()
	if err != nil {
		span.RecordError(err)
		return err
	}
	now := s.now()
	err = s.repo.UpsertToken(ctx, types.ResetToken{
		UserID:    user.ID,
		TokenHash: digest,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store failed")
		return err
	}

	link := origin + "/user/resetPassword?token=" + url.QueryEscape(token)
	err = s.mailer.Send(ctx, notify.Email{
		To:       user.Email,
		Subject:  "Reset your password",
		Template: notify.TemplatePasswordReset,
		Data: map[string]string{
			"link":      link,
			"name":      user.Name,
			"expiresIn": s.ttl.String(),
		},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "mail failed")
		return fmt.Errorf("error sending reset email: %w", err)
	}
	l.InfoContext(ctx, "Password reset email sent", slog.String("userID", user.ID.String()))
	span.SetStatus(codes.Ok, "Reset requested")
	return nil
}

// VerifyToken reports whether token exists, is unconsumed and unexpired.
// It does not consume the token.
func (s *ResetServiceImpl) VerifyToken(ctx context.Context, token string) (bool, error) {
	ctx, span := otel.Tracer("ResetService").Start(ctx, "VerifyToken")
	defer span.End()

	if !wellFormed(token) {
		return false, nil
	}
	tok, err := s.repo.GetToken(ctx, hashToken(token))
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return false, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "lookup failed")
		return false, fmt.Errorf("error verifying reset token: %w", err)
	}
	return classify(tok, s.now()) == nil, nil
}

// ConsumeReset sets newPassword for the owner of token and invalidates
// the token. The token is checked before the password policy.
func (s *ResetServiceImpl) ConsumeReset(ctx context.Context, token, newPassword string) (*types.User, error) {
	ctx, span := otel.Tracer("ResetService").Start(ctx, "ConsumeReset")
	defer span.End()
	l := s.logger.With(slog.String("method", "ConsumeReset"))

	user, err := s.consumeReset(ctx, token, newPassword)
	outcome := "success"
	switch {
	case err == nil:
		l.InfoContext(ctx, "Password reset", slog.String("userID", user.ID.String()))
		span.SetStatus(codes.Ok, "Password reset")
	case errors.Is(err, types.ErrTokenInvalid):
		outcome = "invalid"
	case errors.Is(err, types.ErrTokenExpired):
		outcome = "expired"
	case errors.Is(err, types.ErrTokenUsed):
		outcome = "used"
	case errors.Is(err, types.ErrValidation):
		outcome = "rejected"
	default:
		outcome = "error"
		span.RecordError(err)
		l.ErrorContext(ctx, "Password reset failed", slog.Any("error", err))
	}
	if err != nil {
		span.SetStatus(codes.Error, outcome)
	}
	metrics.Get().PasswordResetsTotal.Add(ctx, 1, metrics.Outcome(outcome))
	return user, err
}

func (s *ResetServiceImpl) consumeReset(ctx context.Context, token, newPassword string) (*types.User, error) {
	if !wellFormed(token) {
		return nil, types.ErrTokenInvalid
	}
	digest := hashToken(token)

	tok, err := s.repo.GetToken(ctx, digest)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, types.ErrTokenInvalid
		}
		return nil, err
	}
	if err = classify(tok, s.now()); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return nil, err
	}
	return s.repo.ConsumeToken(ctx, digest, hash, s.now())
}
