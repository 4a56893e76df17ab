package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/bcrypt"

	"github.com/FACorreiaa/go-user-accounts/app/observability/metrics"
	"github.com/FACorreiaa/go-user-accounts/internal/api"
	"github.com/FACorreiaa/go-user-accounts/internal/types"
)

var _ AuthService = (*AuthServiceImpl)(nil)

type AuthService interface {
	Signup(ctx context.Context, req SignupRequest) (*Session, error)
	SignupSuperUser(ctx context.Context, req SignupRequest) (*Session, error)
	Login(ctx context.Context, email, password string) (*Session, error)
}

// SessionIssuer mints session tokens.
type SessionIssuer interface {
	Issue(user *types.User) (string, time.Time, error)
}

type AuthServiceImpl struct {
	logger    *slog.Logger
	repo      AuthRepo
	sessions  SessionIssuer
	sanitizer *bluemonday.Policy
}

func NewAuthService(repo AuthRepo, sessions SessionIssuer, logger *slog.Logger) *AuthServiceImpl {
	return &AuthServiceImpl{
		logger:    logger,
		repo:      repo,
		sessions:  sessions,
		sanitizer: bluemonday.StrictPolicy(),
	}
}

// dummyHash keeps the login path for unknown emails as slow as for known ones.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("timing-equalizer"), bcrypt.DefaultCost)

// Signup creates a user, or claims an invited one, and opens a session.
func (s *AuthServiceImpl) Signup(ctx context.Context, req SignupRequest) (*Session, error) {
	ctx, span := otel.Tracer("AuthService").Start(ctx, "Signup")
	defer span.End()
	return s.signup(ctx, span, "Signup", req, s.repo.CreateUser)
}

// SignupSuperUser creates the first user of a fresh instance as its
// administrator and opens a session. types.ErrForbidden once any user exists.
func (s *AuthServiceImpl) SignupSuperUser(ctx context.Context, req SignupRequest) (*Session, error) {
	ctx, span := otel.Tracer("AuthService").Start(ctx, "SignupSuperUser")
	defer span.End()
	return s.signup(ctx, span, "SignupSuperUser", req, s.repo.CreateSuperUser)
}

func (s *AuthServiceImpl) signup(ctx context.Context, span trace.Span, method string, req SignupRequest,
	create func(context.Context, *types.User) (*types.User, error)) (*Session, error) {
	l := s.logger.With(slog.String("method", method))

	req.Email = NormalizeEmail(req.Email)
	req.Name = strings.TrimSpace(s.sanitizer.Sanitize(req.Name))
	if err := api.ValidateStruct(req); err != nil {
		metrics.Get().SignupsTotal.Add(ctx, 1, metrics.Outcome("invalid"))
		return nil, err
	}
	hash, err := HashPassword(req.Password)
	if err != nil {
		metrics.Get().SignupsTotal.Add(ctx, 1, metrics.Outcome("invalid"))
		return nil, err
	}

	user, err := create(ctx, &types.User{
		Email:        req.Email,
		Name:         req.Name,
		Role:         req.Role,
		UseCase:      req.UseCase,
		PasswordHash: hash,
	})
	if err != nil {
		var outcome string
		switch {
		case errors.Is(err, types.ErrConflict):
			outcome = "conflict"
		case errors.Is(err, types.ErrForbidden):
			outcome = "forbidden"
		default:
			outcome = "error"
			l.ErrorContext(ctx, "Failed to create user", slog.Any("error", err))
			span.RecordError(err)
		}
		span.SetStatus(codes.Error, outcome)
		metrics.Get().SignupsTotal.Add(ctx, 1, metrics.Outcome(outcome))
		return nil, fmt.Errorf("error signing up: %w", err)
	}
	span.SetAttributes(attribute.String("user.id", user.ID.String()))

	session, err := s.open(user)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "session issue failed")
		return nil, err
	}
	metrics.Get().SignupsTotal.Add(ctx, 1, metrics.Outcome("success"))
	l.InfoContext(ctx, "User signed up", slog.String("userID", user.ID.String()))
	span.SetStatus(codes.Ok, "User signed up")
	return session, nil
}

// Login checks credentials. Unknown emails, invited users without a
// password, disabled users and wrong passwords are all
// types.ErrInvalidCredentials.
func (s *AuthServiceImpl) Login(ctx context.Context, email, password string) (*Session, error) {
	ctx, span := otel.Tracer("AuthService").Start(ctx, "Login")
	defer span.End()
	l := s.logger.With(slog.String("method", "Login"))

	user, err := s.repo.GetUserByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if !errors.Is(err, types.ErrNotFound) {
			l.ErrorContext(ctx, "Failed to look up user", slog.Any("error", err))
			span.RecordError(err)
			span.SetStatus(codes.Error, "lookup failed")
			metrics.Get().LoginsTotal.Add(ctx, 1, metrics.Outcome("error"))
			return nil, fmt.Errorf("error logging in: %w", err)
		}
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		metrics.Get().LoginsTotal.Add(ctx, 1, metrics.Outcome("rejected"))
		return nil, types.ErrInvalidCredentials
	}
	if !CheckPassword(user.PasswordHash, password) || !user.IsEnabled {
		metrics.Get().LoginsTotal.Add(ctx, 1, metrics.Outcome("rejected"))
		return nil, types.ErrInvalidCredentials
	}

	session, err := s.open(user)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "session issue failed")
		return nil, err
	}
	metrics.Get().LoginsTotal.Add(ctx, 1, metrics.Outcome("success"))
	span.SetStatus(codes.Ok, "Logged in")
	return session, nil
}

func (s *AuthServiceImpl) open(user *types.User) (*Session, error) {
	token, expiresAt, err := s.sessions.Issue(user)
	if err != nil {
		return nil, fmt.Errorf("error issuing session: %w", err)
	}
	return &Session{User: user, AccessToken: token, ExpiresAt: expiresAt}, nil
}
