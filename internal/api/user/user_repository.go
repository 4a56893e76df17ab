package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	database "github.com/FACorreiaa/go-user-accounts/app/db"
	"github.com/FACorreiaa/go-user-accounts/app/observability/metrics"
	"github.com/FACorreiaa/go-user-accounts/internal/api/auth"
	"github.com/FACorreiaa/go-user-accounts/internal/types"
)

var _ UserRepo = (*PostgresUserRepo)(nil)

// UserRepo defines the contract for user and user data persistence.
type UserRepo interface {
	GetUserByID(ctx context.Context, userID uuid.UUID) (*types.User, error)
	// GetUserData returns an empty record for users that have none yet.
	GetUserData(ctx context.Context, userID uuid.UUID) (*types.UserData, error)
	// UpdateProfile applies the non-nil fields of params in one statement.
	// Returns types.ErrConflict if the new email is taken.
	UpdateProfile(ctx context.Context, userID uuid.UUID, params types.UpdateProfileParams) (*types.User, error)
	SetReleaseNotesViewed(ctx context.Context, userID uuid.UUID, version string) error
	SetCommentState(ctx context.Context, userID uuid.UUID, state types.CommentOnboardingState) error
	// SetProfilePhotoKey stores key and returns the key it replaced.
	SetProfilePhotoKey(ctx context.Context, userID uuid.UUID, key string) (string, error)
}

type PostgresUserRepo struct {
	logger *slog.Logger
	pgpool database.Pool
}

func NewPostgresUserRepo(pgpool database.Pool, logger *slog.Logger) *PostgresUserRepo {
	return &PostgresUserRepo{
		logger: logger,
		pgpool: pgpool,
	}
}

// observe records query duration and failures.
func observe(ctx context.Context, op string, start time.Time, err error) {
	m := metrics.Get()
	m.DbQueryDurationSeconds.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attribute.String("db.operation", op)))
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		m.DbQueryErrorsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("db.operation", op)))
	}
}

func (r *PostgresUserRepo) GetUserByID(ctx context.Context, userID uuid.UUID) (user *types.User, err error) {
	ctx, span := otel.Tracer("UserRepo").Start(ctx, "GetUserByID")
	defer span.End()
	span.SetAttributes(semconv.DBSystemPostgreSQL, attribute.String("user.id", userID.String()))
	defer func(start time.Time) { observe(ctx, "GetUserByID", start, err) }(time.Now())

	user, err = auth.ScanUser(r.pgpool.QueryRow(ctx, `SELECT `+auth.UserColumns+` FROM users WHERE id = $1`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user: %w", types.ErrNotFound)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB query failed")
		return nil, fmt.Errorf("error fetching user: %w", err)
	}
	return user, nil
}

func (r *PostgresUserRepo) GetUserData(ctx context.Context, userID uuid.UUID) (data *types.UserData, err error) {
	ctx, span := otel.Tracer("UserRepo").Start(ctx, "GetUserData")
	defer span.End()
	span.SetAttributes(semconv.DBSystemPostgreSQL, attribute.String("user.id", userID.String()))
	defer func(start time.Time) { observe(ctx, "GetUserData", start, err) }(time.Now())

	query := `
		SELECT user_id, release_notes_viewed_version, comment_onboarding_state, profile_photo_key, updated_at
		FROM user_data
		WHERE user_id = $1`
	var d types.UserData
	var state string
	err = r.pgpool.QueryRow(ctx, query, userID).Scan(&d.UserID, &d.ReleaseNotesViewedVersion, &state, &d.ProfilePhotoKey, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &types.UserData{UserID: userID}, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB query failed")
		return nil, fmt.Errorf("error fetching user data: %w", err)
	}
	d.CommentOnboardingState = types.CommentOnboardingState(state)
	d.HasProfilePhoto = d.ProfilePhotoKey != ""
	return &d, nil
}

func (r *PostgresUserRepo) UpdateProfile(ctx context.Context, userID uuid.UUID, params types.UpdateProfileParams) (user *types.User, err error) {
	ctx, span := otel.Tracer("UserRepo").Start(ctx, "UpdateProfile")
	defer span.End()
	span.SetAttributes(semconv.DBSystemPostgreSQL, attribute.String("user.id", userID.String()))
	defer func(start time.Time) { observe(ctx, "UpdateProfile", start, err) }(time.Now())

	query := `
		UPDATE users
		SET name = COALESCE($2, name),
		    email = COALESCE($3, email),
		    role = COALESCE($4, role),
		    use_case = COALESCE($5, use_case),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING ` + auth.UserColumns

	user, err = auth.ScanUser(r.pgpool.QueryRow(ctx, query, userID, params.Name, params.Email, params.Role, params.UseCase))
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return nil, fmt.Errorf("user: %w", types.ErrNotFound)
		case database.IsUniqueViolation(err):
			span.SetStatus(codes.Error, "email taken")
			return nil, fmt.Errorf("error updating profile: %w", types.ErrConflict)
		}
		r.logger.ErrorContext(ctx, "Failed to update profile", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB update failed")
		return nil, fmt.Errorf("error updating profile: %w", err)
	}
	span.SetStatus(codes.Ok, "Profile updated")
	return user, nil
}

func (r *PostgresUserRepo) SetReleaseNotesViewed(ctx context.Context, userID uuid.UUID, version string) (err error) {
	ctx, span := otel.Tracer("UserRepo").Start(ctx, "SetReleaseNotesViewed")
	defer span.End()
	defer func(start time.Time) { observe(ctx, "SetReleaseNotesViewed", start, err) }(time.Now())

	query := `
		INSERT INTO user_data (user_id, release_notes_viewed_version, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET release_notes_viewed_version = EXCLUDED.release_notes_viewed_version,
		    updated_at = NOW()`
	if _, err = r.pgpool.Exec(ctx, query, userID, version); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB upsert failed")
		return fmt.Errorf("error saving release notes version: %w", err)
	}
	return nil
}

func (r *PostgresUserRepo) SetCommentState(ctx context.Context, userID uuid.UUID, state types.CommentOnboardingState) (err error) {
	ctx, span := otel.Tracer("UserRepo").Start(ctx, "SetCommentState")
	defer span.End()
	defer func(start time.Time) { observe(ctx, "SetCommentState", start, err) }(time.Now())

	query := `
		INSERT INTO user_data (user_id, comment_onboarding_state, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET comment_onboarding_state = EXCLUDED.comment_onboarding_state,
		    updated_at = NOW()`
	if _, err = r.pgpool.Exec(ctx, query, userID, string(state)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB upsert failed")
		return fmt.Errorf("error saving comment state: %w", err)
	}
	return nil
}

func (r *PostgresUserRepo) SetProfilePhotoKey(ctx context.Context, userID uuid.UUID, key string) (previous string, err error) {
	ctx, span := otel.Tracer("UserRepo").Start(ctx, "SetProfilePhotoKey")
	defer span.End()
	defer func(start time.Time) { observe(ctx, "SetProfilePhotoKey", start, err) }(time.Now())

	tx, err := r.pgpool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("error starting transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				r.logger.WarnContext(ctx, "Failed to roll back photo key transaction", slog.Any("error", rbErr))
			}
		}
	}()

	// The row must exist before it can be locked.
	if _, err = tx.Exec(ctx, `
		INSERT INTO user_data (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING`, userID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB insert failed")
		return "", fmt.Errorf("error creating user data: %w", err)
	}

	// Concurrent uploads queue here, so each one sees the key it replaces.
	if err = tx.QueryRow(ctx, `
		SELECT profile_photo_key FROM user_data
		WHERE user_id = $1
		FOR UPDATE`, userID).Scan(&previous); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB lock failed")
		return "", fmt.Errorf("error locking user data: %w", err)
	}

	if _, err = tx.Exec(ctx, `
		UPDATE user_data
		SET profile_photo_key = $2,
		    updated_at = NOW()
		WHERE user_id = $1`, userID, key); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB update failed")
		return "", fmt.Errorf("error saving profile photo key: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("error committing profile photo key: %w", err)
	}
	return previous, nil
}
