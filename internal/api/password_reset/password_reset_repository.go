package passwordReset

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
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	database "github.com/FACorreiaa/go-user-accounts/app/db"
	"github.com/FACorreiaa/go-user-accounts/internal/api/auth"
	"github.com/FACorreiaa/go-user-accounts/internal/types"
)

var _ ResetRepo = (*PostgresResetRepo)(nil)

type ResetRepo interface {
	// UpsertToken stores tok, replacing any previous token of the same user.
	UpsertToken(ctx context.Context, tok types.ResetToken) error
	// GetToken returns types.ErrNotFound for unknown digests.
	GetToken(ctx context.Context, tokenHash string) (*types.ResetToken, error)
	// ConsumeToken marks the token consumed and sets the user's password
	// in one transaction. It fails with ErrTokenInvalid, ErrTokenExpired or
	// ErrTokenUsed when the token is not live at now.
	ConsumeToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (*types.User, error)
}

type PostgresResetRepo struct {
	logger *slog.Logger
	pgpool database.Pool
}

func NewPostgresResetRepo(pgpool database.Pool, logger *slog.Logger) *PostgresResetRepo {
	return &PostgresResetRepo{
		logger: logger,
		pgpool: pgpool,
	}
}

func (r *PostgresResetRepo) UpsertToken(ctx context.Context, tok types.ResetToken) error {
	ctx, span := otel.Tracer("ResetRepo").Start(ctx, "UpsertToken")
	defer span.End()
	span.SetAttributes(semconv.DBSystemPostgreSQL, attribute.String("db.sql.table", "password_reset_tokens"))

	query := `
		INSERT INTO password_reset_tokens (user_id, token_hash, issued_at, expires_at, consumed_at)
		VALUES ($1, $2, $3, $4, NULL)
		ON CONFLICT (user_id) DO UPDATE
		SET token_hash = EXCLUDED.token_hash,
		    issued_at = EXCLUDED.issued_at,
		    expires_at = EXCLUDED.expires_at,
		    consumed_at = NULL`
	if _, err := r.pgpool.Exec(ctx, query, tok.UserID, tok.TokenHash, tok.IssuedAt, tok.ExpiresAt); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB upsert failed")
		return fmt.Errorf("error storing reset token: %w", err)
	}
	return nil
}

func (r *PostgresResetRepo) GetToken(ctx context.Context, tokenHash string) (*types.ResetToken, error) {
	ctx, span := otel.Tracer("ResetRepo").Start(ctx, "GetToken")
	defer span.End()
	span.SetAttributes(semconv.DBSystemPostgreSQL, attribute.String("db.sql.table", "password_reset_tokens"))

	tok, err := scanToken(r.pgpool.QueryRow(ctx, selectToken, tokenHash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("reset token: %w", types.ErrNotFound)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB query failed")
		return nil, fmt.Errorf("error fetching reset token: %w", err)
	}
	return tok, nil
}

const selectToken = `
	SELECT user_id, token_hash, issued_at, expires_at, consumed_at
	FROM password_reset_tokens
	WHERE token_hash = $1`

func scanToken(row pgx.Row) (*types.ResetToken, error) {
	var t types.ResetToken
	if err := row.Scan(&t.UserID, &t.TokenHash, &t.IssuedAt, &t.ExpiresAt, &t.ConsumedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *PostgresResetRepo) ConsumeToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (user *types.User, err error) {
	ctx, span := otel.Tracer("ResetRepo").Start(ctx, "ConsumeToken")
	defer span.End()
	span.SetAttributes(semconv.DBSystemPostgreSQL, attribute.String("db.sql.table", "password_reset_tokens"))

	tx, err := r.pgpool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error starting transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				r.logger.WarnContext(ctx, "Failed to roll back reset transaction", slog.Any("error", rbErr))
			}
		}
	}()

	// Only one concurrent caller can match consumed_at IS NULL.
	consume := `
		UPDATE password_reset_tokens
		SET consumed_at = $2
		WHERE token_hash = $1 AND consumed_at IS NULL AND expires_at > $2
		RETURNING user_id`
	var userID uuid.UUID
	if err = tx.QueryRow(ctx, consume, tokenHash, now).Scan(&userID); err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "DB update failed")
			return nil, fmt.Errorf("error consuming reset token: %w", err)
		}
		err = r.whyNotLive(ctx, tx, tokenHash, now)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	update := `
		UPDATE users
		SET password_hash = $1,
		    password_changed_at = $2,
		    is_enabled = (is_enabled OR password_hash = ''),
		    updated_at = $2
		WHERE id = $3
		RETURNING ` + auth.UserColumns
	user, err = auth.ScanUser(tx.QueryRow(ctx, update, passwordHash, now, userID))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB update failed")
		return nil, fmt.Errorf("error updating password: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit failed")
		return nil, fmt.Errorf("error committing password reset: %w", err)
	}
	span.SetStatus(codes.Ok, "Token consumed")
	return user, nil
}

// whyNotLive classifies a token the conditional update did not match.
func (r *PostgresResetRepo) whyNotLive(ctx context.Context, tx pgx.Tx, tokenHash string, now time.Time) error {
	tok, err := scanToken(tx.QueryRow(ctx, selectToken, tokenHash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.ErrTokenInvalid
		}
		return fmt.Errorf("error classifying reset token: %w", err)
	}
	if err = classify(tok, now); err != nil {
		return err
	}
	// Matched nothing but looks live: lost a race with another consumer.
	return types.ErrTokenUsed
}
