package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	database "github.com/FACorreiaa/go-user-accounts/app/db"
	"github.com/FACorreiaa/go-user-accounts/internal/types"
)

var _ AuthRepo = (*PostgresAuthRepo)(nil)

// AuthRepo persists user identities.
type AuthRepo interface {
	// CreateUser inserts a user, or claims an invited user (empty password
	// hash) with the same email. types.ErrConflict if the email already
	// belongs to an account with a password.
	CreateUser(ctx context.Context, user *types.User) (*types.User, error)
	// CreateSuperUser inserts the first user of the instance and records it
	// as an instance administrator. types.ErrForbidden once any user exists.
	CreateSuperUser(ctx context.Context, user *types.User) (*types.User, error)
	// GetUserByEmail expects a normalized email. types.ErrNotFound if absent.
	GetUserByEmail(ctx context.Context, email string) (*types.User, error)
	GetUserByID(ctx context.Context, userID uuid.UUID) (*types.User, error)
}

// UserColumns is the column list ScanUser expects.
const UserColumns = `id, email, name, role, use_case, password_hash, is_enabled, password_changed_at, created_at, updated_at`

// ScanUser scans a row selected with UserColumns.
func ScanUser(row pgx.Row) (*types.User, error) {
	var u types.User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.UseCase, &u.PasswordHash,
		&u.IsEnabled, &u.PasswordChangedAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

type PostgresAuthRepo struct {
	logger *slog.Logger
	pgpool database.Pool
}

func NewPostgresAuthRepo(pgpool database.Pool, logger *slog.Logger) *PostgresAuthRepo {
	return &PostgresAuthRepo{
		logger: logger,
		pgpool: pgpool,
	}
}

func (r *PostgresAuthRepo) CreateUser(ctx context.Context, user *types.User) (*types.User, error) {
	ctx, span := otel.Tracer("AuthRepo").Start(ctx, "CreateUser")
	defer span.End()
	span.SetAttributes(semconv.DBSystemPostgreSQL, attribute.String("db.sql.table", "users"))

	query := `
		INSERT INTO users (email, name, role, use_case, password_hash, is_enabled)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		ON CONFLICT (email) DO UPDATE
		SET name = EXCLUDED.name,
		    role = EXCLUDED.role,
		    use_case = EXCLUDED.use_case,
		    password_hash = EXCLUDED.password_hash,
		    is_enabled = TRUE,
		    updated_at = NOW()
		WHERE users.password_hash = ''
		RETURNING ` + UserColumns

	created, err := ScanUser(r.pgpool.QueryRow(ctx, query, user.Email, user.Name, user.Role, user.UseCase, user.PasswordHash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || database.IsUniqueViolation(err) {
			span.SetStatus(codes.Error, "email taken")
			return nil, fmt.Errorf("error creating user: %w", types.ErrConflict)
		}
		r.logger.ErrorContext(ctx, "Failed to insert user", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB insert failed")
		return nil, fmt.Errorf("error creating user: %w", err)
	}
	span.SetStatus(codes.Ok, "User created")
	return created, nil
}

func (r *PostgresAuthRepo) CreateSuperUser(ctx context.Context, user *types.User) (created *types.User, err error) {
	ctx, span := otel.Tracer("AuthRepo").Start(ctx, "CreateSuperUser")
	defer span.End()
	span.SetAttributes(semconv.DBSystemPostgreSQL, attribute.String("db.sql.table", "instance_admins"))

	tx, err := r.pgpool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error starting transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				r.logger.WarnContext(ctx, "Failed to roll back super user transaction", slog.Any("error", rbErr))
			}
		}
	}()

	// Two bootstrap requests must not both see an empty instance.
	if _, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('instance_admins'))`); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error locking instance setup: %w", err)
	}

	var initialized bool
	if err = tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users)`).Scan(&initialized); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error checking for users: %w", err)
	}
	if initialized {
		err = fmt.Errorf("instance already has users: %w", types.ErrForbidden)
		span.SetStatus(codes.Error, "instance initialized")
		return nil, err
	}

	query := `
		INSERT INTO users (email, name, role, use_case, password_hash, is_enabled)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		RETURNING ` + UserColumns
	created, err = ScanUser(tx.QueryRow(ctx, query, user.Email, user.Name, user.Role, user.UseCase, user.PasswordHash))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB insert failed")
		return nil, fmt.Errorf("error creating super user: %w", err)
	}

	if _, err = tx.Exec(ctx, `INSERT INTO instance_admins (user_id) VALUES ($1)`, created.ID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB insert failed")
		return nil, fmt.Errorf("error recording instance administrator: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error committing super user: %w", err)
	}
	span.SetStatus(codes.Ok, "Super user created")
	return created, nil
}

func (r *PostgresAuthRepo) GetUserByEmail(ctx context.Context, email string) (*types.User, error) {
	ctx, span := otel.Tracer("AuthRepo").Start(ctx, "GetUserByEmail")
	defer span.End()
	span.SetAttributes(semconv.DBSystemPostgreSQL, attribute.String("db.sql.table", "users"))

	query := `SELECT ` + UserColumns + ` FROM users WHERE email = $1`
	user, err := ScanUser(r.pgpool.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user with email: %w", types.ErrNotFound)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB query failed")
		return nil, fmt.Errorf("error fetching user by email: %w", err)
	}
	return user, nil
}

func (r *PostgresAuthRepo) GetUserByID(ctx context.Context, userID uuid.UUID) (*types.User, error) {
	ctx, span := otel.Tracer("AuthRepo").Start(ctx, "GetUserByID")
	defer span.End()
	span.SetAttributes(semconv.DBSystemPostgreSQL, attribute.String("user.id", userID.String()))

	query := `SELECT ` + UserColumns + ` FROM users WHERE id = $1`
	user, err := ScanUser(r.pgpool.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user: %w", types.ErrNotFound)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB query failed")
		return nil, fmt.Errorf("error fetching user by id: %w", err)
	}
	return user, nil
}
