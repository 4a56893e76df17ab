package workspace

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
	"github.com/FACorreiaa/go-user-accounts/internal/api/auth"
	"github.com/FACorreiaa/go-user-accounts/internal/types"
)

// ErrLastAdministrator is returned when a leave or a role change would
// leave the workspace without an Administrator.
var ErrLastAdministrator = errors.New("last administrator")

var _ WorkspaceRepo = (*PostgresWorkspaceRepo)(nil)

type WorkspaceRepo interface {
	// GetRole returns types.ErrNotFound if userID is not a member.
	GetRole(ctx context.Context, workspaceID string, userID uuid.UUID) (types.WorkspaceRole, error)
	// Claim makes userID the Administrator of a workspace with no members.
	// It reports false when the workspace already has members.
	Claim(ctx context.Context, workspaceID string, userID uuid.UUID) (bool, error)
	// AddMembers creates users for unknown emails and gives every user a
	// membership with role, all in one transaction. Returns
	// ErrLastAdministrator if the change would demote every Administrator.
	AddMembers(ctx context.Context, workspaceID string, emails []string, role types.WorkspaceRole) ([]types.User, error)
	Leave(ctx context.Context, workspaceID string, userID uuid.UUID) error
}

type PostgresWorkspaceRepo struct {
	logger *slog.Logger
	pgpool database.Pool
}

func NewPostgresWorkspaceRepo(pgpool database.Pool, logger *slog.Logger) *PostgresWorkspaceRepo {
	return &PostgresWorkspaceRepo{
		logger: logger,
		pgpool: pgpool,
	}
}

func (r *PostgresWorkspaceRepo) rollback(ctx context.Context, tx pgx.Tx) {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		r.logger.WarnContext(ctx, "Failed to roll back workspace transaction", slog.Any("error", err))
	}
}

// lockAdministrators returns the Administrators of workspaceID with their
// rows locked until tx ends.
func lockAdministrators(ctx context.Context, tx pgx.Tx, workspaceID string) ([]uuid.UUID, error) {
	rows, err := tx.Query(ctx, `
		SELECT user_id FROM workspace_members
		WHERE workspace_id = $1 AND role = $2
		FOR UPDATE`, workspaceID, string(types.RoleAdministrator))
	if err != nil {
		return nil, fmt.Errorf("error locking administrators: %w", err)
	}
	admins, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("error reading administrators: %w", err)
	}
	return admins, nil
}

func (r *PostgresWorkspaceRepo) GetRole(ctx context.Context, workspaceID string, userID uuid.UUID) (types.WorkspaceRole, error) {
	ctx, span := otel.Tracer("WorkspaceRepo").Start(ctx, "GetRole")
	defer span.End()
	span.SetAttributes(semconv.DBSystemPostgreSQL, attribute.String("workspace.id", workspaceID))

	var role string
	err := r.pgpool.QueryRow(ctx,
		`SELECT role FROM workspace_members WHERE workspace_id = $1 AND user_id = $2`,
		workspaceID, userID).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("workspace membership: %w", types.ErrNotFound)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB query failed")
		return "", fmt.Errorf("error fetching workspace role: %w", err)
	}
	return types.WorkspaceRole(role), nil
}

func (r *PostgresWorkspaceRepo) Claim(ctx context.Context, workspaceID string, userID uuid.UUID) (claimed bool, err error) {
	ctx, span := otel.Tracer("WorkspaceRepo").Start(ctx, "Claim")
	defer span.End()
	span.SetAttributes(semconv.DBSystemPostgreSQL, attribute.String("workspace.id", workspaceID))

	tx, err := r.pgpool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("error starting transaction: %w", err)
	}
	defer func() {
		if err != nil {
			r.rollback(ctx, tx)
		}
	}()

	// Serializes concurrent claims of the same workspace.
	if _, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, workspaceID); err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("error locking workspace: %w", err)
	}
	tag, err := tx.Exec(ctx, `
		INSERT INTO workspace_members (workspace_id, user_id, role)
		SELECT $1, $2, $3
		WHERE NOT EXISTS (SELECT 1 FROM workspace_members WHERE workspace_id = $1)`,
		workspaceID, userID, string(types.RoleAdministrator))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB insert failed")
		return false, fmt.Errorf("error claiming workspace: %w", err)
	}
	if err = tx.Commit(ctx); err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("error committing workspace claim: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresWorkspaceRepo) AddMembers(ctx context.Context, workspaceID string, emails []string, role types.WorkspaceRole) (users []types.User, err error) {
	ctx, span := otel.Tracer("WorkspaceRepo").Start(ctx, "AddMembers")
	defer span.End()
	span.SetAttributes(semconv.DBSystemPostgreSQL,
		attribute.String("workspace.id", workspaceID),
		attribute.Int("invitees", len(emails)))

	tx, err := r.pgpool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error starting transaction: %w", err)
	}
	defer func() {
		if err != nil {
			r.rollback(ctx, tx)
		}
	}()

	// Administrators that keep their role after this invite.
	remaining := map[uuid.UUID]struct{}{}
	if role != types.RoleAdministrator {
		admins, lockErr := lockAdministrators(ctx, tx, workspaceID)
		if lockErr != nil {
			err = lockErr
			span.RecordError(err)
			return nil, err
		}
		for _, id := range admins {
			remaining[id] = struct{}{}
		}
	}
	hadAdmins := len(remaining) > 0

	// The no-op update makes RETURNING yield existing rows too.
	upsertUser := `
		INSERT INTO users (email)
		VALUES ($1)
		ON CONFLICT (email) DO UPDATE SET email = users.email
		RETURNING ` + auth.UserColumns
	upsertMember := `
		INSERT INTO workspace_members (workspace_id, user_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (workspace_id, user_id) DO UPDATE SET role = EXCLUDED.role`

	users = make([]types.User, 0, len(emails))
	for _, email := range emails {
		u, scanErr := auth.ScanUser(tx.QueryRow(ctx, upsertUser, email))
		if scanErr != nil {
			err = scanErr
			span.RecordError(err)
			span.SetStatus(codes.Error, "DB upsert failed")
			return nil, fmt.Errorf("error upserting invited user: %w", err)
		}
		if _, err = tx.Exec(ctx, upsertMember, workspaceID, u.ID, string(role)); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "DB upsert failed")
			return nil, fmt.Errorf("error upserting membership: %w", err)
		}
		delete(remaining, u.ID)
		users = append(users, *u)
	}
	if hadAdmins && len(remaining) == 0 {
		err = ErrLastAdministrator
		span.SetStatus(codes.Error, "last administrator")
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error committing invites: %w", err)
	}
	span.SetStatus(codes.Ok, "Members added")
	return users, nil
}

func (r *PostgresWorkspaceRepo) Leave(ctx context.Context, workspaceID string, userID uuid.UUID) (err error) {
	ctx, span := otel.Tracer("WorkspaceRepo").Start(ctx, "Leave")
	defer span.End()
	span.SetAttributes(semconv.DBSystemPostgreSQL, attribute.String("workspace.id", workspaceID))

	tx, err := r.pgpool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer func() {
		if err != nil {
			r.rollback(ctx, tx)
		}
	}()

	// Locking every administrator row keeps two admins from leaving at once.
	admins, err := lockAdministrators(ctx, tx, workspaceID)
	if err != nil {
		span.RecordError(err)
		return err
	}

	isAdmin := false
	for _, id := range admins {
		if id == userID {
			isAdmin = true
		}
	}
	if isAdmin && len(admins) == 1 {
		err = ErrLastAdministrator
		span.SetStatus(codes.Error, "last administrator")
		return err
	}

	tag, err := tx.Exec(ctx,
		`DELETE FROM workspace_members WHERE workspace_id = $1 AND user_id = $2`,
		workspaceID, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB delete failed")
		return fmt.Errorf("error leaving workspace: %w", err)
	}
	if tag.RowsAffected() == 0 {
		err = fmt.Errorf("workspace membership: %w", types.ErrNotFound)
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("error committing leave: %w", err)
	}
	span.SetStatus(codes.Ok, "Left workspace")
	return nil
}
