package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/FACorreiaa/go-user-accounts/internal/api"
	"github.com/FACorreiaa/go-user-accounts/internal/api/auth"
	"github.com/FACorreiaa/go-user-accounts/internal/notify"
	"github.com/FACorreiaa/go-user-accounts/internal/types"
)

var _ WorkspaceService = (*WorkspaceServiceImpl)(nil)

type WorkspaceService interface {
	// InviteUsers adds the listed emails to a workspace the inviter
	// administers and mails each of them a link.
	InviteUsers(ctx context.Context, inviter *types.User, req types.InviteUsersRequest, origin string) ([]types.User, error)
	LeaveWorkspace(ctx context.Context, user *types.User, workspaceID string) (*types.User, error)
}

type WorkspaceServiceImpl struct {
	logger *slog.Logger
	repo   WorkspaceRepo
	mailer notify.Mailer
}

func NewWorkspaceService(repo WorkspaceRepo, mailer notify.Mailer, logger *slog.Logger) *WorkspaceServiceImpl {
	return &WorkspaceServiceImpl{
		logger: logger,
		repo:   repo,
		mailer: mailer,
	}
}

func (s *WorkspaceServiceImpl) InviteUsers(ctx context.Context, inviter *types.User, req types.InviteUsersRequest, origin string) ([]types.User, error) {
	ctx, span := otel.Tracer("WorkspaceService").Start(ctx, "InviteUsers")
	defer span.End()
	span.SetAttributes(
		attribute.String("workspace.id", req.WorkspaceID),
		attribute.Int("invitees", len(req.Usernames)),
	)
	l := s.logger.With(slog.String("method", "InviteUsers"), slog.String("workspaceID", req.WorkspaceID))

	req.Usernames = normalizeAll(req.Usernames)
	if err := api.ValidateStruct(req); err != nil {
		return nil, err
	}
	if !req.RoleName.Valid() {
		return nil, &types.ValidationError{Fields: map[string]string{
			"roleName": "must be one of Administrator, Developer, App Viewer",
		}}
	}
	if err := s.requireAdministrator(ctx, inviter, req.WorkspaceID); err != nil {
		span.SetStatus(codes.Error, "not allowed")
		return nil, err
	}

	users, err := s.repo.AddMembers(ctx, req.WorkspaceID, req.Usernames, req.RoleName)
	if errors.Is(err, ErrLastAdministrator) {
		span.SetStatus(codes.Error, "last administrator")
		return nil, types.NewValidationError("the last administrator cannot be demoted")
	}
	if err != nil {
		l.ErrorContext(ctx, "Failed to add members", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "add members failed")
		return nil, fmt.Errorf("error inviting users: %w", err)
	}

	for _, u := range users {
		if err = s.mailer.Send(ctx, inviteEmail(u, inviter, req, origin)); err != nil {
			l.WarnContext(ctx, "Failed to send invite", slog.String("to", u.Email), slog.Any("error", err))
		}
	}

	l.InfoContext(ctx, "Users invited", slog.Int("count", len(users)))
	span.SetStatus(codes.Ok, "Users invited")
	return users, nil
}

// requireAdministrator allows administrators of workspaceID. A workspace
// nobody belongs to yet is claimed by its first inviter.
func (s *WorkspaceServiceImpl) requireAdministrator(ctx context.Context, user *types.User, workspaceID string) error {
	role, err := s.repo.GetRole(ctx, workspaceID, user.ID)
	switch {
	case err == nil:
		if role != types.RoleAdministrator {
			return fmt.Errorf("inviting to workspace: %w", types.ErrForbidden)
		}
		return nil
	case errors.Is(err, types.ErrNotFound):
		claimed, claimErr := s.repo.Claim(ctx, workspaceID, user.ID)
		if claimErr != nil {
			return fmt.Errorf("error claiming workspace: %w", claimErr)
		}
		if !claimed {
			return fmt.Errorf("inviting to workspace: %w", types.ErrForbidden)
		}
		s.logger.InfoContext(ctx, "Workspace claimed", slog.String("workspaceID", workspaceID), slog.String("userID", user.ID.String()))
		return nil
	default:
		return fmt.Errorf("error checking workspace role: %w", err)
	}
}

func normalizeAll(emails []string) []string {
	seen := make(map[string]struct{}, len(emails))
	out := make([]string, 0, len(emails))
	for _, e := range emails {
		n := auth.NormalizeEmail(e)
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// inviteEmail links users without a password to signup and everyone
// else to their applications.
func inviteEmail(u types.User, inviter *types.User, req types.InviteUsersRequest, origin string) notify.Email {
	link := origin + "/applications"
	if u.PasswordHash == "" {
		link = origin + "/user/signup?email=" + url.QueryEscape(u.Email)
	}
	inviterName := inviter.Name
	if inviterName == "" {
		inviterName = inviter.Email
	}
	return notify.Email{
		To:       u.Email,
		Subject:  "You have been invited to a workspace",
		Template: notify.TemplateWorkspaceInvite,
		Data: map[string]string{
			"inviter":     inviterName,
			"workspaceId": req.WorkspaceID,
			"role":        string(req.RoleName),
			"link":        link,
		},
	}
}

func (s *WorkspaceServiceImpl) LeaveWorkspace(ctx context.Context, user *types.User, workspaceID string) (*types.User, error) {
	ctx, span := otel.Tracer("WorkspaceService").Start(ctx, "LeaveWorkspace")
	defer span.End()
	span.SetAttributes(attribute.String("workspace.id", workspaceID))
	l := s.logger.With(slog.String("method", "LeaveWorkspace"), slog.String("workspaceID", workspaceID))

	if workspaceID == "" {
		return nil, &types.ValidationError{Fields: map[string]string{"workspaceId": "is required"}}
	}

	err := s.repo.Leave(ctx, workspaceID, user.ID)
	switch {
	case err == nil:
	case errors.Is(err, ErrLastAdministrator):
		span.SetStatus(codes.Error, "last administrator")
		return nil, types.NewValidationError("the last administrator cannot leave the workspace")
	case errors.Is(err, types.ErrNotFound):
		return nil, err
	default:
		l.ErrorContext(ctx, "Failed to leave workspace", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "leave failed")
		return nil, fmt.Errorf("error leaving workspace: %w", err)
	}

	l.InfoContext(ctx, "User left workspace", slog.String("userID", user.ID.String()))
	span.SetStatus(codes.Ok, "Left workspace")
	return user, nil
}
