package workspace

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/FACorreiaa/go-user-accounts/internal/api"
	"github.com/FACorreiaa/go-user-accounts/internal/api/auth"
	"github.com/FACorreiaa/go-user-accounts/internal/types"
)

type HandlerImpl struct {
	workspaceService WorkspaceService
	logger           *slog.Logger
}

func NewHandlerImpl(workspaceService WorkspaceService, logger *slog.Logger) *HandlerImpl {
	return &HandlerImpl{
		workspaceService: workspaceService,
		logger:           logger,
	}
}

// InviteUsers godoc
// @Summary      Invite users to a workspace
// @Description  Creates accounts for unknown emails, grants the role and emails each invitee. The Origin header is used to build links.
// @Tags         Workspaces
// @Accept       json
// @Produce      json
// @Param        invite body types.InviteUsersRequest true "Invite"
// @Success      200 {object} types.ResponseDTO{data=[]types.User}
// @Failure      400 {object} types.ResponseDTO
// @Failure      403 {object} types.ResponseDTO
// @Security     SessionCookie
// @Router       /users/invite [post]
func (h *HandlerImpl) InviteUsers(w http.ResponseWriter, r *http.Request) {
	l := h.logger.With(slog.String("HandlerImpl", "InviteUsers"))
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		api.HandleError(w, r, l, types.ErrUnauthenticated)
		return
	}

	origin, err := api.RequestOrigin(r)
	if err != nil {
		api.HandleError(w, r, l, err)
		return
	}
	var req types.InviteUsersRequest
	if err = api.DecodeJSONBody(w, r, &req); err != nil {
		api.HandleError(w, r, l, err)
		return
	}

	users, err := h.workspaceService.InviteUsers(r.Context(), user, req, origin)
	if err != nil {
		api.HandleError(w, r, l, err)
		return
	}
	api.Respond(w, r, http.StatusOK, users)
}

// LeaveWorkspace godoc
// @Summary      Leave a workspace
// @Tags         Workspaces
// @Produce      json
// @Param        workspaceId path string true "Workspace ID"
// @Success      200 {object} types.ResponseDTO{data=types.User}
// @Failure      400 {object} types.ResponseDTO
// @Failure      404 {object} types.ResponseDTO
// @Security     SessionCookie
// @Router       /users/leaveWorkspace/{workspaceId} [put]
func (h *HandlerImpl) LeaveWorkspace(w http.ResponseWriter, r *http.Request) {
	l := h.logger.With(slog.String("HandlerImpl", "LeaveWorkspace"))
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		api.HandleError(w, r, l, types.ErrUnauthenticated)
		return
	}

	updated, err := h.workspaceService.LeaveWorkspace(r.Context(), user, chi.URLParam(r, "workspaceId"))
	if err != nil {
		api.HandleError(w, r, l, err)
		return
	}
	api.Respond(w, r, http.StatusOK, updated)
}
