package user

import (
	"log/slog"
	"net/http"

	"github.com/FACorreiaa/go-user-accounts/internal/api"
	"github.com/FACorreiaa/go-user-accounts/internal/api/auth"
	"github.com/FACorreiaa/go-user-accounts/internal/types"
)

type HandlerImpl struct {
	userService UserService
	logger      *slog.Logger
}

// NewHandlerImpl creates a new user HandlerImpl instance.
func NewHandlerImpl(userService UserService, logger *slog.Logger) *HandlerImpl {
	if logger == nil {
		panic("PANIC: Attempting to create HandlerImpl with nil logger!")
	}
	return &HandlerImpl{
		userService: userService,
		logger:      logger,
	}
}

// CommentStateRequest is the body of PATCH /users/comment/state.
type CommentStateRequest struct {
	CommentOnboardingState types.CommentOnboardingState `json:"commentOnboardingState"`
}

func currentUser(w http.ResponseWriter, r *http.Request, l *slog.Logger) (*types.User, bool) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		l.ErrorContext(r.Context(), "User not found in context")
		api.HandleError(w, r, l, types.ErrUnauthenticated)
		return nil, false
	}
	return user, true
}

// GetCurrentUser godoc
// @Summary      Get User Profile
// @Description  Retrieves the authenticated user's profile.
// @Tags         Users
// @Produce      json
// @Success      200 {object} types.ResponseDTO{data=types.UserProfile}
// @Failure      401 {object} types.ResponseDTO
// @Security     SessionCookie
// @Router       /users/me [get]
func (h *HandlerImpl) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	l := h.logger.With(slog.String("HandlerImpl", "GetCurrentUser"))
	user, ok := currentUser(w, r, l)
	if !ok {
		return
	}

	profile, err := h.userService.GetProfile(r.Context(), user)
	if err != nil {
		api.HandleError(w, r, l, err)
		return
	}
	api.Respond(w, r, http.StatusOK, profile)
}

// UpdateCurrentUser godoc
// @Summary      Update User Profile
// @Description  Partially updates name, email, role and use case. Any invalid field rejects the whole update.
// @Tags         Users
// @Accept       json
// @Produce      json
// @Param        profile body types.UpdateProfileParams true "Profile fields"
// @Success      200 {object} types.ResponseDTO{data=types.User}
// @Failure      400 {object} types.ResponseDTO
// @Failure      409 {object} types.ResponseDTO
// @Security     SessionCookie
// @Router       /users [put]
func (h *HandlerImpl) UpdateCurrentUser(w http.ResponseWriter, r *http.Request) {
	l := h.logger.With(slog.String("HandlerImpl", "UpdateCurrentUser"))
	user, ok := currentUser(w, r, l)
	if !ok {
		return
	}

	var params types.UpdateProfileParams
	if err := api.DecodeJSONBody(w, r, &params); err != nil {
		api.HandleError(w, r, l, err)
		return
	}

	updated, err := h.userService.UpdateProfile(r.Context(), user, params)
	if err != nil {
		api.HandleError(w, r, l, err)
		return
	}
	api.Respond(w, r, http.StatusOK, updated)
}

// SetReleaseNotesViewed godoc
// @Summary      Mark release notes as read
// @Tags         Users
// @Produce      json
// @Success      200 {object} types.ResponseDTO
// @Security     SessionCookie
// @Router       /users/setReleaseNotesViewed [put]
func (h *HandlerImpl) SetReleaseNotesViewed(w http.ResponseWriter, r *http.Request) {
	l := h.logger.With(slog.String("HandlerImpl", "SetReleaseNotesViewed"))
	user, ok := currentUser(w, r, l)
	if !ok {
		return
	}

	if err := h.userService.SetReleaseNotesViewed(r.Context(), user); err != nil {
		api.HandleError(w, r, l, err)
		return
	}
	api.Respond(w, r, http.StatusOK, nil)
}

// GetFeatureFlags godoc
// @Summary      Feature flags for the current user
// @Tags         Users
// @Produce      json
// @Success      200 {object} types.ResponseDTO{data=map[string]bool}
// @Security     SessionCookie
// @Router       /users/features [get]
func (h *HandlerImpl) GetFeatureFlags(w http.ResponseWriter, r *http.Request) {
	l := h.logger.With(slog.String("HandlerImpl", "GetFeatureFlags"))
	user, ok := currentUser(w, r, l)
	if !ok {
		return
	}

	flags, err := h.userService.GetFeatureFlags(r.Context(), user)
	if err != nil {
		api.HandleError(w, r, l, err)
		return
	}
	api.Respond(w, r, http.StatusOK, flags)
}

// SetCommentState godoc
// @Summary      Set comment onboarding state
// @Tags         Users
// @Accept       json
// @Produce      json
// @Param        body body CommentStateRequest true "State"
// @Success      200 {object} types.ResponseDTO{data=string}
// @Failure      400 {object} types.ResponseDTO
// @Security     SessionCookie
// @Router       /users/comment/state [patch]
func (h *HandlerImpl) SetCommentState(w http.ResponseWriter, r *http.Request) {
	l := h.logger.With(slog.String("HandlerImpl", "SetCommentState"))
	user, ok := currentUser(w, r, l)
	if !ok {
		return
	}

	var req CommentStateRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		api.HandleError(w, r, l, err)
		return
	}

	state, err := h.userService.SetCommentState(r.Context(), user, req.CommentOnboardingState)
	if err != nil {
		api.HandleError(w, r, l, err)
		return
	}
	api.Respond(w, r, http.StatusOK, state)
}
