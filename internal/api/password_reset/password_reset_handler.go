package passwordReset

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/FACorreiaa/go-user-accounts/internal/api"
	"github.com/FACorreiaa/go-user-accounts/internal/types"
)

type HandlerImpl struct {
	resetService ResetService
	logger       *slog.Logger
}

func NewHandlerImpl(resetService ResetService, logger *slog.Logger) *HandlerImpl {
	return &HandlerImpl{
		resetService: resetService,
		logger:       logger,
	}
}

// ForgotPassword godoc
// @Summary      Request a password reset email
// @Description  Always answers true; a reset email is sent only if the address belongs to an account.
// @Tags         Users
// @Accept       json
// @Produce      json
// @Param        Origin header string true "Base URL for the reset link"
// @Param        body body ResetPasswordRequest true "email"
// @Success      200 {object} types.ResponseDTO{data=bool}
// @Failure      400 {object} types.ResponseDTO
// @Router       /users/forgotPassword [post]
func (h *HandlerImpl) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	l := h.logger.With(slog.String("HandlerImpl", "ForgotPassword"))

	var req ResetPasswordRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		api.HandleError(w, r, l, err)
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		api.HandleError(w, r, l, types.NewValidationError("email is required"))
		return
	}
	origin, err := api.RequestOrigin(r)
	if err != nil {
		api.HandleError(w, r, l, err)
		return
	}

	h.resetService.RequestReset(r.Context(), req.Email, origin)
	api.Respond(w, r, http.StatusOK, true)
}

// VerifyPasswordResetToken godoc
// @Summary      Check a password reset token
// @Tags         Users
// @Produce      json
// @Param        token query string true "Reset token"
// @Success      200 {object} types.ResponseDTO{data=bool}
// @Failure      400 {object} types.ResponseDTO
// @Router       /users/verifyPasswordResetToken [get]
func (h *HandlerImpl) VerifyPasswordResetToken(w http.ResponseWriter, r *http.Request) {
	l := h.logger.With(slog.String("HandlerImpl", "VerifyPasswordResetToken"))

	token := r.URL.Query().Get("token")
	if token == "" {
		api.HandleError(w, r, l, types.NewValidationError("token is required"))
		return
	}

	valid, err := h.resetService.VerifyToken(r.Context(), token)
	if err != nil {
		api.HandleError(w, r, l, err)
		return
	}
	api.Respond(w, r, http.StatusOK, valid)
}

// ResetPassword godoc
// @Summary      Set a new password with a reset token
// @Tags         Users
// @Accept       json
// @Produce      json
// @Param        body body ResetPasswordRequest true "token and password"
// @Success      200 {object} types.ResponseDTO{data=bool}
// @Failure      400 {object} types.ResponseDTO
// @Router       /users/resetPassword [put]
func (h *HandlerImpl) ResetPassword(w http.ResponseWriter, r *http.Request) {
	l := h.logger.With(slog.String("HandlerImpl", "ResetPassword"))

	var req ResetPasswordRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		api.HandleError(w, r, l, err)
		return
	}
	if req.Token == "" {
		api.HandleError(w, r, l, types.NewValidationError("token is required"))
		return
	}

	if _, err := h.resetService.ConsumeReset(r.Context(), req.Token, req.Password); err != nil {
		api.HandleError(w, r, l, err)
		return
	}
	api.Respond(w, r, http.StatusOK, true)
}
