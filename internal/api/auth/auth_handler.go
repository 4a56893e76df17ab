package auth

import (
	"context"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/FACorreiaa/go-user-accounts/config"
	"github.com/FACorreiaa/go-user-accounts/internal/api"
	"github.com/FACorreiaa/go-user-accounts/internal/types"
)

type HandlerImpl struct {
	authService AuthService
	logger      *slog.Logger
	cookie      config.SessionConfig
}

func NewHandlerImpl(authService AuthService, cookie config.SessionConfig, logger *slog.Logger) *HandlerImpl {
	if cookie.CookieName == "" {
		cookie.CookieName = "SESSION"
	}
	return &HandlerImpl{
		authService: authService,
		logger:      logger,
		cookie:      cookie,
	}
}

const (
	maxFormBytes       = 64 << 10
	defaultRedirect    = "/applications"
	signupErrorPage    = "/user/signup"
	superUserErrorPage = "/setup/welcome"
)

// Signup godoc
// @Summary      Create account
// @Description  Creates a user, or claims an invited one, and opens a session.
// @Description  Form posts are answered with a redirect to redirectUrl, or to the signup page with an error.
// @Tags         Users
// @Accept       json
// @Accept       x-www-form-urlencoded
// @Produce      json
// @Param        body body SignupRequest true "Signup"
// @Success      201 {object} types.ResponseDTO{data=types.User}
// @Success      302
// @Failure      400 {object} types.ResponseDTO
// @Failure      409 {object} types.ResponseDTO
// @Router       /users [post]
func (h *HandlerImpl) Signup(w http.ResponseWriter, r *http.Request) {
	h.signup(w, r, "Signup", signupErrorPage, h.authService.Signup)
}

// SignupSuperUser godoc
// @Summary      Create the instance administrator
// @Description  Creates the first user of a fresh instance. Forbidden once any user exists.
// @Tags         Users
// @Accept       json
// @Accept       x-www-form-urlencoded
// @Produce      json
// @Param        body body SignupRequest true "Signup"
// @Success      201 {object} types.ResponseDTO{data=types.User}
// @Success      302
// @Failure      400 {object} types.ResponseDTO
// @Failure      403 {object} types.ResponseDTO
// @Router       /users/super [post]
func (h *HandlerImpl) SignupSuperUser(w http.ResponseWriter, r *http.Request) {
	h.signup(w, r, "SignupSuperUser", superUserErrorPage, h.authService.SignupSuperUser)
}

func (h *HandlerImpl) signup(w http.ResponseWriter, r *http.Request, name, errorPage string,
	create func(context.Context, SignupRequest) (*Session, error)) {
	l := h.logger.With(slog.String("HandlerImpl", name))

	if isFormPost(r) {
		h.signupForm(w, r, l, errorPage, create)
		return
	}

	var req SignupRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		api.HandleError(w, r, l, err)
		return
	}

	session, err := create(r.Context(), req)
	if err != nil {
		api.HandleError(w, r, l, err)
		return
	}

	h.setSessionCookie(w, session.AccessToken, session.ExpiresAt)
	api.Respond(w, r, http.StatusCreated, session.User)
}

// signupForm serves plain browser form posts, which expect redirects
// rather than a JSON envelope.
func (h *HandlerImpl) signupForm(w http.ResponseWriter, r *http.Request, l *slog.Logger, errorPage string,
	create func(context.Context, SignupRequest) (*Session, error)) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		redirectWithError(w, r, l, errorPage, types.NewValidationError("body must be a valid form"))
		return
	}

	session, err := create(r.Context(), SignupRequest{
		Email:    r.PostForm.Get("email"),
		Password: r.PostForm.Get("password"),
		Name:     r.PostForm.Get("name"),
		Role:     r.PostForm.Get("role"),
		UseCase:  r.PostForm.Get("useCase"),
	})
	if err != nil {
		redirectWithError(w, r, l, errorPage, err)
		return
	}

	h.setSessionCookie(w, session.AccessToken, session.ExpiresAt)
	http.Redirect(w, r, localRedirect(r.PostForm.Get("redirectUrl")), http.StatusFound)
}

func redirectWithError(w http.ResponseWriter, r *http.Request, l *slog.Logger, page string, err error) {
	status, message := api.StatusFor(err)
	if status == http.StatusInternalServerError {
		l.ErrorContext(r.Context(), "Form signup failed", slog.Any("error", err))
	}
	http.Redirect(w, r, page+"?error="+url.QueryEscape(message), http.StatusFound)
}

func isFormPost(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/x-www-form-urlencoded"
}

// localRedirect returns target if it is a path on this site and
// defaultRedirect otherwise.
func localRedirect(target string) string {
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.Contains(target, `\`) {
		return defaultRedirect
	}
	u, err := url.Parse(target)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return defaultRedirect
	}
	return target
}

// Login godoc
// @Summary      Log in
// @Tags         Users
// @Accept       json
// @Produce      json
// @Param        body body LoginRequest true "Credentials"
// @Success      200 {object} types.ResponseDTO{data=LoginResponse}
// @Failure      401 {object} types.ResponseDTO
// @Router       /users/login [post]
func (h *HandlerImpl) Login(w http.ResponseWriter, r *http.Request) {
	l := h.logger.With(slog.String("HandlerImpl", "Login"))

	var req LoginRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		api.HandleError(w, r, l, err)
		return
	}
	if err := api.ValidateStruct(req); err != nil {
		api.HandleError(w, r, l, err)
		return
	}

	session, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		api.HandleError(w, r, l, err)
		return
	}

	h.setSessionCookie(w, session.AccessToken, session.ExpiresAt)
	api.Respond(w, r, http.StatusOK, LoginResponse{
		User:        session.User,
		AccessToken: session.AccessToken,
		ExpiresAt:   session.ExpiresAt,
	})
}

// Logout godoc
// @Summary      Log out
// @Description  Clears the session cookie.
// @Tags         Users
// @Produce      json
// @Success      200 {object} types.ResponseDTO
// @Router       /users/logout [post]
func (h *HandlerImpl) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   h.cookie.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	api.Respond(w, r, http.StatusOK, nil)
}

func (h *HandlerImpl) setSessionCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   h.cookie.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
