package router

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	_ "github.com/FACorreiaa/go-user-accounts/docs"

	appLogger "github.com/FACorreiaa/go-user-accounts/app/logger"
	"github.com/FACorreiaa/go-user-accounts/internal/api/auth"
	passwordReset "github.com/FACorreiaa/go-user-accounts/internal/api/password_reset"
	"github.com/FACorreiaa/go-user-accounts/internal/api/photo"
	"github.com/FACorreiaa/go-user-accounts/internal/api/user"
	"github.com/FACorreiaa/go-user-accounts/internal/api/workspace"
)

// Config contains dependencies needed for the router setup
type Config struct {
	AuthHandler            *auth.HandlerImpl
	PasswordResetHandler   *passwordReset.HandlerImpl
	UserHandler            *user.HandlerImpl
	PhotoHandler           *photo.HandlerImpl
	WorkspaceHandler       *workspace.HandlerImpl
	AuthenticateMiddleware func(http.Handler) http.Handler
	// RateLimitMiddleware guards the unauthenticated credential endpoints.
	RateLimitMiddleware func(http.Handler) http.Handler
	AllowedOrigins      []string
	Timeout             time.Duration
	Logger              *slog.Logger
}

// SetupRouter builds the HTTP handler with server-wide middleware and
// every route of the service.
func SetupRouter(cfg *Config) http.Handler {
	r := chi.NewMux()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(appLogger.StructuredLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)
	if cfg.Timeout > 0 {
		r.Use(middleware.Timeout(cfg.Timeout))
	}
	r.Use(middleware.Compress(5, "application/json"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", "X-Request-Id"},
		ExposedHeaders:   []string{"Link", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("pong"))
	})
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	r.Route("/api/v1/users", func(r chi.Router) {
		// Public routes
		r.Group(func(r chi.Router) {
			if cfg.RateLimitMiddleware != nil {
				r.Use(cfg.RateLimitMiddleware)
			}
			r.Post("/", cfg.AuthHandler.Signup)
			r.Post("/super", cfg.AuthHandler.SignupSuperUser)
			r.Post("/login", cfg.AuthHandler.Login)
			r.Post("/forgotPassword", cfg.PasswordResetHandler.ForgotPassword)
			r.Put("/resetPassword", cfg.PasswordResetHandler.ResetPassword)
		})
		r.Post("/logout", cfg.AuthHandler.Logout)
		r.Get("/verifyPasswordResetToken", cfg.PasswordResetHandler.VerifyPasswordResetToken)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(cfg.AuthenticateMiddleware)

			r.Put("/", cfg.UserHandler.UpdateCurrentUser)
			r.Get("/me", cfg.UserHandler.GetCurrentUser)
			r.Put("/setReleaseNotesViewed", cfg.UserHandler.SetReleaseNotesViewed)
			r.Get("/features", cfg.UserHandler.GetFeatureFlags)
			r.Patch("/comment/state", cfg.UserHandler.SetCommentState)

			r.Post("/invite", cfg.WorkspaceHandler.InviteUsers)
			r.Put("/leaveWorkspace/{workspaceId}", cfg.WorkspaceHandler.LeaveWorkspace)

			r.Post("/photo", cfg.PhotoHandler.UploadPhoto)
			r.Delete("/photo", cfg.PhotoHandler.DeletePhoto)
			r.Get("/photo", cfg.PhotoHandler.GetPhoto)
			r.Get("/photo/{email}", cfg.PhotoHandler.GetPhotoByEmail)
		})
	})

	return r
}
