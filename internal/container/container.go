package container

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	database "github.com/FACorreiaa/go-user-accounts/app/db"
	appMiddleware "github.com/FACorreiaa/go-user-accounts/app/middleware"
	"github.com/FACorreiaa/go-user-accounts/config"
	"github.com/FACorreiaa/go-user-accounts/internal/api/auth"
	passwordReset "github.com/FACorreiaa/go-user-accounts/internal/api/password_reset"
	"github.com/FACorreiaa/go-user-accounts/internal/api/photo"
	"github.com/FACorreiaa/go-user-accounts/internal/api/user"
	"github.com/FACorreiaa/go-user-accounts/internal/api/workspace"
	"github.com/FACorreiaa/go-user-accounts/internal/featureflags"
	"github.com/FACorreiaa/go-user-accounts/internal/notify"
	"github.com/FACorreiaa/go-user-accounts/internal/router"
)

// Container holds all application dependencies
type Container struct {
	Config       *config.Config
	Logger       *slog.Logger
	Pool         *pgxpool.Pool
	Router       http.Handler
	ResetService *passwordReset.ResetServiceImpl
	RateLimiter  *appMiddleware.RateLimiter
	closeMailer  func() error
}

// NewContainer migrates the database, opens the pool and wires every
// repository, service and handler.
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	dbConfig, err := database.NewDatabaseConfig(cfg, logger)
	if err != nil {
		logger.Error("Failed to generate database config", slog.Any("error", err))
		return nil, err
	}

	// Migrations run before the main pool is opened
	if err = database.RunMigrations(dbConfig.ConnectionURL, logger); err != nil {
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}

	pool, err := database.Init(dbConfig.ConnectionURL, logger)
	if err != nil {
		logger.Error("Failed to initialize database pool", slog.Any("error", err))
		return nil, err
	}
	if !database.WaitForDB(ctx, pool, logger) {
		pool.Close()
		return nil, errors.New("database not ready after waiting")
	}

	mailer, closeMailer, err := notify.NewMailer(*cfg, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}

	photoStore, err := photo.NewS3PhotoStore(ctx, cfg.Photos)
	if err != nil {
		pool.Close()
		_ = closeMailer()
		return nil, err
	}

	// Repositories
	authRepo := auth.NewPostgresAuthRepo(pool, logger)
	userRepo := user.NewPostgresUserRepo(pool, logger)
	resetRepo := passwordReset.NewPostgresResetRepo(pool, logger)
	workspaceRepo := workspace.NewPostgresWorkspaceRepo(pool, logger)

	// Services
	sessions := auth.NewSessionStore(authRepo, cfg.JWT)
	authService := auth.NewAuthService(authRepo, sessions, logger)
	resetService := passwordReset.NewResetService(resetRepo, authRepo, mailer, cfg.PasswordReset, logger)
	flags := featureflags.NewConfigProvider(cfg.FeatureFlags)
	userService := user.NewUserService(userRepo, flags, cfg.App.Version, logger)
	photoService := photo.NewPhotoService(userRepo, authRepo, photoStore, cfg.Photos, logger)
	workspaceService := workspace.NewWorkspaceService(workspaceRepo, mailer, logger)

	limiter := appMiddleware.NewRateLimiter(cfg.RateLimit, logger)

	handler := router.SetupRouter(&router.Config{
		AuthHandler:            auth.NewHandlerImpl(authService, cfg.Session, logger),
		PasswordResetHandler:   passwordReset.NewHandlerImpl(resetService, logger),
		UserHandler:            user.NewHandlerImpl(userService, logger),
		PhotoHandler:           photo.NewHandlerImpl(photoService, cfg.Photos.MaxBytes, logger),
		WorkspaceHandler:       workspace.NewHandlerImpl(workspaceService, logger),
		AuthenticateMiddleware: auth.Authenticate(logger, sessions, cfg.Session.CookieName),
		RateLimitMiddleware:    limiter.Middleware,
		AllowedOrigins:         cfg.Server.AllowedOrigins,
		Timeout:                cfg.Server.Timeout,
		Logger:                 logger,
	})

	return &Container{
		Config:       cfg,
		Logger:       logger,
		Pool:         pool,
		Router:       handler,
		ResetService: resetService,
		RateLimiter:  limiter,
		closeMailer:  closeMailer,
	}, nil
}

// Close drains background work and releases all resources held by the
// container. Call it after the HTTP server has stopped.
func (c *Container) Close() {
	c.ResetService.Wait()
	c.RateLimiter.Stop()
	if c.closeMailer != nil {
		if err := c.closeMailer(); err != nil {
			c.Logger.Warn("Failed to close mailer", slog.Any("error", err))
		}
	}
	if c.Pool != nil {
		c.Pool.Close()
	}
}
