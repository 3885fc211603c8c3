package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"magiclink-auth/internal/config"
	"magiclink-auth/internal/database"
	"magiclink-auth/internal/handler"
	"magiclink-auth/internal/middleware"
	"magiclink-auth/internal/queue"
	"magiclink-auth/internal/repository"
	"magiclink-auth/internal/router"
	"magiclink-auth/internal/service"
)

type App struct {
	server *http.Server
	db     *database.DB
	queue  *queue.Client
	cancel context.CancelFunc
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	slog.Info("connecting to PostgreSQL")
	db, err := database.New(context.Background(), cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.EnsureSchema(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure database schema: %w", err)
	}

	pool := db.Pool
	userRepo := repository.NewUserRepository(pool)
	tokenRepo := repository.NewTokenRepository(pool)
	slog.Info("database ready")

	queueClient := queue.NewClient(pool, cfg.QueuePollInterval, cfg.QueueRetryLimit)

	tokenService, err := service.NewTokenService(userRepo, tokenRepo, cfg.JWTSecret, cfg.SessionDuration, cfg.TokenRotationPolicy)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}

	rateLimitService := service.NewRateLimitService(queueClient, cfg.RateLimitMaxAttempts, cfg.RateLimitWindow)
	mailService := service.NewMailService(cfg.SMTPHost, cfg.SMTPPort, cfg.MailFrom, cfg.ServerURL)

	auditService := service.NewAuditService(queueClient)
	if err := auditService.Start(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to start audit worker: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	cleanupService := service.NewCleanupService(queueClient, tokenRepo, cfg.CleanupCron, cfg.CleanupTimezone)
	if err := cleanupService.Start(ctx); err != nil {
		cancel()
		db.Close()
		return nil, fmt.Errorf("failed to start token cleanup: %w", err)
	}

	sessionMiddleware := middleware.NewSessionMiddleware(tokenService, cfg.CookieName)
	authHandler := handler.NewAuthHandler(
		tokenService,
		userRepo,
		rateLimitService,
		mailService,
		auditService,
		handler.CookieSettings{
			Name:   cfg.CookieName,
			Domain: cfg.CookieDomain,
			Secure: cfg.IsProduction(),
			MaxAge: cfg.SessionDuration,
		},
		cfg.IsProduction(),
	)
	adminHandler := handler.NewAdminHandler(userRepo, tokenService, auditService, cfg.IsProduction())
	healthHandler := handler.NewHealthHandler(db)

	appRouter := router.New(cfg, sessionMiddleware, authHandler, adminHandler, healthHandler)

	queueClient.Start(ctx)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      appRouter,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  cfg.ServerIdleTimeout,
	}

	return &App{
		server: server,
		db:     db,
		queue:  queueClient,
		cancel: cancel,
	}, nil
}

func (a *App) Run() error {
	go func() {
		slog.Info("server starting", "addr", a.server.Addr)
		if serveErr := a.server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("server failed", "error", serveErr)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Stop accepting requests before draining workers: in-flight
	// handlers may still enqueue jobs until Shutdown returns.
	err := a.server.Shutdown(ctx)
	if err != nil {
		err = fmt.Errorf("graceful shutdown failed: %w", err)
	}

	a.cancel()
	a.queue.Stop()
	a.db.Close()

	slog.Info("server stopped")
	return err
}
