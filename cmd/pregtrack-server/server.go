package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/reprotech/pregtrack/internal/config"
	"github.com/reprotech/pregtrack/internal/domain/pregnancy"
	"github.com/reprotech/pregtrack/internal/domain/rollup"
	"github.com/reprotech/pregtrack/internal/platform/auth"
	"github.com/reprotech/pregtrack/internal/platform/cache"
	"github.com/reprotech/pregtrack/internal/platform/clock"
	"github.com/reprotech/pregtrack/internal/platform/db"
	"github.com/reprotech/pregtrack/internal/platform/middleware"
	"github.com/reprotech/pregtrack/migrations"
)

type registrar interface {
	RegisterRoutes(api *echo.Group)
}

// routes carries everything newRouter mounts.
type routes struct {
	handlers []registrar
	branch   echo.MiddlewareFunc
	health   echo.HandlerFunc
}

func authMiddleware(cfg *config.Config) (echo.MiddlewareFunc, error) {
	switch cfg.ResolvedAuthMode() {
	case config.AuthModeDevelopment:
		return auth.DevAuthMiddleware(cfg.DefaultBranch), nil
	case config.AuthModeJWT:
		return auth.JWTMiddleware(jwtConfig(cfg)), nil
	}
	return nil, fmt.Errorf("unsupported auth mode %q", cfg.ResolvedAuthMode())
}

func newRouter(cfg *config.Config, logger zerolog.Logger, r routes) (*echo.Echo, error) {
	authMW, err := authMiddleware(cfg)
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders:  []string{echo.HeaderAuthorization, echo.HeaderContentType, middleware.RequestIDHeader, db.BranchHeader},
		ExposeHeaders: []string{middleware.RequestIDHeader, "Retry-After"},
	}))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	if cfg.RequestTimeout > 0 {
		e.Use(middleware.RequestTimeout(cfg.RequestTimeout, "/api/v1/calendar.ics"))
	}

	if r.health != nil {
		e.GET("/health", r.health)
	}

	rl := middleware.RateLimitConfig{RequestsPerSecond: cfg.RateLimitRPS, BurstSize: cfg.RateLimitBurst}
	if rl.RequestsPerSecond <= 0 {
		rl = middleware.DefaultRateLimitConfig()
	}

	api := e.Group("/api/v1")
	api.Use(authMW)
	api.Use(middleware.RateLimit(rl))
	api.Use(clock.Middleware(clock.System))
	if r.branch != nil {
		api.Use(r.branch)
	}
	api.Use(middleware.Audit(logger, nil))

	for _, h := range r.handlers {
		h.RegisterRoutes(api)
	}
	return e, nil
}

func runServer(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, poolConfig(cfg))
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	if err := db.CreateBranchSchema(ctx, pool, cfg.DefaultBranch, db.NewMigrator(pool, migrations.FS)); err != nil {
		return fmt.Errorf("prepare default branch: %w", err)
	}

	svc := pregnancy.NewService(pregnancy.NewTransferRepoPG(pool), clock.System, logger)
	svc.SetUpcomingLimit(cfg.UpcomingLimit)
	rollupHandler := rollup.NewHandler(svc, logger)
	components := map[string]db.Pinger{"postgres": pool}

	if cfg.RedisURL != "" {
		client, err := cache.NewClient(ctx, cache.Options{URL: cfg.RedisURL})
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, rollup cache disabled")
		} else {
			rc := cache.New(client)
			defer rc.Close()
			rollupHandler.SetCache(rc, cfg.RollupCacheTTL)
			svc.SetChangeListener(rollupHandler)
			components["redis"] = rc
		}
	}

	e, err := newRouter(cfg, logger, routes{
		handlers: []registrar{pregnancy.NewHandler(svc), rollupHandler},
		branch:   db.BranchMiddleware(pool, cfg.DefaultBranch),
		health:   db.HealthHandler(pool, components),
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("auth_mode", cfg.ResolvedAuthMode()).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}
