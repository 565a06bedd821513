package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/gift-exchange/internal/api/http"
	"github.com/spec-kit/gift-exchange/internal/api/http/handlers"
	"github.com/spec-kit/gift-exchange/internal/auth"
	"github.com/spec-kit/gift-exchange/internal/config"
	"github.com/spec-kit/gift-exchange/internal/events"
	"github.com/spec-kit/gift-exchange/internal/identityapi"
	"github.com/spec-kit/gift-exchange/internal/observability"
	"github.com/spec-kit/gift-exchange/internal/persistence"
	"github.com/spec-kit/gift-exchange/internal/repository"
	"github.com/spec-kit/gift-exchange/internal/service"
	"github.com/spec-kit/gift-exchange/internal/session"
	"github.com/spec-kit/gift-exchange/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	metrics := observability.NewMetrics()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if pg.Enabled() && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), persistence.DefaultMigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	dispatcher := events.NewInMemoryDispatcher()
	var auditRepo repository.AuditRepository
	if pg.Enabled() {
		auditRepo = repository.NewAuditRepository(pg.PoolHandle())
	}
	worker.StartAuditWorker(service.NewAuditService(dispatcher, auditRepo, logger))

	api := identityapi.NewClient(cfg.IdentityAPI.BaseURL, nil, cfg.IdentityAPI.Timeout())

	var outcomes service.OutcomeCache
	if redis.Enabled() {
		outcomes = repository.NewRefreshOutcomeCache(redis.Client)
	}
	refreshService := service.NewRefreshService(api, cfg.Session, outcomes, logger, metrics)
	authService := service.NewAuthService(api, cfg.Session.AccessTokenValidity(), logger, metrics)

	sealer, err := auth.NewTokenSealer(cfg.Session.Secret, cfg.Session.MaxAge())
	if err != nil {
		logger.Fatal("failed to init session sealer", zap.Error(err))
	}

	routes := auth.DefaultRouteTable()
	if err := routes.Validate(); err != nil {
		logger.Fatal("invalid route table", zap.Error(err))
	}

	cookie := auth.SessionCookie{
		Name:   cfg.Session.CookieName,
		Secure: cfg.Session.CookieSecure,
		MaxAge: cfg.Session.MaxAge(),
	}
	authMiddleware := auth.NewMiddleware(sealer, cookie, routes, func() *session.Store {
		return session.NewStore(refreshService,
			session.WithDispatcher(dispatcher),
			session.WithLogger(logger),
			session.WithMetrics(metrics),
		)
	}, logger, metrics)

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Auth:           handlers.NewAuthHandler(authService, cfg.Google, routes, cfg.Session.CookieSecure, logger),
		Pages:          handlers.NewPagesHandler(),
		AuthMiddleware: authMiddleware,
		Metrics:        metrics,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
