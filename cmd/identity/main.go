package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/dekel5030/CoursePlatformMicroServices-sub002/internal/app"
	"github.com/dekel5030/CoursePlatformMicroServices-sub002/internal/identity"
	"github.com/dekel5030/CoursePlatformMicroServices-sub002/internal/observability"
	"github.com/dekel5030/CoursePlatformMicroServices-sub002/internal/platform/cache"
	"github.com/dekel5030/CoursePlatformMicroServices-sub002/internal/platform/db"
	"github.com/dekel5030/CoursePlatformMicroServices-sub002/internal/tokens"
	"github.com/dekel5030/CoursePlatformMicroServices-sub002/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	// The role cache is a read-through optimization; the service keeps
	// answering from Postgres when Redis is down.
	var roleCache *identity.RoleCache
	redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		logger.Warn("redis unavailable, role cache disabled", slog.Any("error", err))
	} else {
		roleCache = identity.NewRoleCache(redisClient)
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	jobsClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	dispatcher := identity.NewDispatcher(logger)
	identity.RegisterInvalidationHandlers(dispatcher)

	uow := identity.NewUnitOfWork(pool, dispatcher, jobsClient, logger)
	store := identity.NewStore(pool)
	service := identity.NewService(uow, store, roleCache, logger)

	issuer, err := tokens.NewIssuer(cfg.TokenSecret, cfg.TokenIssuer, cfg.TokenTTL)
	if err != nil {
		logger.Error("init token issuer", slog.Any("error", err))
		os.Exit(1)
	}

	handler := identity.NewHandler(service, issuer, logger)
	metrics := observability.NewMetrics()

	router := chi.NewRouter()
	for _, mw := range app.MiddlewareStack(cfg, metrics) {
		router.Use(mw)
	}
	router.Method(http.MethodGet, "/metrics", metrics.Handler())
	handler.MountRoutes(router)

	server := &http.Server{
		Addr:         cfg.IdentityAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting identity service", slog.String("addr", cfg.IdentityAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("identity service", slog.Any("error", err))
		os.Exit(1)
	}
}
