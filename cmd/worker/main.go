package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/dekel5030/CoursePlatformMicroServices-sub002/internal/app"
	"github.com/dekel5030/CoursePlatformMicroServices-sub002/internal/gateway"
	"github.com/dekel5030/CoursePlatformMicroServices-sub002/internal/identity"
	"github.com/dekel5030/CoursePlatformMicroServices-sub002/internal/platform/cache"
	"github.com/dekel5030/CoursePlatformMicroServices-sub002/internal/platform/db"
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

	redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	jobsClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	dispatcher := identity.NewDispatcher(logger)
	identity.RegisterInvalidationHandlers(dispatcher)

	roleCache := identity.NewRoleCache(redisClient)
	uow := identity.NewUnitOfWork(pool, dispatcher, jobsClient, logger)
	store := identity.NewStore(pool)
	service := identity.NewService(uow, store, roleCache, logger)

	edgeCache := gateway.NewPermissionsCache(redisClient, cfg.EdgeCacheTTL)
	metrics := jobs.NewMetrics(nil)

	roleJob := jobs.NewRoleRefreshJob(service, roleCache, logger, metrics)
	userJob := jobs.NewUserRefreshJob(edgeCache, logger, metrics)

	worker := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskRolePermissionsChanged, Handler: roleJob.Handle},
			{Type: jobs.TaskUserPermissionsChanged, Handler: userJob.Handle},
		},
	})

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
