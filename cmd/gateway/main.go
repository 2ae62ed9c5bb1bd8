package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/dekel5030/CoursePlatformMicroServices-sub002/internal/app"
	"github.com/dekel5030/CoursePlatformMicroServices-sub002/internal/gateway"
	"github.com/dekel5030/CoursePlatformMicroServices-sub002/internal/observability"
	"github.com/dekel5030/CoursePlatformMicroServices-sub002/internal/platform/cache"
	"github.com/dekel5030/CoursePlatformMicroServices-sub002/internal/tokens"
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

	// Unlike the identity service, the gateway cannot run without Redis:
	// every request would fall through to the identity service.
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

	issuer, err := tokens.NewIssuer(cfg.TokenSecret, cfg.TokenIssuer, cfg.TokenTTL)
	if err != nil {
		logger.Error("init token verifier", slog.Any("error", err))
		os.Exit(1)
	}

	permCache := gateway.NewPermissionsCache(redisClient, cfg.EdgeCacheTTL)
	source := gateway.NewHTTPSource(gateway.SourceConfig{
		BaseURL:  cfg.IdentityBaseURL,
		Timeout:  cfg.SourceTimeout,
		Attempts: cfg.SourceAttempts,
		Backoff:  cfg.SourceBackoff,
		Logger:   logger,
	})
	resolver := gateway.NewUserPermissionsService(permCache, source, logger)

	authz := gateway.Middleware{
		Resolver: resolver,
		Verifier: issuer,
		Logger:   logger,
	}

	upstream, err := url.Parse(cfg.UpstreamURL)
	if err != nil {
		logger.Error("parse upstream url", slog.Any("error", err))
		os.Exit(1)
	}
	proxy := httputil.NewSingleHostReverseProxy(upstream)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Error("proxy upstream", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
	}

	metrics := observability.NewMetrics()

	router := chi.NewRouter()
	for _, mw := range app.MiddlewareStack(cfg, metrics) {
		router.Use(mw)
	}
	// Scrapes stay local; everything else goes through authorization and on
	// to the upstream.
	router.Method(http.MethodGet, "/metrics", metrics.Handler())
	router.Group(func(r chi.Router) {
		r.Use(authz.Handler)
		r.Handle("/*", proxy)
	})

	server := &http.Server{
		Addr:         cfg.GatewayAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting gateway", slog.String("addr", cfg.GatewayAddr), slog.String("upstream", cfg.UpstreamURL))
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
		logger.Error("gateway", slog.Any("error", err))
		os.Exit(1)
	}
}
