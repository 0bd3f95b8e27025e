package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/rolewarden/rolewarden/internal/app"
	"github.com/rolewarden/rolewarden/internal/capability"
	"github.com/rolewarden/rolewarden/internal/command"
	"github.com/rolewarden/rolewarden/internal/host"
	"github.com/rolewarden/rolewarden/internal/observability"
	"github.com/rolewarden/rolewarden/internal/platform/cache"
	"github.com/rolewarden/rolewarden/internal/platform/db"
	"github.com/rolewarden/rolewarden/internal/platform/kv"
	"github.com/rolewarden/rolewarden/internal/revision"
	"github.com/rolewarden/rolewarden/internal/webhook"
	"github.com/rolewarden/rolewarden/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		os.Exit(runJobs(os.Args[2:]))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, falling back to in-process rate limiting", slog.Any("error", err))
		redisClient = nil
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	store := kv.NewPostgres(dbpool)
	if err := store.EnsureSchema(ctx); err != nil {
		logger.Error("ensure schema", slog.Any("error", err))
		os.Exit(1)
	}

	hostProvider := host.NewKVProvider(store)
	if err := hostProvider.EnsureDefaults(ctx); err != nil {
		logger.Error("seed default roles", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()

	registry := webhook.NewRegistry(store, cfg.WebhookDebug)
	queue := webhook.NewQueue(store)
	logs := webhook.NewLogStore(store, cfg.WebhookLogRetention)
	dispatcher := webhook.NewDispatcher(registry, queue, cfg.SiteURL, logger)
	bus := webhook.NewBus(dispatcher, 256, logger)

	state := capability.NewState(store)
	capStore := capability.NewStore(hostProvider, state, bus, nil, logger)
	revisions := revision.NewService(store, capStore, hostProvider, cfg.RevisionRetention, logger)
	capStore = capability.NewStore(hostProvider, state, bus, revisions, logger)
	disablement := capability.NewDisablement(hostProvider, state, bus)
	resolver := capability.NewResolver(hostProvider, state)

	capHandler := capability.NewHandler(logger, capStore, disablement, resolver)
	webhookHandler := webhook.NewHandler(logger, registry, queue, logs)
	revisionHandler := revision.NewHandler(logger, revisions)

	var limiter command.RateLimiter
	if redisClient != nil {
		limiter = command.NewRedisRateLimiter(redisClient, cfg.CommandRateLimit, cfg.CommandRateWindow)
	} else {
		limiter = command.NewMemoryRateLimiter(cfg.CommandRateLimit, cfg.CommandRateWindow)
	}
	commandService := command.NewService(capStore, disablement, logger)
	commandHandler := command.NewHandler(logger, commandService, limiter, logs, metrics, cfg.AdminTokenHash)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		CapabilityHandler: capHandler,
		WebhookHandler:    webhookHandler,
		RevisionHandler:   revisionHandler,
		CommandHandler:    commandHandler,
		JobHandler:        jobHandler,
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		bus.Run(groupCtx)
		return nil
	})
	group.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && err != context.Canceled {
		logger.Error("runtime", slog.Any("error", err))
		os.Exit(1)
	}
}
