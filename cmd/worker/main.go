package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/rolewarden/rolewarden/internal/app"
	"github.com/rolewarden/rolewarden/internal/observability"
	"github.com/rolewarden/rolewarden/internal/platform/db"
	"github.com/rolewarden/rolewarden/internal/platform/kv"
	"github.com/rolewarden/rolewarden/internal/webhook"
	"github.com/rolewarden/rolewarden/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	store := kv.NewPostgres(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		logger.Error("ensure schema", slog.Any("error", err))
		os.Exit(1)
	}
	metrics := observability.NewMetrics()

	registry := webhook.NewRegistry(store, cfg.WebhookDebug)
	queue := webhook.NewQueue(store)
	logs := webhook.NewLogStore(store, cfg.WebhookLogRetention)
	processor := webhook.NewProcessor(registry, queue, logs, metrics, cfg.WebhookBatchSize, cfg.WebhookDebug, logger)

	interval := cfg.WebhookInterval
	spec := "@every " + interval.String()

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskWebhookProcess, Handler: jobs.WebhookProcessHandler(processor, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: spec, Task: jobs.NewWebhookProcessTask(), Options: []asynq.Option{asynq.MaxRetry(0)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
