// Package jobs wires the Asynq worker that drives the periodic webhook
// delivery tick.
package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/rolewarden/rolewarden/internal/webhook"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskWebhookProcess is the task type for one delivery queue tick.
	TaskWebhookProcess = "webhook:process"
)

// NewWebhookProcessTask constructs the delivery tick task. It carries no
// payload; the processor reads its work from the durable queue.
func NewWebhookProcessTask() *asynq.Task {
	return asynq.NewTask(TaskWebhookProcess, nil)
}

// WebhookProcessHandler adapts the delivery processor to Asynq.
func WebhookProcessHandler(processor *webhook.Processor, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		handled, err := processor.ProcessTick(ctx)
		if err != nil {
			return err
		}
		if handled > 0 && logger != nil {
			logger.Info("webhook delivery tick", slog.Int("handled", handled))
		}
		return nil
	}
}
