package webhook

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// Dispatcher fans an event out to every enabled subscription that listens
// for it, enqueueing one delivery per match. No subscribers means no work.
type Dispatcher struct {
	registry *Registry
	queue    *Queue
	siteURL  string
	logger   *slog.Logger
	now      func() time.Time
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(registry *Registry, queue *Queue, siteURL string, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		registry: registry,
		queue:    queue,
		siteURL:  siteURL,
		logger:   logger,
		now:      time.Now,
	}
}

// Dispatch enqueues the event for every matching subscription. Failures
// enqueueing one subscription do not stop the others.
func (d *Dispatcher) Dispatch(ctx context.Context, event string, data map[string]any) {
	subs, err := d.registry.Subscribers(ctx, event)
	if err != nil {
		d.logger.Error("webhook dispatch", slog.String("event", event), slog.Any("error", err))
		return
	}
	if len(subs) == 0 {
		return
	}
	now := d.now().UTC()
	payload := Payload{
		Event:     event,
		Timestamp: now.Format(time.RFC3339),
		SiteURL:   d.siteURL,
		Data:      data,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		d.logger.Error("webhook dispatch encode", slog.String("event", event), slog.Any("error", err))
		return
	}
	for _, sub := range subs {
		if _, err := d.queue.Enqueue(ctx, sub.ID, event, raw, now); err != nil {
			d.logger.Error("webhook enqueue",
				slog.String("event", event),
				slog.String("webhook_id", sub.ID),
				slog.Any("error", err))
			continue
		}
		if err := d.registry.TouchLastTriggered(ctx, sub.ID, now); err != nil {
			d.logger.Warn("touch last triggered",
				slog.String("webhook_id", sub.ID),
				slog.Any("error", err))
		}
	}
}
