package webhook

import (
	"context"
	"log/slog"
)

type busEvent struct {
	event string
	data  map[string]any
}

// Bus decouples event emission from dispatch: Notify hands the event to a
// buffered channel so mutating requests never wait on registry lookups.
// When the buffer is full the event is dispatched inline instead of being
// dropped. Implements capability.Notifier.
type Bus struct {
	dispatcher *Dispatcher
	events     chan busEvent
	logger     *slog.Logger
}

// NewBus constructs a Bus with the given buffer size.
func NewBus(dispatcher *Dispatcher, buffer int, logger *slog.Logger) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		dispatcher: dispatcher,
		events:     make(chan busEvent, buffer),
		logger:     logger,
	}
}

// Notify queues the event for asynchronous dispatch.
func (b *Bus) Notify(ctx context.Context, event string, data map[string]any) {
	select {
	case b.events <- busEvent{event: event, data: data}:
	default:
		b.logger.Warn("event bus full, dispatching inline", slog.String("event", event))
		b.dispatcher.Dispatch(ctx, event, data)
	}
}

// Run drains the bus until ctx is cancelled. Call from a dedicated
// goroutine.
func (b *Bus) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			b.drain()
			return
		case ev := <-b.events:
			b.dispatcher.Dispatch(ctx, ev.event, ev.data)
		}
	}
}

// drain flushes whatever is buffered at shutdown so emitted events still
// reach the durable queue.
func (b *Bus) drain() {
	for {
		select {
		case ev := <-b.events:
			b.dispatcher.Dispatch(context.Background(), ev.event, ev.data)
		default:
			return
		}
	}
}
