package webhook

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rolewarden/rolewarden/internal/observability"
	"github.com/rolewarden/rolewarden/internal/platform/httpx"
)

// deliveryTimeout bounds one HTTP delivery attempt.
const deliveryTimeout = 15 * time.Second

// Processor drains the delivery queue in batches. One tick claims due
// entries, delivers them, and requeues or drops per the retry policy.
// Ticks that overlap a still-running tick are skipped.
type Processor struct {
	registry  *Registry
	queue     *Queue
	logs      *LogStore
	metrics   *observability.Metrics
	client    *http.Client
	logger    *slog.Logger
	batchSize int
	running   atomic.Bool
	now       func() time.Time
}

// NewProcessor constructs a Processor. With debug set, TLS certificate
// verification is disabled for local endpoints.
func NewProcessor(registry *Registry, queue *Queue, logs *LogStore, metrics *observability.Metrics, batchSize int, debug bool, logger *slog.Logger) *Processor {
	if batchSize <= 0 {
		batchSize = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	client := &http.Client{Timeout: deliveryTimeout}
	if debug {
		client.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}
	return &Processor{
		registry:  registry,
		queue:     queue,
		logs:      logs,
		metrics:   metrics,
		client:    client,
		logger:    logger,
		batchSize: batchSize,
		now:       time.Now,
	}
}

// ProcessTick runs one batch. Returns how many entries were handled. A
// tick arriving while a previous one is still running is a no-op.
func (p *Processor) ProcessTick(ctx context.Context) (int, error) {
	if !p.running.CompareAndSwap(false, true) {
		p.logger.Debug("delivery tick skipped, previous still running")
		return 0, nil
	}
	defer p.running.Store(false)

	entries, err := p.queue.ClaimDue(ctx, p.now(), p.batchSize)
	if err != nil {
		return 0, fmt.Errorf("webhook: claim due: %w", err)
	}
	for _, entry := range entries {
		if err := p.process(ctx, entry); err != nil {
			p.logger.Error("process delivery", slog.String("entry_id", entry.ID), slog.Any("error", err))
		}
	}
	if depth, err := p.queue.Depth(ctx); err == nil {
		p.metrics.SetQueueDepth(depth)
	}
	return len(entries), nil
}

func (p *Processor) process(ctx context.Context, entry QueueEntry) error {
	sub, err := p.registry.Get(ctx, entry.WebhookID)
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return p.queue.Remove(ctx, entry.ID)
		}
		return err
	}
	if !sub.Enabled {
		return p.queue.Remove(ctx, entry.ID)
	}

	attempt := entry.Attempts + 1
	start := p.now()
	statusCode, body, deliverErr := p.deliver(ctx, sub, entry, attempt)
	elapsed := p.now().Sub(start)

	delivered := deliverErr == nil && statusCode >= 200 && statusCode < 400
	exhausted := !delivered && attempt >= sub.MaxRetries

	status := StatusRetrying
	switch {
	case delivered:
		status = StatusSuccess
	case exhausted:
		status = StatusFailed
	}

	logEntry := LogEntry{
		Direction:    DirectionOutgoing,
		WebhookID:    sub.ID,
		Event:        entry.Event,
		URL:          sub.URL,
		Method:       sub.Method,
		Attempt:      attempt,
		StatusCode:   statusCode,
		ResponseBody: body,
		Status:       status,
		DurationMS:   elapsed.Milliseconds(),
		CreatedAt:    start.UTC(),
	}
	if deliverErr != nil {
		logEntry.Message = deliverErr.Error()
	}
	if err := p.logs.Append(ctx, logEntry); err != nil {
		p.logger.Error("append delivery log", slog.String("entry_id", entry.ID), slog.Any("error", err))
	}
	p.metrics.ObserveDelivery(status)

	if delivered {
		if err := p.registry.TouchLastTriggered(ctx, sub.ID, start); err != nil {
			p.logger.Warn("touch last triggered", slog.String("webhook_id", sub.ID), slog.Any("error", err))
		}
		return p.queue.Remove(ctx, entry.ID)
	}
	if exhausted {
		p.logger.Warn("delivery exhausted",
			slog.String("webhook_id", sub.ID),
			slog.String("event", entry.Event),
			slog.Int("attempts", attempt))
		return p.queue.Remove(ctx, entry.ID)
	}
	next := p.now().Add(Backoff(attempt + 1))
	return p.queue.Retry(ctx, entry.ID, attempt, next)
}

// deliver performs one signed HTTP request. GET subscriptions receive the
// signature headers but no body.
func (p *Processor) deliver(ctx context.Context, sub Subscription, entry QueueEntry, attempt int) (int, string, error) {
	timestamp := p.now().Unix()
	var reqBody io.Reader
	if sub.Method != http.MethodGet {
		reqBody = strings.NewReader(string(entry.Payload))
	}
	req, err := http.NewRequestWithContext(ctx, sub.Method, sub.URL, reqBody)
	if err != nil {
		return 0, "", err
	}
	if sub.Method != http.MethodGet {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Event", entry.Event)
	req.Header.Set("X-Timestamp", strconv.FormatInt(timestamp, 10))
	req.Header.Set("X-Signature", Sign(sub.Secret, timestamp, entry.Payload))
	req.Header.Set("X-Attempt", strconv.Itoa(attempt))
	for name, value := range sub.Headers {
		req.Header.Set(name, value)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyCap))
	return resp.StatusCode, string(body), nil
}
