package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rolewarden/rolewarden/internal/platform/kv"
	"github.com/rolewarden/rolewarden/internal/shared"
)

type processorFixture struct {
	registry  *Registry
	queue     *Queue
	logs      *LogStore
	processor *Processor
	clock     *fakeClock
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newProcessorFixture(t *testing.T) *processorFixture {
	t.Helper()
	mem := kv.NewMemory()
	clock := &fakeClock{now: time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)}
	registry := NewRegistry(mem, true)
	queue := NewQueue(mem)
	logs := NewLogStore(mem, 0)
	processor := NewProcessor(registry, queue, logs, nil, 10, true, nil)
	processor.now = clock.Now
	return &processorFixture{
		registry:  registry,
		queue:     queue,
		logs:      logs,
		processor: processor,
		clock:     clock,
	}
}

func (f *processorFixture) subscribe(t *testing.T, url string, maxRetries int) Subscription {
	t.Helper()
	sub, err := f.registry.Create(context.Background(), SubscriptionInput{
		Name:       "test",
		URL:        url,
		Secret:     "topsecret",
		Events:     []string{shared.EventRoleCreated},
		MaxRetries: maxRetries,
	})
	require.NoError(t, err)
	return sub
}

func TestProcessTickDeliversAndSigns(t *testing.T) {
	fixture := newProcessorFixture(t)
	ctx := context.Background()

	type seen struct {
		event     string
		signature string
		timestamp string
		attempt   string
		body      []byte
	}
	var got seen
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got = seen{
			event:     r.Header.Get("X-Event"),
			signature: r.Header.Get("X-Signature"),
			timestamp: r.Header.Get("X-Timestamp"),
			attempt:   r.Header.Get("X-Attempt"),
			body:      body,
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sub := fixture.subscribe(t, server.URL, 3)
	payload, _ := json.Marshal(Payload{Event: shared.EventRoleCreated, Data: map[string]any{"role": "ops"}})
	_, err := fixture.queue.Enqueue(ctx, sub.ID, shared.EventRoleCreated, payload, fixture.clock.Now())
	require.NoError(t, err)

	handled, err := fixture.processor.ProcessTick(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, handled)

	require.Equal(t, shared.EventRoleCreated, got.event)
	require.Equal(t, "1", got.attempt)
	ts, err := strconv.ParseInt(got.timestamp, 10, 64)
	require.NoError(t, err)
	require.True(t, Verify("topsecret", ts, got.body, got.signature))

	depth, err := fixture.queue.Depth(ctx)
	require.NoError(t, err)
	require.Zero(t, depth)

	entries, err := fixture.logs.List(ctx, DirectionOutgoing, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, StatusSuccess, entries[0].Status)
	require.Equal(t, http.StatusOK, entries[0].StatusCode)

	updated, err := fixture.registry.Get(ctx, sub.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.LastTriggeredAt)
}

func TestProcessTickExhaustsRetriesWithBackoff(t *testing.T) {
	fixture := newProcessorFixture(t)
	ctx := context.Background()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	sub := fixture.subscribe(t, server.URL, 3)
	_, err := fixture.queue.Enqueue(ctx, sub.ID, shared.EventRoleCreated, []byte(`{}`), fixture.clock.Now())
	require.NoError(t, err)

	// Attempt 1 fails; entry requeued one minute out.
	handled, err := fixture.processor.ProcessTick(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, handled)

	pending, err := fixture.queue.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, 1, pending[0].Attempts)
	require.Equal(t, fixture.clock.Now().Add(time.Minute), pending[0].NextAttemptAt)

	// Not due yet: an immediate tick does nothing.
	handled, err = fixture.processor.ProcessTick(ctx)
	require.NoError(t, err)
	require.Zero(t, handled)

	// Attempt 2 fails; requeued five minutes out.
	fixture.clock.Advance(time.Minute)
	_, err = fixture.processor.ProcessTick(ctx)
	require.NoError(t, err)
	pending, err = fixture.queue.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, 2, pending[0].Attempts)
	require.Equal(t, fixture.clock.Now().Add(5*time.Minute), pending[0].NextAttemptAt)

	// Attempt 3 fails; retries exhausted, entry dropped.
	fixture.clock.Advance(5 * time.Minute)
	_, err = fixture.processor.ProcessTick(ctx)
	require.NoError(t, err)
	depth, err := fixture.queue.Depth(ctx)
	require.NoError(t, err)
	require.Zero(t, depth)

	entries, err := fixture.logs.List(ctx, DirectionOutgoing, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	// Newest first: final failure, then two retrying attempts.
	require.Equal(t, StatusFailed, entries[0].Status)
	require.Equal(t, StatusRetrying, entries[1].Status)
	require.Equal(t, StatusRetrying, entries[2].Status)
}

func TestProcessTickDropsEntriesForRemovedOrDisabledHooks(t *testing.T) {
	fixture := newProcessorFixture(t)
	ctx := context.Background()

	sub := fixture.subscribe(t, "http://203.0.113.10/hook", 3)
	_, err := fixture.queue.Enqueue(ctx, sub.ID, shared.EventRoleCreated, []byte(`{}`), fixture.clock.Now())
	require.NoError(t, err)
	require.NoError(t, fixture.registry.Delete(ctx, sub.ID))

	_, err = fixture.processor.ProcessTick(ctx)
	require.NoError(t, err)
	depth, err := fixture.queue.Depth(ctx)
	require.NoError(t, err)
	require.Zero(t, depth)

	// Disabled subscriptions drain the same way, without delivery.
	disabled := false
	sub2, err := fixture.registry.Create(ctx, SubscriptionInput{
		Name:    "off",
		URL:     "http://203.0.113.10/hook",
		Secret:  "s",
		Events:  []string{shared.EventRoleCreated},
		Enabled: &disabled,
	})
	require.NoError(t, err)
	_, err = fixture.queue.Enqueue(ctx, sub2.ID, shared.EventRoleCreated, []byte(`{}`), fixture.clock.Now())
	require.NoError(t, err)

	_, err = fixture.processor.ProcessTick(ctx)
	require.NoError(t, err)
	depth, err = fixture.queue.Depth(ctx)
	require.NoError(t, err)
	require.Zero(t, depth)

	entries, err := fixture.logs.List(ctx, "", 0)
	require.NoError(t, err)
	require.Empty(t, entries)
}
