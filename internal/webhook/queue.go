package webhook

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/rolewarden/rolewarden/internal/platform/kv"
)

const queueKey = "webhook:queue"

// claimExpiry is how long a claimed entry stays invisible before it is
// considered abandoned and becomes claimable again.
const claimExpiry = 5 * time.Minute

// Queue is the durable delivery queue. Entries survive restarts via the
// backing store; claiming marks an entry so overlapping processor runs do
// not deliver it twice.
type Queue struct {
	store kv.Store
}

// NewQueue constructs a Queue.
func NewQueue(store kv.Store) *Queue {
	return &Queue{store: store}
}

// Enqueue adds a pending delivery, due immediately.
func (q *Queue) Enqueue(ctx context.Context, webhookID, event string, payload []byte, now time.Time) (QueueEntry, error) {
	entry := QueueEntry{
		ID:            uuid.NewString(),
		WebhookID:     webhookID,
		Event:         event,
		Payload:       json.RawMessage(payload),
		Attempts:      0,
		NextAttemptAt: now.UTC(),
		CreatedAt:     now.UTC(),
	}
	err := q.update(ctx, func(entries map[string]QueueEntry) error {
		entries[entry.ID] = entry
		return nil
	})
	if err != nil {
		return QueueEntry{}, err
	}
	return entry, nil
}

// ClaimDue claims up to limit entries whose next attempt is due, oldest
// due time first. Claimed entries are skipped until their claim expires.
func (q *Queue) ClaimDue(ctx context.Context, now time.Time, limit int) ([]QueueEntry, error) {
	now = now.UTC()
	var claimed []QueueEntry
	err := q.update(ctx, func(entries map[string]QueueEntry) error {
		var due []QueueEntry
		for _, entry := range entries {
			if entry.NextAttemptAt.After(now) {
				continue
			}
			if entry.ClaimedAt != nil && now.Sub(*entry.ClaimedAt) < claimExpiry {
				continue
			}
			due = append(due, entry)
		}
		sort.Slice(due, func(i, j int) bool {
			return due[i].NextAttemptAt.Before(due[j].NextAttemptAt)
		})
		if limit > 0 && len(due) > limit {
			due = due[:limit]
		}
		for _, entry := range due {
			at := now
			entry.ClaimedAt = &at
			entries[entry.ID] = entry
			claimed = append(claimed, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// Remove drops an entry, either delivered or exhausted.
func (q *Queue) Remove(ctx context.Context, id string) error {
	return q.update(ctx, func(entries map[string]QueueEntry) error {
		delete(entries, id)
		return nil
	})
}

// Retry releases a claimed entry back into the queue with its attempt
// count and next due time updated.
func (q *Queue) Retry(ctx context.Context, id string, attempts int, nextAttemptAt time.Time) error {
	return q.update(ctx, func(entries map[string]QueueEntry) error {
		entry, ok := entries[id]
		if !ok {
			return nil
		}
		entry.Attempts = attempts
		entry.NextAttemptAt = nextAttemptAt.UTC()
		entry.ClaimedAt = nil
		entries[id] = entry
		return nil
	})
}

// Depth reports how many deliveries are pending.
func (q *Queue) Depth(ctx context.Context) (int, error) {
	entries := make(map[string]QueueEntry)
	if _, err := q.store.Get(ctx, queueKey, &entries); err != nil {
		return 0, err
	}
	return len(entries), nil
}

// Pending lists all queued deliveries, soonest due first.
func (q *Queue) Pending(ctx context.Context) ([]QueueEntry, error) {
	entries := make(map[string]QueueEntry)
	if _, err := q.store.Get(ctx, queueKey, &entries); err != nil {
		return nil, err
	}
	out := make([]QueueEntry, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].NextAttemptAt.Before(out[j].NextAttemptAt)
	})
	return out, nil
}

func (q *Queue) update(ctx context.Context, fn func(entries map[string]QueueEntry) error) error {
	return q.store.Update(ctx, queueKey, func(raw []byte) ([]byte, error) {
		entries := make(map[string]QueueEntry)
		if raw != nil {
			if err := json.Unmarshal(raw, &entries); err != nil {
				return nil, err
			}
		}
		if err := fn(entries); err != nil {
			return nil, err
		}
		return json.Marshal(entries)
	})
}
