package webhook

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/rolewarden/rolewarden/internal/platform/kv"
)

const logKey = "webhook:log"

// LogStore is the permanent delivery/command log. Entries are appended
// newest-last and trimmed to a retention cap.
type LogStore struct {
	store     kv.Store
	retention int
}

// NewLogStore constructs a LogStore. retention <= 0 disables trimming.
func NewLogStore(store kv.Store, retention int) *LogStore {
	return &LogStore{store: store, retention: retention}
}

// Append records one entry, filling in ID and timestamp when unset.
func (l *LogStore) Append(ctx context.Context, entry LogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	entry.ResponseBody = truncateBody(entry.ResponseBody)
	return l.store.Update(ctx, logKey, func(raw []byte) ([]byte, error) {
		var entries []LogEntry
		if raw != nil {
			if err := json.Unmarshal(raw, &entries); err != nil {
				return nil, err
			}
		}
		entries = append(entries, entry)
		if l.retention > 0 && len(entries) > l.retention {
			entries = entries[len(entries)-l.retention:]
		}
		return json.Marshal(entries)
	})
}

// List returns log entries newest first, optionally filtered by direction
// and capped at limit.
func (l *LogStore) List(ctx context.Context, direction string, limit int) ([]LogEntry, error) {
	var entries []LogEntry
	if _, err := l.store.Get(ctx, logKey, &entries); err != nil {
		return nil, err
	}
	out := make([]LogEntry, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		if direction != "" && entries[i].Direction != direction {
			continue
		}
		out = append(out, entries[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
