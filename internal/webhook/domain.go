// Package webhook implements outgoing event delivery: subscription
// registry, event dispatch, the durable delivery queue with retry/backoff,
// and the permanent delivery log shared with the incoming command audit
// trail.
package webhook

import (
	"encoding/json"
	"time"
)

// Log directions.
const (
	DirectionOutgoing = "outgoing"
	DirectionIncoming = "incoming"
)

// Log statuses.
const (
	StatusSuccess  = "success"
	StatusFailed   = "failed"
	StatusRetrying = "retrying"
)

// Retry bounds for a subscription.
const (
	MinRetries = 1
	MaxRetries = 5
)

// responseBodyCap bounds how much of a response body the log keeps.
const responseBodyCap = 2000

// Subscription is a registered outgoing webhook endpoint.
type Subscription struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	URL             string            `json:"url"`
	Secret          string            `json:"secret"`
	Method          string            `json:"method"`
	Headers         map[string]string `json:"headers,omitempty"`
	Events          []string          `json:"events"`
	MaxRetries      int               `json:"max_retries"`
	Enabled         bool              `json:"enabled"`
	LastTriggeredAt *time.Time        `json:"last_triggered_at,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// Subscribed reports whether the subscription's filter includes event.
func (s Subscription) Subscribed(event string) bool {
	for _, e := range s.Events {
		if e == event {
			return true
		}
	}
	return false
}

// Payload is the body sent to subscribers.
type Payload struct {
	Event     string         `json:"event"`
	Timestamp string         `json:"timestamp"` // ISO-8601 UTC
	SiteURL   string         `json:"site_url"`
	Data      map[string]any `json:"data"`
}

// QueueEntry is one pending delivery of one event occurrence to one
// subscription. Entries leave the queue on terminal success or once
// retries are exhausted; the log is the permanent record.
type QueueEntry struct {
	ID            string          `json:"id"`
	WebhookID     string          `json:"webhook_id"`
	Event         string          `json:"event"`
	Payload       json.RawMessage `json:"payload"`
	Attempts      int             `json:"attempts"`
	NextAttemptAt time.Time       `json:"next_attempt_at"`
	ClaimedAt     *time.Time      `json:"claimed_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// LogEntry is one permanent record of an outgoing delivery attempt or an
// incoming command request.
type LogEntry struct {
	ID           string         `json:"id"`
	Direction    string         `json:"direction"`
	WebhookID    string         `json:"webhook_id,omitempty"`
	Event        string         `json:"event,omitempty"`
	Action       string         `json:"action,omitempty"`
	URL          string         `json:"url,omitempty"`
	Method       string         `json:"method,omitempty"`
	RemoteAddr   string         `json:"remote_addr,omitempty"`
	Attempt      int            `json:"attempt,omitempty"`
	StatusCode   int            `json:"status_code,omitempty"`
	ResponseBody string         `json:"response_body,omitempty"`
	Status       string         `json:"status"`
	Message      string         `json:"message,omitempty"`
	Params       map[string]any `json:"params,omitempty"`
	DurationMS   int64          `json:"duration_ms"`
	CreatedAt    time.Time      `json:"created_at"`
}

// backoffTable gives the delay before the nth delivery attempt.
var backoffTable = []time.Duration{
	0,                // attempt 1: immediate
	1 * time.Minute,  // attempt 2
	5 * time.Minute,  // attempt 3
	15 * time.Minute, // attempt 4
	1 * time.Hour,    // attempt 5
}

// Backoff returns the delay before delivery attempt n (1-based). Attempts
// past the table reuse the final delay.
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	if attempt > len(backoffTable) {
		return backoffTable[len(backoffTable)-1]
	}
	return backoffTable[attempt-1]
}

func truncateBody(body string) string {
	if len(body) > responseBodyCap {
		return body[:responseBodyCap]
	}
	return body
}
