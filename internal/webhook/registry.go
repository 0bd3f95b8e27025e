package webhook

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/rolewarden/rolewarden/internal/platform/httpx"
	"github.com/rolewarden/rolewarden/internal/platform/kv"
	"github.com/rolewarden/rolewarden/internal/shared"
)

const registryKey = "webhooks"

// SubscriptionInput is the caller-supplied portion of a subscription.
type SubscriptionInput struct {
	Name       string            `json:"name" validate:"required,max=120"`
	URL        string            `json:"url" validate:"required,url"`
	Secret     string            `json:"secret,omitempty"`
	Method     string            `json:"method,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	Events     []string          `json:"events" validate:"required,min=1"`
	MaxRetries int               `json:"max_retries,omitempty"`
	Enabled    *bool             `json:"enabled,omitempty"`
}

// Registry owns subscription CRUD and validation. With debug set, the
// SSRF guard and TLS verification are relaxed for local development.
type Registry struct {
	store    kv.Store
	validate *validator.Validate
	debug    bool
}

// NewRegistry constructs a Registry.
func NewRegistry(store kv.Store, debug bool) *Registry {
	return &Registry{store: store, validate: validator.New(), debug: debug}
}

func (r *Registry) sanitize(input *SubscriptionInput) error {
	if err := r.validate.Struct(input); err != nil {
		return fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	if err := ValidateTargetURL(input.URL, r.debug); err != nil {
		return err
	}
	switch strings.ToUpper(input.Method) {
	case "":
		input.Method = http.MethodPost
	case http.MethodPost, http.MethodGet:
		input.Method = strings.ToUpper(input.Method)
	default:
		return fmt.Errorf("%w: method must be GET or POST", httpx.ErrValidation)
	}
	for _, event := range input.Events {
		if !shared.KnownEvent(event) {
			return fmt.Errorf("%w: unknown event %q", httpx.ErrValidation, event)
		}
	}
	if input.MaxRetries == 0 {
		input.MaxRetries = 3
	}
	if input.MaxRetries < MinRetries {
		input.MaxRetries = MinRetries
	}
	if input.MaxRetries > MaxRetries {
		input.MaxRetries = MaxRetries
	}
	return nil
}

// Create registers a new subscription.
func (r *Registry) Create(ctx context.Context, input SubscriptionInput) (Subscription, error) {
	if err := r.sanitize(&input); err != nil {
		return Subscription{}, err
	}
	if input.Secret == "" {
		secret, err := generateSecret()
		if err != nil {
			return Subscription{}, err
		}
		input.Secret = secret
	}
	now := time.Now().UTC()
	enabled := true
	if input.Enabled != nil {
		enabled = *input.Enabled
	}
	sub := Subscription{
		ID:         uuid.NewString(),
		Name:       input.Name,
		URL:        input.URL,
		Secret:     input.Secret,
		Method:     input.Method,
		Headers:    input.Headers,
		Events:     input.Events,
		MaxRetries: input.MaxRetries,
		Enabled:    enabled,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err := r.update(ctx, func(subs map[string]Subscription) error {
		subs[sub.ID] = sub
		return nil
	})
	if err != nil {
		return Subscription{}, err
	}
	return sub, nil
}

// Update replaces the mutable fields of an existing subscription. An
// omitted secret keeps the current one.
func (r *Registry) Update(ctx context.Context, id string, input SubscriptionInput) (Subscription, error) {
	if err := r.sanitize(&input); err != nil {
		return Subscription{}, err
	}
	var updated Subscription
	err := r.update(ctx, func(subs map[string]Subscription) error {
		sub, ok := subs[id]
		if !ok {
			return fmt.Errorf("%w: webhook %s", httpx.ErrNotFound, id)
		}
		sub.Name = input.Name
		sub.URL = input.URL
		if input.Secret != "" {
			sub.Secret = input.Secret
		}
		sub.Method = input.Method
		sub.Headers = input.Headers
		sub.Events = input.Events
		sub.MaxRetries = input.MaxRetries
		if input.Enabled != nil {
			sub.Enabled = *input.Enabled
		}
		sub.UpdatedAt = time.Now().UTC()
		subs[id] = sub
		updated = sub
		return nil
	})
	if err != nil {
		return Subscription{}, err
	}
	return updated, nil
}

// Delete removes a subscription. Queue entries referencing it are dropped
// by the processor on their next claim.
func (r *Registry) Delete(ctx context.Context, id string) error {
	return r.update(ctx, func(subs map[string]Subscription) error {
		if _, ok := subs[id]; !ok {
			return fmt.Errorf("%w: webhook %s", httpx.ErrNotFound, id)
		}
		delete(subs, id)
		return nil
	})
}

// Get fetches one subscription.
func (r *Registry) Get(ctx context.Context, id string) (Subscription, error) {
	subs, err := r.load(ctx)
	if err != nil {
		return Subscription{}, err
	}
	sub, ok := subs[id]
	if !ok {
		return Subscription{}, fmt.Errorf("%w: webhook %s", httpx.ErrNotFound, id)
	}
	return sub, nil
}

// List returns all subscriptions.
func (r *Registry) List(ctx context.Context) ([]Subscription, error) {
	subs, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Subscription, 0, len(subs))
	for _, sub := range subs {
		out = append(out, sub)
	}
	return out, nil
}

// Subscribers returns the enabled subscriptions listening for event.
func (r *Registry) Subscribers(ctx context.Context, event string) ([]Subscription, error) {
	subs, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	var out []Subscription
	for _, sub := range subs {
		if sub.Enabled && sub.Subscribed(event) {
			out = append(out, sub)
		}
	}
	return out, nil
}

// TouchLastTriggered stamps the subscription's last-triggered time.
func (r *Registry) TouchLastTriggered(ctx context.Context, id string, at time.Time) error {
	return r.update(ctx, func(subs map[string]Subscription) error {
		sub, ok := subs[id]
		if !ok {
			return nil
		}
		at := at.UTC()
		sub.LastTriggeredAt = &at
		subs[id] = sub
		return nil
	})
}

func (r *Registry) load(ctx context.Context) (map[string]Subscription, error) {
	subs := make(map[string]Subscription)
	if _, err := r.store.Get(ctx, registryKey, &subs); err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *Registry) update(ctx context.Context, fn func(subs map[string]Subscription) error) error {
	return r.store.Update(ctx, registryKey, func(raw []byte) ([]byte, error) {
		subs := make(map[string]Subscription)
		if raw != nil {
			if err := json.Unmarshal(raw, &subs); err != nil {
				return nil, err
			}
		}
		if err := fn(subs); err != nil {
			return nil, err
		}
		return json.Marshal(subs)
	})
}

// ValidateTargetURL enforces the scheme allowlist and the SSRF guard:
// loopback, private, link-local, and unspecified addresses are rejected
// unless debug mode is active. Hostnames are classified literally; DNS is
// not resolved at validation time.
func ValidateTargetURL(raw string, debug bool) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: invalid url", httpx.ErrValidation)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%w: url scheme must be http or https", httpx.ErrValidation)
	}
	hostname := parsed.Hostname()
	if hostname == "" {
		return fmt.Errorf("%w: url host required", httpx.ErrValidation)
	}
	if debug {
		return nil
	}
	lower := strings.ToLower(hostname)
	if lower == "localhost" || strings.HasSuffix(lower, ".localhost") || strings.HasSuffix(lower, ".local") {
		return fmt.Errorf("%w: url host %s is not routable", httpx.ErrValidation, hostname)
	}
	if ip := net.ParseIP(hostname); ip != nil {
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
			ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
			return fmt.Errorf("%w: url host %s is in a reserved range", httpx.ErrValidation, hostname)
		}
	}
	return nil
}

// generateSecret returns a 128-bit random secret, hex encoded.
func generateSecret() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("webhook: generate secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
