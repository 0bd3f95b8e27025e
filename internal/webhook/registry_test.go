package webhook

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rolewarden/rolewarden/internal/platform/httpx"
	"github.com/rolewarden/rolewarden/internal/platform/kv"
	"github.com/rolewarden/rolewarden/internal/shared"
)

func validInput() SubscriptionInput {
	return SubscriptionInput{
		Name:   "ci",
		URL:    "https://hooks.example.com/rolewarden",
		Events: []string{shared.EventRoleCreated},
	}
}

func TestCreateFillsDefaults(t *testing.T) {
	registry := NewRegistry(kv.NewMemory(), false)
	ctx := context.Background()

	sub, err := registry.Create(ctx, validInput())
	require.NoError(t, err)
	require.NotEmpty(t, sub.ID)
	require.Equal(t, "POST", sub.Method)
	require.Equal(t, 3, sub.MaxRetries)
	require.True(t, sub.Enabled)
	require.Len(t, sub.Secret, 32) // 16 random bytes, hex encoded

	got, err := registry.Get(ctx, sub.ID)
	require.NoError(t, err)
	require.Equal(t, sub.Secret, got.Secret)
}

func TestCreateValidation(t *testing.T) {
	registry := NewRegistry(kv.NewMemory(), false)
	ctx := context.Background()

	input := validInput()
	input.Events = []string{"role:exploded"}
	_, err := registry.Create(ctx, input)
	require.ErrorIs(t, err, httpx.ErrValidation)

	input = validInput()
	input.Method = "DELETE"
	_, err = registry.Create(ctx, input)
	require.ErrorIs(t, err, httpx.ErrValidation)

	input = validInput()
	input.URL = "ftp://example.com/hook"
	_, err = registry.Create(ctx, input)
	require.ErrorIs(t, err, httpx.ErrValidation)

	input = validInput()
	input.Events = nil
	_, err = registry.Create(ctx, input)
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestRetriesClampedToBounds(t *testing.T) {
	registry := NewRegistry(kv.NewMemory(), false)
	ctx := context.Background()

	input := validInput()
	input.MaxRetries = 99
	sub, err := registry.Create(ctx, input)
	require.NoError(t, err)
	require.Equal(t, MaxRetries, sub.MaxRetries)

	input = validInput()
	input.MaxRetries = -2
	sub, err = registry.Create(ctx, input)
	require.NoError(t, err)
	require.Equal(t, MinRetries, sub.MaxRetries)
}

func TestValidateTargetURLBlocksInternalHosts(t *testing.T) {
	blocked := []string{
		"http://localhost/hook",
		"http://api.localhost/hook",
		"http://printer.local/hook",
		"http://127.0.0.1:9000/hook",
		"http://10.0.0.8/hook",
		"http://192.168.1.1/hook",
		"http://169.254.1.1/hook",
		"http://0.0.0.0/hook",
		"http://[::1]/hook",
	}
	for _, raw := range blocked {
		require.ErrorIs(t, ValidateTargetURL(raw, false), httpx.ErrValidation, raw)
	}

	require.NoError(t, ValidateTargetURL("https://hooks.example.com/x", false))
	require.NoError(t, ValidateTargetURL("http://203.0.113.10/x", false))

	// Debug mode lifts the guard for local development.
	require.NoError(t, ValidateTargetURL("http://127.0.0.1:9000/hook", true))
}

func TestSubscribersFiltersByEventAndEnabled(t *testing.T) {
	registry := NewRegistry(kv.NewMemory(), false)
	ctx := context.Background()

	input := validInput()
	sub1, err := registry.Create(ctx, input)
	require.NoError(t, err)

	input = validInput()
	input.Events = []string{shared.EventRoleDeleted}
	_, err = registry.Create(ctx, input)
	require.NoError(t, err)

	input = validInput()
	disabled := false
	input.Enabled = &disabled
	_, err = registry.Create(ctx, input)
	require.NoError(t, err)

	subs, err := registry.Subscribers(ctx, shared.EventRoleCreated)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	require.Equal(t, sub1.ID, subs[0].ID)
}

func TestUpdateAndDelete(t *testing.T) {
	registry := NewRegistry(kv.NewMemory(), false)
	ctx := context.Background()

	sub, err := registry.Create(ctx, validInput())
	require.NoError(t, err)

	input := validInput()
	input.Name = "renamed"
	input.Secret = sub.Secret
	updated, err := registry.Update(ctx, sub.ID, input)
	require.NoError(t, err)
	require.Equal(t, "renamed", updated.Name)

	// Omitting the secret keeps the current one; supplying one rotates it.
	input = validInput()
	updated, err = registry.Update(ctx, sub.ID, input)
	require.NoError(t, err)
	require.Equal(t, sub.Secret, updated.Secret)

	input = validInput()
	input.Secret = "rotated"
	updated, err = registry.Update(ctx, sub.ID, input)
	require.NoError(t, err)
	require.Equal(t, "rotated", updated.Secret)

	_, err = registry.Update(ctx, "missing", validInput())
	require.ErrorIs(t, err, httpx.ErrNotFound)

	require.NoError(t, registry.Delete(ctx, sub.ID))
	require.ErrorIs(t, registry.Delete(ctx, sub.ID), httpx.ErrNotFound)
}
