package webhook

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rolewarden/rolewarden/internal/platform/kv"
)

func TestClaimDueRespectsDueTimeAndLimit(t *testing.T) {
	queue := NewQueue(kv.NewMemory())
	ctx := context.Background()
	base := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	for i := range 3 {
		_, err := queue.Enqueue(ctx, "hook-1", "role:created", []byte(`{}`), base.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
	}
	late, err := queue.Enqueue(ctx, "hook-1", "role:created", []byte(`{}`), base)
	require.NoError(t, err)
	require.NoError(t, queue.Retry(ctx, late.ID, 1, base.Add(time.Hour)))

	claimed, err := queue.ClaimDue(ctx, base.Add(5*time.Second), 2)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	// Oldest due first.
	require.True(t, !claimed[0].NextAttemptAt.After(claimed[1].NextAttemptAt))

	// Claimed entries are invisible to an overlapping run.
	again, err := queue.ClaimDue(ctx, base.Add(5*time.Second), 10)
	require.NoError(t, err)
	require.Len(t, again, 1)

	// The hour-delayed entry is not due yet.
	depth, err := queue.Depth(ctx)
	require.NoError(t, err)
	require.Equal(t, 4, depth)
}

func TestClaimExpiresAndEntryBecomesClaimable(t *testing.T) {
	queue := NewQueue(kv.NewMemory())
	ctx := context.Background()
	base := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	entry, err := queue.Enqueue(ctx, "hook-1", "role:created", []byte(`{}`), base)
	require.NoError(t, err)

	claimed, err := queue.ClaimDue(ctx, base, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	// Before expiry nothing is claimable; after, the entry returns.
	none, err := queue.ClaimDue(ctx, base.Add(time.Minute), 10)
	require.NoError(t, err)
	require.Empty(t, none)

	reclaimed, err := queue.ClaimDue(ctx, base.Add(6*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, reclaimed, 1)
	require.Equal(t, entry.ID, reclaimed[0].ID)
}

func TestRetryReleasesClaimAndBumpsAttempts(t *testing.T) {
	queue := NewQueue(kv.NewMemory())
	ctx := context.Background()
	base := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	entry, err := queue.Enqueue(ctx, "hook-1", "role:created", []byte(`{}`), base)
	require.NoError(t, err)
	_, err = queue.ClaimDue(ctx, base, 10)
	require.NoError(t, err)

	next := base.Add(time.Minute)
	require.NoError(t, queue.Retry(ctx, entry.ID, 1, next))

	pending, err := queue.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, 1, pending[0].Attempts)
	require.Nil(t, pending[0].ClaimedAt)
	require.Equal(t, next, pending[0].NextAttemptAt)

	claimed, err := queue.ClaimDue(ctx, next, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	require.NoError(t, queue.Remove(ctx, entry.ID))
	depth, err := queue.Depth(ctx)
	require.NoError(t, err)
	require.Zero(t, depth)
}
