package kv

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryGetPutDelete(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	var out map[string]int
	ok, err := store.Get(ctx, "missing", &out)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.Put(ctx, "counts", map[string]int{"a": 1}))
	ok, err = store.Get(ctx, "counts", &out)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, out["a"])

	require.NoError(t, store.Delete(ctx, "counts"))
	ok, err = store.Get(ctx, "counts", &out)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryInsertRefusesExistingKey(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, "k", "v1"))
	err := store.Insert(ctx, "k", "v2")
	require.ErrorIs(t, err, ErrKeyExists)

	var v string
	_, err = store.Get(ctx, "k", &v)
	require.NoError(t, err)
	require.Equal(t, "v1", v)
}

func TestMemoryUpdateReadModifyWrite(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	// fn sees nil for an absent key.
	err := store.Update(ctx, "list", func(raw []byte) ([]byte, error) {
		require.Nil(t, raw)
		return json.Marshal([]string{"a"})
	})
	require.NoError(t, err)

	err = store.Update(ctx, "list", func(raw []byte) ([]byte, error) {
		var list []string
		require.NoError(t, json.Unmarshal(raw, &list))
		return json.Marshal(append(list, "b"))
	})
	require.NoError(t, err)

	var list []string
	_, err = store.Get(ctx, "list", &list)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, list)

	// Returning nil deletes the key; an fn error leaves it untouched.
	require.NoError(t, store.Update(ctx, "list", func([]byte) ([]byte, error) { return nil, nil }))
	ok, err := store.Get(ctx, "list", &list)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.Put(ctx, "keep", "v"))
	boom := errors.New("boom")
	err = store.Update(ctx, "keep", func([]byte) ([]byte, error) { return nil, boom })
	require.ErrorIs(t, err, boom)
	var v string
	ok, err = store.Get(ctx, "keep", &v)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v", v)
}
