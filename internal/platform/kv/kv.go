// Package kv provides the persisted option store backing all durable
// Rolewarden state. Core logic is storage-agnostic behind Store so it can
// run against Postgres in production and an in-memory map in tests.
package kv

import (
	"context"
	"errors"
)

// ErrKeyExists is returned by Insert when the key is already present.
var ErrKeyExists = errors.New("kv: key exists")

// Store persists JSON-encoded values under string keys.
type Store interface {
	// Get decodes the value at key into dest. The boolean reports whether
	// the key was present.
	Get(ctx context.Context, key string, dest any) (bool, error)
	// Put stores value at key, overwriting any previous value.
	Put(ctx context.Context, key string, value any) error
	// Insert stores value at key only if the key is absent.
	Insert(ctx context.Context, key string, value any) error
	// Delete removes the key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// Update applies fn to the raw value at key under an exclusive claim on
	// that key. fn receives nil when the key is absent; returning nil
	// deletes the key. Concurrent writers observe serialized updates.
	Update(ctx context.Context, key string, fn func(raw []byte) ([]byte, error)) error
}
