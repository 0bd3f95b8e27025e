package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rolewarden/rolewarden/internal/platform/db"
)

const uniqueViolation = "23505"

// Postgres stores options in the app_options table (key text primary key,
// value jsonb, updated_at timestamptz).
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres constructs a Postgres-backed store.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// EnsureSchema creates the app_options table when missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS app_options (
			key        text PRIMARY KEY,
			value      jsonb NOT NULL,
			updated_at timestamptz NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("kv: ensure schema: %w", err)
	}
	return nil
}

// Get implements Store.
func (p *Postgres) Get(ctx context.Context, key string, dest any) (bool, error) {
	var raw []byte
	err := p.pool.QueryRow(ctx, `SELECT value FROM app_options WHERE key = $1`, key).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("kv: get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("kv: decode %s: %w", key, err)
	}
	return true, nil
}

// Put implements Store.
func (p *Postgres) Put(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("kv: encode %s: %w", key, err)
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO app_options (key, value, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
		key, raw)
	if err != nil {
		return fmt.Errorf("kv: put %s: %w", key, err)
	}
	return nil
}

// Insert implements Store.
func (p *Postgres) Insert(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("kv: encode %s: %w", key, err)
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO app_options (key, value, updated_at) VALUES ($1, $2, NOW())`, key, raw)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrKeyExists
		}
		return fmt.Errorf("kv: insert %s: %w", key, err)
	}
	return nil
}

// Delete implements Store.
func (p *Postgres) Delete(ctx context.Context, key string) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM app_options WHERE key = $1`, key); err != nil {
		return fmt.Errorf("kv: delete %s: %w", key, err)
	}
	return nil
}

// Update implements Store. A per-key advisory lock serializes concurrent
// read-modify-write cycles; row locks alone would not cover keys that have
// no row yet, letting two first writes race and one overwrite the other.
func (p *Postgres) Update(ctx context.Context, key string, fn func(raw []byte) ([]byte, error)) error {
	return db.WithTx(ctx, p.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
			return fmt.Errorf("kv: lock %s: %w", key, err)
		}
		var current []byte
		err := tx.QueryRow(ctx, `SELECT value FROM app_options WHERE key = $1`, key).Scan(&current)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("kv: claim %s: %w", key, err)
		}
		next, err := fn(current)
		if err != nil {
			return err
		}
		if next == nil {
			_, err = tx.Exec(ctx, `DELETE FROM app_options WHERE key = $1`, key)
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO app_options (key, value, updated_at) VALUES ($1, $2, NOW())
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
			key, next)
		return err
	})
}
