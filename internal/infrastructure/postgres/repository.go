package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"vn.io.arda/storefront-notifier/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS client_state (
	key        TEXT PRIMARY KEY,
	value      JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const upsert = `
	INSERT INTO client_state (key, value, updated_at)
	VALUES ($1, $2, now())
	ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`

// Repository is the PostgreSQL implementation of domain.KV.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new postgres Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// EnsureSchema creates the client_state table when missing.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create client_state: %w", err)
	}
	return nil
}

// Get decodes the JSON value stored under key into dest.
func (r *Repository) Get(ctx context.Context, key string, dest any) error {
	var raw []byte
	err := r.pool.QueryRow(ctx,
		`SELECT value FROM client_state WHERE key = $1`, key,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("get %q: %w", key, domain.ErrNotFound)
		}
		return fmt.Errorf("select client_state: %w", err)
	}
	return json.Unmarshal(raw, dest)
}

// Set upserts the JSON encoding of value under key.
func (r *Repository) Set(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	_, err = r.pool.Exec(ctx, upsert, key, raw)
	if err != nil {
		return fmt.Errorf("upsert client_state: %w", err)
	}
	return nil
}

// Update runs fn inside a transaction holding an advisory lock on key, so
// concurrent writers of the same key are serialized even before the row exists.
func (r *Repository) Update(ctx context.Context, key string, fn domain.UpdateFunc) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin client_state tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
		return fmt.Errorf("lock client_state %q: %w", key, err)
	}

	var raw []byte
	readErr := tx.QueryRow(ctx, `SELECT value FROM client_state WHERE key = $1`, key).Scan(&raw)
	value, err := fn(func(dest any) error {
		if errors.Is(readErr, pgx.ErrNoRows) {
			return fmt.Errorf("get %q: %w", key, domain.ErrNotFound)
		}
		if readErr != nil {
			return fmt.Errorf("select client_state: %w", readErr)
		}
		return json.Unmarshal(raw, dest)
	})
	if err != nil {
		return err
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	if _, err := tx.Exec(ctx, upsert, key, encoded); err != nil {
		return fmt.Errorf("upsert client_state: %w", err)
	}
	return tx.Commit(ctx)
}

// Delete removes key.
func (r *Repository) Delete(ctx context.Context, key string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM client_state WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete client_state: %w", err)
	}
	return nil
}

// PurgeOlderThan deletes keys not written for the given number of days,
// e.g. snapshots of accounts that no longer sign in on this device.
// Keys starting with any of keepPrefixes survive regardless of age.
func (r *Repository) PurgeOlderThan(ctx context.Context, days int, keepPrefixes ...string) (int64, error) {
	patterns := make([]string, 0, len(keepPrefixes))
	for _, p := range keepPrefixes {
		patterns = append(patterns, likeEscaper.Replace(p)+"%")
	}
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM client_state
		WHERE updated_at < now() - make_interval(days => $1) AND NOT (key LIKE ANY($2))
	`, days, patterns)
	if err != nil {
		return 0, fmt.Errorf("purge client_state: %w", err)
	}
	return tag.RowsAffected(), nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
