package postgres_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vn.io.arda/storefront-notifier/internal/domain"
	"vn.io.arda/storefront-notifier/internal/infrastructure/postgres"
)

// connect skips unless a real server is given: DATABASE_URL=postgres://... go test ./...
func connect(t *testing.T) (*pgxpool.Pool, *postgres.Repository) {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	pool, err := pgxpool.New(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	repo := postgres.New(pool)
	require.NoError(t, repo.EnsureSchema(context.Background()))
	return pool, repo
}

func TestRepository_KV(t *testing.T) {
	ctx := context.Background()
	_, repo := connect(t)

	key := "test:" + uuid.NewString()
	t.Cleanup(func() { _ = repo.Delete(context.Background(), key) })

	require.NoError(t, repo.Set(ctx, key, domain.OrderSnapshot{"1": "pending"}))
	require.NoError(t, repo.Set(ctx, key, domain.OrderSnapshot{"1": "shipped"}))

	var got domain.OrderSnapshot
	require.NoError(t, repo.Get(ctx, key, &got))
	assert.Equal(t, domain.OrderSnapshot{"1": "shipped"}, got)

	// Fresh rows survive a purge.
	_, err := repo.PurgeOlderThan(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, repo.Get(ctx, key, &got))

	require.NoError(t, repo.Delete(ctx, key))
	assert.ErrorIs(t, repo.Get(ctx, key, &got), domain.ErrNotFound)
}

func TestRepository_PurgeKeepsPrefixes(t *testing.T) {
	ctx := context.Background()
	pool, repo := connect(t)

	run := uuid.NewString()
	kept := "push_token:" + run
	stale := "order_snapshot:" + run
	for _, k := range []string{kept, stale} {
		require.NoError(t, repo.Set(ctx, k, "v"))
		t.Cleanup(func() { _ = repo.Delete(context.Background(), k) })
		_, err := pool.Exec(ctx, `UPDATE client_state SET updated_at = now() - interval '90 days' WHERE key = $1`, k)
		require.NoError(t, err)
	}

	_, err := repo.PurgeOlderThan(ctx, 30, "push_token:", "last_seen:")
	require.NoError(t, err)

	var v string
	assert.NoError(t, repo.Get(ctx, kept, &v))
	assert.ErrorIs(t, repo.Get(ctx, stale, &v), domain.ErrNotFound)
}

func TestRepository_UpdateSerializesWriters(t *testing.T) {
	ctx := context.Background()
	_, repo := connect(t)

	key := "counter:" + uuid.NewString()
	t.Cleanup(func() { _ = repo.Delete(context.Background(), key) })

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, repo.Update(ctx, key, func(load func(any) error) (any, error) {
				var n int
				if err := load(&n); err != nil && !errors.Is(err, domain.ErrNotFound) {
					return nil, err
				}
				return n + 1, nil
			}))
		}()
	}
	wg.Wait()

	var n int
	require.NoError(t, repo.Get(ctx, key, &n))
	assert.Equal(t, 10, n)
}
