package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vn.io.arda/storefront-notifier/internal/domain"
)

func TestKV_GetSet(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.Set(ctx, "snapshot:u1", domain.OrderSnapshot{"1": "shipped"}))

	var got domain.OrderSnapshot
	require.NoError(t, s.Get(ctx, "snapshot:u1", &got))
	assert.Equal(t, domain.OrderSnapshot{"1": "shipped"}, got)
}

func TestKV_GetMissing(t *testing.T) {
	var v string
	err := New().Get(context.Background(), "nope", &v)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestKV_ValuesAreCopied(t *testing.T) {
	ctx := context.Background()
	s := New()

	snap := domain.OrderSnapshot{"1": "pending"}
	require.NoError(t, s.Set(ctx, "k", snap))
	snap["1"] = "mutated"

	var got domain.OrderSnapshot
	require.NoError(t, s.Get(ctx, "k", &got))
	assert.Equal(t, "pending", got["1"])
}

func TestKV_Delete(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Set(ctx, "k", 1))
	require.NoError(t, s.Delete(ctx, "k"))
	require.NoError(t, s.Delete(ctx, "k"))
	assert.Empty(t, s.Keys())
}

func TestKV_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = s.Set(ctx, "counter", n)
			var v int
			_ = s.Get(ctx, "counter", &v)
		}(i)
	}
	wg.Wait()
	assert.Len(t, s.Keys(), 1)
}

func TestKV_Update(t *testing.T) {
	ctx := context.Background()
	s := New()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Update(ctx, "count", func(load func(dest any) error) (any, error) {
				var n int
				if err := load(&n); err != nil && !errors.Is(err, domain.ErrNotFound) {
					return nil, err
				}
				return n + 1, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	var n int
	require.NoError(t, s.Get(ctx, "count", &n))
	assert.Equal(t, 20, n)
}

func TestKV_UpdateAbort(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Set(ctx, "k", "before"))

	errStop := errors.New("stop")
	err := s.Update(ctx, "k", func(func(dest any) error) (any, error) { return nil, errStop })
	assert.ErrorIs(t, err, errStop)

	var got string
	require.NoError(t, s.Get(ctx, "k", &got))
	assert.Equal(t, "before", got)
}
