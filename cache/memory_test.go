package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-core-fx/tiercachefx/cache"
)

// storeContract runs the behavior every Cache implementation must share.
func storeContract(t *testing.T, newStore func(t *testing.T) cache.Cache) {
	t.Helper()

	ctx := context.Background()

	t.Run("set and get", func(t *testing.T) {
		store := newStore(t)

		require.NoError(t, store.Set(ctx, "SomeKey", []byte("value")))

		got, err := store.Get(ctx, "SomeKey")
		require.NoError(t, err)
		assert.Equal(t, []byte("value"), got)

		ok, err := store.Has(ctx, "SomeKey")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("missing key", func(t *testing.T) {
		store := newStore(t)

		_, err := store.Get(ctx, "missing")
		require.ErrorIs(t, err, cache.ErrKeyNotFound)

		ok, err := store.Has(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("overwrite", func(t *testing.T) {
		store := newStore(t)

		require.NoError(t, store.Set(ctx, "k", []byte("v1")))
		require.NoError(t, store.Set(ctx, "k", []byte("v2")))

		got, err := store.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("v2"), got)
	})

	t.Run("delete", func(t *testing.T) {
		store := newStore(t)

		require.NoError(t, store.Set(ctx, "k", []byte("v")))
		require.NoError(t, store.Delete(ctx, "k"))
		require.NoError(t, store.Delete(ctx, "never-set"))

		_, err := store.Get(ctx, "k")
		require.ErrorIs(t, err, cache.ErrKeyNotFound)
	})

	t.Run("keys are sorted", func(t *testing.T) {
		store := newStore(t)

		for _, k := range []string{"b", "c", "a"} {
			require.NoError(t, store.Set(ctx, k, []byte(k)))
		}

		keys, err := store.Keys(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, keys)
	})

	t.Run("isolated items are hidden from other owners", func(t *testing.T) {
		store := newStore(t)

		require.NoError(t, store.Set(ctx, "secret", []byte("s"),
			cache.WithOwner("billing"), cache.WithVisibility(cache.VisibilityIsolated)))
		require.NoError(t, store.Set(ctx, "public", []byte("p"), cache.WithOwner("billing")))

		_, err := store.Get(ctx, "secret", cache.WithOwner("reports"))
		require.ErrorIs(t, err, cache.ErrKeyNotFound)

		got, err := store.Get(ctx, "secret", cache.WithOwner("billing"))
		require.NoError(t, err)
		assert.Equal(t, []byte("s"), got)

		keys, err := store.Keys(ctx, cache.WithOwner("reports"))
		require.NoError(t, err)
		assert.Equal(t, []string{"public"}, keys)
	})

	t.Run("immutable items are protected from other owners", func(t *testing.T) {
		store := newStore(t)

		require.NoError(t, store.Set(ctx, "k", []byte("v"),
			cache.WithOwner("billing"), cache.WithImmutable(true)))

		require.ErrorIs(t, store.Set(ctx, "k", []byte("other"), cache.WithOwner("reports")), cache.ErrImmutable)
		require.ErrorIs(t, store.Delete(ctx, "k", cache.WithOwner("reports")), cache.ErrImmutable)

		got, err := store.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("v"), got)

		require.NoError(t, store.Set(ctx, "k", []byte("mine"), cache.WithOwner("billing")))
		require.NoError(t, store.Delete(ctx, "k", cache.WithOwner("billing")))
	})

	t.Run("ping", func(t *testing.T) {
		store := newStore(t)
		assert.NoError(t, store.Ping(ctx))
	})
}

func TestMemoryCache_Contract(t *testing.T) {
	storeContract(t, func(_ *testing.T) cache.Cache {
		return cache.NewMemory(0)
	})
}

func TestMemoryCache_Expiration(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemory(0)

	require.NoError(t, store.Set(ctx, "short", []byte("v"), cache.WithTTL(-time.Second)))
	require.NoError(t, store.Set(ctx, "long", []byte("v"), cache.WithTTL(time.Hour)))

	_, err := store.Get(ctx, "short")
	require.ErrorIs(t, err, cache.ErrKeyExpired)

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"long"}, keys)

	require.NoError(t, store.Cleanup(ctx))

	_, err = store.Get(ctx, "short")
	require.ErrorIs(t, err, cache.ErrKeyNotFound)
}

func TestMemoryCache_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemory(0)

	value := []byte("abc")
	require.NoError(t, store.Set(ctx, "k", value))
	value[0] = 'z'

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	got[1] = 'z'

	again, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), again)
}

func TestMemoryCache_Closed(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemory(0)

	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	require.ErrorIs(t, store.Ping(ctx), cache.ErrCacheClosed)
	require.ErrorIs(t, store.Set(ctx, "k", nil), cache.ErrCacheClosed)

	_, err := store.Get(ctx, "k")
	require.ErrorIs(t, err, cache.ErrCacheClosed)
}

func TestParseVisibility(t *testing.T) {
	tests := []struct {
		in      string
		want    cache.Visibility
		wantErr bool
	}{
		{in: "", want: cache.VisibilityShared},
		{in: "shared", want: cache.VisibilityShared},
		{in: "ISOLATED", want: cache.VisibilityIsolated},
		{in: "namespace", want: cache.VisibilityIsolated},
		{in: "public", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := cache.ParseVisibility(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, cache.ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
