package memory

import (
	"context"
	"testing"
	"time"

	"github.com/postpulse/postpulse-backend/pkg/kv"
	"github.com/postpulse/postpulse-backend/pkg/kv/kvtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	kvtest.RunConformanceTests(t, func(t *testing.T) kv.Store {
		return New(0)
	})
}

func TestJanitorEvictsExpiredKeys(t *testing.T) {
	store := New(10 * time.Millisecond)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "short", []byte("x"), 20*time.Millisecond))
	require.NoError(t, store.Set(ctx, "long", []byte("y"), 0))
	assert.Equal(t, 2, store.Len())

	assert.Eventually(t, func() bool { return store.Len() == 1 }, time.Second, 10*time.Millisecond)

	_, err := store.Get(ctx, "short")
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func TestValuesAreCopied(t *testing.T) {
	store := New(0)
	ctx := context.Background()

	value := []byte("abc")
	require.NoError(t, store.Set(ctx, "k", value, 0))
	value[0] = 'z'

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))

	got[1] = 'z'
	again, _ := store.Get(ctx, "k")
	assert.Equal(t, "abc", string(again))
}

func TestExpiryUsesClock(t *testing.T) {
	store := New(0)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Minute))
	ttl, err := store.TTL(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, ttl)

	now = now.Add(time.Minute)
	_, err = store.TTL(ctx, "k")
	assert.ErrorIs(t, err, kv.ErrNotFound)

	n, err := store.Del(ctx, "k")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCanceledContext(t *testing.T) {
	store := New(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, store.Set(ctx, "k", nil, 0), context.Canceled)
	assert.ErrorIs(t, store.Ping(ctx), context.Canceled)
}

func TestRegisteredAsMemoryBackend(t *testing.T) {
	store, err := kv.NewStoreFromConfig(kv.Config{Backend: kv.BackendMemory})
	require.NoError(t, err)
	defer store.Close()
	_, ok := store.(*Store)
	assert.True(t, ok)
}
