// Package kvtest provides conformance tests for kv.Store implementations
package kvtest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/postpulse/postpulse-backend/pkg/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// StoreFactory creates a fresh Store instance for testing
type StoreFactory func(t *testing.T) kv.Store

// RunConformanceTests runs all conformance tests against a Store implementation.
// Keys are namespaced per run so shared backends can be reused.
func RunConformanceTests(t *testing.T, factory StoreFactory) {
	tests := []struct {
		name string
		test func(t *testing.T, store kv.Store, key func(string) string)
	}{
		{"SetGet", testSetGet},
		{"GetMissing", testGetMissing},
		{"Overwrite", testOverwrite},
		{"Delete", testDelete},
		{"Exists", testExists},
		{"TTL", testTTL},
		{"Expiry", testExpiry},
		{"Ping", testPing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := factory(t)
			defer store.Close()
			prefix := "kvtest:" + uuid.NewString()
			tt.test(t, store, func(name string) string {
				return fmt.Sprintf("%s:%s", prefix, name)
			})
		})
	}
}

func testSetGet(t *testing.T, store kv.Store, key func(string) string) {
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, key("a"), []byte("hello world"), 0))

	got, err := store.Get(ctx, key("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("hello world"), got)
}

func testGetMissing(t *testing.T, store kv.Store, key func(string) string) {
	_, err := store.Get(context.Background(), key("missing"))
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func testOverwrite(t *testing.T, store kv.Store, key func(string) string) {
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, key("a"), []byte("one"), time.Minute))
	require.NoError(t, store.Set(ctx, key("a"), []byte("two"), 0))

	got, err := store.Get(ctx, key("a"))
	require.NoError(t, err)
	assert.Equal(t, "two", string(got))

	ttl, err := store.TTL(ctx, key("a"))
	require.NoError(t, err)
	assert.Equal(t, time.Duration(-1), ttl)
}

func testDelete(t *testing.T, store kv.Store, key func(string) string) {
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, key("a"), []byte("1"), 0))
	require.NoError(t, store.Set(ctx, key("b"), []byte("2"), 0))

	n, err := store.Del(ctx, key("a"), key("b"), key("c"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = store.Get(ctx, key("a"))
	assert.ErrorIs(t, err, kv.ErrNotFound)

	n, err = store.Del(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func testExists(t *testing.T, store kv.Store, key func(string) string) {
	ctx := context.Background()
	ok, err := store.Exists(ctx, key("a"))
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, key("a"), []byte{}, 0))
	ok, err = store.Exists(ctx, key("a"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func testTTL(t *testing.T, store kv.Store, key func(string) string) {
	ctx := context.Background()
	_, err := store.TTL(ctx, key("missing"))
	assert.ErrorIs(t, err, kv.ErrNotFound)

	require.NoError(t, store.Set(ctx, key("a"), []byte("x"), time.Minute))
	ttl, err := store.TTL(ctx, key("a"))
	require.NoError(t, err)
	assert.Greater(t, ttl, 50*time.Second)
	assert.LessOrEqual(t, ttl, time.Minute)
}

func testExpiry(t *testing.T, store kv.Store, key func(string) string) {
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, key("a"), []byte("x"), 100*time.Millisecond))

	assert.Eventually(t, func() bool {
		_, err := store.Get(ctx, key("a"))
		return err == kv.ErrNotFound
	}, 3*time.Second, 25*time.Millisecond)

	ok, err := store.Exists(ctx, key("a"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func testPing(t *testing.T, store kv.Store, _ func(string) string) {
	assert.NoError(t, store.Ping(context.Background()))
}
