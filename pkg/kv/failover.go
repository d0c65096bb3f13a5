package kv

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// LogFunc is a function type for structured logging
type LogFunc func(msg string, fields ...any)

// FailoverStore prefers a primary store and moves to the fallback when the
// primary reports ErrBackendUnavailable. While on the fallback it pings the
// primary every probe interval and switches back once it answers.
type FailoverStore struct {
	primary       Store
	fallback      Store
	active        atomic.Pointer[Store]
	probeInterval time.Duration
	logger        LogFunc

	mu      sync.Mutex
	probing bool
	closed  chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// NewFailoverStore creates a failover store with the primary active.
func NewFailoverStore(primary, fallback Store, probeInterval time.Duration, logger LogFunc) *FailoverStore {
	if logger == nil {
		logger = func(string, ...any) {}
	}
	if probeInterval <= 0 {
		probeInterval = 5 * time.Second
	}
	fs := &FailoverStore{
		primary:       primary,
		fallback:      fallback,
		probeInterval: probeInterval,
		logger:        logger,
		closed:        make(chan struct{}),
	}
	fs.active.Store(&fs.primary)
	return fs
}

// NewFailoverStoreWithFallbackActive starts on the fallback and probes the
// primary for recovery.
func NewFailoverStoreWithFallbackActive(primary, fallback Store, probeInterval time.Duration, logger LogFunc) *FailoverStore {
	fs := NewFailoverStore(primary, fallback, probeInterval, logger)
	fs.active.Store(&fs.fallback)
	fs.startProbing()
	return fs
}

func (fs *FailoverStore) current() Store {
	return *fs.active.Load()
}

func (fs *FailoverStore) onPrimary() bool {
	return fs.active.Load() == &fs.primary
}

func (fs *FailoverStore) demote() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if !fs.onPrimary() {
		return
	}
	fs.active.Store(&fs.fallback)
	fs.logger("Failing over to in-memory store", "reason", "primary_unavailable")
	fs.startProbingLocked()
}

func (fs *FailoverStore) startProbing() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.startProbingLocked()
}

func (fs *FailoverStore) startProbingLocked() {
	if fs.probing {
		return
	}
	select {
	case <-fs.closed:
		return
	default:
	}
	fs.probing = true
	fs.wg.Add(1)
	go fs.probeLoop()
}

func (fs *FailoverStore) probeLoop() {
	defer fs.wg.Done()

	ticker := time.NewTicker(fs.probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-fs.closed:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), fs.probeInterval/2)
			err := fs.primary.Ping(ctx)
			cancel()
			if err != nil {
				continue
			}

			fs.mu.Lock()
			fs.active.Store(&fs.primary)
			fs.probing = false
			fs.mu.Unlock()
			fs.logger("Recovered to primary store", "reason", "primary_healthy")
			return
		}
	}
}

// run executes fn on the active store, retrying once on the fallback when the
// primary is unreachable.
func run[T any](fs *FailoverStore, fn func(Store) (T, error)) (T, error) {
	wasPrimary := fs.onPrimary()
	result, err := fn(fs.current())
	if wasPrimary && errors.Is(err, ErrBackendUnavailable) {
		fs.demote()
		return fn(fs.current())
	}
	return result, err
}

func (fs *FailoverStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := run(fs, func(s Store) (struct{}, error) {
		return struct{}{}, s.Set(ctx, key, value, ttl)
	})
	return err
}

func (fs *FailoverStore) Get(ctx context.Context, key string) ([]byte, error) {
	return run(fs, func(s Store) ([]byte, error) {
		return s.Get(ctx, key)
	})
}

func (fs *FailoverStore) Del(ctx context.Context, keys ...string) (int64, error) {
	return run(fs, func(s Store) (int64, error) {
		return s.Del(ctx, keys...)
	})
}

func (fs *FailoverStore) Exists(ctx context.Context, key string) (bool, error) {
	return run(fs, func(s Store) (bool, error) {
		return s.Exists(ctx, key)
	})
}

func (fs *FailoverStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	return run(fs, func(s Store) (time.Duration, error) {
		return s.TTL(ctx, key)
	})
}

// Ping checks the active store.
func (fs *FailoverStore) Ping(ctx context.Context) error {
	return fs.current().Ping(ctx)
}

// ActiveBackend reports "primary" or "fallback".
func (fs *FailoverStore) ActiveBackend() string {
	if fs.onPrimary() {
		return "primary"
	}
	return "fallback"
}

// Close stops probing and closes both stores.
func (fs *FailoverStore) Close() error {
	var err error
	fs.once.Do(func() {
		close(fs.closed)
		fs.wg.Wait()
		err = errors.Join(fs.primary.Close(), fs.fallback.Close())
	})
	return err
}
