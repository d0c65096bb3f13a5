// Package kv provides the key-value store behind the timeline cache, with an
// in-memory backend, a Redis backend and a failover wrapper that moves to
// memory while Redis is unreachable.
//
// Backends register themselves on import:
//
//	import _ "github.com/postpulse/postpulse-backend/pkg/kv/memory"
//	import _ "github.com/postpulse/postpulse-backend/pkg/kv/redis"
//
//	store, err := kv.NewStoreFromConfig(kv.Config{Backend: kv.BackendMemory})
package kv
