// Package store defines the key-value store that holds learner progress.
//
// Values are opaque strings; callers encode structured values as JSON. Two
// backends exist: the sqlite kv table (repository/sqlite) for a single
// server, and Redis (store/redisstore) when several servers share state.
package store

import "context"

// Store is a flat string key-value store.
type Store interface {
	// Get returns the value for key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
