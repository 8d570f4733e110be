package repository

import (
	"context"
	"time"
)

// SessionStore is the key-value backend contract the session repository
// needs: plain get/set with TTL, hash-field operations including
// set-if-absent, TTL refresh, and watch-then-exec optimistic transactions.
// The production implementation wraps redis (pkg/cache); tests use an
// in-memory fake with the same conflict semantics.
type SessionStore interface {
	// Get returns the value at key and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set writes value with the given TTL.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// SetKeepTTL writes value preserving the key's current TTL unchanged.
	SetKeepTTL(ctx context.Context, key, value string) error

	// Expire refreshes the TTL on key. A missing key is a no-op.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// HGetAll returns every field of the hash at key. Missing keys yield
	// an empty map.
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	Del(ctx context.Context, keys ...string) error

	// Watch begins tracking keys for conflict detection, then runs fn. Any
	// transaction executed through the Tx aborts with ErrTxConflict if a
	// watched key changed after Watch began. Returning an error from fn
	// releases the watch without executing.
	Watch(ctx context.Context, fn func(Tx) error, keys ...string) error
}

// Tx is one watched optimistic transaction in progress.
type Tx interface {
	// Get reads a key inside the watched transaction.
	Get(ctx context.Context, key string) (string, bool, error)

	// Exec atomically applies every write queued by fn, or returns
	// ErrTxConflict without applying anything if a watched key changed.
	// Results of queued commands are readable only after Exec returns nil.
	Exec(ctx context.Context, fn func(Pipeline)) error
}

// Pipeline queues writes for atomic execution.
type Pipeline interface {
	Set(key, value string, ttl time.Duration)
	HSet(key, field, value string)
	// HSetNX queues a first-write-wins field write. The result reports
	// whether the field was actually written (false if it already existed).
	HSetNX(key, field, value string) *BoolResult
	Expire(key string, ttl time.Duration)
}

// BoolResult holds a command result that becomes valid after the owning
// transaction executes successfully.
type BoolResult struct {
	val bool
}

func (r *BoolResult) Val() bool {
	return r.val
}

// SetVal records the executed command's result. Store implementations call
// it after exec.
func (r *BoolResult) SetVal(v bool) {
	r.val = v
}
