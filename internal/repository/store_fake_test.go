package repository

import (
	"context"
	"sync"
	"time"
)

// memStore is an in-memory SessionStore with the same optimistic-lock
// semantics as the redis implementation: Watch snapshots per-key versions,
// every committed write bumps them, and Exec aborts with ErrTxConflict if a
// watched key's version moved between snapshot and exec. TTLs are tracked
// as plain durations so tests can assert the shared lifecycle without
// waiting on wall-clock expiry.
type memStore struct {
	mu       sync.Mutex
	values   map[string]string
	hashes   map[string]map[string]string
	ttls     map[string]time.Duration
	versions map[string]int64

	// beforeExec runs with the lock released just before a transaction
	// tries to commit. Tests use it to interleave a competing writer.
	beforeExec func()
}

func newMemStore() *memStore {
	return &memStore{
		values:   make(map[string]string),
		hashes:   make(map[string]map[string]string),
		ttls:     make(map[string]time.Duration),
		versions: make(map[string]int64),
	}
}

// touch bumps a key's version without changing its value, simulating an
// unrelated concurrent write to a watched key.
func (s *memStore) touch(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.versions[key]++
}

func (s *memStore) ttl(key string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ttls[key]
}

func (s *memStore) setTTL(key string, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ttls[key] = ttl
}

func (s *memStore) hashField(key, field string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.hashes[key][field]
	return value, ok
}

func (s *memStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.values[key]
	return value, ok, nil
}

func (s *memStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	s.ttls[key] = ttl
	s.versions[key]++
	return nil
}

func (s *memStore) SetKeepTTL(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	s.versions[key]++
	return nil
}

func (s *memStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; !ok {
		if _, ok := s.hashes[key]; !ok {
			return nil
		}
	}
	s.ttls[key] = ttl
	return nil
}

func (s *memStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.hashes[key]))
	for field, value := range s.hashes[key] {
		out[field] = value
	}
	return out, nil
}

func (s *memStore) Del(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.values, key)
		delete(s.hashes, key)
		delete(s.ttls, key)
		s.versions[key]++
	}
	return nil
}

func (s *memStore) Watch(ctx context.Context, fn func(Tx) error, keys ...string) error {
	s.mu.Lock()
	snapshot := make(map[string]int64, len(keys))
	for _, key := range keys {
		snapshot[key] = s.versions[key]
	}
	s.mu.Unlock()

	return fn(&memTx{store: s, snapshot: snapshot})
}

type memTx struct {
	store    *memStore
	snapshot map[string]int64
}

func (t *memTx) Get(ctx context.Context, key string) (string, bool, error) {
	return t.store.Get(ctx, key)
}

func (t *memTx) Exec(ctx context.Context, fn func(Pipeline)) error {
	pipe := &memPipeline{}
	fn(pipe)

	if t.store.beforeExec != nil {
		t.store.beforeExec()
	}

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	for key, version := range t.snapshot {
		if t.store.versions[key] != version {
			return ErrTxConflict
		}
	}

	for _, op := range pipe.ops {
		op(t.store)
	}
	return nil
}

type memPipeline struct {
	ops []func(*memStore)
}

func (p *memPipeline) Set(key, value string, ttl time.Duration) {
	p.ops = append(p.ops, func(s *memStore) {
		s.values[key] = value
		s.ttls[key] = ttl
		s.versions[key]++
	})
}

func (p *memPipeline) HSet(key, field, value string) {
	p.ops = append(p.ops, func(s *memStore) {
		if s.hashes[key] == nil {
			s.hashes[key] = make(map[string]string)
		}
		s.hashes[key][field] = value
		s.versions[key]++
	})
}

func (p *memPipeline) HSetNX(key, field, value string) *BoolResult {
	result := &BoolResult{}
	p.ops = append(p.ops, func(s *memStore) {
		if _, exists := s.hashes[key][field]; exists {
			result.SetVal(false)
			return
		}
		if s.hashes[key] == nil {
			s.hashes[key] = make(map[string]string)
		}
		s.hashes[key][field] = value
		s.versions[key]++
		result.SetVal(true)
	})
	return result
}

func (p *memPipeline) Expire(key string, ttl time.Duration) {
	p.ops = append(p.ops, func(s *memStore) {
		if _, ok := s.values[key]; !ok {
			if _, ok := s.hashes[key]; !ok {
				return
			}
		}
		s.ttls[key] = ttl
	})
}
