// Package memory implements storage.Backend as a mutex-guarded map, the
// generalization of dex's storage/memory in-process Storage: same
// lock-around-a-map shape, but storing opaque sealed blobs under a flat
// key space instead of dex's per-object-type maps. Used by tests and by
// single-process deployments that don't need a shared Redis.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/lsst-sqre/gafaelfawr/storage"
)

var _ storage.Backend = (*Backend)(nil)

type entry struct {
	value   []byte
	expires time.Time // zero means no expiration
}

func (e entry) expired(now time.Time) bool {
	return !e.expires.IsZero() && now.After(e.expires)
}

// Backend is an in-memory storage.Backend.
type Backend struct {
	mu   sync.Mutex
	data map[string]entry
}

// New returns an empty in-memory backend.
func New() *Backend {
	return &Backend{data: make(map[string]entry)}
}

func (b *Backend) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.data[key]
	if !ok || e.expired(time.Now()) {
		return nil, storage.ErrNotFound
	}
	return e.value, nil
}

func (b *Backend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setLocked(key, value, ttl)
	return nil
}

func (b *Backend) setLocked(key string, value []byte, ttl time.Duration) {
	var expires time.Time
	if ttl > 0 {
		expires = time.Now().Add(ttl)
	}
	b.data[key] = entry{value: value, expires: expires}
}

func (b *Backend) Del(_ context.Context, key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.data[key]
	delete(b.data, key)
	return ok && !e.expired(time.Now()), nil
}

func (b *Backend) Keys(_ context.Context, prefix string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	var keys []string
	for k, e := range b.data {
		if strings.HasPrefix(k, prefix) && !e.expired(now) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (b *Backend) MGet(_ context.Context, keys []string) ([][]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	values := make([][]byte, len(keys))
	for i, k := range keys {
		if e, ok := b.data[k]; ok && !e.expired(now) {
			values[i] = e.value
		}
	}
	return values, nil
}

func (b *Backend) WriteAll(_ context.Context, writes []storage.Write) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, w := range writes {
		b.setLocked(w.Key, w.Value, w.TTL)
	}
	return nil
}

func (b *Backend) Close() error { return nil }
