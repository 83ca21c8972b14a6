// Package redis implements storage.Backend against a shared Redis instance,
// the deployment-wide backend needed once more than one gafaelfawr replica
// runs behind the same ingress. Generalized from dex's storage/redis client,
// which wraps go-redis's UniversalClient with getKey/createKey/deleteKey/
// getKvs helpers around dex's per-object-type keys; here the key space is
// flat (storage.Write already carries the prefix) and the go-redis major
// version is bumped to v9, which the rest of this dependency pack (and
// current upstream dex) already uses in place of the v8 this teacher
// repo's go.mod had drifted to.
package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lsst-sqre/gafaelfawr/storage"
)

var _ storage.Backend = (*Backend)(nil)

// Backend is a storage.Backend backed by a Redis (or Redis Sentinel)
// deployment.
type Backend struct {
	db redis.UniversalClient
}

// New wraps an already-constructed go-redis UniversalClient, so callers
// (and tests, via miniredis) can supply whichever client shape fits.
func New(db redis.UniversalClient) *Backend {
	return &Backend{db: db}
}

func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := b.db.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return val, nil
}

func (b *Backend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return b.db.Set(ctx, key, value, ttl).Err()
}

func (b *Backend) Del(ctx context.Context, key string) (bool, error) {
	n, err := b.db.Del(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (b *Backend) Keys(ctx context.Context, prefix string) ([]string, error) {
	return b.db.Keys(ctx, prefix+"*").Result()
}

func (b *Backend) MGet(ctx context.Context, keys []string) ([][]byte, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	vals, err := b.db.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(vals))
	for i, v := range vals {
		if v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		out[i] = []byte(s)
	}
	return out, nil
}

// WriteAll applies writes inside a single pipelined transaction (MULTI/EXEC),
// dex's updateKey does a get-then-set without a transaction around it since
// dex's callers already serialize access through a single auth_req/auth_code
// lifecycle; gafaelfawr's StoreSessionAndIndex writes two independent keys
// that must not be observed half-applied, so this uses TxPipelined instead.
func (b *Backend) WriteAll(ctx context.Context, writes []storage.Write) error {
	_, err := b.db.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, w := range writes {
			pipe.Set(ctx, w.Key, w.Value, w.TTL)
		}
		return nil
	})
	return err
}

func (b *Backend) Close() error {
	return b.db.Close()
}
