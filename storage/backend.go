package storage

import (
	"context"
	"time"
)

// Write is one key/value/TTL triple in an atomic multi-key write.
type Write struct {
	Key   string
	Value []byte
	TTL   time.Duration // zero means no expiration
}

// Backend is the raw key-value collaborator backing a Store (§6 of the
// external-collaborators list): get, set-with-ttl, delete, prefix listing,
// and an atomic multi-key write used to pair a session write with its
// user-token-index update. It generalizes dex's storage/redis getKey/
// createKey/updateKey helpers to a plain KV contract with no knowledge of
// gafaelfawr's record shapes — those live one layer up, in Store.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) (bool, error)
	Keys(ctx context.Context, prefix string) ([]string, error)

	// MGet returns one slice entry per key, in order, with a nil entry for
	// any key that is absent — callers distinguish "missing" from "present
	// but empty" without a second round trip.
	MGet(ctx context.Context, keys []string) ([][]byte, error)

	// WriteAll applies every entry in writes atomically: either all are
	// visible or none are. Used by Store.StoreSessionAndIndex to keep a
	// session record and its index entry from diverging under a crash.
	WriteAll(ctx context.Context, writes []Write) error

	Close() error
}
