package redis

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/lsst-sqre/gafaelfawr/storage"
	"github.com/lsst-sqre/gafaelfawr/storage/conformance"
)

// TestRedis runs the conformance suite against an in-process miniredis
// server instead of dex's DEX_REDIS_ADDR-gated real-Redis test, so the
// suite always runs in CI without a live dependency.
func TestRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	conformance.RunTests(t, func() storage.Backend {
		mr.FlushAll()
		return New(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	})
}
