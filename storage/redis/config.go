package redis

import (
	"github.com/redis/go-redis/v9"

	"github.com/lsst-sqre/gafaelfawr/storage"
)

// Config is the config_store.redis section: a Redis (or Sentinel) endpoint
// list plus auth, mirroring dex's storage/redis Config fields.
type Config struct {
	Addrs            []string `json:"addrs" yaml:"addrs"`
	Password         string   `json:"password" yaml:"password"`
	SentinelPassword string   `json:"sentinel_password" yaml:"sentinel_password"`
	MasterName       string   `json:"master_name" yaml:"master_name"`
}

// Open constructs the Backend described by c.
func (c *Config) Open() (storage.Backend, error) {
	opts := &redis.UniversalOptions{
		Addrs:            c.Addrs,
		Password:         c.Password,
		SentinelPassword: c.SentinelPassword,
		MasterName:       c.MasterName,
	}
	return New(redis.NewUniversalClient(opts)), nil
}
