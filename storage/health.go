package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/lsst-sqre/gafaelfawr/handle"
)

// NewCustomHealthCheckFunc returns a health check that round-trips a
// throwaway session through s: store it, read it back, delete it. A short
// expiry means a failed delete still self-heals via TTL, the same
// reasoning dex's health check applies to its own throwaway AuthRequest.
func NewCustomHealthCheckFunc(s Store, now func() time.Time) func(context.Context) (details interface{}, err error) {
	return func(ctx context.Context) (interface{}, error) {
		h, err := handle.New()
		if err != nil {
			return nil, fmt.Errorf("generate health check handle: %w", err)
		}

		session := Session{
			Email:     "healthcheck@gafaelfawr.invalid",
			CreatedAt: now(),
			ExpiresOn: now().Add(time.Minute),
		}

		storageHandle := Handle{Key: h.Key, Secret: h.Secret}
		if err := s.StoreSession(ctx, storageHandle, session, now()); err != nil {
			return nil, fmt.Errorf("store health check session: %w", err)
		}

		if _, err := s.GetSession(ctx, storageHandle); err != nil {
			return nil, fmt.Errorf("get health check session: %w", err)
		}

		if _, err := s.DeleteSession(ctx, storageHandle); err != nil {
			return nil, fmt.Errorf("delete health check session: %w", err)
		}

		return nil, nil
	}
}
