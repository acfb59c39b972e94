package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"geofleet/ingestion/internal/domain"
	"geofleet/ingestion/internal/resolver"
)

type beaconEntry struct {
	beacon    *domain.Beacon
	expiresAt time.Time
}

// BeaconDirectory resolves short-range radio identifiers to known fixed
// locations through three levels: in-process cache, Redis, then Postgres.
// Implements resolver.BeaconDirectory.
type BeaconDirectory struct {
	localCache sync.Map
	db         *PostgresStore
	redis      *RedisStore
	ttl        time.Duration
}

func NewBeaconDirectory(db *PostgresStore, redis *RedisStore) *BeaconDirectory {
	return &BeaconDirectory{
		db:    db,
		redis: redis,
		ttl:   beaconCacheTTL,
	}
}

func (d *BeaconDirectory) Lookup(ctx context.Context, mac string) (*domain.Beacon, error) {
	// Level 1: in-memory cache
	if raw, ok := d.localCache.Load(mac); ok {
		entry := raw.(beaconEntry)
		if time.Now().Before(entry.expiresAt) {
			return entry.beacon, nil
		}
		d.localCache.Delete(mac)
	}

	// Level 2: Redis. A cache error degrades to the database read.
	if d.redis != nil {
		b, err := d.redis.CachedBeacon(ctx, mac)
		if err != nil {
			log.Warn().Err(err).Str("mac", mac).Msg("beacon cache read failed")
		} else if b != nil {
			d.remember(mac, b)
			return b, nil
		}
	}

	// Level 3: Postgres, the authoritative directory
	b, err := d.db.BeaconByMAC(ctx, mac)
	if errors.Is(err, resolver.ErrBeaconNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	d.remember(mac, b)
	if d.redis != nil {
		if err := d.redis.CacheBeacon(ctx, b); err != nil {
			log.Warn().Err(err).Str("mac", mac).Msg("beacon cache write failed")
		}
	}
	return b, nil
}

func (d *BeaconDirectory) remember(mac string, b *domain.Beacon) {
	d.localCache.Store(mac, beaconEntry{
		beacon:    b,
		expiresAt: time.Now().Add(d.ttl),
	})
}
