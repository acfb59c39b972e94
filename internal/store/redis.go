package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"geofleet/ingestion/internal/config"
	"geofleet/ingestion/internal/domain"
)

const beaconCacheTTL = 10 * time.Minute

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(ctx context.Context, cfg *config.Config) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		PoolSize:     20,
		MinIdleConns: 5,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Client() *redis.Client {
	return r.client
}

// CachedBeacon returns a beacon from the cache, or (nil, nil) on a miss.
func (r *RedisStore) CachedBeacon(ctx context.Context, mac string) (*domain.Beacon, error) {
	key := fmt.Sprintf("beacon:%s", mac)
	raw, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("beacon cache get %s: %w", mac, err)
	}

	b := &domain.Beacon{}
	if err := json.Unmarshal(raw, b); err != nil {
		return nil, fmt.Errorf("beacon cache decode %s: %w", mac, err)
	}
	return b, nil
}

// CacheBeacon stores a directory hit for later lookups.
func (r *RedisStore) CacheBeacon(ctx context.Context, b *domain.Beacon) error {
	raw, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("beacon cache encode %s: %w", b.MAC, err)
	}
	key := fmt.Sprintf("beacon:%s", b.MAC)
	return r.client.Set(ctx, key, raw, beaconCacheTTL).Err()
}

// LiveStateUpdate mirrors the current position into Redis for dashboards:
// per-device state hash with a freshness TTL, a geo index, and a pub/sub
// notification. Best effort, never authoritative.
func (r *RedisStore) LiveStateUpdate(ctx context.Context, p *domain.DevicePosition) error {
	stateData := map[string]interface{}{
		"device_id": p.DeviceID,
		"type":      string(p.Class),
		"lat":       p.Latitude,
		"lon":       p.Longitude,
		"last_seen": p.LastSeen.Unix(),
	}
	if p.Battery != nil {
		stateData["battery"] = *p.Battery
	}
	if p.RSSI != nil {
		stateData["rssi"] = *p.RSSI
	}
	if p.SNR != nil {
		stateData["snr"] = *p.SNR
	}

	pubPayload, err := json.Marshal(stateData)
	if err != nil {
		return fmt.Errorf("failed to marshal live state: %w", err)
	}

	stateKey := fmt.Sprintf("device:%s:state", p.DeviceID)

	pipe := r.client.Pipeline()

	pipe.HSet(ctx, stateKey, stateData)
	pipe.Expire(ctx, stateKey, 5*time.Minute)
	pipe.GeoAdd(ctx, "devices:geo", &redis.GeoLocation{
		Name:      p.DeviceID,
		Longitude: p.Longitude,
		Latitude:  p.Latitude,
	})
	pipe.Publish(ctx, "devices:positions", pubPayload)

	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}

	return nil
}

// GetWebhookToken resolves an inbound webhook token to its gateway name, or
// "" if unknown.
func (r *RedisStore) GetWebhookToken(ctx context.Context, token string) (string, error) {
	key := fmt.Sprintf("webhook:auth:%s", token)
	val, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis get webhook token failed: %w", err)
	}
	return val, nil
}

// PublishAlert fans a freshly inserted alert out to subscribers.
func (r *RedisStore) PublishAlert(ctx context.Context, payload []byte) error {
	return r.client.Publish(ctx, "alerts:notify", payload).Err()
}
