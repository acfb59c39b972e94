package auth

import (
	"context"
	"sync"
	"time"

	"geofleet/ingestion/internal/config"
	"geofleet/ingestion/internal/store"
)

type cacheEntry struct {
	gateway   string
	expiresAt time.Time
}

// Authenticator validates inbound webhook tokens. Static config tokens are
// checked first, then an in-memory cache, then Redis.
type Authenticator struct {
	localCache   sync.Map
	redis        *store.RedisStore
	ttl          time.Duration
	staticTokens map[string]bool
}

func NewAuthenticator(cfg *config.Config, redis *store.RedisStore) *Authenticator {
	staticTokens := make(map[string]bool, len(cfg.WebhookTokens))
	for _, t := range cfg.WebhookTokens {
		if t != "" {
			staticTokens[t] = true
		}
	}

	return &Authenticator{
		redis:        redis,
		ttl:          time.Duration(cfg.AuthCacheTTLSeconds) * time.Second,
		staticTokens: staticTokens,
	}
}

func (a *Authenticator) Validate(ctx context.Context, token string) bool {
	// Level 0: static config tokens
	if a.staticTokens[token] {
		return true
	}

	// Level 1: in-memory cache
	if raw, ok := a.localCache.Load(token); ok {
		entry := raw.(cacheEntry)
		if time.Now().Before(entry.expiresAt) {
			return true
		}
		a.localCache.Delete(token)
	}

	// Level 2: Redis lookup
	gateway, err := a.redis.GetWebhookToken(ctx, token)
	if err != nil || gateway == "" {
		return false
	}

	// Populate in-memory cache
	a.localCache.Store(token, cacheEntry{
		gateway:   gateway,
		expiresAt: time.Now().Add(a.ttl),
	})

	return true
}
