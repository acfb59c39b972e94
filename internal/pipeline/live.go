package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"geofleet/ingestion/internal/domain"
	"geofleet/ingestion/internal/metrics"
	"geofleet/ingestion/internal/store"
)

// LiveMirror pushes accepted current positions into Redis for dashboards.
// The mirror is best effort and never sits in front of the authoritative
// writes: Offer drops on a full channel instead of blocking the webhook.
type LiveMirror struct {
	ch    chan *domain.DevicePosition
	redis *store.RedisStore
}

func NewLiveMirror(redis *store.RedisStore, size int) *LiveMirror {
	return &LiveMirror{
		ch:    make(chan *domain.DevicePosition, size),
		redis: redis,
	}
}

func (m *LiveMirror) Offer(p *domain.DevicePosition) {
	select {
	case m.ch <- p:
	default:
		metrics.LiveStateDrops.Add(1)
	}
}

func (m *LiveMirror) Run(ctx context.Context) {
	batch := make([]*domain.DevicePosition, 0, 100) // Redis is fast, fixed batch fine
	ticker := time.NewTicker(50 * time.Millisecond) // 50ms gives real-time feel on dashboard
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-m.ch:
			if !ok {
				m.flushBatch(ctx, batch)
				return
			}
			batch = append(batch, msg)
			if len(batch) >= 100 {
				m.flushBatch(ctx, batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				m.flushBatch(ctx, batch)
				batch = batch[:0]
			}

		case <-ctx.Done():
			m.flushBatch(context.Background(), batch)
			return
		}
	}
}

func (m *LiveMirror) flushBatch(ctx context.Context, batch []*domain.DevicePosition) {
	for _, p := range batch {
		if err := m.redis.LiveStateUpdate(ctx, p); err != nil {
			log.Warn().Err(err).Str("device", p.DeviceID).Msg("live state update failed")
		}
	}
}
