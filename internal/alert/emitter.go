// Package alert writes perimeter-breach notification records. One row per
// breach, no suppression or coalescing: repeated breaches repeat rows.
package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"geofleet/ingestion/internal/domain"
	"geofleet/ingestion/internal/metrics"
)

type AlertStore interface {
	InsertAlert(ctx context.Context, a *domain.Alert) error
}

type AlertPublisher interface {
	PublishAlert(ctx context.Context, payload []byte) error
}

type Emitter struct {
	db  AlertStore
	pub AlertPublisher
}

func NewEmitter(db AlertStore, pub AlertPublisher) *Emitter {
	return &Emitter{db: db, pub: pub}
}

// EmitBreach records that the fix put the device outside its geofence. The
// description names the device and the offending source (GNSS or BLE→anchor).
func (e *Emitter) EmitBreach(ctx context.Context, deviceID string, fix *domain.PositionFix, at time.Time) error {
	a := &domain.Alert{
		Description: fmt.Sprintf("Device %s is outside the perimeter (%s)", deviceID, sourceLabel(fix)),
		Category:    domain.AlertCategoryNotify,
		Summary:     fmt.Sprintf("%s outside perimeter", deviceID),
		DeviceID:    deviceID,
		Latitude:    fix.Latitude,
		Longitude:   fix.Longitude,
		CreatedAt:   at,
	}

	if err := e.db.InsertAlert(ctx, a); err != nil {
		return err
	}
	metrics.AlertsEmitted.Add(1)

	if e.pub != nil {
		payload, _ := json.Marshal(map[string]interface{}{
			"device_id":  a.DeviceID,
			"desc":       a.Description,
			"type":       a.Category,
			"coords":     []float64{a.Latitude, a.Longitude},
			"created_at": a.CreatedAt.Unix(),
		})
		if err := e.pub.PublishAlert(ctx, payload); err != nil {
			// The row is the record; fan-out is best effort.
			log.Warn().Err(err).Str("device", deviceID).Msg("alert publish failed")
		}
	}
	return nil
}

func sourceLabel(fix *domain.PositionFix) string {
	switch fix.Source {
	case domain.SourceBLE:
		return fmt.Sprintf("BLE→%s", fix.AnchorID)
	case domain.SourceWifi:
		return "WiFi"
	default:
		return "GNSS"
	}
}
