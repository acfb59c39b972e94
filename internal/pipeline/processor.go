package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"geofleet/ingestion/internal/domain"
	"geofleet/ingestion/internal/geofence"
	"geofleet/ingestion/internal/metrics"
	"geofleet/ingestion/internal/resolver"
	"geofleet/ingestion/internal/trip"
)

// ErrMalformedRequest is the only failure that surfaces to the caller as a
// client error; everything else is recovered locally and acknowledged.
var ErrMalformedRequest = errors.New("malformed request")

// Ledger is the slice of the datastore the processor writes through.
type Ledger interface {
	UpsertDevicePosition(ctx context.Context, p *domain.DevicePosition) error
	UpdateLiveness(ctx context.Context, deviceID string, battery *float64, rssi *int, snr *float64, seenAt time.Time) error
	InsertHistory(ctx context.Context, h *domain.PositionHistory) error
	ApplyIgnition(ctx context.Context, u *domain.Uplink, lat, lon *float64) (trip.Decision, error)
}

// Fixer produces at most one position fix per uplink.
type Fixer interface {
	Resolve(ctx context.Context, u *domain.Uplink) (*domain.PositionFix, error)
}

// BreachEmitter records out-of-geofence outcomes.
type BreachEmitter interface {
	EmitBreach(ctx context.Context, deviceID string, fix *domain.PositionFix, at time.Time) error
}

// Processor runs one uplink through resolve → geofence → ledger/alert, plus
// the trip machine for vehicle-class uplinks. Each call is independent; there
// is no queue in front of the authoritative writes.
type Processor struct {
	resolver  Fixer
	geofences geofence.Provider
	ledger    Ledger
	alerts    BreachEmitter
	live      *LiveMirror

	lookupTimeout time.Duration
}

func NewProcessor(r Fixer, g geofence.Provider, l Ledger, a BreachEmitter, live *LiveMirror, lookupTimeout time.Duration) *Processor {
	return &Processor{
		resolver:      r,
		geofences:     g,
		ledger:        l,
		alerts:        a,
		live:          live,
		lookupTimeout: lookupTimeout,
	}
}

// Process handles one normalized uplink to completion. Internal failures are
// logged and swallowed: the gateway retries on transport errors only, so a
// logical failure must still acknowledge.
func (p *Processor) Process(ctx context.Context, u *domain.Uplink) {
	metrics.UplinksReceived.Add(1)

	if u.Kind == domain.KindVehicleIgnition {
		p.processVehicle(ctx, u)
		return
	}
	p.processGeneric(ctx, u)
}

func (p *Processor) processGeneric(ctx context.Context, u *domain.Uplink) {
	lookupCtx, cancel := context.WithTimeout(ctx, p.lookupTimeout)
	defer cancel()

	fix, err := p.resolver.Resolve(lookupCtx, u)
	switch {
	case errors.Is(err, resolver.ErrUnresolved):
		metrics.Unresolved.Add(1)
		// Radio was observed but matched nothing known: refresh liveness
		// fields on the existing row without writing a position.
		if len(u.BLE) > 0 || len(u.Wifi) > 0 {
			if err := p.ledger.UpdateLiveness(ctx, u.DeviceID, u.Battery, u.RSSI, u.SNR, u.ReceivedAt); err != nil {
				metrics.DBWriteFailures.Add(1)
				log.Error().Err(err).Str("device", u.DeviceID).Msg("liveness update failed")
			}
		}
		return
	case err != nil:
		// Lookup failure or timeout: skip the position write for this uplink.
		log.Warn().Err(err).Str("device", u.DeviceID).Msg("location resolution failed")
		return
	}
	countFix(fix.Source)

	poly, err := p.geofences.GeofenceFor(lookupCtx, u.DeviceID)
	if errors.Is(err, geofence.ErrNotConfigured) {
		metrics.GeofenceMissing.Add(1)
		log.Warn().Str("device", u.DeviceID).Msg("no geofence configured, skipping position")
		return
	}
	if err != nil {
		log.Warn().Err(err).Str("device", u.DeviceID).Msg("geofence lookup failed")
		return
	}

	if !poly.Contains(fix.Longitude, fix.Latitude) {
		// Do not let an out-of-bounds reading into the trail; the alert is
		// the record of the anomaly.
		log.Info().
			Str("device", u.DeviceID).
			Str("source", string(fix.Source)).
			Msg("device outside perimeter")
		if err := p.alerts.EmitBreach(ctx, u.DeviceID, fix, u.ReceivedAt); err != nil {
			metrics.DBWriteFailures.Add(1)
			log.Error().Err(err).Str("device", u.DeviceID).Msg("alert insert failed")
		}
		return
	}

	if err := p.ledger.InsertHistory(ctx, &domain.PositionHistory{
		DeviceID:   u.DeviceID,
		Latitude:   fix.Latitude,
		Longitude:  fix.Longitude,
		Battery:    u.Battery,
		RSSI:       u.RSSI,
		SNR:        u.SNR,
		Source:     fix.Source,
		ObservedAt: u.ReceivedAt,
	}); err != nil {
		metrics.DBWriteFailures.Add(1)
		log.Error().Err(err).Str("device", u.DeviceID).Msg("history insert failed")
		return
	}

	pos := &domain.DevicePosition{
		DeviceID:  u.DeviceID,
		DevEUI:    u.DeviceID,
		Class:     domain.ClassGps,
		Latitude:  fix.Latitude,
		Longitude: fix.Longitude,
		Battery:   u.Battery,
		RSSI:      u.RSSI,
		SNR:       u.SNR,
		LastSeen:  u.ReceivedAt,
	}
	if err := p.ledger.UpsertDevicePosition(ctx, pos); err != nil {
		metrics.DBWriteFailures.Add(1)
		log.Error().Err(err).Str("device", u.DeviceID).Msg("position upsert failed")
		return
	}

	log.Info().
		Str("device", u.DeviceID).
		Str("source", string(fix.Source)).
		Float64("lat", fix.Latitude).
		Float64("lon", fix.Longitude).
		Msg("position accepted")

	if p.live != nil {
		p.live.Offer(pos)
	}
}

// processVehicle runs the ignition state machine and the ledger writes for a
// vehicle-class uplink. Vehicle history is appended for every message and is
// not gated on the geofence; the trip tag computed by the machine travels on
// the same row.
func (p *Processor) processVehicle(ctx context.Context, u *domain.Uplink) {
	lookupCtx, cancel := context.WithTimeout(ctx, p.lookupTimeout)
	defer cancel()

	fix, err := p.resolver.Resolve(lookupCtx, u)
	if err != nil {
		// Vehicle normalizers drop coordinate-less messages, so this is a
		// degenerate uplink: still run the machine so ignition is not lost.
		if errors.Is(err, resolver.ErrUnresolved) {
			metrics.Unresolved.Add(1)
		} else {
			log.Warn().Err(err).Str("device", u.DeviceID).Msg("vehicle resolution failed")
		}
		fix = nil
	} else {
		countFix(fix.Source)
	}

	var lat, lon *float64
	if fix != nil {
		lat, lon = &fix.Latitude, &fix.Longitude
	}

	dec, err := p.ledger.ApplyIgnition(ctx, u, lat, lon)
	if err != nil {
		metrics.DBWriteFailures.Add(1)
		log.Error().Err(err).Str("device", u.DeviceID).Msg("ignition transition failed")
		return
	}
	if dec.Open {
		metrics.TripsOpened.Add(1)
		log.Info().Str("device", u.DeviceID).Str("trip", dec.NewTripID.String()).Msg("trip opened")
	}
	if dec.Close != nil {
		metrics.TripsClosed.Add(1)
		log.Info().Str("device", u.DeviceID).Str("trip", dec.Close.String()).Msg("trip closed")
	}

	if fix == nil {
		return
	}

	if err := p.ledger.InsertHistory(ctx, &domain.PositionHistory{
		DeviceID:   u.DeviceID,
		Latitude:   fix.Latitude,
		Longitude:  fix.Longitude,
		Battery:    u.Battery,
		RSSI:       u.RSSI,
		SNR:        u.SNR,
		Source:     fix.Source,
		TripID:     dec.HistoryTripID,
		Ignition:   u.Ignition.Bool(),
		ObservedAt: u.ReceivedAt,
	}); err != nil {
		metrics.DBWriteFailures.Add(1)
		log.Error().Err(err).Str("device", u.DeviceID).Msg("vehicle history insert failed")
		return
	}

	pos := &domain.DevicePosition{
		DeviceID:  u.DeviceID,
		DevEUI:    u.DeviceID,
		Class:     domain.ClassVehicle,
		Latitude:  fix.Latitude,
		Longitude: fix.Longitude,
		Battery:   u.Battery,
		RSSI:      u.RSSI,
		SNR:       u.SNR,
		LastSeen:  u.ReceivedAt,
	}
	if err := p.ledger.UpsertDevicePosition(ctx, pos); err != nil {
		metrics.DBWriteFailures.Add(1)
		log.Error().Err(err).Str("device", u.DeviceID).Msg("vehicle position upsert failed")
		return
	}

	if p.live != nil {
		p.live.Offer(pos)
	}
}

func countFix(source domain.FixSource) {
	switch source {
	case domain.SourceGNSS:
		metrics.FixesGNSS.Add(1)
	case domain.SourceBLE:
		metrics.FixesBLE.Add(1)
	case domain.SourceWifi:
		metrics.FixesWifi.Add(1)
	}
}
