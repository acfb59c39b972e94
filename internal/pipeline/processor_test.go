package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geofleet/ingestion/internal/domain"
	"geofleet/ingestion/internal/geofence"
	"geofleet/ingestion/internal/resolver"
	"geofleet/ingestion/internal/trip"
)

// passthroughFixer resolves GNSS coordinates only, mirroring the first chain
// step; resolver internals are covered by their own tests.
type passthroughFixer struct{}

func (passthroughFixer) Resolve(ctx context.Context, u *domain.Uplink) (*domain.PositionFix, error) {
	if u.HasGNSS() {
		return &domain.PositionFix{Latitude: *u.Latitude, Longitude: *u.Longitude, Source: domain.SourceGNSS}, nil
	}
	return nil, resolver.ErrUnresolved
}

type failingFixer struct{ err error }

func (f failingFixer) Resolve(ctx context.Context, u *domain.Uplink) (*domain.PositionFix, error) {
	return nil, f.err
}

type fakeGeofences struct {
	poly geofence.Polygon
	err  error
}

func (g fakeGeofences) GeofenceFor(ctx context.Context, deviceID string) (geofence.Polygon, error) {
	if g.err != nil {
		return nil, g.err
	}
	return g.poly, nil
}

// fakeLedger records every write and runs the real transition logic for
// ApplyIgnition against in-memory vehicle state.
type fakeLedger struct {
	upserts  []*domain.DevicePosition
	liveness []string
	history  []*domain.PositionHistory
	trips    map[string]*uuid.UUID

	failHistory bool
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{trips: make(map[string]*uuid.UUID)}
}

func (l *fakeLedger) UpsertDevicePosition(ctx context.Context, p *domain.DevicePosition) error {
	l.upserts = append(l.upserts, p)
	return nil
}

func (l *fakeLedger) UpdateLiveness(ctx context.Context, deviceID string, battery *float64, rssi *int, snr *float64, seenAt time.Time) error {
	l.liveness = append(l.liveness, deviceID)
	return nil
}

func (l *fakeLedger) InsertHistory(ctx context.Context, h *domain.PositionHistory) error {
	if l.failHistory {
		return errors.New("insert failed")
	}
	l.history = append(l.history, h)
	return nil
}

func (l *fakeLedger) ApplyIgnition(ctx context.Context, u *domain.Uplink, lat, lon *float64) (trip.Decision, error) {
	dec := trip.Decide(l.trips[u.DeviceID], u.Ignition, uuid.New())
	l.trips[u.DeviceID] = dec.NextTripID
	return dec, nil
}

type fakeAlerts struct {
	breaches []*domain.PositionFix
	devices  []string
}

func (a *fakeAlerts) EmitBreach(ctx context.Context, deviceID string, fix *domain.PositionFix, at time.Time) error {
	a.breaches = append(a.breaches, fix)
	a.devices = append(a.devices, deviceID)
	return nil
}

var testFence = geofence.Polygon{{0, 0}, {30, 0}, {30, 30}, {0, 30}}

func newTestProcessor(ledger *fakeLedger, alerts *fakeAlerts, fences fakeGeofences) *Processor {
	return NewProcessor(passthroughFixer{}, fences, ledger, alerts, nil, time.Second)
}

func genericUplink(lat, lon float64) *domain.Uplink {
	return &domain.Uplink{
		Kind:       domain.KindGeneric,
		DeviceID:   "tracker-1",
		Latitude:   &lat,
		Longitude:  &lon,
		ReceivedAt: time.Now().UTC(),
	}
}

func TestProcessInsideGeofence(t *testing.T) {
	ledger := newFakeLedger()
	alerts := &fakeAlerts{}
	p := newTestProcessor(ledger, alerts, fakeGeofences{poly: testFence})

	p.Process(context.Background(), genericUplink(10, 20))

	require.Len(t, ledger.history, 1)
	assert.Equal(t, 10.0, ledger.history[0].Latitude)
	assert.Equal(t, 20.0, ledger.history[0].Longitude)
	assert.Nil(t, ledger.history[0].TripID)

	require.Len(t, ledger.upserts, 1)
	assert.Equal(t, 10.0, ledger.upserts[0].Latitude)
	assert.Equal(t, 20.0, ledger.upserts[0].Longitude)
	assert.Equal(t, domain.ClassGps, ledger.upserts[0].Class)

	assert.Empty(t, alerts.breaches)
}

func TestProcessOutsideGeofence(t *testing.T) {
	// Fence that excludes the origin.
	fence := geofence.Polygon{{5, 5}, {30, 5}, {30, 30}, {5, 30}}
	ledger := newFakeLedger()
	alerts := &fakeAlerts{}
	p := newTestProcessor(ledger, alerts, fakeGeofences{poly: fence})

	p.Process(context.Background(), genericUplink(0, 0))

	assert.Empty(t, ledger.history, "out-of-bounds fixes must not enter the trail")
	assert.Empty(t, ledger.upserts)
	require.Len(t, alerts.breaches, 1)
	assert.Equal(t, 0.0, alerts.breaches[0].Latitude)
	assert.Equal(t, 0.0, alerts.breaches[0].Longitude)
	assert.Equal(t, "tracker-1", alerts.devices[0])
}

func TestProcessUnresolvedWithRadioUpdatesLiveness(t *testing.T) {
	ledger := newFakeLedger()
	p := newTestProcessor(ledger, &fakeAlerts{}, fakeGeofences{poly: testFence})

	u := &domain.Uplink{
		Kind:       domain.KindGeneric,
		DeviceID:   "tracker-1",
		BLE:        []domain.RadioObservation{{ID: "unknown-beacon"}},
		ReceivedAt: time.Now().UTC(),
	}
	p.Process(context.Background(), u)

	assert.Equal(t, []string{"tracker-1"}, ledger.liveness)
	assert.Empty(t, ledger.history)
	assert.Empty(t, ledger.upserts)
}

func TestProcessGeofenceMissingSkipsWrite(t *testing.T) {
	ledger := newFakeLedger()
	alerts := &fakeAlerts{}
	p := newTestProcessor(ledger, alerts, fakeGeofences{err: geofence.ErrNotConfigured})

	p.Process(context.Background(), genericUplink(10, 20))

	assert.Empty(t, ledger.history)
	assert.Empty(t, ledger.upserts)
	assert.Empty(t, alerts.breaches)
}

func TestProcessLookupFailureStillCompletes(t *testing.T) {
	ledger := newFakeLedger()
	p := NewProcessor(failingFixer{err: errors.New("timeout")}, fakeGeofences{poly: testFence}, ledger, &fakeAlerts{}, nil, time.Second)

	p.Process(context.Background(), genericUplink(10, 20))

	assert.Empty(t, ledger.history)
	assert.Empty(t, ledger.upserts)
	assert.Empty(t, ledger.liveness)
}

func vehicleUplink(lat, lon float64, ignition string) *domain.Uplink {
	return &domain.Uplink{
		Kind:        domain.KindVehicleIgnition,
		DeviceID:    "356938035643809",
		Latitude:    &lat,
		Longitude:   &lon,
		RawIgnition: ignition,
		Ignition:    domain.NormalizeIgnition(ignition),
		ReceivedAt:  time.Now().UTC(),
	}
}

func TestProcessVehicleTripLifecycle(t *testing.T) {
	ledger := newFakeLedger()
	p := newTestProcessor(ledger, &fakeAlerts{}, fakeGeofences{poly: testFence})

	// Ignition On with no prior trip: trip opens and tags the row.
	p.Process(context.Background(), vehicleUplink(10, 20, "true"))
	require.Len(t, ledger.history, 1)
	require.NotNil(t, ledger.history[0].TripID)
	opened := *ledger.history[0].TripID

	// Second On reuses the same trip.
	p.Process(context.Background(), vehicleUplink(11, 21, "true"))
	require.Len(t, ledger.history, 2)
	require.NotNil(t, ledger.history[1].TripID)
	assert.Equal(t, opened, *ledger.history[1].TripID)

	// Off closes the trip but the closing row still carries its id.
	p.Process(context.Background(), vehicleUplink(12, 22, "false"))
	require.Len(t, ledger.history, 3)
	require.NotNil(t, ledger.history[2].TripID)
	assert.Equal(t, opened, *ledger.history[2].TripID)
	assert.Nil(t, ledger.trips["356938035643809"])

	// Subsequent rows are untagged.
	p.Process(context.Background(), vehicleUplink(13, 23, ""))
	require.Len(t, ledger.history, 4)
	assert.Nil(t, ledger.history[3].TripID)
}

func TestProcessVehicleAppendsHistoryRegardlessOfFence(t *testing.T) {
	// Fence excludes the point; vehicle history is not gated on it.
	fence := geofence.Polygon{{50, 50}, {60, 50}, {60, 60}, {50, 60}}
	ledger := newFakeLedger()
	alerts := &fakeAlerts{}
	p := newTestProcessor(ledger, alerts, fakeGeofences{poly: fence})

	p.Process(context.Background(), vehicleUplink(10, 20, "true"))

	require.Len(t, ledger.history, 1)
	require.Len(t, ledger.upserts, 1)
	assert.Equal(t, domain.ClassVehicle, ledger.upserts[0].Class)
	assert.Empty(t, alerts.breaches)
}

func TestProcessVehicleHistoryFailureSkipsUpsert(t *testing.T) {
	ledger := newFakeLedger()
	ledger.failHistory = true
	p := newTestProcessor(ledger, &fakeAlerts{}, fakeGeofences{poly: testFence})

	p.Process(context.Background(), vehicleUplink(10, 20, "true"))

	assert.Empty(t, ledger.upserts)
}
