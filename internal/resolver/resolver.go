package resolver

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"geofleet/ingestion/internal/domain"
)

// ErrUnresolved means no source in the chain yielded coordinates. The uplink
// still succeeds; the caller falls back to a liveness-only update.
var ErrUnresolved = errors.New("no location source resolved")

// ErrBeaconNotFound is returned by a BeaconDirectory for unknown anchors.
var ErrBeaconNotFound = errors.New("beacon not found")

// BeaconDirectory maps a short-range radio identifier to a known fixed
// location.
type BeaconDirectory interface {
	Lookup(ctx context.Context, mac string) (*domain.Beacon, error)
}

// WifiLocator is the external geolocation capability: it turns a batch of
// access-point observations into one coordinate. Bounded latency, may fail.
type WifiLocator interface {
	Locate(ctx context.Context, obs []domain.RadioObservation) (lat, lon float64, err error)
}

type Resolver struct {
	beacons BeaconDirectory
	wifi    WifiLocator
}

func New(beacons BeaconDirectory, wifi WifiLocator) *Resolver {
	return &Resolver{beacons: beacons, wifi: wifi}
}

// Resolve runs the fallback chain in strict priority order: GNSS, then BLE
// proximity, then Wi-Fi geolocation. The first source that yields coordinates
// wins; later sources are not consulted.
func (r *Resolver) Resolve(ctx context.Context, u *domain.Uplink) (*domain.PositionFix, error) {
	if u.HasGNSS() {
		lat, lon := *u.Latitude, *u.Longitude
		if isFinite(lat) && isFinite(lon) {
			return &domain.PositionFix{
				Latitude:  lat,
				Longitude: lon,
				Source:    domain.SourceGNSS,
			}, nil
		}
	}

	if len(u.BLE) > 0 {
		if fix, err := r.resolveBLE(ctx, u.BLE); err == nil {
			return fix, nil
		} else if !errors.Is(err, ErrUnresolved) {
			return nil, err
		}
	}

	if len(u.Wifi) > 0 && r.wifi != nil {
		lat, lon, err := r.wifi.Locate(ctx, u.Wifi)
		if err != nil {
			return nil, fmt.Errorf("wifi geolocation failed: %w", err)
		}
		return &domain.PositionFix{
			Latitude:  lat,
			Longitude: lon,
			Source:    domain.SourceWifi,
		}, nil
	}

	return nil, ErrUnresolved
}

// resolveBLE ranks observations by descending signal strength (missing RSSI
// sorts last, ties keep arrival order) and probes the directory in that
// order. The first observation matching a known beacon wins; this is a
// single-candidate match, not a centroid.
func (r *Resolver) resolveBLE(ctx context.Context, obs []domain.RadioObservation) (*domain.PositionFix, error) {
	ranked := make([]domain.RadioObservation, len(obs))
	copy(ranked, obs)
	sort.SliceStable(ranked, func(i, j int) bool {
		return rank(ranked[i]) > rank(ranked[j])
	})

	for _, o := range ranked {
		b, err := r.beacons.Lookup(ctx, o.ID)
		if errors.Is(err, ErrBeaconNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("beacon lookup %q: %w", o.ID, err)
		}
		return &domain.PositionFix{
			Latitude:  b.Latitude,
			Longitude: b.Longitude,
			Source:    domain.SourceBLE,
			AnchorID:  b.MAC,
		}, nil
	}
	return nil, ErrUnresolved
}

func rank(o domain.RadioObservation) int {
	if o.RSSI == nil {
		return math.MinInt
	}
	return *o.RSSI
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
