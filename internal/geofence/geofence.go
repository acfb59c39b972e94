package geofence

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned when the device's organization has no geofence.
// The caller skips position processing for that uplink and still acknowledges.
var ErrNotConfigured = errors.New("no geofence configured for device")

// Polygon is an ordered ring of (lon, lat) vertices. The ring may be given
// open or closed; Contains treats it as implicitly closed.
type Polygon [][2]float64

// Provider resolves the geofence for a device's owning organization.
type Provider interface {
	GeofenceFor(ctx context.Context, deviceID string) (Polygon, error)
}

// Contains reports whether the point (lon, lat) lies inside the polygon,
// boundary-inclusive, using even-odd ray casting. Both accept/alert decisions
// go through this one function so the semantics stay consistent.
func (p Polygon) Contains(lon, lat float64) bool {
	if len(p) < 3 {
		return false
	}

	inside := false
	j := len(p) - 1
	for i := 0; i < len(p); i++ {
		xi, yi := p[i][0], p[i][1]
		xj, yj := p[j][0], p[j][1]

		if onSegment(lon, lat, xi, yi, xj, yj) {
			return true
		}

		if (yi > lat) != (yj > lat) {
			cross := (xj-xi)*(lat-yi)/(yj-yi) + xi
			if lon < cross {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

// onSegment reports whether (x, y) lies on the segment (x1,y1)-(x2,y2).
func onSegment(x, y, x1, y1, x2, y2 float64) bool {
	cross := (x2-x1)*(y-y1) - (y2-y1)*(x-x1)
	if cross != 0 {
		return false
	}
	if x < min(x1, x2) || x > max(x1, x2) {
		return false
	}
	if y < min(y1, y2) || y > max(y1, y2) {
		return false
	}
	return true
}
