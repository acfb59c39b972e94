package geofence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// Square from (0,0) to (10,10) in (lon, lat) order, ring left open.
var square = Polygon{{0, 0}, {10, 0}, {10, 10}, {0, 10}}

func TestContains(t *testing.T) {
	tests := []struct {
		name string
		lon  float64
		lat  float64
		want bool
	}{
		{"center", 5, 5, true},
		{"outside right", 15, 5, false},
		{"outside above", 5, 15, false},
		{"outside negative", -1, -1, false},
		{"vertex", 0, 0, true},
		{"edge bottom", 5, 0, true},
		{"edge left", 0, 5, true},
		{"just inside", 9.999, 9.999, true},
		{"just outside", 10.001, 5, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, square.Contains(tt.lon, tt.lat))
		})
	}
}

func TestContainsClosedRing(t *testing.T) {
	closed := Polygon{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}
	assert.True(t, closed.Contains(5, 5))
	assert.False(t, closed.Contains(11, 5))
}

func TestContainsConcave(t *testing.T) {
	// U-shape: the notch between the arms is outside.
	u := Polygon{{0, 0}, {10, 0}, {10, 10}, {7, 10}, {7, 3}, {3, 3}, {3, 10}, {0, 10}}
	assert.True(t, u.Contains(1, 5), "left arm")
	assert.True(t, u.Contains(9, 5), "right arm")
	assert.False(t, u.Contains(5, 8), "notch")
	assert.True(t, u.Contains(5, 1), "base")
}

func TestContainsDegenerate(t *testing.T) {
	assert.False(t, Polygon{}.Contains(0, 0))
	assert.False(t, Polygon{{0, 0}, {1, 1}}.Contains(0.5, 0.5))
}
