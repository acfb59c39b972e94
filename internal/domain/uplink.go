package domain

import "time"

// UplinkKind distinguishes the two canonical uplink shapes every vendor
// adapter normalizes into.
type UplinkKind string

const (
	// KindGeneric covers GPS-class trackers (satellite/cellular, BLE tags).
	KindGeneric UplinkKind = "generic"
	// KindVehicleIgnition covers vehicle trackers that report ignition state.
	KindVehicleIgnition UplinkKind = "vehicle_ignition"
)

// RadioObservation is one short-range radio sighting (BLE beacon or Wi-Fi AP)
// reported by the device. RSSI is nil when the vendor payload omitted or
// mangled the signal strength.
type RadioObservation struct {
	ID   string
	RSSI *int
}

// Uplink is the canonical per-request record handed from a vendor webhook
// normalizer to the processor. Coordinates that failed to parse upstream are
// nil here, never NaN.
type Uplink struct {
	Kind     UplinkKind
	DeviceID string

	Latitude  *float64
	Longitude *float64

	BLE  []RadioObservation
	Wifi []RadioObservation

	Battery *float64
	RSSI    *int
	SNR     *float64

	// RawIgnition carries the vendor encoding untouched; the trip machine
	// works from the normalized tri-state.
	RawIgnition string
	Ignition    IgnitionState

	ReceivedAt time.Time
}

// HasGNSS reports whether both raw coordinates survived normalization.
func (u *Uplink) HasGNSS() bool {
	return u.Latitude != nil && u.Longitude != nil
}

// HasLocationData reports whether the uplink carries any location-bearing
// field at all. Uplinks without any are rejected as malformed.
func (u *Uplink) HasLocationData() bool {
	return u.HasGNSS() || len(u.BLE) > 0 || len(u.Wifi) > 0
}

type FixSource string

const (
	SourceGNSS FixSource = "gnss"
	SourceBLE  FixSource = "ble"
	SourceWifi FixSource = "wifi"
)

// PositionFix is the single resolved position for one uplink. AnchorID is set
// only for BLE/Wi-Fi fixes and names the matched beacon or lookup anchor.
type PositionFix struct {
	Latitude  float64
	Longitude float64
	Source    FixSource
	AnchorID  string
}
