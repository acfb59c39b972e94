package domain

import (
	"time"

	"github.com/google/uuid"
)

// DeviceClass is stamped on the current-position row the first time a device
// is seen.
type DeviceClass string

const (
	ClassGps     DeviceClass = "Gps"
	ClassVehicle DeviceClass = "Vehicle"
)

// DevicePosition is the current-state row, one per device, overwritten in
// place by an atomic upsert.
type DevicePosition struct {
	DeviceID  string
	DevEUI    string
	Class     DeviceClass
	Latitude  float64
	Longitude float64
	Battery   *float64
	RSSI      *int
	SNR       *float64
	LastSeen  time.Time
}

// PositionHistory is one append-only row per accepted fix. TripID and
// Ignition are populated only on the vehicle path.
type PositionHistory struct {
	DeviceID   string
	Latitude   float64
	Longitude  float64
	Battery    *float64
	RSSI       *int
	SNR        *float64
	Source     FixSource
	TripID     *uuid.UUID
	Ignition   *bool
	ObservedAt time.Time
}

// Alert is one perimeter-breach record. Appended per occurrence, never
// coalesced.
type Alert struct {
	Description string
	Category    string
	Summary     string
	DeviceID    string
	Latitude    float64
	Longitude   float64
	CreatedAt   time.Time
}

const AlertCategoryNotify = "notify"

// Beacon is a known fixed BLE/Wi-Fi installation.
type Beacon struct {
	MAC       string
	Latitude  float64
	Longitude float64
}

// VehicleState is the per-device trip bookkeeping row. CurrentTripID is
// non-nil exactly while the device's last processed ignition signal was On.
type VehicleState struct {
	DeviceID      string
	Ignition      *bool
	CurrentTripID *uuid.UUID
	LastSeen      time.Time
	LastLatitude  *float64
	LastLongitude *float64
}

type TripStatus string

const (
	TripActive TripStatus = "active"
	TripClosed TripStatus = "closed"
)

const CloseReasonIgnitionOff = "ignition_off"

// Trip is one bounded interval of vehicle activity.
type Trip struct {
	ID          uuid.UUID
	DeviceID    string
	StartedAt   time.Time
	EndedAt     *time.Time
	Status      TripStatus
	CloseReason string
}
