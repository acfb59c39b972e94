// Package trip holds the ignition-driven trip transition logic, kept pure so
// the store can apply it inside a per-device transaction.
package trip

import (
	"github.com/google/uuid"

	"geofleet/ingestion/internal/domain"
)

// Decision is the outcome of feeding one ignition signal into the per-device
// state machine.
type Decision struct {
	// Open means a new trip must be created with ID NewTripID.
	Open bool
	// Close names the active trip that must be closed, if any.
	Close *uuid.UUID
	// NewTripID is the id for the trip created when Open is set.
	NewTripID uuid.UUID

	// HistoryTripID tags this message's history row. On an Off transition it
	// is the trip that just closed: the row documenting the moment the engine
	// turned off belongs to that trip.
	HistoryTripID *uuid.UUID
	// NextTripID is the device's current_trip_id after this message.
	NextTripID *uuid.UUID
}

// Decide computes the transition for one normalized ignition signal given the
// device's active trip (nil when no trip is open). newID is the id to assign
// if a trip must be opened; minting it outside keeps Decide deterministic
// under test. Unknown never opens or closes a trip.
func Decide(active *uuid.UUID, ign domain.IgnitionState, newID uuid.UUID) Decision {
	switch ign {
	case domain.IgnitionOn:
		if active != nil {
			return Decision{HistoryTripID: active, NextTripID: active}
		}
		id := newID
		return Decision{
			Open:          true,
			NewTripID:     id,
			HistoryTripID: &id,
			NextTripID:    &id,
		}

	case domain.IgnitionOff:
		if active == nil {
			return Decision{}
		}
		return Decision{
			Close:         active,
			HistoryTripID: active,
			NextTripID:    nil,
		}

	default:
		return Decision{HistoryTripID: active, NextTripID: active}
	}
}
