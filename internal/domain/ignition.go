package domain

import "strings"

// IgnitionState is the normalized tri-state ignition signal.
type IgnitionState int

const (
	IgnitionUnknown IgnitionState = iota
	IgnitionOn
	IgnitionOff
)

func (s IgnitionState) String() string {
	switch s {
	case IgnitionOn:
		return "on"
	case IgnitionOff:
		return "off"
	default:
		return "unknown"
	}
}

// Bool returns the state as a nullable flag for persistence: true/false for
// On/Off, nil for Unknown.
func (s IgnitionState) Bool() *bool {
	switch s {
	case IgnitionOn:
		v := true
		return &v
	case IgnitionOff:
		v := false
		return &v
	default:
		return nil
	}
}

// NormalizeIgnition maps the accepted vendor encodings onto the tri-state.
// Anything unrecognized is Unknown and never opens or closes a trip.
func NormalizeIgnition(raw string) IgnitionState {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "1", "on":
		return IgnitionOn
	case "false", "0", "off":
		return IgnitionOff
	default:
		return IgnitionUnknown
	}
}
