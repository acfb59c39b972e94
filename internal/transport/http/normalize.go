package http

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"geofleet/ingestion/internal/domain"
	"geofleet/ingestion/internal/pipeline"
)

// Vendor payload normalizers. Each adapter turns one vendor-specific body
// into canonical domain.Uplink records so the processor is written once.
// Only two conditions are malformed: no device identifier, or no
// location-bearing field at all. Everything else degrades to absent fields.

type ttnMessage struct {
	Type             string          `json:"type"`
	MeasurementValue json.RawMessage `json:"measurementValue"`
}

type ttnRadioHit struct {
	MAC  string          `json:"mac"`
	ID   string          `json:"id"`
	RSSI json.RawMessage `json:"rssi"`
}

type rxMetadata struct {
	RSSI *int     `json:"rssi"`
	SNR  *float64 `json:"snr"`
}

type ttnEnvelope struct {
	EndDeviceIDs struct {
		DeviceID string `json:"device_id"`
	} `json:"end_device_ids"`
	UplinkMessage struct {
		DecodedPayload struct {
			Messages json.RawMessage `json:"messages"`
		} `json:"decoded_payload"`
		RxMetadata []rxMetadata `json:"rx_metadata"`
	} `json:"uplink_message"`
}

// NormalizeTTN parses a TTN uplink carrying typed measurement messages
// (Latitude/Longitude/Battery plus BLE and Wi-Fi scan lists).
func NormalizeTTN(body []byte, now time.Time) (*domain.Uplink, error) {
	var env ttnEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", pipeline.ErrMalformedRequest, err)
	}
	if env.EndDeviceIDs.DeviceID == "" {
		return nil, fmt.Errorf("%w: missing device_id", pipeline.ErrMalformedRequest)
	}

	u := &domain.Uplink{
		Kind:       domain.KindGeneric,
		DeviceID:   env.EndDeviceIDs.DeviceID,
		ReceivedAt: now,
	}
	if len(env.UplinkMessage.RxMetadata) > 0 {
		u.RSSI = env.UplinkMessage.RxMetadata[0].RSSI
		u.SNR = env.UplinkMessage.RxMetadata[0].SNR
	}

	for _, msg := range decodeTTNMessages(env.UplinkMessage.DecodedPayload.Messages) {
		upper := strings.ToUpper(msg.Type)
		switch {
		case msg.Type == "Latitude":
			u.Latitude = parseCoord(msg.MeasurementValue)
		case msg.Type == "Longitude":
			u.Longitude = parseCoord(msg.MeasurementValue)
		case msg.Type == "Battery":
			u.Battery = parseCoord(msg.MeasurementValue)
		case strings.Contains(upper, "BLE"):
			u.BLE = append(u.BLE, parseRadioHits(msg.MeasurementValue)...)
		case strings.Contains(upper, "WIFI"):
			u.Wifi = append(u.Wifi, parseRadioHits(msg.MeasurementValue)...)
		}
	}

	if !u.HasLocationData() {
		return nil, fmt.Errorf("%w: no location-bearing fields", pipeline.ErrMalformedRequest)
	}
	return u, nil
}

// decodeTTNMessages handles both shapes seen in the wild: a flat message
// list and a list wrapped in one extra array level.
func decodeTTNMessages(raw json.RawMessage) []ttnMessage {
	if len(raw) == 0 {
		return nil
	}

	var flat []ttnMessage
	if err := json.Unmarshal(raw, &flat); err == nil {
		return flat
	}

	var nested [][]ttnMessage
	if err := json.Unmarshal(raw, &nested); err == nil && len(nested) > 0 {
		return nested[0]
	}
	return nil
}

type abeeEnvelope struct {
	EndDeviceIDs struct {
		DeviceID string `json:"device_id"`
		DevEUI   string `json:"dev_eui"`
	} `json:"end_device_ids"`
	UplinkMessage struct {
		DecodedPayload struct {
			BLE            []ttnRadioHit `json:"ble"`
			Wifi           []ttnRadioHit `json:"wifi"`
			BatteryPercent *float64      `json:"battery_percent"`
		} `json:"decoded_payload"`
		Locations map[string]struct {
			Latitude  json.RawMessage `json:"latitude"`
			Longitude json.RawMessage `json:"longitude"`
		} `json:"locations"`
		RxMetadata []rxMetadata `json:"rx_metadata"`
	} `json:"uplink_message"`
}

// NormalizeAbee parses the Abeeway-style envelope, which sometimes nests the
// whole message under a "data" key.
func NormalizeAbee(body []byte, now time.Time) (*domain.Uplink, error) {
	var env abeeEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", pipeline.ErrMalformedRequest, err)
	}
	if env.EndDeviceIDs.DeviceID == "" {
		var wrapped struct {
			Data abeeEnvelope `json:"data"`
		}
		if err := json.Unmarshal(body, &wrapped); err == nil {
			env = wrapped.Data
		}
	}
	if env.EndDeviceIDs.DeviceID == "" {
		return nil, fmt.Errorf("%w: missing device_id", pipeline.ErrMalformedRequest)
	}

	u := &domain.Uplink{
		Kind:       domain.KindGeneric,
		DeviceID:   env.EndDeviceIDs.DeviceID,
		Battery:    env.UplinkMessage.DecodedPayload.BatteryPercent,
		ReceivedAt: now,
	}
	if len(env.UplinkMessage.RxMetadata) > 0 {
		u.RSSI = env.UplinkMessage.RxMetadata[0].RSSI
		u.SNR = env.UplinkMessage.RxMetadata[0].SNR
	}

	for _, hit := range env.UplinkMessage.DecodedPayload.BLE {
		u.BLE = append(u.BLE, radioObservation(hit))
	}
	for _, hit := range env.UplinkMessage.DecodedPayload.Wifi {
		u.Wifi = append(u.Wifi, radioObservation(hit))
	}

	if loc, ok := env.UplinkMessage.Locations["frm-payload"]; ok {
		u.Latitude = parseCoord(loc.Latitude)
		u.Longitude = parseCoord(loc.Longitude)
	}

	if !u.HasLocationData() {
		return nil, fmt.Errorf("%w: no location-bearing fields", pipeline.ErrMalformedRequest)
	}
	return u, nil
}

// NormalizeTeltonika parses a flat-key vehicle batch. Messages missing an
// identifier or coordinates are skipped, never fatal to the batch; a body
// that is neither a messages object nor a bare list is malformed.
func NormalizeTeltonika(body []byte, now time.Time) ([]*domain.Uplink, error) {
	var wrapper struct {
		Messages []map[string]json.RawMessage `json:"messages"`
	}
	var messages []map[string]json.RawMessage
	if err := json.Unmarshal(body, &wrapper); err == nil && wrapper.Messages != nil {
		messages = wrapper.Messages
	} else {
		var bare []map[string]json.RawMessage
		if err := json.Unmarshal(body, &bare); err != nil {
			return nil, fmt.Errorf("%w: payload format not recognized", pipeline.ErrMalformedRequest)
		}
		messages = bare
	}

	uplinks := make([]*domain.Uplink, 0, len(messages))
	for _, msg := range messages {
		ident := parseString(msg["ident"])
		lat := parseCoord(msg["position.latitude"])
		lon := parseCoord(msg["position.longitude"])
		if ident == "" || lat == nil || lon == nil {
			continue
		}

		rawIgnition := parseString(msg["engine.ignition.status"])
		uplinks = append(uplinks, &domain.Uplink{
			Kind:        domain.KindVehicleIgnition,
			DeviceID:    ident,
			Latitude:    lat,
			Longitude:   lon,
			Battery:     parseCoord(msg["external.powersource.voltage"]),
			RawIgnition: rawIgnition,
			Ignition:    domain.NormalizeIgnition(rawIgnition),
			ReceivedAt:  now,
		})
	}
	return uplinks, nil
}

func radioObservation(hit ttnRadioHit) domain.RadioObservation {
	id := hit.MAC
	if id == "" {
		id = hit.ID
	}
	return domain.RadioObservation{ID: id, RSSI: parseIntValue(hit.RSSI)}
}

func parseRadioHits(raw json.RawMessage) []domain.RadioObservation {
	var hits []ttnRadioHit
	if err := json.Unmarshal(raw, &hits); err != nil {
		return nil
	}
	obs := make([]domain.RadioObservation, 0, len(hits))
	for _, hit := range hits {
		o := radioObservation(hit)
		if o.ID != "" {
			obs = append(obs, o)
		}
	}
	return obs
}

// parseCoord accepts a JSON number or numeric string; anything else,
// including NaN and infinities, is treated as absent rather than an error.
func parseCoord(raw json.RawMessage) *float64 {
	if len(raw) == 0 {
		return nil
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
		return &f
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func parseIntValue(raw json.RawMessage) *int {
	f := parseCoord(raw)
	if f == nil {
		return nil
	}
	n := int(*f)
	return &n
}

// parseString accepts a JSON string, number, or bool and renders it as text.
func parseString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	switch t := v.(type) {
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}
