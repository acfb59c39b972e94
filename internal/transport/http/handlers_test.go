package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geofleet/ingestion/internal/domain"
)

type recordingProcessor struct {
	uplinks []*domain.Uplink
}

func (p *recordingProcessor) Process(ctx context.Context, u *domain.Uplink) {
	p.uplinks = append(p.uplinks, u)
}

type recordingSensorStore struct {
	clientID string
	sensor   string
	value    any
}

func (s *recordingSensorStore) UpdateSensorValue(ctx context.Context, clientID, sensor string, value any) error {
	s.clientID = clientID
	s.sensor = sensor
	s.value = value
	return nil
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHandleTTNAccepted(t *testing.T) {
	proc := &recordingProcessor{}
	h := NewWebhookHandler(proc, &recordingSensorStore{})

	payload := `{
		"end_device_ids": {"device_id": "tracker-7"},
		"uplink_message": {"decoded_payload": {"messages": [
			{"type": "Latitude", "measurementValue": 40.0},
			{"type": "Longitude", "measurementValue": -3.0}
		]}}
	}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/ttn", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	h.HandleTTN(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
	require.Len(t, proc.uplinks, 1)
	assert.Equal(t, "tracker-7", proc.uplinks[0].DeviceID)
}

func TestHandleTTNMalformed(t *testing.T) {
	proc := &recordingProcessor{}
	h := NewWebhookHandler(proc, &recordingSensorStore{})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/ttn", strings.NewReader(`{"no": "device"}`))
	rec := httptest.NewRecorder()
	h.HandleTTN(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, proc.uplinks)
}

func TestHandleTeltonikaBatch(t *testing.T) {
	proc := &recordingProcessor{}
	h := NewWebhookHandler(proc, &recordingSensorStore{})

	payload := `{"messages": [
		{"ident": "356938035643809", "position.latitude": 40.0, "position.longitude": -3.0, "engine.ignition.status": true},
		{"ident": "356938035643809", "position.latitude": 40.1, "position.longitude": -3.1, "engine.ignition.status": false}
	]}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/teltonika", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	h.HandleTeltonika(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, 2.0, body["received"])
	assert.Len(t, proc.uplinks, 2)
}

func TestHandleTeltonikaUnrecognized(t *testing.T) {
	proc := &recordingProcessor{}
	h := NewWebhookHandler(proc, &recordingSensorStore{})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/teltonika", strings.NewReader(`{"foo": 1}`))
	rec := httptest.NewRecorder()
	h.HandleTeltonika(rec, req)

	// The gateway treats any non-2xx as retryable, so a bad batch is still
	// acknowledged with ok:false.
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["ok"])
	assert.Equal(t, "payload format not recognized", body["reason"])
	assert.Empty(t, proc.uplinks)
}

func TestHandleEMQXContact(t *testing.T) {
	sensors := &recordingSensorStore{}
	h := NewWebhookHandler(&recordingProcessor{}, sensors)

	event := map[string]string{
		"clientid": "door-sensor-1",
		"payload":  `{"contact": true, "battery": 93}`,
	}
	raw, _ := json.Marshal(event)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/emqx", strings.NewReader(string(raw)))
	rec := httptest.NewRecorder()
	h.HandleEMQX(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "door-sensor-1", sensors.clientID)
	assert.Equal(t, "contact", sensors.sensor)
	value, ok := sensors.value.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Cerrado", value["estado"])
}

func TestHandleEMQXIlluminance(t *testing.T) {
	sensors := &recordingSensorStore{}
	h := NewWebhookHandler(&recordingProcessor{}, sensors)

	event := map[string]string{
		"clientid": "light-sensor-1",
		"payload":  `{"illuminance": 412}`,
	}
	raw, _ := json.Marshal(event)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/emqx", strings.NewReader(string(raw)))
	rec := httptest.NewRecorder()
	h.HandleEMQX(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "illuminance", sensors.sensor)
	value, ok := sensors.value.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 412.0, value["iluminancia"])
}

func TestHandleEMQXMissingClientID(t *testing.T) {
	h := NewWebhookHandler(&recordingProcessor{}, &recordingSensorStore{})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/emqx", strings.NewReader(`{"payload": "{}"}`))
	rec := httptest.NewRecorder()
	h.HandleEMQX(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleHealth(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	HandleHealth(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}
