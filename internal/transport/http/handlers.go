package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"geofleet/ingestion/internal/domain"
	"geofleet/ingestion/internal/integrations"
	"geofleet/ingestion/internal/metrics"
	"geofleet/ingestion/internal/pipeline"
)

// UplinkProcessor is the pipeline entry point the webhook handlers call.
type UplinkProcessor interface {
	Process(ctx context.Context, u *domain.Uplink)
}

// SensorStore persists EMQX sensor readings.
type SensorStore interface {
	UpdateSensorValue(ctx context.Context, clientID, sensor string, value any) error
}

type WebhookHandler struct {
	proc    UplinkProcessor
	sensors SensorStore
}

func NewWebhookHandler(proc UplinkProcessor, sensors SensorStore) *WebhookHandler {
	return &WebhookHandler{proc: proc, sensors: sensors}
}

// HandleTTN accepts one TTN tracker uplink. Only a malformed body is a
// client error; resolution and write failures are recovered inside the
// processor and still acknowledged.
func (h *WebhookHandler) HandleTTN(w http.ResponseWriter, r *http.Request) {
	h.handleTracker(w, r, NormalizeTTN)
}

// HandleAbee accepts the Abeeway envelope variant.
func (h *WebhookHandler) HandleAbee(w http.ResponseWriter, r *http.Request) {
	h.handleTracker(w, r, NormalizeAbee)
}

func (h *WebhookHandler) handleTracker(w http.ResponseWriter, r *http.Request, normalize func([]byte, time.Time) (*domain.Uplink, error)) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}

	u, err := normalize(body, time.Now().UTC())
	if err != nil {
		if errors.Is(err, pipeline.ErrMalformedRequest) {
			metrics.MalformedRequests.Add(1)
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		log.Warn().Err(err).Msg("tracker normalization failed")
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	h.proc.Process(r.Context(), u)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleTeltonika accepts a batch of vehicle messages. One bad message never
// fails the batch; the response reports how many were accepted.
func (h *WebhookHandler) HandleTeltonika(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "reason": "unreadable body"})
		return
	}

	uplinks, err := NormalizeTeltonika(body, time.Now().UTC())
	if err != nil {
		metrics.MalformedRequests.Add(1)
		writeJSON(w, http.StatusOK, map[string]any{"ok": false, "reason": "payload format not recognized"})
		return
	}

	for _, u := range uplinks {
		h.proc.Process(r.Context(), u)
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "received": len(uplinks)})
}

// HandleEMQX stores contact / illuminance readings pushed by the broker.
func (h *WebhookHandler) HandleEMQX(w http.ResponseWriter, r *http.Request) {
	var event struct {
		ClientID string `json:"clientid"`
		Payload  string `json:"payload"`
	}
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil || event.ClientID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing clientid"})
		return
	}
	if event.Payload == "" {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}

	var reading struct {
		Contact     *bool    `json:"contact"`
		Illuminance *float64 `json:"illuminance"`
		Battery     *float64 `json:"battery"`
	}
	if err := json.Unmarshal([]byte(event.Payload), &reading); err != nil {
		log.Warn().Err(err).Str("client", event.ClientID).Msg("emqx payload decode failed")
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}

	var err error
	switch {
	case reading.Contact != nil:
		state := "Abierto"
		if *reading.Contact {
			state = "Cerrado"
		}
		err = h.sensors.UpdateSensorValue(r.Context(), event.ClientID, "contact", map[string]any{
			"estado":  state,
			"battery": reading.Battery,
		})
	case reading.Illuminance != nil:
		err = h.sensors.UpdateSensorValue(r.Context(), event.ClientID, "illuminance", map[string]any{
			"iluminancia": *reading.Illuminance,
			"battery":     reading.Battery,
		})
	}
	if err != nil {
		log.Error().Err(err).Str("client", event.ClientID).Msg("sensor update failed")
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type IntegrationHandler struct {
	solis *integrations.SolisClient
	swtch *integrations.SwitchClient
}

func NewIntegrationHandler(solis *integrations.SolisClient, sw *integrations.SwitchClient) *IntegrationHandler {
	return &IntegrationHandler{solis: solis, swtch: sw}
}

// HandleInverter proxies a signed inverter detail request.
func (h *IntegrationHandler) HandleInverter(w http.ResponseWriter, r *http.Request) {
	summary, err := h.solis.InverterDetail(r.Context(), r.URL.Query().Get("sn"))
	if err != nil {
		log.Error().Err(err).Msg("inverter detail failed")
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "inverter lookup failed"})
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// HandleSwitch turns the smart switch on or off.
func (h *IntegrationHandler) HandleSwitch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		State string `json:"state"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}

	state := strings.ToUpper(req.State)
	if state != "ON" && state != "OFF" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid state"})
		return
	}

	status, resp, err := h.swtch.SetState(r.Context(), state)
	if err != nil {
		log.Error().Err(err).Str("state", state).Msg("switch command failed")
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": status, "response": resp})
}

func HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
