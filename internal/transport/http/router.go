package http

import (
	"net/http"

	"geofleet/ingestion/internal/metrics"
)

// NewRouter wires the webhook, integration, and operational endpoints.
// Webhook and integration routes sit behind the token middleware; health and
// metrics stay open.
func NewRouter(webhooks *WebhookHandler, integrationsH *IntegrationHandler, authMW *AuthMiddleware) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", HandleHealth)
	mux.HandleFunc("GET /metrics", metrics.HandleMetrics)

	protected := http.NewServeMux()
	protected.HandleFunc("POST /webhooks/ttn", webhooks.HandleTTN)
	protected.HandleFunc("POST /webhooks/abee", webhooks.HandleAbee)
	protected.HandleFunc("POST /webhooks/teltonika", webhooks.HandleTeltonika)
	protected.HandleFunc("POST /webhooks/emqx", webhooks.HandleEMQX)
	protected.HandleFunc("GET /api/inverter", integrationsH.HandleInverter)
	protected.HandleFunc("POST /api/switch", integrationsH.HandleSwitch)

	mux.Handle("/", authMW.Wrap(protected))

	return mux
}
