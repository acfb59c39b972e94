package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"geofleet/ingestion/internal/domain"
)

// HTTPWifiLocator calls an external geolocation service with the observed
// access points. Request/response follow the common geolocation API shape
// (wifiAccessPoints in, location.lat/lng out).
type HTTPWifiLocator struct {
	url    string
	client *http.Client
}

func NewHTTPWifiLocator(url string, timeout time.Duration) *HTTPWifiLocator {
	return &HTTPWifiLocator{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type wifiLookupRequest struct {
	WifiAccessPoints []wifiAccessPoint `json:"wifiAccessPoints"`
}

type wifiAccessPoint struct {
	MacAddress     string `json:"macAddress"`
	SignalStrength *int   `json:"signalStrength,omitempty"`
}

type wifiLookupResponse struct {
	Location struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	} `json:"location"`
}

func (l *HTTPWifiLocator) Locate(ctx context.Context, obs []domain.RadioObservation) (float64, float64, error) {
	if l.url == "" {
		return 0, 0, fmt.Errorf("wifi lookup not configured")
	}

	reqBody := wifiLookupRequest{WifiAccessPoints: make([]wifiAccessPoint, 0, len(obs))}
	for _, o := range obs {
		reqBody.WifiAccessPoints = append(reqBody.WifiAccessPoints, wifiAccessPoint{
			MacAddress:     o.ID,
			SignalStrength: o.RSSI,
		})
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return 0, 0, fmt.Errorf("wifi lookup encode: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.url, bytes.NewReader(payload))
	if err != nil {
		return 0, 0, fmt.Errorf("wifi lookup request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("wifi lookup call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("wifi lookup status %d", resp.StatusCode)
	}

	var out wifiLookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, 0, fmt.Errorf("wifi lookup decode: %w", err)
	}
	return out.Location.Lat, out.Location.Lng, nil
}
