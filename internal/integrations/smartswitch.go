package integrations

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"geofleet/ingestion/internal/config"
)

// SwitchClient drives a zigbee smart switch through the EMQX publish API.
type SwitchClient struct {
	cfg    config.SwitchConfig
	client *http.Client
}

func NewSwitchClient(cfg config.SwitchConfig) *SwitchClient {
	return &SwitchClient{
		cfg:    cfg,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

// SetState publishes the desired state ("ON" or "OFF") to the switch topic.
// Validation of the state string is the caller's job.
func (c *SwitchClient) SetState(ctx context.Context, state string) (int, string, error) {
	body := map[string]string{
		"payload_encoding": "plain",
		"topic":            c.cfg.Topic,
		"payload":          fmt.Sprintf(`{"state": %q}`, state),
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, "", fmt.Errorf("switch payload encode: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return 0, "", fmt.Errorf("switch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.cfg.Username, c.cfg.Password)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("switch call: %w", err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return 0, "", fmt.Errorf("switch response read: %w", err)
	}
	return resp.StatusCode, buf.String(), nil
}
