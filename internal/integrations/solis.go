// Package integrations holds the thin clients for third-party APIs the
// service fronts: the SolisCloud inverter API and the EMQX smart-switch
// publish endpoint. Credentials come in as explicit config structs.
package integrations

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"geofleet/ingestion/internal/config"
)

// SolisClient signs requests against the SolisCloud API: MD5 body digest,
// then HMAC-SHA1 over verb/digest/content-type/date/path.
type SolisClient struct {
	cfg    config.SolisConfig
	client *http.Client
}

func NewSolisClient(cfg config.SolisConfig) *SolisClient {
	return &SolisClient{
		cfg:    cfg,
		client: &http.Client{Timeout: 20 * time.Second},
	}
}

// InverterSummary is the slice of the inverter detail the dashboard shows.
type InverterSummary struct {
	SN               string   `json:"sn"`
	PowerKW          *float64 `json:"power_kw"`
	GridPurchasedKWh *float64 `json:"grid_purchased_today_kwh"`
	CurrentLoadKW    *float64 `json:"current_load_kw"`
	BatteryChargeKWh *float64 `json:"battery_charge_today_kwh"`
}

// InverterDetail fetches and condenses /v1/api/inverterDetail for one serial.
func (c *SolisClient) InverterDetail(ctx context.Context, sn string) (*InverterSummary, error) {
	if sn == "" {
		sn = c.cfg.DefaultSN
	}

	body, err := c.post(ctx, "/v1/api/inverterDetail", map[string]string{"sn": sn})
	if err != nil {
		return nil, err
	}

	var detail struct {
		Data struct {
			Pac                      *float64 `json:"pac"`
			GridPurchasedTodayEnergy *float64 `json:"gridPurchasedTodayEnergy"`
			FamilyLoadPower          *float64 `json:"familyLoadPower"`
			TotalLoadPower           *float64 `json:"totalLoadPower"`
			BatteryTodayChargeEnergy *float64 `json:"batteryTodayChargeEnergy"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &detail); err != nil {
		return nil, fmt.Errorf("inverter detail decode: %w", err)
	}

	load := detail.Data.FamilyLoadPower
	if load == nil {
		load = detail.Data.TotalLoadPower
	}

	return &InverterSummary{
		SN:               sn,
		PowerKW:          detail.Data.Pac,
		GridPurchasedKWh: detail.Data.GridPurchasedTodayEnergy,
		CurrentLoadKW:    load,
		BatteryChargeKWh: detail.Data.BatteryTodayChargeEnergy,
	}, nil
}

func (c *SolisClient) post(ctx context.Context, path string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("solis request encode: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("solis request: %w", err)
	}
	for k, v := range c.signHeaders(path, payload) {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("solis call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("solis status %d", resp.StatusCode)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, fmt.Errorf("solis response read: %w", err)
	}
	return buf.Bytes(), nil
}

func (c *SolisClient) signHeaders(path string, body []byte) map[string]string {
	sum := md5.Sum(body)
	digest := base64.StdEncoding.EncodeToString(sum[:])
	contentType := "application/json"
	date := time.Now().UTC().Format(http.TimeFormat)

	stringToSign := fmt.Sprintf("POST\n%s\n%s\n%s\n%s", digest, contentType, date, path)
	mac := hmac.New(sha1.New, []byte(c.cfg.APISecret))
	mac.Write([]byte(stringToSign))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return map[string]string{
		"Content-MD5":   digest,
		"Content-Type":  contentType,
		"Date":          date,
		"Authorization": fmt.Sprintf("API %s:%s", c.cfg.APIID, signature),
	}
}
