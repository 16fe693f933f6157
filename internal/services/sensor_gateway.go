package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"binfleet-backend/internal/models"
)

// MeasurementSource returns the latest reading for each requested sensor id.
// Ids the gateway knows nothing about are simply absent from the map.
type MeasurementSource interface {
	FetchBulkMeasurements(ctx context.Context, containerIDs []string) (map[string]models.Measurement, error)
}

// bulkMeasurementsRequest is the body for POST /measurements/bulk
type bulkMeasurementsRequest struct {
	ContainerIDs []string `json:"container_ids"`
}

// bulkMeasurementsResponse represents the response from the sensor gateway
type bulkMeasurementsResponse struct {
	Measurements map[string]struct {
		FillLevel      float64   `json:"fill_level"`
		BatteryVoltage float64   `json:"battery_voltage"`
		MeasuredAt     time.Time `json:"measured_at"`
		Temperature    float64   `json:"temperature"`
	} `json:"measurements"`
}

// SensorGatewayClient talks to the fill-level sensor vendor's HTTP API
type SensorGatewayClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewSensorGatewayClient creates a new sensor gateway client
func NewSensorGatewayClient(baseURL, apiKey string, timeout time.Duration) *SensorGatewayClient {
	if apiKey == "" {
		log.Printf("⚠️  SENSOR_API_KEY not set - sensor gateway calls will be unauthenticated")
	}
	return &SensorGatewayClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// FetchBulkMeasurements fetches readings for a batch of sensor ids in one call
func (c *SensorGatewayClient) FetchBulkMeasurements(ctx context.Context, containerIDs []string) (map[string]models.Measurement, error) {
	if len(containerIDs) == 0 {
		return map[string]models.Measurement{}, nil
	}
	if c.baseURL == "" {
		return nil, errors.New("sensor gateway url is not configured")
	}

	body, err := json.Marshal(bulkMeasurementsRequest{ContainerIDs: containerIDs})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/measurements/bulk", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sensor gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	// Read response
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sensor gateway returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var apiResp bulkMeasurementsResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	measurements := make(map[string]models.Measurement, len(apiResp.Measurements))
	for id, m := range apiResp.Measurements {
		measurements[id] = models.Measurement{
			ContainerID:    id,
			FillLevel:      clampPercent(m.FillLevel),
			BatteryVoltage: m.BatteryVoltage,
			MeasuredAt:     m.MeasuredAt,
			Temperature:    m.Temperature,
		}
	}

	log.Printf("📡 Fetched %d measurements for %d sensors", len(measurements), len(containerIDs))
	return measurements, nil
}

// Clamp fill percentage
func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
