package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const hereGeocodeURL = "https://geocode.search.hereapi.com/v1/geocode"

// ErrNoGeocodeResult is returned when the geocoder has no match for an address
var ErrNoGeocodeResult = errors.New("no geocoding results")

// Geocoder resolves a free-form address to coordinates
type Geocoder interface {
	Geocode(ctx context.Context, address string) (Location, error)
}

// HEREGeocodeResponse represents the response from HERE Geocoding API
type HEREGeocodeResponse struct {
	Items []struct {
		Position struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"position"`
		Address struct {
			Label string `json:"label"`
		} `json:"address"`
		Scoring struct {
			QueryScore float64 `json:"queryScore"`
		} `json:"scoring"`
	} `json:"items"`
}

// HEREGeocodingService handles geocoding operations using HERE Maps API
type HEREGeocodingService struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewHEREGeocodingService creates a new HERE geocoding service
func NewHEREGeocodingService(apiKey string) *HEREGeocodingService {
	return &HEREGeocodingService{
		apiKey:  apiKey,
		baseURL: hereGeocodeURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// WithBaseURL points the service at a different endpoint
func (gs *HEREGeocodingService) WithBaseURL(baseURL string) *HEREGeocodingService {
	gs.baseURL = baseURL
	return gs
}

// Geocode geocodes a single address using HERE Geocoding API
func (gs *HEREGeocodingService) Geocode(ctx context.Context, address string) (Location, error) {
	query := strings.TrimSpace(address)
	if query == "" {
		return Location{}, fmt.Errorf("empty address: %w", ErrNoGeocodeResult)
	}

	params := url.Values{}
	params.Add("q", query)
	params.Add("apiKey", gs.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, gs.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return Location{}, fmt.Errorf("failed to create geocoding request: %w", err)
	}

	log.Printf("🌍 Geocoding: %s", query)

	resp, err := gs.httpClient.Do(req)
	if err != nil {
		return Location{}, fmt.Errorf("failed to make geocoding request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Location{}, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return Location{}, fmt.Errorf("geocoding API returned status %d: %s", resp.StatusCode, string(body))
	}

	var result HEREGeocodeResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return Location{}, fmt.Errorf("failed to parse geocoding response: %w", err)
	}

	if len(result.Items) == 0 {
		return Location{}, fmt.Errorf("%s: %w", query, ErrNoGeocodeResult)
	}

	// Return the first (best) result
	best := result.Items[0]
	log.Printf("   ✅ Found: %.6f, %.6f (confidence: %.2f)", best.Position.Lat, best.Position.Lng, best.Scoring.QueryScore)

	return Location{Latitude: best.Position.Lat, Longitude: best.Position.Lng}, nil
}

// CompareCoordinates returns how far a re-geocoded point moved and whether
// the move is large enough (over 1km) that someone should look at it
func CompareCoordinates(oldLat, oldLng, newLat, newLng float64) (float64, bool) {
	distance := DistanceKm(oldLat, oldLng, newLat, newLng)
	return distance, distance > 1.0
}
