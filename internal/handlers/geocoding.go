package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"binfleet-backend/internal/services"
	"binfleet-backend/pkg/utils"
)

type GeocodeRequest struct {
	Address string `json:"address"`
}

type GeocodeResponse struct {
	Address   string  `json:"address"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type BatchGeocodeRequest struct {
	Addresses []GeocodeRequest `json:"addresses"`
}

type BatchGeocodeResponse struct {
	Results []*GeocodeResponse `json:"results"`
	Errors  []string           `json:"errors"`
}

// Geocode handles POST /api/geocoding/forward
func Geocode(geocoder services.Geocoder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if geocoder == nil {
			utils.RespondError(w, http.StatusServiceUnavailable, "Geocoding service unavailable")
			return
		}

		var req GeocodeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		address := strings.TrimSpace(req.Address)
		if address == "" {
			utils.RespondError(w, http.StatusBadRequest, "Address is required")
			return
		}

		loc, err := geocoder.Geocode(r.Context(), address)
		if errors.Is(err, services.ErrNoGeocodeResult) {
			utils.RespondError(w, http.StatusNotFound, "No location found for address")
			return
		}
		if err != nil {
			log.Printf("Geocoding failed for address '%s': %v", address, err)
			utils.RespondError(w, http.StatusBadGateway, "Failed to geocode address")
			return
		}

		utils.RespondJSON(w, http.StatusOK, GeocodeResponse{
			Address:   address,
			Latitude:  loc.Latitude,
			Longitude: loc.Longitude,
		})
	}
}

// BatchGeocode handles POST /api/geocoding/forward/batch. Results keep the
// request order; a failed address leaves a null entry.
func BatchGeocode(geocoder services.Geocoder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if geocoder == nil {
			utils.RespondError(w, http.StatusServiceUnavailable, "Geocoding service unavailable")
			return
		}

		var req BatchGeocodeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if len(req.Addresses) == 0 {
			utils.RespondError(w, http.StatusBadRequest, "No addresses provided")
			return
		}

		response := BatchGeocodeResponse{
			Results: make([]*GeocodeResponse, 0, len(req.Addresses)),
			Errors:  make([]string, 0),
		}

		for i, addrReq := range req.Addresses {
			address := strings.TrimSpace(addrReq.Address)
			if address == "" {
				response.Errors = append(response.Errors, fmt.Sprintf("Index %d: empty address", i))
				response.Results = append(response.Results, nil)
				continue
			}

			loc, err := geocoder.Geocode(r.Context(), address)
			if err != nil {
				log.Printf("Failed to geocode address %d ('%s'): %v", i, address, err)
				response.Errors = append(response.Errors, fmt.Sprintf("Index %d: %v", i, err))
				response.Results = append(response.Results, nil)
				continue
			}
			response.Results = append(response.Results, &GeocodeResponse{
				Address:   address,
				Latitude:  loc.Latitude,
				Longitude: loc.Longitude,
			})
		}

		utils.RespondJSON(w, http.StatusOK, response)
	}
}
