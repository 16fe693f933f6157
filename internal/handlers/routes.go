package handlers

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"binfleet-backend/internal/models"
	"binfleet-backend/internal/services"
	"binfleet-backend/internal/store"
	"binfleet-backend/pkg/utils"

	"github.com/paulmach/orb/geojson"
)

// RouteOrigin is the default starting point for sequencing
type RouteOrigin struct {
	Location services.Location
	Address  string
}

type sequenceRouteRequest struct {
	DriverID         string             `json:"driver_id"`
	BinIDs           []string           `json:"bin_ids"`
	PickupRequestIDs []string           `json:"pickup_request_ids"`
	Origin           *services.Location `json:"origin,omitempty"`
	OriginAddress    string             `json:"origin_address"`
}

type sequenceRouteResponse struct {
	Origin          services.Location          `json:"origin"`
	OriginAddress   string                     `json:"origin_address"`
	Sequenced       []services.SequencedStop   `json:"sequenced"`
	Unlocated       []models.PickupStop        `json:"unlocated"`
	NotFound        []string                   `json:"not_found"`
	Directions      []string                   `json:"directions"`
	TotalDistanceKm float64                    `json:"total_distance_km"`
	GeoJSON         *geojson.FeatureCollection `json:"geojson"`
}

// SequenceRoute orders a driver's stops closest-to-origin first. Stops come
// from bin_ids and pickup_request_ids; with only driver_id set, the driver's
// assigned bins are used.
func SequenceRoute(
	bins *store.DualWriteStore[models.Bin],
	pickups *store.DualWriteStore[models.PickupRequest],
	sequencer *services.RouteSequencer,
	defaultOrigin RouteOrigin,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sequenceRouteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		origin := defaultOrigin.Location
		originAddress := defaultOrigin.Address
		if req.Origin != nil {
			if !services.ValidCoordinates(req.Origin.Latitude, req.Origin.Longitude) {
				utils.RespondError(w, http.StatusBadRequest, "Invalid origin coordinates")
				return
			}
			origin = *req.Origin
			originAddress = ""
		}
		if a := strings.TrimSpace(req.OriginAddress); a != "" {
			originAddress = a
		}
		if originAddress == "" {
			// Mapping clients accept "lat,lng" wherever an address is expected
			originAddress = fmt.Sprintf("%.6f,%.6f", origin.Latitude, origin.Longitude)
		}

		stops := make([]models.PickupStop, 0, len(req.BinIDs)+len(req.PickupRequestIDs))
		notFound := make([]string, 0)

		binIDs := req.BinIDs
		if len(binIDs) == 0 && len(req.PickupRequestIDs) == 0 && req.DriverID != "" {
			for _, b := range bins.List() {
				if b.IsAssignedTo(req.DriverID) {
					binIDs = append(binIDs, b.ID)
				}
			}
		}

		for _, id := range binIDs {
			bin, ok := bins.Get(id)
			if !ok {
				notFound = append(notFound, id)
				continue
			}
			stops = append(stops, models.StopFromBin(bin))
		}
		for _, id := range req.PickupRequestIDs {
			pickup, ok := pickups.Get(id)
			if !ok {
				notFound = append(notFound, id)
				continue
			}
			stops = append(stops, models.StopFromPickupRequest(pickup))
		}

		if len(notFound) > 0 {
			log.Printf("⚠️  Route sequencing: %d stop ids not found: %v", len(notFound), notFound)
		}

		result := sequencer.Sequence(origin, stops)

		utils.RespondJSON(w, http.StatusOK, sequenceRouteResponse{
			Origin:          origin,
			OriginAddress:   originAddress,
			Sequenced:       result.Sequenced,
			Unlocated:       result.Unlocated,
			NotFound:        notFound,
			Directions:      sequencer.DirectionsAddresses(originAddress, result),
			TotalDistanceKm: sequencer.TotalDistanceKm(origin, result),
			GeoJSON:         sequencer.RouteGeoJSON(origin, originAddress, result),
		})
	}
}
