package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"binfleet-backend/internal/models"
	"binfleet-backend/internal/services"
	"binfleet-backend/internal/store"
	"binfleet-backend/pkg/utils"
)

type NearbyBinsRequest struct {
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	Limit        int     `json:"limit"`
	MinFillLevel float64 `json:"min_fill_level"`
}

// NearbyBins returns the closest located bins to a point, nearest first.
// Unavailable bins are skipped, as are bins below min_fill_level when it is set.
func NearbyBins(bins *store.DualWriteStore[models.Bin], sequencer *services.RouteSequencer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req NearbyBinsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if !services.ValidCoordinates(req.Latitude, req.Longitude) {
			utils.RespondError(w, http.StatusBadRequest, "Invalid coordinates")
			return
		}

		// Default limit
		if req.Limit <= 0 {
			req.Limit = 5
		}

		log.Printf("🚗 Finding bins near (%.6f, %.6f) with limit %d", req.Latitude, req.Longitude, req.Limit)

		stops := make([]models.PickupStop, 0)
		for _, b := range bins.List() {
			if b.Status == models.BinStatusUnavailable || !b.HasCoordinates() {
				continue
			}
			if req.MinFillLevel > 0 && (b.FillLevel == nil || *b.FillLevel < req.MinFillLevel) {
				continue
			}
			stops = append(stops, models.StopFromBin(b))
		}

		result := sequencer.Sequence(services.Location{Latitude: req.Latitude, Longitude: req.Longitude}, stops)

		nearest := result.Sequenced
		if len(nearest) > req.Limit {
			nearest = nearest[:req.Limit]
		}

		log.Printf("✓ %d nearby bins selected", len(nearest))

		utils.RespondJSON(w, http.StatusOK, nearest)
	}
}
