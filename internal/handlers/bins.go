package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"binfleet-backend/internal/models"
	"binfleet-backend/internal/services"
	"binfleet-backend/internal/store"
	"binfleet-backend/pkg/utils"

	"github.com/go-chi/chi/v5"
)

// GetBins returns every bin with its assigned driver's name resolved
func GetBins(bins *store.DualWriteStore[models.Bin], drivers *store.DualWriteStore[models.Driver]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := models.BinStatus(r.URL.Query().Get("status"))
		driverID := r.URL.Query().Get("driver_id")

		names := driverNames(drivers.List())
		responses := make([]models.BinResponse, 0)
		for _, bin := range bins.List() {
			if status != "" && bin.Status != status {
				continue
			}
			if driverID != "" && !bin.IsAssignedTo(driverID) {
				continue
			}
			responses = append(responses, bin.ToBinResponse(lookupName(names, bin.AssignedDriverID)))
		}

		utils.RespondJSON(w, http.StatusOK, responses)
	}
}

var errBinNumberTaken = errors.New("bin number already exists")

// CreateBin adds a bin. Missing coordinates are geocoded from the address when possible.
func CreateBin(bins *store.DualWriteStore[models.Bin], geocoder services.Geocoder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.CreateBinRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		req.Address = strings.TrimSpace(req.Address)
		req.LocationName = strings.TrimSpace(req.LocationName)
		if req.Address == "" && req.LocationName == "" {
			utils.RespondError(w, http.StatusBadRequest, "address or location_name is required")
			return
		}

		if req.Status == "" {
			req.Status = models.BinStatusAvailable
		}
		if !req.Status.Valid() {
			utils.RespondError(w, http.StatusBadRequest, "Invalid status")
			return
		}

		if msg := validateCoordinates(req.Latitude, req.Longitude); msg != "" {
			utils.RespondError(w, http.StatusBadRequest, msg)
			return
		}

		bin := models.Bin{
			LocationName: req.LocationName,
			Address:      req.Address,
			Latitude:     req.Latitude,
			Longitude:    req.Longitude,
			Status:       req.Status,
			SensorID:     trimmedOrNil(req.SensorID),
		}

		if !bin.HasCoordinates() && bin.Address != "" && geocoder != nil {
			if loc, err := geocoder.Geocode(r.Context(), bin.Address); err != nil {
				log.Printf("⚠️  Could not geocode new bin at %s: %v", bin.Address, err)
			} else {
				bin.Latitude, bin.Longitude = &loc.Latitude, &loc.Longitude
			}
		}

		// Number allocation and the duplicate check run under the store's create lock
		requested := strings.ToUpper(strings.TrimSpace(req.BinNumber))
		created, err := bins.CreateUnique(r.Context(), func(existing []models.Bin) (models.Bin, error) {
			bin.BinNumber = requested
			if bin.BinNumber == "" {
				bin.BinNumber = models.NextBinNumber(existing)
			}
			for _, b := range existing {
				if b.BinNumber == bin.BinNumber {
					return bin, errBinNumberTaken
				}
			}
			return bin, nil
		})
		if err != nil {
			if errors.Is(err, errBinNumberTaken) {
				utils.RespondError(w, http.StatusConflict, "Bin number already exists")
				return
			}
			utils.RespondError(w, http.StatusInternalServerError, "Failed to create bin")
			return
		}
		log.Printf("✅ Created bin %s", created.BinNumber)

		utils.RespondJSON(w, http.StatusCreated, created.ToBinResponse(nil))
	}
}

// UpdateBin edits bin details. Assignment changes go through the assign endpoints.
func UpdateBin(bins *store.DualWriteStore[models.Bin], drivers *store.DualWriteStore[models.Driver], geocoder services.Geocoder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var req models.UpdateBinRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		if req.Status != nil && !req.Status.Valid() {
			utils.RespondError(w, http.StatusBadRequest, "Invalid status")
			return
		}
		if (req.Latitude == nil) != (req.Longitude == nil) {
			utils.RespondError(w, http.StatusBadRequest, "latitude and longitude must be provided together")
			return
		}
		if msg := validateCoordinates(req.Latitude, req.Longitude); msg != "" {
			utils.RespondError(w, http.StatusBadRequest, msg)
			return
		}

		existing, ok := bins.Get(id)
		if !ok {
			utils.RespondError(w, http.StatusNotFound, "Bin not found")
			return
		}

		// Re-geocode when the address moves and the caller didn't send coordinates
		var geocoded *services.Location
		addrChanged := req.Address != nil && strings.TrimSpace(*req.Address) != existing.Address
		if addrChanged && req.Latitude == nil && geocoder != nil {
			loc, err := geocoder.Geocode(r.Context(), *req.Address)
			if err != nil {
				log.Printf("⚠️  Could not geocode new address for %s: %v", existing.BinNumber, err)
			} else {
				geocoded = &loc
				if existing.HasCoordinates() {
					if moved, review := services.CompareCoordinates(*existing.Latitude, *existing.Longitude, loc.Latitude, loc.Longitude); review {
						log.Printf("⚠️  %s moved %.2f km after re-geocoding - needs review", existing.BinNumber, moved)
					}
				}
			}
		}

		updated, err := bins.Update(r.Context(), id, func(b *models.Bin) {
			if req.LocationName != nil {
				b.LocationName = strings.TrimSpace(*req.LocationName)
			}
			if req.Address != nil {
				b.Address = strings.TrimSpace(*req.Address)
			}
			switch {
			case req.Latitude != nil:
				b.Latitude, b.Longitude = req.Latitude, req.Longitude
			case geocoded != nil:
				b.Latitude, b.Longitude = &geocoded.Latitude, &geocoded.Longitude
			case addrChanged:
				// Old coordinates no longer describe the bin
				b.Latitude, b.Longitude = nil, nil
			}
			if req.Status != nil {
				b.SetStatus(*req.Status)
			}
			if req.SensorID != nil {
				b.SensorID = trimmedOrNil(req.SensorID)
			}
		})
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				utils.RespondError(w, http.StatusNotFound, "Bin not found")
				return
			}
			utils.RespondError(w, http.StatusInternalServerError, "Failed to update bin")
			return
		}

		names := driverNames(drivers.List())
		utils.RespondJSON(w, http.StatusOK, updated.ToBinResponse(lookupName(names, updated.AssignedDriverID)))
	}
}

// DeleteBin removes a bin and drops it from its driver's route
func DeleteBin(ledger *services.AssignmentLedger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		if err := ledger.DeleteBin(r.Context(), id); err != nil {
			respondLedgerError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

type assignBinRequest struct {
	DriverID *string `json:"driver_id"`
}

// AssignBin assigns a bin to a driver, or unassigns it when driver_id is null/empty
func AssignBin(ledger *services.AssignmentLedger, drivers *store.DualWriteStore[models.Driver]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var req assignBinRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		driverID := ""
		if req.DriverID != nil {
			driverID = strings.TrimSpace(*req.DriverID)
		}

		bin, err := ledger.AssignSingle(r.Context(), id, driverID)
		if err != nil {
			respondLedgerError(w, err)
			return
		}

		names := driverNames(drivers.List())
		utils.RespondJSON(w, http.StatusOK, bin.ToBinResponse(lookupName(names, bin.AssignedDriverID)))
	}
}

type bulkAssignRequest struct {
	BinIDs   []string `json:"bin_ids"`
	DriverID string   `json:"driver_id"`
}

// BulkAssignBins assigns many bins to one driver in a single ledger operation
func BulkAssignBins(ledger *services.AssignmentLedger, drivers *store.DualWriteStore[models.Driver]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req bulkAssignRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if len(req.BinIDs) == 0 || strings.TrimSpace(req.DriverID) == "" {
			utils.RespondError(w, http.StatusBadRequest, "bin_ids and driver_id are required")
			return
		}

		assigned, err := ledger.BulkAssign(r.Context(), req.BinIDs, strings.TrimSpace(req.DriverID))
		if err != nil {
			respondLedgerError(w, err)
			return
		}

		names := driverNames(drivers.List())
		responses := make([]models.BinResponse, len(assigned))
		for i, bin := range assigned {
			responses[i] = bin.ToBinResponse(lookupName(names, bin.AssignedDriverID))
		}

		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
			"success":  true,
			"assigned": responses,
			"count":    len(responses),
			"skipped":  len(req.BinIDs) - len(responses),
		})
	}
}
