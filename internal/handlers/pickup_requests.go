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

func GetPickupRequests(pickups *store.DualWriteStore[models.PickupRequest]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := models.PickupStatus(r.URL.Query().Get("status"))

		out := make([]models.PickupRequest, 0)
		for _, p := range pickups.List() {
			if status != "" && p.Status != status {
				continue
			}
			out = append(out, p)
		}

		utils.RespondJSON(w, http.StatusOK, out)
	}
}

// CreatePickupRequest records a donor pickup. The address is geocoded when no coordinates are sent.
func CreatePickupRequest(pickups *store.DualWriteStore[models.PickupRequest], geocoder services.Geocoder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.PickupRequestBody
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if req.Name == nil || strings.TrimSpace(*req.Name) == "" {
			utils.RespondError(w, http.StatusBadRequest, "name is required")
			return
		}
		if req.Address == nil || strings.TrimSpace(*req.Address) == "" {
			utils.RespondError(w, http.StatusBadRequest, "address is required")
			return
		}

		pickup := models.PickupRequest{Status: models.PickupStatusPending}
		if msg := applyPickupRequestBody(&pickup, req); msg != "" {
			utils.RespondError(w, http.StatusBadRequest, msg)
			return
		}

		if pickup.Latitude == nil && geocoder != nil {
			if loc, err := geocoder.Geocode(r.Context(), pickup.Address); err != nil {
				log.Printf("⚠️  Could not geocode pickup for %s: %v", pickup.Name, err)
			} else {
				pickup.Latitude, pickup.Longitude = &loc.Latitude, &loc.Longitude
			}
		}

		created := pickups.Create(r.Context(), pickup)
		utils.RespondJSON(w, http.StatusCreated, created)
	}
}

// UpdatePickupRequest edits a pickup. A new address without coordinates is re-geocoded.
func UpdatePickupRequest(pickups *store.DualWriteStore[models.PickupRequest], geocoder services.Geocoder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var req models.PickupRequestBody
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		var scratch models.PickupRequest
		if msg := applyPickupRequestBody(&scratch, req); msg != "" {
			utils.RespondError(w, http.StatusBadRequest, msg)
			return
		}

		existing, ok := pickups.Get(id)
		if !ok {
			utils.RespondError(w, http.StatusNotFound, "Pickup request not found")
			return
		}

		var geocoded *services.Location
		addrChanged := req.Address != nil && strings.TrimSpace(*req.Address) != existing.Address
		if addrChanged && req.Latitude == nil && geocoder != nil {
			if loc, err := geocoder.Geocode(r.Context(), strings.TrimSpace(*req.Address)); err != nil {
				log.Printf("⚠️  Could not geocode new address for pickup %s: %v", existing.Name, err)
			} else {
				geocoded = &loc
			}
		}

		updated, err := pickups.Update(r.Context(), id, func(p *models.PickupRequest) {
			applyPickupRequestBody(p, req)
			if geocoded != nil && p.Latitude == nil {
				p.Latitude, p.Longitude = &geocoded.Latitude, &geocoded.Longitude
			}
		})
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				utils.RespondError(w, http.StatusNotFound, "Pickup request not found")
				return
			}
			utils.RespondError(w, http.StatusInternalServerError, "Failed to update pickup request")
			return
		}

		utils.RespondJSON(w, http.StatusOK, updated)
	}
}

func DeletePickupRequest(pickups *store.DualWriteStore[models.PickupRequest]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := pickups.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				utils.RespondError(w, http.StatusNotFound, "Pickup request not found")
				return
			}
			utils.RespondError(w, http.StatusInternalServerError, "Failed to delete pickup request")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// applyPickupRequestBody copies the non-nil fields of req onto p
func applyPickupRequestBody(p *models.PickupRequest, req models.PickupRequestBody) string {
	if msg := validateCoordinates(req.Latitude, req.Longitude); msg != "" {
		return msg
	}
	if req.Name != nil {
		p.Name = strings.TrimSpace(*req.Name)
	}
	if req.Email != nil {
		p.Email = strings.TrimSpace(*req.Email)
	}
	if req.Phone != nil {
		p.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.Address != nil {
		address := strings.TrimSpace(*req.Address)
		if address != p.Address && req.Latitude == nil {
			p.Latitude, p.Longitude = nil, nil
		}
		p.Address = address
	}
	if req.Latitude != nil {
		p.Latitude, p.Longitude = req.Latitude, req.Longitude
	}
	if req.PickupDateIso != nil {
		if strings.TrimSpace(*req.PickupDateIso) == "" {
			p.PickupDate = nil
		} else {
			ts, err := parseISODate(*req.PickupDateIso)
			if err != nil {
				return "Invalid pickupDateIso"
			}
			p.PickupDate = &ts
		}
	}
	if req.Status != nil {
		if !req.Status.Valid() {
			return "Invalid status"
		}
		p.Status = *req.Status
	}
	if req.Notes != nil {
		p.Notes = strings.TrimSpace(*req.Notes)
	}
	return ""
}
