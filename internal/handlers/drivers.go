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

// GetDrivers returns all drivers, optionally filtered by status
func GetDrivers(drivers *store.DualWriteStore[models.Driver]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := models.DriverStatus(r.URL.Query().Get("status"))

		responses := make([]models.DriverResponse, 0)
		for _, d := range drivers.List() {
			if status != "" && d.Status != status {
				continue
			}
			responses = append(responses, d.ToDriverResponse())
		}

		utils.RespondJSON(w, http.StatusOK, responses)
	}
}

// CreateDriver adds a driver with an empty route
func CreateDriver(drivers *store.DualWriteStore[models.Driver]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.CreateDriverRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			utils.RespondError(w, http.StatusBadRequest, "name is required")
			return
		}
		if req.Status == "" {
			req.Status = models.DriverStatusActive
		}
		if !req.Status.Valid() {
			utils.RespondError(w, http.StatusBadRequest, "Invalid status")
			return
		}

		driver := models.Driver{
			Name:     req.Name,
			Phone:    strings.TrimSpace(req.Phone),
			Email:    strings.TrimSpace(req.Email),
			FCMToken: trimmedOrNil(req.FCMToken),
			Status:   req.Status,
		}
		driver.ClearBins()

		created := drivers.Create(r.Context(), driver)
		log.Printf("✅ Created driver %s", created.Name)

		utils.RespondJSON(w, http.StatusCreated, created.ToDriverResponse())
	}
}

// UpdateDriver edits contact details and the push token
func UpdateDriver(drivers *store.DualWriteStore[models.Driver]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var req models.UpdateDriverRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
			utils.RespondError(w, http.StatusBadRequest, "name cannot be empty")
			return
		}

		updated, err := drivers.Update(r.Context(), id, func(d *models.Driver) {
			if req.Name != nil {
				d.Name = strings.TrimSpace(*req.Name)
			}
			if req.Phone != nil {
				d.Phone = strings.TrimSpace(*req.Phone)
			}
			if req.Email != nil {
				d.Email = strings.TrimSpace(*req.Email)
			}
			if req.FCMToken != nil {
				d.FCMToken = trimmedOrNil(req.FCMToken)
			}
		})
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				utils.RespondError(w, http.StatusNotFound, "Driver not found")
				return
			}
			utils.RespondError(w, http.StatusInternalServerError, "Failed to update driver")
			return
		}

		utils.RespondJSON(w, http.StatusOK, updated.ToDriverResponse())
	}
}

type driverStatusRequest struct {
	Status models.DriverStatus `json:"status"`
}

// SetDriverStatus activates or deactivates a driver. Deactivating releases their bins.
func SetDriverStatus(ledger *services.AssignmentLedger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var req driverStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		driver, err := ledger.SetDriverStatus(r.Context(), id, req.Status)
		if err != nil {
			respondLedgerError(w, err)
			return
		}

		utils.RespondJSON(w, http.StatusOK, driver.ToDriverResponse())
	}
}

// DeleteDriver removes a driver and unassigns their bins
func DeleteDriver(ledger *services.AssignmentLedger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		if err := ledger.DeleteDriver(r.Context(), id); err != nil {
			respondLedgerError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
