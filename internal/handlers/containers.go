package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"

	"binfleet-backend/internal/models"
	"binfleet-backend/internal/store"
	"binfleet-backend/pkg/utils"

	"github.com/go-chi/chi/v5"
)

func GetContainers(containers *store.DualWriteStore[models.Container]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list := containers.List()
		// Newest shipments first
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].CreatedAt > list[j].CreatedAt
		})
		utils.RespondJSON(w, http.StatusOK, list)
	}
}

func CreateContainer(containers *store.DualWriteStore[models.Container]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.ContainerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if req.ContainerNumber == nil || strings.TrimSpace(*req.ContainerNumber) == "" {
			utils.RespondError(w, http.StatusBadRequest, "container_number is required")
			return
		}

		container := models.Container{Status: models.ContainerStatusLoading}
		if msg := applyContainerRequest(&container, req); msg != "" {
			utils.RespondError(w, http.StatusBadRequest, msg)
			return
		}

		created := containers.Create(r.Context(), container)
		utils.RespondJSON(w, http.StatusCreated, created)
	}
}

func UpdateContainer(containers *store.DualWriteStore[models.Container]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var req models.ContainerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		// Validate against a scratch copy so a bad request changes nothing
		var scratch models.Container
		if msg := applyContainerRequest(&scratch, req); msg != "" {
			utils.RespondError(w, http.StatusBadRequest, msg)
			return
		}

		updated, err := containers.Update(r.Context(), id, func(c *models.Container) {
			applyContainerRequest(c, req)
		})
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				utils.RespondError(w, http.StatusNotFound, "Container not found")
				return
			}
			utils.RespondError(w, http.StatusInternalServerError, "Failed to update container")
			return
		}

		utils.RespondJSON(w, http.StatusOK, updated)
	}
}

func DeleteContainer(containers *store.DualWriteStore[models.Container]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := containers.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				utils.RespondError(w, http.StatusNotFound, "Container not found")
				return
			}
			utils.RespondError(w, http.StatusInternalServerError, "Failed to delete container")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// applyContainerRequest copies the non-nil fields of req onto c
func applyContainerRequest(c *models.Container, req models.ContainerRequest) string {
	if req.ContainerNumber != nil {
		c.ContainerNumber = strings.TrimSpace(*req.ContainerNumber)
	}
	if req.Destination != nil {
		c.Destination = strings.TrimSpace(*req.Destination)
	}
	if req.ShippingDateIso != nil {
		if strings.TrimSpace(*req.ShippingDateIso) == "" {
			c.ShippingDate = nil
		} else {
			ts, err := parseISODate(*req.ShippingDateIso)
			if err != nil {
				return "Invalid shippingDateIso"
			}
			c.ShippingDate = &ts
		}
	}
	if req.Status != nil {
		if !req.Status.Valid() {
			return "Invalid status"
		}
		c.Status = *req.Status
	}
	if req.BaleCount != nil {
		if *req.BaleCount < 0 {
			return "bale_count cannot be negative"
		}
		c.BaleCount = *req.BaleCount
	}
	if req.TotalWeightKg != nil {
		if *req.TotalWeightKg < 0 {
			return "total_weight_kg cannot be negative"
		}
		c.TotalWeightKg = *req.TotalWeightKg
	}
	return ""
}
