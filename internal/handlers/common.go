package handlers

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"binfleet-backend/internal/models"
	"binfleet-backend/internal/services"
	"binfleet-backend/internal/store"
	"binfleet-backend/pkg/utils"
)

// respondLedgerError maps ledger and store errors onto HTTP statuses
func respondLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrBinNotFound):
		utils.RespondError(w, http.StatusNotFound, "Bin not found")
	case errors.Is(err, services.ErrDriverNotFound):
		utils.RespondError(w, http.StatusNotFound, "Driver not found")
	case errors.Is(err, services.ErrDriverInactive):
		utils.RespondError(w, http.StatusConflict, "Driver is inactive")
	case errors.Is(err, services.ErrInvalidStatus):
		utils.RespondError(w, http.StatusBadRequest, "Invalid status")
	case errors.Is(err, store.ErrNotFound):
		utils.RespondError(w, http.StatusConflict, "Record changed during update, please retry")
	default:
		log.Printf("❌ Assignment operation failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "Assignment operation failed")
	}
}

func driverNames(drivers []models.Driver) map[string]string {
	names := make(map[string]string, len(drivers))
	for _, d := range drivers {
		names[d.ID] = d.Name
	}
	return names
}

func lookupName(names map[string]string, driverID *string) *string {
	if driverID == nil {
		return nil
	}
	if name, ok := names[*driverID]; ok {
		return &name
	}
	return nil
}

// validateCoordinates returns a client-facing message, or "" when the pair is usable
func validateCoordinates(lat, lng *float64) string {
	if lat == nil && lng == nil {
		return ""
	}
	if lat == nil || lng == nil {
		return "latitude and longitude must be provided together"
	}
	if !services.ValidCoordinates(*lat, *lng) {
		return "Invalid coordinates"
	}
	return ""
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// parseISODate accepts RFC3339 or a plain YYYY-MM-DD date and returns a unix timestamp
func parseISODate(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.Unix(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return 0, err
	}
	return t.Unix(), nil
}
