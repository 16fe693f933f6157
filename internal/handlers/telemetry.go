package handlers

import (
	"errors"
	"net/http"

	"binfleet-backend/internal/services"
	"binfleet-backend/pkg/utils"
)

// ReconcileTelemetry runs one telemetry cycle now instead of waiting for the ticker
func ReconcileTelemetry(poller *services.TelemetryPoller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if poller == nil {
			utils.RespondError(w, http.StatusServiceUnavailable, "Sensor gateway is not configured")
			return
		}

		updates, err := poller.RunOnce(r.Context())
		if errors.Is(err, services.ErrPollInProgress) {
			utils.RespondError(w, http.StatusConflict, "A telemetry cycle is already running")
			return
		}
		if err != nil {
			utils.RespondError(w, http.StatusInternalServerError, "Telemetry reconcile failed")
			return
		}

		changed := 0
		for _, u := range updates {
			if u.StatusChanged {
				changed++
			}
		}

		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
			"success":        true,
			"updates":        updates,
			"count":          len(updates),
			"status_changes": changed,
		})
	}
}

// AuditAssignments rebuilds driver routes from the bins and reports what was repaired
func AuditAssignments(ledger *services.AssignmentLedger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := ledger.Reconcile(r.Context())
		if err != nil {
			respondLedgerError(w, err)
			return
		}
		utils.RespondJSON(w, http.StatusOK, report)
	}
}
