package services

import (
	"context"
	"log"
	"sort"
	"time"

	"binfleet-backend/internal/models"
)

// TelemetryReconciler turns sensor readings into bin updates. It never writes
// storage; the caller applies the returned updates.
type TelemetryReconciler struct {
	source MeasurementSource
	now    func() time.Time
}

// NewTelemetryReconciler creates a reconciler reading from source
func NewTelemetryReconciler(source MeasurementSource) *TelemetryReconciler {
	return &TelemetryReconciler{
		source: source,
		now:    time.Now,
	}
}

// WithClock overrides the reconciliation clock (used for full_since)
func (tr *TelemetryReconciler) WithClock(now func() time.Time) *TelemetryReconciler {
	tr.now = now
	return tr
}

// Reconcile fetches the latest readings for every sensor referenced by bins and
// returns one update per bin that has a reading. A gateway failure ends the
// cycle with no updates. bins is not modified.
func (tr *TelemetryReconciler) Reconcile(ctx context.Context, bins []models.Bin) []models.BinUpdate {
	bySensor := make(map[string][]models.Bin)
	for _, bin := range bins {
		if bin.SensorID == nil || *bin.SensorID == "" {
			continue
		}
		bySensor[*bin.SensorID] = append(bySensor[*bin.SensorID], bin)
	}

	if len(bySensor) == 0 {
		log.Printf("ℹ️  No bins have sensors - skipping telemetry reconcile")
		return []models.BinUpdate{}
	}

	sensorIDs := make([]string, 0, len(bySensor))
	for id := range bySensor {
		sensorIDs = append(sensorIDs, id)
	}
	sort.Strings(sensorIDs)

	measurements, err := tr.source.FetchBulkMeasurements(ctx, sensorIDs)
	if err != nil {
		log.Printf("❌ Telemetry fetch failed for %d sensors, skipping cycle: %v", len(sensorIDs), err)
		return []models.BinUpdate{}
	}

	now := tr.now().Unix()
	updates := make([]models.BinUpdate, 0, len(measurements))

	// Walk the response in sensor order so the output is deterministic
	returned := make([]string, 0, len(measurements))
	for id := range measurements {
		returned = append(returned, id)
	}
	sort.Strings(returned)

	for _, sensorID := range returned {
		m := measurements[sensorID]
		matched, ok := bySensor[sensorID]
		if !ok {
			log.Printf("⚠️  Measurement for unknown sensor %s - no bin references it", sensorID)
			continue
		}
		if len(matched) > 1 {
			log.Printf("⚠️  Sensor %s backs %d bins - updating all of them", sensorID, len(matched))
		}

		measuredAt := m.MeasuredAt.Unix()
		if m.MeasuredAt.IsZero() {
			measuredAt = now
		}

		for _, bin := range matched {
			status := ClassifyFillLevel(m.FillLevel, bin.Status)
			update := models.BinUpdate{
				BinID:            bin.ID,
				BinNumber:        bin.BinNumber,
				SensorID:         sensorID,
				PreviousStatus:   bin.Status,
				Status:           status,
				StatusChanged:    status != bin.Status,
				FillLevel:        m.FillLevel,
				BatteryVoltage:   m.BatteryVoltage,
				Temperature:      m.Temperature,
				LastSensorUpdate: measuredAt,
			}

			if update.StatusChanged && status == models.BinStatusFull {
				fullSince := now
				update.FullSince = &fullSince
			}

			if update.StatusChanged {
				log.Printf("🔄 Bin %s: %s → %s (%.0f%% full)", bin.BinNumber, bin.Status, status, m.FillLevel)
			}

			updates = append(updates, update)
		}
	}

	log.Printf("✅ Telemetry reconcile: %d sensors queried, %d readings, %d bin updates",
		len(sensorIDs), len(measurements), len(updates))

	return updates
}
