package services

import "binfleet-backend/internal/models"

// Fill level thresholds (percent). Boundaries belong to the higher band.
const (
	FullThreshold       = 80.0
	AlmostFullThreshold = 50.0
)

// ClassifyFillLevel derives a bin's status from a sensor fill level.
// A bin manually set to Unavailable stays Unavailable.
func ClassifyFillLevel(fillLevel float64, current models.BinStatus) models.BinStatus {
	if current == models.BinStatusUnavailable {
		return models.BinStatusUnavailable
	}

	switch {
	case fillLevel >= FullThreshold:
		return models.BinStatusFull
	case fillLevel >= AlmostFullThreshold:
		return models.BinStatusAlmostFull
	default:
		return models.BinStatusAvailable
	}
}
