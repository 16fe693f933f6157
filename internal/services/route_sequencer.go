package services

import (
	"log"
	"sort"

	"binfleet-backend/internal/models"
)

// SequencedStop is a stop with its straight-line distance from the origin
type SequencedStop struct {
	models.PickupStop
	Order              int     `json:"order"`
	DistanceFromOrigin float64 `json:"distance_from_origin_km"`
}

// SequenceResult holds the ordered stops plus the ones that need manual handling
type SequenceResult struct {
	Sequenced []SequencedStop     `json:"sequenced"`
	Unlocated []models.PickupStop `json:"unlocated"`
}

// RouteSequencer orders pickup stops for a single driver
type RouteSequencer struct{}

// NewRouteSequencer creates a new route sequencer
func NewRouteSequencer() *RouteSequencer {
	return &RouteSequencer{}
}

// Sequence orders stops by distance from the fixed origin, closest first.
// This is one stable sort, not a nearest-neighbour chain: every stop is
// measured against the origin, never against the previous stop. Stops without
// usable coordinates are returned in Unlocated. stops is not modified.
func (rs *RouteSequencer) Sequence(origin Location, stops []models.PickupStop) SequenceResult {
	result := SequenceResult{
		Sequenced: make([]SequencedStop, 0, len(stops)),
		Unlocated: make([]models.PickupStop, 0),
	}

	for _, stop := range stops {
		if stop.Latitude == nil || stop.Longitude == nil || !ValidCoordinates(*stop.Latitude, *stop.Longitude) {
			log.Printf("⚠️  Stop %s (%s) has no usable coordinates - needs manual handling", stop.ID, stop.Label)
			result.Unlocated = append(result.Unlocated, stop)
			continue
		}

		result.Sequenced = append(result.Sequenced, SequencedStop{
			PickupStop: stop,
			DistanceFromOrigin: DistanceKm(
				origin.Latitude,
				origin.Longitude,
				*stop.Latitude,
				*stop.Longitude,
			),
		})
	}

	// Closest to start first; equal distances keep input order
	sort.SliceStable(result.Sequenced, func(i, j int) bool {
		return result.Sequenced[i].DistanceFromOrigin < result.Sequenced[j].DistanceFromOrigin
	})

	for i := range result.Sequenced {
		result.Sequenced[i].Order = i + 1
	}

	log.Printf("🎯 Sequenced %d stops from (%.6f, %.6f), %d unlocated",
		len(result.Sequenced), origin.Latitude, origin.Longitude, len(result.Unlocated))

	return result
}

// TotalDistanceKm is the straight-line length of origin -> stop 1 -> ... -> stop N
func (rs *RouteSequencer) TotalDistanceKm(origin Location, result SequenceResult) float64 {
	total := 0.0
	current := origin
	for _, stop := range result.Sequenced {
		total += DistanceKm(current.Latitude, current.Longitude, *stop.Latitude, *stop.Longitude)
		current = Location{Latitude: *stop.Latitude, Longitude: *stop.Longitude}
	}
	return total
}

// DirectionsAddresses builds the ordered address list handed to the mapping
// service: origin first, then every sequenced stop.
func (rs *RouteSequencer) DirectionsAddresses(originAddress string, result SequenceResult) []string {
	addresses := make([]string, 0, len(result.Sequenced)+1)
	addresses = append(addresses, originAddress)
	for _, stop := range result.Sequenced {
		addresses = append(addresses, stop.Address)
	}
	return addresses
}
