package handlers

import (
	"log"
	"net/http"
	"sort"
	"strconv"
	"time"

	"binfleet-backend/internal/models"
	"binfleet-backend/internal/store"
	"binfleet-backend/pkg/utils"
)

// staleSensorAfter is how long a sensor can stay silent before the bin is flagged
const staleSensorAfter = 24 * time.Hour

// BinWithPriority extends Bin with a calculated collection priority
type BinWithPriority struct {
	models.Bin
	PriorityScore float64 `json:"priority_score"`
	HoursFull     *int    `json:"hours_full,omitempty"`
	SensorStale   bool    `json:"sensor_stale"`
	Unassigned    bool    `json:"unassigned"`
}

// calculateBinPriority computes a weighted collection score for a bin.
// Higher score = collect sooner.
//
// Scoring factors:
// 1. Status (Full: +500, Almost Full: +200)
// 2. Fill level (>=90%: +300, >=75%: +150, >=50%: +50)
// 3. Hours spent Full (+10 per hour, capped at +500)
// 4. Full but unassigned (+250)
// 5. Silent sensor (+100)
func calculateBinPriority(bin models.Bin, now time.Time) BinWithPriority {
	out := BinWithPriority{Bin: bin, Unassigned: bin.AssignedDriverID == nil}
	if bin.Status == models.BinStatusUnavailable {
		return out
	}

	score := 0.0

	switch bin.Status {
	case models.BinStatusFull:
		score += 500.0
	case models.BinStatusAlmostFull:
		score += 200.0
	}

	if bin.FillLevel != nil {
		fill := *bin.FillLevel
		if fill >= 90 {
			score += 300.0
		} else if fill >= 75 {
			score += 150.0
		} else if fill >= 50 {
			score += 50.0
		}
	}

	if bin.FullSince != nil {
		hours := int(now.Sub(time.Unix(*bin.FullSince, 0)).Hours())
		if hours < 0 {
			hours = 0
		}
		out.HoursFull = &hours
		score += min(float64(hours)*10.0, 500.0)
	}

	if bin.Status == models.BinStatusFull && out.Unassigned {
		score += 250.0
	}

	if bin.SensorID != nil {
		if bin.LastSensorUpdate == nil || now.Sub(time.Unix(*bin.LastSensorUpdate, 0)) > staleSensorAfter {
			out.SensorStale = true
			score += 100.0
		}
	}

	out.PriorityScore = score
	return out
}

// GetBinsWithPriority returns bins ordered by collection priority
// Query params:
//   - sort: priority (default), bin_number, fill_level
//   - filter: all (default), full, unassigned, stale_sensor
//   - limit: max results (default: 100)
func GetBinsWithPriority(bins *store.DualWriteStore[models.Bin]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		sortBy := q.Get("sort")
		filter := q.Get("filter")

		limit := 100
		if raw := q.Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				utils.RespondError(w, http.StatusBadRequest, "Invalid limit")
				return
			}
			limit = n
		}

		now := time.Now()
		out := make([]BinWithPriority, 0)
		for _, b := range bins.List() {
			p := calculateBinPriority(b, now)
			switch filter {
			case "full":
				if b.Status != models.BinStatusFull {
					continue
				}
			case "unassigned":
				if !p.Unassigned {
					continue
				}
			case "stale_sensor":
				if !p.SensorStale {
					continue
				}
			}
			out = append(out, p)
		}

		switch sortBy {
		case "bin_number":
			sort.SliceStable(out, func(i, j int) bool {
				return models.BinNumberValue(out[i].BinNumber) < models.BinNumberValue(out[j].BinNumber)
			})
		case "fill_level":
			sort.SliceStable(out, func(i, j int) bool {
				return fillOf(out[i].Bin) > fillOf(out[j].Bin)
			})
		default:
			sort.SliceStable(out, func(i, j int) bool {
				return out[i].PriorityScore > out[j].PriorityScore
			})
		}

		if len(out) > limit {
			out = out[:limit]
		}

		log.Printf("📊 Bin priority: %d bins (sort=%s, filter=%s)", len(out), sortBy, filter)
		utils.RespondJSON(w, http.StatusOK, out)
	}
}

func fillOf(b models.Bin) float64 {
	if b.FillLevel == nil {
		return -1
	}
	return *b.FillLevel
}
