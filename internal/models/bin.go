package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// BinStatus is the operational status shown on the fleet dashboard
type BinStatus string

const (
	BinStatusAvailable   BinStatus = "Available"
	BinStatusAlmostFull  BinStatus = "Almost Full"
	BinStatusFull        BinStatus = "Full"
	BinStatusUnavailable BinStatus = "Unavailable"
)

// Valid reports whether s is one of the known bin statuses
func (s BinStatus) Valid() bool {
	switch s {
	case BinStatusAvailable, BinStatusAlmostFull, BinStatusFull, BinStatusUnavailable:
		return true
	}
	return false
}

type Bin struct {
	ID               string    `json:"id" db:"id"`
	BinNumber        string    `json:"bin_number" db:"bin_number"` // BIN###
	LocationName     string    `json:"location_name" db:"location_name"`
	Address          string    `json:"address" db:"address"`
	Latitude         *float64  `json:"latitude,omitempty" db:"latitude"`
	Longitude        *float64  `json:"longitude,omitempty" db:"longitude"`
	Status           BinStatus `json:"status" db:"status"`
	AssignedDriverID *string   `json:"assigned_driver_id,omitempty" db:"assigned_driver_id"`
	SensorID         *string   `json:"sensor_id,omitempty" db:"sensor_id"`
	FillLevel        *float64  `json:"fill_level,omitempty" db:"fill_level"`
	BatteryVoltage   *float64  `json:"battery_voltage,omitempty" db:"battery_voltage"`
	Temperature      *float64  `json:"temperature,omitempty" db:"temperature"`
	LastSensorUpdate *int64    `json:"last_sensor_update,omitempty" db:"last_sensor_update"` // Unix timestamp
	FullSince        *int64    `json:"full_since,omitempty" db:"full_since"`                 // Unix timestamp
	CreatedAt        int64     `json:"created_at" db:"created_at"`                           // Unix timestamp
	UpdatedAt        int64     `json:"updated_at" db:"updated_at"`                           // Unix timestamp
}

func (b Bin) EntityID() string { return b.ID }

func (b Bin) WithID(id string) Bin {
	b.ID = id
	return b
}

// Stamp sets created_at on first write and always bumps updated_at
func (b Bin) Stamp(now time.Time) Bin {
	if b.CreatedAt == 0 {
		b.CreatedAt = now.Unix()
	}
	b.UpdatedAt = now.Unix()
	return b
}

// HasCoordinates reports whether the bin can be placed on a map
func (b *Bin) HasCoordinates() bool {
	return b.Latitude != nil && b.Longitude != nil
}

// IsAssignedTo reports whether the bin's back-reference points at driverID
func (b *Bin) IsAssignedTo(driverID string) bool {
	return b.AssignedDriverID != nil && *b.AssignedDriverID == driverID
}

// SetStatus changes the status and clears full_since whenever the bin leaves Full
func (b *Bin) SetStatus(status BinStatus) {
	if b.Status == BinStatusFull && status != BinStatusFull {
		b.FullSince = nil
	}
	b.Status = status
}

// BinResponse is what we send to the client with ISO timestamps
type BinResponse struct {
	ID                  string    `json:"id"`
	BinNumber           string    `json:"bin_number"`
	LocationName        string    `json:"location_name"`
	Address             string    `json:"address"`
	Latitude            *float64  `json:"latitude,omitempty"`
	Longitude           *float64  `json:"longitude,omitempty"`
	Status              BinStatus `json:"status"`
	AssignedDriverID    *string   `json:"assigned_driver_id,omitempty"`
	AssignedDriverName  *string   `json:"assigned_driver_name,omitempty"`
	SensorID            *string   `json:"sensor_id,omitempty"`
	FillLevel           *float64  `json:"fill_level,omitempty"`
	BatteryVoltage      *float64  `json:"battery_voltage,omitempty"`
	Temperature         *float64  `json:"temperature,omitempty"`
	LastSensorUpdateIso *string   `json:"lastSensorUpdateIso,omitempty"`
	FullSinceIso        *string   `json:"fullSinceIso,omitempty"`
}

// CreateBinRequest is the request body for POST /api/bins
type CreateBinRequest struct {
	BinNumber    string    `json:"bin_number"`
	LocationName string    `json:"location_name"`
	Address      string    `json:"address"`
	Latitude     *float64  `json:"latitude,omitempty"`
	Longitude    *float64  `json:"longitude,omitempty"`
	Status       BinStatus `json:"status"`
	SensorID     *string   `json:"sensor_id,omitempty"`
}

// UpdateBinRequest is the request body for PATCH /api/bins/:id
// Nil fields are left untouched. Assignment goes through the assign endpoints.
type UpdateBinRequest struct {
	LocationName *string    `json:"location_name,omitempty"`
	Address      *string    `json:"address,omitempty"`
	Latitude     *float64   `json:"latitude,omitempty"`
	Longitude    *float64   `json:"longitude,omitempty"`
	Status       *BinStatus `json:"status,omitempty"`
	SensorID     *string    `json:"sensor_id,omitempty"`
}

// ToBinResponse converts a Bin to BinResponse. driverName may be nil.
func (b *Bin) ToBinResponse(driverName *string) BinResponse {
	resp := BinResponse{
		ID:                 b.ID,
		BinNumber:          b.BinNumber,
		LocationName:       b.LocationName,
		Address:            b.Address,
		Latitude:           b.Latitude,
		Longitude:          b.Longitude,
		Status:             b.Status,
		AssignedDriverID:   b.AssignedDriverID,
		AssignedDriverName: driverName,
		SensorID:           b.SensorID,
		FillLevel:          b.FillLevel,
		BatteryVoltage:     b.BatteryVoltage,
		Temperature:        b.Temperature,
	}

	if b.LastSensorUpdate != nil {
		iso := time.Unix(*b.LastSensorUpdate, 0).UTC().Format(time.RFC3339)
		resp.LastSensorUpdateIso = &iso
	}

	if b.FullSince != nil {
		iso := time.Unix(*b.FullSince, 0).UTC().Format(time.RFC3339)
		resp.FullSinceIso = &iso
	}

	return resp
}

// FormatBinNumber renders n as BIN### (at least three digits)
func FormatBinNumber(n int) string {
	return fmt.Sprintf("BIN%03d", n)
}

// BinNumberValue parses the numeric part of BIN###, or -1 when it is not in that form
func BinNumberValue(binNumber string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(binNumber, "BIN"))
	if err != nil || !strings.HasPrefix(binNumber, "BIN") {
		return -1
	}
	return n
}

// NextBinNumber returns the number after the highest BIN### in bins
func NextBinNumber(bins []Bin) string {
	highest := 0
	for _, b := range bins {
		if n := BinNumberValue(b.BinNumber); n > highest {
			highest = n
		}
	}
	return FormatBinNumber(highest + 1)
}
