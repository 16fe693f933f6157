package models

import (
	"time"

	"github.com/lib/pq"
)

type DriverStatus string

const (
	DriverStatusActive   DriverStatus = "Active"
	DriverStatusInactive DriverStatus = "Inactive"
)

func (s DriverStatus) Valid() bool {
	return s == DriverStatusActive || s == DriverStatusInactive
}

type Driver struct {
	ID           string         `json:"id" db:"id"`
	Name         string         `json:"name" db:"name"`
	Phone        string         `json:"phone" db:"phone"`
	Email        string         `json:"email" db:"email"`
	FCMToken     *string        `json:"fcm_token,omitempty" db:"fcm_token"`
	Status       DriverStatus   `json:"status" db:"status"`
	AssignedBins pq.StringArray `json:"assigned_bins" db:"assigned_bins"` // set of bin numbers
	CreatedAt    int64          `json:"created_at" db:"created_at"`       // Unix timestamp
	UpdatedAt    int64          `json:"updated_at" db:"updated_at"`       // Unix timestamp
}

func (d Driver) EntityID() string { return d.ID }

func (d Driver) WithID(id string) Driver {
	d.ID = id
	return d
}

func (d Driver) Stamp(now time.Time) Driver {
	if d.CreatedAt == 0 {
		d.CreatedAt = now.Unix()
	}
	d.UpdatedAt = now.Unix()
	return d
}

// HasBin reports whether binNumber is in the driver's assigned set
func (d *Driver) HasBin(binNumber string) bool {
	for _, n := range d.AssignedBins {
		if n == binNumber {
			return true
		}
	}
	return false
}

// AddBins unions binNumbers into the assigned set. Always allocates a new slice
// so copies of the driver never share the backing array.
func (d *Driver) AddBins(binNumbers ...string) {
	next := make(pq.StringArray, 0, len(d.AssignedBins)+len(binNumbers))
	seen := make(map[string]struct{}, len(d.AssignedBins)+len(binNumbers))
	for _, n := range append(append([]string{}, d.AssignedBins...), binNumbers...) {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		next = append(next, n)
	}
	d.AssignedBins = next
}

// RemoveBins drops binNumbers from the assigned set
func (d *Driver) RemoveBins(binNumbers ...string) {
	drop := make(map[string]struct{}, len(binNumbers))
	for _, n := range binNumbers {
		drop[n] = struct{}{}
	}
	next := make(pq.StringArray, 0, len(d.AssignedBins))
	for _, n := range d.AssignedBins {
		if _, ok := drop[n]; ok {
			continue
		}
		next = append(next, n)
	}
	d.AssignedBins = next
}

// ClearBins empties the assigned set
func (d *Driver) ClearBins() {
	d.AssignedBins = pq.StringArray{}
}

// CreateDriverRequest is the request body for POST /api/drivers
type CreateDriverRequest struct {
	Name     string       `json:"name"`
	Phone    string       `json:"phone"`
	Email    string       `json:"email"`
	FCMToken *string      `json:"fcm_token,omitempty"`
	Status   DriverStatus `json:"status"`
}

// UpdateDriverRequest is the request body for PATCH /api/drivers/:id
// Status and assignments have their own endpoints so the ledger sees every change.
type UpdateDriverRequest struct {
	Name     *string `json:"name,omitempty"`
	Phone    *string `json:"phone,omitempty"`
	Email    *string `json:"email,omitempty"`
	FCMToken *string `json:"fcm_token,omitempty"`
}

// DriverResponse is what we send to the client (no push token)
type DriverResponse struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Phone        string       `json:"phone"`
	Email        string       `json:"email"`
	Status       DriverStatus `json:"status"`
	AssignedBins []string     `json:"assigned_bins"`
	HasPushToken bool         `json:"has_push_token"`
}

func (d *Driver) ToDriverResponse() DriverResponse {
	bins := make([]string, len(d.AssignedBins))
	copy(bins, d.AssignedBins)
	return DriverResponse{
		ID:           d.ID,
		Name:         d.Name,
		Phone:        d.Phone,
		Email:        d.Email,
		Status:       d.Status,
		AssignedBins: bins,
		HasPushToken: d.FCMToken != nil && *d.FCMToken != "",
	}
}
