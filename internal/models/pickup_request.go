package models

import "time"

type PickupStatus string

const (
	PickupStatusPending   PickupStatus = "Pending"
	PickupStatusScheduled PickupStatus = "Scheduled"
	PickupStatusCompleted PickupStatus = "Completed"
	PickupStatusCancelled PickupStatus = "Cancelled"
)

func (s PickupStatus) Valid() bool {
	switch s {
	case PickupStatusPending, PickupStatusScheduled, PickupStatusCompleted, PickupStatusCancelled:
		return true
	}
	return false
}

// PickupRequest is a donor asking for an at-home pickup
type PickupRequest struct {
	ID         string       `json:"id" db:"id"`
	Name       string       `json:"name" db:"name"`
	Email      string       `json:"email" db:"email"`
	Phone      string       `json:"phone" db:"phone"`
	Address    string       `json:"address" db:"address"`
	Latitude   *float64     `json:"latitude,omitempty" db:"latitude"`
	Longitude  *float64     `json:"longitude,omitempty" db:"longitude"`
	PickupDate *int64       `json:"pickup_date,omitempty" db:"pickup_date"` // Unix timestamp
	Status     PickupStatus `json:"status" db:"status"`
	Notes      string       `json:"notes" db:"notes"`
	CreatedAt  int64        `json:"created_at" db:"created_at"`
	UpdatedAt  int64        `json:"updated_at" db:"updated_at"`
}

func (p PickupRequest) EntityID() string { return p.ID }

func (p PickupRequest) WithID(id string) PickupRequest {
	p.ID = id
	return p
}

func (p PickupRequest) Stamp(now time.Time) PickupRequest {
	if p.CreatedAt == 0 {
		p.CreatedAt = now.Unix()
	}
	p.UpdatedAt = now.Unix()
	return p
}

// PickupRequestBody is the body for POST and PATCH /api/pickup-requests
type PickupRequestBody struct {
	Name          *string       `json:"name,omitempty"`
	Email         *string       `json:"email,omitempty"`
	Phone         *string       `json:"phone,omitempty"`
	Address       *string       `json:"address,omitempty"`
	Latitude      *float64      `json:"latitude,omitempty"`
	Longitude     *float64      `json:"longitude,omitempty"`
	PickupDateIso *string       `json:"pickupDateIso,omitempty"`
	Status        *PickupStatus `json:"status,omitempty"`
	Notes         *string       `json:"notes,omitempty"`
}
