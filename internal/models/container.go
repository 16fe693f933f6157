package models

import "time"

type ContainerStatus string

const (
	ContainerStatusLoading   ContainerStatus = "Loading"
	ContainerStatusShipped   ContainerStatus = "Shipped"
	ContainerStatusDelivered ContainerStatus = "Delivered"
)

func (s ContainerStatus) Valid() bool {
	switch s {
	case ContainerStatusLoading, ContainerStatusShipped, ContainerStatusDelivered:
		return true
	}
	return false
}

// Container is a shipping container that bales are loaded into
type Container struct {
	ID              string          `json:"id" db:"id"`
	ContainerNumber string          `json:"container_number" db:"container_number"`
	Destination     string          `json:"destination" db:"destination"`
	ShippingDate    *int64          `json:"shipping_date,omitempty" db:"shipping_date"` // Unix timestamp
	Status          ContainerStatus `json:"status" db:"status"`
	BaleCount       int             `json:"bale_count" db:"bale_count"`
	TotalWeightKg   float64         `json:"total_weight_kg" db:"total_weight_kg"`
	CreatedAt       int64           `json:"created_at" db:"created_at"`
	UpdatedAt       int64           `json:"updated_at" db:"updated_at"`
}

func (c Container) EntityID() string { return c.ID }

func (c Container) WithID(id string) Container {
	c.ID = id
	return c
}

func (c Container) Stamp(now time.Time) Container {
	if c.CreatedAt == 0 {
		c.CreatedAt = now.Unix()
	}
	c.UpdatedAt = now.Unix()
	return c
}

// ContainerRequest is the body for POST and PATCH /api/containers
type ContainerRequest struct {
	ContainerNumber *string          `json:"container_number,omitempty"`
	Destination     *string          `json:"destination,omitempty"`
	ShippingDateIso *string          `json:"shippingDateIso,omitempty"`
	Status          *ContainerStatus `json:"status,omitempty"`
	BaleCount       *int             `json:"bale_count,omitempty"`
	TotalWeightKg   *float64         `json:"total_weight_kg,omitempty"`
}
