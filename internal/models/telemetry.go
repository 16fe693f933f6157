package models

import "time"

// Measurement is one sensor reading as returned by the sensor gateway
type Measurement struct {
	ContainerID    string    `json:"container_id"`
	FillLevel      float64   `json:"fill_level"` // 0-100
	BatteryVoltage float64   `json:"battery_voltage"`
	MeasuredAt     time.Time `json:"measured_at"`
	Temperature    float64   `json:"temperature"`
}

// BinUpdate is the change the telemetry reconciler wants applied to one bin
type BinUpdate struct {
	BinID            string    `json:"bin_id"`
	BinNumber        string    `json:"bin_number"`
	SensorID         string    `json:"sensor_id"`
	PreviousStatus   BinStatus `json:"previous_status"`
	Status           BinStatus `json:"status"`
	StatusChanged    bool      `json:"status_changed"`
	FillLevel        float64   `json:"fill_level"`
	BatteryVoltage   float64   `json:"battery_voltage"`
	Temperature      float64   `json:"temperature"`
	LastSensorUpdate int64     `json:"last_sensor_update"`     // Unix timestamp
	FullSince        *int64    `json:"full_since,omitempty"` // set only on a transition into Full
}

// BecameFull reports whether this update moves the bin into Full
func (u BinUpdate) BecameFull() bool {
	return u.StatusChanged && u.Status == BinStatusFull && u.PreviousStatus != BinStatusFull
}

// ApplyTo writes the update onto b. The status is re-checked against the bin's
// current state: a bin that was set Unavailable since the reading was taken
// keeps its manual status, and full_since is only stamped on a real transition.
func (u BinUpdate) ApplyTo(b *Bin) {
	fill := u.FillLevel
	battery := u.BatteryVoltage
	temp := u.Temperature
	ts := u.LastSensorUpdate
	b.FillLevel = &fill
	b.BatteryVoltage = &battery
	b.Temperature = &temp
	b.LastSensorUpdate = &ts

	if !u.StatusChanged || b.Status == BinStatusUnavailable || b.Status == u.Status {
		return
	}

	previous := b.Status
	b.SetStatus(u.Status)
	if u.Status == BinStatusFull && previous != BinStatusFull && u.FullSince != nil {
		since := *u.FullSince
		b.FullSince = &since
	}
}
