package models

// StopKind tells the dashboard what a pickup stop was built from
type StopKind string

const (
	StopKindBin           StopKind = "bin"
	StopKindPickupRequest StopKind = "pickup_request"
)

// PickupStop is a bin or pickup request reduced to what route sequencing needs
type PickupStop struct {
	ID        string   `json:"id"`
	Kind      StopKind `json:"kind"`
	Label     string   `json:"label"`
	Address   string   `json:"address"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

func StopFromBin(b Bin) PickupStop {
	return PickupStop{
		ID:        b.ID,
		Kind:      StopKindBin,
		Label:     b.BinNumber,
		Address:   b.Address,
		Latitude:  b.Latitude,
		Longitude: b.Longitude,
	}
}

func StopFromPickupRequest(p PickupRequest) PickupStop {
	return PickupStop{
		ID:        p.ID,
		Kind:      StopKindPickupRequest,
		Label:     p.Name,
		Address:   p.Address,
		Latitude:  p.Latitude,
		Longitude: p.Longitude,
	}
}
