package database

import (
	"context"
	"log"

	"binfleet-backend/internal/models"
	"binfleet-backend/internal/store"
)

type seedBin struct {
	locationName string
	address      string
	lat, lng     float64
	sensorID     string
}

var demoBins = []seedBin{
	{"Queen & Spadina", "455 Queen St W, Toronto, ON", 43.6487, -79.3971, "SENSOR-1001"},
	{"Kensington Market", "214 Augusta Ave, Toronto, ON", 43.6547, -79.4005, "SENSOR-1002"},
	{"St. Lawrence Market", "93 Front St E, Toronto, ON", 43.6487, -79.3716, "SENSOR-1003"},
	{"Yonge & Bloor", "2 Bloor St W, Toronto, ON", 43.6709, -79.3872, "SENSOR-1004"},
	{"Liberty Village", "171 East Liberty St, Toronto, ON", 43.6387, -79.4196, ""},
	{"Leslieville", "1000 Queen St E, Toronto, ON", 43.6609, -79.3364, "SENSOR-1006"},
}

var demoDrivers = []models.Driver{
	{Name: "Alex Morgan", Phone: "416-555-0101", Email: "alex@binfleet.local", Status: models.DriverStatusActive},
	{Name: "Sam Patel", Phone: "416-555-0102", Email: "sam@binfleet.local", Status: models.DriverStatusActive},
}

// SeedBins creates a small demo fleet when the bin collection is empty
func SeedBins(ctx context.Context, bins *store.DualWriteStore[models.Bin]) error {
	if n := len(bins.List()); n > 0 {
		log.Printf("✓ Bins already seeded (%d), skipping...", n)
		return nil
	}

	log.Printf("🌱 Seeding %d bins...", len(demoBins))

	for i, b := range demoBins {
		lat, lng := b.lat, b.lng
		bin := models.Bin{
			BinNumber:    models.FormatBinNumber(i + 1),
			LocationName: b.locationName,
			Address:      b.address,
			Latitude:     &lat,
			Longitude:    &lng,
			Status:       models.BinStatusAvailable,
		}
		if b.sensorID != "" {
			sensorID := b.sensorID
			bin.SensorID = &sensorID
		}
		bins.Create(ctx, bin)
	}

	log.Printf("✓ Seeded %d bins", len(demoBins))
	return nil
}

// SeedDrivers creates demo drivers when the driver collection is empty
func SeedDrivers(ctx context.Context, drivers *store.DualWriteStore[models.Driver]) error {
	if n := len(drivers.List()); n > 0 {
		log.Printf("✓ Drivers already seeded (%d), skipping...", n)
		return nil
	}

	for _, d := range demoDrivers {
		d.ClearBins()
		drivers.Create(ctx, d)
		log.Printf("✓ Created driver: %s", d.Name)
	}
	return nil
}
