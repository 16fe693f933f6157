package main

import (
	"flag"
	"log"

	"binfleet-backend/internal/config"
	"binfleet-backend/internal/database"
)

// Usage: migrate [up|down|status|version]
func main() {
	flag.Parse()
	command := "up"
	if flag.NArg() > 0 {
		command = flag.Arg(0)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	db, err := database.Connect(cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := database.RunGoose(db, command); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	if command != "up" {
		return
	}

	// Query and display summary
	var result struct {
		TotalBins     int `db:"total_bins"`
		BinsNoCoords  int `db:"bins_without_coords"`
		FullBins      int `db:"full_bins"`
		AssignedBins  int `db:"assigned_bins"`
		ActiveDrivers int `db:"active_drivers"`
	}

	query := `
		SELECT
			(SELECT COUNT(*) FROM bins) AS total_bins,
			(SELECT COUNT(*) FROM bins WHERE latitude IS NULL OR longitude IS NULL) AS bins_without_coords,
			(SELECT COUNT(*) FROM bins WHERE status = 'Full') AS full_bins,
			(SELECT COUNT(*) FROM bins WHERE assigned_driver_id IS NOT NULL) AS assigned_bins,
			(SELECT COUNT(*) FROM drivers WHERE status = 'Active') AS active_drivers
	`
	if err := db.Get(&result, query); err != nil {
		log.Printf("⚠️  Could not load fleet summary: %v", err)
		return
	}

	log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Println("📊 Fleet summary")
	log.Printf("   Bins: %d (%d without coordinates, %d full, %d assigned)",
		result.TotalBins, result.BinsNoCoords, result.FullBins, result.AssignedBins)
	log.Printf("   Active drivers: %d", result.ActiveDrivers)
	log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
}
