package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"binfleet-backend/internal/config"
	"binfleet-backend/internal/database"
	"binfleet-backend/internal/handlers"
	"binfleet-backend/internal/middleware"
	"binfleet-backend/internal/models"
	"binfleet-backend/internal/services"
	"binfleet-backend/internal/store"
	"binfleet-backend/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

func main() {
	log.Println("═══════════════════════════════════════════════════════════════════")
	log.Println("🚀 BINFLEET BACKEND SERVER STARTING")
	log.Println("═══════════════════════════════════════════════════════════════════")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Println("📂 Loading configuration...")
	cfg, err := config.Load()
	if err != nil {
		log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		log.Println("❌ FATAL ERROR: Invalid configuration")
		log.Printf("   Error: %v", err)
		log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		log.Fatal(err)
	}
	log.Printf("✅ Configuration loaded (remote: %v, local cache: %s)", cfg.RemoteEnabled, cfg.LocalCache)

	// Remote database. Without it every store runs local-only.
	var db *sqlx.DB
	if cfg.RemoteEnabled {
		db, err = database.Connect(cfg.DBDriver, cfg.DatabaseURL)
		if err != nil {
			log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
			log.Println("❌ Database connection failed - continuing on local cache only")
			log.Printf("   Error: %v", err)
			log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
			db = nil
		} else {
			defer db.Close()
			log.Println("🔄 Running database migrations...")
			if err := database.Migrate(db); err != nil {
				log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
				log.Println("❌ FATAL ERROR: Database migrations failed")
				log.Printf("   Error: %v", err)
				log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
				log.Fatal(err)
			}
		}
	}

	// Local cache backend
	caches, closeCaches, err := openCaches(ctx, cfg)
	if err != nil {
		log.Fatalf("❌ FATAL ERROR: local cache unavailable: %v", err)
	}
	defer closeCaches()

	opts := store.Options{RemoteEnabled: db != nil}
	bins := store.NewDualWriteStore("bins", remoteFor[models.Bin](db, store.BinsTable), newCache[models.Bin](caches, "bins"), opts)
	drivers := store.NewDualWriteStore("drivers", remoteFor[models.Driver](db, store.DriversTable), newCache[models.Driver](caches, "drivers"), opts)
	containers := store.NewDualWriteStore("containers", remoteFor[models.Container](db, store.ContainersTable), newCache[models.Container](caches, "containers"), opts)
	pickups := store.NewDualWriteStore("pickup_requests", remoteFor[models.PickupRequest](db, store.PickupRequestsTable), newCache[models.PickupRequest](caches, "pickup_requests"), opts)

	log.Println("📦 Loading fleet state...")
	bins.LoadAll(ctx)
	drivers.LoadAll(ctx)
	containers.LoadAll(ctx)
	pickups.LoadAll(ctx)

	if cfg.SeedDemoData {
		log.Println("🌱 Seeding demo data...")
		if err := database.SeedDrivers(ctx, drivers); err != nil {
			log.Printf("⚠️  Driver seeding failed: %v", err)
		}
		if err := database.SeedBins(ctx, bins); err != nil {
			log.Printf("⚠️  Bin seeding failed: %v", err)
		}
	}

	// Firebase Cloud Messaging (optional)
	var notifier services.DriverNotifier
	if fcmService := initFCM(cfg); fcmService != nil {
		notifier = fcmService
	}

	ledger := services.NewAssignmentLedger(bins, drivers, notifier)
	if _, err := ledger.Reconcile(ctx); err != nil {
		log.Printf("⚠️  Startup assignment audit failed: %v", err)
	}

	// WebSocket hub
	wsHub := websocket.NewHub(func() interface{} {
		return map[string]interface{}{
			"bins":    bins.List(),
			"drivers": driverResponses(drivers.List()),
		}
	})
	go wsHub.Run(ctx)
	ledger.WithEvents(wsHub)
	log.Println("✅ WebSocket hub started")

	// Telemetry
	var poller *services.TelemetryPoller
	if cfg.TelemetryEnabled() {
		gateway := services.NewSensorGatewayClient(cfg.SensorAPIURL, cfg.SensorAPIKey, cfg.SensorRequestTimeout)
		reconciler := services.NewTelemetryReconciler(gateway)
		poller = services.NewTelemetryPoller(reconciler, bins, drivers, wsHub, notifier, cfg.SensorPollInterval)
		poller.Start(ctx)
	} else {
		log.Println("⚠️  SENSOR_API_URL not set - telemetry polling disabled")
	}

	var geocoder services.Geocoder
	if cfg.HereAPIKey != "" {
		geocoder = services.NewHEREGeocodingService(cfg.HereAPIKey)
	} else {
		log.Println("⚠️  HERE_API_KEY not set - addresses will not be geocoded")
	}

	sequencer := services.NewRouteSequencer()
	origin := handlers.RouteOrigin{
		Location: services.Location{Latitude: cfg.OriginLat, Longitude: cfg.OriginLng},
		Address:  cfg.OriginAddress,
	}

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	// WebSocket endpoint (authentication handled in handler via query param)
	r.Get("/ws", websocket.HandleWebSocket(wsHub, cfg.JWTSecret))

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))

		// Read-only fleet views for any signed-in user
		r.Get("/bins", handlers.GetBins(bins, drivers))
		r.Get("/bins/priority", handlers.GetBinsWithPriority(bins))
		r.Get("/drivers", handlers.GetDrivers(drivers))
		r.Get("/containers", handlers.GetContainers(containers))
		r.Get("/pickup-requests", handlers.GetPickupRequests(pickups))
		r.Post("/routes/sequence", handlers.SequenceRoute(bins, pickups, sequencer, origin))
		r.Post("/bins/nearby", handlers.NearbyBins(bins, sequencer))
		r.Post("/geocoding/forward", handlers.Geocode(geocoder))
		r.Post("/geocoding/forward/batch", handlers.BatchGeocode(geocoder))

		// Dashboard (admin) endpoints
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole("admin"))

			r.Post("/bins", handlers.CreateBin(bins, geocoder))
			r.Patch("/bins/{id}", handlers.UpdateBin(bins, drivers, geocoder))
			r.Delete("/bins/{id}", handlers.DeleteBin(ledger))
			r.Post("/bins/{id}/assign", handlers.AssignBin(ledger, drivers))
			r.Post("/bins/bulk-assign", handlers.BulkAssignBins(ledger, drivers))

			r.Post("/drivers", handlers.CreateDriver(drivers))
			r.Patch("/drivers/{id}", handlers.UpdateDriver(drivers))
			r.Delete("/drivers/{id}", handlers.DeleteDriver(ledger))
			r.Put("/drivers/{id}/status", handlers.SetDriverStatus(ledger))

			r.Post("/containers", handlers.CreateContainer(containers))
			r.Patch("/containers/{id}", handlers.UpdateContainer(containers))
			r.Delete("/containers/{id}", handlers.DeleteContainer(containers))

			r.Post("/pickup-requests", handlers.CreatePickupRequest(pickups, geocoder))
			r.Patch("/pickup-requests/{id}", handlers.UpdatePickupRequest(pickups, geocoder))
			r.Delete("/pickup-requests/{id}", handlers.DeletePickupRequest(pickups))

			r.Post("/telemetry/reconcile", handlers.ReconcileTelemetry(poller))
			r.Post("/assignments/audit", handlers.AuditAssignments(ledger))
		})
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Println("═══════════════════════════════════════════════════════════════════")
	log.Println("✅ ALL INITIALIZATION COMPLETE")
	log.Printf("🚀 Server starting on http://localhost:%s", cfg.Port)
	log.Println("═══════════════════════════════════════════════════════════════════")

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
			log.Println("❌ FATAL ERROR: Server failed to start")
			log.Printf("   Error: %v", err)
			log.Printf("   Port: %s", cfg.Port)
			log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	log.Println("🛑 Shutting down...")

	if poller != nil {
		poller.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️  HTTP shutdown: %v", err)
	}

	// Let queued remote writes land before the database closes
	bins.Wait()
	drivers.Wait()
	containers.Wait()
	pickups.Wait()
	log.Println("👋 Server stopped")
}

// cacheBackends holds whichever local cache connection LOCAL_CACHE selected
type cacheBackends struct {
	redis  *redis.Client
	sqlite *sql.DB
}

func openCaches(ctx context.Context, cfg config.Config) (cacheBackends, func(), error) {
	switch cfg.LocalCache {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			return cacheBackends{}, func() {}, err
		}
		log.Printf("✅ Redis cache connected (%s)", cfg.RedisAddr)
		return cacheBackends{redis: client}, func() { client.Close() }, nil

	case "sqlite":
		db, err := store.OpenSQLiteCache(cfg.SQLiteCachePath)
		if err != nil {
			return cacheBackends{}, func() {}, err
		}
		log.Printf("✅ SQLite cache opened (%s)", cfg.SQLiteCachePath)
		return cacheBackends{sqlite: db}, func() { db.Close() }, nil
	}

	log.Println("⚠️  Using in-memory cache - local state will not survive a restart")
	return cacheBackends{}, func() {}, nil
}

func newCache[T any](b cacheBackends, collection string) store.Cache[T] {
	switch {
	case b.redis != nil:
		return store.NewRedisCache[T](b.redis, "binfleet", collection)
	case b.sqlite != nil:
		return store.NewSQLiteCache[T](b.sqlite, collection)
	}
	return store.NewMemoryCache[T]()
}

// remoteFor returns a nil interface when there is no database so the store runs local-only
func remoteFor[T store.Entity[T]](db *sqlx.DB, table store.Table) store.Remote[T] {
	if db == nil {
		return nil
	}
	return store.NewSQLRemote[T](db, table)
}

func initFCM(cfg config.Config) *services.FCMService {
	if cfg.FirebaseCredentialsBase64 != "" {
		fcmService, err := services.NewFCMServiceFromBase64(cfg.FirebaseCredentialsBase64)
		if err != nil {
			log.Printf("⚠️  Failed to initialize FCM from base64: %v (push notifications disabled)", err)
			return nil
		}
		log.Println("✅ Firebase Cloud Messaging initialized from base64 credentials")
		return fcmService
	}

	fcmService, err := services.NewFCMService(cfg.FirebaseCredentialsFile)
	if err != nil {
		log.Printf("⚠️  Failed to initialize FCM from file: %v (push notifications disabled)", err)
		return nil
	}
	log.Println("✅ Firebase Cloud Messaging initialized from file")
	return fcmService
}

func driverResponses(drivers []models.Driver) []models.DriverResponse {
	out := make([]models.DriverResponse, len(drivers))
	for i := range drivers {
		out[i] = drivers[i].ToDriverResponse()
	}
	return out
}
