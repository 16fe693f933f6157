package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"binfleet-backend/internal/models"
	"binfleet-backend/internal/services"
	"binfleet-backend/internal/store"

	"github.com/go-chi/chi/v5"
)

func floatPtr(f float64) *float64 {
	return &f
}

type fleet struct {
	bins    *store.DualWriteStore[models.Bin]
	drivers *store.DualWriteStore[models.Driver]
	pickups *store.DualWriteStore[models.PickupRequest]
	ledger  *services.AssignmentLedger
	router  chi.Router
}

// stubGeocoder resolves every address to the same point
type stubGeocoder struct {
	loc   services.Location
	err   error
	calls int
}

func (g *stubGeocoder) Geocode(ctx context.Context, address string) (services.Location, error) {
	g.calls++
	return g.loc, g.err
}

func newFleet(t *testing.T, geocoder services.Geocoder) *fleet {
	t.Helper()
	ctx := context.Background()

	f := &fleet{
		bins:    store.NewDualWriteStore[models.Bin]("bins", nil, nil, store.Options{}),
		drivers: store.NewDualWriteStore[models.Driver]("drivers", nil, nil, store.Options{}),
		pickups: store.NewDualWriteStore[models.PickupRequest]("pickup_requests", nil, nil, store.Options{}),
	}

	f.bins.RestoreLocal(ctx, models.Bin{ID: "b1", BinNumber: "BIN001", Address: "1 King St", Latitude: floatPtr(43.70), Longitude: floatPtr(-79.38), Status: models.BinStatusAvailable, FillLevel: floatPtr(20)})
	f.bins.RestoreLocal(ctx, models.Bin{ID: "b2", BinNumber: "BIN002", Address: "2 King St", Latitude: floatPtr(43.66), Longitude: floatPtr(-79.38), Status: models.BinStatusFull, FillLevel: floatPtr(90)})
	f.bins.RestoreLocal(ctx, models.Bin{ID: "b3", BinNumber: "BIN003", Address: "Somewhere", Status: models.BinStatusAvailable})
	f.drivers.RestoreLocal(ctx, models.Driver{ID: "d1", Name: "Alex", Status: models.DriverStatusActive})
	f.drivers.RestoreLocal(ctx, models.Driver{ID: "d2", Name: "Casey", Status: models.DriverStatusInactive})
	f.pickups.RestoreLocal(ctx, models.PickupRequest{ID: "p1", Name: "Donor", Address: "5 Bay St", Latitude: floatPtr(43.68), Longitude: floatPtr(-79.38), Status: models.PickupStatusPending})

	f.ledger = services.NewAssignmentLedger(f.bins, f.drivers, nil)
	sequencer := services.NewRouteSequencer()
	origin := RouteOrigin{Location: services.Location{Latitude: 43.65, Longitude: -79.38}, Address: "Warehouse"}

	r := chi.NewRouter()
	r.Get("/bins", GetBins(f.bins, f.drivers))
	r.Get("/bins/priority", GetBinsWithPriority(f.bins))
	r.Post("/bins", CreateBin(f.bins, geocoder))
	r.Patch("/bins/{id}", UpdateBin(f.bins, f.drivers, geocoder))
	r.Delete("/bins/{id}", DeleteBin(f.ledger))
	r.Post("/bins/{id}/assign", AssignBin(f.ledger, f.drivers))
	r.Post("/bins/bulk-assign", BulkAssignBins(f.ledger, f.drivers))
	r.Post("/bins/nearby", NearbyBins(f.bins, sequencer))
	r.Put("/drivers/{id}/status", SetDriverStatus(f.ledger))
	r.Patch("/pickup-requests/{id}", UpdatePickupRequest(f.pickups, geocoder))
	r.Post("/routes/sequence", SequenceRoute(f.bins, f.pickups, sequencer, origin))
	r.Post("/geocoding/forward", Geocode(geocoder))
	r.Post("/geocoding/forward/batch", BatchGeocode(geocoder))
	f.router = r
	return f
}

func (f *fleet) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestAssignBinEndpoint(t *testing.T) {
	f := newFleet(t, nil)

	rec := f.do(t, http.MethodPost, "/bins/b1/assign", `{"driver_id": "d1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	resp := decode[models.BinResponse](t, rec)
	if resp.AssignedDriverName == nil || *resp.AssignedDriverName != "Alex" {
		t.Fatalf("assigned driver name = %v, want Alex", resp.AssignedDriverName)
	}
	if d1, _ := f.drivers.Get("d1"); !d1.HasBin("BIN001") {
		t.Fatalf("driver set not updated: %v", d1.AssignedBins)
	}

	if rec := f.do(t, http.MethodPost, "/bins/b1/assign", `{"driver_id": null}`); rec.Code != http.StatusOK {
		t.Fatalf("unassign status = %d", rec.Code)
	}
	if d1, _ := f.drivers.Get("d1"); d1.HasBin("BIN001") {
		t.Fatalf("driver still holds BIN001 after unassign")
	}
}

func TestAssignBinErrors(t *testing.T) {
	f := newFleet(t, nil)

	tests := []struct {
		path, body string
		want       int
	}{
		{"/bins/missing/assign", `{"driver_id": "d1"}`, http.StatusNotFound},
		{"/bins/b1/assign", `{"driver_id": "nobody"}`, http.StatusNotFound},
		{"/bins/b1/assign", `{"driver_id": "d2"}`, http.StatusConflict},
		{"/bins/b1/assign", `not json`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		if rec := f.do(t, http.MethodPost, tt.path, tt.body); rec.Code != tt.want {
			t.Errorf("POST %s %s = %d, want %d", tt.path, tt.body, rec.Code, tt.want)
		}
	}
}

func TestBulkAssignEndpoint(t *testing.T) {
	f := newFleet(t, nil)

	rec := f.do(t, http.MethodPost, "/bins/bulk-assign", `{"bin_ids": ["b1", "b2", "ghost"], "driver_id": "d1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	resp := decode[struct {
		Count   int `json:"count"`
		Skipped int `json:"skipped"`
	}](t, rec)
	if resp.Count != 2 || resp.Skipped != 1 {
		t.Fatalf("response = %+v", resp)
	}

	if rec := f.do(t, http.MethodPost, "/bins/bulk-assign", `{"bin_ids": []}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty request status = %d", rec.Code)
	}
}

func TestSetDriverStatusReleasesBins(t *testing.T) {
	f := newFleet(t, nil)
	f.do(t, http.MethodPost, "/bins/bulk-assign", `{"bin_ids": ["b1", "b2"], "driver_id": "d1"}`)

	rec := f.do(t, http.MethodPut, "/drivers/d1/status", `{"status": "Inactive"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	for _, id := range []string{"b1", "b2"} {
		if b, _ := f.bins.Get(id); b.AssignedDriverID != nil {
			t.Fatalf("bin %s still assigned", id)
		}
	}

	if rec := f.do(t, http.MethodPut, "/drivers/d1/status", `{"status": "Asleep"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid status code = %d", rec.Code)
	}
}

func TestDeleteBinEndpoint(t *testing.T) {
	f := newFleet(t, nil)
	f.do(t, http.MethodPost, "/bins/b2/assign", `{"driver_id": "d1"}`)

	if rec := f.do(t, http.MethodDelete, "/bins/b2", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	if d1, _ := f.drivers.Get("d1"); d1.HasBin("BIN002") {
		t.Fatalf("deleted bin left in driver set")
	}
	if rec := f.do(t, http.MethodDelete, "/bins/b2", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d", rec.Code)
	}
}

func TestSequenceRouteEndpoint(t *testing.T) {
	f := newFleet(t, nil)

	rec := f.do(t, http.MethodPost, "/routes/sequence", `{"bin_ids": ["b1", "b2", "b3", "nope"], "pickup_request_ids": ["p1"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	resp := decode[struct {
		OriginAddress string `json:"origin_address"`
		Sequenced     []struct {
			ID    string `json:"id"`
			Order int    `json:"order"`
		} `json:"sequenced"`
		Unlocated  []models.PickupStop `json:"unlocated"`
		NotFound   []string            `json:"not_found"`
		Directions []string            `json:"directions"`
		GeoJSON    struct {
			Type     string            `json:"type"`
			Features []json.RawMessage `json:"features"`
		} `json:"geojson"`
	}](t, rec)

	var order []string
	for _, s := range resp.Sequenced {
		order = append(order, s.ID)
	}
	if strings.Join(order, ",") != "b2,p1,b1" {
		t.Fatalf("order = %v, want b2,p1,b1", order)
	}
	if len(resp.Unlocated) != 1 || resp.Unlocated[0].ID != "b3" {
		t.Fatalf("unlocated = %+v", resp.Unlocated)
	}
	if len(resp.NotFound) != 1 || resp.NotFound[0] != "nope" {
		t.Fatalf("not_found = %v", resp.NotFound)
	}
	if resp.OriginAddress != "Warehouse" || len(resp.Directions) != 4 || resp.Directions[0] != "Warehouse" {
		t.Fatalf("directions = %v (origin %q)", resp.Directions, resp.OriginAddress)
	}
	if resp.GeoJSON.Type != "FeatureCollection" || len(resp.GeoJSON.Features) != 5 {
		t.Fatalf("geojson = %s with %d features", resp.GeoJSON.Type, len(resp.GeoJSON.Features))
	}
}

func TestSequenceRouteUsesDriverBins(t *testing.T) {
	f := newFleet(t, nil)
	f.do(t, http.MethodPost, "/bins/bulk-assign", `{"bin_ids": ["b1", "b2"], "driver_id": "d1"}`)

	rec := f.do(t, http.MethodPost, "/routes/sequence", `{"driver_id": "d1", "origin": {"latitude": 43.71, "longitude": -79.38}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decode[struct {
		OriginAddress string `json:"origin_address"`
		Sequenced     []struct {
			ID string `json:"id"`
		} `json:"sequenced"`
		Directions []string `json:"directions"`
	}](t, rec)
	if len(resp.Sequenced) != 2 || resp.Sequenced[0].ID != "b1" {
		t.Fatalf("sequenced = %+v, want b1 first from the northern origin", resp.Sequenced)
	}
	// No origin_address was sent, so the coordinates stand in for it
	if resp.OriginAddress != "43.710000,-79.380000" || len(resp.Directions) == 0 || resp.Directions[0] != resp.OriginAddress {
		t.Fatalf("origin address = %q, directions = %v", resp.OriginAddress, resp.Directions)
	}

	if rec := f.do(t, http.MethodPost, "/routes/sequence", `{"origin": {"latitude": 123, "longitude": 0}}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad origin status = %d", rec.Code)
	}
}

func TestNearbyBins(t *testing.T) {
	f := newFleet(t, nil)

	rec := f.do(t, http.MethodPost, "/bins/nearby", `{"latitude": 43.65, "longitude": -79.38, "limit": 1}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decode[[]struct {
		ID string `json:"id"`
	}](t, rec)
	if len(resp) != 1 || resp[0].ID != "b2" {
		t.Fatalf("nearby = %+v, want b2", resp)
	}

	rec = f.do(t, http.MethodPost, "/bins/nearby", `{"latitude": 43.65, "longitude": -79.38, "min_fill_level": 95}`)
	if resp := decode[[]json.RawMessage](t, rec); len(resp) != 0 {
		t.Fatalf("nearby with min fill = %d bins, want 0", len(resp))
	}
}

func TestBinsPriority(t *testing.T) {
	f := newFleet(t, nil)

	rec := f.do(t, http.MethodGet, "/bins/priority", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decode[[]BinWithPriority](t, rec)
	if len(resp) != 3 || resp[0].ID != "b2" {
		t.Fatalf("priority order = %+v, want the full bin first", resp)
	}
	if !resp[0].Unassigned {
		t.Fatalf("full bin should be flagged unassigned")
	}

	rec = f.do(t, http.MethodGet, "/bins/priority?filter=full", "")
	if resp := decode[[]BinWithPriority](t, rec); len(resp) != 1 {
		t.Fatalf("full filter = %d bins", len(resp))
	}
	if rec := f.do(t, http.MethodGet, "/bins/priority?limit=x", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad limit status = %d", rec.Code)
	}
}

func TestCreateBinGeocodesAndNumbers(t *testing.T) {
	geocoder := &stubGeocoder{loc: services.Location{Latitude: 43.7, Longitude: -79.4}}
	f := newFleet(t, geocoder)

	rec := f.do(t, http.MethodPost, "/bins", `{"address": "10 Yonge St"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	resp := decode[models.BinResponse](t, rec)
	if resp.BinNumber != "BIN004" {
		t.Fatalf("bin number = %s, want BIN004", resp.BinNumber)
	}
	if resp.Latitude == nil || *resp.Latitude != 43.7 || geocoder.calls != 1 {
		t.Fatalf("bin was not geocoded: %+v", resp)
	}

	if rec := f.do(t, http.MethodPost, "/bins", `{"bin_number": "bin001", "address": "dup"}`); rec.Code != http.StatusConflict {
		t.Fatalf("duplicate status = %d", rec.Code)
	}
}

// slowGeocoder holds each lookup long enough for concurrent creates to overlap
type slowGeocoder struct {
	delay time.Duration
}

func (g slowGeocoder) Geocode(ctx context.Context, address string) (services.Location, error) {
	time.Sleep(g.delay)
	return services.Location{Latitude: 43.7, Longitude: -79.4}, nil
}

func TestConcurrentCreateBinGetsDistinctNumbers(t *testing.T) {
	f := newFleet(t, slowGeocoder{delay: 50 * time.Millisecond})

	ids := make([]string, 2)
	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := f.do(t, http.MethodPost, "/bins", `{"address": "9 Elm St"}`)
			if rec.Code != http.StatusCreated {
				t.Errorf("create %d status = %d, body = %s", i, rec.Code, rec.Body.String())
				return
			}
			var resp models.BinResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Errorf("decode: %v", err)
				return
			}
			ids[i] = resp.ID
		}(i)
	}
	wg.Wait()
	if t.Failed() {
		return
	}

	a, _ := f.bins.Get(ids[0])
	b, _ := f.bins.Get(ids[1])
	if a.BinNumber == b.BinNumber {
		t.Fatalf("both bins got %s", a.BinNumber)
	}

	// Deleting one bin must not strip the other from its driver's route
	ctx := context.Background()
	if _, err := f.ledger.AssignSingle(ctx, a.ID, "d1"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if err := f.ledger.DeleteBin(ctx, b.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if d1, _ := f.drivers.Get("d1"); !d1.HasBin(a.BinNumber) {
		t.Fatalf("d1 lost %s after deleting %s: %v", a.BinNumber, b.BinNumber, d1.AssignedBins)
	}
}

func TestUpdateBinClearsCoordinatesWhenGeocodingFails(t *testing.T) {
	geocoder := &stubGeocoder{err: services.ErrNoGeocodeResult}
	f := newFleet(t, geocoder)

	rec := f.do(t, http.MethodPatch, "/bins/b1", `{"address": "Unknown Rd", "status": "Unavailable"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	bin, _ := f.bins.Get("b1")
	if bin.HasCoordinates() {
		t.Fatalf("stale coordinates kept after address change")
	}
	if bin.Status != models.BinStatusUnavailable {
		t.Fatalf("status = %s", bin.Status)
	}
}

func TestUpdatePickupRequestRegeocodesNewAddress(t *testing.T) {
	geocoder := &stubGeocoder{loc: services.Location{Latitude: 43.75, Longitude: -79.41}}
	f := newFleet(t, geocoder)

	rec := f.do(t, http.MethodPatch, "/pickup-requests/p1", `{"address": "40 Bloor St"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	p1, _ := f.pickups.Get("p1")
	if p1.Latitude == nil || *p1.Latitude != 43.75 || *p1.Longitude != -79.41 {
		t.Fatalf("pickup was not re-geocoded: %+v", p1)
	}
	if geocoder.calls != 1 {
		t.Fatalf("geocoder calls = %d, want 1", geocoder.calls)
	}

	// Same address again is not a move
	if rec := f.do(t, http.MethodPatch, "/pickup-requests/p1", `{"address": "40 Bloor St", "notes": "side door"}`); rec.Code != http.StatusOK {
		t.Fatalf("second update status = %d", rec.Code)
	}
	if geocoder.calls != 1 {
		t.Fatalf("unchanged address was geocoded again")
	}

	geocoder.err = services.ErrNoGeocodeResult
	if rec := f.do(t, http.MethodPatch, "/pickup-requests/p1", `{"address": "Nowhere"}`); rec.Code != http.StatusOK {
		t.Fatalf("failed geocode status = %d", rec.Code)
	}
	if p1, _ := f.pickups.Get("p1"); p1.Latitude != nil {
		t.Fatalf("stale coordinates kept after address change")
	}

	if rec := f.do(t, http.MethodPatch, "/pickup-requests/missing", `{"notes": "x"}`); rec.Code != http.StatusNotFound {
		t.Fatalf("missing pickup status = %d", rec.Code)
	}
}

func TestGeocodeEndpoints(t *testing.T) {
	if rec := newFleet(t, nil).do(t, http.MethodPost, "/geocoding/forward", `{"address": "x"}`); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("without geocoder status = %d", rec.Code)
	}

	f := newFleet(t, &stubGeocoder{loc: services.Location{Latitude: 1, Longitude: 2}})
	rec := f.do(t, http.MethodPost, "/geocoding/forward", `{"address": "1 Main St"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if resp := decode[GeocodeResponse](t, rec); resp.Latitude != 1 || resp.Longitude != 2 {
		t.Fatalf("response = %+v", resp)
	}

	rec = f.do(t, http.MethodPost, "/geocoding/forward/batch", `{"addresses": [{"address": "a"}, {"address": " "}]}`)
	resp := decode[BatchGeocodeResponse](t, rec)
	if len(resp.Results) != 2 || resp.Results[0] == nil || resp.Results[1] != nil || len(resp.Errors) != 1 {
		t.Fatalf("batch response = %+v", resp)
	}

	missing := newFleet(t, &stubGeocoder{err: services.ErrNoGeocodeResult})
	if rec := missing.do(t, http.MethodPost, "/geocoding/forward", `{"address": "nowhere"}`); rec.Code != http.StatusNotFound {
		t.Fatalf("no result status = %d", rec.Code)
	}
}

func TestGetBinsFilters(t *testing.T) {
	f := newFleet(t, nil)
	f.do(t, http.MethodPost, "/bins/b3/assign", `{"driver_id": "d1"}`)

	rec := f.do(t, http.MethodGet, "/bins?status=Full", "")
	if resp := decode[[]models.BinResponse](t, rec); len(resp) != 1 || resp[0].ID != "b2" {
		t.Fatalf("status filter = %+v", resp)
	}
	rec = f.do(t, http.MethodGet, "/bins?driver_id=d1", "")
	if resp := decode[[]models.BinResponse](t, rec); len(resp) != 1 || resp[0].ID != "b3" {
		t.Fatalf("driver filter = %+v", resp)
	}
}
