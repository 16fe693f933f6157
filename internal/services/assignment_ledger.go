package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"binfleet-backend/internal/models"
	"binfleet-backend/internal/store"
)

var (
	ErrBinNotFound    = errors.New("bin not found")
	ErrDriverNotFound = errors.New("driver not found")
	ErrDriverInactive = errors.New("driver is inactive")
	ErrInvalidStatus  = errors.New("invalid status")
)

// AssignmentLedger keeps Bin.AssignedDriverID and Driver.AssignedBins in step.
// After every operation a bin points at a driver iff that driver's set holds
// the bin's number. Operations are serialized.
type AssignmentLedger struct {
	bins     *store.DualWriteStore[models.Bin]
	drivers  *store.DualWriteStore[models.Driver]
	notifier DriverNotifier
	events   RouteBroadcaster

	mu sync.Mutex
}

// RouteBroadcaster pushes route changes to the affected drivers and the dashboard
type RouteBroadcaster interface {
	FleetBroadcaster
	BroadcastToUser(userID string, data interface{})
}

// NewAssignmentLedger creates a ledger over the two stores. notifier may be nil.
func NewAssignmentLedger(bins *store.DualWriteStore[models.Bin], drivers *store.DualWriteStore[models.Driver], notifier DriverNotifier) *AssignmentLedger {
	return &AssignmentLedger{
		bins:     bins,
		drivers:  drivers,
		notifier: notifier,
	}
}

// WithEvents publishes route changes over events after every committed operation
func (l *AssignmentLedger) WithEvents(events RouteBroadcaster) *AssignmentLedger {
	l.events = events
	return l
}

// AssignSingle moves one bin to driverID. An empty driverID unassigns it.
func (l *AssignmentLedger) AssignSingle(ctx context.Context, binID, driverID string) (models.Bin, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	bin, ok := l.bins.Get(binID)
	if !ok {
		return models.Bin{}, fmt.Errorf("assign %s: %w", binID, ErrBinNotFound)
	}

	var target models.Driver
	if driverID != "" {
		if target, ok = l.drivers.Get(driverID); !ok {
			return bin, fmt.Errorf("assign %s to %s: %w", bin.BinNumber, driverID, ErrDriverNotFound)
		}
		if target.Status == models.DriverStatusInactive {
			return bin, fmt.Errorf("assign %s to %s: %w", bin.BinNumber, target.Name, ErrDriverInactive)
		}
	}

	current := ""
	if bin.AssignedDriverID != nil {
		current = *bin.AssignedDriverID
	}

	tx := l.begin(ctx)

	if current == driverID {
		// Same driver: nothing to move, only heal a set that lost the number
		if driverID != "" && !target.HasBin(bin.BinNumber) {
			tx.updateDriver(driverID, func(d *models.Driver) { d.AddBins(bin.BinNumber) })
		}
		if err := tx.commit(); err != nil {
			return bin, err
		}
		return bin, nil
	}

	if current != "" {
		if prev, ok := l.drivers.Get(current); ok && prev.HasBin(bin.BinNumber) {
			tx.updateDriver(current, func(d *models.Driver) { d.RemoveBins(bin.BinNumber) })
		} else if !ok {
			log.Printf("⚠️  Bin %s pointed at missing driver %s - treating as unassigned", bin.BinNumber, current)
		}
	}
	if driverID != "" {
		tx.updateDriver(driverID, func(d *models.Driver) { d.AddBins(bin.BinNumber) })
	}
	updated := tx.updateBin(binID, func(b *models.Bin) { b.AssignedDriverID = optionalID(driverID) })

	if err := tx.commit(); err != nil {
		return bin, err
	}

	if driverID != "" {
		log.Printf("✅ Assigned %s to %s", bin.BinNumber, target.Name)
		l.notifyAssigned(ctx, target, []string{bin.BinNumber})
	} else {
		log.Printf("✅ Unassigned %s", bin.BinNumber)
	}
	l.publishRoutes(current, driverID)
	return updated, nil
}

// BulkAssign gives every bin in binIDs to driverID. Previous owners lose the
// bins first, the target's set is written once, then every bin is updated.
// Unknown bin ids are skipped.
func (l *AssignmentLedger) BulkAssign(ctx context.Context, binIDs []string, driverID string) ([]models.Bin, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	target, ok := l.drivers.Get(driverID)
	if !ok {
		return nil, fmt.Errorf("bulk assign to %s: %w", driverID, ErrDriverNotFound)
	}
	if target.Status == models.DriverStatusInactive {
		return nil, fmt.Errorf("bulk assign to %s: %w", target.Name, ErrDriverInactive)
	}

	seen := make(map[string]struct{}, len(binIDs))
	bins := make([]models.Bin, 0, len(binIDs))
	for _, id := range binIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		bin, ok := l.bins.Get(id)
		if !ok {
			log.Printf("⚠️  Bulk assign: bin %s not found, skipping", id)
			continue
		}
		bins = append(bins, bin)
	}

	// Group the bins that are moving away from another driver
	losing := make(map[string][]string)
	var owners []string
	var moving []models.Bin
	var added []string
	for _, bin := range bins {
		if !bin.IsAssignedTo(driverID) {
			moving = append(moving, bin)
			if bin.AssignedDriverID != nil {
				owner := *bin.AssignedDriverID
				if _, ok := losing[owner]; !ok {
					owners = append(owners, owner)
				}
				losing[owner] = append(losing[owner], bin.BinNumber)
			}
		}
		if !target.HasBin(bin.BinNumber) {
			added = append(added, bin.BinNumber)
		}
	}

	tx := l.begin(ctx)

	for _, owner := range owners {
		prev, ok := l.drivers.Get(owner)
		if !ok {
			log.Printf("⚠️  Bulk assign: previous driver %s no longer exists - skipping", owner)
			continue
		}
		var held []string
		for _, n := range losing[owner] {
			if prev.HasBin(n) {
				held = append(held, n)
			}
		}
		if len(held) == 0 {
			continue
		}
		tx.updateDriver(owner, func(d *models.Driver) { d.RemoveBins(held...) })
	}

	if len(added) > 0 {
		tx.updateDriver(driverID, func(d *models.Driver) { d.AddBins(added...) })
	}

	result := make([]models.Bin, 0, len(bins))
	for _, bin := range bins {
		if bin.IsAssignedTo(driverID) {
			result = append(result, bin)
			continue
		}
		result = append(result, tx.updateBin(bin.ID, func(b *models.Bin) { b.AssignedDriverID = optionalID(driverID) }))
	}

	if err := tx.commit(); err != nil {
		return nil, err
	}

	log.Printf("✅ Bulk assigned %d bins to %s (%d moved, %d new to set)", len(bins), target.Name, len(moving), len(added))
	if len(added) > 0 {
		l.notifyAssigned(ctx, target, added)
	}
	l.publishRoutes(append(owners, driverID)...)
	return result, nil
}

// SetDriverStatus changes a driver's status. Going Inactive releases every bin
// the driver holds, on both sides, in one step.
func (l *AssignmentLedger) SetDriverStatus(ctx context.Context, driverID string, status models.DriverStatus) (models.Driver, error) {
	if !status.Valid() {
		return models.Driver{}, fmt.Errorf("driver status %q: %w", status, ErrInvalidStatus)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	driver, ok := l.drivers.Get(driverID)
	if !ok {
		return models.Driver{}, fmt.Errorf("set status of %s: %w", driverID, ErrDriverNotFound)
	}
	if driver.Status == status {
		return driver, nil
	}

	tx := l.begin(ctx)

	released := 0
	if status == models.DriverStatusInactive {
		released = l.releaseBinsOf(tx, driverID)
	}

	updated := tx.updateDriver(driverID, func(d *models.Driver) {
		d.Status = status
		if status == models.DriverStatusInactive {
			d.ClearBins()
		}
	})

	if err := tx.commit(); err != nil {
		return driver, err
	}

	log.Printf("✅ Driver %s is now %s (%d bins released)", driver.Name, status, released)
	if released > 0 {
		l.publishRoutes(driverID)
	}
	return updated, nil
}

// DeleteDriver clears every bin that points at the driver, then deletes it
func (l *AssignmentLedger) DeleteDriver(ctx context.Context, driverID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	driver, ok := l.drivers.Get(driverID)
	if !ok {
		return fmt.Errorf("delete driver %s: %w", driverID, ErrDriverNotFound)
	}

	tx := l.begin(ctx)
	released := l.releaseBinsOf(tx, driverID)
	tx.deleteDriver(driverID)

	if err := tx.commit(); err != nil {
		return err
	}

	log.Printf("🗑️  Deleted driver %s (%d bins released)", driver.Name, released)
	l.publishRoutes(driverID)
	return nil
}

// DeleteBin drops the bin number from every driver set holding it, then deletes the bin
func (l *AssignmentLedger) DeleteBin(ctx context.Context, binID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	bin, ok := l.bins.Get(binID)
	if !ok {
		return fmt.Errorf("delete bin %s: %w", binID, ErrBinNotFound)
	}

	tx := l.begin(ctx)
	for _, holder := range l.drivers.List() {
		if holder.HasBin(bin.BinNumber) {
			tx.updateDriver(holder.ID, func(d *models.Driver) { d.RemoveBins(bin.BinNumber) })
		}
	}
	tx.deleteBin(binID)

	if err := tx.commit(); err != nil {
		return err
	}

	log.Printf("🗑️  Deleted bin %s", bin.BinNumber)
	if bin.AssignedDriverID != nil {
		l.publishRoutes(*bin.AssignedDriverID)
	}
	return nil
}

// AuditReport summarizes what Reconcile repaired
type AuditReport struct {
	BinsChecked     int      `json:"bins_checked"`
	DriversChecked  int      `json:"drivers_checked"`
	BinsCleared     []string `json:"bins_cleared"`
	DriversRepaired []string `json:"drivers_repaired"`
}

// Repairs is the total number of records rewritten
func (r AuditReport) Repairs() int {
	return len(r.BinsCleared) + len(r.DriversRepaired)
}

// Reconcile rebuilds every driver's set from the bins' back-references. Bins
// are authoritative; bins pointing at a missing driver are cleared. Used at
// startup to heal drift left by earlier partial remote writes.
func (l *AssignmentLedger) Reconcile(ctx context.Context) (AuditReport, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	bins := l.bins.List()
	drivers := l.drivers.List()
	report := AuditReport{
		BinsChecked:     len(bins),
		DriversChecked:  len(drivers),
		BinsCleared:     []string{},
		DriversRepaired: []string{},
	}

	known := make(map[string]struct{}, len(drivers))
	for _, d := range drivers {
		known[d.ID] = struct{}{}
	}

	tx := l.begin(ctx)
	expected := make(map[string][]string, len(drivers))
	for _, bin := range bins {
		if bin.AssignedDriverID == nil {
			continue
		}
		owner := *bin.AssignedDriverID
		if _, ok := known[owner]; !ok {
			tx.updateBin(bin.ID, func(b *models.Bin) { b.AssignedDriverID = nil })
			report.BinsCleared = append(report.BinsCleared, bin.BinNumber)
			continue
		}
		expected[owner] = append(expected[owner], bin.BinNumber)
	}

	for _, d := range drivers {
		want := expected[d.ID]
		if sameSet(d.AssignedBins, want) {
			continue
		}
		tx.updateDriver(d.ID, func(rebuilt *models.Driver) {
			rebuilt.ClearBins()
			rebuilt.AddBins(want...)
		})
		report.DriversRepaired = append(report.DriversRepaired, d.Name)
	}

	if err := tx.commit(); err != nil {
		return report, err
	}

	if report.Repairs() > 0 {
		log.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		log.Printf("🔧 [ASSIGNMENTS] Audit repaired drift")
		log.Printf("   Bins cleared: %v", report.BinsCleared)
		log.Printf("   Drivers repaired: %v", report.DriversRepaired)
		log.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	} else {
		log.Printf("✅ Assignment audit: %d bins, %d drivers consistent", len(bins), len(drivers))
	}
	return report, nil
}

// releaseBinsOf clears every bin pointing at driverID inside tx
func (l *AssignmentLedger) releaseBinsOf(tx *ledgerTx, driverID string) int {
	released := 0
	for _, bin := range l.bins.List() {
		if bin.IsAssignedTo(driverID) {
			tx.updateBin(bin.ID, func(b *models.Bin) { b.AssignedDriverID = nil })
			released++
		}
	}
	return released
}

// publishRoutes sends each affected driver its current route and tells the
// dashboard which routes changed. Must be called with mu held.
func (l *AssignmentLedger) publishRoutes(driverIDs ...string) {
	if l.events == nil {
		return
	}

	changed := make([]string, 0, len(driverIDs))
	seen := make(map[string]struct{}, len(driverIDs))
	for _, id := range driverIDs {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		changed = append(changed, id)

		driver, ok := l.drivers.Get(id)
		if !ok {
			continue
		}
		l.events.BroadcastToUser(id, map[string]interface{}{
			"type": "route_updated",
			"data": map[string]interface{}{
				"driver_id":     id,
				"assigned_bins": driver.ToDriverResponse().AssignedBins,
			},
		})
	}

	if len(changed) == 0 {
		return
	}
	l.events.BroadcastToRole("admin", map[string]interface{}{
		"type": "assignments_changed",
		"data": map[string]interface{}{
			"driver_ids": changed,
		},
	})
}

func (l *AssignmentLedger) notifyAssigned(ctx context.Context, driver models.Driver, binNumbers []string) {
	if l.notifier == nil || driver.FCMToken == nil || *driver.FCMToken == "" {
		return
	}
	token := *driver.FCMToken
	numbers := append([]string(nil), binNumbers...)
	go func() {
		if err := l.notifier.SendBinsAssignedNotification(context.WithoutCancel(ctx), token, numbers); err != nil {
			log.Printf("⚠️  Failed to notify %s about new bins: %v", driver.Name, err)
		}
	}()
}

// undoEntry is a snapshot taken before a local write. at is the position a
// deleted record held, or -1 for an update.
type undoEntry[T store.Entity[T]] struct {
	record T
	at     int
}

func (u undoEntry[T]) restore(ctx context.Context, s *store.DualWriteStore[T]) {
	if u.at < 0 {
		s.RestoreLocal(ctx, u.record)
		return
	}
	s.InsertLocal(ctx, u.record, u.at)
}

// ledgerTx applies local writes to both stores, remembering how to undo them.
// Remote writes are only dispatched on commit, after every local write landed.
type ledgerTx struct {
	ctx context.Context
	l   *AssignmentLedger
	err error

	binUndo    []undoEntry[models.Bin]
	driverUndo []undoEntry[models.Driver]

	binPush       map[string]models.Bin
	binOrder      []string
	driverPush    map[string]models.Driver
	driverOrder   []string
	binDeletes    []string
	driverDeletes []string
}

func (l *AssignmentLedger) begin(ctx context.Context) *ledgerTx {
	return &ledgerTx{
		ctx:        ctx,
		l:          l,
		binPush:    make(map[string]models.Bin),
		driverPush: make(map[string]models.Driver),
	}
}

func (tx *ledgerTx) updateBin(id string, mutate func(*models.Bin)) models.Bin {
	if tx.err != nil {
		return models.Bin{}
	}
	prev, next, err := tx.l.bins.ApplyLocal(tx.ctx, id, mutate)
	if err != nil {
		tx.err = err
		return models.Bin{}
	}
	tx.binUndo = append(tx.binUndo, undoEntry[models.Bin]{record: prev, at: -1})
	if _, ok := tx.binPush[id]; !ok {
		tx.binOrder = append(tx.binOrder, id)
	}
	tx.binPush[id] = next
	return next
}

func (tx *ledgerTx) updateDriver(id string, mutate func(*models.Driver)) models.Driver {
	if tx.err != nil {
		return models.Driver{}
	}
	prev, next, err := tx.l.drivers.ApplyLocal(tx.ctx, id, mutate)
	if err != nil {
		tx.err = err
		return models.Driver{}
	}
	tx.driverUndo = append(tx.driverUndo, undoEntry[models.Driver]{record: prev, at: -1})
	if _, ok := tx.driverPush[id]; !ok {
		tx.driverOrder = append(tx.driverOrder, id)
	}
	tx.driverPush[id] = next
	return next
}

func (tx *ledgerTx) deleteBin(id string) {
	if tx.err != nil {
		return
	}
	removed, at, err := tx.l.bins.DeleteLocal(tx.ctx, id)
	if err != nil {
		tx.err = err
		return
	}
	tx.binUndo = append(tx.binUndo, undoEntry[models.Bin]{record: removed, at: at})
	tx.binDeletes = append(tx.binDeletes, id)
	delete(tx.binPush, id)
}

func (tx *ledgerTx) deleteDriver(id string) {
	if tx.err != nil {
		return
	}
	removed, at, err := tx.l.drivers.DeleteLocal(tx.ctx, id)
	if err != nil {
		tx.err = err
		return
	}
	tx.driverUndo = append(tx.driverUndo, undoEntry[models.Driver]{record: removed, at: at})
	tx.driverDeletes = append(tx.driverDeletes, id)
	delete(tx.driverPush, id)
}

// commit dispatches the remote writes, or restores every snapshot if a local
// write failed so neither side is left half-applied
func (tx *ledgerTx) commit() error {
	if tx.err != nil {
		for i := len(tx.binUndo) - 1; i >= 0; i-- {
			tx.binUndo[i].restore(tx.ctx, tx.l.bins)
		}
		for i := len(tx.driverUndo) - 1; i >= 0; i-- {
			tx.driverUndo[i].restore(tx.ctx, tx.l.drivers)
		}
		log.Printf("❌ Assignment change rolled back: %v", tx.err)
		return fmt.Errorf("assignment rolled back: %w", tx.err)
	}

	for _, id := range tx.driverOrder {
		if d, ok := tx.driverPush[id]; ok {
			tx.l.drivers.Push(tx.ctx, d)
		}
	}
	for _, id := range tx.binOrder {
		if b, ok := tx.binPush[id]; ok {
			tx.l.bins.Push(tx.ctx, b)
		}
	}
	for _, id := range tx.driverDeletes {
		tx.l.drivers.PushDelete(tx.ctx, id)
	}
	for _, id := range tx.binDeletes {
		tx.l.bins.PushDelete(tx.ctx, id)
	}
	return nil
}

func optionalID(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}

// sameSet compares two bin number lists ignoring order
func sameSet(have []string, want []string) bool {
	if len(have) != len(want) {
		return false
	}
	counts := make(map[string]int, len(want))
	for _, n := range want {
		counts[n]++
	}
	for _, n := range have {
		if counts[n] == 0 {
			return false
		}
		counts[n]--
	}
	return true
}
