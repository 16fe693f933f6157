package services

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"binfleet-backend/internal/models"
	"binfleet-backend/internal/store"
)

// ErrPollInProgress is returned by RunOnce when another cycle has not finished yet
var ErrPollInProgress = errors.New("telemetry poll already in progress")

// FleetBroadcaster pushes events to connected dashboard clients
type FleetBroadcaster interface {
	BroadcastToRole(role string, data interface{})
}

// TelemetryPoller runs the reconciler on a ticker and applies its updates
type TelemetryPoller struct {
	reconciler  *TelemetryReconciler
	bins        *store.DualWriteStore[models.Bin]
	drivers     *store.DualWriteStore[models.Driver]
	broadcaster FleetBroadcaster
	notifier    DriverNotifier
	interval    time.Duration

	busy   atomic.Bool
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewTelemetryPoller creates a poller. broadcaster and notifier may be nil.
func NewTelemetryPoller(
	reconciler *TelemetryReconciler,
	bins *store.DualWriteStore[models.Bin],
	drivers *store.DualWriteStore[models.Driver],
	broadcaster FleetBroadcaster,
	notifier DriverNotifier,
	interval time.Duration,
) *TelemetryPoller {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &TelemetryPoller{
		reconciler:  reconciler,
		bins:        bins,
		drivers:     drivers,
		broadcaster: broadcaster,
		notifier:    notifier,
		interval:    interval,
	}
}

// Start launches the polling loop. Calling Start twice is a no-op.
func (p *TelemetryPoller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	go p.loop(ctx, p.done)
	log.Printf("📡 Telemetry poller started (every %s)", p.interval)
}

// Stop cancels the loop and waits for the current cycle to finish
func (p *TelemetryPoller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	log.Printf("🛑 Telemetry poller stopped")
}

func (p *TelemetryPoller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *TelemetryPoller) tick(ctx context.Context) {
	if _, err := p.RunOnce(ctx); errors.Is(err, ErrPollInProgress) {
		log.Printf("⏭️  Telemetry poll skipped - previous cycle still running")
	}
}

// RunOnce runs one reconcile cycle and applies the updates to the bin store.
// Overlapping calls return ErrPollInProgress instead of fetching again.
func (p *TelemetryPoller) RunOnce(ctx context.Context) ([]models.BinUpdate, error) {
	if !p.busy.CompareAndSwap(false, true) {
		return nil, ErrPollInProgress
	}
	defer p.busy.Store(false)

	updates := p.reconciler.Reconcile(ctx, p.bins.List())
	applied := make([]models.BinUpdate, 0, len(updates))

	for _, u := range updates {
		bin, err := p.bins.Update(ctx, u.BinID, u.ApplyTo)
		if err != nil {
			// Bin deleted while the fetch was in flight
			log.Printf("⚠️  Skipping telemetry update for bin %s: %v", u.BinNumber, err)
			continue
		}
		applied = append(applied, u)

		if u.StatusChanged && bin.Status == u.Status {
			p.broadcast("bin_status_changed", map[string]interface{}{
				"bin_id":          bin.ID,
				"bin_number":      bin.BinNumber,
				"previous_status": u.PreviousStatus,
				"status":          bin.Status,
				"fill_level":      u.FillLevel,
				"full_since":      bin.FullSince,
			})
			if u.BecameFull() {
				p.notifyFull(ctx, bin)
			}
		}
	}

	if len(applied) > 0 {
		p.broadcast("bin_telemetry_update", map[string]interface{}{
			"updates": applied,
			"count":   len(applied),
		})
	}

	return applied, nil
}

func (p *TelemetryPoller) broadcast(eventType string, data map[string]interface{}) {
	if p.broadcaster == nil {
		return
	}
	p.broadcaster.BroadcastToRole("admin", map[string]interface{}{
		"type": eventType,
		"data": data,
	})
}

func (p *TelemetryPoller) notifyFull(ctx context.Context, bin models.Bin) {
	if p.notifier == nil || bin.AssignedDriverID == nil {
		return
	}
	driver, ok := p.drivers.Get(*bin.AssignedDriverID)
	if !ok || driver.FCMToken == nil || *driver.FCMToken == "" {
		return
	}
	if err := p.notifier.SendBinFullNotification(ctx, *driver.FCMToken, bin); err != nil {
		log.Printf("⚠️  Failed to notify driver %s that %s is full: %v", driver.Name, bin.BinNumber, err)
	}
}
