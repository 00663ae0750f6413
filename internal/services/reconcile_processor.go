package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"encargos/internal/core"
	"encargos/internal/ledger"
	"encargos/internal/store"
)

// ReconcileProcessorConfig holds configuration for the reconcile processor
type ReconcileProcessorConfig struct {
	// Interval is how often pending orders are re-checked (default: 5m)
	Interval time.Duration

	// BatchSize is the max number of covered pending orders closed per pass (default: 100)
	BatchSize int
}

// DefaultReconcileProcessorConfig returns sensible defaults
func DefaultReconcileProcessorConfig() ReconcileProcessorConfig {
	return ReconcileProcessorConfig{
		Interval:  5 * time.Minute,
		BatchSize: 100,
	}
}

// ReconcileEntry re-derives the status of the entry's order from its payments
// and persists it when it changed. It returns the entry as it now stands.
func ReconcileEntry(ctx context.Context, src store.ReconcileSource, e ledger.Entry) (ledger.Entry, bool, error) {
	status, changed := ledger.ReconcileStatus(e.Order, e.Payments)
	if !changed {
		return e, false, nil
	}
	if err := src.SetOrderStatus(ctx, e.Order.Owner, e.Order.ID, status); err != nil {
		return e, false, fmt.Errorf("set order status: %w", err)
	}
	e.Order.Status = status
	return e, true, nil
}

// ReconcileProcessor periodically marks paid every pending order whose
// payments already cover its sale price.
type ReconcileProcessor struct {
	source   store.ReconcileSource
	config   ReconcileProcessorConfig
	onChange func(ctx context.Context, owner core.UserID, orderID string)

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewReconcileProcessor creates a new reconcile processor. stats may be nil.
func NewReconcileProcessor(source store.ReconcileSource, stats StatsInvalidator, config ReconcileProcessorConfig) *ReconcileProcessor {
	def := DefaultReconcileProcessorConfig()
	if config.Interval <= 0 {
		config.Interval = def.Interval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	p := &ReconcileProcessor{source: source, config: config}
	if stats != nil {
		p.onChange = func(_ context.Context, owner core.UserID, _ string) { stats.Invalidate(owner) }
	}
	return p
}

// Start begins the processing loop. Returns an error if already running.
func (p *ReconcileProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("reconcile processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	go p.runLoop(ctx, stopCh, doneCh)

	slog.InfoContext(ctx, "Reconcile processor started",
		"interval", p.config.Interval,
		"batch_size", p.config.BatchSize)

	return nil
}

// Stop gracefully stops the processor and waits for completion. Concurrent
// calls are safe; only the first one signals the loop.
func (p *ReconcileProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Reconcile processor stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Reconcile processor stop timed out")
		return ctx.Err()
	}
	return nil
}

// IsRunning returns whether the processor is currently running
func (p *ReconcileProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *ReconcileProcessor) runLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	// Process immediately on startup
	p.RunOnce(ctx)

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.RunOnce(ctx)
		}
	}
}

// RunOnce closes one batch of pending orders whose payments cover the sale
// price and returns how many were closed. Closed orders leave the source's
// selection, so the next pass continues with the rest.
func (p *ReconcileProcessor) RunOnce(ctx context.Context) int {
	entries, err := p.source.ListCoveredPending(ctx, p.config.BatchSize)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to list covered pending orders", "error", err)
		return 0
	}

	closed := 0
	for _, e := range entries {
		if ctx.Err() != nil {
			break
		}
		_, changed, err := ReconcileEntry(ctx, p.source, e)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to reconcile order",
				"order_id", e.Order.ID, "error", err)
			continue
		}
		if changed {
			closed++
			if p.onChange != nil {
				p.onChange(ctx, e.Order.Owner, e.Order.ID)
			}
			slog.InfoContext(ctx, "Order reconciled as paid", "order_id", e.Order.ID)
		}
	}
	if closed > 0 {
		slog.InfoContext(ctx, "Reconcile pass finished", "examined", len(entries), "closed", closed)
	}
	return closed
}
