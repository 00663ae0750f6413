// Package worker consumes ledger events and keeps the exported ledger sheet
// in step with the record store.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"encargos/internal/amqp"
	"encargos/internal/core"
	"encargos/internal/ledger"
	"encargos/internal/sheets"
	"encargos/internal/store"
)

// LedgerWorker handles ledger events delivered over AMQP and sweeps the
// store periodically for rows whose events were lost. It never writes to
// the store: status repairs belong to the server's reconcile processor,
// which also invalidates the cached statistics.
type LedgerWorker struct {
	source    store.ReconcileSource
	exporter  sheets.LedgerExporter
	batchSize int

	mu     sync.Mutex
	cursor string // last order ID swept
}

// NewLedgerWorker creates a worker. exporter may be nil, in which case
// events are acknowledged without effect.
func NewLedgerWorker(source store.ReconcileSource, exporter sheets.LedgerExporter, batchSize int) *LedgerWorker {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &LedgerWorker{
		source:    source,
		exporter:  exporter,
		batchSize: batchSize,
	}
}

// HandleEvent processes a single ledger event. Returning an error requeues it.
func (w *LedgerWorker) HandleEvent(ctx context.Context, evt *amqp.LedgerEvent) error {
	slog.InfoContext(ctx, "Processing ledger event",
		"type", evt.Type,
		"order_id", evt.OrderID)

	if evt.Type == amqp.OrderDeleted {
		return w.removeRow(ctx, evt.OrderID)
	}

	entry, err := w.source.GetEntry(ctx, core.UserID(evt.OwnerID), evt.OrderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// deleted after the event was published; the delete event follows
			slog.InfoContext(ctx, "Order no longer exists, removing exported row", "order_id", evt.OrderID)
			return w.removeRow(ctx, evt.OrderID)
		}
		return fmt.Errorf("get entry: %w", err)
	}

	return w.sync(ctx, entry)
}

// sync exports the entry with the status its payments imply, so the sheet
// is right even before the store is repaired.
func (w *LedgerWorker) sync(ctx context.Context, entry ledger.Entry) error {
	if status, changed := ledger.ReconcileStatus(entry.Order, entry.Payments); changed {
		slog.InfoContext(ctx, "Exporting order as paid ahead of reconciliation", "order_id", entry.Order.ID)
		entry.Order.Status = status
	}

	if w.exporter == nil {
		return nil
	}
	ref, err := w.exporter.UpsertOrder(ctx, sheets.RowFromEntry(entry))
	if err != nil {
		return fmt.Errorf("export order: %w", err)
	}
	slog.InfoContext(ctx, "Exported order row",
		"order_id", entry.Order.ID,
		"sheets_ref", ref)
	return nil
}

func (w *LedgerWorker) removeRow(ctx context.Context, orderID string) error {
	if w.exporter == nil {
		slog.WarnContext(ctx, "No exporter configured, skipping row removal", "order_id", orderID)
		return nil
	}
	if err := w.exporter.DeleteOrder(ctx, orderID); err != nil {
		return fmt.Errorf("delete exported row: %w", err)
	}
	slog.InfoContext(ctx, "Removed exported order row", "order_id", orderID)
	return nil
}

// SweepBatch re-exports the next page of orders, whatever their status,
// and wraps around to the first order after the last page. It backs up
// event delivery when messages were lost.
func (w *LedgerWorker) SweepBatch(ctx context.Context) (synced, failed int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	entries, err := w.source.ListEntriesAfter(ctx, w.cursor, w.batchSize)
	if err == nil && len(entries) == 0 && w.cursor != "" {
		w.cursor = ""
		entries, err = w.source.ListEntriesAfter(ctx, "", w.batchSize)
	}
	if err != nil {
		return 0, 0, fmt.Errorf("list orders after %q: %w", w.cursor, err)
	}
	synced, failed, err = w.syncAll(ctx, entries)
	if err != nil {
		return synced, failed, err
	}
	if len(entries) < w.batchSize {
		w.cursor = ""
	} else {
		w.cursor = entries[len(entries)-1].Order.ID
	}
	return synced, failed, nil
}

// StartupSyncCheck re-exports every order when the worker starts, to
// recover from worker downtime.
func (w *LedgerWorker) StartupSyncCheck(ctx context.Context) error {
	limit := w.batchSize * 5
	var synced, failed int
	after := ""
	for {
		entries, err := w.source.ListEntriesAfter(ctx, after, limit)
		if err != nil {
			return fmt.Errorf("startup sync check: %w", err)
		}
		s, f, err := w.syncAll(ctx, entries)
		synced += s
		failed += f
		if err != nil {
			return fmt.Errorf("startup sync check: %w", err)
		}
		if len(entries) < limit {
			break
		}
		after = entries[len(entries)-1].Order.ID
	}
	slog.InfoContext(ctx, "Startup sync completed",
		"synced", synced,
		"errors", failed)
	return nil
}

func (w *LedgerWorker) syncAll(ctx context.Context, entries []ledger.Entry) (synced, failed int, err error) {
	for _, e := range entries {
		if ctx.Err() != nil {
			return synced, failed, ctx.Err()
		}
		if err := w.sync(ctx, e); err != nil {
			slog.ErrorContext(ctx, "Failed to sync order",
				"order_id", e.Order.ID, "error", err)
			failed++
			continue
		}
		synced++
	}
	return synced, failed, nil
}
