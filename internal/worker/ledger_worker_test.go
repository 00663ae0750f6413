package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"encargos/internal/amqp"
	"encargos/internal/core"
	"encargos/internal/sheets"
	sheetsmem "encargos/internal/sheets/memory"
	"encargos/internal/store/memory"
	"encargos/internal/store/storetest"
)

const owner core.UserID = "owner-1"

var now = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T, st *memory.Store, customer string, saleCents int64) core.Order {
	t.Helper()
	o := storetest.Order(owner, customer, core.NewDate(2024, 3, 1), saleCents, now)
	if err := st.CreateOrder(context.Background(), owner, o); err != nil {
		t.Fatal(err)
	}
	return o
}

func event(t amqp.EventType, orderID string) *amqp.LedgerEvent {
	return amqp.NewLedgerEvent(t, string(owner), orderID)
}

type failingExporter struct{}

func (failingExporter) UpsertOrder(context.Context, sheets.Row) (string, error) {
	return "", errors.New("quota exceeded")
}

func (failingExporter) DeleteOrder(context.Context, string) error {
	return errors.New("quota exceeded")
}

func TestHandleEvent_ExportsRow(t *testing.T) {
	st := memory.New()
	exp := sheetsmem.New()
	w := NewLedgerWorker(st, exp, 10)
	o := seed(t, st, "Ana", 10000)
	if _, err := st.RecordPayment(context.Background(), owner, storetest.Payment(owner, o.ID, 2500, now)); err != nil {
		t.Fatal(err)
	}

	if err := w.HandleEvent(context.Background(), event(amqp.PaymentRecorded, o.ID)); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}

	row, ok := exp.Row(o.ID)
	if !ok {
		t.Fatal("expected an exported row")
	}
	if row.Paid.Cents() != 2500 || row.Remaining.Cents() != 7500 {
		t.Errorf("unexpected totals paid=%s remaining=%s", row.Paid, row.Remaining)
	}
	if row.Customer != "Ana" || row.Status != core.StatusPending {
		t.Errorf("unexpected row %+v", row)
	}
}

func TestHandleEvent_ExportsDerivedStatusWithoutWriting(t *testing.T) {
	st := memory.New()
	exp := sheetsmem.New()
	w := NewLedgerWorker(st, exp, 10)
	ctx := context.Background()
	o := seed(t, st, "Ana", 10000)
	if err := st.SetOrderStatus(ctx, owner, o.ID, core.StatusPaid); err != nil {
		t.Fatal(err)
	}
	if _, err := st.RecordPayment(ctx, owner, storetest.Payment(owner, o.ID, 10000, now)); err != nil {
		t.Fatal(err)
	}
	if err := st.SetOrderStatus(ctx, owner, o.ID, core.StatusPending); err != nil {
		t.Fatal(err)
	}

	if err := w.HandleEvent(ctx, event(amqp.OrderSaved, o.ID)); err != nil {
		t.Fatal(err)
	}

	if row, _ := exp.Row(o.ID); row.Status != core.StatusPaid {
		t.Errorf("expected exported status paid, got %s", row.Status)
	}
	// the server's reconcile processor owns the repair and its cache invalidation
	got, err := st.GetOrder(ctx, owner, o.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != core.StatusPending {
		t.Errorf("worker must not write order status, got %s", got.Status)
	}
}

func TestHandleEvent_DeleteRemovesRow(t *testing.T) {
	st := memory.New()
	exp := sheetsmem.New()
	w := NewLedgerWorker(st, exp, 10)
	ctx := context.Background()
	o := seed(t, st, "Ana", 10000)
	if err := w.HandleEvent(ctx, event(amqp.OrderSaved, o.ID)); err != nil {
		t.Fatal(err)
	}

	if err := w.HandleEvent(ctx, event(amqp.OrderDeleted, o.ID)); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if _, ok := exp.Row(o.ID); ok {
		t.Error("row should be removed")
	}
}

func TestHandleEvent_MissingOrderRemovesRow(t *testing.T) {
	st := memory.New()
	exp := sheetsmem.New()
	w := NewLedgerWorker(st, exp, 10)
	ctx := context.Background()
	o := seed(t, st, "Ana", 10000)
	if err := w.HandleEvent(ctx, event(amqp.OrderSaved, o.ID)); err != nil {
		t.Fatal(err)
	}
	if err := st.DeleteOrder(ctx, owner, o.ID); err != nil {
		t.Fatal(err)
	}

	if err := w.HandleEvent(ctx, event(amqp.PaymentDeleted, o.ID)); err != nil {
		t.Fatalf("a vanished order must not requeue: %v", err)
	}
	if _, ok := exp.Row(o.ID); ok {
		t.Error("row of a deleted order should be removed")
	}
}

func TestHandleEvent_ExporterFailureRequeues(t *testing.T) {
	st := memory.New()
	w := NewLedgerWorker(st, failingExporter{}, 10)
	o := seed(t, st, "Ana", 10000)

	if err := w.HandleEvent(context.Background(), event(amqp.OrderSaved, o.ID)); err == nil {
		t.Error("expected an error so the event is requeued")
	}
}

func TestHandleEvent_WithoutExporter(t *testing.T) {
	st := memory.New()
	w := NewLedgerWorker(st, nil, 10)
	o := seed(t, st, "Ana", 10000)

	if err := w.HandleEvent(context.Background(), event(amqp.OrderSaved, o.ID)); err != nil {
		t.Errorf("expected no error without exporter, got %v", err)
	}
	if err := w.HandleEvent(context.Background(), event(amqp.OrderDeleted, o.ID)); err != nil {
		t.Errorf("expected no error without exporter, got %v", err)
	}
}

func TestStartupSyncCheck(t *testing.T) {
	st := memory.New()
	exp := sheetsmem.New()
	w := NewLedgerWorker(st, exp, 1)
	for _, c := range []string{"Ana", "Luis", "Eva"} {
		seed(t, st, c, 1000)
	}

	if err := w.StartupSyncCheck(context.Background()); err != nil {
		t.Fatalf("StartupSyncCheck: %v", err)
	}
	if got := len(exp.Rows()); got != 3 {
		t.Errorf("expected 3 exported rows, got %d", got)
	}
}

func TestSweepBatchCountsFailures(t *testing.T) {
	st := memory.New()
	w := NewLedgerWorker(st, failingExporter{}, 10)
	seed(t, st, "Ana", 1000)
	seed(t, st, "Luis", 1000)

	synced, failed, err := w.SweepBatch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if synced != 0 || failed != 2 {
		t.Errorf("expected 0 synced / 2 failed, got %d / %d", synced, failed)
	}
}

func TestSweepBatchCoversEveryOrder(t *testing.T) {
	st := memory.New()
	exp := sheetsmem.New()
	w := NewLedgerWorker(st, exp, 2)
	ctx := context.Background()

	// paid without its event ever reaching the worker
	paid := seed(t, st, "Ana", 1000)
	if _, err := st.RecordPayment(ctx, owner, storetest.Payment(owner, paid.ID, 1000, now)); err != nil {
		t.Fatal(err)
	}
	for _, c := range []string{"Luis", "Eva", "Ola"} {
		seed(t, st, c, 1000)
	}

	for pass := 0; pass < 2; pass++ {
		if _, _, err := w.SweepBatch(ctx); err != nil {
			t.Fatalf("pass %d: %v", pass, err)
		}
	}
	if got := len(exp.Rows()); got != 4 {
		t.Fatalf("expected every order exported after two passes, got %d", got)
	}
	if row, _ := exp.Row(paid.ID); row.Status != core.StatusPaid {
		t.Errorf("paid order exported as %s", row.Status)
	}

	// the third pass wraps around to the first page
	synced, _, err := w.SweepBatch(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if synced != 2 {
		t.Errorf("expected the first page again, synced %d", synced)
	}
}
