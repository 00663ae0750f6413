package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"encargos/internal/core"
	"encargos/internal/store/memory"
	"encargos/internal/store/storetest"
)

// divergentOrder builds a pending order whose payments already cover the sale price.
func divergentOrder(t *testing.T, st *memory.Store) core.Order {
	t.Helper()
	ctx := context.Background()
	o := seedOrder(t, st, "Ana", core.NewDate(2024, 3, 1), 10000)
	if err := st.SetOrderStatus(ctx, owner, o.ID, core.StatusPaid); err != nil {
		t.Fatalf("SetOrderStatus: %v", err)
	}
	if _, err := st.RecordPayment(ctx, owner, storetest.Payment(owner, o.ID, 10000, fixedNow)); err != nil {
		t.Fatalf("RecordPayment: %v", err)
	}
	if err := st.SetOrderStatus(ctx, owner, o.ID, core.StatusPending); err != nil {
		t.Fatalf("SetOrderStatus: %v", err)
	}
	return o
}

func TestNewReconcileProcessor(t *testing.T) {
	processor := NewReconcileProcessor(nil, nil, DefaultReconcileProcessorConfig())

	if processor == nil {
		t.Fatal("NewReconcileProcessor should return non-nil processor")
	}
	if processor.source != nil {
		t.Error("source should be nil when passed nil")
	}
	if processor.onChange != nil {
		t.Error("onChange should be nil without an invalidator")
	}
}

func TestDefaultReconcileProcessorConfig(t *testing.T) {
	config := DefaultReconcileProcessorConfig()

	if config.Interval != 5*time.Minute {
		t.Errorf("expected Interval 5m, got %v", config.Interval)
	}
	if config.BatchSize != 100 {
		t.Errorf("expected BatchSize 100, got %d", config.BatchSize)
	}
}

func TestReconcileProcessorConfig_ZeroValuesUseDefaults(t *testing.T) {
	processor := NewReconcileProcessor(nil, nil, ReconcileProcessorConfig{})

	if processor.config.Interval != 5*time.Minute {
		t.Errorf("expected default Interval, got %v", processor.config.Interval)
	}
	if processor.config.BatchSize != 100 {
		t.Errorf("expected default BatchSize, got %d", processor.config.BatchSize)
	}
}

func TestReconcileProcessor_IsRunning(t *testing.T) {
	processor := NewReconcileProcessor(nil, nil, DefaultReconcileProcessorConfig())

	if processor.IsRunning() {
		t.Error("processor should not be running initially")
	}
}

func TestReconcileProcessor_StartTwice(t *testing.T) {
	processor := NewReconcileProcessor(memory.New(), nil, ReconcileProcessorConfig{Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := processor.Start(ctx); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}
	if err := processor.Start(ctx); err == nil {
		t.Error("expected error when starting already running processor")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	if err := processor.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if processor.IsRunning() {
		t.Error("processor should not be running after Stop")
	}
}

func TestReconcileProcessor_StopNotRunning(t *testing.T) {
	processor := NewReconcileProcessor(nil, nil, DefaultReconcileProcessorConfig())

	if err := processor.Stop(context.Background()); err != nil {
		t.Errorf("Stop should not error when not running: %v", err)
	}
}

func TestReconcileProcessor_RunOnceClosesCoveredOrders(t *testing.T) {
	st := memory.New()
	covered := divergentOrder(t, st)
	open := seedOrder(t, st, "Luis", core.NewDate(2024, 3, 2), 5000)
	inv := &countingInvalidator{}

	processor := NewReconcileProcessor(st, inv, DefaultReconcileProcessorConfig())
	if got := processor.RunOnce(context.Background()); got != 1 {
		t.Fatalf("expected 1 order closed, got %d", got)
	}

	got, err := st.GetOrder(context.Background(), owner, covered.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != core.StatusPaid {
		t.Errorf("covered order should be paid, got %s", got.Status)
	}
	got, err = st.GetOrder(context.Background(), owner, open.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != core.StatusPending {
		t.Errorf("unpaid order should stay pending, got %s", got.Status)
	}
	if inv.count(owner) != 1 {
		t.Errorf("expected one invalidation, got %d", inv.count(owner))
	}

	// a second pass has nothing left to do
	if got := processor.RunOnce(context.Background()); got != 0 {
		t.Errorf("expected idempotent second pass, closed %d", got)
	}
}

func TestReconcileProcessor_ReachesOrdersBeyondOneBatch(t *testing.T) {
	st := memory.New()
	covered := divergentOrder(t, st)
	for day := 5; day < 10; day++ {
		seedOrder(t, st, "Luis", core.NewDate(2024, 3, day), 5000)
	}

	processor := NewReconcileProcessor(st, nil, ReconcileProcessorConfig{Interval: time.Hour, BatchSize: 2})
	if got := processor.RunOnce(context.Background()); got != 1 {
		t.Fatalf("expected the covered order to be closed, closed %d", got)
	}

	got, err := st.GetOrder(context.Background(), owner, covered.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != core.StatusPaid {
		t.Errorf("covered order behind newer pending orders stayed %s", got.Status)
	}
}

func TestReconcileProcessor_ConcurrentStop(t *testing.T) {
	processor := NewReconcileProcessor(memory.New(), nil, ReconcileProcessorConfig{Interval: time.Hour})
	if err := processor.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := processor.Stop(ctx); err != nil {
				t.Errorf("Stop: %v", err)
			}
		}()
	}
	wg.Wait()

	if processor.IsRunning() {
		t.Error("processor should not be running after Stop")
	}
}

func TestReconcileEntry_LeavesPaidOrdersAlone(t *testing.T) {
	st := memory.New()
	o := seedOrder(t, st, "Ana", core.NewDate(2024, 3, 1), 10000)
	if err := st.SetOrderStatus(context.Background(), owner, o.ID, core.StatusPaid); err != nil {
		t.Fatal(err)
	}
	e, err := st.GetEntry(context.Background(), owner, o.ID)
	if err != nil {
		t.Fatal(err)
	}

	got, changed, err := ReconcileEntry(context.Background(), st, e)
	if err != nil {
		t.Fatal(err)
	}
	if changed {
		t.Error("a paid order without payments must not change")
	}
	if got.Order.Status != core.StatusPaid {
		t.Errorf("expected paid, got %s", got.Order.Status)
	}
}
