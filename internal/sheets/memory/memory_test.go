package memory

import (
	"context"
	"testing"

	"encargos/internal/core"
	"encargos/internal/sheets"
)

func TestExporterUpsertReplaces(t *testing.T) {
	e := New()
	ctx := context.Background()

	ref, err := e.UpsertOrder(ctx, sheets.Row{OrderID: "o1", Date: core.NewDate(2024, 1, 1), Status: core.StatusPending})
	if err != nil || ref != "mem:o1" {
		t.Fatalf("unexpected upsert: ref=%q err=%v", ref, err)
	}
	if _, err := e.UpsertOrder(ctx, sheets.Row{OrderID: "o1", Date: core.NewDate(2024, 1, 1), Status: core.StatusPaid}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if _, err := e.UpsertOrder(ctx, sheets.Row{OrderID: "o2", Date: core.NewDate(2024, 2, 1)}); err != nil {
		t.Fatalf("third upsert: %v", err)
	}

	rows := e.Rows()
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].OrderID != "o2" {
		t.Errorf("expected newest first, got %s", rows[0].OrderID)
	}
	if r, _ := e.Row("o1"); r.Status != core.StatusPaid {
		t.Errorf("row not replaced: %+v", r)
	}
}

func TestExporterDelete(t *testing.T) {
	e := New()
	ctx := context.Background()
	if err := e.DeleteOrder(ctx, "missing"); err != nil {
		t.Fatalf("deleting a missing row should succeed: %v", err)
	}
	_, _ = e.UpsertOrder(ctx, sheets.Row{OrderID: "o1"})
	if err := e.DeleteOrder(ctx, "o1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := e.Row("o1"); ok {
		t.Error("row should be gone")
	}
	if _, err := e.UpsertOrder(ctx, sheets.Row{}); err == nil {
		t.Error("expected error for row without id")
	}
}
