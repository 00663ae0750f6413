// Package memory keeps exported ledger rows in process, for development and tests.
package memory

import (
	"context"
	"errors"
	"slices"
	"sync"

	"encargos/internal/sheets"
)

type Exporter struct {
	mu   sync.Mutex
	rows map[string]sheets.Row
}

var _ sheets.LedgerExporter = (*Exporter)(nil)

func New() *Exporter {
	return &Exporter{rows: map[string]sheets.Row{}}
}

// UpsertOrder stores the row and returns a synthetic row reference.
func (e *Exporter) UpsertOrder(_ context.Context, r sheets.Row) (string, error) {
	if r.OrderID == "" {
		return "", errors.New("row without order id")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rows[r.OrderID] = r
	return "mem:" + r.OrderID, nil
}

func (e *Exporter) DeleteOrder(_ context.Context, orderID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.rows, orderID)
	return nil
}

// Row returns the exported row for orderID.
func (e *Exporter) Row(orderID string) (sheets.Row, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.rows[orderID]
	return r, ok
}

// Rows returns every exported row sorted by order date, newest first.
func (e *Exporter) Rows() []sheets.Row {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]sheets.Row, 0, len(e.rows))
	for _, r := range e.rows {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b sheets.Row) int {
		if c := b.Date.Compare(a.Date.Time); c != 0 {
			return c
		}
		if a.OrderID < b.OrderID {
			return -1
		}
		if a.OrderID > b.OrderID {
			return 1
		}
		return 0
	})
	return out
}
