package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"encargos/internal/core"
	ports "encargos/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// fakeSheets is a minimal in-memory Sheets v4 endpoint covering the calls the client makes.
type fakeSheets struct {
	mu      sync.Mutex
	grid    [][]string
	sheetID int64
	deletes int
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	switch {
	case strings.HasSuffix(path, ":batchUpdate"):
		var req gsheet.BatchUpdateSpreadsheetRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for _, rq := range req.Requests {
			rg := rq.DeleteDimension.Range
			if rg.SheetId != f.sheetID {
				http.Error(w, "unknown sheet", http.StatusBadRequest)
				return
			}
			f.grid = append(f.grid[:rg.StartIndex], f.grid[rg.EndIndex:]...)
			f.deletes++
		}
		writeJSON(w, map[string]any{"spreadsheetId": "sid"})

	case strings.Contains(path, "/values/"):
		_, rng, _ := strings.Cut(path, "/values/")
		if r.Method == http.MethodGet {
			values := make([][]any, len(f.grid))
			for i, row := range f.grid {
				values[i] = []any{row[0]}
			}
			writeJSON(w, map[string]any{"range": rng, "majorDimension": "ROWS", "values": values})
			return
		}
		var vr gsheet.ValueRange
		if err := json.NewDecoder(r.Body).Decode(&vr); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r.URL.Query().Get("valueInputOption") != "USER_ENTERED" {
			http.Error(w, "missing valueInputOption", http.StatusBadRequest)
			return
		}
		row := rowNumber(rng)
		for len(f.grid) < row {
			f.grid = append(f.grid, []string{""})
		}
		cells := make([]string, len(vr.Values[0]))
		for i, v := range vr.Values[0] {
			cells[i], _ = v.(string)
		}
		f.grid[row-1] = cells
		writeJSON(w, map[string]any{"updatedRange": rng})

	default:
		writeJSON(w, map[string]any{
			"spreadsheetId": "sid",
			"sheets": []any{
				map[string]any{"properties": map[string]any{"sheetId": 99, "title": "Other"}},
				map[string]any{"properties": map[string]any{"sheetId": f.sheetID, "title": "Encargos"}},
			},
		})
	}
}

// rowNumber extracts 5 from "Encargos!A5:J5".
func rowNumber(rng string) int {
	_, cells, _ := strings.Cut(rng, "!")
	start, _, _ := strings.Cut(cells, ":")
	n, _ := strconv.Atoi(strings.TrimLeft(start, "ABCDEFGHIJKLMNOPQRSTUVWXYZ"))
	return n
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, fake *fakeSheets) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithoutAuthentication())
	if err != nil {
		t.Fatalf("create service: %v", err)
	}
	return NewWithService(svc, "sid", "Encargos")
}

func row(id string, status core.OrderStatus) ports.Row {
	return ports.Row{
		OrderID:  id,
		Date:     core.NewDate(2024, 3, 1),
		Customer: "Ana",
		Product:  "Zapatos",
		Sale:     core.MoneyFromCents(10000),
		Status:   status,
	}
}

func TestUpsertWritesHeaderThenRows(t *testing.T) {
	fake := &fakeSheets{sheetID: 0}
	c := newTestClient(t, fake)
	ctx := context.Background()

	ref, err := c.UpsertOrder(ctx, row("o1", core.StatusPending))
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if ref != "Encargos!A2:J2" {
		t.Errorf("unexpected ref %q", ref)
	}
	if _, err := c.UpsertOrder(ctx, row("o2", core.StatusPending)); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	if len(fake.grid) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(fake.grid))
	}
	if fake.grid[0][0] != "ID" || fake.grid[1][0] != "o1" || fake.grid[2][0] != "o2" {
		t.Errorf("unexpected ids: %v", fake.grid)
	}
	if fake.grid[1][5] != "100.00" || fake.grid[1][9] != "Pendiente" {
		t.Errorf("unexpected row: %v", fake.grid[1])
	}
}

func TestUpsertReplacesExistingRow(t *testing.T) {
	fake := &fakeSheets{}
	c := newTestClient(t, fake)
	ctx := context.Background()

	_, _ = c.UpsertOrder(ctx, row("o1", core.StatusPending))
	_, _ = c.UpsertOrder(ctx, row("o2", core.StatusPending))
	ref, err := c.UpsertOrder(ctx, row("o1", core.StatusPaid))
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if ref != "Encargos!A2:J2" {
		t.Errorf("expected the existing row to be rewritten, got %q", ref)
	}
	if len(fake.grid) != 3 {
		t.Fatalf("expected no new row, got %d rows", len(fake.grid))
	}
	if fake.grid[1][9] != "Pagado" {
		t.Errorf("status not updated: %v", fake.grid[1])
	}
}

func TestDeleteOrderRemovesRow(t *testing.T) {
	// sheet id zero must still be sent
	fake := &fakeSheets{sheetID: 0}
	c := newTestClient(t, fake)
	ctx := context.Background()

	_, _ = c.UpsertOrder(ctx, row("o1", core.StatusPending))
	_, _ = c.UpsertOrder(ctx, row("o2", core.StatusPending))

	if err := c.DeleteOrder(ctx, "o1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(fake.grid) != 2 || fake.grid[1][0] != "o2" {
		t.Fatalf("unexpected grid after delete: %v", fake.grid)
	}

	if err := c.DeleteOrder(ctx, "missing"); err != nil {
		t.Fatalf("deleting a missing row should succeed: %v", err)
	}
	if fake.deletes != 1 {
		t.Errorf("expected 1 delete call, got %d", fake.deletes)
	}
}

func TestDeleteOrderResolvesNamedSheet(t *testing.T) {
	fake := &fakeSheets{sheetID: 7}
	c := newTestClient(t, fake)
	ctx := context.Background()
	_, _ = c.UpsertOrder(ctx, row("o1", core.StatusPending))
	if err := c.DeleteOrder(ctx, "o1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(fake.grid) != 1 {
		t.Fatalf("expected only the header, got %v", fake.grid)
	}
}

func TestNilServiceAndMissingConfig(t *testing.T) {
	c := &Client{spreadsheetID: "test", sheetName: "Encargos"}
	if _, err := c.UpsertOrder(context.Background(), row("o1", core.StatusPending)); err == nil {
		t.Error("expected error without service")
	}
	if _, err := c.UpsertOrder(context.Background(), ports.Row{}); err == nil {
		t.Error("expected error without order id")
	}
	if _, err := New(context.Background(), Options{}); err == nil {
		t.Error("expected error without spreadsheet id")
	}
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	if _, err := New(context.Background(), Options{SpreadsheetID: "sid"}); err == nil {
		t.Error("expected error without credentials")
	}
}
