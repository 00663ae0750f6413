package sheets

import (
	"context"

	"encargos/internal/core"
	"encargos/internal/ledger"
)

// Ports for outbound adapters.
type (
	// LedgerExporter mirrors one row per order into an external sheet.
	LedgerExporter interface {
		// UpsertOrder writes the row keyed by Row.OrderID, replacing an existing one.
		UpsertOrder(ctx context.Context, r Row) (rowRef string, err error)
		// DeleteOrder removes the row for orderID. Missing rows are not an error.
		DeleteOrder(ctx context.Context, orderID string) error
	}
)

// Row is the exported view of an order and its payment totals.
type Row struct {
	OrderID   string
	Date      core.Date
	Customer  string
	Product   string
	Purchase  core.Money
	Sale      core.Money
	Profit    core.Money
	Paid      core.Money
	Remaining core.Money
	Status    core.OrderStatus
}

// Header is the first row written to an empty sheet.
var Header = []string{"ID", "Fecha", "Cliente", "Producto", "Compra", "Venta", "Ganancia", "Abonado", "Restante", "Estado"}

// RowFromEntry derives the exported row from an order and its payments.
func RowFromEntry(e ledger.Entry) Row {
	return Row{
		OrderID:   e.Order.ID,
		Date:      e.Order.Date,
		Customer:  e.Order.Customer,
		Product:   e.Order.Product,
		Purchase:  e.Order.PurchasePrice,
		Sale:      e.Order.SalePrice,
		Profit:    e.Order.Profit,
		Paid:      ledger.TotalPaid(e.Payments),
		Remaining: ledger.Remaining(e.Order, e.Payments),
		Status:    e.Order.Status,
	}
}

// Values renders the row in Header column order.
func (r Row) Values() []string {
	return []string{
		r.OrderID,
		r.Date.String(),
		r.Customer,
		r.Product,
		r.Purchase.String(),
		r.Sale.String(),
		r.Profit.String(),
		r.Paid.String(),
		r.Remaining.String(),
		r.Status.Label(),
	}
}
