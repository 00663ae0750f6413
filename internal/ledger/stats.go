package ledger

import (
	"encargos/internal/core"

	"github.com/shopspring/decimal"
)

// Stats holds the aggregate figures for a set of entries.
type Stats struct {
	Revenue    core.Money // sum of sale prices
	Investment core.Money // sum of purchase prices
	Profit     core.Money // sum of stored profit, not recomputed
	Paid       core.Money // sum of every payment
	Count      int
	PaidCount  int

	ProfitMargin  decimal.Decimal // Profit / Revenue, zero without revenue
	Receivable    core.Money      // Revenue - Paid
	PendingOrders int
}

// MarginPercent is ProfitMargin scaled to a percentage with two decimals.
func (s Stats) MarginPercent() decimal.Decimal {
	return s.ProfitMargin.Shift(2).Round(2)
}

// Aggregate computes Stats in a single pass.
func Aggregate(entries []Entry) Stats {
	var s Stats
	for _, e := range entries {
		s.Revenue = s.Revenue.Add(e.Order.SalePrice)
		s.Investment = s.Investment.Add(e.Order.PurchasePrice)
		s.Profit = s.Profit.Add(e.Order.Profit)
		s.Paid = s.Paid.Add(TotalPaid(e.Payments))
		s.Count++
		if e.Order.Status == core.StatusPaid {
			s.PaidCount++
		}
	}
	s.ProfitMargin = decimal.Zero
	if s.Revenue.IsPositive() {
		s.ProfitMargin = s.Profit.Div(s.Revenue)
	}
	s.Receivable = s.Revenue.Sub(s.Paid)
	s.PendingOrders = s.Count - s.PaidCount
	return s
}
