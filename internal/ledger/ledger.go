// Package ledger derives financial figures from orders and their payments.
//
// Every function here is pure: it operates on snapshots that the caller has
// already fetched and never performs I/O. Owner scoping happens before data
// reaches this package.
package ledger

import (
	"strings"

	"encargos/internal/core"

	"golang.org/x/text/cases"
)

// Entry is an order together with the payments recorded against it.
type Entry struct {
	Order    core.Order
	Payments []core.Payment
}

// Paid is the total of the entry's payments.
func (e Entry) Paid() core.Money { return TotalPaid(e.Payments) }

// Balance is the entry's remaining balance.
func (e Entry) Balance() core.Money { return Remaining(e.Order, e.Payments) }

// TotalPaid returns the exact sum of the payment amounts. An empty slice yields zero.
func TotalPaid(payments []core.Payment) core.Money {
	total := core.Zero()
	for _, p := range payments {
		total = total.Add(p.Amount)
	}
	return total
}

// Remaining is the sale price minus everything paid so far.
// The result is negative when the order was overpaid and is never clamped.
func Remaining(order core.Order, payments []core.Payment) core.Money {
	return order.SalePrice.Sub(TotalPaid(payments))
}

// ShouldAutoClose reports whether recording a payment of newAmount covers
// the sale price of the order.
func ShouldAutoClose(order core.Order, payments []core.Payment, newAmount core.Money) bool {
	return TotalPaid(payments).Add(newAmount).Cmp(order.SalePrice) >= 0
}

// ReconcileStatus derives the status an order should carry given its
// payments. A pending order whose payments cover the sale price becomes paid.
// Paid orders are left alone since the status can also be set by hand.
// The boolean reports whether the status differs from the stored one.
func ReconcileStatus(order core.Order, payments []core.Payment) (core.OrderStatus, bool) {
	if order.Status == core.StatusPending && TotalPaid(payments).Cmp(order.SalePrice) >= 0 {
		return core.StatusPaid, true
	}
	return order.Status, false
}

// Group attaches payments to their orders, preserving the order sequence.
// Payments referencing an order not present in orders are dropped.
func Group(orders []core.Order, payments []core.Payment) []Entry {
	idx := make(map[string]int, len(orders))
	entries := make([]Entry, len(orders))
	for i, o := range orders {
		idx[o.ID] = i
		entries[i] = Entry{Order: o}
	}
	for _, p := range payments {
		if i, ok := idx[p.OrderID]; ok {
			entries[i].Payments = append(entries[i].Payments, p)
		}
	}
	return entries
}

func fold(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

// MatchCustomer keeps entries whose customer name equals name, ignoring case
// and surrounding whitespace. It is used for the per-customer debt lookup.
func MatchCustomer(entries []Entry, name string) []Entry {
	want := fold(name)
	var out []Entry
	for _, e := range entries {
		if fold(e.Order.Customer) == want {
			out = append(out, e)
		}
	}
	return out
}

// SearchCustomer keeps entries whose customer name contains term, ignoring
// case. An empty term keeps everything.
func SearchCustomer(entries []Entry, term string) []Entry {
	want := fold(term)
	if want == "" {
		return entries
	}
	var out []Entry
	for _, e := range entries {
		if strings.Contains(fold(e.Order.Customer), want) {
			out = append(out, e)
		}
	}
	return out
}

// FilterStatus keeps entries with the given status. An empty status keeps everything.
func FilterStatus(entries []Entry, status core.OrderStatus) []Entry {
	if status == "" {
		return entries
	}
	var out []Entry
	for _, e := range entries {
		if e.Order.Status == status {
			out = append(out, e)
		}
	}
	return out
}

// CustomerDebt sums the remaining balance of the pending orders that belong
// to name (exact match). The count includes every matched order, paid or not.
func CustomerDebt(entries []Entry, name string) (core.Money, int) {
	matched := MatchCustomer(entries, name)
	debt := core.Zero()
	for _, e := range matched {
		if e.Order.Status == core.StatusPending {
			debt = debt.Add(Remaining(e.Order, e.Payments))
		}
	}
	return debt, len(matched)
}
