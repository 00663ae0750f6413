// Package storetest holds behaviour tests shared by every store.Store implementation.
package storetest

import (
	"context"
	"testing"
	"time"

	"encargos/internal/core"
	"encargos/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	alice core.UserID = "11111111-1111-4111-8111-111111111111"
	bob   core.UserID = "22222222-2222-4222-8222-222222222222"
)

var base = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

// Run exercises s against the store contract. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("OrderCRUD", func(t *testing.T) { testOrderCRUD(t, newStore(t)) })
	t.Run("OrderOrdering", func(t *testing.T) { testOrderOrdering(t, newStore(t)) })
	t.Run("OwnerIsolation", func(t *testing.T) { testOwnerIsolation(t, newStore(t)) })
	t.Run("RecordPaymentCloses", func(t *testing.T) { testRecordPayment(t, newStore(t)) })
	t.Run("DeleteCascades", func(t *testing.T) { testDeleteCascades(t, newStore(t)) })
	t.Run("Notes", func(t *testing.T) { testNotes(t, newStore(t)) })
	t.Run("Users", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("CoveredPending", func(t *testing.T) { testCoveredPending(t, newStore(t)) })
	t.Run("EntriesAfter", func(t *testing.T) { testEntriesAfter(t, newStore(t)) })
}

func Order(owner core.UserID, customer string, date core.Date, saleCents int64, created time.Time) core.Order {
	o := core.Order{
		ID:            uuid.NewString(),
		Owner:         owner,
		Date:          date,
		Customer:      customer,
		Product:       "producto",
		PurchasePrice: core.MoneyFromCents(saleCents / 2),
		SalePrice:     core.MoneyFromCents(saleCents),
		Status:        core.StatusPending,
		CreatedAt:     created,
		UpdatedAt:     created,
	}
	o.DeriveProfit()
	return o
}

func Payment(owner core.UserID, orderID string, cents int64, paidAt time.Time) core.Payment {
	return core.Payment{
		ID:        uuid.NewString(),
		OrderID:   orderID,
		Owner:     owner,
		Amount:    core.MoneyFromCents(cents),
		PaidAt:    paidAt,
		CreatedAt: paidAt,
	}
}

func testOrderCRUD(t *testing.T, s store.Store) {
	ctx := context.Background()
	o := Order(alice, "Ana", core.NewDate(2024, 3, 1), 10000, base)
	require.NoError(t, s.CreateOrder(ctx, alice, o))

	got, err := s.GetOrder(ctx, alice, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ana", got.Customer)
	assert.Equal(t, "2024-03-01", got.Date.String())
	assert.True(t, got.SalePrice.Equal(o.SalePrice))
	assert.True(t, got.Profit.Equal(o.Profit))
	assert.Equal(t, core.StatusPending, got.Status)

	o.Customer = "Ana María"
	o.SalePrice = core.MoneyFromCents(12345)
	o.DeriveProfit()
	o.UpdatedAt = base.Add(time.Hour)
	require.NoError(t, s.UpdateOrder(ctx, alice, o))
	got, err = s.GetOrder(ctx, alice, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ana María", got.Customer)
	assert.Equal(t, "123.45", got.SalePrice.String())
	assert.Equal(t, o.Profit.String(), got.Profit.String())

	require.NoError(t, s.SetOrderStatus(ctx, alice, o.ID, core.StatusPaid))
	got, err = s.GetOrder(ctx, alice, o.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusPaid, got.Status)

	require.NoError(t, s.DeleteOrder(ctx, alice, o.ID))
	_, err = s.GetOrder(ctx, alice, o.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.DeleteOrder(ctx, alice, o.ID), store.ErrNotFound)
}

func testOrderOrdering(t *testing.T, s store.Store) {
	ctx := context.Background()
	older := Order(alice, "A", core.NewDate(2024, 1, 1), 100, base)
	newer := Order(alice, "B", core.NewDate(2024, 2, 1), 100, base)
	sameDayLate := Order(alice, "C", core.NewDate(2024, 2, 1), 100, base.Add(time.Minute))
	for _, o := range []core.Order{older, newer, sameDayLate} {
		require.NoError(t, s.CreateOrder(ctx, alice, o))
	}
	list, err := s.ListOrders(ctx, alice)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"C", "B", "A"}, []string{list[0].Customer, list[1].Customer, list[2].Customer})
}

func testOwnerIsolation(t *testing.T, s store.Store) {
	ctx := context.Background()
	o := Order(alice, "Ana", core.NewDate(2024, 3, 1), 1000, base)
	require.NoError(t, s.CreateOrder(ctx, alice, o))
	p := Payment(alice, o.ID, 100, base)
	_, err := s.RecordPayment(ctx, alice, p)
	require.NoError(t, err)

	_, err = s.GetOrder(ctx, bob, o.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.UpdateOrder(ctx, bob, o), store.ErrNotFound)
	assert.ErrorIs(t, s.DeleteOrder(ctx, bob, o.ID), store.ErrNotFound)
	assert.ErrorIs(t, s.SetOrderStatus(ctx, bob, o.ID, core.StatusPaid), store.ErrNotFound)
	_, err = s.RecordPayment(ctx, bob, Payment(bob, o.ID, 100, base))
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.DeletePayment(ctx, bob, p.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.ListPayments(ctx, bob, o.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	list, err := s.ListOrders(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, list)
	pays, err := s.ListOwnerPayments(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, pays)
}

func testRecordPayment(t *testing.T, s store.Store) {
	ctx := context.Background()
	o := Order(alice, "Ana", core.NewDate(2024, 3, 1), 10000, base)
	require.NoError(t, s.CreateOrder(ctx, alice, o))

	closed, err := s.RecordPayment(ctx, alice, Payment(alice, o.ID, 3000, base))
	require.NoError(t, err)
	assert.False(t, closed)
	closed, err = s.RecordPayment(ctx, alice, Payment(alice, o.ID, 5000, base.Add(time.Hour)))
	require.NoError(t, err)
	assert.False(t, closed)

	got, err := s.GetOrder(ctx, alice, o.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusPending, got.Status)

	last := Payment(alice, o.ID, 2000, base.Add(2*time.Hour))
	last.Reference = "REF-1"
	last.ReceiptURL = "https://example.com/r.png"
	closed, err = s.RecordPayment(ctx, alice, last)
	require.NoError(t, err)
	assert.True(t, closed)

	got, err = s.GetOrder(ctx, alice, o.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusPaid, got.Status)

	pays, err := s.ListPayments(ctx, alice, o.ID)
	require.NoError(t, err)
	require.Len(t, pays, 3)
	assert.Equal(t, last.ID, pays[0].ID, "most recent first")
	assert.Equal(t, "REF-1", pays[0].Reference)
	assert.Equal(t, "https://example.com/r.png", pays[0].ReceiptURL)
	assert.Equal(t, "20.00", pays[0].Amount.String())

	// further payments on a paid order never report a close
	closed, err = s.RecordPayment(ctx, alice, Payment(alice, o.ID, 100, base.Add(3*time.Hour)))
	require.NoError(t, err)
	assert.False(t, closed)

	deleted, err := s.DeletePayment(ctx, alice, last.ID)
	require.NoError(t, err)
	assert.Equal(t, o.ID, deleted.OrderID)
	pays, err = s.ListPayments(ctx, alice, o.ID)
	require.NoError(t, err)
	assert.Len(t, pays, 3)
}

func testDeleteCascades(t *testing.T, s store.Store) {
	ctx := context.Background()
	o := Order(alice, "Ana", core.NewDate(2024, 3, 1), 10000, base)
	keep := Order(alice, "Luis", core.NewDate(2024, 3, 2), 10000, base)
	require.NoError(t, s.CreateOrder(ctx, alice, o))
	require.NoError(t, s.CreateOrder(ctx, alice, keep))
	_, err := s.RecordPayment(ctx, alice, Payment(alice, o.ID, 100, base))
	require.NoError(t, err)
	_, err = s.RecordPayment(ctx, alice, Payment(alice, keep.ID, 100, base))
	require.NoError(t, err)

	require.NoError(t, s.DeleteOrder(ctx, alice, o.ID))
	pays, err := s.ListOwnerPayments(ctx, alice)
	require.NoError(t, err)
	require.Len(t, pays, 1)
	assert.Equal(t, keep.ID, pays[0].OrderID)
}

func testNotes(t *testing.T, s store.Store) {
	ctx := context.Background()
	first := core.Note{ID: uuid.NewString(), Text: "primera", CreatedAt: base, UpdatedAt: base}
	second := core.Note{ID: uuid.NewString(), Text: "segunda", CreatedAt: base.Add(time.Minute), UpdatedAt: base.Add(time.Minute)}
	require.NoError(t, s.CreateNote(ctx, alice, first))
	require.NoError(t, s.CreateNote(ctx, alice, second))

	notes, err := s.ListNotes(ctx, alice)
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, "segunda", notes[0].Text)
	assert.Equal(t, alice, notes[0].Owner)

	first.Text = "editada"
	first.UpdatedAt = base.Add(time.Hour)
	require.NoError(t, s.UpdateNote(ctx, alice, first))
	assert.ErrorIs(t, s.UpdateNote(ctx, bob, first), store.ErrNotFound)
	notes, err = s.ListNotes(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, "editada", notes[1].Text)

	assert.ErrorIs(t, s.DeleteNote(ctx, bob, first.ID), store.ErrNotFound)
	require.NoError(t, s.DeleteNote(ctx, alice, first.ID))
	notes, err = s.ListNotes(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, notes, 1)
}

func testUsers(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := core.User{ID: alice, Email: "ana@example.com", PasswordHash: "hash", CreatedAt: base}
	require.NoError(t, s.CreateUser(ctx, u))

	dup := core.User{ID: bob, Email: "ANA@example.com", PasswordHash: "x", CreatedAt: base}
	assert.ErrorIs(t, s.CreateUser(ctx, dup), store.ErrConflict)

	got, err := s.GetUserByEmail(ctx, "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, alice, got.ID)
	assert.Equal(t, "hash", got.PasswordHash)

	got, err = s.GetUser(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", got.Email)

	_, err = s.GetUser(ctx, bob)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetUserByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testCoveredPending(t *testing.T, s store.Store) {
	ctx := context.Background()

	// fully paid but left pending, older than every open order
	covered := Order(alice, "Ana", core.NewDate(2024, 3, 1), 1000, base)
	require.NoError(t, s.CreateOrder(ctx, alice, covered))
	closed, err := s.RecordPayment(ctx, alice, Payment(alice, covered.ID, 1000, base))
	require.NoError(t, err)
	require.True(t, closed)
	require.NoError(t, s.SetOrderStatus(ctx, alice, covered.ID, core.StatusPending))

	for i := 0; i < 3; i++ {
		o := Order(bob, "Luis", core.NewDate(2024, 3, 5+i), 1000, base)
		require.NoError(t, s.CreateOrder(ctx, bob, o))
		_, err := s.RecordPayment(ctx, bob, Payment(bob, o.ID, 400, base))
		require.NoError(t, err)
	}
	paid := Order(alice, "Eva", core.NewDate(2024, 3, 9), 500, base)
	require.NoError(t, s.CreateOrder(ctx, alice, paid))
	_, err = s.RecordPayment(ctx, alice, Payment(alice, paid.ID, 500, base))
	require.NoError(t, err)

	entries, err := s.ListCoveredPending(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, covered.ID, entries[0].Order.ID)
	assert.Equal(t, alice, entries[0].Order.Owner)
	assert.Equal(t, core.StatusPending, entries[0].Order.Status)
	assert.Len(t, entries[0].Payments, 1)

	require.NoError(t, s.SetOrderStatus(ctx, alice, covered.ID, core.StatusPaid))
	entries, err = s.ListCoveredPending(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func testEntriesAfter(t *testing.T, s store.Store) {
	ctx := context.Background()
	want := map[string]bool{}
	for i := 0; i < 5; i++ {
		owner := alice
		if i%2 == 1 {
			owner = bob
		}
		o := Order(owner, "Ana", core.NewDate(2024, 3, 1+i), 1000, base)
		if i == 4 {
			o.Status = core.StatusPaid
		}
		require.NoError(t, s.CreateOrder(ctx, owner, o))
		want[o.ID] = true
	}

	var seen []string
	var sizes []int
	cursor := ""
	for {
		page, err := s.ListEntriesAfter(ctx, cursor, 2)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		sizes = append(sizes, len(page))
		for _, e := range page {
			seen = append(seen, e.Order.ID)
		}
		cursor = page[len(page)-1].Order.ID
	}

	assert.Equal(t, []int{2, 2, 1}, sizes)
	require.Len(t, seen, 5)
	for i, id := range seen {
		assert.True(t, want[id], "unexpected order %s", id)
		if i > 0 {
			assert.Less(t, seen[i-1], id)
		}
	}

	o := Order(bob, "Luis", core.NewDate(2024, 3, 2), 1000, base)
	require.NoError(t, s.CreateOrder(ctx, bob, o))
	_, err := s.RecordPayment(ctx, bob, Payment(bob, o.ID, 400, base))
	require.NoError(t, err)
	e, err := s.GetEntry(ctx, bob, o.ID)
	require.NoError(t, err)
	assert.Len(t, e.Payments, 1)
	_, err = s.GetEntry(ctx, alice, o.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
