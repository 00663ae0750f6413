package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"encargos/internal/amqp"
	"encargos/internal/core"
	"encargos/internal/ledger"
	"encargos/internal/store"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// OrderInput carries the editable fields of an order. A zero Date means today.
type OrderInput struct {
	Date          core.Date
	Customer      string
	Product       string
	PurchasePrice core.Money
	SalePrice     core.Money
	Status        core.OrderStatus
}

// OrderQuery narrows the order list.
type OrderQuery struct {
	Search string           // customer substring
	Status core.OrderStatus // empty keeps every status
}

// CustomerDebt is the balance owed by the customer named in the search box.
type CustomerDebt struct {
	Name   string
	Total  core.Money
	Orders int
}

// OrderListView is everything the order list renders.
type OrderListView struct {
	Entries []ledger.Entry
	Debt    *CustomerDebt // set only while searching
	Totals  ledger.Stats  // over the filtered entries
	Query   OrderQuery
}

// OrderService orchestrates order operations over the record store.
type OrderService struct {
	orders   store.OrderRepository
	payments store.PaymentRepository
	notify   notifier
	now      func() time.Time
}

func NewOrderService(orders store.OrderRepository, payments store.PaymentRepository, publisher EventPublisher, stats StatsInvalidator) *OrderService {
	return &OrderService{
		orders:   orders,
		payments: payments,
		notify:   notifier{publisher: publisher, stats: stats},
		now:      time.Now,
	}
}

func (s *OrderService) build(owner core.UserID, in OrderInput) core.Order {
	o := core.Order{
		Owner:         owner,
		Date:          in.Date,
		Customer:      strings.TrimSpace(in.Customer),
		Product:       strings.TrimSpace(in.Product),
		PurchasePrice: in.PurchasePrice,
		SalePrice:     in.SalePrice,
		Status:        in.Status,
	}
	if o.Date.IsZero() {
		o.Date = core.DateOf(s.now())
	}
	if o.Status == "" {
		o.Status = core.StatusPending
	}
	o.DeriveProfit()
	return o
}

// Create validates and stores a new order with its profit derived from the prices.
func (s *OrderService) Create(ctx context.Context, owner core.UserID, in OrderInput) (core.Order, error) {
	o := s.build(owner, in)
	if err := o.Validate(); err != nil {
		return core.Order{}, invalid(err)
	}
	now := s.now().UTC()
	o.ID = uuid.NewString()
	o.CreatedAt = now
	o.UpdatedAt = now

	if err := s.orders.CreateOrder(ctx, owner, o); err != nil {
		return core.Order{}, fmt.Errorf("create order: %w", err)
	}
	s.notify.changed(ctx, amqp.OrderSaved, owner, o.ID)
	return o, nil
}

// Update replaces every editable field of the order and recomputes its profit.
func (s *OrderService) Update(ctx context.Context, owner core.UserID, id string, in OrderInput) (core.Order, error) {
	cur, err := s.orders.GetOrder(ctx, owner, id)
	if err != nil {
		return core.Order{}, fmt.Errorf("get order: %w", err)
	}
	o := s.build(owner, in)
	if err := o.Validate(); err != nil {
		return core.Order{}, invalid(err)
	}
	o.ID = cur.ID
	o.CreatedAt = cur.CreatedAt
	o.UpdatedAt = s.now().UTC()

	if err := s.orders.UpdateOrder(ctx, owner, o); err != nil {
		return core.Order{}, fmt.Errorf("update order: %w", err)
	}
	s.notify.changed(ctx, amqp.OrderSaved, owner, o.ID)
	return o, nil
}

// Delete removes the order together with its payments.
func (s *OrderService) Delete(ctx context.Context, owner core.UserID, id string) error {
	if err := s.orders.DeleteOrder(ctx, owner, id); err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	s.notify.changed(ctx, amqp.OrderDeleted, owner, id)
	return nil
}

// Get returns the order with its payments.
func (s *OrderService) Get(ctx context.Context, owner core.UserID, id string) (ledger.Entry, error) {
	o, err := s.orders.GetOrder(ctx, owner, id)
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("get order: %w", err)
	}
	pays, err := s.payments.ListPayments(ctx, owner, id)
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("list payments: %w", err)
	}
	return ledger.Entry{Order: o, Payments: pays}, nil
}

// List loads the owner's orders with their payments and applies the query.
// Customer debt is computed over every order, not only the filtered ones.
func (s *OrderService) List(ctx context.Context, owner core.UserID, q OrderQuery) (OrderListView, error) {
	entries, err := loadEntries(ctx, s.orders, s.payments, owner)
	if err != nil {
		return OrderListView{}, err
	}

	view := OrderListView{Query: q}
	filtered := ledger.FilterStatus(ledger.SearchCustomer(entries, q.Search), q.Status)
	view.Entries = filtered
	view.Totals = ledger.Aggregate(filtered)

	if name := strings.TrimSpace(q.Search); name != "" && len(filtered) > 0 {
		total, count := ledger.CustomerDebt(entries, name)
		view.Debt = &CustomerDebt{Name: name, Total: total, Orders: count}
	}
	return view, nil
}

// loadEntries fetches orders and payments concurrently and groups them.
func loadEntries(ctx context.Context, orders store.OrderRepository, payments store.PaymentRepository, owner core.UserID) ([]ledger.Entry, error) {
	var (
		list []core.Order
		ps   []core.Payment
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		list, err = orders.ListOrders(gctx, owner)
		if err != nil {
			return fmt.Errorf("list orders: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		ps, err = payments.ListOwnerPayments(gctx, owner)
		if err != nil {
			return fmt.Errorf("list payments: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ledger.Group(list, ps), nil
}
