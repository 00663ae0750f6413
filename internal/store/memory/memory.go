// Package memory is an in-process record store for development and tests.
package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"encargos/internal/core"
	"encargos/internal/ledger"
	"encargos/internal/store"
)

type Store struct {
	mu       sync.Mutex
	orders   map[string]core.Order
	payments map[string]core.Payment
	notes    map[string]core.Note
	users    map[core.UserID]core.User
	now      func() time.Time
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		orders:   map[string]core.Order{},
		payments: map[string]core.Payment{},
		notes:    map[string]core.Note{},
		users:    map[core.UserID]core.User{},
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close() error               { return nil }

// --- orders

func (s *Store) CreateOrder(_ context.Context, owner core.UserID, o core.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; ok {
		return store.ErrConflict
	}
	o.Owner = owner
	s.orders[o.ID] = o
	return nil
}

func (s *Store) UpdateOrder(_ context.Context, owner core.UserID, o core.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.ownedOrder(owner, o.ID)
	if !ok {
		return store.ErrNotFound
	}
	o.Owner = owner
	o.CreatedAt = cur.CreatedAt
	s.orders[o.ID] = o
	return nil
}

func (s *Store) GetOrder(_ context.Context, owner core.UserID, id string) (core.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.ownedOrder(owner, id)
	if !ok {
		return core.Order{}, store.ErrNotFound
	}
	return o, nil
}

func (s *Store) ListOrders(_ context.Context, owner core.UserID) ([]core.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Order
	for _, o := range s.orders {
		if o.Owner == owner {
			out = append(out, o)
		}
	}
	sortOrders(out)
	return out, nil
}

func (s *Store) DeleteOrder(_ context.Context, owner core.UserID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ownedOrder(owner, id); !ok {
		return store.ErrNotFound
	}
	delete(s.orders, id)
	for pid, p := range s.payments {
		if p.OrderID == id {
			delete(s.payments, pid)
		}
	}
	return nil
}

func (s *Store) SetOrderStatus(_ context.Context, owner core.UserID, id string, status core.OrderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.ownedOrder(owner, id)
	if !ok {
		return store.ErrNotFound
	}
	o.Status = status
	o.UpdatedAt = s.now()
	s.orders[id] = o
	return nil
}

func (s *Store) ownedOrder(owner core.UserID, id string) (core.Order, bool) {
	o, ok := s.orders[id]
	if !ok || o.Owner != owner {
		return core.Order{}, false
	}
	return o, true
}

// --- payments

func (s *Store) ListPayments(_ context.Context, owner core.UserID, orderID string) ([]core.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ownedOrder(owner, orderID); !ok {
		return nil, store.ErrNotFound
	}
	return s.paymentsOf(orderID), nil
}

func (s *Store) ListOwnerPayments(_ context.Context, owner core.UserID) ([]core.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Payment
	for _, p := range s.payments {
		if p.Owner == owner {
			out = append(out, p)
		}
	}
	sortPayments(out)
	return out, nil
}

func (s *Store) RecordPayment(_ context.Context, owner core.UserID, p core.Payment) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.ownedOrder(owner, p.OrderID)
	if !ok {
		return false, store.ErrNotFound
	}
	if _, dup := s.payments[p.ID]; dup {
		return false, store.ErrConflict
	}
	closed := o.Status == core.StatusPending && ledger.ShouldAutoClose(o, s.paymentsOf(o.ID), p.Amount)
	p.Owner = owner
	s.payments[p.ID] = p
	if closed {
		o.Status = core.StatusPaid
		o.UpdatedAt = s.now()
		s.orders[o.ID] = o
	}
	return closed, nil
}

func (s *Store) DeletePayment(_ context.Context, owner core.UserID, id string) (core.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok || p.Owner != owner {
		return core.Payment{}, store.ErrNotFound
	}
	delete(s.payments, id)
	return p, nil
}

func (s *Store) paymentsOf(orderID string) []core.Payment {
	var out []core.Payment
	for _, p := range s.payments {
		if p.OrderID == orderID {
			out = append(out, p)
		}
	}
	sortPayments(out)
	return out
}

// --- notes

func (s *Store) CreateNote(_ context.Context, owner core.UserID, n core.Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.notes[n.ID]; ok {
		return store.ErrConflict
	}
	n.Owner = owner
	s.notes[n.ID] = n
	return nil
}

func (s *Store) UpdateNote(_ context.Context, owner core.UserID, n core.Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.notes[n.ID]
	if !ok || cur.Owner != owner {
		return store.ErrNotFound
	}
	cur.Text = n.Text
	cur.UpdatedAt = n.UpdatedAt
	s.notes[n.ID] = cur
	return nil
}

func (s *Store) ListNotes(_ context.Context, owner core.UserID) ([]core.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Note
	for _, n := range s.notes {
		if n.Owner == owner {
			out = append(out, n)
		}
	}
	slices.SortFunc(out, func(a, b core.Note) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *Store) DeleteNote(_ context.Context, owner core.UserID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notes[id]
	if !ok || n.Owner != owner {
		return store.ErrNotFound
	}
	delete(s.notes, id)
	return nil
}

// --- users

func (s *Store) CreateUser(_ context.Context, u core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return store.ErrConflict
		}
	}
	if _, ok := s.users[u.ID]; ok {
		return store.ErrConflict
	}
	s.users[u.ID] = u
	return nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return core.User{}, store.ErrNotFound
}

func (s *Store) GetUser(_ context.Context, id core.UserID) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return core.User{}, store.ErrNotFound
	}
	return u, nil
}

// --- reconciliation

func (s *Store) ListCoveredPending(_ context.Context, limit int) ([]ledger.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ledger.Entry
	for _, o := range s.orders {
		e := ledger.Entry{Order: o, Payments: s.paymentsOf(o.ID)}
		if _, changed := ledger.ReconcileStatus(e.Order, e.Payments); changed {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b ledger.Entry) int { return cmp.Compare(a.Order.ID, b.Order.ID) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListEntriesAfter(_ context.Context, afterID string, limit int) ([]ledger.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id := range s.orders {
		if id > afterID {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]ledger.Entry, len(ids))
	for i, id := range ids {
		out[i] = ledger.Entry{Order: s.orders[id], Payments: s.paymentsOf(id)}
	}
	return out, nil
}

func (s *Store) GetEntry(_ context.Context, owner core.UserID, orderID string) (ledger.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.ownedOrder(owner, orderID)
	if !ok {
		return ledger.Entry{}, store.ErrNotFound
	}
	return ledger.Entry{Order: o, Payments: s.paymentsOf(orderID)}, nil
}

func sortOrders(orders []core.Order) {
	slices.SortFunc(orders, func(a, b core.Order) int {
		if c := b.Date.Compare(a.Date.Time); c != 0 {
			return c
		}
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

func sortPayments(ps []core.Payment) {
	slices.SortFunc(ps, func(a, b core.Payment) int {
		if c := b.PaidAt.Compare(a.PaidAt); c != 0 {
			return c
		}
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
