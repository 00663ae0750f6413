// Package store declares the owner-scoped record store contracts.
//
// Every operation takes the owning user explicitly. A record that does not
// exist and a record that belongs to another owner are indistinguishable to
// the caller: both yield ErrNotFound.
package store

import (
	"context"
	"errors"

	"encargos/internal/core"
	"encargos/internal/ledger"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record already exists")
)

type (
	OrderRepository interface {
		CreateOrder(ctx context.Context, owner core.UserID, o core.Order) error
		// UpdateOrder replaces every mutable field of the order identified by o.ID.
		UpdateOrder(ctx context.Context, owner core.UserID, o core.Order) error
		GetOrder(ctx context.Context, owner core.UserID, id string) (core.Order, error)
		// ListOrders returns orders by order date, newest first, then by creation time.
		ListOrders(ctx context.Context, owner core.UserID) ([]core.Order, error)
		// DeleteOrder removes the order and all of its payments.
		DeleteOrder(ctx context.Context, owner core.UserID, id string) error
		SetOrderStatus(ctx context.Context, owner core.UserID, id string, status core.OrderStatus) error
	}

	PaymentRepository interface {
		// ListPayments returns the payments of one order, most recent first.
		ListPayments(ctx context.Context, owner core.UserID, orderID string) ([]core.Payment, error)
		ListOwnerPayments(ctx context.Context, owner core.UserID) ([]core.Payment, error)
		// RecordPayment inserts the payment and, in the same write, marks the
		// order paid when the payment covers the remaining balance. It reports
		// whether the order was closed by this payment.
		RecordPayment(ctx context.Context, owner core.UserID, p core.Payment) (closed bool, err error)
		// DeletePayment removes the payment and returns it.
		DeletePayment(ctx context.Context, owner core.UserID, id string) (core.Payment, error)
	}

	NoteRepository interface {
		CreateNote(ctx context.Context, owner core.UserID, n core.Note) error
		UpdateNote(ctx context.Context, owner core.UserID, n core.Note) error
		// ListNotes returns notes newest first.
		ListNotes(ctx context.Context, owner core.UserID) ([]core.Note, error)
		DeleteNote(ctx context.Context, owner core.UserID, id string) error
	}

	UserRepository interface {
		// CreateUser fails with ErrConflict when the email is taken.
		CreateUser(ctx context.Context, u core.User) error
		GetUserByEmail(ctx context.Context, email string) (core.User, error)
		GetUser(ctx context.Context, id core.UserID) (core.User, error)
	}

	// ReconcileSource feeds the background status reconciliation. It is not
	// owner scoped and must only be used by trusted background processes.
	ReconcileSource interface {
		// ListCoveredPending returns pending orders whose payments already
		// cover the sale price, the only ones reconciliation changes.
		ListCoveredPending(ctx context.Context, limit int) ([]ledger.Entry, error)
		// ListEntriesAfter pages through every order by ascending ID,
		// starting after afterID ("" for the first page).
		ListEntriesAfter(ctx context.Context, afterID string, limit int) ([]ledger.Entry, error)
		GetEntry(ctx context.Context, owner core.UserID, orderID string) (ledger.Entry, error)
		SetOrderStatus(ctx context.Context, owner core.UserID, id string, status core.OrderStatus) error
	}

	// Store is the full record store used by the binaries.
	Store interface {
		OrderRepository
		PaymentRepository
		NoteRepository
		UserRepository
		ReconcileSource
		Ping(ctx context.Context) error
		Close() error
	}
)
