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
)

// PaymentInput carries a new payment. A zero PaidAt means now.
type PaymentInput struct {
	Amount     core.Money
	PaidAt     time.Time
	Reference  string
	ReceiptURL string
}

// PaymentSummary is the payment history of one order.
type PaymentSummary struct {
	Order     core.Order
	Payments  []core.Payment
	TotalPaid core.Money
	Remaining core.Money
}

// PaymentResult describes a recorded payment.
type PaymentResult struct {
	Payment core.Payment
	Closed  bool // the payment settled the order and marked it paid
}

type PaymentService struct {
	orders   store.OrderRepository
	payments store.PaymentRepository
	notify   notifier
	now      func() time.Time
}

func NewPaymentService(orders store.OrderRepository, payments store.PaymentRepository, publisher EventPublisher, stats StatsInvalidator) *PaymentService {
	return &PaymentService{
		orders:   orders,
		payments: payments,
		notify:   notifier{publisher: publisher, stats: stats},
		now:      time.Now,
	}
}

// Record stores a payment against the order. When the payment covers the
// remaining balance of a pending order the order is marked paid in the same write.
func (s *PaymentService) Record(ctx context.Context, owner core.UserID, orderID string, in PaymentInput) (PaymentResult, error) {
	now := s.now().UTC()
	p := core.Payment{
		ID:         uuid.NewString(),
		OrderID:    strings.TrimSpace(orderID),
		Owner:      owner,
		Amount:     in.Amount,
		PaidAt:     in.PaidAt,
		Reference:  strings.TrimSpace(in.Reference),
		ReceiptURL: strings.TrimSpace(in.ReceiptURL),
		CreatedAt:  now,
	}
	if p.PaidAt.IsZero() {
		p.PaidAt = now
	}
	if err := p.Validate(); err != nil {
		return PaymentResult{}, invalid(err)
	}

	closed, err := s.payments.RecordPayment(ctx, owner, p)
	if err != nil {
		return PaymentResult{}, fmt.Errorf("record payment: %w", err)
	}
	s.notify.changed(ctx, amqp.PaymentRecorded, owner, p.OrderID)
	return PaymentResult{Payment: p, Closed: closed}, nil
}

// List returns the order with its payments and balance.
func (s *PaymentService) List(ctx context.Context, owner core.UserID, orderID string) (PaymentSummary, error) {
	o, err := s.orders.GetOrder(ctx, owner, orderID)
	if err != nil {
		return PaymentSummary{}, fmt.Errorf("get order: %w", err)
	}
	pays, err := s.payments.ListPayments(ctx, owner, orderID)
	if err != nil {
		return PaymentSummary{}, fmt.Errorf("list payments: %w", err)
	}
	return PaymentSummary{
		Order:     o,
		Payments:  pays,
		TotalPaid: ledger.TotalPaid(pays),
		Remaining: ledger.Remaining(o, pays),
	}, nil
}

// Delete removes a payment. The order status is left as it is.
func (s *PaymentService) Delete(ctx context.Context, owner core.UserID, id string) (core.Payment, error) {
	p, err := s.payments.DeletePayment(ctx, owner, id)
	if err != nil {
		return core.Payment{}, fmt.Errorf("delete payment: %w", err)
	}
	s.notify.changed(ctx, amqp.PaymentDeleted, owner, p.OrderID)
	return p, nil
}
