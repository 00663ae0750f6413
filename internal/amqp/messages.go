package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// EventType names what happened to an order's ledger.
type EventType string

const (
	OrderSaved      EventType = "order.saved"
	OrderDeleted    EventType = "order.deleted"
	PaymentRecorded EventType = "payment.recorded"
	PaymentDeleted  EventType = "payment.deleted"
)

var ErrInvalidEvent = errors.New("invalid ledger event")

// LedgerEvent is a lightweight notification that an order's ledger changed.
// It carries identifiers only; consumers load the current state from the store.
type LedgerEvent struct {
	Type      EventType `json:"type"`
	OrderID   string    `json:"order_id"`
	OwnerID   string    `json:"owner_id"`
	Timestamp time.Time `json:"timestamp"`
}

// NewLedgerEvent creates an event stamped with the current time.
func NewLedgerEvent(t EventType, ownerID, orderID string) *LedgerEvent {
	return &LedgerEvent{
		Type:      t,
		OrderID:   orderID,
		OwnerID:   ownerID,
		Timestamp: time.Now().UTC(),
	}
}

func (e *LedgerEvent) Validate() error {
	switch e.Type {
	case OrderSaved, OrderDeleted, PaymentRecorded, PaymentDeleted:
	default:
		return ErrInvalidEvent
	}
	if e.OrderID == "" || e.OwnerID == "" {
		return ErrInvalidEvent
	}
	return nil
}

// ToJSON converts the event to JSON bytes
func (e *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// LedgerEventFromJSON decodes and validates an event.
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var e LedgerEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return &e, nil
}
