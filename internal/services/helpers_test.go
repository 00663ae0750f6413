package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"encargos/internal/amqp"
	"encargos/internal/core"
	"encargos/internal/store/memory"
	"encargos/internal/store/storetest"
)

const owner core.UserID = "owner-1"

var fixedNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

type recordingPublisher struct {
	mu     sync.Mutex
	events []*amqp.LedgerEvent
	err    error
}

func (p *recordingPublisher) PublishLedgerEvent(_ context.Context, evt *amqp.LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return p.err
}

func (p *recordingPublisher) types() []amqp.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]amqp.EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type countingInvalidator struct {
	mu    sync.Mutex
	calls map[core.UserID]int
}

func (c *countingInvalidator) Invalidate(owner core.UserID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = map[core.UserID]int{}
	}
	c.calls[owner]++
}

func (c *countingInvalidator) count(owner core.UserID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[owner]
}

func usd(t *testing.T, s string) core.Money {
	t.Helper()
	m, err := core.ParseMoney(s)
	if err != nil {
		t.Fatalf("ParseMoney(%q): %v", s, err)
	}
	return m
}

// seedOrder stores an order directly, bypassing the services.
func seedOrder(t *testing.T, st *memory.Store, customer string, date core.Date, saleCents int64) core.Order {
	t.Helper()
	o := storetest.Order(owner, customer, date, saleCents, fixedNow)
	if err := st.CreateOrder(context.Background(), owner, o); err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	return o
}
