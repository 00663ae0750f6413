package exchange

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const DefaultInterval = time.Hour

// Poller keeps the latest rate in memory. A failed fetch makes the rate
// unknown until the next successful one.
type Poller struct {
	fetcher  RateFetcher
	interval time.Duration

	mu        sync.RWMutex
	rate      decimal.Decimal
	known     bool
	updatedAt time.Time
	now       func() time.Time
}

func NewPoller(fetcher RateFetcher, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{fetcher: fetcher, interval: interval, now: time.Now}
}

// Rate returns the current rate and whether it is known.
func (p *Poller) Rate() (decimal.Decimal, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.rate, p.known
}

// UpdatedAt is the time of the last successful fetch.
func (p *Poller) UpdatedAt() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.updatedAt
}

// Refresh fetches once and stores the outcome.
func (p *Poller) Refresh(ctx context.Context) {
	rate, err := p.fetcher.FetchRate(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.rate, p.known = decimal.Zero, false
		slog.WarnContext(ctx, "Exchange rate unavailable", "error", err)
		return
	}
	p.rate, p.known = rate, true
	p.updatedAt = p.now()
	slog.DebugContext(ctx, "Exchange rate updated", "rate", rate.String())
}

// Run fetches immediately and then every interval until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Refresh(ctx)
		}
	}
}
