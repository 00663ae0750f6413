package services

import (
	"context"
	"sync"
	"time"

	"encargos/internal/cache"
	"encargos/internal/core"
	"encargos/internal/ledger"
	"encargos/internal/store"
)

const (
	statsCacheSize = 256
	statsCacheTTL  = 5 * time.Minute
)

// StatsView is the aggregate for one owner over a look-back period.
type StatsView struct {
	Period ledger.Period
	Since  core.Date
	Stats  ledger.Stats
}

// StatsService aggregates an owner's ledger per period. Results are cached
// per owner and period until the owner writes again or the entry expires.
type StatsService struct {
	orders   store.OrderRepository
	payments store.PaymentRepository
	cache    *cache.LRUCache[StatsView]
	now      func() time.Time

	// generations counts invalidations per owner. A result is cached only
	// when no invalidation happened while it was being computed.
	mu          sync.Mutex
	generations map[core.UserID]uint64
}

func NewStatsService(orders store.OrderRepository, payments store.PaymentRepository) *StatsService {
	return &StatsService{
		orders:      orders,
		payments:    payments,
		cache:       cache.NewLRUCache[StatsView](statsCacheSize, statsCacheTTL),
		now:         time.Now,
		generations: make(map[core.UserID]uint64),
	}
}

// Cache exposes the underlying cache so it can be registered for cleanup.
func (s *StatsService) Cache() *cache.LRUCache[StatsView] {
	return s.cache
}

func statsKey(owner core.UserID, p ledger.Period) string {
	return string(owner) + "|" + string(p)
}

// Invalidate drops every cached period of the owner.
func (s *StatsService) Invalidate(owner core.UserID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generations[owner]++
	s.cache.DeletePrefix(string(owner) + "|")
}

func (s *StatsService) generation(owner core.UserID) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations[owner]
}

// remember caches v unless the owner was invalidated after gen was read.
func (s *StatsService) remember(owner core.UserID, gen uint64, key string, v StatsView) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generations[owner] == gen {
		s.cache.Set(key, v)
	}
}

// Compute returns the statistics of the owner's orders dated within the period.
func (s *StatsService) Compute(ctx context.Context, owner core.UserID, p ledger.Period) (StatsView, error) {
	key := statsKey(owner, p)
	if v, ok := s.cache.Get(key); ok {
		return v, nil
	}

	gen := s.generation(owner)
	now := s.now()
	since, err := ledger.PeriodStart(p, now)
	if err != nil {
		return StatsView{}, invalid(err)
	}
	entries, err := loadEntries(ctx, s.orders, s.payments, owner)
	if err != nil {
		return StatsView{}, err
	}
	inPeriod, err := ledger.PeriodFilter(entries, p, now)
	if err != nil {
		return StatsView{}, invalid(err)
	}

	v := StatsView{Period: p, Since: since, Stats: ledger.Aggregate(inPeriod)}
	s.remember(owner, gen, key, v)
	return v, nil
}
