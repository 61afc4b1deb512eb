package market

import (
	"sync"
	"time"

	"coinPilot/internal/domain"
)

const defaultCapacity = 100

// HistoryStore owns the per-symbol bounded price history and the
// current-price map. It is the single owner of that state; callers go through
// its accessors and never hold references into the underlying buffers.
type HistoryStore struct {
	mu       sync.RWMutex
	capacity int
	history  map[string][]domain.PricePoint
	current  map[string]float64
}

// NewHistoryStore creates a store with the given per-symbol capacity.
// A non-positive capacity falls back to the default.
func NewHistoryStore(capacity int) *HistoryStore {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &HistoryStore{
		capacity: capacity,
		history:  make(map[string][]domain.PricePoint),
		current:  make(map[string]float64),
	}
}

// Append records a new sample for its symbol, evicting the oldest once the
// capacity is reached, and updates the current price.
func (s *HistoryStore) Append(point domain.PricePoint) {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := append(s.history[point.Symbol], point)
	if len(buf) > s.capacity {
		buf = buf[len(buf)-s.capacity:]
	}
	s.history[point.Symbol] = buf
	s.current[point.Symbol] = point.Price
}

// Record is a convenience wrapper building the PricePoint from parts.
func (s *HistoryStore) Record(symbol string, price, volume float64, ts time.Time) {
	s.Append(domain.PricePoint{Symbol: symbol, Price: price, Volume: volume, Timestamp: ts})
}

// History returns a copy of the stored samples for a symbol, oldest first.
func (s *HistoryStore) History(symbol string) []domain.PricePoint {
	s.mu.RLock()
	defer s.mu.RUnlock()

	buf := s.history[symbol]
	out := make([]domain.PricePoint, len(buf))
	copy(out, buf)
	return out
}

// Histories returns a copy of every symbol's history.
func (s *HistoryStore) Histories() map[string][]domain.PricePoint {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]domain.PricePoint, len(s.history))
	for sym, buf := range s.history {
		cp := make([]domain.PricePoint, len(buf))
		copy(cp, buf)
		out[sym] = cp
	}
	return out
}

// CurrentPrice returns the latest known price for a symbol.
func (s *HistoryStore) CurrentPrice(symbol string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.current[symbol]
	return p, ok
}

// CurrentPrices returns a copy of the current-price map.
func (s *HistoryStore) CurrentPrices() map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]float64, len(s.current))
	for sym, p := range s.current {
		out[sym] = p
	}
	return out
}

// Len returns the number of stored samples for a symbol.
func (s *HistoryStore) Len(symbol string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history[symbol])
}
