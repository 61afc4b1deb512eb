package market

import (
	"math"
	"sync"
	"time"

	"coinPilot/internal/domain"
)

const defaultNewsTTL = time.Hour

// NewsAggregator keeps a time-bounded per-symbol cache of sentiment
// readings. A single strong signal should not be diluted by many weak ones,
// so candidates for the same symbol are reconciled by relevance, not
// averaged. Refresh cadence is the caller's concern; the aggregator only
// enforces the TTL.
type NewsAggregator struct {
	mu    sync.RWMutex
	ttl   time.Duration
	items map[string]domain.NewsItem
	now   func() time.Time
}

// NewNewsAggregator creates an aggregator with the given TTL (defaulting to
// one hour).
func NewNewsAggregator(ttl time.Duration) *NewsAggregator {
	if ttl <= 0 {
		ttl = defaultNewsTTL
	}
	return &NewsAggregator{
		ttl:   ttl,
		items: make(map[string]domain.NewsItem),
		now:   time.Now,
	}
}

// Record stores a sentiment reading for a symbol. The entry wins only when
// no live entry exists or its relevance is at least the stored one's.
// Sentiment is clamped to [-50,50] and relevance to [0,100].
func (a *NewsAggregator) Record(symbol string, sentiment, relevance float64) {
	sentiment = math.Min(50, math.Max(-50, sentiment))
	relevance = math.Min(100, math.Max(0, relevance))

	a.mu.Lock()
	defer a.mu.Unlock()

	existing, ok := a.items[symbol]
	if ok && !a.expired(existing) && existing.Relevance > relevance {
		return
	}
	a.items[symbol] = domain.NewsItem{
		Symbol:    symbol,
		Sentiment: sentiment,
		Relevance: relevance,
		Timestamp: a.now(),
	}
}

// Get returns the live sentiment entry for a symbol, or a neutral zero-value
// pair when none exists or the stored entry has expired.
func (a *NewsAggregator) Get(symbol string) (sentiment, relevance float64) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	item, ok := a.items[symbol]
	if !ok || a.expired(item) {
		return 0, 0
	}
	return item.Sentiment, item.Relevance
}

// ActiveCount returns the number of unexpired entries.
func (a *NewsAggregator) ActiveCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()

	count := 0
	for _, item := range a.items {
		if !a.expired(item) {
			count++
		}
	}
	return count
}

// AggregateSentiment returns the relevance-weighted average sentiment across
// all live entries, zero when there are none.
func (a *NewsAggregator) AggregateSentiment() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var weighted, totalWeight float64
	for _, item := range a.items {
		if a.expired(item) || item.Relevance == 0 {
			continue
		}
		weighted += item.Sentiment * item.Relevance
		totalWeight += item.Relevance
	}
	if totalWeight == 0 {
		return 0
	}
	return weighted / totalWeight
}

// Prune drops expired entries. Safe to call from a maintenance ticker.
func (a *NewsAggregator) Prune() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for sym, item := range a.items {
		if a.expired(item) {
			delete(a.items, sym)
		}
	}
}

func (a *NewsAggregator) expired(item domain.NewsItem) bool {
	return a.now().Sub(item.Timestamp) > a.ttl
}
