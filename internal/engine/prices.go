package engine

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"coinPilot/internal/market"
	"coinPilot/internal/ports"
)

// Reference prices used to seed the simulated walk when a symbol has no
// history at all. Any symbol outside the table starts at 1.
var seedPrices = map[string]float64{
	"BTCUSDT": 45000,
	"ETHUSDT": 2500,
	"BNBUSDT": 300,
	"SOLUSDT": 100,
	"XRPUSDT": 0.55,
	"ADAUSDT": 0.45,
}

// PriceFeed refreshes current prices each tick. Symbols are fetched in
// bounded concurrent batches with a stagger between launches to stay under
// exchange rate limits; symbols the feed cannot supply fall back to a small
// simulated random walk from the last known price so the engine keeps
// operating on a degraded feed.
type PriceFeed struct {
	exchange   ports.ExchangeClient
	history    *market.HistoryStore
	logger     ports.Logger
	batchSize  int
	batchDelay time.Duration

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewPriceFeed creates a price feed over the given execution backend.
func NewPriceFeed(exchange ports.ExchangeClient, history *market.HistoryStore, logger ports.Logger, batchSize int, batchDelay time.Duration) *PriceFeed {
	if batchSize <= 0 {
		batchSize = 5
	}
	if batchDelay < 0 {
		batchDelay = 0
	}
	return &PriceFeed{
		exchange:   exchange,
		history:    history,
		logger:     logger,
		batchSize:  batchSize,
		batchDelay: batchDelay,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Refresh fetches prices for all symbols, records them into the history
// store and returns the merged map. Every requested symbol is present in the
// result; fetch failures degrade to the simulated walk per symbol.
func (f *PriceFeed) Refresh(ctx context.Context, symbols []string) map[string]float64 {
	fetched := make(map[string]float64, len(symbols))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for i, batch := range lo.Chunk(symbols, f.batchSize) {
		stagger := time.Duration(i) * f.batchDelay
		batch := batch
		g.Go(func() error {
			if stagger > 0 {
				select {
				case <-time.After(stagger):
				case <-gctx.Done():
					return nil
				}
			}
			prices, err := f.exchange.FetchPrices(gctx, batch)
			if err != nil {
				f.logger.Warn(gctx, "price batch failed, falling back to simulation", map[string]interface{}{
					"symbols": batch, "error": err.Error(),
				})
				return nil
			}
			mu.Lock()
			for sym, price := range prices {
				fetched[sym] = price
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	now := time.Now()
	out := make(map[string]float64, len(symbols))
	for _, sym := range symbols {
		price, ok := fetched[sym]
		if ok {
			if _, err := sanitizePositive(sym, price); err != nil {
				f.logger.Warn(ctx, "discarding malformed price, falling back to simulation", map[string]interface{}{
					"symbol": sym, "error": err.Error(),
				})
				ok = false
			}
		}
		if !ok {
			price = f.simulatedPrice(sym)
		}
		out[sym] = price
		f.history.Record(sym, price, f.simulatedVolume(), now)
	}
	return out
}

// simulatedPrice advances a small random walk from the last known price, or
// seeds one when the symbol has no history yet.
func (f *PriceFeed) simulatedPrice(symbol string) float64 {
	last, ok := f.history.CurrentPrice(symbol)
	if !ok || last <= 0 {
		if seed, found := seedPrices[symbol]; found {
			last = seed
		} else {
			last = 1
		}
	}
	f.rngMu.Lock()
	defer f.rngMu.Unlock()
	// Drift within +/-0.5% per tick.
	return last * (1 + (f.rng.Float64()-0.5)*0.01)
}

// simulatedVolume produces a plausible per-tick volume reading. The ticker
// endpoint carries no volume, so the volume-strength metric runs on this
// synthetic series in both trade modes.
func (f *PriceFeed) simulatedVolume() float64 {
	f.rngMu.Lock()
	defer f.rngMu.Unlock()
	return 1000 * (0.8 + f.rng.Float64()*0.4)
}
