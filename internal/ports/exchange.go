package ports

import (
	"context"

	"coinPilot/internal/domain"
)

// OrderResult holds the essential fill details returned after placing an
// order. AvgPrice may be zero when the backend could not report a fill price;
// callers are expected to sanitize before applying it to state.
type OrderResult struct {
	Symbol      string
	Side        domain.OrderSide
	FilledQty   float64
	AvgPrice    float64
	QuoteAmount float64
}

// ExchangeClient abstracts the price feed and order execution backend.
// Implementations exist for live exchange trading and for paper trading
// against a simulated balance. All calls may fail; failures must never crash
// a tick.
type ExchangeClient interface {
	// FetchPrice returns the current price for one symbol.
	FetchPrice(ctx context.Context, symbol string) (float64, error)

	// FetchPrices returns current prices for a batch of symbols. Symbols the
	// feed cannot supply are absent from the result rather than failing the
	// whole batch.
	FetchPrices(ctx context.Context, symbols []string) (map[string]float64, error)

	// PlaceBuyOrder spends quoteAmount of the quote asset on the symbol and
	// returns the filled quantity and average price.
	PlaceBuyOrder(ctx context.Context, symbol string, quoteAmount float64) (*OrderResult, error)

	// PlaceSellOrder sells qty of the base asset and returns the average price.
	PlaceSellOrder(ctx context.Context, symbol string, qty float64) (*OrderResult, error)

	// GetBalances returns free balances keyed by asset.
	GetBalances(ctx context.Context) (map[string]float64, error)

	// IsConnected reports whether the backend is reachable.
	IsConnected(ctx context.Context) bool
}
