package paperexchange

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"coinPilot/internal/domain"
	"coinPilot/internal/ports"
)

// Default starting prices for the simulated market. Unknown symbols start
// at 1.
var defaultPrices = map[string]float64{
	"BTCUSDT": 45000,
	"ETHUSDT": 2500,
	"BNBUSDT": 300,
	"SOLUSDT": 100,
	"XRPUSDT": 0.55,
	"ADAUSDT": 0.45,
}

// Config holds configuration for the paper exchange.
type Config struct {
	InitialBalance float64 // starting quote balance
	QuoteAsset     string
	Slippage       float64 // fraction applied against the trader on fills
	Seed           int64   // deterministic walk when non-zero, used by tests
	Logger         ports.Logger
}

// Exchange implements ports.ExchangeClient against a simulated market with
// an in-memory balance sheet. Prices advance on a small random walk each
// fetch; orders fill at the current simulated price with configurable
// slippage. Always connected.
type Exchange struct {
	logger     ports.Logger
	quoteAsset string
	slippage   float64

	mu       sync.Mutex
	balances map[string]float64
	prices   map[string]float64
	rng      *rand.Rand
}

// New creates a paper exchange with the configured starting balance.
func New(cfg Config) (*Exchange, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for paper exchange")
	}
	if cfg.InitialBalance <= 0 {
		cfg.InitialBalance = 10000
	}
	if cfg.QuoteAsset == "" {
		cfg.QuoteAsset = "USDT"
	}
	if cfg.Slippage < 0 {
		cfg.Slippage = 0
	} else if cfg.Slippage == 0 {
		cfg.Slippage = 0.0005
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	prices := make(map[string]float64, len(defaultPrices))
	for sym, p := range defaultPrices {
		prices[sym] = p
	}
	return &Exchange{
		logger:     cfg.Logger,
		quoteAsset: cfg.QuoteAsset,
		slippage:   cfg.Slippage,
		balances:   map[string]float64{cfg.QuoteAsset: cfg.InitialBalance},
		prices:     prices,
		rng:        rand.New(rand.NewSource(seed)),
	}, nil
}

// SetPrice pins a symbol's price, bypassing the walk. Used by tests.
func (e *Exchange) SetPrice(symbol string, price float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.prices[symbol] = price
}

// FetchPrice advances the walk for one symbol and returns the new price.
func (e *Exchange) FetchPrice(ctx context.Context, symbol string) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.walkLocked(symbol), nil
}

// FetchPrices advances the walk for a batch of symbols.
func (e *Exchange) FetchPrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]float64, len(symbols))
	for _, sym := range symbols {
		out[sym] = e.walkLocked(sym)
	}
	return out, nil
}

// PlaceBuyOrder spends quoteAmount at the current simulated price.
func (e *Exchange) PlaceBuyOrder(ctx context.Context, symbol string, quoteAmount float64) (*ports.OrderResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if quoteAmount <= 0 {
		return nil, fmt.Errorf("%w: quote amount %v", ports.ErrInvalidRequest, quoteAmount)
	}
	available := e.balances[e.quoteAsset]
	if quoteAmount > available {
		return nil, fmt.Errorf("%w: need %.2f %s, have %.2f",
			ports.ErrInsufficientBalance, quoteAmount, e.quoteAsset, available)
	}

	price := e.currentLocked(symbol) * (1 + e.slippage)
	qty := quoteAmount / price
	e.balances[e.quoteAsset] -= quoteAmount
	e.balances[e.baseAsset(symbol)] += qty

	e.logger.Debug(ctx, "paper buy filled", map[string]interface{}{
		"symbol": symbol, "qty": qty, "price": price, "spent": quoteAmount,
	})
	return &ports.OrderResult{
		Symbol:      symbol,
		Side:        domain.Buy,
		FilledQty:   qty,
		AvgPrice:    price,
		QuoteAmount: quoteAmount,
	}, nil
}

// PlaceSellOrder sells qty of the base asset at the current simulated price.
func (e *Exchange) PlaceSellOrder(ctx context.Context, symbol string, qty float64) (*ports.OrderResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if qty <= 0 {
		return nil, fmt.Errorf("%w: quantity %v", ports.ErrInvalidRequest, qty)
	}
	base := e.baseAsset(symbol)
	held := e.balances[base]
	// Tiny epsilon absorbs float accumulation from prior fills.
	if qty > held*(1+1e-9) {
		return nil, fmt.Errorf("%w: want %v %s, hold %v", ports.ErrNoAssetToSell, qty, base, held)
	}
	if qty > held {
		qty = held
	}

	price := e.currentLocked(symbol) * (1 - e.slippage)
	proceeds := qty * price
	e.balances[base] -= qty
	e.balances[e.quoteAsset] += proceeds

	e.logger.Debug(ctx, "paper sell filled", map[string]interface{}{
		"symbol": symbol, "qty": qty, "price": price, "proceeds": proceeds,
	})
	return &ports.OrderResult{
		Symbol:      symbol,
		Side:        domain.Sell,
		FilledQty:   qty,
		AvgPrice:    price,
		QuoteAmount: proceeds,
	}, nil
}

// GetBalances returns a copy of the simulated balance sheet.
func (e *Exchange) GetBalances(ctx context.Context) (map[string]float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]float64, len(e.balances))
	for asset, bal := range e.balances {
		out[asset] = bal
	}
	return out, nil
}

// IsConnected always reports true; the simulated market cannot go away.
func (e *Exchange) IsConnected(ctx context.Context) bool { return true }

func (e *Exchange) baseAsset(symbol string) string {
	return strings.TrimSuffix(symbol, e.quoteAsset)
}

func (e *Exchange) currentLocked(symbol string) float64 {
	price, ok := e.prices[symbol]
	if !ok || price <= 0 {
		price = 1
		e.prices[symbol] = price
	}
	return price
}

// walkLocked advances the symbol's price by a drift within +/-0.5%.
func (e *Exchange) walkLocked(symbol string) float64 {
	price := e.currentLocked(symbol) * (1 + (e.rng.Float64()-0.5)*0.01)
	e.prices[symbol] = price
	return price
}
