package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"

	"coinPilot/internal/domain"
	"coinPilot/internal/ports"
)

const (
	baseURLProduction = "https://api.binance.com"
	baseURLTestnet    = "https://testnet.binance.vision"
)

// Client implements the ports.ExchangeClient interface against the Binance
// spot API using the go-binance library.
type Client struct {
	spot   *binance.Client
	logger ports.Logger
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey     string
	SecretKey  string
	UseTestnet bool
	Logger     ports.Logger
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		cfg.Logger.Warn(context.Background(), "APIKey or SecretKey is empty. Client will only work for public endpoints.")
	}

	client := binance.NewClient(cfg.APIKey, cfg.SecretKey)
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
		cfg.Logger.Info(context.Background(), "Binance client configured for Testnet", map[string]interface{}{"baseURL": client.BaseURL})
	} else {
		client.BaseURL = baseURLProduction
		cfg.Logger.Info(context.Background(), "Binance client configured for Production", map[string]interface{}{"baseURL": client.BaseURL})
	}

	return &Client{spot: client, logger: cfg.Logger}, nil
}

// handleError translates Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}
	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1003:
			mappedErr = ports.ErrRateLimited
		case -1021, -1022, -2014, -2015:
			mappedErr = ports.ErrAuthenticationFailed
		case -1100, -1101, -1102, -1103, -1104, -1106, -1111, -1121, -1130:
			mappedErr = ports.ErrInvalidRequest
		case -2010:
			mappedErr = ports.ErrExecutionFailed
		case -3005:
			mappedErr = ports.ErrInsufficientBalance
		default:
			mappedErr = ports.ErrExchangeUnavailable
		}
		finalErr := fmt.Errorf("%s failed: %w: %v", operation, mappedErr, err)
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return finalErr
	}

	var finalErr error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		finalErr = fmt.Errorf("%s timed out: %w: %v", operation, ports.ErrExchangeUnavailable, err)
	case errors.Is(err, context.Canceled):
		finalErr = fmt.Errorf("%s canceled: %w: %v", operation, ports.ErrContextCanceled, err)
	default:
		finalErr = fmt.Errorf("%s failed: %w: %v", operation, ports.ErrExchangeUnavailable, err)
	}
	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// FetchPrice retrieves the current spot price for a single symbol.
func (c *Client) FetchPrice(ctx context.Context, symbol string) (float64, error) {
	op := "FetchPrice"
	prices, err := c.spot.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}
	if len(prices) == 0 {
		return 0, fmt.Errorf("%w: no price for symbol %s", ports.ErrDataUnavailable, symbol)
	}
	price, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		return 0, c.handleError(ctx, fmt.Errorf("could not parse price '%s': %w", prices[0].Price, err), op)
	}
	return price, nil
}

// FetchPrices retrieves current prices for a batch of symbols. Symbols the
// exchange does not know are simply absent from the result.
func (c *Client) FetchPrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	op := "FetchPrices"
	prices, err := c.spot.NewListPricesService().Symbols(symbols).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	out := make(map[string]float64, len(symbols))
	for _, p := range prices {
		price, err := strconv.ParseFloat(p.Price, 64)
		if err != nil {
			c.logger.Warn(ctx, "skipping unparseable price", map[string]interface{}{
				"symbol": p.Symbol, "raw": p.Price,
			})
			continue
		}
		out[p.Symbol] = price
	}
	return out, nil
}

// PlaceBuyOrder spends quoteAmount of the quote asset on a market buy.
func (c *Client) PlaceBuyOrder(ctx context.Context, symbol string, quoteAmount float64) (*ports.OrderResult, error) {
	op := "PlaceBuyOrder"
	order, err := c.spot.NewCreateOrderService().
		Symbol(symbol).
		Side(binance.SideTypeBuy).
		Type(binance.OrderTypeMarket).
		QuoteOrderQty(formatQty(quoteAmount)).
		Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	result := translateOrder(order, domain.Buy)
	c.logger.Info(ctx, op+" successful", map[string]interface{}{
		"symbol": symbol, "spent": quoteAmount, "qty": result.FilledQty, "avgPrice": result.AvgPrice,
	})
	return result, nil
}

// PlaceSellOrder sells qty of the base asset at market.
func (c *Client) PlaceSellOrder(ctx context.Context, symbol string, qty float64) (*ports.OrderResult, error) {
	op := "PlaceSellOrder"
	order, err := c.spot.NewCreateOrderService().
		Symbol(symbol).
		Side(binance.SideTypeSell).
		Type(binance.OrderTypeMarket).
		Quantity(formatQty(qty)).
		Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	result := translateOrder(order, domain.Sell)
	c.logger.Info(ctx, op+" successful", map[string]interface{}{
		"symbol": symbol, "qty": result.FilledQty, "avgPrice": result.AvgPrice,
	})
	return result, nil
}

// GetBalances returns free balances per asset, skipping zero balances.
func (c *Client) GetBalances(ctx context.Context) (map[string]float64, error) {
	op := "GetBalances"
	account, err := c.spot.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	out := make(map[string]float64)
	for _, b := range account.Balances {
		free, err := strconv.ParseFloat(b.Free, 64)
		if err != nil || free == 0 {
			continue
		}
		out[b.Asset] = free
	}
	return out, nil
}

// IsConnected reports whether the exchange API answers a ping.
func (c *Client) IsConnected(ctx context.Context) bool {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.spot.NewPingService().Do(pingCtx); err != nil {
		c.logger.Warn(ctx, "exchange ping failed", map[string]interface{}{"error": err.Error()})
		return false
	}
	return true
}

// --- Translation Helpers ---

// translateOrder derives the fill summary from a spot order response. The
// average price falls back to cumulative quote over executed quantity when
// individual fills are not reported.
func translateOrder(order *binance.CreateOrderResponse, side domain.OrderSide) *ports.OrderResult {
	if order == nil {
		return nil
	}
	execQty, _ := strconv.ParseFloat(order.ExecutedQuantity, 64)
	cumQuote, _ := strconv.ParseFloat(order.CummulativeQuoteQuantity, 64)

	avgPrice := 0.0
	if execQty > 0 {
		avgPrice = cumQuote / execQty
	}
	if avgPrice == 0 && len(order.Fills) > 0 {
		avgPrice, _ = strconv.ParseFloat(order.Fills[0].Price, 64)
	}

	return &ports.OrderResult{
		Symbol:      order.Symbol,
		Side:        side,
		FilledQty:   execQty,
		AvgPrice:    avgPrice,
		QuoteAmount: cumQuote,
	}
}

// formatQty renders a quantity the way the exchange expects. Eight decimals
// covers every spot lot size.
func formatQty(v float64) string {
	return strconv.FormatFloat(v, 'f', 8, 64)
}
