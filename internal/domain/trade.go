package domain

import "time"

// Trade is an append-only record of an executed order. SELL trades carry the
// realized profit relative to the position they closed.
type Trade struct {
	ID            string
	Symbol        string
	Type          OrderSide
	Price         float64
	Quantity      float64
	Timestamp     time.Time
	Profit        float64
	ProfitPercent float64
	StrategyID    StrategyID
	Mode          TradeMode
}

// IsWin reports whether the trade realized a positive profit.
// Only meaningful for SELL trades.
func (t *Trade) IsWin() bool {
	return t.Type == Sell && t.Profit > 0
}
