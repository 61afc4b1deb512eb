package domain

import "time"

// Position represents an open trade exposure. While open, EntryPrice,
// Quantity, Mode, StrategyID and OpenedAt are immutable; StopLoss may only
// move in the risk-reducing direction. At most one open position exists per
// symbol.
type Position struct {
	ID         string
	Symbol     string
	Side       OrderSide
	EntryPrice float64
	Quantity   float64
	StopLoss   float64
	TakeProfit float64
	// TrailingStop is the highest stop level reached by trailing; zero when
	// trailing has not engaged.
	TrailingStop float64
	Mode         TradeMode
	StrategyID   StrategyID
	OpenedAt     time.Time
	ClosedAt     *time.Time
}

// IsOpen reports whether the position has not been closed yet.
func (p *Position) IsOpen() bool {
	return p.ClosedAt == nil
}

// ProfitPercent returns the unrealized profit fraction at the given price.
func (p *Position) ProfitPercent(currentPrice float64) float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	return (currentPrice - p.EntryPrice) / p.EntryPrice
}

// HoldDuration returns how long the position has been open at the given time.
func (p *Position) HoldDuration(now time.Time) time.Duration {
	return now.Sub(p.OpenedAt)
}
