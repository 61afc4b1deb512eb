package domain

import "time"

// Exit-policy constants shared by the signal generator and the position
// lifecycle. Fractions of entry price.
const (
	// EmergencyProfitCeiling closes any position unconditionally once profit
	// exceeds it, regardless of the strategy's own target.
	EmergencyProfitCeiling = 0.25
	// StopLossFloorPct is the widest the stop may move below entry while a
	// position is under water.
	StopLossFloorPct = 0.10
	// TrailingActivatePct is the profit at which the trailing stop engages.
	TrailingActivatePct = 0.03
	// TrailingLockPct is the profit locked in once trailing engages.
	TrailingLockPct = 0.01
)

// StrategyID identifies a catalog strategy. The set is closed: every ID maps
// to a parameter record through Params, and unknown IDs fall back to the
// adaptive variant rather than failing.
type StrategyID string

const (
	StrategyTrendFollowing StrategyID = "trend_following"
	StrategyMeanReversion  StrategyID = "mean_reversion"
	StrategyBreakout       StrategyID = "breakout"
	StrategyMomentum       StrategyID = "momentum"
	StrategyNewsDriven     StrategyID = "news_driven"
	StrategyAdaptive       StrategyID = "adaptive"
)

// Catalog lists every selectable strategy, in scoring order.
func Catalog() []StrategyID {
	return []StrategyID{
		StrategyTrendFollowing,
		StrategyMeanReversion,
		StrategyBreakout,
		StrategyMomentum,
		StrategyNewsDriven,
		StrategyAdaptive,
	}
}

// IsValid reports whether the ID belongs to the catalog.
func (id StrategyID) IsValid() bool {
	switch id {
	case StrategyTrendFollowing, StrategyMeanReversion, StrategyBreakout,
		StrategyMomentum, StrategyNewsDriven, StrategyAdaptive:
		return true
	}
	return false
}

// StrategyParams is the full configuration record for a strategy variant.
// Percentages are expressed as fractions (0.06 == 6%).
type StrategyParams struct {
	ID              StrategyID
	Name            string
	MinProfitTarget float64       // minimum profit fraction before a position may close
	TakeProfit      float64       // advisory take-profit fraction for new positions
	StopLossPct     float64       // initial stop distance below entry
	MaxHoldDuration time.Duration // time-boxed exit even at modest profit
	RiskFactor      float64       // 0..1, scales position sizing and open-position count
	PositionRiskPct float64       // fraction of balance risked per trade
}

// Params is a total function from StrategyID to its configuration.
// The adaptive variant is derived from the trend-following base rather than
// maintained as an independent record.
func Params(id StrategyID) StrategyParams {
	switch id {
	case StrategyTrendFollowing:
		return StrategyParams{
			ID:              StrategyTrendFollowing,
			Name:            "Trend Following",
			MinProfitTarget: 0.03,
			TakeProfit:      0.06,
			StopLossPct:     0.015,
			MaxHoldDuration: 8 * time.Hour,
			RiskFactor:      0.5,
			PositionRiskPct: 0.025,
		}
	case StrategyMeanReversion:
		return StrategyParams{
			ID:              StrategyMeanReversion,
			Name:            "Mean Reversion",
			MinProfitTarget: 0.02,
			TakeProfit:      0.04,
			StopLossPct:     0.02,
			MaxHoldDuration: 12 * time.Hour,
			RiskFactor:      0.4,
			PositionRiskPct: 0.02,
		}
	case StrategyBreakout:
		return StrategyParams{
			ID:              StrategyBreakout,
			Name:            "Breakout",
			MinProfitTarget: 0.04,
			TakeProfit:      0.08,
			StopLossPct:     0.02,
			MaxHoldDuration: 6 * time.Hour,
			RiskFactor:      0.7,
			PositionRiskPct: 0.03,
		}
	case StrategyMomentum:
		return StrategyParams{
			ID:              StrategyMomentum,
			Name:            "Momentum",
			MinProfitTarget: 0.025,
			TakeProfit:      0.05,
			StopLossPct:     0.015,
			MaxHoldDuration: 4 * time.Hour,
			RiskFactor:      0.8,
			PositionRiskPct: 0.03,
		}
	case StrategyNewsDriven:
		return StrategyParams{
			ID:              StrategyNewsDriven,
			Name:            "News Driven",
			MinProfitTarget: 0.02,
			TakeProfit:      0.05,
			StopLossPct:     0.025,
			MaxHoldDuration: 3 * time.Hour,
			RiskFactor:      0.6,
			PositionRiskPct: 0.02,
		}
	default:
		return adaptiveParams()
	}
}

// adaptiveParams derives the adaptive variant from the trend-following base:
// tighter profit taking, smaller risk, shorter holds. Expressed as an explicit
// combinator so the derivation stays visible in one place.
func adaptiveParams() StrategyParams {
	p := Params(StrategyTrendFollowing)
	p.ID = StrategyAdaptive
	p.Name = "Adaptive"
	p.MinProfitTarget = 0.02
	p.MaxHoldDuration = p.MaxHoldDuration / 2
	p.RiskFactor = 0.45
	p.PositionRiskPct = 0.02
	return p
}
