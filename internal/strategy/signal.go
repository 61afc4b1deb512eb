package strategy

import (
	"fmt"
	"math"

	"coinPilot/internal/domain"
)

// Safety filters vetoing any prospective BUY, regardless of the strategy's
// own affirmative rules.
const (
	vetoRSI        = 75.0
	vetoVolatility = 60.0
)

// Generator produces BUY/SELL/HOLD signals for one symbol under one
// strategy. Prospective entries may only yield BUY or HOLD; evaluations of
// an existing position may only yield SELL or HOLD, and never SELL below
// break-even.
type Generator struct {
	news SymbolNews
}

// NewGenerator creates a signal generator. news may be nil.
func NewGenerator(news SymbolNews) *Generator {
	return &Generator{news: news}
}

// Entry evaluates a prospective entry. The result's action is BUY or HOLD.
func (g *Generator) Entry(m domain.SymbolMetrics, currentPrice float64, strategyID domain.StrategyID) domain.Signal {
	sig := domain.Signal{Symbol: m.Symbol, Action: domain.ActionHold, Confidence: 50}
	if m.Degraded {
		sig.Reasons = append(sig.Reasons, "insufficient history")
		return sig
	}

	// Safety vetoes override any affirmative strategy rule.
	if m.RSI >= vetoRSI {
		sig.Reasons = append(sig.Reasons, fmt.Sprintf("overbought veto: RSI %.1f", m.RSI))
		return sig
	}
	if m.Volatility >= vetoVolatility {
		sig.Reasons = append(sig.Reasons, fmt.Sprintf("volatility veto: %.1f", m.Volatility))
		return sig
	}

	buy, confidence, reasons := g.entryRules(m, strategyID)
	sig.Reasons = append(sig.Reasons, reasons...)
	if !buy {
		return sig
	}

	params := domain.Params(strategyID)
	sig.Action = domain.ActionBuy
	sig.Confidence = confidence
	sig.StopLoss = currentPrice * (1 - params.StopLossPct)
	sig.TakeProfit = currentPrice * (1 + params.TakeProfit)
	return sig
}

// entryRules applies the strategy-specific threshold rules for a BUY.
func (g *Generator) entryRules(m domain.SymbolMetrics, strategyID domain.StrategyID) (bool, float64, []string) {
	var reasons []string
	confidence := 50.0

	switch strategyID {
	case domain.StrategyTrendFollowing:
		if m.TrendStrength > 15 && m.Momentum > 1 && m.RSI < 70 {
			reasons = append(reasons,
				fmt.Sprintf("uptrend %.1f with momentum %.1f%%", m.TrendStrength, m.Momentum))
			confidence += math.Min(30, m.TrendStrength/3)
			return true, confidence, reasons
		}
		reasons = append(reasons, "trend conditions not met")

	case domain.StrategyMeanReversion:
		if m.RSI < 32 && m.TrendStrength > -30 {
			reasons = append(reasons, fmt.Sprintf("oversold: RSI %.1f", m.RSI))
			confidence += (32 - m.RSI)
			return true, confidence, reasons
		}
		reasons = append(reasons, "no oversold setup")

	case domain.StrategyBreakout:
		if m.BreakoutSignal && m.VolumeStrength > 1.2 {
			reasons = append(reasons,
				fmt.Sprintf("resistance break, volume ratio %.2f", m.VolumeStrength))
			confidence += 20
			return true, confidence, reasons
		}
		reasons = append(reasons, "no confirmed breakout")

	case domain.StrategyMomentum:
		if m.Momentum > 3 && m.VolumeStrength > 1.1 && m.RSI < 72 {
			reasons = append(reasons, fmt.Sprintf("momentum %.1f%% on volume", m.Momentum))
			confidence += math.Min(25, m.Momentum*2)
			return true, confidence, reasons
		}
		reasons = append(reasons, "momentum too weak")

	case domain.StrategyNewsDriven:
		if g.news == nil {
			reasons = append(reasons, "no news source wired")
			break
		}
		sentiment, relevance := g.news.Get(m.Symbol)
		if sentiment > 15 && relevance > 40 && m.TrendStrength > -10 {
			reasons = append(reasons,
				fmt.Sprintf("positive news: sentiment %.0f relevance %.0f", sentiment, relevance))
			confidence += sentiment / 2
			return true, confidence, reasons
		}
		reasons = append(reasons, "no actionable news")

	case domain.StrategyAdaptive:
		if m.TrendStrength > 10 && m.Momentum > 0.5 && m.RSI > 35 && m.RSI < 68 {
			reasons = append(reasons, "balanced trend and momentum")
			confidence += 15
			return true, confidence, reasons
		}
		reasons = append(reasons, "adaptive conditions not met")
	}

	return false, math.Min(100, confidence), reasons
}

// Exit evaluates an existing position. The result's action is SELL or HOLD;
// below break-even it is always HOLD.
func (g *Generator) Exit(entryPrice, currentPrice float64, strategyID domain.StrategyID) domain.Signal {
	sig := domain.Signal{Action: domain.ActionHold, Confidence: 50}

	if currentPrice < entryPrice {
		sig.Reasons = append(sig.Reasons, "below break-even, holding")
		return sig
	}

	profit := 0.0
	if entryPrice > 0 {
		profit = (currentPrice - entryPrice) / entryPrice
	}

	if profit >= domain.EmergencyProfitCeiling {
		sig.Action = domain.ActionSell
		sig.Confidence = 95
		sig.Reasons = append(sig.Reasons,
			fmt.Sprintf("profit %.1f%% above emergency ceiling", profit*100))
		return sig
	}

	params := domain.Params(strategyID)
	if profit >= params.MinProfitTarget {
		sig.Action = domain.ActionSell
		sig.Confidence = math.Min(90, 60+profit*200)
		sig.Reasons = append(sig.Reasons,
			fmt.Sprintf("profit %.1f%% reached %s target", profit*100, params.Name))
		return sig
	}

	sig.Reasons = append(sig.Reasons,
		fmt.Sprintf("profit %.1f%% below %.1f%% target", profit*100, params.MinProfitTarget*100))
	return sig
}
