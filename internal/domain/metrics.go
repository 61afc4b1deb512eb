package domain

import "time"

// SymbolMetrics holds per-symbol technical indicators derived from the
// symbol's price history. Recomputed each tick; never persisted.
type SymbolMetrics struct {
	Symbol                    string
	Volatility                float64 // stddev of % returns scaled to 0-100
	TrendStrength             float64 // short vs long EMA divergence, percent
	Momentum                  float64 // % change over the momentum window
	VolumeStrength            float64 // recent volume vs trailing average, ratio
	RSI                       float64 // 0-100
	Consolidation             bool    // trailing range compression
	BreakoutSignal            bool    // resistance break with volume confirmation
	SupportResistanceStrength float64 // 0-100
	Degraded                  bool    // true when history was below the minimum window
}

// MarketConditions aggregates SymbolMetrics across all tracked symbols plus
// news sentiment. Recomputed on each strategy-review tick.
type MarketConditions struct {
	Volatility      float64
	TrendStrength   float64
	Momentum        float64
	VolumeTrend     float64
	NewsSentiment   float64 // relevance-weighted average, -50..50
	RiskLevel       RiskLevel
	MarketRegime    MarketRegime
	TrendingRatio   float64 // fraction of symbols with a meaningful trend
	VolatilityRatio float64 // fraction of symbols above the volatility band
	NewsActivity    int     // number of live news entries
	SampledSymbols  int
}

// NewsItem is a sentiment reading for a symbol. Entries expire after a fixed
// TTL and are superseded by higher-relevance items, never averaged.
type NewsItem struct {
	Symbol    string
	Sentiment float64 // -50..50
	Relevance float64 // 0..100
	Timestamp time.Time
}

// StrategyScore is one strategy's fitness against current market conditions.
type StrategyScore struct {
	StrategyID StrategyID
	Score      float64 // 0..100
	Reasons    []string
	Confidence float64 // 0..100
}

// AIDecision records one strategy-review outcome, including the full scoring
// context that produced it.
type AIDecision struct {
	ID               string
	Timestamp        time.Time
	MarketConditions MarketConditions
	StrategyScores   []StrategyScore
	SelectedStrategy StrategyID
	PreviousStrategy StrategyID
	Reasoning        string
	Confidence       float64
	ExpectedWinRate  float64
}

// RiskMetrics is the on-demand snapshot of the risk subsystem.
type RiskMetrics struct {
	Volatility              float64
	RecommendedPositionSize float64
	MaxDrawdown             float64
	CurrentRiskLevel        RiskLevel
	DailyLossLimit          float64
	CircuitBreakerActive    bool
	MaxOpenTrades           int
	PositionSizing          float64 // fraction of balance per position
}

// Signal is the output of a signal evaluation for one symbol.
type Signal struct {
	Symbol     string
	Action     SignalAction
	Confidence float64
	Reasons    []string
	StopLoss   float64 // zero when not applicable
	TakeProfit float64 // zero when not applicable
}

// BotState is the single process-wide engine state record, mutated only
// through orchestrator operations.
type BotState struct {
	Status     BotStatus
	StrategyID StrategyID
	Mode       TradeMode
	StartTime  *time.Time
	AIEnabled  bool
}
