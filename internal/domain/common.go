package domain

// OrderSide represents the side of an order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// TradeMode selects the execution backend for orders.
type TradeMode string

const (
	ModePaper TradeMode = "paper"
	ModeReal  TradeMode = "real"
)

// IsValid reports whether the mode is one of the known trade modes.
func (m TradeMode) IsValid() bool {
	return m == ModePaper || m == ModeReal
}

// BotStatus represents the lifecycle state of the trading engine.
type BotStatus string

const (
	StatusStopped BotStatus = "stopped"
	StatusRunning BotStatus = "running"
)

// SignalAction is the outcome of a signal evaluation.
type SignalAction string

const (
	ActionBuy  SignalAction = "BUY"
	ActionSell SignalAction = "SELL"
	ActionHold SignalAction = "HOLD"
)

// CloseReason indicates why a position was closed.
type CloseReason string

const (
	CloseReasonProfitTarget   CloseReason = "PROFIT_TARGET"
	CloseReasonEmergencyLimit CloseReason = "EMERGENCY_PROFIT_LIMIT"
	CloseReasonTimeLimit      CloseReason = "TIME_LIMIT"
	CloseReasonTrailingStop   CloseReason = "TRAILING_STOP"
	CloseReasonSignal         CloseReason = "SELL_SIGNAL"
	CloseReasonManual         CloseReason = "MANUAL"
)

// MarketRegime classifies the aggregate state of the tracked market.
type MarketRegime string

const (
	RegimeTrending MarketRegime = "trending"
	RegimeVolatile MarketRegime = "volatile"
	RegimeRanging  MarketRegime = "ranging"
	RegimeQuiet    MarketRegime = "quiet"
)

// RiskLevel is a coarse classification of current market risk.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)
