package risk

import (
	"math"
	"sync"
	"time"

	"coinPilot/internal/domain"
)

// Config holds the risk limits. Percentages are fractions.
type Config struct {
	MinTradeAmount       float64       // strategy-independent floor per trade, quote units
	MaxPositionFraction  float64       // ceiling per trade as a fraction of balance
	DailyLossLimitPct    float64       // daily loss fraction tripping the breaker
	ConsecutiveLossLimit int           // losing SELLs in a row tripping the breaker
	MaxDrawdownPct       float64       // drawdown from initial balance tripping the breaker
	HardMaxOpenPositions int           // system-wide cap independent of balance
	BreakerCooldown      time.Duration // breaker self-clears after this much time
}

// DefaultConfig returns the standard risk limits.
func DefaultConfig() Config {
	return Config{
		MinTradeAmount:       10,
		MaxPositionFraction:  0.15,
		DailyLossLimitPct:    0.08,
		ConsecutiveLossLimit: 3,
		MaxDrawdownPct:       0.15,
		HardMaxOpenPositions: 10,
		BreakerCooldown:      24 * time.Hour,
	}
}

// Manager computes position sizing and owns the circuit-breaker state. One
// instance lives for the engine lifetime; all methods are safe for
// concurrent use.
type Manager struct {
	cfg Config

	mu            sync.Mutex
	breakerActive bool
	breakerReason string
	activatedAt   time.Time
	now           func() time.Time
}

// NewManager creates a risk manager, applying defaults for zero fields.
func NewManager(cfg Config) *Manager {
	def := DefaultConfig()
	if cfg.MinTradeAmount <= 0 {
		cfg.MinTradeAmount = def.MinTradeAmount
	}
	if cfg.MaxPositionFraction <= 0 {
		cfg.MaxPositionFraction = def.MaxPositionFraction
	}
	if cfg.DailyLossLimitPct <= 0 {
		cfg.DailyLossLimitPct = def.DailyLossLimitPct
	}
	if cfg.ConsecutiveLossLimit <= 0 {
		cfg.ConsecutiveLossLimit = def.ConsecutiveLossLimit
	}
	if cfg.MaxDrawdownPct <= 0 {
		cfg.MaxDrawdownPct = def.MaxDrawdownPct
	}
	if cfg.HardMaxOpenPositions <= 0 {
		cfg.HardMaxOpenPositions = def.HardMaxOpenPositions
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = def.BreakerCooldown
	}
	return &Manager{cfg: cfg, now: time.Now}
}

// PositionSize computes the quote amount to spend on one position:
// strategy risk fraction of balance, scaled down as volatility rises and
// nudged by recent win rate, bounded below by the minimum trade amount and
// above by the maximum balance fraction.
func (m *Manager) PositionSize(balance, volatility float64, strategyID domain.StrategyID, recentTrades []*domain.Trade) float64 {
	params := domain.Params(strategyID)

	size := balance * params.PositionRiskPct

	// Volatility 0 leaves the size untouched; volatility 50 halves it.
	size /= 1 + math.Max(0, volatility)/50

	// Momentum-of-performance: a hot streak sizes up modestly, a cold one
	// sizes down. Not unconditional compounding.
	size *= winRateMultiplier(recentTrades)

	size = math.Max(size, m.cfg.MinTradeAmount)
	size = math.Min(size, m.cfg.MaxPositionFraction*balance)
	return size
}

// winRateMultiplier inspects up to the ten most recent SELL trades.
func winRateMultiplier(trades []*domain.Trade) float64 {
	wins, total := 0, 0
	for _, t := range trades {
		if t.Type != domain.Sell {
			continue
		}
		total++
		if t.Profit > 0 {
			wins++
		}
		if total == 10 {
			break
		}
	}
	if total < 3 {
		return 1
	}
	rate := float64(wins) / float64(total)
	switch {
	case rate >= 0.6:
		return 1.2
	case rate <= 0.4:
		return 0.8
	default:
		return 1
	}
}

// CircuitBreaker evaluates the protective-halt conditions. Once tripped it
// stays active until Reset or until the cooldown has elapsed, whichever
// comes first.
func (m *Manager) CircuitBreaker(balance, initialBalance, dailyStartBalance float64, recentTrades []*domain.Trade) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.breakerActive {
		if m.now().Sub(m.activatedAt) < m.cfg.BreakerCooldown {
			return true
		}
		// Cooldown elapsed: clear and re-evaluate below.
		m.breakerActive = false
		m.breakerReason = ""
	}

	if reason := m.tripReason(balance, initialBalance, dailyStartBalance, recentTrades); reason != "" {
		m.breakerActive = true
		m.breakerReason = reason
		m.activatedAt = m.now()
		return true
	}
	return false
}

func (m *Manager) tripReason(balance, initialBalance, dailyStartBalance float64, recentTrades []*domain.Trade) string {
	if dailyStartBalance > 0 {
		dailyLoss := (dailyStartBalance - balance) / dailyStartBalance
		if dailyLoss >= m.cfg.DailyLossLimitPct {
			return "daily loss limit"
		}
	}
	if initialBalance > 0 {
		drawdown := (initialBalance - balance) / initialBalance
		if drawdown >= m.cfg.MaxDrawdownPct {
			return "max drawdown"
		}
	}
	if consecutiveLosses(recentTrades) >= m.cfg.ConsecutiveLossLimit {
		return "consecutive losses"
	}
	return ""
}

// consecutiveLosses counts losing SELLs from the most recent backwards,
// stopping at the first winner. Trades are expected newest first.
func consecutiveLosses(trades []*domain.Trade) int {
	losses := 0
	for _, t := range trades {
		if t.Type != domain.Sell {
			continue
		}
		if t.Profit < 0 {
			losses++
			continue
		}
		break
	}
	return losses
}

// BreakerActive reports the current breaker state without re-evaluating.
func (m *Manager) BreakerActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.breakerActive
}

// BreakerReason returns why the breaker tripped, empty when inactive.
func (m *Manager) BreakerReason() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.breakerReason
}

// Reset clears an active breaker. Operator action.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.breakerActive = false
	m.breakerReason = ""
}

// MaxOpenPositions scales the concurrent-position allowance with balance
// tier and the strategy's risk profile, capped by the hard ceiling.
func (m *Manager) MaxOpenPositions(balance float64, strategyID domain.StrategyID) int {
	var tier int
	switch {
	case balance < 100:
		tier = 1
	case balance < 500:
		tier = 2
	case balance < 2000:
		tier = 3
	case balance < 10000:
		tier = 5
	default:
		tier = 8
	}

	params := domain.Params(strategyID)
	if params.RiskFactor >= 0.7 {
		tier++
	} else if params.RiskFactor <= 0.4 {
		tier--
	}
	if tier < 1 {
		tier = 1
	}
	if tier > m.cfg.HardMaxOpenPositions {
		tier = m.cfg.HardMaxOpenPositions
	}
	return tier
}

// Metrics builds the on-demand risk snapshot for the given inputs.
func (m *Manager) Metrics(balance, volatility float64, strategyID domain.StrategyID, recentTrades []*domain.Trade) domain.RiskMetrics {
	params := domain.Params(strategyID)

	level := domain.RiskMedium
	switch {
	case volatility > 40:
		level = domain.RiskHigh
	case volatility < 10:
		level = domain.RiskLow
	}

	return domain.RiskMetrics{
		Volatility:              volatility,
		RecommendedPositionSize: m.PositionSize(balance, volatility, strategyID, recentTrades),
		MaxDrawdown:             m.cfg.MaxDrawdownPct,
		CurrentRiskLevel:        level,
		DailyLossLimit:          m.cfg.DailyLossLimitPct,
		CircuitBreakerActive:    m.BreakerActive(),
		MaxOpenTrades:           m.MaxOpenPositions(balance, strategyID),
		PositionSizing:          params.PositionRiskPct,
	}
}
