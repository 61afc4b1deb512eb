package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinPilot/internal/domain"
)

func sellTrade(profit float64) *domain.Trade {
	return &domain.Trade{Type: domain.Sell, Profit: profit}
}

func TestPositionSize_Bounds(t *testing.T) {
	m := NewManager(Config{})

	// Trend following risks 2.5% of balance at zero volatility.
	size := m.PositionSize(1000, 0, domain.StrategyTrendFollowing, nil)
	assert.InDelta(t, 25, size, 0.0001)

	// Volatility 50 halves the size.
	size = m.PositionSize(1000, 50, domain.StrategyTrendFollowing, nil)
	assert.InDelta(t, 12.5, size, 0.0001)

	// A tiny balance is lifted to the minimum trade amount.
	size = m.PositionSize(100, 80, domain.StrategyTrendFollowing, nil)
	assert.Equal(t, 10.0, size)

	// The ceiling is a fraction of balance, whatever the strategy wants.
	size = m.PositionSize(50, 0, domain.StrategyBreakout, nil)
	assert.LessOrEqual(t, size, 0.15*50+0.0001)
}

func TestPositionSize_WinRateMultiplier(t *testing.T) {
	m := NewManager(Config{})

	hot := []*domain.Trade{sellTrade(5), sellTrade(3), sellTrade(2), sellTrade(-1), sellTrade(4)}
	cold := []*domain.Trade{sellTrade(-5), sellTrade(-3), sellTrade(2), sellTrade(-1), sellTrade(-4)}
	sparse := []*domain.Trade{sellTrade(5), sellTrade(3)} // below the sample minimum

	base := m.PositionSize(1000, 0, domain.StrategyTrendFollowing, nil)
	assert.InDelta(t, base*1.2, m.PositionSize(1000, 0, domain.StrategyTrendFollowing, hot), 0.0001)
	assert.InDelta(t, base*0.8, m.PositionSize(1000, 0, domain.StrategyTrendFollowing, cold), 0.0001)
	assert.InDelta(t, base, m.PositionSize(1000, 0, domain.StrategyTrendFollowing, sparse), 0.0001)
}

func TestCircuitBreaker_DailyLossLimit(t *testing.T) {
	m := NewManager(Config{})

	assert.False(t, m.CircuitBreaker(960, 1000, 1000, nil), "4% daily loss is tolerable")
	assert.True(t, m.CircuitBreaker(915, 1000, 1000, nil), "8.5% daily loss trips")
	assert.Equal(t, "daily loss limit", m.BreakerReason())
}

func TestCircuitBreaker_MaxDrawdown(t *testing.T) {
	m := NewManager(Config{})

	// Daily balance is flat, but the account is down 16% from its start.
	assert.True(t, m.CircuitBreaker(840, 1000, 845, nil))
	assert.Equal(t, "max drawdown", m.BreakerReason())
}

func TestCircuitBreaker_ConsecutiveLosses(t *testing.T) {
	m := NewManager(Config{})

	twoLosses := []*domain.Trade{sellTrade(-1), sellTrade(-2), sellTrade(3), sellTrade(-4)}
	assert.False(t, m.CircuitBreaker(1000, 1000, 1000, twoLosses),
		"the winning trade breaks the streak")

	threeLosses := []*domain.Trade{sellTrade(-1), sellTrade(-2), sellTrade(-3), sellTrade(5)}
	assert.True(t, m.CircuitBreaker(1000, 1000, 1000, threeLosses))
	assert.Equal(t, "consecutive losses", m.BreakerReason())
}

func TestCircuitBreaker_StickyUntilReset(t *testing.T) {
	m := NewManager(Config{})
	require.True(t, m.CircuitBreaker(900, 1000, 1000, nil))

	// Conditions recover, but the breaker holds.
	assert.True(t, m.CircuitBreaker(1000, 1000, 1000, nil))
	assert.True(t, m.BreakerActive())

	m.Reset()
	assert.False(t, m.BreakerActive())
	assert.Empty(t, m.BreakerReason())
	assert.False(t, m.CircuitBreaker(1000, 1000, 1000, nil))
}

func TestCircuitBreaker_CooldownReevaluates(t *testing.T) {
	m := NewManager(Config{BreakerCooldown: time.Hour})
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return current }

	require.True(t, m.CircuitBreaker(900, 1000, 1000, nil))

	// Within the cooldown nothing clears it.
	current = current.Add(30 * time.Minute)
	assert.True(t, m.CircuitBreaker(1000, 1000, 1000, nil))

	// Past the cooldown with healthy balances the breaker releases.
	current = current.Add(2 * time.Hour)
	assert.False(t, m.CircuitBreaker(1000, 1000, 1000, nil))
	assert.False(t, m.BreakerActive())
}

func TestMaxOpenPositions_Tiers(t *testing.T) {
	m := NewManager(Config{})

	tests := []struct {
		name     string
		balance  float64
		strategy domain.StrategyID
		want     int
	}{
		{"tiny balance", 50, domain.StrategyTrendFollowing, 1},
		{"small balance", 300, domain.StrategyTrendFollowing, 2},
		{"mid balance", 1500, domain.StrategyTrendFollowing, 3},
		{"large balance", 5000, domain.StrategyTrendFollowing, 5},
		{"big balance", 20000, domain.StrategyTrendFollowing, 8},
		{"aggressive strategy adds one", 5000, domain.StrategyMomentum, 6},
		{"cautious strategy removes one", 5000, domain.StrategyMeanReversion, 4},
		{"never below one", 50, domain.StrategyMeanReversion, 1},
		{"hard ceiling holds", 20000, domain.StrategyMomentum, 9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.MaxOpenPositions(tt.balance, tt.strategy))
		})
	}
}

func TestMetrics_Snapshot(t *testing.T) {
	m := NewManager(Config{})

	got := m.Metrics(1000, 45, domain.StrategyTrendFollowing, nil)

	assert.Equal(t, 45.0, got.Volatility)
	assert.Equal(t, domain.RiskHigh, got.CurrentRiskLevel)
	assert.Equal(t, 0.15, got.MaxDrawdown)
	assert.Equal(t, 0.08, got.DailyLossLimit)
	assert.False(t, got.CircuitBreakerActive)
	assert.Equal(t, 3, got.MaxOpenTrades)
	assert.Equal(t, 0.025, got.PositionSizing)
	assert.Greater(t, got.RecommendedPositionSize, 0.0)
}
