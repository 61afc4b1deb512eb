package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinPilot/internal/domain"
)

type fakeSymbolNews struct {
	entries map[string][2]float64 // symbol -> sentiment, relevance
}

func (f *fakeSymbolNews) Get(symbol string) (float64, float64) {
	e, ok := f.entries[symbol]
	if !ok {
		return 0, 0
	}
	return e[0], e[1]
}

func trendMetrics(trend, momentum, rsi float64) domain.SymbolMetrics {
	return domain.SymbolMetrics{
		TrendStrength:  trend,
		Momentum:       momentum,
		RSI:            rsi,
		Volatility:     20,
		VolumeStrength: 1,
	}
}

func TestSelect_RanksByFitness(t *testing.T) {
	sel := NewSelector(DefaultSelectorConfig(), nil)
	metrics := map[string]domain.SymbolMetrics{
		"BTCUSDT": trendMetrics(30, 10, 55), // 30 + 20 + 10 = 60
		"ETHUSDT": trendMetrics(20, 2, 55),  // 30 + 4 + 10 = 44
		"ADAUSDT": trendMetrics(2, 0, 50),   // below MinScore
		"SOLUSDT": {Degraded: true},
	}
	prices := map[string]float64{"BTCUSDT": 45000, "ETHUSDT": 2500, "ADAUSDT": 0.45, "SOLUSDT": 100}

	out := sel.Select(metrics, prices, domain.StrategyTrendFollowing, 1000)

	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, out)
}

func TestSelect_TopKBound(t *testing.T) {
	sel := NewSelector(SelectorConfig{TopK: 2}, nil)
	metrics := map[string]domain.SymbolMetrics{
		"AUSDT": trendMetrics(30, 10, 55),
		"BUSDT": trendMetrics(25, 8, 55),
		"CUSDT": trendMetrics(20, 6, 55),
	}
	prices := map[string]float64{"AUSDT": 10, "BUSDT": 10, "CUSDT": 10}

	out := sel.Select(metrics, prices, domain.StrategyTrendFollowing, 1000)

	assert.Len(t, out, 2)
}

func TestSelect_LowBalanceExcludesExpensiveSymbols(t *testing.T) {
	sel := NewSelector(DefaultSelectorConfig(), nil)
	metrics := map[string]domain.SymbolMetrics{
		"BTCUSDT": trendMetrics(30, 10, 55),
		"XRPUSDT": trendMetrics(30, 10, 55),
	}
	prices := map[string]float64{"BTCUSDT": 45000, "XRPUSDT": 0.55}

	// Under the low-balance threshold only what the balance could buy passes.
	out := sel.Select(metrics, prices, domain.StrategyTrendFollowing, 50)
	assert.Equal(t, []string{"XRPUSDT"}, out)

	// At a comfortable balance the unit price no longer matters.
	out = sel.Select(metrics, prices, domain.StrategyTrendFollowing, 1000)
	assert.Len(t, out, 2)
}

func TestSelect_NewsDrivenWithoutNewsSourceYieldsNothing(t *testing.T) {
	sel := NewSelector(DefaultSelectorConfig(), nil)
	metrics := map[string]domain.SymbolMetrics{"BTCUSDT": trendMetrics(30, 10, 55)}
	prices := map[string]float64{"BTCUSDT": 45000}

	out := sel.Select(metrics, prices, domain.StrategyNewsDriven, 1000)

	assert.Empty(t, out)
}

func TestSelect_NewsDrivenUsesSentiment(t *testing.T) {
	news := &fakeSymbolNews{entries: map[string][2]float64{"BTCUSDT": {40, 80}}}
	sel := NewSelector(DefaultSelectorConfig(), news)
	metrics := map[string]domain.SymbolMetrics{
		"BTCUSDT": trendMetrics(5, 1, 50),
		"ETHUSDT": trendMetrics(5, 1, 50), // no news, scores below threshold
	}
	prices := map[string]float64{"BTCUSDT": 45000, "ETHUSDT": 2500}

	out := sel.Select(metrics, prices, domain.StrategyNewsDriven, 1000)

	assert.Equal(t, []string{"BTCUSDT"}, out)
}

func TestSelectWithFallback_WalksTheChain(t *testing.T) {
	sel := NewSelector(DefaultSelectorConfig(), nil)
	prices := map[string]float64{"BTCUSDT": 45000, "ETHUSDT": 2500}

	// No strategy fit, but one symbol shows activity.
	metrics := map[string]domain.SymbolMetrics{
		"BTCUSDT": {Volatility: 12, RSI: 50, VolumeStrength: 1},
		"ETHUSDT": {Volatility: 2, RSI: 50, VolumeStrength: 1},
	}
	ranked := []domain.StrategyScore{{StrategyID: domain.StrategyBreakout}}

	out := sel.SelectWithFallback(metrics, prices, ranked, 1000)
	require.Equal(t, []string{"BTCUSDT"}, out.Symbols, "activity fallback picks the moving symbol")
	assert.Equal(t, domain.StrategyBreakout, out.StrategyID, "strategy-agnostic stages report the first ranked strategy")

	// Everything flat and degraded: the last resort is pure affordability.
	metrics = map[string]domain.SymbolMetrics{
		"BTCUSDT": {Degraded: true},
		"ETHUSDT": {Degraded: true},
	}
	out = sel.SelectWithFallback(metrics, prices, ranked, 1000)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, out.Symbols, "affordability fallback is alphabetical")
	assert.Equal(t, domain.StrategyBreakout, out.StrategyID)
}

func TestSelectWithFallback_PrefersRankedStrategies(t *testing.T) {
	sel := NewSelector(DefaultSelectorConfig(), nil)
	metrics := map[string]domain.SymbolMetrics{
		"BTCUSDT": {BreakoutSignal: true, Consolidation: true, VolumeStrength: 1.5, RSI: 50, Volatility: 20},
	}
	prices := map[string]float64{"BTCUSDT": 45000}
	ranked := []domain.StrategyScore{
		{StrategyID: domain.StrategyNewsDriven}, // yields nothing without a news source
		{StrategyID: domain.StrategyBreakout},
	}

	out := sel.SelectWithFallback(metrics, prices, ranked, 1000)

	assert.Equal(t, []string{"BTCUSDT"}, out.Symbols)
	assert.Equal(t, domain.StrategyBreakout, out.StrategyID, "the strategy whose fitness produced the candidates is reported")
}
