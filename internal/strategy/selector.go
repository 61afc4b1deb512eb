package strategy

import (
	"math"
	"sort"

	"github.com/samber/lo"

	"coinPilot/internal/domain"
)

// SymbolNews exposes per-symbol sentiment lookups to the selector and the
// signal generator.
type SymbolNews interface {
	Get(symbol string) (sentiment, relevance float64)
}

// SelectorConfig bounds candidate selection.
type SelectorConfig struct {
	TopK                int     // candidates returned per selection
	MinScore            float64 // acceptance threshold for fitness scores
	LowBalanceThreshold float64 // below this, expensive symbols are excluded
}

// DefaultSelectorConfig returns the standard selection bounds.
func DefaultSelectorConfig() SelectorConfig {
	return SelectorConfig{
		TopK:                3,
		MinScore:            20,
		LowBalanceThreshold: 200,
	}
}

// Selector ranks candidate symbols by strategy-specific fitness under budget
// constraints.
type Selector struct {
	cfg  SelectorConfig
	news SymbolNews
}

// NewSelector creates a selector. news may be nil when sentiment data is not
// wired in; the news-driven strategy then never yields candidates.
func NewSelector(cfg SelectorConfig, news SymbolNews) *Selector {
	def := DefaultSelectorConfig()
	if cfg.TopK <= 0 {
		cfg.TopK = def.TopK
	}
	if cfg.MinScore <= 0 {
		cfg.MinScore = def.MinScore
	}
	if cfg.LowBalanceThreshold <= 0 {
		cfg.LowBalanceThreshold = def.LowBalanceThreshold
	}
	return &Selector{cfg: cfg, news: news}
}

type scoredSymbol struct {
	symbol string
	score  float64
}

// Select returns the top-K symbols whose strategy fitness clears the
// acceptance threshold, budget-filtered. The result is ordered best first.
func (s *Selector) Select(metrics map[string]domain.SymbolMetrics, prices map[string]float64, strategyID domain.StrategyID, balance float64) []string {
	candidates := make([]scoredSymbol, 0, len(metrics))
	for symbol, m := range metrics {
		if !s.affordable(symbol, prices, balance) {
			continue
		}
		score := s.fitness(symbol, m, strategyID)
		if score >= s.cfg.MinScore {
			candidates = append(candidates, scoredSymbol{symbol: symbol, score: score})
		}
	}
	return s.rank(candidates)
}

// Selection is a fallback-chain result: the candidate symbols together with
// the strategy whose fitness produced them, so entry signals can be evaluated
// under that same strategy.
type Selection struct {
	Symbols    []string
	StrategyID domain.StrategyID
}

// SelectWithFallback walks the fallback chain, ordered from most to least
// strategy-faithful: the chosen strategy, then the remaining ranked
// strategies from the review decision, then an activity heuristic over
// recent price dispersion, and finally a pure affordability filter. The two
// strategy-agnostic stages report the first ranked strategy.
func (s *Selector) SelectWithFallback(metrics map[string]domain.SymbolMetrics, prices map[string]float64, ranked []domain.StrategyScore, balance float64) Selection {
	for _, score := range ranked {
		if out := s.Select(metrics, prices, score.StrategyID, balance); len(out) > 0 {
			return Selection{Symbols: out, StrategyID: score.StrategyID}
		}
	}
	var fallback domain.StrategyID
	if len(ranked) > 0 {
		fallback = ranked[0].StrategyID
	}
	if out := s.activityCandidates(metrics, prices, balance); len(out) > 0 {
		return Selection{Symbols: out, StrategyID: fallback}
	}
	return Selection{Symbols: s.affordableSymbols(prices, balance), StrategyID: fallback}
}

// fitness applies the per-symbol scoring rules for one strategy. Same
// base-plus-bonus style as the market-wide scorer, keyed to the symbol's own
// metrics.
func (s *Selector) fitness(symbol string, m domain.SymbolMetrics, strategyID domain.StrategyID) float64 {
	if m.Degraded {
		return 0
	}
	score := 0.0

	switch strategyID {
	case domain.StrategyTrendFollowing:
		if m.TrendStrength > 15 {
			score += 30
		}
		score += math.Min(20, math.Max(0, m.Momentum)*2)
		if m.RSI > 40 && m.RSI < 70 {
			score += 10
		}

	case domain.StrategyMeanReversion:
		if m.RSI < 35 {
			score += 30
		}
		if m.Consolidation {
			score += 15
		}
		if math.Abs(m.TrendStrength) < 10 {
			score += 10
		}

	case domain.StrategyBreakout:
		if m.BreakoutSignal {
			score += 35
		}
		if m.Consolidation {
			score += 10
		}
		score += math.Min(15, math.Max(0, m.VolumeStrength-1)*20)

	case domain.StrategyMomentum:
		score += math.Min(30, math.Abs(m.Momentum)*3)
		if m.VolumeStrength > 1.2 {
			score += 15
		}
		if m.RSI > 50 && m.RSI < 72 {
			score += 10
		}

	case domain.StrategyNewsDriven:
		if s.news == nil {
			return 0
		}
		sentiment, relevance := s.news.Get(symbol)
		if sentiment > 10 {
			score += sentiment
		}
		score += relevance * 0.2
		if m.TrendStrength > 0 {
			score += 5
		}

	case domain.StrategyAdaptive:
		// Blend of trend and volume quality, deliberately conservative.
		score += math.Min(20, math.Max(0, m.TrendStrength))
		score += math.Min(10, math.Max(0, m.Momentum))
		if m.RSI > 35 && m.RSI < 65 {
			score += 10
		}
	}

	// High volatility is a liability for every per-symbol pick.
	if m.Volatility > 60 {
		score -= 15
	}
	return math.Max(0, score)
}

// activityCandidates ranks symbols by recent price dispersion, the fallback
// when no strategy produces a faithful candidate.
func (s *Selector) activityCandidates(metrics map[string]domain.SymbolMetrics, prices map[string]float64, balance float64) []string {
	candidates := make([]scoredSymbol, 0, len(metrics))
	for symbol, m := range metrics {
		if m.Degraded || !s.affordable(symbol, prices, balance) {
			continue
		}
		if m.Volatility > 5 {
			candidates = append(candidates, scoredSymbol{symbol: symbol, score: m.Volatility})
		}
	}
	return s.rank(candidates)
}

// affordableSymbols is the last-resort filter: anything the budget allows.
func (s *Selector) affordableSymbols(prices map[string]float64, balance float64) []string {
	symbols := lo.Keys(prices)
	sort.Strings(symbols)
	out := make([]string, 0, s.cfg.TopK)
	for _, symbol := range symbols {
		if s.affordable(symbol, prices, balance) {
			out = append(out, symbol)
			if len(out) == s.cfg.TopK {
				break
			}
		}
	}
	return out
}

// affordable enforces the budget constraint: under the low-balance
// threshold, symbols priced above what the balance could buy are excluded.
func (s *Selector) affordable(symbol string, prices map[string]float64, balance float64) bool {
	price, ok := prices[symbol]
	if !ok || price <= 0 {
		return false
	}
	if balance >= s.cfg.LowBalanceThreshold {
		return true
	}
	return price <= balance
}

func (s *Selector) rank(candidates []scoredSymbol) []string {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].symbol < candidates[j].symbol
	})
	if len(candidates) > s.cfg.TopK {
		candidates = candidates[:s.cfg.TopK]
	}
	return lo.Map(candidates, func(c scoredSymbol, _ int) string { return c.symbol })
}
