package strategy

import (
	"fmt"
	"math"
	"sync"

	"github.com/samber/lo"

	"coinPilot/internal/domain"
)

const (
	baseScore = 50.0

	// Diversity guard: a strategy sitting in the top-3 for this many
	// consecutive evaluations gets rebalanced to keep the selector from
	// locking into a single heuristic.
	dominationWindow  = 6
	dominationPenalty = 15.0
)

// NewsReader is the slice of the news aggregator the scorer needs.
type NewsReader interface {
	AggregateSentiment() float64
	ActiveCount() int
}

// Scorer aggregates per-symbol metrics into market-wide conditions and
// scores every catalog strategy against them. It keeps a small amount of
// state for the diversity guard, so one instance should live for the whole
// engine lifetime.
type Scorer struct {
	mu sync.Mutex
	// consecutive top-3 appearances per strategy
	topStreak map[domain.StrategyID]int
}

// NewScorer creates a scorer with an empty domination history.
func NewScorer() *Scorer {
	return &Scorer{topStreak: make(map[domain.StrategyID]int)}
}

// Analyze folds per-symbol metrics and news state into MarketConditions.
func (s *Scorer) Analyze(metrics map[string]domain.SymbolMetrics, news NewsReader) domain.MarketConditions {
	cond := domain.MarketConditions{
		RiskLevel:    domain.RiskMedium,
		MarketRegime: domain.RegimeRanging,
		VolumeTrend:  1,
	}
	if news != nil {
		cond.NewsSentiment = news.AggregateSentiment()
		cond.NewsActivity = news.ActiveCount()
	}
	if len(metrics) == 0 {
		return cond
	}

	var trending, volatile, sampled int
	var vol, trend, mom, volume float64
	for _, m := range metrics {
		if m.Degraded {
			continue
		}
		sampled++
		vol += m.Volatility
		trend += m.TrendStrength
		mom += m.Momentum
		volume += m.VolumeStrength
		if math.Abs(m.TrendStrength) > 15 {
			trending++
		}
		if m.Volatility > 30 {
			volatile++
		}
	}
	if sampled == 0 {
		return cond
	}
	n := float64(sampled)
	cond.Volatility = vol / n
	cond.TrendStrength = trend / n
	cond.Momentum = mom / n
	cond.VolumeTrend = volume / n
	cond.TrendingRatio = float64(trending) / n
	cond.VolatilityRatio = float64(volatile) / n
	cond.SampledSymbols = sampled

	switch {
	case cond.TrendingRatio >= 0.5:
		cond.MarketRegime = domain.RegimeTrending
	case cond.VolatilityRatio >= 0.5:
		cond.MarketRegime = domain.RegimeVolatile
	case cond.Volatility < 10 && math.Abs(cond.TrendStrength) < 5:
		cond.MarketRegime = domain.RegimeQuiet
	default:
		cond.MarketRegime = domain.RegimeRanging
	}

	switch {
	case cond.Volatility > 40 || cond.MarketRegime == domain.RegimeVolatile:
		cond.RiskLevel = domain.RiskHigh
	case cond.MarketRegime == domain.RegimeQuiet:
		cond.RiskLevel = domain.RiskLow
	default:
		cond.RiskLevel = domain.RiskMedium
	}
	return cond
}

// Score rates every catalog strategy against the given conditions and
// returns the scores sorted descending. The diversity guard is applied
// before sorting, so a persistently dominating strategy can lose its lead.
func (s *Scorer) Score(cond domain.MarketConditions) []domain.StrategyScore {
	scores := lo.Map(domain.Catalog(), func(id domain.StrategyID, _ int) domain.StrategyScore {
		return s.scoreOne(id, cond)
	})

	s.applyDiversityGuard(scores)

	// Sort descending by score; catalog order breaks ties deterministically.
	for i := 1; i < len(scores); i++ {
		for j := i; j > 0 && scores[j].Score > scores[j-1].Score; j-- {
			scores[j], scores[j-1] = scores[j-1], scores[j]
		}
	}

	s.recordTopRanks(scores)
	s.applyConfidence(scores, cond)
	return scores
}

func (s *Scorer) scoreOne(id domain.StrategyID, cond domain.MarketConditions) domain.StrategyScore {
	score := baseScore
	var reasons []string
	add := func(delta float64, reason string) {
		score += delta
		reasons = append(reasons, fmt.Sprintf("%s (%+.0f)", reason, delta))
	}

	absTrend := math.Abs(cond.TrendStrength)

	switch id {
	case domain.StrategyTrendFollowing:
		if absTrend > 15 {
			add(20, "strong market trend")
		}
		if cond.TrendingRatio > 0.5 {
			add(12, "majority of symbols trending")
		}
		if cond.MarketRegime == domain.RegimeTrending {
			add(8, "trending regime")
		}
		if cond.TrendStrength > 0 && cond.Momentum > 1 {
			add(5, "momentum confirms trend")
		}
		if cond.TrendingRatio < 0.2 {
			add(-15, "few symbols trending")
		}

	case domain.StrategyMeanReversion:
		if absTrend < 5 {
			add(18, "weak market trend")
		}
		if cond.MarketRegime == domain.RegimeRanging {
			add(12, "ranging regime")
		}
		if cond.Volatility >= 10 && cond.Volatility <= 30 {
			add(6, "moderate volatility band")
		}
		if absTrend > 15 {
			add(-18, "strong trend resists reversion")
		}

	case domain.StrategyBreakout:
		if cond.VolatilityRatio > 0.3 {
			add(14, "volatility expansion")
		}
		if cond.VolumeTrend > 1.1 {
			add(10, "rising volume")
		}
		if cond.MarketRegime == domain.RegimeQuiet {
			add(8, "compression before breakout")
		}
		if cond.Volatility > 60 {
			add(-10, "volatility already extended")
		}

	case domain.StrategyMomentum:
		if math.Abs(cond.Momentum) > 5 {
			add(18, "strong market momentum")
		}
		if cond.VolumeTrend > 1.2 {
			add(10, "volume supports momentum")
		}
		if cond.RiskLevel == domain.RiskHigh {
			add(-8, "elevated risk")
		}
		if math.Abs(cond.Momentum) < 1 {
			add(-12, "momentum flat")
		}

	case domain.StrategyNewsDriven:
		if math.Abs(cond.NewsSentiment) > 15 {
			add(16, "strong news sentiment")
		}
		if cond.NewsActivity >= 3 {
			add(10, "active news flow")
		}
		if cond.NewsActivity == 0 {
			add(-20, "no live news signal")
		}

	case domain.StrategyAdaptive:
		// The adaptive variant is the safe middle: it scores moderately in
		// every regime and wins only when nothing else stands out.
		add(5, "regime-neutral baseline")
		if cond.RiskLevel == domain.RiskMedium {
			add(5, "balanced risk environment")
		}
	}

	return domain.StrategyScore{
		StrategyID: id,
		Score:      math.Min(100, math.Max(0, score)),
		Reasons:    reasons,
	}
}

// applyDiversityGuard penalizes a strategy that has held a top-3 rank for
// dominationWindow consecutive evaluations.
func (s *Scorer) applyDiversityGuard(scores []domain.StrategyScore) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range scores {
		if s.topStreak[scores[i].StrategyID] >= dominationWindow {
			scores[i].Score = math.Max(0, scores[i].Score-dominationPenalty)
			scores[i].Reasons = append(scores[i].Reasons,
				fmt.Sprintf("diversity rebalance (-%.0f)", dominationPenalty))
		}
	}
}

// recordTopRanks updates the per-strategy consecutive top-3 streaks.
func (s *Scorer) recordTopRanks(sorted []domain.StrategyScore) {
	s.mu.Lock()
	defer s.mu.Unlock()

	top := make(map[domain.StrategyID]bool, 3)
	for i := 0; i < len(sorted) && i < 3; i++ {
		top[sorted[i].StrategyID] = true
	}
	for _, id := range domain.Catalog() {
		if top[id] {
			s.topStreak[id]++
		} else {
			s.topStreak[id] = 0
		}
	}
}

// applyConfidence derives per-score confidence from data sufficiency and how
// decisively the top score separates from the neutral 50.
func (s *Scorer) applyConfidence(sorted []domain.StrategyScore, cond domain.MarketConditions) {
	sufficiency := math.Min(50, float64(cond.SampledSymbols)*8)
	for i := range sorted {
		separation := math.Min(50, math.Abs(sorted[i].Score-baseScore)*1.5)
		sorted[i].Confidence = math.Min(100, sufficiency+separation)
	}
}

// ExpectedWinRate estimates a win rate from the winning score. A near-tie
// with the neutral 50 maps to a coin flip.
func ExpectedWinRate(topScore float64) float64 {
	return math.Min(85, math.Max(35, 50+(topScore-baseScore)/2))
}
