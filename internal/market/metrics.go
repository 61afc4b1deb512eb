package market

import (
	"math"

	"coinPilot/internal/domain"
)

// Calculator derives per-symbol technical metrics from a price history
// window. Compute is a pure function of its input; the calculator holds only
// configuration.
type Calculator struct {
	cfg CalculatorConfig
}

// CalculatorConfig holds the indicator periods and detector thresholds.
type CalculatorConfig struct {
	MinWindow       int     // samples required for full metrics
	ShortEMAPeriod  int     // e.g. 8
	LongEMAPeriod   int     // e.g. 15
	MomentumPeriod  int     // e.g. 10
	RSIPeriod       int     // e.g. 14
	VolatilityScale float64 // return stddev -> 0-100 band multiplier
	RangeWindow     int     // trailing window for consolidation/breakout
	ConsolidationTh float64 // max range fraction for consolidation
	VolumeConfirmTh float64 // min volume ratio confirming a breakout
}

// DefaultCalculatorConfig returns the standard indicator configuration.
func DefaultCalculatorConfig() CalculatorConfig {
	return CalculatorConfig{
		MinWindow:       15,
		ShortEMAPeriod:  8,
		LongEMAPeriod:   15,
		MomentumPeriod:  10,
		RSIPeriod:       14,
		VolatilityScale: 1000,
		RangeWindow:     10,
		ConsolidationTh: 0.015,
		VolumeConfirmTh: 1.2,
	}
}

// NewCalculator creates a calculator, applying defaults for zero fields.
func NewCalculator(cfg CalculatorConfig) *Calculator {
	def := DefaultCalculatorConfig()
	if cfg.MinWindow <= 0 {
		cfg.MinWindow = def.MinWindow
	}
	if cfg.ShortEMAPeriod <= 0 {
		cfg.ShortEMAPeriod = def.ShortEMAPeriod
	}
	if cfg.LongEMAPeriod <= 0 {
		cfg.LongEMAPeriod = def.LongEMAPeriod
	}
	if cfg.MomentumPeriod <= 0 {
		cfg.MomentumPeriod = def.MomentumPeriod
	}
	if cfg.RSIPeriod <= 0 {
		cfg.RSIPeriod = def.RSIPeriod
	}
	if cfg.VolatilityScale <= 0 {
		cfg.VolatilityScale = def.VolatilityScale
	}
	if cfg.RangeWindow <= 0 {
		cfg.RangeWindow = def.RangeWindow
	}
	if cfg.ConsolidationTh <= 0 {
		cfg.ConsolidationTh = def.ConsolidationTh
	}
	if cfg.VolumeConfirmTh <= 0 {
		cfg.VolumeConfirmTh = def.VolumeConfirmTh
	}
	return &Calculator{cfg: cfg}
}

// Compute derives SymbolMetrics from the given history window (oldest
// first). Below the minimum window it returns neutral defaults with the
// Degraded flag set.
func (c *Calculator) Compute(history []domain.PricePoint) domain.SymbolMetrics {
	m := domain.SymbolMetrics{RSI: 50, VolumeStrength: 1}
	if len(history) > 0 {
		m.Symbol = history[0].Symbol
	}
	if len(history) < c.cfg.MinWindow {
		m.Degraded = true
		return m
	}

	prices := make([]float64, len(history))
	volumes := make([]float64, len(history))
	for i, p := range history {
		prices[i] = p.Price
		volumes[i] = p.Volume
	}

	m.Volatility = clamp(returnStdDev(prices)*c.cfg.VolatilityScale, 0, 100)
	m.TrendStrength = c.trendStrength(prices)
	m.Momentum = c.momentum(prices)
	m.VolumeStrength = volumeStrength(volumes)
	m.RSI = rsi(prices, c.cfg.RSIPeriod)
	m.Consolidation = c.isConsolidating(prices)
	m.BreakoutSignal = c.isBreakout(prices, m.VolumeStrength)
	m.SupportResistanceStrength = c.supportResistance(prices)
	return m
}

// returnStdDev computes the standard deviation of percentage returns.
func returnStdDev(prices []float64) float64 {
	if len(prices) < 2 {
		return 0
	}
	returns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] != 0 {
			returns = append(returns, (prices[i]-prices[i-1])/prices[i-1])
		}
	}
	if len(returns) == 0 {
		return 0
	}
	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))
	return math.Sqrt(variance)
}

// trendStrength compares a short EMA against a longer one, scaled to a
// -100..100 band. Positive values mean an uptrend; +-15 is a meaningful
// trend, +-50 a strong one.
func (c *Calculator) trendStrength(prices []float64) float64 {
	short := ema(prices, c.cfg.ShortEMAPeriod)
	long := ema(prices, c.cfg.LongEMAPeriod)
	if long == 0 {
		return 0
	}
	return clamp((short-long)/long*1000, -100, 100)
}

// momentum is the percentage change over the last MomentumPeriod samples.
func (c *Calculator) momentum(prices []float64) float64 {
	n := c.cfg.MomentumPeriod
	if len(prices) <= n {
		n = len(prices) - 1
	}
	base := prices[len(prices)-1-n]
	if base == 0 {
		return 0
	}
	return (prices[len(prices)-1] - base) / base * 100
}

// volumeStrength is the ratio of recent volume (last 5 samples) to the
// average over the whole window.
func volumeStrength(volumes []float64) float64 {
	if len(volumes) == 0 {
		return 1
	}
	var total float64
	for _, v := range volumes {
		total += v
	}
	avg := total / float64(len(volumes))
	if avg == 0 {
		return 1
	}
	recent := volumes
	if len(volumes) > 5 {
		recent = volumes[len(volumes)-5:]
	}
	var recentTotal float64
	for _, v := range recent {
		recentTotal += v
	}
	return (recentTotal / float64(len(recent))) / avg
}

// rsi computes the standard average-gain/average-loss RSI over the last
// period+1 prices, clamped to [0,100]. A window with zero average loss
// returns 100 (or the 50 neutral when there were no gains either).
func rsi(prices []float64, period int) float64 {
	if len(prices) <= period {
		return 50
	}
	window := prices[len(prices)-period-1:]
	var avgGain, avgLoss float64
	for i := 1; i < len(window); i++ {
		change := window[i] - window[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return clamp(100-(100/(1+rs)), 0, 100)
}

// isConsolidating detects range compression over the trailing window.
func (c *Calculator) isConsolidating(prices []float64) bool {
	window := tail(prices, c.cfg.RangeWindow)
	low, high := minMax(window)
	if high == 0 {
		return false
	}
	mid := (high + low) / 2
	if mid == 0 {
		return false
	}
	return (high-low)/mid < c.cfg.ConsolidationTh
}

// isBreakout detects a close above the prior window's resistance with volume
// confirmation.
func (c *Calculator) isBreakout(prices []float64, volumeRatio float64) bool {
	if len(prices) < c.cfg.RangeWindow+1 {
		return false
	}
	last := prices[len(prices)-1]
	window := prices[len(prices)-1-c.cfg.RangeWindow : len(prices)-1]
	_, resistance := minMax(window)
	return last > resistance && volumeRatio >= c.cfg.VolumeConfirmTh
}

// supportResistance scores how often the window touched its extremes,
// scaled to 0-100. More touches mean better-defined levels.
func (c *Calculator) supportResistance(prices []float64) float64 {
	window := tail(prices, c.cfg.RangeWindow*2)
	low, high := minMax(window)
	if high == 0 || high == low {
		return 0
	}
	const proximity = 0.005
	touches := 0
	for _, p := range window {
		if math.Abs(p-high)/high < proximity || math.Abs(p-low)/high < proximity {
			touches++
		}
	}
	return clamp(float64(touches)/float64(len(window))*200, 0, 100)
}

func tail(prices []float64, n int) []float64 {
	if len(prices) <= n {
		return prices
	}
	return prices[len(prices)-n:]
}

func minMax(values []float64) (low, high float64) {
	if len(values) == 0 {
		return 0, 0
	}
	low, high = values[0], values[0]
	for _, v := range values[1:] {
		if v < low {
			low = v
		}
		if v > high {
			high = v
		}
	}
	return low, high
}

// ema computes an exponential moving average seeded with the SMA of the first
// period samples.
func ema(prices []float64, period int) float64 {
	if len(prices) < period || period <= 0 {
		if len(prices) == 0 {
			return 0
		}
		period = len(prices)
	}
	var seed float64
	for _, p := range prices[:period] {
		seed += p
	}
	value := seed / float64(period)
	multiplier := 2.0 / float64(period+1)
	for _, p := range prices[period:] {
		value = (p-value)*multiplier + value
	}
	return value
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}
