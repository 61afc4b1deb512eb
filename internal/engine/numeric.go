package engine

import (
	"fmt"
	"math"

	"coinPilot/internal/ports"
)

// sanitize is the single numeric boundary for values entering the engine
// from outside (exchange fills, feed prices, computed quantities). It
// returns the value unchanged or an ErrInvalidNumeric failure; nothing
// non-finite may cross into Position/Trade/BotState.
func sanitize(name string, v float64) (float64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %s=%v", ports.ErrInvalidNumeric, name, v)
	}
	return v, nil
}

// sanitizePositive additionally rejects zero and negative values, the usual
// requirement for prices and quantities.
func sanitizePositive(name string, v float64) (float64, error) {
	v, err := sanitize(name, v)
	if err != nil {
		return 0, err
	}
	if v <= 0 {
		return 0, fmt.Errorf("%w: %s=%v (must be positive)", ports.ErrInvalidNumeric, name, v)
	}
	return v, nil
}
