package domain

import "time"

// PricePoint is a single observed price/volume sample for a symbol.
// Immutable once created; samples are appended to a bounded per-symbol
// history and the oldest are evicted.
type PricePoint struct {
	Symbol    string
	Price     float64
	Volume    float64
	Timestamp time.Time
}
