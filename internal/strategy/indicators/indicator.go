package indicators

// Indicator represents a technical indicator computed from a close series
// ordered oldest-first.
type Indicator interface {
	// Calculate computes the indicator value at the last close
	Calculate(closes []float64) (float64, error)

	// RequiredDataPoints returns the minimum number of closes needed for calculation
	RequiredDataPoints() int

	// Name returns the name of the indicator
	Name() string
}

// IndicatorConfig holds common configuration for indicators
type IndicatorConfig struct {
	Period int
}

// BaseIndicator provides common functionality for indicators
type BaseIndicator struct {
	Config IndicatorConfig
}

// RequiredDataPoints returns the minimum number of closes needed for calculation
func (b *BaseIndicator) RequiredDataPoints() int {
	return b.Config.Period
}
