package ports

import "perpRiskBot/internal/domain"

// SignalProvider turns a window of closes into a trading signal.
type SignalProvider interface {
	// RequiredDataPoints returns the minimum number of closes needed.
	RequiredDataPoints() int
	// Decide is a pure function of the supplied closes, oldest first.
	Decide(closes []float64) domain.Signal
}
