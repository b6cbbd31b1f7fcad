package indicators

import (
	"fmt"
)

// MovingAverageType defines the type of moving average
type MovingAverageType string

const (
	// SimpleMovingAverage represents a simple moving average
	SimpleMovingAverage MovingAverageType = "SMA"
	// ExponentialMovingAverage represents an exponential moving average
	ExponentialMovingAverage MovingAverageType = "EMA"
)

// MovingAverageConfig holds configuration for moving average indicators
type MovingAverageConfig struct {
	IndicatorConfig
	Type MovingAverageType
}

// MovingAverage implements both SMA and EMA indicators
type MovingAverage struct {
	BaseIndicator
	config MovingAverageConfig
}

// NewMovingAverage creates a new moving average indicator instance
func NewMovingAverage(config MovingAverageConfig) *MovingAverage {
	return &MovingAverage{
		BaseIndicator: BaseIndicator{Config: config.IndicatorConfig},
		config:        config,
	}
}

// NewEMA is a shorthand for an exponential moving average over period closes.
func NewEMA(period int) *MovingAverage {
	return NewMovingAverage(MovingAverageConfig{
		IndicatorConfig: IndicatorConfig{Period: period},
		Type:            ExponentialMovingAverage,
	})
}

// Name returns the name of the indicator
func (m *MovingAverage) Name() string {
	return fmt.Sprintf("%s(%d)", m.config.Type, m.Config.Period)
}

// Calculate computes the moving average value based on the configured type
func (m *MovingAverage) Calculate(closes []float64) (float64, error) {
	if m.Config.Period <= 0 {
		return 0, fmt.Errorf("moving average period must be positive, got %d", m.Config.Period)
	}
	switch m.config.Type {
	case SimpleMovingAverage:
		return m.calculateSMA(closes)
	case ExponentialMovingAverage:
		return m.calculateEMA(closes)
	default:
		return 0, fmt.Errorf("unsupported moving average type: %s", m.config.Type)
	}
}

// calculateSMA computes the Simple Moving Average of the last period closes
func (m *MovingAverage) calculateSMA(closes []float64) (float64, error) {
	if len(closes) < m.Config.Period {
		return 0, fmt.Errorf("not enough data (%d) to calculate SMA for period %d", len(closes), m.Config.Period)
	}

	total := 0.0
	for _, c := range closes[len(closes)-m.Config.Period:] {
		total += c
	}
	return total / float64(m.Config.Period), nil
}

// calculateEMA computes the Exponential Moving Average seeded with the SMA of
// the first period closes.
func (m *MovingAverage) calculateEMA(closes []float64) (float64, error) {
	if len(closes) < m.Config.Period {
		return 0, fmt.Errorf("not enough data (%d) to calculate EMA for period %d", len(closes), m.Config.Period)
	}

	multiplier := 2.0 / float64(m.Config.Period+1)

	initialSMA, err := m.calculateSMA(closes[:m.Config.Period])
	if err != nil {
		return 0, fmt.Errorf("failed to calculate initial SMA for EMA: %w", err)
	}
	ema := initialSMA

	for _, c := range closes[m.Config.Period:] {
		ema = (c-ema)*multiplier + ema
	}

	return ema, nil
}
