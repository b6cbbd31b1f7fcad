package strategy

import (
	"fmt"

	"perpRiskBot/internal/domain"
	"perpRiskBot/internal/strategy/indicators"
)

// Config holds parameters for the EMA crossover strategy.
type Config struct {
	FastEMAPeriod int // e.g., 20
	SlowEMAPeriod int // e.g., 50
	MinCloses     int // e.g., 60; fewer closes always yield HOLD

	// Optional RSI filter. Disabled when RSIPeriod is 0.
	RSIPeriod     int
	RSIOverbought float64 // BUY is suppressed at or above this value
	RSIOversold   float64 // SELL is suppressed at or below this value
}

// DefaultConfig returns the 20/50 EMA crossover with a 60 close warm-up.
func DefaultConfig() Config {
	return Config{FastEMAPeriod: 20, SlowEMAPeriod: 50, MinCloses: 60}
}

// Strategy turns a close series into BUY, SELL or HOLD.
type Strategy struct {
	cfg  Config
	fast *indicators.MovingAverage
	slow *indicators.MovingAverage
	rsi  *indicators.RSI
}

// New creates a new Strategy instance.
func New(cfg Config) (*Strategy, error) {
	if cfg.FastEMAPeriod <= 0 || cfg.SlowEMAPeriod <= 0 {
		return nil, fmt.Errorf("strategy periods must be positive")
	}
	if cfg.FastEMAPeriod >= cfg.SlowEMAPeriod {
		return nil, fmt.Errorf("fast EMA period must be less than slow EMA period")
	}
	if cfg.MinCloses < 0 || cfg.RSIPeriod < 0 {
		return nil, fmt.Errorf("strategy min closes and RSI period must not be negative")
	}

	s := &Strategy{
		cfg:  cfg,
		fast: indicators.NewEMA(cfg.FastEMAPeriod),
		slow: indicators.NewEMA(cfg.SlowEMAPeriod),
	}
	if cfg.RSIPeriod > 0 {
		s.rsi = indicators.NewRSI(indicators.RSIConfig{
			IndicatorConfig: indicators.IndicatorConfig{Period: cfg.RSIPeriod},
			Overbought:      cfg.RSIOverbought,
			Oversold:        cfg.RSIOversold,
		})
	}
	return s, nil
}

// RequiredDataPoints returns the minimum number of closes needed before a
// non-HOLD decision is possible.
func (s *Strategy) RequiredDataPoints() int {
	n := s.cfg.MinCloses
	if p := s.slow.RequiredDataPoints(); p > n {
		n = p
	}
	if s.rsi != nil {
		if p := s.rsi.RequiredDataPoints(); p > n {
			n = p
		}
	}
	return n
}

// Decide returns BUY when the fast EMA is above the slow EMA, SELL when it is
// below and HOLD when they are equal or history is too short.
func (s *Strategy) Decide(closes []float64) domain.Signal {
	if len(closes) < s.RequiredDataPoints() {
		return domain.SignalHold
	}

	fast, err := s.fast.Calculate(closes)
	if err != nil {
		return domain.SignalHold
	}
	slow, err := s.slow.Calculate(closes)
	if err != nil {
		return domain.SignalHold
	}

	var signal domain.Signal
	switch {
	case fast > slow:
		signal = domain.SignalBuy
	case fast < slow:
		signal = domain.SignalSell
	default:
		return domain.SignalHold
	}

	if s.rsi == nil {
		return signal
	}
	rsi, err := s.rsi.Calculate(closes)
	if err != nil {
		return domain.SignalHold
	}
	if signal == domain.SignalBuy && s.rsi.IsOverbought(rsi) {
		return domain.SignalHold
	}
	if signal == domain.SignalSell && s.rsi.IsOversold(rsi) {
		return domain.SignalHold
	}
	return signal
}
