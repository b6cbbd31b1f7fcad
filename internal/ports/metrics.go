package ports

// Metrics receives engine counters. Implementations must be safe for
// concurrent use.
type Metrics interface {
	TickCompleted(outcome string)
	TradeOpened(symbol, side string, qty float64)
	TradeClosed(symbol, reason string, pnl float64)
	EventRecorded(level, typ string)
	SetDailyState(tradesToday int, dailyPnL float64)
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) TickCompleted(string)                {}
func (NopMetrics) TradeOpened(string, string, float64) {}
func (NopMetrics) TradeClosed(string, string, float64) {}
func (NopMetrics) EventRecorded(string, string)        {}
func (NopMetrics) SetDailyState(int, float64)          {}
