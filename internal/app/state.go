package app

import "time"

// State is the process-local engine state. It is mutated only by the worker
// goroutine and read by Status under the engine lock.
type State struct {
	Running       bool
	LastTradeTime time.Time
	TradesToday   int
	DayStart      time.Time // UTC midnight of the current trading day
	DailyPnL      float64
	BestPrice     float64 // trailing extremum, 0 while unarmed
}

// Status is the read-only view served to the control surface.
type Status struct {
	Running       bool       `json:"running"`
	TradesToday   int        `json:"trades_today"`
	DailyPnL      float64    `json:"daily_pnl_usdt"`
	LastTradeTime *time.Time `json:"last_trade_time"`
}

// snapshot converts the state into a Status.
func (s State) snapshot() Status {
	st := Status{
		Running:     s.Running,
		TradesToday: s.TradesToday,
		DailyPnL:    s.DailyPnL,
	}
	if !s.LastTradeTime.IsZero() {
		t := s.LastTradeTime
		st.LastTradeTime = &t
	}
	return st
}

// utcDay truncates t to midnight UTC.
func utcDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
