package domain

import "time"

// Trade is one round trip on a symbol. The persistence layer owns the
// authoritative copy; the engine works on per-tick snapshots.
type Trade struct {
	ID         int64       `json:"id"`
	Symbol     string      `json:"symbol"`
	Side       Side        `json:"side"`
	Qty        float64     `json:"qty"`
	Entry      float64     `json:"entry"` // actual fill average used for SL/TP
	StopLoss   float64     `json:"sl"`    // mutable through trailing
	TakeProfit float64     `json:"tp"`
	Status     TradeStatus `json:"status"`

	EntryOrderID string    `json:"entry_order_id"`
	EntryAvgFill float64   `json:"entry_avg_fill"`
	EntryFee     *float64  `json:"entry_fee_usdt"`
	OpenedAt     time.Time `json:"opened_at"`

	ExitOrderID string     `json:"exit_order_id,omitempty"`
	ExitPrice   float64    `json:"exit_price,omitempty"`
	ExitAvgFill float64    `json:"exit_avg_fill,omitempty"`
	ExitFee     *float64   `json:"exit_fee_usdt,omitempty"`
	ExitReason  ExitReason `json:"exit_reason,omitempty"`
	PNL         float64    `json:"pnl_usdt"`
	ClosedAt    time.Time  `json:"closed_at"`
}

// IsOpen checks if the trade status is open.
func (t *Trade) IsOpen() bool {
	return t.Status == StatusOpen
}

// TradeUpdate is a partial update of a trade. Nil fields are left untouched.
type TradeUpdate struct {
	StopLoss    *float64
	Status      *TradeStatus
	ExitOrderID *string
	ExitPrice   *float64
	ExitAvgFill *float64
	ExitFee     *float64
	ExitReason  *ExitReason
	PNL         *float64
	ClosedAt    *time.Time
}

// ApplyTo copies the set fields onto t.
func (u TradeUpdate) ApplyTo(t *Trade) {
	if u.StopLoss != nil {
		t.StopLoss = *u.StopLoss
	}
	if u.Status != nil {
		t.Status = *u.Status
	}
	if u.ExitOrderID != nil {
		t.ExitOrderID = *u.ExitOrderID
	}
	if u.ExitPrice != nil {
		t.ExitPrice = *u.ExitPrice
	}
	if u.ExitAvgFill != nil {
		t.ExitAvgFill = *u.ExitAvgFill
	}
	if u.ExitFee != nil {
		fee := *u.ExitFee
		t.ExitFee = &fee
	}
	if u.ExitReason != nil {
		t.ExitReason = *u.ExitReason
	}
	if u.PNL != nil {
		t.PNL = *u.PNL
	}
	if u.ClosedAt != nil {
		t.ClosedAt = *u.ClosedAt
	}
}
