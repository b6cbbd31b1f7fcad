package domain

import "strings"

// OrderSide represents the side of an order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// Side is the direction of a position.
type Side string

const (
	Long  Side = "long"
	Short Side = "short"
)

// EntrySide returns the order side that opens a position in this direction.
func (s Side) EntrySide() OrderSide {
	if s == Short {
		return Sell
	}
	return Buy
}

// ExitSide returns the order side that closes a position in this direction.
func (s Side) ExitSide() OrderSide {
	if s == Short {
		return Buy
	}
	return Sell
}

// Signal is the three-valued output of a strategy.
type Signal string

const (
	SignalBuy  Signal = "BUY"
	SignalSell Signal = "SELL"
	SignalHold Signal = "HOLD"
)

// Side maps an actionable signal onto a position direction. HOLD reports false.
func (s Signal) Side() (Side, bool) {
	switch s {
	case SignalBuy:
		return Long, true
	case SignalSell:
		return Short, true
	default:
		return "", false
	}
}

// TradeStatus represents the lifecycle state of a trade. CLOSED is terminal.
type TradeStatus string

const (
	StatusOpen   TradeStatus = "OPEN"
	StatusClosed TradeStatus = "CLOSED"
)

// ExitReason indicates why a trade was closed.
type ExitReason string

const (
	ExitReasonTakeProfit ExitReason = "TP"
	ExitReasonStopLoss   ExitReason = "SL"
	// ExitReasonManual marks a trade closed outside the bot (by hand on the
	// exchange, then recorded in storage). The monitor never produces it.
	ExitReasonManual ExitReason = "MANUAL"
)

// EntryOrderType selects how entries are executed.
type EntryOrderType string

const (
	EntryLimit  EntryOrderType = "limit"
	EntryMarket EntryOrderType = "market"
)

// OrderState is the normalized status of an exchange order.
type OrderState string

const (
	OrderStateOpen      OrderState = "open"
	OrderStateFilled    OrderState = "filled"
	OrderStateCanceled  OrderState = "canceled"
	OrderStateRejected  OrderState = "rejected"
	OrderStateUndefined OrderState = "unknown"
)

// ParseOrderState normalizes exchange specific status strings.
func ParseOrderState(raw string) OrderState {
	switch strings.ToLower(strings.ReplaceAll(raw, "_", "")) {
	case "new", "partiallyfilled", "untriggered", "triggered", "open":
		return OrderStateOpen
	case "filled", "closed":
		return OrderStateFilled
	case "canceled", "cancelled", "partiallyfilledcanceled", "deactivated", "expired":
		return OrderStateCanceled
	case "rejected":
		return OrderStateRejected
	default:
		return OrderStateUndefined
	}
}
