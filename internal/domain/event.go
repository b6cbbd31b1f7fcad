package domain

import "time"

// EventLevel is the severity of an audit event.
type EventLevel string

const (
	LevelInfo  EventLevel = "INFO"
	LevelWarn  EventLevel = "WARN"
	LevelError EventLevel = "ERROR"
)

// EventType identifies what happened.
type EventType string

const (
	EventBotStarted       EventType = "BOT_STARTED"
	EventBotStopped       EventType = "BOT_STOPPED"
	EventSettingsUpdated  EventType = "SETTINGS_UPDATED"
	EventDailyLossLimit   EventType = "DAILY_LOSS_LIMIT"
	EventSpreadSkip       EventType = "SPREAD_SKIP"
	EventQtyZero          EventType = "QTY_ZERO"
	EventEntryTimeout     EventType = "ENTRY_TIMEOUT"
	EventSlippageHigh     EventType = "SLIPPAGE_HIGH"
	EventTradeOpened      EventType = "TRADE_OPENED"
	EventTradeClosed      EventType = "TRADE_CLOSED"
	EventTrailSLUpdated   EventType = "TRAIL_SL_UPDATED"
	EventExchangeTPSLSet  EventType = "EXCHANGE_TPSL_SET"
	EventExchangeTPSLFail EventType = "EXCHANGE_TPSL_FAIL"
	EventLoopError        EventType = "LOOP_ERROR"
)

// Event is an append-only audit record. Events are never mutated or deleted.
type Event struct {
	ID        int64      `json:"id"`
	Level     EventLevel `json:"level"`
	Type      EventType  `json:"type"`
	Message   string     `json:"message"`
	Timestamp time.Time  `json:"ts"`
}
