package ports

import (
	"context"

	"perpRiskBot/internal/domain"
)

// SettingsRepository stores the single settings record.
type SettingsRepository interface {
	// GetOrCreateSettings returns the settings, creating the default row on first use.
	GetOrCreateSettings(ctx context.Context) (domain.Settings, error)
	// UpdateSettings applies a partial update and returns the stored result.
	UpdateSettings(ctx context.Context, patch domain.SettingsPatch) (domain.Settings, error)
}

// TradeRepository stores trades. It owns the authoritative Trade.
type TradeRepository interface {
	// AddTrade inserts the trade and sets its ID.
	AddTrade(ctx context.Context, trade *domain.Trade) (int64, error)
	// UpdateTrade applies a partial update. Returns an error wrapping ErrNotFound
	// when id does not exist.
	UpdateTrade(ctx context.Context, id int64, upd domain.TradeUpdate) (*domain.Trade, error)
	// GetOpenTrade returns the open trade for symbol, or nil, nil.
	GetOpenTrade(ctx context.Context, symbol string) (*domain.Trade, error)
	// ListTrades returns the most recent trades, oldest first.
	ListTrades(ctx context.Context, limit int) ([]*domain.Trade, error)
}

// EventRepository is the append-only audit log.
type EventRepository interface {
	AddEvent(ctx context.Context, level domain.EventLevel, typ domain.EventType, message string) (*domain.Event, error)
	// ListEvents returns the most recent events, oldest first.
	ListEvents(ctx context.Context, limit int) ([]*domain.Event, error)
}

// Persistence bundles the repositories the engine writes to.
type Persistence interface {
	SettingsRepository
	TradeRepository
	EventRepository
}
