package domain

import (
	"fmt"
	"strings"
	"time"
)

// Settings is the single mutable trading configuration record. It is edited
// externally and re-read by the engine on every tick.
type Settings struct {
	Symbol                string         `json:"symbol"`
	Timeframe             string         `json:"timeframe"`
	Leverage              int            `json:"leverage"`
	RiskPct               float64        `json:"risk_pct"`
	SLPct                 float64        `json:"sl_pct"`
	TPPct                 float64        `json:"tp_pct"`
	LoopIntervalSec       int            `json:"loop_interval_sec"`
	CooldownMinutes       int            `json:"cooldown_minutes"`
	MaxTradesPerDay       int            `json:"max_trades_per_day"`
	MaxDailyLossPct       float64        `json:"max_daily_loss_pct"`
	MaxMarginPct          float64        `json:"max_margin_pct"`
	EntryOrderType        EntryOrderType `json:"entry_order_type"`
	EntryTimeoutSec       int            `json:"entry_timeout_sec"`
	MaxSpreadPct          float64        `json:"max_spread_pct"`
	MaxSlippagePct        float64        `json:"max_slippage_pct"`
	AllowMarketFallback   bool           `json:"allow_market_fallback"`
	TrailingEnabled       bool           `json:"trailing_enabled"`
	TrailingActivationPct float64        `json:"trailing_activation_pct"`
	TrailingPct           float64        `json:"trailing_pct"`
	UseExchangeSLTP       bool           `json:"use_exchange_sl_tp"`
	UpdatedAt             time.Time      `json:"updated_at"`
}

// DefaultSettings returns the values used when the settings row is first created.
func DefaultSettings() Settings {
	return Settings{
		Symbol:                "BTCUSDT",
		Timeframe:             "5m",
		Leverage:              2,
		RiskPct:               1.0,
		SLPct:                 1.5,
		TPPct:                 2.5,
		LoopIntervalSec:       30,
		CooldownMinutes:       10,
		MaxTradesPerDay:       10,
		MaxDailyLossPct:       2.5,
		MaxMarginPct:          10.0,
		EntryOrderType:        EntryLimit,
		EntryTimeoutSec:       8,
		MaxSpreadPct:          0.05,
		MaxSlippagePct:        0.10,
		AllowMarketFallback:   true,
		TrailingEnabled:       true,
		TrailingActivationPct: 0.8,
		TrailingPct:           0.6,
		UseExchangeSLTP:       false,
	}
}

// LoopInterval returns the tick period as a duration.
func (s Settings) LoopInterval() time.Duration {
	return time.Duration(s.LoopIntervalSec) * time.Second
}

// Cooldown returns the minimum gap between entries.
func (s Settings) Cooldown() time.Duration {
	return time.Duration(s.CooldownMinutes) * time.Minute
}

// EntryTimeout returns how long a limit entry may rest before it is abandoned.
func (s Settings) EntryTimeout() time.Duration {
	return time.Duration(s.EntryTimeoutSec) * time.Second
}

// Validate checks the record for values the engine cannot work with.
func (s Settings) Validate() error {
	var errs []string

	if strings.TrimSpace(s.Symbol) == "" {
		errs = append(errs, "symbol must be set")
	}
	if strings.TrimSpace(s.Timeframe) == "" {
		errs = append(errs, "timeframe must be set")
	}
	if s.Leverage <= 0 {
		errs = append(errs, "leverage must be positive")
	}
	if s.LoopIntervalSec <= 0 {
		errs = append(errs, "loop_interval_sec must be positive")
	}
	if s.CooldownMinutes < 0 || s.MaxTradesPerDay < 0 || s.EntryTimeoutSec < 0 {
		errs = append(errs, "cooldown_minutes, max_trades_per_day and entry_timeout_sec cannot be negative")
	}
	pcts := []struct {
		name  string
		value float64
	}{
		{"risk_pct", s.RiskPct},
		{"sl_pct", s.SLPct},
		{"tp_pct", s.TPPct},
		{"max_daily_loss_pct", s.MaxDailyLossPct},
		{"max_margin_pct", s.MaxMarginPct},
		{"max_spread_pct", s.MaxSpreadPct},
		{"max_slippage_pct", s.MaxSlippagePct},
		{"trailing_activation_pct", s.TrailingActivationPct},
		{"trailing_pct", s.TrailingPct},
	}
	for _, p := range pcts {
		if p.value < 0 {
			errs = append(errs, p.name+" cannot be negative")
		}
	}
	if s.SLPct == 0 {
		errs = append(errs, "sl_pct must be positive")
	}
	if s.TPPct == 0 {
		errs = append(errs, "tp_pct must be positive")
	}
	if s.TrailingEnabled && s.TrailingPct == 0 {
		errs = append(errs, "trailing_pct must be positive when trailing is enabled")
	}
	if s.EntryOrderType != EntryLimit && s.EntryOrderType != EntryMarket {
		errs = append(errs, fmt.Sprintf("entry_order_type must be %q or %q", EntryLimit, EntryMarket))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid settings: %s", strings.Join(errs, "; "))
	}
	return nil
}

// SettingsPatch is a partial settings update. Nil fields are left untouched.
type SettingsPatch struct {
	Symbol                *string         `json:"symbol,omitempty"`
	Timeframe             *string         `json:"timeframe,omitempty"`
	Leverage              *int            `json:"leverage,omitempty"`
	RiskPct               *float64        `json:"risk_pct,omitempty"`
	SLPct                 *float64        `json:"sl_pct,omitempty"`
	TPPct                 *float64        `json:"tp_pct,omitempty"`
	LoopIntervalSec       *int            `json:"loop_interval_sec,omitempty"`
	CooldownMinutes       *int            `json:"cooldown_minutes,omitempty"`
	MaxTradesPerDay       *int            `json:"max_trades_per_day,omitempty"`
	MaxDailyLossPct       *float64        `json:"max_daily_loss_pct,omitempty"`
	MaxMarginPct          *float64        `json:"max_margin_pct,omitempty"`
	EntryOrderType        *EntryOrderType `json:"entry_order_type,omitempty"`
	EntryTimeoutSec       *int            `json:"entry_timeout_sec,omitempty"`
	MaxSpreadPct          *float64        `json:"max_spread_pct,omitempty"`
	MaxSlippagePct        *float64        `json:"max_slippage_pct,omitempty"`
	AllowMarketFallback   *bool           `json:"allow_market_fallback,omitempty"`
	TrailingEnabled       *bool           `json:"trailing_enabled,omitempty"`
	TrailingActivationPct *float64        `json:"trailing_activation_pct,omitempty"`
	TrailingPct           *float64        `json:"trailing_pct,omitempty"`
	UseExchangeSLTP       *bool           `json:"use_exchange_sl_tp,omitempty"`
}

// Apply returns a copy of s with the patch applied.
func (p SettingsPatch) Apply(s Settings) Settings {
	setString(&s.Symbol, p.Symbol)
	setString(&s.Timeframe, p.Timeframe)
	setInt(&s.Leverage, p.Leverage)
	setFloat(&s.RiskPct, p.RiskPct)
	setFloat(&s.SLPct, p.SLPct)
	setFloat(&s.TPPct, p.TPPct)
	setInt(&s.LoopIntervalSec, p.LoopIntervalSec)
	setInt(&s.CooldownMinutes, p.CooldownMinutes)
	setInt(&s.MaxTradesPerDay, p.MaxTradesPerDay)
	setFloat(&s.MaxDailyLossPct, p.MaxDailyLossPct)
	setFloat(&s.MaxMarginPct, p.MaxMarginPct)
	if p.EntryOrderType != nil {
		s.EntryOrderType = *p.EntryOrderType
	}
	setInt(&s.EntryTimeoutSec, p.EntryTimeoutSec)
	setFloat(&s.MaxSpreadPct, p.MaxSpreadPct)
	setFloat(&s.MaxSlippagePct, p.MaxSlippagePct)
	setBool(&s.AllowMarketFallback, p.AllowMarketFallback)
	setBool(&s.TrailingEnabled, p.TrailingEnabled)
	setFloat(&s.TrailingActivationPct, p.TrailingActivationPct)
	setFloat(&s.TrailingPct, p.TrailingPct)
	setBool(&s.UseExchangeSLTP, p.UseExchangeSLTP)
	return s
}

// IsEmpty reports whether the patch changes nothing.
func (p SettingsPatch) IsEmpty() bool {
	return p == SettingsPatch{}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
