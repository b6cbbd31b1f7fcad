package risk

import (
	"fmt"
	"time"

	"perpRiskBot/internal/domain"
)

// BlockReason names the throttle that stopped a tick.
type BlockReason string

const (
	ReasonNone       BlockReason = ""
	ReasonDailyLoss  BlockReason = "DAILY_LOSS_LIMIT"
	ReasonTradeLimit BlockReason = "TRADE_LIMIT"
	ReasonCooldown   BlockReason = "COOLDOWN"
)

// GateInput is the account state the throttles look at.
type GateInput struct {
	Now           time.Time
	LastTradeTime time.Time // zero when no trade has been opened yet
	TradesToday   int
	DailyPnL      float64
	Balance       float64
}

// Verdict is the outcome of a gate evaluation.
type Verdict struct {
	Allowed bool
	Reason  BlockReason
	Detail  string
}

// RiskGate evaluates the account-level throttles. It holds no state and never
// looks at signals or sizing.
type RiskGate struct{}

// NewRiskGate creates a new gate instance.
func NewRiskGate() *RiskGate {
	return &RiskGate{}
}

// Evaluate runs the daily loss cap, the trade count cap and the cooldown in
// that order and reports the first one that blocks.
func (g *RiskGate) Evaluate(st domain.Settings, in GateInput) Verdict {
	if blocked, limit := g.DailyLossReached(st, in.Balance, in.DailyPnL); blocked {
		return Verdict{
			Reason: ReasonDailyLoss,
			Detail: fmt.Sprintf("daily pnl %.4f reached loss limit %.4f", in.DailyPnL, -limit),
		}
	}
	if in.TradesToday >= st.MaxTradesPerDay {
		return Verdict{
			Reason: ReasonTradeLimit,
			Detail: fmt.Sprintf("daily trade limit reached (%d/%d)", in.TradesToday, st.MaxTradesPerDay),
		}
	}
	if !g.CooldownElapsed(st, in.LastTradeTime, in.Now) {
		remaining := st.Cooldown() - in.Now.Sub(in.LastTradeTime)
		return Verdict{
			Reason: ReasonCooldown,
			Detail: fmt.Sprintf("cooldown active, %s remaining", remaining.Round(time.Second)),
		}
	}
	return Verdict{Allowed: true}
}

// DailyLossReached reports whether dailyPnL is at or below the loss cap and
// returns the cap in quote units. An unknown (non-positive) balance never blocks.
func (g *RiskGate) DailyLossReached(st domain.Settings, balance, dailyPnL float64) (bool, float64) {
	if balance <= 0 {
		return false, 0
	}
	limit := balance * st.MaxDailyLossPct / 100.0
	return dailyPnL <= -limit, limit
}

// CooldownElapsed reports whether at least the cooldown has passed since
// lastTrade. Exactly the cooldown passes.
func (g *RiskGate) CooldownElapsed(st domain.Settings, lastTrade, now time.Time) bool {
	if lastTrade.IsZero() {
		return true
	}
	return now.Sub(lastTrade) >= st.Cooldown()
}
