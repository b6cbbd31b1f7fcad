package execution

import (
	"context"
	"fmt"
	"time"

	"perpRiskBot/internal/domain"
	"perpRiskBot/internal/ports"
)

// MonitorResult is the outcome of one monitor pass over the open trade.
type MonitorResult struct {
	Trade     domain.Trade
	BestPrice float64 // 0 while trailing is unarmed
	Closed    bool
	Reason    domain.ExitReason
	PNL       float64
}

// PositionMonitor evaluates the open trade against the current price: it
// tightens the trailing stop and closes the position on TP or SL.
type PositionMonitor struct {
	orders  ports.Orders
	trades  ports.TradeRepository
	journal *Journal
	logger  ports.Logger
	now     func() time.Time
}

// NewPositionMonitor creates a monitor.
func NewPositionMonitor(orders ports.Orders, trades ports.TradeRepository, journal *Journal, logger ports.Logger) *PositionMonitor {
	return &PositionMonitor{
		orders:  orders,
		trades:  trades,
		journal: journal,
		logger:  logger,
		now:     utcNow,
	}
}

// TrailStop computes the trailing stop for price. best is the running
// extremum observed since arming (0 when unarmed). The stop only moves once
// profit relative to entry reaches activationPct, and only in the tightening
// direction. moved reports whether newSL differs from currentSL.
func TrailStop(side domain.Side, entry, currentSL, price, best, activationPct, trailPct float64) (newBest, newSL float64, moved bool) {
	if entry <= 0 {
		return best, currentSL, false
	}

	if side == domain.Short {
		profitPct := (entry - price) / entry * 100.0
		if profitPct < activationPct {
			return best, currentSL, false
		}
		if best <= 0 || price < best {
			best = price
		}
		candidate := best * (1 + trailPct/100.0)
		if candidate < currentSL {
			return best, candidate, true
		}
		return best, currentSL, false
	}

	profitPct := (price - entry) / entry * 100.0
	if profitPct < activationPct {
		return best, currentSL, false
	}
	if price > best {
		best = price
	}
	candidate := best * (1 - trailPct/100.0)
	if candidate > currentSL {
		return best, candidate, true
	}
	return best, currentSL, false
}

// ExitHit reports whether price crosses a protective level. TP wins when both
// conditions hold.
func ExitHit(t domain.Trade, price float64) (domain.ExitReason, bool) {
	if t.Side == domain.Short {
		switch {
		case price <= t.TakeProfit:
			return domain.ExitReasonTakeProfit, true
		case price >= t.StopLoss:
			return domain.ExitReasonStopLoss, true
		}
		return "", false
	}
	switch {
	case price >= t.TakeProfit:
		return domain.ExitReasonTakeProfit, true
	case price <= t.StopLoss:
		return domain.ExitReasonStopLoss, true
	}
	return "", false
}

// RealizedPNL is (exit-entry)*qty for a long and the negation for a short.
func RealizedPNL(side domain.Side, entry, exit, qty float64) float64 {
	pnl := (exit - entry) * qty
	if side == domain.Short {
		return -pnl
	}
	return pnl
}

// Evaluate runs one monitor pass. trade is the per-tick snapshot of the OPEN
// trade; the returned result carries the updated snapshot and best price.
func (m *PositionMonitor) Evaluate(ctx context.Context, trade domain.Trade, st domain.Settings, price, bestPrice float64) (MonitorResult, error) {
	res := MonitorResult{Trade: trade, BestPrice: bestPrice}
	slMoved := false

	if st.TrailingEnabled {
		best, newSL, moved := TrailStop(trade.Side, trade.Entry, trade.StopLoss, price, bestPrice,
			st.TrailingActivationPct, st.TrailingPct)
		res.BestPrice = best
		if moved {
			updated, err := m.trades.UpdateTrade(ctx, trade.ID, domain.TradeUpdate{StopLoss: &newSL})
			if err != nil {
				return res, fmt.Errorf("failed to persist trailing stop for trade %d: %w", trade.ID, err)
			}
			res.Trade = *updated
			slMoved = true
			m.journal.Record(ctx, domain.LevelInfo, domain.EventTrailSLUpdated,
				fmt.Sprintf("SL -> %.2f", newSL), ports.Fields{"tradeID": trade.ID, "bestPrice": best})
		}
	}

	reason, hit := ExitHit(res.Trade, price)
	if !hit {
		if slMoved && st.UseExchangeSLTP {
			m.pushNativeStop(ctx, res.Trade)
		}
		return res, nil
	}

	closed, pnl, err := m.close(ctx, res.Trade, price, reason)
	if err != nil {
		return res, err
	}
	res.Trade = *closed
	res.Closed = true
	res.Reason = reason
	res.PNL = pnl
	res.BestPrice = 0
	return res, nil
}

// close flattens the position with a reduce-only market order and persists
// the CLOSED trade.
func (m *PositionMonitor) close(ctx context.Context, t domain.Trade, price float64, reason domain.ExitReason) (*domain.Trade, float64, error) {
	op := "close"
	fill, err := m.orders.CreateMarket(ctx, t.Symbol, t.Side.ExitSide(), t.Qty, true)
	if err != nil {
		return nil, 0, fmt.Errorf("exit market order for trade %d failed: %w", t.ID, err)
	}

	exitPrice := price
	avg := 0.0
	if fill != nil && fill.AvgPrice > 0 {
		avg = fill.AvgPrice
		exitPrice = avg
	} else {
		m.logger.Debug(ctx, op+": Exit fill average missing, using last price", ports.Fields{"tradeID": t.ID, "price": price})
	}
	pnl := RealizedPNL(t.Side, t.Entry, exitPrice, t.Qty)

	status := domain.StatusClosed
	closedAt := m.now()
	upd := domain.TradeUpdate{
		Status:      &status,
		ExitPrice:   &exitPrice,
		ExitAvgFill: &avg,
		ExitReason:  &reason,
		PNL:         &pnl,
		ClosedAt:    &closedAt,
	}
	if fill != nil {
		upd.ExitOrderID = &fill.OrderID
		upd.ExitFee = fill.Fee
	}

	updated, err := m.trades.UpdateTrade(ctx, t.ID, upd)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to persist closed trade %d: %w", t.ID, err)
	}

	m.journal.Record(ctx, domain.LevelInfo, domain.EventTradeClosed,
		fmt.Sprintf("%s %s exit=%g pnl=%.4f", reason, t.Symbol, exitPrice, pnl),
		ports.Fields{"tradeID": t.ID, "side": string(t.Side)})
	return updated, pnl, nil
}

// pushNativeStop mirrors a tightened stop to the exchange. Failures leave
// software monitoring in charge.
func (m *PositionMonitor) pushNativeStop(ctx context.Context, t domain.Trade) {
	sl := t.StopLoss
	if err := m.orders.SetNativeStopLossTakeProfit(ctx, t.Symbol, t.Side, t.Qty, &sl, nil); err != nil {
		m.journal.Record(ctx, domain.LevelWarn, domain.EventExchangeTPSLFail,
			fmt.Sprintf("native SL update failed: %v", err), ports.Fields{"tradeID": t.ID})
		return
	}
	m.logger.Debug(ctx, "Native stop moved", ports.Fields{"tradeID": t.ID, "stopLoss": sl})
}
