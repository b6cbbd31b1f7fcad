package execution

import (
	"context"
	"fmt"
	"math"
	"time"

	"perpRiskBot/internal/domain"
	"perpRiskBot/internal/ports"
	"perpRiskBot/internal/risk"
)

// DefaultPollInterval is the gap between order status scans while a limit
// entry rests on the book.
const DefaultPollInterval = 700 * time.Millisecond

// EntryRequest describes one entry attempt.
type EntryRequest struct {
	Symbol   string
	Side     domain.Side
	RefPrice float64 // ask for long, bid for short
	Qty      float64
	Settings domain.Settings
}

// EntryExecutor places the entry order, waits for the fill and persists the
// resulting OPEN trade.
type EntryExecutor struct {
	orders       ports.Orders
	trades       ports.TradeRepository
	journal      *Journal
	logger       ports.Logger
	pollInterval time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewEntryExecutor creates an executor. pollInterval <= 0 selects DefaultPollInterval.
func NewEntryExecutor(orders ports.Orders, trades ports.TradeRepository, journal *Journal, logger ports.Logger, pollInterval time.Duration) *EntryExecutor {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &EntryExecutor{
		orders:       orders,
		trades:       trades,
		journal:      journal,
		logger:       logger,
		pollInterval: pollInterval,
		now:          utcNow,
		sleep:        SleepContext,
	}
}

// Execute runs the entry state machine. It returns nil, nil when the entry
// was abandoned for this tick (limit timeout without market fallback).
func (x *EntryExecutor) Execute(ctx context.Context, req EntryRequest) (*domain.Trade, error) {
	op := "Execute"
	st := req.Settings
	orderSide := req.Side.EntrySide()

	var fill *domain.OrderFill
	var err error
	qty := req.Qty

	switch st.EntryOrderType {
	case domain.EntryMarket:
		fill, err = x.orders.CreateMarket(ctx, req.Symbol, orderSide, req.Qty, false)
		if err != nil {
			return nil, fmt.Errorf("entry market order failed: %w", err)
		}
	default:
		fill, qty, err = x.limitEntry(ctx, req)
		if err != nil {
			return nil, err
		}
		if fill == nil {
			return nil, nil
		}
	}

	avg := fill.AvgPrice
	if avg <= 0 {
		x.logger.Warn(ctx, op+": Entry fill average missing, using reference price", ports.Fields{"orderID": fill.OrderID, "refPrice": req.RefPrice})
		avg = req.RefPrice
	}

	if slip := SlippagePct(avg, req.RefPrice); slip > st.MaxSlippagePct {
		x.journal.Record(ctx, domain.LevelWarn, domain.EventSlippageHigh,
			fmt.Sprintf("slippage=%.4f%% > %.4f%% (still keeping trade)", slip, st.MaxSlippagePct),
			ports.Fields{"fill": avg, "refPrice": req.RefPrice})
	}

	sl, tp := risk.ProtectiveLevels(req.Side, avg, st.SLPct, st.TPPct)
	trade := &domain.Trade{
		Symbol:       req.Symbol,
		Side:         req.Side,
		Qty:          qty,
		Entry:        avg,
		StopLoss:     sl,
		TakeProfit:   tp,
		Status:       domain.StatusOpen,
		EntryOrderID: fill.OrderID,
		EntryAvgFill: avg,
		EntryFee:     fill.Fee,
		OpenedAt:     x.now(),
	}
	if _, err := x.trades.AddTrade(ctx, trade); err != nil {
		return nil, fmt.Errorf("failed to persist opened trade (order %s): %w", fill.OrderID, err)
	}

	x.journal.Record(ctx, domain.LevelInfo, domain.EventTradeOpened,
		fmt.Sprintf("%s %s qty=%g entry=%g sl=%g tp=%g", req.Side, req.Symbol, qty, avg, sl, tp),
		ports.Fields{"tradeID": trade.ID, "orderID": fill.OrderID})
	return trade, nil
}

// limitEntry rests a limit order at the reference price until it fills or the
// entry timeout elapses. On timeout the order is cancelled and the unfilled
// remainder is either bought at market or abandoned. It returns the fill
// and the quantity actually held; (nil, 0, nil) means nothing was filled.
func (x *EntryExecutor) limitEntry(ctx context.Context, req EntryRequest) (*domain.OrderFill, float64, error) {
	op := "limitEntry"
	st := req.Settings
	orderSide := req.Side.EntrySide()

	order, err := x.orders.CreateLimit(ctx, req.Symbol, orderSide, req.Qty, req.RefPrice, false)
	if err != nil {
		return nil, 0, fmt.Errorf("entry limit order failed: %w", err)
	}

	waited, err := x.waitFill(ctx, req.Symbol, order.OrderID, st.EntryTimeout())
	if err != nil {
		return nil, 0, err
	}
	if waited.IsFilled() {
		return waited, req.Qty, nil
	}

	if err := x.orders.CancelOrder(ctx, req.Symbol, order.OrderID); err != nil {
		x.logger.Warn(ctx, op+": Cancel of unfilled entry failed, ignoring", ports.Fields{"orderID": order.OrderID, "error": err.Error()})
	}
	// fills can land between the last poll and the cancel
	if final, err := x.orders.FindOrderStatus(ctx, req.Symbol, order.OrderID); err != nil {
		x.logger.Warn(ctx, op+": Status after cancel unavailable", ports.Fields{"orderID": order.OrderID, "error": err.Error()})
	} else if final != nil {
		waited = final
	}
	if waited.IsFilled() {
		return waited, req.Qty, nil
	}

	filled := 0.0
	if waited != nil {
		filled = math.Min(waited.FilledQty, req.Qty)
	}
	remaining := req.Qty - filled

	if !st.AllowMarketFallback {
		if filled > 0 {
			x.logger.Info(ctx, op+": Limit entry partially filled, keeping filled quantity", ports.Fields{"orderID": order.OrderID, "filled": filled})
			return waited, filled, nil
		}
		x.journal.Record(ctx, domain.LevelInfo, domain.EventEntryTimeout,
			fmt.Sprintf("Limit entry timeout; canceled. side=%s qty=%g", req.Side, req.Qty),
			ports.Fields{"orderID": order.OrderID})
		return nil, 0, nil
	}

	x.logger.Info(ctx, op+": Limit entry timed out, falling back to market", ports.Fields{"orderID": order.OrderID, "filled": filled, "remaining": remaining})
	fill, err := x.orders.CreateMarket(ctx, req.Symbol, orderSide, remaining, false)
	if err != nil {
		if filled > 0 {
			x.logger.Warn(ctx, op+": Market fallback failed, keeping partial limit fill", ports.Fields{"orderID": order.OrderID, "filled": filled, "error": err.Error()})
			return waited, filled, nil
		}
		return nil, 0, fmt.Errorf("market fallback order failed: %w", err)
	}
	if filled > 0 {
		fill = blendFills(waited, filled, fill, remaining)
	}
	return fill, req.Qty, nil
}

// blendFills merges a partial limit fill with the market order that
// completed it. The average is quantity weighted and needs both prices.
func blendFills(limit *domain.OrderFill, limitQty float64, market *domain.OrderFill, marketQty float64) *domain.OrderFill {
	out := *market
	out.FilledQty = limitQty + marketQty
	if limit.AvgPrice > 0 && market.AvgPrice > 0 {
		out.AvgPrice = (limit.AvgPrice*limitQty + market.AvgPrice*marketQty) / out.FilledQty
	} else {
		out.AvgPrice = 0
	}
	if limit.Fee != nil && market.Fee != nil {
		fee := *limit.Fee + *market.Fee
		out.Fee = &fee
	}
	return &out
}

// waitFill polls the order status until it is filled or timeout elapses and
// returns the last status seen (possibly nil). Lookup failures are logged and
// polling continues.
func (x *EntryExecutor) waitFill(ctx context.Context, symbol, orderID string, timeout time.Duration) (*domain.OrderFill, error) {
	op := "waitFill"
	start := x.now()
	var last *domain.OrderFill

	for {
		o, err := x.orders.FindOrderStatus(ctx, symbol, orderID)
		switch {
		case err != nil:
			x.logger.Warn(ctx, op+": Order status lookup failed", ports.Fields{"orderID": orderID, "error": err.Error()})
		case o != nil:
			last = o
			if o.IsFilled() {
				return o, nil
			}
		}

		if x.now().Sub(start) >= timeout {
			return last, nil
		}
		if err := x.sleep(ctx, x.pollInterval); err != nil {
			return last, fmt.Errorf("waiting for order %s: %w", orderID, err)
		}
	}
}

// SlippagePct returns |fill-ref|/ref*100, or 0 when ref is not positive.
func SlippagePct(fill, ref float64) float64 {
	if ref <= 0 {
		return 0
	}
	return math.Abs(fill-ref) / ref * 100.0
}
