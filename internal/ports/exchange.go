package ports

import (
	"context"

	"perpRiskBot/internal/domain"
)

// LeverageResult classifies a leverage change request.
type LeverageResult int

const (
	// LeverageApplied means the exchange changed the leverage.
	LeverageApplied LeverageResult = iota
	// LeverageUnchanged means the requested leverage was already in effect.
	LeverageUnchanged
)

func (r LeverageResult) String() string {
	if r == LeverageUnchanged {
		return "unchanged"
	}
	return "applied"
}

// MarketData provides prices for a symbol.
type MarketData interface {
	// Ticker returns best bid, best ask and last traded price.
	Ticker(ctx context.Context, symbol string) (*domain.Ticker, error)
	// OHLCV returns up to limit candles, oldest first.
	OHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]*domain.Kline, error)
}

// Account exposes balance and leverage.
type Account interface {
	// BalanceQuote returns the total quote balance, falling back to the free
	// balance when the total is not reported.
	BalanceQuote(ctx context.Context) (float64, error)
	// SetLeverage sets leverage for symbol. "Already set" is reported as
	// LeverageUnchanged with a nil error.
	SetLeverage(ctx context.Context, symbol string, leverage int) (LeverageResult, error)
}

// Orders places, cancels and inspects orders.
type Orders interface {
	CreateMarket(ctx context.Context, symbol string, side domain.OrderSide, qty float64, reduceOnly bool) (*domain.OrderFill, error)
	CreateLimit(ctx context.Context, symbol string, side domain.OrderSide, qty, price float64, postOnly bool) (*domain.OrderFill, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	// FindOrderStatus scans the open and closed order lists for orderID and
	// never fetches a single order by id. Returns nil, nil when not found.
	FindOrderStatus(ctx context.Context, symbol, orderID string) (*domain.OrderFill, error)
	// SetNativeStopLossTakeProfit places or replaces exchange-side protection
	// for the open position. Nil prices are left untouched.
	SetNativeStopLossTakeProfit(ctx context.Context, symbol string, side domain.Side, qty float64, stopLoss, takeProfit *float64) error
}

// Exchange is everything the engine needs from a venue.
type Exchange interface {
	MarketData
	Account
	Orders
}
