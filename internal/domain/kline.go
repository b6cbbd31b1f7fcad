package domain

import "time"

// Kline represents a single candlestick data point.
type Kline struct {
	OpenTime time.Time // Start time of the interval
	Symbol   string    // Trading symbol
	Interval string    // Kline interval (e.g., "1m", "5m")
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// Closes extracts the close prices, preserving order.
func Closes(klines []*Kline) []float64 {
	out := make([]float64, 0, len(klines))
	for _, k := range klines {
		out = append(out, k.Close)
	}
	return out
}

// Ticker is the top of book plus last traded price.
type Ticker struct {
	Symbol    string
	Bid       float64
	Ask       float64
	Last      float64
	Timestamp time.Time
}

// SpreadPct returns (ask-bid)/mid*100. A missing side yields 999 so the
// spread filter always rejects it.
func (t Ticker) SpreadPct() float64 {
	if t.Bid <= 0 || t.Ask <= 0 {
		return 999.0
	}
	mid := (t.Bid + t.Ask) / 2.0
	return (t.Ask - t.Bid) / mid * 100.0
}

// OrderFill is the normalized view of an exchange order.
type OrderFill struct {
	OrderID       string
	ClientOrderID string
	Symbol        string
	Side          OrderSide
	Status        OrderState
	Price         float64 // requested limit price, 0 for market
	AvgPrice      float64 // 0 when the exchange did not report one
	FilledQty     float64
	Fee           *float64 // nil when not reported
	Timestamp     time.Time
}

// IsFilled reports whether the order completed.
func (o *OrderFill) IsFilled() bool {
	return o != nil && o.Status == OrderStateFilled
}
