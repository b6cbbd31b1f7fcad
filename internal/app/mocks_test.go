package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"perpRiskBot/internal/domain"
	"perpRiskBot/internal/ports"
)

// Mock implementations
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type mockSignal struct {
	mu     sync.Mutex
	signal domain.Signal
	calls  int
}

func (m *mockSignal) RequiredDataPoints() int { return 60 }

func (m *mockSignal) Decide(closes []float64) domain.Signal {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.signal == "" {
		return domain.SignalHold
	}
	return m.signal
}

func (m *mockSignal) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockExchange struct {
	mu sync.Mutex

	ticker     domain.Ticker
	tickerErr  error
	balance    float64
	balanceErr error
	leverage   ports.LeverageResult
	nativeErr  error
	marketAvg  float64

	tickerCalls   int
	ohlcvCalls    int
	ohlcvLimit    int
	leverageCalls int
	market        []domain.OrderSide
	nativeCalls   int
}

func (m *mockExchange) Ticker(ctx context.Context, symbol string) (*domain.Ticker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickerCalls++
	if m.tickerErr != nil {
		return nil, m.tickerErr
	}
	t := m.ticker
	t.Symbol = symbol
	return &t, nil
}

func (m *mockExchange) OHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]*domain.Kline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ohlcvCalls++
	m.ohlcvLimit = limit
	out := make([]*domain.Kline, limit)
	for i := range out {
		out[i] = &domain.Kline{Symbol: symbol, Interval: timeframe, Close: 100}
	}
	return out, nil
}

func (m *mockExchange) BalanceQuote(ctx context.Context) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balance, m.balanceErr
}

func (m *mockExchange) SetLeverage(ctx context.Context, symbol string, leverage int) (ports.LeverageResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leverageCalls++
	return m.leverage, nil
}

func (m *mockExchange) CreateMarket(ctx context.Context, symbol string, side domain.OrderSide, qty float64, reduceOnly bool) (*domain.OrderFill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.market = append(m.market, side)
	return &domain.OrderFill{
		OrderID:   fmt.Sprintf("M%d", len(m.market)),
		Symbol:    symbol,
		Side:      side,
		Status:    domain.OrderStateFilled,
		AvgPrice:  m.marketAvg,
		FilledQty: qty,
	}, nil
}

func (m *mockExchange) CreateLimit(ctx context.Context, symbol string, side domain.OrderSide, qty, price float64, postOnly bool) (*domain.OrderFill, error) {
	return nil, fmt.Errorf("limit orders not expected")
}

func (m *mockExchange) CancelOrder(ctx context.Context, symbol, orderID string) error { return nil }

func (m *mockExchange) FindOrderStatus(ctx context.Context, symbol, orderID string) (*domain.OrderFill, error) {
	return nil, nil
}

func (m *mockExchange) SetNativeStopLossTakeProfit(ctx context.Context, symbol string, side domain.Side, qty float64, stopLoss, takeProfit *float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nativeCalls++
	return m.nativeErr
}

type mockStore struct {
	mu       sync.Mutex
	settings domain.Settings
	trades   map[int64]*domain.Trade
	nextID   int64
	events   []*domain.Event
}

func newMockStore(st domain.Settings) *mockStore {
	return &mockStore{settings: st, trades: make(map[int64]*domain.Trade)}
}

func (m *mockStore) GetOrCreateSettings(ctx context.Context) (domain.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings, nil
}

func (m *mockStore) UpdateSettings(ctx context.Context, patch domain.SettingsPatch) (domain.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = patch.Apply(m.settings)
	return m.settings, nil
}

func (m *mockStore) AddTrade(ctx context.Context, t *domain.Trade) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	t.ID = m.nextID
	cp := *t
	m.trades[t.ID] = &cp
	return t.ID, nil
}

func (m *mockStore) UpdateTrade(ctx context.Context, id int64, upd domain.TradeUpdate) (*domain.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trades[id]
	if !ok {
		return nil, fmt.Errorf("trade %d: %w", id, ports.ErrNotFound)
	}
	upd.ApplyTo(t)
	cp := *t
	return &cp, nil
}

func (m *mockStore) GetOpenTrade(ctx context.Context, symbol string) (*domain.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.trades {
		if t.Symbol == symbol && t.IsOpen() {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockStore) ListTrades(ctx context.Context, limit int) ([]*domain.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Trade
	for _, t := range m.trades {
		out = append(out, t)
	}
	return out, nil
}

func (m *mockStore) AddEvent(ctx context.Context, level domain.EventLevel, typ domain.EventType, message string) (*domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := &domain.Event{ID: int64(len(m.events) + 1), Level: level, Type: typ, Message: message, Timestamp: time.Now().UTC()}
	m.events = append(m.events, e)
	return e, nil
}

func (m *mockStore) ListEvents(ctx context.Context, limit int) ([]*domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.Event(nil), m.events...), nil
}

func (m *mockStore) eventTypes() []domain.EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.EventType, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.Type)
	}
	return out
}

func (m *mockStore) countEvents(typ domain.EventType) int {
	n := 0
	for _, t := range m.eventTypes() {
		if t == typ {
			n++
		}
	}
	return n
}

type mockMetrics struct {
	ports.NopMetrics
	mu       sync.Mutex
	outcomes []string
	opened   int
	closed   int
}

func (m *mockMetrics) TickCompleted(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
}

func (m *mockMetrics) TradeOpened(symbol, side string, qty float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opened++
}

func (m *mockMetrics) TradeClosed(symbol, reason string, pnl float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
}
