package execution

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"perpRiskBot/internal/domain"
	"perpRiskBot/internal/ports"
)

// Mock implementations
type mockLogger struct {
	infoMsgs  []string
	warnMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.infoMsgs = append(m.infoMsgs, msg)
}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.warnMsgs = append(m.warnMsgs, msg)
}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.errorMsgs = append(m.errorMsgs, msg)
}

type placedOrder struct {
	kind       string // market or limit
	side       domain.OrderSide
	qty        float64
	price      float64
	reduceOnly bool
}

type mockOrders struct {
	placed    []placedOrder
	cancelled []string
	nativeSL  []*float64
	nativeTP  []*float64

	marketFill  *domain.OrderFill
	marketErr   error
	limitErr    error
	cancelErr   error
	nativeErr   error
	statusQueue []*domain.OrderFill // popped per FindOrderStatus call; last entry repeats
	statusErr   error
	statusCalls int
	// returned by FindOrderStatus once any order was cancelled
	afterCancel *domain.OrderFill
}

func (m *mockOrders) CreateMarket(ctx context.Context, symbol string, side domain.OrderSide, qty float64, reduceOnly bool) (*domain.OrderFill, error) {
	m.placed = append(m.placed, placedOrder{kind: "market", side: side, qty: qty, reduceOnly: reduceOnly})
	if m.marketErr != nil {
		return nil, m.marketErr
	}
	if m.marketFill != nil {
		f := *m.marketFill
		return &f, nil
	}
	return &domain.OrderFill{OrderID: "m" + strconv.Itoa(len(m.placed)), Symbol: symbol, Side: side, Status: domain.OrderStateFilled, FilledQty: qty}, nil
}

func (m *mockOrders) CreateLimit(ctx context.Context, symbol string, side domain.OrderSide, qty, price float64, postOnly bool) (*domain.OrderFill, error) {
	m.placed = append(m.placed, placedOrder{kind: "limit", side: side, qty: qty, price: price})
	if m.limitErr != nil {
		return nil, m.limitErr
	}
	return &domain.OrderFill{OrderID: "L1", Symbol: symbol, Side: side, Status: domain.OrderStateOpen, Price: price}, nil
}

func (m *mockOrders) CancelOrder(ctx context.Context, symbol, orderID string) error {
	m.cancelled = append(m.cancelled, orderID)
	return m.cancelErr
}

func (m *mockOrders) FindOrderStatus(ctx context.Context, symbol, orderID string) (*domain.OrderFill, error) {
	m.statusCalls++
	if m.afterCancel != nil && len(m.cancelled) > 0 {
		return m.afterCancel, nil
	}
	if m.statusErr != nil {
		return nil, m.statusErr
	}
	if len(m.statusQueue) == 0 {
		return nil, nil
	}
	o := m.statusQueue[0]
	if len(m.statusQueue) > 1 {
		m.statusQueue = m.statusQueue[1:]
	}
	return o, nil
}

func (m *mockOrders) SetNativeStopLossTakeProfit(ctx context.Context, symbol string, side domain.Side, qty float64, stopLoss, takeProfit *float64) error {
	m.nativeSL = append(m.nativeSL, stopLoss)
	m.nativeTP = append(m.nativeTP, takeProfit)
	return m.nativeErr
}

type mockTradeRepo struct {
	trades    map[int64]*domain.Trade
	nextID    int64
	addErr    error
	updateErr error
	updates   []domain.TradeUpdate
}

func newMockTradeRepo() *mockTradeRepo {
	return &mockTradeRepo{trades: make(map[int64]*domain.Trade)}
}

func (m *mockTradeRepo) AddTrade(ctx context.Context, t *domain.Trade) (int64, error) {
	if m.addErr != nil {
		return 0, m.addErr
	}
	m.nextID++
	t.ID = m.nextID
	cp := *t
	m.trades[t.ID] = &cp
	return t.ID, nil
}

func (m *mockTradeRepo) UpdateTrade(ctx context.Context, id int64, upd domain.TradeUpdate) (*domain.Trade, error) {
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	t, ok := m.trades[id]
	if !ok {
		return nil, fmt.Errorf("trade %d: %w", id, ports.ErrNotFound)
	}
	m.updates = append(m.updates, upd)
	upd.ApplyTo(t)
	cp := *t
	return &cp, nil
}

func (m *mockTradeRepo) GetOpenTrade(ctx context.Context, symbol string) (*domain.Trade, error) {
	for _, t := range m.trades {
		if t.Symbol == symbol && t.IsOpen() {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockTradeRepo) ListTrades(ctx context.Context, limit int) ([]*domain.Trade, error) {
	var out []*domain.Trade
	for _, t := range m.trades {
		out = append(out, t)
	}
	return out, nil
}

type mockEventRepo struct {
	events []*domain.Event
	addErr error
}

func (m *mockEventRepo) AddEvent(ctx context.Context, level domain.EventLevel, typ domain.EventType, message string) (*domain.Event, error) {
	if m.addErr != nil {
		return nil, m.addErr
	}
	e := &domain.Event{ID: int64(len(m.events) + 1), Level: level, Type: typ, Message: message, Timestamp: time.Now().UTC()}
	m.events = append(m.events, e)
	return e, nil
}

func (m *mockEventRepo) ListEvents(ctx context.Context, limit int) ([]*domain.Event, error) {
	return m.events, nil
}

func (m *mockEventRepo) types() []domain.EventType {
	out := make([]domain.EventType, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.Type)
	}
	return out
}

// fakeClock advances only when sleep is called.
type fakeClock struct {
	t      time.Time
	sleeps int
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) sleep(ctx context.Context, d time.Duration) error {
	c.sleeps++
	c.t = c.t.Add(d)
	return ctx.Err()
}
