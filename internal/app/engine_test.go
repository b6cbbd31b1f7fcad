package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perpRiskBot/internal/domain"
	"perpRiskBot/internal/ports"
)

type harness struct {
	engine  *Engine
	ex      *mockExchange
	store   *mockStore
	signal  *mockSignal
	metrics *mockMetrics
	now     time.Time
}

func newHarness(t *testing.T, mutate func(*domain.Settings)) *harness {
	t.Helper()
	st := domain.DefaultSettings()
	st.EntryOrderType = domain.EntryMarket
	if mutate != nil {
		mutate(&st)
	}

	h := &harness{
		ex: &mockExchange{
			ticker:    domain.Ticker{Bid: 99.99, Ask: 100, Last: 100},
			balance:   1000,
			marketAvg: 100,
		},
		store:   newMockStore(st),
		signal:  &mockSignal{},
		metrics: &mockMetrics{},
		now:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}

	e, err := NewEngine(Config{ErrorBackoff: 10 * time.Millisecond}, &mockLogger{}, h.ex, h.store, h.signal, h.metrics)
	require.NoError(t, err)
	e.now = func() time.Time { return h.now }
	e.state.DayStart = utcDay(h.now)
	h.engine = e
	return h
}

func (h *harness) seedOpenTrade(t *testing.T) *domain.Trade {
	t.Helper()
	tr := &domain.Trade{Symbol: "BTCUSDT", Side: domain.Long, Qty: 2, Entry: 100, StopLoss: 98.5, TakeProfit: 102.5, Status: domain.StatusOpen}
	_, err := h.store.AddTrade(context.Background(), tr)
	require.NoError(t, err)
	return tr
}

func TestNewEngine_MissingDependencies(t *testing.T) {
	_, err := NewEngine(Config{}, nil, &mockExchange{}, newMockStore(domain.DefaultSettings()), &mockSignal{}, nil)
	assert.Error(t, err)
}

func TestTick_RolloverResetsCountersBeforeGate(t *testing.T) {
	h := newHarness(t, nil)
	h.engine.state.DayStart = utcDay(h.now.Add(-24 * time.Hour))
	h.engine.state.TradesToday = 10
	h.engine.state.DailyPnL = -50

	outcome, err := h.engine.Tick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, OutcomeHold, outcome)
	assert.Equal(t, 0, h.engine.state.TradesToday)
	assert.Equal(t, 0.0, h.engine.state.DailyPnL)
	assert.Equal(t, utcDay(h.now), h.engine.state.DayStart)
	assert.Equal(t, 1, h.signal.callCount())
	assert.NotContains(t, h.store.eventTypes(), domain.EventDailyLossLimit)
}

func TestTick_RiskGateBlocks(t *testing.T) {
	tests := []struct {
		name      string
		prepare   func(h *harness)
		wantEvent bool
	}{
		{
			name:      "daily loss limit",
			prepare:   func(h *harness) { h.engine.state.DailyPnL = -25 },
			wantEvent: true,
		},
		{
			name:    "trade count",
			prepare: func(h *harness) { h.engine.state.TradesToday = 10 },
		},
		{
			name:    "cooldown",
			prepare: func(h *harness) { h.engine.state.LastTradeTime = h.now.Add(-9 * time.Minute) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.signal.signal = domain.SignalBuy
			tt.prepare(h)

			outcome, err := h.engine.Tick(context.Background())
			require.NoError(t, err)

			assert.Equal(t, OutcomeBlocked, outcome)
			assert.Equal(t, 0, h.signal.callCount())
			assert.Empty(t, h.ex.market)
			if tt.wantEvent {
				require.Equal(t, []domain.EventType{domain.EventDailyLossLimit}, h.store.eventTypes())
				assert.Equal(t, domain.LevelWarn, h.store.events[0].Level)
			} else {
				assert.Empty(t, h.store.eventTypes())
			}
		})
	}
}

func TestTick_BlockedGateSkipsOpenTradeMonitor(t *testing.T) {
	h := newHarness(t, nil)
	tr := h.seedOpenTrade(t)
	h.ex.ticker = domain.Ticker{Bid: 89.99, Ask: 90, Last: 90}
	h.engine.state.LastTradeTime = h.now.Add(-time.Minute)

	outcome, err := h.engine.Tick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, OutcomeBlocked, outcome)
	assert.Empty(t, h.ex.market)
	assert.Equal(t, 0, h.ex.tickerCalls)
	assert.Equal(t, domain.StatusOpen, h.store.trades[tr.ID].Status)
}

func TestTick_OpenTradeNeverReachesEntry(t *testing.T) {
	h := newHarness(t, nil)
	h.signal.signal = domain.SignalBuy
	h.seedOpenTrade(t)

	outcome, err := h.engine.Tick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, OutcomeMonitored, outcome)
	assert.Equal(t, 0, h.signal.callCount())
	assert.Equal(t, 0, h.ex.ohlcvCalls)
	assert.Equal(t, 0, h.ex.leverageCalls)
	assert.Empty(t, h.ex.market)
	assert.Equal(t, 1, h.ex.tickerCalls)
}

func TestTick_OpenTradeClosedAddsDailyPnL(t *testing.T) {
	h := newHarness(t, nil)
	tr := h.seedOpenTrade(t)
	h.ex.ticker = domain.Ticker{Bid: 97.99, Ask: 98, Last: 98}
	h.ex.marketAvg = 0
	h.engine.state.BestPrice = 101

	outcome, err := h.engine.Tick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, OutcomeClosed, outcome)
	assert.InDelta(t, -4.0, h.engine.state.DailyPnL, 1e-9)
	assert.Equal(t, 0.0, h.engine.state.BestPrice)
	assert.Equal(t, []domain.OrderSide{domain.Sell}, h.ex.market)
	assert.Equal(t, domain.StatusClosed, h.store.trades[tr.ID].Status)
	assert.Equal(t, domain.ExitReasonStopLoss, h.store.trades[tr.ID].ExitReason)
	assert.Equal(t, 1, h.metrics.closed)
}

func TestTick_TrailingKeepsBestPrice(t *testing.T) {
	h := newHarness(t, nil)
	h.seedOpenTrade(t)
	h.ex.ticker = domain.Ticker{Bid: 100.89, Ask: 100.9, Last: 100.9}

	_, err := h.engine.Tick(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 100.9, h.engine.state.BestPrice, 1e-9)
	assert.Equal(t, []domain.EventType{domain.EventTrailSLUpdated}, h.store.eventTypes())
}

func TestTick_HoldStopsBeforeTicker(t *testing.T) {
	h := newHarness(t, nil)

	outcome, err := h.engine.Tick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, OutcomeHold, outcome)
	assert.Equal(t, 200, h.ex.ohlcvLimit)
	assert.Equal(t, 0, h.ex.tickerCalls)
	assert.Empty(t, h.store.eventTypes())
}

func TestTick_SpreadSkip(t *testing.T) {
	h := newHarness(t, nil)
	h.signal.signal = domain.SignalBuy
	h.ex.ticker = domain.Ticker{Bid: 100, Ask: 101, Last: 100.5}

	outcome, err := h.engine.Tick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, OutcomeSpread, outcome)
	assert.Equal(t, []domain.EventType{domain.EventSpreadSkip}, h.store.eventTypes())
	assert.Equal(t, domain.LevelInfo, h.store.events[0].Level)
	assert.Equal(t, 0, h.ex.leverageCalls)
	assert.Empty(t, h.ex.market)
}

func TestTick_QtyZero(t *testing.T) {
	h := newHarness(t, nil)
	h.signal.signal = domain.SignalSell
	h.ex.balance = 0

	outcome, err := h.engine.Tick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, OutcomeQtyZero, outcome)
	assert.Equal(t, []domain.EventType{domain.EventQtyZero}, h.store.eventTypes())
	assert.Empty(t, h.ex.market)
	assert.Equal(t, 0, h.engine.state.TradesToday)
}

func TestTick_EntersTrade(t *testing.T) {
	h := newHarness(t, nil)
	h.signal.signal = domain.SignalBuy
	h.engine.state.BestPrice = 123

	outcome, err := h.engine.Tick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, OutcomeEntered, outcome)
	require.Len(t, h.store.trades, 1)
	tr := h.store.trades[1]
	assert.Equal(t, domain.Long, tr.Side)
	assert.InDelta(t, 2.0, tr.Qty, 1e-9) // margin leg: 1000*10%*2/100
	assert.Equal(t, 100.0, tr.Entry)
	assert.Equal(t, []domain.OrderSide{domain.Buy}, h.ex.market)
	assert.Equal(t, 1, h.ex.leverageCalls)
	assert.Equal(t, 0, h.ex.nativeCalls)

	assert.Equal(t, 1, h.engine.state.TradesToday)
	assert.Equal(t, h.now, h.engine.state.LastTradeTime)
	assert.Equal(t, 0.0, h.engine.state.BestPrice)
	assert.Equal(t, 1, h.metrics.opened)
	assert.Equal(t, []domain.EventType{domain.EventTradeOpened}, h.store.eventTypes())

	// the next tick sees the open trade and stays out of the entry path
	h.now = h.now.Add(time.Minute)
	outcome, err = h.engine.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeBlocked, outcome) // cooldown
}

func TestTick_NativeProtection(t *testing.T) {
	tests := []struct {
		name      string
		nativeErr error
		wantEvent domain.EventType
	}{
		{name: "set", wantEvent: domain.EventExchangeTPSLSet},
		{name: "failure keeps trade", nativeErr: errors.New("not supported"), wantEvent: domain.EventExchangeTPSLFail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, func(st *domain.Settings) { st.UseExchangeSLTP = true })
			h.signal.signal = domain.SignalSell
			h.ex.nativeErr = tt.nativeErr

			outcome, err := h.engine.Tick(context.Background())
			require.NoError(t, err)

			assert.Equal(t, OutcomeEntered, outcome)
			assert.Equal(t, 1, h.ex.nativeCalls)
			assert.Equal(t, []domain.EventType{domain.EventTradeOpened, tt.wantEvent}, h.store.eventTypes())
			assert.Equal(t, 1, h.engine.state.TradesToday)
		})
	}
}

func TestTick_ErrorsSurface(t *testing.T) {
	h := newHarness(t, nil)
	h.ex.balanceErr = ports.ErrConnectionFailed

	outcome, err := h.engine.Tick(context.Background())
	assert.ErrorIs(t, err, ports.ErrConnectionFailed)
	assert.Equal(t, OutcomeError, outcome)
}

func TestStartStop(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	require.NoError(t, h.engine.Start(ctx))
	require.NoError(t, h.engine.Start(ctx))
	assert.True(t, h.engine.Status().Running)

	h.engine.Stop(ctx)
	h.engine.Wait()
	h.engine.Stop(ctx)

	assert.False(t, h.engine.Status().Running)
	assert.Equal(t, 1, h.store.countEvents(domain.EventBotStarted))
	assert.Equal(t, 1, h.store.countEvents(domain.EventBotStopped))

	// restart after a stop
	require.NoError(t, h.engine.Start(ctx))
	h.engine.Stop(ctx)
	h.engine.Wait()
	assert.Equal(t, 2, h.store.countEvents(domain.EventBotStarted))
}

func TestRun_LoopErrorDoesNotStopLoop(t *testing.T) {
	h := newHarness(t, nil)
	h.ex.mu.Lock()
	h.ex.balanceErr = errors.New("connection reset")
	h.ex.mu.Unlock()

	require.NoError(t, h.engine.Start(context.Background()))
	assert.Eventually(t, func() bool {
		return h.store.countEvents(domain.EventLoopError) >= 2
	}, 2*time.Second, 5*time.Millisecond)
	h.engine.Stop(context.Background())
	h.engine.Wait()

	h.metrics.mu.Lock()
	defer h.metrics.mu.Unlock()
	assert.Contains(t, h.metrics.outcomes, OutcomeError)
}

func TestStatus(t *testing.T) {
	h := newHarness(t, nil)
	st := h.engine.Status()
	assert.False(t, st.Running)
	assert.Nil(t, st.LastTradeTime)

	h.engine.state.TradesToday = 3
	h.engine.state.DailyPnL = 12.5
	h.engine.state.LastTradeTime = h.now

	st = h.engine.Status()
	assert.Equal(t, 3, st.TradesToday)
	assert.Equal(t, 12.5, st.DailyPnL)
	require.NotNil(t, st.LastTradeTime)
	assert.Equal(t, h.now, *st.LastTradeTime)
}
