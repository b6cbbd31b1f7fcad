package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"perpRiskBot/internal/domain"
	"perpRiskBot/internal/execution"
	"perpRiskBot/internal/ports"
	"perpRiskBot/internal/risk"
)

const (
	defaultOHLCVLimit   = 200
	defaultErrorBackoff = 3 * time.Second
)

// Tick outcomes reported to metrics.
const (
	OutcomeBlocked   = "blocked"
	OutcomeMonitored = "monitored"
	OutcomeClosed    = "closed"
	OutcomeHold      = "hold"
	OutcomeSpread    = "spread_skip"
	OutcomeQtyZero   = "qty_zero"
	OutcomeAbandoned = "entry_abandoned"
	OutcomeEntered   = "entered"
	OutcomeError     = "error"
)

// Config holds engine tunables that are process configuration rather than
// trading settings.
type Config struct {
	OHLCVLimit        int           // minimum candles requested per tick
	ErrorBackoff      time.Duration // pause after a failed tick
	EntryPollInterval time.Duration // limit order status polling gap
}

// Engine runs the trading loop: one worker goroutine, one tick at a time.
type Engine struct {
	cfg      Config
	logger   ports.Logger
	market   ports.MarketData
	account  ports.Account
	orders   ports.Orders
	settings ports.SettingsRepository
	trades   ports.TradeRepository
	signal   ports.SignalProvider
	metrics  ports.Metrics

	journal *execution.Journal
	entry   *execution.EntryExecutor
	monitor *execution.PositionMonitor
	gate    *risk.RiskGate

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu       sync.RWMutex
	state    State
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewEngine creates an engine. metrics may be nil.
func NewEngine(
	cfg Config,
	logger ports.Logger,
	exchange ports.Exchange,
	store ports.Persistence,
	signal ports.SignalProvider,
	metrics ports.Metrics,
) (*Engine, error) {
	if logger == nil || exchange == nil || store == nil || signal == nil {
		return nil, fmt.Errorf("missing required dependencies for Engine")
	}
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	if cfg.OHLCVLimit <= 0 {
		cfg.OHLCVLimit = defaultOHLCVLimit
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = defaultErrorBackoff
	}

	journal := execution.NewJournal(store, logger, metrics)
	e := &Engine{
		cfg:      cfg,
		logger:   logger,
		market:   exchange,
		account:  exchange,
		orders:   exchange,
		settings: store,
		trades:   store,
		signal:   signal,
		metrics:  metrics,
		journal:  journal,
		entry:    execution.NewEntryExecutor(exchange, store, journal, logger, cfg.EntryPollInterval),
		monitor:  execution.NewPositionMonitor(exchange, store, journal, logger),
		gate:     risk.NewRiskGate(),
		now:      func() time.Time { return time.Now().UTC() },
		sleep:    execution.SleepContext,
	}
	e.state.DayStart = utcDay(e.now())
	return e, nil
}

// Start launches the worker. Calling Start on a running engine is a no-op.
// The worker outlives ctx; use Stop to end it.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.state.Running {
		e.mu.Unlock()
		return nil
	}
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	prev := e.done
	done := make(chan struct{})
	e.state.Running = true
	e.cancel = cancel
	e.done = done
	e.mu.Unlock()

	go func() {
		// a worker stopped moments ago may still be finishing its tick
		if prev != nil {
			<-prev
		}
		e.run(loopCtx, done)
	}()

	e.journal.Record(ctx, domain.LevelInfo, domain.EventBotStarted, "Bot started")
	return nil
}

// Stop asks the worker to exit and returns immediately. An in-flight tick runs
// to completion; use Wait to block until the worker is gone.
func (e *Engine) Stop(ctx context.Context) {
	e.mu.Lock()
	if !e.state.Running {
		e.mu.Unlock()
		return
	}
	e.state.Running = false
	cancel := e.cancel
	e.cancel = nil
	e.mu.Unlock()

	cancel()
	e.journal.Record(ctx, domain.LevelInfo, domain.EventBotStopped, "Bot stopped")
}

// Wait blocks until the most recently started worker has exited.
func (e *Engine) Wait() {
	e.mu.RLock()
	done := e.done
	e.mu.RUnlock()
	if done != nil {
		<-done
	}
}

// Status returns a consistent snapshot of the engine counters.
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.snapshot()
}

func (e *Engine) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	e.logger.Info(ctx, "Execution loop started")

	// ticks are never interrupted by Stop
	tickCtx := context.WithoutCancel(ctx)
	for ctx.Err() == nil {
		outcome, err := e.Tick(tickCtx)
		e.metrics.TickCompleted(outcome)

		wait := e.loopInterval()
		if err != nil {
			e.journal.Record(tickCtx, domain.LevelError, domain.EventLoopError, err.Error())
			wait = e.cfg.ErrorBackoff
		}
		if err := e.sleep(ctx, wait); err != nil {
			break
		}
	}
	e.logger.Info(tickCtx, "Execution loop stopped")
}

func (e *Engine) loopInterval() time.Duration {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.interval <= 0 {
		return domain.DefaultSettings().LoopInterval()
	}
	return e.interval
}

// Tick runs one iteration of the loop and reports its outcome. Errors are
// returned to the caller, which records them and backs off.
func (e *Engine) Tick(ctx context.Context) (string, error) {
	outcome, err := e.tick(ctx)
	if err != nil {
		outcome = OutcomeError
	}

	e.mu.RLock()
	trades, pnl := e.state.TradesToday, e.state.DailyPnL
	e.mu.RUnlock()
	e.metrics.SetDailyState(trades, pnl)
	return outcome, err
}

// tick runs one iteration. The risk gate runs before the open trade is
// monitored, so while the gate blocks (cooldown, trade cap, daily loss cap)
// an OPEN trade gets no software SL/TP enforcement. The exchange-side
// stop from use_exchange_sl_tp is the only protection in that window.
func (e *Engine) tick(ctx context.Context) (string, error) {
	op := "Tick"
	now := e.now()
	e.rollover(ctx, now)

	st, err := e.settings.GetOrCreateSettings(ctx)
	if err != nil {
		return "", fmt.Errorf("read settings: %w", err)
	}
	e.mu.Lock()
	e.interval = st.LoopInterval()
	gateIn := risk.GateInput{
		Now:           now,
		LastTradeTime: e.state.LastTradeTime,
		TradesToday:   e.state.TradesToday,
		DailyPnL:      e.state.DailyPnL,
	}
	e.mu.Unlock()

	balance, err := e.account.BalanceQuote(ctx)
	if err != nil {
		return "", fmt.Errorf("fetch balance: %w", err)
	}
	gateIn.Balance = balance

	if v := e.gate.Evaluate(st, gateIn); !v.Allowed {
		if v.Reason == risk.ReasonDailyLoss {
			e.journal.Record(ctx, domain.LevelWarn, domain.EventDailyLossLimit, "Daily loss limit reached, bot paused",
				ports.Fields{"dailyPnL": gateIn.DailyPnL, "balance": balance})
		} else {
			e.logger.Debug(ctx, op+": Entry blocked", ports.Fields{"reason": string(v.Reason), "detail": v.Detail})
		}
		return OutcomeBlocked, nil
	}

	open, err := e.trades.GetOpenTrade(ctx, st.Symbol)
	if err != nil {
		return "", fmt.Errorf("load open trade: %w", err)
	}
	if open != nil {
		return e.manageOpenTrade(ctx, *open, st)
	}

	limit := e.cfg.OHLCVLimit
	if n := e.signal.RequiredDataPoints(); n > limit {
		limit = n
	}
	klines, err := e.market.OHLCV(ctx, st.Symbol, st.Timeframe, limit)
	if err != nil {
		return "", fmt.Errorf("fetch ohlcv: %w", err)
	}
	signal := e.signal.Decide(domain.Closes(klines))
	side, ok := signal.Side()
	if !ok {
		e.logger.Debug(ctx, op+": No signal", ports.Fields{"symbol": st.Symbol, "candles": len(klines)})
		return OutcomeHold, nil
	}

	ticker, err := e.market.Ticker(ctx, st.Symbol)
	if err != nil {
		return "", fmt.Errorf("fetch ticker: %w", err)
	}
	if sp := ticker.SpreadPct(); sp > st.MaxSpreadPct {
		e.journal.Record(ctx, domain.LevelInfo, domain.EventSpreadSkip,
			fmt.Sprintf("Spread %.4f%% > %g%%", sp, st.MaxSpreadPct))
		return OutcomeSpread, nil
	}

	lev, err := e.account.SetLeverage(ctx, st.Symbol, st.Leverage)
	if err != nil {
		return "", fmt.Errorf("set leverage: %w", err)
	}
	e.logger.Debug(ctx, op+": Leverage checked", ports.Fields{"symbol": st.Symbol, "leverage": st.Leverage, "result": lev.String()})

	balance, err = e.account.BalanceQuote(ctx)
	if err != nil {
		return "", fmt.Errorf("fetch balance: %w", err)
	}
	qty := risk.SizeFor(st, ticker.Last, balance)
	if qty <= 0 {
		e.journal.Record(ctx, domain.LevelWarn, domain.EventQtyZero, "Qty=0; check balance/settings",
			ports.Fields{"balance": balance, "price": ticker.Last})
		return OutcomeQtyZero, nil
	}

	ref := ticker.Ask
	if side == domain.Short {
		ref = ticker.Bid
	}
	trade, err := e.entry.Execute(ctx, execution.EntryRequest{
		Symbol:   st.Symbol,
		Side:     side,
		RefPrice: ref,
		Qty:      qty,
		Settings: st,
	})
	if err != nil {
		return "", err
	}
	if trade == nil {
		return OutcomeAbandoned, nil
	}
	e.metrics.TradeOpened(trade.Symbol, string(trade.Side), trade.Qty)

	if st.UseExchangeSLTP {
		e.placeNativeProtection(ctx, trade)
	}

	e.mu.Lock()
	e.state.LastTradeTime = e.now()
	e.state.TradesToday++
	e.state.BestPrice = 0
	e.mu.Unlock()
	return OutcomeEntered, nil
}

// rollover resets the daily counters when the UTC date changes.
func (e *Engine) rollover(ctx context.Context, now time.Time) {
	today := utcDay(now)
	e.mu.Lock()
	defer e.mu.Unlock()
	if today.Equal(e.state.DayStart) {
		return
	}
	e.logger.Info(ctx, "New trading day, resetting daily counters", ports.Fields{
		"previousDay": e.state.DayStart.Format("2006-01-02"),
		"tradesToday": e.state.TradesToday,
		"dailyPnL":    e.state.DailyPnL,
	})
	e.state.DayStart = today
	e.state.TradesToday = 0
	e.state.DailyPnL = 0
}

func (e *Engine) manageOpenTrade(ctx context.Context, trade domain.Trade, st domain.Settings) (string, error) {
	ticker, err := e.market.Ticker(ctx, trade.Symbol)
	if err != nil {
		return "", fmt.Errorf("fetch ticker: %w", err)
	}

	e.mu.RLock()
	best := e.state.BestPrice
	e.mu.RUnlock()

	res, err := e.monitor.Evaluate(ctx, trade, st, ticker.Last, best)
	if err != nil {
		return "", err
	}

	e.mu.Lock()
	e.state.BestPrice = res.BestPrice
	if res.Closed {
		e.state.DailyPnL += res.PNL
		e.state.BestPrice = 0
	}
	e.mu.Unlock()

	if !res.Closed {
		return OutcomeMonitored, nil
	}
	e.metrics.TradeClosed(trade.Symbol, string(res.Reason), res.PNL)
	return OutcomeClosed, nil
}

// placeNativeProtection mirrors SL/TP onto the exchange. Failure leaves the
// trade open under software monitoring.
func (e *Engine) placeNativeProtection(ctx context.Context, t *domain.Trade) {
	sl, tp := t.StopLoss, t.TakeProfit
	if err := e.orders.SetNativeStopLossTakeProfit(ctx, t.Symbol, t.Side, t.Qty, &sl, &tp); err != nil {
		e.journal.Record(ctx, domain.LevelWarn, domain.EventExchangeTPSLFail, err.Error(), ports.Fields{"tradeID": t.ID})
		return
	}
	e.journal.Record(ctx, domain.LevelInfo, domain.EventExchangeTPSLSet,
		fmt.Sprintf("Exchange SL/TP set: sl=%g tp=%g", sl, tp), ports.Fields{"tradeID": t.ID})
}
