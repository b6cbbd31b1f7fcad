package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"perpRiskBot/internal/domain"
	"perpRiskBot/internal/ports"

	sqlite3 "github.com/mattn/go-sqlite3" // SQLite driver
)

// settingsID is the primary key of the single settings row.
const settingsID = 1

// defaultListLimit applies when a list call passes a non-positive limit.
const defaultListLimit = 100

// Repository implements ports.Persistence using SQLite.
type Repository struct {
	db       *sql.DB
	logger   ports.Logger
	defaults domain.Settings
	now      func() time.Time
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
	// Defaults seeds the settings row on first use. Zero value means
	// domain.DefaultSettings().
	Defaults *domain.Settings
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/perp_risk_bot.db" // Default path
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Engine worker and control surface share one connection; SQLite serializes writers anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	defaults := domain.DefaultSettings()
	if cfg.Defaults != nil {
		defaults = *cfg.Defaults
	}
	repo := &Repository{
		db:       db,
		logger:   cfg.Logger,
		defaults: defaults,
		now:      func() time.Time { return time.Now().UTC() },
	}

	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Database schema initialized/verified")

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS settings (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		symbol TEXT NOT NULL,
		timeframe TEXT NOT NULL,
		leverage INTEGER NOT NULL,
		risk_pct REAL NOT NULL,
		sl_pct REAL NOT NULL,
		tp_pct REAL NOT NULL,
		loop_interval_sec INTEGER NOT NULL,
		cooldown_minutes INTEGER NOT NULL,
		max_trades_per_day INTEGER NOT NULL,
		max_daily_loss_pct REAL NOT NULL,
		max_margin_pct REAL NOT NULL,
		entry_order_type TEXT NOT NULL,
		entry_timeout_sec INTEGER NOT NULL,
		max_spread_pct REAL NOT NULL,
		max_slippage_pct REAL NOT NULL,
		allow_market_fallback BOOLEAN NOT NULL,
		trailing_enabled BOOLEAN NOT NULL,
		trailing_activation_pct REAL NOT NULL,
		trailing_pct REAL NOT NULL,
		use_exchange_sl_tp BOOLEAN NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		qty REAL NOT NULL,
		entry REAL NOT NULL,
		stop_loss REAL NOT NULL,
		take_profit REAL NOT NULL,
		status TEXT NOT NULL,
		entry_order_id TEXT NOT NULL DEFAULT '',
		entry_avg_fill REAL NOT NULL DEFAULT 0,
		entry_fee REAL DEFAULT NULL,
		opened_at TIMESTAMP NOT NULL,
		exit_order_id TEXT DEFAULT NULL,
		exit_price REAL DEFAULT NULL,
		exit_avg_fill REAL DEFAULT NULL,
		exit_fee REAL DEFAULT NULL,
		exit_reason TEXT DEFAULT NULL,
		pnl REAL DEFAULT NULL,
		closed_at TIMESTAMP DEFAULT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		level TEXT NOT NULL,
		type TEXT NOT NULL,
		message TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	-- at most one OPEN trade per symbol
	CREATE UNIQUE INDEX IF NOT EXISTS idx_trades_open_symbol ON trades (symbol) WHERE status = 'OPEN';
	CREATE INDEX IF NOT EXISTS idx_trades_opened_at ON trades (opened_at);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// --- SettingsRepository Implementation ---

const settingsColumns = `symbol, timeframe, leverage, risk_pct, sl_pct, tp_pct, loop_interval_sec,
	cooldown_minutes, max_trades_per_day, max_daily_loss_pct, max_margin_pct, entry_order_type,
	entry_timeout_sec, max_spread_pct, max_slippage_pct, allow_market_fallback, trailing_enabled,
	trailing_activation_pct, trailing_pct, use_exchange_sl_tp, updated_at`

// GetOrCreateSettings returns the settings row, inserting the defaults on first use.
func (r *Repository) GetOrCreateSettings(ctx context.Context) (domain.Settings, error) {
	var st domain.Settings
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		st, err = r.loadOrSeedSettings(ctx, tx)
		return err
	})
	if err != nil {
		return domain.Settings{}, fmt.Errorf("failed to get settings: %w", err)
	}
	return st, nil
}

// UpdateSettings applies patch to the stored settings. An invalid result is
// rejected without writing.
func (r *Repository) UpdateSettings(ctx context.Context, patch domain.SettingsPatch) (domain.Settings, error) {
	var st domain.Settings
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		current, err := r.loadOrSeedSettings(ctx, tx)
		if err != nil {
			return err
		}
		next := patch.Apply(current)
		if err := next.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ports.ErrInvalidSettings, err)
		}
		next.UpdatedAt = r.now()
		if err := writeSettings(ctx, tx, next); err != nil {
			return err
		}
		st = next
		return nil
	})
	if err != nil {
		return domain.Settings{}, fmt.Errorf("failed to update settings: %w", err)
	}
	r.logger.Debug(ctx, "Settings updated", map[string]interface{}{"symbol": st.Symbol})
	return st, nil
}

func (r *Repository) loadOrSeedSettings(ctx context.Context, tx *sql.Tx) (domain.Settings, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+settingsColumns+` FROM settings WHERE id = ?`, settingsID)
	st, err := scanSettings(row)
	if err == nil {
		return st, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Settings{}, fmt.Errorf("%w: %w", ports.ErrQueryFailed, err)
	}

	st = r.defaults
	st.UpdatedAt = r.now()
	if err := writeSettings(ctx, tx, st); err != nil {
		return domain.Settings{}, err
	}
	r.logger.Info(ctx, "Settings row created with defaults", map[string]interface{}{"symbol": st.Symbol, "timeframe": st.Timeframe})
	return st, nil
}

func writeSettings(ctx context.Context, tx *sql.Tx, st domain.Settings) error {
	const query = `
	INSERT INTO settings (id, ` + settingsColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		symbol = excluded.symbol, timeframe = excluded.timeframe, leverage = excluded.leverage,
		risk_pct = excluded.risk_pct, sl_pct = excluded.sl_pct, tp_pct = excluded.tp_pct,
		loop_interval_sec = excluded.loop_interval_sec, cooldown_minutes = excluded.cooldown_minutes,
		max_trades_per_day = excluded.max_trades_per_day, max_daily_loss_pct = excluded.max_daily_loss_pct,
		max_margin_pct = excluded.max_margin_pct, entry_order_type = excluded.entry_order_type,
		entry_timeout_sec = excluded.entry_timeout_sec, max_spread_pct = excluded.max_spread_pct,
		max_slippage_pct = excluded.max_slippage_pct, allow_market_fallback = excluded.allow_market_fallback,
		trailing_enabled = excluded.trailing_enabled, trailing_activation_pct = excluded.trailing_activation_pct,
		trailing_pct = excluded.trailing_pct, use_exchange_sl_tp = excluded.use_exchange_sl_tp,
		updated_at = excluded.updated_at`

	_, err := tx.ExecContext(ctx, query, settingsID,
		st.Symbol, st.Timeframe, st.Leverage, st.RiskPct, st.SLPct, st.TPPct, st.LoopIntervalSec,
		st.CooldownMinutes, st.MaxTradesPerDay, st.MaxDailyLossPct, st.MaxMarginPct, string(st.EntryOrderType),
		st.EntryTimeoutSec, st.MaxSpreadPct, st.MaxSlippagePct, st.AllowMarketFallback, st.TrailingEnabled,
		st.TrailingActivationPct, st.TrailingPct, st.UseExchangeSLTP, st.UpdatedAt)
	if err != nil {
		return fmt.Errorf("%w: failed to write settings: %w", ports.ErrUpdateFailed, err)
	}
	return nil
}

// --- TradeRepository Implementation ---

const tradeColumns = `id, symbol, side, qty, entry, stop_loss, take_profit, status,
	entry_order_id, entry_avg_fill, entry_fee, opened_at,
	COALESCE(exit_order_id, ''), COALESCE(exit_price, 0), COALESCE(exit_avg_fill, 0), exit_fee,
	COALESCE(exit_reason, ''), COALESCE(pnl, 0), closed_at`

// AddTrade saves a new trade and returns its assigned ID. A second OPEN
// trade for the same symbol fails with ports.ErrOpenTradeExists.
func (r *Repository) AddTrade(ctx context.Context, trade *domain.Trade) (int64, error) {
	const query = `
	INSERT INTO trades (symbol, side, qty, entry, stop_loss, take_profit, status,
	                    entry_order_id, entry_avg_fill, entry_fee, opened_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	openedAt := trade.OpenedAt
	if openedAt.IsZero() {
		openedAt = r.now()
	}

	result, err := r.db.ExecContext(ctx, query,
		trade.Symbol, string(trade.Side), trade.Qty, trade.Entry, trade.StopLoss, trade.TakeProfit,
		string(trade.Status), trade.EntryOrderID, trade.EntryAvgFill, nullFloat(trade.EntryFee), openedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%s: %w", trade.Symbol, ports.ErrOpenTradeExists)
		}
		return 0, fmt.Errorf("failed to insert trade for symbol %s: %w", trade.Symbol, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for trade %s: %w", trade.Symbol, err)
	}
	trade.ID = id
	trade.OpenedAt = openedAt
	r.logger.Debug(ctx, "Trade created", map[string]interface{}{"tradeID": id, "symbol": trade.Symbol, "side": trade.Side})
	return id, nil
}

// UpdateTrade applies upd to the stored trade inside one transaction.
func (r *Repository) UpdateTrade(ctx context.Context, id int64, upd domain.TradeUpdate) (*domain.Trade, error) {
	const query = `
	UPDATE trades
	SET stop_loss = ?, status = ?, exit_order_id = ?, exit_price = ?, exit_avg_fill = ?,
	    exit_fee = ?, exit_reason = ?, pnl = ?, closed_at = ?
	WHERE id = ?`

	var trade *domain.Trade
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+tradeColumns+` FROM trades WHERE id = ?`, id)
		t, err := scanTrade(row)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("trade ID %d not found for update: %w", id, ports.ErrNotFound)
			}
			return fmt.Errorf("%w: %w", ports.ErrQueryFailed, err)
		}

		upd.ApplyTo(t)

		var closedAt sql.NullTime
		if !t.ClosedAt.IsZero() {
			closedAt = sql.NullTime{Time: t.ClosedAt, Valid: true}
		}
		_, err = tx.ExecContext(ctx, query,
			t.StopLoss, string(t.Status), nullString(t.ExitOrderID), nullZero(t.ExitPrice), nullZero(t.ExitAvgFill),
			nullFloat(t.ExitFee), nullString(string(t.ExitReason)), nullZeroIfOpen(t), closedAt, id)
		if err != nil {
			return fmt.Errorf("%w: %w", ports.ErrUpdateFailed, err)
		}
		trade = t
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update trade ID %d: %w", id, err)
	}
	r.logger.Debug(ctx, "Trade updated", map[string]interface{}{"tradeID": id, "status": trade.Status, "stopLoss": trade.StopLoss})
	return trade, nil
}

// GetOpenTrade retrieves the currently open trade for a given symbol, if any.
func (r *Repository) GetOpenTrade(ctx context.Context, symbol string) (*domain.Trade, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+tradeColumns+` FROM trades WHERE symbol = ? AND status = ?`,
		symbol, string(domain.StatusOpen))
	trade, err := scanTrade(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not an error, just not found
		}
		return nil, fmt.Errorf("failed to query open trade for symbol %s: %w", symbol, err)
	}
	return trade, nil
}

// ListTrades returns up to limit most recent trades, oldest first.
func (r *Repository) ListTrades(ctx context.Context, limit int) ([]*domain.Trade, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+tradeColumns+` FROM trades ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	trades := make([]*domain.Trade, 0)
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade during ListTrades: %w", err)
		}
		trades = append(trades, trade)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade rows: %w", err)
	}
	reverse(trades)
	return trades, nil
}

// --- EventRepository Implementation ---

// AddEvent appends an event to the audit log.
func (r *Repository) AddEvent(ctx context.Context, level domain.EventLevel, typ domain.EventType, message string) (*domain.Event, error) {
	const query = `INSERT INTO events (level, type, message, created_at) VALUES (?, ?, ?, ?)`

	ev := &domain.Event{Level: level, Type: typ, Message: message, Timestamp: r.now()}
	result, err := r.db.ExecContext(ctx, query, string(level), string(typ), message, ev.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("failed to insert event %s: %w", typ, err)
	}
	ev.ID, err = result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert ID for event %s: %w", typ, err)
	}
	return ev, nil
}

// ListEvents returns up to limit most recent events, oldest first.
func (r *Repository) ListEvents(ctx context.Context, limit int) ([]*domain.Event, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	const query = `SELECT id, level, type, message, created_at FROM events ORDER BY id DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	events := make([]*domain.Event, 0)
	for rows.Next() {
		ev := &domain.Event{}
		var level, typ string
		if err := rows.Scan(&ev.ID, &level, &typ, &ev.Message, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan event during ListEvents: %w", err)
		}
		ev.Level = domain.EventLevel(level)
		ev.Type = domain.EventType(typ)
		events = append(events, ev)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event rows: %w", err)
	}
	reverse(events)
	return events, nil
}

// --- Helpers ---

// withTx runs fn in a transaction, committing on success.
func (r *Repository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			r.logger.Warn(ctx, "Transaction rollback failed", map[string]interface{}{"error": rbErr.Error()})
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSettings(s scanner) (domain.Settings, error) {
	var st domain.Settings
	var entryType string
	err := s.Scan(
		&st.Symbol, &st.Timeframe, &st.Leverage, &st.RiskPct, &st.SLPct, &st.TPPct, &st.LoopIntervalSec,
		&st.CooldownMinutes, &st.MaxTradesPerDay, &st.MaxDailyLossPct, &st.MaxMarginPct, &entryType,
		&st.EntryTimeoutSec, &st.MaxSpreadPct, &st.MaxSlippagePct, &st.AllowMarketFallback, &st.TrailingEnabled,
		&st.TrailingActivationPct, &st.TrailingPct, &st.UseExchangeSLTP, &st.UpdatedAt)
	if err != nil {
		return domain.Settings{}, err // Handle sql.ErrNoRows in the caller
	}
	st.EntryOrderType = domain.EntryOrderType(entryType)
	return st, nil
}

// scanTrade scans a row into a domain.Trade struct.
func scanTrade(s scanner) (*domain.Trade, error) {
	t := &domain.Trade{}
	var side, status, exitReason string
	var entryFee, exitFee sql.NullFloat64
	var closedAt sql.NullTime
	err := s.Scan(
		&t.ID, &t.Symbol, &side, &t.Qty, &t.Entry, &t.StopLoss, &t.TakeProfit, &status,
		&t.EntryOrderID, &t.EntryAvgFill, &entryFee, &t.OpenedAt,
		&t.ExitOrderID, &t.ExitPrice, &t.ExitAvgFill, &exitFee,
		&exitReason, &t.PNL, &closedAt)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	t.Side = domain.Side(side)
	t.Status = domain.TradeStatus(status)
	t.ExitReason = domain.ExitReason(exitReason)
	if entryFee.Valid {
		v := entryFee.Float64
		t.EntryFee = &v
	}
	if exitFee.Valid {
		v := exitFee.Float64
		t.ExitFee = &v
	}
	if closedAt.Valid {
		t.ClosedAt = closedAt.Time
	}
	return t, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint &&
			(sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey)
	}
	return false
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullZero(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: v != 0}
}

// nullZeroIfOpen keeps pnl NULL until the trade is closed; a closed trade
// may legitimately realize exactly zero.
func nullZeroIfOpen(t *domain.Trade) sql.NullFloat64 {
	return sql.NullFloat64{Float64: t.PNL, Valid: t.Status == domain.StatusClosed}
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
