package sqlite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"perpRiskBot/internal/domain"
	"perpRiskBot/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// setupTestDB creates a temporary database for testing
func setupTestDB(t *testing.T, defaults *domain.Settings) (*Repository, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "perp-risk-bot-test-*")
	require.NoError(t, err)

	dbPath := filepath.Join(tmpDir, "test.db")
	repo, err := NewRepository(Config{
		DBPath:   dbPath,
		Logger:   &mockLogger{},
		Defaults: defaults,
	})
	require.NoError(t, err)

	cleanup := func() {
		repo.Close()
		os.RemoveAll(tmpDir)
	}

	return repo, cleanup
}

func openTrade(symbol string) *domain.Trade {
	fee := 0.012
	return &domain.Trade{
		Symbol:       symbol,
		Side:         domain.Long,
		Qty:          0.5,
		Entry:        100,
		StopLoss:     98.5,
		TakeProfit:   102.5,
		Status:       domain.StatusOpen,
		EntryOrderID: "abc",
		EntryAvgFill: 100,
		EntryFee:     &fee,
		OpenedAt:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestNewRepository_RequiresLogger(t *testing.T) {
	_, err := NewRepository(Config{DBPath: filepath.Join(t.TempDir(), "x.db")})
	assert.Error(t, err)
}

func TestRepository_GetOrCreateSettings(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		repo, cleanup := setupTestDB(t, nil)
		defer cleanup()
		ctx := context.Background()

		st, err := repo.GetOrCreateSettings(ctx)
		require.NoError(t, err)
		want := domain.DefaultSettings()
		want.UpdatedAt = st.UpdatedAt
		assert.Equal(t, want, st)
		assert.False(t, st.UpdatedAt.IsZero())

		again, err := repo.GetOrCreateSettings(ctx)
		require.NoError(t, err)
		assert.Equal(t, st.Symbol, again.Symbol)
		assert.WithinDuration(t, st.UpdatedAt, again.UpdatedAt, time.Millisecond)
	})

	t.Run("custom seed", func(t *testing.T) {
		seed := domain.DefaultSettings()
		seed.Symbol = "ETHUSDT"
		seed.Timeframe = "1h"
		repo, cleanup := setupTestDB(t, &seed)
		defer cleanup()

		st, err := repo.GetOrCreateSettings(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "ETHUSDT", st.Symbol)
		assert.Equal(t, "1h", st.Timeframe)
	})
}

func TestRepository_UpdateSettings(t *testing.T) {
	repo, cleanup := setupTestDB(t, nil)
	defer cleanup()
	ctx := context.Background()

	lev := 5
	market := domain.EntryMarket
	useNative := true
	st, err := repo.UpdateSettings(ctx, domain.SettingsPatch{
		Leverage:        &lev,
		EntryOrderType:  &market,
		UseExchangeSLTP: &useNative,
	})
	require.NoError(t, err)
	assert.Equal(t, 5, st.Leverage)
	assert.Equal(t, domain.EntryMarket, st.EntryOrderType)
	assert.True(t, st.UseExchangeSLTP)
	assert.Equal(t, domain.DefaultSettings().RiskPct, st.RiskPct)

	stored, err := repo.GetOrCreateSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, stored.Leverage)
	assert.True(t, stored.UseExchangeSLTP)

	bad := 0
	_, err = repo.UpdateSettings(ctx, domain.SettingsPatch{Leverage: &bad})
	assert.ErrorIs(t, err, ports.ErrInvalidSettings)
	assert.ErrorIs(t, err, ports.ErrInvalidRequest)

	stored, err = repo.GetOrCreateSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, stored.Leverage)
}

func TestRepository_AddAndGetOpenTrade(t *testing.T) {
	repo, cleanup := setupTestDB(t, nil)
	defer cleanup()
	ctx := context.Background()

	none, err := repo.GetOpenTrade(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Nil(t, none)

	tr := openTrade("BTCUSDT")
	id, err := repo.AddTrade(ctx, tr)
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))
	assert.Equal(t, id, tr.ID)

	found, err := repo.GetOpenTrade(ctx, "BTCUSDT")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, tr.Symbol, found.Symbol)
	assert.Equal(t, domain.Long, found.Side)
	assert.Equal(t, tr.Qty, found.Qty)
	assert.Equal(t, tr.StopLoss, found.StopLoss)
	assert.Equal(t, tr.TakeProfit, found.TakeProfit)
	assert.Equal(t, "abc", found.EntryOrderID)
	require.NotNil(t, found.EntryFee)
	assert.Equal(t, 0.012, *found.EntryFee)
	assert.Nil(t, found.ExitFee)
	assert.True(t, found.ClosedAt.IsZero())
	assert.True(t, tr.OpenedAt.Equal(found.OpenedAt))

	other, err := repo.GetOpenTrade(ctx, "ETHUSDT")
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestRepository_OneOpenTradePerSymbol(t *testing.T) {
	repo, cleanup := setupTestDB(t, nil)
	defer cleanup()
	ctx := context.Background()

	first := openTrade("BTCUSDT")
	_, err := repo.AddTrade(ctx, first)
	require.NoError(t, err)

	_, err = repo.AddTrade(ctx, openTrade("BTCUSDT"))
	assert.ErrorIs(t, err, ports.ErrOpenTradeExists)
	assert.ErrorIs(t, err, ports.ErrDuplicateEntry)

	_, err = repo.AddTrade(ctx, openTrade("ETHUSDT"))
	require.NoError(t, err)

	closed := domain.StatusClosed
	_, err = repo.UpdateTrade(ctx, first.ID, domain.TradeUpdate{Status: &closed})
	require.NoError(t, err)

	_, err = repo.AddTrade(ctx, openTrade("BTCUSDT"))
	assert.NoError(t, err)
}

func TestRepository_UpdateTrade(t *testing.T) {
	repo, cleanup := setupTestDB(t, nil)
	defer cleanup()
	ctx := context.Background()

	tr := openTrade("BTCUSDT")
	_, err := repo.AddTrade(ctx, tr)
	require.NoError(t, err)

	sl := 100.2946
	updated, err := repo.UpdateTrade(ctx, tr.ID, domain.TradeUpdate{StopLoss: &sl})
	require.NoError(t, err)
	assert.Equal(t, sl, updated.StopLoss)
	assert.True(t, updated.IsOpen())

	status := domain.StatusClosed
	exitID := "x1"
	exitPrice := 102.6
	exitFee := 0.02
	reason := domain.ExitReasonTakeProfit
	pnl := 1.3
	closedAt := time.Date(2024, 5, 1, 13, 0, 0, 0, time.UTC)
	updated, err = repo.UpdateTrade(ctx, tr.ID, domain.TradeUpdate{
		Status:      &status,
		ExitOrderID: &exitID,
		ExitPrice:   &exitPrice,
		ExitAvgFill: &exitPrice,
		ExitFee:     &exitFee,
		ExitReason:  &reason,
		PNL:         &pnl,
		ClosedAt:    &closedAt,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClosed, updated.Status)
	assert.Equal(t, sl, updated.StopLoss)

	trades, err := repo.ListTrades(ctx, 10)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	got := trades[0]
	assert.Equal(t, domain.StatusClosed, got.Status)
	assert.Equal(t, "x1", got.ExitOrderID)
	assert.Equal(t, 102.6, got.ExitPrice)
	assert.Equal(t, 102.6, got.ExitAvgFill)
	require.NotNil(t, got.ExitFee)
	assert.Equal(t, 0.02, *got.ExitFee)
	assert.Equal(t, domain.ExitReasonTakeProfit, got.ExitReason)
	assert.Equal(t, 1.3, got.PNL)
	assert.True(t, closedAt.Equal(got.ClosedAt))

	open, err := repo.GetOpenTrade(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Nil(t, open)
}

func TestRepository_UpdateTradeNotFound(t *testing.T) {
	repo, cleanup := setupTestDB(t, nil)
	defer cleanup()

	sl := 1.0
	_, err := repo.UpdateTrade(context.Background(), 999, domain.TradeUpdate{StopLoss: &sl})
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestRepository_ListTrades(t *testing.T) {
	repo, cleanup := setupTestDB(t, nil)
	defer cleanup()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := repo.AddTrade(ctx, openTrade(fmt.Sprintf("SYM%dUSDT", i)))
		require.NoError(t, err)
	}

	trades, err := repo.ListTrades(ctx, 2)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "SYM1USDT", trades[0].Symbol)
	assert.Equal(t, "SYM2USDT", trades[1].Symbol)

	all, err := repo.ListTrades(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestRepository_Events(t *testing.T) {
	repo, cleanup := setupTestDB(t, nil)
	defer cleanup()
	ctx := context.Background()

	types := []domain.EventType{domain.EventBotStarted, domain.EventSpreadSkip, domain.EventLoopError}
	levels := []domain.EventLevel{domain.LevelInfo, domain.LevelInfo, domain.LevelError}
	for i, typ := range types {
		ev, err := repo.AddEvent(ctx, levels[i], typ, fmt.Sprintf("message %d", i))
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), ev.ID)
		assert.False(t, ev.Timestamp.IsZero())
	}

	events, err := repo.ListEvents(ctx, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventSpreadSkip, events[0].Type)
	assert.Equal(t, domain.EventLoopError, events[1].Type)
	assert.Equal(t, domain.LevelError, events[1].Level)
	assert.Equal(t, "message 2", events[1].Message)
}
