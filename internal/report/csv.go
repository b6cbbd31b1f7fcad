package report

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"perpRiskBot/internal/domain"
)

// WriteTradesCSV exports trades with one row per trade.
func WriteTradesCSV(w io.Writer, trades []*domain.Trade) error {
	writer := csv.NewWriter(w)

	if err := writer.Write([]string{
		"id", "symbol", "side", "qty", "entry", "sl", "tp", "status",
		"entry_order_id", "entry_fee_usdt", "opened_at",
		"exit_order_id", "exit_price", "exit_fee_usdt", "exit_reason", "pnl_usdt", "closed_at",
	}); err != nil {
		return err
	}

	for _, t := range trades {
		closedAt := ""
		if !t.ClosedAt.IsZero() {
			closedAt = t.ClosedAt.UTC().Format(time.RFC3339)
		}
		if err := writer.Write([]string{
			strconv.FormatInt(t.ID, 10),
			t.Symbol,
			string(t.Side),
			formatFloat(t.Qty),
			formatFloat(t.Entry),
			formatFloat(t.StopLoss),
			formatFloat(t.TakeProfit),
			string(t.Status),
			t.EntryOrderID,
			formatOptional(t.EntryFee),
			t.OpenedAt.UTC().Format(time.RFC3339),
			t.ExitOrderID,
			formatFloat(t.ExitPrice),
			formatOptional(t.ExitFee),
			string(t.ExitReason),
			formatFloat(t.PNL),
			closedAt,
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}
