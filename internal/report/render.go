package report

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"perpRiskBot/internal/domain"
)

const timeLayout = "2006-01-02 15:04:05"

// RenderTrades writes the trades table.
func RenderTrades(w io.Writer, trades []*domain.Trade) {
	t := newTable(w, "TRADES")
	t.AppendHeader(table.Row{"ID", "Symbol", "Side", "Qty", "Entry", "SL", "TP", "Status", "Exit", "Reason", "PnL", "Opened", "Closed"})
	for _, tr := range trades {
		exit, closed := "", ""
		if !tr.IsOpen() {
			exit = fmt.Sprintf("%.2f", tr.ExitPrice)
			closed = formatTime(tr.ClosedAt)
		}
		t.AppendRow(table.Row{
			tr.ID, tr.Symbol, tr.Side, tr.Qty,
			fmt.Sprintf("%.2f", tr.Entry), fmt.Sprintf("%.2f", tr.StopLoss), fmt.Sprintf("%.2f", tr.TakeProfit),
			tr.Status, exit, tr.ExitReason, fmt.Sprintf("%.4f", tr.PNL),
			formatTime(tr.OpenedAt), closed,
		})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight},
		{Number: 11, Align: text.AlignRight},
	})
	t.Render()
}

// RenderStats writes the summary and the per-reason breakdown.
func RenderStats(w io.Writer, stats TradeStats) {
	t := newTable(w, "SUMMARY")
	t.AppendRows([]table.Row{
		{"Closed trades", stats.TotalTrades},
		{"Win rate", fmt.Sprintf("%.2f%%", stats.WinRate*100)},
		{"Avg win", fmt.Sprintf("%.4f", stats.AvgWin)},
		{"Avg loss", fmt.Sprintf("%.4f", stats.AvgLoss)},
		{"Total PnL", fmt.Sprintf("%.4f", stats.TotalPnL)},
		{"Max drawdown", fmt.Sprintf("%.4f", stats.MaxDrawdown)},
	})
	if len(stats.ByReason) > 0 {
		t.AppendSeparator()
		for _, rs := range stats.ByReason {
			t.AppendRow(table.Row{
				fmt.Sprintf("Exit %s", rs.Reason),
				fmt.Sprintf("%d trades, pnl %.4f, avg %.4f", rs.Count, rs.TotalPnL, rs.AvgPnL()),
			})
		}
	}
	t.Render()
}

// RenderEvents writes the audit log table.
func RenderEvents(w io.Writer, events []*domain.Event) {
	t := newTable(w, "EVENTS")
	t.AppendHeader(table.Row{"ID", "Time", "Level", "Type", "Message"})
	for _, e := range events {
		t.AppendRow(table.Row{e.ID, formatTime(e.Timestamp), e.Level, e.Type, e.Message})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 5, WidthMax: 80},
	})
	t.Render()
}

func newTable(w io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(title)
	t.SetStyle(table.StyleRounded)
	return t
}

func formatTime(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(timeLayout)
}
