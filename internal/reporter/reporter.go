package reporter

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"go.uber.org/zap"

	"github.com/Varma0717/tradingbot/internal/models"
)

// SnapshotSource is what the reporter reads. The scheduler satisfies it.
type SnapshotSource interface {
	Snapshots() []models.PerformanceSnapshot
}

// Reporter prints a per-symbol performance table at a fixed interval and
// once more on shutdown, so an operator watching the console sees the
// same numbers the control API serves.
type Reporter struct {
	src      SnapshotSource
	interval time.Duration
	out      io.Writer
	logger   *zap.SugaredLogger
}

// New creates a reporter writing to stdout. An interval of 0 defaults to
// one minute.
func New(src SnapshotSource, interval time.Duration, logger *zap.SugaredLogger) *Reporter {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reporter{src: src, interval: interval, out: os.Stdout, logger: logger}
}

// SetOutput redirects the table, mainly for tests.
func (r *Reporter) SetOutput(w io.Writer) { r.out = w }

// Run prints on every interval until the context ends, then prints the
// final report.
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.Print()
			return
		case <-ticker.C:
			r.Print()
		}
	}
}

// Print renders the current snapshots. No symbols, no table.
func (r *Reporter) Print() {
	snaps := r.src.Snapshots()
	if len(snaps) == 0 {
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetTitle("Trading Performance")
	t.AppendHeader(table.Row{
		"Symbol", "Trades", "Grid", "DCA", "Win Rate", "Profit", "ROI", "Max DD", "Position", "Last Price", "Status",
	})
	for _, s := range snaps {
		status := "running"
		if s.Halted {
			status = "HALTED"
		}
		t.AppendRow(table.Row{
			s.Symbol,
			s.TotalTrades,
			s.GridTrades,
			s.DCATrades,
			fmt.Sprintf("%.1f%%", s.WinRate),
			fmt.Sprintf("%.2f", s.TotalProfit),
			fmt.Sprintf("%.2f%%", s.ROIPercentage),
			fmt.Sprintf("%.2f%%", s.MaxDrawdown),
			fmt.Sprintf("%.6f", s.Position.Quantity),
			fmt.Sprintf("%.2f", s.LastPrice),
			status,
		})
	}
	t.SetStyle(table.StyleLight)
	t.Render()
}
