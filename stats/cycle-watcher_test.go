package stats

import (
	"strings"
	"sync/atomic"
	"testing"

	"github.com/BenjaminRains/etlpipe/logger"
)

func TestCycleWatcherCountsRows(t *testing.T) {
	log := logger.NewLogger("etlpipe", "error", false)
	w := NewCycleWatcher(log, "appointment")
	var rowCount int64
	w.StartWatching(&rowCount)
	atomic.AddInt64(&rowCount, 1500)
	w.StopWatching()
	s := w.RenderStats()
	if s.TotalRowsProcessed != 1500 {
		t.Fatal("expected 1500 rows processed, got ", s.TotalRowsProcessed)
	}
	if s.StatusText != "complete" {
		t.Fatal("expected status complete, got ", s.StatusText)
	}
	if s.TableName != "appointment" {
		t.Fatal("unexpected table name ", s.TableName)
	}
}

func TestCycleWatcherRestartResetsTotals(t *testing.T) {
	log := logger.NewLogger("etlpipe", "error", false)
	w := NewCycleWatcher(log, "claim")
	var rowCount int64
	w.StartWatching(&rowCount)
	atomic.AddInt64(&rowCount, 100)
	w.StopWatching()

	rowCount = 0
	w.StartWatching(&rowCount)
	atomic.AddInt64(&rowCount, 42)
	w.StopWatching()
	if got := w.RenderStats().TotalRowsProcessed; got != 42 {
		t.Fatal("expected totals reset on restart, got ", got)
	}
}

func TestStatsString(t *testing.T) {
	s := Stats{TableName: "patient", StatusText: "running", TotalRowsProcessed: 10}
	out := s.String()
	if !strings.Contains(out, "patient") || !strings.Contains(out, "totalRowsProcessed=10") {
		t.Fatal("unexpected stats string: ", out)
	}
}
