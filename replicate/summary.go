package replicate

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/xid"
)

// TableResult is the outcome of one table's cycle within a run.
type TableResult struct {
	TableName        string        `json:"tableName"`
	Mode             string        `json:"mode"` // effective load mode, after any cold-start fallback.
	Status           string        `json:"status"`
	RowsLoaded       int64         `json:"rowsLoaded"`
	Watermark        *string       `json:"watermark,omitempty"`
	Duration         time.Duration `json:"-"`
	Err              error         `json:"-"`
	StoreUnreachable bool          `json:"-"`
}

// RunSummary collects per-table outcomes for one run. Add is safe for
// concurrent use by the parallel worker pool.
type RunSummary struct {
	RunId     string        `json:"runId"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"-"`
	Tables    []TableResult `json:"tables"`
	mu        sync.Mutex
}

func NewRunSummary() *RunSummary {
	return &RunSummary{RunId: xid.New().String(), StartedAt: time.Now()}
}

func (s *RunSummary) Add(res TableResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Tables = append(s.Tables, res)
}

func (s *RunSummary) Finish() {
	s.Duration = time.Since(s.StartedAt)
}

func (s *RunSummary) Succeeded() (n int) {
	for _, t := range s.Tables {
		if t.Err == nil {
			n++
		}
	}
	return
}

func (s *RunSummary) Failed() (n int) {
	for _, t := range s.Tables {
		if t.Err != nil {
			n++
		}
	}
	return
}

func (s *RunSummary) TotalRows() (n int64) {
	for _, t := range s.Tables {
		n += t.RowsLoaded
	}
	return
}

func (s *RunSummary) String() string {
	return fmt.Sprintf("run %v: %v tables, %v succeeded, %v failed, %v rows in %v",
		s.RunId, len(s.Tables), s.Succeeded(), s.Failed(), s.TotalRows(),
		s.Duration.Round(time.Millisecond))
}
