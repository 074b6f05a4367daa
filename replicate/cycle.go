package replicate

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/net/context"

	"github.com/BenjaminRains/etlpipe/constants"
	"github.com/BenjaminRains/etlpipe/helper"
	"github.com/BenjaminRains/etlpipe/logger"
	"github.com/BenjaminRains/etlpipe/rdbms"
	"github.com/BenjaminRains/etlpipe/rdbms/shared"
	"github.com/BenjaminRains/etlpipe/schema"
	"github.com/BenjaminRains/etlpipe/stats"
	"github.com/BenjaminRains/etlpipe/status"
)

type cycleState int

const (
	stateIdle cycleState = iota
	stateExtracting
	stateLoading
	stateFinalizing
)

func (s cycleState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateExtracting:
		return "extracting"
	case stateLoading:
		return "loading"
	case stateFinalizing:
		return "finalizing"
	}
	return "unknown"
}

// cycle executes one replication cycle for one table. All four load modes
// funnel through the same watermark-read / load / watermark-write protocol;
// finalize is the only step that writes to the status tracker.
type cycle struct {
	log          logger.Logger
	source       *rdbms.ConnectionManager
	target       *rdbms.ConnectionManager
	tracker      *status.Tracker
	sourceSchema string
	targetSchema string
	cfg          schema.TableConfig
	forceFull    bool
	fullUpsert   bool // upsert-all instead of truncate-and-reload in full mode.
	truncated    bool // the target table was truncated this cycle.
	state        cycleState
	rowCount     int64 // atomic; sampled by the stats watcher.
}

func (c *cycle) setState(s cycleState) {
	c.log.Debug("table ", c.cfg.TableName, ": ", c.state, " -> ", s)
	c.state = s
}

func (c *cycle) run(ctx context.Context) TableResult {
	start := time.Now()
	res := TableResult{TableName: c.cfg.TableName}
	c.setState(stateIdle)
	watcher := stats.NewCycleWatcher(c.log, c.cfg.TableName)
	watcher.StartWatching(&c.rowCount)
	defer func() {
		watcher.StopWatching()
		c.log.Info(watcher.RenderStats())
	}()

	strategy := c.cfg.ExtractionStrategy
	if c.forceFull {
		strategy = constants.StrategyFullTable
	}

	// Read the watermark before anything touches the source or target. Full
	// mode ignores it for extraction but a failed full cycle still carries it
	// forward when the truncate has not executed yet.
	prior, err := c.tracker.GetWatermark(ctx, c.cfg.TableName)
	if err != nil {
		res.Status = constants.LoadStatusFailed
		res.Err = errors.Wrapf(err, "unable to read watermark for table %v", c.cfg.TableName)
		res.StoreUnreachable = isConnectionError(err)
		res.Duration = time.Since(start)
		return res
	}

	mode := strategy
	if mode != constants.StrategyFullTable && (prior == nil || !prior.HasValue) {
		// First run for this table: fall back to full mode for this one cycle
		// so a fresh watermark gets written and the next cycle can go
		// incremental.
		c.log.Info("table ", c.cfg.TableName, " has no usable watermark; running a full load")
		mode = constants.StrategyFullTable
	}
	res.Mode = mode

	c.setState(stateExtracting)
	var rowsLoaded int64
	var newWm *string
	switch mode {
	case constants.StrategyFullTable:
		rowsLoaded, err = c.fullLoad(ctx)
	case constants.StrategyIncremental:
		rowsLoaded, newWm, err = c.incrementalLoad(ctx, prior.Value)
	case constants.StrategyIncrementalChunked:
		rowsLoaded, newWm, err = c.chunkedLoad(ctx, prior.Value)
	default:
		err = errors.Errorf("unknown extraction strategy %q for table %v", mode, c.cfg.TableName)
	}
	return c.finalize(res, rowsLoaded, newWm, prior, err, start)
}

// finalize writes the cycle outcome to the status tracker. A failed cycle
// carries the prior watermark forward so the stored watermark never advances
// on failure; a successful cycle with no new rows does the same. The write
// happens under a background context so a cancelled run still records a
// consistent outcome.
func (c *cycle) finalize(res TableResult, rowsLoaded int64, newWm *string, prior *status.Watermark, runErr error, start time.Time) TableResult {
	c.setState(stateFinalizing)
	sr := status.Result{TableName: c.cfg.TableName}
	pcol := c.cfg.PrimaryIncrementalColumn
	if pcol != "" {
		sr.PrimaryColumnName = &pcol
	}
	if runErr != nil {
		sr.Status = constants.LoadStatusFailed
		// A truncated target no longer holds the watermarked rows, so the
		// prior watermark only survives a failure that preceded the truncate.
		if prior != nil && prior.HasValue && !c.truncated {
			sr.LastPrimaryValue = status.StrPtr(prior.Value)
		}
		res.Status = constants.LoadStatusFailed
		res.Err = runErr
		c.log.Error("table ", c.cfg.TableName, " cycle failed: ", runErr)
	} else {
		sr.Status = constants.LoadStatusSuccess
		sr.RowsLoaded = rowsLoaded
		sr.LastPrimaryValue = newWm
		if newWm == nil && res.Mode != constants.StrategyFullTable && prior != nil && prior.HasValue {
			// No rows pulled this cycle; keep the watermark where it was.
			// Full mode stays nil so the status write computes a fresh
			// watermark from the reloaded target instead.
			sr.LastPrimaryValue = status.StrPtr(prior.Value)
		}
		res.Status = constants.LoadStatusSuccess
		res.RowsLoaded = rowsLoaded
	}
	res.Watermark = sr.LastPrimaryValue
	if err := c.tracker.RecordResult(context.Background(), sr); err != nil {
		res.Status = constants.LoadStatusFailed
		res.Err = errors.Wrapf(err, "unable to record outcome for table %v", c.cfg.TableName)
		res.StoreUnreachable = isConnectionError(err)
	}
	res.Duration = time.Since(start)
	return res
}

// fullLoad reloads the whole table: truncate-and-reload by default, or
// upsert-all when the loader lacks truncate privilege and the table has a
// primary key. It returns no watermark; the tracker computes a fresh one from
// the reloaded target during the status write.
func (c *cycle) fullLoad(ctx context.Context) (int64, error) {
	plan, err := buildColumnPlan(c.cfg)
	if err != nil {
		return 0, err
	}
	useUpsert := c.fullUpsert && len(c.cfg.PrimaryKeyColumns) > 0
	if !useUpsert {
		trunc := fmt.Sprintf("truncate table %v.%v", c.targetSchema, c.cfg.TableName)
		if _, err := c.target.ExecuteWithRetry(context.Background(), trunc, nil, false); err != nil {
			return 0, errors.Wrapf(err, "unable to truncate target table %v", c.cfg.TableName)
		}
		c.truncated = true
	}
	gen, err := c.newGenerator(plan, useUpsert)
	if err != nil {
		return 0, err
	}
	sqltext := fmt.Sprintf("select %v from %v.%v",
		plan.selectCsv(), c.sourceSchema, c.cfg.TableName)
	rows, _, err := c.streamLoad(ctx, sqltext, nil, gen, plan)
	return rows, err
}

// incrementalLoad pulls rows strictly newer than the watermark, ordered by the
// tracking column so the last row scanned is the new watermark, and upserts
// them keyed on the primary key.
func (c *cycle) incrementalLoad(ctx context.Context, wm string) (int64, *string, error) {
	plan, err := buildColumnPlan(c.cfg)
	if err != nil {
		return 0, nil, err
	}
	gen, err := c.newGenerator(plan, true)
	if err != nil {
		return 0, nil, err
	}
	sqltext := fmt.Sprintf("select %v from %v.%v where %v > ? order by %v",
		plan.selectCsv(), c.sourceSchema, c.cfg.TableName,
		c.cfg.PrimaryIncrementalColumn, c.cfg.PrimaryIncrementalColumn)
	rows, lastRow, err := c.streamLoad(ctx, sqltext, []interface{}{wm}, gen, plan)
	if err != nil || lastRow == nil {
		return rows, nil, err
	}
	wmVal := helper.GetStringFromInterface(c.log, lastRow[plan.wmIdx])
	return rows, &wmVal, nil
}

// chunkedLoad is incremental mode paginated into batch_size-row windows to
// bound peak memory on very large deltas. The watermark advances only after
// every window has loaded; any window failing discards the whole cycle's
// advance so a retry re-pulls from the old watermark instead of skipping rows.
//
// Windows after the first resume from the last scanned row, not the last
// scanned value: ties on the tracking column are broken by primary key, so a
// window boundary inside a run of equal values (routine for second-resolution
// timestamps) cannot skip the rest of the run.
func (c *cycle) chunkedLoad(ctx context.Context, wm string) (int64, *string, error) {
	plan, err := buildColumnPlan(c.cfg)
	if err != nil {
		return 0, nil, err
	}
	if len(plan.keyCols) == 0 {
		return 0, nil, errors.Errorf("table %v has no primary key; chunked windows cannot paginate", c.cfg.TableName)
	}
	gen, err := c.newGenerator(plan, true)
	if err != nil {
		return 0, nil, err
	}
	wmCol := c.cfg.PrimaryIncrementalColumn
	// No tiebreak needed when the tracking column is itself the whole key.
	tiebreak := len(plan.keyCols) != 1 || plan.keyCols[0] != wmCol
	orderBy := wmCol
	if tiebreak {
		orderBy = wmCol + "," + strings.Join(plan.keyCols, ",")
	}
	firstSql := fmt.Sprintf("select %v from %v.%v where %v > ? order by %v limit %v",
		plan.selectCsv(), c.sourceSchema, c.cfg.TableName, wmCol, orderBy, c.cfg.BatchSize)
	nextSql := firstSql
	if tiebreak {
		nextSql = fmt.Sprintf("select %v from %v.%v where %v > ? or (%v = ? and %v) order by %v limit %v",
			plan.selectCsv(), c.sourceSchema, c.cfg.TableName,
			wmCol, wmCol, keysetPredicate(plan.keyCols), orderBy, c.cfg.BatchSize)
	}
	var total int64
	newest := ""
	sqltext := firstSql
	args := []interface{}{wm}
	for {
		rows, lastRow, err := c.streamLoad(ctx, sqltext, args, gen, plan)
		if err != nil {
			return 0, nil, err
		}
		total += rows
		if lastRow != nil {
			newest = helper.GetStringFromInterface(c.log, lastRow[plan.wmIdx])
			sqltext = nextSql
			if tiebreak {
				args = append([]interface{}{newest, newest}, c.keyVals(plan, lastRow)...)
			} else {
				args = []interface{}{newest}
			}
		}
		if rows < int64(c.cfg.BatchSize) { // short window means the delta is drained.
			break
		}
		// Cancellation is honoured between windows so the window in flight
		// always completes.
		if err := ctx.Err(); err != nil {
			return 0, nil, err
		}
	}
	if total == 0 {
		return 0, nil, nil
	}
	return total, &newest, nil
}

// keysetPredicate renders the primary-key half of the window pagination
// filter. Composite keys compare as a row constructor.
func keysetPredicate(keyCols []string) string {
	if len(keyCols) == 1 {
		return keyCols[0] + " > ?"
	}
	marks := strings.TrimSuffix(strings.Repeat("?,", len(keyCols)), ",")
	return fmt.Sprintf("(%v) > (%v)", strings.Join(keyCols, ","), marks)
}

// keyVals string-encodes the primary-key values of a scanned row for use as
// pagination binds. Key columns lead the column plan, so they sit at the
// front of the row.
func (c *cycle) keyVals(plan *columnPlan, lastRow []interface{}) []interface{} {
	vals := make([]interface{}, len(plan.keyCols))
	for i := range plan.keyCols {
		vals[i] = helper.GetStringFromInterface(c.log, lastRow[i])
	}
	return vals
}

// streamLoad pumps one source query into the target in batches: pull
// batch_size rows, flush them through the DML generator, pull the next.
// Statements run under a background context; the run context is only checked
// after each flush so an in-flight batch always completes. It returns the
// last row scanned so callers can derive watermarks and pagination keys.
func (c *cycle) streamLoad(ctx context.Context, sqltext string, args []interface{}, gen shared.SqlStmtTxtBatcher, plan *columnPlan) (int64, []interface{}, error) {
	rows, err := c.source.QueryWithRetry(context.Background(), sqltext, args, true)
	if err != nil {
		return 0, nil, errors.Wrapf(err, "extract failed for table %v", c.cfg.TableName)
	}
	defer rows.Close()
	numCols := len(plan.cols)
	var loaded int64
	var lastRow []interface{}
	pending := make([][]interface{}, 0, c.cfg.BatchSize)
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		c.setState(stateLoading)
		if err := c.loadBatch(gen, pending); err != nil {
			return err
		}
		loaded += int64(len(pending))
		atomic.AddInt64(&c.rowCount, int64(len(pending)))
		pending = pending[:0]
		c.setState(stateExtracting)
		return nil
	}
	for rows.Next() {
		vals := make([]interface{}, numCols)
		ptrs := make([]interface{}, numCols)
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return loaded, lastRow, errors.Wrapf(err, "scan failed for table %v", c.cfg.TableName)
		}
		lastRow = vals
		pending = append(pending, vals)
		if len(pending) >= c.cfg.BatchSize {
			if err := flush(); err != nil {
				return loaded, lastRow, err
			}
			if err := ctx.Err(); err != nil {
				return loaded, lastRow, err
			}
		}
	}
	if err := rows.Err(); err != nil {
		return loaded, lastRow, errors.Wrapf(err, "extract failed for table %v", c.cfg.TableName)
	}
	if err := flush(); err != nil {
		return loaded, lastRow, err
	}
	return loaded, lastRow, nil
}

// loadBatch renders one multi-row statement for exactly the rows pending and
// executes it against the target.
func (c *cycle) loadBatch(gen shared.SqlStmtTxtBatcher, pending [][]interface{}) error {
	gen.InitBatch(len(pending))
	for _, row := range pending {
		if _, err := gen.AddValuesToBatch(row); err != nil {
			return errors.Wrapf(err, "unable to batch rows for table %v", c.cfg.TableName)
		}
	}
	if _, err := c.target.ExecuteWithRetry(context.Background(), gen.GetStatement(), gen.GetValues(), false); err != nil {
		return errors.Wrapf(err, "load failed for table %v", c.cfg.TableName)
	}
	return nil
}

// newGenerator builds the target DML generator for this table: an upsert
// keyed on the primary key, or a plain multi-row insert.
func (c *cycle) newGenerator(plan *columnPlan, upsert bool) (shared.SqlStmtTxtBatcher, error) {
	db, err := c.target.GetConnection()
	if err != nil {
		return nil, err
	}
	genCfg := &shared.SqlStatementGeneratorConfig{
		Log:             c.log,
		OutputSchema:    c.targetSchema,
		OutputTable:     c.cfg.TableName,
		TargetKeyCols:   helper.StringSliceToOrderedMap(plan.keyCols),
		TargetOtherCols: helper.StringSliceToOrderedMap(plan.otherCols),
	}
	if upsert {
		return db.GetDmlGenerator().NewUpsertGenerator(genCfg).(shared.SqlStmtTxtBatcher), nil
	}
	return db.GetDmlGenerator().NewInsertGenerator(genCfg).(shared.SqlStmtTxtBatcher), nil
}

// columnPlan fixes the column order for one cycle: primary key columns first
// then the rest, matching the order the DML generators emit, so scanned row
// values map positionally onto bind variables.
type columnPlan struct {
	keyCols   []string
	otherCols []string
	cols      []string // keyCols then otherCols.
	wmIdx     int      // index of the tracking column in cols, -1 when untracked.
}

func (p *columnPlan) selectCsv() string {
	return strings.Join(p.cols, ",")
}

func buildColumnPlan(cfg schema.TableConfig) (*columnPlan, error) {
	if len(cfg.Columns) == 0 {
		return nil, errors.Errorf("table %v has no column list; re-run the analyzer", cfg.TableName)
	}
	isKey := make(map[string]bool, len(cfg.PrimaryKeyColumns))
	for _, k := range cfg.PrimaryKeyColumns {
		isKey[k] = true
	}
	p := &columnPlan{keyCols: cfg.PrimaryKeyColumns, wmIdx: -1}
	for _, col := range cfg.Columns {
		if !isKey[col] {
			p.otherCols = append(p.otherCols, col)
		}
	}
	p.cols = append(append([]string{}, p.keyCols...), p.otherCols...)
	if cfg.PrimaryIncrementalColumn != "" {
		for i, col := range p.cols {
			if col == cfg.PrimaryIncrementalColumn {
				p.wmIdx = i
				break
			}
		}
		if p.wmIdx < 0 {
			return nil, errors.Errorf("tracking column %v is not in the column list for table %v",
				cfg.PrimaryIncrementalColumn, cfg.TableName)
		}
	}
	return p, nil
}
