// Package status persists one load-status record per completed replication
// cycle and answers the "where did we get to last time" question for the
// replicator. The backing table is append-only; the latest record per table
// by loaded_at is the authoritative one.
package status

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/net/context"

	"github.com/BenjaminRains/etlpipe/constants"
	"github.com/BenjaminRains/etlpipe/helper"
	"github.com/BenjaminRains/etlpipe/logger"
	"github.com/BenjaminRains/etlpipe/rdbms"
)

// Record is one load-status row. Only the most recent record per table name
// is authoritative; older rows are retained as history.
type Record struct {
	TableName         string    `json:"table_name"`
	LoadStatus        string    `json:"load_status"`
	RowsLoaded        int64     `json:"rows_loaded"`
	LastPrimaryValue  *string   `json:"last_primary_value"`
	PrimaryColumnName *string   `json:"primary_column_name"`
	LoadedAt          time.Time `json:"loaded_at"`
}

// Watermark is the effective starting point for a table's next cycle.
// Repaired is set when the stored record was corrupt (success with a primary
// column but a null value) and the value was recomputed from the target table.
type Watermark struct {
	Record   Record
	Value    string
	HasValue bool
	Repaired bool
}

// TrackerConfig configures a Tracker. Target must connect to the warehouse
// holding both the status table and the replicated tables.
type TrackerConfig struct {
	Log          logger.Logger            `errorTxt:"logger" mandatory:"yes"`
	Target       *rdbms.ConnectionManager `errorTxt:"target connection manager" mandatory:"yes"`
	TargetSchema string                   `errorTxt:"target schema" mandatory:"yes"`
}

// Tracker reads and writes load-status records. One Tracker is owned by one
// worker; parallel table cycles each get their own Tracker over their own
// ConnectionManager so writes to different table keys never contend in-process.
type Tracker struct {
	log    logger.Logger
	target *rdbms.ConnectionManager
	schema string
}

func NewTracker(cfg *TrackerConfig) (*Tracker, error) {
	if err := helper.ValidateStructIsPopulated(cfg); err != nil {
		return nil, err
	}
	return &Tracker{log: cfg.Log, target: cfg.Target, schema: cfg.TargetSchema}, nil
}

// EnsureStatusTable creates the status table and its read index if they do
// not exist. Safe to call on every run.
func (t *Tracker) EnsureStatusTable(ctx context.Context) error {
	ddl := fmt.Sprintf(`create table if not exists %v.%v (
id bigserial primary key,
table_name text not null,
load_status text not null,
rows_loaded bigint not null default 0,
last_primary_value text,
primary_column_name text,
loaded_at timestamptz not null default now())`,
		t.schema, constants.StatusTableName)
	if _, err := t.target.ExecuteWithRetry(ctx, ddl, nil, false); err != nil {
		return errors.Wrap(err, "unable to create load status table")
	}
	idx := fmt.Sprintf("create index if not exists idx_%v_latest on %v.%v (table_name, loaded_at desc)",
		constants.StatusTableName, t.schema, constants.StatusTableName)
	if _, err := t.target.ExecuteWithRetry(ctx, idx, nil, false); err != nil {
		return errors.Wrap(err, "unable to create load status index")
	}
	return nil
}

// GetWatermark returns the effective starting point for tableName's next
// cycle, or nil when no prior record exists. When the latest record is a
// success with a primary column but a null stored value, the true maximum of
// that column is computed from the target table and returned instead; the
// stored record is left untouched and the repair is persisted by the next
// successful RecordResult.
func (t *Tracker) GetWatermark(ctx context.Context, tableName string) (*Watermark, error) {
	rec, err := t.LatestRecord(ctx, tableName)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	w := &Watermark{Record: *rec}
	if rec.LastPrimaryValue != nil {
		w.Value = *rec.LastPrimaryValue
		w.HasValue = true
		return w, nil
	}
	if rec.LoadStatus == constants.LoadStatusSuccess && rec.PrimaryColumnName != nil {
		// Corrupt record: a successful load with a determinable primary
		// column must not have a null watermark. Recompute from the target
		// table contents without mutating stored state.
		t.log.Warn("load status for table ", tableName, " has a null watermark for column ",
			*rec.PrimaryColumnName, "; recomputing from target")
		val, ok, err := t.computeMax(ctx, tableName, *rec.PrimaryColumnName)
		if err != nil {
			return nil, err
		}
		w.Value = val
		w.HasValue = ok
		w.Repaired = ok
	}
	return w, nil
}

// Result is the outcome of one table cycle as reported by the replicator.
type Result struct {
	TableName         string
	Status            string
	RowsLoaded        int64
	LastPrimaryValue  *string
	PrimaryColumnName *string
}

// RecordResult appends a new load-status record. When the result is a success
// carrying a primary column but no watermark value, the value is recomputed
// from the target table before the write so the stored state never re-enters
// the corrupt configuration. A write failure here is fatal to the cycle.
func (t *Tracker) RecordResult(ctx context.Context, res Result) error {
	switch res.Status {
	case constants.LoadStatusSuccess, constants.LoadStatusFailed, constants.LoadStatusInProgress:
	default:
		return errors.Errorf("invalid load status %q for table %v", res.Status, res.TableName)
	}
	if res.Status == constants.LoadStatusSuccess && res.PrimaryColumnName != nil && res.LastPrimaryValue == nil {
		val, ok, err := t.computeMax(ctx, res.TableName, *res.PrimaryColumnName)
		if err != nil {
			return errors.Wrapf(err, "unable to repair watermark for table %v", res.TableName)
		}
		if ok {
			res.LastPrimaryValue = &val
		} else {
			// An empty target table has no maximum; the next cycle starts cold.
			t.log.Warn("target table ", res.TableName, " is empty; storing no watermark")
		}
	}
	ins := fmt.Sprintf(`insert into %v.%v (table_name, load_status, rows_loaded, last_primary_value, primary_column_name, loaded_at) values ($1,$2,$3,$4,$5,$6)`,
		t.schema, constants.StatusTableName)
	args := []interface{}{res.TableName, res.Status, res.RowsLoaded,
		strPtrToInterface(res.LastPrimaryValue), strPtrToInterface(res.PrimaryColumnName),
		time.Now().UTC()}
	if _, err := t.target.ExecuteWithRetry(ctx, ins, args, false); err != nil {
		return errors.Wrapf(err, "unable to record load status for table %v", res.TableName)
	}
	return nil
}

const recordColumns = "table_name, load_status, rows_loaded, last_primary_value, primary_column_name, loaded_at"

// LatestRecord returns the most recent record for tableName, or nil when the
// table has never been loaded.
func (t *Tracker) LatestRecord(ctx context.Context, tableName string) (*Record, error) {
	sqltext := fmt.Sprintf("select %v from %v.%v where table_name = $1 order by loaded_at desc limit 1",
		recordColumns, t.schema, constants.StatusTableName)
	recs, err := t.queryRecords(ctx, sqltext, []interface{}{tableName})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return &recs[0], nil
}

// LatestRecords returns the most recent record per table across the store,
// ordered by table name. This is the read path for the status command and
// the HTTP surface.
func (t *Tracker) LatestRecords(ctx context.Context) ([]Record, error) {
	sqltext := fmt.Sprintf("select distinct on (table_name) %v from %v.%v order by table_name, loaded_at desc",
		recordColumns, t.schema, constants.StatusTableName)
	return t.queryRecords(ctx, sqltext, nil)
}

func (t *Tracker) queryRecords(ctx context.Context, sqltext string, args []interface{}) ([]Record, error) {
	rows, err := t.target.QueryWithRetry(ctx, sqltext, args, false)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read load status records")
	}
	defer rows.Close()
	var recs []Record
	vals := make([]interface{}, 6)
	ptrs := make([]interface{}, 6)
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.Wrap(err, "unable to scan load status record")
		}
		rec, err := t.scanRecord(vals)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating load status records")
	}
	return recs, nil
}

func (t *Tracker) scanRecord(vals []interface{}) (Record, error) {
	rec := Record{
		TableName:  helper.GetStringFromInterface(t.log, vals[0]),
		LoadStatus: helper.GetStringFromInterface(t.log, vals[1]),
	}
	switch v := vals[2].(type) {
	case int64:
		rec.RowsLoaded = v
	case int:
		rec.RowsLoaded = int64(v)
	case nil:
	default:
		return rec, errors.Errorf("unexpected type %T for rows_loaded", vals[2])
	}
	if vals[3] != nil {
		s := helper.GetStringFromInterface(t.log, vals[3])
		rec.LastPrimaryValue = &s
	}
	if vals[4] != nil {
		s := helper.GetStringFromInterface(t.log, vals[4])
		rec.PrimaryColumnName = &s
	}
	switch v := vals[5].(type) {
	case time.Time:
		rec.LoadedAt = v
	case nil:
	default:
		return rec, errors.Errorf("unexpected type %T for loaded_at", vals[5])
	}
	return rec, nil
}

// computeMax fetches the current maximum of col in the target table. ok is
// false when the table is empty.
func (t *Tracker) computeMax(ctx context.Context, tableName, col string) (val string, ok bool, err error) {
	sqltext := fmt.Sprintf("select max(%v) from %v.%v", col, t.schema, tableName)
	rows, err := t.target.QueryWithRetry(ctx, sqltext, nil, false)
	if err != nil {
		return "", false, errors.Wrapf(err, "unable to compute max(%v) for table %v", col, tableName)
	}
	defer rows.Close()
	if !rows.Next() {
		return "", false, rows.Err()
	}
	var raw interface{}
	if err := rows.Scan(&raw); err != nil {
		return "", false, errors.Wrap(err, "unable to scan max value")
	}
	if raw == nil {
		return "", false, nil
	}
	return helper.GetStringFromInterface(t.log, raw), true, nil
}

// StrPtr returns a pointer to s, for building Result and Record literals.
func StrPtr(s string) *string {
	return &s
}

func strPtrToInterface(p *string) interface{} {
	if p == nil {
		return nil
	}
	return *p
}
