package status

import (
	"strings"
	"testing"
	"time"

	"golang.org/x/net/context"

	"github.com/BenjaminRains/etlpipe/constants"
	"github.com/BenjaminRains/etlpipe/logger"
	"github.com/BenjaminRains/etlpipe/rdbms"
	"github.com/BenjaminRains/etlpipe/rdbms/shared"
)

var testLog = logger.NewLogger("etlpipe", "error", false)

func newTestTracker(t *testing.T) (*Tracker, *shared.MockConnection) {
	t.Helper()
	db, _ := shared.NewMockConnectionWithMockTx(testLog, constants.ConnectionTypePostgres)
	m := rdbms.NewConnectionManagerWithConnector(testLog, db)
	m.SetRetryPolicy(1, time.Millisecond)
	tracker, err := NewTracker(&TrackerConfig{Log: testLog, Target: m, TargetSchema: "raw"})
	if err != nil {
		t.Fatal("unexpected error building tracker: ", err)
	}
	return tracker, db
}

func statusRow(table, status string, rows int64, lastVal, primaryCol interface{}, loadedAt time.Time) []interface{} {
	return []interface{}{table, status, rows, lastVal, primaryCol, loadedAt}
}

func TestNewTrackerValidatesConfig(t *testing.T) {
	if _, err := NewTracker(&TrackerConfig{Log: testLog}); err == nil {
		t.Fatal("expected an error for an unpopulated tracker config")
	}
}

func TestEnsureStatusTable(t *testing.T) {
	tracker, db := newTestTracker(t)
	if err := tracker.EnsureStatusTable(context.Background()); err != nil {
		t.Fatal("unexpected error: ", err)
	}
	log := db.ExecLog()
	if len(log) != 2 {
		t.Fatal("expected 2 statements, got ", len(log))
	}
	if !strings.Contains(log[0], "create table if not exists raw.etl_load_status") {
		t.Fatal("unexpected DDL: ", log[0])
	}
	if !strings.Contains(log[1], "create index if not exists") {
		t.Fatal("unexpected index DDL: ", log[1])
	}
}

func TestGetWatermarkNoPriorRecord(t *testing.T) {
	tracker, _ := newTestTracker(t)
	w, err := tracker.GetWatermark(context.Background(), "patient")
	if err != nil {
		t.Fatal("unexpected error: ", err)
	}
	if w != nil {
		t.Fatal("expected nil watermark for a never-loaded table, got ", w)
	}
}

func TestGetWatermarkHealthyRecord(t *testing.T) {
	tracker, db := newTestTracker(t)
	loadedAt := time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)
	db.QueueResultSet(strings.Split(recordColumns, ", "),
		[][]interface{}{statusRow("appointment", constants.LoadStatusSuccess, 1500, "2024-02-29 18:45:00", "date_tstamp", loadedAt)})
	w, err := tracker.GetWatermark(context.Background(), "appointment")
	if err != nil {
		t.Fatal("unexpected error: ", err)
	}
	if !w.HasValue || w.Value != "2024-02-29 18:45:00" {
		t.Fatal("unexpected watermark: ", w)
	}
	if w.Repaired {
		t.Fatal("healthy record must not be reported as repaired")
	}
	if w.Record.RowsLoaded != 1500 || !w.Record.LoadedAt.Equal(loadedAt) {
		t.Fatal("record fields not carried through: ", w.Record)
	}
}

// A success record with a primary column but a null stored value is the
// corruption case: the watermark is recomputed from the target table and
// returned, without touching the stored record.
func TestGetWatermarkRepairsNullValueOnRead(t *testing.T) {
	tracker, db := newTestTracker(t)
	corrupt := statusRow("t2", constants.LoadStatusSuccess, 900, nil, "id", time.Now().UTC())
	db.QueueResultSet(strings.Split(recordColumns, ", "), [][]interface{}{corrupt})
	db.QueueResultSet([]string{"max"}, [][]interface{}{{int64(9321)}})

	w, err := tracker.GetWatermark(context.Background(), "t2")
	if err != nil {
		t.Fatal("unexpected error: ", err)
	}
	if !w.HasValue || w.Value != "9321" {
		t.Fatal("expected repaired watermark 9321, got ", w)
	}
	if !w.Repaired {
		t.Fatal("expected the watermark to be flagged as repaired")
	}
	for _, sql := range db.ExecLog() {
		if strings.Contains(sql, "insert") || strings.Contains(sql, "update") {
			t.Fatal("repair on read must not persist anything, saw: ", sql)
		}
	}

	// Idempotent: a second read against the same stored state repairs again
	// to the same value.
	db.QueueResultSet(strings.Split(recordColumns, ", "), [][]interface{}{corrupt})
	db.QueueResultSet([]string{"max"}, [][]interface{}{{int64(9321)}})
	w2, err := tracker.GetWatermark(context.Background(), "t2")
	if err != nil {
		t.Fatal("unexpected error: ", err)
	}
	if w2.Value != w.Value {
		t.Fatal("repair is not idempotent: ", w.Value, " vs ", w2.Value)
	}
}

// Failed records keep whatever watermark they carried forward; a null value
// on a failed record is not the corruption case and is not repaired.
func TestGetWatermarkFailedRecordNotRepaired(t *testing.T) {
	tracker, db := newTestTracker(t)
	db.QueueResultSet(strings.Split(recordColumns, ", "),
		[][]interface{}{statusRow("claim", constants.LoadStatusFailed, 0, nil, "sec_date_t_edit", time.Now().UTC())})
	w, err := tracker.GetWatermark(context.Background(), "claim")
	if err != nil {
		t.Fatal("unexpected error: ", err)
	}
	if w.HasValue || w.Repaired {
		t.Fatal("failed record must not be repaired: ", w)
	}
	if len(db.ExecLog()) != 1 {
		t.Fatal("expected only the record read, got ", db.ExecLog())
	}
}

func TestRecordResultPersistsSuppliedWatermark(t *testing.T) {
	tracker, db := newTestTracker(t)
	res := Result{
		TableName:         "appointment",
		Status:            constants.LoadStatusSuccess,
		RowsLoaded:        1500,
		LastPrimaryValue:  StrPtr("2024-02-29 18:45:00"),
		PrimaryColumnName: StrPtr("date_tstamp"),
	}
	if err := tracker.RecordResult(context.Background(), res); err != nil {
		t.Fatal("unexpected error: ", err)
	}
	log := db.ExecLog()
	if len(log) != 1 || !strings.Contains(log[0], "insert into raw.etl_load_status") {
		t.Fatal("expected a single insert, got ", log)
	}
	args := db.ArgsLog()[0]
	if args[0] != "appointment" || args[1] != constants.LoadStatusSuccess {
		t.Fatal("unexpected insert args: ", args)
	}
	if args[3] != "2024-02-29 18:45:00" || args[4] != "date_tstamp" {
		t.Fatal("watermark args not persisted: ", args)
	}
}

// A success reported with a primary column but no watermark value triggers the
// write-path repair: the maximum is computed from the target table and the
// insert carries the computed value, never a null.
func TestRecordResultRepairsNullValueOnWrite(t *testing.T) {
	tracker, db := newTestTracker(t)
	db.QueueResultSet([]string{"max"}, [][]interface{}{{int64(9321)}})
	res := Result{
		TableName:         "t2",
		Status:            constants.LoadStatusSuccess,
		RowsLoaded:        900,
		PrimaryColumnName: StrPtr("id"),
	}
	if err := tracker.RecordResult(context.Background(), res); err != nil {
		t.Fatal("unexpected error: ", err)
	}
	log := db.ExecLog()
	if len(log) != 2 {
		t.Fatal("expected max query then insert, got ", log)
	}
	if !strings.Contains(log[0], "select max(id) from raw.t2") {
		t.Fatal("unexpected repair query: ", log[0])
	}
	args := db.ArgsLog()[1]
	if args[3] != "9321" {
		t.Fatal("expected repaired watermark 9321 in insert args, got ", args)
	}
}

// Once the write path enforces the invariant, a corrupt stored record becomes
// unreachable: a repair on read followed by a successful write leaves the
// latest record with a non-null watermark, and the next read finds it
// directly with no recompute.
func TestCorruptionUnreachableAfterSuccessfulWrite(t *testing.T) {
	tracker, db := newTestTracker(t)
	corrupt := statusRow("t2", constants.LoadStatusSuccess, 900, nil, "id", time.Now().UTC())
	db.QueueResultSet(strings.Split(recordColumns, ", "), [][]interface{}{corrupt})
	db.QueueResultSet([]string{"max"}, [][]interface{}{{int64(9321)}})
	w, err := tracker.GetWatermark(context.Background(), "t2")
	if err != nil {
		t.Fatal("unexpected error: ", err)
	}

	res := Result{
		TableName:         "t2",
		Status:            constants.LoadStatusSuccess,
		RowsLoaded:        25,
		LastPrimaryValue:  StrPtr(w.Value),
		PrimaryColumnName: StrPtr("id"),
	}
	if err := tracker.RecordResult(context.Background(), res); err != nil {
		t.Fatal("unexpected error: ", err)
	}

	preReads := len(db.ExecLog())
	db.QueueResultSet(strings.Split(recordColumns, ", "),
		[][]interface{}{statusRow("t2", constants.LoadStatusSuccess, 25, "9321", "id", time.Now().UTC())})
	w2, err := tracker.GetWatermark(context.Background(), "t2")
	if err != nil {
		t.Fatal("unexpected error: ", err)
	}
	if !w2.HasValue || w2.Value != "9321" || w2.Repaired {
		t.Fatal("expected a healthy stored watermark, got ", w2)
	}
	if got := len(db.ExecLog()) - preReads; got != 1 {
		t.Fatal("expected a single record read with no recompute, got ", got, " statements")
	}
}

// An empty target table has no maximum; the repair stores no watermark and
// the next cycle starts cold rather than inventing a value.
func TestRecordResultEmptyTargetStoresNoWatermark(t *testing.T) {
	tracker, db := newTestTracker(t)
	db.QueueResultSet([]string{"max"}, [][]interface{}{{nil}})
	res := Result{
		TableName:         "zipcode",
		Status:            constants.LoadStatusSuccess,
		PrimaryColumnName: StrPtr("zipcode_id"),
	}
	if err := tracker.RecordResult(context.Background(), res); err != nil {
		t.Fatal("unexpected error: ", err)
	}
	args := db.ArgsLog()[1]
	if args[3] != nil {
		t.Fatal("expected nil watermark for an empty target table, got ", args[3])
	}
}

func TestRecordResultRejectsInvalidStatus(t *testing.T) {
	tracker, db := newTestTracker(t)
	err := tracker.RecordResult(context.Background(), Result{TableName: "patient", Status: "done"})
	if err == nil {
		t.Fatal("expected an error for an invalid status")
	}
	if len(db.ExecLog()) != 0 {
		t.Fatal("nothing should be written for an invalid status")
	}
}

func TestLatestRecords(t *testing.T) {
	tracker, db := newTestTracker(t)
	loadedAt := time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)
	db.QueueResultSet(strings.Split(recordColumns, ", "), [][]interface{}{
		statusRow("appointment", constants.LoadStatusSuccess, 1500, "2024-02-29 18:45:00", "date_tstamp", loadedAt),
		statusRow("zipcode", constants.LoadStatusSuccess, 400, nil, nil, loadedAt),
	})
	recs, err := tracker.LatestRecords(context.Background())
	if err != nil {
		t.Fatal("unexpected error: ", err)
	}
	if len(recs) != 2 {
		t.Fatal("expected 2 records, got ", len(recs))
	}
	sql := db.ExecLog()[0]
	if !strings.Contains(sql, "distinct on (table_name)") {
		t.Fatal("expected a distinct-on read, got ", sql)
	}
	if recs[0].TableName != "appointment" || *recs[0].LastPrimaryValue != "2024-02-29 18:45:00" {
		t.Fatal("unexpected first record: ", recs[0])
	}
	if recs[1].LastPrimaryValue != nil || recs[1].PrimaryColumnName != nil {
		t.Fatal("expected nil watermark fields for zipcode: ", recs[1])
	}
}
