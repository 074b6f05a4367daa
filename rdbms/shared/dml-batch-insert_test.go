package shared

import (
	"testing"

	"github.com/cevaris/ordered_map"

	"github.com/BenjaminRains/etlpipe/logger"
)

func TestSqlInsertTxtBatch(t *testing.T) {
	log := logger.NewLogger("etlpipe", "error", false)

	omKeys := ordered_map.NewOrderedMap()
	omKeys.Set("patient_id", "patient_id")
	omCols := ordered_map.NewOrderedMap()
	omCols.Set("last_name", "last_name")
	omCols.Set("date_tstamp", "date_tstamp")

	db, _ := NewMockConnectionWithMockTx(log, "postgres")
	dml := db.GetDmlGenerator()
	o := dml.NewInsertGenerator(&SqlStatementGeneratorConfig{
		Log:             log,
		OutputSchema:    "raw",
		OutputTable:     "patient",
		TargetKeyCols:   omKeys,
		TargetOtherCols: omCols}).(SqlStmtTxtBatcher)

	o.InitBatch(2) // create a new batch with room for 2 rows...
	batchIsFull, err := o.AddValuesToBatch([]interface{}{1, "smith", "2024-01-10 00:00:00"})
	if err != nil {
		t.Fatal(err)
	}
	if batchIsFull {
		t.Fatal("batch should not be full after one of two rows")
	}
	batchIsFull, err = o.AddValuesToBatch([]interface{}{2, "jones", "2024-01-11 00:00:00"})
	if err != nil {
		t.Fatal(err)
	}
	if !batchIsFull {
		t.Fatal("batch should be full after two of two rows")
	}

	expected := "insert into raw.patient (patient_id,last_name,date_tstamp) values ($1,$2,$3),($4,$5,$6)"
	if got := o.GetStatement(); got != expected {
		t.Fatalf("unexpected SQL: got %q, expected %q", got, expected)
	}
	if len(o.GetValues()) != 6 {
		t.Fatalf("expected 6 values in batch, got %v", len(o.GetValues()))
	}

	// A third row must be rejected.
	if _, err = o.AddValuesToBatch([]interface{}{3, "doe", nil}); err == nil {
		t.Fatal("expected an error for a row added to a full batch")
	}

	// Mismatched value count must be rejected.
	o.InitBatch(1)
	if _, err = o.AddValuesToBatch([]interface{}{1, "smith"}); err == nil {
		t.Fatal("expected an error for a short row")
	}
}
