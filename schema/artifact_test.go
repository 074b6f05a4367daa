package schema

import (
	"path/filepath"
	"testing"

	"github.com/BenjaminRains/etlpipe/constants"
	"github.com/BenjaminRains/etlpipe/logger"
)

func testArtifact() Artifact {
	return Artifact{
		"patient": {
			TableName:                "patient",
			ExtractionStrategy:       constants.StrategyIncremental,
			BatchSize:                5000,
			IncrementalColumns:       []string{"date_tstamp", "sec_date_entry"},
			PrimaryIncrementalColumn: "date_tstamp",
			PrimaryKeyColumns:        []string{"patient_id"},
			Columns:                  []string{"patient_id", "last_name", "date_tstamp", "sec_date_entry"},
			EstimatedRowCount:        120000,
			SchemaHash:               "abc123",
		},
		"zipcode": {
			TableName:          "zipcode",
			ExtractionStrategy: constants.StrategyFullTable,
			BatchSize:          5000,
			Columns:            []string{"zip", "city"},
		},
	}
}

func TestArtifactRoundTrip(t *testing.T) {
	log := logger.NewLogger("etlpipe", "error", false)
	path := filepath.Join(t.TempDir(), "tables.yaml")
	a := testArtifact()

	if err := SaveArtifact(log, path, a); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadArtifact(log, path)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != len(a) {
		t.Fatal("expected ", len(a), " tables after round trip, got ", len(loaded))
	}
	p := loaded["patient"]
	if p.PrimaryIncrementalColumn != "date_tstamp" || p.BatchSize != 5000 {
		t.Fatalf("patient config corrupted by round trip: %+v", p)
	}
	if len(p.Columns) != 4 || p.Columns[0] != "patient_id" {
		t.Fatalf("patient column order corrupted by round trip: %v", p.Columns)
	}
}

func TestSaveArtifactRefusesInvalidConfig(t *testing.T) {
	log := logger.NewLogger("etlpipe", "error", false)
	path := filepath.Join(t.TempDir(), "tables.yaml")
	a := testArtifact()
	bad := a["patient"]
	bad.PrimaryIncrementalColumn = "not_a_member"
	a["patient"] = bad

	if err := SaveArtifact(log, path, a); err == nil {
		t.Fatal("expected publication of an inconsistent artifact to fail")
	}
}

func TestValidateStrategyRequirements(t *testing.T) {
	c := TableConfig{
		TableName:          "t1",
		ExtractionStrategy: constants.StrategyIncremental,
		BatchSize:          100,
		IncrementalColumns: []string{"updated_at"},
	}
	if err := c.Validate(); err == nil {
		t.Fatal("incremental config without a primary column must fail validation")
	}
	c.PrimaryIncrementalColumn = "updated_at"
	if err := c.Validate(); err == nil {
		t.Fatal("incremental config without primary key columns must fail validation")
	}
	c.PrimaryKeyColumns = []string{"id"}
	if err := c.Validate(); err != nil {
		t.Fatal("expected valid config, got: ", err)
	}
	c.BatchSize = 0
	if err := c.Validate(); err == nil {
		t.Fatal("non-positive batch size must fail validation")
	}
}

func TestPriorityTables(t *testing.T) {
	a := testArtifact()
	big := a["patient"]
	big.Priority = true
	a["patient"] = big
	got := a.PriorityTables()
	if len(got) != 1 || got[0] != "patient" {
		t.Fatal("unexpected priority tables: ", got)
	}
	all := a.TableNames()
	if len(all) != 2 || all[0] != "patient" || all[1] != "zipcode" {
		t.Fatal("unexpected sorted table names: ", all)
	}
}
