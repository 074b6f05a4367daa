package shared

import (
	om "github.com/cevaris/ordered_map"

	"github.com/BenjaminRains/etlpipe/logger"
)

// DmlGeneratorTxtBatch generates text-batch DML with PostgreSQL-style $n bind
// variables, the warehouse dialect all loads are written in.
type DmlGeneratorTxtBatch struct{}

type SqlStatementGeneratorConfig struct {
	Log             logger.Logger
	OutputSchema    string
	SchemaSeparator string
	OutputTable     string
	TargetKeyCols   *om.OrderedMap // ordered map of: key = field name; value = target table column name
	TargetOtherCols *om.OrderedMap // ordered map of: key = field name; value = target table column name
}

type sqlCoreCfg struct {
	sqlStmt                string
	sqlStmtTemplate        string
	sqlValues              []interface{} // slice to hold data values for all rows in batch
	batchSize              int
	rowsInBatch            int
	previousNumRowsInBatch int
}

// FixSqlStatementGeneratorConfig applies defaults and sanity checks before a
// generator is built from cfg.
func FixSqlStatementGeneratorConfig(cfg *SqlStatementGeneratorConfig) {
	if cfg.OutputTable == "" {
		cfg.Log.Fatal("Error, missing output table name.")
	}
	if cfg.OutputSchema == "" {
		cfg.SchemaSeparator = ""
		cfg.Log.Debug("No output schema supplied; setting a blank separator.")
	} else {
		cfg.SchemaSeparator = "."
	}
}
