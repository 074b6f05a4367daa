package shared

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	h "github.com/BenjaminRains/etlpipe/helper"
)

// SqlUpsertTxtBatch implements interface SqlStmtTxtBatcher and generates
// multi-row INSERT ... ON CONFLICT DO UPDATE statements keyed on the target
// table's primary key columns. This is the idempotent write used by the
// incremental load modes.
type SqlUpsertTxtBatch struct {
	SqlStatementGeneratorConfig // mandatory to be populated.
	sqlCoreCfg
	ColList []string // key columns followed by other columns.
	KeyList []string // just the key columns, used for the conflict target.
}

// NewUpsertGenerator creates a new SqlStmtGenerator that implements interface SqlStmtTxtBatcher.
func (*DmlGeneratorTxtBatch) NewUpsertGenerator(cfg *SqlStatementGeneratorConfig) SqlStmtGenerator {
	FixSqlStatementGeneratorConfig(cfg)
	cfg.Log.Debug("Creating NewUpsertGenerator")
	o := &SqlUpsertTxtBatch{SqlStatementGeneratorConfig: *cfg}
	o.setupSqlStatement()
	return o
}

func (o *SqlUpsertTxtBatch) setupSqlStatement() {
	o.ColList = buildColList(&o.SqlStatementGeneratorConfig)
	o.KeyList = make([]string, o.TargetKeyCols.Len())
	idx := 0
	h.OrderedMapValuesToStringSlice(o.Log, o.TargetKeyCols, &o.KeyList, &idx)
	// Non-key columns take the incoming row's value on conflict.
	setList := make([]string, 0, len(o.ColList)-len(o.KeyList))
	for _, col := range o.ColList[len(o.KeyList):] {
		setList = append(setList, fmt.Sprintf("%v = excluded.%v", col, col))
	}
	conflictAction := "do nothing"
	if len(setList) > 0 { // if the table has non-key columns to refresh...
		conflictAction = fmt.Sprintf("do update set %v", strings.Join(setList, ", "))
	}
	o.sqlStmtTemplate = fmt.Sprintf("insert into %v%v%v (%v) values <VALUES> on conflict (%v) %v",
		o.OutputSchema, o.SchemaSeparator, o.OutputTable,
		strings.Join(o.ColList, ","), strings.Join(o.KeyList, ","), conflictAction)
	o.Log.Debug("setup UPSERT generator with SQL (VALUES pending): ", o.sqlStmtTemplate)
}

func (o *SqlUpsertTxtBatch) InitBatch(batchSize int) {
	o.batchSize = batchSize
	if o.previousNumRowsInBatch != o.batchSize { // if we have a new batch size and need to generate SQL...
		o.sqlStmt = o.sqlStmtTemplate
	}
	o.rowsInBatch = 0
	o.sqlValues = make([]interface{}, 0, o.batchSize*len(o.ColList))
}

func (o *SqlUpsertTxtBatch) AddValuesToBatch(values []interface{}) (batchIsFull bool, err error) {
	if o.rowsInBatch >= o.batchSize {
		return true, errors.New("no more rows allowed in UPSERT batch")
	}
	if len(values) != len(o.ColList) {
		return false, errors.New("the number of values supplied does not match the number of table columns")
	}
	o.sqlValues = append(o.sqlValues, values...)
	o.rowsInBatch++
	return o.rowsInBatch >= o.batchSize, nil
}

func (o *SqlUpsertTxtBatch) GetValues() []interface{} {
	return o.sqlValues
}

func (o *SqlUpsertTxtBatch) GetStatement() string {
	if o.previousNumRowsInBatch != o.batchSize { // if we have a new batch size and need to generate SQL...
		o.sqlStmt = strings.Replace(o.sqlStmt, "<VALUES>", buildBindRows(o.rowsInBatch, len(o.ColList)), 1)
		o.previousNumRowsInBatch = o.batchSize
	}
	o.Log.Debug("SQL batch UPSERT generated statement: ", o.sqlStmt)
	return o.sqlStmt
}
