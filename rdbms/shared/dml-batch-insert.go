package shared

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	h "github.com/BenjaminRains/etlpipe/helper"
)

// SqlInsertTxtBatch implements interface SqlStmtTxtBatcher and generates
// multi-row INSERT statements for batches of rows supplied.
type SqlInsertTxtBatch struct {
	SqlStatementGeneratorConfig // mandatory to be populated.
	sqlCoreCfg
	ColList []string // list of columns extracted from SqlStatementGeneratorConfig.
}

// NewInsertGenerator creates a new SqlStmtGenerator that implements interface SqlStmtTxtBatcher.
func (*DmlGeneratorTxtBatch) NewInsertGenerator(cfg *SqlStatementGeneratorConfig) SqlStmtGenerator {
	FixSqlStatementGeneratorConfig(cfg)
	cfg.Log.Debug("Creating NewInsertGenerator")
	o := &SqlInsertTxtBatch{SqlStatementGeneratorConfig: *cfg}
	o.setupSqlStatement()
	return o
}

func (o *SqlInsertTxtBatch) setupSqlStatement() {
	o.ColList = buildColList(&o.SqlStatementGeneratorConfig)
	o.sqlStmtTemplate = fmt.Sprintf("insert into %v%v%v (%v) values <VALUES>",
		o.OutputSchema, o.SchemaSeparator, o.OutputTable, strings.Join(o.ColList, ","))
	o.Log.Debug("setup INSERT generator with SQL (VALUES pending): ", o.sqlStmtTemplate)
}

func (o *SqlInsertTxtBatch) InitBatch(batchSize int) {
	o.batchSize = batchSize
	if o.previousNumRowsInBatch != o.batchSize { // if we have a new batch size and need to generate SQL...
		o.sqlStmt = o.sqlStmtTemplate // reset the sqlStmt from our template.
	}
	o.rowsInBatch = 0
	// Allocate a new buffer to hold all values (args) to exec.
	o.sqlValues = make([]interface{}, 0, o.batchSize*len(o.ColList))
}

func (o *SqlInsertTxtBatch) AddValuesToBatch(values []interface{}) (batchIsFull bool, err error) {
	if o.rowsInBatch >= o.batchSize {
		return true, errors.New("no more rows allowed in INSERT batch")
	}
	if len(values) != len(o.ColList) {
		return false, errors.New("the number of values supplied does not match the number of table columns")
	}
	o.sqlValues = append(o.sqlValues, values...)
	o.rowsInBatch++
	return o.rowsInBatch >= o.batchSize, nil
}

func (o *SqlInsertTxtBatch) GetValues() []interface{} {
	return o.sqlValues
}

func (o *SqlInsertTxtBatch) GetStatement() string {
	if o.previousNumRowsInBatch != o.batchSize { // if we have a new batch size and need to generate SQL...
		o.sqlStmt = strings.Replace(o.sqlStmt, "<VALUES>", buildBindRows(o.rowsInBatch, len(o.ColList)), 1)
		o.previousNumRowsInBatch = o.batchSize
	} // else the batch size is unchanged so we can use cached SQL...
	o.Log.Debug("SQL batch INSERT generated statement: ", o.sqlStmt)
	return o.sqlStmt
}

// buildColList flattens the ordered key and other column maps into one list,
// keys first.
func buildColList(cfg *SqlStatementGeneratorConfig) []string {
	numCols := cfg.TargetKeyCols.Len() + cfg.TargetOtherCols.Len()
	colList := make([]string, numCols)
	idx := 0
	h.OrderedMapValuesToStringSlice(cfg.Log, cfg.TargetKeyCols, &colList, &idx)
	h.OrderedMapValuesToStringSlice(cfg.Log, cfg.TargetOtherCols, &colList, &idx)
	return colList
}

// buildBindRows renders "($1,$2),($3,$4),..." for numRows rows of numCols values.
func buildBindRows(numRows int, numCols int) string {
	allRows := strings.Builder{}
	valIdx := 1
	for rowIdx := 1; rowIdx <= numRows; rowIdx++ { // for each row in the batch...
		row := strings.Builder{}
		for idy := 0; idy < numCols; idy++ { // for each field in the current row...
			row.WriteString(fmt.Sprintf(",$%v", valIdx))
			valIdx++
		}
		allRows.WriteString(fmt.Sprintf(",(%v)", strings.TrimLeft(row.String(), ",")))
	}
	return strings.TrimLeft(allRows.String(), ",")
}
