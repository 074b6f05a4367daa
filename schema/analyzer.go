package schema

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/context"

	"github.com/BenjaminRains/etlpipe/constants"
	"github.com/BenjaminRains/etlpipe/logger"
	"github.com/BenjaminRains/etlpipe/rdbms"
)

// Consolidated catalog queries: one pass per concern for the whole schema,
// so discovery stays linear in the number of tables.
const (
	sqlTableStats = "select table_name, coalesce(table_rows, 0), coalesce(avg_row_length, 0), coalesce(data_length, 0) " +
		"from information_schema.tables where table_schema = ? and table_type = 'BASE TABLE' order by table_name"
	sqlColumns = "select table_name, column_name, data_type, is_nullable, column_key, coalesce(extra, '') " +
		"from information_schema.columns where table_schema = ? order by table_name, ordinal_position"
	sqlIndexedColumns = "select distinct table_name, column_name " +
		"from information_schema.statistics where table_schema = ? and seq_in_index = 1"
)

// lastModifiedNames are column names conventionally holding a row's last
// change time, best first.
var lastModifiedNames = []string{"date_tstamp", "sec_date_t_edit", "updated_at", "last_modified", "modified_at"}

var lastModifiedPattern = regexp.MustCompile(`(?i)(updated|modified|edit|tstamp)`)

type AnalyzerConfig struct {
	Log               logger.Logger
	Source            *rdbms.ConnectionManager
	SourceSchema      string
	NullRateThreshold float64  // defaults to constants.NullRateThreshold
	SmallTableRows    int64    // defaults to constants.SmallTableRowThreshold
	ChunkingRows      int64    // defaults to constants.ChunkingRowThreshold
	TargetBatchBytes  int64    // defaults to constants.TargetBatchMemoryBytes
	Previous          Artifact // previous run's artifact, used for drift detection; may be nil
}

// Analyzer introspects the source catalog and produces one TableConfig per
// discoverable table.
type Analyzer struct {
	log               logger.Logger
	source            *rdbms.ConnectionManager
	schemaName        string
	nullRateThreshold float64
	smallTableRows    int64
	chunkingRows      int64
	targetBatchBytes  int64
	previous          Artifact
}

func NewAnalyzer(cfg *AnalyzerConfig) *Analyzer {
	if cfg.Log == nil || cfg.Source == nil || cfg.SourceSchema == "" {
		panic("missing mandatory fields in call to NewAnalyzer")
	}
	a := &Analyzer{
		log:               cfg.Log,
		source:            cfg.Source,
		schemaName:        cfg.SourceSchema,
		nullRateThreshold: cfg.NullRateThreshold,
		smallTableRows:    cfg.SmallTableRows,
		chunkingRows:      cfg.ChunkingRows,
		targetBatchBytes:  cfg.TargetBatchBytes,
		previous:          cfg.Previous,
	}
	if a.nullRateThreshold == 0 {
		a.nullRateThreshold = constants.NullRateThreshold
	}
	if a.smallTableRows == 0 {
		a.smallTableRows = constants.SmallTableRowThreshold
	}
	if a.chunkingRows == 0 {
		a.chunkingRows = constants.ChunkingRowThreshold
	}
	if a.targetBatchBytes == 0 {
		a.targetBatchBytes = constants.TargetBatchMemoryBytes
	}
	return a
}

type tableStats struct {
	rowCount   int64
	avgRowLen  int64
	dataLength int64
}

type candidate struct {
	name      string
	hasIndex  bool
	nameScore int
	nullRate  float64
}

// Analyze produces the artifact for all discoverable tables. A failure while
// analyzing one table drops that table from the artifact and is returned in
// the error slice; it never aborts the whole analysis.
func (a *Analyzer) Analyze(ctx context.Context) (Artifact, []error) {
	stats, names, err := a.tableStats(ctx)
	if err != nil {
		return nil, []error{err}
	}
	columns, err := a.tableColumns(ctx)
	if err != nil {
		return nil, []error{err}
	}
	indexed, err := a.indexedColumns(ctx)
	if err != nil {
		return nil, []error{err}
	}

	artifact := make(Artifact, len(names))
	var tableErrs []error
	for _, name := range names { // for each discovered table...
		cfg, err := a.analyzeTable(ctx, name, stats[name], columns[name], indexed[name])
		if err == nil {
			err = cfg.Validate() // publish gate: never emit an inconsistent config.
		}
		if err != nil {
			a.log.Error("analysis failed for table ", name, ": ", err)
			tableErrs = append(tableErrs, err)
			continue
		}
		a.checkDrift(name, cfg.SchemaHash)
		artifact[name] = *cfg
	}
	a.log.Info("analyzed ", len(names), " tables: ", len(artifact), " published, ", len(tableErrs), " failed")
	return artifact, tableErrs
}

func (a *Analyzer) analyzeTable(ctx context.Context, name string, st tableStats, cols []columnMeta, indexed map[string]bool) (*TableConfig, error) {
	if len(cols) == 0 {
		return nil, &ConfigurationError{TableName: name, Reason: "no columns found in catalog"}
	}
	cands := a.enumerateCandidates(cols, indexed)
	if len(cands) > 0 {
		if err := a.measureNullRates(ctx, name, cands); err != nil {
			return nil, err
		}
	}
	rankCandidates(cands)

	cfg := &TableConfig{
		TableName:          name,
		IncrementalColumns: candidateNames(cands),
		PrimaryKeyColumns:  primaryKeyColumns(cols),
		Columns:            columnNames(cols),
		EstimatedRowCount:  st.rowCount,
		EstimatedSizeMb:    float64(st.dataLength) / (1024 * 1024),
		SchemaHash:         schemaHash(cols),
		AnalyzedAt:         time.Now().UTC(),
	}

	// Pick the top-ranked candidate with an acceptable null rate.
	primary := ""
	for _, c := range cands {
		if c.nullRate <= a.nullRateThreshold {
			primary = c.name
			break
		}
	}

	switch {
	case st.rowCount < a.smallTableRows:
		// Small tables are cheap to reload wholesale; leave the column unset.
		cfg.ExtractionStrategy = constants.StrategyFullTable
	case primary == "":
		cfg.ExtractionStrategy = constants.StrategyFullTable
	case len(cfg.PrimaryKeyColumns) == 0:
		// No key to upsert on, so incremental writes cannot be idempotent.
		a.log.Debug("table ", name, " has no primary key; forcing full refresh despite candidate ", primary)
		cfg.ExtractionStrategy = constants.StrategyFullTable
	case st.rowCount > a.chunkingRows:
		cfg.ExtractionStrategy = constants.StrategyIncrementalChunked
		cfg.PrimaryIncrementalColumn = primary
		cfg.Priority = true // the biggest tables go through the parallel-critical path.
	default:
		cfg.ExtractionStrategy = constants.StrategyIncremental
		cfg.PrimaryIncrementalColumn = primary
	}

	cfg.BatchSize = a.batchSize(cfg.ExtractionStrategy, st)
	return cfg, nil
}

// batchSize keeps one chunked batch under the target memory footprint given
// the table's average row width.
func (a *Analyzer) batchSize(strategy string, st tableStats) int {
	if strategy != constants.StrategyIncrementalChunked {
		return constants.BatchSizeDefault
	}
	avg := st.avgRowLen
	if avg <= 0 {
		avg = 1
	}
	size := int(a.targetBatchBytes / avg)
	if size < constants.BatchSizeMin {
		size = constants.BatchSizeMin
	}
	if size > constants.BatchSizeMax {
		size = constants.BatchSizeMax
	}
	return size
}

// enumerateCandidates returns the columns usable for incremental filtering:
// timestamp/date types plus monotonically-assigned integers.
func (a *Analyzer) enumerateCandidates(cols []columnMeta, indexed map[string]bool) []*candidate {
	var cands []*candidate
	for _, c := range cols {
		if !isTimestampType(c.dataType) && !isMonotonicInteger(c) {
			continue
		}
		cands = append(cands, &candidate{
			name:      c.name,
			hasIndex:  indexed[c.name] || c.columnKey == "PRI",
			nameScore: nameScore(c.name),
		})
	}
	return cands
}

// measureNullRates issues one consolidated query per table covering all
// candidate columns. Rate-limited: this scans the live source.
func (a *Analyzer) measureNullRates(ctx context.Context, table string, cands []*candidate) error {
	exprs := make([]string, len(cands))
	for i, c := range cands {
		exprs[i] = fmt.Sprintf("avg(%v is null)", c.name)
	}
	st := rdbms.NewSchemaTable(a.schemaName, table)
	sqltext := fmt.Sprintf("select %v from %v", strings.Join(exprs, ", "), st.String())
	h := &nullRateHandler{}
	if err := rdbms.SqlQuery(ctx, a.log, a.source, sqltext, nil, true, h); err != nil {
		return err
	}
	if len(h.rates) != len(cands) { // empty table: no row comes back from some engines...
		return nil // leave the zero null rates in place.
	}
	for i, c := range cands {
		c.nullRate = h.rates[i]
	}
	return nil
}

type nullRateHandler struct {
	rates []float64
}

func (h *nullRateHandler) HandleHeader(cols []string) error { return nil }

func (h *nullRateHandler) HandleRow(row []interface{}) error {
	h.rates = make([]float64, len(row))
	for i, v := range row {
		h.rates[i] = parseRate(v)
	}
	return nil
}

// parseRate copes with drivers returning aggregates as decimal text, float or null.
func parseRate(v interface{}) float64 {
	switch x := v.(type) {
	case nil:
		return 0
	case float64:
		return x
	case []uint8:
		f, err := strconv.ParseFloat(string(x), 64)
		if err != nil {
			return 0
		}
		return f
	case int64:
		return float64(x)
	default:
		return 0
	}
}

// rankCandidates orders by index presence, then last-modified name patterns,
// then lower null rate. Name is the final tiebreak so output is stable.
func rankCandidates(cands []*candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].hasIndex != cands[j].hasIndex {
			return cands[i].hasIndex
		}
		if cands[i].nameScore != cands[j].nameScore {
			return cands[i].nameScore > cands[j].nameScore
		}
		if cands[i].nullRate != cands[j].nullRate {
			return cands[i].nullRate < cands[j].nullRate
		}
		return cands[i].name < cands[j].name
	})
}

func nameScore(name string) int {
	lower := strings.ToLower(name)
	for _, n := range lastModifiedNames {
		if lower == n {
			return 2
		}
	}
	if lastModifiedPattern.MatchString(lower) {
		return 1
	}
	return 0
}

func isTimestampType(dataType string) bool {
	switch strings.ToLower(dataType) {
	case "timestamp", "datetime", "date":
		return true
	}
	return false
}

func isMonotonicInteger(c columnMeta) bool {
	switch strings.ToLower(c.dataType) {
	case "int", "bigint", "mediumint", "smallint":
		return strings.Contains(strings.ToLower(c.extra), "auto_increment")
	}
	return false
}

func (a *Analyzer) checkDrift(table string, hash string) {
	if a.previous == nil {
		return
	}
	prev, ok := a.previous[table]
	if !ok || prev.SchemaHash == "" {
		return
	}
	if prev.SchemaHash != hash { // structural drift is flagged, never blocking.
		a.log.Warn("schema drift detected for table ", table, ": hash changed from ", prev.SchemaHash, " to ", hash)
	}
}

func (a *Analyzer) tableStats(ctx context.Context) (map[string]tableStats, []string, error) {
	rows, err := a.source.QueryWithRetry(ctx, sqlTableStats, []interface{}{a.schemaName}, true)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = rows.Close() }()
	stats := make(map[string]tableStats)
	var names []string
	for rows.Next() {
		var name string
		var st tableStats
		if err := rows.Scan(&name, &st.rowCount, &st.avgRowLen, &st.dataLength); err != nil {
			return nil, nil, err
		}
		stats[name] = st
		names = append(names, name)
	}
	return stats, names, rows.Err()
}

func (a *Analyzer) tableColumns(ctx context.Context) (map[string][]columnMeta, error) {
	rows, err := a.source.QueryWithRetry(ctx, sqlColumns, []interface{}{a.schemaName}, true)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	columns := make(map[string][]columnMeta)
	for rows.Next() {
		var table string
		var c columnMeta
		if err := rows.Scan(&table, &c.name, &c.dataType, &c.isNullable, &c.columnKey, &c.extra); err != nil {
			return nil, err
		}
		columns[table] = append(columns[table], c)
	}
	return columns, rows.Err()
}

func (a *Analyzer) indexedColumns(ctx context.Context) (map[string]map[string]bool, error) {
	rows, err := a.source.QueryWithRetry(ctx, sqlIndexedColumns, []interface{}{a.schemaName}, true)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	indexed := make(map[string]map[string]bool)
	for rows.Next() {
		var table, col string
		if err := rows.Scan(&table, &col); err != nil {
			return nil, err
		}
		if indexed[table] == nil {
			indexed[table] = make(map[string]bool)
		}
		indexed[table][col] = true
	}
	return indexed, rows.Err()
}

func candidateNames(cands []*candidate) []string {
	names := make([]string, len(cands))
	for i, c := range cands {
		names[i] = c.name
	}
	return names
}

func primaryKeyColumns(cols []columnMeta) []string {
	var pk []string
	for _, c := range cols {
		if c.columnKey == "PRI" {
			pk = append(pk, c.name)
		}
	}
	return pk
}

func columnNames(cols []columnMeta) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.name
	}
	return names
}
