package constants

import "time"

// Extraction strategies published in the table configuration artifact.
const (
	StrategyFullTable          = "full_table"
	StrategyIncremental        = "incremental"
	StrategyIncrementalChunked = "incremental_chunked"
)

// Load cycle outcomes recorded by the status tracker.
const (
	LoadStatusSuccess    = "success"
	LoadStatusFailed     = "failed"
	LoadStatusInProgress = "in_progress"
)

// Connection types supported by rdbms.OpenDbConnection.
const (
	ConnectionTypeMysql    = "mysql"
	ConnectionTypePostgres = "postgres"
	ConnectionTypeMock     = "mock"
)

const (
	// Batch sizing defaults used by the schema analyzer.
	BatchSizeDefault       = 5000
	BatchSizeMin           = 500
	BatchSizeMax           = 50000
	TargetBatchMemoryBytes = 64 * 1024 * 1024

	// Strategy selection thresholds.
	SmallTableRowThreshold = 10000
	ChunkingRowThreshold   = 1000000
	NullRateThreshold      = 0.05

	// ConnectionManager retry and pacing.
	RetryMaxAttempts     = 3
	RetryBackoffStart    = 500 * time.Millisecond
	RateLimitMinInterval = 100 * time.Millisecond

	// Parallel-critical worker pool bounds.
	ParallelWorkersDefault = 4
	ParallelWorkersMax     = 8

	// Warehouse table holding one row per completed load cycle.
	StatusTableName = "etl_load_status"

	StatsCaptureFrequencySeconds = 5
	// Watermark encoding for time values. Matches the literal form MySQL and
	// Postgres accept in comparisons against datetime/timestamp columns.
	TimeFormatSqlDateTime = "2006-01-02 15:04:05"

	EnvVarPrefix = "ETL" // prefix for DSN override environment variables
)
