package schema

import (
	"fmt"
	"time"

	"github.com/BenjaminRains/etlpipe/constants"
)

// TableConfig is the per-table replication contract published by the analyzer.
// The replicator treats it as immutable for the duration of one cycle; only
// extraction_strategy, batch_size, incremental_columns and
// primary_incremental_column are load-bearing, the rest is advisory metadata.
type TableConfig struct {
	TableName                string    `json:"table_name"`
	ExtractionStrategy       string    `json:"extraction_strategy"`
	BatchSize                int       `json:"batch_size"`
	IncrementalColumns       []string  `json:"incremental_columns"`
	PrimaryIncrementalColumn string    `json:"primary_incremental_column,omitempty"`
	PrimaryKeyColumns        []string  `json:"primary_key_columns,omitempty"`
	Columns                  []string  `json:"columns,omitempty"`
	EstimatedRowCount        int64     `json:"estimated_row_count,omitempty"`
	EstimatedSizeMb          float64   `json:"estimated_size_mb,omitempty"`
	SchemaHash               string    `json:"schema_hash,omitempty"`
	Priority                 bool      `json:"priority,omitempty"`
	AnalyzedAt               time.Time `json:"analyzed_at,omitempty"`
}

// Artifact is the analyzer's only externally visible output: one TableConfig
// per discoverable source table, keyed by table name.
type Artifact map[string]TableConfig

// ConfigurationError means a TableConfig violates its invariants. It fails
// publication for that single table only.
type ConfigurationError struct {
	TableName string
	Reason    string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid table config for %q: %v", e.TableName, e.Reason)
}

// Validate enforces the internal consistency required before a config is
// published or acted on.
func (c *TableConfig) Validate() error {
	if c.TableName == "" {
		return &ConfigurationError{TableName: c.TableName, Reason: "missing table name"}
	}
	switch c.ExtractionStrategy {
	case constants.StrategyFullTable, constants.StrategyIncremental, constants.StrategyIncrementalChunked:
	default:
		return &ConfigurationError{TableName: c.TableName, Reason: fmt.Sprintf("unknown extraction strategy %q", c.ExtractionStrategy)}
	}
	if c.BatchSize <= 0 {
		return &ConfigurationError{TableName: c.TableName, Reason: fmt.Sprintf("batch size must be positive, got %v", c.BatchSize)}
	}
	if c.PrimaryIncrementalColumn != "" && !contains(c.IncrementalColumns, c.PrimaryIncrementalColumn) {
		return &ConfigurationError{TableName: c.TableName,
			Reason: fmt.Sprintf("primary incremental column %q is not in the incremental column list %v", c.PrimaryIncrementalColumn, c.IncrementalColumns)}
	}
	if c.ExtractionStrategy != constants.StrategyFullTable {
		if c.PrimaryIncrementalColumn == "" {
			return &ConfigurationError{TableName: c.TableName, Reason: "incremental strategy requires a primary incremental column"}
		}
		if len(c.PrimaryKeyColumns) == 0 {
			return &ConfigurationError{TableName: c.TableName, Reason: "incremental strategy requires primary key columns for upserts"}
		}
	}
	return nil
}

// Validate checks every table config in the artifact.
func (a Artifact) Validate() error {
	for name, cfg := range a {
		if name != cfg.TableName {
			return &ConfigurationError{TableName: cfg.TableName, Reason: fmt.Sprintf("artifact key %q does not match table name", name)}
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// PriorityTables returns the names of tables flagged for the parallel-critical
// load path, sorted for deterministic scheduling.
func (a Artifact) PriorityTables() []string {
	return a.tableNames(func(c TableConfig) bool { return c.Priority })
}

// TableNames returns all table names in the artifact, sorted.
func (a Artifact) TableNames() []string {
	return a.tableNames(func(TableConfig) bool { return true })
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
