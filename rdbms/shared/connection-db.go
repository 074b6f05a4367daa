package shared

import (
	"context"
	"database/sql"
)

// DbConnection wraps Go native sql.DB and adds the DmlGenerator used by
// components that output records to a database table.
type DbConnection struct {
	DbSql  *sql.DB
	Dml    DmlGenerator
	DbType string
}

func (c *DbConnection) Begin() (Transacter, error) {
	tx, err := c.DbSql.Begin()
	return &DbTx{tx: tx}, err
}

func (c *DbConnection) Exec(query string, args ...interface{}) (Result, error) {
	return c.ExecContext(context.Background(), query, args...)
}

func (c *DbConnection) ExecContext(ctx context.Context, query string, args ...interface{}) (Result, error) {
	return c.DbSql.ExecContext(ctx, query, args...)
}

func (c *DbConnection) Query(query string, args ...interface{}) (Rows, error) {
	return c.QueryContext(context.Background(), query, args...)
}

func (c *DbConnection) QueryContext(ctx context.Context, query string, args ...interface{}) (Rows, error) {
	return c.DbSql.QueryContext(ctx, query, args...)
}

func (c *DbConnection) Close() {
	_ = c.DbSql.Close()
}

func (c *DbConnection) GetDmlGenerator() DmlGenerator {
	return c.Dml
}

func (c *DbConnection) GetType() string {
	return c.DbType
}

// DbTx adapts *sql.Tx to the Transacter interface.
type DbTx struct {
	tx *sql.Tx
}

func (t *DbTx) Exec(query string, args ...interface{}) (Result, error) {
	return t.ExecContext(context.Background(), query, args...)
}

func (t *DbTx) ExecContext(ctx context.Context, query string, args ...interface{}) (Result, error) {
	return t.tx.ExecContext(ctx, query, args...)
}

func (t *DbTx) Commit() error {
	return t.tx.Commit()
}

func (t *DbTx) Rollback() error {
	return t.tx.Rollback()
}
