package rdbms

import (
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/xo/dburl"

	"github.com/BenjaminRains/etlpipe/constants"
	"github.com/BenjaminRains/etlpipe/logger"
	"github.com/BenjaminRains/etlpipe/rdbms/shared"
)

// OpenDbConnection opens a database connection using the supplied ConnectionDetails struct in c.
func OpenDbConnection(log logger.Logger, c shared.ConnectionDetails) (db shared.Connector, err error) {
	log.Debug("opening connection type ", c.Type, " with logicalName ", c.LogicalName) // don't log password details in c.Data!
	switch c.Type {
	case constants.ConnectionTypeMysql:
		db, err = newMysqlConnection(log, shared.GetDsnConnectionDetails(&c))
	case constants.ConnectionTypePostgres:
		db, err = newPostgresConnection(log, shared.GetDsnConnectionDetails(&c))
	case constants.ConnectionTypeMock:
		db, _ = shared.NewMockConnectionWithMockTx(log, constants.ConnectionTypeMock)
	default:
		err = fmt.Errorf("unsupported database type, %q", c.Type)
	}
	return
}

// newMysqlConnection opens the operational source database.
func newMysqlConnection(log logger.Logger, d *shared.DsnConnectionDetails) (shared.Connector, error) {
	log.Info("Opening database connection: ", d)
	u, err := dburl.Parse(d.Dsn)
	if err != nil { // if the DSN could not be parsed...
		return nil, fmt.Errorf("error parsing DSN %q: %w", d.String(), err)
	}
	conn := &shared.DbConnection{
		Dml:    &shared.DmlGeneratorTxtBatch{},
		DbType: constants.ConnectionTypeMysql,
	}
	// dburl renders the go-sql-driver DSN format from the URL form.
	conn.DbSql, err = sql.Open("mysql", u.DSN)
	if err != nil {
		return nil, err
	}
	if err = conn.DbSql.Ping(); err != nil {
		return nil, err
	}
	log.Info("Successful connection to: ", d)
	return conn, nil
}

// newPostgresConnection opens the analytics warehouse via the pgx stdlib driver.
func newPostgresConnection(log logger.Logger, d *shared.DsnConnectionDetails) (shared.Connector, error) {
	log.Info("Opening database connection: ", d)
	if _, err := dburl.Parse(d.Dsn); err != nil { // validate before handing to the driver...
		return nil, fmt.Errorf("error parsing DSN %q: %w", d.String(), err)
	}
	conn := &shared.DbConnection{
		Dml:    &shared.DmlGeneratorTxtBatch{},
		DbType: constants.ConnectionTypePostgres,
	}
	var err error
	conn.DbSql, err = sql.Open("pgx", d.Dsn) // pgx accepts the URL form directly.
	if err != nil {
		return nil, err
	}
	if err = conn.DbSql.Ping(); err != nil {
		return nil, err
	}
	log.Info("Successful connection to: ", d)
	return conn, nil
}
