package cmd

import (
	"github.com/BenjaminRains/etlpipe/config"
	"github.com/BenjaminRains/etlpipe/logger"
	"github.com/BenjaminRains/etlpipe/rdbms"
)

// getConnectionManager resolves a logical connection name via the connections
// config (or its DSN environment variable override) and wraps it in a
// ConnectionManager. The database is not dialled until first use.
func getConnectionManager(log logger.Logger, connectionName string) (*rdbms.ConnectionManager, error) {
	details, err := config.Connections.LoadConnection(connectionName)
	if err != nil {
		return nil, err
	}
	return rdbms.NewConnectionManager(log, details), nil
}
