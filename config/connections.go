package config

import (
	"fmt"

	"github.com/xo/dburl"

	"github.com/BenjaminRains/etlpipe/helper"
	"github.com/BenjaminRains/etlpipe/rdbms/shared"
)

// GetConnectionType returns the connection type by un-marshalling the connection into
// a shared.ConnectionDetails struct - so connections need to match that structure for now.
// Return an error if the key doesn't exist.
func (c *File) GetConnectionType(connectionName string) (connectionType string, err error) {
	d, err := c.LoadConnection(connectionName)
	if err != nil {
		return "", err
	}
	if d.Type == "" {
		return "", fmt.Errorf("unknown type for connection %q", connectionName)
	}
	return d.Type, nil
}

// GetConnectionDetails fetches generic connection details using the
// connectionName to do the lookup. If the connection is not found then an
// error is produced.
func (c *File) GetConnectionDetails(connectionName string) (*shared.ConnectionDetails, error) {
	d, err := c.LoadConnection(connectionName)
	if err != nil {
		return nil, err
	}
	if d.Type == "" { // if the connection was not found...
		return nil, fmt.Errorf("connection %q is not configured: use the 'config' command to create it", connectionName)
	}
	return &d, nil
}

// LoadConnection resolves a logical connection name. An ETL_<NAME>_DSN
// environment variable wins over the config file, so deployments can inject
// credentials without a config directory.
func (c *File) LoadConnection(connectionName string) (shared.ConnectionDetails, error) {
	if dsn, _ := helper.GetEnvVar(helper.GetDsnEnvVarName(connectionName), false); dsn != "" {
		return connectionFromDsn(connectionName, dsn)
	}
	d := shared.ConnectionDetails{}
	err := c.Get(connectionName, &d)
	if err != nil { // if there was an error fetching the connection from config...
		return d, err
	}
	return d, nil
}

// connectionFromDsn builds connection details from a DSN URL, deriving the
// connection type from the URL scheme.
func connectionFromDsn(connectionName, dsn string) (shared.ConnectionDetails, error) {
	d := shared.ConnectionDetails{}
	u, err := dburl.Parse(dsn)
	if err != nil {
		return d, fmt.Errorf("error parsing DSN from %v: %v", helper.GetDsnEnvVarName(connectionName), err)
	}
	d.Type = u.Driver
	d.LogicalName = connectionName
	d.Data = map[string]string{"dsn": dsn}
	return d, nil
}
