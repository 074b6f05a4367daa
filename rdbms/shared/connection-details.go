package shared

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/xo/dburl"
)

// ConnectionDetails holds credentials for a logical database connection.
// Data carries either a full "dsn" entry or the individual parts
// (host, port, database, user, password, schema).
type ConnectionDetails struct {
	Type        string            `json:"type" errorTxt:"database type" mandatory:"yes" yaml:"type"`
	LogicalName string            `json:"logicalName" errorTxt:"database logical name" mandatory:"yes" yaml:"logicalName"`
	Data        map[string]string `json:"data" yaml:"data"`
}

// String redacts passwords and pretty-prints the contents of ConnectionDetails.
func (c ConnectionDetails) String() string {
	x := make([]string, 0, len(c.Data)+1)
	x = append(x, fmt.Sprintf("  type = %v", c.Type))
	if v, ok := c.Data["dsn"]; ok { // if there's a DSN...
		u, err := dburl.Parse(v)
		if err != nil {
			panic(fmt.Sprintf("unexpected error while parsing DSN: %v", err))
		}
		x = append(x, fmt.Sprintf("  dsn = %v", u.Redacted()))
	} else { // else we have individual connection parts...
		for k, v := range c.Data {
			if k == "password" {
				v = "xxxxx"
			}
			x = append(x, fmt.Sprintf("  %v = %v", k, v))
		}
	}
	return strings.Join(x, "\n")
}

// GetSchema returns the schema (MySQL: database) that replication should target
// for this connection.
func (c ConnectionDetails) GetSchema() string {
	if s, ok := c.Data["schema"]; ok && s != "" {
		return s
	}
	return c.Data["database"]
}

// DsnConnectionDetails is the resolved form handed to the connection openers.
type DsnConnectionDetails struct {
	Dsn            string `errorTxt:"DSN" mandatory:"yes"`
	OriginalScheme string
}

func (d DsnConnectionDetails) String() string {
	u, err := dburl.Parse(d.Dsn)
	if err != nil {
		return d.Dsn
	}
	return u.Redacted()
}

// GetDsnConnectionDetails builds a DsnConnectionDetails from c: either the
// supplied "dsn" value verbatim, or a URL assembled from the individual parts
// using the connection type as the scheme.
func GetDsnConnectionDetails(c *ConnectionDetails) *DsnConnectionDetails {
	if v, ok := c.Data["dsn"]; ok && v != "" {
		return &DsnConnectionDetails{Dsn: v, OriginalScheme: c.Type}
	}
	u := url.URL{
		Scheme: c.Type,
		User:   url.UserPassword(c.Data["user"], c.Data["password"]),
		Host:   fmt.Sprintf("%v:%v", c.Data["host"], c.Data["port"]),
		Path:   "/" + c.Data["database"],
	}
	return &DsnConnectionDetails{Dsn: u.String(), OriginalScheme: c.Type}
}

// DBConnections is used by the config file and pipeline definitions.
type DBConnections map[string]ConnectionDetails
