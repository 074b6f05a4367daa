package cmd

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/xo/dburl"

	"github.com/BenjaminRains/etlpipe/config"
	"github.com/BenjaminRains/etlpipe/constants"
	"github.com/BenjaminRains/etlpipe/rdbms/shared"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configure connections",
	Long: fmt.Sprintf(`Configure connections for use by the analyze and replicate actions where:

- Connections are stored in file %q
`, config.Connections.FullPath),
}

var configConnCmd = &cobra.Command{
	Use:   "connections",
	Short: "Configure connection details",
	Long: fmt.Sprintf(`Configure connections referred to by name from the analyze and replicate
actions where:

- Connections are stored in file %q
- An environment variable %v_<NAME>_DSN overrides the named entry at run time`,
		config.Connections.FullPath, constants.EnvVarPrefix),
}

var connAddCfg = struct {
	LogicalName string
	Dsn         string
	Force       bool
}{}

var configConnAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a database connection",
	Long: fmt.Sprintf(`Add a connection to the config store %q
by providing a DSN of the form:

mysql://<user>:<password>@<host>:<port>/<database>
postgres://<user>:<password>@<host>:<port>/<database>
`,
		config.Connections.FullPath),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runConnAdd()
	},
}

func runConnAdd() error {
	u, err := dburl.Parse(connAddCfg.Dsn)
	if err != nil {
		return errors.Wrapf(err, "unable to parse DSN for connection %q", connAddCfg.LogicalName)
	}
	switch u.Driver {
	case constants.ConnectionTypeMysql, constants.ConnectionTypePostgres:
	default:
		return errors.Errorf("unsupported connection type %q; use mysql or postgres", u.Driver)
	}
	if !connAddCfg.Force { // if existing connections must be preserved...
		var existing shared.ConnectionDetails
		if err := config.Connections.Get(connAddCfg.LogicalName, &existing); err == nil {
			return errors.Errorf("connection %q already exists; use --force to overwrite it", connAddCfg.LogicalName)
		}
	}
	details := shared.ConnectionDetails{
		Type:        u.Driver,
		LogicalName: connAddCfg.LogicalName,
		Data:        map[string]string{"dsn": connAddCfg.Dsn},
	}
	if err := config.Connections.Set(connAddCfg.LogicalName, details); err != nil {
		return err
	}
	fmt.Printf("connection %q saved to %v\n", connAddCfg.LogicalName, config.Connections.FullPath)
	return nil
}

var configConnListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print all connections",
	Long: fmt.Sprintf(`List connections stored in config store %q
by printing them all to STDOUT`,
		config.Connections.FullPath),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		d, err := config.Connections.GetAllKeys()
		if err != nil {
			return err
		}
		// Sort the slice of keys alphabetically.
		sort.Slice(d, func(i, j int) bool {
			return d[i] < d[j]
		})
		for _, k := range d { // for each key...
			conn := shared.ConnectionDetails{}
			if err := config.Connections.Get(k, &conn); err != nil {
				return err
			}
			fmt.Println(fmt.Sprintf(`%v:
%v`, k, conn))
		}
		return nil
	},
}

var connRemoveName string

var configConnRemoveCmd = &cobra.Command{
	Use:     "remove",
	Aliases: []string{"rm", "del", "delete"},
	Short:   "Remove a connection",
	Long:    fmt.Sprintf("Remove a connection from config file %q", config.Connections.FullPath),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return config.Connections.Delete(connRemoveName)
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configConnCmd)
	configConnCmd.AddCommand(configConnAddCmd)
	configConnAddCmd.Flags().SortFlags = false
	switches.addFlag(configConnAddCmd, &connAddCfg.LogicalName, "connection-name", "", true, "")
	switches.addFlag(configConnAddCmd, &connAddCfg.Dsn, "dsn", "", true, "")
	switches.addFlag(configConnAddCmd, &connAddCfg.Force, "force-connection", "", false, "")
	configConnCmd.AddCommand(configConnListCmd)
	configConnCmd.AddCommand(configConnRemoveCmd)
	configConnRemoveCmd.Flags().StringVarP(&connRemoveName, "connection-name", "c", "",
		"The connection name to remove")
	_ = configConnRemoveCmd.MarkFlagRequired("connection-name")
}
