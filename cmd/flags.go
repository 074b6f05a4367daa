package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

type cliFlag struct {
	name      string // name of flag
	shortHand string // single character name for the flag
	desc      string // description of the flag; the long text
}

type cliFlags map[string]cliFlag

var switches = cliFlags{
	"connection-name": cliFlag{name: "connection-name", shortHand: "c",
		desc: "Connection name referred to by analyze and replicate actions"},
	"dsn": cliFlag{name: "dsn", shortHand: "d",
		desc: "Connect string of the form <driver>://<user>:<password>@<host>:<port>/<database>"},
	"force-connection": cliFlag{name: "force", shortHand: "f",
		desc: "Allow overwrite of existing connections"},
	"source": cliFlag{name: "source", shortHand: "s",
		desc: "Source connection name as stored by 'config connections add'"},
	"target": cliFlag{name: "target", shortHand: "t",
		desc: "Target connection name as stored by 'config connections add'"},
	"source-schema": cliFlag{name: "source-schema", shortHand: "S",
		desc: "Schema (database) on the source that holds the tables to replicate"},
	"target-schema": cliFlag{name: "target-schema", shortHand: "T",
		desc: "Schema on the target that receives the replicated tables \n" +
			"and holds the load status table"},
	"artifact": cliFlag{name: "artifact", shortHand: "a",
		desc: "Path of the table configuration artifact file (YAML)"},
	"tables": cliFlag{name: "tables", shortHand: "n",
		desc: "CSV of table names to act on (omit to use every table in the artifact)"},
	"parallel": cliFlag{name: "parallel", shortHand: "p",
		desc: "Run the tables flagged as priority through a parallel worker pool, \n" +
			"then the remainder sequentially"},
	"workers": cliFlag{name: "workers", shortHand: "w",
		desc: "Size of the parallel worker pool (bounded above at 8)"},
	"full": cliFlag{name: "full", shortHand: "F",
		desc: "Force a full reload of every table this run, ignoring stored watermarks"},
	"full-upsert": cliFlag{name: "full-upsert", shortHand: "U",
		desc: "Apply full loads as upserts instead of truncate-and-insert, for \n" +
			"targets where the loader lacks the TRUNCATE privilege"},
	"log-level": cliFlag{name: "log-level", shortHand: "l",
		desc: "Log level: \"error | warn | info | debug\""},
	"port": cliFlag{name: "port", shortHand: "p",
		desc: "Port to listen on"},
}

// addFlag adds a flag to cobra.Command c, based on the type of targetVar
// (which must be a pointer). The name of the flag is looked up in map cliFlags.
// The flag is marked as required in Cobra based on the value of required.
// Supply a value for desc2 to append to the existing description found in map cliFlags.
func (f *cliFlags) addFlag(c *cobra.Command, targetVar interface{}, name string, defaultValue string, required bool, desc2 string) {
	sw, ok := (*f)[name]
	if !ok {
		fmt.Printf("error adding flag: unknown flag name %q\n", name)
		os.Exit(1)
	}
	desc := sw.desc + desc2
	switch p := targetVar.(type) {
	case *string:
		c.Flags().StringVarP(p, sw.name, sw.shortHand, defaultValue, desc)
	case *bool:
		c.Flags().BoolVarP(p, sw.name, sw.shortHand, strings.ToLower(defaultValue) == "true", desc)
	case *int:
		defaultInt := 0
		if defaultValue != "" {
			var err error
			defaultInt, err = strconv.Atoi(defaultValue)
			if err != nil {
				fmt.Printf("the value for flag %q must be an integer: %v\n", sw.name, err)
				os.Exit(1)
			}
		}
		c.Flags().IntVarP(p, sw.name, sw.shortHand, defaultInt, desc)
	default:
		panic("Error: unhandled CLI flag target value type")
	}
	if required { // if the flag is required...
		_ = c.MarkFlagRequired(sw.name)
	}
}
