package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// Default values may be set at compile time.
	version          = "0.3.1"
	buildDate        = "2026-01-02T03:04+0000"
	osArch           = "linux"
	stackDumpOnPanic bool
)

var rootCmd = &cobra.Command{
	Use: "etlpipe",
	Long: `EtlPipe replicates tables from an operational database into an analytics
warehouse, incrementally where the source schema allows it.

Run 'analyze' against a source to publish a table configuration artifact, then
'replicate' to run one load cycle per table using that artifact. Progress is
recorded per table in the warehouse so cycles resume from the last loaded row.
Start an HTTP server with 'serve' to expose load status via a RESTful API.`,
}

func init() {
	cobra.EnableCommandSorting = false
	rootCmd.PersistentFlags().BoolVar(&stackDumpOnPanic, "print-stack", false, "Print a stack dump if there is a panic")
	_ = rootCmd.PersistentFlags().MarkHidden("print-stack")
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Execute() prints the error.
		os.Exit(1)
	}
}
