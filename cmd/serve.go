package cmd

import (
	"net"

	"github.com/spf13/cobra"

	"github.com/BenjaminRains/etlpipe/helper"
	"github.com/BenjaminRains/etlpipe/logger"
	"github.com/BenjaminRains/etlpipe/status"
	"github.com/BenjaminRains/etlpipe/web"
)

var serveCfg = struct {
	Target       string
	TargetSchema string
}{}

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start a web service exposing load status over a RESTful API",
	Long: `Start a web service exposing the latest load status per replicated table
as JSON under /api/v1/status`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		log := logger.NewLogger("etlpipe", serveConfig.LogLevel, stackDumpOnPanic)
		target, err := getConnectionManager(log, serveCfg.Target)
		if err != nil {
			return err
		}
		defer target.Close()
		tracker, err := status.NewTracker(&status.TrackerConfig{
			Log:          log,
			Target:       target,
			TargetSchema: serveCfg.TargetSchema,
		})
		if err != nil {
			return err
		}
		serveConfig.Status = tracker
		serveConfig.StackDumpOnPanic = stackDumpOnPanic
		return web.RunServer(&serveConfig)
	},
}

var serveConfig = web.ServerConfig{
	LogLevel: "info",
	Addr:     net.IP{0, 0, 0, 0},
	Port:     8080,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().SortFlags = false
	serveCmd.Flags().IPVarP(&serveConfig.Addr, "address", "A", net.IP{0, 0, 0, 0}, "Address to listen on")
	switches.addFlag(serveCmd, &serveConfig.Port, "port", "8080", false, "")
	switches.addFlag(serveCmd, &serveCfg.Target, "target", "", true, "")
	switches.addFlag(serveCmd, &serveCfg.TargetSchema, "target-schema", "", true, "")
	switches.addFlag(serveCmd, &serveConfig.LogLevel, "log-level", helper.ReadValueFromEnvWithDefault("ETL_LOG_LEVEL", "info"), false, "")
}
