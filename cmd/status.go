package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BenjaminRains/etlpipe/helper"
	"github.com/BenjaminRains/etlpipe/logger"
	"github.com/BenjaminRains/etlpipe/status"
)

var statusCfg = struct {
	Target       string
	TargetSchema string
	Tables       string
	LogLevel     string
}{}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the latest load status per replicated table",
	Long: `Show the latest load cycle recorded for each replicated table: its outcome,
the number of rows loaded and the watermark the next cycle will resume from.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runStatus()
	},
}

func runStatus() error {
	log := logger.NewLogger("etlpipe", statusCfg.LogLevel, stackDumpOnPanic)
	target, err := getConnectionManager(log, statusCfg.Target)
	if err != nil {
		return err
	}
	defer target.Close()
	tracker, err := status.NewTracker(&status.TrackerConfig{
		Log:          log,
		Target:       target,
		TargetSchema: statusCfg.TargetSchema,
	})
	if err != nil {
		return err
	}
	recs, err := tracker.LatestRecords(context.Background())
	if err != nil {
		return err
	}
	keep := make(map[string]bool)
	for _, name := range helper.CsvToStringSliceTrimSpaces(statusCfg.Tables) {
		keep[name] = true
	}
	fmt.Printf("%-32v %-12v %12v %-22v %v\n", "TABLE", "STATUS", "ROWS", "WATERMARK", "LOADED AT")
	for _, rec := range recs { // for each table's latest record...
		if len(keep) > 0 && !keep[rec.TableName] {
			continue
		}
		watermark := "-"
		if rec.LastPrimaryValue != nil {
			watermark = *rec.LastPrimaryValue
		}
		fmt.Printf("%-32v %-12v %12v %-22v %v\n",
			rec.TableName, rec.LoadStatus, rec.RowsLoaded, watermark, rec.LoadedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().SortFlags = false
	switches.addFlag(statusCmd, &statusCfg.Target, "target", "", true, "")
	switches.addFlag(statusCmd, &statusCfg.TargetSchema, "target-schema", "", true, "")
	switches.addFlag(statusCmd, &statusCfg.Tables, "tables", "", false, "")
	switches.addFlag(statusCmd, &statusCfg.LogLevel, "log-level", helper.ReadValueFromEnvWithDefault("ETL_LOG_LEVEL", "warn"), false, "")
}
