package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/BenjaminRains/etlpipe/helper"
	"github.com/BenjaminRains/etlpipe/logger"
	"github.com/BenjaminRains/etlpipe/schema"
)

var analyzeCfg = struct {
	Source       string
	SourceSchema string
	Artifact     string
	LogLevel     string
}{}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Inspect a source schema and publish a table configuration artifact",
	Long: `Inspect the source schema's catalog and publish one table configuration per
discoverable table, choosing an extraction strategy and batch size for each.

Tables with a reliable last-modified column get an incremental strategy; very
large ones are additionally chunked. Tables without one fall back to full
reloads every cycle. When the artifact file already exists, the previous run
is used to warn about schema drift since the last analysis.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runAnalyze()
	},
}

func runAnalyze() error {
	log := logger.NewLogger("etlpipe", analyzeCfg.LogLevel, stackDumpOnPanic)
	source, err := getConnectionManager(log, analyzeCfg.Source)
	if err != nil {
		return err
	}
	defer source.Close()
	var previous schema.Artifact
	if _, err := os.Stat(analyzeCfg.Artifact); err == nil { // if there is a previous artifact...
		previous, err = schema.LoadArtifact(log, analyzeCfg.Artifact)
		if err != nil {
			log.Warn("ignoring unreadable previous artifact: ", err)
		}
	}
	a := schema.NewAnalyzer(&schema.AnalyzerConfig{
		Log:          log,
		Source:       source,
		SourceSchema: analyzeCfg.SourceSchema,
		Previous:     previous,
	})
	artifact, errs := a.Analyze(context.Background())
	for _, e := range errs { // for each table that failed analysis...
		log.Warn(e)
	}
	if len(artifact) == 0 {
		log.Error("no tables were analyzed successfully")
		if len(errs) > 0 {
			return errs[0]
		}
		return nil
	}
	return schema.SaveArtifact(log, analyzeCfg.Artifact, artifact)
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().SortFlags = false
	switches.addFlag(analyzeCmd, &analyzeCfg.Source, "source", "", true, "")
	switches.addFlag(analyzeCmd, &analyzeCfg.SourceSchema, "source-schema", "", true, "")
	switches.addFlag(analyzeCmd, &analyzeCfg.Artifact, "artifact", "etlpipe-tables.yaml", false, "")
	switches.addFlag(analyzeCmd, &analyzeCfg.LogLevel, "log-level", helper.ReadValueFromEnvWithDefault("ETL_LOG_LEVEL", "info"), false, "")
}
