package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/BenjaminRains/etlpipe/helper"
	"github.com/BenjaminRains/etlpipe/logger"
	"github.com/BenjaminRains/etlpipe/replicate"
	"github.com/BenjaminRains/etlpipe/schema"
	"github.com/BenjaminRains/etlpipe/status"
)

var replicateCfg = struct {
	Source       string
	Target       string
	SourceSchema string
	TargetSchema string
	Artifact     string
	Tables       string
	Parallel     bool
	Workers      int
	ForceFull    bool
	FullUpsert   bool
	LogLevel     string
}{}

var replicateCmd = &cobra.Command{
	Use:   "replicate",
	Short: "Run one load cycle per table using a published artifact",
	Long: `Run one load cycle for each table in the table configuration artifact,
extracting from the source connection and loading into the target schema.

Each table resumes from the watermark recorded by its last successful cycle.
Tables without a stored watermark are fully reloaded. Per-table failures are
isolated; the run only aborts early when the load status store itself is
unreachable. Use --parallel to push the tables flagged as priority through a
worker pool before the rest are processed sequentially.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runReplicate()
	},
}

func runReplicate() error {
	if replicateCfg.Parallel && replicateCfg.Tables != "" {
		return errors.New("--tables cannot be combined with --parallel; the pool is driven by the artifact's priority flags")
	}
	log := logger.NewLogger("etlpipe", replicateCfg.LogLevel, stackDumpOnPanic)
	artifact, err := schema.LoadArtifact(log, replicateCfg.Artifact)
	if err != nil {
		return err
	}
	source, err := getConnectionManager(log, replicateCfg.Source)
	if err != nil {
		return err
	}
	defer source.Close()
	target, err := getConnectionManager(log, replicateCfg.Target)
	if err != nil {
		return err
	}
	defer target.Close()
	tracker, err := status.NewTracker(&status.TrackerConfig{
		Log:          log,
		Target:       target,
		TargetSchema: replicateCfg.TargetSchema,
	})
	if err != nil {
		return err
	}
	// Cancel the run on SIGINT. In-flight batches complete and every started
	// cycle still records its outcome.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	chanOS := make(chan os.Signal, 1)
	signal.Notify(chanOS, os.Interrupt)
	go func() {
		<-chanOS
		log.Warn("interrupt received; finishing the current batch before stopping")
		cancel()
	}()
	if err := tracker.EnsureStatusTable(ctx); err != nil {
		return err
	}
	rep, err := replicate.NewReplicator(&replicate.Config{
		Log:          log,
		Source:       source,
		Target:       target,
		Tracker:      tracker,
		SourceSchema: replicateCfg.SourceSchema,
		TargetSchema: replicateCfg.TargetSchema,
		Workers:      replicateCfg.Workers,
		ForceFull:    replicateCfg.ForceFull,
		FullUpsert:   replicateCfg.FullUpsert,
	})
	if err != nil {
		return err
	}
	if replicateCfg.Parallel { // if priority tables go through the worker pool...
		summary, err := rep.RunPriority(ctx, artifact, newWorkerConnsFactory(log))
		reportSummary(log, summary)
		if err != nil {
			return err
		}
		rest := tablesExcluding(artifact, artifact.PriorityTables())
		if len(rest) == 0 {
			return nil
		}
		summary, err = rep.RunTables(ctx, artifact, rest)
		reportSummary(log, summary)
		return err
	}
	summary, err := rep.RunTables(ctx, artifact, helper.CsvToStringSliceTrimSpaces(replicateCfg.Tables))
	reportSummary(log, summary)
	return err
}

// newWorkerConnsFactory gives each pool worker its own connection pair and
// tracker so workers never contend on a shared database session.
func newWorkerConnsFactory(log logger.Logger) replicate.WorkerConnsFactory {
	return func() (*replicate.WorkerConns, error) {
		source, err := getConnectionManager(log, replicateCfg.Source)
		if err != nil {
			return nil, err
		}
		target, err := getConnectionManager(log, replicateCfg.Target)
		if err != nil {
			source.Close()
			return nil, err
		}
		tracker, err := status.NewTracker(&status.TrackerConfig{
			Log:          log,
			Target:       target,
			TargetSchema: replicateCfg.TargetSchema,
		})
		if err != nil {
			source.Close()
			target.Close()
			return nil, err
		}
		return &replicate.WorkerConns{Source: source, Target: target, Tracker: tracker}, nil
	}
}

func reportSummary(log logger.Logger, summary *replicate.RunSummary) {
	if summary == nil {
		return
	}
	for _, res := range summary.Tables { // for each table in the run...
		if res.Err != nil {
			log.Error("table ", res.TableName, ": ", res.Err)
		}
	}
	fmt.Println(summary)
}

func tablesExcluding(artifact schema.Artifact, exclude []string) []string {
	skip := make(map[string]bool, len(exclude))
	for _, name := range exclude {
		skip[name] = true
	}
	var names []string
	for _, name := range artifact.TableNames() {
		if !skip[name] {
			names = append(names, name)
		}
	}
	return names
}

func init() {
	rootCmd.AddCommand(replicateCmd)
	replicateCmd.Flags().SortFlags = false
	switches.addFlag(replicateCmd, &replicateCfg.Source, "source", "", true, "")
	switches.addFlag(replicateCmd, &replicateCfg.Target, "target", "", true, "")
	switches.addFlag(replicateCmd, &replicateCfg.SourceSchema, "source-schema", "", true, "")
	switches.addFlag(replicateCmd, &replicateCfg.TargetSchema, "target-schema", "", true, "")
	switches.addFlag(replicateCmd, &replicateCfg.Artifact, "artifact", "etlpipe-tables.yaml", false, "")
	switches.addFlag(replicateCmd, &replicateCfg.Tables, "tables", "", false, "")
	switches.addFlag(replicateCmd, &replicateCfg.Parallel, "parallel", "", false, "")
	switches.addFlag(replicateCmd, &replicateCfg.Workers, "workers", "4", false, "")
	switches.addFlag(replicateCmd, &replicateCfg.ForceFull, "full", "", false, "")
	switches.addFlag(replicateCmd, &replicateCfg.FullUpsert, "full-upsert", "", false, "")
	switches.addFlag(replicateCmd, &replicateCfg.LogLevel, "log-level", helper.ReadValueFromEnvWithDefault("ETL_LOG_LEVEL", "info"), false, "")
}
