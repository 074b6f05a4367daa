// Package replicate executes replication cycles: one table at a time for a
// normal run, or a bounded worker pool over the priority tables. Every cycle
// runs the same watermark protocol regardless of load mode.
package replicate

import (
	stderrors "errors"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/net/context"

	"github.com/BenjaminRains/etlpipe/constants"
	"github.com/BenjaminRains/etlpipe/helper"
	"github.com/BenjaminRains/etlpipe/logger"
	"github.com/BenjaminRains/etlpipe/rdbms"
	"github.com/BenjaminRains/etlpipe/schema"
	"github.com/BenjaminRains/etlpipe/status"
)

// Config wires a Replicator to its source, target and status store. Source
// and target schemas are the namespaces the table names resolve in on each
// side.
type Config struct {
	Log          logger.Logger            `errorTxt:"logger" mandatory:"yes"`
	Source       *rdbms.ConnectionManager `errorTxt:"source connection manager" mandatory:"yes"`
	Target       *rdbms.ConnectionManager `errorTxt:"target connection manager" mandatory:"yes"`
	Tracker      *status.Tracker          `errorTxt:"status tracker" mandatory:"yes"`
	SourceSchema string                   `errorTxt:"source schema" mandatory:"yes"`
	TargetSchema string                   `errorTxt:"target schema" mandatory:"yes"`
	Workers      int                      // parallel-critical pool size; clamped to [1, ParallelWorkersMax].
	ForceFull    bool                     // run every table as a full load this run.
	FullUpsert   bool                     // full mode upserts instead of truncating, for loaders without truncate privilege.
}

// WorkerConns is one parallel worker's private set of connections. Workers
// never share managers or trackers; the status table is the only shared state
// and its writes are row-level per table key.
type WorkerConns struct {
	Source  *rdbms.ConnectionManager
	Target  *rdbms.ConnectionManager
	Tracker *status.Tracker
}

func (w *WorkerConns) Close() {
	w.Source.Close()
	w.Target.Close()
}

// WorkerConnsFactory builds a private WorkerConns per pool worker.
type WorkerConnsFactory func() (*WorkerConns, error)

type Replicator struct {
	cfg Config
}

func NewReplicator(cfg *Config) (*Replicator, error) {
	if err := helper.ValidateStructIsPopulated(cfg); err != nil {
		return nil, err
	}
	return &Replicator{cfg: *cfg}, nil
}

// RunTables executes one cycle per named table, sequentially, in the order
// given. An empty tables slice means every table in the artifact. Per-table
// failures are isolated and reported in the summary; the run only aborts when
// the status store itself is unreachable, since no cycle can safely record
// its outcome then.
func (r *Replicator) RunTables(ctx context.Context, artifact schema.Artifact, tables []string) (*RunSummary, error) {
	if len(tables) == 0 {
		tables = artifact.TableNames()
	}
	summary := NewRunSummary()
	r.cfg.Log.Info("run ", summary.RunId, ": replicating ", len(tables), " tables")
	for _, name := range tables {
		tcfg, ok := artifact[name]
		if !ok {
			summary.Add(TableResult{
				TableName: name,
				Status:    constants.LoadStatusFailed,
				Err:       errors.Errorf("table %v is not in the configuration artifact", name),
			})
			continue
		}
		res := r.newCycle(tcfg, r.cfg.Source, r.cfg.Target, r.cfg.Tracker).run(ctx)
		summary.Add(res)
		if res.StoreUnreachable {
			summary.Finish()
			return summary, errors.New("load status store is unreachable; aborting the run")
		}
		if ctx.Err() != nil { // no new cycles after cancellation.
			break
		}
	}
	summary.Finish()
	r.cfg.Log.Info(summary)
	return summary, nil
}

// RunPriority executes the artifact's priority tables over a bounded worker
// pool. Each worker owns a private connection pair and tracker from the
// factory, so one slow or failing table never blocks or corrupts another.
func (r *Replicator) RunPriority(ctx context.Context, artifact schema.Artifact, factory WorkerConnsFactory) (*RunSummary, error) {
	if factory == nil {
		return nil, errors.New("a worker connection factory is required for a parallel run")
	}
	tables := artifact.PriorityTables()
	summary := NewRunSummary()
	if len(tables) == 0 {
		r.cfg.Log.Info("run ", summary.RunId, ": no priority tables to replicate")
		summary.Finish()
		return summary, nil
	}
	workers := r.cfg.Workers
	if workers < 1 {
		workers = constants.ParallelWorkersDefault
	}
	if workers > constants.ParallelWorkersMax {
		workers = constants.ParallelWorkersMax
	}
	if workers > len(tables) {
		workers = len(tables)
	}
	r.cfg.Log.Info("run ", summary.RunId, ": replicating ", len(tables), " priority tables with ", workers, " workers")

	jobs := make(chan schema.TableConfig, len(tables))
	for _, name := range tables {
		jobs <- artifact[name]
	}
	close(jobs)

	var storeDown helper.AtomBool
	var wg sync.WaitGroup
	results := make(chan TableResult, len(tables))
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conns, err := factory()
			if err != nil {
				for tcfg := range jobs {
					results <- TableResult{
						TableName: tcfg.TableName,
						Status:    constants.LoadStatusFailed,
						Err:       errors.Wrap(err, "unable to build worker connections"),
					}
				}
				return
			}
			defer conns.Close()
			for tcfg := range jobs {
				if storeDown.Get() {
					results <- TableResult{
						TableName: tcfg.TableName,
						Status:    constants.LoadStatusFailed,
						Err:       errors.New("skipped: load status store is unreachable"),
					}
					continue
				}
				res := r.newCycle(tcfg, conns.Source, conns.Target, conns.Tracker).run(ctx)
				if res.StoreUnreachable {
					storeDown.Set(true)
				}
				results <- res
			}
		}()
	}
	wg.Wait()
	close(results)
	for res := range results {
		summary.Add(res)
	}
	summary.Finish()
	r.cfg.Log.Info(summary)
	if storeDown.Get() {
		return summary, errors.New("load status store is unreachable; aborting the run")
	}
	return summary, nil
}

func (r *Replicator) newCycle(tcfg schema.TableConfig, source, target *rdbms.ConnectionManager, tracker *status.Tracker) *cycle {
	if tcfg.BatchSize <= 0 {
		tcfg.BatchSize = constants.BatchSizeDefault
	}
	return &cycle{
		log:          r.cfg.Log,
		source:       source,
		target:       target,
		tracker:      tracker,
		sourceSchema: r.cfg.SourceSchema,
		targetSchema: r.cfg.TargetSchema,
		cfg:          tcfg,
		forceFull:    r.cfg.ForceFull,
		fullUpsert:   r.cfg.FullUpsert,
	}
}

// isConnectionError reports whether err means a connection could not be
// obtained at all, as opposed to a statement failing on a live connection.
func isConnectionError(err error) bool {
	var ce *rdbms.ConnectionError
	return stderrors.As(err, &ce)
}
