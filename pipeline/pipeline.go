// Package pipeline runs one aggregation pass from configuration to committed
// snapshot. A run walks a fixed state machine; per-source and per-item
// problems degrade the run, while config, gate, schema and programming errors
// abort it with a coded error.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pevans/feedsnap/adapter"
	"github.com/pevans/feedsnap/config"
	"github.com/pevans/feedsnap/failure"
	"github.com/pevans/feedsnap/fetch"
	"github.com/pevans/feedsnap/history"
	"github.com/pevans/feedsnap/logging"
	"github.com/pevans/feedsnap/normalize"
	"github.com/pevans/feedsnap/quality"
	"github.com/pevans/feedsnap/run"
	"github.com/pevans/feedsnap/snapshot"
)

var errAllMalformed = errors.New("every item was malformed")

// Recorder persists a summary of every finished run.
type Recorder interface {
	RecordRun(run history.Run) error
}

// Options configure a pipeline.
type Options struct {
	ConfigPath string
	OutPath    string
	Pretty     bool

	// Fixtures is a fixture directory served instead of the network.
	Fixtures string

	// Fetcher overrides both Fixtures and live HTTP.
	Fetcher fetch.Fetcher

	Registry *adapter.Registry // nil means adapter.DefaultRegistry
	Clock    run.Clock         // nil means the system clock
	Logger   *logging.Logger   // nil discards logs
	Recorder Recorder          // optional
}

// Result describes a finished run, aborted or not.
type Result struct {
	RunID    uuid.UUID
	State    State
	Snapshot *snapshot.Snapshot // nil if the run aborted before assembly
	Written  bool
	Metrics  snapshot.Metrics
	Sources  []snapshot.SourceEntry
}

// Pipeline runs aggregation passes.
type Pipeline struct {
	opts Options
}

// New creates a pipeline.
func New(opts Options) *Pipeline {
	if opts.Registry == nil {
		opts.Registry = adapter.DefaultRegistry()
	}
	return &Pipeline{opts: opts}
}

// Run executes one pass. The returned Result is never nil. The error, if any,
// carries the failure code that determines the process exit code.
func (p *Pipeline) Run(ctx context.Context) (res *Result, err error) {
	rs := run.NewScope(config.Config{}, p.opts.Logger, p.opts.Clock, nil)
	r := &runner{
		opts:    p.opts,
		rs:      rs,
		log:     rs.Logger,
		started: rs.Clock.Now(),
		res:     &Result{RunID: rs.ID, State: Init},
	}

	defer func() {
		if v := recover(); v != nil {
			err = failure.FromPanic(v)
		}
		r.finish(err)
		res = r.res
	}()

	err = r.execute(ctx)
	return r.res, err
}

// job pairs a target with the adapter that produced it.
type job struct {
	adapter adapter.Adapter
	target  adapter.Target
}

type runner struct {
	opts    Options
	rs      *run.Scope
	log     *logging.Logger
	started time.Time
	res     *Result
}

func (r *runner) execute(ctx context.Context) error {
	r.transition(LoadingConfig)
	cfg, err := config.Load(r.opts.ConfigPath)
	if err != nil {
		return err
	}
	fetcher, err := r.fetcher(cfg)
	if err != nil {
		return failure.New(failure.ConfigInvalid, err)
	}
	r.rs.Config = cfg
	r.rs.Fetcher = fetcher

	r.transition(ListingTargets)
	jobs := r.listTargets()

	r.transition(FetchingExtracting)
	results, err := r.fetchAll(ctx, jobs, cfg.Options.Concurrency)
	if err != nil {
		return err
	}
	r.res.Sources = sourceEntries(results)
	r.countSources()
	if allFailed(results) {
		return failure.Errorf(failure.AllSourcesFailed, "no usable items from %d sources", len(results))
	}

	r.transition(Normalizing)
	items, counts := r.normalize(results, cfg.Options.ExcerptMaxLength)
	r.countSources()
	if len(items) == 0 && allDegraded(r.res.Sources) {
		return failure.Errorf(failure.AllSourcesFailed, "no usable items from %d sources after normalization", len(results))
	}

	r.transition(EvaluatingGates)
	metrics := quality.Compute(items, r.res.Sources, counts, r.rs.Clock.Now().Sub(r.started))
	r.res.Metrics = metrics
	if err := quality.Evaluate(metrics, cfg.Gates); err != nil {
		return err
	}

	r.transition(Diffing)
	store := snapshot.NewStore(r.opts.OutPath, r.opts.Pretty)
	previous := r.loadPrevious(store)
	snap := r.assemble(items, previous)
	r.res.Snapshot = snap
	if err := snapshot.Validate(snap, cfg.Options.ExcerptMaxLength); err != nil {
		return err
	}
	changed, err := snapshot.Changed(snap, previous)
	if err != nil {
		return failure.New(failure.UncaughtException, err)
	}
	if !changed {
		r.log.Info("snapshot unchanged, skipping write", logging.Data(map[string]any{"path": store.Path()}))
		return nil
	}

	r.transition(Writing)
	if err := store.Write(snap); err != nil {
		return failure.New(failure.UncaughtException, err)
	}
	r.res.Written = true
	r.log.Info("snapshot written", logging.Data(map[string]any{
		"path":      store.Path(),
		"itemCount": metrics.ItemCount,
	}))

	return nil
}

func (r *runner) transition(to State) {
	r.log.Debug("state transition",
		zap.String("from", r.res.State.String()),
		zap.String("to", to.String()))
	r.res.State = to
}

func (r *runner) finish(err error) {
	if err != nil {
		r.log.Event(zapcore.ErrorLevel, failure.CodeOf(err), "run aborted",
			zap.String("state", r.res.State.String()),
			logging.Err(err))
		r.transition(Aborted)
	} else {
		r.transition(Done)
		r.log.Info("run complete", logging.Data(map[string]any{
			"itemCount": r.res.Metrics.ItemCount,
			"written":   r.res.Written,
		}))
	}
	r.record(err)
}

func (r *runner) fetcher(cfg config.Config) (fetch.Fetcher, error) {
	if r.opts.Fetcher != nil {
		return r.opts.Fetcher, nil
	}
	if r.opts.Fixtures != "" {
		fixtures, err := fetch.NewFixtures(r.opts.Fixtures)
		if err != nil {
			return nil, err
		}
		return fixtures, nil
	}
	return fetch.NewHTTP(cfg.Options.UserAgent, cfg.Options.RequestTimeout(), cfg.Options.RequestsPerSecond), nil
}

// listTargets collects targets from every adapter, ordered by target id. An
// adapter that fails to list contributes nothing.
func (r *runner) listTargets() []job {
	var jobs []job
	for _, a := range r.opts.Registry.Adapters() {
		targets, err := a.ListTargets(r.rs)
		if err != nil {
			r.log.Warn("adapter listed no targets", logging.AdapterID(a.ID()), logging.Err(err))
			continue
		}
		for _, t := range targets {
			jobs = append(jobs, job{adapter: a, target: t})
		}
	}

	sort.SliceStable(jobs, func(i, j int) bool {
		return jobs[i].target.ID < jobs[j].target.ID
	})

	r.log.Debug("targets listed", logging.Data(map[string]any{"targets": len(jobs)}))
	return jobs
}

// sourceEntries builds one entry per result, in target id order.
func sourceEntries(results []adapter.Result) []snapshot.SourceEntry {
	entries := make([]snapshot.SourceEntry, len(results))
	for i, res := range results {
		entries[i] = snapshot.SourceEntry{
			ID:        res.Target.ID,
			FetchedAt: res.FetchedAt.UTC().Format(snapshot.TimeFormat),
			ItemCount: 0,
			Errors:    append([]string{}, res.Errors...),
			Degraded:  res.Degraded,
		}
	}
	return entries
}

// allFailed reports whether the run has nothing to work with: no targets, or
// every source degraded without a single item.
func allFailed(results []adapter.Result) bool {
	for _, res := range results {
		if !res.Degraded || len(res.Items) > 0 {
			return false
		}
	}
	return true
}

// allDegraded reports whether every source entry is degraded.
func allDegraded(entries []snapshot.SourceEntry) bool {
	for _, entry := range entries {
		if !entry.Degraded {
			return false
		}
	}
	return true
}

func (r *runner) countSources() {
	r.res.Metrics.SourcesSucceeded, r.res.Metrics.SourcesFailed = quality.SourceCounts(r.res.Sources)
}

// normalize merges every result's items in target order and normalizes them.
// Rejected items are logged and noted on their source. A source whose every
// item was rejected is degraded with NO_ITEMS.
func (r *runner) normalize(results []adapter.Result, excerptMax int) ([]snapshot.ArticleMeta, quality.Counts) {
	index := make(map[string]int, len(r.res.Sources))
	for i, entry := range r.res.Sources {
		index[entry.ID] = i
	}

	var extracted []adapter.ExtractedItem
	for _, res := range results {
		extracted = append(extracted, res.Items...)
	}

	out := normalize.New(excerptMax).Normalize(extracted)

	rejected := make(map[string]int, len(r.res.Sources))
	for _, rej := range out.Rejected {
		id := sourceID(rej.Item.Source.AdapterID, rej.Item.Source.FeedID)
		rejected[id]++
		r.log.Event(zapcore.WarnLevel, failure.ItemMalformed, "item rejected",
			logging.AdapterID(rej.Item.Source.AdapterID),
			logging.TargetID(id),
			logging.Err(rej.Err))
		if i, ok := index[id]; ok {
			r.res.Sources[i].Errors = append(r.res.Sources[i].Errors, rej.Err.Error())
		}
	}
	for _, item := range out.Items {
		if i, ok := index[sourceID(item.Source.AdapterID, item.Source.FeedID)]; ok {
			r.res.Sources[i].ItemCount++
		}
	}
	for _, res := range results {
		i, ok := index[res.Target.ID]
		if !ok || len(res.Items) == 0 || rejected[res.Target.ID] < len(res.Items) {
			continue
		}
		r.res.Sources[i].Degraded = true
		r.res.Sources[i].Errors = append(r.res.Sources[i].Errors,
			fmt.Sprintf("%s: %v", failure.NoItems, errAllMalformed))
		r.log.Event(zapcore.WarnLevel, failure.NoItems, "feed yielded no usable items",
			logging.AdapterID(res.Target.AdapterID),
			logging.TargetID(res.Target.ID),
			logging.Data(map[string]any{"malformed": rejected[res.Target.ID]}))
	}
	if out.Duplicates > 0 {
		r.log.Info("duplicate items dropped", logging.Data(map[string]any{"duplicates": out.Duplicates}))
	}

	return out.Items, quality.Counts{
		Discovered: len(extracted),
		Malformed:  len(out.Rejected),
		Duplicates: out.Duplicates,
	}
}

// loadPrevious returns the committed snapshot bytes. An unreadable or
// corrupt file is treated as absent.
func (r *runner) loadPrevious(store *snapshot.Store) []byte {
	data, err := store.Load()
	if err != nil {
		r.log.Warn("previous snapshot unreadable, treating as absent", logging.Err(err))
		return nil
	}
	if data == nil {
		return nil
	}

	var probe map[string]any
	if err := json.Unmarshal(data, &probe); err != nil {
		r.log.Warn("previous snapshot corrupt, treating as absent", logging.Err(err))
		return nil
	}
	return data
}

func (r *runner) assemble(items []snapshot.ArticleMeta, previous []byte) *snapshot.Snapshot {
	prevAt, ok := snapshot.PreviousGeneratedAt(previous)
	generatedAt := snapshot.NextGeneratedAt(r.rs.Clock.Now(), prevAt, ok)

	return &snapshot.Snapshot{
		SpecVersion:      snapshot.SpecVersion,
		GeneratorVersion: snapshot.GeneratorVersion,
		GeneratedAt:      generatedAt.Format(snapshot.TimeFormat),
		Metrics:          r.res.Metrics,
		Sources:          r.res.Sources,
		Items:            items,
		Alerts:           []json.RawMessage{},
		Meta:             snapshot.NewMeta(),
	}
}

func (r *runner) record(err error) {
	if r.opts.Recorder == nil {
		return
	}

	entry := history.Run{
		RunID:      r.res.RunID,
		StartedAt:  r.started,
		FinishedAt: r.rs.Clock.Now(),
		State:      r.res.State.String(),
		ExitCode:   failure.ExitCode(err),
		ItemCount:  r.res.Metrics.ItemCount,
		Written:    r.res.Written,
	}
	if err != nil {
		entry.Code = string(failure.CodeOf(err))
	}
	for _, src := range r.res.Sources {
		entry.Sources = append(entry.Sources, history.SourceRun{
			SourceID:  src.ID,
			ItemCount: src.ItemCount,
			Degraded:  src.Degraded,
			Errors:    src.Errors,
		})
	}

	if err := r.opts.Recorder.RecordRun(entry); err != nil {
		r.log.Warn("failed to record run history", logging.Err(err))
	}
}

func sourceID(adapterID, feedID string) string {
	return fmt.Sprintf("%s:%s", adapterID, feedID)
}
