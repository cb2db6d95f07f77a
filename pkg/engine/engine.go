// Package engine implements the sync engine (C5): one pull -> transform
// -> push -> persist cycle per Run call, owning retry, batching, and
// failure accounting.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/scottthesecond/syncframe/pkg/dedup"
	"github.com/scottthesecond/syncframe/pkg/linkindex"
	"github.com/scottthesecond/syncframe/pkg/record"
	"github.com/scottthesecond/syncframe/pkg/telemetry"
	"github.com/scottthesecond/syncframe/pkg/throttler"
)

// Engine runs one job's sync cycle. It is not safe for concurrent Run
// calls on the same instance — spec §5 assumes a single logical worker
// per job.
type Engine struct {
	cfg JobConfig

	throttleA *throttler.Throttler
	throttleB *throttler.Throttler

	resolver dedup.ConflictResolver

	telemetry telemetry.Recorder

	runSeq int
}

// New builds an Engine from a job descriptor, applying spec §6's
// defaults: a side whose MaxReqs, IntervalSec and BatchSize are all zero
// gets the default throttle, a RetryConfig whose MaxAttempts is zero is
// replaced as a whole by DefaultRetryConfig, and an empty ConflictPolicy
// becomes last_writer_wins. Partially set sides and retry configs are
// kept as given.
func New(cfg JobConfig) *Engine {
	fillSideDefaults(&cfg.SideA)
	fillSideDefaults(&cfg.SideB)
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	if cfg.ConflictPolicy == "" {
		cfg.ConflictPolicy = dedup.PolicyLastWriterWins
	}

	rec := cfg.Telemetry
	if rec == nil {
		rec = telemetry.Noop
	}

	return &Engine{
		cfg:       cfg,
		throttleA: throttler.New(throttler.Config{MaxReqs: cfg.SideA.MaxReqs, IntervalSec: cfg.SideA.IntervalSec}),
		throttleB: throttler.New(throttler.Config{MaxReqs: cfg.SideB.MaxReqs, IntervalSec: cfg.SideB.IntervalSec}),
		resolver:  dedup.NewResolver(cfg.ConflictPolicy, cfg.Store),
		telemetry: rec,
	}
}

func fillSideDefaults(s *SideConfig) {
	if s.MaxReqs == 0 && s.IntervalSec == 0 && s.BatchSize == 0 {
		s.MaxReqs, s.IntervalSec, s.BatchSize = DefaultThrottle()
	}
}

// Run executes one IDLE -> CHECK_DISABLED -> PULL -> TRANSFORM -> PUSH ->
// PERSIST -> DONE cycle (or jumps to FAILED). Every success, partial,
// failed or disabled outcome is reported through one RunSummary,
// persisted before returning. When a link-index call itself fails
// (checking disablement, loading or saving cursors, updating fail
// counts, or inserting the run), Run returns a non-nil error instead,
// and no RunSummary is persisted for that cycle.
func (e *Engine) Run(ctx context.Context) (linkindex.RunSummary, error) {
	started := time.Now()
	e.runSeq++
	runID := fmt.Sprintf("%s-run-%d", e.cfg.JobID, e.runSeq)

	logger := log.With().Str("component", "engine").Str("job_id", e.cfg.JobID).Str("run_id", runID).Logger()

	disabled, err := e.cfg.Store.IsJobDisabled(ctx, e.cfg.JobID)
	if err != nil {
		return linkindex.RunSummary{}, fmt.Errorf("engine: check disabled: %w", err)
	}
	if disabled {
		logger.Warn().Msg("job disabled, skipping cycle")
		return e.persistRun(ctx, runID, started, linkindex.RunFailed, RunStats{Reason: "job_disabled"})
	}

	cursorA, err := e.cfg.Store.LoadCursor(ctx, e.cfg.JobID, e.cfg.SideA.AdapterName, e.cfg.SideA.Table)
	if err != nil {
		return linkindex.RunSummary{}, fmt.Errorf("engine: load cursor A: %w", err)
	}
	cursorB, err := e.cfg.Store.LoadCursor(ctx, e.cfg.JobID, e.cfg.SideB.AdapterName, e.cfg.SideB.Table)
	if err != nil {
		return linkindex.RunSummary{}, fmt.Errorf("engine: load cursor B: %w", err)
	}

	pullA, pullB, pullErr := e.pullBothSides(ctx, cursorA, cursorB)
	if pullErr != nil {
		logger.Error().Err(pullErr).Msg("pull failed")
		return e.failCycle(ctx, runID, started, pullErr, RunStats{})
	}

	pushed := dedup.NewPushedSet()

	mappedAtoB, linkAtoB, statsAtoB, err := dedup.Transform(ctx, pullA.changes, pullB.changes, dedup.Params{
		JobID: e.cfg.JobID, Src: side(e.cfg.SideA), Dest: side(e.cfg.SideB),
		Mapper: e.cfg.MapperAtoB, Store: e.cfg.Store, Pushed: pushed, Resolver: e.resolver,
	})
	if err != nil {
		return e.failCycle(ctx, runID, started, err, RunStats{})
	}

	mappedBtoA, linkBtoA, statsBtoA, err := dedup.Transform(ctx, pullB.changes, pullA.changes, dedup.Params{
		JobID: e.cfg.JobID, Src: side(e.cfg.SideB), Dest: side(e.cfg.SideA),
		Mapper: e.cfg.MapperBtoA, Store: e.cfg.Store, Pushed: pushed, Resolver: e.resolver,
	})
	if err != nil {
		return e.failCycle(ctx, runID, started, err, RunStats{})
	}

	stats := RunStats{
		UpsertsAtoB:  len(mappedAtoB.Upserts),
		UpsertsBtoA:  len(mappedBtoA.Upserts),
		DeletesAtoB:  len(mappedAtoB.Deletes),
		DeletesBtoA:  len(mappedBtoA.Deletes),
		Conflicts:    statsAtoB.ConflictsRecorded + statsBtoA.ConflictsRecorded,
		MapperErrors: len(statsAtoB.MapperErrors) + len(statsBtoA.MapperErrors),
	}

	e.telemetry.RecordUpserts(ctx, e.cfg.JobID, "AtoB", stats.UpsertsAtoB)
	e.telemetry.RecordUpserts(ctx, e.cfg.JobID, "BtoA", stats.UpsertsBtoA)
	e.telemetry.RecordDeletes(ctx, e.cfg.JobID, "AtoB", stats.DeletesAtoB)
	e.telemetry.RecordDeletes(ctx, e.cfg.JobID, "BtoA", stats.DeletesBtoA)
	for i := 0; i < stats.Conflicts; i++ {
		e.telemetry.RecordConflict(ctx, e.cfg.JobID)
	}

	retriesAtoB, pushErr := e.pushDirection(ctx, e.cfg.SideA, e.cfg.SideB, e.throttleB, mappedAtoB, linkAtoB, "B")
	stats.Retries += retriesAtoB
	if pushErr != nil {
		return e.failCycle(ctx, runID, started, pushErr, stats)
	}

	retriesBtoA, pushErr := e.pushDirection(ctx, e.cfg.SideB, e.cfg.SideA, e.throttleA, mappedBtoA, linkBtoA, "A")
	stats.Retries += retriesBtoA
	if pushErr != nil {
		return e.failCycle(ctx, runID, started, pushErr, stats)
	}

	if err := e.cfg.Store.SaveCursor(ctx, e.cfg.JobID, e.cfg.SideA.AdapterName, e.cfg.SideA.Table, pullA.nextCursor); err != nil {
		return linkindex.RunSummary{}, fmt.Errorf("engine: save cursor A: %w", err)
	}
	if err := e.cfg.Store.SaveCursor(ctx, e.cfg.JobID, e.cfg.SideB.AdapterName, e.cfg.SideB.Table, pullB.nextCursor); err != nil {
		return linkindex.RunSummary{}, fmt.Errorf("engine: save cursor B: %w", err)
	}
	if err := e.cfg.Store.ResetFailCount(ctx, e.cfg.JobID, e.cfg.SideA.AdapterName, e.cfg.SideA.Table); err != nil {
		return linkindex.RunSummary{}, fmt.Errorf("engine: reset fail count A: %w", err)
	}
	if err := e.cfg.Store.ResetFailCount(ctx, e.cfg.JobID, e.cfg.SideB.AdapterName, e.cfg.SideB.Table); err != nil {
		return linkindex.RunSummary{}, fmt.Errorf("engine: reset fail count B: %w", err)
	}

	status := classifyStatus(stats)
	logger.Info().Str("status", string(status)).
		Int("upserts_a_to_b", stats.UpsertsAtoB).Int("upserts_b_to_a", stats.UpsertsBtoA).
		Msg("cycle complete")

	return e.persistRun(ctx, runID, started, status, stats)
}

// classifyStatus implements §4.5's status rule among cycles that reached
// PERSIST (i.e. did not abort on a pull/push error): success has no
// mapper errors; partial has mapper errors but made some progress;
// failed has mapper errors and made none.
func classifyStatus(stats RunStats) linkindex.RunStatus {
	if stats.MapperErrors == 0 {
		return linkindex.RunSuccess
	}
	progress := stats.UpsertsAtoB+stats.UpsertsBtoA+stats.DeletesAtoB+stats.DeletesBtoA > 0
	if progress {
		return linkindex.RunPartial
	}
	return linkindex.RunFailed
}

type pullResult struct {
	changes    record.ChangeSet
	nextCursor record.Cursor
}

// pullBothSides runs the two getUpdates calls in parallel, as spec §5
// recommends, and returns a *CycleError attributing whichever side
// failed.
func (e *Engine) pullBothSides(ctx context.Context, cursorA, cursorB record.Cursor) (pullResult, pullResult, error) {
	type outcome struct {
		result pullResult
		err    error
	}
	chA := make(chan outcome, 1)
	chB := make(chan outcome, 1)

	go func() {
		cs, next, err := e.cfg.SideA.Adapter.GetUpdates(ctx, cursorA)
		chA <- outcome{pullResult{cs, next}, err}
	}()
	go func() {
		cs, next, err := e.cfg.SideB.Adapter.GetUpdates(ctx, cursorB)
		chB <- outcome{pullResult{cs, next}, err}
	}()

	outA := <-chA
	outB := <-chB

	if outA.err != nil {
		return pullResult{}, pullResult{}, &CycleError{Side: "A", Err: outA.err}
	}
	if outB.err != nil {
		return pullResult{}, pullResult{}, &CycleError{Side: "B", Err: outB.err}
	}
	return outA.result, outB.result, nil
}

// pushDirection chunks mapped into batch-sized slices and applies each
// with retry. On full success it installs the direction's link map
// entries, keyed by (src, dest) tuples built from srcSide/dest.
func (e *Engine) pushDirection(
	ctx context.Context,
	srcSide, dest SideConfig,
	th *throttler.Throttler,
	mapped record.ChangeSet,
	linkMap map[string]string,
	destSideLabel string,
) (retries int, err error) {
	if mapped.Empty() {
		return 0, nil
	}

	for _, batch := range chunkUpserts(mapped.Upserts, dest.BatchSize) {
		k, err := applyWithRetry(ctx, dest.Adapter, record.ChangeSet{Upserts: batch}, th, e.cfg.Retry, destSideLabel)
		retries += k
		if err != nil {
			return retries, err
		}
	}
	for _, batch := range chunkDeletes(mapped.Deletes, dest.BatchSize) {
		k, err := applyWithRetry(ctx, dest.Adapter, record.ChangeSet{Deletes: batch}, th, e.cfg.Retry, destSideLabel)
		retries += k
		if err != nil {
			return retries, err
		}
	}

	for srcID, destID := range linkMap {
		if err := e.cfg.Store.UpsertLink(ctx, tuple(srcSide, srcID), tuple(dest, destID)); err != nil {
			return retries, fmt.Errorf("engine: upsert link: %w", err)
		}
	}
	return retries, nil
}

func chunkUpserts(items []record.Record, size int) [][]record.Record {
	if size <= 0 {
		size = len(items)
		if size == 0 {
			return nil
		}
	}
	var out [][]record.Record
	for i := 0; i < len(items); i += size {
		end := i + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[i:end])
	}
	return out
}

func chunkDeletes(items []string, size int) [][]string {
	if size <= 0 {
		size = len(items)
		if size == 0 {
			return nil
		}
	}
	var out [][]string
	for i := 0; i < len(items); i += size {
		end := i + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[i:end])
	}
	return out
}

// failCycle implements step 6: attribute the failure to one or both
// sides, increment fail counts, disable the job if a threshold is
// crossed, and persist a failed RunSummary.
func (e *Engine) failCycle(ctx context.Context, runID string, started time.Time, cycleErr error, stats RunStats) (linkindex.RunSummary, error) {
	stats.Error = cycleErr.Error()

	var cErr *CycleError
	var sideA, sideB bool
	if errors.As(cycleErr, &cErr) {
		sideA = cErr.Side == "A"
		sideB = cErr.Side == "B"
	} else {
		sideA, sideB = attributeSides(cycleErr)
	}

	if sideA {
		if err := e.bumpFailCount(ctx, e.cfg.SideA); err != nil {
			return linkindex.RunSummary{}, err
		}
	}
	if sideB {
		if err := e.bumpFailCount(ctx, e.cfg.SideB); err != nil {
			return linkindex.RunSummary{}, err
		}
	}

	return e.persistRun(ctx, runID, started, linkindex.RunFailed, stats)
}

func (e *Engine) bumpFailCount(ctx context.Context, s SideConfig) error {
	count, err := e.cfg.Store.IncrementFailCount(ctx, e.cfg.JobID, s.AdapterName, s.Table)
	if err != nil {
		return fmt.Errorf("engine: increment fail count: %w", err)
	}
	if count >= e.cfg.Retry.DisableJobAfter {
		if err := e.cfg.Store.SetJobDisabled(ctx, e.cfg.JobID, time.Now()); err != nil {
			return fmt.Errorf("engine: set job disabled: %w", err)
		}
	}
	return nil
}

func (e *Engine) persistRun(ctx context.Context, runID string, started time.Time, status linkindex.RunStatus, stats RunStats) (linkindex.RunSummary, error) {
	summary := linkindex.RunSummary{
		RunID:       runID,
		JobID:       e.cfg.JobID,
		StartedAt:   started,
		EndedAt:     time.Now(),
		Status:      status,
		SummaryJSON: stats.marshal(),
	}
	if err := e.cfg.Store.InsertRun(ctx, summary); err != nil {
		return summary, fmt.Errorf("engine: insert run: %w", err)
	}
	e.telemetry.RecordCycle(ctx, e.cfg.JobID, string(status))
	e.telemetry.RecordRetries(ctx, e.cfg.JobID, stats.Retries)
	return summary, nil
}
