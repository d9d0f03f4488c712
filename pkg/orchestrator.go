package torrentcombine

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// GroupOutcome pairs a group with its result or error. Exactly one of
// Result and Err is set.
type GroupOutcome struct {
	Group  Group
	Result *GroupResult
	Err    error
}

// Orchestrator processes groups on a bounded pool of workers. Groups are
// independent: an error or panic in one does not stop the others.
type Orchestrator struct {
	processor *GroupProcessor
	tracker   *TempTracker
	stats     *RunStats
	cache     *GroupCache
	workers   int
	dryRun    bool

	process func(Group, *CacheDecision) (*GroupResult, error)
}

// NewOrchestrator wires a processor to the shared tracker and counters.
// cache may be nil.
func NewOrchestrator(opts Options, tracker *TempTracker, stats *RunStats, cache *GroupCache) *Orchestrator {
	workers := opts.NumThreads
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	o := &Orchestrator{
		processor: NewGroupProcessor(opts, tracker),
		tracker:   tracker,
		stats:     stats,
		cache:     cache,
		workers:   workers,
		dryRun:    opts.DryRun,
	}
	o.process = o.processor.ProcessGroup
	return o
}

// Workers returns the size of the worker pool.
func (o *Orchestrator) Workers() int {
	return o.workers
}

// Run processes every group and returns one outcome per group, in input
// order. Once ctx is done no further groups are started; groups already
// running finish. Groups never started carry ctx.Err().
func (o *Orchestrator) Run(ctx context.Context, groups []Group) []GroupOutcome {
	defer VerboseEnter()()

	outcomes := make([]GroupOutcome, len(groups))
	o.stats.Total.Add(int64(len(groups)))

	var g errgroup.Group
	g.SetLimit(o.workers)

	started := 0
	for i, group := range groups {
		if ctx.Err() != nil {
			break
		}
		started++
		g.Go(func() error {
			outcomes[i] = o.runOne(group)
			return nil
		})
	}
	_ = g.Wait()

	if started < len(groups) {
		for i := started; i < len(groups); i++ {
			outcomes[i] = GroupOutcome{Group: groups[i], Err: ctx.Err()}
		}
		log.Warn().Int("not_started", len(groups)-started).Msg("run interrupted, remaining groups were not processed")
	}
	return outcomes
}

func (o *Orchestrator) runOne(group Group) (outcome GroupOutcome) {
	outcome.Group = group
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			outcome.Result = nil
			outcome.Err = fmt.Errorf("group %s: panic: %v", group.Key, r)
			done := o.stats.recordError()
			log.Error().Str("group", group.Key).Bytes("stack", debug.Stack()).
				Int64("done", done).Msgf("panic while processing group: %v", r)
		}
	}()

	var decision *CacheDecision
	if o.cache != nil {
		decision = o.cache.Lookup(group)
	}

	result, err := o.process(group, decision)
	if err != nil {
		outcome.Err = err
		done := o.stats.recordError()
		log.Error().Err(err).Str("group", group.Key).Int64("done", done).Int64("total", o.stats.Total.Load()).
			Msg("group failed with error")
		return outcome
	}

	outcome.Result = result
	done := o.stats.record(result)

	if o.cache != nil && !o.dryRun && !result.Cached {
		o.cache.Record(group, result)
	}

	o.report(group, result, done, time.Since(start))
	return outcome
}

func (o *Orchestrator) report(group Group, result *GroupResult, done int64, elapsed time.Duration) {
	total := o.stats.Total.Load()
	percent := 0.0
	if total > 0 {
		percent = float64(done) / float64(total) * 100
	}

	event := log.Info().Str("group", group.Key).Stringer("status", result.Status).
		Int64("done", done).Int64("total", total).Str("progress", fmt.Sprintf("%.1f%%", percent))
	if result.Cached {
		event = event.Bool("cached", true)
	} else if secs := elapsed.Seconds(); secs > 0 && result.BytesProcessed > 0 {
		event = event.Str("rate", FormatSize(uint64(float64(result.BytesProcessed)/secs))+"/s")
	}
	event.Msg("group processed")
}
