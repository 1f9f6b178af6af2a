/*
mksub — fast subdomain permutation generator in Go
Copyright (C) 2025  Pepijn van der Stap <rxtls@vanderstap.info>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU Affero General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU Affero General Public License for more details.

You should have received a copy of the GNU Affero General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package core

import (
	"context"
	"fmt"
	"log"
	"runtime"
	"strconv"
	"time"

	"github.com/x-stp/mksub/internal/metrics"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Filter decides whether a single word may appear in generated tuples.
type Filter func(word string) bool

// GeneratorOptions configures the generation worker pool.
type GeneratorOptions struct {
	Workers    int           // Pool size; already capped by the caller.
	Separator  string        // Joins words with each other and with the domain.
	Filter     Filter        // Optional; applied to every component word.
	Limiter    *rate.Limiter // Optional global emission cap.
	PinWorkers bool          // Pin worker threads to CPUs (Linux only).
	Verbose    bool
}

// Generator runs a bounded pool of goroutines over every (domain, level) pair.
// Each pair's index space is cut into one WorkRange per worker slot; every
// range is an independent job, so pairs overlap in time but never share a job.
type Generator struct {
	domains []string
	spaces  []*LevelSpace
	opts    GeneratorOptions
	allowed []bool // Filter verdict per word index; nil without a filter.

	rateBatch int

	queue *BoundedQueue
	coord *Coordinator
	stats *Stats
}

// NewGenerator prepares the pool. spaces must hold levels 1..k for the same
// word list. The filter is evaluated once per word here, since it only
// depends on the word.
func NewGenerator(domains []string, spaces []*LevelSpace, opts GeneratorOptions, queue *BoundedQueue, coord *Coordinator, stats *Stats) (*Generator, error) {
	if len(domains) == 0 {
		return nil, configError("domains", "domain list is empty")
	}
	if len(spaces) == 0 {
		return nil, configError("level", "no levels to generate")
	}
	if opts.Workers < 1 {
		return nil, configError("workers", "worker count must be >= 1")
	}
	if opts.Separator == "" {
		opts.Separator = DefaultSeparator
	}

	g := &Generator{
		domains: domains,
		spaces:  spaces,
		opts:    opts,
		queue:   queue,
		coord:   coord,
		stats:   stats,
	}

	if opts.Filter != nil {
		words := spaces[0].Words()
		g.allowed = make([]bool, len(words))
		for i, w := range words {
			g.allowed[i] = opts.Filter(w)
		}
	}

	if opts.Limiter != nil {
		g.rateBatch = RateBatchSize
		if b := opts.Limiter.Burst(); b < g.rateBatch {
			g.rateBatch = b
		}
		if g.rateBatch < 1 {
			g.rateBatch = 1
		}
	}

	total, exact := TotalSize(spaces, len(domains))
	stats.Planned.Store(total)
	stats.PlannedExact.Store(exact)
	var ranges int64
	for _, s := range spaces {
		n := uint64(opts.Workers)
		if s.Size() < n {
			n = s.Size()
		}
		ranges += int64(n)
	}
	stats.RangesTotal.Store(ranges * int64(len(domains)))
	stats.PairsTotal.Store(int64(len(spaces) * len(domains)))
	return g, nil
}

// Run generates every pair and returns once all launched jobs have finished.
// Cancellation (ctx or the coordinator) stops admission of new jobs; running
// jobs stop at their next item.
func (g *Generator) Run(ctx context.Context) error {
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.opts.Workers)

launch:
	for _, domain := range g.domains {
		for _, space := range g.spaces {
			if g.coord.Cancelled() || egCtx.Err() != nil {
				break launch
			}
			if g.opts.Verbose {
				log.Printf("Generating level %d for %s: %d combinations", space.Level(), domain, space.Size())
			}
			for slot, r := range Partition(space.Size(), g.opts.Workers) {
				if r.Len() == 0 {
					continue
				}
				item := WorkItem{Domain: domain, Space: space, Range: r, Slot: slot}
				// Go blocks while Workers jobs are running, which keeps job
				// admission lazy.
				eg.Go(func() error {
					return g.runRange(egCtx, item)
				})
				if g.coord.Cancelled() {
					break launch
				}
			}
		}
	}

	return eg.Wait()
}

// runRange is the body of one job. It walks item.Range in increasing index
// order, decodes, filters, joins and pushes each surviving combination.
// Hot Path: Yes. One allocation per emitted line (the string handed to the queue).
func (g *Generator) runRange(ctx context.Context, item WorkItem) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic generating %s: %v", item, r)
			g.coord.Abort(err)
		}
	}()

	if g.opts.PinWorkers {
		saved := setAffinity(item.Slot, item.Slot%runtime.NumCPU())
		defer restoreAffinity(saved)
	}

	m := metrics.GetMetrics()
	m.SetWorkerBusy(1)
	defer m.SetWorkerBusy(-1)
	observe := metrics.MeasureDuration(m.RangeDuration, map[string]string{"level": strconv.Itoa(item.Space.Level())})
	defer observe()

	space := item.Space
	sep := g.opts.Separator
	digits := make([]int, 0, space.Level())
	line := make([]byte, 0, 64)
	tokens := 0
	var emitted, filtered uint64

	defer func() {
		g.stats.Generated.Add(emitted)
		g.stats.Filtered.Add(filtered)
		g.stats.RangesDone.Add(1)
		m.AddGenerated(space.Level(), emitted, filtered)
		m.RangeDone(item.Slot)
	}()

	for i := item.Range.Start; i < item.Range.End; i++ {
		if g.coord.Cancelled() {
			return nil
		}

		digits = space.Decode(i, digits)
		if g.allowed != nil && !g.tupleAllowed(digits) {
			filtered++
			continue
		}

		if g.opts.Limiter != nil {
			if tokens == 0 {
				n := g.rateBatch
				if left := item.Range.End - i; left < uint64(n) {
					n = int(left)
				}
				if err := g.waitRate(ctx, n); err != nil {
					if ctx.Err() != nil {
						return nil // Cancelled while throttled.
					}
					err = fmt.Errorf("rate limiter for %s: %w", item, err)
					g.coord.Abort(err)
					return err
				}
				tokens = n
			}
			tokens--
		}

		line = space.AppendCombination(line[:0], digits, sep, item.Domain)
		if err := g.queue.Push(string(line)); err != nil {
			return nil // Queue closed or run cancelled.
		}
		emitted++
	}
	return nil
}

// tupleAllowed reports whether every component word passes the filter.
func (g *Generator) tupleAllowed(digits []int) bool {
	for _, d := range digits {
		if !g.allowed[d] {
			return false
		}
	}
	return true
}

// waitRate reserves n tokens from the shared limiter and sleeps until they
// are due. It only gives up when ctx is done; a context deadline shorter than
// the delay is waited out rather than failing early.
func (g *Generator) waitRate(ctx context.Context, n int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	r := g.opts.Limiter.ReserveN(start, n)
	if !r.OK() {
		return fmt.Errorf("batch of %d exceeds limiter burst %d", n, g.opts.Limiter.Burst())
	}

	if delay := r.DelayFrom(start); delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			r.Cancel()
			return ctx.Err()
		}
	}

	if metrics.IsMetricsEnabled() {
		metrics.GetMetrics().WorkerRateWait.WithLabelValues("generate").Observe(time.Since(start).Seconds())
	}
	return nil
}

// NewRateLimiter builds the shared emission limiter for linesPerSecond.
// Zero or negative disables limiting (nil).
func NewRateLimiter(linesPerSecond float64) *rate.Limiter {
	if linesPerSecond <= 0 {
		return nil
	}
	burst := RateBatchSize
	if int(linesPerSecond) < burst {
		burst = int(linesPerSecond)
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(linesPerSecond), burst)
}
