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
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	shardio "github.com/x-stp/mksub/internal/io"
	"github.com/x-stp/mksub/internal/metrics"
	"github.com/x-stp/mksub/internal/util"
)

// Config holds everything a run needs. Inputs are already normalized.
type Config struct {
	Words    []string
	Domains  []string
	MaxLevel int
	Filter   Filter // Optional per-word predicate.

	Workers    int // Requested generation goroutines.
	MaxThreads int // Global hard cap on generation goroutines.

	ShardCount    int
	BufferSize    int // Per-shard buffer in bytes.
	QueueCapacity int
	ShardQueue    int // Depth of each dispatcher-to-shard channel.
	FlushInterval time.Duration

	OutputPath string // Base file name; empty writes shard 0 to stdout.
	Silent     bool   // Without OutputPath, discard output instead of printing it.
	Compress   bool   // Gzip shard files.

	Rate       float64 // Lines per second across all workers; 0 is unlimited.
	PinWorkers bool
	Separator  string
	Verbose    bool

	// Writers replaces file/stdout destinations, one per shard. The caller
	// owns them; they are flushed but never closed.
	Writers []io.Writer
}

// DefaultConfig returns a Config with the stock tuning values and no inputs.
func DefaultConfig() *Config {
	return &Config{
		MaxLevel:      1,
		Workers:       DefaultWorkers,
		MaxThreads:    DefaultMaxThreads,
		ShardCount:    1,
		BufferSize:    DefaultShardBufferMB * 1024 * 1024,
		QueueCapacity: DefaultQueueCapacity,
		ShardQueue:    ShardQueueCapacity,
		FlushInterval: DefaultFlushInterval,
		Separator:     DefaultSeparator,
	}
}

// Validate checks the configuration without touching any destination.
func (c *Config) Validate() error {
	switch {
	case len(c.Words) == 0:
		return configError("words", "word list is empty")
	case len(c.Domains) == 0:
		return configError("domains", "domain list is empty")
	case c.MaxLevel < 1:
		return configError("level", fmt.Sprintf("level must be >= 1, got %d", c.MaxLevel))
	case c.Workers < 1:
		return configError("threads", "thread count must be >= 1")
	case c.MaxThreads < 1:
		return configError("max-threads", "max threads must be >= 1")
	case c.ShardCount < 1:
		return configError("shards", "shard count must be >= 1")
	case c.BufferSize < 1:
		return configError("buffer", "buffer size must be > 0")
	case c.QueueCapacity < 1:
		return configError("queue", "queue capacity must be > 0")
	case c.FlushInterval < 0:
		return configError("flush-interval", "flush interval must not be negative")
	case c.Rate < 0:
		return configError("rate", "rate must not be negative")
	}

	if c.Writers != nil {
		if len(c.Writers) != c.ShardCount {
			return configError("shards", fmt.Sprintf("%d writers for %d shards", len(c.Writers), c.ShardCount))
		}
		return nil
	}
	if c.OutputPath == "" && c.Compress {
		return configError("compress", "compression requires an output file")
	}
	return nil
}

// stdoutOnly reports whether every line goes to standard output.
func (c *Config) stdoutOnly() bool {
	return c.Writers == nil && c.OutputPath == "" && !c.Silent
}

// EffectiveWorkers returns the pool size: Workers capped by MaxThreads and
// MaxWorkers.
func (c *Config) EffectiveWorkers() int {
	n := c.Workers
	if c.MaxThreads < n {
		n = c.MaxThreads
	}
	if MaxWorkers < n {
		n = MaxWorkers
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Engine wires one run: generation workers feed the bounded queue, the
// dispatcher deals lines to shards round-robin, and the coordinator owns
// shutdown. An Engine runs once.
type Engine struct {
	cfg *Config

	queue      *BoundedQueue
	dispatcher *Dispatcher
	generator  *Generator
	coord      *Coordinator
	stats      *Stats

	shards  atomic.Pointer[[]*shardio.ShardWriter] // Set once Run opened them.
	started atomic.Bool
}

// NewEngine validates cfg and builds every component. Nothing is opened or
// written here, so configuration errors leave no output behind.
func NewEngine(cfg *Config) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.ShardQueue < 1 {
		cfg.ShardQueue = ShardQueueCapacity
	}
	if cfg.stdoutOnly() && cfg.ShardCount > 1 {
		log.Printf("No output file given: writing %d shards to stdout as a single stream", cfg.ShardCount)
		cfg.ShardCount = 1
	}

	spaces, err := BuildLevelSpaces(cfg.Words, cfg.MaxLevel)
	if err != nil {
		return nil, err
	}

	queue, err := NewBoundedQueue(cfg.QueueCapacity)
	if err != nil {
		return nil, err
	}
	dispatcher, err := NewDispatcher(queue, cfg.ShardCount, cfg.ShardQueue)
	if err != nil {
		return nil, err
	}

	coord := NewCoordinator()
	stats := &Stats{StartTime: time.Now()}
	generator, err := NewGenerator(cfg.Domains, spaces, GeneratorOptions{
		Workers:    cfg.EffectiveWorkers(),
		Separator:  cfg.Separator,
		Filter:     cfg.Filter,
		Limiter:    NewRateLimiter(cfg.Rate),
		PinWorkers: cfg.PinWorkers,
		Verbose:    cfg.Verbose,
	}, queue, coord, stats)
	if err != nil {
		return nil, err
	}

	return &Engine{
		cfg:        cfg,
		queue:      queue,
		dispatcher: dispatcher,
		generator:  generator,
		coord:      coord,
		stats:      stats,
	}, nil
}

// Run executes the whole pipeline and blocks until every shard is closed.
//
// It returns nil after a complete run, ErrShutdownRequested when ctx was
// cancelled (or RequestShutdown called) and all generated lines were still
// flushed, or the first fatal error (ErrIO wrapped) after an aborted run.
func (e *Engine) Run(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return errors.New("engine already started")
	}
	stop := e.coord.Watch(ctx)
	defer stop()

	shards, err := e.openShards()
	if err != nil {
		e.coord.Abort(err)
		return e.coord.Finish(nil)
	}
	e.shards.Store(&shards)

	log.Printf("Generating %d levels for %d domains from %d words with %d workers into %d shard(s)",
		e.cfg.MaxLevel, len(e.cfg.Domains), len(e.cfg.Words), e.cfg.EffectiveWorkers(), len(shards))

	var writers sync.WaitGroup
	for i, w := range shards {
		writers.Add(1)
		go func(w *shardio.ShardWriter, in <-chan string) {
			defer writers.Done()
			_ = w.Run(in, func(err error) {
				e.coord.Abort(fmt.Errorf("%w: %w", ErrIO, err))
			})
		}(w, e.dispatcher.Shard(i))
	}

	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		e.dispatcher.Run()
	}()

	samplerDone := make(chan struct{})
	var sampler sync.WaitGroup
	if metrics.IsMetricsEnabled() {
		sampler.Add(1)
		go func() {
			defer sampler.Done()
			e.sampleMetrics(samplerDone)
		}()
	}

	// Blocked producers and throttled workers must both observe cancellation.
	e.queue.CancelOn(e.coord.Done())
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-e.coord.Done():
			cancel()
		case <-runCtx.Done():
		}
	}()

	if err := e.generator.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		e.coord.Abort(err)
	}
	// From here on a cancelled ctx only counts if generation stopped early.
	stop()
	if e.interruptedBy(ctx) {
		e.coord.RequestShutdown()
	}

	e.coord.BeginDrain()
	e.queue.Close()
	<-dispatched
	writers.Wait()

	close(samplerDone)
	sampler.Wait()

	for _, w := range shards {
		if st := w.Stats(); st.Dropped > 0 {
			log.Printf("Shard %d (%s) failed: %d lines were not written", st.ID, st.Destination, st.Dropped)
		}
	}

	if e.cfg.Verbose {
		snap := e.stats.Snapshot()
		log.Printf("Run finished in %v: generated=%d filtered=%d dispatched=%d",
			snap.Elapsed.Round(time.Millisecond), snap.Generated, snap.Filtered, e.dispatcher.Total())
	}
	return e.coord.Finish(nil)
}

// interruptedBy reports whether ctx was cancelled before every planned
// combination had been generated or filtered.
func (e *Engine) interruptedBy(ctx context.Context) bool {
	return ctx.Err() != nil && !e.stats.Complete()
}

// openShards creates one writer per shard. On failure every writer opened so
// far is closed.
func (e *Engine) openShards() ([]*shardio.ShardWriter, error) {
	opts := &shardio.ShardOptions{
		BufferSize:    e.cfg.BufferSize,
		FlushInterval: e.cfg.FlushInterval,
		Compressed:    e.cfg.Compress,
	}
	n := e.cfg.ShardCount
	shards := make([]*shardio.ShardWriter, 0, n)

	switch {
	case e.cfg.Writers != nil:
		for i, w := range e.cfg.Writers {
			shards = append(shards, shardio.NewShardWriter(i, fmt.Sprintf("writer-%d", i), w, nil, opts))
		}
	case e.cfg.OutputPath != "":
		for i, path := range util.ShardFilenames(e.cfg.OutputPath, n, e.cfg.Compress) {
			w, err := shardio.OpenShardFile(i, path, opts)
			if err != nil {
				for _, opened := range shards {
					_ = opened.Close()
				}
				return nil, fmt.Errorf("%w: %w", ErrIO, err)
			}
			shards = append(shards, w)
		}
	case e.cfg.Silent:
		for i := 0; i < n; i++ {
			shards = append(shards, shardio.NewShardWriter(i, "discard", io.Discard, nil, opts))
		}
	default:
		shards = append(shards, shardio.NewStdoutShard(0, opts))
	}
	return shards, nil
}

// sampleMetrics publishes queue depths until done is closed.
func (e *Engine) sampleMetrics(done <-chan struct{}) {
	ticker := time.NewTicker(MetricsSampleInterval)
	defer ticker.Stop()
	for {
		e.sampleOnce()
		select {
		case <-done:
			e.sampleOnce()
			return
		case <-ticker.C:
		}
	}
}

func (e *Engine) sampleOnce() {
	m := metrics.GetMetrics()
	m.UpdateQueueMetrics("generate", e.queue.Len(), e.queue.Cap(), e.queue.BackpressureHits())
	for i, depth := range e.dispatcher.ShardDepths() {
		m.UpdateQueueMetrics("shard-"+metrics.ShardLabel(i), depth, e.cfg.ShardQueue, 0)
	}
}

// Stats returns the live generation counters.
func (e *Engine) Stats() *Stats { return e.stats }

// Shards returns the shard writers once Run has opened them.
func (e *Engine) Shards() []*shardio.ShardWriter {
	if p := e.shards.Load(); p != nil {
		return *p
	}
	return nil
}

// Dispatcher returns the round-robin dispatcher.
func (e *Engine) Dispatcher() *Dispatcher { return e.dispatcher }

// Coordinator returns the shutdown coordinator.
func (e *Engine) Coordinator() *Coordinator { return e.coord }

// Queue returns the generation queue.
func (e *Engine) Queue() *BoundedQueue { return e.queue }

// Config returns the validated configuration.
func (e *Engine) Config() *Config { return e.cfg }
