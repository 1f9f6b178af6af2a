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
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/x-stp/mksub/internal/metrics"
)

// Dispatcher is the single logical consumer of the BoundedQueue. It hands
// item number c (counting from zero over the whole run) to shard c mod N, so
// any N consecutive items reach N distinct shards. The counter is global to the
// run rather than reset per (domain, level) pair.
type Dispatcher struct {
	queue  *BoundedQueue
	shards []chan string

	_       [CacheLineSize]byte // Keep the hot counter off the shards header.
	counter atomic.Uint64
	_       [CacheLineSize - 8]byte

	perShard []atomic.Int64
	labels   []string
}

// NewDispatcher creates a dispatcher feeding one bounded channel per shard.
// shardQueue is the capacity of each shard's inbound channel.
func NewDispatcher(queue *BoundedQueue, shardCount, shardQueue int) (*Dispatcher, error) {
	if shardCount < 1 {
		return nil, configError("shards", "shard count must be >= 1")
	}
	if shardQueue < 1 {
		return nil, configError("queue", "shard queue capacity must be > 0")
	}
	d := &Dispatcher{
		queue:    queue,
		shards:   make([]chan string, shardCount),
		perShard: make([]atomic.Int64, shardCount),
		labels:   make([]string, shardCount),
	}
	for i := range d.shards {
		d.shards[i] = make(chan string, shardQueue)
		d.labels[i] = metrics.ShardLabel(i)
	}
	return d, nil
}

// Shard returns the inbound channel of shard i for its writer.
func (d *Dispatcher) Shard(i int) <-chan string { return d.shards[i] }

// ShardCount returns N.
func (d *Dispatcher) ShardCount() int { return len(d.shards) }

// next returns the shard index for the next item.
func (d *Dispatcher) next() int {
	return int((d.counter.Add(1) - 1) % uint64(len(d.shards)))
}

// Run drains the queue until it is closed and empty, then closes every shard
// channel. Each item is forwarded before the next one is dequeued, so a shard
// sees its items in dispatcher arrival order.
func (d *Dispatcher) Run() {
	defer func() {
		for _, ch := range d.shards {
			close(ch)
		}
	}()

	var counters []prometheus.Counter
	if metrics.IsMetricsEnabled() {
		m := metrics.GetMetrics()
		counters = make([]prometheus.Counter, len(d.shards))
		for i := range counters {
			counters[i] = m.DispatchedTotal.WithLabelValues(d.labels[i])
		}
	}

	for {
		item, ok := d.queue.Pop()
		if !ok {
			return
		}
		i := d.next()
		d.shards[i] <- item
		d.perShard[i].Add(1)
		if counters != nil {
			counters[i].Inc()
		}
	}
}

// Dispatched returns the number of items forwarded to each shard.
func (d *Dispatcher) Dispatched() []int64 {
	out := make([]int64, len(d.perShard))
	for i := range d.perShard {
		out[i] = d.perShard[i].Load()
	}
	return out
}

// Total returns the number of items dispatched so far.
func (d *Dispatcher) Total() uint64 { return d.counter.Load() }

// ShardDepths returns the current length of each shard channel.
func (d *Dispatcher) ShardDepths() []int {
	out := make([]int, len(d.shards))
	for i, ch := range d.shards {
		out[i] = len(ch)
	}
	return out
}
