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
	"log"
	"sync"
	"sync/atomic"

	"github.com/x-stp/mksub/internal/metrics"
)

// State is a Coordinator lifecycle state.
type State int32

const (
	StateRunning State = iota
	StateDraining
	StateFlushed
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "RUNNING"
	case StateDraining:
		return "DRAINING"
	case StateFlushed:
		return "FLUSHED"
	case StateAborted:
		return "ABORTED"
	}
	return "UNKNOWN"
}

// Coordinator owns the run's cancellation flag and lifecycle state.
//
//	RUNNING -> DRAINING -> FLUSHED
//	RUNNING -> DRAINING -> ABORTED
//
// Generation workers only read Cancelled(); nothing but the coordinator
// reacts to the external signal source.
type Coordinator struct {
	state     atomic.Int32
	cancelled atomic.Bool // Observed by workers between items.
	requested atomic.Bool // An external shutdown request was observed.

	errMu    sync.Mutex
	firstErr error

	done     chan struct{} // Closed on the first cancellation.
	doneOnce sync.Once
}

// NewCoordinator returns a coordinator in the RUNNING state.
func NewCoordinator() *Coordinator {
	return &Coordinator{done: make(chan struct{})}
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State { return State(c.state.Load()) }

// Cancelled reports whether workers must stop producing.
// Hot Path: Yes. A single atomic load.
func (c *Coordinator) Cancelled() bool { return c.cancelled.Load() }

// Done is closed when cancellation is first requested or a fatal error is recorded.
func (c *Coordinator) Done() <-chan struct{} { return c.done }

// RequestShutdown handles an external interruption. Only the first call while
// RUNNING has an effect; calls after the run finished, or repeated calls, do nothing.
func (c *Coordinator) RequestShutdown() bool {
	if !c.state.CompareAndSwap(int32(StateRunning), int32(StateDraining)) {
		return false
	}
	log.Println("Shutdown requested, draining in-flight items...")
	if metrics.IsMetricsEnabled() {
		metrics.GetMetrics().ShutdownRequests.Inc()
	}
	c.requested.Store(true)
	c.cancel()
	return true
}

// Abort records a fatal error (first one wins) and stops generation.
// The run still drains and flushes healthy shards before it ends ABORTED.
func (c *Coordinator) Abort(err error) {
	if err == nil {
		return
	}
	c.errMu.Lock()
	if c.firstErr == nil {
		c.firstErr = err
		log.Printf("Aborting run: %v", err)
	}
	c.errMu.Unlock()
	c.state.CompareAndSwap(int32(StateRunning), int32(StateDraining))
	c.cancel()
}

func (c *Coordinator) cancel() {
	c.cancelled.Store(true)
	c.doneOnce.Do(func() { close(c.done) })
}

// Err returns the first fatal error recorded by Abort.
func (c *Coordinator) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.firstErr
}

// Interrupted reports whether an external shutdown request was observed.
func (c *Coordinator) Interrupted() bool { return c.requested.Load() }

// BeginDrain moves RUNNING -> DRAINING at normal completion (all producers exited).
func (c *Coordinator) BeginDrain() {
	c.state.CompareAndSwap(int32(StateRunning), int32(StateDraining))
}

// Finish records the terminal state after every shard has been flushed and
// closed. Any error recorded by Abort, or flushErr, makes the run ABORTED.
// Finish returns the run result.
func (c *Coordinator) Finish(flushErr error) error {
	if flushErr != nil {
		c.Abort(flushErr)
	}
	c.BeginDrain()
	if err := c.Err(); err != nil {
		c.state.Store(int32(StateAborted))
		return err
	}
	c.state.Store(int32(StateFlushed))
	if c.Interrupted() {
		return ErrShutdownRequested
	}
	return nil
}

// Watch requests a shutdown when ctx is cancelled. It returns a stop function
// that releases the watcher goroutine; call it once the run has finished.
func (c *Coordinator) Watch(ctx context.Context) (stop func()) {
	quit := make(chan struct{})
	var once sync.Once
	go func() {
		select {
		case <-ctx.Done():
			select {
			case <-quit:
				return // Stopped before the cancellation was observed.
			default:
			}
			c.RequestShutdown()
		case <-quit:
		}
	}()
	return func() { once.Do(func() { close(quit) }) }
}
