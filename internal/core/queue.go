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
	"sync"
	"sync/atomic"
)

// BoundedQueue is a fixed-capacity multi-producer/multi-consumer hand-off of
// generated lines. Push blocks while the queue is full and Pop blocks while it
// is empty; neither ever drops an item. Close unblocks both: pending pushes
// fail with ErrQueueClosed and Pop drains what is left before reporting closed.
//
// The buffered channel is the only locking boundary between generation
// workers and the dispatcher, and its capacity is what bounds memory.
type BoundedQueue struct {
	items  chan string
	done   chan struct{}   // Closed first on Close to release blocked producers.
	cancel <-chan struct{} // Optional run-wide cancellation; nil blocks forever.

	mu     sync.RWMutex // Held shared by Push, exclusively by Close around close(items).
	closed bool

	closeOnce    sync.Once
	backpressure atomic.Int64 // Pushes that found the queue full.
}

// NewBoundedQueue creates a queue holding at most capacity items.
func NewBoundedQueue(capacity int) (*BoundedQueue, error) {
	if capacity <= 0 {
		return nil, configError("queue", "queue capacity must be > 0")
	}
	return &BoundedQueue{
		items: make(chan string, capacity),
		done:  make(chan struct{}),
	}, nil
}

// CancelOn makes blocked pushes return ErrQueueClosed as soon as done is
// closed, without waiting for Close. Must be called before producers start.
func (q *BoundedQueue) CancelOn(done <-chan struct{}) {
	q.cancel = done
}

// Push enqueues item, blocking while the queue is full.
// Hot Path: Yes. The fast path is a single non-blocking channel send.
func (q *BoundedQueue) Push(item string) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.items <- item:
		return nil
	default:
	}

	q.backpressure.Add(1)
	select {
	case q.items <- item:
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-q.cancel:
		return ErrQueueClosed
	}
}

// Pop dequeues the next item. It returns false once the queue has been closed
// and fully drained.
func (q *BoundedQueue) Pop() (string, bool) {
	item, ok := <-q.items
	return item, ok
}

// C exposes the receive side for consumers that select on several sources.
func (q *BoundedQueue) C() <-chan string { return q.items }

// Close stops admission. Producers blocked in Push return ErrQueueClosed;
// items already enqueued remain available to Pop. Safe to call repeatedly.
func (q *BoundedQueue) Close() {
	q.closeOnce.Do(func() {
		close(q.done)
		q.mu.Lock()
		q.closed = true
		close(q.items)
		q.mu.Unlock()
	})
}

// Len returns the number of items currently queued.
func (q *BoundedQueue) Len() int { return len(q.items) }

// Cap returns the configured capacity.
func (q *BoundedQueue) Cap() int { return cap(q.items) }

// BackpressureHits returns how many pushes had to wait for space.
func (q *BoundedQueue) BackpressureHits() int64 { return q.backpressure.Load() }
