package io

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

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/x-stp/mksub/internal/metrics"
	"github.com/zeebo/xxh3"
)

const (
	// DefaultBufferSize is the default per-shard buffer size (100 MiB).
	DefaultBufferSize = 100 * 1024 * 1024

	// FlushInterval is how often partially filled buffers are flushed automatically
	FlushInterval = 2 * time.Second
)

var (
	// ErrShardWrite wraps any failure to write, flush or close a shard destination.
	ErrShardWrite = errors.New("shard write failed")

	// ErrShardClosed is returned when accepting into a closed shard.
	ErrShardClosed = errors.New("shard closed")
)

// ShardMetrics holds counters for a shard. Updated by the owning goroutine,
// readable from any goroutine.
type ShardMetrics struct {
	LinesAccepted atomic.Int64
	BytesFlushed  atomic.Int64
	FlushCount    atomic.Int64
	ErrorCount    atomic.Int64
	Dropped       atomic.Int64 // Lines discarded after the shard failed.
	LastFlushTime atomic.Int64 // Unix timestamp in nanoseconds
}

// ShardStats is a point-in-time copy of ShardMetrics.
type ShardStats struct {
	ID            int
	Destination   string
	LinesAccepted int64
	BytesFlushed  int64
	FlushCount    int64
	ErrorCount    int64
	Dropped       int64
	Digest        uint64
}

// ShardOptions configures a ShardWriter
type ShardOptions struct {
	BufferSize    int
	FlushInterval time.Duration
	Compressed    bool
}

// DefaultShardOptions returns the default options for a ShardWriter
func DefaultShardOptions() *ShardOptions {
	return &ShardOptions{
		BufferSize:    DefaultBufferSize,
		FlushInterval: FlushInterval,
		Compressed:    false,
	}
}

// ShardWriter owns one output destination and one reusable byte buffer.
// Exactly one goroutine (the one calling Run, or the caller in tests) mutates
// the buffer, so it carries no lock. Each Flush is a single write of the
// buffered bytes, which amortizes syscalls over many lines.
type ShardWriter struct {
	// Immutable after creation
	id            int
	destination   string // For logging/metrics
	dest          io.Writer
	closers       []io.Closer // Closed in order: gzip, then file.
	gz            *gzip.Writer
	capacity      int
	flushInterval time.Duration
	label         string

	// Owned by the writer goroutine
	buf    []byte
	hasher *xxh3.Hasher
	err    error // First failure; sticky.
	closed bool

	digest  atomic.Uint64
	metrics ShardMetrics
}

// NewShardWriter wraps an arbitrary destination. closer may be nil.
func NewShardWriter(id int, destination string, dest io.Writer, closer io.Closer, options *ShardOptions) *ShardWriter {
	if options == nil {
		options = DefaultShardOptions()
	}
	capacity := options.BufferSize
	if capacity <= 0 {
		capacity = DefaultBufferSize
	}
	w := &ShardWriter{
		id:            id,
		destination:   destination,
		dest:          dest,
		capacity:      capacity,
		flushInterval: options.FlushInterval,
		label:         metrics.ShardLabel(id),
		buf:           make([]byte, 0, capacity),
		hasher:        xxh3.New(),
	}
	if closer != nil {
		w.closers = append(w.closers, closer)
	}
	if metrics.IsMetricsEnabled() {
		metrics.GetMetrics().DiskBufferSize.WithLabelValues(w.label).Set(float64(capacity))
	}
	return w
}

// OpenShardFile creates (truncating) the file at path and returns a writer for it.
// With options.Compressed the stream is gzip encoded.
func OpenShardFile(id int, path string, options *ShardOptions) (*ShardWriter, error) {
	if options == nil {
		options = DefaultShardOptions()
	}

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: failed to create directory %s: %w", ErrShardWrite, dir, err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open file %s: %w", ErrShardWrite, path, err)
	}

	if !options.Compressed {
		return NewShardWriter(id, path, file, file, options), nil
	}

	gzw, err := gzip.NewWriterLevel(file, gzip.BestSpeed)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: failed to create gzip writer: %w", ErrShardWrite, err)
	}
	w := NewShardWriter(id, path, gzw, nil, options)
	w.gz = gzw
	w.closers = []io.Closer{gzw, file}
	return w, nil
}

// NewStdoutShard returns a shard writing to the process's standard output.
// Stdout is flushed but never closed.
func NewStdoutShard(id int, options *ShardOptions) *ShardWriter {
	return NewShardWriter(id, "stdout", os.Stdout, nil, options)
}

// ID returns the shard index.
func (w *ShardWriter) ID() int { return w.id }

// Destination describes where the shard writes.
func (w *ShardWriter) Destination() string { return w.destination }

// Capacity returns the buffer capacity in bytes.
func (w *ShardWriter) Capacity() int { return w.capacity }

// Buffered returns the number of bytes waiting for the next flush.
func (w *ShardWriter) Buffered() int { return len(w.buf) }

// Err returns the first failure recorded by the shard.
func (w *ShardWriter) Err() error { return w.err }

// Accept appends line plus a line terminator to the buffer. If that would
// exceed the capacity, the buffer is flushed first. A line that cannot fit
// even in an empty buffer is written on its own in a single write.
// Hot Path: Yes. Pure in-memory append except at flush boundaries.
func (w *ShardWriter) Accept(line string) error {
	if w.closed {
		return ErrShardClosed
	}
	if w.err != nil {
		return w.err
	}

	need := len(line) + 1
	if len(w.buf)+need > w.capacity {
		if err := w.Flush(); err != nil {
			return err
		}
	}

	w.buf = append(w.buf, line...)
	w.buf = append(w.buf, '\n')
	w.metrics.LinesAccepted.Add(1)

	if need > w.capacity {
		err := w.Flush()
		// Do not keep an oversized backing array around.
		w.buf = make([]byte, 0, w.capacity)
		return err
	}
	return nil
}

// Flush writes buffered bytes with one write and clears the buffer.
// Flushing an empty buffer is a no-op.
func (w *ShardWriter) Flush() error {
	if w.err != nil {
		return w.err
	}
	if len(w.buf) == 0 {
		return nil
	}

	start := time.Now()
	n, err := w.dest.Write(w.buf)
	if err == nil && n < len(w.buf) {
		err = io.ErrShortWrite
	}
	if err == nil && w.gz != nil {
		err = w.gz.Flush()
	}
	if err != nil {
		return w.fail("flush", err)
	}

	_, _ = w.hasher.Write(w.buf)
	w.digest.Store(w.hasher.Sum64())
	w.metrics.BytesFlushed.Add(int64(n))
	w.metrics.FlushCount.Add(1)
	w.metrics.LastFlushTime.Store(time.Now().UnixNano())
	if metrics.IsMetricsEnabled() {
		m := metrics.GetMetrics()
		m.DiskWriteBytes.WithLabelValues(w.label).Add(float64(n))
		m.DiskWriteOps.WithLabelValues(w.label).Inc()
		m.DiskWriteDuration.WithLabelValues(w.label).Observe(time.Since(start).Seconds())
	}

	w.buf = w.buf[:0]
	return nil
}

// fail records the first error and returns it wrapped in ErrShardWrite.
func (w *ShardWriter) fail(op string, err error) error {
	w.metrics.ErrorCount.Add(1)
	if metrics.IsMetricsEnabled() {
		metrics.GetMetrics().DiskErrors.WithLabelValues(w.label, op).Inc()
	}
	if w.err == nil {
		w.err = fmt.Errorf("%w: shard %d (%s) %s: %w", ErrShardWrite, w.id, w.destination, op, err)
	}
	return w.err
}

// Close flushes and closes the destination. It runs once; later calls return
// the first recorded error.
func (w *ShardWriter) Close() error {
	if w.closed {
		return w.err
	}
	err := w.Flush()
	w.closed = true

	for _, c := range w.closers {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = w.fail("close", cerr)
		}
	}
	return err
}

// Run consumes lines until in is closed, flushing whenever the buffer fills
// and at least every flush interval, then closes the shard. After the first
// failure it keeps draining in (counting dropped lines) so upstream never
// blocks, calls onError once, and returns that error.
func (w *ShardWriter) Run(in <-chan string, onError func(error)) error {
	var tick <-chan time.Time
	if w.flushInterval > 0 {
		ticker := time.NewTicker(w.flushInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	reported := false
	report := func(err error) {
		if !reported && onError != nil {
			reported = true
			onError(err)
		}
	}

	for {
		select {
		case line, ok := <-in:
			if !ok {
				err := w.Close()
				if err != nil {
					report(err)
				}
				return err
			}
			if w.err != nil {
				w.metrics.Dropped.Add(1)
				continue
			}
			if err := w.Accept(line); err != nil {
				report(err)
			}
		case <-tick:
			if w.err == nil && len(w.buf) > 0 {
				if err := w.Flush(); err != nil {
					report(err)
				}
			}
		}
	}
}

// Digest returns the xxh3 hash of every byte flushed so far.
func (w *ShardWriter) Digest() uint64 { return w.digest.Load() }

// Stats returns a snapshot of the shard counters.
func (w *ShardWriter) Stats() ShardStats {
	return ShardStats{
		ID:            w.id,
		Destination:   w.destination,
		LinesAccepted: w.metrics.LinesAccepted.Load(),
		BytesFlushed:  w.metrics.BytesFlushed.Load(),
		FlushCount:    w.metrics.FlushCount.Load(),
		ErrorCount:    w.metrics.ErrorCount.Load(),
		Dropped:       w.metrics.Dropped.Load(),
		Digest:        w.digest.Load(),
	}
}
