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
	"time"
)

// Application-wide constants for tuning performance and behavior.
const (
	// --- Workers ---

	// MaxWorkers defines the absolute upper limit on the number of concurrent generation
	// goroutines. This acts as a safeguard regardless of what the user asks for.
	MaxWorkers = 2048

	// DefaultWorkers mirrors the historical --threads default. The effective pool size is
	// further capped by MaxThreads and MaxWorkers.
	DefaultWorkers = 100

	// DefaultMaxThreads is the default global hard cap on worker goroutines.
	DefaultMaxThreads = 100000

	// CacheLineSize is a common CPU cache line size in bytes. Used to pad the hot
	// round-robin counter away from neighbouring fields.
	CacheLineSize = 64

	// --- Queue ---

	// DefaultQueueCapacity bounds the number of generated lines held between
	// generation workers and the dispatcher. Shard channels use ShardQueueCapacity.
	DefaultQueueCapacity = 100000

	// ShardQueueCapacity is the depth of each dispatcher-to-shard channel.
	ShardQueueCapacity = 4096

	// --- Disk I/O ---

	// DefaultShardBufferMB is the default per-shard write buffer in MiB.
	DefaultShardBufferMB = 100

	// DefaultFlushInterval forces a flush of partially filled shard buffers so that
	// streaming consumers (stdout pipes) are not starved.
	DefaultFlushInterval = 2 * time.Second

	// DefaultSeparator joins words with each other and with the base domain.
	DefaultSeparator = "."

	// --- Rate limiting ---

	// RateBatchSize is the number of lines a worker reserves from the shared rate
	// limiter at once. Reserving per line would make the limiter the bottleneck.
	RateBatchSize = 256

	// --- Observability ---

	// StatsReportInterval specifies how frequently progress statistics are printed.
	StatsReportInterval = 2 * time.Second

	// MetricsSampleInterval is how often queue depth gauges are sampled.
	MetricsSampleInterval = time.Second
)
