package metrics

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
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry           = prometheus.NewRegistry()
	defaultRegisterer  = promauto.With(registry)
	metricsInitialized sync.Once
	metricsEnabled     bool
	metricsServer      *http.Server
)

// Metrics contains all the Prometheus metrics for the application
type Metrics struct {
	// Generation metrics
	CombinationsGenerated *prometheus.CounterVec
	CombinationsFiltered  *prometheus.CounterVec
	RangeDuration         *prometheus.HistogramVec

	// Queue metrics
	QueueSize            *prometheus.GaugeVec
	QueueCapacity        *prometheus.GaugeVec
	QueuePressure        *prometheus.GaugeVec
	QueueBackpressureHit *prometheus.GaugeVec

	// Worker metrics
	WorkerBusy       *prometheus.GaugeVec
	WorkerRanges     *prometheus.CounterVec
	WorkerRateWait   *prometheus.HistogramVec
	DispatchedTotal  *prometheus.CounterVec
	ShutdownRequests prometheus.Counter

	// Disk I/O metrics
	DiskWriteDuration *prometheus.HistogramVec
	DiskWriteBytes    *prometheus.CounterVec
	DiskWriteOps      *prometheus.CounterVec
	DiskErrors        *prometheus.CounterVec
	DiskBufferSize    *prometheus.GaugeVec
}

// Global instance of metrics
var globalMetrics *Metrics
var metricsOnce sync.Once

// GetMetrics returns the global metrics instance
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = newMetrics()
	})
	return globalMetrics
}

// EnableMetrics enables metrics collection
func EnableMetrics() {
	metricsEnabled = true
}

// IsMetricsEnabled returns whether metrics collection is enabled
func IsMetricsEnabled() bool {
	return metricsEnabled
}

// Registry exposes the private registry, mainly for tests.
func Registry() *prometheus.Registry {
	return registry
}

// newMetrics creates and registers all metrics
func newMetrics() *Metrics {
	buckets := []float64{.0001, .0005, .001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60}

	m := &Metrics{
		CombinationsGenerated: defaultRegisterer.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mksub_combinations_generated_total",
				Help: "Total number of combinations pushed to the output queue",
			},
			[]string{"level"},
		),
		CombinationsFiltered: defaultRegisterer.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mksub_combinations_filtered_total",
				Help: "Total number of tuples rejected because a component word failed the filter",
			},
			[]string{"level"},
		),
		RangeDuration: defaultRegisterer.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mksub_work_range_duration_seconds",
				Help:    "Time spent by a worker generating one work range",
				Buckets: buckets,
			},
			[]string{"level"},
		),

		QueueSize: defaultRegisterer.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mksub_queue_size",
				Help: "Current number of lines held in a queue",
			},
			[]string{"queue"},
		),
		QueueCapacity: defaultRegisterer.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mksub_queue_capacity",
				Help: "Maximum capacity of a queue",
			},
			[]string{"queue"},
		),
		QueuePressure: defaultRegisterer.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mksub_queue_pressure",
				Help: "Queue pressure as a ratio of current size to capacity (0-1)",
			},
			[]string{"queue"},
		),
		QueueBackpressureHit: defaultRegisterer.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mksub_queue_backpressure_hits",
				Help: "Number of pushes that had to wait because the queue was full",
			},
			[]string{"queue"},
		),

		WorkerBusy: defaultRegisterer.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mksub_worker_busy",
				Help: "Number of generation workers currently running a range",
			},
			[]string{"pool"},
		),
		WorkerRanges: defaultRegisterer.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mksub_worker_ranges_total",
				Help: "Total number of work ranges completed per worker slot",
			},
			[]string{"slot"},
		),
		WorkerRateWait: defaultRegisterer.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mksub_worker_rate_wait_seconds",
				Help:    "Time workers spend waiting on the emission rate limiter",
				Buckets: buckets,
			},
			[]string{"pool"},
		),
		DispatchedTotal: defaultRegisterer.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mksub_dispatched_total",
				Help: "Total number of lines handed to each shard by the round-robin dispatcher",
			},
			[]string{"shard"},
		),
		ShutdownRequests: defaultRegisterer.NewCounter(
			prometheus.CounterOpts{
				Name: "mksub_shutdown_requests_total",
				Help: "Number of external shutdown requests observed",
			},
		),

		DiskWriteDuration: defaultRegisterer.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mksub_disk_write_duration_seconds",
				Help:    "Time spent flushing a shard buffer to its destination",
				Buckets: buckets,
			},
			[]string{"shard"},
		),
		DiskWriteBytes: defaultRegisterer.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mksub_disk_write_bytes_total",
				Help: "Total number of bytes written to shard destinations",
			},
			[]string{"shard"},
		),
		DiskWriteOps: defaultRegisterer.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mksub_disk_write_ops_total",
				Help: "Total number of flushes (one write each) per shard",
			},
			[]string{"shard"},
		),
		DiskErrors: defaultRegisterer.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mksub_disk_errors_total",
				Help: "Total number of shard I/O errors",
			},
			[]string{"shard", "operation"},
		),
		DiskBufferSize: defaultRegisterer.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mksub_disk_buffer_size_bytes",
				Help: "Configured size of each shard write buffer in bytes",
			},
			[]string{"shard"},
		),
	}

	return m
}

// StartMetricsServer starts an HTTP server to expose Prometheus metrics.
// An empty addr leaves the server disabled.
func StartMetricsServer(addr string) error {
	if !metricsEnabled || addr == "" {
		return nil
	}

	// Only start once
	metricsInitialized.Do(func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

		metricsServer = &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			log.Printf("Starting metrics server on %s", addr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("Metrics server error: %v", err)
			}
		}()
	})

	return nil
}

// ShutdownMetricsServer gracefully shuts down the metrics server
func ShutdownMetricsServer(ctx context.Context) error {
	if metricsServer != nil {
		log.Println("Shutting down metrics server...")
		return metricsServer.Shutdown(ctx)
	}
	return nil
}

// MeasureDuration is a helper to measure the duration of a function
func MeasureDuration(histogram *prometheus.HistogramVec, labels prometheus.Labels) func() {
	if !metricsEnabled {
		return func() {}
	}

	start := time.Now()
	return func() {
		histogram.With(labels).Observe(time.Since(start).Seconds())
	}
}

// UpdateQueueMetrics updates the gauges of a named queue.
func (m *Metrics) UpdateQueueMetrics(queue string, queueSize, queueCapacity int, backpressureHits int64) {
	if !metricsEnabled {
		return
	}

	m.QueueSize.WithLabelValues(queue).Set(float64(queueSize))
	m.QueueCapacity.WithLabelValues(queue).Set(float64(queueCapacity))
	m.QueueBackpressureHit.WithLabelValues(queue).Set(float64(backpressureHits))

	if queueCapacity > 0 {
		pressure := float64(queueSize) / float64(queueCapacity)
		m.QueuePressure.WithLabelValues(queue).Set(pressure)
	}
}

// AddGenerated records emitted and filtered counts for a level.
func (m *Metrics) AddGenerated(level int, emitted, filtered uint64) {
	if !metricsEnabled {
		return
	}
	l := strconv.Itoa(level)
	if emitted > 0 {
		m.CombinationsGenerated.WithLabelValues(l).Add(float64(emitted))
	}
	if filtered > 0 {
		m.CombinationsFiltered.WithLabelValues(l).Add(float64(filtered))
	}
}

// RangeDone records completion of one work range by a worker slot.
func (m *Metrics) RangeDone(slot int) {
	if !metricsEnabled {
		return
	}
	m.WorkerRanges.WithLabelValues(strconv.Itoa(slot)).Inc()
}

// SetWorkerBusy adjusts the busy worker gauge by delta.
func (m *Metrics) SetWorkerBusy(delta float64) {
	if !metricsEnabled {
		return
	}
	m.WorkerBusy.WithLabelValues("generate").Add(delta)
}

// ShardLabel formats a shard index as a label value.
func ShardLabel(shard int) string {
	return strconv.Itoa(shard)
}
