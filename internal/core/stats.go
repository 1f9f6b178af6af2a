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
	"time"
)

// Stats uses atomic counters for safe concurrent updates from workers.
// Goal: Provide observability without lock contention.
type Stats struct {
	Planned      atomic.Uint64 // Sum over pairs of m^L, before filtering.
	Generated    atomic.Uint64 // Lines pushed onto the queue.
	Filtered     atomic.Uint64 // Tuples rejected by the word filter.
	RangesTotal  atomic.Int64
	RangesDone   atomic.Int64
	PairsTotal   atomic.Int64
	PlannedExact atomic.Bool // False when Planned saturated.
	StartTime    time.Time
}

// Snapshot is a plain copy of Stats plus derived values, for printing.
type Snapshot struct {
	Planned    uint64
	Generated  uint64
	Filtered   uint64
	RangesDone int64
	Ranges     int64
	Elapsed    time.Duration
	Rate       float64 // Lines per second since start.
}

// Snapshot copies the counters.
func (s *Stats) Snapshot() Snapshot {
	elapsed := time.Since(s.StartTime)
	snap := Snapshot{
		Planned:    s.Planned.Load(),
		Generated:  s.Generated.Load(),
		Filtered:   s.Filtered.Load(),
		RangesDone: s.RangesDone.Load(),
		Ranges:     s.RangesTotal.Load(),
		Elapsed:    elapsed,
	}
	if secs := elapsed.Seconds(); secs > 0 {
		snap.Rate = float64(snap.Generated) / secs
	}
	return snap
}

// Complete reports whether every planned combination was either generated
// or filtered. A saturated plan is never complete.
func (s *Stats) Complete() bool {
	if !s.PlannedExact.Load() {
		return false
	}
	return s.Generated.Load()+s.Filtered.Load() >= s.Planned.Load()
}

// Percent returns generated+filtered over planned, in percent.
func (s Snapshot) Percent() float64 {
	if s.Planned == 0 {
		return 0
	}
	return float64(s.Generated+s.Filtered) / float64(s.Planned) * 100
}
