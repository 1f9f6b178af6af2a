package main

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
	"fmt"
	"os"
	"time"

	"github.com/x-stp/mksub/internal/core"
)

// displayStats periodically shows generation progress on stderr.
func displayStats(ctx context.Context, engine *core.Engine) {
	ticker := time.NewTicker(core.StatsReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			snap := engine.Stats().Snapshot()
			queue := engine.Queue()
			planned := fmt.Sprintf("%d", snap.Planned)
			if !engine.Stats().PlannedExact.Load() {
				planned = "overflow"
			}

			// Use carriage return to update the line in place
			fmt.Fprintf(os.Stderr, "\rGenerated: %d / %s (%.1f%%) | Filtered: %d | Ranges: %d/%d | Rate: %.0f lines/s | Queue: %d/%d | Written: %s",
				snap.Generated,
				planned,
				snap.Percent(),
				snap.Filtered,
				snap.RangesDone,
				snap.Ranges,
				snap.Rate,
				queue.Len(),
				queue.Cap(),
				formatBytes(writtenBytes(engine)),
			)
		case <-ctx.Done():
			return
		}
	}
}

// displayFinalStats shows the summary statistics at the end.
func displayFinalStats(engine *core.Engine) {
	snap := engine.Stats().Snapshot()

	fmt.Fprintln(os.Stderr)
	fmt.Fprintf(os.Stderr, "\n--- Final Generation Statistics ---\n")
	fmt.Fprintf(os.Stderr, " Run Time: %v\n", snap.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(os.Stderr, " State: %s\n", engine.Coordinator().State())
	fmt.Fprintf(os.Stderr, " Planned Combinations: %d\n", snap.Planned)
	fmt.Fprintf(os.Stderr, " Generated Lines: %d\n", snap.Generated)
	fmt.Fprintf(os.Stderr, " Filtered Out: %d\n", snap.Filtered)
	fmt.Fprintf(os.Stderr, " Average Rate: %.2f lines/sec\n", snap.Rate)
	fmt.Fprintf(os.Stderr, " Queue Backpressure Waits: %d\n", engine.Queue().BackpressureHits())
	fmt.Fprintf(os.Stderr, " Output Written: %s\n", formatBytes(writtenBytes(engine)))

	dispatched := engine.Dispatcher().Dispatched()
	for _, shard := range engine.Shards() {
		st := shard.Stats()
		fmt.Fprintf(os.Stderr, "  shard %d (%s): dispatched=%d lines=%d bytes=%d flushes=%d dropped=%d xxh3=%016x\n",
			st.ID, st.Destination, dispatched[st.ID], st.LinesAccepted, st.BytesFlushed, st.FlushCount, st.Dropped, st.Digest)
	}
	fmt.Fprintf(os.Stderr, "-----------------------------------\n")
}

func writtenBytes(engine *core.Engine) int64 {
	var total int64
	for _, shard := range engine.Shards() {
		total += shard.Stats().BytesFlushed
	}
	return total
}

// formatBytes renders n with a binary unit suffix.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
