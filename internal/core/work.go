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

import "fmt"

// WorkRange is a half-open interval [Start, End) of tuple indices.
type WorkRange struct {
	Start uint64
	End   uint64
}

// Len returns the number of indices in the range.
func (r WorkRange) Len() uint64 { return r.End - r.Start }

// String implements fmt.Stringer for log lines.
func (r WorkRange) String() string { return fmt.Sprintf("[%d,%d)", r.Start, r.End) }

// Partition splits [0, size) into exactly parts contiguous ranges whose sizes
// differ by at most one. The first size%parts ranges carry the extra index.
// When size < parts the trailing ranges are empty. parts < 1 is treated as 1.
func Partition(size uint64, parts int) []WorkRange {
	if parts < 1 {
		parts = 1
	}
	n := uint64(parts)
	base, rem := size/n, size%n
	ranges := make([]WorkRange, parts)
	var start uint64
	for i := uint64(0); i < n; i++ {
		length := base
		if i < rem {
			length++
		}
		ranges[i] = WorkRange{Start: start, End: start + length}
		start += length
	}
	return ranges
}

// WorkItem is one unit of generation work: a single range of a single
// (domain, level) pair. Ranges of different pairs are never mixed into one item.
type WorkItem struct {
	Domain string
	Space  *LevelSpace
	Range  WorkRange
	Slot   int // Worker slot the range was cut for; used as a metrics label.
}

// String identifies the item in logs.
func (w WorkItem) String() string {
	return fmt.Sprintf("%s L%d %s", w.Domain, w.Space.Level(), w.Range)
}
