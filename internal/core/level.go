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
	"fmt"
	"math/bits"
	"strconv"
)

// LevelSpace is the flat index space of every ordered L-tuple (with repetition)
// drawn from a word list. Index i selects, for position j in [0, L), the word
// at (i / m^j) mod m where m is the number of words. Nothing is materialized;
// decoding one index costs O(L), which lets any contiguous index range be
// handed to a worker without coordination.
type LevelSpace struct {
	words []string // Read-only for the lifetime of the run.
	level int
	size  uint64 // m^level, checked for overflow at construction.
}

// NewLevelSpace validates the inputs and computes m^level.
// It fails with ErrConfiguration for an empty word list, a level below 1,
// or an index space that does not fit in a uint64.
func NewLevelSpace(words []string, level int) (*LevelSpace, error) {
	if len(words) == 0 {
		return nil, configError("words", "word list is empty")
	}
	if level < 1 {
		return nil, configError("level", "level must be >= 1, got "+strconv.Itoa(level))
	}
	size, ok := spaceSize(uint64(len(words)), level)
	if !ok {
		return nil, configError("level", fmt.Sprintf("%d words at level %d overflows the index space", len(words), level))
	}
	return &LevelSpace{words: words, level: level, size: size}, nil
}

// spaceSize returns m^level and false on uint64 overflow.
func spaceSize(m uint64, level int) (uint64, bool) {
	if m == 1 {
		return 1, true
	}
	size := uint64(1)
	for i := 0; i < level; i++ {
		hi, lo := bits.Mul64(size, m)
		if hi != 0 {
			return 0, false
		}
		size = lo
	}
	return size, true
}

// Size returns the number of tuples in the space (m^L).
func (s *LevelSpace) Size() uint64 { return s.size }

// Level returns L.
func (s *LevelSpace) Level() int { return s.level }

// Words returns the shared word slice. Callers must not modify it.
func (s *LevelSpace) Words() []string { return s.words }

// Decode writes the L word indices of tuple index into dst (reusing its
// backing array) and returns it. index must be below Size().
// Hot Path: Yes. No allocation when cap(dst) >= L.
func (s *LevelSpace) Decode(index uint64, dst []int) []int {
	dst = dst[:0]
	m := uint64(len(s.words))
	for j := 0; j < s.level; j++ {
		dst = append(dst, int(index%m))
		index /= m
	}
	return dst
}

// AppendCombination appends the words selected by digits joined with sep,
// followed by sep and domain, to dst.
func (s *LevelSpace) AppendCombination(dst []byte, digits []int, sep, domain string) []byte {
	for j, d := range digits {
		if j > 0 {
			dst = append(dst, sep...)
		}
		dst = append(dst, s.words[d]...)
	}
	dst = append(dst, sep...)
	dst = append(dst, domain...)
	return dst
}

// Combination decodes index and returns the joined string. Convenience for
// tests and diagnostics; workers use Decode and AppendCombination directly.
func (s *LevelSpace) Combination(index uint64, sep, domain string) string {
	digits := s.Decode(index, make([]int, 0, s.level))
	return string(s.AppendCombination(nil, digits, sep, domain))
}

// BuildLevelSpaces validates every level in [1, maxLevel] up front so that an
// overflow at a deep level is reported before any output is produced.
func BuildLevelSpaces(words []string, maxLevel int) ([]*LevelSpace, error) {
	if maxLevel < 1 {
		return nil, configError("level", "level must be >= 1, got "+strconv.Itoa(maxLevel))
	}
	spaces := make([]*LevelSpace, 0, maxLevel)
	for level := 1; level <= maxLevel; level++ {
		s, err := NewLevelSpace(words, level)
		if err != nil {
			return nil, err
		}
		spaces = append(spaces, s)
	}
	return spaces, nil
}

// TotalSize sums the sizes of all spaces, multiplied by the number of domains.
// It saturates at the maximum uint64 and reports false in that case; the total
// is only used for progress reporting.
func TotalSize(spaces []*LevelSpace, domains int) (uint64, bool) {
	var total uint64
	for _, s := range spaces {
		hi, lo := bits.Mul64(s.size, uint64(domains))
		if hi != 0 {
			return ^uint64(0), false
		}
		sum, carry := bits.Add64(total, lo, 0)
		if carry != 0 {
			return ^uint64(0), false
		}
		total = sum
	}
	return total, true
}
