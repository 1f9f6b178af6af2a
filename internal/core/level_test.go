package core

import (
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLevelSpaceCoversEveryTuple(t *testing.T) {
	t.Parallel()

	words := []string{"a", "b", "c"}
	for level := 1; level <= 4; level++ {
		space, err := NewLevelSpace(words, level)
		require.NoError(t, err)

		want := uint64(1)
		for i := 0; i < level; i++ {
			want *= uint64(len(words))
		}
		require.Equal(t, want, space.Size())

		seen := make(map[string]struct{}, space.Size())
		digits := make([]int, 0, level)
		for i := uint64(0); i < space.Size(); i++ {
			digits = space.Decode(i, digits)
			require.Len(t, digits, level)
			for _, d := range digits {
				require.GreaterOrEqual(t, d, 0)
				require.Less(t, d, len(words))
			}
			line := string(space.AppendCombination(nil, digits, ".", "example.com"))
			_, dup := seen[line]
			require.False(t, dup, "duplicate combination %q at index %d", line, i)
			seen[line] = struct{}{}
		}
		require.Len(t, seen, int(want))
	}
}

func TestLevelSpaceDecodeOrder(t *testing.T) {
	t.Parallel()

	space, err := NewLevelSpace([]string{"api", "dev"}, 2)
	require.NoError(t, err)

	got := make([]string, 0, space.Size())
	for i := uint64(0); i < space.Size(); i++ {
		got = append(got, space.Combination(i, ".", "example.com"))
	}
	require.Equal(t, []string{
		"api.api.example.com",
		"dev.api.example.com",
		"api.dev.example.com",
		"dev.dev.example.com",
	}, got)
}

func TestLevelSpaceSingleWord(t *testing.T) {
	t.Parallel()

	space, err := NewLevelSpace([]string{"www"}, 64)
	require.NoError(t, err)
	require.Equal(t, uint64(1), space.Size())

	space, err = NewLevelSpace([]string{"www"}, 3)
	require.NoError(t, err)
	require.Equal(t, "www.www.www.example.com", space.Combination(0, ".", "example.com"))
}

func TestLevelSpaceRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	_, err := NewLevelSpace(nil, 1)
	require.ErrorIs(t, err, ErrConfiguration)

	_, err = NewLevelSpace([]string{"a"}, 0)
	require.ErrorIs(t, err, ErrConfiguration)

	_, err = BuildLevelSpaces([]string{"a"}, -1)
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestLevelSpaceOverflow(t *testing.T) {
	t.Parallel()

	words := make([]string, 1<<16)
	for i := range words {
		words[i] = "w" + strconv.Itoa(i)
	}

	space, err := NewLevelSpace(words, 3)
	require.NoError(t, err)
	require.Equal(t, uint64(1)<<48, space.Size())

	_, err = NewLevelSpace(words, 4)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrConfiguration))
	require.Equal(t, KindConfiguration, KindOf(err))

	// Every level is checked up front.
	_, err = BuildLevelSpaces(words, 5)
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestTotalSize(t *testing.T) {
	t.Parallel()

	spaces, err := BuildLevelSpaces([]string{"a", "b", "c"}, 3)
	require.NoError(t, err)
	require.Len(t, spaces, 3)

	total, exact := TotalSize(spaces, 2)
	require.True(t, exact)
	require.Equal(t, uint64((3+9+27)*2), total)

	words := make([]string, 1<<16)
	for i := range words {
		words[i] = strconv.Itoa(i)
	}
	big, err := BuildLevelSpaces(words, 3)
	require.NoError(t, err)
	total, exact = TotalSize(big, 1<<20)
	require.False(t, exact)
	require.Equal(t, ^uint64(0), total)
}

func BenchmarkAppendCombination(b *testing.B) {
	space, err := NewLevelSpace([]string{"api", "dev", "staging", "cdn", "img"}, 3)
	if err != nil {
		b.Fatal(err)
	}
	digits := make([]int, 0, 3)
	buf := make([]byte, 0, 64)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		digits = space.Decode(uint64(i)%space.Size(), digits)
		buf = space.AppendCombination(buf[:0], digits, ".", "example.com")
	}
}
