package util

import (
	"path/filepath"
	"testing"
)

func TestShardFilename(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name       string
		base       string
		shard      int
		total      int
		compressed bool
		expected   string
	}{
		{"Single shard no extension", "output", 0, 1, false, "output.txt"},
		{"Single shard with extension", "output.txt", 0, 1, false, "output.txt"},
		{"First of two", "output", 0, 2, false, "output-0.txt"},
		{"Second of two", "output", 1, 2, false, "output-1.txt"},
		{"Custom extension", "output.json", 1, 2, false, "output-1.json"},
		{"Keeps directory", filepath.Join("out", "subs.txt"), 3, 4, false, filepath.Join("out", "subs-3.txt")},
		{"Compressed", "output", 0, 1, true, "output.txt.gz"},
		{"Compressed sharded", "output.lst", 1, 2, true, "output-1.lst.gz"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			actual := ShardFilename(tc.base, tc.shard, tc.total, tc.compressed)
			if actual != tc.expected {
				t.Errorf("ShardFilename(%q, %d, %d, %t) = %q; want %q", tc.base, tc.shard, tc.total, tc.compressed, actual, tc.expected)
			}
		})
	}
}

func TestShardFilenamesAreDistinct(t *testing.T) {
	t.Parallel()
	names := ShardFilenames("subs", 8, false)
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if seen[n] {
			t.Fatalf("duplicate shard filename %q", n)
		}
		seen[n] = true
	}
}
