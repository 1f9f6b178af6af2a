package core

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestExitCodeAndKind(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		err  error
		kind Kind
		code int
	}{
		{"nil", nil, KindOther, 0},
		{"shutdown", ErrShutdownRequested, KindShutdown, 0},
		{"configuration", configError("level", "level must be >= 1"), KindConfiguration, 2},
		{"filter", fmt.Errorf("%w: bad pattern", ErrFilter), KindFilter, 3},
		{"io", fmt.Errorf("%w: shard 0: %w", ErrIO, errors.New("disk full")), KindIO, 4},
		{"other", errors.New("boom"), KindOther, 1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := KindOf(tc.err); got != tc.kind {
				t.Errorf("KindOf = %v; want %v", got, tc.kind)
			}
			if got := ExitCode(tc.err); got != tc.code {
				t.Errorf("ExitCode = %d; want %d", got, tc.code)
			}
		})
	}
}

func TestConfigErrorKeepsSentinel(t *testing.T) {
	t.Parallel()

	err := configError("shards", "shard count must be >= 1")
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected errors.Is(err, ErrConfiguration), got %v", err)
	}
	if !strings.HasPrefix(Diagnostic(err), "ConfigurationError: ") {
		t.Errorf("unexpected diagnostic %q", Diagnostic(err))
	}
}
