//go:build linux

package core

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestRestoreAffinityKeepsOriginalMask(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	tid := unix.Gettid()
	var before unix.CPUSet
	require.NoError(t, unix.SchedGetaffinity(tid, &before))

	cpu := -1
	for i := 0; i < len(before)*64; i++ {
		if before.IsSet(i) {
			cpu = i
			break
		}
	}
	require.GreaterOrEqual(t, cpu, 0)

	saved := setAffinity(0, cpu)
	var pinned unix.CPUSet
	require.NoError(t, unix.SchedGetaffinity(tid, &pinned))
	if pinned.Count() != 1 {
		restoreAffinity(saved)
		t.Skip("sched_setaffinity not permitted here")
	}
	require.True(t, pinned.IsSet(cpu))

	restoreAffinity(saved)
	var after unix.CPUSet
	require.NoError(t, unix.SchedGetaffinity(tid, &after))
	require.Equal(t, before, after)
}
