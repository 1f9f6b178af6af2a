//go:build linux

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
	"log"
	"runtime"

	"golang.org/x/sys/unix"
)

// savedAffinity is the thread's CPU mask before a worker pinned it.
type savedAffinity struct {
	set unix.CPUSet
	ok  bool
}

// setAffinity binds the calling goroutine's OS thread to cpuID. Best effort:
// failure is logged and generation continues unpinned.
// The caller must pass the result to restoreAffinity when the worker finishes.
func setAffinity(slot, cpuID int) savedAffinity {
	// LockOSThread keeps the goroutine on the thread whose mask we change.
	runtime.LockOSThread()

	var saved savedAffinity
	tid := unix.Gettid()
	if err := unix.SchedGetaffinity(tid, &saved.set); err == nil {
		saved.ok = true
	}

	var cpuSet unix.CPUSet
	cpuSet.Zero()
	cpuSet.Set(cpuID)

	if err := unix.SchedSetaffinity(tid, &cpuSet); err != nil {
		log.Printf("Warning: Failed to set CPU affinity for worker %d on core %d (tid: %d): %v", slot, cpuID, tid, err)
	}
	return saved
}

// restoreAffinity puts back the mask saved by setAffinity before unlocking
// the thread, so the runtime can reuse it for other goroutines. Without a
// saved mask the thread gets every online CPU.
func restoreAffinity(saved savedAffinity) {
	defer runtime.UnlockOSThread()

	set := saved.set
	if !saved.ok {
		set.Zero()
		for i := 0; i < runtime.NumCPU(); i++ {
			set.Set(i)
		}
	}
	if err := unix.SchedSetaffinity(unix.Gettid(), &set); err != nil {
		log.Printf("Warning: Failed to restore CPU affinity (tid: %d): %v", unix.Gettid(), err)
	}
}
