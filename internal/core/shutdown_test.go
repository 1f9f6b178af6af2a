package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestCoordinatorRequestShutdownIsIdempotent(t *testing.T) {
	t.Parallel()

	c := NewCoordinator()
	if c.State() != StateRunning || c.Cancelled() {
		t.Fatalf("new coordinator: state=%v cancelled=%v", c.State(), c.Cancelled())
	}

	var wg sync.WaitGroup
	var transitions int32
	var mu sync.Mutex
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.RequestShutdown() {
				mu.Lock()
				transitions++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if transitions != 1 {
		t.Fatalf("expected exactly one transition, got %d", transitions)
	}
	if c.State() != StateDraining || !c.Cancelled() {
		t.Fatalf("after request: state=%v cancelled=%v", c.State(), c.Cancelled())
	}
	select {
	case <-c.Done():
	default:
		t.Fatalf("expected done channel to be closed")
	}

	if err := c.Finish(nil); !errors.Is(err, ErrShutdownRequested) {
		t.Fatalf("Finish = %v; want ErrShutdownRequested", err)
	}
	if c.State() != StateFlushed {
		t.Fatalf("state = %v; want FLUSHED", c.State())
	}

	// Requests after completion have no effect.
	if c.RequestShutdown() {
		t.Fatalf("request after completion must not transition")
	}
	if c.State() != StateFlushed {
		t.Fatalf("state changed after completion: %v", c.State())
	}
}

func TestCoordinatorCleanRunFinishesFlushed(t *testing.T) {
	t.Parallel()

	c := NewCoordinator()
	c.BeginDrain()
	if c.State() != StateDraining {
		t.Fatalf("state = %v; want DRAINING", c.State())
	}
	if err := c.Finish(nil); err != nil {
		t.Fatalf("Finish = %v; want nil", err)
	}
	if c.State() != StateFlushed {
		t.Fatalf("state = %v; want FLUSHED", c.State())
	}
	if c.Cancelled() {
		t.Fatalf("clean run must not be cancelled")
	}
}

func TestCoordinatorAbortKeepsFirstError(t *testing.T) {
	t.Parallel()

	c := NewCoordinator()
	first := errors.New("disk full")
	c.Abort(first)
	c.Abort(errors.New("second"))
	c.Abort(nil)

	if !c.Cancelled() {
		t.Fatalf("abort must cancel generation")
	}
	err := c.Finish(nil)
	if !errors.Is(err, first) {
		t.Fatalf("Finish = %v; want %v", err, first)
	}
	if c.State() != StateAborted {
		t.Fatalf("state = %v; want ABORTED", c.State())
	}
}

func TestCoordinatorFinishWithFlushError(t *testing.T) {
	t.Parallel()

	c := NewCoordinator()
	c.RequestShutdown()
	flushErr := errors.New("flush failed")
	if err := c.Finish(flushErr); !errors.Is(err, flushErr) {
		t.Fatalf("Finish = %v; want %v", err, flushErr)
	}
	if c.State() != StateAborted {
		t.Fatalf("state = %v; want ABORTED", c.State())
	}
}

func TestCoordinatorWatchTranslatesCancellation(t *testing.T) {
	t.Parallel()

	c := NewCoordinator()
	ctx, cancel := context.WithCancel(context.Background())
	stop := c.Watch(ctx)
	defer stop()

	cancel()
	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("watch did not request shutdown")
	}
	if !c.Interrupted() {
		t.Fatalf("expected interrupted")
	}
}

func TestCoordinatorWatchStopIgnoresLaterCancellation(t *testing.T) {
	t.Parallel()

	c := NewCoordinator()
	ctx, cancel := context.WithCancel(context.Background())
	stop := c.Watch(ctx)
	stop()
	stop()
	cancel()

	time.Sleep(20 * time.Millisecond)
	if c.Cancelled() {
		t.Fatalf("stopped watcher must not cancel")
	}
}

func TestStateString(t *testing.T) {
	t.Parallel()
	cases := map[State]string{
		StateRunning:  "RUNNING",
		StateDraining: "DRAINING",
		StateFlushed:  "FLUSHED",
		StateAborted:  "ABORTED",
		State(42):     "UNKNOWN",
	}
	for s, want := range cases {
		if s.String() != want {
			t.Errorf("State(%d).String() = %q; want %q", s, s.String(), want)
		}
	}
}
