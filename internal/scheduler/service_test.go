package scheduler

import (
	"context"
	"testing"
	"time"

	"taskpulse/pkg/logx"
)

// startTestService starts the service with an interval far beyond the test
// duration, so runs only happen when the test calls trigger() itself.
func startTestService(t *testing.T, job Job, timeout time.Duration) *Service {
	t.Helper()
	s := New(Config{Enabled: true, Spec: "1h", RunTimeout: timeout}, job, logx.Nop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Stop(ctx)
	})
	return s
}

func waitForGuardRelease(t *testing.T, s *Service) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for s.running.Load() {
		if time.Now().After(deadline) {
			t.Fatal("guard never released after run completed")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestTriggerSkipsOverlappingRun(t *testing.T) {
	t.Parallel()

	started := make(chan context.Context, 2)
	release := make(chan struct{})
	job := func(ctx context.Context) error {
		started <- ctx
		<-release
		return nil
	}
	s := startTestService(t, job, time.Minute)

	s.trigger()
	var runCtx context.Context
	select {
	case runCtx = <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("first trigger never started the job")
	}
	if _, ok := runCtx.Deadline(); !ok {
		t.Fatal("run context carries no deadline")
	}

	// Second trigger while the first run is still in flight must be a no-op.
	s.trigger()
	select {
	case <-started:
		t.Fatal("overlapping trigger started a second run")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	waitForGuardRelease(t, s)

	// After the run settles the next trigger fires normally.
	s.trigger()
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("trigger after completed run never started")
	}
	waitForGuardRelease(t, s)
}

func TestRunDeadlineMatchesTimeout(t *testing.T) {
	t.Parallel()

	timeout := 90 * time.Second
	got := make(chan time.Duration, 1)
	job := func(ctx context.Context) error {
		dl, ok := ctx.Deadline()
		if !ok {
			got <- 0
			return nil
		}
		got <- time.Until(dl)
		return nil
	}
	s := startTestService(t, job, timeout)

	s.trigger()
	select {
	case remaining := <-got:
		if remaining <= 0 || remaining > timeout {
			t.Fatalf("deadline %v away, want within (0, %v]", remaining, timeout)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("job never ran")
	}
	waitForGuardRelease(t, s)
}

func TestStopCancelsInFlightRun(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	finished := make(chan error, 1)
	job := func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		finished <- ctx.Err()
		return ctx.Err()
	}
	s := startTestService(t, job, time.Minute)

	s.trigger()
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("job never started")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Stop(ctx)

	select {
	case err := <-finished:
		if err == nil {
			t.Fatal("run context was not cancelled")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Stop returned without cancelling the run")
	}
}

func TestStartDisabledIsNoOp(t *testing.T) {
	t.Parallel()

	s := New(Config{Enabled: false, Spec: "1h"}, func(ctx context.Context) error { return nil }, logx.Nop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// Nothing scheduled: trigger without a run context must not leak a run.
	s.trigger()
	waitForGuardRelease(t, s)
}
