package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestGoRecordsFaults(t *testing.T) {
	t.Parallel()
	s := New(context.Background())

	boom := errors.New("boom")
	s.Go("fails", func(ctx context.Context) error { return boom })
	s.Go("panics", func(ctx context.Context) error { panic("kaboom") })
	s.Go("clean", func(ctx context.Context) error { return nil })
	s.Go("canceled", func(ctx context.Context) error { return context.Canceled })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = s.Wait(ctx)

	c := s.Counters()
	if c.Started != 4 {
		t.Fatalf("Started = %d, want 4", c.Started)
	}
	if c.Active != 0 {
		t.Fatalf("Active = %d, want 0", c.Active)
	}
	if c.Faults != 2 {
		t.Fatalf("Faults = %d, want 2", c.Faults)
	}
	if c.Panics != 1 {
		t.Fatalf("Panics = %d, want 1", c.Panics)
	}
	if s.Err() == nil {
		t.Fatal("Err() should report the first fault")
	}
}

func TestGoErrorKeepsWrappedCause(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	boom := errors.New("boom")
	s.Go("fails", func(ctx context.Context) error { return boom })
	_ = s.Wait(context.Background())

	if !errors.Is(s.Err(), boom) {
		t.Fatalf("Err() = %v, want wrapped boom", s.Err())
	}
}

func TestCancelOnError(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), WithCancelOnError(true))
	s.Go("fails", func(ctx context.Context) error { return errors.New("x") })

	select {
	case <-s.Context().Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not canceled after fault")
	}
}

func TestGoRestartRestartsUntilClean(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	var runs atomic.Int32
	done := make(chan struct{})
	s.GoRestart("loop", func(ctx context.Context) error {
		n := runs.Add(1)
		if n < 3 {
			panic("transient")
		}
		close(done)
		return nil
	}, time.Millisecond, 5*time.Millisecond)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("loop not restarted, runs = %d", runs.Load())
	}
	if err := s.Stop(context.Background()); err == nil {
		t.Fatal("Stop should surface the recorded fault")
	}
	if got := s.Counters().Panics; got != 2 {
		t.Fatalf("Panics = %d, want 2", got)
	}
}

func TestStopCancelsRunningLoop(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	s.GoRestart("loop", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, 0, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop() = %v", err)
	}
	if got := s.Counters().Faults; got != 0 {
		t.Fatalf("Faults = %d, want 0", got)
	}
}

func TestReportRecordsCanceledErrors(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	s.Report("ok", nil)
	s.Report("aborted", context.Canceled)

	if got := s.Counters().Faults; got != 1 {
		t.Fatalf("Faults = %d, want 1", got)
	}
	if !errors.Is(s.LastErr(), context.Canceled) {
		t.Fatalf("LastErr() = %v, want wrapped context.Canceled", s.LastErr())
	}
}
