package app

import (
	"testing"
	"time"

	"tempus/pkg/tempus"
)

func newTestScheduler(t *testing.T) *tempus.Scheduler {
	t.Helper()
	s := tempus.New(tempus.WithPollInterval(5*time.Millisecond), tempus.WithDrainInterval(2*time.Millisecond))
	t.Cleanup(func() { s.Stop(true) })
	return s
}

// runOnce schedules h to run immediately and returns the error it finished with.
func runOnce(t *testing.T, s *tempus.Scheduler, h tempus.HandlerFunc) error {
	t.Helper()
	events, unsub := s.Subscribe(16, tempus.EventJobFinished, tempus.EventJobFailed)
	defer unsub()
	if _, err := s.ScheduleNow(h, tempus.OverlapAllow); err != nil {
		t.Fatalf("ScheduleNow error: %v", err)
	}
	s.Start()
	return waitJob(t, events)
}

func waitJob(t *testing.T, events <-chan tempus.Event) error {
	t.Helper()
	select {
	case e := <-events:
		je, ok := e.Data.(tempus.JobEvent)
		if !ok {
			t.Fatalf("event %s carries %T", e.Type, e.Data)
		}
		return je.Err
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for the job to finish")
		return nil
	}
}
