package app

import (
	"testing"
	"time"

	logx "tempus/pkg/logx"
	"tempus/pkg/tempus"
)

func TestCollectStatus(t *testing.T) {
	t.Parallel()
	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	s := tempus.New(tempus.WithClock(func() time.Time { return now }))
	noop := func(*tempus.JobContext) error { return nil }
	if _, err := s.Schedule("0 0 * * * *", noop, tempus.OverlapAllow); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ScheduleAt(now.Add(10*time.Minute), noop, tempus.OverlapAllow); err != nil {
		t.Fatal(err)
	}

	r := collectStatus(s, 0)
	if r.Scheduled != 2 || r.Active != 0 || r.Faults != 0 {
		t.Fatalf("report = %+v", r)
	}
	if want := now.Add(10 * time.Minute); !r.NextDue.Equal(want) {
		t.Fatalf("next due = %v, want %v", r.NextDue, want)
	}
	if r.NextJob != tempus.AnonymousName {
		t.Fatalf("next job = %q", r.NextJob)
	}
}

func TestStatusJobRunsThroughContainer(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t)
	c := NewContainer()
	Set(c, logx.Nop())
	Set(c, s)
	s.SetFactory(c)

	d, err := tempus.DeclarationOf(statusJobType)
	if err != nil {
		t.Fatalf("DeclarationOf error: %v", err)
	}
	if d.Cron != defaultStatusCron || d.Overlap != tempus.OverlapSkip {
		t.Fatalf("declaration = %+v", d)
	}

	events, unsub := s.Subscribe(8, tempus.EventJobFinished, tempus.EventJobFailed)
	defer unsub()
	d.Cron = ""
	if _, err := s.ScheduleTypeWith(statusJobType, d); err != nil {
		t.Fatalf("ScheduleTypeWith error: %v", err)
	}
	s.Start()
	if err := waitJob(t, events); err != nil {
		t.Fatalf("status job error: %v", err)
	}
}
