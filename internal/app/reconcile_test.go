package app

import (
	"reflect"
	"testing"

	"tempus/internal/config"
	logx "tempus/pkg/logx"
	"tempus/pkg/tempus"
)

func TestJobSetReconcile(t *testing.T) {
	t.Parallel()
	s := tempus.New()
	set := newJobSet(s, logx.Nop(), newUnitDialer())

	first := []config.JobConfig{
		{Name: "keep", Schedule: "0 * * * * *", Log: "k"},
		{Name: "edit", Schedule: "0 * * * * *", Log: "e"},
		{Name: "drop", Schedule: "0 * * * * *", Log: "d"},
	}
	diff, err := set.apply(first)
	if err != nil {
		t.Fatalf("apply error: %v", err)
	}
	if !reflect.DeepEqual(diff.Added, []string{"drop", "edit", "keep"}) {
		t.Fatalf("added = %v", diff.Added)
	}
	if got := s.ScheduledJobs().Count(); got != 3 {
		t.Fatalf("scheduled = %d, want 3", got)
	}
	keepID, _ := set.lookup("keep")
	editID, _ := set.lookup("edit")
	dropID, _ := set.lookup("drop")

	second := []config.JobConfig{
		{Name: "keep", Schedule: "0 * * * * *", Log: "k"},
		{Name: "edit", Schedule: "30 * * * * *", Log: "e"},
		{Name: "new", Schedule: "@immediately", Log: "n"},
	}
	diff, err = set.apply(second)
	if err != nil {
		t.Fatalf("apply error: %v", err)
	}
	want := config.JobDiff{Added: []string{"new"}, Removed: []string{"drop"}, Changed: []string{"edit"}, Unchanged: []string{"keep"}}
	if !reflect.DeepEqual(diff, want) {
		t.Fatalf("diff = %+v, want %+v", diff, want)
	}

	if id, _ := set.lookup("keep"); id != keepID {
		t.Fatal("unchanged job got a new entry")
	}
	if id, _ := set.lookup("edit"); id == editID {
		t.Fatal("changed job kept its old entry")
	}
	if _, ok := s.ScheduledJobs().Get(editID); ok {
		t.Fatal("old entry of changed job still scheduled")
	}
	if _, ok := s.ScheduledJobs().Get(dropID); ok {
		t.Fatal("removed job still scheduled")
	}
	if _, ok := set.lookup("drop"); ok {
		t.Fatal("removed job still tracked")
	}
	if got := s.ScheduledJobs().Count(); got != 3 {
		t.Fatalf("scheduled = %d, want 3", got)
	}
}

func TestJobSetReportsBadJobs(t *testing.T) {
	t.Parallel()
	s := tempus.New()
	set := newJobSet(s, logx.Nop(), newUnitDialer())
	_, err := set.apply([]config.JobConfig{
		{Name: "ok", Schedule: "@immediately", Log: "x"},
		{Name: "bad", Schedule: "whenever", Log: "x"},
	})
	if err == nil {
		t.Fatal("expected error for invalid schedule")
	}
	if _, ok := set.lookup("ok"); !ok {
		t.Fatal("valid job not registered alongside the invalid one")
	}
	if _, ok := set.lookup("bad"); ok {
		t.Fatal("invalid job registered")
	}
}
