package tempus

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestPullDuePrunesOneShots(t *testing.T) {
	t.Parallel()
	s := newScheduledJobs()
	now := t0
	imm, err := s.addHandler(PatternImmediately, noopHandler, OverlapAllow, now)
	if err != nil {
		t.Fatalf("addHandler error: %v", err)
	}
	once, err := s.addHandler(OncePattern(now.Add(time.Minute)), noopHandler, OverlapAllow, now)
	if err != nil {
		t.Fatalf("addHandler error: %v", err)
	}

	due := s.PullDue(now)
	if len(due) != 1 || due[0] != imm {
		t.Fatalf("first sweep = %v, want [immediate]", due)
	}
	if s.Count() != 2 {
		t.Fatalf("Count after first sweep = %d, want 2", s.Count())
	}

	due = s.PullDue(now.Add(time.Minute))
	if len(due) != 1 || due[0] != once {
		t.Fatalf("second sweep = %v, want [once]", due)
	}
	if _, ok := s.Get(imm.ID()); ok {
		t.Fatal("immediate entry still registered after it fired")
	}

	if due = s.PullDue(now.Add(2 * time.Minute)); len(due) != 0 {
		t.Fatalf("third sweep = %v, want none", due)
	}
	if s.Count() != 0 {
		t.Fatalf("Count = %d, want 0", s.Count())
	}
}

func TestPullDueRegistrationOrder(t *testing.T) {
	t.Parallel()
	s := newScheduledJobs()
	var want []*Entry
	for i := 0; i < 5; i++ {
		e, err := s.addHandler("* * * * * *", noopHandler, OverlapAllow, t0)
		if err != nil {
			t.Fatalf("addHandler error: %v", err)
		}
		want = append(want, e)
	}
	if !s.Remove(want[2].ID()) {
		t.Fatal("Remove returned false")
	}
	want = append(want[:2], want[3:]...)

	due := s.PullDue(t0.Add(time.Second))
	if len(due) != len(want) {
		t.Fatalf("due = %d, want %d", len(due), len(want))
	}
	for i := range due {
		if due[i] != want[i] {
			t.Fatalf("position %d out of order", i)
		}
	}
	snap := s.Snapshot()
	for i := range snap {
		if snap[i] != want[i] {
			t.Fatalf("snapshot position %d out of order", i)
		}
	}
}

func TestAddTypeDuplicate(t *testing.T) {
	t.Parallel()
	s := newScheduledJobs()
	typ := reflect.TypeFor[declaredJob]()
	e, err := s.addType(typ, Declaration{Cron: "0 0 * * * *"}, t0)
	if err != nil {
		t.Fatalf("addType error: %v", err)
	}
	if _, err := s.addType(typ, Declaration{}, t0); !errors.Is(err, ErrDuplicateType) {
		t.Fatalf("duplicate error = %v, want %v", err, ErrDuplicateType)
	}
	if got, ok := s.ByType(typ); !ok || got != e {
		t.Fatal("ByType did not return the entry")
	}

	// The type can be registered again once its entry is gone.
	s.Remove(e.ID())
	if _, err := s.addType(typ, Declaration{}, t0); err != nil {
		t.Fatalf("re-register error: %v", err)
	}
}

func TestAddTypeExhaustedFreesType(t *testing.T) {
	t.Parallel()
	s := newScheduledJobs()
	typ := reflect.TypeFor[plainJob]()
	if _, err := s.addType(typ, Declaration{}, t0); err != nil {
		t.Fatalf("addType error: %v", err)
	}
	s.PullDue(t0)
	s.PullDue(t0)
	if _, ok := s.ByType(typ); ok {
		t.Fatal("pruned entry still bound to its type")
	}
}
