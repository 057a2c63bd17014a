package tempus

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"
)

var t0 = time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

func noopHandler(*JobContext) error { return nil }

func mustHandlerEntry(t *testing.T, pattern string, now time.Time) *Entry {
	t.Helper()
	e, err := newHandlerEntry(pattern, noopHandler, OverlapAllow, now)
	if err != nil {
		t.Fatalf("newHandlerEntry(%q) error: %v", pattern, err)
	}
	return e
}

func TestNeedsExecutingEveryTenSeconds(t *testing.T) {
	t.Parallel()
	e := mustHandlerEntry(t, "*/10 * * * * *", t0.Add(-time.Second))

	if got := e.NeedsExecuting(t0); got != DueNow {
		t.Fatalf("at T: %v, want %v", got, DueNow)
	}
	if got := e.NeedsExecuting(t0.Add(5 * time.Second)); got != DueNotYet {
		t.Fatalf("at T+5s: %v, want %v", got, DueNotYet)
	}
	if got := e.NeedsExecuting(t0.Add(10 * time.Second)); got != DueNow {
		t.Fatalf("at T+10s: %v, want %v", got, DueNow)
	}
}

func TestNeedsExecutingReportsEachOccurrenceOnce(t *testing.T) {
	t.Parallel()
	e := mustHandlerEntry(t, "*/10 * * * * *", t0.Add(-time.Second))

	if got := e.NeedsExecuting(t0); got != DueNow {
		t.Fatalf("first check: %v, want %v", got, DueNow)
	}
	if got := e.NeedsExecuting(t0); got != DueNotYet {
		t.Fatalf("second check at the same instant: %v, want %v", got, DueNotYet)
	}
	next, ok := e.NextDue()
	if !ok || !next.Equal(t0.Add(10*time.Second)) {
		t.Fatalf("NextDue = %v %v, want %v", next, ok, t0.Add(10*time.Second))
	}

	// Late sweeps walk the missed occurrences one per call.
	late := t0.Add(25 * time.Second)
	var prev time.Time
	for i := 0; i < 2; i++ {
		if got := e.NeedsExecuting(late); got != DueNow {
			t.Fatalf("catch-up %d: %v, want %v", i, got, DueNow)
		}
		n, _ := e.NextDue()
		if !n.After(prev) {
			t.Fatalf("next due did not advance: %v after %v", n, prev)
		}
		prev = n
	}
	if got := e.NeedsExecuting(late); got != DueNotYet {
		t.Fatalf("after catch-up: %v, want %v", got, DueNotYet)
	}
}

func TestNeedsExecutingImmediate(t *testing.T) {
	t.Parallel()
	e := mustHandlerEntry(t, PatternImmediately, t0)
	if !e.IsImmediate() {
		t.Fatal("expected immediate entry")
	}
	if got := e.NeedsExecuting(t0); got != DueNow {
		t.Fatalf("first check: %v, want %v", got, DueNow)
	}
	if got := e.NeedsExecuting(t0.Add(time.Hour)); got != DueExhausted {
		t.Fatalf("second check: %v, want %v", got, DueExhausted)
	}
}

func TestNeedsExecutingOnce(t *testing.T) {
	t.Parallel()
	at := t0.Add(time.Minute)
	e := mustHandlerEntry(t, OncePattern(at), t0)
	if !e.IsOnce() {
		t.Fatal("expected once entry")
	}
	if got := e.NeedsExecuting(at.Add(-time.Millisecond)); got != DueNotYet {
		t.Fatalf("before: %v, want %v", got, DueNotYet)
	}
	if got := e.NeedsExecuting(at.Add(3 * time.Second)); got != DueNow {
		t.Fatalf("after: %v, want %v", got, DueNow)
	}
	if got := e.NeedsExecuting(at.Add(time.Hour)); got != DueExhausted {
		t.Fatalf("later: %v, want %v", got, DueExhausted)
	}
}

func TestHandlerEntryValidation(t *testing.T) {
	t.Parallel()
	if _, err := newHandlerEntry("* * * * * *", nil, OverlapAllow, t0); !errors.Is(err, ErrNilHandler) {
		t.Fatalf("nil handler error = %v, want %v", err, ErrNilHandler)
	}
	if _, err := newHandlerEntry("* * * * * *", noopHandler, OverlapPolicy(9), t0); !errors.Is(err, ErrInvalidPolicy) {
		t.Fatalf("bad policy error = %v, want %v", err, ErrInvalidPolicy)
	}
	e, err := newHandlerEntry("* * * * * *", noopHandler, OverlapWait, t0)
	if err != nil {
		t.Fatalf("newHandlerEntry error: %v", err)
	}
	if e.gate == nil {
		t.Fatal("wait entry has no gate")
	}
	if !e.IsAnonymous() || e.Name() != AnonymousName {
		t.Fatalf("name = %q, anonymous = %v", e.Name(), e.IsAnonymous())
	}
}

func TestEntryString(t *testing.T) {
	t.Parallel()
	e := mustHandlerEntry(t, "0 0 * * * *", t0)
	s := e.String()
	for _, want := range []string{"Id: " + e.ID().String(), "Type: Anonymous", "When: 0 0 * * * * (2030-01-01T01:00:00Z)"} {
		if !strings.Contains(s, want) {
			t.Fatalf("String() = %q, missing %q", s, want)
		}
	}
}

type plainJob struct{}

func (plainJob) Execute(*JobContext) error { return nil }

type pointerJob struct{ runs int }

func (j *pointerJob) Execute(*JobContext) error { j.runs++; return nil }

type declaredJob struct{}

func (declaredJob) Execute(*JobContext) error { return nil }
func (declaredJob) Declaration() Declaration {
	return Declaration{Cron: "0 */5 * * * *", Overlap: OverlapSkip}
}

type conflictingJob struct{}

func (conflictingJob) Execute(*JobContext) error { return nil }
func (conflictingJob) Declaration() Declaration {
	return Declaration{Cron: "0 */5 * * * *", Once: t0}
}

type notAJob struct{}

func TestTypedEntries(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		typ     reflect.Type
		pattern string
		policy  OverlapPolicy
		err     error
	}{
		{name: "undeclared", typ: reflect.TypeFor[plainJob](), pattern: PatternImmediately},
		{name: "pointer receiver", typ: reflect.TypeFor[pointerJob](), pattern: PatternImmediately},
		{name: "declared", typ: reflect.TypeFor[declaredJob](), pattern: "0 */5 * * * *", policy: OverlapSkip},
		{name: "conflicting", typ: reflect.TypeFor[conflictingJob](), err: ErrConflictingSchedule},
		{name: "not a job", typ: reflect.TypeFor[notAJob](), err: ErrNotJob},
		{name: "nil", typ: nil, err: ErrNilType},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d, err := DeclarationOf(tt.typ)
			if err == nil {
				var e *Entry
				e, err = newTypedEntry(tt.typ, d, t0)
				if err == nil {
					if e.Pattern() != tt.pattern || e.Policy() != tt.policy {
						t.Fatalf("got %q/%v, want %q/%v", e.Pattern(), e.Policy(), tt.pattern, tt.policy)
					}
					if e.IsAnonymous() || e.Type() != tt.typ {
						t.Fatalf("Type() = %v, want %v", e.Type(), tt.typ)
					}
				}
			}
			if tt.err == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.err != nil && !errors.Is(err, tt.err) {
				t.Fatalf("error = %v, want %v", err, tt.err)
			}
		})
	}
}

func TestDeclarationPattern(t *testing.T) {
	t.Parallel()
	at := time.Date(2030, 5, 1, 8, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		d    Declaration
		want string
		err  error
	}{
		{name: "empty", d: Declaration{}, want: PatternImmediately},
		{name: "cron", d: Declaration{Cron: "0 0 3 * * *"}, want: "0 0 3 * * *"},
		{name: "once", d: Declaration{Once: at}, want: "@once 2030-05-01T08:00:00Z"},
		{name: "both", d: Declaration{Cron: "0 0 3 * * *", Once: at}, err: ErrConflictingSchedule},
	}
	for _, tt := range tests {
		got, err := tt.d.Pattern()
		if !errors.Is(err, tt.err) {
			t.Fatalf("%s: error = %v, want %v", tt.name, err, tt.err)
		}
		if got != tt.want {
			t.Fatalf("%s: pattern = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestNewZeroJob(t *testing.T) {
	t.Parallel()
	j, err := NewZeroJob(reflect.TypeFor[pointerJob]())
	if err != nil {
		t.Fatalf("NewZeroJob error: %v", err)
	}
	if _, ok := j.(*pointerJob); !ok {
		t.Fatalf("got %T, want *pointerJob", j)
	}
	j, err = NewZeroJob(reflect.TypeFor[plainJob]())
	if err != nil {
		t.Fatalf("NewZeroJob error: %v", err)
	}
	if j == nil {
		t.Fatal("nil job")
	}
	if _, err := NewZeroJob(reflect.TypeFor[Job]()); err == nil {
		t.Fatal("expected error for interface type")
	}
}
