package tempus

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// AnonymousName is the display name of handler-based entries.
const AnonymousName = "Anonymous"

// Entry is one registered schedule.
//
// Exactly one of Type and Handler is set. An entry is owned by the
// ScheduledJobs it was added to; only NeedsExecuting mutates its due state.
type Entry struct {
	id      uuid.UUID
	name    string
	pattern string
	kind    Kind
	policy  OverlapPolicy
	jobType reflect.Type
	handler HandlerFunc
	cron    cron.Schedule

	mu   sync.Mutex
	next time.Time // zero once there is no further occurrence

	// gate serializes OverlapWait executions; one slot for the entry's lifetime.
	gate chan struct{}
}

func newEntry(pattern string, p parsedPattern, policy OverlapPolicy, now time.Time) (*Entry, error) {
	if !policy.valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPolicy, int(policy))
	}
	e := &Entry{
		id:      uuid.New(),
		pattern: pattern,
		kind:    p.kind,
		policy:  policy,
		cron:    p.cron,
		next:    p.first(now),
	}
	if policy == OverlapWait {
		e.gate = make(chan struct{}, 1)
	}
	return e, nil
}

func newHandlerEntry(pattern string, h HandlerFunc, policy OverlapPolicy, now time.Time) (*Entry, error) {
	if h == nil {
		return nil, ErrNilHandler
	}
	p, err := parsePattern(pattern)
	if err != nil {
		return nil, err
	}
	e, err := newEntry(pattern, p, policy, now)
	if err != nil {
		return nil, err
	}
	e.name = AnonymousName
	e.handler = h
	return e, nil
}

func newTypedEntry(t reflect.Type, d Declaration, now time.Time) (*Entry, error) {
	if err := checkJobType(t); err != nil {
		return nil, err
	}
	pattern, err := d.Pattern()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", typeName(t), err)
	}
	p, err := parsePattern(pattern)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", typeName(t), err)
	}
	e, err := newEntry(pattern, p, d.Overlap, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", typeName(t), err)
	}
	e.name = typeName(t)
	e.jobType = t
	return e, nil
}

func (e *Entry) ID() uuid.UUID         { return e.id }
func (e *Entry) Name() string          { return e.name }
func (e *Entry) Pattern() string       { return e.pattern }
func (e *Entry) Kind() Kind            { return e.kind }
func (e *Entry) Policy() OverlapPolicy { return e.policy }

// Type returns the bound job type, or nil for anonymous entries.
func (e *Entry) Type() reflect.Type { return e.jobType }

// Handler returns the bound handler, or nil for typed entries.
func (e *Entry) Handler() HandlerFunc { return e.handler }

func (e *Entry) IsAnonymous() bool { return e.jobType == nil }
func (e *Entry) IsImmediate() bool { return e.kind == KindImmediate }
func (e *Entry) IsOnce() bool      { return e.kind == KindOnce }

// NextDue returns the next instant the entry becomes due.
// ok is false once the entry has no further occurrence.
func (e *Entry) NextDue() (next time.Time, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.next, !e.next.IsZero()
}

// NeedsExecuting reports whether the entry is due at now.
//
// On DueNow the next-due instant advances to the occurrence strictly after the
// one that just fired (recurring entries) or is cleared (one-shot entries), so
// each occurrence is reported exactly once. Call it at most once per sweep.
func (e *Entry) NeedsExecuting(now time.Time) Due {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.next.IsZero() {
		return DueExhausted
	}
	if e.next.After(now) {
		return DueNotYet
	}
	if e.cron != nil {
		e.next = e.cron.Next(e.next)
	} else {
		e.next = time.Time{}
	}
	return DueNow
}

func (e *Entry) String() string {
	parts := make([]string, 0, 3)
	parts = append(parts, "Id: "+e.id.String())
	if e.IsAnonymous() {
		parts = append(parts, "Type: "+AnonymousName)
	} else {
		parts = append(parts, "Type: "+e.name)
	}
	next, ok := e.NextDue()
	when := "-"
	if ok {
		when = next.Format(time.RFC3339)
	}
	switch e.kind {
	case KindImmediate:
		parts = append(parts, "When: Immediately")
	case KindOnce:
		parts = append(parts, fmt.Sprintf("When: Once (%s)", when))
	default:
		parts = append(parts, fmt.Sprintf("When: %s (%s)", e.pattern, when))
	}
	return strings.Join(parts, "; ")
}

func (e *Entry) acquire(ctx context.Context) bool {
	if e.gate == nil {
		return true
	}
	select {
	case e.gate <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

func (e *Entry) release() {
	if e.gate == nil {
		return
	}
	select {
	case <-e.gate:
	default:
	}
}

func typeName(t reflect.Type) string {
	if t == nil {
		return ""
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" || t.PkgPath() == "" {
		return t.String()
	}
	return t.PkgPath() + "." + t.Name()
}
