package tempus

import (
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ScheduledJobs is the registry of schedule entries.
type ScheduledJobs struct {
	mu      sync.RWMutex
	entries []*Entry // registration order
	byID    map[uuid.UUID]*Entry
	byType  map[reflect.Type]*Entry
}

func newScheduledJobs() *ScheduledJobs {
	return &ScheduledJobs{
		byID:   map[uuid.UUID]*Entry{},
		byType: map[reflect.Type]*Entry{},
	}
}

func (s *ScheduledJobs) addType(t reflect.Type, d Declaration, now time.Time) (*Entry, error) {
	e, err := newTypedEntry(t, d, now)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.byType[t]; dup {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateType, typeName(t))
	}
	s.insertLocked(e)
	s.byType[t] = e
	return e, nil
}

func (s *ScheduledJobs) addHandler(pattern string, h HandlerFunc, policy OverlapPolicy, now time.Time) (*Entry, error) {
	e, err := newHandlerEntry(pattern, h, policy, now)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.insertLocked(e)
	s.mu.Unlock()
	return e, nil
}

func (s *ScheduledJobs) insertLocked(e *Entry) {
	s.entries = append(s.entries, e)
	s.byID[e.id] = e
}

// Remove deletes the entry with the given id. It reports whether it was present.
func (s *ScheduledJobs) Remove(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[id]
	if !ok {
		return false
	}
	for i, cur := range s.entries {
		if cur == e {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			break
		}
	}
	s.forgetLocked(e)
	return true
}

func (s *ScheduledJobs) forgetLocked(e *Entry) {
	delete(s.byID, e.id)
	if e.jobType != nil && s.byType[e.jobType] == e {
		delete(s.byType, e.jobType)
	}
}

// PullDue returns the entries due at now in registration order and prunes the
// ones with no further occurrence. Discovery and pruning are one critical
// section, so an entry is never returned twice for the same occurrence.
func (s *ScheduledJobs) PullDue(now time.Time) []*Entry {
	now = now.UTC()
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*Entry
	kept := s.entries[:0]
	for _, e := range s.entries {
		switch e.NeedsExecuting(now) {
		case DueNow:
			due = append(due, e)
			kept = append(kept, e)
		case DueExhausted:
			s.forgetLocked(e)
		default:
			kept = append(kept, e)
		}
	}
	for i := len(kept); i < len(s.entries); i++ {
		s.entries[i] = nil
	}
	s.entries = kept
	return due
}

// Snapshot returns the entries in registration order.
func (s *ScheduledJobs) Snapshot() []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

func (s *ScheduledJobs) Get(id uuid.UUID) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byID[id]
	return e, ok
}

// ByType returns the entry bound to t, if any.
func (s *ScheduledJobs) ByType(t reflect.Type) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byType[t]
	return e, ok
}

func (s *ScheduledJobs) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
