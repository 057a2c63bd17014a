package app

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"tempus/internal/config"
	logx "tempus/pkg/logx"
	"tempus/pkg/tempus"
)

type jobEntry struct {
	id          uuid.UUID
	fingerprint uint64
}

// jobSet keeps the configured jobs registered with the scheduler.
type jobSet struct {
	sched *tempus.Scheduler
	log   logx.Logger
	units *unitDialer

	mu      sync.Mutex
	entries map[string]jobEntry
}

func newJobSet(sched *tempus.Scheduler, log logx.Logger, units *unitDialer) *jobSet {
	return &jobSet{sched: sched, log: log, units: units, entries: map[string]jobEntry{}}
}

// apply makes the registered jobs match jobs. Jobs whose definition did not
// change keep their entry (and due state). Changed and removed jobs are
// unscheduled; executions already running are left alone.
func (s *jobSet) apply(jobs []config.JobConfig) (config.JobDiff, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := make(map[string]config.JobConfig, len(jobs))
	for _, j := range jobs {
		want[strings.TrimSpace(j.Name)] = j
	}

	var diff config.JobDiff
	changed := map[string]bool{}
	for name, cur := range s.entries {
		j, ok := want[name]
		if ok && j.Fingerprint() == cur.fingerprint {
			continue
		}
		s.sched.Unschedule(cur.id)
		delete(s.entries, name)
		if ok {
			changed[name] = true
		} else {
			diff.Removed = append(diff.Removed, name)
		}
	}

	var errs []error
	for _, j := range jobs {
		name := strings.TrimSpace(j.Name)
		if _, ok := s.entries[name]; ok {
			diff.Unchanged = append(diff.Unchanged, name)
			continue
		}
		id, err := s.schedule(j)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		s.entries[name] = jobEntry{id: id, fingerprint: j.Fingerprint()}
		if changed[name] {
			diff.Changed = append(diff.Changed, name)
		} else {
			diff.Added = append(diff.Added, name)
		}
	}
	sort.Strings(diff.Added)
	sort.Strings(diff.Removed)
	sort.Strings(diff.Changed)
	sort.Strings(diff.Unchanged)
	return diff, errors.Join(errs...)
}

func (s *jobSet) schedule(j config.JobConfig) (uuid.UUID, error) {
	h, policy, err := buildHandler(j, s.log, s.units)
	if err != nil {
		return uuid.Nil, err
	}
	id, err := s.sched.Schedule(j.Schedule, h, policy)
	if err != nil {
		return uuid.Nil, fmt.Errorf("job %s: %w", j.Name, err)
	}
	s.log.Debug("job registered",
		logx.String("job", j.Name),
		logx.String("entry", id.String()),
		logx.String("schedule", j.Schedule),
		logx.String("overlap", policy.String()),
	)
	return id, nil
}

// lookup returns the entry id of a configured job.
func (s *jobSet) lookup(name string) (uuid.UUID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	return e.id, ok
}

func (s *jobSet) names() map[uuid.UUID]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uuid.UUID]string, len(s.entries))
	for name, e := range s.entries {
		out[e.id] = name
	}
	return out
}
