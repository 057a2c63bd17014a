package tempus

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

var executionSeq atomic.Int64

// ActiveExecution is one in-flight run of an entry.
type ActiveExecution struct {
	id      int64
	entry   *Entry
	started time.Time
	ctx     context.Context
	cancel  context.CancelFunc
}

func newActiveExecution(parent context.Context, e *Entry, now time.Time) *ActiveExecution {
	ctx, cancel := context.WithCancel(parent)
	return &ActiveExecution{
		id:      executionSeq.Add(1),
		entry:   e,
		started: now,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// ID is unique within the process and increases with every execution.
func (a *ActiveExecution) ID() int64                { return a.id }
func (a *ActiveExecution) Entry() *Entry            { return a.entry }
func (a *ActiveExecution) Started() time.Time       { return a.started }
func (a *ActiveExecution) Runtime() time.Duration   { return time.Since(a.started) }
func (a *ActiveExecution) Context() context.Context { return a.ctx }

// Cancel asks the execution to stop. The job observes it through its context.
func (a *ActiveExecution) Cancel() { a.cancel() }

// Order selects the ordering of ActiveJobs.Snapshot.
type Order int

const (
	OrderStartedOldest Order = iota
	OrderStartedNewest
	OrderRuntimeLongest
	OrderRuntimeShortest
)

func (o Order) String() string {
	switch o {
	case OrderStartedOldest:
		return "started-oldest"
	case OrderStartedNewest:
		return "started-newest"
	case OrderRuntimeLongest:
		return "runtime-longest"
	case OrderRuntimeShortest:
		return "runtime-shortest"
	default:
		return "unknown"
	}
}

// ActiveJobs is the registry of in-flight executions.
type ActiveJobs struct {
	mu    sync.RWMutex
	items map[int64]*ActiveExecution
}

func newActiveJobs() *ActiveJobs {
	return &ActiveJobs{items: map[int64]*ActiveExecution{}}
}

func (a *ActiveJobs) add(x *ActiveExecution) {
	a.mu.Lock()
	a.items[x.id] = x
	a.mu.Unlock()
}

// addExclusive inserts x unless another execution of the same entry is active.
func (a *ActiveJobs) addExclusive(x *ActiveExecution) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, cur := range a.items {
		if cur.entry == x.entry {
			return false
		}
	}
	a.items[x.id] = x
	return true
}

// Remove deletes the execution with the given id. It reports whether it was present.
func (a *ActiveJobs) Remove(id int64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.items[id]; !ok {
		return false
	}
	delete(a.items, id)
	return true
}

func (a *ActiveJobs) Get(id int64) (*ActiveExecution, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	x, ok := a.items[id]
	return x, ok
}

func (a *ActiveJobs) Count() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.items)
}

// Contains reports whether any execution of e is active.
func (a *ActiveJobs) Contains(e *Entry) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, x := range a.items {
		if x.entry == e {
			return true
		}
	}
	return false
}

// Snapshot returns the active executions in the requested order.
// Executions with equal start times are ordered by id.
func (a *ActiveJobs) Snapshot(order Order) []*ActiveExecution {
	a.mu.RLock()
	out := make([]*ActiveExecution, 0, len(a.items))
	for _, x := range a.items {
		out = append(out, x)
	}
	a.mu.RUnlock()

	// Runtime is measured against a single instant, so it is the inverse of start time.
	oldestFirst := func(i, j int) bool {
		if !out[i].started.Equal(out[j].started) {
			return out[i].started.Before(out[j].started)
		}
		return out[i].id < out[j].id
	}
	newestFirst := func(i, j int) bool {
		if !out[i].started.Equal(out[j].started) {
			return out[i].started.After(out[j].started)
		}
		return out[i].id > out[j].id
	}
	switch order {
	case OrderStartedNewest, OrderRuntimeShortest:
		sort.Slice(out, newestFirst)
	default:
		sort.Slice(out, oldestFirst)
	}
	return out
}
