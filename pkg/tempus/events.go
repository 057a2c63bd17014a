package tempus

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"tempus/internal/eventbus"
)

// Event types published on the scheduler's bus.
const (
	EventStarting = "scheduler.starting"
	EventStarted  = "scheduler.started"
	EventStopping = "scheduler.stopping"
	EventStopped  = "scheduler.stopped"

	EventJobVetoed   = "job.vetoed"
	EventJobSkipped  = "job.skipped"
	EventJobStarted  = "job.started"
	EventJobFinished = "job.finished"
	EventJobFailed   = "job.failed"
)

// Event is a lifecycle notification. Job events carry a JobEvent in Data.
type Event = eventbus.Event

// JobEvent describes one dispatch. ExecutionID is zero when no execution was
// created (vetoed or skipped dispatches).
type JobEvent struct {
	ExecutionID int64
	EntryID     uuid.UUID
	Name        string
	Started     time.Time
	Duration    time.Duration
	Err         error
}

type listener[F any] struct {
	id uint64
	fn F
}

// listeners is a copy-on-read callback list.
type listeners[F any] struct {
	mu   sync.RWMutex
	seq  uint64
	list []listener[F]
}

func (l *listeners[F]) add(fn F) (remove func()) {
	l.mu.Lock()
	l.seq++
	id := l.seq
	l.list = append(l.list, listener[F]{id: id, fn: fn})
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			for i, cur := range l.list {
				if cur.id == id {
					l.list = append(l.list[:i:i], l.list[i+1:]...)
					return
				}
			}
		})
	}
}

func (l *listeners[F]) snapshot() []F {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]F, len(l.list))
	for i, cur := range l.list {
		out[i] = cur.fn
	}
	return out
}

type hooks struct {
	starting listeners[func()]
	started  listeners[func()]
	stopping listeners[func()]
	stopped  listeners[func()]

	jobStarting listeners[func(*Entry) bool]
	jobStarted  listeners[func(*JobContext)]
	jobFinished listeners[func(*Entry)]
	jobError    listeners[func(*JobContext, error) bool]
}

func noop() {}

// OnStarting registers fn to run before the scheduler starts.
// Every On* method returns a function that removes the registration.
func (s *Scheduler) OnStarting(fn func()) func() {
	if fn == nil {
		return noop
	}
	return s.hooks.starting.add(fn)
}

func (s *Scheduler) OnStarted(fn func()) func() {
	if fn == nil {
		return noop
	}
	return s.hooks.started.add(fn)
}

// OnStopping runs on every Stop call, including when the scheduler is not running.
func (s *Scheduler) OnStopping(fn func()) func() {
	if fn == nil {
		return noop
	}
	return s.hooks.stopping.add(fn)
}

func (s *Scheduler) OnStopped(fn func()) func() {
	if fn == nil {
		return noop
	}
	return s.hooks.stopped.add(fn)
}

// OnJobStarting runs before each dispatch. Returning false from any listener
// vetoes that dispatch; the entry stays scheduled.
func (s *Scheduler) OnJobStarting(fn func(e *Entry) bool) func() {
	if fn == nil {
		return noop
	}
	return s.hooks.jobStarting.add(fn)
}

func (s *Scheduler) OnJobStarted(fn func(jc *JobContext)) func() {
	if fn == nil {
		return noop
	}
	return s.hooks.jobStarted.add(fn)
}

func (s *Scheduler) OnJobFinished(fn func(e *Entry)) func() {
	if fn == nil {
		return noop
	}
	return s.hooks.jobFinished.add(fn)
}

// OnJobError runs when an execution fails. Returning true from any listener
// rethrows the error to the runner as a fault of the dispatch task.
func (s *Scheduler) OnJobError(fn func(jc *JobContext, err error) bool) func() {
	if fn == nil {
		return noop
	}
	return s.hooks.jobError.add(fn)
}

// Subscribe returns a buffered stream of lifecycle events. Events are dropped
// when the buffer is full. Call the returned function to unsubscribe.
func (s *Scheduler) Subscribe(buffer int, prefixes ...string) (<-chan Event, func()) {
	return s.bus.Subscribe(buffer, prefixes...)
}

// DroppedEvents reports how many events were not delivered because a
// subscriber's buffer was full.
func (s *Scheduler) DroppedEvents() uint64 { return s.bus.Dropped() }

func (s *Scheduler) fire(list *listeners[func()], typ string) {
	for _, fn := range list.snapshot() {
		fn()
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: time.Now()})
}

func (s *Scheduler) publishJob(typ string, e *Entry, x *ActiveExecution, err error) {
	ev := JobEvent{EntryID: e.id, Name: e.name, Err: err}
	if x != nil {
		ev.ExecutionID = x.id
		ev.Started = x.started
		ev.Duration = x.Runtime()
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: ev})
}

func (s *Scheduler) fireJobStarting(e *Entry) bool {
	allowed := true
	for _, fn := range s.hooks.jobStarting.snapshot() {
		if !fn(e) {
			allowed = false
		}
	}
	return allowed
}

func (s *Scheduler) fireJobStarted(jc *JobContext) {
	for _, fn := range s.hooks.jobStarted.snapshot() {
		fn(jc)
	}
}

func (s *Scheduler) fireJobFinished(e *Entry) {
	for _, fn := range s.hooks.jobFinished.snapshot() {
		fn(e)
	}
}

func (s *Scheduler) fireJobError(jc *JobContext, err error) (rethrow bool) {
	for _, fn := range s.hooks.jobError.snapshot() {
		if fn(jc, err) {
			rethrow = true
		}
	}
	return rethrow
}
