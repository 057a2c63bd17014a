package tempus

import (
	"context"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"tempus/internal/eventbus"
	"tempus/internal/runtime/supervisor"
	logx "tempus/pkg/logx"
)

const (
	DefaultPollInterval  = time.Second
	DefaultDrainInterval = 100 * time.Millisecond
)

// State is the lifecycle state of a Scheduler.
type State int32

const (
	StateStopped State = iota
	StateRunning
)

func (s State) String() string {
	if s == StateRunning {
		return "running"
	}
	return "stopped"
}

type Option func(*Scheduler)

// WithPollInterval sets the cadence of due checks. Non-positive values are ignored.
func WithPollInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithDrainInterval sets how often a draining Stop re-checks the active executions.
func WithDrainInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.drainInterval = d
		}
	}
}

func WithLogger(log logx.Logger) Option {
	return func(s *Scheduler) { s.log = log }
}

// WithClock replaces the time source used for due checks and registration.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

type factoryRef struct{ f Factory }
type runnerRef struct{ r Runner }

// Scheduler polls its registry at a fixed interval and dispatches due entries.
type Scheduler struct {
	log           logx.Logger
	pollInterval  time.Duration
	drainInterval time.Duration
	now           func() time.Time

	scheduled *ScheduledJobs
	active    *ActiveJobs
	hooks     hooks
	bus       eventbus.Bus
	failures  *failureReporter

	factory atomic.Pointer[factoryRef]
	runner  atomic.Pointer[runnerRef]
	// tasks backs the default runner for the scheduler's whole lifetime.
	tasks *supervisor.Supervisor

	// lifecycle serializes Start and Stop. Lifecycle listeners must not call them.
	lifecycle sync.Mutex
	state     atomic.Int32
	runCancel context.CancelFunc
	loop      *supervisor.Supervisor
}

// New returns a stopped scheduler.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		pollInterval:  DefaultPollInterval,
		drainInterval: DefaultDrainInterval,
		now:           time.Now,
		scheduled:     newScheduledJobs(),
		active:        newActiveJobs(),
		bus:           eventbus.New(),
	}
	for _, o := range opts {
		if o != nil {
			o(s)
		}
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	s.log = s.log.With(logx.String("comp", "scheduler"))
	s.failures = newFailureReporter(s.log)
	s.tasks = supervisor.New(context.Background(), supervisor.WithLogger(s.log))
	s.SetFactory(nil)
	s.SetRunner(nil)
	return s
}

func (s *Scheduler) State() State                { return State(s.state.Load()) }
func (s *Scheduler) Running() bool               { return s.State() == StateRunning }
func (s *Scheduler) PollInterval() time.Duration { return s.pollInterval }

// ScheduledJobs returns the live registry of entries.
func (s *Scheduler) ScheduledJobs() *ScheduledJobs { return s.scheduled }

// ActiveJobs returns the live registry of in-flight executions.
func (s *Scheduler) ActiveJobs() *ActiveJobs { return s.active }

func (s *Scheduler) Factory() Factory { return s.factory.Load().f }

// SetFactory replaces the job factory. nil restores the default factory.
// The change applies from the next tick.
func (s *Scheduler) SetFactory(f Factory) {
	if f == nil {
		f = defaultFactory{}
	}
	s.factory.Store(&factoryRef{f: f})
}

func (s *Scheduler) Runner() Runner { return s.runner.Load().r }

// SetRunner replaces the dispatch runner. nil restores the default runner.
// The change applies from the next tick.
func (s *Scheduler) SetRunner(r Runner) {
	if r == nil {
		r = supervisorRunner{sup: s.tasks}
	}
	s.runner.Store(&runnerRef{r: r})
}

// Faults reports how many dispatch tasks of the default runner ended with an
// unhandled error or panic.
func (s *Scheduler) Faults() uint64 { return s.tasks.Counters().Faults }

// LastFault returns the most recent fault recorded by the default runner.
func (s *Scheduler) LastFault() error { return s.tasks.LastErr() }

// ScheduleType registers t using the schedule it declares through Declarer.
func (s *Scheduler) ScheduleType(t reflect.Type) (uuid.UUID, error) {
	d, err := DeclarationOf(t)
	if err != nil {
		return uuid.Nil, err
	}
	return s.ScheduleTypeWith(t, d)
}

// ScheduleTypeWith registers t with an explicit declaration.
func (s *Scheduler) ScheduleTypeWith(t reflect.Type, d Declaration) (uuid.UUID, error) {
	e, err := s.scheduled.addType(t, d, s.now())
	if err != nil {
		return uuid.Nil, err
	}
	s.logScheduled(e)
	return e.id, nil
}

// Schedule registers an anonymous handler.
func (s *Scheduler) Schedule(pattern string, h HandlerFunc, policy OverlapPolicy) (uuid.UUID, error) {
	e, err := s.scheduled.addHandler(pattern, h, policy, s.now())
	if err != nil {
		return uuid.Nil, err
	}
	s.logScheduled(e)
	return e.id, nil
}

// ScheduleNow registers a handler that runs once on the next tick.
func (s *Scheduler) ScheduleNow(h HandlerFunc, policy OverlapPolicy) (uuid.UUID, error) {
	return s.Schedule(PatternImmediately, h, policy)
}

// ScheduleAt registers a handler that runs once at the given instant.
func (s *Scheduler) ScheduleAt(at time.Time, h HandlerFunc, policy OverlapPolicy) (uuid.UUID, error) {
	return s.Schedule(OncePattern(at), h, policy)
}

// Unschedule removes an entry so it is never dispatched again. Executions
// already dispatched keep running.
func (s *Scheduler) Unschedule(id uuid.UUID) bool {
	if !s.scheduled.Remove(id) {
		return false
	}
	s.failures.forget(id)
	s.log.Debug("job unscheduled", logx.String("entry", id.String()))
	return true
}

func (s *Scheduler) logScheduled(e *Entry) {
	if !s.log.Enabled(logx.LevelDebug) {
		return
	}
	next, _ := e.NextDue()
	s.log.Debug("job scheduled",
		logx.String("entry", e.id.String()),
		logx.String("job", e.name),
		logx.String("pattern", e.pattern),
		logx.String("overlap", e.policy.String()),
		logx.Time("next", next),
	)
}

// Start begins polling. The first tick happens immediately. Starting a running
// scheduler does nothing.
func (s *Scheduler) Start() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if s.Running() {
		return
	}
	s.fire(&s.hooks.starting, EventStarting)

	ctx, cancel := context.WithCancel(context.Background())
	loop := supervisor.New(ctx, supervisor.WithLogger(s.log))
	s.runCancel = cancel
	s.loop = loop
	s.state.Store(int32(StateRunning))
	loop.GoRestart("tempus.poll", s.poll, s.pollInterval, 30*s.pollInterval)

	s.log.Info("scheduler started",
		logx.Duration("poll", s.pollInterval),
		logx.Int("scheduled", s.scheduled.Count()),
	)
	s.fire(&s.hooks.started, EventStarted)
}

// Stop stops polling and cancels running executions. With drain it blocks
// until every active execution has been removed.
func (s *Scheduler) Stop(drain bool) {
	_ = s.StopContext(context.Background(), drain)
}

// StopContext is Stop bounded by ctx. It returns ctx.Err() if the drain did
// not finish in time.
func (s *Scheduler) StopContext(ctx context.Context, drain bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.fire(&s.hooks.stopping, EventStopping)
	if !s.Running() {
		return nil
	}
	start := time.Now()
	s.log.Info("stop requested", logx.Bool("drain", drain), logx.Int("active", s.active.Count()))

	s.state.Store(int32(StateStopped))
	s.runCancel()
	_ = s.loop.Stop(ctx)
	s.runCancel, s.loop = nil, nil

	var err error
	if drain {
		err = s.drain(ctx)
	}
	if err != nil {
		s.log.Warn("drain incomplete", logx.Int("active", s.active.Count()), logx.Err(err))
	}
	s.log.Info("scheduler stopped", logx.Duration("took", time.Since(start)))
	s.fire(&s.hooks.stopped, EventStopped)
	return err
}

func (s *Scheduler) drain(ctx context.Context) error {
	t := time.NewTicker(s.drainInterval)
	defer t.Stop()
	for s.active.Count() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return nil
}

func (s *Scheduler) poll(ctx context.Context) error {
	t := time.NewTicker(s.pollInterval)
	defer t.Stop()
	for {
		s.tick(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	factory := s.Factory()
	runner := s.Runner()
	due := s.scheduled.PullDue(s.now())
	for _, e := range due {
		runner.Go("tempus.dispatch "+e.name, func() error {
			return s.dispatch(ctx, factory, e)
		})
	}
}
