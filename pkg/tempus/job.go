package tempus

import (
	"context"
	"fmt"
	"reflect"

	"tempus/internal/runtime/supervisor"
)

// Job is a unit of work run by the scheduler.
//
// Execute should observe jc.Context() and return promptly once it is canceled.
type Job interface {
	Execute(jc *JobContext) error
}

// HandlerFunc adapts an ordinary function to a Job.
type HandlerFunc func(jc *JobContext) error

func (f HandlerFunc) Execute(jc *JobContext) error { return f(jc) }

// JobContext is handed to every execution.
type JobContext struct {
	ctx       context.Context
	scheduler *Scheduler
	execution *ActiveExecution
}

// Context is canceled when the execution is released or the scheduler stops.
func (c *JobContext) Context() context.Context    { return c.ctx }
func (c *JobContext) Scheduler() *Scheduler       { return c.scheduler }
func (c *JobContext) Execution() *ActiveExecution { return c.execution }
func (c *JobContext) Entry() *Entry               { return c.execution.Entry() }

// CancellationRequested reports whether the execution has been asked to stop.
func (c *JobContext) CancellationRequested() bool { return c.ctx.Err() != nil }

// Factory creates scopes that build typed jobs. A dependency-injection
// container is the usual implementation.
type Factory interface {
	CreateScope(ctx context.Context) (Scope, error)
}

// Scope builds job instances and releases whatever it created on Close.
// The scheduler closes every scope it creates, including on failure.
type Scope interface {
	Create(t reflect.Type) (Job, error)
	Close() error
}

// Runner launches dispatch tasks. A task returning an error is an unhandled
// fault of that task; the runner decides how to surface it.
type Runner interface {
	Go(name string, task func() error)
}

// RunnerFunc adapts a function to a Runner.
type RunnerFunc func(name string, task func() error)

func (f RunnerFunc) Go(name string, task func() error) { f(name, task) }

var jobInterface = reflect.TypeFor[Job]()

func checkJobType(t reflect.Type) error {
	if t == nil {
		return ErrNilType
	}
	if t.Implements(jobInterface) {
		return nil
	}
	if t.Kind() != reflect.Pointer && t.Kind() != reflect.Interface && reflect.PointerTo(t).Implements(jobInterface) {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrNotJob, t)
}

// defaultFactory constructs the zero value of the requested type.
type defaultFactory struct{}

func (defaultFactory) CreateScope(context.Context) (Scope, error) { return reflectScope{}, nil }

type reflectScope struct{}

func (reflectScope) Create(t reflect.Type) (Job, error) { return NewZeroJob(t) }

func (reflectScope) Close() error { return nil }

// NewZeroJob returns a zero-valued instance of t as a Job. For a struct type T
// whose methods have pointer receivers, the instance is a *T.
func NewZeroJob(t reflect.Type) (Job, error) {
	if err := checkJobType(t); err != nil {
		return nil, err
	}
	switch t.Kind() {
	case reflect.Interface:
		return nil, fmt.Errorf("tempus: cannot construct interface type %s", t)
	case reflect.Pointer:
		if j, ok := reflect.New(t.Elem()).Interface().(Job); ok {
			return j, nil
		}
	default:
		v := reflect.New(t)
		if j, ok := v.Interface().(Job); ok {
			return j, nil
		}
		if j, ok := v.Elem().Interface().(Job); ok {
			return j, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotJob, t)
}

// supervisorRunner runs every dispatch on its own supervised goroutine.
type supervisorRunner struct {
	sup *supervisor.Supervisor
}

// Go reports every error the task returns as a fault, including errors that
// wrap context.Canceled.
func (r supervisorRunner) Go(name string, task func() error) {
	r.sup.Go(name, func(context.Context) error {
		r.sup.Report(name, task())
		return nil
	})
}
