package app

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"tempus/pkg/tempus"
)

// Provider builds a job for one execution. Anything it acquires should be
// registered with sc.OnClose.
type Provider func(ctx context.Context, sc *Scope) (tempus.Job, error)

// Injectable jobs receive their dependencies after construction.
type Injectable interface {
	Inject(sc *Scope) error
}

// Container is the job factory handed to the scheduler. It resolves typed
// jobs from registered providers and falls back to zero-value construction.
type Container struct {
	mu        sync.RWMutex
	providers map[reflect.Type]Provider
	services  map[reflect.Type]any
}

func NewContainer() *Container {
	return &Container{
		providers: map[reflect.Type]Provider{},
		services:  map[reflect.Type]any{},
	}
}

// Provide registers fn as the constructor of job type t.
func (c *Container) Provide(t reflect.Type, fn Provider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if fn == nil {
		delete(c.providers, t)
		return
	}
	c.providers[t] = fn
}

// ProvideJob registers fn as the constructor of job type T.
func ProvideJob[T any](c *Container, fn Provider) {
	c.Provide(reflect.TypeFor[T](), fn)
}

// Set registers a shared service under its static type T.
func Set[T any](c *Container, v T) {
	c.mu.Lock()
	c.services[reflect.TypeFor[T]()] = v
	c.mu.Unlock()
}

// Lookup returns the service registered under T.
func Lookup[T any](sc *Scope) (T, error) {
	var zero T
	t := reflect.TypeFor[T]()
	sc.c.mu.RLock()
	v, ok := sc.c.services[t]
	sc.c.mu.RUnlock()
	if !ok {
		return zero, fmt.Errorf("container: no service registered for %s", t)
	}
	return v.(T), nil
}

func (c *Container) CreateScope(ctx context.Context) (tempus.Scope, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Scope{c: c, ctx: ctx}, nil
}

// Scope lives for one execution.
type Scope struct {
	c   *Container
	ctx context.Context

	mu      sync.Mutex
	closers []func() error
	closed  bool
}

func (sc *Scope) Context() context.Context { return sc.ctx }

// OnClose registers fn to run when the scope closes. Closers run in reverse
// registration order.
func (sc *Scope) OnClose(fn func() error) {
	if fn == nil {
		return
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.closed {
		_ = fn()
		return
	}
	sc.closers = append(sc.closers, fn)
}

func (sc *Scope) Create(t reflect.Type) (tempus.Job, error) {
	sc.c.mu.RLock()
	fn := sc.c.providers[t]
	sc.c.mu.RUnlock()

	var (
		job tempus.Job
		err error
	)
	if fn != nil {
		job, err = fn(sc.ctx, sc)
	} else {
		job, err = tempus.NewZeroJob(t)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", t, err)
	}
	if job == nil {
		return nil, fmt.Errorf("create %s: provider returned nil", t)
	}
	if inj, ok := job.(Injectable); ok {
		if err := inj.Inject(sc); err != nil {
			return nil, fmt.Errorf("inject %s: %w", t, err)
		}
	}
	return job, nil
}

func (sc *Scope) Close() error {
	sc.mu.Lock()
	closers := sc.closers
	sc.closers = nil
	sc.closed = true
	sc.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
