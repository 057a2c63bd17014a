package tempus

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	logx "tempus/pkg/logx"
)

// PanicError is the failure of a job that panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (p *PanicError) Error() string { return fmt.Sprintf("tempus: job panicked: %v", p.Value) }

func (p *PanicError) Unwrap() error {
	if err, ok := p.Value.(error); ok {
		return err
	}
	return nil
}

// dispatch runs one due occurrence of e. The returned error is non-nil only
// when a JobError listener asked for the failure to be rethrown.
func (s *Scheduler) dispatch(ctx context.Context, factory Factory, e *Entry) error {
	log := s.log.With(logx.String("job", e.name), logx.String("entry", e.id.String()))

	if !s.fireJobStarting(e) {
		log.Debug("dispatch vetoed")
		s.publishJob(EventJobVetoed, e, nil, nil)
		return nil
	}
	if e.policy == OverlapSkip && s.active.Contains(e) {
		log.Debug("dispatch skipped", logx.String("reason", "already running"))
		s.publishJob(EventJobSkipped, e, nil, nil)
		return nil
	}
	if !e.acquire(ctx) {
		log.Debug("dispatch abandoned while waiting", logx.String("reason", "scheduler stopped"))
		return nil
	}
	defer e.release()

	x := newActiveExecution(ctx, e, time.Now())
	defer x.cancel()
	if e.policy == OverlapSkip {
		if !s.active.addExclusive(x) {
			log.Debug("dispatch skipped", logx.String("reason", "already running"))
			s.publishJob(EventJobSkipped, e, nil, nil)
			return nil
		}
	} else {
		s.active.add(x)
	}
	defer s.active.Remove(x.id)
	// Checked after the insert: a stop that drained before it must not see a
	// late execution start.
	if x.ctx.Err() != nil {
		log.Debug("dispatch abandoned", logx.String("reason", "scheduler stopped"))
		return nil
	}

	jc := &JobContext{ctx: x.ctx, scheduler: s, execution: x}
	s.fireJobStarted(jc)
	s.publishJob(EventJobStarted, e, x, nil)
	log.Debug("job started", logx.Int64("exec", x.id))

	err := s.execute(factory, jc, log)
	if err == nil {
		s.fireJobFinished(e)
		s.publishJob(EventJobFinished, e, x, nil)
		log.Debug("job finished", logx.Int64("exec", x.id), logx.Duration("took", x.Runtime()))
		return nil
	}

	rethrow := s.fireJobError(jc, err)
	s.publishJob(EventJobFailed, e, x, err)
	if rethrow {
		return fmt.Errorf("job %s (exec %d): %w", e.name, x.id, err)
	}
	s.failures.report(x, err)
	return nil
}

// execute runs the job body and converts a panic into a *PanicError.
func (s *Scheduler) execute(factory Factory, jc *JobContext, log logx.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()

	e := jc.Entry()
	if e.handler != nil {
		return e.handler(jc)
	}

	scope, err := factory.CreateScope(jc.ctx)
	if err != nil {
		return fmt.Errorf("create scope: %w", err)
	}
	if scope == nil {
		return errors.New("create scope: factory returned a nil scope")
	}
	defer func() {
		if cerr := scope.Close(); cerr != nil {
			log.Warn("scope close failed", logx.Err(cerr))
		}
	}()

	job, err := scope.Create(e.jobType)
	if err != nil {
		return fmt.Errorf("create %s: %w", e.name, err)
	}
	if job == nil {
		return fmt.Errorf("create %s: scope returned a nil job", e.name)
	}
	return job.Execute(jc)
}
