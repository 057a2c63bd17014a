package tempus

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	logx "tempus/pkg/logx"
)

const failureWarnEvery = 30 * time.Second

// failureReporter logs contained job failures, at most one warning per entry
// every failureWarnEvery. Suppressed failures are counted into the next warning.
type failureReporter struct {
	log logx.Logger

	mu     sync.Mutex
	limits map[uuid.UUID]*failureLimit
}

type failureLimit struct {
	lim        *rate.Limiter
	suppressed int
}

func newFailureReporter(log logx.Logger) *failureReporter {
	return &failureReporter{log: log, limits: map[uuid.UUID]*failureLimit{}}
}

func (r *failureReporter) report(x *ActiveExecution, err error) {
	e := x.entry
	fields := []logx.Field{
		logx.String("job", e.name),
		logx.String("entry", e.id.String()),
		logx.Int64("exec", x.id),
		logx.Duration("took", x.Runtime()),
		logx.Err(err),
	}
	if pe, ok := err.(*PanicError); ok {
		fields = append(fields, logx.Stack(string(pe.Stack)))
	}

	// One-shot entries fail at most once; no limiter to keep around.
	if e.kind != KindRecurring {
		r.log.Warn("job failed", fields...)
		return
	}

	r.mu.Lock()
	l := r.limits[e.id]
	if l == nil {
		l = &failureLimit{lim: rate.NewLimiter(rate.Every(failureWarnEvery), 1)}
		r.limits[e.id] = l
	}
	if !l.lim.Allow() {
		l.suppressed++
		r.mu.Unlock()
		r.log.Debug("job failed", fields...)
		return
	}
	suppressed := l.suppressed
	l.suppressed = 0
	r.mu.Unlock()

	if suppressed > 0 {
		fields = append(fields, logx.Int("suppressed", suppressed))
	}
	r.log.Warn("job failed", fields...)
}

func (r *failureReporter) forget(id uuid.UUID) {
	r.mu.Lock()
	delete(r.limits, id)
	r.mu.Unlock()
}
