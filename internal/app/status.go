package app

import (
	"reflect"
	"time"

	logx "tempus/pkg/logx"
	"tempus/pkg/tempus"
)

const defaultStatusCron = "0 */5 * * * *"

var statusJobType = reflect.TypeFor[statusJob]()

// statusJob logs a summary of the scheduler's state.
type statusJob struct {
	log   logx.Logger
	sched *tempus.Scheduler
}

func (statusJob) Declaration() tempus.Declaration {
	return tempus.Declaration{Cron: defaultStatusCron, Overlap: tempus.OverlapSkip}
}

func (j *statusJob) Inject(sc *Scope) error {
	log, err := Lookup[logx.Logger](sc)
	if err != nil {
		return err
	}
	j.log = log.With(logx.String("comp", "status"))
	j.sched, err = Lookup[*tempus.Scheduler](sc)
	return err
}

func (j *statusJob) Execute(jc *tempus.JobContext) error {
	s := j.sched
	if s == nil {
		s = jc.Scheduler()
	}
	r := collectStatus(s, jc.Execution().ID())
	fields := []logx.Field{
		logx.Int("scheduled", r.Scheduled),
		logx.Int("active", r.Active),
		logx.Uint64("faults", r.Faults),
		logx.Uint64("dropped_events", r.DroppedEvents),
	}
	if r.Longest != "" {
		fields = append(fields, logx.String("longest", r.Longest), logx.Duration("longest_runtime", r.LongestRuntime))
	}
	if !r.NextDue.IsZero() {
		fields = append(fields, logx.String("next_job", r.NextJob), logx.Time("next_due", r.NextDue))
	}
	j.log.Info("scheduler status", fields...)
	return nil
}

type statusReport struct {
	Scheduled      int
	Active         int
	Faults         uint64
	DroppedEvents  uint64
	Longest        string
	LongestRuntime time.Duration
	NextJob        string
	NextDue        time.Time
}

// collectStatus summarizes s. The execution self is left out of the active set.
func collectStatus(s *tempus.Scheduler, self int64) statusReport {
	r := statusReport{
		Scheduled:     s.ScheduledJobs().Count(),
		Faults:        s.Faults(),
		DroppedEvents: s.DroppedEvents(),
	}
	for _, x := range s.ActiveJobs().Snapshot(tempus.OrderRuntimeLongest) {
		if x.ID() == self {
			continue
		}
		if r.Active == 0 {
			r.Longest = x.Entry().Name()
			r.LongestRuntime = x.Runtime()
		}
		r.Active++
	}
	for _, e := range s.ScheduledJobs().Snapshot() {
		next, ok := e.NextDue()
		if !ok {
			continue
		}
		if r.NextDue.IsZero() || next.Before(r.NextDue) {
			r.NextDue, r.NextJob = next, e.Name()
		}
	}
	return r
}
