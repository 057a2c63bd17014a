// Package tempus is an in-process job scheduler.
//
// A Scheduler owns two registries: the scheduled jobs (what should run and
// when) and the active jobs (what is running right now). Once started it polls
// the scheduled jobs at a fixed interval, dispatches every due entry on its
// Runner and tracks the resulting execution until it completes.
//
// Three pattern forms are understood:
//   - "@immediately": run once, as soon as possible
//   - "@once <ISO-8601 timestamp>": run once at the given instant
//   - anything else: a six-field cron expression (seconds first), evaluated in UTC
//
// Each entry carries an OverlapPolicy controlling what happens when it becomes
// due while a previous execution is still running: OverlapAllow runs both,
// OverlapSkip drops the new run, OverlapWait queues it behind the previous one.
//
// Basic usage:
//
//	s := tempus.New(tempus.WithLogger(log))
//	id, err := s.Schedule("*/10 * * * * *", func(jc *tempus.JobContext) error {
//		return refresh(jc.Context())
//	}, tempus.OverlapSkip)
//	s.Start()
//	defer s.Stop(true)
//
// Unschedule only removes future runs; an execution already dispatched from
// the entry keeps running until its body returns.
package tempus
