package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/google/uuid"

	"tempus/internal/config"
	"tempus/internal/runtime/supervisor"
	logx "tempus/pkg/logx"
	"tempus/pkg/tempus"
)

// App hosts a scheduler driven by a config file.
type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service

	sched *tempus.Scheduler
	ctr   *Container
	units *unitDialer
	jobs  *jobSet

	// statusMu guards the status job registration.
	statusMu   sync.Mutex
	statusID   uuid.UUID
	statusCron string

	stopOnce sync.Once
}

// New loads the config at path and builds a stopped app.
func New(path string) (*App, error) {
	cfgm := config.NewConfigManager(path)
	cfg, err := cfgm.Load(context.Background())
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logConfig(cfg))

	sched := tempus.New(
		tempus.WithLogger(log),
		tempus.WithPollInterval(cfg.Scheduler.PollIntervalOrDefault()),
	)

	ctr := NewContainer()
	Set(ctr, log)
	Set(ctr, sched)
	Set(ctr, cfgm)
	sched.SetFactory(ctr)

	units := newUnitDialer()
	a := &App{
		cfgm:  cfgm,
		log:   log.With(logx.String("comp", "app")),
		logs:  logSvc,
		sched: sched,
		ctr:   ctr,
		units: units,
		jobs:  newJobSet(sched, log.With(logx.String("comp", "jobs")), units),
	}
	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	return a, nil
}

func logConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func (a *App) Scheduler() *tempus.Scheduler { return a.sched }

func (a *App) Container() *Container { return a.ctr }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start registers the configured jobs, starts the scheduler and begins
// watching the config file.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	// Subscribe before reading the baseline so no commit falls between them.
	sub := a.cfgm.Subscribe(8)
	cfg := a.cfgm.Get()
	diff, err := a.jobs.apply(cfg.Jobs)
	if err != nil {
		a.cfgm.Unsubscribe(sub)
		return fmt.Errorf("register jobs: %w", err)
	}
	if err := a.scheduleStatus(cfg.Scheduler.StatusCron); err != nil {
		a.cfgm.Unsubscribe(sub)
		return fmt.Errorf("register status job: %w", err)
	}
	a.sched.Start()

	events, unsub := a.sched.Subscribe(128)
	a.sup.Go("scheduler.events", func(c context.Context) error {
		defer unsub()
		a.logEvents(c, events)
		return nil
	})

	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub, cfg)
		return nil
	})

	a.sup.GoRestart("config.watch", a.cfgm.Watch, time.Second, 30*time.Second)

	notifySystemd(a.log, daemon.SdNotifyReady)
	a.log.Info("app started",
		logx.String("config", a.cfgm.Path()),
		logx.Int("jobs", len(diff.Added)),
		logx.Duration("poll", a.sched.PollInterval()),
	)
	return nil
}

// Reload re-reads the config file. Changes reach the scheduler through the
// reload loop.
func (a *App) Reload(ctx context.Context) error {
	notifySystemd(a.log, daemon.SdNotifyReloading)
	defer notifySystemd(a.log, daemon.SdNotifyReady)
	published, err := a.cfgm.Reload(ctx)
	if err != nil {
		a.log.Warn("config reload failed", logx.Err(err))
		return err
	}
	if !published {
		a.log.Info("config reload requested; file unchanged")
	}
	return nil
}

func (a *App) logEvents(ctx context.Context, events <-chan tempus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if !a.log.Enabled(logx.LevelDebug) {
				continue
			}
			fields := []logx.Field{logx.String("type", e.Type), logx.Time("time", e.Time)}
			if je, ok := e.Data.(tempus.JobEvent); ok {
				name := je.Name
				if n, ok := a.jobs.names()[je.EntryID]; ok {
					name = n
				}
				fields = append(fields, logx.String("job", name))
				if je.ExecutionID != 0 {
					fields = append(fields, logx.Int64("exec", je.ExecutionID))
				}
				if e.Type == tempus.EventJobFinished || e.Type == tempus.EventJobFailed {
					fields = append(fields, logx.Duration("took", je.Duration))
				}
				if je.Err != nil {
					fields = append(fields, logx.Err(je.Err))
				}
			}
			a.log.Debug("event", fields...)
		}
	}
}

// reloadLoop applies every published config relative to lastApplied, the
// config Start registered.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config, lastApplied *config.Config) {
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config in the channel.
			for drained := false; !drained; {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					drained = true
				}
			}
			if newCfg == nil {
				continue
			}
			a.applyConfig(lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

func (a *App) applyConfig(prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	a.log.Debug("config change summary", append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)...)

	a.logs.Apply(logConfig(next))

	if prev != nil && next.Scheduler.PollIntervalOrDefault() != prev.Scheduler.PollIntervalOrDefault() {
		a.log.Warn("scheduler.poll_interval changed; restart required for changes to take effect",
			logx.Duration("current", a.sched.PollInterval()))
	}

	var errs []error
	diff, err := a.jobs.apply(next.Jobs)
	if err != nil {
		errs = append(errs, err)
	}
	if err := a.scheduleStatus(next.Scheduler.StatusCron); err != nil {
		errs = append(errs, fmt.Errorf("status job: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		a.log.Warn("config applied with errors", logx.Err(err))
	}

	a.log.Info("config reloaded",
		logx.String("changed", strings.Join(sections, ",")),
		logx.Any("jobs.added", diff.Added),
		logx.Any("jobs.removed", diff.Removed),
		logx.Any("jobs.changed", diff.Changed),
	)
}

// scheduleStatus (re)registers the status job when its cron changes. An empty
// cron disables it.
func (a *App) scheduleStatus(cron string) error {
	cron = strings.TrimSpace(cron)
	a.statusMu.Lock()
	defer a.statusMu.Unlock()
	if cron == a.statusCron && (cron == "" || a.statusID != uuid.Nil) {
		return nil
	}
	if a.statusID != uuid.Nil {
		a.sched.Unschedule(a.statusID)
		a.statusID = uuid.Nil
	}
	a.statusCron = cron
	if cron == "" {
		return nil
	}
	d, err := tempus.DeclarationOf(statusJobType)
	if err != nil {
		return err
	}
	d.Cron = cron
	id, err := a.sched.ScheduleTypeWith(statusJobType, d)
	if err != nil {
		return err
	}
	a.statusID = id
	return nil
}

// Stop stops watching the config, stops the scheduler and closes everything
// the app owns. Running jobs are drained when scheduler.drain is enabled,
// bounded by scheduler.drain_timeout and ctx.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	var err error
	a.stopOnce.Do(func() { err = a.stop(ctx, reason) })
	return err
}

func (a *App) stop(ctx context.Context, reason StopReason) error {
	a.log.Info("stopping", logx.String("reason", string(reason)))
	notifySystemd(a.log, daemon.SdNotifyStopping)
	start := time.Now()

	if a.sup != nil {
		if err := a.sup.Stop(ctx); err != nil {
			a.log.Warn("supervisor stopped with error", logx.Err(err))
		}
	}

	cfg := a.cfgm.Get()
	drain := cfg.Scheduler.DrainEnabled()
	stopCtx, cancel := context.WithTimeout(ctx, cfg.Scheduler.DrainTimeoutOrDefault())
	defer cancel()

	var errs []error
	if err := a.sched.StopContext(stopCtx, drain); err != nil {
		errs = append(errs, fmt.Errorf("scheduler drain: %w", err))
	}
	if err := a.units.Close(); err != nil {
		errs = append(errs, fmt.Errorf("systemd connection: %w", err))
	}

	a.log.Info("stopped", logx.Duration("took", time.Since(start)))
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return errors.Join(errs...)
}
