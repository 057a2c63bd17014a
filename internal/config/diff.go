package config

import (
	"sort"
	"strings"

	logx "tempus/pkg/logx"
)

// JobDiff groups job names by how they changed between two configs.
type JobDiff struct {
	Added     []string
	Removed   []string
	Changed   []string
	Unchanged []string
}

// Empty reports whether no job was added, removed or changed.
func (d JobDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// DiffJobs compares jobs by name and definition. Names are sorted.
func DiffJobs(oldJobs, newJobs []JobConfig) JobDiff {
	oldByName := make(map[string]uint64, len(oldJobs))
	for _, j := range oldJobs {
		oldByName[strings.TrimSpace(j.Name)] = j.Fingerprint()
	}
	var d JobDiff
	seen := make(map[string]struct{}, len(newJobs))
	for _, j := range newJobs {
		name := strings.TrimSpace(j.Name)
		seen[name] = struct{}{}
		fp, ok := oldByName[name]
		switch {
		case !ok:
			d.Added = append(d.Added, name)
		case fp != j.Fingerprint():
			d.Changed = append(d.Changed, name)
		default:
			d.Unchanged = append(d.Unchanged, name)
		}
	}
	for name := range oldByName {
		if _, ok := seen[name]; !ok {
			d.Removed = append(d.Removed, name)
		}
	}
	sort.Strings(d.Added)
	sort.Strings(d.Removed)
	sort.Strings(d.Changed)
	sort.Strings(d.Unchanged)
	return d
}

// SummarizeConfigChange returns a compact list of changed sections and
// structured attrs for logging. Command arguments and env values are never
// included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 3)
	attrs := make([]logx.Field, 0, 12)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	prev, next := oldCfg.Scheduler, newCfg.Scheduler
	if strings.TrimSpace(prev.PollInterval) != strings.TrimSpace(next.PollInterval) ||
		prev.DrainEnabled() != next.DrainEnabled() ||
		strings.TrimSpace(prev.DrainTimeout) != strings.TrimSpace(next.DrainTimeout) ||
		strings.TrimSpace(prev.StatusCron) != strings.TrimSpace(next.StatusCron) {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Duration("scheduler.poll_interval", next.PollIntervalOrDefault()),
			logx.Bool("scheduler.drain", next.DrainEnabled()),
			logx.Duration("scheduler.drain_timeout", next.DrainTimeoutOrDefault()),
			logx.String("scheduler.status_cron", strings.TrimSpace(next.StatusCron)),
		)
	}

	if d := DiffJobs(oldCfg.Jobs, newCfg.Jobs); !d.Empty() {
		changed = append(changed, "jobs")
		attrs = append(attrs,
			logx.Int("jobs.total", len(newCfg.Jobs)),
			logx.Any("jobs.added", d.Added),
			logx.Any("jobs.removed", d.Removed),
			logx.Any("jobs.changed", d.Changed),
		)
	}
	return changed, attrs
}
