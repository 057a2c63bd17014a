package config

import (
	"errors"
	"fmt"
	"strings"

	"tempus/internal/unitctl"
	logx "tempus/pkg/logx"
	"tempus/pkg/tempus"
)

// Validate checks cfg for problems that would make it unusable.
// All problems are reported together.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error

	if lvl := strings.TrimSpace(cfg.Logging.Level); lvl != "" {
		if _, ok := logx.ParseLevel(lvl); !ok {
			errs = append(errs, fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level))
		}
	}
	if cfg.Logging.File.Enabled && strings.TrimSpace(cfg.Logging.File.Path) == "" {
		errs = append(errs, errors.New("logging.file.path: required when file logging is enabled"))
	}

	if _, err := ParseDurationField("scheduler.poll_interval", cfg.Scheduler.PollInterval); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseDurationField("scheduler.drain_timeout", cfg.Scheduler.DrainTimeout); err != nil {
		errs = append(errs, err)
	}
	if sc := strings.TrimSpace(cfg.Scheduler.StatusCron); sc != "" {
		if err := tempus.ValidatePattern(sc); err != nil {
			errs = append(errs, fmt.Errorf("scheduler.status_cron: %w", err))
		}
	}

	seen := make(map[string]int, len(cfg.Jobs))
	for i, j := range cfg.Jobs {
		errs = append(errs, validateJob(i, j, seen)...)
	}
	return errors.Join(errs...)
}

func validateJob(i int, j JobConfig, seen map[string]int) []error {
	var errs []error
	path := fmt.Sprintf("jobs[%d]", i)
	name := strings.TrimSpace(j.Name)
	if name == "" {
		errs = append(errs, fmt.Errorf("%s.name: required", path))
	} else {
		path = fmt.Sprintf("jobs[%d](%s)", i, name)
		if prev, dup := seen[name]; dup {
			errs = append(errs, fmt.Errorf("%s.name: duplicate of jobs[%d]", path, prev))
		} else {
			seen[name] = i
		}
	}
	if err := tempus.ValidatePattern(j.Schedule); err != nil {
		errs = append(errs, fmt.Errorf("%s.schedule: %w", path, err))
	}
	if _, err := tempus.ParseOverlapPolicy(j.Overlap); err != nil {
		errs = append(errs, fmt.Errorf("%s.overlap: %w", path, err))
	}
	if _, err := ParseDurationField(path+".timeout", j.Timeout); err != nil {
		errs = append(errs, err)
	}

	hasCmd := len(j.Command) > 0
	hasLog := strings.TrimSpace(j.Log) != ""
	hasUnit := j.Unit != nil
	actions := 0
	for _, ok := range []bool{hasCmd, hasLog, hasUnit} {
		if ok {
			actions++
		}
	}
	switch {
	case actions > 1:
		errs = append(errs, fmt.Errorf("%s: command, log and unit are mutually exclusive", path))
	case actions == 0:
		errs = append(errs, fmt.Errorf("%s: one of command, log or unit is required", path))
	case hasCmd && strings.TrimSpace(j.Command[0]) == "":
		errs = append(errs, fmt.Errorf("%s.command: program is empty", path))
	case hasUnit:
		if strings.TrimSpace(j.Unit.Name) == "" {
			errs = append(errs, fmt.Errorf("%s.unit.name: required", path))
		}
		if _, err := unitctl.ParseAction(j.Unit.Action); err != nil {
			errs = append(errs, fmt.Errorf("%s.unit.action: %w", path, err))
		}
	}
	if !hasCmd && (len(j.Env) > 0 || j.Dir != "") {
		errs = append(errs, fmt.Errorf("%s: env and dir only apply to command jobs", path))
	}
	return errs
}
