package config

import (
	"encoding/json"
	"time"
)

// Config is the tempusd configuration file.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Jobs      []JobConfig     `json:"jobs"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SchedulerConfig controls the poll loop and shutdown.
//
// Defaults (when fields are omitted/zero):
//   - poll_interval: "1s"
//   - drain: true
//   - drain_timeout: "30s"
//   - status_cron: "" (status job disabled)
type SchedulerConfig struct {
	PollInterval string `json:"poll_interval,omitempty"`

	// Drain is a pointer so an explicit false can be told apart from "omitted".
	Drain        *bool  `json:"drain,omitempty"`
	DrainTimeout string `json:"drain_timeout,omitempty"`

	// StatusCron schedules the built-in status report (six-field cron).
	StatusCron string `json:"status_cron,omitempty"`
}

// JobConfig is one configured job. Exactly one of Command, Log and Unit is set.
type JobConfig struct {
	Name     string `json:"name"`
	Schedule string `json:"schedule"`
	Overlap  string `json:"overlap,omitempty"`

	// Timeout bounds a single execution. Empty or "0s" means no timeout.
	Timeout string `json:"timeout,omitempty"`

	Command []string          `json:"command,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	Dir     string            `json:"dir,omitempty"`

	// Log emits this message at info level instead of running a command.
	Log string `json:"log,omitempty"`

	// Unit runs a systemd unit operation.
	Unit *UnitAction `json:"unit,omitempty"`
}

// UnitAction names a systemd unit and the operation to run on it.
// Action defaults to "restart".
type UnitAction struct {
	Name   string `json:"name"`
	Action string `json:"action,omitempty"`
}

const (
	DefaultPollInterval = time.Second
	DefaultDrainTimeout = 30 * time.Second
)

// Fingerprint hashes the job definition. Two definitions with the same
// fingerprint schedule identical work.
func (j JobConfig) Fingerprint() uint64 {
	b, err := json.Marshal(j)
	if err != nil {
		return 0
	}
	return hashBytes(b)
}

// PollIntervalOrDefault returns the parsed poll interval or its default.
func (c SchedulerConfig) PollIntervalOrDefault() time.Duration {
	d, err := ParseDurationOrDefault("scheduler.poll_interval", c.PollInterval, DefaultPollInterval)
	if err != nil {
		return DefaultPollInterval
	}
	return d
}

// DrainEnabled reports whether shutdown waits for running jobs.
func (c SchedulerConfig) DrainEnabled() bool {
	return c.Drain == nil || *c.Drain
}

func (c SchedulerConfig) DrainTimeoutOrDefault() time.Duration {
	d, err := ParseDurationOrDefault("scheduler.drain_timeout", c.DrainTimeout, DefaultDrainTimeout)
	if err != nil {
		return DefaultDrainTimeout
	}
	return d
}

// TimeoutOrZero returns the parsed job timeout; zero means none.
func (j JobConfig) TimeoutOrZero() time.Duration {
	d, err := ParseDurationField("jobs."+j.Name+".timeout", j.Timeout)
	if err != nil {
		return 0
	}
	return d
}
