// Package unitctl runs systemd unit operations on behalf of scheduled jobs.
package unitctl

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnsupported = errors.New("unitctl: systemd is not available on this platform")
	ErrClosed      = errors.New("unitctl: systemd connection is closed")
	ErrNoSuchUnit  = errors.New("unitctl: no such unit")
)

// Action is a unit operation.
type Action string

const (
	ActionStart           Action = "start"
	ActionStop            Action = "stop"
	ActionRestart         Action = "restart"
	ActionTryRestart      Action = "try-restart"
	ActionReload          Action = "reload"
	ActionReloadOrRestart Action = "reload-or-restart"
)

// ParseAction parses an action name (case-insensitive). Empty means restart.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case "":
		return ActionRestart, nil
	case ActionStart, ActionStop, ActionRestart, ActionTryRestart, ActionReload, ActionReloadOrRestart:
		return a, nil
	default:
		return "", fmt.Errorf("unitctl: unknown action %q (use start, stop, restart, try-restart, reload or reload-or-restart)", s)
	}
}

// UnitName appends ".service" to names without a unit suffix.
func UnitName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		switch name[i+1:] {
		case "service", "socket", "timer", "target", "mount", "path", "slice", "scope", "device", "swap", "automount":
			return name
		}
	}
	return name + ".service"
}

// Controller runs unit operations.
type Controller interface {
	// Run performs action on unit and waits for the queued systemd job to finish.
	Run(ctx context.Context, unit string, action Action) error
	Close() error
}

// jobResult converts the result string systemd reports for a finished job.
func jobResult(unit string, action Action, result string) error {
	switch result {
	case "done":
		return nil
	case "skipped":
		// try-restart and reload on inactive units
		return nil
	default:
		return fmt.Errorf("%s %s: job %s", action, unit, result)
	}
}

func isNoSuchUnitErr(err error) bool {
	if err == nil {
		return false
	}
	es := err.Error()
	// systemd returns org.freedesktop.systemd1.NoSuchUnit for missing units.
	return strings.Contains(es, "NoSuchUnit") || strings.Contains(es, "not-found") || strings.Contains(es, "not found")
}

func isClosedConnErr(err error) bool {
	if err == nil {
		return false
	}
	// godbus reports "dbus: connection closed by user" once the connection is gone.
	return strings.Contains(err.Error(), "connection closed")
}

func formatOperationError(action Action, unit string, err error) error {
	if isClosedConnErr(err) {
		return fmt.Errorf("%s %s: %w: %v", action, unit, ErrClosed, err)
	}
	if isNoSuchUnitErr(err) {
		return fmt.Errorf("%s %s: %w", action, unit, ErrNoSuchUnit)
	}
	return fmt.Errorf("%s %s: %w", action, unit, err)
}
