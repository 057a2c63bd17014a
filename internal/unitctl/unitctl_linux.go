//go:build linux

package unitctl

import (
	"context"
	"fmt"
	"sync"

	"github.com/coreos/go-systemd/v22/dbus"
)

// Manager talks to systemd over the system D-Bus.
type Manager struct {
	mu   sync.RWMutex
	conn *dbus.Conn
}

// New connects to systemd. ctx bounds the lifetime of the connection, not
// just the dial: the connection closes when ctx is done.
func New(ctx context.Context) (*Manager, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	conn, err := dbus.NewSystemConnectionContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to systemd: %w", err)
	}
	return &Manager{conn: conn}, nil
}

func (m *Manager) Run(ctx context.Context, unit string, action Action) error {
	m.mu.RLock()
	conn := m.conn
	m.mu.RUnlock()
	if conn == nil || !conn.Connected() {
		return ErrClosed
	}
	name := UnitName(unit)

	var op func(context.Context, string, string, chan<- string) (int, error)
	switch action {
	case ActionStart:
		op = conn.StartUnitContext
	case ActionStop:
		op = conn.StopUnitContext
	case ActionRestart:
		op = conn.RestartUnitContext
	case ActionTryRestart:
		op = conn.TryRestartUnitContext
	case ActionReload:
		op = conn.ReloadUnitContext
	case ActionReloadOrRestart:
		op = conn.ReloadOrRestartUnitContext
	default:
		return fmt.Errorf("unitctl: unsupported action %q", action)
	}

	done := make(chan string, 1)
	if _, err := op(ctx, name, "replace", done); err != nil {
		return formatOperationError(action, name, err)
	}
	select {
	case res := <-done:
		return jobResult(name, action, res)
	case <-ctx.Done():
		return fmt.Errorf("%s %s: %w", action, name, ctx.Err())
	}
}

// Close closes the systemd connection.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	return nil
}
