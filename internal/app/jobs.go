package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"tempus/internal/config"
	"tempus/internal/unitctl"
	logx "tempus/pkg/logx"
	"tempus/pkg/tempus"
)

const (
	outputTailBytes  = 4 << 10
	commandWaitDelay = 5 * time.Second
)

// buildHandler turns a configured job into a scheduler handler.
func buildHandler(j config.JobConfig, log logx.Logger, units *unitDialer) (tempus.HandlerFunc, tempus.OverlapPolicy, error) {
	policy, err := tempus.ParseOverlapPolicy(j.Overlap)
	if err != nil {
		return nil, 0, fmt.Errorf("job %s: %w", j.Name, err)
	}
	log = log.With(logx.String("job", j.Name))
	timeout := j.TimeoutOrZero()

	var run func(ctx context.Context) error
	switch {
	case len(j.Command) > 0:
		run = func(ctx context.Context) error { return runCommand(ctx, j, log) }
	case j.Unit != nil:
		action, err := unitctl.ParseAction(j.Unit.Action)
		if err != nil {
			return nil, 0, fmt.Errorf("job %s: %w", j.Name, err)
		}
		unit := unitctl.UnitName(j.Unit.Name)
		run = func(ctx context.Context) error { return runUnit(ctx, units, unit, action, log) }
	case strings.TrimSpace(j.Log) != "":
		msg := j.Log
		run = func(context.Context) error {
			log.Info(msg)
			return nil
		}
	default:
		return nil, 0, fmt.Errorf("job %s: no action configured", j.Name)
	}

	h := func(jc *tempus.JobContext) error {
		ctx := jc.Context()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		err := run(ctx)
		if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("timed out after %s: %w", timeout, err)
		}
		return err
	}
	return h, policy, nil
}

func runCommand(ctx context.Context, j config.JobConfig, log logx.Logger) error {
	cmd := exec.CommandContext(ctx, j.Command[0], j.Command[1:]...)
	cmd.Dir = j.Dir
	if len(j.Env) > 0 {
		cmd.Env = append(os.Environ(), envList(j.Env)...)
	}
	out := newTailBuffer(outputTailBytes)
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.WaitDelay = commandWaitDelay

	start := time.Now()
	err := cmd.Run()
	took := time.Since(start)
	if err != nil {
		code := -1
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			code = ee.ExitCode()
		}
		tail := strings.TrimSpace(out.String())
		log.Debug("command failed",
			logx.Int("exit_code", code),
			logx.Duration("took", took),
			logx.String("output", tail),
		)
		if tail != "" {
			return fmt.Errorf("command %s: %w: %s", j.Command[0], err, lastLine(tail))
		}
		return fmt.Errorf("command %s: %w", j.Command[0], err)
	}
	log.Debug("command finished", logx.Int("exit_code", 0), logx.Duration("took", took))
	return nil
}

func runUnit(ctx context.Context, units *unitDialer, unit string, action unitctl.Action, log logx.Logger) error {
	ctl, err := units.get(ctx)
	if err != nil {
		return err
	}
	start := time.Now()
	if err := ctl.Run(ctx, unit, action); err != nil {
		if errors.Is(err, unitctl.ErrClosed) {
			units.drop(ctl)
		}
		return err
	}
	log.Debug("unit operation finished",
		logx.String("unit", unit),
		logx.String("action", string(action)),
		logx.Duration("took", time.Since(start)),
	)
	return nil
}

// envList renders env as KEY=VALUE pairs sorted by key.
func envList(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(p)
	if n >= b.max {
		b.buf = append(b.buf[:0], p[n-b.max:]...)
		return n, nil
	}
	if over := len(b.buf) + n - b.max; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	b.buf = append(b.buf, p...)
	return n, nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

// unitDialer connects to systemd on first use and shares the connection.
// The connection lives until Close, independent of the execution that
// dialed it.
type unitDialer struct {
	dial func(ctx context.Context) (unitctl.Controller, error)

	// base bounds the connection's lifetime.
	base   context.Context
	cancel context.CancelFunc

	mu  sync.Mutex
	ctl unitctl.Controller
}

func newUnitDialer() *unitDialer {
	return newUnitDialerWith(func(ctx context.Context) (unitctl.Controller, error) {
		m, err := unitctl.New(ctx)
		if err != nil {
			return nil, err
		}
		return m, nil
	})
}

func newUnitDialerWith(dial func(ctx context.Context) (unitctl.Controller, error)) *unitDialer {
	base, cancel := context.WithCancel(context.Background())
	return &unitDialer{dial: dial, base: base, cancel: cancel}
}

// get returns the shared controller, dialing it if needed. ctx is only
// checked before dialing; the dial itself uses the dialer's lifetime context.
func (d *unitDialer) get(ctx context.Context) (unitctl.Controller, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctl != nil {
		return d.ctl, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ctl, err := d.dial(d.base)
	if err != nil {
		return nil, err
	}
	d.ctl = ctl
	return ctl, nil
}

// drop forgets ctl so the next unit job dials again.
func (d *unitDialer) drop(ctl unitctl.Controller) {
	d.mu.Lock()
	if d.ctl != ctl {
		d.mu.Unlock()
		return
	}
	d.ctl = nil
	d.mu.Unlock()
	_ = ctl.Close()
}

func (d *unitDialer) Close() error {
	d.mu.Lock()
	ctl := d.ctl
	d.ctl = nil
	d.mu.Unlock()
	d.cancel()
	if ctl == nil {
		return nil
	}
	return ctl.Close()
}
