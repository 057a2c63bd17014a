package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"tempus/internal/app"
	"tempus/internal/config"
	"tempus/pkg/tempus"
)

func main() {
	var (
		cfgPath string
		check   bool
	)
	flag.StringVar(&cfgPath, "config", "./tempus.yaml", "path to config (yaml, toml or json)")
	flag.BoolVar(&check, "check", false, "validate the config, print the schedule and exit")
	flag.Parse()

	if check {
		if err := checkConfig(cfgPath); err != nil {
			fmt.Println("invalid config:", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(cfgPath)
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
	if err := a.Start(ctx); err != nil {
		fmt.Println("fatal start:", err)
		os.Exit(1)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigs)

	reason := app.StopUnknown
wait:
	for {
		select {
		case s := <-sigs:
			switch s {
			case syscall.SIGHUP:
				_ = a.Reload(ctx)
				continue
			case syscall.SIGTERM:
				reason = app.StopSIGTERM
			default:
				reason = app.StopSIGINT
			}
			break wait
		case <-a.Done():
			reason = app.StopFatalError
			break wait
		}
	}

	// The scheduler bounds its own drain by scheduler.drain_timeout.
	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Minute)
	defer stopCancel()
	err = a.Stop(stopCtx, reason)
	if fatal := a.Err(); fatal != nil && !errors.Is(fatal, context.Canceled) {
		fmt.Println("fatal:", fatal)
		os.Exit(1)
	}
	if err != nil {
		fmt.Println("stop:", err)
		os.Exit(1)
	}
}

// checkConfig prints each job's schedule and its next occurrences.
func checkConfig(path string) error {
	cfg, err := config.NewConfigManager(path).Load(context.Background())
	if err != nil {
		return err
	}
	now := time.Now()
	fmt.Printf("%s: %d job(s)\n", path, len(cfg.Jobs))
	for _, j := range cfg.Jobs {
		overlap, _ := tempus.ParseOverlapPolicy(j.Overlap)
		fmt.Printf("  %s  schedule=%q overlap=%s action=%s\n", j.Name, j.Schedule, overlap, describeAction(j))
		next, err := tempus.NextOccurrences(j.Schedule, now, 3)
		if err != nil {
			return fmt.Errorf("job %s: %w", j.Name, err)
		}
		for _, t := range next {
			fmt.Printf("    next %s\n", t.Local().Format(time.RFC3339))
		}
	}
	if sc := strings.TrimSpace(cfg.Scheduler.StatusCron); sc != "" {
		fmt.Printf("  status report  schedule=%q\n", sc)
	}
	return nil
}

func describeAction(j config.JobConfig) string {
	switch {
	case len(j.Command) > 0:
		return "command " + strings.Join(j.Command, " ")
	case j.Unit != nil:
		action := j.Unit.Action
		if action == "" {
			action = "restart"
		}
		return "unit " + action + " " + j.Unit.Name
	default:
		return "log"
	}
}
