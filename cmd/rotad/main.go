package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"taskrota/internal/app"
)

func main() {
	var (
		cfgPath  string
		runOnce  bool
		schedule string
		at       string
		actor    string
	)
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config (yaml or json)")
	flag.BoolVar(&runOnce, "once", false, "run a single batch pass and exit")
	flag.StringVar(&schedule, "schedule", "", "run one schedule by id and exit")
	flag.StringVar(&at, "at", "", "evaluation instant (RFC3339); defaults to now")
	flag.StringVar(&actor, "actor", "cli", "actor recorded for manual runs")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}

	now := time.Now()
	if at != "" {
		t, err := time.Parse(time.RFC3339, at)
		if err != nil {
			fmt.Fprintln(os.Stderr, "fatal: -at:", err)
			os.Exit(1)
		}
		now = t
	}

	// One-shot modes bypass the ticker entirely.
	if schedule != "" {
		defer a.Store().Close()
		out, err := a.Engine().ExecuteScheduledTaskByID(ctx, schedule, now, actor)
		if err != nil {
			fmt.Fprintln(os.Stderr, "fatal:", err)
			os.Exit(1)
		}
		fmt.Printf("%s %s %s", out.ScheduleID, out.Status, out.OccurrenceDate)
		if out.Reason != "" {
			fmt.Printf(" (%s)", out.Reason)
		}
		fmt.Println()
		return
	}
	if runOnce {
		defer a.Store().Close()
		res, err := a.Engine().ExecuteScheduledTasks(ctx, now)
		if err != nil {
			fmt.Fprintln(os.Stderr, "fatal:", err)
			os.Exit(1)
		}
		fmt.Printf("success=%d failed=%d skipped=%d\n", res.Success, res.Failed, res.Skipped)
		if res.Failed > 0 {
			os.Exit(1)
		}
		return
	}

	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		os.Exit(1)
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	select {
	case <-ctx.Done():
	case <-a.Done():
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx); err != nil {
		fmt.Fprintln(os.Stderr, "stop:", err)
		os.Exit(1)
	}
	if err := a.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}
