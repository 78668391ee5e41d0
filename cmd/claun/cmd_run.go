package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"reflect"
	"strings"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v3"

	"github.com/tgifai/claun/internal/config"
	"github.com/tgifai/claun/internal/control"
	"github.com/tgifai/claun/internal/executor"
	"github.com/tgifai/claun/internal/logstore"
	"github.com/tgifai/claun/internal/pkg/eventbus"
	"github.com/tgifai/claun/internal/pkg/logs"
	"github.com/tgifai/claun/internal/pkg/utils"
	"github.com/tgifai/claun/internal/runner"
)

const terminateWait = 5 * time.Second

var runHwd = &RunRunner{}

type RunRunner struct{}

func (r *RunRunner) cmd() *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{Name: "command", Aliases: []string{"m"}, Usage: "command text sent to claude on every run"},
		&cli.StringFlag{Name: "session", Usage: "session name; the first run renames, later runs resume"},
		&cli.BoolFlag{Name: "paused", Usage: "start paused"},
		&cli.StringFlag{Name: "binary", Usage: "claude executable"},
		&cli.StringFlag{Name: "workdir", Usage: "working directory of the claude process"},
		&cli.BoolFlag{Name: "control", Usage: "serve the local control API"},
		&cli.BoolFlag{Name: "no-keys", Usage: "ignore keyboard commands on stdin"},
	}
	flags = append(flags, scheduleFlags()...)
	flags = append(flags, logDirFlags()...)

	return &cli.Command{
		Name:   "run",
		Usage:  "Run the scheduler in the foreground",
		Flags:  flags,
		Action: r.run,
	}
}

func (r *RunRunner) run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	r.applyFlags(cmd, cfg)
	if err = cfg.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	if err = initLogger(cfg.Logging); err != nil {
		return fmt.Errorf("init logger error: %w", err)
	}
	if cfg.Run.Command == "" {
		return errors.New(`no command configured: set run.command in the config or pass --command`)
	}

	spec, err := cfg.Schedule.Spec()
	if err != nil {
		return err
	}
	store, err := logstore.New(cfg.Run.LogDir, cfg.Run.LogPrefix)
	if err != nil {
		return fmt.Errorf("open log dir: %w", err)
	}
	exec := executor.New(executor.Options{
		Binary: cfg.Run.Binary,
		Args:   cfg.Run.Args,
		Dir:    cfg.Run.Workdir,
	})
	if !exec.Available() {
		logs.CtxWarn(ctx, "%q was not found in PATH; runs will fail until it is installed", exec.Binary())
	}

	rn, err := runner.New(runner.Options{
		Spec:        spec,
		Paused:      cfg.Run.Paused,
		Store:       store,
		SessionName: cfg.Run.SessionName,
		Command:     cfg.Run.Command,
		Executor:    exec,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events, unsubscribe := rn.Subscribe(256)
	defer unsubscribe()
	go printEvents(events)

	if err = rn.Start(ctx); err != nil {
		return fmt.Errorf("start runner: %w", err)
	}

	var srv *control.Server
	if cfg.Control.Enabled {
		srv = control.NewServer(rn, control.Options{Bind: cfg.Control.Bind, MetricsBind: cfg.Control.MetricsBind})
		srv.Start()
		logs.CtxInfo(ctx, "[control] listening on %s, metrics on %s", cfg.Control.Bind, cfg.Control.MetricsBind)
	}

	if _, statErr := os.Stat(config.DefaultManager().Path()); statErr == nil {
		go func() {
			_ = config.DefaultManager().Watch(ctx, func(prev, next *config.Config) {
				r.applyReload(rn, prev, next)
			})
		}()
	}

	quit := make(chan struct{}, 1)
	if !cmd.Bool("no-keys") && isatty.IsTerminal(os.Stdin.Fd()) {
		go r.readKeys(ctx, rn, quit)
		cDim.Println("keys: [p]ause [r]esume [n]ow [s]tatus [q]uit, then Enter")
	}

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logs.CtxWarn(ctx, "sd_notify ready failed: %v", err)
	} else if sent {
		logs.CtxDebug(ctx, "notified systemd")
	}

	logs.CtxInfo(ctx, "claun running: %s, log dir %s. Press Ctrl+C to stop.", spec, store.Dir())

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signalCh)

	select {
	case sig := <-signalCh:
		logs.CtxInfo(ctx, "Received shutdown signal (%s). Stopping...", sig.String())
	case <-quit:
		logs.CtxInfo(ctx, "Quit requested. Stopping...")
	case <-ctx.Done():
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	if srv != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 3*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logs.CtxWarn(ctx, "[control] shutdown error: %v", err)
		}
		done()
	}

	r.stop(rn, cfg.Run.StopGrace(), signalCh)
	cancel()

	logs.CtxInfo(ctx, "all stopped, good bye!")
	logs.Flush()
	return nil
}

// applyFlags overrides the run section with the flags given on this call.
func (r *RunRunner) applyFlags(cmd *cli.Command, cfg *config.Config) {
	if cmd.IsSet("command") {
		cfg.Run.Command = cmd.String("command")
	}
	if cmd.IsSet("session") {
		cfg.Run.SessionName = cmd.String("session")
	}
	if cmd.IsSet("paused") {
		cfg.Run.Paused = cmd.Bool("paused")
	}
	if cmd.IsSet("binary") {
		cfg.Run.Binary = cmd.String("binary")
	}
	if cmd.IsSet("workdir") {
		cfg.Run.Workdir = cmd.String("workdir")
	}
	if cmd.IsSet("control") {
		cfg.Control.Enabled = cmd.Bool("control")
	}
}

// stop waits up to grace for a run in flight, then kills it. A second
// signal skips the wait.
func (r *RunRunner) stop(rn *runner.Runner, grace time.Duration, signalCh <-chan os.Signal) {
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	if rn.IsBusy() {
		logs.Info("waiting up to %s for the running command; press Ctrl+C again to kill it", grace)
		go func() {
			select {
			case <-signalCh:
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	if err := rn.Stop(ctx); err == nil {
		return
	}
	if rn.Terminate() {
		logs.Warn("killed the running command")
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), terminateWait)
	defer waitCancel()
	if err := rn.Stop(waitCtx); err != nil {
		logs.Error("command did not exit after kill: %v", err)
	}
}

// applyReload pushes hot-reloadable changes into the runner.
func (r *RunRunner) applyReload(rn *runner.Runner, prev, next *config.Config) {
	if !reflect.DeepEqual(prev.Schedule, next.Schedule) {
		spec, err := next.Schedule.Spec()
		if err != nil {
			logs.Warn("[config] schedule rejected: %v", err)
		} else if err := rn.SetSpec(spec); err != nil {
			logs.Warn("[config] schedule rejected: %v", err)
		}
	}
	if prev.Run.SessionName != next.Run.SessionName {
		rn.SetSessionName(next.Run.SessionName)
	}
	if prev.Run.Command != next.Run.Command {
		if err := rn.SetCommand(next.Run.Command); err != nil {
			logs.Warn("[config] command rejected: %v", err)
		}
	}
	if prev.Run.Paused != next.Run.Paused {
		if next.Run.Paused {
			rn.Pause()
		} else {
			rn.Resume()
		}
	}

	restart := prev.Run
	restart.SessionName, restart.Command, restart.Paused = next.Run.SessionName, next.Run.Command, next.Run.Paused
	if !reflect.DeepEqual(restart, next.Run) || prev.Control != next.Control || prev.Logging != next.Logging {
		logs.Warn("[config] some changes only take effect after a restart")
	}
}

func (r *RunRunner) readKeys(ctx context.Context, rn *runner.Runner, quit chan<- struct{}) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
		case "p":
			if !rn.Pause() {
				cDim.Println("already paused")
			}
		case "r":
			if !rn.Resume() {
				cDim.Println("not paused")
			}
		case "n":
			if err := rn.RunNow(ctx); err != nil {
				cWarn.Printf("run now: %v\n", err)
			}
		case "s":
			printStatus(rn.Status())
		case "q":
			quit <- struct{}{}
			return
		case "":
		default:
			cDim.Println("keys: [p]ause [r]esume [n]ow [s]tatus [q]uit")
		}
	}
}

func printEvents(events <-chan eventbus.Event) {
	for ev := range events {
		switch data := ev.Data.(type) {
		case runner.OutputEvent:
			if data.Line.Stream == executor.Stderr {
				cWarn.Println(data.Line.String())
			} else {
				fmt.Println(data.Line.Text)
			}
		case runner.RunEvent:
			if ev.Type == runner.EventRunStarted {
				cTitle.Printf("▶ run started %s (%s, directive %s)\n",
					data.StartedAt.Format(time.DateTime), data.Trigger, formatDirective(data.Directive))
				continue
			}
			c := cSuccess
			if data.Err != "" {
				c = cError
			}
			c.Printf("■ run finished, exit code %d after %s\n",
				data.ExitCode, data.EndedAt.Sub(data.StartedAt).Round(time.Second))
		case runner.SkipEvent:
			cWarn.Printf("… %s at %s\n", ev.Type, data.At.Format(time.DateTime))
		case runner.SpecEvent:
			cTitle.Printf("schedule: %s, next run %s\n", data.Spec, data.NextRun.Format(time.DateTime))
		case runner.LogErrorEvent:
			cError.Printf("log write failed: %v\n", data.Err)
		default:
			if ev.Type == runner.EventPaused || ev.Type == runner.EventResumed {
				cTitle.Printf("%s\n", ev.Type)
			}
		}
	}
}

func printStatus(st runner.Status) {
	state := "running"
	switch {
	case st.Busy:
		state = "executing"
	case st.Paused:
		state = "paused"
	}
	cTitle.Printf("state:     %s\n", state)
	fmt.Printf("schedule:  %s\n", st.Spec)
	if !st.NextRun.IsZero() {
		fmt.Printf("next run:  %s (in %s)\n", st.NextRun.Format(time.DateTime), st.Countdown.Round(time.Second))
	}
	if st.SessionName != "" {
		fmt.Printf("session:   %s (established=%v)\n", st.SessionName, st.SessionEstablished)
	}
	if !st.LastStartedAt.IsZero() {
		fmt.Printf("last run:  %s, exit code %d\n", st.LastStartedAt.Format(time.DateTime), st.LastExitCode)
	}
	if st.LastErr != "" {
		cError.Printf("last error: %s\n", utils.Truncate(st.LastErr, 200))
	}
	fmt.Printf("runs:      %d\n", st.Runs)
}
