package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tgifai/claun/internal/executor"
	"github.com/tgifai/claun/internal/logstore"
	"github.com/tgifai/claun/internal/pkg/logs"
	"github.com/tgifai/claun/internal/pkg/prometheus"
	"github.com/tgifai/claun/internal/pkg/utils"
	"github.com/tgifai/claun/internal/schedule"
	"github.com/tgifai/claun/internal/session"
)

// clockSkewTolerance is how far now may trail the anchor before it is treated
// as a backward clock jump.
const clockSkewTolerance = time.Second

const commandLogLen = 80

func clockMovedBack(now, anchor time.Time) bool {
	return anchor.Sub(now) > clockSkewTolerance
}

type decision int

const (
	decideNone decision = iota
	decideRun
	decideSkipBusy
	decideSkipPaused
)

// Tick runs one due-check. The loop calls it on every tick; it is exported so
// callers with their own clock can drive the runner directly.
func (r *Runner) Tick(ctx context.Context) {
	now := r.now()

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	if clockMovedBack(now, r.state.Anchor) {
		logs.CtxWarn(ctx, "[runner] clock moved back from %s to %s, re-anchoring",
			r.state.Anchor.Format(time.RFC3339), now.Format(time.RFC3339))
		r.state.Anchor = now
	}

	d := decideNone
	if schedule.IsDue(r.spec, now, r.state.Anchor) {
		d = r.decideLocked(now)
	}
	var job dispatch
	if d == decideRun {
		job = r.beginLocked(now)
	}
	next := schedule.NextRun(r.spec, r.state.Anchor)
	r.mu.Unlock()

	prometheus.SetNextRun(next)
	r.act(ctx, d, TriggerSchedule, now, job)
}

// RunNow triggers a run immediately, bypassing the wait and the pause flag.
// While a run is in flight the request is dropped, recorded as a busy skip,
// and executor.ErrBusy is returned.
func (r *Runner) RunNow(ctx context.Context) error {
	now := r.now()

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return ErrStopped
	}
	d := decideRun
	if r.state.Busy {
		d = decideSkipBusy
		r.state.Anchor = now.Add(time.Nanosecond)
	}
	var job dispatch
	if d == decideRun {
		job = r.beginLocked(now)
	}
	next := schedule.NextRun(r.spec, r.state.Anchor)
	r.mu.Unlock()

	prometheus.SetNextRun(next)
	r.act(ctx, d, TriggerManual, now, job)
	if d == decideSkipBusy {
		return executor.ErrBusy
	}
	return nil
}

// decideLocked picks what a due slot at now turns into and moves the anchor
// past now so the same slot never fires twice.
func (r *Runner) decideLocked(now time.Time) decision {
	r.state.Anchor = now.Add(time.Nanosecond)
	switch {
	case r.state.Busy:
		return decideSkipBusy
	case r.state.Paused:
		return decideSkipPaused
	default:
		return decideRun
	}
}

// dispatch is what a run needs, captured under the lock at dispatch time.
type dispatch struct {
	directive session.Directive
	command   string
}

// beginLocked marks the runner busy and moves the session forward. The
// session transition happens here, at dispatch, not when the run exits.
func (r *Runner) beginLocked(now time.Time) dispatch {
	r.state.Busy = true
	r.state.Anchor = now.Add(time.Nanosecond)
	r.state.LastStartedAt = now
	r.state.LastEndedAt = time.Time{}
	r.runWg.Add(1)
	return dispatch{directive: r.tracker.Dispatch(), command: r.command}
}

func (r *Runner) act(ctx context.Context, d decision, trigger Trigger, now time.Time, job dispatch) {
	switch d {
	case decideRun:
		go r.execute(context.WithoutCancel(ctx), trigger, now, job)
	case decideSkipBusy:
		logs.CtxWarn(ctx, "[runner] %s trigger at %s dropped: a run is still in flight",
			trigger, now.Format(time.RFC3339))
		prometheus.IncSkip(prometheus.SkipBusy)
		r.publish(EventSkipBusy, SkipEvent{Trigger: trigger, At: now})
	case decideSkipPaused:
		ev := SkipEvent{Trigger: trigger, At: now}
		rec, err := r.store.WritePausedSkip(now)
		if err != nil {
			r.reportLogError(ctx, err)
		} else {
			ev.LogPath = rec.Path
		}
		logs.CtxInfo(ctx, "[runner] paused, skipped run due at %s", now.Format(time.RFC3339))
		prometheus.IncSkip(prometheus.SkipPaused)
		r.publish(EventSkipPaused, ev)
	}
}

// execute performs one dispatched run. The busy flag is released on every
// path, including a panic.
func (r *Runner) execute(ctx context.Context, trigger Trigger, startedAt time.Time, job dispatch) {
	ctx = logs.WithNewLogID(ctx)
	ev := RunEvent{Trigger: trigger, Directive: job.directive.String(), StartedAt: startedAt, ExitCode: -1}

	var (
		res     *executor.Result
		execErr error
	)
	defer func() {
		if p := recover(); p != nil {
			logs.CtxError(ctx, "[runner] run panicked: %v", p)
			execErr = fmt.Errorf("run panicked: %v", p)
		}
		r.finish(ctx, ev, res, execErr)
	}()

	w, err := r.store.Create(startedAt)
	if err != nil {
		r.reportLogError(ctx, err)
	} else {
		ev.LogPath = w.Record().Path
		defer func() {
			if cerr := w.Close(); cerr != nil {
				r.reportLogError(ctx, cerr)
			}
		}()
	}

	// first write failure is reported, later lines are not retried
	logFailed := w == nil
	writeLog := func(write func() error) {
		if logFailed {
			return
		}
		if err := write(); err != nil {
			logFailed = true
			r.reportLogError(ctx, err)
		}
	}

	writeLog(func() error {
		return w.WriteHeader(logstore.RunHeader{
			Session:   job.directive.Session,
			Directive: ev.Directive,
			Command:   job.command,
			StartedAt: startedAt,
		})
	})

	logs.CtxInfo(ctx, "[runner] run started (%s) directive=%q command=%q log=%s",
		trigger, ev.Directive, utils.Truncate(job.command, commandLogLen), ev.LogPath)
	r.publish(EventRunStarted, ev)

	res, execErr = r.exec.Execute(ctx, executor.Request{
		Command:   job.command,
		Directive: ev.Directive,
		OnLine: func(line executor.Line) {
			writeLog(func() error { return w.WriteLine(line.String()) })
			r.publish(EventOutput, OutputEvent{Line: line})
		},
	})

	// startedAt came from r.now, so the end must too
	footer := logstore.RunFooter{ExitCode: -1, EndedAt: r.now()}
	if res != nil {
		footer.ExitCode = res.ExitCode
	}
	footer.Duration = footer.EndedAt.Sub(startedAt)
	if execErr != nil {
		footer.Err = execErr.Error()
	}
	writeLog(func() error { return w.WriteFooter(footer) })

	ev.EndedAt = footer.EndedAt
	ev.ExitCode = footer.ExitCode
}

func (r *Runner) finish(ctx context.Context, ev RunEvent, res *executor.Result, execErr error) {
	defer r.runWg.Done()

	if ev.EndedAt.IsZero() {
		ev.EndedAt = r.now()
	}
	if res != nil {
		ev.ExitCode = res.ExitCode
	}
	result := prometheus.ResultOK
	if execErr != nil {
		ev.Err = execErr.Error()
		result = prometheus.ResultFailed
		var ee *executor.ExecutionError
		if errors.As(execErr, &ee) && ee.Op == "spawn" {
			result = prometheus.ResultSpawn
		}
	}

	r.mu.Lock()
	r.state.Busy = false
	r.state.LastEndedAt = ev.EndedAt
	r.state.LastExitCode = ev.ExitCode
	r.state.LastErr = ev.Err
	r.state.Runs++
	r.mu.Unlock()

	duration := ev.EndedAt.Sub(ev.StartedAt)
	prometheus.ObserveRun(result, duration)
	if execErr != nil {
		logs.CtxWarn(ctx, "[runner] run finished with error after %s: %v", duration.Round(time.Millisecond), execErr)
	} else {
		logs.CtxInfo(ctx, "[runner] run finished after %s, exit code %d", duration.Round(time.Millisecond), ev.ExitCode)
	}
	r.publish(EventRunFinished, ev)
}

func (r *Runner) reportLogError(ctx context.Context, err error) {
	logs.CtxError(ctx, "[runner] log write failed: %v", err)
	r.publish(EventLogError, LogErrorEvent{Err: err})
}
