package runner

import (
	"fmt"
	"strings"
	"time"

	"github.com/tgifai/claun/internal/pkg/logs"
	"github.com/tgifai/claun/internal/pkg/prometheus"
	"github.com/tgifai/claun/internal/schedule"
)

// NextRun returns the current target instant.
func (r *Runner) NextRun() time.Time {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nextRunLocked(now)
}

func (r *Runner) nextRunLocked(now time.Time) time.Time {
	anchor := r.state.Anchor
	if clockMovedBack(now, anchor) {
		anchor = now
	}
	return schedule.NextRun(r.spec, anchor)
}

// Countdown returns the time left until the next target, never negative.
func (r *Runner) Countdown() time.Duration {
	now := r.now()
	r.mu.Lock()
	next := r.nextRunLocked(now)
	r.mu.Unlock()

	if next.IsZero() || !next.After(now) {
		return 0
	}
	return next.Sub(now)
}

func (r *Runner) IsPaused() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Paused
}

func (r *Runner) IsBusy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Busy
}

// Pause stops scheduled runs from starting. Due slots seen while paused are
// recorded as paused skips. It reports whether the state changed.
func (r *Runner) Pause() bool {
	r.mu.Lock()
	if r.state.Paused {
		r.mu.Unlock()
		return false
	}
	r.state.Paused = true
	r.mu.Unlock()

	prometheus.SetPaused(true)
	logs.Info("[runner] paused")
	r.publish(EventPaused, nil)
	return true
}

// Resume re-enables scheduled runs. Missed slots are not replayed: the next
// target is computed from now.
func (r *Runner) Resume() bool {
	now := r.now()
	r.mu.Lock()
	if !r.state.Paused {
		r.mu.Unlock()
		return false
	}
	r.state.Paused = false
	r.state.Anchor = now
	next := schedule.NextRun(r.spec, now)
	r.mu.Unlock()

	prometheus.SetPaused(false)
	prometheus.SetNextRun(next)
	logs.Info("[runner] resumed, next run %s", next.Format(time.RFC3339))
	r.publish(EventResumed, nil)
	return true
}

// SetSpec swaps the schedule. A run already in flight is not affected; the
// new spec applies from the next due-check, anchored at now.
func (r *Runner) SetSpec(spec schedule.Spec) error {
	if spec.IsZero() {
		return fmt.Errorf("schedule spec is required")
	}
	now := r.now()
	r.mu.Lock()
	r.spec = spec
	r.state.Anchor = now
	next := schedule.NextRun(spec, now)
	r.mu.Unlock()

	prometheus.SetNextRun(next)
	logs.Info("[runner] schedule changed to %s, next run %s", spec, next.Format(time.RFC3339))
	r.publish(EventSpecChanged, SpecEvent{Spec: spec.String(), NextRun: next})
	return nil
}

func (r *Runner) Spec() schedule.Spec {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.spec
}

// SetSessionName switches the tracked session. A name already used, in this
// process or in the run records, resumes; an unseen name starts Fresh. An
// empty name disables directives.
func (r *Runner) SetSessionName(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if strings.TrimSpace(name) == r.tracker.Name() {
		return
	}
	if err := r.tracker.Restore(r.store, name); err != nil {
		logs.Warn("[runner] %v, starting fresh", err)
	}
	logs.Info("[runner] session name set to %q, next directive %q",
		r.tracker.Name(), r.tracker.Peek().String())
}

// SetCommand replaces the command text used by later runs.
func (r *Runner) SetCommand(command string) error {
	if strings.TrimSpace(command) == "" {
		return fmt.Errorf("command text cannot be empty")
	}
	r.mu.Lock()
	r.command = command
	r.mu.Unlock()
	return nil
}

func (r *Runner) Status() Status {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.nextRunLocked(now)
	var countdown time.Duration
	if next.After(now) {
		countdown = next.Sub(now)
	}
	return Status{
		Paused:             r.state.Paused,
		Busy:               r.state.Busy,
		Spec:               r.spec.String(),
		NextRun:            next,
		Countdown:          countdown,
		SessionName:        r.tracker.Name(),
		SessionEstablished: r.tracker.Established(),
		LastStartedAt:      r.state.LastStartedAt,
		LastEndedAt:        r.state.LastEndedAt,
		LastExitCode:       r.state.LastExitCode,
		LastErr:            r.state.LastErr,
		Runs:               r.state.Runs,
	}
}
