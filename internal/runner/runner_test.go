package runner

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tgifai/claun/internal/executor"
	"github.com/tgifai/claun/internal/logstore"
	"github.com/tgifai/claun/internal/pkg/eventbus"
	"github.com/tgifai/claun/internal/schedule"
)

// 2026-10-16 is a Friday.
func at(day, hour, min int) time.Time {
	return time.Date(2026, 10, day, hour, min, 0, 0, time.Local)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type fakeExecutor struct {
	mu      sync.Mutex
	reqs    []executor.Request
	block   chan struct{}
	started chan struct{}
	lines   []string
	exit    int
	err     error
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{started: make(chan struct{}, 16), lines: []string{"hello from claude"}}
}

func (f *fakeExecutor) Execute(_ context.Context, req executor.Request) (*executor.Result, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	block := f.block
	f.mu.Unlock()

	f.started <- struct{}{}
	res := &executor.Result{StartedAt: time.Now(), ExitCode: f.exit}
	for _, l := range f.lines {
		req.OnLine(executor.Line{Text: l})
		res.OutputLines = append(res.OutputLines, l)
	}
	if block != nil {
		<-block
	}
	res.EndedAt = time.Now()
	return res, f.err
}

func (f *fakeExecutor) calls() []executor.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]executor.Request(nil), f.reqs...)
}

func (f *fakeExecutor) waitStarted(t *testing.T) {
	t.Helper()
	select {
	case <-f.started:
	case <-time.After(5 * time.Second):
		t.Fatal("executor was not invoked")
	}
}

type harness struct {
	r     *Runner
	clock *fakeClock
	exec  *fakeExecutor
	store *logstore.Store
}

func newHarness(t *testing.T, dir string, mutate func(*Options)) *harness {
	t.Helper()
	spec, err := schedule.Parse("weekdays", "9-17", 15)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	store, err := logstore.New(dir, "")
	if err != nil {
		t.Fatalf("logstore.New: %v", err)
	}
	h := &harness{clock: &fakeClock{t: at(16, 8, 59)}, exec: newFakeExecutor(), store: store}
	opts := Options{
		Spec:     spec,
		Store:    store,
		Command:  "summarize yesterday's commits",
		Executor: h.exec,
		Now:      h.clock.Now,
	}
	if mutate != nil {
		mutate(&opts)
	}
	h.r, err = New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return h
}

func (h *harness) tickAt(t time.Time) {
	h.clock.Set(t)
	h.r.Tick(context.Background())
}

func drain(ch <-chan eventbus.Event) map[eventbus.Type]int {
	counts := map[eventbus.Type]int{}
	for {
		select {
		case e := <-ch:
			counts[e.Type]++
		default:
			return counts
		}
	}
}

func TestNew_Validation(t *testing.T) {
	spec, _ := schedule.Parse("daily", "", 60)
	store, _ := logstore.New(t.TempDir(), "")
	exec := newFakeExecutor()

	tests := []struct {
		name string
		opts Options
	}{
		{"zero spec", Options{Store: store, Executor: exec, Command: "x"}},
		{"no store", Options{Spec: spec, Executor: exec, Command: "x"}},
		{"no executor", Options{Spec: spec, Store: store, Command: "x"}},
		{"blank command", Options{Spec: spec, Store: store, Executor: exec, Command: "  "}},
	}
	for _, tt := range tests {
		if _, err := New(tt.opts); err == nil {
			t.Errorf("%s: New() error = nil, want error", tt.name)
		}
	}
}

func TestTick_RunsOncePerSlot(t *testing.T) {
	h := newHarness(t, t.TempDir(), func(o *Options) { o.SessionName = "proj" })

	h.tickAt(at(16, 8, 59))
	if n := len(h.exec.calls()); n != 0 {
		t.Fatalf("calls before 09:00 = %d, want 0", n)
	}

	h.tickAt(at(16, 9, 0))
	h.exec.waitStarted(t)
	h.r.Wait()

	h.tickAt(at(16, 9, 0))
	h.tickAt(at(16, 9, 0).Add(30 * time.Second))
	h.r.Wait()

	calls := h.exec.calls()
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	if calls[0].Directive != "/rename proj" || calls[0].Command != "summarize yesterday's commits" {
		t.Fatalf("request = %+v", calls[0])
	}
	if got, want := h.r.NextRun(), at(16, 9, 15); !got.Equal(want) {
		t.Fatalf("NextRun() = %v, want %v", got, want)
	}

	recs, err := h.store.List(0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recs) != 1 || recs[0].Kind != logstore.KindRun {
		t.Fatalf("records = %+v, want one run record", recs)
	}
	body, err := os.ReadFile(recs[0].Path)
	if err != nil {
		t.Fatalf("read record: %v", err)
	}
	for _, want := range []string{"session: proj", "directive: /rename proj", "hello from claude", "exit_code: 0"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("record body missing %q:\n%s", want, body)
		}
	}
}

func TestTick_BusyDrop(t *testing.T) {
	h := newHarness(t, t.TempDir(), nil)
	h.exec.block = make(chan struct{})
	events, unsub := h.r.Subscribe(64)
	defer unsub()

	h.tickAt(at(16, 9, 0))
	h.exec.waitStarted(t)
	if !h.r.IsBusy() {
		t.Fatal("IsBusy() = false during a run")
	}

	h.tickAt(at(16, 9, 15))
	h.tickAt(at(16, 9, 16))

	close(h.exec.block)
	h.r.Wait()

	if n := len(h.exec.calls()); n != 1 {
		t.Fatalf("calls = %d, want 1", n)
	}
	counts := drain(events)
	if counts[EventSkipBusy] != 1 {
		t.Fatalf("skip.busy events = %d, want 1", counts[EventSkipBusy])
	}
	if counts[EventRunStarted] != 1 || counts[EventRunFinished] != 1 {
		t.Fatalf("run events = %v", counts)
	}
	if counts[EventOutput] != 1 {
		t.Fatalf("output events = %d, want 1", counts[EventOutput])
	}
	if h.r.IsBusy() {
		t.Fatal("IsBusy() = true after the run finished")
	}
	if got, want := h.r.NextRun(), at(16, 9, 30); !got.Equal(want) {
		t.Fatalf("NextRun() = %v, want %v", got, want)
	}
}

func TestTick_PausedWritesMarker(t *testing.T) {
	h := newHarness(t, t.TempDir(), func(o *Options) { o.Paused = true })
	events, unsub := h.r.Subscribe(64)
	defer unsub()

	h.tickAt(at(16, 9, 0))
	h.tickAt(at(16, 9, 10))
	h.tickAt(at(16, 9, 15))

	if n := len(h.exec.calls()); n != 0 {
		t.Fatalf("calls while paused = %d, want 0", n)
	}
	recs, err := h.store.List(0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("records = %d, want 2 paused markers", len(recs))
	}
	for _, rec := range recs {
		if rec.Kind != logstore.KindPausedSkip {
			t.Fatalf("record kind = %q, want paused-skip", rec.Kind)
		}
	}
	if got := drain(events)[EventSkipPaused]; got != 2 {
		t.Fatalf("skip.paused events = %d, want 2", got)
	}

	// no catch-up: the 09:30 slot is the first run after resuming at 09:20
	h.clock.Set(at(16, 9, 20))
	if !h.r.Resume() {
		t.Fatal("Resume() = false, want true")
	}
	if h.r.Resume() {
		t.Fatal("second Resume() = true, want false")
	}
	h.r.Tick(context.Background())
	if n := len(h.exec.calls()); n != 0 {
		t.Fatalf("calls right after resume = %d, want 0", n)
	}

	h.tickAt(at(16, 9, 30))
	h.exec.waitStarted(t)
	h.r.Wait()

	last, ok, err := h.store.LastRunAt()
	if err != nil || !ok {
		t.Fatalf("LastRunAt() = %v, %v, %v", last, ok, err)
	}
	if !last.Truncate(time.Second).Equal(at(16, 9, 30)) {
		t.Fatalf("LastRunAt() = %v, want 09:30", last)
	}
}

func TestPauseResumeEvents(t *testing.T) {
	h := newHarness(t, t.TempDir(), nil)
	events, unsub := h.r.Subscribe(8)
	defer unsub()

	if !h.r.Pause() || h.r.Pause() {
		t.Fatal("Pause() should change state exactly once")
	}
	if !h.r.IsPaused() {
		t.Fatal("IsPaused() = false after Pause")
	}
	h.r.Resume()

	counts := drain(events)
	if counts[EventPaused] != 1 || counts[EventResumed] != 1 {
		t.Fatalf("events = %v", counts)
	}
}

func TestRunNow(t *testing.T) {
	h := newHarness(t, t.TempDir(), func(o *Options) { o.Paused = true })
	h.exec.block = make(chan struct{})
	h.clock.Set(at(17, 12, 0))

	if err := h.r.RunNow(context.Background()); err != nil {
		t.Fatalf("RunNow while paused: %v", err)
	}
	h.exec.waitStarted(t)

	if err := h.r.RunNow(context.Background()); !errors.Is(err, executor.ErrBusy) {
		t.Fatalf("RunNow while busy = %v, want ErrBusy", err)
	}

	close(h.exec.block)
	h.r.Wait()
	if n := len(h.exec.calls()); n != 1 {
		t.Fatalf("calls = %d, want 1", n)
	}
}

func TestSessionLifecycle_AcrossInstances(t *testing.T) {
	dir := t.TempDir()
	withSession := func(o *Options) { o.SessionName = "proj" }

	first := newHarness(t, dir, withSession)
	first.clock.Set(at(16, 10, 0))
	if err := first.r.RunNow(context.Background()); err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	first.exec.waitStarted(t)
	first.r.Wait()
	first.clock.Set(at(16, 10, 5))
	if err := first.r.RunNow(context.Background()); err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	first.exec.waitStarted(t)
	first.r.Wait()

	calls := first.exec.calls()
	if calls[0].Directive != "/rename proj" || calls[1].Directive != "/resume proj" {
		t.Fatalf("directives = %q, %q", calls[0].Directive, calls[1].Directive)
	}

	second := newHarness(t, dir, withSession)
	if !second.r.Status().SessionEstablished {
		t.Fatal("fresh instance did not restore the established session")
	}
	second.clock.Set(at(16, 11, 0))
	if err := second.r.RunNow(context.Background()); err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	second.exec.waitStarted(t)
	second.r.Wait()
	if got := second.exec.calls()[0].Directive; got != "/resume proj" {
		t.Fatalf("directive after restart = %q, want /resume proj", got)
	}

	second.r.SetSessionName("other")
	second.clock.Set(at(16, 11, 5))
	if err := second.r.RunNow(context.Background()); err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	second.exec.waitStarted(t)
	second.r.Wait()
	if got := second.exec.calls()[1].Directive; got != "/rename other" {
		t.Fatalf("directive after rename = %q, want /rename other", got)
	}

	second.r.SetSessionName("proj")
	if !second.r.Status().SessionEstablished {
		t.Fatal("switching back to proj lost its established state")
	}
	second.clock.Set(at(16, 11, 10))
	if err := second.r.RunNow(context.Background()); err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	second.exec.waitStarted(t)
	second.r.Wait()
	if got := second.exec.calls()[2].Directive; got != "/resume proj" {
		t.Fatalf("directive after switching back = %q, want /resume proj", got)
	}
}

func TestSetSessionName_UsesRunRecords(t *testing.T) {
	dir := t.TempDir()

	first := newHarness(t, dir, func(o *Options) { o.SessionName = "other" })
	first.clock.Set(at(16, 10, 0))
	if err := first.r.RunNow(context.Background()); err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	first.exec.waitStarted(t)
	first.r.Wait()

	second := newHarness(t, dir, func(o *Options) { o.SessionName = "proj" })
	second.r.SetSessionName("other")
	second.clock.Set(at(16, 11, 0))
	if err := second.r.RunNow(context.Background()); err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	second.exec.waitStarted(t)
	second.r.Wait()
	if got := second.exec.calls()[0].Directive; got != "/resume other" {
		t.Fatalf("directive = %q, want /resume other", got)
	}
}

func TestNoSessionName_NoDirective(t *testing.T) {
	h := newHarness(t, t.TempDir(), nil)
	h.tickAt(at(16, 9, 0))
	h.exec.waitStarted(t)
	h.r.Wait()
	if got := h.exec.calls()[0].Directive; got != "" {
		t.Fatalf("Directive = %q, want empty", got)
	}
}

func TestFailedRunKeepsScheduling(t *testing.T) {
	h := newHarness(t, t.TempDir(), nil)
	h.exec.exit = 3
	h.exec.err = &executor.ExecutionError{Op: "exit", ExitCode: 3}

	h.tickAt(at(16, 9, 0))
	h.exec.waitStarted(t)
	h.r.Wait()

	st := h.r.Status()
	if st.LastExitCode != 3 || st.LastErr == "" || st.Runs != 1 {
		t.Fatalf("Status() = %+v, want exit code 3 with an error", st)
	}

	h.tickAt(at(16, 9, 15))
	h.exec.waitStarted(t)
	h.r.Wait()
	if n := len(h.exec.calls()); n != 2 {
		t.Fatalf("calls = %d, want 2", n)
	}
}

func TestLogFailureDoesNotStopRun(t *testing.T) {
	h := newHarness(t, t.TempDir(), nil)
	events, unsub := h.r.Subscribe(16)
	defer unsub()

	if err := os.RemoveAll(h.store.Dir()); err != nil {
		t.Fatalf("RemoveAll: %v", err)
	}
	h.tickAt(at(16, 9, 0))
	h.exec.waitStarted(t)
	h.r.Wait()

	counts := drain(events)
	if counts[EventLogError] != 1 {
		t.Fatalf("log.error events = %d, want 1", counts[EventLogError])
	}
	if counts[EventRunFinished] != 1 {
		t.Fatalf("run.finished events = %d, want 1", counts[EventRunFinished])
	}
}

func TestClockBackwardReanchors(t *testing.T) {
	h := newHarness(t, t.TempDir(), nil)
	h.tickAt(at(16, 9, 0))
	h.exec.waitStarted(t)
	h.r.Wait()

	h.tickAt(at(16, 8, 30))
	if got, want := h.r.NextRun(), at(16, 9, 0); !got.Equal(want) {
		t.Fatalf("NextRun() after clock jump = %v, want %v", got, want)
	}
	if got := h.r.Countdown(); got != 30*time.Minute {
		t.Fatalf("Countdown() = %v, want 30m", got)
	}
}

func TestSetSpec(t *testing.T) {
	h := newHarness(t, t.TempDir(), nil)
	hourly, err := schedule.Parse("weekdays", "9-17", 60)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	h.clock.Set(at(16, 9, 5))
	if err := h.r.SetSpec(hourly); err != nil {
		t.Fatalf("SetSpec: %v", err)
	}
	if got, want := h.r.NextRun(), at(16, 10, 0); !got.Equal(want) {
		t.Fatalf("NextRun() = %v, want %v", got, want)
	}
	if err := h.r.SetSpec(schedule.Spec{}); err == nil {
		t.Fatal("SetSpec(zero) error = nil, want error")
	}

	// Friday 16:30 on an hourly spec lands on Monday 09:00
	h.clock.Set(at(16, 16, 30))
	if err := h.r.SetSpec(hourly); err != nil {
		t.Fatalf("SetSpec: %v", err)
	}
	if got, want := h.r.Status().NextRun, at(19, 9, 0); !got.Equal(want) {
		t.Fatalf("Status().NextRun = %v, want %v", got, want)
	}
}

func TestStartStop(t *testing.T) {
	h := newHarness(t, t.TempDir(), func(o *Options) { o.TickInterval = 5 * time.Millisecond })

	ctx := context.Background()
	if err := h.r.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := h.r.Start(ctx); !errors.Is(err, ErrStarted) {
		t.Fatalf("second Start = %v, want ErrStarted", err)
	}

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := h.r.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := h.r.RunNow(ctx); !errors.Is(err, ErrStopped) {
		t.Fatalf("RunNow after Stop = %v, want ErrStopped", err)
	}
}

func TestStopWaitsForRun(t *testing.T) {
	h := newHarness(t, t.TempDir(), nil)
	h.exec.block = make(chan struct{})
	h.clock.Set(at(16, 12, 0))
	if err := h.r.RunNow(context.Background()); err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	h.exec.waitStarted(t)

	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := h.r.Stop(short); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Stop with run in flight = %v, want deadline exceeded", err)
	}

	close(h.exec.block)
	if err := h.r.Stop(context.Background()); err != nil {
		t.Fatalf("Stop after run finished: %v", err)
	}
}

func TestRunTimesUseRunnerClock(t *testing.T) {
	h := newHarness(t, t.TempDir(), nil)
	h.exec.block = make(chan struct{})
	events, unsub := h.r.Subscribe(64)
	defer unsub()

	h.tickAt(at(16, 9, 0))
	h.exec.waitStarted(t)
	h.clock.Set(at(16, 9, 7))
	close(h.exec.block)
	h.r.Wait()

	st := h.r.Status()
	if !st.LastStartedAt.Equal(at(16, 9, 0)) || !st.LastEndedAt.Equal(at(16, 9, 7)) {
		t.Fatalf("last run = %v .. %v, want %v .. %v", st.LastStartedAt, st.LastEndedAt, at(16, 9, 0), at(16, 9, 7))
	}

	var finished RunEvent
	for e := range drainEvents(events) {
		if e.Type == EventRunFinished {
			finished = e.Data.(RunEvent)
		}
	}
	if got := finished.EndedAt.Sub(finished.StartedAt); got != 7*time.Minute {
		t.Fatalf("run.finished duration = %v, want 7m", got)
	}

	recs, err := h.store.List(1)
	if err != nil || len(recs) != 1 {
		t.Fatalf("List() = %v, %v", recs, err)
	}
	body, err := os.ReadFile(recs[0].Path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(body), "duration: 7m0s\n") {
		t.Fatalf("record footer missing duration 7m0s:\n%s", body)
	}
}

func drainEvents(ch <-chan eventbus.Event) <-chan eventbus.Event {
	out := make(chan eventbus.Event, cap(ch))
	for {
		select {
		case e := <-ch:
			out <- e
		default:
			close(out)
			return out
		}
	}
}
