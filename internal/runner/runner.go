package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tgifai/claun/internal/executor"
	"github.com/tgifai/claun/internal/logstore"
	"github.com/tgifai/claun/internal/pkg/eventbus"
	"github.com/tgifai/claun/internal/pkg/logs"
	"github.com/tgifai/claun/internal/pkg/prometheus"
	"github.com/tgifai/claun/internal/schedule"
	"github.com/tgifai/claun/internal/session"
)

const defaultTickInterval = time.Second

var (
	ErrStopped = errors.New("runner stopped")
	ErrStarted = errors.New("runner already started")
)

// Executor runs one command at a time. *executor.Executor satisfies it.
type Executor interface {
	Execute(ctx context.Context, req executor.Request) (*executor.Result, error)
}

type terminator interface {
	Terminate() bool
}

type Options struct {
	Spec        schedule.Spec
	Paused      bool
	Store       *logstore.Store
	SessionName string
	Command     string
	Executor    Executor

	// Bus receives live events. A private bus is created when nil.
	Bus eventbus.Bus
	// Now defaults to time.Now.
	Now          func() time.Time
	TickInterval time.Duration
}

// Runner drives due-checks on a short tick and dispatches at most one
// execution at a time.
type Runner struct {
	store   *logstore.Store
	exec    Executor
	bus     eventbus.Bus
	tracker *session.Tracker
	now     func() time.Time
	tick    time.Duration

	mu      sync.Mutex
	spec    schedule.Spec
	command string
	state   State
	started bool
	stopped bool

	cancel context.CancelFunc
	loopWg sync.WaitGroup
	runWg  sync.WaitGroup
}

// New validates the construction inputs and restores the session state from
// the log history. A history read failure is logged and the session starts
// Fresh.
func New(opts Options) (*Runner, error) {
	if opts.Spec.IsZero() {
		return nil, fmt.Errorf("schedule spec is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("log store is required")
	}
	if opts.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if strings.TrimSpace(opts.Command) == "" {
		return nil, fmt.Errorf("command text cannot be empty")
	}

	r := &Runner{
		store:   opts.Store,
		exec:    opts.Executor,
		bus:     opts.Bus,
		now:     opts.Now,
		tick:    opts.TickInterval,
		spec:    opts.Spec,
		command: opts.Command,
	}
	if r.bus == nil {
		r.bus = eventbus.New()
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.tick <= 0 {
		r.tick = defaultTickInterval
	}

	tracker, err := session.Restore(opts.Store, opts.SessionName)
	if err != nil {
		logs.Warn("[runner] %v, session starts fresh", err)
	}
	r.tracker = tracker

	r.state.Paused = opts.Paused
	r.state.Anchor = r.now()
	r.state.LastExitCode = -1

	prometheus.SetPaused(r.state.Paused)
	prometheus.SetNextRun(schedule.NextRun(r.spec, r.state.Anchor))
	return r, nil
}

// Start begins the tick loop. It does not block.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return ErrStopped
	}
	if r.started {
		return ErrStarted
	}
	r.started = true

	ctx, r.cancel = context.WithCancel(ctx)
	r.loopWg.Add(1)
	go func() {
		defer r.loopWg.Done()
		r.loop(ctx)
	}()

	logs.CtxInfo(ctx, "[runner] started: %s, next run %s, paused=%v",
		r.spec, schedule.NextRun(r.spec, r.state.Anchor).Format(time.RFC3339), r.state.Paused)
	return nil
}

// Stop halts future ticks and waits for an in-flight run until ctx expires.
// It never interrupts the run itself; a non-nil error means the run is still
// going and the caller may Terminate it.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	r.stopped = true
	cancel := r.cancel
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.loopWg.Wait()

	done := make(chan struct{})
	go func() {
		r.runWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logs.CtxInfo(ctx, "[runner] stopped")
		return nil
	case <-ctx.Done():
		logs.CtxWarn(ctx, "[runner] stop timed out waiting for the running command")
		return ctx.Err()
	}
}

// Terminate kills the in-flight process, if the executor supports it.
func (r *Runner) Terminate() bool {
	if t, ok := r.exec.(terminator); ok {
		return t.Terminate()
	}
	return false
}

// Wait blocks until no run is in flight.
func (r *Runner) Wait() {
	r.runWg.Wait()
}

func (r *Runner) loop(ctx context.Context) {
	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()

	r.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Tick(ctx)
		}
	}
}

func (r *Runner) Subscribe(buffer int) (<-chan eventbus.Event, func()) {
	return r.bus.Subscribe(buffer)
}

func (r *Runner) publish(typ eventbus.Type, data any) {
	r.bus.Publish(eventbus.Event{Type: typ, Time: r.now(), Data: data})
}
