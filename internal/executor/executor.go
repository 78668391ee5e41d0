package executor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tgifai/claun/internal/consts"
	"github.com/tgifai/claun/internal/pkg/logs"
)

const (
	stderrPrefix = "[stderr] "
	lineBuffer   = 64
)

var defaultArgs = []string{"--print"}

type Stream int

const (
	Stdout Stream = iota
	Stderr
)

// Line is one line of process output.
type Line struct {
	Text   string
	Stream Stream
	At     time.Time
}

// String renders the line the way it is logged, marking stderr.
func (l Line) String() string {
	if l.Stream == Stderr {
		return stderrPrefix + l.Text
	}
	return l.Text
}

type Request struct {
	Command   string
	Directive string
	// OnLine receives each output line in arrival order, from a single
	// goroutine.
	OnLine func(Line)
}

type Result struct {
	ExitCode    int
	OutputLines []string
	StderrLines int
	StartedAt   time.Time
	EndedAt     time.Time
}

func (r *Result) Duration() time.Duration {
	if r == nil || r.EndedAt.IsZero() {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}

type Options struct {
	Binary string
	Args   []string
	Dir    string
	Env    []string
}

// Executor spawns the external command, one run at a time.
type Executor struct {
	binary string
	args   []string
	dir    string
	env    []string

	busy atomic.Bool

	mu  sync.Mutex
	cmd *exec.Cmd
}

func New(opts Options) *Executor {
	binary := strings.TrimSpace(opts.Binary)
	if binary == "" {
		binary = consts.ClaudeBinary
	}
	args := opts.Args
	if args == nil {
		args = defaultArgs
	}
	return &Executor{
		binary: binary,
		args:   append([]string(nil), args...),
		dir:    opts.Dir,
		env:    opts.Env,
	}
}

func (e *Executor) Binary() string { return e.binary }

// Available reports whether the binary resolves on PATH.
func (e *Executor) Available() bool {
	_, err := exec.LookPath(e.binary)
	return err == nil
}

func (e *Executor) Busy() bool { return e.busy.Load() }

// BuildPrompt prepends the directive line to the command text.
func BuildPrompt(directive, command string) string {
	if directive == "" {
		return command
	}
	return directive + "\n" + command
}

// Execute runs the command to completion and streams its combined output to
// req.OnLine. A non-zero exit or a spawn failure returns *ExecutionError
// together with a populated Result. ctx only carries request-scoped values:
// a started process is never interrupted through it, see Terminate.
func (e *Executor) Execute(ctx context.Context, req Request) (*Result, error) {
	if !e.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer e.busy.Store(false)

	res := &Result{StartedAt: time.Now(), ExitCode: -1}

	args := append(append([]string(nil), e.args...), BuildPrompt(req.Directive, req.Command))
	cmd := exec.Command(e.binary, args...)
	cmd.Dir = e.dir
	if len(e.env) > 0 {
		cmd.Env = e.env
	}
	setCommandProcessGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		res.EndedAt = time.Now()
		return res, &ExecutionError{Op: "spawn", ExitCode: -1, Reason: "prepare stdout pipe", Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		res.EndedAt = time.Now()
		return res, &ExecutionError{Op: "spawn", ExitCode: -1, Reason: "prepare stderr pipe", Err: err}
	}
	if err := cmd.Start(); err != nil {
		res.EndedAt = time.Now()
		return res, e.spawnError(err)
	}
	e.setCmd(cmd)
	defer e.setCmd(nil)

	logs.CtxDebug(ctx, "[executor] started %s pid=%d", e.binary, cmd.Process.Pid)

	lines := make(chan Line, lineBuffer)
	var wg sync.WaitGroup
	wg.Add(2)
	go pump(stdout, Stdout, lines, &wg)
	go pump(stderr, Stderr, lines, &wg)
	go func() {
		wg.Wait()
		close(lines)
	}()

	for line := range lines {
		res.OutputLines = append(res.OutputLines, line.String())
		if line.Stream == Stderr {
			res.StderrLines++
		}
		if req.OnLine != nil {
			req.OnLine(line)
		}
	}

	waitErr := cmd.Wait()
	res.EndedAt = time.Now()
	if waitErr == nil {
		res.ExitCode = 0
		return res, nil
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, &ExecutionError{Op: "exit", ExitCode: res.ExitCode, Err: waitErr}
	}
	return res, &ExecutionError{Op: "wait", ExitCode: -1, Err: waitErr}
}

// Terminate kills the in-flight process group, if any. It is meant for
// process shutdown after the stop grace period has expired.
func (e *Executor) Terminate() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cmd == nil {
		return false
	}
	killCommandProcessGroup(e.cmd)
	return true
}

func (e *Executor) setCmd(cmd *exec.Cmd) {
	e.mu.Lock()
	e.cmd = cmd
	e.mu.Unlock()
}

func (e *Executor) running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cmd != nil
}

func (e *Executor) spawnError(err error) error {
	reason := fmt.Sprintf("start %s", e.binary)
	switch {
	case errors.Is(err, exec.ErrNotFound):
		reason = fmt.Sprintf("%s not found, ensure it is installed and in PATH", e.binary)
	case errors.Is(err, fs.ErrNotExist):
		reason = fmt.Sprintf("%s does not exist", e.binary)
	case errors.Is(err, fs.ErrPermission):
		reason = fmt.Sprintf("permission denied running %s", e.binary)
	}
	return &ExecutionError{Op: "spawn", ExitCode: -1, Reason: reason, Err: err}
}

// pump forwards r line by line, including a final unterminated line.
func pump(r io.Reader, stream Stream, out chan<- Line, wg *sync.WaitGroup) {
	defer wg.Done()

	br := bufio.NewReader(r)
	for {
		text, err := br.ReadString('\n')
		if text != "" {
			out <- Line{Text: strings.TrimRight(text, "\r\n"), Stream: stream, At: time.Now()}
		}
		if err != nil {
			return
		}
	}
}
