package logstore

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

type Kind string

const (
	KindUnknown    Kind = ""
	KindRun        Kind = "run"
	KindPausedSkip Kind = "paused-skip"
)

const (
	kindLinePrefix = "# claun "
	sectionBreak   = "---"
	sessionKey     = "session: "
)

// Record is one history entry. Everything but Kind comes from the file name.
type Record struct {
	Path      string
	Name      string
	Prefix    string
	Timestamp time.Time
	Kind      Kind
}

// RunHeader is written before any output of a run.
type RunHeader struct {
	Session   string
	Directive string
	Command   string
	StartedAt time.Time
}

// RunFooter closes a run record once the process has exited.
type RunFooter struct {
	ExitCode int
	Err      string
	EndedAt  time.Time
	Duration time.Duration
}

// RecordWriter streams one run record. Lines are flushed as they arrive so a
// crash mid-run still leaves the output captured so far. Close is safe to call
// more than once.
type RecordWriter struct {
	rec Record

	mu     sync.Mutex
	f      *os.File
	w      *bufio.Writer
	closed bool
}

func newRecordWriter(f *os.File, rec Record) *RecordWriter {
	return &RecordWriter{rec: rec, f: f, w: bufio.NewWriter(f)}
}

func (w *RecordWriter) Record() Record { return w.rec }

func (w *RecordWriter) WriteHeader(h RunHeader) error {
	var b strings.Builder
	b.WriteString(kindLinePrefix + string(KindRun) + "\n")
	if h.Session != "" {
		b.WriteString(sessionKey + h.Session + "\n")
	}
	if h.Directive != "" {
		b.WriteString("directive: " + h.Directive + "\n")
	}
	b.WriteString("started: " + h.StartedAt.Format(time.RFC3339Nano) + "\n")
	b.WriteString("command: " + h.Command + "\n")
	b.WriteString(sectionBreak + "\n")
	return w.write(b.String())
}

// WriteLine appends one output line and flushes it.
func (w *RecordWriter) WriteLine(line string) error {
	return w.write(strings.TrimRight(line, "\r\n") + "\n")
}

func (w *RecordWriter) WriteFooter(f RunFooter) error {
	var b strings.Builder
	b.WriteString(sectionBreak + "\n")
	fmt.Fprintf(&b, "exit_code: %d\n", f.ExitCode)
	if f.Err != "" {
		b.WriteString("error: " + f.Err + "\n")
	}
	b.WriteString("ended: " + f.EndedAt.Format(time.RFC3339Nano) + "\n")
	fmt.Fprintf(&b, "duration: %s\n", f.Duration.Round(time.Millisecond))
	return w.write(b.String())
}

func (w *RecordWriter) write(s string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return &LogIOError{Op: "write", Path: w.rec.Path, Err: os.ErrClosed}
	}
	if _, err := w.w.WriteString(s); err != nil {
		return &LogIOError{Op: "write", Path: w.rec.Path, Err: err}
	}
	if err := w.w.Flush(); err != nil {
		return &LogIOError{Op: "flush", Path: w.rec.Path, Err: err}
	}
	return nil
}

func (w *RecordWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	flushErr := w.w.Flush()
	closeErr := w.f.Close()
	if flushErr != nil {
		return &LogIOError{Op: "flush", Path: w.rec.Path, Err: flushErr}
	}
	if closeErr != nil {
		return &LogIOError{Op: "close", Path: w.rec.Path, Err: closeErr}
	}
	return nil
}

// readHeader returns the record kind and, for runs, the session name.
func readHeader(path string) (Kind, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return KindUnknown, "", err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)

	kind := KindUnknown
	session := ""
	for i := 0; scanner.Scan(); i++ {
		line := scanner.Text()
		if i == 0 {
			if !strings.HasPrefix(line, kindLinePrefix) {
				return KindUnknown, "", nil
			}
			kind = Kind(strings.TrimSpace(strings.TrimPrefix(line, kindLinePrefix)))
			continue
		}
		if line == sectionBreak || strings.HasPrefix(line, "command: ") {
			break
		}
		if strings.HasPrefix(line, sessionKey) {
			session = strings.TrimSpace(strings.TrimPrefix(line, sessionKey))
		}
	}
	return kind, session, scanner.Err()
}
