package logstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/tgifai/claun/internal/pkg/logs"
)

const maxNameAttempts = 1000

// Store names, writes and lists run records in one directory. File names are
// the only index; no other component should build or parse them.
type Store struct {
	dir    string
	prefix string
}

// New returns a Store writing into dir with the optional id prefix. The
// directory is created if missing.
func New(dir, prefix string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("log dir cannot be empty")
	}
	if err := ValidatePrefix(prefix); err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve log dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, &LogIOError{Op: "mkdir", Path: abs, Err: err}
	}
	return &Store{dir: abs, prefix: prefix}, nil
}

func (s *Store) Dir() string    { return s.dir }
func (s *Store) Prefix() string { return s.prefix }

// Create opens a new run record stamped with startedAt. Callers must Close
// the writer on every path, typically with defer.
func (s *Store) Create(startedAt time.Time) (*RecordWriter, error) {
	f, rec, err := s.createFile(startedAt)
	if err != nil {
		return nil, err
	}
	rec.Kind = KindRun
	return newRecordWriter(f, rec), nil
}

// WriteRun writes a complete run record in one call.
func (s *Store) WriteRun(h RunHeader, lines []string, footer RunFooter) (rec Record, err error) {
	w, err := s.Create(h.StartedAt)
	if err != nil {
		return Record{}, err
	}
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if err = w.WriteHeader(h); err != nil {
		return w.Record(), err
	}
	for _, line := range lines {
		if err = w.WriteLine(line); err != nil {
			return w.Record(), err
		}
	}
	return w.Record(), w.WriteFooter(footer)
}

// WritePausedSkip records that a due run was skipped because the scheduler
// was paused. The record carries only the fact of the skip.
func (s *Store) WritePausedSkip(at time.Time) (rec Record, err error) {
	f, rec, err := s.createFile(at)
	if err != nil {
		return Record{}, err
	}
	rec.Kind = KindPausedSkip

	w := newRecordWriter(f, rec)
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	err = w.write(kindLinePrefix + string(KindPausedSkip) + "\nskipped: " + at.Format(time.RFC3339Nano) + "\n")
	return rec, err
}

func (s *Store) createFile(at time.Time) (*os.File, Record, error) {
	for i := 0; i < maxNameAttempts; i++ {
		name := FormatName(s.prefix, at.Add(time.Duration(i)*time.Microsecond))
		path := filepath.Join(s.dir, name)

		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err != nil {
			if os.IsExist(err) {
				continue
			}
			return nil, Record{}, &LogIOError{Op: "create", Path: path, Err: err}
		}

		prefix, ts, perr := ParseName(name)
		if perr != nil {
			_ = f.Close()
			_ = os.Remove(path)
			return nil, Record{}, perr
		}
		return f, Record{Path: path, Name: name, Prefix: prefix, Timestamp: ts}, nil
	}
	return nil, Record{}, &LogIOError{Op: "create", Path: s.dir, Err: errors.New("no free record name")}
}

// List returns up to limit records from the store directory, newest first.
func (s *Store) List(limit int) ([]Record, error) {
	return List(s.dir, limit)
}

// LastRunAt returns the start time of the newest run record carrying the
// store's prefix.
func (s *Store) LastRunAt() (time.Time, bool, error) {
	return LastRunAt(s.dir, s.prefix)
}

// HasSession reports whether any run record in the directory was dispatched
// under the given session name.
func (s *Store) HasSession(name string) (bool, error) {
	if name == "" {
		return false, nil
	}
	records, err := scan(s.dir)
	if err != nil {
		return false, err
	}
	for _, rec := range records {
		kind, session, err := readHeader(rec.Path)
		if err != nil {
			logs.Warn("[logstore] read header %s: %v", rec.Name, err)
			continue
		}
		if kind == KindRun && session == name {
			return true, nil
		}
	}
	return false, nil
}

// List returns up to limit records of dir sorted by timestamp, newest first.
// limit <= 0 returns everything. Names outside the grammar are skipped.
func List(dir string, limit int) ([]Record, error) {
	records, err := scan(dir)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	for i := range records {
		kind, _, err := readHeader(records[i].Path)
		if err != nil {
			logs.Debug("[logstore] read header %s: %v", records[i].Name, err)
			continue
		}
		records[i].Kind = kind
	}
	return records, nil
}

// LastRunAt returns the timestamp of the newest run record in dir whose
// prefix equals prefix. Paused-skip records are not runs.
func LastRunAt(dir, prefix string) (time.Time, bool, error) {
	records, err := scan(dir)
	if err != nil {
		return time.Time{}, false, err
	}
	for _, rec := range records {
		if rec.Prefix != prefix {
			continue
		}
		kind, _, err := readHeader(rec.Path)
		if err != nil || kind == KindPausedSkip {
			continue
		}
		return rec.Timestamp, true, nil
	}
	return time.Time{}, false, nil
}

// scan parses every file name in dir and sorts newest first.
func scan(dir string) ([]Record, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &LogIOError{Op: "readdir", Path: dir, Err: err}
	}

	records := make([]Record, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		prefix, ts, err := ParseName(e.Name())
		if err != nil {
			logs.Debug("[logstore] skip %v", err)
			continue
		}
		records = append(records, Record{
			Path:      filepath.Join(dir, e.Name()),
			Name:      e.Name(),
			Prefix:    prefix,
			Timestamp: ts,
		})
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].Timestamp.Equal(records[j].Timestamp) {
			return records[i].Name > records[j].Name
		}
		return records[i].Timestamp.After(records[j].Timestamp)
	})
	return records, nil
}
