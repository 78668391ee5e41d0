package logstore

import "fmt"

// LogIOError reports a failed read or write of a run record. The scheduling
// loop treats it as non-fatal; the record for that cycle may be lost.
type LogIOError struct {
	Op   string
	Path string
	Err  error
}

func (e *LogIOError) Error() string {
	return fmt.Sprintf("logstore: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *LogIOError) Unwrap() error { return e.Err }

// ParseError reports a file name that does not follow the record grammar.
type ParseError struct {
	Name   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("logstore: parse %q: %s", e.Name, e.Reason)
}
