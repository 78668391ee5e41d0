package session

import (
	"fmt"
	"strings"
	"sync"
)

type DirectiveKind int

const (
	DirectiveNone DirectiveKind = iota
	DirectiveRename
	DirectiveResume
)

// Directive is the slash command prepended to the command text.
type Directive struct {
	Kind    DirectiveKind
	Session string
}

func (d Directive) String() string {
	switch d.Kind {
	case DirectiveRename:
		return "/rename " + d.Session
	case DirectiveResume:
		return "/resume " + d.Session
	default:
		return ""
	}
}

func (d Directive) IsZero() bool { return d.Kind == DirectiveNone }

// History answers whether a session name has been dispatched before.
// *logstore.Store satisfies it.
type History interface {
	HasSession(name string) (bool, error)
}

// Tracker moves one named session from Fresh to Established. The first
// dispatch renames the session; every later dispatch resumes it.
type Tracker struct {
	mu          sync.Mutex
	name        string
	established bool
	// names dispatched by this process, in case their records never hit disk
	dispatched map[string]bool
}

func NewTracker(name string) *Tracker {
	return &Tracker{name: strings.TrimSpace(name)}
}

// Restore builds a Tracker for name whose state is inferred from history: any
// earlier run under that name means the session is already established.
func Restore(h History, name string) (*Tracker, error) {
	t := NewTracker(name)
	if err := t.Restore(h, name); err != nil {
		return t, err
	}
	return t, nil
}

// Restore switches the tracker to name and reloads its state from history
// and from the names this tracker already dispatched. A name never seen
// starts Fresh, as does one whose history lookup fails.
func (t *Tracker) Restore(h History, name string) error {
	name = strings.TrimSpace(name)

	established := false
	var err error
	if name != "" && h != nil {
		established, err = h.HasSession(name)
		if err != nil {
			established = false
			err = fmt.Errorf("restore session %q: %w", name, err)
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if name == t.name && t.established {
		return nil
	}
	t.name = name
	t.established = established || t.dispatched[name]
	return err
}

// Dispatch returns the directive for the run being dispatched now and marks
// the session established. The transition does not wait for the run's exit
// code.
func (t *Tracker) Dispatch() Directive {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.name == "" {
		return Directive{}
	}
	if t.established {
		return Directive{Kind: DirectiveResume, Session: t.name}
	}
	t.established = true
	if t.dispatched == nil {
		t.dispatched = make(map[string]bool)
	}
	t.dispatched[t.name] = true
	return Directive{Kind: DirectiveRename, Session: t.name}
}

// Peek returns the directive the next Dispatch would emit without changing
// state.
func (t *Tracker) Peek() Directive {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch {
	case t.name == "":
		return Directive{}
	case t.established:
		return Directive{Kind: DirectiveResume, Session: t.name}
	default:
		return Directive{Kind: DirectiveRename, Session: t.name}
	}
}

func (t *Tracker) Name() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.name
}

func (t *Tracker) Established() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.established
}
