package runner

import "time"

// State is the mutable run state shared by the tick loop and the control
// surface. It is only read or written with Runner.mu held.
type State struct {
	Paused bool
	Busy   bool

	// Anchor is the instant the next target is computed from. It moves
	// forward after every trigger and is reset on resume and spec edits.
	Anchor time.Time

	LastStartedAt time.Time
	LastEndedAt   time.Time
	LastExitCode  int
	LastErr       string
	Runs          int
}

// Status is a point-in-time snapshot for presentation layers.
type Status struct {
	Paused             bool          `json:"paused"`
	Busy               bool          `json:"busy"`
	Spec               string        `json:"spec"`
	NextRun            time.Time     `json:"next_run"`
	Countdown          time.Duration `json:"countdown_ns"`
	SessionName        string        `json:"session_name,omitempty"`
	SessionEstablished bool          `json:"session_established"`
	LastStartedAt      time.Time     `json:"last_started_at"`
	LastEndedAt        time.Time     `json:"last_ended_at"`
	LastExitCode       int           `json:"last_exit_code"`
	LastErr            string        `json:"last_error,omitempty"`
	Runs               int           `json:"runs"`
}
