package runner

import (
	"time"

	"github.com/tgifai/claun/internal/executor"
	"github.com/tgifai/claun/internal/pkg/eventbus"
)

// Event types published on the live stream.
const (
	EventOutput      eventbus.Type = "output"
	EventRunStarted  eventbus.Type = "run.started"
	EventRunFinished eventbus.Type = "run.finished"
	EventSkipBusy    eventbus.Type = "skip.busy"
	EventSkipPaused  eventbus.Type = "skip.paused"
	EventLogError    eventbus.Type = "log.error"
	EventPaused      eventbus.Type = "paused"
	EventResumed     eventbus.Type = "resumed"
	EventSpecChanged eventbus.Type = "spec.changed"
)

// Trigger says what started a run or a skip.
type Trigger string

const (
	TriggerSchedule Trigger = "schedule"
	TriggerManual   Trigger = "manual"
)

// OutputEvent carries one line of the running process.
type OutputEvent struct {
	Line executor.Line
}

// RunEvent is published when a run starts and again when it finishes.
type RunEvent struct {
	Trigger   Trigger
	Directive string
	LogPath   string
	StartedAt time.Time
	EndedAt   time.Time
	ExitCode  int
	Err       string
}

type SkipEvent struct {
	Trigger Trigger
	At      time.Time
	LogPath string
}

type LogErrorEvent struct {
	Err error
}

type SpecEvent struct {
	Spec    string
	NextRun time.Time
}
