package monitor

import (
	"time"

	"github.com/aleksanaa/eportal-autologin/internal/eportal"
)

// Status is a snapshot of the monitor.
type Status struct {
	Running     bool             `json:"is_monitoring"`
	Interval    time.Duration    `json:"-"`
	IntervalSec float64          `json:"interval_seconds"`
	InFlight    bool             `json:"in_flight"`
	Attempts    int              `json:"attempts"`
	LastOutcome *eportal.Outcome `json:"last_outcome,omitempty"`
	Event       Event            `json:"event"`
}

// Event says why an observer is being told about a Status.
type Event string

const (
	EventStarted   Event = "started"
	EventStopped   Event = "stopped"
	EventAttempted Event = "attempt"
	EventSnapshot  Event = "snapshot"
)

// Result answers Start and Stop.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Observer hears about every start, stop and completed attempt. It may be
// called from more than one goroutine.
type Observer interface {
	StatusChanged(Status)
}

type ObserverFunc func(Status)

func (f ObserverFunc) StatusChanged(s Status) { f(s) }
