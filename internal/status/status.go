// Package status provides sinks for coordinator workflow events.
package status

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"

	"github.com/abhaldrota/SubManage-FHE/internal/coordinator"
)

// Console prints events as colored one-line status messages.
type Console struct {
	mu sync.Mutex
	w  io.Writer

	pending func(a ...interface{}) string
	success func(a ...interface{}) string
	failure func(a ...interface{}) string
}

// NewConsole creates a console sink writing to w, or stdout if w is nil.
func NewConsole(w io.Writer) *Console {
	if w == nil {
		w = color.Output
	}
	return &Console{
		w:       w,
		pending: color.New(color.FgYellow).SprintFunc(),
		success: color.New(color.FgGreen, color.Bold).SprintFunc(),
		failure: color.New(color.FgRed, color.Bold).SprintFunc(),
	}
}

// Report implements coordinator.Reporter.
func (c *Console) Report(e coordinator.Event) {
	var tag string
	switch e.Status {
	case coordinator.EventPending:
		tag = c.pending("…")
	case coordinator.EventSuccess:
		tag = c.success("✓")
	default:
		tag = c.failure("✗")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if e.RecordID != "" {
		fmt.Fprintf(c.w, "%s %s %s\n", tag, e.Message, color.New(color.Faint).Sprintf("(%s)", e.RecordID))
		return
	}
	fmt.Fprintf(c.w, "%s %s\n", tag, e.Message)
}

// Log forwards events to a logger: pending at debug, success at info, errors at warn.
type Log struct {
	L coordinator.Logger
}

// Report implements coordinator.Reporter.
func (l Log) Report(e coordinator.Event) {
	switch e.Status {
	case coordinator.EventPending:
		l.L.Debug("[%s] %s %s", e.Op, e.Message, e.RecordID)
	case coordinator.EventSuccess:
		l.L.Info("[%s] %s %s", e.Op, e.Message, e.RecordID)
	default:
		l.L.Warn("[%s] %s %s", e.Op, e.Message, e.RecordID)
	}
}

// Recorder keeps the most recent events in memory.
type Recorder struct {
	mu     sync.RWMutex
	limit  int
	events []coordinator.Event
}

// NewRecorder keeps at most limit events. limit <= 0 keeps 100.
func NewRecorder(limit int) *Recorder {
	if limit <= 0 {
		limit = 100
	}
	return &Recorder{limit: limit}
}

// Report implements coordinator.Reporter.
func (r *Recorder) Report(e coordinator.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	if over := len(r.events) - r.limit; over > 0 {
		r.events = append(r.events[:0:0], r.events[over:]...)
	}
}

// Events returns the recorded events, oldest first.
func (r *Recorder) Events() []coordinator.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]coordinator.Event, len(r.events))
	copy(out, r.events)
	return out
}

// Last returns the most recent event.
func (r *Recorder) Last() (coordinator.Event, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.events) == 0 {
		return coordinator.Event{}, false
	}
	return r.events[len(r.events)-1], true
}

// Multi fans events out to several reporters.
type Multi []coordinator.Reporter

// Report implements coordinator.Reporter.
func (m Multi) Report(e coordinator.Event) {
	for _, r := range m {
		if r != nil {
			r.Report(e)
		}
	}
}

// Stderr is a console sink on standard error.
func Stderr() *Console {
	return NewConsole(color.Error)
}
