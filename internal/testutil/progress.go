package testutil

import (
	"fmt"
	"sync"

	"bumd-go/internal/bumd"
)

// ProgressEvent is one recorded progress report.
type ProgressEvent struct {
	Action bumd.Action
	Path   string
}

func (e ProgressEvent) String() string {
	return fmt.Sprintf("%s %s", e.Action, e.Path)
}

// RecordingProgress keeps every reported event. Safe for concurrent use.
type RecordingProgress struct {
	mu     sync.Mutex
	events []ProgressEvent
}

func (p *RecordingProgress) Report(action bumd.Action, path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ProgressEvent{Action: action, Path: path})
}

// Events returns a copy of the recorded events.
func (p *RecordingProgress) Events() []ProgressEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ProgressEvent(nil), p.events...)
}

// Count returns how many events with action were reported.
func (p *RecordingProgress) Count(action bumd.Action) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Action == action {
			n++
		}
	}
	return n
}

// Reset drops every recorded event.
func (p *RecordingProgress) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}
