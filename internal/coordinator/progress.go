package coordinator

import "fmt"

// ProgressStatus is the lifecycle of one file in a ParseFiles call.
type ProgressStatus string

const (
	ProgressPending  ProgressStatus = "pending"
	ProgressWorking  ProgressStatus = "working"
	ProgressComplete ProgressStatus = "complete"
	ProgressFailed   ProgressStatus = "failed"
)

// ProgressEvent reports a file changing status.
type ProgressEvent struct {
	Path     string         `json:"path"`
	Status   ProgressStatus `json:"status"`
	Message  string         `json:"message,omitempty"`
	Warnings int            `json:"warnings,omitempty"`
}

// ProgressReporter buffers progress events for a single consumer.
type ProgressReporter struct {
	ch chan ProgressEvent
}

// NewProgressReporter creates a ProgressReporter with a buffered channel of size 64.
func NewProgressReporter() *ProgressReporter {
	return &ProgressReporter{ch: make(chan ProgressEvent, 64)}
}

// Emit sends an event without blocking. Events are dropped while the
// buffer is full.
func (pr *ProgressReporter) Emit(event ProgressEvent) {
	select {
	case pr.ch <- event:
	default:
	}
}

// Subscribe returns the event channel.
func (pr *ProgressReporter) Subscribe() <-chan ProgressEvent {
	return pr.ch
}

// Close closes the event channel.
func (pr *ProgressReporter) Close() {
	close(pr.ch)
}

// FormatProgress formats an event as a status line.
func FormatProgress(event ProgressEvent) string {
	switch event.Status {
	case ProgressPending:
		return fmt.Sprintf("  ○ %s (pending)", event.Path)
	case ProgressWorking:
		return fmt.Sprintf("  ● %s...", event.Path)
	case ProgressComplete:
		if event.Warnings > 0 {
			return fmt.Sprintf("  ✓ %s complete (%d warnings)", event.Path, event.Warnings)
		}
		return fmt.Sprintf("  ✓ %s complete", event.Path)
	case ProgressFailed:
		return fmt.Sprintf("  ✗ %s failed: %s", event.Path, event.Message)
	default:
		return fmt.Sprintf("  ? %s (unknown status)", event.Path)
	}
}
