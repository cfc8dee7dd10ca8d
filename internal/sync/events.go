package sync

// EventType tags one progress event in a sync run.
type EventType string

// Event types, in roughly the order a run emits them. Complete, Error and
// Cancelled are terminal: no further events follow any of them.
const (
	EventStatus    EventType = "status"
	EventFound     EventType = "found"
	EventAnalyzing EventType = "analyzing"
	EventSaved     EventType = "saved"
	EventDuplicate EventType = "duplicate"
	EventSkip      EventType = "skip"
	EventComplete  EventType = "complete"
	EventError     EventType = "error"
	EventCancelled EventType = "cancelled"
)

// Event is one progress notification. Events are delivered synchronously and
// in the exact order the corresponding work items were processed.
type Event struct {
	Type    EventType
	Message string
	Current int // 1-based index of the message being processed
	Total   int // candidate count, set once known
	Count   int // saved count, on terminal events
	Skipped int // duplicate count, on terminal events
}

// ProgressFunc receives events during a run. A nil ProgressFunc is valid and
// discards them.
type ProgressFunc func(Event)
