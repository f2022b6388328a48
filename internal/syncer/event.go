package syncer

import "github.com/aagamb/granthsync/internal/data"

// Event represents a state change or progress update from a sync session.
//
// Item events carry the book name; SessionEnded carries a final snapshot.
// Progress events are transient and advisory, terminal item events are what
// observers should act on.
type Event struct {
	SessionID string                `json:"sessionId"`
	Type      EventType             `json:"type"`
	Book      string                `json:"book,omitempty"`
	Progress  float64               `json:"progress,omitempty"`
	Bytes     int64                 `json:"bytes,omitempty"`
	Err       string                `json:"error,omitempty"`
	Snapshot  *data.SessionSnapshot `json:"snapshot,omitempty"`
}

// EventType defines the set of events a session may emit.
type EventType string

const (
	EventSessionStarted EventType = "SessionStarted"
	EventItemStarted    EventType = "ItemStarted"
	EventItemProgress   EventType = "ItemProgress"
	EventItemCompleted  EventType = "ItemCompleted"
	EventItemFailed     EventType = "ItemFailed"
	EventItemCancelled  EventType = "ItemCancelled"
	EventSessionEnded   EventType = "SessionEnded"
)
