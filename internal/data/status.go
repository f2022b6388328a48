package data

import (
	"encoding/json"
	"io"
	"time"
)

// ItemState is the per-book status within a sync session. Transitions are
// monotonic: Pending -> Downloading -> {Completed|Failed|Cancelled}.
type ItemState string

const (
	ItemPending     ItemState = "Pending"
	ItemDownloading ItemState = "Downloading"
	ItemCompleted   ItemState = "Completed"
	ItemFailed      ItemState = "Failed"
	ItemCancelled   ItemState = "Cancelled"
)

// ItemStatus carries the state of one book during a session. Progress is
// advisory (0..1); completion is signalled by State, not by Progress
// reaching 1.0.
type ItemStatus struct {
	State    ItemState `json:"state"`
	Progress float64   `json:"progress"`
	Error    string    `json:"error,omitempty"`
}

// SessionState is the overall state of a bulk download session.
type SessionState string

const (
	SessionIdle        SessionState = "Idle"
	SessionDownloading SessionState = "Downloading"
	SessionCompleted   SessionState = "Completed"
	// SessionPartial means some items completed and some failed. It is still
	// reported to callers as a success carrying the completed count.
	SessionPartial   SessionState = "Partial"
	SessionFailed    SessionState = "Failed"
	SessionCancelled SessionState = "Cancelled"
)

// PackStatus classifies the whole collection against the catalogue. It is a
// derived projection, recomputed on demand, never stored.
type PackStatus string

const (
	PackNotDownloaded PackStatus = "NotDownloaded"
	PackDownloading   PackStatus = "Downloading"
	PackDownloaded    PackStatus = "Downloaded"
	PackFailed        PackStatus = "Failed"
)

// SessionSnapshot is a point-in-time copy of session state, safe to hand to
// observers.
type SessionSnapshot struct {
	ID         string                `json:"id"`
	State      SessionState          `json:"state"`
	Total      int                   `json:"total"`
	Completed  int                   `json:"completed"`
	Failed     int                   `json:"failed"`
	Cancelled  int                   `json:"cancelled"`
	Progress   float64               `json:"progress"`
	Items      map[string]ItemStatus `json:"items,omitempty"`
	StartedAt  time.Time             `json:"startedAt,omitzero"`
	FinishedAt time.Time             `json:"finishedAt,omitzero"`
}

func (s *SessionSnapshot) ToJSON(w io.Writer) error { return json.NewEncoder(w).Encode(s) }

// SessionRecord is the persisted summary of a finished session.
type SessionRecord struct {
	ID         string       `json:"id"`
	Outcome    SessionState `json:"outcome"`
	Total      int          `json:"total"`
	Completed  int          `json:"completed"`
	Failed     int          `json:"failed"`
	Cancelled  int          `json:"cancelled"`
	StartedAt  time.Time    `json:"startedAt"`
	FinishedAt time.Time    `json:"finishedAt"`
}

type SessionRecords []*SessionRecord

func (s SessionRecords) ToJSON(w io.Writer) error { return json.NewEncoder(w).Encode(s) }

func (s *SessionRecord) Clone() *SessionRecord {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
