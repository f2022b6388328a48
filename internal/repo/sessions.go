// Package repo persists summaries of finished sync sessions so the display
// layer can show "last synced" history. This is history, not a manifest:
// presence-on-disk remains the only source of truth for what is downloaded.
package repo

import (
	"context"

	"github.com/aagamb/granthsync/internal/data"
)

type SessionRepo interface {
	SessionReader
	SessionWriter
}

type SessionReader interface {
	// List returns finished sessions, newest first.
	List(ctx context.Context) (data.SessionRecords, error)
	// Latest returns the most recent finished session, or data.ErrNotFound.
	Latest(ctx context.Context) (*data.SessionRecord, error)
}

type SessionWriter interface {
	Add(ctx context.Context, rec *data.SessionRecord) error
}
