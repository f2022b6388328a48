package repo

import (
	"context"
	"sync"

	"github.com/aagamb/granthsync/internal/data"
)

type InMemorySessionRepo struct {
	mu       sync.RWMutex
	sessions data.SessionRecords
}

func NewInMemorySessionRepo() *InMemorySessionRepo {
	return &InMemorySessionRepo{sessions: make(data.SessionRecords, 0)}
}

func (r *InMemorySessionRepo) Add(ctx context.Context, rec *data.SessionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = append(r.sessions, rec.Clone())
	return nil
}

func (r *InMemorySessionRepo) List(ctx context.Context) (data.SessionRecords, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(data.SessionRecords, 0, len(r.sessions))
	for i := len(r.sessions) - 1; i >= 0; i-- {
		out = append(out, r.sessions[i].Clone())
	}
	return out, nil
}

func (r *InMemorySessionRepo) Latest(ctx context.Context) (*data.SessionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.sessions) == 0 {
		return nil, data.ErrNotFound
	}
	return r.sessions[len(r.sessions)-1].Clone(), nil
}
