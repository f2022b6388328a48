package tracker

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/aagamb/granthsync/internal/data"
	"github.com/aagamb/granthsync/internal/metrics"
	"github.com/aagamb/granthsync/internal/repo"
	"github.com/aagamb/granthsync/internal/syncer"
)

// Sink receives every sync event after the tracker has accounted for it.
// The websocket broadcaster implements this.
type Sink interface {
	Publish(syncer.Event)
}

// Tracker consumes sync events, maintains the Prometheus metrics, persists
// finished-session summaries, and forwards events to an optional sink.
type Tracker struct {
	repo   repo.SessionWriter
	events <-chan syncer.Event
	sink   Sink
	log    *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	stop chan struct{}
	wg   sync.WaitGroup
}

// New creates a Tracker over an event channel. repo and sink may be nil.
func New(log *slog.Logger, sessions repo.SessionWriter, events <-chan syncer.Event, sink Sink) *Tracker {
	if log == nil {
		log = slog.Default()
	}
	return &Tracker{repo: sessions, events: events, sink: sink, log: log, ctx: context.Background()}
}

// Run starts the tracking loop.
func (t *Tracker) Run() {
	t.stop = make(chan struct{})
	t.ctx, t.cancel = context.WithCancel(t.ctx)
	// Tag this run with a stable operation_id for easier correlation.
	opID := uuid.NewString()
	t.log = t.log.With("operation_id", opID)
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		for {
			select {
			case <-t.stop:
				return
			case e, ok := <-t.events:
				if !ok {
					return
				}
				t.handle(e)
			}
		}
	}()
}

// Stop terminates the tracking loop.
func (t *Tracker) Stop() {
	if t.stop != nil {
		close(t.stop)
		if t.cancel != nil {
			t.cancel()
		}
		t.wg.Wait()
	}
}

func (t *Tracker) handle(e syncer.Event) {
	metrics.SyncEvents.WithLabelValues(strings.ToLower(string(e.Type))).Inc()

	switch e.Type {
	case syncer.EventSessionStarted:
		metrics.SyncActive.Set(1)
	case syncer.EventItemCompleted:
		if e.Bytes > 0 {
			metrics.DownloadBytes.Add(float64(e.Bytes))
		}
	case syncer.EventSessionEnded:
		metrics.SyncActive.Set(0)
		if e.Snapshot != nil {
			metrics.SyncSessions.WithLabelValues(string(e.Snapshot.State)).Inc()
			t.record(e.Snapshot)
		}
	}

	if t.sink != nil {
		t.sink.Publish(e)
	}
}

func (t *Tracker) record(snap *data.SessionSnapshot) {
	if t.repo == nil {
		return
	}
	rec := &data.SessionRecord{
		ID:         snap.ID,
		Outcome:    snap.State,
		Total:      snap.Total,
		Completed:  snap.Completed,
		Failed:     snap.Failed,
		Cancelled:  snap.Cancelled,
		StartedAt:  snap.StartedAt,
		FinishedAt: snap.FinishedAt,
	}
	if err := t.repo.Add(t.ctx, rec); err != nil {
		t.log.Error("record session", "session_id", snap.ID, "err", err)
		return
	}
	t.log.Info("recorded session", "session_id", snap.ID, "outcome", snap.State)
}
