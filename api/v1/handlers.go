package v1

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/aagamb/granthsync/internal/data"
	"github.com/aagamb/granthsync/internal/repo"
	"github.com/aagamb/granthsync/internal/resolver"
	"github.com/aagamb/granthsync/internal/store"
	"github.com/aagamb/granthsync/internal/syncer"
)

// SyncService is the orchestration surface the handlers consume.
type SyncService interface {
	Start(ctx context.Context) error
	StartResume(ctx context.Context) error
	Cancel()
	Snapshot() data.SessionSnapshot
	ItemStatus(name string) data.ItemStatus
	PackStatus() data.PackStatus
	Eligible() data.Books
}

// Library is the read-only catalogue surface.
type Library interface {
	Sections() data.Sections
	Books() data.Books
	Find(name string) (data.Book, bool)
}

// Resolver serves document content at view time.
type Resolver interface {
	Resolve(ctx context.Context, b data.Book) (*resolver.Result, error)
	State(name string) resolver.State
	Retry(name string) bool
}

// Storage is the maintenance surface over local files.
type Storage interface {
	Exists(b data.Book) bool
	SizeOf(b data.Book) (int64, bool)
	Count() int
	TotalSize() int64
	AverageSize() (int64, bool)
	DeleteAll() (int, error)
	ClearDirectory() error
}

// Subscriber hands out live event feeds for the websocket endpoint.
type Subscriber interface {
	Subscribe() (<-chan syncer.Event, func())
}

// Handler bundles the v1 route handlers.
type Handler struct {
	l        *slog.Logger
	sync     SyncService
	lib      Library
	res      Resolver
	st       Storage
	sessions repo.SessionReader
	events   Subscriber
}

func NewHandler(l *slog.Logger, sync SyncService, lib Library, res Resolver, st Storage, sessions repo.SessionReader, events Subscriber) *Handler {
	return &Handler{l: l, sync: sync, lib: lib, res: res, st: st, sessions: sessions, events: events}
}

type bookView struct {
	Name       string          `json:"name"`
	HindiName  string          `json:"hindiName"`
	Author     string          `json:"author,omitempty"`
	PageOffset int             `json:"pageOffset,omitempty"`
	Downloaded bool            `json:"downloaded"`
	SizeBytes  int64           `json:"sizeBytes,omitempty"`
	Size       string          `json:"size,omitempty"`
	Status     data.ItemStatus `json:"status"`
}

type sectionView struct {
	Name  string     `json:"name"`
	Books []bookView `json:"books"`
}

// GetBooks lists the catalogue with per-book availability.
func (h *Handler) GetBooks(w http.ResponseWriter, r *http.Request) {
	sections := h.lib.Sections()
	out := make([]sectionView, 0, len(sections))
	for _, sec := range sections {
		sv := sectionView{Name: sec.Name, Books: make([]bookView, 0, len(sec.Books))}
		for _, b := range sec.Books {
			bv := bookView{
				Name:       b.Name,
				HindiName:  b.HindiName,
				Author:     b.Author,
				PageOffset: b.PageOffset,
				Downloaded: h.st.Exists(b),
				Status:     h.sync.ItemStatus(b.Name),
			}
			if sz, ok := h.st.SizeOf(b); ok {
				bv.SizeBytes = sz
				bv.Size = store.FormatBytes(sz)
			}
			sv.Books = append(sv.Books, bv)
		}
		out = append(out, sv)
	}
	writeJSON(w, http.StatusOK, out)
}

// GetBook serves the document content through the resolution policy:
// local disk, then bundled assets, then a remote stream.
func (h *Handler) GetBook(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	b, ok := h.lib.Find(name)
	if !ok {
		markErr(w, data.ErrNotFound)
		writeError(w, http.StatusNotFound, "book not found")
		return
	}
	result, err := h.res.Resolve(r.Context(), b)
	if err != nil {
		markErr(w, err)
		status := http.StatusBadGateway
		if errors.Is(err, data.ErrNotConfigured) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, resolver.UserMessage(err))
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("X-Granth-Source", string(result.Source))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(result.Data); err != nil {
		markErr(w, err)
	}
}

// GetBookState reports the per-document view state.
func (h *Handler) GetBookState(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if _, ok := h.lib.Find(name); !ok {
		markErr(w, data.ErrNotFound)
		writeError(w, http.StatusNotFound, "book not found")
		return
	}
	writeJSON(w, http.StatusOK, h.res.State(name))
}

// RetryBook clears a viewer error state back to idle.
func (h *Handler) RetryBook(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if _, ok := h.lib.Find(name); !ok {
		markErr(w, data.ErrNotFound)
		writeError(w, http.StatusNotFound, "book not found")
		return
	}
	reset := h.res.Retry(name)
	writeJSON(w, http.StatusOK, map[string]bool{"reset": reset})
}

// StartSync kicks off a bulk download session. The session runs detached
// from the request context; progress is observable via GetSync and the
// websocket feed.
func (h *Handler) StartSync(w http.ResponseWriter, r *http.Request) {
	err := h.sync.Start(context.Background())
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, h.sync.Snapshot())
	case errors.Is(err, data.ErrSyncInProgress):
		markErr(w, err)
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, data.ErrNotConfigured), errors.Is(err, data.ErrNoBooks):
		markErr(w, err)
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		markErr(w, err)
		writeError(w, http.StatusInternalServerError, "failed to start sync")
	}
}

// ResumeSync retries failed and never-attempted books.
func (h *Handler) ResumeSync(w http.ResponseWriter, r *http.Request) {
	err := h.sync.StartResume(context.Background())
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, h.sync.Snapshot())
	case errors.Is(err, data.ErrSyncInProgress):
		markErr(w, err)
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, data.ErrNotConfigured), errors.Is(err, data.ErrNoBooks):
		markErr(w, err)
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		markErr(w, err)
		writeError(w, http.StatusInternalServerError, "failed to resume sync")
	}
}

// GetSync reports the latest session snapshot plus the pack projection.
func (h *Handler) GetSync(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"pack":    h.sync.PackStatus(),
		"session": h.sync.Snapshot(),
	})
}

// CancelSync requests cooperative cancellation. The final state settles
// asynchronously.
func (h *Handler) CancelSync(w http.ResponseWriter, r *http.Request) {
	h.sync.Cancel()
	writeJSON(w, http.StatusAccepted, h.sync.Snapshot())
}

// GetStorage summarises local storage use.
func (h *Handler) GetStorage(w http.ResponseWriter, r *http.Request) {
	total := h.st.TotalSize()
	out := map[string]any{
		"count":      h.st.Count(),
		"expected":   len(h.sync.Eligible()),
		"totalBytes": total,
		"totalSize":  store.FormatBytes(total),
		"pack":       h.sync.PackStatus(),
	}
	if avg, ok := h.st.AverageSize(); ok {
		out["averageBytes"] = avg
		out["averageSize"] = store.FormatBytes(avg)
	}
	writeJSON(w, http.StatusOK, out)
}

// DeleteStorage removes downloaded files. With ?purge=true it clears the
// whole directory including files the catalogue no longer names.
func (h *Handler) DeleteStorage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("purge") == "true" {
		if err := h.st.ClearDirectory(); err != nil {
			markErr(w, err)
			writeError(w, http.StatusInternalServerError, "failed to clear storage")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"cleared": true})
		return
	}
	n, err := h.st.DeleteAll()
	if err != nil {
		markErr(w, err)
		writeError(w, http.StatusInternalServerError, "failed to delete files")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": n})
}

// GetSessions lists finished sync sessions, newest first, alongside the
// most recent one for "last synced" display.
func (h *Handler) GetSessions(w http.ResponseWriter, r *http.Request) {
	recs, err := h.sessions.List(r.Context())
	if err != nil {
		markErr(w, err)
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	if recs == nil {
		recs = data.SessionRecords{}
	}
	out := map[string]any{"sessions": recs}
	latest, err := h.sessions.Latest(r.Context())
	switch {
	case err == nil:
		out["latest"] = latest
	case errors.Is(err, data.ErrNotFound):
		// no sessions yet
	default:
		markErr(w, err)
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	writeJSON(w, http.StatusOK, out)
}
