// Package syncer owns the bulk "download everything" flow: it reconciles the
// catalogue against local storage, downloads the missing set strictly one at
// a time, and tracks per-item and aggregate session state.
//
// Sequential processing is a deliberate simplicity-over-throughput tradeoff.
// It bounds peak memory and network use, keeps per-item progress unambiguous,
// and makes the per-item status map single-writer so no lock is needed for
// its mutation beyond the session mutex guarding snapshots.
package syncer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aagamb/granthsync/internal/data"
)

// Fetcher is the single-document download surface the syncer consumes.
// Retry policy lives behind this interface: DownloadToFile either eventually
// succeeds or reports its final failure.
type Fetcher interface {
	Configured() bool
	DocumentURL(b data.Book) (string, error)
	DownloadToFile(ctx context.Context, url, dest string, onProgress func(float64)) error
}

// Store is the local storage surface the syncer consumes.
type Store interface {
	Path(b data.Book) string
	Exists(b data.Book) bool
	SizeOf(b data.Book) (int64, bool)
	Count() int
}

type session struct {
	id         string
	state      data.SessionState
	pending    data.Books
	items      map[string]data.ItemStatus
	completed  int
	failed     int
	cancelled  int
	startedAt  time.Time
	finishedAt time.Time
}

// Syncer runs at most one bulk download session at a time. A second
// DownloadAll while one is running is rejected, not queued.
type Syncer struct {
	log      *slog.Logger
	books    data.Books
	devMode  bool
	devBooks map[string]bool
	st       Store
	fetch    Fetcher
	rep      Reporter

	mu     sync.RWMutex
	active bool
	cancel context.CancelFunc
	sess   *session // latest session; retained after finish for status reads
}

// New builds a Syncer over the flattened catalogue. When devMode is set only
// the books named in devBooks are eligible for sync. rep may be nil.
func New(log *slog.Logger, books data.Books, st Store, fetch Fetcher, rep Reporter, devMode bool, devBooks []string) *Syncer {
	if log == nil {
		log = slog.Default()
	}
	allow := make(map[string]bool, len(devBooks))
	for _, n := range devBooks {
		allow[n] = true
	}
	return &Syncer{
		log:      log,
		books:    books.Clone(),
		devMode:  devMode,
		devBooks: allow,
		st:       st,
		fetch:    fetch,
		rep:      rep,
	}
}

// Eligible returns the catalogue subset that sync considers, with the
// dev-mode allow-list applied.
func (s *Syncer) Eligible() data.Books {
	if !s.devMode {
		return s.books.Clone()
	}
	var out data.Books
	for _, b := range s.books {
		if s.devBooks[b.Name] {
			out = append(out, b)
		}
	}
	return out
}

// DownloadAll downloads every eligible book not already on disk, one at a
// time, and blocks until the session settles. It returns the number of books
// downloaded. Partial failure is still a success carrying the completed
// count; only an all-failed session returns data.ErrAllFailed.
//
// An already-synced catalogue returns (0, nil) immediately without touching
// the network.
func (s *Syncer) DownloadAll(ctx context.Context) (int, error) {
	sess, runCtx, err := s.begin(ctx)
	if err != nil {
		return 0, err
	}
	if sess == nil {
		return 0, nil
	}
	return s.run(runCtx, sess)
}

// Start is the asynchronous variant of DownloadAll: preconditions are
// checked synchronously, the session itself runs in a goroutine and settles
// through events and status queries.
func (s *Syncer) Start(ctx context.Context) error {
	sess, runCtx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	if sess == nil {
		return nil
	}
	go s.run(runCtx, sess)
	return nil
}

// Resume re-runs the pending set: items that failed last session plus
// eligible books not on disk. No-op when nothing qualifies.
func (s *Syncer) Resume(ctx context.Context) (int, error) {
	s.mu.RLock()
	active := s.active
	s.mu.RUnlock()
	if active {
		return 0, data.ErrSyncInProgress
	}
	var qualifies bool
	for _, b := range s.Eligible() {
		if !s.st.Exists(b) {
			qualifies = true
			break
		}
	}
	if !qualifies {
		s.log.Info("nothing to resume")
		return 0, nil
	}
	// Pending is recomputed from disk, so a plain DownloadAll covers
	// exactly the failed and never-attempted set.
	return s.DownloadAll(ctx)
}

// StartResume is the asynchronous variant of Resume. A resume with nothing
// pending is a successful no-op rather than an error.
func (s *Syncer) StartResume(ctx context.Context) error {
	s.mu.RLock()
	active := s.active
	s.mu.RUnlock()
	if active {
		return data.ErrSyncInProgress
	}
	var qualifies bool
	for _, b := range s.Eligible() {
		if !s.st.Exists(b) {
			qualifies = true
			break
		}
	}
	if !qualifies {
		s.log.Info("nothing to resume")
		return nil
	}
	return s.Start(ctx)
}

// Cancel requests cooperative cancellation: the in-flight transfer gets its
// context cancelled and all still-pending items are marked cancelled. The
// final state settles asynchronously in the session flow; Cancel does not
// wait for it.
func (s *Syncer) Cancel() {
	s.mu.Lock()
	if !s.active || s.cancel == nil {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.mu.Unlock()
	s.log.Info("cancelling sync session")
	cancel()
}

// begin checks session preconditions and builds the pending set. It returns
// a nil session when everything is already on disk (callers report immediate
// success).
func (s *Syncer) begin(ctx context.Context) (*session, context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		return nil, nil, data.ErrSyncInProgress
	}
	if !s.fetch.Configured() {
		return nil, nil, data.ErrNotConfigured
	}
	books := s.Eligible()
	if len(books) == 0 {
		return nil, nil, data.ErrNoBooks
	}

	var pending data.Books
	for _, b := range books {
		if !s.st.Exists(b) {
			pending = append(pending, b)
		}
	}
	now := time.Now()
	if len(pending) == 0 {
		s.sess = &session{
			id:         uuid.NewString(),
			state:      data.SessionCompleted,
			items:      map[string]data.ItemStatus{},
			startedAt:  now,
			finishedAt: now,
		}
		s.log.Info("all books already downloaded")
		return nil, nil, nil
	}

	sess := &session{
		id:        uuid.NewString(),
		state:     data.SessionDownloading,
		pending:   pending,
		items:     make(map[string]data.ItemStatus, len(pending)),
		startedAt: now,
	}
	for _, b := range pending {
		sess.items[b.Name] = data.ItemStatus{State: data.ItemPending}
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.sess = sess
	s.cancel = cancel
	s.active = true
	s.log.Info("starting sync session", "session_id", sess.id, "pending", len(pending))
	return sess, runCtx, nil
}

func (s *Syncer) run(ctx context.Context, sess *session) (int, error) {
	s.report(Event{SessionID: sess.id, Type: EventSessionStarted})

	for i, b := range sess.pending {
		if ctx.Err() != nil {
			return s.finishCancelled(sess, i)
		}

		s.setItem(sess, b.Name, data.ItemStatus{State: data.ItemDownloading})
		s.report(Event{SessionID: sess.id, Type: EventItemStarted, Book: b.Name})
		s.log.Info("downloading book", "session_id", sess.id, "book", b.Name, "index", i+1, "total", len(sess.pending))

		err := s.downloadOne(ctx, sess, b)
		if err != nil && ctx.Err() != nil {
			return s.finishCancelled(sess, i)
		}
		if err != nil {
			s.mu.Lock()
			sess.failed++
			s.mu.Unlock()
			s.setItem(sess, b.Name, data.ItemStatus{State: data.ItemFailed, Error: err.Error()})
			s.report(Event{SessionID: sess.id, Type: EventItemFailed, Book: b.Name, Err: err.Error()})
			s.log.Error("download failed", "session_id", sess.id, "book", b.Name, "err", err)
			continue
		}

		s.mu.Lock()
		sess.completed++
		s.mu.Unlock()
		s.setItem(sess, b.Name, data.ItemStatus{State: data.ItemCompleted, Progress: 1})
		bytes, _ := s.st.SizeOf(b)
		s.report(Event{SessionID: sess.id, Type: EventItemCompleted, Book: b.Name, Bytes: bytes})
	}

	s.mu.Lock()
	sess.finishedAt = time.Now()
	switch {
	case sess.failed == 0:
		sess.state = data.SessionCompleted
	case sess.completed > 0:
		sess.state = data.SessionPartial
	default:
		sess.state = data.SessionFailed
	}
	completed := sess.completed
	state := sess.state
	s.active = false
	s.cancel = nil
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.report(Event{SessionID: sess.id, Type: EventSessionEnded, Snapshot: &snap})
	s.log.Info("sync session finished", "session_id", sess.id, "state", state,
		"completed", sess.completed, "failed", sess.failed)
	if state == data.SessionFailed {
		return 0, data.ErrAllFailed
	}
	return completed, nil
}

// downloadOne fetches a single book and re-checks the destination exists
// afterwards: a transfer that "succeeded" without producing the file is a
// failure, which guards against silent partial writes.
func (s *Syncer) downloadOne(ctx context.Context, sess *session, b data.Book) error {
	url, err := s.fetch.DocumentURL(b)
	if err != nil {
		return err
	}
	err = s.fetch.DownloadToFile(ctx, url, s.st.Path(b), func(f float64) {
		s.setItemProgress(sess, b.Name, f)
		s.report(Event{SessionID: sess.id, Type: EventItemProgress, Book: b.Name, Progress: f})
	})
	if err != nil {
		return err
	}
	if !s.st.Exists(b) {
		return data.ErrMissingAfterDownload
	}
	return nil
}

// finishCancelled marks the current and all remaining items cancelled and
// settles the session. from is the index of the first unprocessed item.
func (s *Syncer) finishCancelled(sess *session, from int) (int, error) {
	for _, b := range sess.pending[from:] {
		s.mu.Lock()
		sess.cancelled++
		s.mu.Unlock()
		s.setItem(sess, b.Name, data.ItemStatus{State: data.ItemCancelled, Error: data.ErrCancelled.Error()})
		s.report(Event{SessionID: sess.id, Type: EventItemCancelled, Book: b.Name})
	}
	s.mu.Lock()
	sess.finishedAt = time.Now()
	sess.state = data.SessionCancelled
	completed := sess.completed
	s.active = false
	s.cancel = nil
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.report(Event{SessionID: sess.id, Type: EventSessionEnded, Snapshot: &snap})
	s.log.Info("sync session cancelled", "session_id", sess.id, "completed", completed)
	return completed, data.ErrCancelled
}

// setItem records a terminal or starting state for an item. Transitions are
// monotonic: once terminal, a state is never overwritten.
func (s *Syncer) setItem(sess *session, name string, st data.ItemStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := sess.items[name]; ok && terminal(cur.State) {
		return
	}
	sess.items[name] = st
}

// setItemProgress updates progress only while the item is downloading, so a
// stray callback can never resurrect a settled item.
func (s *Syncer) setItemProgress(sess *session, name string, f float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := sess.items[name]
	if !ok || cur.State != data.ItemDownloading {
		return
	}
	cur.Progress = f
	sess.items[name] = cur
}

func terminal(st data.ItemState) bool {
	switch st {
	case data.ItemCompleted, data.ItemFailed, data.ItemCancelled:
		return true
	}
	return false
}

// Snapshot returns a point-in-time copy of the latest session. It reads only
// cached session state, never the filesystem, so it is safe to poll.
func (s *Syncer) Snapshot() data.SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Syncer) snapshotLocked() data.SessionSnapshot {
	if s.sess == nil {
		return data.SessionSnapshot{State: data.SessionIdle}
	}
	sess := s.sess
	items := make(map[string]data.ItemStatus, len(sess.items))
	for k, v := range sess.items {
		items[k] = v
	}
	total := len(sess.pending)
	var progress float64
	if total > 0 {
		progress = float64(sess.completed) / float64(total)
	} else if sess.state == data.SessionCompleted {
		progress = 1
	}
	return data.SessionSnapshot{
		ID:         sess.id,
		State:      sess.state,
		Total:      total,
		Completed:  sess.completed,
		Failed:     sess.failed,
		Cancelled:  sess.cancelled,
		Progress:   progress,
		Items:      items,
		StartedAt:  sess.startedAt,
		FinishedAt: sess.finishedAt,
	}
}

// ItemStatus reads a single item's status from session state. Books never
// touched by the latest session report Pending.
func (s *Syncer) ItemStatus(name string) data.ItemStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.sess != nil {
		if st, ok := s.sess.items[name]; ok {
			return st
		}
	}
	return data.ItemStatus{State: data.ItemPending}
}

// PackStatus classifies the whole collection: a derived projection combining
// the on-disk count with the expected eligible count. Recomputed on demand.
func (s *Syncer) PackStatus() data.PackStatus {
	s.mu.RLock()
	active := s.active
	var last data.SessionState
	if s.sess != nil {
		last = s.sess.state
	}
	s.mu.RUnlock()

	if active {
		return data.PackDownloading
	}
	expected := len(s.Eligible())
	if expected > 0 && s.st.Count() >= expected {
		return data.PackDownloaded
	}
	if last == data.SessionFailed || last == data.SessionPartial {
		return data.PackFailed
	}
	return data.PackNotDownloaded
}

func (s *Syncer) report(e Event) {
	if s.rep != nil {
		s.rep.Report(e)
	}
}
