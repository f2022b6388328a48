package v1

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"

	"github.com/aagamb/granthsync/internal/data"
	"github.com/aagamb/granthsync/internal/resolver"
)

type stubSync struct {
	startFn  func(ctx context.Context) error
	resumeFn func(ctx context.Context) error
	snapshot data.SessionSnapshot
	pack     data.PackStatus
	items    map[string]data.ItemStatus
	books    data.Books

	cancelled bool
}

func (s *stubSync) Start(ctx context.Context) error {
	if s.startFn != nil {
		return s.startFn(ctx)
	}
	return nil
}

func (s *stubSync) StartResume(ctx context.Context) error {
	if s.resumeFn != nil {
		return s.resumeFn(ctx)
	}
	return nil
}

func (s *stubSync) Cancel() { s.cancelled = true }

func (s *stubSync) Snapshot() data.SessionSnapshot { return s.snapshot }

func (s *stubSync) ItemStatus(name string) data.ItemStatus {
	if st, ok := s.items[name]; ok {
		return st
	}
	return data.ItemStatus{State: data.ItemPending}
}

func (s *stubSync) PackStatus() data.PackStatus {
	if s.pack == "" {
		return data.PackNotDownloaded
	}
	return s.pack
}

func (s *stubSync) Eligible() data.Books { return s.books }

type stubLib struct {
	sections data.Sections
}

func (l *stubLib) Sections() data.Sections { return l.sections }

func (l *stubLib) Books() data.Books {
	var out data.Books
	for _, sec := range l.sections {
		out = append(out, sec.Books...)
	}
	return out
}

func (l *stubLib) Find(name string) (data.Book, bool) {
	for _, b := range l.Books() {
		if b.Name == name {
			return b, true
		}
	}
	return data.Book{}, false
}

type stubResolver struct {
	resolveFn func(ctx context.Context, b data.Book) (*resolver.Result, error)
	state     resolver.State
	retried   bool
}

func (r *stubResolver) Resolve(ctx context.Context, b data.Book) (*resolver.Result, error) {
	if r.resolveFn != nil {
		return r.resolveFn(ctx, b)
	}
	return &resolver.Result{Source: resolver.SourceLocal, Data: []byte("pdf")}, nil
}

func (r *stubResolver) State(name string) resolver.State {
	if r.state.Phase == "" {
		return resolver.State{Phase: resolver.PhaseIdle}
	}
	return r.state
}

func (r *stubResolver) Retry(name string) bool {
	r.retried = true
	return r.state.Phase == resolver.PhaseError
}

type stubStorage struct {
	exists   map[string]bool
	sizes    map[string]int64
	deleted  int
	cleared  bool
	clearErr error
}

func (s *stubStorage) Exists(b data.Book) bool { return s.exists[b.Name] }

func (s *stubStorage) SizeOf(b data.Book) (int64, bool) {
	sz, ok := s.sizes[b.Name]
	return sz, ok
}

func (s *stubStorage) Count() int { return len(s.sizes) }

func (s *stubStorage) TotalSize() int64 {
	var total int64
	for _, sz := range s.sizes {
		total += sz
	}
	return total
}

func (s *stubStorage) AverageSize() (int64, bool) {
	if len(s.sizes) == 0 {
		return 0, false
	}
	return s.TotalSize() / int64(len(s.sizes)), true
}

func (s *stubStorage) DeleteAll() (int, error) {
	s.deleted = len(s.sizes)
	return s.deleted, nil
}

func (s *stubStorage) ClearDirectory() error {
	if s.clearErr != nil {
		return s.clearErr
	}
	s.cleared = true
	return nil
}

type stubSessionReader struct {
	recs data.SessionRecords
}

func (r *stubSessionReader) List(ctx context.Context) (data.SessionRecords, error) {
	return r.recs, nil
}

func (r *stubSessionReader) Latest(ctx context.Context) (*data.SessionRecord, error) {
	if len(r.recs) == 0 {
		return nil, data.ErrNotFound
	}
	return r.recs[0], nil
}

func testSections() data.Sections {
	return data.Sections{
		{Name: "Stavan", Books: data.Books{
			{Name: "Meri Bhavna", HindiName: "मेरी भावना"},
			{Name: "Darshan Stuti"},
		}},
	}
}

type fixture struct {
	h    *Handler
	sync *stubSync
	res  *stubResolver
	st   *stubStorage
}

func newFixture() *fixture {
	sync := &stubSync{books: data.Books{{Name: "Meri Bhavna"}, {Name: "Darshan Stuti"}}}
	res := &stubResolver{}
	st := &stubStorage{exists: map[string]bool{}, sizes: map[string]int64{}}
	h := NewHandler(nil, sync, &stubLib{sections: testSections()}, res, st, &stubSessionReader{}, nil)
	return &fixture{h: h, sync: sync, res: res, st: st}
}

func testRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/v1/books", h.GetBooks).Methods("GET")
	r.HandleFunc("/v1/books/{name}", h.GetBook).Methods("GET")
	r.HandleFunc("/v1/books/{name}/state", h.GetBookState).Methods("GET")
	r.HandleFunc("/v1/books/{name}/retry", h.RetryBook).Methods("POST")
	r.HandleFunc("/v1/sync", h.StartSync).Methods("POST")
	r.HandleFunc("/v1/sync", h.GetSync).Methods("GET")
	r.HandleFunc("/v1/sync", h.CancelSync).Methods("DELETE")
	r.HandleFunc("/v1/sync/resume", h.ResumeSync).Methods("POST")
	r.HandleFunc("/v1/storage", h.GetStorage).Methods("GET")
	r.HandleFunc("/v1/storage", h.DeleteStorage).Methods("DELETE")
	r.HandleFunc("/v1/sessions", h.GetSessions).Methods("GET")
	return r
}

func do(t *testing.T, h *Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	testRouter(h).ServeHTTP(rec, req)
	return rec
}

func TestGetBooks(t *testing.T) {
	f := newFixture()
	f.st.exists["Meri Bhavna"] = true
	f.st.sizes["Meri Bhavna"] = 1024
	f.sync.items = map[string]data.ItemStatus{
		"Meri Bhavna": {State: data.ItemCompleted, Progress: 1},
	}

	rec := do(t, f.h, http.MethodGet, "/v1/books")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var out []struct {
		Name  string `json:"name"`
		Books []struct {
			Name       string `json:"name"`
			Downloaded bool   `json:"downloaded"`
			SizeBytes  int64  `json:"sizeBytes"`
			Status     struct {
				State string `json:"state"`
			} `json:"status"`
		} `json:"books"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(out) != 1 || out[0].Name != "Stavan" {
		t.Fatalf("unexpected sections %+v", out)
	}
	books := out[0].Books
	if len(books) != 2 {
		t.Fatalf("expected 2 books, got %d", len(books))
	}
	if !books[0].Downloaded || books[0].SizeBytes != 1024 {
		t.Fatalf("unexpected first book %+v", books[0])
	}
	if books[0].Status.State != string(data.ItemCompleted) {
		t.Fatalf("unexpected status %q", books[0].Status.State)
	}
	if books[1].Downloaded {
		t.Fatalf("second book must not be downloaded")
	}
}

func TestGetBook(t *testing.T) {
	f := newFixture()

	rec := do(t, f.h, http.MethodGet, "/v1/books/Meri%20Bhavna")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/pdf" {
		t.Fatalf("unexpected content type %q", got)
	}
	if got := rec.Header().Get("X-Granth-Source"); got != "local" {
		t.Fatalf("unexpected source header %q", got)
	}
	if rec.Body.String() != "pdf" {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

func TestGetBook_NotFound(t *testing.T) {
	f := newFixture()
	rec := do(t, f.h, http.MethodGet, "/v1/books/No%20Such%20Book")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestGetBook_ResolveErrors(t *testing.T) {
	f := newFixture()

	f.res.resolveFn = func(ctx context.Context, b data.Book) (*resolver.Result, error) {
		return nil, data.ErrNotConfigured
	}
	rec := do(t, f.h, http.MethodGet, "/v1/books/Meri%20Bhavna")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when unconfigured, got %d", rec.Code)
	}

	f.res.resolveFn = func(ctx context.Context, b data.Book) (*resolver.Result, error) {
		return nil, fmt.Errorf("stream failed")
	}
	rec = do(t, f.h, http.MethodGet, "/v1/books/Meri%20Bhavna")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Network error") {
		t.Fatalf("expected user-facing message, got %q", rec.Body.String())
	}
}

func TestGetBookState(t *testing.T) {
	f := newFixture()
	f.res.state = resolver.State{Phase: resolver.PhaseError, Message: "Connection timed out. Please try again."}

	rec := do(t, f.h, http.MethodGet, "/v1/books/Meri%20Bhavna/state")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var st resolver.State
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if st.Phase != resolver.PhaseError || st.Message == "" {
		t.Fatalf("unexpected state %+v", st)
	}
}

func TestRetryBook(t *testing.T) {
	f := newFixture()
	f.res.state = resolver.State{Phase: resolver.PhaseError}

	rec := do(t, f.h, http.MethodPost, "/v1/books/Meri%20Bhavna/retry")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !f.res.retried {
		t.Fatalf("expected Retry to be called")
	}
	var out map[string]bool
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !out["reset"] {
		t.Fatalf("expected reset=true")
	}
}

func TestStartSync(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"accepted", nil, http.StatusAccepted},
		{"already running", data.ErrSyncInProgress, http.StatusConflict},
		{"not configured", data.ErrNotConfigured, http.StatusUnprocessableEntity},
		{"no books", data.ErrNoBooks, http.StatusUnprocessableEntity},
		{"unexpected", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			f.sync.startFn = func(ctx context.Context) error { return tc.err }
			rec := do(t, f.h, http.MethodPost, "/v1/sync")
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}
}

func TestResumeSync(t *testing.T) {
	f := newFixture()
	var called bool
	f.sync.resumeFn = func(ctx context.Context) error {
		called = true
		return nil
	}
	rec := do(t, f.h, http.MethodPost, "/v1/sync/resume")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if !called {
		t.Fatalf("expected StartResume to be called")
	}
}

func TestGetSync(t *testing.T) {
	f := newFixture()
	f.sync.pack = data.PackDownloading
	f.sync.snapshot = data.SessionSnapshot{ID: "s1", State: data.SessionDownloading, Total: 2, Completed: 1}

	rec := do(t, f.h, http.MethodGet, "/v1/sync")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var out struct {
		Pack    string `json:"pack"`
		Session struct {
			ID    string `json:"id"`
			State string `json:"state"`
		} `json:"session"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.Pack != string(data.PackDownloading) {
		t.Fatalf("unexpected pack %q", out.Pack)
	}
	if out.Session.ID != "s1" || out.Session.State != string(data.SessionDownloading) {
		t.Fatalf("unexpected session %+v", out.Session)
	}
}

func TestCancelSync(t *testing.T) {
	f := newFixture()
	rec := do(t, f.h, http.MethodDelete, "/v1/sync")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if !f.sync.cancelled {
		t.Fatalf("expected Cancel to be called")
	}
}

func TestGetStorage(t *testing.T) {
	f := newFixture()
	f.st.sizes = map[string]int64{"Meri Bhavna": 100, "Darshan Stuti": 300}

	rec := do(t, f.h, http.MethodGet, "/v1/storage")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var out struct {
		Count        int   `json:"count"`
		Expected     int   `json:"expected"`
		TotalBytes   int64 `json:"totalBytes"`
		AverageBytes int64 `json:"averageBytes"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.Count != 2 || out.Expected != 2 {
		t.Fatalf("unexpected counts %+v", out)
	}
	if out.TotalBytes != 400 || out.AverageBytes != 200 {
		t.Fatalf("unexpected sizes %+v", out)
	}
}

func TestDeleteStorage(t *testing.T) {
	f := newFixture()
	f.st.sizes = map[string]int64{"Meri Bhavna": 100}

	rec := do(t, f.h, http.MethodDelete, "/v1/storage")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if f.st.deleted != 1 {
		t.Fatalf("expected 1 deleted, got %d", f.st.deleted)
	}
	if f.st.cleared {
		t.Fatalf("plain delete must not clear the directory")
	}

	rec = do(t, f.h, http.MethodDelete, "/v1/storage?purge=true")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !f.st.cleared {
		t.Fatalf("expected ClearDirectory to be called")
	}
}

func TestGetSessions_Empty(t *testing.T) {
	f := newFixture()
	rec := do(t, f.h, http.MethodGet, "/v1/sessions")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var out struct {
		Sessions []json.RawMessage `json:"sessions"`
		Latest   *json.RawMessage  `json:"latest"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.Sessions == nil || len(out.Sessions) != 0 {
		t.Fatalf("expected empty sessions array, got %v", out.Sessions)
	}
	if out.Latest != nil {
		t.Fatalf("expected no latest session, got %s", *out.Latest)
	}
}

func TestGetSessions(t *testing.T) {
	f := newFixture()
	sessions := &stubSessionReader{recs: data.SessionRecords{
		{ID: "s2", Outcome: data.SessionPartial, Total: 3, Completed: 2, Failed: 1},
		{ID: "s1", Outcome: data.SessionCompleted, Total: 3, Completed: 3},
	}}
	f.h = NewHandler(nil, f.sync, &stubLib{sections: testSections()}, f.res, f.st, sessions, nil)

	rec := do(t, f.h, http.MethodGet, "/v1/sessions")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var out struct {
		Sessions []struct {
			ID string `json:"id"`
		} `json:"sessions"`
		Latest *struct {
			ID      string `json:"id"`
			Outcome string `json:"outcome"`
		} `json:"latest"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(out.Sessions) != 2 || out.Sessions[0].ID != "s2" {
		t.Fatalf("unexpected sessions %+v", out.Sessions)
	}
	if out.Latest == nil || out.Latest.ID != "s2" {
		t.Fatalf("expected latest s2, got %+v", out.Latest)
	}
	if out.Latest.Outcome != string(data.SessionPartial) {
		t.Fatalf("unexpected latest outcome %q", out.Latest.Outcome)
	}
}
