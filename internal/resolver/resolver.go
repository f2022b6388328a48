// Package resolver arbitrates at view time between local disk, bundled
// assets, and remote streaming to serve a requested document with the
// smallest latency. Streaming does not persist anything: viewing and
// downloading are intentionally decoupled.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"sync"
	"syscall"

	"github.com/aagamb/granthsync/internal/data"
	"github.com/aagamb/granthsync/internal/metrics"
	"github.com/aagamb/granthsync/internal/remote"
)

// Source identifies where a resolved document came from.
type Source string

const (
	SourceLocal  Source = "local"
	SourceBundle Source = "bundle"
	SourceRemote Source = "remote"
)

// Phase is the per-document view state machine:
// idle -> loading -> {loaded | error}; error returns to idle only through an
// explicit Retry, never automatically.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseLoading Phase = "loading"
	PhaseLoaded  Phase = "loaded"
	PhaseError   Phase = "error"
)

// State is the observable view state for one document.
type State struct {
	Phase   Phase  `json:"phase"`
	Message string `json:"message,omitempty"`
}

// Result is a resolved document.
type Result struct {
	Source Source
	Data   []byte
}

// Streamer is the remote surface the resolver consumes: URL construction
// plus the single-attempt stream.
type Streamer interface {
	Configured() bool
	DocumentURL(b data.Book) (string, error)
	StreamToMemory(ctx context.Context, url string) ([]byte, error)
}

// Store is the local storage surface the resolver consumes.
type Store interface {
	Path(b data.Book) string
	Exists(b data.Book) bool
}

// Resolver serves documents local-first. bundle holds PDFs shipped with the
// app before remote sync existed and may be nil.
type Resolver struct {
	log    *slog.Logger
	st     Store
	bundle fs.FS
	stream Streamer

	mu     sync.RWMutex
	states map[string]State
}

func New(log *slog.Logger, st Store, bundle fs.FS, stream Streamer) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{
		log:    log,
		st:     st,
		bundle: bundle,
		stream: stream,
		states: make(map[string]State),
	}
}

// Resolve serves one document: local disk first, then the bundled assets,
// then a remote stream. The remote path transitions the document through
// loading and settles in loaded or error.
func (r *Resolver) Resolve(ctx context.Context, b data.Book) (*Result, error) {
	if r.st.Exists(b) {
		content, err := os.ReadFile(r.st.Path(b))
		if err != nil {
			r.setState(b.Name, State{Phase: PhaseError, Message: "Could not read the downloaded copy. Try re-downloading."})
			return nil, fmt.Errorf("read local %s: %w", b.Name, err)
		}
		r.setState(b.Name, State{Phase: PhaseLoaded})
		metrics.Resolutions.WithLabelValues(string(SourceLocal)).Inc()
		r.log.Info("resolved book", "book", b.Name, "source", SourceLocal)
		return &Result{Source: SourceLocal, Data: content}, nil
	}

	if r.bundle != nil {
		name := b.LocalFileName()
		if info, err := fs.Stat(r.bundle, name); err == nil && !info.IsDir() {
			content, err := fs.ReadFile(r.bundle, name)
			if err != nil {
				return nil, fmt.Errorf("read bundled %s: %w", b.Name, err)
			}
			r.setState(b.Name, State{Phase: PhaseLoaded})
			metrics.Resolutions.WithLabelValues(string(SourceBundle)).Inc()
			r.log.Info("resolved book", "book", b.Name, "source", SourceBundle)
			return &Result{Source: SourceBundle, Data: content}, nil
		}
	}

	r.setState(b.Name, State{Phase: PhaseLoading})
	url, err := r.stream.DocumentURL(b)
	if err != nil {
		msg := UserMessage(err)
		r.setState(b.Name, State{Phase: PhaseError, Message: msg})
		return nil, err
	}
	content, err := r.stream.StreamToMemory(ctx, url)
	if err != nil {
		msg := UserMessage(err)
		r.setState(b.Name, State{Phase: PhaseError, Message: msg})
		r.log.Error("stream failed", "book", b.Name, "err", err)
		return nil, err
	}
	r.setState(b.Name, State{Phase: PhaseLoaded})
	metrics.Resolutions.WithLabelValues(string(SourceRemote)).Inc()
	r.log.Info("resolved book", "book", b.Name, "source", SourceRemote)
	return &Result{Source: SourceRemote, Data: content}, nil
}

// State returns the view state for a document; untouched documents are idle.
func (r *Resolver) State(name string) State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if st, ok := r.states[name]; ok {
		return st
	}
	return State{Phase: PhaseIdle}
}

// Retry clears an error state back to idle. It is the only path out of
// error; it reports whether a reset happened.
func (r *Resolver) Retry(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.states[name]; ok && st.Phase == PhaseError {
		r.states[name] = State{Phase: PhaseIdle}
		return true
	}
	return false
}

func (r *Resolver) setState(name string, st State) {
	r.mu.Lock()
	r.states[name] = st
	r.mu.Unlock()
}

// UserMessage translates transport failures into user-facing strings. The
// table is part of the resolver's contract.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, data.ErrNotConfigured):
		return "Content service is not configured. Please try again later."
	case isTimeout(err):
		return "Connection timed out. Please try again."
	case isNoConnectivity(err):
		return "No internet connection. Please check your network and try again."
	case isHostUnreachable(err):
		return "Cannot connect to server. Please try again later."
	}
	if k, ok := remote.KindOf(err); ok {
		switch k {
		case remote.KindHTTPStatus:
			return "The server could not provide this book. Please try again later."
		case remote.KindNoData:
			return "The server returned an empty file. Please try again later."
		}
	}
	return "Network error: " + err.Error()
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func isNoConnectivity(err error) bool {
	return errors.Is(err, syscall.ENETDOWN) || errors.Is(err, syscall.ENETUNREACH)
}

func isHostUnreachable(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EHOSTUNREACH)
}
