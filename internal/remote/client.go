// Package remote fetches documents from the configured bucket over plain
// HTTPS. Retry policy is deliberately split: downloads-to-file retry with a
// linear backoff because the bulk syncer treats one document as a black box
// that eventually succeeds or finally fails; stream-to-memory is a single
// attempt because the viewer wants fast failure feedback.
package remote

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aagamb/granthsync/internal/data"
	"github.com/aagamb/granthsync/internal/metrics"
)

const (
	// Remote folder names. Dev builds sync against a small test folder.
	FolderProd = "PDFs"
	FolderDev  = "PDFsDev"

	defaultRequestTimeout  = 60 * time.Second
	defaultResourceTimeout = 300 * time.Second
)

type Config struct {
	// BaseURL is the bucket base, e.g.
	// "https://jinendra-archana-pdfs.s3.us-east-1.amazonaws.com".
	// Empty means unconfigured.
	BaseURL string
	DevMode bool
	// MaxRetries bounds retries after the first attempt of DownloadToFile.
	MaxRetries int
	// RequestTimeout bounds connection setup and response headers;
	// ResourceTimeout bounds the whole transfer.
	RequestTimeout  time.Duration
	ResourceTimeout time.Duration
}

type Client struct {
	cfg  Config
	http *http.Client
	log  *slog.Logger
}

func New(log *slog.Logger, cfg Config) *Client {
	if log == nil {
		log = slog.Default()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.ResourceTimeout <= 0 {
		cfg.ResourceTimeout = defaultResourceTimeout
	}
	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: cfg.RequestTimeout}).DialContext,
		ResponseHeaderTimeout: cfg.RequestTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
	}
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Transport: transport,
			Timeout:   cfg.ResourceTimeout,
		},
		log: log,
	}
}

// Configured reports whether a base URL is set.
func (c *Client) Configured() bool {
	return strings.TrimSpace(c.cfg.BaseURL) != ""
}

// Folder returns the remote folder selected by the dev-mode flag.
func (c *Client) Folder() string {
	if c.cfg.DevMode {
		return FolderDev
	}
	return FolderProd
}

// DocumentURL builds <base>/<folder>/<name>.pdf with each path segment
// percent-encoded. Deterministic; fails with KindNotConfigured when the base
// is unset.
func (c *Client) DocumentURL(b data.Book) (string, error) {
	if !c.Configured() {
		return "", &Error{Kind: KindNotConfigured}
	}
	segments := strings.Split(b.RemoteKey(c.Folder()), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	raw := strings.TrimRight(strings.TrimSpace(c.cfg.BaseURL), "/") +
		"/" + strings.Join(segments, "/")
	if _, err := url.ParseRequestURI(raw); err != nil {
		return "", &Error{Kind: KindInvalidURL, Err: err}
	}
	return raw, nil
}

// DownloadToFile fetches rawURL into dest, creating parent directories and
// replacing any existing file. The write is atomic: the payload lands in a
// temp file that is renamed over dest only after the transfer finished.
//
// Transport errors and non-2xx statuses are retried up to MaxRetries with a
// linear backoff (attempt n sleeps n seconds). onProgress receives fractions
// in [0,1] and is advisory only; a final 1.0 call is not guaranteed.
func (c *Client) DownloadToFile(ctx context.Context, rawURL, dest string, onProgress func(float64)) error {
	for attempt := 0; ; attempt++ {
		err := c.fetchToFile(ctx, rawURL, dest, onProgress)
		if err == nil {
			return nil
		}
		if !retryable(err) || attempt >= c.cfg.MaxRetries {
			return err
		}
		metrics.DownloadRetries.Inc()
		c.log.Warn("download failed, retrying",
			"url", rawURL, "attempt", attempt+1, "max", c.cfg.MaxRetries, "err", err)
		select {
		case <-ctx.Done():
			return &Error{Kind: KindNetwork, Err: ctx.Err()}
		case <-time.After(time.Duration(attempt+1) * time.Second):
		}
	}
}

func (c *Client) fetchToFile(ctx context.Context, rawURL, dest string, onProgress func(float64)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return &Error{Kind: KindInvalidURL, Err: err}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Kind: KindNetwork, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &Error{Kind: KindHTTPStatus, Status: resp.StatusCode}
	}

	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &Error{Kind: KindNetwork, Err: fmt.Errorf("create dir: %w", err)}
	}
	tmp, err := os.CreateTemp(dir, ".granth-dl-*")
	if err != nil {
		return &Error{Kind: KindNetwork, Err: err}
	}
	pw := &progressWriter{w: tmp, total: resp.ContentLength, fn: onProgress}
	_, copyErr := io.Copy(pw, resp.Body)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		os.Remove(tmp.Name())
		if copyErr == nil {
			copyErr = closeErr
		}
		return &Error{Kind: KindNetwork, Err: copyErr}
	}
	if pw.written == 0 {
		os.Remove(tmp.Name())
		return &Error{Kind: KindNoData}
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return &Error{Kind: KindNetwork, Err: err}
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return &Error{Kind: KindNetwork, Err: err}
	}
	return nil
}

// StreamToMemory fetches rawURL into memory in a single attempt, no retry.
func (c *Client) StreamToMemory(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &Error{Kind: KindInvalidURL, Err: err}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &Error{Kind: KindHTTPStatus, Status: resp.StatusCode}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Err: err}
	}
	if len(body) == 0 {
		return nil, &Error{Kind: KindNoData}
	}
	return body, nil
}

type progressWriter struct {
	w       io.Writer
	total   int64
	written int64
	fn      func(float64)
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.written += int64(n)
	if p.fn != nil && p.total > 0 {
		f := float64(p.written) / float64(p.total)
		if f > 1 {
			f = 1
		}
		p.fn(f)
	}
	return n, err
}
