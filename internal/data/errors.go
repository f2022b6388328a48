package data

import "errors"

var (
	// ErrNotFound is returned when a name does not match any catalogued book.
	ErrNotFound = errors.New("book not found")
	// ErrSyncInProgress is returned when a bulk download is already running.
	// The new request is rejected, not queued.
	ErrSyncInProgress = errors.New("sync already in progress")
	// ErrNotConfigured is returned when the remote base URL is unset.
	ErrNotConfigured = errors.New("remote base URL not configured")
	// ErrNoBooks is returned when the sync-eligible catalogue subset is empty.
	ErrNoBooks = errors.New("no books to download")
	// ErrAllFailed is returned when every attempted download in a session
	// failed.
	ErrAllFailed = errors.New("all downloads failed")
	// ErrCancelled is recorded against items skipped by an explicit cancel.
	ErrCancelled = errors.New("download cancelled")
	// ErrMissingAfterDownload marks the integrity check that runs after a
	// transfer reports success: if the destination file is not on disk the
	// item is failed even though the transport succeeded.
	ErrMissingAfterDownload = errors.New("file missing after download")
)
