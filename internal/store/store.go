// Package store manages the flat on-disk directory of downloaded PDFs.
//
// There is no manifest: presence of <dir>/<name>.pdf IS the persisted state
// for "downloaded". Writes are atomic (temp file + rename) so a crash
// mid-save leaves either the old file or nothing, never a corrupt copy that
// would be mistaken for a valid download.
package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/aagamb/granthsync/internal/data"
)

// Store resolves books to local paths and answers queries over the current
// disk state. Queries stat the filesystem on every call; nothing is cached.
//
// Store itself does no locking. Concurrent calls for distinct books touch
// distinct paths and are safe; the syncer's sequential processing is what
// keeps same-book save/delete races out.
type Store struct {
	dir   string
	books data.Books
}

// New creates the storage directory if needed. books is the full catalogue,
// used by the aggregate queries (Count, TotalSize, DeleteAll).
func New(dir string, books data.Books) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir %s: %w", dir, err)
	}
	return &Store{dir: dir, books: books.Clone()}, nil
}

func (s *Store) Dir() string { return s.dir }

// Path is a pure function of the book name: <dir>/<name>.pdf. The raw name
// is used as-is; percent-encoding is a network concern, not a filesystem one.
func (s *Store) Path(b data.Book) string {
	return filepath.Join(s.dir, b.LocalFileName())
}

// Exists reports whether the book's file is on disk. Always a fresh stat.
func (s *Store) Exists(b data.Book) bool {
	info, err := os.Stat(s.Path(b))
	return err == nil && !info.IsDir()
}

// Save writes content atomically to the book's path, overwriting any
// existing file.
func (s *Store) Save(content []byte, b data.Book) (string, error) {
	dest := s.Path(b)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("save %s: %w", b.Name, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".granth-*")
	if err != nil {
		return "", fmt.Errorf("save %s: %w", b.Name, err)
	}
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("save %s: %w", b.Name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("save %s: %w", b.Name, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("save %s: %w", b.Name, err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("save %s: %w", b.Name, err)
	}
	return dest, nil
}

// SaveFrom moves an existing file (typically a finished download) into place,
// replacing any existing copy. Falls back to copy+remove when src is on a
// different filesystem.
func (s *Store) SaveFrom(src string, b data.Book) (string, error) {
	dest := s.Path(b)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("save %s: %w", b.Name, err)
	}
	if err := os.Rename(src, dest); err == nil {
		return dest, nil
	}
	content, err := os.ReadFile(src)
	if err != nil {
		return "", fmt.Errorf("save %s: %w", b.Name, err)
	}
	if _, err := s.Save(content, b); err != nil {
		return "", err
	}
	os.Remove(src)
	return dest, nil
}

// Delete removes the book's file. Absence is not an error: it returns
// (false, nil) so callers can treat delete as idempotent.
func (s *Store) Delete(b data.Book) (bool, error) {
	err := os.Remove(s.Path(b))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("delete %s: %w", b.Name, err)
}

// DeleteAll removes every catalogued file and returns how many were deleted.
// Deletion continues past individual failures; the first error is returned
// alongside the count.
func (s *Store) DeleteAll() (int, error) {
	var deleted int
	var firstErr error
	for _, b := range s.books {
		ok, err := s.Delete(b)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		if ok {
			deleted++
		}
	}
	return deleted, firstErr
}

// ClearDirectory removes everything in the storage directory, catalogued or
// not. More destructive than DeleteAll; intended for cache-wipe maintenance.
func (s *Store) ClearDirectory() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("clear %s: %w", s.dir, err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(s.dir, e.Name())); err != nil {
			return fmt.Errorf("clear %s: %w", s.dir, err)
		}
	}
	return nil
}

// Count is the number of catalogued books currently on disk. O(catalogue)
// stats per call; don't poll this inside a download loop.
func (s *Store) Count() int {
	var n int
	for _, b := range s.books {
		if s.Exists(b) {
			n++
		}
	}
	return n
}

// SizeOf returns the on-disk size of the book's file, or false if absent.
func (s *Store) SizeOf(b data.Book) (int64, bool) {
	info, err := os.Stat(s.Path(b))
	if err != nil || info.IsDir() {
		return 0, false
	}
	return info.Size(), true
}

// TotalSize sums the sizes of all catalogued files on disk.
func (s *Store) TotalSize() int64 {
	var total int64
	for _, b := range s.books {
		if sz, ok := s.SizeOf(b); ok {
			total += sz
		}
	}
	return total
}

// AverageSize returns the mean size of downloaded files, or false when
// nothing is downloaded.
func (s *Store) AverageSize() (int64, bool) {
	n := s.Count()
	if n == 0 {
		return 0, false
	}
	return s.TotalSize() / int64(n), true
}

// FormatBytes renders a byte count for display, e.g. "1.5 MB".
func FormatBytes(n int64) string {
	return humanize.Bytes(uint64(n))
}
