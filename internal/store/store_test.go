package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aagamb/granthsync/internal/data"
)

func testBooks() data.Books {
	return data.Books{
		{Name: "Meri Bhavna"},
		{Name: "Darshan Stuti"},
		{Name: "Alochna Path"},
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := New(t.TempDir(), testBooks())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return st
}

func TestStore_Path(t *testing.T) {
	st := newTestStore(t)
	b := data.Book{Name: "Meri Bhavna"}

	p1 := st.Path(b)
	p2 := st.Path(b)
	if p1 != p2 {
		t.Fatalf("paths differ for same book: %q vs %q", p1, p2)
	}
	if got := filepath.Base(p1); got != "Meri Bhavna.pdf" {
		t.Fatalf("expected file name %q, got %q", "Meri Bhavna.pdf", got)
	}

	// A fresh Store over the same directory resolves the same path.
	st2, err := New(st.Dir(), testBooks())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if st2.Path(b) != p1 {
		t.Fatalf("path not stable across instances: %q vs %q", st2.Path(b), p1)
	}
}

func TestStore_SaveAndExists(t *testing.T) {
	st := newTestStore(t)
	b := data.Book{Name: "Meri Bhavna"}

	if st.Exists(b) {
		t.Fatalf("expected book to be absent before save")
	}

	dest, err := st.Save([]byte("pdf-bytes"), b)
	if err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if dest != st.Path(b) {
		t.Fatalf("Save returned %q, want %q", dest, st.Path(b))
	}
	if !st.Exists(b) {
		t.Fatalf("expected book to exist after save")
	}

	content, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read saved file: %v", err)
	}
	if string(content) != "pdf-bytes" {
		t.Fatalf("unexpected content %q", content)
	}

	// Overwrite replaces the previous copy.
	if _, err := st.Save([]byte("v2"), b); err != nil {
		t.Fatalf("Save overwrite returned error: %v", err)
	}
	content, _ = os.ReadFile(dest)
	if string(content) != "v2" {
		t.Fatalf("expected overwritten content, got %q", content)
	}

	// No temp files left behind.
	entries, err := os.ReadDir(st.Dir())
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".granth-") {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
}

func TestStore_SaveFrom(t *testing.T) {
	st := newTestStore(t)
	b := data.Book{Name: "Alochna Path"}

	src := filepath.Join(t.TempDir(), "download.tmp")
	if err := os.WriteFile(src, []byte("moved"), 0o644); err != nil {
		t.Fatalf("write src: %v", err)
	}

	dest, err := st.SaveFrom(src, b)
	if err != nil {
		t.Fatalf("SaveFrom returned error: %v", err)
	}
	if !st.Exists(b) {
		t.Fatalf("expected book to exist after SaveFrom")
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatalf("expected src to be gone, stat err: %v", err)
	}
	content, _ := os.ReadFile(dest)
	if string(content) != "moved" {
		t.Fatalf("unexpected content %q", content)
	}
}

func TestStore_DeleteIdempotent(t *testing.T) {
	st := newTestStore(t)
	b := data.Book{Name: "Darshan Stuti"}

	ok, err := st.Delete(b)
	if err != nil {
		t.Fatalf("Delete of absent file returned error: %v", err)
	}
	if ok {
		t.Fatalf("expected ok=false for absent file")
	}

	if _, err := st.Save([]byte("x"), b); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	ok, err = st.Delete(b)
	if err != nil || !ok {
		t.Fatalf("expected (true, nil), got (%v, %v)", ok, err)
	}
	if st.Exists(b) {
		t.Fatalf("expected book gone after delete")
	}

	// Second delete is a quiet no-op.
	ok, err = st.Delete(b)
	if err != nil || ok {
		t.Fatalf("expected (false, nil) on repeat delete, got (%v, %v)", ok, err)
	}
}

func TestStore_DeleteAll(t *testing.T) {
	st := newTestStore(t)
	for _, b := range testBooks()[:2] {
		if _, err := st.Save([]byte("x"), b); err != nil {
			t.Fatalf("Save returned error: %v", err)
		}
	}

	n, err := st.DeleteAll()
	if err != nil {
		t.Fatalf("DeleteAll returned error: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 deleted, got %d", n)
	}
	if got := st.Count(); got != 0 {
		t.Fatalf("expected empty store, count %d", got)
	}
}

func TestStore_ClearDirectory(t *testing.T) {
	st := newTestStore(t)
	if _, err := st.Save([]byte("x"), data.Book{Name: "Meri Bhavna"}); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	// Stray file not in the catalogue.
	stray := filepath.Join(st.Dir(), "notes.txt")
	if err := os.WriteFile(stray, []byte("stray"), 0o644); err != nil {
		t.Fatalf("write stray: %v", err)
	}

	if err := st.ClearDirectory(); err != nil {
		t.Fatalf("ClearDirectory returned error: %v", err)
	}
	entries, err := os.ReadDir(st.Dir())
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty directory, found %d entries", len(entries))
	}
}

func TestStore_Sizes(t *testing.T) {
	st := newTestStore(t)
	books := testBooks()

	if _, ok := st.SizeOf(books[0]); ok {
		t.Fatalf("expected no size for absent book")
	}
	if _, ok := st.AverageSize(); ok {
		t.Fatalf("expected no average for empty store")
	}

	if _, err := st.Save(make([]byte, 100), books[0]); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if _, err := st.Save(make([]byte, 300), books[1]); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	if sz, ok := st.SizeOf(books[0]); !ok || sz != 100 {
		t.Fatalf("expected size 100, got (%d, %v)", sz, ok)
	}
	if got := st.TotalSize(); got != 400 {
		t.Fatalf("expected total 400, got %d", got)
	}
	if avg, ok := st.AverageSize(); !ok || avg != 200 {
		t.Fatalf("expected average 200, got (%d, %v)", avg, ok)
	}
	if got := st.Count(); got != 2 {
		t.Fatalf("expected count 2, got %d", got)
	}
}

func TestFormatBytes(t *testing.T) {
	if got := FormatBytes(0); got != "0 B" {
		t.Fatalf("unexpected format for 0: %q", got)
	}
	if got := FormatBytes(1500000); got != "1.5 MB" {
		t.Fatalf("unexpected format for 1500000: %q", got)
	}
}
