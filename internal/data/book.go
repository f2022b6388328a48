package data

import (
	"encoding/json"
	"io"

	"github.com/google/uuid"
)

// Book is one catalogued PDF document.
//
// Name is the primary key: local filenames and dedup decisions are always
// derived from Name. ID is regenerated on every catalogue load and must never
// be used as a storage key.
type Book struct {
	Name       string    `json:"name"`
	HindiName  string    `json:"hindiName"`
	Author     string    `json:"author,omitempty"`
	PageOffset int       `json:"pageOffset,omitempty"`
	ID         uuid.UUID `json:"-"`
}

type Books []Book

// Section is a named, ordered group of books. Section order matters for
// display only; sync flattens all sections into one set.
type Section struct {
	Name  string `json:"name"`
	Books Books  `json:"books"`
}

type Sections []Section

// LocalFileName returns the on-disk filename for the book.
func (b Book) LocalFileName() string {
	return b.Name + ".pdf"
}

// RemoteKey returns the object key under the given remote folder,
// e.g. "PDFs/Meri Bhavna.pdf". The key is not percent-encoded here;
// the remote client encodes it for URL use.
func (b Book) RemoteKey(folder string) string {
	return folder + "/" + b.Name + ".pdf"
}

func (b Books) Clone() Books {
	out := make(Books, len(b))
	copy(out, b)
	return out
}

// Names returns the book names in order.
func (b Books) Names() []string {
	out := make([]string, 0, len(b))
	for _, bk := range b {
		out = append(out, bk.Name)
	}
	return out
}

func (s Sections) Clone() Sections {
	out := make(Sections, len(s))
	for i, sec := range s {
		out[i] = Section{Name: sec.Name, Books: sec.Books.Clone()}
	}
	return out
}

func (s Sections) ToJSON(w io.Writer) error { return json.NewEncoder(w).Encode(s) }

func (b Books) ToJSON(w io.Writer) error { return json.NewEncoder(w).Encode(b) }

func (b *Book) FromJSON(r io.Reader) error { return json.NewDecoder(r).Decode(b) }
