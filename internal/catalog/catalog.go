// Package catalog holds the static book catalogue. The catalogue is
// hand-authored YAML embedded in the binary, parsed once at startup and
// never mutated afterwards.
package catalog

import (
	_ "embed"
	"fmt"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/aagamb/granthsync/internal/data"
)

//go:embed catalog.yaml
var rawCatalog []byte

type yamlBook struct {
	Name       string `yaml:"name"`
	HindiName  string `yaml:"hindiName"`
	Author     string `yaml:"author"`
	PageOffset int    `yaml:"page"`
}

type yamlCatalog struct {
	Sections []struct {
		Name  string     `yaml:"name"`
		Books []yamlBook `yaml:"books"`
	} `yaml:"sections"`
}

// Catalog is the immutable, section-keyed book collection.
type Catalog struct {
	sections data.Sections
	flat     data.Books
	byName   map[string]data.Book
}

// Load parses the embedded catalogue document.
func Load() (*Catalog, error) {
	return Parse(rawCatalog)
}

// Parse builds a Catalog from a YAML document. Book IDs are freshly
// generated on every parse; they are ephemeral process-local identity and
// must never be used as storage keys.
func Parse(raw []byte) (*Catalog, error) {
	var doc yamlCatalog
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(doc.Sections) == 0 {
		return nil, fmt.Errorf("parse catalog: no sections")
	}

	c := &Catalog{byName: make(map[string]data.Book)}
	for _, ys := range doc.Sections {
		if ys.Name == "" {
			return nil, fmt.Errorf("parse catalog: section with empty name")
		}
		sec := data.Section{Name: ys.Name}
		for _, yb := range ys.Books {
			if yb.Name == "" {
				return nil, fmt.Errorf("parse catalog: book with empty name in section %q", ys.Name)
			}
			b := data.Book{
				Name:       yb.Name,
				HindiName:  yb.HindiName,
				Author:     yb.Author,
				PageOffset: yb.PageOffset,
				ID:         uuid.New(),
			}
			sec.Books = append(sec.Books, b)
			// The same book may be listed in more than one section; the
			// flat view dedups by name since name is the storage key.
			if _, seen := c.byName[b.Name]; !seen {
				c.byName[b.Name] = b
				c.flat = append(c.flat, b)
			}
		}
		c.sections = append(c.sections, sec)
	}
	return c, nil
}

// Sections returns the ordered sections as authored.
func (c *Catalog) Sections() data.Sections { return c.sections.Clone() }

// Books returns all distinct books flattened across sections, in first
// appearance order.
func (c *Catalog) Books() data.Books { return c.flat.Clone() }

// Find looks a book up by name.
func (c *Catalog) Find(name string) (data.Book, bool) {
	b, ok := c.byName[name]
	return b, ok
}

// Len is the number of distinct books.
func (c *Catalog) Len() int { return len(c.flat) }
