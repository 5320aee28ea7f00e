// Package catalog holds the versioned question catalog presented to
// candidates. A Catalog is built once at startup and never mutated; every
// component that needs it receives the same pointer.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
)

//go:embed assessment.yaml
var defaultCatalog []byte

// DefaultRows is the textarea height used when a question does not set one.
const DefaultRows = 8

// Question is a single free-text question.
type Question struct {
	Key      string `yaml:"key"`
	Title    string `yaml:"title"`
	Prompt   string `yaml:"prompt"`
	Required bool   `yaml:"required"`
	Rows     int    `yaml:"rows"`
}

// Section groups questions under a heading.
type Section struct {
	Key         string     `yaml:"key"`
	Title       string     `yaml:"title"`
	Description string     `yaml:"description"`
	Questions   []Question `yaml:"questions"`
}

type document struct {
	Version  string    `yaml:"version"`
	Title    string    `yaml:"title"`
	Sections []Section `yaml:"sections"`
}

// Catalog is the immutable, validated question catalog.
type Catalog struct {
	version  string
	title    string
	sections []Section
	keys     []string
	index    map[string]Question
	required int
}

// Default returns the catalog embedded in the binary.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads a catalog from path, or the embedded default when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML catalog document.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.UnmarshalWithOptions(data, &doc, yaml.Strict()); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return build(doc)
}

func build(doc document) (*Catalog, error) {
	if strings.TrimSpace(doc.Version) == "" {
		return nil, errors.New("catalog version is required")
	}
	if len(doc.Sections) == 0 {
		return nil, errors.New("catalog has no sections")
	}

	c := &Catalog{
		version:  doc.Version,
		title:    doc.Title,
		sections: make([]Section, 0, len(doc.Sections)),
		index:    make(map[string]Question),
	}

	for i, s := range doc.Sections {
		qs := make([]Question, 0, len(s.Questions))
		for j, q := range s.Questions {
			if strings.TrimSpace(q.Key) == "" {
				return nil, fmt.Errorf("section %d question %d: missing key", i, j)
			}
			if _, dup := c.index[q.Key]; dup {
				return nil, fmt.Errorf("duplicate question key: %s", q.Key)
			}
			if q.Rows <= 0 {
				q.Rows = DefaultRows
			}
			if q.Required {
				c.required++
			}
			c.index[q.Key] = q
			c.keys = append(c.keys, q.Key)
			qs = append(qs, q)
		}
		s.Questions = qs
		c.sections = append(c.sections, s)
	}

	if len(c.keys) == 0 {
		return nil, errors.New("catalog has no questions")
	}
	return c, nil
}

// Version is persisted on every attempt at creation time.
func (c *Catalog) Version() string { return c.version }

func (c *Catalog) Title() string { return c.title }

// Sections returns a copy of the sections in display order.
func (c *Catalog) Sections() []Section {
	out := make([]Section, len(c.sections))
	for i, s := range c.sections {
		s.Questions = append([]Question(nil), s.Questions...)
		out[i] = s
	}
	return out
}

// Keys returns every question key in catalog order (section order, then
// question order within the section).
func (c *Catalog) Keys() []string {
	return append([]string(nil), c.keys...)
}

// Has reports whether key names a question in this catalog.
func (c *Catalog) Has(key string) bool {
	_, ok := c.index[key]
	return ok
}

// Question looks up a question by key.
func (c *Catalog) Question(key string) (Question, bool) {
	q, ok := c.index[key]
	return q, ok
}

// RequiredCount is the number of questions flagged required.
func (c *Catalog) RequiredCount() int { return c.required }

// Filter drops every key that is not part of the catalog.
func (c *Catalog) Filter(answers map[string]string) map[string]string {
	out := make(map[string]string, len(answers))
	for k, v := range answers {
		if c.Has(k) {
			out[k] = v
		}
	}
	return out
}

// Fill returns a map holding every catalog key, using the stored value when
// present and "" otherwise. Unknown keys in stored are discarded.
func (c *Catalog) Fill(stored map[string]string) map[string]string {
	out := make(map[string]string, len(c.keys))
	for _, k := range c.keys {
		out[k] = stored[k]
	}
	return out
}

// AnsweredCount counts catalog questions with a non-blank answer.
func (c *Catalog) AnsweredCount(answers map[string]string) int {
	n := 0
	for _, k := range c.keys {
		if strings.TrimSpace(answers[k]) != "" {
			n++
		}
	}
	return n
}

// MissingRequired returns the keys of required questions whose answer is
// blank after trimming, in catalog order.
func (c *Catalog) MissingRequired(answers map[string]string) []string {
	var missing []string
	for _, k := range c.keys {
		if c.index[k].Required && strings.TrimSpace(answers[k]) == "" {
			missing = append(missing, k)
		}
	}
	return missing
}
