// Package source acquires the source documents of a run, from a remote
// base URL or from a local data directory.
package source

import (
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/sarpras-dashboard/sarpras-sync/hub"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Source describes one dataset.
type Source struct {
	// Name identifies the source in logs and summaries
	Name string `yaml:"name" validate:"required"`

	// Jenjang is the education level of every school in the dataset
	Jenjang string `yaml:"jenjang" validate:"required,oneof=PAUD SD SMP PKBM"`

	// File is the dataset path relative to the base URL and the data dir
	File string `yaml:"file" validate:"required"`

	// URL overrides the base URL + File location
	URL string `yaml:"url,omitempty" validate:"omitempty,url"`

	// Format forces a parser; detected from the file name otherwise
	Format string `yaml:"format,omitempty"`

	// Sheet selects the worksheet of a workbook source
	Sheet string `yaml:"sheet,omitempty"`
}

// Level returns the parsed jenjang.
func (s Source) Level() hub.Jenjang {
	return hub.ParseJenjang(s.Jenjang)
}

// Catalog lists the sources of a run.
type Catalog struct {
	BaseURL string   `yaml:"base_url" validate:"omitempty,url"`
	Sources []Source `yaml:"sources" validate:"required,min=1,dive"`
}

var validate = validator.New()

// LoadCatalog reads a catalog file, or the embedded default when path is
// empty.
func LoadCatalog(path string) (*Catalog, error) {
	data := defaultCatalog
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading catalog: %w", err)
		}
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	for i := range c.Sources {
		if j := hub.ParseJenjang(c.Sources[i].Jenjang); j != hub.JenjangUnknown {
			c.Sources[i].Jenjang = string(j)
		}
	}
	if err := validate.Struct(&c); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}
	seen := make(map[string]bool)
	for _, s := range c.Sources {
		if seen[s.Name] {
			return nil, fmt.Errorf("invalid catalog: duplicate source %q", s.Name)
		}
		seen[s.Name] = true
	}
	return &c, nil
}

// WithBaseURL returns a copy of c using base when it is non-empty.
func (c *Catalog) WithBaseURL(base string) *Catalog {
	out := *c
	if base != "" {
		out.BaseURL = base
	}
	return &out
}

// Select returns the sources matching any of names, by source name or
// jenjang, case-insensitively. No names selects every source.
func (c *Catalog) Select(names []string) ([]Source, error) {
	if len(names) == 0 {
		return c.Sources, nil
	}
	var out []Source
	for _, name := range names {
		found := false
		for _, s := range c.Sources {
			if strings.EqualFold(s.Name, name) || strings.EqualFold(s.Jenjang, name) {
				out = append(out, s)
				found = true
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown source %q", name)
		}
	}
	return out, nil
}

// URLFor returns the remote location of s.
func (c *Catalog) URLFor(s Source) (string, error) {
	if s.URL != "" {
		return s.URL, nil
	}
	if c.BaseURL == "" {
		return "", fmt.Errorf("source %s: no url and no base URL configured", s.Name)
	}
	return url.JoinPath(c.BaseURL, s.File)
}
