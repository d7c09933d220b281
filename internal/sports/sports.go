// Package sports is the catalog of sports a host can pick from. Sports that
// are listed but not enabled are shown as "coming soon".
package sports

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

type Sport struct {
	Key           string `yaml:"key"`
	Name          string `yaml:"name"`
	Enabled       bool   `yaml:"enabled"`
	Periods       int    `yaml:"periods"`
	PeriodMinutes int    `yaml:"period_minutes"`
}

type Catalog struct {
	Sports []Sport `yaml:"sports"`
}

// Default returns the built-in catalog.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads a catalog from path, or the built-in one when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sports catalog: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse sports catalog: %w", err)
	}

	seen := make(map[string]bool, len(c.Sports))
	for i := range c.Sports {
		s := &c.Sports[i]
		s.Key = strings.ToLower(strings.TrimSpace(s.Key))
		if s.Key == "" {
			return nil, fmt.Errorf("sports catalog: entry %d has no key", i)
		}
		if seen[s.Key] {
			return nil, fmt.Errorf("sports catalog: duplicate key %q", s.Key)
		}
		seen[s.Key] = true
		if s.Name == "" {
			s.Name = s.Key
		}
	}
	return &c, nil
}

// Get returns the sport with key, or nil.
func (c *Catalog) Get(key string) *Sport {
	for i := range c.Sports {
		if c.Sports[i].Key == key {
			return &c.Sports[i]
		}
	}
	return nil
}

// Playable reports whether a game can be created for key.
func (c *Catalog) Playable(key string) bool {
	s := c.Get(key)
	return s != nil && s.Enabled
}
