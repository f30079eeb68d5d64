// Package catalog holds the static set of banner slots known to the portal.
package catalog

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/patrickwarner/portalads/internal/models"
)

// Catalog is an immutable lookup of slots by name. A nil *Catalog behaves
// as an empty catalog.
type Catalog struct {
	slots map[string]models.Slot
}

type file struct {
	Slots []models.Slot `yaml:"slots"`
}

// New builds a catalog from slots. Duplicate or empty names are rejected.
func New(slots []models.Slot) (*Catalog, error) {
	c := &Catalog{slots: make(map[string]models.Slot, len(slots))}
	for _, s := range slots {
		if s.Name == "" {
			return nil, fmt.Errorf("slot without name")
		}
		if _, dup := c.slots[s.Name]; dup {
			return nil, fmt.Errorf("duplicate slot %q", s.Name)
		}
		if s.Capacity < 0 {
			return nil, fmt.Errorf("slot %q: negative capacity", s.Name)
		}
		scopes := make([]string, len(s.AllowedScopes))
		copy(scopes, s.AllowedScopes)
		s.AllowedScopes = scopes
		c.slots[s.Name] = s
	}
	return c, nil
}

// Load reads a YAML slot catalog from path.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read slot catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML slot catalog.
func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse slot catalog: %w", err)
	}
	return New(f.Slots)
}

// Get returns the slot with the given name.
func (c *Catalog) Get(name string) (models.Slot, bool) {
	if c == nil {
		return models.Slot{}, false
	}
	s, ok := c.slots[name]
	return s, ok
}

// Lookup returns a pointer to a copy of the named slot, or nil when unknown.
func (c *Catalog) Lookup(name string) *models.Slot {
	s, ok := c.Get(name)
	if !ok {
		return nil
	}
	return &s
}

// Capacity returns the capacity of the named slot. Unknown slots are
// unbounded (0) so that catalog drift never blocks edits.
func (c *Catalog) Capacity(name string) int {
	s, ok := c.Get(name)
	if !ok {
		return 0
	}
	return s.Capacity
}

// All returns every slot sorted by name.
func (c *Catalog) All() []models.Slot {
	if c == nil {
		return nil
	}
	out := make([]models.Slot, 0, len(c.slots))
	for _, s := range c.slots {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
