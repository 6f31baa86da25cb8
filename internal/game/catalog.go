/*
Package game
File: catalog.go
Description:
    The fixed, ordered list of generator kinds supplied once at startup.
    Order is presentation-only; lookups are by ID.
*/

package game

import (
	"fmt"
	"math"
	"strings"
)

// Catalog is an immutable, validated list of GeneratorKind entries.
// A single Catalog may be shared read-only by any number of States.
type Catalog struct {
	kinds []GeneratorKind
	index map[string]int
}

// NewCatalog validates and copies the given kinds.
// IDs must be unique and non-empty; BaseCost and Rate must be positive and finite.
func NewCatalog(kinds []GeneratorKind) (*Catalog, error) {
	if len(kinds) == 0 {
		return nil, fmt.Errorf("catalog: no generator kinds")
	}

	c := &Catalog{
		kinds: make([]GeneratorKind, len(kinds)),
		index: make(map[string]int, len(kinds)),
	}
	for i, k := range kinds {
		k.ID = strings.TrimSpace(k.ID)
		if k.ID == "" {
			return nil, fmt.Errorf("catalog: entry %d has empty id", i)
		}
		if _, dup := c.index[k.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate id %q", k.ID)
		}
		if !positive(k.BaseCost) {
			return nil, fmt.Errorf("catalog: %q base_cost must be positive, got %v", k.ID, k.BaseCost)
		}
		if !positive(k.Rate) {
			return nil, fmt.Errorf("catalog: %q rate must be positive, got %v", k.ID, k.Rate)
		}
		c.kinds[i] = k
		c.index[k.ID] = i
	}
	return c, nil
}

// MustCatalog is NewCatalog for static tables; it panics on invalid input.
func MustCatalog(kinds []GeneratorKind) *Catalog {
	c, err := NewCatalog(kinds)
	if err != nil {
		panic(err)
	}
	return c
}

// Lookup returns the kind with the given ID.
func (c *Catalog) Lookup(id string) (GeneratorKind, bool) {
	i, ok := c.index[id]
	if !ok {
		return GeneratorKind{}, false
	}
	return c.kinds[i], true
}

// Kinds returns a copy of the catalog in its configured order.
func (c *Catalog) Kinds() []GeneratorKind {
	out := make([]GeneratorKind, len(c.kinds))
	copy(out, c.kinds)
	return out
}

// IDs returns the kind IDs in catalog order.
func (c *Catalog) IDs() []string {
	ids := make([]string, len(c.kinds))
	for i, k := range c.kinds {
		ids[i] = k.ID
	}
	return ids
}

// Len reports the number of kinds.
func (c *Catalog) Len() int { return len(c.kinds) }

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 1)
}
