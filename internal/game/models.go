/*
Package game
File: models.go
Description:
    Defines the data structures of the upgrade economy.
    GeneratorKind maps directly to the "generators" list of 'moai.yaml',
    Snapshot maps directly to the JSON returned by the API and pushed over
    the WebSocket hub.

    No logic is performed here; this file is strictly for type definitions.
*/

package game

// GeneratorKind is a catalog entry for a purchasable producer.
// Catalog entries are immutable once the catalog has been built.
type GeneratorKind struct {
	ID       string  `yaml:"id" json:"id"`               // Unique ID (e.g., "cursor")
	Name     string  `yaml:"name" json:"name"`           // Display name, opaque to the engine
	BaseCost float64 `yaml:"base_cost" json:"base_cost"` // Price of the first unit
	Rate     float64 `yaml:"rate" json:"rate"`           // Resource per second per owned unit
}

// GeneratorView is the per-kind slice of a Snapshot.
type GeneratorView struct {
	GeneratorKind
	Owned      int     `json:"owned"`      // Units currently owned
	Price      float64 `json:"price"`      // Cost of the next unit
	Affordable bool    `json:"affordable"` // Balance covers Price right now
}

// Snapshot is a detached copy of an economy State.
// It shares nothing with the State it came from and is safe to pass between goroutines.
type Snapshot struct {
	Balance        float64         `json:"balance"`
	ProductionRate float64         `json:"production_rate"`
	Clicks         int64           `json:"clicks"`     // Successful manual actions so far
	Generators     []GeneratorView `json:"generators"` // Catalog order
}

// Generator returns the view for the given kind, if present.
func (s Snapshot) Generator(id string) (GeneratorView, bool) {
	for _, g := range s.Generators {
		if g.ID == id {
			return g, true
		}
	}
	return GeneratorView{}, false
}
