/*
Package game
File: state.go
Description:
    Holds the authoritative numeric state of one play session: the resource
    balance, per-kind ownership and next-unit price, and the derived
    production rate.

    State exposes read accessors only. It is mutated exclusively by the
    operations in economy.go so the invariants below cannot be bypassed:
      - balance >= 0
      - owned[k] >= 0 for every kind
      - price[k] >= baseCost[k], never decreasing
      - productionRate == sum(owned[k] * rate[k]), recomputed on every change to owned

    State is not safe for concurrent use. The driver must serialize calls.
*/

package game

// State is the single mutable economy instance owned by a driver.
type State struct {
	catalog *Catalog

	balance float64
	owned   map[string]int
	price   map[string]float64
	rate    float64 // cached; see recomputeRate
	clicks  int64
}

// NewState creates a fresh State for the catalog:
// zero balance, nothing owned, every price at its base cost.
func NewState(c *Catalog) *State {
	st := &State{
		catalog: c,
		owned:   make(map[string]int, c.Len()),
		price:   make(map[string]float64, c.Len()),
	}
	for _, k := range c.kinds {
		st.owned[k.ID] = 0
		st.price[k.ID] = k.BaseCost
	}
	return st
}

// Catalog returns the read-only catalog this State was built from.
func (s *State) Catalog() *Catalog { return s.catalog }

// Balance returns the current spendable resource.
func (s *State) Balance() float64 { return s.balance }

// ProductionRate returns resource generated per second across all owned generators.
func (s *State) ProductionRate() float64 { return s.rate }

// Clicks returns how many manual actions have been applied.
func (s *State) Clicks() int64 { return s.clicks }

// Owned returns the number of units owned of the given kind (0 if unknown).
func (s *State) Owned(id string) int { return s.owned[id] }

// Price returns the cost of the next unit of the given kind.
func (s *State) Price(id string) (float64, bool) {
	p, ok := s.price[id]
	return p, ok
}

// CanAfford reports whether a purchase of id would currently succeed.
// It has no side effects.
func (s *State) CanAfford(id string) bool {
	p, ok := s.price[id]
	return ok && s.balance >= p
}

// Snapshot returns a detached copy of the State.
func (s *State) Snapshot() Snapshot {
	snap := Snapshot{
		Balance:        s.balance,
		ProductionRate: s.rate,
		Clicks:         s.clicks,
		Generators:     make([]GeneratorView, 0, s.catalog.Len()),
	}
	for _, k := range s.catalog.kinds {
		price := s.price[k.ID]
		snap.Generators = append(snap.Generators, GeneratorView{
			GeneratorKind: k,
			Owned:         s.owned[k.ID],
			Price:         price,
			Affordable:    s.balance >= price,
		})
	}
	return snap
}

// recomputeRate rebuilds the production rate from scratch in catalog order.
// It never adjusts incrementally, so the cached value cannot drift.
func (s *State) recomputeRate() {
	var total float64
	for _, k := range s.catalog.kinds {
		total += float64(s.owned[k.ID]) * k.Rate
	}
	s.rate = total
}
