// Package achievement holds the achievement catalog and the pure evaluator
// that turns aggregate statistics into per-achievement unlock/progress state.
//
// Nothing in this package performs I/O. The catalog is built once per process
// and shared read-only, so no locking is needed anywhere.
package achievement

import (
	"fmt"
)

// Category selects which aggregate metric an achievement is measured against.
type Category string

const (
	CategoryDistance    Category = "distance"
	CategoryActivities  Category = "activities"
	CategoryElevation   Category = "elevation"
	CategorySpeed       Category = "speed"
	CategoryConsistency Category = "consistency"
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryDistance, CategoryActivities, CategoryElevation, CategorySpeed, CategoryConsistency:
		return true
	}
	return false
}

// Definition describes one achievement.
//
// IDs are the join key against persisted unlock records. Once shipped, an id
// must never be renamed or removed; new achievements are appended only.
type Definition struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Icon        string   `json:"icon"`
	Category    Category `json:"category"`
	Requirement float64  `json:"requirement"`
	Unit        string   `json:"unit"`
}

// Catalog is an ordered, immutable set of definitions.
type Catalog struct {
	defs []Definition
	byID map[string]int
}

// NewCatalog validates defs and returns a Catalog preserving their order.
// It rejects empty or duplicate ids, unknown categories and non-positive
// requirements.
func NewCatalog(defs []Definition) (*Catalog, error) {
	c := &Catalog{
		defs: make([]Definition, len(defs)),
		byID: make(map[string]int, len(defs)),
	}
	copy(c.defs, defs)

	for i, d := range c.defs {
		if d.ID == "" {
			return nil, fmt.Errorf("achievement: definition %d has an empty id", i)
		}
		if _, dup := c.byID[d.ID]; dup {
			return nil, fmt.Errorf("achievement: duplicate id %q", d.ID)
		}
		if !d.Category.Valid() {
			return nil, fmt.Errorf("achievement: %q has unknown category %q", d.ID, d.Category)
		}
		if !(d.Requirement > 0) {
			return nil, fmt.Errorf("achievement: %q requirement must be positive, got %v", d.ID, d.Requirement)
		}
		c.byID[d.ID] = i
	}
	return c, nil
}

// MustCatalog is NewCatalog for package-level literals; it panics on error.
func MustCatalog(defs []Definition) *Catalog {
	c, err := NewCatalog(defs)
	if err != nil {
		panic(err)
	}
	return c
}

// Definitions returns a copy of the definitions in catalog order.
func (c *Catalog) Definitions() []Definition {
	out := make([]Definition, len(c.defs))
	copy(out, c.defs)
	return out
}

// Lookup returns the definition with the given id.
func (c *Catalog) Lookup(id string) (Definition, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Definition{}, false
	}
	return c.defs[i], true
}

// Len returns the number of definitions.
func (c *Catalog) Len() int {
	return len(c.defs)
}

var defaultCatalog = MustCatalog([]Definition{
	// Distance
	{ID: "first_step", Name: "First Step", Description: "Complete your first run", Icon: "👟", Category: CategoryDistance, Requirement: 1, Unit: "km"},
	{ID: "getting_started", Name: "Getting Started", Description: "Run a total of 10 km", Icon: "🏃", Category: CategoryDistance, Requirement: 10, Unit: "km"},
	{ID: "half_century", Name: "Half Century", Description: "Run a total of 50 km", Icon: "🎯", Category: CategoryDistance, Requirement: 50, Unit: "km"},
	{ID: "century", Name: "Century", Description: "Run a total of 100 km", Icon: "💯", Category: CategoryDistance, Requirement: 100, Unit: "km"},
	{ID: "marathon_master", Name: "Marathon Master", Description: "Run a total of 200 km", Icon: "🏅", Category: CategoryDistance, Requirement: 200, Unit: "km"},
	{ID: "ultra_runner", Name: "Ultra Runner", Description: "Run a total of 500 km", Icon: "⭐", Category: CategoryDistance, Requirement: 500, Unit: "km"},
	{ID: "distance_legend", Name: "Distance Legend", Description: "Run a total of 1000 km", Icon: "👑", Category: CategoryDistance, Requirement: 1000, Unit: "km"},

	// Activity count
	{ID: "first_run", Name: "First Run", Description: "Log your first activity", Icon: "🌟", Category: CategoryActivities, Requirement: 1, Unit: "runs"},
	{ID: "committed", Name: "Committed", Description: "Complete 10 runs", Icon: "💪", Category: CategoryActivities, Requirement: 10, Unit: "runs"},
	{ID: "dedicated", Name: "Dedicated", Description: "Complete 25 runs", Icon: "🔥", Category: CategoryActivities, Requirement: 25, Unit: "runs"},
	{ID: "fifty_club", Name: "Fifty Club", Description: "Complete 50 runs", Icon: "🎖️", Category: CategoryActivities, Requirement: 50, Unit: "runs"},
	{ID: "century_club", Name: "Century Club", Description: "Complete 100 runs", Icon: "🏆", Category: CategoryActivities, Requirement: 100, Unit: "runs"},

	// Elevation
	{ID: "hill_seeker", Name: "Hill Seeker", Description: "Gain 100m total elevation", Icon: "⛰️", Category: CategoryElevation, Requirement: 100, Unit: "m"},
	{ID: "mountain_climber", Name: "Mountain Climber", Description: "Gain 500m total elevation", Icon: "🏔️", Category: CategoryElevation, Requirement: 500, Unit: "m"},
	{ID: "peak_performer", Name: "Peak Performer", Description: "Gain 1000m total elevation", Icon: "🗻", Category: CategoryElevation, Requirement: 1000, Unit: "m"},
	{ID: "everest_climber", Name: "Everest Climber", Description: "Gain 8849m total elevation (Mount Everest height)", Icon: "🏔️", Category: CategoryElevation, Requirement: 8849, Unit: "m"},
})

// Default returns the built-in catalog. The same instance is returned on
// every call.
func Default() *Catalog {
	return defaultCatalog
}
