package achievement

import (
	"github.com/sakif/runquest/internal/model"
)

// State is the evaluated status of one definition against one stats snapshot.
// It is recomputed on every call and never stored.
type State struct {
	Definition
	Unlocked     bool    `json:"unlocked"`
	Progress     float64 `json:"progress"`     // percent, always within [0, 100]
	CurrentValue float64 `json:"currentValue"` // raw metric value in the definition's unit
}

// metric extracts the value a category is measured against.
type metric func(model.AggregateStats) float64

// metrics is the closed category -> metric table. Categories missing here
// (speed, consistency) have no metric yet and always evaluate to zero.
var metrics = map[Category]metric{
	CategoryDistance: func(s model.AggregateStats) float64 {
		return s.AllTime.DistanceMeters / 1000
	},
	CategoryActivities: func(s model.AggregateStats) float64 {
		return float64(s.AllTime.Count)
	},
	CategoryElevation: func(s model.AggregateStats) float64 {
		return s.AllTime.ElevationGainMeters
	},
}

// Evaluate computes a State for every definition, in the order given.
// It is deterministic and has no side effects.
func Evaluate(stats model.AggregateStats, defs []Definition) []State {
	states := make([]State, 0, len(defs))
	for _, d := range defs {
		states = append(states, evaluateOne(stats, d))
	}
	return states
}

// EvaluateCatalog is Evaluate over every definition of c.
func EvaluateCatalog(stats model.AggregateStats, c *Catalog) []State {
	return Evaluate(stats, c.defs)
}

func evaluateOne(stats model.AggregateStats, d Definition) State {
	var current float64
	if m, ok := metrics[d.Category]; ok {
		current = m(stats)
	}

	s := State{
		Definition:   d,
		CurrentValue: current,
	}
	if d.Requirement > 0 {
		s.Unlocked = current >= d.Requirement
		s.Progress = clamp(current/d.Requirement*100, 0, 100)
	}
	return s
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// UnlockedCount returns how many states are unlocked.
func UnlockedCount(states []State) int {
	n := 0
	for _, s := range states {
		if s.Unlocked {
			n++
		}
	}
	return n
}
