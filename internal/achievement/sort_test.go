package achievement

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func ids(states []State) []string {
	out := make([]string, len(states))
	for i, s := range states {
		out[i] = s.ID
	}
	return out
}

func TestSortByPriority(t *testing.T) {
	states := []State{
		{Definition: Definition{ID: "locked_low", Requirement: 50}, Progress: 10},
		{Definition: Definition{ID: "unlocked_big", Requirement: 100}, Unlocked: true, Progress: 100},
		{Definition: Definition{ID: "locked_high", Requirement: 10}, Progress: 80},
		{Definition: Definition{ID: "unlocked_small", Requirement: 1}, Unlocked: true, Progress: 100},
		{Definition: Definition{ID: "locked_tie_big", Requirement: 200}, Progress: 10},
	}

	got := SortByPriority(states)

	assert.Equal(t, []string{
		"unlocked_small",
		"unlocked_big",
		"locked_high",
		"locked_low",
		"locked_tie_big",
	}, ids(got))
}

func TestSortByPriority_DoesNotMutateInput(t *testing.T) {
	states := EvaluateCatalog(statsOf(1200, 1, 0), Default())
	before := ids(states)

	_ = SortByPriority(states)

	assert.Equal(t, before, ids(states))
}

func TestSortByPriority_CatalogScenario(t *testing.T) {
	sorted := SortByPriority(EvaluateCatalog(statsOf(1200, 1, 0), Default()))

	// Both unlocked achievements have progress 100 and requirement 1; the
	// stable sort keeps catalog order between them.
	assert.Equal(t, "first_step", sorted[0].ID)
	assert.Equal(t, "first_run", sorted[1].ID)
	// getting_started at 12% is the most advanced locked achievement.
	assert.Equal(t, "getting_started", sorted[2].ID)
}
