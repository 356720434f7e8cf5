package achievement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/runquest/internal/model"
)

func statsOf(distanceMeters float64, count int64, elevation float64) model.AggregateStats {
	return model.AggregateStats{
		AllTime: model.Totals{
			Count:               count,
			DistanceMeters:      distanceMeters,
			ElevationGainMeters: elevation,
		},
	}
}

func stateByID(t *testing.T, states []State, id string) State {
	t.Helper()
	for _, s := range states {
		if s.ID == id {
			return s
		}
	}
	t.Fatalf("no state with id %q", id)
	return State{}
}

// =========================================================================
// SCENARIOS
// =========================================================================

func TestEvaluate_FirstRun(t *testing.T) {
	states := EvaluateCatalog(statsOf(1200, 1, 0), Default())

	firstStep := stateByID(t, states, "first_step")
	assert.True(t, firstStep.Unlocked)
	assert.Equal(t, 100.0, firstStep.Progress)
	assert.InDelta(t, 1.2, firstStep.CurrentValue, 1e-9)

	gettingStarted := stateByID(t, states, "getting_started")
	assert.False(t, gettingStarted.Unlocked)
	assert.InDelta(t, 12.0, gettingStarted.Progress, 1e-9)

	firstRun := stateByID(t, states, "first_run")
	assert.True(t, firstRun.Unlocked)

	hill := stateByID(t, states, "hill_seeker")
	assert.False(t, hill.Unlocked)
	assert.Equal(t, 0.0, hill.Progress)
}

func TestEvaluate_ExactThresholdsUnlock(t *testing.T) {
	states := EvaluateCatalog(statsOf(100_000, 100, 500), Default())

	century := stateByID(t, states, "century")
	assert.True(t, century.Unlocked, "currentValue == requirement must unlock")
	assert.Equal(t, 100.0, century.CurrentValue)
	assert.Equal(t, 100.0, century.Progress)

	assert.True(t, stateByID(t, states, "century_club").Unlocked)
	assert.True(t, stateByID(t, states, "mountain_climber").Unlocked)

	everest := stateByID(t, states, "everest_climber")
	assert.False(t, everest.Unlocked)
	assert.InDelta(t, 5.65, everest.Progress, 0.01)

	assert.False(t, stateByID(t, states, "marathon_master").Unlocked)
}

func TestEvaluate_JustBelowThresholdStaysLocked(t *testing.T) {
	states := EvaluateCatalog(statsOf(99_999, 99, 499.9), Default())

	assert.False(t, stateByID(t, states, "century").Unlocked)
	assert.False(t, stateByID(t, states, "century_club").Unlocked)
	assert.False(t, stateByID(t, states, "mountain_climber").Unlocked)
}

// =========================================================================
// PROPERTIES
// =========================================================================

func TestEvaluate_PreservesCatalogOrder(t *testing.T) {
	defs := Default().Definitions()
	states := Evaluate(statsOf(5000, 3, 20), defs)

	require.Len(t, states, len(defs))
	for i := range defs {
		assert.Equal(t, defs[i].ID, states[i].ID)
	}
}

func TestEvaluate_Deterministic(t *testing.T) {
	stats := statsOf(123_456.7, 42, 876.5)

	first := EvaluateCatalog(stats, Default())
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, EvaluateCatalog(stats, Default()))
	}
}

func TestEvaluate_ProgressClamped(t *testing.T) {
	tests := []struct {
		name  string
		stats model.AggregateStats
	}{
		{"zero", statsOf(0, 0, 0)},
		{"far beyond every threshold", statsOf(10_000_000, 10_000, 100_000)},
		{"negative upstream values", statsOf(-5000, -3, -100)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, s := range EvaluateCatalog(tt.stats, Default()) {
				assert.GreaterOrEqual(t, s.Progress, 0.0, s.ID)
				assert.LessOrEqual(t, s.Progress, 100.0, s.ID)
			}
		})
	}
}

func TestEvaluate_NegativeValuesNeverUnlock(t *testing.T) {
	states := EvaluateCatalog(statsOf(-5000, -3, -100), Default())
	assert.Equal(t, 0, UnlockedCount(states))
}

func TestEvaluate_CategoryUsesItsOwnMetric(t *testing.T) {
	// Large distance but no activities and no elevation: only distance unlocks.
	states := EvaluateCatalog(statsOf(2_000_000, 0, 0), Default())

	for _, s := range states {
		switch s.Category {
		case CategoryDistance:
			assert.True(t, s.Unlocked, s.ID)
		default:
			assert.False(t, s.Unlocked, s.ID)
		}
	}
}

func TestEvaluate_CategoryWithoutMetric(t *testing.T) {
	defs := []Definition{
		{ID: "fast", Name: "Fast", Category: CategorySpeed, Requirement: 5, Unit: "m/s"},
		{ID: "streak", Name: "Streak", Category: CategoryConsistency, Requirement: 7, Unit: "days"},
	}

	states := Evaluate(statsOf(1e9, 1e6, 1e6), defs)
	for _, s := range states {
		assert.False(t, s.Unlocked, s.ID)
		assert.Equal(t, 0.0, s.Progress, s.ID)
		assert.Equal(t, 0.0, s.CurrentValue, s.ID)
	}
}

func TestEvaluate_UsesAllTimeNotYearToDate(t *testing.T) {
	stats := model.AggregateStats{
		AllTime:    model.Totals{Count: 0},
		YearToDate: model.Totals{Count: 500, DistanceMeters: 1e7},
	}
	assert.Equal(t, 0, UnlockedCount(EvaluateCatalog(stats, Default())))
}

func TestUnlockedCount(t *testing.T) {
	states := EvaluateCatalog(statsOf(1200, 1, 0), Default())
	// first_step + first_run
	assert.Equal(t, 2, UnlockedCount(states))
}
