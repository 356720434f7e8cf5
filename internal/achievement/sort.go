package achievement

import "sort"

// SortByPriority returns a copy of states ordered for display: unlocked
// before locked, then higher progress first, then lower requirement first.
// Equal elements keep their input order. The input slice is not modified.
func SortByPriority(states []State) []State {
	out := make([]State, len(states))
	copy(out, states)

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Unlocked != b.Unlocked {
			return a.Unlocked
		}
		if a.Progress != b.Progress {
			return a.Progress > b.Progress
		}
		return a.Requirement < b.Requirement
	})
	return out
}
