// Package insights derives chart data from mirrored activities.
//
// Everything here is a pure function of its inputs: no storage, no clock.
// Callers choose the activity window and pass it in.
package insights

import (
	"math"
	"sort"
	"time"

	"github.com/sakif/runquest/internal/model"
)

// WeeksShown is how many of the most recent weeks Weekly returns.
const WeeksShown = 8

// Week aggregates every activity that started in one Sunday-to-Saturday week.
type Week struct {
	Start           time.Time `json:"start"` // Sunday 00:00
	Label           string    `json:"label"` // "Mar 1"
	DistanceKm      float64   `json:"distanceKm"`
	Activities      int       `json:"activities"`
	ElevationMeters float64   `json:"elevation"`
	MovingMinutes   float64   `json:"movingMinutes"`
}

// Weekly groups activities by the week they started in and returns the last
// WeeksShown weeks that have at least one activity, oldest first.
//
// With a nil loc the activity's local start time decides the week, which is
// what the athlete saw on their watch. Otherwise StartDate is converted to loc.
func Weekly(activities []model.Activity, loc *time.Location) []Week {
	byStart := make(map[time.Time]*Week)

	for _, a := range activities {
		start := weekStart(startTime(a, loc))
		w, ok := byStart[start]
		if !ok {
			w = &Week{Start: start, Label: start.Format("Jan 2")}
			byStart[start] = w
		}
		w.DistanceKm += a.DistanceMeters / 1000
		w.Activities++
		w.ElevationMeters += a.ElevationGain
		w.MovingMinutes += float64(a.MovingTimeSeconds) / 60
	}

	weeks := make([]Week, 0, len(byStart))
	for _, w := range byStart {
		w.DistanceKm = round(w.DistanceKm, 1)
		w.ElevationMeters = round(w.ElevationMeters, 0)
		w.MovingMinutes = round(w.MovingMinutes, 0)
		weeks = append(weeks, *w)
	}
	sort.Slice(weeks, func(i, j int) bool { return weeks[i].Start.Before(weeks[j].Start) })

	if len(weeks) > WeeksShown {
		weeks = weeks[len(weeks)-WeeksShown:]
	}
	return weeks
}

func startTime(a model.Activity, loc *time.Location) time.Time {
	if loc == nil {
		return a.StartDateLocal
	}
	return a.StartDate.In(loc)
}

// weekStart truncates t to the preceding Sunday at midnight in t's location.
func weekStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d-int(t.Weekday()), 0, 0, 0, 0, t.Location())
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
