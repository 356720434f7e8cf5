package insights

import (
	"math"
	"sort"
	"strconv"

	"github.com/sakif/runquest/internal/model"
)

const (
	// BucketWidth is the width of one pace bucket in min/km.
	BucketWidth = 0.5
	// MaxPace excludes walks, hikes and paused recordings.
	MaxPace = 15.0
)

// PaceBucket counts activities whose pace falls in [Pace, Pace+BucketWidth).
type PaceBucket struct {
	Pace    float64 `json:"pace"`  // lower bound, min/km
	Label   string  `json:"label"` // "5.5"
	Count   int     `json:"count"`
	TotalKm float64 `json:"totalKm"`
}

// PaceDistribution buckets activities by average pace, fastest first.
// Activities with no distance, or a pace outside (0, MaxPace), are skipped.
func PaceDistribution(activities []model.Activity) []PaceBucket {
	byPace := make(map[float64]*PaceBucket)

	for _, a := range activities {
		if a.DistanceMeters <= 0 {
			continue
		}
		km := a.DistanceMeters / 1000
		pace := round(float64(a.MovingTimeSeconds)/60/km, 1)
		if pace <= 0 || pace >= MaxPace {
			continue
		}

		lower := math.Floor(pace/BucketWidth) * BucketWidth
		b, ok := byPace[lower]
		if !ok {
			b = &PaceBucket{Pace: lower, Label: strconv.FormatFloat(lower, 'f', 1, 64)}
			byPace[lower] = b
		}
		b.Count++
		b.TotalKm += km
	}

	buckets := make([]PaceBucket, 0, len(byPace))
	for _, b := range byPace {
		b.TotalKm = round(b.TotalKm, 1)
		buckets = append(buckets, *b)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Pace < buckets[j].Pace })
	return buckets
}
