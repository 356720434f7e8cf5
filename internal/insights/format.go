package insights

import "fmt"

// FormatDuration renders seconds as h:mm:ss, or m:ss under an hour.
func FormatDuration(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// FormatPace renders the average pace over a distance as m:ss per km.
// A zero distance has no pace and renders as "-".
func FormatPace(meters float64, seconds int64) string {
	if meters <= 0 {
		return "-"
	}
	perKm := int64(float64(seconds) / (meters / 1000))
	return fmt.Sprintf("%d:%02d", perKm/60, perKm%60)
}
