package strava

import (
	"time"

	"github.com/sakif/runquest/internal/model"
)

// Athlete is the subset of GET /athlete the service uses.
type Athlete struct {
	ID            int64  `json:"id"`
	Username      string `json:"username"`
	Firstname     string `json:"firstname"`
	Lastname      string `json:"lastname"`
	City          string `json:"city"`
	State         string `json:"state"`
	Country       string `json:"country"`
	Sex           string `json:"sex"`
	ProfileMedium string `json:"profile_medium"`
	Profile       string `json:"profile"`
}

// ToOwner maps the athlete onto the local owner row.
func (a Athlete) ToOwner() model.Owner {
	return model.Owner{
		ID:            a.ID,
		Username:      a.Username,
		Firstname:     a.Firstname,
		Lastname:      a.Lastname,
		ProfileMedium: a.ProfileMedium,
		Profile:       a.Profile,
		City:          a.City,
		Country:       a.Country,
	}
}

// RunTotals is one totals block of GET /athletes/{id}/stats.
// Distances and elevation are in meters, times in seconds.
type RunTotals struct {
	Count         int64   `json:"count"`
	Distance      float64 `json:"distance"`
	MovingTime    int64   `json:"moving_time"`
	ElapsedTime   int64   `json:"elapsed_time"`
	ElevationGain float64 `json:"elevation_gain"`
}

func (t RunTotals) toModel() model.Totals {
	return model.Totals{
		Count:               t.Count,
		DistanceMeters:      t.Distance,
		ElevationGainMeters: t.ElevationGain,
		MovingTimeSeconds:   t.MovingTime,
		ElapsedTimeSeconds:  t.ElapsedTime,
	}
}

// Stats is the raw stats payload. Only run totals are read; ride and swim
// totals exist upstream but no achievement measures them.
type Stats struct {
	RecentRunTotals RunTotals `json:"recent_run_totals"`
	AllRunTotals    RunTotals `json:"all_run_totals"`
	YTDRunTotals    RunTotals `json:"ytd_run_totals"`
}

// ToModel converts the payload into the evaluator's input.
func (s Stats) ToModel() model.AggregateStats {
	return model.AggregateStats{
		AllTime:    s.AllRunTotals.toModel(),
		YearToDate: s.YTDRunTotals.toModel(),
		Recent:     s.RecentRunTotals.toModel(),
	}
}

// Activity is a summary activity as listed by GET /athlete/activities.
type Activity struct {
	ID                 int64     `json:"id"`
	Name               string    `json:"name"`
	Distance           float64   `json:"distance"`
	MovingTime         int64     `json:"moving_time"`
	ElapsedTime        int64     `json:"elapsed_time"`
	TotalElevationGain float64   `json:"total_elevation_gain"`
	Type               string    `json:"type"`
	SportType          string    `json:"sport_type"`
	StartDate          time.Time `json:"start_date"`
	StartDateLocal     time.Time `json:"start_date_local"`
	Timezone           string    `json:"timezone"`
	AverageSpeed       float64   `json:"average_speed"`
	MaxSpeed           float64   `json:"max_speed"`
	AverageHeartrate   *float64  `json:"average_heartrate,omitempty"`
	MaxHeartrate       *float64  `json:"max_heartrate,omitempty"`
	Athlete            struct {
		ID int64 `json:"id"`
	} `json:"athlete"`
}

// ToModel maps the activity onto a mirror row owned by ownerID.
func (a Activity) ToModel(ownerID int64) model.Activity {
	return model.Activity{
		ID:                 a.ID,
		OwnerID:            ownerID,
		Name:               a.Name,
		Type:               a.Type,
		SportType:          a.SportType,
		DistanceMeters:     a.Distance,
		MovingTimeSeconds:  a.MovingTime,
		ElapsedTimeSeconds: a.ElapsedTime,
		ElevationGain:      a.TotalElevationGain,
		StartDate:          a.StartDate,
		StartDateLocal:     a.StartDateLocal,
		AverageSpeed:       a.AverageSpeed,
		MaxSpeed:           a.MaxSpeed,
		AverageHeartrate:   a.AverageHeartrate,
		MaxHeartrate:       a.MaxHeartrate,
	}
}
