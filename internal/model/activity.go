package model

import "time"

// Activity is a local mirror of one upstream activity.
// The ID is the provider's activity id, so re-syncing upserts instead of duplicating.
type Activity struct {
	ID                 int64     `json:"id"`
	OwnerID            int64     `json:"ownerId"`
	Name               string    `json:"name"`
	Type               string    `json:"type"`
	SportType          string    `json:"sportType"`
	DistanceMeters     float64   `json:"distance"`
	MovingTimeSeconds  int64     `json:"movingTime"`
	ElapsedTimeSeconds int64     `json:"elapsedTime"`
	ElevationGain      float64   `json:"totalElevationGain"`
	StartDate          time.Time `json:"startDate"`
	StartDateLocal     time.Time `json:"startDateLocal"`
	AverageSpeed       float64   `json:"averageSpeed"`
	MaxSpeed           float64   `json:"maxSpeed"`
	AverageHeartrate   *float64  `json:"averageHeartrate,omitempty"`
	MaxHeartrate       *float64  `json:"maxHeartrate,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}
