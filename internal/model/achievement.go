package model

import "time"

// Totals is one block of aggregate run totals as reported upstream.
type Totals struct {
	Count               int64   `json:"count"`
	DistanceMeters      float64 `json:"distance"`
	ElevationGainMeters float64 `json:"elevationGain"`
	MovingTimeSeconds   int64   `json:"movingTime"`
	ElapsedTimeSeconds  int64   `json:"elapsedTime"`
}

// AggregateStats is the per-owner snapshot the achievement evaluator reads.
// It is owned by the upstream provider and never persisted here.
type AggregateStats struct {
	AllTime    Totals `json:"allTime"`
	YearToDate Totals `json:"yearToDate"`
	Recent     Totals `json:"recent"` // last four weeks
}

// UnlockRecord is the durable proof that an owner earned an achievement.
//
// INVARIANT: (OwnerID, AchievementID) is unique. Rows are created at most once
// and are never updated or deleted, even if the underlying metric later drops.
type UnlockRecord struct {
	ID            string    `json:"id"`
	OwnerID       int64     `json:"ownerId"`
	AchievementID string    `json:"achievementId"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	UnlockedAt    time.Time `json:"unlockedAt"`
}
