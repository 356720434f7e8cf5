package model

import "time"

// SyncKind distinguishes the two synchronisation operations.
type SyncKind string

const (
	SyncKindAchievements SyncKind = "achievements"
	SyncKindActivities   SyncKind = "activities"
)

// SyncStatus is the terminal state of a sync run.
type SyncStatus string

const (
	SyncSucceeded SyncStatus = "succeeded"
	SyncFailed    SyncStatus = "failed"
)

// SyncRun records one completed sync attempt. The most recent successful run
// per (owner, kind) drives the minimum-interval policy.
type SyncRun struct {
	ID         string     `json:"id"`
	OwnerID    int64      `json:"ownerId"`
	Kind       SyncKind   `json:"kind"`
	Status     SyncStatus `json:"status"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt time.Time  `json:"finishedAt"`
	Total      int        `json:"total"`
	Created    int        `json:"created"`
	Error      string     `json:"error,omitempty"`
}
