package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sakif/runquest/internal/insights"
	"github.com/sakif/runquest/internal/repository"
)

// InsightsService computes chart data from the activity mirror only.
type InsightsService struct {
	activities repository.ActivityRepository
	now        clock
}

func NewInsightsService(activities repository.ActivityRepository) *InsightsService {
	return &InsightsService{activities: activities, now: time.Now}
}

// Weekly returns up to the last insights.WeeksShown weeks of training. loc
// nil groups by the athlete's local start time.
func (s *InsightsService) Weekly(ctx context.Context, ownerID int64, loc *time.Location) ([]insights.Week, error) {
	// One extra week of margin covers the partial current week and any
	// offset between UTC and the athlete's local time.
	since := s.now().AddDate(0, 0, -7*(insights.WeeksShown+1))

	activities, err := s.activities.ActivitiesSince(ctx, ownerID, since)
	if err != nil {
		return nil, fmt.Errorf("service/insights: loading activities for owner %d: %w", ownerID, err)
	}
	return insights.Weekly(activities, loc), nil
}

// Pace returns the pace distribution over every mirrored activity.
func (s *InsightsService) Pace(ctx context.Context, ownerID int64) ([]insights.PaceBucket, error) {
	activities, err := s.activities.ActivitiesSince(ctx, ownerID, time.Unix(0, 0))
	if err != nil {
		return nil, fmt.Errorf("service/insights: loading activities for owner %d: %w", ownerID, err)
	}
	return insights.PaceDistribution(activities), nil
}
