package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/runquest/internal/apperror"
	"github.com/sakif/runquest/internal/model"
	"github.com/sakif/runquest/internal/observability"
	"github.com/sakif/runquest/internal/repository"
	"github.com/sakif/runquest/internal/strava"
)

// MirrorStore is the storage ActivityService reads and writes.
type MirrorStore interface {
	repository.OwnerRepository
	repository.ActivityRepository
	repository.SyncRunRepository
}

type ActivitySyncResult struct {
	Synced   int       `json:"synced"`
	SyncedAt time.Time `json:"syncedAt"`
}

type ActivityPage struct {
	Activities []model.Activity `json:"activities"`
	Page       int              `json:"page"`
	PerPage    int              `json:"perPage"`
	Total      int              `json:"total"`
}

// ActivityService keeps a local mirror of the owner's most recent activities.
// Insights read the mirror so they never hit the provider.
type ActivityService struct {
	tokens      TokenSource
	api         ActivityFetcher
	store       MirrorStore
	pageSize    int
	minInterval time.Duration
	logger      *slog.Logger
	now         clock
}

// NewActivityService creates an ActivityService. pageSize is clamped to the
// provider maximum; a zero minInterval disables the fetch-frequency policy.
func NewActivityService(
	tokens TokenSource,
	api ActivityFetcher,
	store MirrorStore,
	pageSize int,
	minInterval time.Duration,
	logger *slog.Logger,
) *ActivityService {
	_, pageSize = strava.ClampPage(1, pageSize)
	return &ActivityService{
		tokens:      tokens,
		api:         api,
		store:       store,
		pageSize:    pageSize,
		minInterval: minInterval,
		logger:      logger,
		now:         time.Now,
	}
}

// Sync refreshes the owner's profile and upserts the latest page of
// activities. Unlike achievement sync, calling it again inside the minimum
// interval is rejected with ErrTooManyRequests: it is the expensive call.
func (s *ActivityService) Sync(ctx context.Context, ownerID int64) (*ActivitySyncResult, error) {
	started := s.now()

	if s.minInterval > 0 {
		last, err := s.store.LastSuccessfulRun(ctx, ownerID, model.SyncKindActivities)
		switch {
		case err == nil:
			if wait := last.FinishedAt.Add(s.minInterval).Sub(started); wait > 0 {
				return nil, apperror.TooManyRequests(
					fmt.Sprintf("activities were synced at %s; try again later", last.FinishedAt.Format(time.RFC3339)),
					wait,
				)
			}
		case !errors.Is(err, apperror.ErrNotFound):
			return nil, fmt.Errorf("service/activities: reading last run for owner %d: %w", ownerID, err)
		}
	}

	n, err := s.mirror(ctx, ownerID)

	run := &model.SyncRun{
		OwnerID:    ownerID,
		Kind:       model.SyncKindActivities,
		Status:     model.SyncSucceeded,
		StartedAt:  started,
		FinishedAt: s.now(),
		Total:      n,
		Created:    n,
	}
	if err != nil {
		run.Status, run.Total, run.Created, run.Error = model.SyncFailed, 0, 0, err.Error()
	}
	observability.RecordSync(string(run.Kind), string(run.Status), run.FinishedAt)
	if !apperror.IsAuth(err) {
		if recErr := s.store.RecordSyncRun(ctx, run); recErr != nil {
			s.logger.Warn("failed to record sync run",
				slog.Int64("ownerID", ownerID),
				slog.String("error", recErr.Error()),
			)
		}
	}

	if err != nil {
		s.logger.Error("activity sync failed",
			slog.Int64("ownerID", ownerID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	s.logger.Info("activity sync finished",
		slog.Int64("ownerID", ownerID),
		slog.Int("synced", n),
	)
	return &ActivitySyncResult{Synced: n, SyncedAt: run.FinishedAt}, nil
}

func (s *ActivityService) mirror(ctx context.Context, ownerID int64) (int, error) {
	token, err := s.tokens.GetValidToken(ctx, ownerID)
	if err != nil {
		return 0, err
	}

	athlete, err := s.api.FetchAthlete(ctx, token)
	if err != nil {
		return 0, fmt.Errorf("service/activities: fetching athlete for owner %d: %w", ownerID, err)
	}
	owner := athlete.ToOwner()
	owner.ID = ownerID
	if err := s.store.UpsertOwner(ctx, &owner); err != nil {
		return 0, fmt.Errorf("service/activities: updating owner %d: %w", ownerID, err)
	}

	remote, err := s.api.FetchActivities(ctx, token, 1, s.pageSize)
	if err != nil {
		return 0, fmt.Errorf("service/activities: fetching activities for owner %d: %w", ownerID, err)
	}

	activities := make([]model.Activity, len(remote))
	for i, a := range remote {
		activities[i] = a.ToModel(ownerID)
	}
	if err := s.store.UpsertActivities(ctx, activities); err != nil {
		return 0, fmt.Errorf("service/activities: storing activities for owner %d: %w", ownerID, err)
	}
	return len(activities), nil
}

// List pages through the mirror, newest first. page and perPage are clamped
// the same way the provider clamps them.
func (s *ActivityService) List(ctx context.Context, ownerID int64, page, perPage int) (*ActivityPage, error) {
	page, perPage = strava.ClampPage(page, perPage)

	activities, err := s.store.ListActivities(ctx, ownerID, repository.ListOptions{
		Limit:  perPage,
		Offset: (page - 1) * perPage,
	})
	if err != nil {
		return nil, fmt.Errorf("service/activities: listing activities for owner %d: %w", ownerID, err)
	}

	total, err := s.store.CountActivities(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("service/activities: counting activities for owner %d: %w", ownerID, err)
	}

	return &ActivityPage{
		Activities: activities,
		Page:       page,
		PerPage:    perPage,
		Total:      total,
	}, nil
}
