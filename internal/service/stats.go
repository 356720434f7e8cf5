package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/runquest/internal/model"
	"github.com/sakif/runquest/internal/repository"
)

// StatsView is the live profile and aggregate totals for one owner.
type StatsView struct {
	Owner     model.Owner          `json:"athlete"`
	Stats     model.AggregateStats `json:"stats"`
	FetchedAt time.Time            `json:"fetchedAt"`
}

// StatsService reads the owner's profile and totals straight from the
// provider. The profile is written back so /api/me stays current.
type StatsService struct {
	tokens TokenSource
	api    StravaAPI
	owners repository.OwnerRepository
	logger *slog.Logger
	now    clock
}

func NewStatsService(tokens TokenSource, api StravaAPI, owners repository.OwnerRepository, logger *slog.Logger) *StatsService {
	return &StatsService{
		tokens: tokens,
		api:    api,
		owners: owners,
		logger: logger,
		now:    time.Now,
	}
}

func (s *StatsService) Get(ctx context.Context, ownerID int64) (*StatsView, error) {
	token, err := s.tokens.GetValidToken(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	athlete, err := s.api.FetchAthlete(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("service/stats: fetching athlete for owner %d: %w", ownerID, err)
	}
	stats, err := s.api.FetchAggregateStats(ctx, token, ownerID)
	if err != nil {
		return nil, fmt.Errorf("service/stats: fetching stats for owner %d: %w", ownerID, err)
	}

	owner := athlete.ToOwner()
	owner.ID = ownerID
	if err := s.owners.UpsertOwner(ctx, &owner); err != nil {
		// The response is still correct; only the cached profile is stale.
		s.logger.Warn("failed to update owner profile",
			slog.Int64("ownerID", ownerID),
			slog.String("error", err.Error()),
		)
	}

	return &StatsView{Owner: owner, Stats: *stats, FetchedAt: s.now()}, nil
}
