package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/runquest/internal/achievement"
	"github.com/sakif/runquest/internal/repository"
)

// AchievementView is one evaluated achievement plus, when the owner has
// earned it, the time it was first recorded.
type AchievementView struct {
	achievement.State
	UnlockedAt *time.Time `json:"unlockedAt,omitempty"`
}

type AchievementsView struct {
	Achievements  []AchievementView `json:"achievements"`
	TotalUnlocked int               `json:"totalUnlocked"`
	Total         int               `json:"total"`
}

// AchievementService answers "where does this owner stand?" without writing
// anything. Sync is what grows the ledger.
type AchievementService struct {
	tokens  TokenSource
	stats   StatsFetcher
	unlocks repository.UnlockRepository
	catalog *achievement.Catalog
	logger  *slog.Logger
}

func NewAchievementService(
	tokens TokenSource,
	stats StatsFetcher,
	unlocks repository.UnlockRepository,
	catalog *achievement.Catalog,
	logger *slog.Logger,
) *AchievementService {
	return &AchievementService{
		tokens:  tokens,
		stats:   stats,
		unlocks: unlocks,
		catalog: catalog,
		logger:  logger,
	}
}

// List evaluates the catalog against live stats and merges in the ledger.
//
// An achievement in the ledger is reported as unlocked even if the current
// metric has fallen below its threshold: an unlock, once recorded, is kept.
// Progress still reflects the current metric.
func (s *AchievementService) List(ctx context.Context, ownerID int64, sortByPriority bool) (*AchievementsView, error) {
	token, err := s.tokens.GetValidToken(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	stats, err := s.stats.FetchAggregateStats(ctx, token, ownerID)
	if err != nil {
		return nil, fmt.Errorf("service/achievements: fetching stats for owner %d: %w", ownerID, err)
	}

	records, err := s.unlocks.ListUnlocks(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("service/achievements: listing unlocks for owner %d: %w", ownerID, err)
	}
	unlockedAt := make(map[string]time.Time, len(records))
	for _, r := range records {
		unlockedAt[r.AchievementID] = r.UnlockedAt
	}

	states := achievement.EvaluateCatalog(*stats, s.catalog)
	for i := range states {
		if _, ok := unlockedAt[states[i].ID]; ok {
			states[i].Unlocked = true
		}
	}
	if sortByPriority {
		states = achievement.SortByPriority(states)
	}

	view := &AchievementsView{
		Achievements:  make([]AchievementView, len(states)),
		TotalUnlocked: achievement.UnlockedCount(states),
		Total:         len(states),
	}
	for i, st := range states {
		view.Achievements[i] = AchievementView{State: st}
		if at, ok := unlockedAt[st.ID]; ok {
			view.Achievements[i].UnlockedAt = &at
		}
	}
	return view, nil
}
