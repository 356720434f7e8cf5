package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sakif/runquest/internal/achievement"
	"github.com/sakif/runquest/internal/apperror"
	"github.com/sakif/runquest/internal/model"
	"github.com/sakif/runquest/internal/observability"
	"github.com/sakif/runquest/internal/repository"
)

// LedgerStore is the storage SyncService writes to.
type LedgerStore interface {
	repository.UnlockRepository
	repository.SyncRunRepository
}

// SyncResult reports one achievements sync.
type SyncResult struct {
	TotalUnlocked int       `json:"totalUnlocked"` // unlocked by the current stats
	NewlyUnlocked int       `json:"newlyUnlocked"` // records created by this call
	Unlocked      []string  `json:"unlocked"`      // ids of the records created by this call
	SyncedAt      time.Time `json:"syncedAt"`

	// Skipped is true when the previous successful sync is younger than the
	// minimum interval. Nothing was fetched; the counts repeat that sync's
	// totals with NewlyUnlocked = 0.
	Skipped    bool       `json:"skipped,omitempty"`
	NextSyncAt *time.Time `json:"nextSyncAt,omitempty"`
}

// SyncService reconciles upstream statistics with the unlock ledger.
//
// ALGORITHM:
//  1. get a valid access token (may refresh, see TokenStore), then apply the
//     minimum-interval policy
//  2. fetch aggregate stats
//  3. evaluate the whole catalog against them
//  4. diff against the owner's existing unlock records
//  5. create a record for every unlocked achievement not yet in the ledger
//
// INVARIANTS:
//   - Idempotent: with unchanged stats a second sync creates nothing.
//   - Monotonic: records are never updated or deleted, even if a metric drops.
//   - Unique: (owner, achievement) is enforced by the database. Losing an
//     insert race is reported by CreateUnlock as created == false and is
//     treated as "already unlocked". Every other storage error fails the sync.
type SyncService struct {
	tokens      TokenSource
	stats       StatsFetcher
	ledger      LedgerStore
	catalog     *achievement.Catalog
	minInterval time.Duration
	runTimeout  time.Duration
	logger      *slog.Logger
	now         clock
	group       singleflight.Group
}

// defaultRunTimeout bounds a shared run when no timeout is configured.
const defaultRunTimeout = 2 * time.Minute

// NewSyncService creates a SyncService. A zero minInterval disables the
// fetch-frequency policy. runTimeout bounds one shared run; zero means
// defaultRunTimeout.
func NewSyncService(
	tokens TokenSource,
	stats StatsFetcher,
	ledger LedgerStore,
	catalog *achievement.Catalog,
	minInterval time.Duration,
	runTimeout time.Duration,
	logger *slog.Logger,
) *SyncService {
	if runTimeout <= 0 {
		runTimeout = defaultRunTimeout
	}
	return &SyncService{
		tokens:      tokens,
		stats:       stats,
		ledger:      ledger,
		catalog:     catalog,
		minInterval: minInterval,
		runTimeout:  runTimeout,
		logger:      logger,
		now:         time.Now,
	}
}

// Sync runs one reconciliation for ownerID.
//
// SHARED RUNS:
// Concurrent calls for the same owner share a single run. The run is
// detached from any one caller's context and bounded by runTimeout, so a
// caller that disconnects does not fail the others. Each caller still stops
// waiting when its own ctx is done.
//
// Only the caller whose call started the run reports the records it created.
// Callers that joined get the same totals with NewlyUnlocked = 0: the
// records were created by another call.
func (s *SyncService) Sync(ctx context.Context, ownerID int64) (*SyncResult, error) {
	ran := false
	ch := s.group.DoChan(strconv.FormatInt(ownerID, 10), func() (any, error) {
		ran = true
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.runTimeout)
		defer cancel()
		return s.sync(runCtx, ownerID)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		// ran was written by the run before it delivered r.
		res := *r.Val.(*SyncResult)
		if ran {
			res.Unlocked = append([]string(nil), res.Unlocked...)
		} else {
			res.NewlyUnlocked = 0
			res.Unlocked = []string{}
		}
		return &res, nil
	}
}

func (s *SyncService) sync(ctx context.Context, ownerID int64) (*SyncResult, error) {
	started := s.now()

	// The session is checked before the interval policy: an owner who signed
	// out gets an auth error, not a cached result.
	token, err := s.tokens.GetValidToken(ctx, ownerID)
	if err != nil {
		return nil, s.fail(ctx, ownerID, started, err)
	}

	if skipped, err := s.recentRun(ctx, ownerID, started); err != nil || skipped != nil {
		return skipped, err
	}

	res, err := s.reconcile(ctx, ownerID, token, started)
	if err != nil {
		return nil, s.fail(ctx, ownerID, started, err)
	}
	s.record(ctx, ownerID, started, res, nil)

	s.logger.Info("achievement sync finished",
		slog.Int64("ownerID", ownerID),
		slog.Int("totalUnlocked", res.TotalUnlocked),
		slog.Int("newlyUnlocked", res.NewlyUnlocked),
	)
	return res, nil
}

func (s *SyncService) fail(ctx context.Context, ownerID int64, started time.Time, err error) error {
	s.record(ctx, ownerID, started, nil, err)
	s.logger.Error("achievement sync failed",
		slog.Int64("ownerID", ownerID),
		slog.String("error", err.Error()),
	)
	return err
}

// recentRun returns a skipped result when the last successful sync is inside
// the minimum interval.
func (s *SyncService) recentRun(ctx context.Context, ownerID int64, now time.Time) (*SyncResult, error) {
	if s.minInterval <= 0 {
		return nil, nil
	}

	last, err := s.ledger.LastSuccessfulRun(ctx, ownerID, model.SyncKindAchievements)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("service/sync: reading last run for owner %d: %w", ownerID, err)
	}

	next := last.FinishedAt.Add(s.minInterval)
	if !now.Before(next) {
		return nil, nil
	}

	s.logger.Debug("achievement sync skipped",
		slog.Int64("ownerID", ownerID),
		slog.Time("nextSyncAt", next),
	)
	return &SyncResult{
		TotalUnlocked: last.Total,
		NewlyUnlocked: 0,
		Unlocked:      []string{},
		SyncedAt:      last.FinishedAt,
		Skipped:       true,
		NextSyncAt:    &next,
	}, nil
}

func (s *SyncService) reconcile(ctx context.Context, ownerID int64, token string, now time.Time) (*SyncResult, error) {
	stats, err := s.stats.FetchAggregateStats(ctx, token, ownerID)
	if err != nil {
		return nil, fmt.Errorf("service/sync: fetching stats for owner %d: %w", ownerID, err)
	}

	states := achievement.EvaluateCatalog(*stats, s.catalog)

	existing, err := s.ledger.ListUnlocks(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("service/sync: listing unlocks for owner %d: %w", ownerID, err)
	}
	have := make(map[string]bool, len(existing))
	for _, u := range existing {
		have[u.AchievementID] = true
	}

	created := []string{}
	for _, st := range states {
		if !st.Unlocked || have[st.ID] {
			continue
		}

		ok, err := s.ledger.CreateUnlock(ctx, &model.UnlockRecord{
			OwnerID:       ownerID,
			AchievementID: st.ID,
			Name:          st.Name,
			Description:   st.Description,
			UnlockedAt:    now,
		})
		if errors.Is(err, apperror.ErrConflict) || (err == nil && !ok) {
			s.logger.Debug("unlock already recorded by a concurrent sync",
				slog.Int64("ownerID", ownerID),
				slog.String("achievementID", st.ID),
			)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("service/sync: recording unlock %s for owner %d: %w", st.ID, ownerID, err)
		}
		created = append(created, st.ID)
	}

	return &SyncResult{
		TotalUnlocked: achievement.UnlockedCount(states),
		NewlyUnlocked: len(created),
		Unlocked:      created,
		SyncedAt:      now,
	}, nil
}

// record stores the run and updates metrics. A failure to store the run is
// logged but does not fail a sync whose unlocks are already committed.
func (s *SyncService) record(ctx context.Context, ownerID int64, started time.Time, res *SyncResult, syncErr error) {
	run := &model.SyncRun{
		OwnerID:    ownerID,
		Kind:       model.SyncKindAchievements,
		Status:     model.SyncSucceeded,
		StartedAt:  started,
		FinishedAt: s.now(),
	}
	if syncErr != nil {
		run.Status = model.SyncFailed
		run.Error = syncErr.Error()
	} else {
		run.Total = res.TotalUnlocked
		run.Created = res.NewlyUnlocked
		observability.RecordUnlocks(res.NewlyUnlocked)
	}

	observability.RecordSync(string(run.Kind), string(run.Status), run.FinishedAt)

	// An auth failure happens before anything is fetched; there is nothing
	// worth keeping in the run history.
	if apperror.IsAuth(syncErr) {
		return
	}
	if err := s.ledger.RecordSyncRun(ctx, run); err != nil {
		s.logger.Warn("failed to record sync run",
			slog.Int64("ownerID", ownerID),
			slog.String("error", err.Error()),
		)
	}
}
