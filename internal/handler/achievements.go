package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/runquest/internal/achievement"
	"github.com/sakif/runquest/internal/service"
)

type AchievementLister interface {
	List(ctx context.Context, ownerID int64, sortByPriority bool) (*service.AchievementsView, error)
}

type AchievementSyncer interface {
	Sync(ctx context.Context, ownerID int64) (*service.SyncResult, error)
}

// AchievementHandler serves the catalog, the owner's evaluated achievements
// and the sync endpoint that grows the unlock ledger.
type AchievementHandler struct {
	achievements AchievementLister
	syncer       AchievementSyncer
	catalog      *achievement.Catalog
	syncTimeout  time.Duration
	logger       *slog.Logger
}

// NewAchievementHandler creates an AchievementHandler. syncTimeout bounds one
// sync request end to end; zero leaves only the server write timeout.
func NewAchievementHandler(
	achievements AchievementLister,
	syncer AchievementSyncer,
	catalog *achievement.Catalog,
	syncTimeout time.Duration,
	logger *slog.Logger,
) *AchievementHandler {
	return &AchievementHandler{
		achievements: achievements,
		syncer:       syncer,
		catalog:      catalog,
		syncTimeout:  syncTimeout,
		logger:       logger,
	}
}

// HandleCatalog lists every achievement definition.
//
// HTTP: GET /api/catalog
// Auth: none
func (h *AchievementHandler) HandleCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.catalog.Definitions())
}

// HandleList evaluates the catalog against the owner's live stats.
//
// HTTP: GET /api/achievements[?sort=priority]
// Auth: Required
//
// Without ?sort the achievements come back in catalog order.
func (h *AchievementHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	id, ok := ownerID(w, r)
	if !ok {
		return
	}

	sortByPriority := r.URL.Query().Get("sort") == "priority"

	view, err := h.achievements.List(r.Context(), id, sortByPriority)
	if err != nil {
		h.logger.Warn("listing achievements failed",
			slog.Int64("ownerID", id),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

// HandleSync records every newly unlocked achievement.
//
// HTTP: POST /api/achievements/sync
// Auth: Required
//
// RESPONSE:
//
//	{"totalUnlocked":3,"newlyUnlocked":1,"unlocked":["first_5k"],"syncedAt":"..."}
//
// A sync inside the minimum interval answers 200 with "skipped": true and
// "newlyUnlocked": 0.
func (h *AchievementHandler) HandleSync(w http.ResponseWriter, r *http.Request) {
	id, ok := ownerID(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	if h.syncTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.syncTimeout)
		defer cancel()
	}

	res, err := h.syncer.Sync(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}
