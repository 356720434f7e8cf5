package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/sakif/runquest/internal/apperror"
	"github.com/sakif/runquest/internal/service"
)

type ActivityMirror interface {
	Sync(ctx context.Context, ownerID int64) (*service.ActivitySyncResult, error)
	List(ctx context.Context, ownerID int64, page, perPage int) (*service.ActivityPage, error)
}

// ActivityHandler exposes the local activity mirror.
type ActivityHandler struct {
	activities  ActivityMirror
	syncTimeout time.Duration
	logger      *slog.Logger
}

func NewActivityHandler(activities ActivityMirror, syncTimeout time.Duration, logger *slog.Logger) *ActivityHandler {
	return &ActivityHandler{
		activities:  activities,
		syncTimeout: syncTimeout,
		logger:      logger,
	}
}

// HandleSync pulls the most recent page of activities from Strava.
//
// HTTP: POST /api/activities/sync
// Auth: Required
//
// Inside the minimum interval this answers 429 with Retry-After.
func (h *ActivityHandler) HandleSync(w http.ResponseWriter, r *http.Request) {
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

	res, err := h.activities.Sync(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// HandleList returns one page of mirrored activities, newest first.
//
// HTTP: GET /api/activities?page=1&per_page=30
// Auth: Required
//
// Both parameters are optional. Out-of-range values are clamped by the
// service; values that are not numbers are rejected.
func (h *ActivityHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	id, ok := ownerID(w, r)
	if !ok {
		return
	}

	page, err := intParam(r, "page")
	if err != nil {
		writeError(w, err)
		return
	}
	perPage, err := intParam(r, "per_page")
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := h.activities.List(r.Context(), id, page, perPage)
	if err != nil {
		h.logger.Error("listing activities failed",
			slog.Int64("ownerID", id),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// intParam reads an optional integer query parameter; absent means 0.
func intParam(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperror.ValidationFailed(name, name+" must be an integer")
	}
	return n, nil
}
