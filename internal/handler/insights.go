package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/runquest/internal/apperror"
	"github.com/sakif/runquest/internal/insights"
	"github.com/sakif/runquest/internal/service"
)

type StatsReader interface {
	Get(ctx context.Context, ownerID int64) (*service.StatsView, error)
}

type InsightsReader interface {
	Weekly(ctx context.Context, ownerID int64, loc *time.Location) ([]insights.Week, error)
	Pace(ctx context.Context, ownerID int64) ([]insights.PaceBucket, error)
}

// InsightsHandler serves the live stats card and the two charts. Stats come
// from Strava on every call; the charts read only the activity mirror.
type InsightsHandler struct {
	stats    StatsReader
	insights InsightsReader
	logger   *slog.Logger
}

func NewInsightsHandler(stats StatsReader, in InsightsReader, logger *slog.Logger) *InsightsHandler {
	return &InsightsHandler{stats: stats, insights: in, logger: logger}
}

// HandleStats returns the athlete profile and aggregate run totals.
//
// HTTP: GET /api/stats
// Auth: Required
func (h *InsightsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	id, ok := ownerID(w, r)
	if !ok {
		return
	}

	view, err := h.stats.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleWeekly returns per-week totals for the last eight active weeks.
//
// HTTP: GET /api/insights/weekly[?tz=Europe/Berlin]
// Auth: Required
//
// tz is an IANA zone name. Without it weeks follow each activity's local
// start time as recorded by the device.
func (h *InsightsHandler) HandleWeekly(w http.ResponseWriter, r *http.Request) {
	id, ok := ownerID(w, r)
	if !ok {
		return
	}

	var loc *time.Location
	if tz := r.URL.Query().Get("tz"); tz != "" {
		var err error
		loc, err = time.LoadLocation(tz)
		if err != nil {
			writeError(w, apperror.ValidationFailed("tz", "unknown time zone "+tz))
			return
		}
	}

	weeks, err := h.insights.Weekly(r.Context(), id, loc)
	if err != nil {
		h.logger.Error("weekly insights failed",
			slog.Int64("ownerID", id),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, weeks)
}

// HandlePace returns the pace histogram.
//
// HTTP: GET /api/insights/pace
// Auth: Required
func (h *InsightsHandler) HandlePace(w http.ResponseWriter, r *http.Request) {
	id, ok := ownerID(w, r)
	if !ok {
		return
	}

	buckets, err := h.insights.Pace(r.Context(), id)
	if err != nil {
		h.logger.Error("pace insights failed",
			slog.Int64("ownerID", id),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, buckets)
}
