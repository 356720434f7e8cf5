// Package handler contains the HTTP handlers for RunQuest.
//
// HANDLER RESPONSIBILITIES:
// 1. Parse the incoming HTTP request (query params, cookies, context values)
// 2. Call the service layer
// 3. Write the HTTP response (status code, headers, body)
//
// Handlers hold no business logic. Each one depends on a small interface
// declared next to it, so tests can drive them with a fake instead of a
// database and a Strava account.
package handler

import (
	"context"
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/sakif/runquest/internal/achievement"
	"github.com/sakif/runquest/internal/auth"
	"github.com/sakif/runquest/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

// OwnerLookup resolves the signed-in owner for the page header.
type OwnerLookup interface {
	Me(ctx context.Context, ownerID int64) (*model.Owner, error)
}

// DashboardHandler serves the single HTML page. All data on it is loaded by
// the page script from the JSON API; the server only renders the shell and
// the catalog, which never changes at runtime.
//
// WHY EMBED?
// The templates are compiled into the binary with go:embed, so the server
// has no working-directory assumptions and `runquest serve` works from
// anywhere.
type DashboardHandler struct {
	templates *template.Template
	owners    OwnerLookup
	catalog   *achievement.Catalog
	logger    *slog.Logger
}

// NewDashboardHandler parses the embedded templates once at startup.
//
// base.html defines the page frame with a {{template "content" .}}
// placeholder; dashboard.html fills it with {{define "content"}}.
func NewDashboardHandler(owners OwnerLookup, catalog *achievement.Catalog, logger *slog.Logger) (*DashboardHandler, error) {
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"avatar": func(o *model.Owner) string { return o.Avatar() },
		"name":   func(o *model.Owner) string { return o.DisplayName() },
	}).ParseFS(templateFS, "templates/base.html", "templates/dashboard.html")
	if err != nil {
		return nil, err
	}

	return &DashboardHandler{
		templates: tmpl,
		owners:    owners,
		catalog:   catalog,
		logger:    logger,
	}, nil
}

type dashboardData struct {
	Title   string
	Owner   *model.Owner // nil when signed out
	Catalog []achievement.Definition
	Auth    string // "denied" after the owner declined on Strava
}

// HandleDashboard renders the page.
//
// HTTP: GET /
// Auth: optional (OptionalAuth middleware)
func (h *DashboardHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	data := dashboardData{
		Title:   "RunQuest",
		Catalog: h.catalog.Definitions(),
		Auth:    r.URL.Query().Get("auth"),
	}

	if id, ok := auth.OwnerIDFromContext(r.Context()); ok {
		owner, err := h.owners.Me(r.Context(), id)
		if err != nil {
			// A stale cookie renders the signed-out page; it is not an error page.
			h.logger.Debug("dashboard: session owner unavailable",
				slog.Int64("ownerID", id),
				slog.String("error", err.Error()),
			)
		} else {
			data.Owner = owner
		}
	}

	// Set content type header BEFORE writing the body
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	if err := h.templates.ExecuteTemplate(w, "base", data); err != nil {
		h.logger.Error("failed to render template",
			slog.String("error", err.Error()),
		)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
