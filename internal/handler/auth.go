package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/rs/xid"

	"github.com/sakif/runquest/internal/auth"
	"github.com/sakif/runquest/internal/model"
	"github.com/sakif/runquest/internal/service"
)

const stateCookie = "oauth_state"

// Authenticator is the slice of service.AuthService the auth routes use.
type Authenticator interface {
	LoginURL(state string) string
	CompleteLogin(ctx context.Context, code, scope string) (*service.AuthResult, error)
	Logout(ctx context.Context, ownerID int64) error
	Me(ctx context.Context, ownerID int64) (*model.Owner, error)
}

// AuthHandler manages the Strava OAuth login flow and the session cookie.
//
// HANDLER RESPONSIBILITIES:
//   - HandleStravaLogin    → redirect the browser to Strava's authorization page
//   - HandleStravaCallback → receive the code, complete the login, set the cookie
//   - HandleLogout         → forget the stored credential and clear the cookie
//   - HandleMe             → return the signed-in owner's profile
type AuthHandler struct {
	auth          Authenticator
	secureCookies bool
	logger        *slog.Logger
}

// NewAuthHandler creates an AuthHandler. secureCookies sets the Secure flag
// on every cookie it writes; turn it on whenever the site is served over HTTPS.
func NewAuthHandler(a Authenticator, secureCookies bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		auth:          a,
		secureCookies: secureCookies,
		logger:        logger,
	}
}

// HandleStravaLogin redirects the owner to Strava's authorization page.
//
// HTTP: GET /auth/strava/login
//
// CSRF PROTECTION VIA STATE:
// A random state string goes both into a short-lived cookie and into the
// authorize URL. Strava echoes it back on the callback, and the callback
// refuses to continue unless the two match. That proves the callback was
// started by this browser on this site.
func (h *AuthHandler) HandleStravaLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10 minutes
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.auth.LoginURL(state), http.StatusTemporaryRedirect)
}

// HandleStravaCallback completes the OAuth login flow.
//
// HTTP: GET /auth/strava/callback?code=xxx&state=yyy&scope=read,...
//
// FLOW:
//  1. Validate the state parameter (CSRF check)
//  2. Bail out to the dashboard if the owner declined
//  3. CompleteLogin: exchange the code, upsert owner, store credential, issue session
//  4. Set the session cookie and redirect home
func (h *AuthHandler) HandleStravaCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	// --- Step 1: Validate CSRF state ---
	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" {
		h.logger.Warn("auth callback: missing state cookie")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}
	if q.Get("state") != cookie.Value {
		h.logger.Warn("auth callback: state mismatch")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}

	// The state cookie is single-use.
	http.SetCookie(w, &http.Cookie{
		Name:   stateCookie,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	// --- Step 2: Did the owner decline? ---
	if errParam := q.Get("error"); errParam != "" {
		h.logger.Info("auth callback: owner denied authorization",
			slog.String("error", errParam),
		)
		http.Redirect(w, r, "/?auth=denied", http.StatusSeeOther)
		return
	}

	// --- Step 3: Complete the login ---
	res, err := h.auth.CompleteLogin(r.Context(), q.Get("code"), q.Get("scope"))
	if err != nil {
		h.logger.Error("auth callback: login failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	// --- Step 4: Session cookie, then home ---
	auth.SetSessionCookie(w, res.Session, h.secureCookies)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleLogout signs the owner out.
//
// HTTP: POST /auth/logout
// Auth: optional. Without a valid session there is nothing stored to revoke,
// but the cookie is still cleared.
//
// WHY POST AND NOT GET?
// Logout changes state. A GET could be triggered by a cross-site image tag or
// a browser prefetch.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if id, ok := auth.OwnerIDFromContext(r.Context()); ok {
		if err := h.auth.Logout(r.Context(), id); err != nil {
			h.logger.Error("logout failed",
				slog.Int64("ownerID", id),
				slog.String("error", err.Error()),
			)
			writeError(w, err)
			return
		}
	}

	auth.ClearSessionCookie(w, h.secureCookies)

	// The dashboard posts a plain form; send browsers back home.
	if r.Header.Get("Accept") == "application/json" {
		writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleMe returns the signed-in owner's profile.
//
// HTTP: GET /api/me
// Auth: Required
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	id, ok := ownerID(w, r)
	if !ok {
		return
	}

	owner, err := h.auth.Me(r.Context(), id)
	if err != nil {
		h.logger.Warn("me: owner lookup failed",
			slog.Int64("ownerID", id),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, owner)
}
