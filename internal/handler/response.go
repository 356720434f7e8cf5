package handler

// JSON OUT, ERRORS OUT:
// Every API handler ends in one of two calls: writeJSON for a result, or
// writeError for anything that went wrong. writeError is the one place that
// decides which HTTP status a service error becomes, so the services never
// import net/http.
//
// ERROR BODY:
//   {"error": "unauthorized", "code": "refresh_failed", "message": "..."}
//
// "error" is the coarse class the dashboard script switches on. "code" is the
// finer reason when the service set one; on 401s, refresh_failed and
// no_session send the user back through the Strava connect flow.

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/sakif/runquest/internal/apperror"
	"github.com/sakif/runquest/internal/auth"
)

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error   string `json:"error"`          // Machine-readable error type (e.g., "not_found")
	Code    string `json:"code,omitempty"` // Finer reason, when the service set one
	Message string `json:"message"`        // Human-readable description
}

// writeJSON encodes data as the response body. Headers (including any
// Retry-After set by the caller) must be in place before this runs.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError turns a service error into a status code and an ErrorResponse.
//
// ERROR MAPPING:
//
//	ErrUnauthenticated  → 401 (+ reason code)
//	*UpstreamError      → 502, the provider's status goes in the message
//	ErrTooManyRequests  → 429 + Retry-After
//	ErrValidation       → 400
//	ErrNotFound         → 404
//	ErrForbidden        → 403
//	ErrConflict         → 409
//	anything else       → 500 with a generic message
//
// errors.As / errors.Is walk the whole wrap chain, so a service may wrap the
// error with fmt.Errorf("...: %w", err) and the mapping still applies.
func writeError(w http.ResponseWriter, err error) {
	var upstream *apperror.UpstreamError
	if errors.As(err, &upstream) {
		writeJSON(w, http.StatusBadGateway, ErrorResponse{
			Error:   "upstream_error",
			Message: fmt.Sprintf("Strava returned status %d", upstream.Status),
		})
		return
	}

	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		errorType := "internal_error"
		message := appErr.Message

		switch {
		case errors.Is(err, apperror.ErrUnauthenticated):
			status = http.StatusUnauthorized // 401
			errorType = "unauthorized"
		case errors.Is(err, apperror.ErrTooManyRequests):
			status = http.StatusTooManyRequests // 429
			errorType = "too_many_requests"
			w.Header().Set("Retry-After", retryAfterSeconds(appErr))
		case errors.Is(err, apperror.ErrValidation):
			status = http.StatusBadRequest // 400
			errorType = "validation_error"
		case errors.Is(err, apperror.ErrNotFound):
			status = http.StatusNotFound // 404
			errorType = "not_found"
		case errors.Is(err, apperror.ErrForbidden):
			status = http.StatusForbidden // 403
			errorType = "forbidden"
		case errors.Is(err, apperror.ErrConflict):
			status = http.StatusConflict // 409
			errorType = "conflict"
		default:
			message = "An internal error occurred"
		}

		writeJSON(w, status, ErrorResponse{
			Error:   errorType,
			Code:    appErr.Code,
			Message: message,
		})
		return
	}

	// Unknown error (a database failure, usually). Never echo it: it may
	// contain SQL or file paths.
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}

// retryAfterSeconds rounds up so a client that waits exactly that long is
// never early.
func retryAfterSeconds(e *apperror.AppError) string {
	secs := int(math.Ceil(e.RetryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

// ownerID reads the authenticated owner set by auth.RequireAuth. Routes that
// call it are always mounted behind that middleware; the false branch answers
// 401 anyway rather than panicking on a wiring mistake.
func ownerID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := auth.OwnerIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthenticated(apperror.CodeNoSession, "sign in with Strava to continue"))
		return 0, false
	}
	return id, true
}
