// Package strava is a small client for the parts of the Strava v3 REST API
// the service reads: the athlete profile, aggregate stats and activities.
//
// WHAT THIS CLIENT DOES NOT DO:
//   - It does not refresh tokens. Callers pass a valid access token obtained
//     from the token store; an empty token fails before any request is made.
//   - It does not retry. A non-2xx answer becomes *apperror.UpstreamError and
//     the caller decides what to do with it.
//
// Requests are paced by a token-bucket limiter so a burst of syncs cannot blow
// through the provider's rate limit in one go.
package strava

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/sakif/runquest/internal/apperror"
	"github.com/sakif/runquest/internal/model"
	"github.com/sakif/runquest/internal/observability"
)

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://www.strava.com/api/v3"

// Paging limits for FetchActivities.
const (
	DefaultPerPage = 30
	MaxPerPage     = 200
)

// maxErrorBody caps how much of a failed response is kept for diagnosis.
const maxErrorBody = 4 << 10

// Client talks to the Strava API. It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another API root (tests, proxies).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRateLimit sets the request pacing. rate.Inf disables pacing.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		limit := rate.Limit(perSecond)
		if perSecond <= 0 {
			limit = rate.Inf
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(limit, burst)
	}
}

// New returns a Client for the production API with a 15s request timeout and
// pacing of 5 requests per second.
func New(logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(5), 5),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchAthlete returns the profile of the athlete the token belongs to.
func (c *Client) FetchAthlete(ctx context.Context, accessToken string) (*Athlete, error) {
	var a Athlete
	if err := c.get(ctx, "athlete", accessToken, "/athlete", nil, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// FetchStats returns the raw stats payload for athleteID.
func (c *Client) FetchStats(ctx context.Context, accessToken string, athleteID int64) (*Stats, error) {
	var s Stats
	path := "/athletes/" + strconv.FormatInt(athleteID, 10) + "/stats"
	if err := c.get(ctx, "stats", accessToken, path, nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// FetchAggregateStats returns athleteID's run totals in evaluator form.
func (c *Client) FetchAggregateStats(ctx context.Context, accessToken string, athleteID int64) (*model.AggregateStats, error) {
	s, err := c.FetchStats(ctx, accessToken, athleteID)
	if err != nil {
		return nil, err
	}
	stats := s.ToModel()
	return &stats, nil
}

// FetchActivities returns one page of the athlete's activities, newest first.
// page < 1 is treated as 1; perPage <= 0 becomes DefaultPerPage and values
// above MaxPerPage are clamped. Only the requested page is fetched.
func (c *Client) FetchActivities(ctx context.Context, accessToken string, page, perPage int) ([]Activity, error) {
	page, perPage = ClampPage(page, perPage)

	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))

	var out []Activity
	if err := c.get(ctx, "activities", accessToken, "/athlete/activities", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FetchActivity returns a single activity by id.
func (c *Client) FetchActivity(ctx context.Context, accessToken string, id int64) (*Activity, error) {
	var a Activity
	path := "/activities/" + strconv.FormatInt(id, 10)
	if err := c.get(ctx, "activity", accessToken, path, nil, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// ClampPage applies the paging rules shared by the client and the mirror.
func ClampPage(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	switch {
	case perPage <= 0:
		perPage = DefaultPerPage
	case perPage > MaxPerPage:
		perPage = MaxPerPage
	}
	return page, perPage
}

func (c *Client) get(ctx context.Context, op, accessToken, path string, query url.Values, out any) error {
	if accessToken == "" {
		return apperror.Unauthenticated(apperror.CodeMissingToken, "no access token available")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("strava: %s: waiting for rate limiter: %w", op, err)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("strava: %s: building request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		observability.RecordUpstream(op, 0)
		return fmt.Errorf("strava: %s: %w", op, err)
	}
	defer resp.Body.Close()

	observability.RecordUpstream(op, resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Warn("strava request failed",
			slog.String("op", op),
			slog.Int("status", resp.StatusCode),
		)
		return &apperror.UpstreamError{
			Op:     "strava " + op,
			Status: resp.StatusCode,
			Body:   string(body),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("strava: %s: decoding response: %w", op, err)
	}
	return nil
}
