package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sakif/runquest/internal/apperror"
	"github.com/sakif/runquest/internal/auth"
	"github.com/sakif/runquest/internal/model"
	"github.com/sakif/runquest/internal/repository"
	"github.com/sakif/runquest/internal/strava"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// errDB stands in for any storage failure that is not a uniqueness race.
var errDB = errors.New("database is locked")

// fakeStore is an in-memory repository.Store. Fields ending in Err make the
// matching method fail; lostRace makes CreateUnlock behave as if another
// sync inserted the row first.
type fakeStore struct {
	mu         sync.Mutex
	owners     map[int64]model.Owner
	creds      map[int64]model.Credential
	unlocks    map[int64][]model.UnlockRecord
	activities map[int64]map[int64]model.Activity
	runs       []model.SyncRun

	lostRace map[string]bool
	conflict map[string]bool

	saveCredErr     error
	createUnlockErr error
	recordRunErr    error

	saveCredCalls     int
	createUnlockCalls int
}

var _ repository.Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		owners:     make(map[int64]model.Owner),
		creds:      make(map[int64]model.Credential),
		unlocks:    make(map[int64][]model.UnlockRecord),
		activities: make(map[int64]map[int64]model.Activity),
		lostRace:   make(map[string]bool),
		conflict:   make(map[string]bool),
	}
}

func (f *fakeStore) UpsertOwner(ctx context.Context, o *model.Owner) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.owners[o.ID] = *o
	return nil
}

func (f *fakeStore) GetOwner(ctx context.Context, id int64) (*model.Owner, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.owners[id]
	if !ok {
		return nil, apperror.NotFound("owner", "x")
	}
	return &o, nil
}

func (f *fakeStore) GetCredential(ctx context.Context, ownerID int64) (*model.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.creds[ownerID]
	if !ok {
		return nil, apperror.NotFound("credential", "x")
	}
	return &c, nil
}

func (f *fakeStore) SaveCredential(ctx context.Context, c model.Credential) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saveCredCalls++
	if f.saveCredErr != nil {
		return f.saveCredErr
	}
	f.creds[c.OwnerID] = c
	return nil
}

func (f *fakeStore) DeleteCredential(ctx context.Context, ownerID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.creds, ownerID)
	return nil
}

func (f *fakeStore) ListUnlocks(ctx context.Context, ownerID int64) ([]model.UnlockRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.UnlockRecord(nil), f.unlocks[ownerID]...), nil
}

func (f *fakeStore) CreateUnlock(ctx context.Context, rec *model.UnlockRecord) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createUnlockCalls++
	if f.createUnlockErr != nil {
		return false, f.createUnlockErr
	}
	if f.conflict[rec.AchievementID] {
		return false, apperror.Conflict("unlock", rec.AchievementID)
	}
	if f.lostRace[rec.AchievementID] {
		return false, nil
	}
	for _, u := range f.unlocks[rec.OwnerID] {
		if u.AchievementID == rec.AchievementID {
			return false, nil
		}
	}
	f.unlocks[rec.OwnerID] = append(f.unlocks[rec.OwnerID], *rec)
	return true, nil
}

func (f *fakeStore) UpsertActivities(ctx context.Context, acts []model.Activity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range acts {
		if f.activities[a.OwnerID] == nil {
			f.activities[a.OwnerID] = make(map[int64]model.Activity)
		}
		f.activities[a.OwnerID][a.ID] = a
	}
	return nil
}

func (f *fakeStore) sortedActivities(ownerID int64) []model.Activity {
	out := make([]model.Activity, 0, len(f.activities[ownerID]))
	for _, a := range f.activities[ownerID] {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out
}

func (f *fakeStore) ListActivities(ctx context.Context, ownerID int64, opts repository.ListOptions) ([]model.Activity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := f.sortedActivities(ownerID)
	// newest first
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	if opts.Offset >= len(all) {
		return []model.Activity{}, nil
	}
	end := opts.Offset + opts.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[opts.Offset:end], nil
}

func (f *fakeStore) CountActivities(ctx context.Context, ownerID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.activities[ownerID]), nil
}

func (f *fakeStore) ActivitiesSince(ctx context.Context, ownerID int64, since time.Time) ([]model.Activity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Activity
	for _, a := range f.sortedActivities(ownerID) {
		if !a.StartDate.Before(since) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) RecordSyncRun(ctx context.Context, run *model.SyncRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recordRunErr != nil {
		return f.recordRunErr
	}
	f.runs = append(f.runs, *run)
	return nil
}

func (f *fakeStore) LastSuccessfulRun(ctx context.Context, ownerID int64, kind model.SyncKind) (*model.SyncRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var last *model.SyncRun
	for i := range f.runs {
		r := f.runs[i]
		if r.OwnerID == ownerID && r.Kind == kind && r.Status == model.SyncSucceeded {
			if last == nil || r.FinishedAt.After(last.FinishedAt) {
				last = &r
			}
		}
	}
	if last == nil {
		return nil, apperror.NotFound("sync run", string(kind))
	}
	return last, nil
}

func (f *fakeStore) Ping(ctx context.Context) error { return nil }
func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) unlockIDs(ownerID int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for _, u := range f.unlocks[ownerID] {
		ids = append(ids, u.AchievementID)
	}
	return ids
}

// fakeRefresher counts refresh grants. When release is non-nil every call
// blocks on it (or on ctx), which lets a test pile up concurrent callers;
// entered, when set, is signalled as a call starts.
type fakeRefresher struct {
	grant   *auth.TokenGrant
	err     error
	entered chan struct{}
	release chan struct{}
	calls   atomic.Int32
	lastRT  atomic.Value
}

func (f *fakeRefresher) Refresh(ctx context.Context, refreshToken string) (*auth.TokenGrant, error) {
	f.calls.Add(1)
	f.lastRT.Store(refreshToken)
	signal(f.entered)
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	g := *f.grant
	return &g, nil
}

// fakeStrava records which token each call used. statsEntered and
// statsRelease work like fakeRefresher's entered and release.
type fakeStrava struct {
	mu           sync.Mutex
	stats        model.AggregateStats
	statsErr     error
	statsEntered chan struct{}
	statsRelease chan struct{}
	athlete    strava.Athlete
	activities []strava.Activity
	fetchErr   error

	statsCalls    int
	athleteCalls  int
	activityCalls int
	tokens        []string
	perPage       int
}

func (f *fakeStrava) FetchAggregateStats(ctx context.Context, token string, athleteID int64) (*model.AggregateStats, error) {
	signal(f.statsEntered)
	if f.statsRelease != nil {
		select {
		case <-f.statsRelease:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.statsCalls++
	f.tokens = append(f.tokens, token)
	if f.statsErr != nil {
		return nil, f.statsErr
	}
	s := f.stats
	return &s, nil
}

func (f *fakeStrava) FetchAthlete(ctx context.Context, token string) (*strava.Athlete, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.athleteCalls++
	f.tokens = append(f.tokens, token)
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	a := f.athlete
	return &a, nil
}

func (f *fakeStrava) FetchActivities(ctx context.Context, token string, page, perPage int) ([]strava.Activity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activityCalls++
	f.perPage = perPage
	f.tokens = append(f.tokens, token)
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.activities, nil
}

// signal does a non-blocking send on ch; a nil ch is ignored.
func signal(ch chan struct{}) {
	if ch == nil {
		return
	}
	select {
	case ch <- struct{}{}:
	default:
	}
}

// fixedClock returns a clock frozen at t.
func fixedClock(t time.Time) clock {
	return func() time.Time { return t }
}

var testNow = time.Date(2026, time.March, 14, 9, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// validCredential expires an hour after testNow.
func validCredential(ownerID int64) model.Credential {
	return model.Credential{
		OwnerID:      ownerID,
		AccessToken:  "access-valid",
		RefreshToken: "refresh-1",
		ExpiresAt:    testNow.Unix() + 3600,
	}
}

// expiredCredential expired one second before testNow.
func expiredCredential(ownerID int64) model.Credential {
	c := validCredential(ownerID)
	c.AccessToken = "access-expired"
	c.ExpiresAt = testNow.Unix() - 1
	return c
}

func newTestTokenStore(t *testing.T, store *fakeStore, refresher *fakeRefresher) *TokenStore {
	t.Helper()
	ts := NewTokenStore(store, refresher, testLogger())
	ts.now = fixedClock(testNow)
	return ts
}

// statsOf builds an all-time snapshot.
func statsOf(distanceMeters float64, count int64, elevation float64) model.AggregateStats {
	return model.AggregateStats{
		AllTime: model.Totals{
			Count:               count,
			DistanceMeters:      distanceMeters,
			ElevationGainMeters: elevation,
		},
	}
}
