package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sakif/runquest/internal/apperror"
	"github.com/sakif/runquest/internal/auth"
)

// =========================================================================
// GetValidToken TESTS
// =========================================================================

func TestGetValidToken_NoCredential(t *testing.T) {
	store := newFakeStore()
	refresher := &fakeRefresher{}
	ts := newTestTokenStore(t, store, refresher)

	_, err := ts.GetValidToken(context.Background(), 1)

	var appErr *apperror.AppError
	if !errors.As(err, &appErr) || appErr.Code != apperror.CodeNoSession {
		t.Fatalf("GetValidToken() error = %v, want no_session auth error", err)
	}
	if refresher.calls.Load() != 0 {
		t.Errorf("refresh calls = %d, want 0", refresher.calls.Load())
	}
}

func TestGetValidToken_ValidTokenSkipsRefresh(t *testing.T) {
	store := newFakeStore()
	store.creds[1] = validCredential(1)
	refresher := &fakeRefresher{}
	ts := newTestTokenStore(t, store, refresher)

	got, err := ts.GetValidToken(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetValidToken() error = %v", err)
	}
	if got != "access-valid" {
		t.Errorf("token = %q, want access-valid", got)
	}
	if refresher.calls.Load() != 0 {
		t.Errorf("refresh calls = %d, want 0", refresher.calls.Load())
	}
}

func TestGetValidToken_ExpiryEqualToNowRefreshes(t *testing.T) {
	store := newFakeStore()
	cred := validCredential(1)
	cred.ExpiresAt = testNow.Unix()
	store.creds[1] = cred
	refresher := &fakeRefresher{grant: &auth.TokenGrant{AccessToken: "access-new", RefreshToken: "refresh-2", ExpiresAt: testNow.Unix() + 21600}}
	ts := newTestTokenStore(t, store, refresher)

	got, err := ts.GetValidToken(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetValidToken() error = %v", err)
	}
	if got != "access-new" {
		t.Errorf("token = %q, want access-new", got)
	}
	if refresher.calls.Load() != 1 {
		t.Errorf("refresh calls = %d, want 1", refresher.calls.Load())
	}
}

func TestGetValidToken_RefreshReplacesWholeCredential(t *testing.T) {
	store := newFakeStore()
	store.creds[1] = expiredCredential(1)
	refresher := &fakeRefresher{grant: &auth.TokenGrant{AccessToken: "access-new", RefreshToken: "refresh-2", ExpiresAt: testNow.Unix() + 21600}}
	ts := newTestTokenStore(t, store, refresher)

	if _, err := ts.GetValidToken(context.Background(), 1); err != nil {
		t.Fatalf("GetValidToken() error = %v", err)
	}

	if rt, _ := refresher.lastRT.Load().(string); rt != "refresh-1" {
		t.Errorf("refresh used %q, want the stored refresh-1", rt)
	}
	stored := store.creds[1]
	if stored.AccessToken != "access-new" || stored.RefreshToken != "refresh-2" || stored.ExpiresAt != testNow.Unix()+21600 {
		t.Errorf("stored credential = %+v, want all three fields replaced", stored)
	}
	if !stored.UpdatedAt.Equal(testNow) {
		t.Errorf("UpdatedAt = %v, want %v", stored.UpdatedAt, testNow)
	}
}

func TestGetValidToken_RefreshWithoutRotationKeepsRefreshToken(t *testing.T) {
	store := newFakeStore()
	store.creds[1] = expiredCredential(1)
	refresher := &fakeRefresher{grant: &auth.TokenGrant{AccessToken: "access-new", ExpiresAt: testNow.Unix() + 21600}}
	ts := newTestTokenStore(t, store, refresher)

	if _, err := ts.GetValidToken(context.Background(), 1); err != nil {
		t.Fatalf("GetValidToken() error = %v", err)
	}
	if got := store.creds[1].RefreshToken; got != "refresh-1" {
		t.Errorf("RefreshToken = %q, want the retained refresh-1", got)
	}
}

func TestGetValidToken_RefreshFailureLeavesCredentialUntouched(t *testing.T) {
	store := newFakeStore()
	before := expiredCredential(1)
	store.creds[1] = before
	refresher := &fakeRefresher{err: errors.New("invalid_grant")}
	ts := newTestTokenStore(t, store, refresher)

	_, err := ts.GetValidToken(context.Background(), 1)

	var appErr *apperror.AppError
	if !errors.As(err, &appErr) || appErr.Code != apperror.CodeRefreshFailed {
		t.Fatalf("GetValidToken() error = %v, want refresh_failed", err)
	}
	if !apperror.IsAuth(err) {
		t.Error("refresh failure should be an auth error")
	}
	if refresher.calls.Load() != 1 {
		t.Errorf("refresh calls = %d, want exactly 1 (no retry)", refresher.calls.Load())
	}
	if store.saveCredCalls != 0 {
		t.Errorf("SaveCredential calls = %d, want 0", store.saveCredCalls)
	}
	if store.creds[1] != before {
		t.Errorf("stored credential changed: %+v", store.creds[1])
	}
}

func TestGetValidToken_SaveFailureIsNotAuthError(t *testing.T) {
	store := newFakeStore()
	store.creds[1] = expiredCredential(1)
	store.saveCredErr = errDB
	refresher := &fakeRefresher{grant: &auth.TokenGrant{AccessToken: "access-new", ExpiresAt: testNow.Unix() + 60}}
	ts := newTestTokenStore(t, store, refresher)

	_, err := ts.GetValidToken(context.Background(), 1)
	if !errors.Is(err, errDB) {
		t.Fatalf("GetValidToken() error = %v, want the storage error", err)
	}
	if apperror.IsAuth(err) {
		t.Error("a storage failure must not look like an auth failure")
	}
}

func TestGetValidToken_ConcurrentCallersShareOneRefresh(t *testing.T) {
	store := newFakeStore()
	store.creds[1] = expiredCredential(1)
	refresher := &fakeRefresher{
		grant:   &auth.TokenGrant{AccessToken: "access-new", RefreshToken: "refresh-2", ExpiresAt: testNow.Unix() + 21600},
		release: make(chan struct{}),
	}
	ts := newTestTokenStore(t, store, refresher)

	const callers = 8
	var (
		wg     sync.WaitGroup
		tokens = make([]string, callers)
		errs   = make([]error, callers)
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = ts.GetValidToken(context.Background(), 1)
		}(i)
	}

	// Let the first refresh finish; every other caller either joined it or
	// finds the stored credential already fresh.
	close(refresher.release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d error = %v", i, errs[i])
		}
		if tokens[i] != "access-new" {
			t.Errorf("caller %d token = %q, want access-new", i, tokens[i])
		}
	}
	if n := refresher.calls.Load(); n != 1 {
		t.Errorf("refresh calls = %d, want 1", n)
	}
}

// A caller that joined a refresh still gets the new token when the caller
// that started it goes away.
func TestGetValidToken_JoinedCallerSurvivesFirstCallerCancel(t *testing.T) {
	store := newFakeStore()
	store.creds[1] = expiredCredential(1)
	refresher := &fakeRefresher{
		grant:   &auth.TokenGrant{AccessToken: "access-new", RefreshToken: "refresh-2", ExpiresAt: testNow.Unix() + 21600},
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	ts := newTestTokenStore(t, store, refresher)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	defer cancelFirst()
	firstErr := make(chan error, 1)
	go func() {
		_, err := ts.GetValidToken(firstCtx, 1)
		firstErr <- err
	}()
	<-refresher.entered

	type outcome struct {
		token string
		err   error
	}
	joined := make(chan outcome, 1)
	go func() {
		token, err := ts.GetValidToken(context.Background(), 1)
		joined <- outcome{token, err}
	}()
	time.Sleep(20 * time.Millisecond) // let the second call join the refresh

	cancelFirst()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("first GetValidToken() error = %v, want context.Canceled", err)
	}

	close(refresher.release)
	got := <-joined
	if got.err != nil || got.token != "access-new" {
		t.Fatalf("joined GetValidToken() = %q, %v; want access-new", got.token, got.err)
	}
	if n := refresher.calls.Load(); n != 1 {
		t.Errorf("refresh calls = %d, want 1", n)
	}
	cred, err := store.GetCredential(context.Background(), 1)
	if err != nil || cred.AccessToken != "access-new" {
		t.Errorf("stored credential = %+v, %v; want the refreshed one", cred, err)
	}
}

// =========================================================================
// Save / Delete TESTS
// =========================================================================

func TestTokenStoreSave_Validates(t *testing.T) {
	ts := newTestTokenStore(t, newFakeStore(), &fakeRefresher{})

	err := ts.Save(context.Background(), validCredential(0))
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("Save(owner 0) error = %v, want validation error", err)
	}

	c := validCredential(1)
	c.AccessToken = ""
	if err := ts.Save(context.Background(), c); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("Save(empty token) error = %v, want validation error", err)
	}
}

func TestTokenStoreSaveAndDelete(t *testing.T) {
	store := newFakeStore()
	ts := newTestTokenStore(t, store, &fakeRefresher{})

	if err := ts.Save(context.Background(), validCredential(1)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if !store.creds[1].UpdatedAt.Equal(testNow) {
		t.Errorf("UpdatedAt = %v, want the store clock", store.creds[1].UpdatedAt)
	}

	if err := ts.Delete(context.Background(), 1); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := ts.GetValidToken(context.Background(), 1); !apperror.IsAuth(err) {
		t.Errorf("GetValidToken() after Delete error = %v, want auth error", err)
	}
}
