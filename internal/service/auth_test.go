package service

import (
	"context"
	"errors"
	"testing"

	"github.com/sakif/runquest/internal/apperror"
	"github.com/sakif/runquest/internal/auth"
	"github.com/sakif/runquest/internal/strava"
)

// fakeExchanger stands in for the Strava OAuth endpoints.
type fakeExchanger struct {
	grant *auth.TokenGrant
	err   error
	codes []string
}

func (f *fakeExchanger) AuthURL(state string) string {
	return "https://strava.test/oauth/authorize?state=" + state
}

func (f *fakeExchanger) Exchange(ctx context.Context, code string) (*auth.TokenGrant, error) {
	f.codes = append(f.codes, code)
	if f.err != nil {
		return nil, f.err
	}
	return f.grant, nil
}

func newTestAuthService(t *testing.T, store *fakeStore, ex *fakeExchanger) *AuthService {
	t.Helper()
	sessions, err := auth.NewTokenService("test-secret-at-least-16-chars!!")
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return NewAuthService(ex, store, newTestTokenStore(t, store, &fakeRefresher{}), sessions, testLogger())
}

func grantFor(id int64) *auth.TokenGrant {
	return &auth.TokenGrant{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    testNow.Unix() + 21600,
		Athlete:      &strava.Athlete{ID: id, Username: "runner", Firstname: "Ada"},
	}
}

// =========================================================================
// CompleteLogin TESTS
// =========================================================================

func TestCompleteLogin_NewOwner(t *testing.T) {
	store := newFakeStore()
	ex := &fakeExchanger{grant: grantFor(42)}
	svc := newTestAuthService(t, store, ex)

	res, err := svc.CompleteLogin(context.Background(), "the-code", "read,activity:read_all")
	if err != nil {
		t.Fatalf("CompleteLogin() error = %v", err)
	}

	if res.Owner.ID != 42 || res.Session == "" {
		t.Fatalf("result = %+v", res)
	}
	if len(ex.codes) != 1 || ex.codes[0] != "the-code" {
		t.Errorf("exchanged codes = %v", ex.codes)
	}
	if _, ok := store.owners[42]; !ok {
		t.Error("owner was not stored")
	}
	cred := store.creds[42]
	if cred.AccessToken != "access-1" || cred.RefreshToken != "refresh-1" || cred.Scope != "read,activity:read_all" {
		t.Errorf("stored credential = %+v", cred)
	}

	ownerID, err := svc.sessions.Validate(res.Session)
	if err != nil || ownerID != 42 {
		t.Errorf("session owner = %d, %v; want 42", ownerID, err)
	}
}

func TestCompleteLogin_ReturningOwnerReplacesCredential(t *testing.T) {
	store := newFakeStore()
	store.creds[42] = expiredCredential(42)
	svc := newTestAuthService(t, store, &fakeExchanger{grant: grantFor(42)})

	if _, err := svc.CompleteLogin(context.Background(), "code", ""); err != nil {
		t.Fatalf("CompleteLogin() error = %v", err)
	}
	if store.creds[42].AccessToken != "access-1" {
		t.Errorf("credential = %+v, want replaced", store.creds[42])
	}
}

func TestCompleteLogin_Errors(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		ex       *fakeExchanger
		wantCode string
		wantErr  error
	}{
		{"missing code", "", &fakeExchanger{grant: grantFor(1)}, "", apperror.ErrValidation},
		{"exchange rejected", "c", &fakeExchanger{err: errors.New("bad code")}, apperror.CodeExchangeFailed, apperror.ErrUnauthenticated},
		{"no athlete", "c", &fakeExchanger{grant: &auth.TokenGrant{AccessToken: "a"}}, apperror.CodeExchangeFailed, apperror.ErrUnauthenticated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			svc := newTestAuthService(t, store, tt.ex)

			_, err := svc.CompleteLogin(context.Background(), tt.code, "")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("CompleteLogin() error = %v, want %v", err, tt.wantErr)
			}
			var appErr *apperror.AppError
			if tt.wantCode != "" && (!errors.As(err, &appErr) || appErr.Code != tt.wantCode) {
				t.Errorf("code = %v, want %s", err, tt.wantCode)
			}
			if len(store.creds) != 0 {
				t.Error("nothing should be stored on failure")
			}
		})
	}
}

// =========================================================================
// Logout / Me TESTS
// =========================================================================

func TestLogout_DeletesCredential(t *testing.T) {
	store := newFakeStore()
	svc := newTestAuthService(t, store, &fakeExchanger{grant: grantFor(42)})

	if _, err := svc.CompleteLogin(context.Background(), "code", ""); err != nil {
		t.Fatalf("CompleteLogin() error = %v", err)
	}
	if err := svc.Logout(context.Background(), 42); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if _, ok := store.creds[42]; ok {
		t.Error("credential still stored after logout")
	}
	// Signing out twice is fine.
	if err := svc.Logout(context.Background(), 42); err != nil {
		t.Errorf("second Logout() error = %v", err)
	}
}

func TestMe(t *testing.T) {
	store := newFakeStore()
	svc := newTestAuthService(t, store, &fakeExchanger{grant: grantFor(42)})

	if _, err := svc.Me(context.Background(), 42); !apperror.IsAuth(err) {
		t.Errorf("Me() for unknown owner error = %v, want auth error", err)
	}

	if _, err := svc.CompleteLogin(context.Background(), "code", ""); err != nil {
		t.Fatalf("CompleteLogin() error = %v", err)
	}
	owner, err := svc.Me(context.Background(), 42)
	if err != nil {
		t.Fatalf("Me() error = %v", err)
	}
	if owner.Username != "runner" {
		t.Errorf("Username = %q, want runner", owner.Username)
	}
}

func TestLoginURL(t *testing.T) {
	svc := newTestAuthService(t, newFakeStore(), &fakeExchanger{})
	if got := svc.LoginURL("xyz"); got != "https://strava.test/oauth/authorize?state=xyz" {
		t.Errorf("LoginURL() = %q", got)
	}
}
