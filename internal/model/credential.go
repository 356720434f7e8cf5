package model

import "time"

// Credential is the OAuth credential held for one owner.
//
// A Credential is treated as an immutable value: a refresh never edits one in
// place, it produces a new value via Refreshed and the repository replaces the
// stored row with it in a single statement. Readers therefore always observe a
// matching (access, refresh, expiry) triple.
type Credential struct {
	OwnerID      int64     `json:"ownerId"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	ExpiresAt    int64     `json:"expiresAt"` // absolute, epoch seconds
	Scope        string    `json:"scope"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Expired reports whether the access token can no longer be used at now.
// A token whose expiry equals now is already expired.
func (c Credential) Expired(now time.Time) bool {
	return c.ExpiresAt <= now.Unix()
}

// Refreshed returns a copy of c carrying the result of a refresh grant.
// The refresh token is rotated only when the provider returned a new one.
func (c Credential) Refreshed(accessToken, refreshToken string, expiresAt int64, now time.Time) Credential {
	next := c
	next.AccessToken = accessToken
	if refreshToken != "" {
		next.RefreshToken = refreshToken
	}
	next.ExpiresAt = expiresAt
	next.UpdatedAt = now
	return next
}
