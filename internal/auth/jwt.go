// Package auth covers the two halves of signing in: the Strava OAuth exchange
// (oauth.go) and the session cookie that identifies the owner afterwards
// (this file and middleware.go).
//
// AUTHENTICATION FLOW OVERVIEW:
// 1. Owner visits /auth/strava/login → redirected to Strava
// 2. Strava calls back /auth/strava/callback with a code
// 3. Server exchanges the code for an access/refresh token pair plus the
//    athlete summary, upserts the owner and stores the credential server-side
// 4. Server issues a session JWT whose subject is the owner id and stores it
//    in an HttpOnly cookie
// 5. On subsequent API calls, middleware reads the cookie, validates the JWT,
//    and sets the owner id in the request context
//
// WHY NOT PUT THE STRAVA TOKENS IN THE COOKIE?
// The refresh token is a long-lived credential. Keeping it in the database
// (sealed, see internal/vault) means the browser only ever holds a signed
// owner id, and signing out can revoke the stored credential for real.
//
// JWT STRUCTURE (three base64-encoded parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header: {"alg":"HS256","typ":"JWT"}
//	- Payload: {"sub":"<athlete id>","exp":...,"iss":"runquest"}
//	- Signature: HMAC-SHA256(header+"."+payload, secretKey)
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionTTL is how long a session cookie stays valid.
const SessionTTL = 30 * 24 * time.Hour

const issuer = "runquest"

// ErrSessionExpired is returned by Validate for a well-formed but expired token.
var ErrSessionExpired = errors.New("auth: session expired")

// TokenService handles session JWT creation and validation.
type TokenService struct {
	secret []byte
}

// NewTokenService creates a TokenService with the given secret.
// The secret should be at least 32 bytes of random data in production.
// Example: SESSION_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: session secret must be at least 16 characters")
	}
	return &TokenService{secret: []byte(secret)}, nil
}

// Generate signs a session token for ownerID valid for SessionTTL.
func (s *TokenService) Generate(ownerID int64) (string, error) {
	return s.GenerateWithDuration(ownerID, SessionTTL)
}

// GenerateWithDuration signs a session token with a custom lifetime.
// Tests use a negative duration to produce an already-expired token.
func (s *TokenService) GenerateWithDuration(ownerID int64, d time.Duration) (string, error) {
	if ownerID <= 0 {
		return "", fmt.Errorf("auth: invalid owner id %d", ownerID)
	}
	now := time.Now()

	c := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(ownerID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(d)),
		Issuer:    issuer,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a session token and returns the owner id.
//
// VALIDATION CHECKS (performed by the jwt library):
//   - Signature is valid
//   - Token is not expired and carries an expiry at all
//   - Issuer is "runquest"
//   - Algorithm is HS256 (blocks the "alg: none" confusion attack)
func (s *TokenService) Validate(tokenStr string) (int64, error) {
	var c jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&c,
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, ErrSessionExpired
		}
		return 0, fmt.Errorf("auth: invalid token: %w", err)
	}
	if !token.Valid {
		return 0, fmt.Errorf("auth: invalid token claims")
	}

	ownerID, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || ownerID <= 0 {
		return 0, fmt.Errorf("auth: token subject %q is not an owner id", c.Subject)
	}
	return ownerID, nil
}
