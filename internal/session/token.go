package session

import (
	"time"

	"github.com/golang-jwt/jwt"
)

// tokenExpiry reads the exp claim of an access token. The signature is not
// checked: the client has no key and the backend stays the authority, the
// claim only lets an expired session end without a round trip.
func tokenExpiry(token string) (time.Time, bool) {
	claims := &jwt.StandardClaims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == 0 {
		return time.Time{}, false
	}
	return time.Unix(claims.ExpiresAt, 0), true
}

// tokenExpired reports whether token carries an exp claim at or before now.
// Tokens without a readable exp never expire on the client.
func tokenExpired(token string, now time.Time) bool {
	exp, ok := tokenExpiry(token)
	return ok && !now.Before(exp)
}
