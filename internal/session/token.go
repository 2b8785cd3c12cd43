package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenExpired inspects the exp claim of a piggybacked token without
// verifying the signature; the session only needs to know when to ask the
// owner for a fresh one. A token that cannot be parsed or carries no expiry
// is treated as still usable.
func tokenExpired(token string, now time.Time) bool {
	if token == "" {
		return false
	}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	claims := jwt.RegisteredClaims{}
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return claims.ExpiresAt.Time.Before(now)
}
