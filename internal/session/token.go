package session

import (
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// AccessTokenExpiry reports when the access token lapses, for tokens that
// are JWTs carrying an exp claim. Display only; the token is not verified
// here and the server stays the authority on validity.
func AccessTokenExpiry(token string) (time.Time, bool) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil || claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
