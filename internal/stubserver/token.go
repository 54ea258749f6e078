package stubserver

import (
	"errors"
	"strconv"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/Pnishada/service-desk/internal/domain"
)

// TokenKind distinguishes the two halves of a token pair.
type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)

// TokenManager issues and validates the JWT pairs the stub hands out at
// login. The real backend owns this; the stub only needs enough for the
// client's refresh cycle to be exercised end to end.
type TokenManager struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenManager builds a new manager.
func NewTokenManager(secret string, accessTTLMinutes, refreshTTLMinutes int) *TokenManager {
	if accessTTLMinutes <= 0 {
		accessTTLMinutes = 60
	}
	if refreshTTLMinutes <= 0 {
		refreshTTLMinutes = 24 * 60
	}
	return &TokenManager{
		secret:     []byte(secret),
		accessTTL:  time.Duration(accessTTLMinutes) * time.Minute,
		refreshTTL: time.Duration(refreshTTLMinutes) * time.Minute,
	}
}

// Claims describes the JWT payload.
type Claims struct {
	Role string    `json:"role"`
	Kind TokenKind `json:"token_type"`
	jwt.RegisteredClaims
}

// UserID returns the subject as a numeric user id.
func (c *Claims) UserID() int64 {
	id, _ := strconv.ParseInt(c.Subject, 10, 64)
	return id
}

// GeneratePair issues an access and refresh token for the user.
func (tm *TokenManager) GeneratePair(userID int64, role domain.Role) (access, refresh string, err error) {
	access, err = tm.generate(userID, role, TokenKindAccess, tm.accessTTL)
	if err != nil {
		return "", "", err
	}
	refresh, err = tm.generate(userID, role, TokenKindRefresh, tm.refreshTTL)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

// GenerateAccess issues a fresh access token, used by the refresh endpoint.
func (tm *TokenManager) GenerateAccess(userID int64, role domain.Role) (string, error) {
	return tm.generate(userID, role, TokenKindAccess, tm.accessTTL)
}

func (tm *TokenManager) generate(userID int64, role domain.Role, kind TokenKind, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Role: string(role),
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tm.secret)
}

// Parse validates a token of the expected kind and returns its claims.
func (tm *TokenManager) Parse(tokenStr string, kind TokenKind) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return tm.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.Kind != kind {
		return nil, errors.New("wrong token kind")
	}
	return claims, nil
}
