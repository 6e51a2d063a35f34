package persona

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for malformed, mis-signed, or expired setup
// tokens. Callers treat it as "route by most-recent handle instead".
var ErrInvalidToken = errors.New("persona: invalid setup token")

// TokenIssuer signs and verifies the short-lived setup-session tokens that
// associate an operator's trial call with the persona they just configured.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer creates an issuer. An empty secret disables signing; Issue
// then returns the bare handle ID and Verify accepts it as-is (development
// mode).
func NewTokenIssuer(secret string, ttl time.Duration, nowFn func() time.Time) *TokenIssuer {
	if nowFn == nil {
		nowFn = time.Now
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: nowFn}
}

// Issue returns a signed token carrying the handle ID.
func (i *TokenIssuer) Issue(handleID string) (string, error) {
	if strings.TrimSpace(handleID) == "" {
		return "", errors.New("persona: handle id required")
	}
	if len(i.secret) == 0 {
		return handleID, nil
	}
	now := i.now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   handleID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("persona: sign token: %w", err)
	}
	return signed, nil
}

// TTL returns the lifetime of issued tokens.
func (i *TokenIssuer) TTL() time.Duration {
	return i.ttl
}

// Verify returns the handle ID embedded in a setup token.
func (i *TokenIssuer) Verify(tokenString string) (string, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return "", ErrInvalidToken
	}
	if len(i.secret) == 0 {
		return tokenString, nil
	}
	claims := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return i.now() }))
	if err != nil || !token.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
