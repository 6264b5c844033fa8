package registry

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned when a bearer token is missing, malformed, expired or unsigned
var ErrInvalidToken = errors.New("invalid token")

const tokenIssuer = "scan-registry"

// operatorClaims identify the operator recorded as scanned_by
type operatorClaims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// Authenticator mints and verifies operator session tokens
type Authenticator struct {
	secret     []byte
	ttl        time.Duration
	timeSource TimeSource
}

// NewAuthenticator creates an Authenticator signing with secret. A zero ttl mints
// tokens without expiry.
func NewAuthenticator(secret string, ttl time.Duration) *Authenticator {
	return NewAuthenticatorWithDeps(secret, ttl, &defaultTimeSource{})
}

// NewAuthenticatorWithDeps creates an Authenticator with a custom time source for testing
func NewAuthenticatorWithDeps(secret string, ttl time.Duration, timeSrc TimeSource) *Authenticator {
	return &Authenticator{
		secret:     []byte(secret),
		ttl:        ttl,
		timeSource: timeSrc,
	}
}

// Mint signs a token for operator name
func (a *Authenticator) Mint(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("operator name is required")
	}

	now := a.timeSource.Now()
	claims := operatorClaims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(now),
			Issuer:   tokenIssuer,
			Subject:  name,
		},
	}
	if a.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(a.ttl))
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return token, nil
}

// Verify checks token and returns the operator name it was minted for
func (a *Authenticator) Verify(token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidToken)
	}

	claims := &operatorClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(a.timeSource.Now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Name == "" {
		return "", fmt.Errorf("%w: no operator name", ErrInvalidToken)
	}
	return claims.Name, nil
}
