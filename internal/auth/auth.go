// Package auth mints and verifies the HS256 bearer tokens carried by
// terminals and operator consoles.  The subject is the actor recorded on
// ledger and audit rows; the scopes claim gates each route.
package auth

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	ScopeAll = "*"

	ScopeTokensRead      = "tokens:read"
	ScopeTokensWrite     = "tokens:write"
	ScopeIdentitiesRead  = "identities:read"
	ScopeIdentitiesWrite = "identities:write"
	ScopeGatesRead       = "gates:read"
	ScopeGatesWrite      = "gates:write"
	ScopeAccessCheck     = "access:check"
	ScopeAccessRead      = "access:read"
	ScopeWalletRead      = "wallet:read"
	ScopeWalletWrite     = "wallet:write"
	ScopeWalletRefund    = "wallet:refund"
)

const issuer = "turnstile"

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid bearer token")
)

// Claims is the token payload.
type Claims struct {
	Scopes []string `json:"scopes"`
	jwt.RegisteredClaims
}

// Has reports whether the claims grant scope.  "*" grants everything and
// "area:*" grants every scope of that area.
func (c *Claims) Has(scope string) bool {
	area, _, _ := strings.Cut(scope, ":")
	return slices.ContainsFunc(c.Scopes, func(s string) bool {
		return s == ScopeAll || s == scope || s == area+":*"
	})
}

// Signer mints and verifies tokens with one shared secret.
type Signer struct {
	secret []byte
	now    func() time.Time
}

func NewSigner(secret string) (*Signer, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is empty")
	}
	return &Signer{secret: []byte(secret), now: time.Now}, nil
}

// Mint returns a signed token for subject.  ttl <= 0 mints a token without
// expiry.
func (s *Signer) Mint(subject string, scopes []string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", errors.New("subject is required")
	}
	now := s.now()
	claims := Claims{
		Scopes: scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   issuer,
			Subject:  subject,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses an Authorization header value ("Bearer <token>").
func (s *Signer) Verify(header string) (*Claims, error) {
	scheme, raw, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(raw) == "" {
		return nil, ErrMissingToken
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(strings.TrimSpace(raw), claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: no subject", ErrInvalidToken)
	}
	return claims, nil
}
