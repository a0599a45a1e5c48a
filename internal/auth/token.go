package auth

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/spec-kit/lifecycle-engine/internal/domain"
)

const (
	tokenIssuer = "lifecycle-engine"
	clockSkew   = 30 * time.Second
)

// Claims is the bearer token payload. The registered subject holds the actor id.
type Claims struct {
	ActorType domain.ActorType  `json:"actor_type"`
	Role      *domain.StaffRole `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Actor returns the caller described by the token.
func (c *Claims) Actor() domain.Actor {
	return domain.Actor{Type: c.ActorType, ID: c.Subject}
}

// TokenManager verifies HS256 bearer tokens issued for the engine. Issue exists for
// local tooling and tests.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	parser *jwt.Parser
}

// NewTokenManager builds a manager; a non-positive ttl falls back to one hour.
func NewTokenManager(secret string, ttlMinutes int) *TokenManager {
	if ttlMinutes <= 0 {
		ttlMinutes = 60
	}
	return &TokenManager{
		secret: []byte(secret),
		ttl:    time.Duration(ttlMinutes) * time.Minute,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(tokenIssuer),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(clockSkew),
		),
	}
}

// Issue signs a token for actor.
func (tm *TokenManager) Issue(actor domain.Actor, role *domain.StaffRole) (string, time.Time, error) {
	if actor.ID == "" {
		return "", time.Time{}, errors.New("actor id is required")
	}
	issuedAt := time.Now()
	expiresAt := issuedAt.Add(tm.ttl)
	claims := Claims{
		ActorType: actor.Type,
		Role:      role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   actor.ID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tm.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify checks signature, issuer and expiry and returns the claims.
func (tm *TokenManager) Verify(raw string) (*Claims, error) {
	claims := &Claims{}
	if _, err := tm.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return tm.secret, nil
	}); err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}
