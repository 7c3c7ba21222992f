package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenParser validates bearer tokens issued by the identity service and
// extracts the requester id from the sub claim. Tokens are never issued here.
type TokenParser struct {
	secret []byte
	leeway time.Duration
}

func NewTokenParser(secret string) *TokenParser {
	return &TokenParser{
		secret: []byte(secret),
		leeway: 30 * time.Second,
	}
}

// Enabled reports whether a signing secret was configured.
func (p *TokenParser) Enabled() bool {
	return p != nil && len(p.secret) > 0
}

// RequesterID returns the requester encoded in the token's subject.
func (p *TokenParser) RequesterID(tokenString string) (uuid.UUID, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return p.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(p.leeway),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return uuid.Nil, fmt.Errorf("invalid token")
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return uuid.Nil, fmt.Errorf("token has no subject")
	}
	id, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid subject: %w", err)
	}
	return id, nil
}

// Sign issues an HS256 token for requesterID. Only tests and local tooling use it.
func (p *TokenParser) Sign(requesterID uuid.UUID, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   requesterID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
}
