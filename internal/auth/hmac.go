package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Martian-dev/ai-brain-ledger/internal/access"
)

// HMACVerifier verifies HS256 tokens issued to backend services.
type HMACVerifier struct {
	secret   []byte
	audience string
}

func NewHMACVerifier(secret, audience string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret), audience: audience}
}

func (v *HMACVerifier) Verify(_ context.Context, token string) (access.Principal, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: token missing subject", ErrInvalidToken)
	}
	return access.Principal(claims.Subject), nil
}

// SignToken issues an HS256 token for principal, valid for ttl.
func SignToken(secret string, principal access.Principal, audience string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   string(principal),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	if audience != "" {
		claims.Audience = jwt.ClaimStrings{audience}
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
