// Package auth turns bearer tokens into ledger principals.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Martian-dev/ai-brain-ledger/internal/access"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

const principalKey = "principal"

// Verifier validates a raw bearer token.
type Verifier interface {
	Verify(ctx context.Context, token string) (access.Principal, error)
}

// Chain accepts a token if any of its verifiers does.
type Chain []Verifier

func (c Chain) Verify(ctx context.Context, token string) (access.Principal, error) {
	var errs []error
	for _, v := range c {
		p, err := v.Verify(ctx, token)
		if err == nil {
			return p, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return "", fmt.Errorf("%w: no verifier configured", ErrInvalidToken)
	}
	return "", errors.Join(errs...)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", ErrMissingToken
	}
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		header = strings.TrimSpace(header[7:])
	}
	if header == "" {
		return "", ErrMissingToken
	}
	return header, nil
}

// Middleware authenticates every request and stores the principal on the
// gin context. onFail writes the rejection response.
func Middleware(v Verifier, onFail func(c *gin.Context, err error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := BearerToken(c.GetHeader("Authorization"))
		if err == nil {
			var p access.Principal
			p, err = v.Verify(c.Request.Context(), token)
			if err == nil {
				c.Set(principalKey, p)
				c.Next()
				return
			}
		}
		onFail(c, err)
		c.Abort()
	}
}

// PrincipalFrom returns the principal set by Middleware.
func PrincipalFrom(c *gin.Context) (access.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return "", false
	}
	p, ok := v.(access.Principal)
	return p, ok && p != ""
}
