package auth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/Martian-dev/ai-brain-ledger/internal/access"
)

// JWKSVerifier verifies asymmetrically signed tokens against a cached JWKS.
type JWKSVerifier struct {
	jwksURL     string
	audience    string
	cache       *jwk.Cache
	keySet      jwk.Set
	keySetMutex sync.RWMutex
	lastFetch   time.Time
	refreshTTL  time.Duration
	logger      *slog.Logger
}

// NewJWKSVerifier registers jwksURL, fetches it once and keeps it fresh until
// ctx is cancelled. Verification never waits on the network.
func NewJWKSVerifier(ctx context.Context, jwksURL, audience string, logger *slog.Logger) (*JWKSVerifier, error) {
	v := &JWKSVerifier{
		jwksURL:    jwksURL,
		audience:   audience,
		refreshTTL: 5 * time.Minute,
		logger:     logger.With("system", "jwks"),
	}

	cache := jwk.NewCache(ctx)
	if err := cache.Register(jwksURL, jwk.WithMinRefreshInterval(v.refreshTTL)); err != nil {
		return nil, fmt.Errorf("failed to register JWKS URL: %w", err)
	}
	v.cache = cache

	fetchCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	keySet, err := v.fetchKeySet(fetchCtx)
	if err != nil {
		return nil, fmt.Errorf("failed initial JWKS fetch: %w", err)
	}
	v.keySet = keySet
	v.lastFetch = time.Now()

	go v.backgroundRefresh(ctx)

	return v, nil
}

func (v *JWKSVerifier) fetchKeySet(ctx context.Context) (jwk.Set, error) {
	keySet, err := v.cache.Get(ctx, v.jwksURL)
	if err != nil {
		return jwk.Fetch(ctx, v.jwksURL)
	}
	return keySet, nil
}

func (v *JWKSVerifier) backgroundRefresh(ctx context.Context) {
	ticker := time.NewTicker(v.refreshTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		fetchCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		keySet, err := v.fetchKeySet(fetchCtx)
		cancel()
		if err != nil {
			v.logger.Warn("jwks refresh failed", "url", v.jwksURL, "error", err)
			continue
		}

		v.keySetMutex.Lock()
		v.keySet = keySet
		v.lastFetch = time.Now()
		v.keySetMutex.Unlock()
	}
}

func (v *JWKSVerifier) getKeySet() jwk.Set {
	v.keySetMutex.RLock()
	defer v.keySetMutex.RUnlock()
	return v.keySet
}

// Verify returns the token subject as the calling principal.
func (v *JWKSVerifier) Verify(_ context.Context, token string) (access.Principal, error) {
	opts := []jwt.ParseOption{
		jwt.WithKeySet(v.getKeySet()),
		jwt.WithValidate(true),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	parsed, err := jwt.Parse([]byte(token), opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if parsed.Subject() == "" {
		return "", fmt.Errorf("%w: token missing subject", ErrInvalidToken)
	}
	return access.Principal(parsed.Subject()), nil
}

// CacheStats reports the state of the key cache for the health endpoint.
func (v *JWKSVerifier) CacheStats() map[string]any {
	v.keySetMutex.RLock()
	defer v.keySetMutex.RUnlock()

	keyCount := 0
	if v.keySet != nil {
		keyCount = v.keySet.Len()
	}
	return map[string]any{
		"keys_cached": keyCount,
		"last_fetch":  v.lastFetch,
		"age_seconds": time.Since(v.lastFetch).Seconds(),
		"jwks_url":    v.jwksURL,
	}
}
