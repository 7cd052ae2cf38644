package auth

import (
	"context"
	"sync"
	"time"

	"github.com/okitz/driveserve/internal/credentials"
	"github.com/rs/zerolog"
)

// oauthCacheKey is the fixed cache identity for the OAuth fallback token.
const oauthCacheKey = "oauth"

// TokenManager hands out valid bearer tokens, minting and caching per
// identity and rotating across service accounts on mint failure. Rotation is
// reactive: an account keeps serving cached tokens until a mint for it fails,
// which advances the cursor so later unrelated calls skip it too. The cursor
// wraps, so a once-bad account gets retried when its turn comes back around.
type TokenManager struct {
	resolver *credentials.Resolver
	minter   *Minter
	logger   zerolog.Logger

	mu    sync.Mutex
	cache map[string]Token
	now   func() time.Time
}

// NewTokenManager creates a manager with an empty token cache.
func NewTokenManager(resolver *credentials.Resolver, minter *Minter, logger zerolog.Logger) *TokenManager {
	return &TokenManager{
		resolver: resolver,
		minter:   minter,
		logger:   logger,
		cache:    make(map[string]Token),
		now:      time.Now,
	}
}

// GetAccessToken returns a bearer token that is valid for at least the
// expiry safety margin. It triggers credential resolution on first use.
func (t *TokenManager) GetAccessToken(ctx context.Context) (string, error) {
	resolved := t.resolver.Resolve(ctx)

	t.mu.Lock()
	defer t.mu.Unlock()

	if resolved.Set.Len() > 0 {
		return t.serviceAccountToken(ctx, resolved.Set)
	}
	return t.oauthToken(ctx, resolved.OAuth)
}

// serviceAccountToken runs the bounded rotation loop: at most one mint
// attempt per configured account within a single call.
func (t *TokenManager) serviceAccountToken(ctx context.Context, set *credentials.Set) (string, error) {
	var lastErr error
	for attempt := 0; attempt < set.Len(); attempt++ {
		account := set.Current()

		if cached, ok := t.cache[account.ClientEmail]; ok && cached.ValidAt(t.now()) {
			return cached.AccessToken, nil
		}

		token, err := t.minter.MintServiceAccount(ctx, account)
		if err == nil {
			t.cache[account.ClientEmail] = token
			t.logger.Info().
				Str("client_email", account.ClientEmail).
				Int64("expires_at_ms", token.ExpiresAt).
				Msg("Minted service account token")
			return token.AccessToken, nil
		}

		lastErr = err
		t.logger.Warn().
			Err(err).
			Str("client_email", account.ClientEmail).
			Int("cursor", set.Cursor()).
			Msg("Token mint failed, rotating to next service account")

		if set.Len() == 1 {
			break
		}
		set.Advance()
	}
	return "", lastErr
}

func (t *TokenManager) oauthToken(ctx context.Context, client credentials.OAuthClient) (string, error) {
	if cached, ok := t.cache[oauthCacheKey]; ok && cached.ValidAt(t.now()) {
		return cached.AccessToken, nil
	}

	if client.ClientID == "" && client.ClientSecret == "" && client.RefreshToken == "" {
		return "", &ConfigurationError{Reason: "no authentication method available"}
	}

	token, err := t.minter.MintRefreshToken(ctx, client)
	if err != nil {
		return "", err
	}
	t.cache[oauthCacheKey] = token
	t.logger.Info().
		Int64("expires_at_ms", token.ExpiresAt).
		Msg("Minted OAuth refresh token")
	return token.AccessToken, nil
}
