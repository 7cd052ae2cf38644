package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/okitz/driveserve/internal/credentials"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTokenEndpoint mints per-identity tokens and fails the identities listed
// in failing. It counts mint attempts per identity.
type fakeTokenEndpoint struct {
	t       *testing.T
	failing map[string]bool

	mu       sync.Mutex
	attempts map[string]int
}

func newFakeTokenEndpoint(t *testing.T, failing ...string) *fakeTokenEndpoint {
	f := &fakeTokenEndpoint{t: t, failing: make(map[string]bool), attempts: make(map[string]int)}
	for _, identity := range failing {
		f.failing[identity] = true
	}
	return f
}

func (f *fakeTokenEndpoint) attemptsFor(identity string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts[identity]
}

func (f *fakeTokenEndpoint) totalAttempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.attempts {
		total += n
	}
	return total
}

func (f *fakeTokenEndpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	require.NoError(f.t, r.ParseForm())

	identity := "oauth"
	if assertion := r.PostFormValue("assertion"); assertion != "" {
		parts := strings.Split(assertion, ".")
		require.Len(f.t, parts, 3)
		payload, err := base64.RawURLEncoding.DecodeString(parts[1])
		require.NoError(f.t, err)
		var claims struct {
			Iss string `json:"iss"`
		}
		require.NoError(f.t, json.Unmarshal(payload, &claims))
		identity = claims.Iss
	}

	f.mu.Lock()
	f.attempts[identity]++
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if f.failing[identity] {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprintf(w, `{"error":"invalid_grant","error_description":"account %s is disabled"}`, identity)
		return
	}
	fmt.Fprintf(w, `{"access_token":"token-for-%s","expires_in":3600}`, identity)
}

func testManager(t *testing.T, endpointURL string, accounts ...credentials.ServiceAccount) *TokenManager {
	t.Helper()
	data, err := json.Marshal(map[string]any{"accounts": accounts})
	require.NoError(t, err)

	resolver := credentials.NewResolver(zerolog.Nop())
	resolver.Bundled = data

	minter := NewMinter()
	minter.TokenURL = endpointURL

	return NewTokenManager(resolver, minter, zerolog.Nop())
}

func testAccounts(t *testing.T, emails ...string) []credentials.ServiceAccount {
	t.Helper()
	key := testPrivateKeyPEM(t)
	accounts := make([]credentials.ServiceAccount, 0, len(emails))
	for _, email := range emails {
		accounts = append(accounts, credentials.ServiceAccount{ClientEmail: email, PrivateKey: key})
	}
	return accounts
}

func TestGetAccessToken_RotatesPastFailingAccount(t *testing.T) {
	endpoint := newFakeTokenEndpoint(t, "a@sa.test")
	srv := httptest.NewServer(endpoint)
	defer srv.Close()

	manager := testManager(t, srv.URL, testAccounts(t, "a@sa.test", "b@sa.test")...)

	token, err := manager.GetAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-for-b@sa.test", token)
	assert.Equal(t, 1, endpoint.attemptsFor("a@sa.test"))
	assert.Equal(t, 1, endpoint.attemptsFor("b@sa.test"))

	// The cursor stayed on the good account, so the next call is a pure
	// cache hit with no network traffic at all.
	token, err = manager.GetAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-for-b@sa.test", token)
	assert.Equal(t, 1, endpoint.attemptsFor("a@sa.test"))
	assert.Equal(t, 1, endpoint.attemptsFor("b@sa.test"))
}

func TestGetAccessToken_AllAccountsFailBoundedAttempts(t *testing.T) {
	endpoint := newFakeTokenEndpoint(t, "a@sa.test", "b@sa.test", "c@sa.test")
	srv := httptest.NewServer(endpoint)
	defer srv.Close()

	manager := testManager(t, srv.URL, testAccounts(t, "a@sa.test", "b@sa.test", "c@sa.test")...)

	_, err := manager.GetAccessToken(context.Background())
	var exchangeErr *ExchangeError
	require.ErrorAs(t, err, &exchangeErr)
	assert.Equal(t, 3, endpoint.totalAttempts())
}

func TestGetAccessToken_SingleAccountFailurePropagates(t *testing.T) {
	endpoint := newFakeTokenEndpoint(t, "only@sa.test")
	srv := httptest.NewServer(endpoint)
	defer srv.Close()

	manager := testManager(t, srv.URL, testAccounts(t, "only@sa.test")...)

	_, err := manager.GetAccessToken(context.Background())
	var exchangeErr *ExchangeError
	require.ErrorAs(t, err, &exchangeErr)
	assert.Equal(t, 1, endpoint.attemptsFor("only@sa.test"))
}

func TestGetAccessToken_RemintsAfterExpiry(t *testing.T) {
	endpoint := newFakeTokenEndpoint(t)
	srv := httptest.NewServer(endpoint)
	defer srv.Close()

	manager := testManager(t, srv.URL, testAccounts(t, "a@sa.test")...)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	manager.now = clock
	manager.minter.now = clock

	_, err := manager.GetAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, endpoint.attemptsFor("a@sa.test"))

	// Still comfortably inside the validity window: cache hit.
	now = now.Add(58 * time.Minute)
	_, err = manager.GetAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, endpoint.attemptsFor("a@sa.test"))

	// Inside the 60s safety margin: token must not be reused.
	now = now.Add(90 * time.Second)
	_, err = manager.GetAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, endpoint.attemptsFor("a@sa.test"))
}

func TestGetAccessToken_OAuthFallback(t *testing.T) {
	endpoint := newFakeTokenEndpoint(t)
	srv := httptest.NewServer(endpoint)
	defer srv.Close()

	t.Setenv(credentials.EnvClientID, "client-id")
	t.Setenv(credentials.EnvClientSecret, "client-secret")
	t.Setenv(credentials.EnvRefreshToken, "refresh-token")

	manager := testManager(t, srv.URL)

	token, err := manager.GetAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-for-oauth", token)

	// Second call hits the cache.
	_, err = manager.GetAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, endpoint.attemptsFor("oauth"))
}

func TestGetAccessToken_NoCredentialsAtAll(t *testing.T) {
	t.Setenv(credentials.EnvClientID, "")
	t.Setenv(credentials.EnvClientSecret, "")
	t.Setenv(credentials.EnvRefreshToken, "")

	manager := testManager(t, "http://invalid.test")

	_, err := manager.GetAccessToken(context.Background())
	var confErr *ConfigurationError
	require.ErrorAs(t, err, &confErr)
	assert.Contains(t, confErr.Reason, "no authentication method available")
}
