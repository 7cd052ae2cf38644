package credentials

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/okitz/driveserve/internal/env"
	"github.com/rs/zerolog"
)

// Environment keys the resolver reads. SERVICE_ACCOUNTS holds multiple key
// blobs joined by the literal separator; SERVICE_ACCOUNT_0..99 are read
// individually. SERVICE_ACCOUNT_JSON is the legacy single-key variable.
const (
	EnvAccountsURL  = "SERVICE_ACCOUNTS_URL"
	EnvAccounts     = "SERVICE_ACCOUNTS"
	EnvAccountN     = "SERVICE_ACCOUNT_%d"
	EnvLegacy       = "SERVICE_ACCOUNT_JSON"
	EnvClientID     = "CLIENT_ID"
	EnvClientSecret = "CLIENT_SECRET"
	EnvRefreshToken = "REFRESH_TOKEN"

	blobSeparator       = "||"
	maxNumberedAccounts = 100
)

//go:embed accounts.json
var bundledAccounts []byte

// HTTPClient is an interface for making HTTP requests
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Resolved is the outcome of a credential resolution: an ordered set of
// service accounts plus whatever OAuth fallback inputs were configured.
type Resolved struct {
	Set   *Set
	OAuth OAuthClient
}

// Resolver builds a Resolved from the configured credential sources, in
// priority order: bundled data, remote URL, env blobs, legacy env variable.
// Resolution runs at most once per Resolver; concurrent first callers share
// the single in-flight resolution and its outcome.
type Resolver struct {
	// Bundled overrides the compiled-in account collection. Used by tests.
	Bundled []byte
	// HTTPClient performs the remote URL fetch. Defaults to http.DefaultClient.
	HTTPClient HTTPClient

	logger zerolog.Logger

	once     sync.Once
	resolved *Resolved
}

// NewResolver creates a resolver that reads the compiled-in accounts first.
func NewResolver(logger zerolog.Logger) *Resolver {
	return &Resolver{
		Bundled:    bundledAccounts,
		HTTPClient: http.DefaultClient,
		logger:     logger,
	}
}

type sourceStatus int

const (
	sourceNotConfigured sourceStatus = iota
	sourceFound
	sourceMalformed
)

// sourceResult is the tagged outcome of probing one credential source, so
// "nothing configured" never has to be represented as a nil account list.
type sourceResult struct {
	status   sourceStatus
	accounts []ServiceAccount
	reason   string
}

// Resolve returns the process-wide credential set, building it on first call.
func (r *Resolver) Resolve(ctx context.Context) *Resolved {
	r.once.Do(func() {
		r.resolved = r.resolve(ctx)
	})
	return r.resolved
}

func (r *Resolver) resolve(ctx context.Context) *Resolved {
	accounts := r.resolveAccounts(ctx)

	clientID, _ := env.Get(ctx, EnvClientID)
	clientSecret, _ := env.Get(ctx, EnvClientSecret)
	refreshToken, _ := env.Get(ctx, EnvRefreshToken)

	r.logger.Info().
		Int("service_accounts", len(accounts)).
		Bool("oauth_configured", clientID != "" && clientSecret != "" && refreshToken != "").
		Msg("Credential resolution complete")

	return &Resolved{
		Set: NewSet(accounts),
		OAuth: OAuthClient{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RefreshToken: refreshToken,
		},
	}
}

func (r *Resolver) resolveAccounts(ctx context.Context) []ServiceAccount {
	for _, probe := range []struct {
		name string
		fn   func(ctx context.Context) sourceResult
	}{
		{"bundled", r.fromBundled},
		{"remote_url", r.fromRemoteURL},
		{"env", r.fromEnv},
		{"legacy_env", r.fromLegacyEnv},
	} {
		res := probe.fn(ctx)
		switch res.status {
		case sourceFound:
			r.logger.Info().
				Str("source", probe.name).
				Int("count", len(res.accounts)).
				Msg("Loaded service accounts")
			return res.accounts
		case sourceMalformed:
			r.logger.Warn().
				Str("source", probe.name).
				Str("reason", res.reason).
				Msg("Skipping malformed credential source")
		}
	}
	return nil
}

type accountCollection struct {
	Accounts []json.RawMessage `json:"accounts"`
}

func (r *Resolver) fromBundled(ctx context.Context) sourceResult {
	if len(r.Bundled) == 0 {
		return sourceResult{status: sourceNotConfigured}
	}
	return r.parseCollection(r.Bundled)
}

func (r *Resolver) fromRemoteURL(ctx context.Context) sourceResult {
	rawURL, ok := env.Get(ctx, EnvAccountsURL)
	if !ok || rawURL == "" {
		return sourceResult{status: sourceNotConfigured}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return sourceResult{status: sourceMalformed, reason: fmt.Sprintf("invalid url: %v", err)}
	}
	resp, err := r.HTTPClient.Do(req)
	if err != nil {
		return sourceResult{status: sourceMalformed, reason: fmt.Sprintf("fetch failed: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return sourceResult{status: sourceMalformed, reason: fmt.Sprintf("fetch returned status %d", resp.StatusCode)}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return sourceResult{status: sourceMalformed, reason: fmt.Sprintf("read failed: %v", err)}
	}
	return r.parseCollection(body)
}

func (r *Resolver) fromEnv(ctx context.Context) sourceResult {
	var blobs []string

	if joined, ok := env.Get(ctx, EnvAccounts); ok && joined != "" {
		for _, blob := range strings.Split(joined, blobSeparator) {
			if strings.TrimSpace(blob) != "" {
				blobs = append(blobs, blob)
			}
		}
	}
	for i := 0; i < maxNumberedAccounts; i++ {
		if blob, ok := env.Get(ctx, fmt.Sprintf(EnvAccountN, i)); ok && blob != "" {
			blobs = append(blobs, blob)
		}
	}
	if len(blobs) == 0 {
		return sourceResult{status: sourceNotConfigured}
	}

	accounts := make([]ServiceAccount, 0, len(blobs))
	for _, blob := range blobs {
		account, err := parseServiceAccount([]byte(blob))
		if err != nil {
			r.logger.Warn().Err(err).Msg("Skipping malformed service account blob")
			continue
		}
		accounts = append(accounts, account)
	}
	if len(accounts) == 0 {
		return sourceResult{status: sourceMalformed, reason: "no valid service account blobs"}
	}
	return sourceResult{status: sourceFound, accounts: accounts}
}

func (r *Resolver) fromLegacyEnv(ctx context.Context) sourceResult {
	blob, ok := env.Get(ctx, EnvLegacy)
	if !ok || blob == "" {
		return sourceResult{status: sourceNotConfigured}
	}
	account, err := parseServiceAccount([]byte(blob))
	if err != nil {
		return sourceResult{status: sourceMalformed, reason: err.Error()}
	}
	return sourceResult{status: sourceFound, accounts: []ServiceAccount{account}}
}

func (r *Resolver) parseCollection(data []byte) sourceResult {
	var collection accountCollection
	if err := json.Unmarshal(data, &collection); err != nil {
		return sourceResult{status: sourceMalformed, reason: fmt.Sprintf("invalid accounts JSON: %v", err)}
	}
	if len(collection.Accounts) == 0 {
		return sourceResult{status: sourceNotConfigured}
	}

	accounts := make([]ServiceAccount, 0, len(collection.Accounts))
	for _, raw := range collection.Accounts {
		account, err := parseServiceAccount(raw)
		if err != nil {
			r.logger.Warn().Err(err).Msg("Skipping malformed service account entry")
			continue
		}
		accounts = append(accounts, account)
	}
	if len(accounts) == 0 {
		return sourceResult{status: sourceMalformed, reason: "no valid entries in accounts collection"}
	}
	return sourceResult{status: sourceFound, accounts: accounts}
}

func parseServiceAccount(data []byte) (ServiceAccount, error) {
	var account ServiceAccount
	if err := json.Unmarshal(data, &account); err != nil {
		return ServiceAccount{}, fmt.Errorf("failed to parse service account JSON: %w", err)
	}
	if account.ClientEmail == "" {
		return ServiceAccount{}, fmt.Errorf("service account is missing client_email")
	}
	if account.PrivateKey == "" {
		return ServiceAccount{}, fmt.Errorf("service account is missing private_key")
	}
	return account, nil
}
