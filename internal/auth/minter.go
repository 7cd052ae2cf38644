package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/okitz/driveserve/internal/credentials"
)

const (
	// TokenURL is the Google OAuth token endpoint used for both grant types
	TokenURL = "https://oauth2.googleapis.com/token"
	// DriveScope is the OAuth scope requested for every minted token
	DriveScope = "https://www.googleapis.com/auth/drive"
	// grantJWTBearer is the grant type for service-account assertions
	grantJWTBearer = "urn:ietf:params:oauth:grant-type:jwt-bearer"

	// defaultTokenLifetime applies when the endpoint omits expires_in
	defaultTokenLifetime = 3600 * time.Second
	// assertionLifetime is the exp-iat window of the signed assertion
	assertionLifetime = 3600 * time.Second
	// ExpirySafetyMargin keeps tokens out of use near their expiry to
	// tolerate clock skew and in-flight request latency
	ExpirySafetyMargin = 60 * time.Second
)

// Token is a minted bearer token with its absolute expiry. Expiry is stored
// in epoch milliseconds, never relative seconds, so cache reads don't drift.
type Token struct {
	AccessToken string
	ExpiresAt   int64
}

// ValidAt reports whether the token may still be used at the given time.
func (t Token) ValidAt(now time.Time) bool {
	return now.UnixMilli()+ExpirySafetyMargin.Milliseconds() < t.ExpiresAt
}

// tokenResponse represents the OAuth token endpoint success response
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type,omitempty"`
}

// tokenErrorResponse represents the OAuth token endpoint error response
type tokenErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// HTTPClient is an interface for making HTTP requests
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Minter exchanges a single credential for a short-lived access token.
// TokenURL and HTTPClient are overridable for tests.
type Minter struct {
	TokenURL   string
	HTTPClient HTTPClient

	now func() time.Time
}

// NewMinter creates a minter targeting the Google token endpoint.
func NewMinter() *Minter {
	return &Minter{
		TokenURL:   TokenURL,
		HTTPClient: http.DefaultClient,
		now:        time.Now,
	}
}

// MintServiceAccount signs a JWT-bearer assertion with the account's private
// key and exchanges it for an access token.
func (m *Minter) MintServiceAccount(ctx context.Context, account credentials.ServiceAccount) (Token, error) {
	assertion, err := m.signAssertion(account)
	if err != nil {
		return Token{}, err
	}

	form := url.Values{}
	form.Set("grant_type", grantJWTBearer)
	form.Set("assertion", assertion)
	return m.exchange(ctx, form)
}

// MintRefreshToken exchanges OAuth client credentials and a refresh token for
// an access token. Incomplete inputs fail before any network call.
func (m *Minter) MintRefreshToken(ctx context.Context, client credentials.OAuthClient) (Token, error) {
	if client.ClientID == "" || client.ClientSecret == "" || client.RefreshToken == "" {
		return Token{}, &ConfigurationError{Reason: "client_id, client_secret and refresh_token are all required"}
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", client.ClientID)
	form.Set("client_secret", client.ClientSecret)
	form.Set("refresh_token", client.RefreshToken)
	return m.exchange(ctx, form)
}

// signAssertion builds the RS256 compact-serialized assertion:
// {alg: RS256, typ: JWT} over {iss, scope, aud, iat, exp}.
func (m *Minter) signAssertion(account credentials.ServiceAccount) (string, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(account.PrivateKey))
	if err != nil {
		return "", fmt.Errorf("failed to parse private key for %s: %w", account.ClientEmail, err)
	}

	iat := m.now().Unix()
	claims := jwt.MapClaims{
		"iss":   account.ClientEmail,
		"scope": DriveScope,
		"aud":   m.TokenURL,
		"iat":   iat,
		"exp":   iat + int64(assertionLifetime.Seconds()),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("failed to sign assertion for %s: %w", account.ClientEmail, err)
	}
	return signed, nil
}

func (m *Minter) exchange(ctx context.Context, form url.Values) (Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Token{}, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.HTTPClient.Do(req)
	if err != nil {
		return Token{}, fmt.Errorf("failed to reach token endpoint: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Token{}, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		exchangeErr := &ExchangeError{Status: resp.StatusCode, Description: string(body)}
		var errResp tokenErrorResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
			exchangeErr.Code = errResp.Error
			exchangeErr.Description = errResp.ErrorDescription
		}
		return Token{}, exchangeErr
	}

	var tokenResp tokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return Token{}, fmt.Errorf("failed to decode token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return Token{}, fmt.Errorf("token endpoint returned no access_token")
	}

	lifetime := tokenResp.ExpiresIn
	if lifetime <= 0 {
		lifetime = int64(defaultTokenLifetime.Seconds())
	}

	return Token{
		AccessToken: tokenResp.AccessToken,
		ExpiresAt:   m.now().UnixMilli() + lifetime*1000,
	}, nil
}
