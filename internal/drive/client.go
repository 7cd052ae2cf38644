package drive

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"
)

const (
	defaultAPIBase    = "https://www.googleapis.com/drive/v3"
	defaultUploadBase = "https://www.googleapis.com/upload/drive/v3"

	folderMimeType = "application/vnd.google-apps.folder"

	// fileFields is the standard field set requested for file resources
	fileFields = "id,name,mimeType,size,description,createdTime,modifiedTime,parents"
)

// TokenSource provides a valid bearer token for outbound Drive calls.
type TokenSource interface {
	GetAccessToken(ctx context.Context) (string, error)
}

// HTTPClient is an interface for making HTTP requests
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// RequestError is a failed Drive API call with the upstream status and body
// preserved for diagnostics. This layer never retries it.
type RequestError struct {
	Status int
	Body   string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("drive request failed with status %d: %s", e.Status, e.Body)
}

// Client is a thin façade over the Drive REST API. Every call attaches a
// bearer token from the TokenSource and translates non-2xx responses into
// RequestError.
type Client struct {
	// APIBase and UploadBase are overridable for tests.
	APIBase    string
	UploadBase string
	HTTPClient HTTPClient

	tokens TokenSource
	logger zerolog.Logger
	roots  func(ctx context.Context) []string
}

// NewClient creates a Drive client. rootFolders is called per operation so
// Workers env bindings, which only exist on a request context, resolve
// correctly; it may return nil to leave operations unscoped.
func NewClient(tokens TokenSource, logger zerolog.Logger, rootFolders func(ctx context.Context) []string) *Client {
	if rootFolders == nil {
		rootFolders = func(context.Context) []string { return nil }
	}
	return &Client{
		APIBase:    defaultAPIBase,
		UploadBase: defaultUploadBase,
		HTTPClient: http.DefaultClient,
		tokens:     tokens,
		logger:     logger,
		roots:      rootFolders,
	}
}

// do sends an authenticated request. Accept defaults to application/json
// unless the caller set it.
func (c *Client) do(ctx context.Context, method, rawURL string, body io.Reader, header http.Header) (*http.Response, error) {
	token, err := c.tokens.GetAccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive request: %w", err)
	}
	for key, values := range header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("drive request failed: %w", err)
	}
	return resp, nil
}

// checkStatus drains and closes the body, returning a RequestError, unless
// the status is one of the allowed ones.
func checkStatus(resp *http.Response, allowed ...int) error {
	for _, status := range allowed {
		if resp.StatusCode == status {
			return nil
		}
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	return &RequestError{Status: resp.StatusCode, Body: string(body)}
}
