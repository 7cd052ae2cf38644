package drive

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// StreamResult is a live byte stream from Drive. Body is the upstream
// response body; closing it (or cancelling the request context) aborts the
// outbound connection.
type StreamResult struct {
	Status int
	Header http.Header
	Body   io.ReadCloser
}

// StreamFile opens a ranged download of a file's content. Status 200 and 206
// bodies pass through unmodified with normalized response headers; anything
// else becomes a RequestError.
func (c *Client) StreamFile(ctx context.Context, id, rangeHeader, method string) (*StreamResult, error) {
	if method != http.MethodGet && method != http.MethodHead {
		return nil, fmt.Errorf("unsupported stream method %q", method)
	}

	header := http.Header{}
	header.Set("Accept", "*/*")
	if rangeHeader != "" {
		header.Set("Range", rangeHeader)
	}

	resp, err := c.do(ctx, method, c.APIBase+"/files/"+url.PathEscape(id)+"?alt=media&supportsAllDrives=true", nil, header)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp, http.StatusOK, http.StatusPartialContent); err != nil {
		return nil, err
	}

	return &StreamResult{
		Status: resp.StatusCode,
		Header: normalizeStreamHeaders(resp.Header),
		Body:   resp.Body,
	}, nil
}

// normalizeStreamHeaders rewrites upstream headers for public serving: CORS
// open, inline disposition, and a default cache policy when Drive sends none.
func normalizeStreamHeaders(upstream http.Header) http.Header {
	header := http.Header{}
	for _, key := range []string{"Content-Type", "Content-Length", "Content-Range", "Accept-Ranges", "Cache-Control", "Etag", "Last-Modified"} {
		if value := upstream.Get(key); value != "" {
			header.Set(key, value)
		}
	}
	header.Set("Access-Control-Allow-Origin", "*")
	header.Set("Content-Disposition", "inline")
	if header.Get("Cache-Control") == "" {
		header.Set("Cache-Control", "public, max-age=3600")
	}
	return header
}
