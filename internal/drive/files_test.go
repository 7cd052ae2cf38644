package drive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTokens struct {
	token string
	err   error
}

func (s *staticTokens) GetAccessToken(ctx context.Context) (string, error) {
	return s.token, s.err
}

// testClient points a Client at a fake Drive upstream.
func testClient(upstream *httptest.Server, roots ...string) *Client {
	client := NewClient(&staticTokens{token: "test-token"}, zerolog.Nop(), func(context.Context) []string { return roots })
	client.APIBase = upstream.URL
	client.UploadBase = upstream.URL + "/upload"
	return client
}

func TestListFiles_RequestShape(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"files":[{"id":"f1","name":"a.png","mimeType":"image/png"}],"nextPageToken":"tok"}`))
	}))
	defer srv.Close()

	client := testClient(srv, "rootX")
	list, err := client.ListFiles(context.Background(), ListOptions{PageSize: 500, Search: "cat", TypeClass: "images"})
	require.NoError(t, err)

	require.Len(t, list.Files, 1)
	assert.Equal(t, "f1", list.Files[0].ID)
	assert.Equal(t, "tok", list.NextPageToken)

	assert.Equal(t, "/files", got.URL.Path)
	assert.Equal(t, "Bearer test-token", got.Header.Get("Authorization"))
	assert.Equal(t, "application/json", got.Header.Get("Accept"))

	params := got.URL.Query()
	assert.Equal(t, "100", params.Get("pageSize"), "page size is clamped to 100")
	assert.Equal(t, "modifiedTime desc", params.Get("orderBy"))
	assert.Contains(t, params.Get("q"), "'rootX' in parents")
	assert.Contains(t, params.Get("q"), "name contains 'cat'")
}

func TestGetMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/files/f1", r.URL.Path)
		assert.Equal(t, "id,name", r.URL.Query().Get("fields"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"f1","name":"report.pdf"}`))
	}))
	defer srv.Close()

	file, err := testClient(srv).GetMetadata(context.Background(), "f1", "id,name")
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", file.Name)
}

func TestDeleteFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, testClient(srv).DeleteFile(context.Background(), "f1"))
}

func TestRequestError_PreservesStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"message":"File not found"}}`))
	}))
	defer srv.Close()

	_, err := testClient(srv).GetMetadata(context.Background(), "missing", "")
	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusNotFound, reqErr.Status)
	assert.Contains(t, reqErr.Body, "File not found")
}

func TestUploadMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/upload/files", r.URL.Path)
		assert.Equal(t, "multipart", r.URL.Query().Get("uploadType"))

		mediaType, mtParams, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		require.NoError(t, err)
		assert.Equal(t, "multipart/related", mediaType)
		require.NotEmpty(t, mtParams["boundary"])

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		payload := string(body)
		assert.Contains(t, payload, `"name":"cat.png"`)
		assert.Contains(t, payload, `"parents":["rootX"]`)
		assert.Contains(t, payload, "meow-bytes")
		assert.True(t, strings.HasSuffix(strings.TrimSpace(payload), mtParams["boundary"]+"--"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"new-id","name":"cat.png","mimeType":"image/png"}`))
	}))
	defer srv.Close()

	client := testClient(srv, "rootX")
	file, err := client.UploadMultipart(context.Background(), UploadMetadata{
		Name:     "cat.png",
		MimeType: "image/png",
	}, strings.NewReader("meow-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "new-id", file.ID)
}

func TestCreateResumableSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/files/generateIds":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"ids":["pre-id"]}`))
		case "/upload/files":
			assert.Equal(t, "resumable", r.URL.Query().Get("uploadType"))
			assert.Equal(t, "video/mp4", r.Header.Get("X-Upload-Content-Type"))
			assert.Equal(t, "1048576", r.Header.Get("X-Upload-Content-Length"))

			var meta map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&meta))
			assert.Equal(t, "pre-id", meta["id"])
			assert.Equal(t, "clip.mp4", meta["name"])

			w.Header().Set("Location", "https://upload.test/session/123")
			w.WriteHeader(http.StatusOK)
		default:
			t.Errorf("unexpected request to %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	session, err := testClient(srv, "rootX").CreateResumableSession(context.Background(), ResumableOptions{
		Name:     "clip.mp4",
		MimeType: "video/mp4",
		Size:     1 << 20,
	})
	require.NoError(t, err)
	assert.Equal(t, "https://upload.test/session/123", session.UploadURL)
	assert.Equal(t, "pre-id", session.FileID)
}

func TestCountFiles_WalksPages(t *testing.T) {
	pages := []string{
		`{"files":[{"mimeType":"image/png"},{"mimeType":"application/vnd.google-apps.folder"}],"nextPageToken":"page2"}`,
		`{"files":[{"mimeType":"video/mp4"}]}`,
	}
	var served int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, pages[served])
		served++
	}))
	defer srv.Close()

	result, err := testClient(srv).CountFiles(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 3, result.TotalFiles)
	assert.Equal(t, 1, result.FolderCount)
	assert.True(t, result.Complete)
	assert.Equal(t, 2, served)
}

func TestCountFiles_TruncatedByPageBound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"files":[{"mimeType":"image/png"}],"nextPageToken":"more"}`))
	}))
	defer srv.Close()

	result, err := testClient(srv).CountFiles(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, result.TotalFiles)
	assert.False(t, result.Complete)
}

func TestStorageInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/about", r.URL.Path)
		assert.Equal(t, "storageQuota", r.URL.Query().Get("fields"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"storageQuota":{"limit":"107374182400","usage":"1024","usageInDrive":"1000","usageInDriveTrash":"24"}}`))
	}))
	defer srv.Close()

	quota, err := testClient(srv).StorageInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "107374182400", quota.Limit)
	assert.Equal(t, "24", quota.UsageInDriveTrash)
}

func TestTokenSourceFailurePropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not reach upstream without a token")
	}))
	defer srv.Close()

	client := testClient(srv)
	client.tokens = &staticTokens{err: fmt.Errorf("no credentials")}

	_, err := client.ListFiles(context.Background(), ListOptions{})
	require.ErrorContains(t, err, "no credentials")
}
