package drive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const maxPageSize = 100

// File is the subset of a Drive file resource this service works with.
// Drive reports size as a decimal string.
type File struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	MimeType     string   `json:"mimeType"`
	Size         string   `json:"size,omitempty"`
	Description  string   `json:"description,omitempty"`
	CreatedTime  string   `json:"createdTime,omitempty"`
	ModifiedTime string   `json:"modifiedTime,omitempty"`
	Parents      []string `json:"parents,omitempty"`
}

// FileList is one page of listing results.
type FileList struct {
	Files         []File `json:"files"`
	NextPageToken string `json:"nextPageToken,omitempty"`
}

// ListOptions controls a single listing page.
type ListOptions struct {
	PageSize  int
	PageToken string
	Search    string
	TypeClass string
}

// ListFiles lists files under the configured root folders, most recently
// modified first. PageSize is clamped to [1,100].
func (c *Client) ListFiles(ctx context.Context, opts ListOptions) (*FileList, error) {
	pageSize := opts.PageSize
	if pageSize <= 0 || pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	params := url.Values{}
	params.Set("q", buildQuery(c.roots(ctx), opts.Search, opts.TypeClass))
	params.Set("orderBy", "modifiedTime desc")
	params.Set("pageSize", strconv.Itoa(pageSize))
	params.Set("fields", fmt.Sprintf("nextPageToken,files(%s)", fileFields))
	params.Set("supportsAllDrives", "true")
	params.Set("includeItemsFromAllDrives", "true")
	if opts.PageToken != "" {
		params.Set("pageToken", opts.PageToken)
	}

	resp, err := c.do(ctx, http.MethodGet, c.APIBase+"/files?"+params.Encode(), nil, nil)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp, http.StatusOK); err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var list FileList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("failed to decode file list: %w", err)
	}
	return &list, nil
}

// GetMetadata fetches a file resource with the given fields, or the standard
// field set when fields is empty.
func (c *Client) GetMetadata(ctx context.Context, id, fields string) (*File, error) {
	if fields == "" {
		fields = fileFields
	}
	params := url.Values{}
	params.Set("fields", fields)
	params.Set("supportsAllDrives", "true")

	resp, err := c.do(ctx, http.MethodGet, c.APIBase+"/files/"+url.PathEscape(id)+"?"+params.Encode(), nil, nil)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp, http.StatusOK); err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var file File
	if err := json.NewDecoder(resp.Body).Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to decode file metadata: %w", err)
	}
	return &file, nil
}

// DeleteFile permanently deletes a file.
func (c *Client) DeleteFile(ctx context.Context, id string) error {
	resp, err := c.do(ctx, http.MethodDelete, c.APIBase+"/files/"+url.PathEscape(id)+"?supportsAllDrives=true", nil, nil)
	if err != nil {
		return err
	}
	if err := checkStatus(resp, http.StatusNoContent, http.StatusOK); err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// UploadMetadata describes the file being uploaded.
type UploadMetadata struct {
	Name        string
	MimeType    string
	Description string
	Parents     []string
}

// UploadMultipart uploads file content and metadata in one multipart/related
// request. Content is streamed, never buffered whole.
func (c *Client) UploadMultipart(ctx context.Context, meta UploadMetadata, content io.Reader) (*File, error) {
	if meta.MimeType == "" {
		meta.MimeType = "application/octet-stream"
	}
	if len(meta.Parents) == 0 {
		if roots := c.roots(ctx); len(roots) > 0 {
			meta.Parents = roots[:1]
		}
	}

	metadata := map[string]any{"name": meta.Name, "mimeType": meta.MimeType}
	if meta.Description != "" {
		metadata["description"] = meta.Description
	}
	if len(meta.Parents) > 0 {
		metadata["parents"] = meta.Parents
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal upload metadata: %w", err)
	}

	boundary := uuid.NewString()
	head := "--" + boundary + "\r\nContent-Type: application/json; charset=UTF-8\r\n\r\n" +
		string(metaJSON) +
		"\r\n--" + boundary + "\r\nContent-Type: " + meta.MimeType + "\r\n\r\n"
	tail := "\r\n--" + boundary + "--"
	body := io.MultiReader(strings.NewReader(head), content, strings.NewReader(tail))

	params := url.Values{}
	params.Set("uploadType", "multipart")
	params.Set("fields", fileFields)
	params.Set("supportsAllDrives", "true")

	header := http.Header{}
	header.Set("Content-Type", "multipart/related; boundary="+boundary)

	resp, err := c.do(ctx, http.MethodPost, c.UploadBase+"/files?"+params.Encode(), body, header)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp, http.StatusOK); err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var file File
	if err := json.NewDecoder(resp.Body).Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to decode upload response: %w", err)
	}
	return &file, nil
}

// ResumableSession is an open resumable upload: the client streams bytes to
// UploadURL, possibly across multiple requests.
type ResumableSession struct {
	UploadURL string `json:"uploadUrl"`
	FileID    string `json:"fileId"`
}

// ResumableOptions describes the file a resumable session will create.
type ResumableOptions struct {
	Name        string
	MimeType    string
	Size        int64
	Description string
	Parents     []string
}

// CreateResumableSession pre-generates a file ID, then opens a resumable
// upload session so the file's identity is known before any bytes arrive.
func (c *Client) CreateResumableSession(ctx context.Context, opts ResumableOptions) (*ResumableSession, error) {
	fileID, err := c.generateFileID(ctx)
	if err != nil {
		return nil, err
	}

	if opts.MimeType == "" {
		opts.MimeType = "application/octet-stream"
	}
	if len(opts.Parents) == 0 {
		if roots := c.roots(ctx); len(roots) > 0 {
			opts.Parents = roots[:1]
		}
	}

	metadata := map[string]any{"id": fileID, "name": opts.Name, "mimeType": opts.MimeType}
	if opts.Description != "" {
		metadata["description"] = opts.Description
	}
	if len(opts.Parents) > 0 {
		metadata["parents"] = opts.Parents
	}
	bodyJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session metadata: %w", err)
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json; charset=UTF-8")
	header.Set("X-Upload-Content-Type", opts.MimeType)
	if opts.Size > 0 {
		header.Set("X-Upload-Content-Length", strconv.FormatInt(opts.Size, 10))
	}

	resp, err := c.do(ctx, http.MethodPost, c.UploadBase+"/files?uploadType=resumable&supportsAllDrives=true", strings.NewReader(string(bodyJSON)), header)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp, http.StatusOK); err != nil {
		return nil, err
	}
	resp.Body.Close()

	uploadURL := resp.Header.Get("Location")
	if uploadURL == "" {
		return nil, fmt.Errorf("drive returned no resumable upload location")
	}
	return &ResumableSession{UploadURL: uploadURL, FileID: fileID}, nil
}

func (c *Client) generateFileID(ctx context.Context) (string, error) {
	resp, err := c.do(ctx, http.MethodGet, c.APIBase+"/files/generateIds?count=1&fields=ids", nil, nil)
	if err != nil {
		return "", err
	}
	if err := checkStatus(resp, http.StatusOK); err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var ids struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ids); err != nil {
		return "", fmt.Errorf("failed to decode generated ids: %w", err)
	}
	if len(ids.IDs) == 0 {
		return "", fmt.Errorf("drive returned no generated ids")
	}
	return ids.IDs[0], nil
}

// CountResult summarizes a bounded walk over all pages.
type CountResult struct {
	TotalFiles  int  `json:"totalFiles"`
	FolderCount int  `json:"folderCount"`
	Complete    bool `json:"complete"`
}

// CountFiles walks listing pages up to maxPages, accumulating file and folder
// totals. Complete is false when the walk was truncated by the page bound.
func (c *Client) CountFiles(ctx context.Context, maxPages int) (*CountResult, error) {
	if maxPages <= 0 {
		maxPages = 1
	}

	result := &CountResult{}
	pageToken := ""
	for page := 0; page < maxPages; page++ {
		params := url.Values{}
		params.Set("q", buildQuery(c.roots(ctx), "", ""))
		params.Set("pageSize", strconv.Itoa(maxPageSize))
		params.Set("fields", "nextPageToken,files(mimeType)")
		params.Set("supportsAllDrives", "true")
		params.Set("includeItemsFromAllDrives", "true")
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}

		resp, err := c.do(ctx, http.MethodGet, c.APIBase+"/files?"+params.Encode(), nil, nil)
		if err != nil {
			return nil, err
		}
		if err := checkStatus(resp, http.StatusOK); err != nil {
			return nil, err
		}

		var list FileList
		err = json.NewDecoder(resp.Body).Decode(&list)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to decode file list: %w", err)
		}

		for _, file := range list.Files {
			result.TotalFiles++
			if file.MimeType == folderMimeType {
				result.FolderCount++
			}
		}

		if list.NextPageToken == "" {
			result.Complete = true
			break
		}
		pageToken = list.NextPageToken
	}
	return result, nil
}

// StorageQuota mirrors Drive's about.storageQuota resource (decimal strings).
type StorageQuota struct {
	Limit             string `json:"limit"`
	Usage             string `json:"usage"`
	UsageInDrive      string `json:"usageInDrive"`
	UsageInDriveTrash string `json:"usageInDriveTrash"`
}

// StorageInfo fetches the Drive storage quota for the active identity.
func (c *Client) StorageInfo(ctx context.Context) (*StorageQuota, error) {
	resp, err := c.do(ctx, http.MethodGet, c.APIBase+"/about?fields=storageQuota", nil, nil)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp, http.StatusOK); err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var about struct {
		StorageQuota StorageQuota `json:"storageQuota"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&about); err != nil {
		return nil, fmt.Errorf("failed to decode storage quota: %w", err)
	}
	return &about.StorageQuota, nil
}
