package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/okitz/driveserve/internal/auth"
	"github.com/okitz/driveserve/internal/counter"
	"github.com/okitz/driveserve/internal/drive"
)

// maxCountPages bounds the page walk behind /api/stats.
const maxCountPages = 10

func (s *Server) listFilesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query()
	pageSize, _ := strconv.Atoi(query.Get("pageSize"))

	list, err := s.drive.ListFiles(r.Context(), drive.ListOptions{
		PageSize:  pageSize,
		PageToken: query.Get("pageToken"),
		Search:    query.Get("search"),
		TypeClass: query.Get("type"),
	})
	if err != nil {
		s.writeUpstreamError(w, err, "Failed to list files")
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

// fileHandler serves metadata reads and deletes for /api/files/{id}.
func (s *Server) fileHandler(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/files/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		file, err := s.drive.GetMetadata(r.Context(), id, r.URL.Query().Get("fields"))
		if err != nil {
			s.writeUpstreamError(w, err, "Failed to get file metadata")
			return
		}
		s.writeJSON(w, http.StatusOK, file)
	case http.MethodDelete:
		s.apiKeyMiddleware(func(w http.ResponseWriter, r *http.Request) {
			if err := s.drive.DeleteFile(r.Context(), id); err != nil {
				s.writeUpstreamError(w, err, "Failed to delete file")
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) uploadHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Missing file form field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	name := r.FormValue("name")
	if name == "" {
		name = header.Filename
	}

	uploaded, err := s.drive.UploadMultipart(r.Context(), drive.UploadMetadata{
		Name:        name,
		MimeType:    header.Header.Get("Content-Type"),
		Description: r.FormValue("description"),
	}, file)
	if err != nil {
		s.writeUpstreamError(w, err, "Failed to upload file")
		return
	}

	s.bumpCounter(r, counter.KeyUploads)
	s.logger.Info().
		Str("file_id", uploaded.ID).
		Str("name", uploaded.Name).
		Msg("Uploaded file")
	s.writeJSON(w, http.StatusOK, uploaded)
}

type resumableRequest struct {
	Name        string `json:"name"`
	MimeType    string `json:"mimeType"`
	Size        int64  `json:"size"`
	Description string `json:"description"`
}

func (s *Server) resumableHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req resumableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Failed to parse request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "Missing file name", http.StatusBadRequest)
		return
	}

	session, err := s.drive.CreateResumableSession(r.Context(), drive.ResumableOptions{
		Name:        req.Name,
		MimeType:    req.MimeType,
		Size:        req.Size,
		Description: req.Description,
	})
	if err != nil {
		s.writeUpstreamError(w, err, "Failed to create resumable session")
		return
	}

	s.bumpCounter(r, counter.KeyUploads)
	s.writeJSON(w, http.StatusOK, session)
}

// downloadHandler streams file content for /dl/{id}, honoring Range headers
// so video seeking works.
func (s *Server) downloadHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/dl/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}

	stream, err := s.drive.StreamFile(r.Context(), id, r.Header.Get("Range"), r.Method)
	if err != nil {
		s.writeUpstreamError(w, err, "Failed to stream file")
		return
	}
	defer stream.Body.Close()

	for key, values := range stream.Header {
		for _, value := range values {
			w.Header().Set(key, value)
		}
	}
	w.WriteHeader(stream.Status)

	if r.Method == http.MethodHead {
		return
	}

	// The request context aborts the copy when the client disconnects.
	if _, err := io.Copy(w, stream.Body); err != nil {
		s.logger.Debug().Err(err).Str("file_id", id).Msg("Download stream interrupted")
		return
	}
	s.bumpCounter(r, counter.KeyDownloads)
}

type statsResponse struct {
	Downloads int64               `json:"downloads"`
	Uploads   int64               `json:"uploads"`
	Files     *drive.CountResult  `json:"files"`
	Storage   *drive.StorageQuota `json:"storage"`
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	stats := statsResponse{}
	var err error
	if stats.Downloads, err = s.counters.Get(r.Context(), counter.KeyDownloads); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to read download counter")
	}
	if stats.Uploads, err = s.counters.Get(r.Context(), counter.KeyUploads); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to read upload counter")
	}

	if stats.Files, err = s.drive.CountFiles(r.Context(), maxCountPages); err != nil {
		s.writeUpstreamError(w, err, "Failed to count files")
		return
	}
	if stats.Storage, err = s.drive.StorageInfo(r.Context()); err != nil {
		s.writeUpstreamError(w, err, "Failed to get storage info")
		return
	}

	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) bumpCounter(r *http.Request, key string) {
	if err := s.counters.Incr(r.Context(), key); err != nil {
		s.logger.Warn().Err(err).Str("counter", key).Msg("Failed to increment counter")
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

// writeUpstreamError translates gateway errors: Drive failures mirror the
// upstream status and body, missing credentials surface as 503.
func (s *Server) writeUpstreamError(w http.ResponseWriter, err error, msg string) {
	var reqErr *drive.RequestError
	if errors.As(err, &reqErr) {
		s.logger.Warn().
			Int("status_code", reqErr.Status).
			Str("response_body", reqErr.Body).
			Msg(msg)
		http.Error(w, reqErr.Body, reqErr.Status)
		return
	}

	var confErr *auth.ConfigurationError
	if errors.As(err, &confErr) {
		s.logger.Error().Err(err).Msg(msg)
		http.Error(w, "Authentication unavailable: "+confErr.Reason, http.StatusServiceUnavailable)
		return
	}

	s.logger.Error().Err(err).Msg(msg)
	http.Error(w, msg+": "+err.Error(), http.StatusBadGateway)
}
