package server

import (
	_ "embed"
	"net/http"
	"strings"
	"time"

	"github.com/okitz/driveserve/internal/counter"
	"github.com/okitz/driveserve/internal/drive"
	"github.com/okitz/driveserve/internal/env"
	"github.com/rs/zerolog"
)

//go:embed dashboard.html
var dashboardHTML []byte

// Server routes public downloads, authenticated uploads and the dashboard
// onto the Drive gateway.
type Server struct {
	drive    *drive.Client
	counters counter.Store
	mux      *http.ServeMux
	logger   zerolog.Logger
}

func New(logger zerolog.Logger, driveClient *drive.Client, counters counter.Store) *Server {
	s := &Server{
		drive:    driveClient,
		counters: counters,
		mux:      http.NewServeMux(),
		logger:   logger,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/files", s.listFilesHandler)
	s.mux.HandleFunc("/api/files/", s.fileHandler)
	s.mux.HandleFunc("/api/upload", s.apiKeyMiddleware(s.uploadHandler))
	s.mux.HandleFunc("/api/upload/resumable", s.apiKeyMiddleware(s.resumableHandler))
	s.mux.HandleFunc("/api/stats", s.statsHandler)
	s.mux.HandleFunc("/dl/", s.downloadHandler)
	s.mux.HandleFunc("/health", s.healthHandler)
	s.mux.HandleFunc("/", s.dashboardHandler)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.loggingMiddleware(s.corsMiddleware(s.mux)).ServeHTTP(w, r)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		s.logger.Info().
			Str("method", r.Method).
			Str("uri", r.RequestURI).
			Str("remote_addr", r.RemoteAddr).
			Str("user_agent", r.UserAgent()).
			Msg("Incoming request")
		next.ServeHTTP(w, r)
		s.logger.Info().
			Str("method", r.Method).
			Str("uri", r.RequestURI).
			Dur("duration", time.Since(start)).
			Msg("Finished request")
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, Range, X-API-Key")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// apiKeyMiddleware protects mutating routes with the configured API key,
// accepted from either 'Authorization: Bearer <key>' or 'X-API-Key: <key>'.
func (s *Server) apiKeyMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apiKey, ok := env.Get(r.Context(), "API_KEY")
		if !ok || apiKey == "" {
			s.logger.Error().Msg("API_KEY environment variable not set")
			http.Error(w, "Upload API not configured", http.StatusInternalServerError)
			return
		}

		var providedKey string
		if authHeader := r.Header.Get("Authorization"); authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
				return
			}
			providedKey = parts[1]
		} else {
			providedKey = r.Header.Get("X-API-Key")
		}

		if providedKey == "" || providedKey != apiKey {
			s.logger.Warn().
				Str("method", r.Method).
				Str("uri", r.RequestURI).
				Str("remote_addr", r.RemoteAddr).
				Msg("Rejected request with missing or invalid API key")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next(w, r)
	}
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status": "ok"}`))
}

func (s *Server) dashboardHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		s.logger.Warn().
			Str("method", r.Method).
			Str("uri", r.RequestURI).
			Msg("Unhandled route")
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(dashboardHTML)
}
