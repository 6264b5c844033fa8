// Package station serves the operator screen: a single page plus a JSON API that drives
// one gate.Session, records a local history and archives captures that failed to decode.
package station

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/zombor/scangate/internal/gate"
)

// Controller is the session surface the station drives
type Controller interface {
	Snapshot() gate.Snapshot
	Capture(ctx context.Context, c gate.Capture) (gate.Snapshot, error)
	Retry(ctx context.Context) (gate.Snapshot, error)
	Acknowledge() (gate.Snapshot, error)
	Dismiss() (gate.Snapshot, error)
	Refresh(ctx context.Context) (gate.Snapshot, error)
}

// Server handles HTTP requests for the operator station
type Server struct {
	session   Controller
	history   History
	storage   Storage
	basicAuth BasicAuth
	mux       *http.ServeMux
}

// BasicAuth holds basic authentication credentials
type BasicAuth struct {
	Username string
	Password string
}

// NewServer creates a new Server with default mux
func NewServer(session Controller, history History, storage Storage, basicAuth BasicAuth) *Server {
	return NewServerWithMux(session, history, storage, basicAuth, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(session Controller, history History, storage Storage, basicAuth BasicAuth, mux *http.ServeMux) *Server {
	s := &Server{
		session:   session,
		history:   history,
		storage:   storage,
		basicAuth: basicAuth,
		mux:       mux,
	}
	s.registerRoutes()
	return s
}

// authenticate checks basic auth credentials
func (s *Server) authenticate(r *http.Request) bool {
	if s.basicAuth.Username == "" && s.basicAuth.Password == "" {
		return true // No auth required if not configured
	}

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Basic ") {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
	if err != nil {
		return false
	}

	credentials := strings.SplitN(string(decoded), ":", 2)
	if len(credentials) != 2 {
		return false
	}

	return credentials[0] == s.basicAuth.Username && credentials[1] == s.basicAuth.Password
}

// requireAuth middleware
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			setCORSHeaders(w)
			w.Header().Set("WWW-Authenticate", `Basic realm="Scan Station"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// corsMiddleware adds CORS headers to responses
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)

		// Handle preflight OPTIONS requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// registerRoutes registers all routes on the server's mux.
// Routes must be registered from most specific to least specific to avoid conflicts.
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /api/session", s.requireAuth(s.handleSnapshot))
	s.mux.HandleFunc("POST /api/session/capture", s.requireAuth(s.handleCapture))
	s.mux.HandleFunc("POST /api/session/acknowledge", s.requireAuth(s.handleAcknowledge))
	s.mux.HandleFunc("POST /api/session/retry", s.requireAuth(s.handleRetry))
	s.mux.HandleFunc("POST /api/session/dismiss", s.requireAuth(s.handleDismiss))
	s.mux.HandleFunc("POST /api/session/refresh", s.requireAuth(s.handleRefresh))

	s.mux.HandleFunc("GET /api/history/{id}/capture", s.requireAuth(s.handleGetCapture))
	s.mux.HandleFunc("GET /api/history", s.requireAuth(s.handleListHistory))

	// Static HTML interface (register last as it's the catch-all)
	s.mux.HandleFunc("GET /index.html", s.requireAuth(s.handleIndex))
	s.mux.HandleFunc("GET /{$}", s.requireAuth(s.handleIndex))
}

// Handler returns the server's routes wrapped with CORS handling
func (s *Server) Handler() http.Handler {
	return corsMiddleware(s.mux)
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Handler().ServeHTTP(w, r)
}
