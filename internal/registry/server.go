package registry

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/zombor/scangate/internal/scanapi"
)

// Verifier resolves a bearer token to an operator name
type Verifier interface {
	Verify(token string) (string, error)
}

type operatorKey struct{}

// operatorFrom returns the operator name stored by requireBearer
func operatorFrom(ctx context.Context) string {
	name, _ := ctx.Value(operatorKey{}).(string)
	return name
}

// Server handles HTTP requests for scans
type Server struct {
	service  *Service
	verifier Verifier
	mux      *http.ServeMux
}

// NewServer creates a new Server with default mux
func NewServer(service *Service, verifier Verifier) *Server {
	return NewServerWithMux(service, verifier, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(service *Service, verifier Verifier, mux *http.ServeMux) *Server {
	s := &Server{
		service:  service,
		verifier: verifier,
		mux:      mux,
	}
	s.registerRoutes()
	return s
}

// requireBearer rejects requests without a valid operator token
func (s *Server) requireBearer(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			writeJSON(w, http.StatusUnauthorized, scanapi.SubmitResponse{Message: "Authentication required"})
			return
		}

		name, err := s.verifier.Verify(strings.TrimSpace(strings.TrimPrefix(auth, "Bearer ")))
		if err != nil {
			slog.Warn("Rejected bearer token", "path", r.URL.Path, "error", err)
			writeJSON(w, http.StatusUnauthorized, scanapi.SubmitResponse{Message: "Invalid or expired session"})
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), operatorKey{}, name)))
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

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// registerRoutes registers all API routes on the server's mux
func (s *Server) registerRoutes() {
	for _, kind := range []scanapi.Kind{scanapi.KindQR, scanapi.KindEmployee} {
		s.mux.HandleFunc("GET "+kind.StatsPath(), s.requireBearer(s.handleStats(kind)))
		s.mux.HandleFunc("GET "+kind.ScansPath(), s.requireBearer(s.handleListScans(kind)))
		s.mux.HandleFunc("POST "+kind.ScansPath(), s.requireBearer(s.handleRecordScan(kind)))
	}
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
}

// Handler returns the server's routes wrapped with CORS handling
func (s *Server) Handler() http.Handler {
	return corsMiddleware(s.mux)
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Handler().ServeHTTP(w, r)
}
