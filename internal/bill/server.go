package bill

import (
	"log/slog"
	"net"
	"net/http"
)

// Server handles HTTP requests for bill uploads and analysis.
type Server struct {
	service     *Service
	apiKey      string
	rateLimiter *RateLimiter
	mux         *http.ServeMux
}

// NewServer creates a new Server with default mux.
func NewServer(service *Service, apiKey string, rateLimiter *RateLimiter) *Server {
	return NewServerWithMux(service, apiKey, rateLimiter, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing.
func NewServerWithMux(service *Service, apiKey string, rateLimiter *RateLimiter, mux *http.ServeMux) *Server {
	s := &Server{
		service:     service,
		apiKey:      apiKey,
		rateLimiter: rateLimiter,
		mux:         mux,
	}
	s.registerRoutes()
	return s
}

// authenticate checks the X-API-Key header when a key is configured.
func (s *Server) authenticate(r *http.Request) bool {
	if s.apiKey == "" {
		return true // No auth required if not configured
	}
	return r.Header.Get("X-API-Key") == s.apiKey
}

// requireAuth middleware
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			writeHeaders(w)
			http.Error(w, "Invalid API key", http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

// limitRate middleware rejects clients over their request budget.
func (s *Server) limitRate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.rateLimiter != nil && !s.rateLimiter.Allow(clientIP(r)) {
			slog.Warn("Rate limit exceeded", "client", clientIP(r))
			writeHeaders(w)
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

// headerMiddleware adds CORS and security headers and answers preflight
// requests.
func (s *Server) headerMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeHeaders(w)

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next(w, r)
	}
}

// writeHeaders sets the CORS and security headers on a response.
func writeHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key")
	w.Header().Set("Access-Control-Max-Age", "3600")

	w.Header().Set("Content-Security-Policy", "default-src 'self'; frame-ancestors 'none'")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// registerRoutes registers all API routes on the server's mux.
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /api/upload", s.limitRate(s.requireAuth(s.handleUpload)))
	s.mux.HandleFunc("POST /api/analyze/{id}", s.limitRate(s.requireAuth(s.handleAnalyze)))
	s.mux.HandleFunc("GET /api/classify/{id}", s.limitRate(s.requireAuth(s.handleClassify)))
	s.mux.HandleFunc("DELETE /api/uploads/{id}", s.limitRate(s.requireAuth(s.handleDeleteUpload)))
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
}

// Start starts the HTTP server.
func (s *Server) Start(addr string) error {
	slog.Info("Starting server", "address", addr)
	return http.ListenAndServe(addr, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.headerMiddleware(func(w http.ResponseWriter, r *http.Request) {
			s.mux.ServeHTTP(w, r)
		})(w, r)
	}))
}

// ServeHTTP implements http.Handler for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.headerMiddleware(func(w http.ResponseWriter, r *http.Request) {
		s.mux.ServeHTTP(w, r)
	})(w, r)
}
