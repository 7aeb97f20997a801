package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"claims/internal/cache"
	"claims/internal/core"
	"claims/internal/log"
	"claims/internal/services"
)

// PrincipalHeader carries the caller identity, set by the trusting
// gateway in front of this service. Requests without it are rejected
// before any handler runs.
const PrincipalHeader = "X-Claims-Principal"

type Server struct {
	http.Server
	svc         *services.ClaimService
	rateLimiter *rateLimiter

	// Read caches, invalidated by the mutations that affect them.
	categoryCache     *cache.LRUCache[categoryResponse]
	userExpensesCache *cache.LRUCache[[]uint64]

	stopCacheCleanup chan struct{}
	shutdownOnce     sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, svc *services.ClaimService) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		svc:               svc,
		rateLimiter:       newRateLimiter(),
		categoryCache:     cache.NewLRUCache[categoryResponse](100, 5*time.Minute),
		userExpensesCache: cache.NewLRUCache[[]uint64](200, 5*time.Minute),
		stopCacheCleanup:  make(chan struct{}),
	}

	go s.startCacheCleanup()

	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)

	mux.HandleFunc("POST /api/expenses", s.withAPIDefaults(s.handleCreateExpense))
	mux.HandleFunc("GET /api/expenses", s.withAPIDefaults(s.handleListUserExpenses))
	mux.HandleFunc("GET /api/expenses/{id}", s.withAPIDefaults(s.handleGetExpense))
	mux.HandleFunc("POST /api/expenses/{id}/approve", s.withAPIDefaults(s.handleApproveExpense))
	mux.HandleFunc("POST /api/expenses/{id}/reject", s.withAPIDefaults(s.handleRejectExpense))

	mux.HandleFunc("POST /api/categories", s.withAPIDefaults(s.handleCreateCategory))
	mux.HandleFunc("GET /api/categories/{id}", s.withAPIDefaults(s.handleGetCategory))
	mux.HandleFunc("PATCH /api/categories/{id}/budget", s.withAPIDefaults(s.handleUpdateCategoryBudget))

	mux.HandleFunc("POST /api/admin", s.withAPIDefaults(s.handleSetAdmin))

	return s
}

// withAPIDefaults adds request IDs, security headers, rate limiting on
// mutations, principal enforcement and request logging.
func (s *Server) withAPIDefaults(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Extract client IP (considering proxies)
		clientIP := r.Header.Get("X-Forwarded-For")
		if clientIP == "" {
			clientIP = r.Header.Get("X-Real-IP")
		}
		if clientIP == "" {
			clientIP = r.RemoteAddr
		}

		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		slog.InfoContext(ctx, "Request started",
			log.FieldRequestID, requestID,
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldClientIP, clientIP,
			log.FieldUserAgent, r.Header.Get("User-Agent"))

		if isMutation(r.Method) && !s.rateLimiter.allow(clientIP) {
			slog.WarnContext(ctx, "Rate limit exceeded",
				log.FieldClientIP, clientIP, log.FieldMethod, r.Method, log.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", "60")
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		if principal(r) == "" {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing " + PrincipalHeader + " header"})
			return
		}

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		duration := time.Since(start)
		slog.InfoContext(ctx, "Request completed",
			log.FieldRequestID, requestID,
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldStatusCode, rw.statusCode,
			log.FieldDuration, duration.Milliseconds(),
			log.FieldClientIP, clientIP)
	}
}

type requestIDKey struct{}

func isMutation(method string) bool {
	return method == http.MethodPost || method == http.MethodPatch || method == http.MethodDelete
}

// principal reads the caller identity from the gateway header.
func principal(r *http.Request) core.Principal {
	return core.Principal(r.Header.Get(PrincipalHeader))
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// generateRequestID creates a unique request ID for tracing
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp if random fails
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.svc == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// startCacheCleanup runs periodic cleanup for both caches
func (s *Server) startCacheCleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			categoriesCleaned := s.categoryCache.CleanExpired()
			usersCleaned := s.userExpensesCache.CleanExpired()
			if categoriesCleaned > 0 || usersCleaned > 0 {
				slog.Debug("Cache cleanup completed",
					"category_entries_removed", categoriesCleaned,
					"user_entries_removed", usersCleaned)
			}
		case <-s.stopCacheCleanup:
			return
		}
	}
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		if s.stopCacheCleanup != nil {
			close(s.stopCacheCleanup)
		}
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}
