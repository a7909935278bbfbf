package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"tailscale.com/client/tailscale/apitype"

	"github.com/voltbora/volt/internal/metrics"
	"github.com/voltbora/volt/internal/models"
)

type contextKey int

const userIDKey contextKey = iota

// UserIDHeader carries the caller's user ID when no tailnet identity is available.
const UserIDHeader = "X-User-ID"

// UserID returns the user ID stored by the identity middleware, or the
// anonymous user when none was set.
func UserID(ctx context.Context) int {
	if id, ok := ctx.Value(userIDKey).(int); ok {
		return id
	}
	return models.AnonymousUserID
}

func withUserID(ctx context.Context, id int) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// WhoIser resolves the tailnet identity behind a remote address.
type WhoIser interface {
	WhoIs(ctx context.Context, remoteAddr string) (*apitype.WhoIsResponse, error)
}

// UserRegistry maps a login to a registered user ID.
type UserRegistry interface {
	GetOrCreateUser(ctx context.Context, login, displayName string) (int, error)
}

type tailnetIdentity struct {
	who   WhoIser
	users UserRegistry
}

func (t *tailnetIdentity) resolve(ctx context.Context, remoteAddr string) (int, error) {
	resp, err := t.who.WhoIs(ctx, remoteAddr)
	if err != nil {
		return 0, err
	}
	if resp.UserProfile == nil || resp.UserProfile.LoginName == "" {
		return 0, errors.New("peer has no user profile")
	}
	return t.users.GetOrCreateUser(ctx, resp.UserProfile.LoginName, resp.UserProfile.DisplayName)
}

// Identity stores the caller's user ID in the request context. Tailnet
// identity wins when configured; otherwise the X-User-ID header is used, and a
// request without either is the anonymous user.
func (s *Server) Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.identity != nil {
			id, err := s.identity.resolve(r.Context(), r.RemoteAddr)
			if err == nil {
				next.ServeHTTP(w, r.WithContext(withUserID(r.Context(), id)))
				return
			}
			s.log.Warn("tailnet identity lookup failed", "remote", r.RemoteAddr, "error", err)
		}

		id := models.AnonymousUserID
		if h := r.Header.Get(UserIDHeader); h != "" {
			parsed, err := strconv.Atoi(h)
			if err != nil || parsed < 0 {
				writeError(w, http.StatusBadRequest, "invalid "+UserIDHeader+" header")
				return
			}
			id = parsed
		}
		next.ServeHTTP(w, r.WithContext(withUserID(r.Context(), id)))
	})
}

// APIKeyAuth returns middleware that validates the X-API-Key header.
func APIKeyAuth(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				writeError(w, http.StatusUnauthorized, "missing API key")
				return
			}
			if key != apiKey {
				writeError(w, http.StatusForbidden, "invalid API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestLogging returns middleware that logs each request.
func RequestLogging(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			log.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"duration", time.Since(start).String(),
			)
		})
	}
}

// RequestMetrics counts requests and observes their latency by route pattern.
func RequestMetrics(m *metrics.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			route := "unmatched"
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			status := strconv.Itoa(sw.status)
			m.CounterRequests.WithLabelValues(r.Method, status).Inc()
			m.HistogramRequestDuration.WithLabelValues(route, r.Method, status).Observe(time.Since(start).Seconds())
		})
	}
}

// CORS adds permissive CORS headers for local development.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key, "+UserIDHeader)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusWriter wraps ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush lets streaming handlers behind the wrapper flush.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
