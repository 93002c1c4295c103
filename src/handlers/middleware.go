package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/username/commissions/src/logger"
	"github.com/username/commissions/src/security"
	"github.com/username/commissions/src/utils"
	"golang.org/x/time/rate"
)

type contextKey string

const (
	requestIDContextKey contextKey = "requestID"
	adminContextKey     contextKey = "adminSubject"

	RequestIDHeader = "X-Request-ID"
)

// RequestIDMiddleware tags every request with an id, echoes it back, and
// attaches a logger carrying it to the request context.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := strings.TrimSpace(r.Header.Get(RequestIDHeader))
		if reqID == "" || len(reqID) > 128 {
			reqID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, reqID)

		ctx := context.WithValue(r.Context(), requestIDContextKey, reqID)
		ctx = logger.WithContext(ctx, logger.L.With("requestID", reqID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestIDFromContext returns the id set by RequestIDMiddleware.
func GetRequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey).(string)
	return id
}

func RecoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.FromContext(r.Context()).Error("Panic recovered", "path", r.URL.Path, "panic", rec)
				utils.SendJSONError(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// RateLimitMiddleware applies one token bucket to all traffic.
func RateLimitMiddleware(rps float64, burst int) func(http.Handler) http.Handler {
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				logger.FromContext(r.Context()).Warn("Rate limit exceeded",
					"method", r.Method,
					"path", r.URL.Path,
					"remoteAddr", r.RemoteAddr)
				utils.SendJSONError(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func CORSMiddleware(allowed []string) func(http.Handler) http.Handler {
	allowedOrigins := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		allowedOrigins[o] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if allowedOrigins[origin] || allowedOrigins["*"] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
				w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
				w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Authorization, If-None-Match, "+RequestIDHeader)
				w.Header().Set("Access-Control-Expose-Headers", "ETag, "+RequestIDHeader)
			}

			if r.Method == http.MethodOptions {
				logger.L.Debug("Handling OPTIONS preflight request", "path", r.URL.Path, "origin", origin)
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AdminMiddleware admits only bearer tokens carrying the admin role.
func AdminMiddleware(auth *security.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := logger.FromContext(r.Context())
			if !auth.Enabled() {
				log.Warn("AdminMiddleware: JWT secret not configured, refusing admin request", "path", r.URL.Path)
				utils.SendJSONError(w, "admin API disabled", http.StatusServiceUnavailable)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				log.Debug("AdminMiddleware: Authorization header missing", "path", r.URL.Path)
				utils.SendJSONError(w, "Authorization header required", http.StatusUnauthorized)
				return
			}
			tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
			if tokenString == "" {
				utils.SendJSONError(w, "Malformed token", http.StatusUnauthorized)
				return
			}

			subject, err := auth.ValidateAdminToken(tokenString)
			if errors.Is(err, security.ErrNotAdmin) {
				log.Warn("AdminMiddleware: Token lacks admin role", "path", r.URL.Path)
				utils.SendJSONError(w, "admin role required", http.StatusForbidden)
				return
			}
			if err != nil {
				log.Warn("AdminMiddleware: Token validation failed", "path", r.URL.Path, "error", err)
				utils.SendJSONError(w, "Invalid or expired token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), adminContextKey, subject)
			ctx = logger.WithContext(ctx, log.With("admin", subject))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetAdminFromContext returns the subject admitted by AdminMiddleware.
func GetAdminFromContext(ctx context.Context) (string, bool) {
	sub, ok := ctx.Value(adminContextKey).(string)
	return sub, ok
}
