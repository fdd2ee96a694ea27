package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	apperrors "ambient-pro/internal/common/errors"
	"ambient-pro/internal/common/logger"
	"ambient-pro/internal/common/metrics"
	"ambient-pro/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"
)

// Headers set by the auth proxy in front of the API.
const (
	HeaderUserID     = "X-User-ID"
	HeaderUserRole   = "X-User-Role"
	HeaderUserOffice = "X-User-Office"
)

type viewerKey struct{}

// ViewerFrom returns the viewer attached by RequireViewer.
func ViewerFrom(ctx context.Context) (models.Viewer, bool) {
	v, ok := ctx.Value(viewerKey{}).(models.Viewer)
	return v, ok
}

// WithViewer attaches v to ctx.
func WithViewer(ctx context.Context, v models.Viewer) context.Context {
	return context.WithValue(ctx, viewerKey{}, v)
}

// RequireViewer rejects requests without a known user id and role.
func RequireViewer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v := models.Viewer{
			ID:     strings.TrimSpace(r.Header.Get(HeaderUserID)),
			Role:   models.Role(strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderUserRole)))),
			Office: strings.TrimSpace(r.Header.Get(HeaderUserOffice)),
		}
		if v.ID == "" || !v.Role.Valid() {
			writeRawJSON(w, http.StatusUnauthorized, apiResponse{
				Status:  "error",
				Message: "missing or invalid viewer",
				Error:   &apiError{Code: "UNAUTHORIZED", Status: http.StatusUnauthorized},
			})
			return
		}
		next.ServeHTTP(w, r.WithContext(WithViewer(r.Context(), v)))
	})
}

// RequireRole lets only the listed roles through.
func RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			v, _ := ViewerFrom(r.Context())
			for _, role := range roles {
				if v.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, apperrors.NewForbiddenError("role "+string(v.Role)+" cannot "+r.Method+" "+r.URL.Path))
		})
	}
}

// RateLimiter keeps one token bucket per viewer, falling back to the remote address.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	rate     rate.Limit
	burst    int
	idle     time.Duration
	logger   logger.Logger
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewRateLimiter(rps float64, burst int, log logger.Logger) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		rate:     rate.Limit(rps),
		burst:    burst,
		idle:     10 * time.Minute,
		logger:   log,
	}
}

func (rl *RateLimiter) allow(key string, now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, ok := rl.limiters[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// Sweep drops limiters idle for longer than the idle window.
func (rl *RateLimiter) Sweep(now time.Time) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	for key, entry := range rl.limiters {
		if now.Sub(entry.lastSeen) > rl.idle {
			delete(rl.limiters, key)
			removed++
		}
	}
	return removed
}

// Run sweeps periodically until ctx is done.
func (rl *RateLimiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			rl.Sweep(now)
		}
	}
}

func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.RemoteAddr
		if v, ok := ViewerFrom(r.Context()); ok {
			key = v.ID
		}
		if !rl.allow(key, time.Now()) {
			rl.logger.Warn("rate limit exceeded", map[string]interface{}{
				"key":    key,
				"path":   r.URL.Path,
				"method": r.Method,
			})
			w.Header().Set("Retry-After", "1")
			writeRawJSON(w, http.StatusTooManyRequests, apiResponse{
				Status:  "error",
				Message: "rate limit exceeded",
				Error:   &apiError{Code: "RATE_LIMITED", Status: http.StatusTooManyRequests, Retryable: true},
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogger logs each request and counts it by route pattern.
func requestLogger(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			metrics.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()

			log.Debug("http request", map[string]interface{}{
				"method":    r.Method,
				"route":     route,
				"status":    status,
				"requestId": middleware.GetReqID(r.Context()),
				"duration":  time.Since(start).String(),
			})
		})
	}
}
