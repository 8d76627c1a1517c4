package middleware

import (
	"errors"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/EmpoweredVote/rep-lookup/internal/httputil"
	"github.com/EmpoweredVote/rep-lookup/internal/ratelimit"
	"github.com/EmpoweredVote/rep-lookup/internal/utils"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// CORS echoes the Origin header back only for origins on the allow-list.
func CORS(origins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[strings.TrimRight(o, "/")] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if _, ok := allowed[origin]; ok {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
				w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
			}

			w.Header().Set("Access-Control-Expose-Headers",
				"Server-Timing, Retry-After, X-Request-ID, X-RateLimit-Limit, X-RateLimit-Remaining")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cross-Origin-Resource-Policy", "same-site")
		next.ServeHTTP(w, r)
	})
}

// RequestID keeps a caller-supplied X-Request-ID or generates one, and puts
// it in the request context and the response headers.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(utils.WithRequestID(r.Context(), id)))
	})
}

// RequestLogger logs one line per request once it has been served.
func RequestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	log = log.Named("http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			reqID, _ := utils.GetRequestIDFromContext(r.Context())
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote_addr", r.RemoteAddr),
				zap.String("request_id", reqID),
			}
			switch {
			case status >= 500:
				log.Error("request", fields...)
			case status >= 400:
				log.Warn("request", fields...)
			default:
				log.Info("request", fields...)
			}
		})
	}
}

// ClientIP rewrites RemoteAddr from True-Client-IP, X-Real-IP or
// X-Forwarded-For when trustProxy is set. Otherwise those headers are ignored
// and the socket address is kept, since any caller can forge them.
func ClientIP(trustProxy bool) func(http.Handler) http.Handler {
	if trustProxy {
		return chimw.RealIP
	}
	return func(next http.Handler) http.Handler { return next }
}

// ClientKey identifies the caller for rate limiting. Run ClientIP first so
// RemoteAddr reflects a trusted proxy's headers.
func ClientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimit rejects callers that are over budget with 429. If the limiter
// backend fails the request is let through. onReject may be nil.
func RateLimit(limiter ratelimit.Allower, log *zap.Logger, onReject func(key string)) func(http.Handler) http.Handler {
	log = log.Named("ratelimit")
	rejectLog := rate.Sometimes{Interval: time.Minute}
	failLog := rate.Sometimes{Interval: time.Minute}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ClientKey(r)
			d, err := limiter.Allow(r.Context(), key)

			var exceeded *ratelimit.ExceededError
			switch {
			case errors.As(err, &exceeded):
				d.RetryAfter = exceeded.RetryAfter
			case err != nil:
				failLog.Do(func() {
					log.Error("[ratelimit] backend failed, allowing request", zap.Error(err))
				})
				next.ServeHTTP(w, r)
				return
			}

			if d.Limit > 0 {
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			}
			if d.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			secs := int(math.Ceil(d.RetryAfter.Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			if onReject != nil {
				onReject(key)
			}
			rejectLog.Do(func() {
				log.Warn("[ratelimit] client over budget", zap.String("client", key), zap.Int("retry_after_s", secs))
			})
			httputil.WriteError(w, http.StatusTooManyRequests, httputil.ErrorResponse{
				Error:      "Too many requests",
				Message:    "Rate limit exceeded, please try again later",
				RetryAfter: &secs,
			})
		})
	}
}
