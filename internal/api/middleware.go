package api

import (
	"context"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/observability"
	"github.com/opensource-finance/kestrel/internal/worker"
)

// Request headers.
const (
	TenantIDHeader  = "X-Tenant-ID"
	RequestIDHeader = "X-Request-ID"
	TraceIDHeader   = "X-Trace-ID"
)

// rateLimitKey is the per-tenant counter used by RateLimitMiddleware.
const rateLimitKey = "ratelimit"

var (
	tracer = otel.Tracer("kestrel-api")

	// Tenant IDs double as bus subject tokens and cache key segments.
	tenantPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

	reservedTenants = map[string]bool{
		domain.GlobalTenantID: true,
		worker.GlobalTenant:   true,
	}
)

type requestInfoKey struct{}

// requestInfo follows a request through the middleware chain. Tenant is
// filled in by TenantMiddleware on /v1 routes only.
type requestInfo struct {
	RequestID string
	TraceID   string
	TenantID  string
	Start     time.Time
}

func infoFrom(ctx context.Context) *requestInfo {
	if info, ok := ctx.Value(requestInfoKey{}).(*requestInfo); ok {
		return info
	}
	return nil
}

// WithTenant returns ctx scoped to tenantID, for handlers called outside
// the middleware chain.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	if info := infoFrom(ctx); info != nil {
		info.TenantID = tenantID
		return ctx
	}
	return context.WithValue(ctx, requestInfoKey{}, &requestInfo{TenantID: tenantID, Start: time.Now()})
}

// GetTenantID returns the request's tenant, or "".
func GetTenantID(ctx context.Context) string {
	if info := infoFrom(ctx); info != nil {
		return info.TenantID
	}
	return ""
}

// GetRequestID returns the request's ID, or "".
func GetRequestID(ctx context.Context) string {
	if info := infoFrom(ctx); info != nil {
		return info.RequestID
	}
	return ""
}

// TracingMiddleware opens a server span and stamps request and trace IDs on
// the context and response. Without an exporter the trace ID falls back to
// the request ID.
func TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info := &requestInfo{RequestID: r.Header.Get(RequestIDHeader), Start: time.Now()}
		if info.RequestID == "" {
			info.RequestID = uuid.New().String()
		}

		ctx, span := tracer.Start(r.Context(), r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.path", r.URL.Path),
				attribute.String("request.id", info.RequestID),
			),
		)
		defer span.End()

		info.TraceID = info.RequestID
		if sc := span.SpanContext(); sc.TraceID().IsValid() {
			info.TraceID = sc.TraceID().String()
		}

		w.Header().Set(RequestIDHeader, info.RequestID)
		w.Header().Set(TraceIDHeader, info.TraceID)

		rec := newStatusRecorder(w)
		next.ServeHTTP(rec, r.WithContext(context.WithValue(ctx, requestInfoKey{}, info)))

		span.SetAttributes(attribute.Int("http.status_code", rec.status))
		if info.TenantID != "" {
			span.SetAttributes(attribute.String("tenant.id", info.TenantID))
		}
		if rec.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(rec.status))
		}
	})
}

// AccessMiddleware logs each request and, when m is set, records it by chi
// route pattern. Server errors log at error level, client errors at warn.
func AccessMiddleware(m *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r)
			elapsed := time.Since(start)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			if m != nil {
				m.ObserveRequest(r.Method, route, rec.status, elapsed)
			}

			level := slog.LevelInfo
			switch {
			case rec.status >= http.StatusInternalServerError:
				level = slog.LevelError
			case rec.status >= http.StatusBadRequest:
				level = slog.LevelWarn
			}
			attrs := []any{
				"method", r.Method,
				"route", route,
				"status", rec.status,
				"duration_ms", elapsed.Milliseconds(),
			}
			if info := infoFrom(r.Context()); info != nil {
				attrs = append(attrs, "request_id", info.RequestID, "tenant_id", info.TenantID)
			}
			slog.Log(r.Context(), level, "http request", attrs...)
		})
	}
}

// TenantMiddleware requires a well-formed, non-reserved X-Tenant-ID.
func TenantMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID := r.Header.Get(TenantIDHeader)
		switch {
		case tenantID == "":
			writeFailure(w, r, http.StatusBadRequest, CodeMissingTenant, "X-Tenant-ID header is required")
			return
		case reservedTenants[tenantID]:
			writeFailure(w, r, http.StatusBadRequest, CodeMissingTenant, "X-Tenant-ID "+strconv.Quote(tenantID)+" is reserved")
			return
		case !tenantPattern.MatchString(tenantID):
			writeFailure(w, r, http.StatusBadRequest, CodeInvalidTenant, "X-Tenant-ID must be 1-64 letters, digits, '-' or '_'")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithTenant(r.Context(), tenantID)))
	})
}

// RateLimitMiddleware allows limit requests per tenant per window, counted
// in the cache. An unavailable counter lets the request through.
func RateLimitMiddleware(cache domain.Cache, limit int, window time.Duration, m *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if cache == nil || limit <= 0 || window <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenantID := GetTenantID(r.Context())
			count, err := cache.IncrementCounter(r.Context(), tenantID, rateLimitKey, window)
			if err != nil {
				slog.Warn("rate limit counter unavailable", "tenant_id", tenantID, "error", err)
				next.ServeHTTP(w, r)
				return
			}

			remaining := max(int64(limit)-count, 0)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
			if count <= int64(limit) {
				next.ServeHTTP(w, r)
				return
			}

			if m != nil {
				m.ObserveRateLimited()
			}
			w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
			writeFailure(w, r, http.StatusTooManyRequests, CodeRateLimited, "Too many requests, please try again later")
		})
	}
}

// CORSMiddleware answers preflights and reflects the caller's origin.
func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		h := w.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+TenantIDHeader+", "+RequestIDHeader+", "+TraceIDHeader)
		h.Set("Access-Control-Expose-Headers", RequestIDHeader+", "+TraceIDHeader+", X-RateLimit-Limit, X-RateLimit-Remaining, Retry-After")
		h.Set("Access-Control-Allow-Credentials", "true")
		h.Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RecoverMiddleware turns a handler panic into a 500 envelope.
func RecoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				slog.Error("panic recovered",
					"panic", p,
					"path", r.URL.Path,
					"request_id", GetRequestID(r.Context()),
				)
				writeFailure(w, r, http.StatusInternalServerError, CodeInternal, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the first status written.
type statusRecorder struct {
	http.ResponseWriter
	status  int
	written bool
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (s *statusRecorder) WriteHeader(code int) {
	if !s.written {
		s.status = code
		s.written = true
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}
