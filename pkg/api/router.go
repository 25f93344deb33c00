package api

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/attribute"

	"github.com/marmos91/dittorelay/internal/logger"
	"github.com/marmos91/dittorelay/internal/telemetry"
	"github.com/marmos91/dittorelay/pkg/api/handlers"
	"github.com/marmos91/dittorelay/pkg/metrics"
	"github.com/marmos91/dittorelay/pkg/registry"
)

// NewRouter creates the chi router with middleware and routes.
//
// Routes:
//   - GET  /health, /health/ready, /health/relays
//   - GET  /metrics (when metrics are enabled)
//   - GET  /api/v1/relays
//   - GET  /api/v1/relays/{name}
//   - GET  /api/v1/relays/{name}/status?type=table|info
//   - POST /api/v1/relays/{name}/suspend, /resume
//   - GET  /api/v1/relays/{name}/transitions?limit=N
//   - GET  /api/v1/relays/{name}/data?offset=&length=
//   - PUT  /api/v1/relays/{name}/data?offset=
//   - POST /api/v1/relays/{name}/flush
//   - POST /api/v1/relays/{name}/discard?offset=&length=
//
// The journal may be nil.
func NewRouter(reg *registry.Registry, j handlers.Journal, cfg APIConfig) http.Handler {
	cfg.ApplyDefaults()

	r := chi.NewRouter()

	// Order matters: request ID and real IP feed the logger and tracer.
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestTracer)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	healthHandler := handlers.NewHealthHandler(reg, j)
	r.Route("/health", func(r chi.Router) {
		r.Get("/", healthHandler.Liveness)
		r.Get("/ready", healthHandler.Readiness)
		r.Get("/relays", healthHandler.Relays)
	})

	if metrics.IsEnabled() {
		r.Handle("/metrics", metrics.Handler())
	}

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/health", http.StatusTemporaryRedirect)
	})

	relayHandler := handlers.NewRelayHandler(reg, j)
	r.Route("/api/v1/relays", func(r chi.Router) {
		r.Get("/", relayHandler.List)
		r.Route("/{name}", func(r chi.Router) {
			r.Get("/", relayHandler.Get)
			r.Get("/status", relayHandler.Status)
			r.Post("/suspend", relayHandler.Suspend)
			r.Post("/resume", relayHandler.Resume)
			r.Get("/transitions", relayHandler.Transitions)
			r.Get("/data", relayHandler.Read(cfg.MaxTransfer))
			r.Put("/data", relayHandler.Write(cfg.MaxTransfer))
			r.Post("/flush", relayHandler.Flush)
			r.Post("/discard", relayHandler.Discard)
		})
	})

	return r
}

// requestTracer wraps each request in a span and exposes the trace to the
// logger through the request context.
func requestTracer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := telemetry.StartSpan(r.Context(), telemetry.SpanHTTP)
		defer span.End()

		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", r.URL.Path),
			telemetry.ClientIP(clientIP(r)),
		)

		lc := &logger.LogContext{
			TraceID:   telemetry.TraceID(ctx),
			SpanID:    telemetry.SpanID(ctx),
			RequestID: middleware.GetReqID(ctx),
			ClientIP:  clientIP(r),
		}
		if name := relayFromPath(r.URL.Path); name != "" {
			lc.Relay = name
			span.SetAttributes(telemetry.Relay(name))
		}

		next.ServeHTTP(w, r.WithContext(logger.WithContext(ctx, lc)))
	})
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// relayFromPath extracts {name} from /api/v1/relays/{name}/... before chi
// has resolved the route.
func relayFromPath(path string) string {
	rest, ok := strings.CutPrefix(path, "/api/v1/relays/")
	if !ok {
		return ""
	}
	name, _, _ := strings.Cut(rest, "/")
	return name
}

// requestLogger logs each request with its status and duration.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logArgs := []any{
			logger.KeyRequestID, requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			logger.KeyBytes, ww.BytesWritten(),
			logger.KeyDurationMs, float64(time.Since(start).Microseconds()) / 1000.0,
		}

		// Health and metrics scrapes log at DEBUG to keep the log readable.
		if isProbePath(r.URL.Path) {
			logger.Debug("API request completed", logArgs...)
		} else {
			logger.Info("API request completed", logArgs...)
		}
	})
}

func isProbePath(path string) bool {
	return path == "/metrics" || path == "/health" || strings.HasPrefix(path, "/health/")
}
