package httpx

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/asad/mediabridge/internal/core"
	"github.com/asad/mediabridge/internal/logging"
	"github.com/asad/mediabridge/internal/metrics"
)

// NewServiceRouter builds the root handler of one service listener.
// It installs the shared middleware stack, the operational routes
// (/healthz, /metrics) and then the service's own routes.
//
// No request timeout middleware is installed: media responses are streamed
// for as long as the caller keeps reading.
func NewServiceRouter(svc core.Service, logger logging.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLoggingMiddleware(svc.Name(), logger))
	r.Use(middleware.Recoverer)
	r.Use(CORS(svc.CORS()))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": svc.Name()})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusNotFound, map[string]string{"error": "Not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "Method not allowed"})
	})

	svc.RegisterRoutes(r)

	return r
}

// requestLoggingMiddleware logs every request with method, path, status and
// latency, and feeds the request metrics.
func requestLoggingMiddleware(service string, logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			duration := time.Since(start)
			metrics.RecordRequest(service, r.Method, strconv.Itoa(status), duration.Seconds())

			logger.Info("request completed",
				logging.String("service", service),
				logging.String("request_id", middleware.GetReqID(r.Context())),
				logging.String("method", r.Method),
				logging.String("path", r.URL.Path),
				logging.String("query", r.URL.RawQuery),
				logging.Int("status", status),
				logging.Int("bytes", ww.BytesWritten()),
				logging.Duration("latency_ms", duration),
				logging.String("remote_addr", r.RemoteAddr),
			)
		})
	}
}
