package apihttp

import (
	"bufio"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"btd/internal/metrics"
)

const (
	routeMetrics = "/metrics"
	routeHealth  = "/healthz"
	routeAlerts  = "/ws/alerts"
	routeOther   = "/other"
)

var errNotHijacker = errors.New("underlying ResponseWriter does not implement http.Hijacker")

// statusRecorder remembers what a handler did with the response. A hijacked
// connection is a websocket upgrade and reports 101.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	size        int
	wroteHeader bool
	hijacked    bool
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (rw *statusRecorder) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.status = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

func (rw *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errNotHijacker
	}
	conn, buf, err := h.Hijack()
	if err == nil {
		rw.hijacked = true
	}
	return conn, buf, err
}

func (rw *statusRecorder) code() int {
	if rw.hijacked {
		return http.StatusSwitchingProtocols
	}
	return rw.status
}

// committed reports whether the client has seen any part of the response.
func (rw *statusRecorder) committed() bool {
	return rw.wroteHeader || rw.hijacked
}

// adminRoute bounds the path label to the routes the admin mux serves.
func adminRoute(path string) string {
	switch path {
	case routeMetrics, routeHealth, routeAlerts:
		return path
	default:
		return routeOther
	}
}

func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := newStatusRecorder(w)

		next.ServeHTTP(rw, r)

		route := adminRoute(r.URL.Path)
		msg := "admin request"
		if rw.hijacked {
			msg = "ws client upgraded"
		}
		logger.LogAttrs(r.Context(), pickRequestLogLevel(route, rw.code()), msg,
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("route", route),
			slog.Int("status", rw.code()),
			slog.Int("bytes", rw.size),
			slog.Int64("durationMs", time.Since(start).Milliseconds()),
			slog.String("remote", remoteHost(r)),
		)
	})
}

// recoveryMiddleware turns a handler panic into a 500 unless the response
// was already started, in which case the panic is only logged.
func recoveryMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := newStatusRecorder(w)
		defer func() {
			if err := recover(); err != nil {
				logger.Error("panic recovered",
					slog.Any("error", err),
					slog.String("method", r.Method),
					slog.String("route", adminRoute(r.URL.Path)),
					slog.Bool("committed", rw.committed()),
					slog.String("stack", string(debug.Stack())),
				)
				if !rw.committed() {
					writeError(rw, http.StatusInternalServerError, "internal_error", "internal server error")
				}
			}
		}()
		next.ServeHTTP(rw, r)
	})
}

// metricsMiddleware counts every request except scrapes of /metrics itself.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := adminRoute(r.URL.Path)
		if route == routeMetrics {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rw := newStatusRecorder(w)
		next.ServeHTTP(rw, r)
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.code())).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func pickRequestLogLevel(route string, status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	case route == routeHealth || route == routeMetrics:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// remoteHost is the peer address without its port. Forwarding headers are
// ignored.
func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
