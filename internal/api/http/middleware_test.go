package apihttp

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"btd/internal/services/torrent/actor"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// syncBuffer is a log sink safe to read while server goroutines write.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRecoveryMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		handler  http.HandlerFunc
		wantCode int
	}{
		{"StringPanic", func(http.ResponseWriter, *http.Request) { panic("boom") }, http.StatusInternalServerError},
		{"ErrorPanic", func(http.ResponseWriter, *http.Request) { panic(errors.New("bad")) }, http.StatusInternalServerError},
		{"NoPanic", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusAccepted) }, http.StatusAccepted},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			recoveryMiddleware(discardLogger(), tc.handler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			if rec.Code != tc.wantCode {
				t.Fatalf("code = %d, want %d", rec.Code, tc.wantCode)
			}
		})
	}
}

func TestRecoveryMiddlewareWritesErrorEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	handler := recoveryMiddleware(discardLogger(), http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	var body errorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != "internal_error" {
		t.Fatalf("code = %q", body.Error.Code)
	}
}

func TestRecoveryMiddlewareLeavesStartedResponse(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	rec := httptest.NewRecorder()
	handler := recoveryMiddleware(logger, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("partial"))
		panic("late")
	}))
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusAccepted || rec.Body.String() != "partial" {
		t.Fatalf("code = %d body = %q, want the handler's own response", rec.Code, rec.Body.String())
	}
	if out := logs.String(); !strings.Contains(out, "committed=true") || !strings.Contains(out, "route=/healthz") {
		t.Fatalf("log = %q", out)
	}
}

func TestLoggingMiddlewareRecordsRequest(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	handler := loggingMiddleware(logger, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("missing"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	req.RemoteAddr = "127.0.0.1:40000"
	req.Header.Set("X-Forwarded-For", "1.2.3.4")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	for _, want := range []string{`msg="admin request"`, "level=WARN", "status=404", "bytes=7", "path=/nope", "route=/other", "remote=127.0.0.1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("log %q missing %q", out, want)
		}
	}
}

func TestStatusRecorder(t *testing.T) {
	rw := newStatusRecorder(httptest.NewRecorder())
	if rw.committed() || rw.code() != http.StatusOK {
		t.Fatalf("fresh recorder: committed=%v code=%d", rw.committed(), rw.code())
	}
	rw.WriteHeader(http.StatusTeapot)
	rw.WriteHeader(http.StatusInternalServerError)
	_, _ = rw.Write([]byte("hello"))
	_, _ = rw.Write([]byte(" world"))
	if rw.code() != http.StatusTeapot || rw.size != 11 || !rw.committed() {
		t.Fatalf("code=%d size=%d committed=%v", rw.code(), rw.size, rw.committed())
	}

	implicit := newStatusRecorder(httptest.NewRecorder())
	_, _ = implicit.Write([]byte("x"))
	if !implicit.committed() || implicit.code() != http.StatusOK {
		t.Fatalf("implicit header: committed=%v code=%d", implicit.committed(), implicit.code())
	}
}

type fakeHijacker struct {
	http.ResponseWriter
	err error
}

func (f *fakeHijacker) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return nil, nil, f.err
}

func TestStatusRecorderHijack(t *testing.T) {
	supported := newStatusRecorder(&fakeHijacker{ResponseWriter: httptest.NewRecorder()})
	if _, _, err := supported.Hijack(); err != nil {
		t.Fatalf("hijack: %v", err)
	}
	if supported.code() != http.StatusSwitchingProtocols || !supported.committed() {
		t.Fatalf("after hijack: code=%d committed=%v", supported.code(), supported.committed())
	}

	failing := newStatusRecorder(&fakeHijacker{ResponseWriter: httptest.NewRecorder(), err: errors.New("busy")})
	if _, _, err := failing.Hijack(); err == nil || failing.hijacked {
		t.Fatalf("failed hijack: err=%v hijacked=%v", err, failing.hijacked)
	}

	unsupported := newStatusRecorder(httptest.NewRecorder())
	if _, _, err := unsupported.Hijack(); !errors.Is(err, errNotHijacker) {
		t.Fatalf("err = %v, want errNotHijacker", err)
	}
}

func TestWebsocketUpgradeLoggedAs101(t *testing.T) {
	logs := &syncBuffer{}
	logger := slog.New(slog.NewTextHandler(logs, nil))
	s := NewServer(&fakeCore{state: actor.StateRunning}, WithLogger(logger))
	t.Cleanup(s.Close)
	srv := httptest.NewServer(s)
	defer srv.Close()

	conn := dialWS(t, srv)
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for {
		out := logs.String()
		if strings.Contains(out, `msg="ws client upgraded"`) {
			for _, want := range []string{"status=101", "route=/ws/alerts", "level=INFO"} {
				if !strings.Contains(out, want) {
					t.Fatalf("log %q missing %q", out, want)
				}
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("no upgrade log line in %q", out)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPickRequestLogLevel(t *testing.T) {
	tests := []struct {
		route  string
		status int
		want   slog.Level
	}{
		{routeAlerts, 500, slog.LevelError},
		{routeOther, 404, slog.LevelWarn},
		{routeHealth, 200, slog.LevelDebug},
		{routeMetrics, 200, slog.LevelDebug},
		{routeAlerts, 101, slog.LevelInfo},
	}
	for _, tc := range tests {
		if got := pickRequestLogLevel(tc.route, tc.status); got != tc.want {
			t.Fatalf("pickRequestLogLevel(%q, %d) = %v, want %v", tc.route, tc.status, got, tc.want)
		}
	}
}

func TestAdminRoute(t *testing.T) {
	tests := map[string]string{
		"/metrics":       routeMetrics,
		"/healthz":       routeHealth,
		"/ws/alerts":     routeAlerts,
		"/ws/alerts/x":   routeOther,
		"/torrents/abcd": routeOther,
	}
	for path, want := range tests {
		if got := adminRoute(path); got != want {
			t.Fatalf("adminRoute(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestRemoteHost(t *testing.T) {
	tests := map[string]string{
		"9.9.9.9:1234": "9.9.9.9",
		"[::1]:80":     "::1",
		"9.9.9.9":      "9.9.9.9",
	}
	for addr, want := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		if got := remoteHost(req); got != want {
			t.Fatalf("remoteHost(%q) = %q, want %q", addr, got, want)
		}
	}
}

func TestMetricsMiddlewarePassesThrough(t *testing.T) {
	for _, path := range []string{"/metrics", "/healthz"} {
		called := false
		handler := metricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			called = true
			w.WriteHeader(http.StatusNoContent)
		}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if !called || rec.Code != http.StatusNoContent {
			t.Fatalf("%s: called=%v code=%d", path, called, rec.Code)
		}
	}
}
