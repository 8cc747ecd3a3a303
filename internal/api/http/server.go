package apihttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"btd/internal/domain"
	"btd/internal/services/torrent/actor"
)

// Core is what the admin surface reads from the session actor.
type Core interface {
	State() actor.State
	List(ctx context.Context) ([]domain.TorrentID, error)
}

type healthResponse struct {
	Status   string `json:"status"`
	Actor    string `json:"actor"`
	Torrents int    `json:"torrents"`
}

// torrentStatus is one entry of the periodic "statuses" broadcast.
type torrentStatus struct {
	ID          domain.TorrentID `json:"id"`
	State       string           `json:"state"`
	Progress    float64          `json:"progress"`
	DownloadBps int64            `json:"downloadRate"`
	UploadBps   int64            `json:"uploadRate"`
	Peers       int              `json:"peers"`
	Error       string           `json:"error,omitempty"`
}

type Server struct {
	core          Core
	logger        *slog.Logger
	metricsHandle http.Handler
	handler       http.Handler
	wsHub         *wsHub
}

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetricsHandler replaces the default prometheus handler on /metrics.
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(s *Server) {
		s.metricsHandle = h
	}
}

func NewServer(core Core, opts ...ServerOption) *Server {
	s := &Server{core: core}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.metricsHandle == nil {
		s.metricsHandle = promhttp.Handler()
	}

	s.wsHub = newWSHub(s.logger)
	go s.wsHub.run()

	mux := http.NewServeMux()
	mux.Handle(routeMetrics, s.metricsHandle)
	mux.HandleFunc(routeHealth, s.handleHealth)
	mux.HandleFunc(routeAlerts, s.handleWS)

	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, mux), "btd-admin",
		otelhttp.WithFilter(func(r *http.Request) bool {
			route := adminRoute(r.URL.Path)
			return route != routeMetrics && route != routeHealth
		}),
	)
	s.handler = recoveryMiddleware(s.logger, metricsMiddleware(traced))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Close disconnects every websocket client.
func (s *Server) Close() {
	s.wsHub.Close()
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info("admin server started", slog.String("addr", addr))

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("admin shutdown error", slog.String("error", err.Error()))
	}
	s.logger.Info("admin server stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	state := s.core.State()
	resp := healthResponse{Status: "ok", Actor: state.String()}
	if state == actor.StateRunning {
		if ids, err := s.core.List(r.Context()); err == nil {
			resp.Torrents = len(ids)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("ws upgrade failed", slog.String("error", err.Error()))
		return
	}
	client := &wsClient{
		hub:  s.wsHub,
		conn: conn,
		send: make(chan []byte, 256),
	}
	select {
	case s.wsHub.register <- client:
	case <-s.wsHub.done:
		conn.Close()
		return
	}
	go client.writePump()
	go client.readPump()
}

// BroadcastAlert pushes one engine alert to every websocket client. It
// never blocks, so it is safe as the actor's alert sink.
func (s *Server) BroadcastAlert(alert domain.Alert) {
	s.wsHub.Broadcast("alert", alert)
}

// BroadcastStatuses pushes a status snapshot of every torrent.
func (s *Server) BroadcastStatuses(statuses map[domain.TorrentID]domain.TorrentStatus) {
	if s.wsHub.clientCount() == 0 {
		return
	}
	out := make([]torrentStatus, 0, len(statuses))
	for id, st := range statuses {
		out = append(out, torrentStatus{
			ID:          id,
			State:       st.State.String(),
			Progress:    st.Progress,
			DownloadBps: st.DownloadRate,
			UploadBps:   st.UploadRate,
			Peers:       st.NumPeers,
			Error:       st.ErrorMessage,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	s.wsHub.Broadcast("statuses", out)
}
