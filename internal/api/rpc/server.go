package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"btd/internal/domain"
	"btd/internal/metrics"
	"btd/internal/usecase"
)

// Core is the torrent API the RPC methods drive.
type Core interface {
	Start(ctx context.Context, configPath string) error
	Shutdown()
	AddMagnet(ctx context.Context, uri, saveDir string) (domain.TorrentID, error)
	AddTorrentFile(ctx context.Context, path, saveDir string) (domain.TorrentID, error)
	SeedFolder(ctx context.Context, folder, torrentOutPath string) (domain.TorrentID, error)
	Pause(ctx context.Context, id domain.TorrentID) error
	Resume(ctx context.Context, id domain.TorrentID) error
	Remove(ctx context.Context, id domain.TorrentID, deleteFiles bool) error
	Status(ctx context.Context, id domain.TorrentID) (domain.TorrentStatus, error)
	List(ctx context.Context) ([]domain.TorrentID, error)
}

// HandlerFunc serves one decoded request. A returned *Error picks the
// response code; any other error becomes a 500 "internal error".
type HandlerFunc func(ctx context.Context, req Request) (any, error)

type methodFunc func(ctx context.Context, p Params) (any, error)

type Option func(*Server)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithIO replaces stdin/stdout as the frame transport.
func WithIO(in io.Reader, out io.Writer) Option {
	return func(s *Server) {
		s.in = in
		s.out = out
	}
}

func WithMaxFrameSize(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxFrame = n
		}
	}
}

func WithVersion(v string) Option {
	return func(s *Server) {
		if v != "" {
			s.version = v
		}
	}
}

// Server runs the framed request/response loop over a byte stream.
type Server struct {
	core      Core
	resumeAll usecase.ResumeAll
	in        io.Reader
	out       io.Writer
	maxFrame  int64
	version   string
	logger    *slog.Logger
	tracer    trace.Tracer
	methods   map[string]methodFunc
	handler   HandlerFunc
}

func NewServer(core Core, opts ...Option) *Server {
	s := &Server{
		core:     core,
		in:       os.Stdin,
		out:      os.Stdout,
		maxFrame: MaxFrameSize,
		version:  "dev",
		tracer:   otel.Tracer("btd/rpc"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	s.resumeAll = usecase.ResumeAll{Adder: core, Logger: s.logger}
	s.methods = map[string]methodFunc{
		MethodInit:           s.handleInit,
		MethodAddMagnet:      s.handleAddMagnet,
		MethodAddTorrentFile: s.handleAddTorrentFile,
		MethodSeedFolder:     s.handleSeedFolder,
		MethodPause:          s.handlePause,
		MethodResume:         s.handleResume,
		MethodRemove:         s.handleRemove,
		MethodStatus:         s.handleStatus,
		MethodResumeAll:      s.handleResumeAll,
		MethodList:           s.handleList,
		MethodShutdown:       s.handleShutdown,
	}
	s.handler = tracingMiddleware(s.tracer,
		loggingMiddleware(s.logger,
			metricsMiddleware(
				recoveryMiddleware(s.logger, s.dispatch))))
	return s
}

// Serve reads requests until the peer closes the stream, a shutdown request
// is served, or ctx is cancelled between frames. A clean close returns nil.
// A broken read returns an error wrapping ErrFrameIO.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("rpc loop started", slog.String("version", s.version))
	for {
		if ctx.Err() != nil {
			return nil
		}

		payload, err := ReadFrame(s.in, s.maxFrame)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				s.logger.Info("rpc peer closed stream")
				return nil
			case errors.Is(err, ErrFrameTooLarge):
				s.logger.Warn("rpc frame rejected", slog.String("error", err.Error()))
				metrics.RPCRequestsTotal.WithLabelValues("invalid", "400").Inc()
				s.write(errorResponse(0, badRequest(err, "frame too large")))
				continue
			default:
				s.logger.Error("rpc read failed", slog.String("error", err.Error()))
				return err
			}
		}

		resp, method := s.Handle(ctx, payload)
		s.write(resp)
		if method == MethodShutdown && resp.Error == nil {
			s.core.Shutdown()
			s.logger.Info("rpc loop stopped by shutdown request")
			return nil
		}
	}
}

// Handle decodes and serves one request payload. It returns the response
// and the request's method, which is empty when the envelope was invalid.
func (s *Server) Handle(ctx context.Context, payload []byte) (Response, string) {
	req, err := parseRequest(payload)
	if err != nil {
		metrics.RPCRequestsTotal.WithLabelValues("invalid", "400").Inc()
		s.logger.Warn("rpc malformed request",
			slog.Int64("id", req.ID),
			slog.Int("bytes", len(payload)),
		)
		return errorResponse(req.ID, err), ""
	}

	result, err := s.handler(ctx, req)
	if err != nil {
		return errorResponse(req.ID, err), req.Method
	}
	return okResponse(req.ID, result), req.Method
}

func (s *Server) dispatch(ctx context.Context, req Request) (any, error) {
	h, ok := s.methods[req.Method]
	if !ok {
		return nil, badRequest(ErrUnknownMethod, "unknown method")
	}
	return h(ctx, req.Params)
}

// write logs failures and carries on; the next request may still succeed.
func (s *Server) write(resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("rpc response encode failed",
			slog.Int64("id", resp.ID),
			slog.String("error", err.Error()),
		)
		data, _ = json.Marshal(errorResponse(resp.ID, err))
	}
	if err := WriteFrame(s.out, data); err != nil {
		s.logger.Error("rpc write failed",
			slog.Int64("id", resp.ID),
			slog.String("error", err.Error()),
		)
	}
}
