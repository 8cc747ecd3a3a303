package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"btd/internal/metrics"
)

func recoveryMiddleware(logger *slog.Logger, next HandlerFunc) HandlerFunc {
	return func(ctx context.Context, req Request) (result any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("rpc panic recovered",
					slog.Any("error", r),
					slog.String("method", req.Method),
					slog.Int64("id", req.ID),
					slog.String("stack", string(debug.Stack())),
				)
				result = nil
				err = &Error{Code: CodeInternal, Message: "internal error", err: fmt.Errorf("panic: %v", r)}
			}
		}()
		return next(ctx, req)
	}
}

func loggingMiddleware(logger *slog.Logger, next HandlerFunc) HandlerFunc {
	return func(ctx context.Context, req Request) (any, error) {
		start := time.Now()
		result, err := next(ctx, req)

		code := responseCode(err)
		attrs := []slog.Attr{
			slog.String("method", req.Method),
			slog.Int64("id", req.ID),
			slog.Int("code", code),
			slog.Int64("durationMs", time.Since(start).Milliseconds()),
		}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		logger.LogAttrs(ctx, pickRequestLogLevel(req.Method, code), "rpc request", attrs...)
		return result, err
	}
}

func metricsMiddleware(next HandlerFunc) HandlerFunc {
	return func(ctx context.Context, req Request) (any, error) {
		start := time.Now()
		result, err := next(ctx, req)
		method := methodLabel(req.Method)
		metrics.RPCRequestsTotal.WithLabelValues(method, strconv.Itoa(responseCode(err))).Inc()
		metrics.RPCRequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
		return result, err
	}
}

func tracingMiddleware(tracer trace.Tracer, next HandlerFunc) HandlerFunc {
	return func(ctx context.Context, req Request) (any, error) {
		method := methodLabel(req.Method)
		ctx, span := tracer.Start(ctx, "rpc."+method,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("rpc.system", "btd"),
				attribute.String("rpc.method", method),
				attribute.Int64("rpc.request_id", req.ID),
			),
		)
		defer span.End()

		result, err := next(ctx, req)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.Int("rpc.code", responseCode(err)))
		return result, err
	}
}

// responseCode is 200 for success and the wire error code otherwise.
func responseCode(err error) int {
	if err == nil {
		return 200
	}
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr.Code
	}
	return CodeInternal
}

func pickRequestLogLevel(method string, code int) slog.Level {
	switch {
	case code >= 500:
		return slog.LevelError
	case code >= 400:
		return slog.LevelWarn
	case method == MethodStatus || method == MethodList:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}
