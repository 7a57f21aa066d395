package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// LoggingMiddleware provides request logging middleware.
type LoggingMiddleware struct {
	logger zerolog.Logger
}

// NewLoggingMiddleware creates a new logging middleware.
func NewLoggingMiddleware(logger zerolog.Logger) *LoggingMiddleware {
	return &LoggingMiddleware{
		logger: logger,
	}
}

// UnaryInterceptor returns a unary server interceptor for logging.
func (m *LoggingMiddleware) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()

		resp, err := handler(ctx, req)

		code := status.Code(err)
		event := m.logger.Debug()
		if err != nil && code != codes.Canceled {
			event = m.logger.Error().Err(err)
		}

		event.
			Str("method", info.FullMethod).
			Dur("duration", time.Since(start)).
			Str("code", code.String()).
			Msg("Unary request")

		return resp, err
	}
}

// StreamInterceptor returns a stream server interceptor for logging.
func (m *LoggingMiddleware) StreamInterceptor() grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()

		wrappedStream := &loggingServerStream{ServerStream: ss}
		err := handler(srv, wrappedStream)

		code := status.Code(err)
		event := m.logger.Debug()
		if err != nil && code != codes.Canceled {
			event = m.logger.Error().Err(err)
		}

		event.
			Str("method", info.FullMethod).
			Dur("duration", time.Since(start)).
			Str("code", code.String()).
			Int("messages_sent", wrappedStream.messagesSent).
			Msg("Stream request")

		return err
	}
}

// loggingServerStream counts messages sent on a stream.
type loggingServerStream struct {
	grpc.ServerStream
	messagesSent int
}

func (s *loggingServerStream) SendMsg(m interface{}) error {
	err := s.ServerStream.SendMsg(m)
	if err == nil {
		s.messagesSent++
	}
	return err
}

// Handler logs one line per HTTP request, after next has run.
func (m *LoggingMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		event := m.logger.Debug()
		if rec.status >= http.StatusInternalServerError {
			event = m.logger.Error()
		} else if rec.status >= http.StatusBadRequest {
			event = m.logger.Warn()
		}

		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// statusRecorder remembers the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps streamed responses working through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
