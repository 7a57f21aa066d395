package middleware

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/TFMV/dwgate/pkg/infrastructure/metrics"
)

// MetricsCollector defines the interface for collecting metrics.
type MetricsCollector interface {
	IncrementCounter(name string, labels ...string)
	RecordHistogram(name string, value float64, labels ...string)
	RecordGauge(name string, value float64, labels ...string)
	StartTimer(name string) Timer
}

// Timer represents a timing measurement.
type Timer interface {
	Stop() float64
}

// MetricsMiddleware counts and times gRPC requests.
type MetricsMiddleware struct {
	collector MetricsCollector
}

// NewMetricsMiddleware creates a new metrics middleware.
func NewMetricsMiddleware(collector MetricsCollector) *MetricsMiddleware {
	return &MetricsMiddleware{
		collector: collector,
	}
}

// UnaryInterceptor returns a unary server interceptor for metrics.
func (m *MetricsMiddleware) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		timer := m.collector.StartTimer(metrics.GRPCRequestDuration)
		defer timer.Stop()

		resp, err := handler(ctx, req)

		m.collector.IncrementCounter(metrics.GRPCRequestsTotal,
			"method", info.FullMethod,
			"code", status.Code(err).String())
		return resp, err
	}
}

// StreamInterceptor returns a stream server interceptor for metrics.
func (m *MetricsMiddleware) StreamInterceptor() grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		timer := m.collector.StartTimer(metrics.GRPCRequestDuration)
		defer timer.Stop()

		err := handler(srv, ss)

		m.collector.IncrementCounter(metrics.GRPCRequestsTotal,
			"method", info.FullMethod,
			"code", status.Code(err).String())
		return err
	}
}
