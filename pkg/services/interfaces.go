// Package services contains business logic implementations.
package services

import (
	"context"
	"time"

	"github.com/TFMV/dwgate/pkg/models"
	"github.com/TFMV/dwgate/pkg/repositories"
)

// QueryExecutor runs statements against configured instances.
type QueryExecutor interface {
	Execute(ctx context.Context, req *models.QueryRequest) (*models.QueryResult, error)
}

// ToolService implements the operations exposed to tool callers.
type ToolService interface {
	ListPlatforms(ctx context.Context) (*PlatformListing, error)
	GetPlatformInfo(ctx context.Context, platform string) (*models.PlatformInfo, error)
	ExecuteQuery(ctx context.Context, req *models.QueryRequest) (*models.QueryResult, error)
	ValidateQuery(ctx context.Context, query string, allowDestructive bool) (*models.ValidationResult, error)
	GetSchemaInfo(ctx context.Context, platform, schema string) (*models.SchemaInfo, error)
	GetExampleQueries(ctx context.Context, platform string) (*ExampleListing, error)
}

// InstanceResolver looks up configured instances and their live backends.
type InstanceResolver interface {
	Resolve(ctx context.Context, id string) (repositories.Backend, error)
	Instance(id string) (models.InstanceConfig, bool)
	ListInstances(kind *models.PlatformKind) []string
}

// Logger defines logging interface.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// MetricsCollector defines metrics collection interface.
type MetricsCollector interface {
	IncrementCounter(name string, labels ...string)
	RecordHistogram(name string, value float64, labels ...string)
	RecordGauge(name string, value float64, labels ...string)
	StartTimer(name string) Timer
}

// Timer represents a timing measurement.
type Timer interface {
	Stop() time.Duration
}
