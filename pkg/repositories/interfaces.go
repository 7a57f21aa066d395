// Package repositories defines the backend abstraction the gateway executes
// statements against.
package repositories

import (
	"context"

	"github.com/TFMV/dwgate/pkg/models"
)

// ResultSet is a fully materialized row-returning result.
type ResultSet struct {
	Columns []string
	Rows    [][]any
	// Truncated is set when the backend had more rows than the ceiling allowed.
	Truncated bool
}

// Backend is a live handle to one configured instance.
type Backend interface {
	// Kind returns the platform kind of the instance.
	Kind() models.PlatformKind
	// Query runs a row-returning statement and reads at most maxRows rows.
	Query(ctx context.Context, query string, maxRows int) (*ResultSet, error)
	// Exec runs a statement that returns no rows and reports affected rows.
	Exec(ctx context.Context, statement string) (int64, error)
	// Ping checks that the handle is still usable.
	Ping(ctx context.Context) error
	// Schema introspects tables and columns, limited to schema when non-empty.
	Schema(ctx context.Context, schema string) ([]models.Schema, error)
	// Close releases the handle.
	Close() error
}

// Opener creates backends from validated instance configuration.
type Opener interface {
	Open(ctx context.Context, cfg models.InstanceConfig) (Backend, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context, cfg models.InstanceConfig) (Backend, error)

// Open calls f.
func (f OpenerFunc) Open(ctx context.Context, cfg models.InstanceConfig) (Backend, error) {
	return f(ctx, cfg)
}
