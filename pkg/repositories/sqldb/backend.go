// Package sqldb implements repositories.Backend over database/sql. The
// per-platform packages supply a driver, a DSN and an introspection query.
package sqldb

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/TFMV/dwgate/pkg/errors"
	"github.com/TFMV/dwgate/pkg/infrastructure/pool"
	"github.com/TFMV/dwgate/pkg/models"
	"github.com/TFMV/dwgate/pkg/repositories"
)

// SchemaQueryFunc returns the introspection statement and its arguments. The
// statement must select schema, table, column, type, is_nullable and ordinal
// position, in that order. An empty schema means the instance default.
type SchemaQueryFunc func(schema string) (string, []any)

// Dialect describes how to talk to one family of backends.
type Dialect struct {
	Kind        models.PlatformKind
	SchemaQuery SchemaQueryFunc
}

// Backend implements repositories.Backend on a pooled *sql.DB.
type Backend struct {
	id      string
	dialect Dialect
	pool    *pool.Pool
	logger  zerolog.Logger
}

var _ repositories.Backend = (*Backend)(nil)

// Open opens a pool for cfg and wraps it as a backend for instance id.
func Open(ctx context.Context, id string, dialect Dialect, cfg pool.Config, logger zerolog.Logger) (*Backend, error) {
	logger = logger.With().
		Str("instance", id).
		Str("kind", dialect.Kind.String()).
		Logger()

	p, err := pool.Open(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &Backend{
		id:      id,
		dialect: dialect,
		pool:    p,
		logger:  logger,
	}, nil
}

// Kind returns the platform kind.
func (b *Backend) Kind() models.PlatformKind {
	return b.dialect.Kind
}

// Query executes a query and materializes at most maxRows rows.
func (b *Backend) Query(ctx context.Context, query string, maxRows int) (*repositories.ResultSet, error) {
	db, err := b.pool.DB()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	rs, err := b.query(ctx, db, query, maxRows)
	b.pool.LogQuery(query, time.Since(start), err)
	return rs, err
}

func (b *Backend) query(ctx context.Context, db *sql.DB, query string, maxRows int) (*repositories.ResultSet, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	rs := &repositories.ResultSet{
		Columns: columns,
		Rows:    make([][]any, 0),
	}

	for rows.Next() {
		if maxRows > 0 && len(rs.Rows) >= maxRows {
			rs.Truncated = true
			break
		}

		values := make([]any, len(columns))
		dest := make([]any, len(columns))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		for i, v := range values {
			values[i] = normalizeValue(v)
		}
		rs.Rows = append(rs.Rows, values)
	}

	if !rs.Truncated {
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}

	b.logger.Debug().
		Int("rows", len(rs.Rows)).
		Bool("truncated", rs.Truncated).
		Msg("Query results read")

	return rs, nil
}

// Exec executes a statement that returns no rows.
func (b *Backend) Exec(ctx context.Context, statement string) (int64, error) {
	db, err := b.pool.DB()
	if err != nil {
		return 0, err
	}

	start := time.Now()
	result, err := db.ExecContext(ctx, statement)
	b.pool.LogQuery(statement, time.Since(start), err)
	if err != nil {
		return 0, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		b.logger.Debug().Err(err).Msg("Driver does not report affected rows")
		return 0, nil
	}
	return affected, nil
}

// Ping runs the pool health check.
func (b *Backend) Ping(ctx context.Context) error {
	return b.pool.HealthCheck(ctx)
}

type columnRow struct {
	models.ColumnRow
	ordinal int64
}

// Schema introspects tables and columns.
func (b *Backend) Schema(ctx context.Context, schema string) ([]models.Schema, error) {
	if b.dialect.SchemaQuery == nil {
		return nil, errors.Newf(errors.CodeInvalidRequest, "schema introspection is not supported for %s", b.dialect.Kind)
	}

	db, err := b.pool.DB()
	if err != nil {
		return nil, err
	}

	query, args := b.dialect.SchemaQuery(schema)
	b.logger.Debug().Str("schema", schema).Msg("Introspecting schema")

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.ExecutionFailed(b.id, query, err)
	}
	defer rows.Close()

	var flat []columnRow
	for rows.Next() {
		var (
			r        columnRow
			nullable sql.NullString
			ordinal  sql.NullInt64
		)
		if err := rows.Scan(&r.Schema, &r.Table, &r.Column, &r.Type, &nullable, &ordinal); err != nil {
			return nil, errors.Wrap(err, errors.CodeInternal, "failed to scan column row")
		}
		r.Nullable = strings.EqualFold(nullable.String, "YES")
		r.ordinal = ordinal.Int64
		flat = append(flat, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "error iterating column rows")
	}

	sort.SliceStable(flat, func(i, j int) bool {
		a, c := flat[i], flat[j]
		if a.Schema != c.Schema {
			return a.Schema < c.Schema
		}
		if a.Table != c.Table {
			return a.Table < c.Table
		}
		return a.ordinal < c.ordinal
	})

	out := make([]models.ColumnRow, len(flat))
	for i, r := range flat {
		out[i] = r.ColumnRow
	}
	return models.GroupColumns(out), nil
}

// Stats returns the pool statistics.
func (b *Backend) Stats() pool.Stats {
	return b.pool.Stats()
}

// Close closes the pool.
func (b *Backend) Close() error {
	return b.pool.Close()
}

// normalizeValue turns driver values into JSON-friendly ones.
func normalizeValue(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	default:
		return v
	}
}
