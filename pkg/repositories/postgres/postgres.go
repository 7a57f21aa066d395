// Package postgres opens HOLOGRES instances through pgx and REDSHIFT
// instances through lib/pq.
package postgres

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/TFMV/dwgate/pkg/errors"
	"github.com/TFMV/dwgate/pkg/infrastructure/pool"
	"github.com/TFMV/dwgate/pkg/models"
	"github.com/TFMV/dwgate/pkg/repositories/sqldb"
)

// Driver names registered by the imported drivers.
const (
	PgxDriver = "pgx"
	PqDriver  = "postgres"
)

const schemaQuery = `SELECT table_schema, table_name, column_name, data_type, is_nullable, ordinal_position
FROM information_schema.columns
WHERE ($1::text = '' AND table_schema NOT IN ('pg_catalog', 'information_schema')
       AND table_schema NOT LIKE 'pg\_%' AND table_schema NOT LIKE 'hologres%')
   OR table_schema = $1::text`

// DriverFor returns the database/sql driver used for kind.
func DriverFor(kind models.PlatformKind) string {
	if kind.Canonical() == models.KindRedshift {
		return PqDriver
	}
	return PgxDriver
}

// DSN builds a libpq keyword/value connection string understood by both
// pgx and lib/pq.
func DSN(kind models.PlatformKind, cfg *models.PostgresConfig, timeout time.Duration) string {
	params := map[string]string{
		"host":             cfg.Host,
		"port":             strconv.Itoa(cfg.Port),
		"user":             cfg.User,
		"password":         cfg.Password,
		"dbname":           cfg.Database,
		"application_name": "dwgate",
	}
	if cfg.SSLMode != "" {
		params["sslmode"] = cfg.SSLMode
	}
	if timeout > 0 {
		secs := int(timeout / time.Second)
		if secs < 1 {
			secs = 1
		}
		params["connect_timeout"] = strconv.Itoa(secs)
	}
	// Hologres rejects some extended-protocol statement forms.
	if kind.Canonical() == models.KindHologres {
		params["default_query_exec_mode"] = "simple_protocol"
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+quoteValue(params[k]))
	}
	return strings.Join(parts, " ")
}

// quoteValue quotes a keyword/value DSN value when needed.
func quoteValue(v string) string {
	if v != "" && !strings.ContainsAny(v, " '\\\t\n") {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// Open connects to a Postgres-compatible instance.
func Open(ctx context.Context, cfg models.InstanceConfig, poolCfg pool.Config, logger zerolog.Logger) (*sqldb.Backend, error) {
	if cfg.Postgres == nil {
		return nil, errors.Newf(errors.CodeInvalidRequest, "instance %s has no Postgres settings", cfg.ID)
	}

	poolCfg.Driver = DriverFor(cfg.Kind)
	poolCfg.DSN = DSN(cfg.Kind, cfg.Postgres, poolCfg.ConnectionTimeout)
	poolCfg.HealthQuery = "SELECT 1"

	return sqldb.Open(ctx, cfg.ID, sqldb.Dialect{
		Kind: cfg.Kind,
		SchemaQuery: func(schema string) (string, []any) {
			return schemaQuery, []any{schema}
		},
	}, poolCfg, logger)
}
