// Package mysql opens MYSQL and POLARDB instances with go-sql-driver/mysql.
package mysql

import (
	"context"
	"net"
	"strconv"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog"

	"github.com/TFMV/dwgate/pkg/errors"
	"github.com/TFMV/dwgate/pkg/infrastructure/pool"
	"github.com/TFMV/dwgate/pkg/models"
	"github.com/TFMV/dwgate/pkg/repositories/sqldb"
)

// DriverName is the database/sql driver registered by go-sql-driver/mysql.
const DriverName = "mysql"

const schemaQuery = `SELECT table_schema, table_name, column_name, column_type, is_nullable, ordinal_position
FROM information_schema.columns
WHERE table_schema = COALESCE(NULLIF(?, ''), DATABASE())`

// DSN builds the driver DSN for cfg.
func DSN(cfg *models.MySQLConfig, timeout time.Duration) string {
	c := gomysql.NewConfig()
	c.User = cfg.User
	c.Passwd = cfg.Password
	c.Net = "tcp"
	c.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	c.DBName = cfg.Database
	c.ParseTime = true
	if timeout > 0 {
		c.Timeout = timeout
	}
	return c.FormatDSN()
}

// Open connects to a MySQL-family instance.
func Open(ctx context.Context, cfg models.InstanceConfig, poolCfg pool.Config, logger zerolog.Logger) (*sqldb.Backend, error) {
	if cfg.MySQL == nil {
		return nil, errors.Newf(errors.CodeInvalidRequest, "instance %s has no MySQL settings", cfg.ID)
	}

	poolCfg.Driver = DriverName
	poolCfg.DSN = DSN(cfg.MySQL, poolCfg.ConnectionTimeout)
	poolCfg.HealthQuery = "SELECT 1"

	return sqldb.Open(ctx, cfg.ID, sqldb.Dialect{
		Kind: cfg.Kind,
		SchemaQuery: func(schema string) (string, []any) {
			return schemaQuery, []any{schema}
		},
	}, poolCfg, logger)
}
