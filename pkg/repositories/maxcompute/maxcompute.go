// Package maxcompute opens MAXCOMPUTE and DATAWORKS instances through the
// ODPS database/sql driver.
package maxcompute

import (
	"context"
	"net/url"
	"strings"

	_ "github.com/aliyun/aliyun-odps-go-sdk/sqldriver"
	"github.com/rs/zerolog"

	"github.com/TFMV/dwgate/pkg/errors"
	"github.com/TFMV/dwgate/pkg/infrastructure/pool"
	"github.com/TFMV/dwgate/pkg/models"
	"github.com/TFMV/dwgate/pkg/repositories/sqldb"
)

// DriverName is the database/sql driver registered by the ODPS SDK.
const DriverName = "odps"

// DSN builds the driver DSN: the endpoint URL carrying the access pair as
// user info and the project as a query parameter.
func DSN(cfg *models.MaxComputeConfig) (string, error) {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil || u.Host == "" {
		return "", errors.Newf(errors.CodeInvalidRequest, "invalid MaxCompute endpoint %q", cfg.Endpoint)
	}

	u.User = url.UserPassword(cfg.AccessID, cfg.AccessKey)
	q := u.Query()
	q.Set("project", cfg.Project)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// schemaQuery reads the project's information schema. The driver has no
// placeholder support, so literals are inlined.
func schemaQuery(project string) sqldb.SchemaQueryFunc {
	return func(schema string) (string, []any) {
		var b strings.Builder
		b.WriteString("SELECT table_schema, table_name, column_name, data_type, is_nullable, ordinal_position\n")
		b.WriteString("FROM information_schema.columns\n")
		b.WriteString("WHERE table_catalog = ")
		b.WriteString(quoteLiteral(project))
		if schema != "" {
			b.WriteString(" AND table_schema = ")
			b.WriteString(quoteLiteral(schema))
		}
		return b.String(), nil
	}
}

func quoteLiteral(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return "'" + strings.ReplaceAll(s, "'", `\'`) + "'"
}

// Open creates a MaxCompute backend. Every statement is a billed job, so the
// health check only pings.
func Open(ctx context.Context, cfg models.InstanceConfig, poolCfg pool.Config, logger zerolog.Logger) (*sqldb.Backend, error) {
	if cfg.MaxCompute == nil {
		return nil, errors.Newf(errors.CodeInvalidRequest, "instance %s has no MaxCompute settings", cfg.ID)
	}

	dsn, err := DSN(cfg.MaxCompute)
	if err != nil {
		return nil, err
	}

	poolCfg.Driver = DriverName
	poolCfg.DSN = dsn
	poolCfg.HealthQuery = ""

	return sqldb.Open(ctx, cfg.ID, sqldb.Dialect{
		Kind:        cfg.Kind,
		SchemaQuery: schemaQuery(cfg.MaxCompute.Project),
	}, poolCfg, logger)
}
