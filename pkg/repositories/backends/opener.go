// Package backends selects the repository implementation for an instance kind.
package backends

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/TFMV/dwgate/pkg/errors"
	"github.com/TFMV/dwgate/pkg/infrastructure/pool"
	"github.com/TFMV/dwgate/pkg/models"
	"github.com/TFMV/dwgate/pkg/repositories"
	"github.com/TFMV/dwgate/pkg/repositories/maxcompute"
	"github.com/TFMV/dwgate/pkg/repositories/mysql"
	"github.com/TFMV/dwgate/pkg/repositories/postgres"
	"github.com/TFMV/dwgate/pkg/repositories/sqldb"
)

// Opener opens backends with shared pool settings.
type Opener struct {
	pool   pool.Config
	logger zerolog.Logger
}

var _ repositories.Opener = (*Opener)(nil)

// NewOpener creates an opener. Driver and DSN in poolCfg are ignored.
func NewOpener(poolCfg pool.Config, logger zerolog.Logger) *Opener {
	return &Opener{
		pool:   poolCfg,
		logger: logger.With().Str("component", "backends").Logger(),
	}
}

// Open dispatches on the canonical kind of cfg.
func (o *Opener) Open(ctx context.Context, cfg models.InstanceConfig) (repositories.Backend, error) {
	var (
		backend *sqldb.Backend
		err     error
	)
	switch cfg.Kind.Canonical() {
	case models.KindMaxCompute:
		backend, err = maxcompute.Open(ctx, cfg, o.pool, o.logger)
	case models.KindHologres, models.KindRedshift:
		backend, err = postgres.Open(ctx, cfg, o.pool, o.logger)
	case models.KindMySQL, models.KindPolarDB:
		backend, err = mysql.Open(ctx, cfg, o.pool, o.logger)
	default:
		return nil, errors.UnknownPlatform(string(cfg.Kind))
	}
	if err != nil {
		return nil, err
	}
	return backend, nil
}
