// Package pool wraps database/sql handles for backend instances: pool
// sizing, health checks, slow query logging and DSN masking.
package pool

import (
	"context"
	"database/sql"
	"net/url"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/TFMV/dwgate/pkg/errors"
)

// Config represents pool configuration for one backend instance.
type Config struct {
	Driver             string        `json:"driver"`
	DSN                string        `json:"dsn"`
	MaxOpenConnections int           `json:"max_open_connections"`
	MaxIdleConnections int           `json:"max_idle_connections"`
	ConnMaxLifetime    time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime    time.Duration `json:"conn_max_idle_time"`
	ConnectionTimeout  time.Duration `json:"connection_timeout"`
	SlowQueryThreshold time.Duration `json:"slow_query_threshold"`

	// HealthQuery runs after the ping during health checks. Empty skips it,
	// which suits backends where every statement is a billed job.
	HealthQuery string `json:"health_query"`
}

// Stats represents connection pool statistics.
type Stats struct {
	OpenConnections   int           `json:"open_connections"`
	InUse             int           `json:"in_use"`
	Idle              int           `json:"idle"`
	WaitCount         int64         `json:"wait_count"`
	WaitDuration      time.Duration `json:"wait_duration"`
	MaxIdleClosed     int64         `json:"max_idle_closed"`
	MaxLifetimeClosed int64         `json:"max_lifetime_closed"`
	Queries           int64         `json:"queries"`
	SlowQueries       int64         `json:"slow_queries"`
	LastHealthCheck   time.Time     `json:"last_health_check"`
	HealthCheckStatus string        `json:"health_check_status"`
}

// Pool is a health-checked *sql.DB for one instance.
type Pool struct {
	db     *sql.DB
	config Config
	logger zerolog.Logger

	closed atomic.Bool

	lastHealthCheck atomic.Int64
	healthStatus    atomic.Value // string

	queries     atomic.Int64
	slowQueries atomic.Int64
}

// withDefaults fills unset fields.
func (c Config) withDefaults() Config {
	if c.MaxOpenConnections <= 0 {
		c.MaxOpenConnections = 10
	}
	if c.MaxIdleConnections <= 0 {
		c.MaxIdleConnections = 2
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = 30 * time.Minute
	}
	if c.ConnMaxIdleTime <= 0 {
		c.ConnMaxIdleTime = 10 * time.Minute
	}
	if c.ConnectionTimeout <= 0 {
		c.ConnectionTimeout = 30 * time.Second
	}
	if c.SlowQueryThreshold <= 0 {
		c.SlowQueryThreshold = 5 * time.Second
	}
	return c
}

// Open opens a pool and verifies it with one health check. A failed check
// closes the handle; there is no retry.
func Open(ctx context.Context, cfg Config, logger zerolog.Logger) (*Pool, error) {
	cfg = cfg.withDefaults()

	logger.Info().
		Str("driver", cfg.Driver).
		Str("dsn", maskDSN(cfg.DSN)).
		Int("max_open", cfg.MaxOpenConnections).
		Int("max_idle", cfg.MaxIdleConnections).
		Dur("conn_lifetime", cfg.ConnMaxLifetime).
		Dur("conn_idle_time", cfg.ConnMaxIdleTime).
		Msg("Opening connection pool")

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeConnectionFailed, "failed to open database")
	}

	db.SetMaxOpenConns(cfg.MaxOpenConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConnections)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	p := &Pool{
		db:     db,
		config: cfg,
		logger: logger,
	}
	p.healthStatus.Store("unknown")

	connCtx, cancel := context.WithTimeout(ctx, cfg.ConnectionTimeout)
	defer cancel()

	if err := p.HealthCheck(connCtx); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug().Msg("Connection pool ready")
	return p, nil
}

// DB returns the underlying handle.
func (p *Pool) DB() (*sql.DB, error) {
	if p.closed.Load() {
		return nil, errors.New(errors.CodeConnectionFailed, "connection pool is closed")
	}
	return p.db, nil
}

// HealthCheck pings the backend and runs the health query if one is configured.
func (p *Pool) HealthCheck(ctx context.Context) error {
	if p.closed.Load() {
		return errors.New(errors.CodeConnectionFailed, "connection pool is closed")
	}

	if err := p.db.PingContext(ctx); err != nil {
		p.updateHealthStatus("unhealthy", err.Error())
		return errors.Wrap(err, errors.CodeConnectionFailed, "health check ping failed")
	}

	if p.config.HealthQuery != "" {
		var result int
		if err := p.db.QueryRowContext(ctx, p.config.HealthQuery).Scan(&result); err != nil {
			p.updateHealthStatus("unhealthy", "health query failed")
			return errors.Wrap(err, errors.CodeConnectionFailed, "health check query failed")
		}
	}

	p.updateHealthStatus("healthy", "")
	return nil
}

// LogQuery records one statement execution, warning when it was slow.
func (p *Pool) LogQuery(query string, duration time.Duration, err error) {
	p.queries.Add(1)

	event := p.logger.Debug()
	if duration > p.config.SlowQueryThreshold {
		p.slowQueries.Add(1)
		event = p.logger.Warn().Bool("slow_query", true)
	}

	event.
		Dur("duration", duration).
		Str("query", truncateQuery(query)).
		Bool("success", err == nil).
		Msg("Query executed")
}

// Stats returns pool statistics.
func (p *Pool) Stats() Stats {
	dbStats := p.db.Stats()

	return Stats{
		OpenConnections:   dbStats.OpenConnections,
		InUse:             dbStats.InUse,
		Idle:              dbStats.Idle,
		WaitCount:         dbStats.WaitCount,
		WaitDuration:      dbStats.WaitDuration,
		MaxIdleClosed:     dbStats.MaxIdleClosed,
		MaxLifetimeClosed: dbStats.MaxLifetimeClosed,
		Queries:           p.queries.Load(),
		SlowQueries:       p.slowQueries.Load(),
		LastHealthCheck:   time.Unix(p.lastHealthCheck.Load(), 0),
		HealthCheckStatus: p.getHealthStatus(),
	}
}

// Close closes the pool. Closing twice is a no-op.
func (p *Pool) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}

	p.logger.Debug().Msg("Closing connection pool")

	if err := p.db.Close(); err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to close database")
	}
	return nil
}

func (p *Pool) updateHealthStatus(status, detail string) {
	p.lastHealthCheck.Store(time.Now().Unix())
	p.healthStatus.Store(status)

	if status == "unhealthy" && detail != "" {
		p.logger.Warn().
			Str("status", status).
			Str("detail", detail).
			Msg("Connection pool health status changed")
	}
}

func (p *Pool) getHealthStatus() string {
	if v := p.healthStatus.Load(); v != nil {
		return v.(string)
	}
	return "unknown"
}

var (
	// key=value pairs in libpq keyword DSNs; quoted values may contain spaces.
	keywordPairRe = regexp.MustCompile(`(\w+)\s*=\s*('(?:[^'\\]|\\.)*'|\S*)`)
	// user:password@proto(addr)/db as used by go-sql-driver/mysql.
	mysqlDSNRe = regexp.MustCompile(`^([^:@/]*):(.*)@(\w*\(.*)$`)
)

// maskDSN hides passwords and secret parameters in any of the DSN shapes the
// gateway builds: URLs, libpq keyword strings and MySQL driver DSNs.
func maskDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}

	if strings.Contains(dsn, "://") {
		if u, err := url.Parse(dsn); err == nil && looksLikeURL(u) {
			if ui := u.User; ui != nil {
				user := ui.Username()
				if _, hasPass := ui.Password(); hasPass {
					u.User = url.UserPassword(user, "*****")
				} else {
					u.User = url.User(user)
				}
			}

			q := u.Query()
			for k := range q {
				if isSensitiveKey(k) {
					q.Set(k, "*****")
				}
			}
			u.RawQuery = q.Encode()
			return u.String()
		}
	}

	if m := mysqlDSNRe.FindStringSubmatch(dsn); m != nil {
		return m[1] + ":*****@" + m[3]
	}

	if strings.Contains(dsn, "=") {
		return keywordPairRe.ReplaceAllStringFunc(dsn, func(pair string) string {
			sub := keywordPairRe.FindStringSubmatch(pair)
			if isSensitiveKey(sub[1]) {
				return sub[1] + "=*****"
			}
			return pair
		})
	}

	runes := []rune(dsn)
	if len(runes) <= 10 {
		return "***"
	}
	return string(runes[:3]) + "***" + string(runes[len(runes)-3:])
}

// MaskDSN is the exported form of maskDSN for callers outside the package.
func MaskDSN(dsn string) string {
	return maskDSN(dsn)
}

func looksLikeURL(u *url.URL) bool {
	return u.Scheme != "" || u.Host != "" || u.User != nil || u.RawQuery != ""
}

func isSensitiveKey(key string) bool {
	key = strings.ToLower(key)
	switch {
	case strings.Contains(key, "pass"),
		strings.Contains(key, "token"),
		strings.Contains(key, "secret"),
		strings.HasSuffix(key, "key"):
		return true
	default:
		return false
	}
}

// truncateQuery truncates long queries for logging.
func truncateQuery(query string) string {
	const maxLen = 100
	if len(query) <= maxLen {
		return query
	}
	return query[:maxLen] + "..."
}
