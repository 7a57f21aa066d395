package registry

import (
	"context"
	stderrors "errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/TFMV/dwgate/pkg/errors"
	"github.com/TFMV/dwgate/pkg/infrastructure/metrics"
	"github.com/TFMV/dwgate/pkg/models"
	"github.com/TFMV/dwgate/pkg/repositories"
)

// Defaults for Registry options.
const (
	DefaultLivenessInterval = 30 * time.Second
	DefaultConnectTimeout   = 30 * time.Second
)

var errRegistryClosed = stderrors.New("registry is closed")

// entry is the registry slot for one configured instance.
type entry struct {
	cfg models.InstanceConfig

	mu        sync.Mutex
	backend   repositories.Backend
	checkedAt time.Time
}

// Registry resolves instance ids to live backends. At most one backend per
// instance is open at a time; concurrent first uses share a single open.
type Registry struct {
	entries map[string]*entry
	ids     []string
	skipped []SkippedInstance

	opener repositories.Opener
	group  singleflight.Group

	logger           zerolog.Logger
	metrics          metrics.Collector
	livenessInterval time.Duration
	connectTimeout   time.Duration
	now              func() time.Time

	closed atomic.Bool
	open   atomic.Int64
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger.With().Str("component", "registry").Logger()
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(collector metrics.Collector) Option {
	return func(r *Registry) {
		if collector != nil {
			r.metrics = collector
		}
	}
}

// WithLivenessInterval sets how long a handle is trusted before it is pinged
// again. Zero pings on every resolve.
func WithLivenessInterval(d time.Duration) Option {
	return func(r *Registry) {
		if d >= 0 {
			r.livenessInterval = d
		}
	}
}

// WithConnectTimeout bounds each open and liveness ping.
func WithConnectTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.connectTimeout = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// New creates a registry over the loaded instances. Nothing is opened until
// the first Resolve.
func New(result *LoadResult, opener repositories.Opener, opts ...Option) *Registry {
	r := &Registry{
		entries:          make(map[string]*entry),
		opener:           opener,
		logger:           zerolog.Nop(),
		metrics:          metrics.NewNoOpCollector(),
		livenessInterval: DefaultLivenessInterval,
		connectTimeout:   DefaultConnectTimeout,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	if result != nil {
		for id, cfg := range result.Instances {
			r.entries[id] = &entry{cfg: cfg}
			r.ids = append(r.ids, id)
		}
		r.skipped = append(r.skipped, result.Skipped...)
	}
	sort.Strings(r.ids)

	r.logger.Debug().Int("instances", len(r.ids)).Msg("Registry created")
	return r
}

// Resolve returns the live backend for id, opening it on first use or after
// a failed liveness check. Open failures are not retried.
func (r *Registry) Resolve(ctx context.Context, id string) (repositories.Backend, error) {
	e, ok := r.entries[id]
	if !ok {
		return nil, errors.UnknownPlatform(id)
	}
	if r.closed.Load() {
		return nil, errors.ConnectionFailed(id, errRegistryClosed)
	}

	if b := r.cached(ctx, id, e); b != nil {
		return b, nil
	}

	v, err, shared := r.group.Do(id, func() (interface{}, error) {
		if b := r.cached(ctx, id, e); b != nil {
			return b, nil
		}
		return r.openEntry(ctx, id, e)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		r.logger.Debug().Str("instance", id).Msg("Shared in-flight open")
	}
	return v.(repositories.Backend), nil
}

// cached returns the entry's backend if it is present and alive. A backend
// that fails its ping is closed and dropped. The handle is shared, so only a
// failure of the backend itself drops it: a caller whose context is already
// done skips the check and gets the handle back unchecked.
func (r *Registry) cached(ctx context.Context, id string, e *entry) repositories.Backend {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.backend == nil {
		return nil
	}
	now := r.now()
	if now.Sub(e.checkedAt) < r.livenessInterval || ctx.Err() != nil {
		return e.backend
	}

	pingCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.connectTimeout)
	defer cancel()

	if err := e.backend.Ping(pingCtx); err != nil {
		r.logger.Warn().Err(err).Str("instance", id).Msg("Liveness check failed, reopening")
		if cerr := e.backend.Close(); cerr != nil {
			r.logger.Debug().Err(cerr).Str("instance", id).Msg("Close after failed liveness check")
		}
		e.backend = nil
		r.metrics.RecordGauge(metrics.OpenInstances, float64(r.open.Add(-1)))
		return nil
	}

	e.checkedAt = now
	return e.backend
}

func (r *Registry) openEntry(ctx context.Context, id string, e *entry) (repositories.Backend, error) {
	// Shared by every waiter: detached from the starting caller's cancellation.
	openCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.connectTimeout)
	defer cancel()

	r.logger.Info().
		Str("instance", id).
		Str("kind", e.cfg.Kind.String()).
		Str("target", e.cfg.Target()).
		Msg("Opening instance")

	start := r.now()
	backend, err := r.opener.Open(openCtx, e.cfg)
	if err != nil {
		r.metrics.IncrementCounter(metrics.ConnectionOpens, "instance", id, "result", "failure")
		r.logger.Error().Err(err).Str("instance", id).Msg("Failed to open instance")
		return nil, errors.ConnectionFailed(id, err)
	}

	e.mu.Lock()
	if r.closed.Load() {
		e.mu.Unlock()
		backend.Close()
		return nil, errors.ConnectionFailed(id, errRegistryClosed)
	}
	e.backend = backend
	e.checkedAt = r.now()
	e.mu.Unlock()

	r.metrics.IncrementCounter(metrics.ConnectionOpens, "instance", id, "result", "success")
	r.metrics.RecordGauge(metrics.OpenInstances, float64(r.open.Add(1)))
	r.logger.Info().
		Str("instance", id).
		Dur("duration", r.now().Sub(start)).
		Msg("Instance opened")

	return backend, nil
}

// Instance returns the configuration of id.
func (r *Registry) Instance(id string) (models.InstanceConfig, bool) {
	e, ok := r.entries[id]
	if !ok {
		return models.InstanceConfig{}, false
	}
	return e.cfg, true
}

// ListInstances returns the sorted ids, optionally only those whose
// canonical kind matches kind.
func (r *Registry) ListInstances(kind *models.PlatformKind) []string {
	out := make([]string, 0, len(r.ids))
	for _, id := range r.ids {
		if kind != nil && r.entries[id].cfg.Kind.Canonical() != kind.Canonical() {
			continue
		}
		out = append(out, id)
	}
	return out
}

// Skipped returns the instances that were configured but failed to load.
func (r *Registry) Skipped() []SkippedInstance {
	return r.skipped
}

// IsOpen reports whether id currently holds a backend.
func (r *Registry) IsOpen(id string) bool {
	e, ok := r.entries[id]
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.backend != nil
}

// CloseAll closes every open backend. Later Resolve calls fail.
func (r *Registry) CloseAll() error {
	r.closed.Store(true)

	var errs []error
	for _, id := range r.ids {
		e := r.entries[id]
		e.mu.Lock()
		if e.backend != nil {
			if err := e.backend.Close(); err != nil {
				errs = append(errs, err)
			}
			e.backend = nil
			r.open.Add(-1)
		}
		e.mu.Unlock()
	}
	r.metrics.RecordGauge(metrics.OpenInstances, float64(r.open.Load()))

	r.logger.Info().Int("errors", len(errs)).Msg("Registry closed")

	if len(errs) > 0 {
		return errors.Wrap(stderrors.Join(errs...), errors.CodeInternal, "failed to close instances")
	}
	return nil
}
