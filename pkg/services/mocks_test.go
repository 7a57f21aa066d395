package services

import (
	"context"
	"sync"
	"time"

	"github.com/TFMV/dwgate/pkg/errors"
	"github.com/TFMV/dwgate/pkg/models"
	"github.com/TFMV/dwgate/pkg/repositories"
)

// mockLogger implements Logger
type mockLogger struct {
	warnFunc  func(msg string, keysAndValues ...interface{})
	errorFunc func(msg string, keysAndValues ...interface{})
}

func (m *mockLogger) Debug(msg string, keysAndValues ...interface{}) {}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{}) {}

func (m *mockLogger) Warn(msg string, keysAndValues ...interface{}) {
	if m.warnFunc != nil {
		m.warnFunc(msg, keysAndValues...)
	}
}

func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {
	if m.errorFunc != nil {
		m.errorFunc(msg, keysAndValues...)
	}
}

// mockMetricsCollector implements MetricsCollector and records counter
// increments as "name{label=value,...}".
type mockMetricsCollector struct {
	mu       sync.Mutex
	counters map[string]int
}

func (m *mockMetricsCollector) IncrementCounter(name string, labels ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counters == nil {
		m.counters = make(map[string]int)
	}
	key := name + "{"
	for i := 0; i+1 < len(labels); i += 2 {
		if i > 0 {
			key += ","
		}
		key += labels[i] + "=" + labels[i+1]
	}
	m.counters[key+"}"]++
}

func (m *mockMetricsCollector) count(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[key]
}

func (m *mockMetricsCollector) RecordHistogram(name string, value float64, labels ...string) {}

func (m *mockMetricsCollector) RecordGauge(name string, value float64, labels ...string) {}

func (m *mockMetricsCollector) StartTimer(name string) Timer {
	return &mockTimer{}
}

// mockTimer implements Timer
type mockTimer struct{}

func (m *mockTimer) Stop() time.Duration {
	return 0
}

// mockBackend implements repositories.Backend
type mockBackend struct {
	kind       models.PlatformKind
	queryFunc  func(ctx context.Context, query string, maxRows int) (*repositories.ResultSet, error)
	execFunc   func(ctx context.Context, statement string) (int64, error)
	schemaFunc func(ctx context.Context, schema string) ([]models.Schema, error)

	mu      sync.Mutex
	queries []string
	schemas int
}

func (m *mockBackend) Kind() models.PlatformKind { return m.kind }

func (m *mockBackend) Query(ctx context.Context, query string, maxRows int) (*repositories.ResultSet, error) {
	m.mu.Lock()
	m.queries = append(m.queries, query)
	m.mu.Unlock()
	return m.queryFunc(ctx, query, maxRows)
}

func (m *mockBackend) Exec(ctx context.Context, statement string) (int64, error) {
	m.mu.Lock()
	m.queries = append(m.queries, statement)
	m.mu.Unlock()
	return m.execFunc(ctx, statement)
}

func (m *mockBackend) Ping(ctx context.Context) error { return nil }

func (m *mockBackend) Schema(ctx context.Context, schema string) ([]models.Schema, error) {
	m.mu.Lock()
	m.schemas++
	m.mu.Unlock()
	return m.schemaFunc(ctx, schema)
}

func (m *mockBackend) Close() error { return nil }

func (m *mockBackend) sent() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.queries...)
}

// mockResolver implements InstanceResolver over a fixed instance set.
type mockResolver struct {
	instances  map[string]models.InstanceConfig
	backend    repositories.Backend
	resolveErr error

	mu       sync.Mutex
	resolved int
}

func (m *mockResolver) Resolve(ctx context.Context, id string) (repositories.Backend, error) {
	m.mu.Lock()
	m.resolved++
	m.mu.Unlock()
	if _, ok := m.instances[id]; !ok {
		return nil, errors.UnknownPlatform(id)
	}
	if m.resolveErr != nil {
		return nil, m.resolveErr
	}
	return m.backend, nil
}

func (m *mockResolver) Instance(id string) (models.InstanceConfig, bool) {
	cfg, ok := m.instances[id]
	return cfg, ok
}

func (m *mockResolver) ListInstances(kind *models.PlatformKind) []string {
	var ids []string
	for _, id := range []string{"holo_hk_chatbi", "maxcompute_hk_bdw", "mysql"} {
		cfg, ok := m.instances[id]
		if !ok {
			continue
		}
		if kind != nil && cfg.Kind.Canonical() != kind.Canonical() {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func (m *mockResolver) resolveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resolved
}

func testInstances() map[string]models.InstanceConfig {
	return map[string]models.InstanceConfig{
		"mysql": {
			ID:    "mysql",
			Kind:  models.KindMySQL,
			MySQL: &models.MySQLConfig{Host: "db.internal", Port: 3306, User: "ro", Password: "pw", Database: "shop"},
		},
		"holo_hk_chatbi": {
			ID:       "holo_hk_chatbi",
			Kind:     models.KindHologres,
			Postgres: &models.PostgresConfig{Host: "holo.internal", Port: 80, User: "u", Password: "p", Database: "chatbi"},
		},
		"maxcompute_hk_bdw": {
			ID:         "maxcompute_hk_bdw",
			Kind:       models.KindDataWorks,
			MaxCompute: &models.MaxComputeConfig{Project: "bdw", AccessID: "id", AccessKey: "key", Endpoint: "http://service.cn-hongkong.maxcompute.aliyun.com/api"},
		},
	}
}
