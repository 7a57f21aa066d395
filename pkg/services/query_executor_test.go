package services

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TFMV/dwgate/pkg/errors"
	"github.com/TFMV/dwgate/pkg/models"
	"github.com/TFMV/dwgate/pkg/repositories"
)

func setupTestExecutor(cfg ExecutorConfig) (QueryExecutor, *mockResolver, *mockBackend, *mockMetricsCollector) {
	backend := &mockBackend{
		kind: models.KindMySQL,
		queryFunc: func(ctx context.Context, query string, maxRows int) (*repositories.ResultSet, error) {
			return &repositories.ResultSet{
				Columns: []string{"id", "name"},
				Rows:    [][]any{{int64(1), "ada"}, {int64(2), "grace"}},
			}, nil
		},
		execFunc: func(ctx context.Context, statement string) (int64, error) {
			return 3, nil
		},
	}
	resolver := &mockResolver{instances: testInstances(), backend: backend}
	metrics := &mockMetricsCollector{}
	executor := NewQueryExecutor(resolver, &mockLogger{}, metrics, cfg)
	return executor, resolver, backend, metrics
}

func TestQueryExecutor_Read(t *testing.T) {
	tests := []struct {
		name          string
		query         string
		limit         int
		wantStatement string
	}{
		{"unbounded select gets default cap", "SELECT * FROM orders", 0, "SELECT * FROM orders LIMIT 100"},
		{"unbounded select gets request cap", "SELECT * FROM orders", 5, "SELECT * FROM orders LIMIT 5"},
		{"existing limit kept", "SELECT * FROM orders LIMIT 1000", 5, "SELECT * FROM orders LIMIT 1000"},
		{"show untouched", "SHOW TABLES", 5, "SHOW TABLES"},
		{"quoted keyword is not destructive", "SELECT 'DELETE FROM t' AS s", 0, "SELECT 'DELETE FROM t' AS s LIMIT 100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			executor, _, backend, metrics := setupTestExecutor(ExecutorConfig{})

			result, err := executor.Execute(context.Background(), &models.QueryRequest{
				Instance: "mysql",
				Query:    tt.query,
				Limit:    tt.limit,
			})
			require.NoError(t, err)

			assert.Equal(t, tt.wantStatement, result.Statement)
			assert.Equal(t, []string{tt.wantStatement}, backend.sent())
			assert.True(t, result.ReturnsRows)
			assert.Equal(t, 2, result.RowCount)
			assert.Equal(t, []string{"id", "name"}, result.Columns)
			assert.Equal(t, models.KindMySQL, result.Platform)
			assert.Equal(t, "mysql", result.Instance)
			assert.Equal(t, models.CategoryRead, result.Verdict.Category)
			assert.Equal(t, 1, metrics.count("dwgate_queries_total{instance=mysql,status=success}"))
		})
	}
}

func TestQueryExecutor_MaxRowsCeiling(t *testing.T) {
	executor, _, backend, _ := setupTestExecutor(ExecutorConfig{MaxRows: 2, DefaultLimit: 500})

	var gotMax int
	backend.queryFunc = func(ctx context.Context, query string, maxRows int) (*repositories.ResultSet, error) {
		gotMax = maxRows
		return &repositories.ResultSet{
			Columns:   []string{"n"},
			Rows:      [][]any{{int64(1)}, {int64(2)}},
			Truncated: true,
		}, nil
	}

	result, err := executor.Execute(context.Background(), &models.QueryRequest{Instance: "mysql", Query: "SELECT n FROM big"})
	require.NoError(t, err)
	assert.Equal(t, 2, gotMax)
	assert.True(t, result.Truncated)
	assert.Equal(t, "SELECT n FROM big LIMIT 500", result.Statement)
}

func TestQueryExecutor_DefaultLimit(t *testing.T) {
	executor, _, _, _ := setupTestExecutor(ExecutorConfig{DefaultLimit: 25})

	result, err := executor.Execute(context.Background(), &models.QueryRequest{Instance: "mysql", Query: "SELECT n FROM big"})
	require.NoError(t, err)
	assert.Equal(t, "SELECT n FROM big LIMIT 25", result.Statement)

	result, err = executor.Execute(context.Background(), &models.QueryRequest{Instance: "mysql", Query: "SELECT n FROM big", Limit: 7})
	require.NoError(t, err)
	assert.Equal(t, "SELECT n FROM big LIMIT 7", result.Statement)
}

func TestQueryExecutor_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		allow  bool
		reason errors.RejectionReason
	}{
		{"delete blocked", "DELETE FROM orders WHERE id = 1", false, errors.ReasonBlockedDestructive},
		{"update blocked", "UPDATE orders SET x = 1", false, errors.ReasonBlockedDestructive},
		{"drop blocked", "DROP TABLE orders", false, errors.ReasonBlockedDestructive},
		{"cte with delete blocked", "WITH d AS (DELETE FROM t RETURNING *) SELECT * FROM d", false, errors.ReasonBlockedDestructive},
		{"unknown verb", "VACUUM orders", true, errors.ReasonAmbiguousStatement},
		{"empty", "   ", true, errors.ReasonAmbiguousStatement},
		{"batch with delete even when allowed", "SELECT 1; DELETE FROM orders", true, errors.ReasonAmbiguousStatement},
		{"unterminated quote", "SELECT 'oops", false, errors.ReasonAmbiguousStatement},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			executor, resolver, backend, metrics := setupTestExecutor(ExecutorConfig{})

			result, err := executor.Execute(context.Background(), &models.QueryRequest{
				Instance:         "mysql",
				Query:            tt.query,
				AllowDestructive: tt.allow,
			})
			require.Error(t, err)
			assert.Nil(t, result)

			rej, ok := errors.AsRejection(err)
			require.True(t, ok)
			assert.Equal(t, tt.reason, rej.Reason)

			assert.Zero(t, resolver.resolveCount())
			assert.Empty(t, backend.sent())
			assert.Equal(t, 1, metrics.count("dwgate_rejections_total{reason="+string(tt.reason)+"}"))
		})
	}
}

func TestQueryExecutor_RejectionBeforeInstanceLookup(t *testing.T) {
	executor, _, _, _ := setupTestExecutor(ExecutorConfig{})

	_, err := executor.Execute(context.Background(), &models.QueryRequest{Instance: "nope", Query: "DROP TABLE t"})
	assert.True(t, errors.IsRejection(err))
}

func TestQueryExecutor_AllowedDestructive(t *testing.T) {
	executor, _, backend, _ := setupTestExecutor(ExecutorConfig{})

	result, err := executor.Execute(context.Background(), &models.QueryRequest{
		Instance:         "mysql",
		Query:            "DELETE FROM orders WHERE id < 4",
		AllowDestructive: true,
	})
	require.NoError(t, err)

	assert.False(t, result.ReturnsRows)
	assert.Equal(t, int64(3), result.RowsAffected)
	assert.Equal(t, "DELETE FROM orders WHERE id < 4", result.Statement)
	assert.Equal(t, []string{"DELETE FROM orders WHERE id < 4"}, backend.sent())
}

func TestQueryExecutor_Errors(t *testing.T) {
	t.Run("unknown instance", func(t *testing.T) {
		executor, _, _, _ := setupTestExecutor(ExecutorConfig{})
		_, err := executor.Execute(context.Background(), &models.QueryRequest{Instance: "nope", Query: "SELECT 1"})
		assert.True(t, errors.IsUnknownPlatform(err))
	})

	t.Run("connection failure passes through", func(t *testing.T) {
		executor, resolver, _, metrics := setupTestExecutor(ExecutorConfig{})
		resolver.resolveErr = errors.ConnectionFailed("mysql", stderrors.New("dial tcp: refused"))

		_, err := executor.Execute(context.Background(), &models.QueryRequest{Instance: "mysql", Query: "SELECT 1"})
		assert.True(t, errors.IsConnectionFailed(err))
		assert.Contains(t, err.Error(), "dial tcp: refused")
		assert.Equal(t, 1, metrics.count("dwgate_queries_total{instance=mysql,status=connection_error}"))
	})

	t.Run("driver error carries statement", func(t *testing.T) {
		executor, _, backend, metrics := setupTestExecutor(ExecutorConfig{})
		backend.queryFunc = func(ctx context.Context, query string, maxRows int) (*repositories.ResultSet, error) {
			return nil, stderrors.New("Error 1146: Table 'shop.nope' doesn't exist")
		}

		_, err := executor.Execute(context.Background(), &models.QueryRequest{Instance: "mysql", Query: "SELECT * FROM nope"})
		require.Error(t, err)
		assert.True(t, errors.IsExecutionFailed(err))
		assert.Contains(t, err.Error(), "Error 1146: Table 'shop.nope' doesn't exist")

		stmt, ok := errors.GetDetail(err, errors.DetailStatement)
		require.True(t, ok)
		assert.Equal(t, "SELECT * FROM nope LIMIT 100", stmt)
		assert.Equal(t, 1, metrics.count("dwgate_queries_total{instance=mysql,status=error}"))
	})

	t.Run("timeout", func(t *testing.T) {
		executor, _, backend, _ := setupTestExecutor(ExecutorConfig{QueryTimeout: time.Hour})
		backend.queryFunc = func(ctx context.Context, query string, maxRows int) (*repositories.ResultSet, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}

		_, err := executor.Execute(context.Background(), &models.QueryRequest{
			Instance: "mysql",
			Query:    "SELECT pg_sleep(10)",
			Timeout:  10 * time.Millisecond,
		})
		require.Error(t, err)
		assert.Equal(t, errors.CodeDeadlineExceeded, errors.GetCode(err))
	})
}

func TestQueryExecutor_InvalidRequest(t *testing.T) {
	executor, _, _, _ := setupTestExecutor(ExecutorConfig{})

	tests := []struct {
		name string
		req  *models.QueryRequest
	}{
		{"nil request", nil},
		{"missing platform", &models.QueryRequest{Query: "SELECT 1"}},
		{"negative limit", &models.QueryRequest{Instance: "mysql", Query: "SELECT 1", Limit: -1}},
		{"negative timeout", &models.QueryRequest{Instance: "mysql", Query: "SELECT 1", Timeout: -time.Second}},
		{"limit above max rows", &models.QueryRequest{Instance: "mysql", Query: "SELECT 1", Limit: DefaultMaxRows + 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := executor.Execute(context.Background(), tt.req)
			assert.True(t, errors.IsInvalidRequest(err))
		})
	}
}

func TestQueryExecutor_LimitAtMaxRows(t *testing.T) {
	executor, resolver, backend, _ := setupTestExecutor(ExecutorConfig{MaxRows: 50})

	result, err := executor.Execute(context.Background(), &models.QueryRequest{Instance: "mysql", Query: "SELECT n FROM big", Limit: 50})
	require.NoError(t, err)
	assert.Equal(t, "SELECT n FROM big LIMIT 50", result.Statement)

	_, err = executor.Execute(context.Background(), &models.QueryRequest{Instance: "mysql", Query: "SELECT n FROM big", Limit: 51})
	require.Error(t, err)
	assert.True(t, errors.IsInvalidRequest(err))
	assert.Contains(t, err.Error(), "limit 51 exceeds max_rows 50")
	assert.Len(t, backend.sent(), 1)
	assert.Equal(t, 1, resolver.resolveCount())
}
