package services

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/google/uuid"

	"github.com/TFMV/dwgate/pkg/errors"
	"github.com/TFMV/dwgate/pkg/infrastructure/metrics"
	"github.com/TFMV/dwgate/pkg/models"
)

// Executor defaults.
const (
	DefaultQueryTimeout = 5 * time.Minute
	DefaultMaxRows      = 10000
)

// ExecutorConfig tunes the executor.
type ExecutorConfig struct {
	// QueryTimeout bounds each statement unless the request overrides it.
	QueryTimeout time.Duration
	// MaxRows is the hard ceiling on materialized rows, independent of the
	// LIMIT appended by the rewriter.
	MaxRows int
	// DefaultLimit is the LIMIT appended when the request sets none.
	DefaultLimit int
}

func (c ExecutorConfig) withDefaults() ExecutorConfig {
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = DefaultQueryTimeout
	}
	if c.MaxRows <= 0 {
		c.MaxRows = DefaultMaxRows
	}
	if c.DefaultLimit <= 0 {
		c.DefaultLimit = models.DefaultRowCap
	}
	return c
}

// queryExecutor implements QueryExecutor.
type queryExecutor struct {
	resolver   InstanceResolver
	classifier *StatementClassifier
	gate       *SafetyGate
	rewriter   *QueryRewriter
	logger     Logger
	metrics    MetricsCollector
	cfg        ExecutorConfig
}

// NewQueryExecutor creates an executor resolving instances through resolver.
func NewQueryExecutor(resolver InstanceResolver, logger Logger, metrics MetricsCollector, cfg ExecutorConfig) QueryExecutor {
	return &queryExecutor{
		resolver:   resolver,
		classifier: NewStatementClassifier(),
		gate:       NewSafetyGate(),
		rewriter:   NewQueryRewriter(),
		logger:     logger,
		metrics:    metrics,
		cfg:        cfg.withDefaults(),
	}
}

// Execute classifies, gates and bounds the statement, then runs it on the
// target instance. Rejected statements never reach the registry.
func (e *queryExecutor) Execute(ctx context.Context, req *models.QueryRequest) (*models.QueryResult, error) {
	timer := e.metrics.StartTimer(metrics.QueryDuration)
	defer timer.Stop()

	if err := validateQueryRequest(req, e.cfg.MaxRows); err != nil {
		return nil, err
	}

	queryID := uuid.NewString()
	e.logger.Debug("Executing query", "query_id", queryID, "instance", req.Instance, "query", req.Query)

	verdict := e.classifier.Classify(req.Query)
	if err := e.gate.Authorize(verdict, req.AllowDestructive); err != nil {
		e.metrics.IncrementCounter(metrics.RejectionsTotal, "reason", errors.GetCode(err))
		e.logger.Warn("Statement rejected",
			"query_id", queryID,
			"instance", req.Instance,
			"category", verdict.Category.String(),
			"error", err)
		return nil, err
	}

	rowCap := req.RowCap()
	if req.Limit <= 0 {
		rowCap = e.cfg.DefaultLimit
	}
	statement, err := e.rewriter.Rewrite(req.Query, verdict, rowCap)
	if err != nil {
		return nil, err
	}

	cfg, ok := e.resolver.Instance(req.Instance)
	if !ok {
		return nil, errors.UnknownPlatform(req.Instance)
	}
	backend, err := e.resolver.Resolve(ctx, req.Instance)
	if err != nil {
		e.metrics.IncrementCounter(metrics.QueriesTotal, "instance", req.Instance, "status", "connection_error")
		return nil, err
	}

	timeout := e.cfg.QueryTimeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := &models.QueryResult{
		Instance:  req.Instance,
		Platform:  cfg.Kind,
		Statement: statement,
		Verdict:   verdict,
	}

	start := time.Now()
	if verdict.Category == models.CategoryRead {
		rs, qerr := backend.Query(queryCtx, statement, e.cfg.MaxRows)
		err = qerr
		if err == nil {
			result.Columns = rs.Columns
			result.Rows = rs.Rows
			result.RowCount = len(rs.Rows)
			result.Truncated = rs.Truncated
			result.ReturnsRows = true
		}
	} else {
		result.RowsAffected, err = backend.Exec(queryCtx, statement)
	}
	result.ExecutionTime = time.Since(start)

	if err != nil {
		e.metrics.IncrementCounter(metrics.QueriesTotal, "instance", req.Instance, "status", "error")
		e.logger.Error("Query execution failed",
			"query_id", queryID,
			"instance", req.Instance,
			"statement", statement,
			"error", err,
			"execution_time", result.ExecutionTime)
		return nil, wrapExecutionError(queryCtx, req.Instance, statement, timeout, err)
	}

	e.metrics.IncrementCounter(metrics.QueriesTotal, "instance", req.Instance, "status", "success")
	e.logger.Info("Query executed successfully",
		"query_id", queryID,
		"instance", req.Instance,
		"rows", result.RowCount,
		"rows_affected", result.RowsAffected,
		"truncated", result.Truncated,
		"execution_time", result.ExecutionTime)

	return result, nil
}

func validateQueryRequest(req *models.QueryRequest, maxRows int) error {
	if req == nil {
		return errors.New(errors.CodeInvalidRequest, "query request cannot be nil")
	}
	if req.Instance == "" {
		return errors.New(errors.CodeInvalidRequest, "platform is required")
	}
	if req.Limit < 0 {
		return errors.New(errors.CodeInvalidRequest, "limit cannot be negative")
	}
	if req.Limit > maxRows {
		return errors.Newf(errors.CodeInvalidRequest, "limit %d exceeds max_rows %d", req.Limit, maxRows)
	}
	if req.Timeout < 0 {
		return errors.New(errors.CodeInvalidRequest, "timeout cannot be negative")
	}
	return nil
}

// wrapExecutionError keeps gateway errors raised by the backend and wraps
// driver errors with the instance and the statement sent.
func wrapExecutionError(ctx context.Context, instance, statement string, timeout time.Duration, err error) error {
	if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.Wrapf(err, errors.CodeDeadlineExceeded, "query on %s exceeded %s", instance, timeout).
			WithDetail(errors.DetailInstance, instance).
			WithDetail(errors.DetailStatement, statement)
	}
	if errors.IsConnectionFailed(err) {
		return err
	}
	return errors.ExecutionFailed(instance, statement, err)
}
