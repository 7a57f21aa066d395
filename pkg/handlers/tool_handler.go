package handlers

import (
	"context"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/TFMV/dwgate/pkg/errors"
	"github.com/TFMV/dwgate/pkg/infrastructure/converter"
	"github.com/TFMV/dwgate/pkg/infrastructure/metrics"
	"github.com/TFMV/dwgate/pkg/models"
	"github.com/TFMV/dwgate/pkg/services"
)

// Tool names.
const (
	ToolListPlatforms     = "list_platforms"
	ToolGetPlatformInfo   = "get_platform_info"
	ToolExecuteQuery      = "execute_query"
	ToolValidateQuery     = "validate_query"
	ToolGetSchemaInfo     = "get_schema_info"
	ToolGetExampleQueries = "get_example_queries"
)

// ListPlatformsInput takes no arguments.
type ListPlatformsInput struct{}

// PlatformInput names a platform kind or configured instance.
type PlatformInput struct {
	Platform string `json:"platform" jsonschema:"Platform name (maxcompute, hologres, mysql, polardb, redshift) or configured instance id"`
}

// ExecuteQueryInput are the execute_query arguments.
type ExecuteQueryInput struct {
	Platform         string `json:"platform" jsonschema:"Configured instance id, as returned by list_platforms"`
	Query            string `json:"query" jsonschema:"SQL query to execute"`
	Limit            int    `json:"limit,omitempty" jsonschema:"Maximum number of rows to return (default: 100)"`
	AllowDestructive bool   `json:"allow_destructive,omitempty" jsonschema:"Explicitly allow destructive operations (DELETE, UPDATE, DROP, etc.)"`
}

// ValidateQueryInput are the validate_query arguments.
type ValidateQueryInput struct {
	Query            string `json:"query" jsonschema:"SQL query to validate"`
	AllowDestructive bool   `json:"allow_destructive,omitempty" jsonschema:"Allow destructive operations"`
}

// SchemaInfoInput are the get_schema_info arguments.
type SchemaInfoInput struct {
	Platform string `json:"platform" jsonschema:"Configured instance id"`
	Schema   string `json:"schema,omitempty" jsonschema:"Optional specific schema name"`
}

// queryFailure is the document returned for statements the gate refused.
type queryFailure struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Reason  string `json:"reason"`
	Query   string `json:"query"`
}

// querySuccess is the raw JSON document that follows the result table.
type querySuccess struct {
	Success bool `json:"success"`
	*models.QueryResult
}

// ToolHandler serves the gateway tools.
type ToolHandler struct {
	service services.ToolService
	logger  Logger
	metrics MetricsCollector
}

// NewToolHandler creates a tool handler.
func NewToolHandler(service services.ToolService, logger Logger, metrics MetricsCollector) *ToolHandler {
	return &ToolHandler{
		service: service,
		logger:  logger,
		metrics: metrics,
	}
}

// Register adds the tools to server.
func (h *ToolHandler) Register(server *mcp.Server) {
	destructive := true

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolListPlatforms,
		Description: "List all available configured data warehouse platforms",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, h.ListPlatforms)

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolGetPlatformInfo,
		Description: "Get detailed information about a specific platform (features, dialect, use cases)",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, h.GetPlatformInfo)

	mcp.AddTool(server, &mcp.Tool{
		Name: ToolExecuteQuery,
		Description: "Execute a SQL query on specified platform. Automatically adds LIMIT for SELECT queries. " +
			"Destructive operations require explicit confirmation.",
		Annotations: &mcp.ToolAnnotations{DestructiveHint: &destructive},
	}, h.ExecuteQuery)

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolValidateQuery,
		Description: "Validate a SQL query for safety without executing it",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true, IdempotentHint: true},
	}, h.ValidateQuery)

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolGetSchemaInfo,
		Description: "Get schema information (tables and columns) for a platform",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, h.GetSchemaInfo)

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolGetExampleQueries,
		Description: "Get example queries for a specific platform",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true, IdempotentHint: true},
	}, h.GetExampleQueries)
}

// ListPlatforms handles list_platforms.
func (h *ToolHandler) ListPlatforms(ctx context.Context, _ *mcp.CallToolRequest, _ ListPlatformsInput) (*mcp.CallToolResult, any, error) {
	return h.call(ctx, ToolListPlatforms, func(ctx context.Context) (*mcp.CallToolResult, error) {
		listing, err := h.service.ListPlatforms(ctx)
		if err != nil {
			return nil, err
		}
		return jsonResult(listing)
	})
}

// GetPlatformInfo handles get_platform_info.
func (h *ToolHandler) GetPlatformInfo(ctx context.Context, _ *mcp.CallToolRequest, in PlatformInput) (*mcp.CallToolResult, any, error) {
	return h.call(ctx, ToolGetPlatformInfo, func(ctx context.Context) (*mcp.CallToolResult, error) {
		info, err := h.service.GetPlatformInfo(ctx, in.Platform)
		if err != nil {
			return nil, err
		}
		return jsonResult(info)
	})
}

// ExecuteQuery handles execute_query. The response is the formatted table
// followed by the raw JSON result.
func (h *ToolHandler) ExecuteQuery(ctx context.Context, _ *mcp.CallToolRequest, in ExecuteQueryInput) (*mcp.CallToolResult, any, error) {
	return h.call(ctx, ToolExecuteQuery, func(ctx context.Context) (*mcp.CallToolResult, error) {
		result, err := h.service.ExecuteQuery(ctx, &models.QueryRequest{
			Instance:         in.Platform,
			Query:            in.Query,
			Limit:            in.Limit,
			AllowDestructive: in.AllowDestructive,
		})
		if rej, ok := errors.AsRejection(err); ok {
			res, jerr := jsonResult(queryFailure{
				Success: false,
				Error:   rej.Message,
				Reason:  string(rej.Reason),
				Query:   in.Query,
			})
			if jerr != nil {
				return nil, jerr
			}
			res.IsError = true
			return res, nil
		}
		if err != nil {
			return nil, err
		}

		raw, err := converter.FormatJSON(querySuccess{Success: true, QueryResult: result})
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeInternal, "failed to encode result")
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: converter.FormatResult(result)},
				&mcp.TextContent{Text: "\n\nRaw JSON:\n" + raw},
			},
		}, nil
	})
}

// ValidateQuery handles validate_query.
func (h *ToolHandler) ValidateQuery(ctx context.Context, _ *mcp.CallToolRequest, in ValidateQueryInput) (*mcp.CallToolResult, any, error) {
	return h.call(ctx, ToolValidateQuery, func(ctx context.Context) (*mcp.CallToolResult, error) {
		result, err := h.service.ValidateQuery(ctx, in.Query, in.AllowDestructive)
		if err != nil {
			return nil, err
		}
		return jsonResult(result)
	})
}

// GetSchemaInfo handles get_schema_info.
func (h *ToolHandler) GetSchemaInfo(ctx context.Context, _ *mcp.CallToolRequest, in SchemaInfoInput) (*mcp.CallToolResult, any, error) {
	return h.call(ctx, ToolGetSchemaInfo, func(ctx context.Context) (*mcp.CallToolResult, error) {
		info, err := h.service.GetSchemaInfo(ctx, in.Platform, in.Schema)
		if err != nil {
			return nil, err
		}
		return jsonResult(info)
	})
}

// GetExampleQueries handles get_example_queries.
func (h *ToolHandler) GetExampleQueries(ctx context.Context, _ *mcp.CallToolRequest, in PlatformInput) (*mcp.CallToolResult, any, error) {
	return h.call(ctx, ToolGetExampleQueries, func(ctx context.Context) (*mcp.CallToolResult, error) {
		listing, err := h.service.GetExampleQueries(ctx, in.Platform)
		if err != nil {
			return nil, err
		}
		return jsonResult(listing)
	})
}

// call wraps one tool invocation with a request id, metrics and logging.
// Errors become tool results so the caller can read them.
func (h *ToolHandler) call(ctx context.Context, tool string, fn func(context.Context) (*mcp.CallToolResult, error)) (*mcp.CallToolResult, any, error) {
	timer := h.metrics.StartTimer(metrics.ToolCallDuration)
	defer timer.Stop()

	requestID := uuid.NewString()
	h.logger.Debug("Tool call", "tool", tool, "request_id", requestID)

	res, err := fn(ctx)
	if err != nil {
		h.metrics.IncrementCounter(metrics.ToolCallsTotal, "tool", tool, "status", "error")
		h.logger.Error("Tool call failed",
			"tool", tool,
			"request_id", requestID,
			"code", errors.GetCode(err),
			"error", err)
		return errorResult(err), nil, nil
	}

	status := "success"
	if res.IsError {
		status = "rejected"
	}
	h.metrics.IncrementCounter(metrics.ToolCallsTotal, "tool", tool, "status", status)
	h.logger.Debug("Tool call completed", "tool", tool, "request_id", requestID, "status", status)
	return res, nil, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	text, err := converter.FormatJSON(v)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to encode response")
	}
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}, nil
}

func errorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: converter.FormatError(err)}},
		IsError: true,
	}
}
