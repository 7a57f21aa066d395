package handlers

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/TFMV/dwgate/pkg/infrastructure/metrics"
)

// Prompt names.
const (
	PromptExplainSchema     = "explain-schema"
	PromptDataLineage       = "data-lineage"
	PromptQueryOptimization = "query-optimization"
)

// PromptHandler serves the prompt templates.
type PromptHandler struct {
	logger  Logger
	metrics MetricsCollector
}

// NewPromptHandler creates a prompt handler.
func NewPromptHandler(logger Logger, metrics MetricsCollector) *PromptHandler {
	return &PromptHandler{logger: logger, metrics: metrics}
}

// Register adds the prompts to server.
func (h *PromptHandler) Register(server *mcp.Server) {
	server.AddPrompt(&mcp.Prompt{
		Name:        PromptExplainSchema,
		Description: "Explain the schema and structure of a table",
		Arguments: []*mcp.PromptArgument{
			{Name: "platform", Description: "Platform name (maxcompute, hologres, mysql, polardb, redshift)", Required: true},
			{Name: "table", Description: "Table name to explain", Required: true},
		},
	}, h.ExplainSchema)

	server.AddPrompt(&mcp.Prompt{
		Name:        PromptDataLineage,
		Description: "Explain data lineage and dependencies",
		Arguments: []*mcp.PromptArgument{
			{Name: "table", Description: "Table name to trace lineage", Required: true},
		},
	}, h.DataLineage)

	server.AddPrompt(&mcp.Prompt{
		Name:        PromptQueryOptimization,
		Description: "Get suggestions for optimizing a query",
		Arguments: []*mcp.PromptArgument{
			{Name: "platform", Description: "Platform name", Required: true},
			{Name: "query", Description: "SQL query to optimize", Required: true},
		},
	}, h.QueryOptimization)
}

// ExplainSchema renders the explain-schema prompt.
func (h *PromptHandler) ExplainSchema(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	args := h.arguments(PromptExplainSchema, req)
	platform, table := args["platform"], args["table"]

	return userPrompt(
		fmt.Sprintf("Explaining schema for %s on %s", table, platform),
		fmt.Sprintf("Please explain the schema and structure of table '%s' on platform '%s'. "+
			"Include column names, data types, and any constraints or indexes.", table, platform),
	), nil
}

// DataLineage renders the data-lineage prompt.
func (h *PromptHandler) DataLineage(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	table := h.arguments(PromptDataLineage, req)["table"]

	return userPrompt(
		fmt.Sprintf("Explaining data lineage for %s", table),
		fmt.Sprintf("Please explain the data lineage for table '%s'. "+
			"Show upstream sources and downstream dependencies.", table),
	), nil
}

// QueryOptimization renders the query-optimization prompt.
func (h *PromptHandler) QueryOptimization(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	args := h.arguments(PromptQueryOptimization, req)
	platform, query := args["platform"], args["query"]

	return userPrompt(
		fmt.Sprintf("Optimizing query for %s", platform),
		fmt.Sprintf("Please analyze this query for platform '%s' and suggest optimizations:\n\n%s", platform, query),
	), nil
}

// arguments records the request and returns its arguments. Missing
// arguments read as empty strings.
func (h *PromptHandler) arguments(name string, req *mcp.GetPromptRequest) map[string]string {
	h.metrics.IncrementCounter(metrics.ToolCallsTotal, "tool", name, "status", "success")
	h.logger.Debug("Prompt requested", "prompt", name)

	if req == nil || req.Params == nil || req.Params.Arguments == nil {
		return map[string]string{}
	}
	return req.Params.Arguments
}

func userPrompt(description, text string) *mcp.GetPromptResult {
	return &mcp.GetPromptResult{
		Description: description,
		Messages: []*mcp.PromptMessage{
			{Role: "user", Content: &mcp.TextContent{Text: text}},
		},
	}
}
