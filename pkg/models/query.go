package models

import "time"

// StatementCategory is the safety class of a SQL statement.
type StatementCategory int

const (
	// CategoryRead covers SELECT, WITH and metadata reads.
	CategoryRead StatementCategory = iota
	// CategoryDestructive covers DML that changes rows.
	CategoryDestructive
	// CategorySchemaMutation covers DDL.
	CategorySchemaMutation
	// CategoryUnknown covers anything that could not be classified.
	CategoryUnknown
)

// String returns the category name.
func (c StatementCategory) String() string {
	switch c {
	case CategoryRead:
		return "READ"
	case CategoryDestructive:
		return "DESTRUCTIVE"
	case CategorySchemaMutation:
		return "SCHEMA_MUTATION"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the category by name in JSON documents.
func (c StatementCategory) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// MoreSevere returns whichever of c and o ranks higher.
// READ < DESTRUCTIVE < SCHEMA_MUTATION < UNKNOWN.
func (c StatementCategory) MoreSevere(o StatementCategory) StatementCategory {
	if o > c {
		return o
	}
	return c
}

// StatementVerdict is the classifier's output for one SQL string.
type StatementVerdict struct {
	Category       StatementCategory `json:"category"`
	HasBoundClause bool              `json:"has_bound_clause"`
	Statements     int               `json:"statements"`
	Keyword        string            `json:"keyword,omitempty"`
	Limitable      bool              `json:"limitable"`
}

// DefaultRowCap is the LIMIT appended to unbounded reads.
const DefaultRowCap = 100

// QueryRequest represents a query execution request.
type QueryRequest struct {
	Instance         string        `json:"instance"`
	Query            string        `json:"query"`
	Limit            int           `json:"limit,omitempty"`
	AllowDestructive bool          `json:"allow_destructive,omitempty"`
	Timeout          time.Duration `json:"timeout,omitempty"`
}

// RowCap returns the effective cap for the request.
func (r *QueryRequest) RowCap() int {
	if r.Limit <= 0 {
		return DefaultRowCap
	}
	return r.Limit
}

// QueryResult represents the result of a query execution.
type QueryResult struct {
	Instance      string           `json:"instance"`
	Platform      PlatformKind     `json:"platform"`
	Columns       []string         `json:"columns"`
	Rows          [][]any          `json:"rows"`
	RowCount      int              `json:"row_count"`
	Truncated     bool             `json:"truncated,omitempty"`
	RowsAffected  int64            `json:"rows_affected,omitempty"`
	ReturnsRows   bool             `json:"returns_rows"`
	Statement     string           `json:"query"`
	Verdict       StatementVerdict `json:"verdict"`
	ExecutionTime time.Duration    `json:"execution_time"`
}

// ValidationResult is the dry-run answer for a statement.
type ValidationResult struct {
	Valid          bool   `json:"valid"`
	Message        string `json:"message"`
	Category       string `json:"category"`
	HasBoundClause bool   `json:"has_bound_clause"`
	OriginalQuery  string `json:"original_query"`
	ProcessedQuery string `json:"processed_query,omitempty"`
}
