package services

import (
	"strconv"
	"strings"

	"github.com/TFMV/dwgate/pkg/errors"
	"github.com/TFMV/dwgate/pkg/models"
)

// QueryRewriter bounds unbounded reads by appending a LIMIT clause.
type QueryRewriter struct {
	unlimitable map[string]bool
}

// NewQueryRewriter creates a rewriter.
func NewQueryRewriter() *QueryRewriter {
	return &QueryRewriter{
		unlimitable: wordSet("SHOW", "DESCRIBE", "DESC", "EXPLAIN"),
	}
}

// Rewrite appends " LIMIT cap" to every top-level read statement that has no
// bounding clause, ahead of any trailing FOR UPDATE or FOR SHARE. The result
// is idempotent: rewriting its own output is a no-op. Existing limits are
// never changed.
func (r *QueryRewriter) Rewrite(sql string, verdict models.StatementVerdict, rowCap int) (string, error) {
	tokens, err := lexSQL(sql)
	if err != nil {
		return "", errors.InvalidStatement(err.Error())
	}
	stmts := splitStatements(tokens)
	if len(stmts) == 0 {
		return "", errors.InvalidStatement("statement is empty")
	}

	if verdict.Category != models.CategoryRead || verdict.HasBoundClause || !verdict.Limitable {
		return sql, nil
	}
	if rowCap <= 0 {
		rowCap = models.DefaultRowCap
	}
	clause := " LIMIT " + strconv.Itoa(rowCap)

	var (
		b    strings.Builder
		last int
	)
	for _, stmt := range stmts {
		if r.unlimitable[stmt.first().text] || hasBoundClause(stmt) {
			continue
		}
		end := limitOffset(stmt)
		b.WriteString(sql[last:end])
		b.WriteString(clause)
		last = end
	}
	b.WriteString(sql[last:])
	return b.String(), nil
}
