// Package services contains business logic implementations.
package services

import (
	"fmt"
	"strings"

	"github.com/TFMV/dwgate/pkg/models"
)

// StatementClassifier assigns a safety category to SQL text using a lexical
// scan. It holds only read-only tables and is safe for concurrent use.
type StatementClassifier struct {
	readLeads     map[string]bool
	rescanLeads   map[string]bool
	unlimitable   map[string]bool
	destructive   map[string]bool
	schemaChanges map[string]bool
}

// NewStatementClassifier creates a classifier with the gateway's keyword tables.
func NewStatementClassifier() *StatementClassifier {
	return &StatementClassifier{
		readLeads:     wordSet("SELECT", "SHOW", "DESCRIBE", "DESC", "EXPLAIN", "WITH"),
		rescanLeads:   wordSet("SELECT", "WITH", "EXPLAIN"),
		unlimitable:   wordSet("SHOW", "DESCRIBE", "DESC", "EXPLAIN"),
		destructive:   wordSet("DELETE", "UPDATE", "INSERT", "MERGE"),
		schemaChanges: wordSet("DROP", "TRUNCATE", "ALTER", "CREATE"),
	}
}

func wordSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

// Classify returns the verdict for sql. Anything that cannot be tokenized or
// recognised is UNKNOWN, as is anything the supported backends would split
// into different statements or tokens.
func (c *StatementClassifier) Classify(sql string) models.StatementVerdict {
	readings, err := lexReadings(sql)
	if err != nil {
		return models.StatementVerdict{Category: models.CategoryUnknown}
	}

	verdict := c.classifyTokens(readings[0])
	agreed := sameBoundaries(readings)
	for _, tokens := range readings[1:] {
		other := c.classifyTokens(tokens)
		if other != verdict {
			agreed = false
			if other.Category > verdict.Category {
				verdict = other
			}
		}
	}
	if !agreed {
		return models.StatementVerdict{
			Category:   models.CategoryUnknown,
			Statements: verdict.Statements,
			Keyword:    verdict.Keyword,
		}
	}
	return verdict
}

// classifyTokens classifies one reading of a batch.
func (c *StatementClassifier) classifyTokens(tokens []token) models.StatementVerdict {
	stmts := splitStatements(tokens)
	if len(stmts) == 0 {
		return models.StatementVerdict{Category: models.CategoryUnknown}
	}

	verdict := models.StatementVerdict{
		Category:       models.CategoryRead,
		HasBoundClause: true,
		Statements:     len(stmts),
	}
	for i, stmt := range stmts {
		category, keyword := c.classifyStatement(stmt)
		if i == 0 || category > verdict.Category {
			verdict.Keyword = keyword
		}
		verdict.Category = verdict.Category.MoreSevere(category)

		if category == models.CategoryRead {
			if !c.unlimitable[stmt.first().text] {
				verdict.Limitable = true
			}
			if !hasBoundClause(stmt) {
				verdict.HasBoundClause = false
			}
		}
	}

	if len(stmts) > 1 && verdict.Category != models.CategoryRead {
		verdict.Category = models.CategoryUnknown
	}
	if verdict.Category != models.CategoryRead {
		verdict.HasBoundClause = false
		verdict.Limitable = false
	}
	return verdict
}

// classifyStatement returns the category of one statement and the keyword that decided it.
func (c *StatementClassifier) classifyStatement(stmt statement) (models.StatementCategory, string) {
	lead := stmt.first()
	if lead.kind != tokenWord {
		return models.CategoryUnknown, lead.text
	}

	switch {
	case c.destructive[lead.text]:
		return models.CategoryDestructive, lead.text
	case c.schemaChanges[lead.text]:
		return models.CategorySchemaMutation, lead.text
	case !c.readLeads[lead.text]:
		return models.CategoryUnknown, lead.text
	case !c.rescanLeads[lead.text]:
		return models.CategoryRead, lead.text
	}

	category, keyword := models.CategoryRead, lead.text
	for i, t := range stmt.tokens[1:] {
		if t.kind != tokenWord {
			continue
		}
		var found models.StatementCategory
		switch {
		case c.destructive[t.text]:
			// SELECT ... FOR [NO KEY] UPDATE is a row lock, not a write.
			if t.text == "UPDATE" && isLockUpdate(stmt.tokens[:i+1]) {
				continue
			}
			found = models.CategoryDestructive
		case c.schemaChanges[t.text]:
			found = models.CategorySchemaMutation
		default:
			continue
		}
		if found > category {
			category, keyword = found, t.text
		}
	}
	return category, keyword
}

func isLockUpdate(before []token) bool {
	n := len(before)
	switch {
	case n >= 1 && before[n-1].isWord("FOR"):
		return true
	case n >= 3 && before[n-1].isWord("KEY") && before[n-2].isWord("NO") && before[n-3].isWord("FOR"):
		return true
	}
	return false
}

// hasBoundClause reports whether stmt ends in a top-level LIMIT or
// FETCH FIRST/NEXT ... ROWS ONLY clause, either last or just before a
// trailing row-lock clause.
func hasBoundClause(stmt statement) bool {
	top := stmt.topLevel()
	if endsWithBound(top) {
		return true
	}
	lock := lockClauseAt(top)
	return lock < len(top) && endsWithBound(top[:lock])
}

func endsWithBound(top []token) bool {
	for i := len(top) - 1; i >= 0; i-- {
		switch {
		case top[i].isWord("LIMIT"):
			return limitTailOK(top[i+1:])
		case top[i].isWord("FETCH"):
			return fetchTailOK(top[i+1:])
		case !isLimitTailToken(top[i]):
			return false
		}
	}
	return false
}

// lockClauseAt returns the index in top of the first FOR UPDATE, FOR SHARE,
// FOR NO KEY UPDATE, FOR KEY SHARE or LOCK IN SHARE MODE clause, or len(top)
// when there is none.
func lockClauseAt(top []token) int {
	for i := 1; i+1 < len(top); i++ {
		next := top[i+1]
		switch {
		case top[i].isWord("FOR") && (next.isWord("UPDATE") || next.isWord("SHARE") || next.isWord("NO") || next.isWord("KEY")):
			return i
		case top[i].isWord("LOCK") && next.isWord("IN"):
			return i
		}
	}
	return len(top)
}

// limitOffset is where a LIMIT clause goes in stmt: before a trailing
// row-lock clause, otherwise at the end.
func limitOffset(stmt statement) int {
	top := stmt.topLevel()
	if lock := lockClauseAt(top); lock < len(top) {
		return top[lock-1].end
	}
	return stmt.end()
}

func isLimitTailToken(t token) bool {
	if t.isNumber() || t.isSymbol(",") || t.isSymbol("?") || t.isSymbol(":") {
		return true
	}
	if t.kind == tokenWord {
		switch t.text {
		case "ALL", "OFFSET", "ROW", "ROWS", "FIRST", "NEXT", "ONLY", "WITH", "TIES":
			return true
		}
		// bind parameters such as $1
		return strings.HasPrefix(t.text, "$") || strings.HasPrefix(t.text, "@")
	}
	return false
}

func limitTailOK(tail []token) bool {
	if len(tail) == 0 {
		return false
	}
	for _, t := range tail {
		if !isLimitTailToken(t) || t.isWord("FIRST") || t.isWord("NEXT") || t.isWord("ONLY") {
			return false
		}
	}
	return true
}

func fetchTailOK(tail []token) bool {
	if len(tail) < 3 || !(tail[0].isWord("FIRST") || tail[0].isWord("NEXT")) {
		return false
	}
	for _, t := range tail {
		if t.isWord("ONLY") || t.isWord("TIES") {
			return true
		}
	}
	return false
}

// ValidateStatement performs basic SQL statement validation.
func (c *StatementClassifier) ValidateStatement(sql string) error {
	if sql == "" {
		return fmt.Errorf("SQL statement cannot be empty")
	}
	if strings.TrimSpace(sql) == "" {
		return fmt.Errorf("SQL statement contains only whitespace")
	}

	tokens, err := lexSQL(sql)
	if err != nil {
		return fmt.Errorf("SQL statement has %v", err)
	}
	if len(splitStatements(tokens)) == 0 {
		return fmt.Errorf("SQL statement contains only comments")
	}
	return nil
}
