package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TFMV/dwgate/pkg/errors"
	"github.com/TFMV/dwgate/pkg/models"
)

func TestStatementClassifier_Categories(t *testing.T) {
	classifier := NewStatementClassifier()

	tests := []struct {
		name     string
		sql      string
		expected models.StatementCategory
		keyword  string
	}{
		{"simple select", "SELECT * FROM users", models.CategoryRead, "SELECT"},
		{"lower case select", "select id from users where id = 1", models.CategoryRead, "SELECT"},
		{"show tables", "SHOW TABLES", models.CategoryRead, "SHOW"},
		{"show create table is metadata", "SHOW CREATE TABLE users", models.CategoryRead, "SHOW"},
		{"describe", "DESCRIBE users", models.CategoryRead, "DESCRIBE"},
		{"desc", "desc users;", models.CategoryRead, "DESC"},
		{"explain select", "EXPLAIN SELECT * FROM t", models.CategoryRead, "EXPLAIN"},
		{"cte read", "WITH a AS (SELECT 1 AS x) SELECT x FROM a", models.CategoryRead, "WITH"},
		{"for update is not a write", "SELECT * FROM t WHERE id = 1 FOR UPDATE", models.CategoryRead, "SELECT"},
		{"keyword in string literal", "SELECT * FROM logs WHERE msg = 'DROP TABLE users'", models.CategoryRead, "SELECT"},
		{"keyword in quoted identifier", "SELECT \"delete\" FROM `update`", models.CategoryRead, "SELECT"},
		{"keyword in comment", "SELECT 1 -- DELETE FROM t\n", models.CategoryRead, "SELECT"},
		{"keyword in block comment", "/* drop */ SELECT 1", models.CategoryRead, "SELECT"},
		{"identifier containing keyword", "SELECT is_deleted, updated_at FROM t", models.CategoryRead, "SELECT"},
		{"hash comment only in mysql", "SELECT 1 # DELETE", models.CategoryUnknown, "DELETE"},
		{"for no key update is not a write", "SELECT * FROM t FOR NO KEY UPDATE", models.CategoryRead, "SELECT"},
		{"dollar quoted literal", "SELECT $$DROP TABLE t$$", models.CategoryRead, "SELECT"},
		{"escape string literal", "SELECT E'it''s' FROM t", models.CategoryRead, "SELECT"},

		{"delete", "DELETE FROM users WHERE id = 1", models.CategoryDestructive, "DELETE"},
		{"update", "update users set name = 'x'", models.CategoryDestructive, "UPDATE"},
		{"insert", "INSERT INTO users VALUES (1)", models.CategoryDestructive, "INSERT"},
		{"merge", "MERGE INTO t USING s ON t.id = s.id WHEN MATCHED THEN DELETE", models.CategoryDestructive, "MERGE"},
		{"cte with delete", "WITH d AS (DELETE FROM t RETURNING *) SELECT * FROM d", models.CategoryDestructive, "DELETE"},
		{"explain analyze insert", "EXPLAIN ANALYZE INSERT INTO t SELECT 1", models.CategoryDestructive, "INSERT"},

		{"drop", "DROP TABLE users", models.CategorySchemaMutation, "DROP"},
		{"truncate", "TRUNCATE TABLE users", models.CategorySchemaMutation, "TRUNCATE"},
		{"alter", "ALTER TABLE users ADD COLUMN x INT", models.CategorySchemaMutation, "ALTER"},
		{"create", "CREATE TABLE t (id INT)", models.CategorySchemaMutation, "CREATE"},
		{"trailing semicolon", "SELECT 1; ", models.CategoryRead, "SELECT"},
		{"most severe wins in rescan", "WITH x AS (DELETE FROM a RETURNING *) SELECT * FROM x WHERE EXISTS (SELECT 1 FROM b) UNION SELECT * FROM (CREATE TABLE c AS SELECT 1) z", models.CategorySchemaMutation, "CREATE"},

		{"empty", "", models.CategoryUnknown, ""},
		{"whitespace", "   \n\t ", models.CategoryUnknown, ""},
		{"comment only", "-- just a note", models.CategoryUnknown, ""},
		{"unknown lead", "GRANT ALL ON t TO bob", models.CategoryUnknown, "GRANT"},
		{"unterminated quote", "SELECT 'abc", models.CategoryUnknown, ""},
		{"unterminated comment", "SELECT 1 /* oops", models.CategoryUnknown, ""},
		{"unbalanced parens", "SELECT (1", models.CategoryUnknown, ""},
		{"extra close paren", "SELECT 1)", models.CategoryUnknown, ""},
		{"leading paren", "(SELECT 1)", models.CategoryUnknown, "("},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := classifier.Classify(tt.sql)
			assert.Equal(t, tt.expected, v.Category, "sql: %s", tt.sql)
			assert.Equal(t, tt.keyword, v.Keyword)
		})
	}
}

func TestStatementClassifier_Batches(t *testing.T) {
	classifier := NewStatementClassifier()

	tests := []struct {
		name       string
		sql        string
		expected   models.StatementCategory
		statements int
	}{
		{"two reads", "SELECT 1; SELECT 2;", models.CategoryRead, 2},
		{"read then delete", "SELECT 1; DELETE FROM t", models.CategoryUnknown, 2},
		{"read then drop", "SELECT 1; DROP TABLE t", models.CategoryUnknown, 2},
		{"semicolon in literal is not a split", "SELECT ';DROP TABLE t'", models.CategoryRead, 1},
		{"escape string keeps its semicolon", `SELECT E'a\'; DROP TABLE users; --'`, models.CategoryRead, 1},
		{"trailing semicolons", "DELETE FROM t;;", models.CategoryDestructive, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := classifier.Classify(tt.sql)
			assert.Equal(t, tt.expected, v.Category)
			assert.Equal(t, tt.statements, v.Statements)
		})
	}
}

func TestStatementClassifier_BoundClause(t *testing.T) {
	classifier := NewStatementClassifier()

	tests := []struct {
		name     string
		sql      string
		expected bool
	}{
		{"no limit", "SELECT * FROM users", false},
		{"limit", "SELECT * FROM users LIMIT 10", true},
		{"limit with semicolon", "select * from users limit 10;", true},
		{"limit offset", "SELECT * FROM users LIMIT 10 OFFSET 20", true},
		{"mysql limit pair", "SELECT * FROM users LIMIT 20, 10", true},
		{"limit all", "SELECT * FROM users LIMIT ALL", true},
		{"limit bind parameter", "SELECT * FROM users LIMIT $1", true},
		{"fetch first", "SELECT * FROM users FETCH FIRST 5 ROWS ONLY", true},
		{"offset fetch next", "SELECT * FROM users ORDER BY id OFFSET 5 ROWS FETCH NEXT 10 ROWS ONLY", true},
		{"nested limit does not count", "SELECT * FROM (SELECT * FROM t LIMIT 5) x", false},
		{"cte limit does not count", "WITH a AS (SELECT * FROM t LIMIT 5) SELECT * FROM a", false},
		{"limit in literal does not count", "SELECT * FROM t WHERE note = 'LIMIT 5'", false},
		{"limit before lock clause", "SELECT * FROM t LIMIT 5 FOR UPDATE", true},
		{"limit before for share nowait", "SELECT * FROM t LIMIT 5 FOR SHARE NOWAIT", true},
		{"limit before lock in share mode", "SELECT * FROM t LIMIT 5 LOCK IN SHARE MODE", true},
		{"lock clause alone", "SELECT * FROM t FOR UPDATE", false},
		{"limit after lock clause", "SELECT * FROM t FOR UPDATE LIMIT 5", true},
		{"union with outer limit", "SELECT a FROM t UNION ALL SELECT a FROM u LIMIT 5", true},
		{"batch partially bound", "SELECT 1 LIMIT 1; SELECT 2", false},
		{"batch fully bound", "SELECT 1 LIMIT 1; SELECT 2 LIMIT 2", true},
		{"destructive never bound", "DELETE FROM t LIMIT 10", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, classifier.Classify(tt.sql).HasBoundClause)
		})
	}
}

func TestStatementClassifier_Limitable(t *testing.T) {
	classifier := NewStatementClassifier()

	assert.True(t, classifier.Classify("SELECT 1").Limitable)
	assert.True(t, classifier.Classify("WITH a AS (SELECT 1) SELECT * FROM a").Limitable)
	assert.False(t, classifier.Classify("SHOW TABLES").Limitable)
	assert.False(t, classifier.Classify("DESC t").Limitable)
	assert.False(t, classifier.Classify("EXPLAIN SELECT 1").Limitable)
	assert.False(t, classifier.Classify("DELETE FROM t").Limitable)
}

func TestStatementClassifier_ValidateStatement(t *testing.T) {
	classifier := NewStatementClassifier()

	require.NoError(t, classifier.ValidateStatement("SELECT 'it''s' FROM t"))
	require.NoError(t, classifier.ValidateStatement("SELECT $$abc$$, E'x' FROM t"))

	tests := []struct {
		name string
		sql  string
		msg  string
	}{
		{"empty", "", "cannot be empty"},
		{"whitespace", "   ", "only whitespace"},
		{"comments", "/* nothing */", "only comments"},
		{"parens", "SELECT ((1)", "unbalanced parentheses"},
		{"quotes", `SELECT "abc`, "unterminated quoted literal"},
		{"backslash quote", `SELECT 'a\'b'`, "unterminated quoted literal"},
		{"unterminated dollar quote", "SELECT $tag$abc$$", "unterminated quoted literal"},
		{"hash comment", "SELECT 1 # note", "read differently"},
		{"executable comment", "SELECT /*!50000 1 */", "executable comment"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifier.ValidateStatement(tt.sql)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestLexSQL(t *testing.T) {
	tokens, err := lexSQL("SELECT a, 'x;y' FROM (SELECT 1) -- tail")
	require.NoError(t, err)

	var texts []string
	for _, tok := range tokens {
		texts = append(texts, tok.text)
	}
	assert.Equal(t, []string{"SELECT", "A", ",", "'x;y'", "FROM", "(", "SELECT", "1", ")"}, texts)
	assert.Equal(t, 0, tokens[5].depth)
	assert.Equal(t, 1, tokens[6].depth)
	assert.Equal(t, 0, tokens[8].depth)
	assert.Equal(t, tokenQuoted, tokens[3].kind)
}

func TestStatementClassifier_QuotingDisagreement(t *testing.T) {
	classifier := NewStatementClassifier()
	gate := NewSafetyGate()

	tests := []struct {
		name string
		sql  string
	}{
		{"backslash escaped quote", `SELECT 'a\'; DROP TABLE users; --'`},
		{"backslash in double quotes", `SELECT "a\"; DROP TABLE users; --"`},
		{"dollar quote hides a quote", `SELECT $$'$$; DROP TABLE users; --'`},
		{"tagged dollar quote", `SELECT $q$'$q$; DELETE FROM users; --'`},
		{"hash comment hides a split", "SELECT 1 # ';\nDROP TABLE users; -- '"},
		{"hash comment hides a write", "SELECT 1 #\n; DELETE FROM users"},
		{"nested block comment", "SELECT 1 /* /* */ ' */ ; DROP TABLE t; --'"},
		{"dash without space", "SELECT 1 --1; DROP TABLE users\n"},
		{"executable comment", "SELECT 1 /*!; DROP TABLE users */"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := classifier.Classify(tt.sql)
			assert.NotEqual(t, models.CategoryRead, v.Category, "sql: %s", tt.sql)

			rej, ok := errors.AsRejection(gate.Authorize(v, false))
			require.True(t, ok)
			assert.NotEmpty(t, rej.Reason)
		})
	}
}

func TestLexDialects(t *testing.T) {
	sql := `SELECT 'a\'b' FROM t # x`
	for _, d := range lexDialects {
		t.Run(d.name, func(t *testing.T) {
			tokens, err := d.lex(sql)
			if d.backslashEscapes {
				require.NoError(t, err)
				assert.Equal(t, `'a\'b'`, tokens[1].text)
				return
			}
			require.ErrorIs(t, err, errUnterminatedQuote)
		})
	}

	t.Run("readings disagree", func(t *testing.T) {
		_, err := lexSQL("SELECT 1 # note")
		require.ErrorIs(t, err, errAmbiguousQuoting)
	})

	t.Run("dollar tags", func(t *testing.T) {
		assert.Equal(t, "$$", dollarTag("$$x$$"))
		assert.Equal(t, "$fn_1$", dollarTag("$fn_1$ body $fn_1$"))
		assert.Empty(t, dollarTag("$1"))
		assert.Empty(t, dollarTag("$"))
	})
}
