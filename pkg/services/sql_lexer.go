package services

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokenWord   tokenKind = iota // keyword, identifier or number
	tokenQuoted                  // '...', "...", `...`, E'...' or $tag$...$tag$
	tokenSymbol                  // punctuation and operators, one rune each
)

// token is a lexical unit. Offsets index the original SQL string.
type token struct {
	kind  tokenKind
	text  string // upper-cased for words, raw for everything else
	start int
	end   int
	depth int // parenthesis depth; both parens of a pair sit at the outer depth
}

func (t token) isWord(w string) bool {
	return t.kind == tokenWord && t.text == w
}

func (t token) isSymbol(s string) bool {
	return t.kind == tokenSymbol && t.text == s
}

func (t token) isNumber() bool {
	if t.kind != tokenWord {
		return false
	}
	r, _ := utf8.DecodeRuneInString(t.text)
	return unicode.IsDigit(r)
}

var (
	errUnterminatedQuote   = errors.New("unterminated quoted literal")
	errUnterminatedComment = errors.New("unterminated block comment")
	errUnbalancedParens    = errors.New("unbalanced parentheses")
	errExecutableComment   = errors.New("executable comment")
	errAmbiguousQuoting    = errors.New("quoting or comments that backends read differently")
)

// lexDialect holds the lexical rules that differ between the supported engines.
type lexDialect struct {
	name string

	// backslashEscapes lets \ escape the next byte inside '...' and "...".
	// Without it only E'...' literals honour backslashes.
	backslashEscapes      bool
	// hashComments makes # start a line comment.
	hashComments          bool
	// dashCommentNeedsSpace requires whitespace after -- for a line comment.
	dashCommentNeedsSpace bool
	// dollarQuotes enables $$...$$ and $tag$...$tag$ literals.
	dollarQuotes          bool
	// nestedComments lets /* */ comments nest.
	nestedComments        bool
	// executableComments marks /*! ... */ as code rather than a comment.
	executableComments    bool
}

// lexDialects are the readings every statement must agree under before the
// gateway trusts its classification.
var lexDialects = []lexDialect{
	{
		name:           "postgres",
		dollarQuotes:   true,
		nestedComments: true,
	},
	{
		name:                  "mysql",
		backslashEscapes:      true,
		hashComments:          true,
		dashCommentNeedsSpace: true,
		executableComments:    true,
	},
	{
		name:             "redshift",
		backslashEscapes: true,
		dollarQuotes:     true,
	},
}

// lexSQL tokenizes sql once per dialect and returns the first reading's
// tokens. It fails when any reading fails or when the readings disagree on
// where statements start and end.
func lexSQL(sql string) ([]token, error) {
	readings, err := lexReadings(sql)
	if err != nil {
		return nil, err
	}
	if !sameBoundaries(readings) {
		return nil, errAmbiguousQuoting
	}
	return readings[0], nil
}

// lexReadings tokenizes sql under every dialect, in lexDialects order.
func lexReadings(sql string) ([][]token, error) {
	readings := make([][]token, 0, len(lexDialects))
	for _, d := range lexDialects {
		tokens, err := d.lex(sql)
		if err != nil {
			return nil, err
		}
		readings = append(readings, tokens)
	}
	return readings, nil
}

// sameBoundaries reports whether every reading splits into the same
// statements at the same offsets.
func sameBoundaries(readings [][]token) bool {
	want := splitStatements(readings[0])
	for _, tokens := range readings[1:] {
		got := splitStatements(tokens)
		if len(got) != len(want) {
			return false
		}
		for i := range got {
			if got[i].first().start != want[i].first().start || got[i].end() != want[i].end() {
				return false
			}
		}
	}
	return true
}

// lex tokenizes sql, dropping whitespace and comments. Quoted literals become
// single tokens so their contents never match keywords.
func (d lexDialect) lex(sql string) ([]token, error) {
	var (
		tokens []token
		depth  int
		i      int
	)

	for i < len(sql) {
		r, size := utf8.DecodeRuneInString(sql[i:])

		switch {
		case unicode.IsSpace(r):
			i += size

		case r == '-' && strings.HasPrefix(sql[i:], "--") && d.isDashComment(sql, i):
			i = skipLine(sql, i)

		case r == '#' && d.hashComments:
			i = skipLine(sql, i)

		case r == '/' && strings.HasPrefix(sql[i:], "/*"):
			if d.executableComments && strings.HasPrefix(sql[i:], "/*!") {
				return nil, errExecutableComment
			}
			end, ok := d.skipBlockComment(sql, i)
			if !ok {
				return nil, errUnterminatedComment
			}
			i = end

		case r == '\'' || r == '"' || r == '`':
			end, ok := scanQuoted(sql, i, byte(r), d.backslashEscapes && r != '`')
			if !ok {
				return nil, errUnterminatedQuote
			}
			tokens = append(tokens, token{kind: tokenQuoted, text: sql[i:end], start: i, end: end, depth: depth})
			i = end

		case (r == 'E' || r == 'e') && !d.backslashEscapes && strings.HasPrefix(sql[i+1:], "'"):
			end, ok := scanQuoted(sql, i+1, '\'', true)
			if !ok {
				return nil, errUnterminatedQuote
			}
			tokens = append(tokens, token{kind: tokenQuoted, text: sql[i:end], start: i, end: end, depth: depth})
			i = end

		case r == '$' && d.dollarQuotes && dollarTag(sql[i:]) != "":
			tag := dollarTag(sql[i:])
			closeAt := strings.Index(sql[i+len(tag):], tag)
			if closeAt < 0 {
				return nil, errUnterminatedQuote
			}
			end := i + len(tag) + closeAt + len(tag)
			tokens = append(tokens, token{kind: tokenQuoted, text: sql[i:end], start: i, end: end, depth: depth})
			i = end

		case isWordRune(r):
			start := i
			for i < len(sql) {
				wr, ws := utf8.DecodeRuneInString(sql[i:])
				if !isWordRune(wr) || (wr == '#' && d.hashComments) {
					break
				}
				i += ws
			}
			tokens = append(tokens, token{kind: tokenWord, text: strings.ToUpper(sql[start:i]), start: start, end: i, depth: depth})

		case r == '(':
			tokens = append(tokens, token{kind: tokenSymbol, text: "(", start: i, end: i + 1, depth: depth})
			depth++
			i++

		case r == ')':
			depth--
			if depth < 0 {
				return nil, errUnbalancedParens
			}
			tokens = append(tokens, token{kind: tokenSymbol, text: ")", start: i, end: i + 1, depth: depth})
			i++

		default:
			tokens = append(tokens, token{kind: tokenSymbol, text: sql[i : i+size], start: i, end: i + size, depth: depth})
			i += size
		}
	}

	if depth != 0 {
		return nil, errUnbalancedParens
	}
	return tokens, nil
}

// isDashComment reports whether the -- at sql[i] opens a line comment.
func (d lexDialect) isDashComment(sql string, i int) bool {
	if !d.dashCommentNeedsSpace || i+2 >= len(sql) {
		return true
	}
	c := sql[i+2]
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}

// skipLine returns the offset just past the newline that ends the line at sql[i].
func skipLine(sql string, i int) int {
	nl := strings.IndexByte(sql[i:], '\n')
	if nl < 0 {
		return len(sql)
	}
	return i + nl + 1
}

// skipBlockComment returns the offset just past the comment opened at sql[start].
func (d lexDialect) skipBlockComment(sql string, start int) (int, bool) {
	level := 0
	for i := start; i+1 < len(sql); {
		switch {
		case sql[i] == '/' && sql[i+1] == '*':
			if level == 0 || d.nestedComments {
				level++
			}
			i += 2
		case sql[i] == '*' && sql[i+1] == '/':
			level--
			i += 2
			if level == 0 {
				return i, true
			}
		default:
			i++
		}
	}
	return 0, false
}

// scanQuoted returns the offset just past the literal opened at sql[start].
// Doubled quotes escape themselves; backslash escapes the next byte when
// backslashes is set.
func scanQuoted(sql string, start int, quote byte, backslashes bool) (int, bool) {
	i := start + 1
	for i < len(sql) {
		c := sql[i]
		switch {
		case c == '\\' && backslashes:
			i += 2
		case c == quote:
			if i+1 < len(sql) && sql[i+1] == quote {
				i += 2
				continue
			}
			return i + 1, true
		default:
			i++
		}
	}
	return 0, false
}

// dollarTag returns the $tag$ delimiter opening s, or "" when s does not start
// one. Tags follow identifier rules, so $1 stays a bind parameter.
func dollarTag(s string) string {
	for i := 1; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		switch {
		case r == '$':
			return s[:i+1]
		case r == '_' || unicode.IsLetter(r) || (i > 1 && unicode.IsDigit(r)):
			i += size
		default:
			return ""
		}
	}
	return ""
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '$' || r == '@' || r == '#'
}

// statement is one top-level segment of a batch.
type statement struct {
	tokens []token
}

func (s statement) first() token {
	return s.tokens[0]
}

// end is the offset just past the statement's last token.
func (s statement) end() int {
	return s.tokens[len(s.tokens)-1].end
}

// topLevel returns the tokens outside any parentheses.
func (s statement) topLevel() []token {
	var top []token
	for _, t := range s.tokens {
		if t.depth == 0 {
			top = append(top, t)
		}
	}
	return top
}

// splitStatements cuts tokens at top-level semicolons. Empty segments are dropped.
func splitStatements(tokens []token) []statement {
	var (
		out     []statement
		current []token
	)
	for _, t := range tokens {
		if t.depth == 0 && t.isSymbol(";") {
			if len(current) > 0 {
				out = append(out, statement{tokens: current})
			}
			current = nil
			continue
		}
		current = append(current, t)
	}
	if len(current) > 0 {
		out = append(out, statement{tokens: current})
	}
	return out
}
