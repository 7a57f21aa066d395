// Package converter renders query results as terminal tables and JSON
// documents.
package converter

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/TFMV/dwgate/pkg/errors"
	"github.com/TFMV/dwgate/pkg/models"
)

const (
	cellSeparator   = " | "
	headerSeparator = "-+-"

	// NullText is how SQL NULL is rendered in tables.
	NullText = "NULL"
)

var cellEscaper = strings.NewReplacer("\r\n", `\n`, "\n", `\n`, "\r", `\r`, "\t", `\t`)

// FormatValue renders one cell value on a single line.
func FormatValue(v any) string {
	var s string
	switch val := v.(type) {
	case nil:
		return NullText
	case string:
		s = val
	case []byte:
		s = string(val)
	case time.Time:
		s = val.Format(time.RFC3339Nano)
	case float64:
		s = strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		s = strconv.FormatFloat(float64(val), 'f', -1, 32)
	case bool:
		s = strconv.FormatBool(val)
	default:
		s = fmt.Sprint(val)
	}
	return cellEscaper.Replace(s)
}

// FormatTable lays out columns and rows as an aligned text table. Widths are
// measured in terminal cells, so wide CJK characters line up.
func FormatTable(columns []string, rows [][]any) string {
	if len(columns) == 0 {
		return ""
	}

	cells := make([][]string, len(rows))
	widths := make([]int, len(columns))
	for i, c := range columns {
		widths[i] = runewidth.StringWidth(c)
	}
	for r, row := range rows {
		cells[r] = make([]string, len(columns))
		for i := range columns {
			var v any
			if i < len(row) {
				v = row[i]
			}
			s := FormatValue(v)
			cells[r][i] = s
			if w := runewidth.StringWidth(s); w > widths[i] {
				widths[i] = w
			}
		}
	}

	var b strings.Builder
	writeLine(&b, columns, widths)

	dashes := make([]string, len(widths))
	for i, w := range widths {
		dashes[i] = strings.Repeat("-", w)
	}
	b.WriteByte('\n')
	b.WriteString(strings.Join(dashes, headerSeparator))

	for _, row := range cells {
		b.WriteByte('\n')
		writeLine(&b, row, widths)
	}
	return b.String()
}

func writeLine(b *strings.Builder, cells []string, widths []int) {
	padded := make([]string, len(cells))
	last := len(cells) - 1
	for i, c := range cells {
		if i == last {
			padded[i] = c
			continue
		}
		padded[i] = runewidth.FillRight(c, widths[i])
	}
	b.WriteString(strings.TrimRight(strings.Join(padded, cellSeparator), " "))
}

// FormatResult renders a query result the way the execute_query tool shows
// it: a table with a row-count footer, or a one-line status.
func FormatResult(result *models.QueryResult) string {
	if result == nil {
		return "Query executed successfully with no results"
	}
	if !result.ReturnsRows {
		return fmt.Sprintf("Query executed successfully (non-SELECT), %d rows affected", result.RowsAffected)
	}
	if len(result.Rows) == 0 {
		return "Query executed successfully with no results"
	}

	footer := fmt.Sprintf("(%d rows)", len(result.Rows))
	if result.Truncated {
		footer = fmt.Sprintf("(%d rows, truncated)", len(result.Rows))
	}
	return FormatTable(result.Columns, result.Rows) + "\n\n" + footer
}

// FormatError renders a failure for display. Execution failures also name the
// instance and the statement that was actually sent, which may carry an
// appended LIMIT.
func FormatError(err error) string {
	var b strings.Builder
	b.WriteString("Error: ")
	b.WriteString(err.Error())
	if instance, ok := errors.GetDetail(err, errors.DetailInstance); ok {
		fmt.Fprintf(&b, "\nInstance: %v", instance)
	}
	if statement, ok := errors.GetDetail(err, errors.DetailStatement); ok {
		fmt.Fprintf(&b, "\nStatement: %v", statement)
	}
	return b.String()
}

// FormatJSON renders v as indented JSON.
func FormatJSON(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
