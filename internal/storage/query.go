package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrNotReadOnly is returned for statements that could modify the database.
var ErrNotReadOnly = errors.New("only read-only SELECT/WITH statements are allowed")

// Table is a materialized query result.
type Table struct {
	Columns []string
	Rows    [][]any
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Index returns the position of col, or -1.
func (t *Table) Index(col string) int {
	for i, c := range t.Columns {
		if strings.EqualFold(c, col) {
			return i
		}
	}
	return -1
}

// Value returns the raw cell, or nil when the row or column does not exist.
func (t *Table) Value(row int, col string) any {
	i := t.Index(col)
	if i < 0 || row < 0 || row >= len(t.Rows) {
		return nil
	}
	return t.Rows[row][i]
}

// Float returns the cell as a float64. NULLs and non-numeric values read as 0.
func (t *Table) Float(row int, col string) float64 {
	f, _ := toFloat(t.Value(row, col))
	return f
}

// String returns the cell formatted as text. NULL reads as "".
func (t *Table) String(row int, col string) string {
	switch v := t.Value(row, col).(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case time.Time:
		return v.Format("2006-01-02 15:04:05")
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// Records returns the rows as column-keyed maps.
func (t *Table) Records() []map[string]any {
	out := make([]map[string]any, 0, t.Len())
	for _, row := range t.Rows {
		rec := make(map[string]any, len(t.Columns))
		for i, c := range t.Columns {
			rec[c] = row[i]
		}
		out = append(out, rec)
	}
	return out
}

// NumericColumns lists columns whose non-NULL values are all numeric.
func (t *Table) NumericColumns() []string {
	var cols []string
	for i, c := range t.Columns {
		seen := false
		numeric := true
		for _, row := range t.Rows {
			if row[i] == nil {
				continue
			}
			seen = true
			if _, ok := toFloat(row[i]); !ok {
				numeric = false
				break
			}
		}
		if seen && numeric {
			cols = append(cols, c)
		}
	}
	return cols
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case float64:
		return n, true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case []byte:
		f, err := strconv.ParseFloat(string(n), 64)
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

var (
	commentRe   = regexp.MustCompile(`(?s)--[^\n]*|/\*.*?\*/`)
	literalRe   = regexp.MustCompile(`'(?:[^']|'')*'`)
	forbiddenRe = regexp.MustCompile(`(?i)\b(INSERT|UPDATE|DELETE|DROP|ALTER|CREATE|REPLACE|ATTACH|DETACH|PRAGMA|VACUUM|REINDEX)\b`)
)

// CheckReadOnly rejects anything but a single SELECT or WITH statement.
func CheckReadOnly(query string) error {
	q := commentRe.ReplaceAllString(query, " ")
	q = literalRe.ReplaceAllString(q, "''")
	q = strings.TrimSpace(q)
	q = strings.TrimRight(q, "; \t\n")

	upper := strings.ToUpper(q)
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return ErrNotReadOnly
	}
	if strings.Contains(q, ";") || forbiddenRe.MatchString(q) {
		return ErrNotReadOnly
	}
	return nil
}

// Query runs a read-only statement and materializes up to the row cap.
func (s *Store) Query(ctx context.Context, query string) (*Table, error) {
	if err := CheckReadOnly(query); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}

	t := &Table{Columns: cols}
	for rows.Next() {
		if len(t.Rows) >= s.maxRows {
			s.logger.Warn("query_truncated", map[string]interface{}{"max_rows": s.maxRows})
			break
		}
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		t.Rows = append(t.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return t, nil
}

// TableCounts returns the row count of every known table.
func (s *Store) TableCounts(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int, len(Tables))
	for _, name := range Tables {
		var n int
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+name).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", name, err)
		}
		counts[name] = n
	}
	return counts, nil
}
