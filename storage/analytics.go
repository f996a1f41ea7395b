package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// ErrWriteQuery is returned when a query is not a read.
var ErrWriteQuery = errors.New("only SELECT queries are allowed")

// DefaultMaxRows caps the rows returned by a single analytics query.
const DefaultMaxRows = 50

// Analytics is a read-only SQL database (the music catalogue) queried by
// model-written SQL. Thread-safe.
type Analytics struct {
	db      *sql.DB
	path    string
	maxRows int
}

// OpenAnalytics opens an existing SQLite file read-only.
func OpenAnalytics(path string, maxRows int) (*Analytics, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("analytics database unavailable: %w", err)
	}
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}

	db, err := sql.Open("sqlite", path+"?_pragma=query_only(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open analytics database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open analytics database: %w", err)
	}
	return &Analytics{db: db, path: path, maxRows: maxRows}, nil
}

// Dialect names the SQL dialect for prompts.
func (a *Analytics) Dialect() string { return "sqlite" }

// Location returns the database path.
func (a *Analytics) Location() string { return a.path }

// Close closes the database.
func (a *Analytics) Close() error { return a.db.Close() }

// Ping verifies the database is reachable.
func (a *Analytics) Ping(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

// TableInfo returns the CREATE statements of every user table.
func (a *Analytics) TableInfo(ctx context.Context) (string, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT sql FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' AND sql IS NOT NULL ORDER BY name`)
	if err != nil {
		return "", fmt.Errorf("failed to read schema: %w", err)
	}
	defer rows.Close()

	var stmts []string
	for rows.Next() {
		var stmt string
		if err := rows.Scan(&stmt); err != nil {
			return "", fmt.Errorf("failed to read schema: %w", err)
		}
		stmts = append(stmts, strings.TrimSpace(stmt)+";")
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("failed to read schema: %w", err)
	}
	return strings.Join(stmts, "\n\n"), nil
}

// QueryResult is a tabular result with stringified cells.
type QueryResult struct {
	Columns   []string   `json:"columns"`
	Rows      [][]string `json:"rows"`
	Truncated bool       `json:"truncated"`
}

// String renders the result as pipe-separated lines with a header.
func (r QueryResult) String() string {
	if len(r.Rows) == 0 {
		return "(no rows)"
	}
	var b strings.Builder
	b.WriteString(strings.Join(r.Columns, " | "))
	for _, row := range r.Rows {
		b.WriteByte('\n')
		b.WriteString(strings.Join(row, " | "))
	}
	if r.Truncated {
		b.WriteString("\n...")
	}
	return b.String()
}

// Query runs a single read statement, returning at most maxRows rows.
func (a *Analytics) Query(ctx context.Context, query string) (QueryResult, error) {
	query = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(query), ";"))
	if !isReadQuery(query) {
		return QueryResult{}, ErrWriteQuery
	}

	rows, err := a.db.QueryContext(ctx, query)
	if err != nil {
		return QueryResult{}, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return QueryResult{}, fmt.Errorf("query failed: %w", err)
	}

	result := QueryResult{Columns: cols}
	for rows.Next() {
		if len(result.Rows) == a.maxRows {
			result.Truncated = true
			break
		}
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return QueryResult{}, fmt.Errorf("query failed: %w", err)
		}
		row := make([]string, len(cols))
		for i, v := range values {
			row[i] = formatCell(v)
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return QueryResult{}, fmt.Errorf("query failed: %w", err)
	}
	return result, nil
}

func isReadQuery(q string) bool {
	if hasStatementSeparator(q) {
		return false
	}
	fields := strings.Fields(q)
	if len(fields) == 0 {
		return false
	}
	switch strings.ToUpper(fields[0]) {
	case "SELECT", "WITH":
		return true
	}
	return false
}

// hasStatementSeparator reports a ';' outside string literals and quoted
// identifiers. A doubled quote inside a literal is an escaped quote.
func hasStatementSeparator(q string) bool {
	var quote byte
	for i := 0; i < len(q); i++ {
		c := q[i]
		switch {
		case quote != 0:
			if c == quote {
				if i+1 < len(q) && q[i+1] == quote {
					i++
					continue
				}
				quote = 0
			}
		case c == '\'' || c == '"' || c == '`':
			quote = c
		case c == '[':
			quote = ']'
		case c == ';':
			return true
		}
	}
	return false
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}
