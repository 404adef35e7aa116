package gateway

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"gorm.io/gorm"
)

var (
	leadingComments = regexp.MustCompile(`^(\s+|--[^\n]*(\n|$)|/\*(?s:.*?)\*/|\()+`)
	returningClause = regexp.MustCompile(`(?i)\bRETURNING\b`)
	quotedLiteral   = regexp.MustCompile(`'(?:[^']|'')*'|"(?:[^"]|"")*"`)
)

var rowProducingKeywords = map[string]bool{
	"SELECT":   true,
	"WITH":     true,
	"SHOW":     true,
	"EXPLAIN":  true,
	"PRAGMA":   true,
	"VALUES":   true,
	"TABLE":    true,
	"DESCRIBE": true,
	"DESC":     true,
}

// Row is one result row. It marshals to a JSON object whose keys keep the
// column order of the result set.
type Row struct {
	Columns []string
	Values  []any
}

func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, col := range r.Columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(col)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(r.Values[i])
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", col, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// QueryResult holds Rows for statements that produce a result set and
// RowsAffected for everything else.
type QueryResult struct {
	Rows         []Row
	RowsAffected int64
	ReturnsRows  bool
}

type QueryExecutor interface {
	Execute(ctx context.Context, query string) (*QueryResult, error)
}

type sqlQueryExecutor struct {
	db *sql.DB
}

// NewQueryExecutor runs caller SQL on the pool behind db.
func NewQueryExecutor(db *gorm.DB) (QueryExecutor, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("retrieving connection pool: %w", err)
	}
	return &sqlQueryExecutor{db: sqlDB}, nil
}

// Execute checks out one connection for the statement and always returns it
// to the pool before returning.
func (e *sqlQueryExecutor) Execute(ctx context.Context, query string) (*QueryResult, error) {
	conn, err := e.db.Conn(ctx)
	if err != nil {
		return nil, &DBError{Err: err}
	}
	defer conn.Close()

	if !ReturnsRows(query) {
		res, err := conn.ExecContext(ctx, query)
		if err != nil {
			return nil, &DBError{Err: err}
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, &DBError{Err: err}
		}
		return &QueryResult{RowsAffected: affected}, nil
	}

	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, &DBError{Err: err}
	}
	defer rows.Close()

	result, err := scanRows(rows)
	if err != nil {
		return nil, &DBError{Err: err}
	}
	return result, nil
}

func scanRows(rows *sql.Rows) (*QueryResult, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := &QueryResult{Rows: []Row{}, ReturnsRows: true}
	for rows.Next() {
		values := make([]any, len(columns))
		dest := make([]any, len(columns))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		for i, v := range values {
			// Text columns arrive as []byte from several drivers.
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		result.Rows = append(result.Rows, Row{Columns: columns, Values: values})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// ReturnsRows guesses from the leading keyword whether a statement produces
// a result set. INSERT, UPDATE and DELETE qualify when they carry a RETURNING
// clause outside quoted literals.
func ReturnsRows(query string) bool {
	trimmed := leadingComments.ReplaceAllString(query, "")
	keyword := trimmed
	if i := strings.IndexFunc(trimmed, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z')
	}); i >= 0 {
		keyword = trimmed[:i]
	}
	switch keyword = strings.ToUpper(keyword); {
	case rowProducingKeywords[keyword]:
		return true
	case keyword == "INSERT" || keyword == "UPDATE" || keyword == "DELETE":
		return returningClause.MatchString(quotedLiteral.ReplaceAllString(trimmed, ""))
	}
	return false
}
