package store

import (
	"context"
	"fmt"
	"strings"

	tcerrors "tracecap/pkg/errors"
	"tracecap/pkg/schema"
)

// Query builds a SELECT against one table with WHERE, ORDER BY, LIMIT,
// IN/NOT IN, and tolerant floating-point equality via FuzzyEq.
type Query struct {
	facade  *Facade
	table   string
	cols    []string
	wheres  []string
	args    []interface{}
	order   string
	limit   int
	hasLim  bool
}

// NewQuery starts a builder selecting cols from table.
func (f *Facade) NewQuery(table string, cols []string) *Query {
	return &Query{facade: f, table: table, cols: cols}
}

// Where appends a raw predicate fragment (e.g. "timestamp > ?") with
// its bound argument(s).
func (q *Query) Where(cond string, args ...interface{}) *Query {
	q.wheres = append(q.wheres, cond)
	q.args = append(q.args, args...)
	return q
}

// In appends a "col IN (?, ?, ...)" predicate.
func (q *Query) In(col string, values []interface{}) *Query {
	placeholders := make([]string, len(values))
	for i := range values {
		placeholders[i] = "?"
	}
	q.wheres = append(q.wheres, fmt.Sprintf("%s IN (%s)", quoteIdent(col), strings.Join(placeholders, ", ")))
	q.args = append(q.args, values...)
	return q
}

// NotIn appends a "col NOT IN (?, ?, ...)" predicate.
func (q *Query) NotIn(col string, values []interface{}) *Query {
	placeholders := make([]string, len(values))
	for i := range values {
		placeholders[i] = "?"
	}
	q.wheres = append(q.wheres, fmt.Sprintf("%s NOT IN (%s)", quoteIdent(col), strings.Join(placeholders, ", ")))
	q.args = append(q.args, values...)
	return q
}

// FuzzyEq appends an epsilon-tolerance equality predicate against col
// using the fuzzyMatch SQL function registered at Open time.
func (q *Query) FuzzyEq(col string, target float64, constraint schema.FuzzyConstraint) *Query {
	q.wheres = append(q.wheres, fmt.Sprintf("fuzzyMatch(%s, ?, ?) = 1", quoteIdent(col)))
	q.args = append(q.args, target, int64(constraint))
	return q
}

// OrderBy sets the ORDER BY clause, e.g. "timestamp ASC".
func (q *Query) OrderBy(clause string) *Query {
	q.order = clause
	return q
}

// Limit bounds the number of returned rows.
func (q *Query) Limit(n int) *Query {
	q.limit = n
	q.hasLim = true
	return q
}

// FindRecord returns the first row of table matching col = val, or nil
// if none match.
func (f *Facade) FindRecord(ctx context.Context, table string, cols []string, col string, val interface{}) (map[string]interface{}, error) {
	rows, err := f.NewQuery(table, cols).Where(quoteIdent(col)+" = ?", val).Limit(1).Run(ctx)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// Run executes the built query and returns each matching row as a
// column-name-keyed map, in result order.
func (q *Query) Run(ctx context.Context) ([]map[string]interface{}, error) {
	sqlText := fmt.Sprintf("SELECT %s FROM %s", strings.Join(quoteIdents(q.cols), ", "), quoteIdent(q.table))
	if len(q.wheres) > 0 {
		sqlText += " WHERE " + strings.Join(q.wheres, " AND ")
	}
	if q.order != "" {
		sqlText += " ORDER BY " + q.order
	}
	if q.hasLim {
		sqlText += fmt.Sprintf(" LIMIT %d", q.limit)
	}

	rows, err := q.facade.queryInTx(ctx, sqlText, q.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []map[string]interface{}
	for rows.Next() {
		row, err := scanRow(rows, q.cols)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, tcerrors.NewEngineError(sqlText, err)
	}
	return out, nil
}
