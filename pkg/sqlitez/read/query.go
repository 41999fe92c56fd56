package read

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"sqlitez/internal/schema"
)

// Query is one of SelectAll, SelectOf or SelectCount.
type Query interface {
	// Condition returns the query's own condition, possibly nil.
	Condition() *Condition
	selection() ([]string, error)
}

// SelectAll reads every column.
type SelectAll struct {
	Where *Condition
}

// SelectOf reads the named columns. An empty list reads every column.
type SelectOf struct {
	Columns []string
	Where   *Condition
}

// SelectCount reads the number of matching rows as the "count" column.
type SelectCount struct {
	Where *Condition
}

func (q SelectAll) Condition() *Condition   { return q.Where }
func (q SelectOf) Condition() *Condition    { return q.Where }
func (q SelectCount) Condition() *Condition { return q.Where }

func (SelectAll) selection() ([]string, error) { return []string{"*"}, nil }

func (q SelectOf) selection() ([]string, error) {
	if len(q.Columns) == 0 {
		return []string{"*"}, nil
	}
	for _, c := range q.Columns {
		if !schema.ValidIdentifier(c) {
			return nil, fmt.Errorf("%w: select %q", ErrInvalidColumn, c)
		}
	}
	return q.Columns, nil
}

func (SelectCount) selection() ([]string, error) { return []string{"COUNT(*) AS count"}, nil }

// Readable is a Query plus extra conditions. Each extra condition is
// AND-ed onto the query's own condition as a parenthesized group. Ordering
// and paging come from the first condition that sets them.
type Readable struct {
	Query      Query
	Conditions []Condition
}

func (r Readable) conditions() []*Condition {
	all := make([]*Condition, 0, len(r.Conditions)+1)
	if r.Query != nil && r.Query.Condition() != nil {
		all = append(all, r.Query.Condition())
	}
	for i := range r.Conditions {
		all = append(all, &r.Conditions[i])
	}
	return all
}

// Columns lists every identifier the readable references.
func (r Readable) Columns() []string {
	var cols []string
	if q, ok := r.Query.(SelectOf); ok {
		cols = append(cols, q.Columns...)
	}
	for _, c := range r.conditions() {
		cols = append(cols, c.Columns()...)
	}
	return cols
}

// Merged folds the query condition and the extra conditions into one.
func (r Readable) Merged() (*Condition, sq.Sqlizer, error) {
	merged := &Condition{}
	var groups []string
	var args []interface{}

	conds := r.conditions()
	for _, c := range conds {
		where, wargs, err := c.where()
		if err != nil {
			return nil, nil, err
		}
		if where != "" {
			groups = append(groups, where)
			args = append(args, wargs...)
		}
		if merged.OrderBy == nil {
			merged.OrderBy = c.OrderBy
		}
		if merged.Limit == 0 {
			merged.Limit = c.Limit
		}
		if merged.Offset == 0 {
			merged.Offset = c.Offset
		}
	}

	switch len(groups) {
	case 0:
		return merged, nil, nil
	case 1:
		return merged, sq.Expr(groups[0], args...), nil
	}
	for i, g := range groups {
		groups[i] = "(" + g + ")"
	}
	return merged, sq.Expr(strings.Join(groups, " AND "), args...), nil
}

// Build renders the full SELECT against table.
func (r Readable) Build(table string) (string, []interface{}, error) {
	if r.Query == nil {
		return "", nil, fmt.Errorf("read: readable has no query")
	}
	if !schema.ValidIdentifier(table) {
		return "", nil, fmt.Errorf("%w: table %q", ErrInvalidColumn, table)
	}
	cols, err := r.Query.selection()
	if err != nil {
		return "", nil, err
	}
	merged, pred, err := r.Merged()
	if err != nil {
		return "", nil, err
	}

	b := sq.Select(cols...).From(table)
	if pred != nil {
		b = b.Where(pred)
	}
	if b, err = merged.applyModifiers(b); err != nil {
		return "", nil, err
	}
	return b.ToSql()
}
