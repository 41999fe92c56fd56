// Package read describes the WHERE, ORDER BY, LIMIT and OFFSET parts of a
// SELECT as plain data.
//
// A Condition renders to a clause plus bound arguments:
//
//	cond := &read.Condition{
//		Values: []read.Value{
//			{Column: "name", Value: "Acx", LowerCase: true},
//			{Column: "age", Value: 22, Command: read.Between(18, 30)},
//		},
//		OrderBy: read.Random(),
//		Limit:   1,
//	}
//	cond.Query() // WHERE LOWER(name) = ? AND age BETWEEN ? AND ? ORDER BY RANDOM() LIMIT 1
//	cond.Args()  // [acx 18 30]
package read

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"sqlitez/internal/codec"
	"sqlitez/internal/schema"
)

// ErrInvalidColumn is returned when a condition names something that is
// not a plain column identifier.
var ErrInvalidColumn = errors.New("read: invalid column name")

// noLimit stands in for LIMIT when only OFFSET is set; SQLite rejects a
// bare OFFSET.
const noLimit = math.MaxInt64

// Each joins the values of a Condition.
type Each int

const (
	And Each = iota
	Or
)

func (e Each) String() string {
	if e == Or {
		return "OR"
	}
	return "AND"
}

// Condition is a WHERE clause with ordering and paging. The zero value
// matches every row.
type Condition struct {
	Values  []Value
	Each    Each
	OrderBy *OrderBy
	Limit   int
	Offset  int
}

// Build renders the clause and its arguments. A nil or empty Condition
// renders to "".
func (c *Condition) Build() (string, []interface{}, error) {
	if c == nil {
		return "", nil, nil
	}
	where, args, err := c.where()
	if err != nil {
		return "", nil, err
	}
	order, err := c.OrderBy.sql()
	if err != nil {
		return "", nil, err
	}

	var parts []string
	if where != "" {
		parts = append(parts, "WHERE "+where)
	}
	if order != "" {
		parts = append(parts, "ORDER BY "+order)
	}
	if limit, offset, ok := c.paging(); ok {
		parts = append(parts, "LIMIT "+strconv.FormatUint(limit, 10))
		if offset > 0 {
			parts = append(parts, "OFFSET "+strconv.FormatUint(offset, 10))
		}
	}
	return strings.Join(parts, " "), args, nil
}

// Query returns the rendered clause, or "" when the condition is invalid.
func (c *Condition) Query() string {
	q, _, err := c.Build()
	if err != nil {
		return ""
	}
	return q
}

// Args returns the bound arguments of Query in placeholder order.
func (c *Condition) Args() []interface{} {
	_, args, err := c.Build()
	if err != nil {
		return nil
	}
	return args
}

// Columns lists every identifier the condition references.
func (c *Condition) Columns() []string {
	if c == nil {
		return nil
	}
	cols := make([]string, 0, len(c.Values)+1)
	for _, v := range c.Values {
		cols = append(cols, v.Column)
	}
	if c.OrderBy != nil && c.OrderBy.Direction != DirectionRandom {
		cols = append(cols, c.OrderBy.Column)
	}
	return cols
}

// Predicate returns the joined values as a squirrel expression, or nil
// when there are none.
func (c *Condition) Predicate() (sq.Sqlizer, error) {
	if c == nil {
		return nil, nil
	}
	where, args, err := c.where()
	if err != nil || where == "" {
		return nil, err
	}
	return sq.Expr(where, args...), nil
}

// Apply adds the condition to a squirrel select.
func (c *Condition) Apply(b sq.SelectBuilder) (sq.SelectBuilder, error) {
	if c == nil {
		return b, nil
	}
	pred, err := c.Predicate()
	if err != nil {
		return b, err
	}
	if pred != nil {
		b = b.Where(pred)
	}
	return c.applyModifiers(b)
}

func (c *Condition) applyModifiers(b sq.SelectBuilder) (sq.SelectBuilder, error) {
	order, err := c.OrderBy.sql()
	if err != nil {
		return b, err
	}
	if order != "" {
		b = b.OrderBy(order)
	}
	if limit, offset, ok := c.paging(); ok {
		b = b.Limit(limit)
		if offset > 0 {
			b = b.Offset(offset)
		}
	}
	return b, nil
}

func (c *Condition) paging() (limit, offset uint64, ok bool) {
	if c.Offset > 0 {
		offset = uint64(c.Offset)
	}
	switch {
	case c.Limit > 0:
		return uint64(c.Limit), offset, true
	case offset > 0:
		return noLimit, offset, true
	}
	return 0, 0, false
}

func (c *Condition) where() (string, []interface{}, error) {
	if len(c.Values) == 0 {
		return "", nil, nil
	}
	preds := make([]string, 0, len(c.Values))
	var args []interface{}
	for _, v := range c.Values {
		pred, vargs, err := v.render()
		if err != nil {
			return "", nil, err
		}
		preds = append(preds, pred)
		args = append(args, vargs...)
	}
	return strings.Join(preds, " "+c.Each.String()+" "), args, nil
}

// Direction is the sort order of an OrderBy.
type Direction int

const (
	DirectionAsc Direction = iota
	DirectionDesc
	DirectionRandom
)

// OrderBy sorts the result by one column, or randomly.
type OrderBy struct {
	Column    string
	Direction Direction
}

// Ascending sorts by column, smallest first.
func Ascending(column string) *OrderBy {
	return &OrderBy{Column: column, Direction: DirectionAsc}
}

// Descending sorts by column, largest first.
func Descending(column string) *OrderBy {
	return &OrderBy{Column: column, Direction: DirectionDesc}
}

// Random shuffles the result.
func Random() *OrderBy {
	return &OrderBy{Direction: DirectionRandom}
}

func (o *OrderBy) sql() (string, error) {
	if o == nil {
		return "", nil
	}
	switch o.Direction {
	case DirectionRandom:
		return "RANDOM()", nil
	case DirectionAsc, DirectionDesc:
		if !schema.ValidIdentifier(o.Column) {
			return "", fmt.Errorf("%w: order by %q", ErrInvalidColumn, o.Column)
		}
		if o.Direction == DirectionDesc {
			return o.Column + " DESC", nil
		}
		return o.Column + " ASC", nil
	}
	return "", fmt.Errorf("read: unknown order direction %d", o.Direction)
}

// argument converts a condition value to its stored form.
func argument(v interface{}, lower bool) (interface{}, error) {
	arg, err := codec.Arg(v)
	if err != nil {
		return nil, err
	}
	if s, ok := arg.(string); ok && lower {
		return lowerASCII(s), nil
	}
	return arg, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// lowerASCII folds A-Z only, matching SQLite's built-in LOWER().
func lowerASCII(s string) string {
	return strings.Map(func(r rune) rune {
		if 'A' <= r && r <= 'Z' {
			return r + ('a' - 'A')
		}
		return r
	}, s)
}
