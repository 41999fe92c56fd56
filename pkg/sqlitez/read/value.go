package read

import (
	"fmt"
	"strings"

	"sqlitez/internal/schema"
)

// Op is the comparison a Command performs.
type Op int

const (
	OpEqual Op = iota
	OpNotEqual
	OpLike
	OpIn
	OpBetween
	OpIsNull
	OpIsNotNull
)

// Match places the wildcard of a LIKE pattern. '%' and '_' inside the
// value match literally.
type Match int

const (
	StartWith Match = iota // value%
	Contains               // %value%
	EndWith                // %value
)

// Command is the comparison applied by a Value. The zero value is Equal.
type Command struct {
	Op     Op
	Match  Match
	Values []interface{}
}

var (
	Equal     = Command{Op: OpEqual}
	NotEqual  = Command{Op: OpNotEqual}
	IsNull    = Command{Op: OpIsNull}
	IsNotNull = Command{Op: OpIsNotNull}
)

// Like matches text by prefix, substring or suffix.
func Like(m Match) Command {
	return Command{Op: OpLike, Match: m}
}

// In matches any of values. Value.Value is ignored.
func In(values ...interface{}) Command {
	return Command{Op: OpIn, Values: values}
}

// Between matches the inclusive range [lo, hi]. Value.Value is ignored.
func Between(lo, hi interface{}) Command {
	return Command{Op: OpBetween, Values: []interface{}{lo, hi}}
}

// Value compares one column. With LowerCase set both the column and any
// text argument are lower-cased before comparing. Only ASCII letters fold,
// as with SQLite's LOWER().
type Value struct {
	Column    string
	Value     interface{}
	Command   Command
	LowerCase bool
}

func (v Value) render() (string, []interface{}, error) {
	if !schema.ValidIdentifier(v.Column) {
		return "", nil, fmt.Errorf("%w: %q", ErrInvalidColumn, v.Column)
	}
	expr := v.Column
	if v.LowerCase {
		expr = "LOWER(" + v.Column + ")"
	}

	switch v.Command.Op {
	case OpEqual, OpNotEqual:
		if v.Value == nil {
			if v.Command.Op == OpEqual {
				return expr + " IS NULL", nil, nil
			}
			return expr + " IS NOT NULL", nil, nil
		}
		arg, err := argument(v.Value, v.LowerCase)
		if err != nil {
			return "", nil, fmt.Errorf("column %s: %w", v.Column, err)
		}
		if v.Command.Op == OpEqual {
			return expr + " = ?", []interface{}{arg}, nil
		}
		return expr + " != ?", []interface{}{arg}, nil

	case OpLike:
		pattern := likeEscaper.Replace(fmt.Sprint(v.Value))
		switch v.Command.Match {
		case StartWith:
			pattern = pattern + "%"
		case Contains:
			pattern = "%" + pattern + "%"
		case EndWith:
			pattern = "%" + pattern
		default:
			return "", nil, fmt.Errorf("read: unknown LIKE match %d", v.Command.Match)
		}
		if v.LowerCase {
			pattern = lowerASCII(pattern)
		}
		return expr + ` LIKE ? ESCAPE '\'`, []interface{}{pattern}, nil

	case OpIn:
		if len(v.Command.Values) == 0 {
			return "(1=0)", nil, nil
		}
		args := make([]interface{}, 0, len(v.Command.Values))
		for _, raw := range v.Command.Values {
			arg, err := argument(raw, v.LowerCase)
			if err != nil {
				return "", nil, fmt.Errorf("column %s: %w", v.Column, err)
			}
			args = append(args, arg)
		}
		marks := strings.TrimSuffix(strings.Repeat("?,", len(args)), ",")
		return expr + " IN (" + marks + ")", args, nil

	case OpBetween:
		if len(v.Command.Values) != 2 {
			return "", nil, fmt.Errorf("read: BETWEEN on %s needs two bounds", v.Column)
		}
		lo, err := argument(v.Command.Values[0], v.LowerCase)
		if err != nil {
			return "", nil, fmt.Errorf("column %s: %w", v.Column, err)
		}
		hi, err := argument(v.Command.Values[1], v.LowerCase)
		if err != nil {
			return "", nil, fmt.Errorf("column %s: %w", v.Column, err)
		}
		return expr + " BETWEEN ? AND ?", []interface{}{lo, hi}, nil

	case OpIsNull:
		return expr + " IS NULL", nil, nil
	case OpIsNotNull:
		return expr + " IS NOT NULL", nil, nil
	}
	return "", nil, fmt.Errorf("read: unknown command %d", v.Command.Op)
}
