package read

import (
	"errors"
	"testing"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConditionQuery(t *testing.T) {
	tests := []struct {
		name string
		cond *Condition
		want string
		args []interface{}
	}{
		{"nil", nil, "", nil},
		{"empty", &Condition{}, "", nil},
		{
			name: "equal and like",
			cond: &Condition{Values: []Value{
				{Column: "name", Value: "Acx", LowerCase: true},
				{Column: "name", Value: "Ac", Command: Like(StartWith)},
				{Column: "age", Value: 22},
			}, OrderBy: Random(), Limit: 1},
			want: "WHERE LOWER(name) = ? AND name LIKE ? ESCAPE '\\' AND age = ? ORDER BY RANDOM() LIMIT 1",
			args: []interface{}{"acx", "Ac%", int64(22)},
		},
		{
			name: "or joined",
			cond: &Condition{Values: []Value{
				{Column: "city", Value: "oslo"},
				{Column: "city", Value: "bergen"},
			}, Each: Or},
			want: "WHERE city = ? OR city = ?",
			args: []interface{}{"oslo", "bergen"},
		},
		{
			name: "like matches",
			cond: &Condition{Values: []Value{
				{Column: "a", Value: "x", Command: Like(Contains)},
				{Column: "b", Value: "y", Command: Like(EndWith)},
			}},
			want: `WHERE a LIKE ? ESCAPE '\' AND b LIKE ? ESCAPE '\'`,
			args: []interface{}{"%x%", "%y"},
		},
		{
			name: "like wildcards in value",
			cond: &Condition{Values: []Value{
				{Column: "code", Value: `50%_off\`, Command: Like(StartWith)},
			}},
			want: `WHERE code LIKE ? ESCAPE '\'`,
			args: []interface{}{`50\%\_off\\%`},
		},
		{
			name: "lower case folds ascii only",
			cond: &Condition{Values: []Value{
				{Column: "name", Value: "ÅRHUS", LowerCase: true},
				{Column: "name", Value: "ÉT", Command: Like(Contains), LowerCase: true},
			}},
			want: `WHERE LOWER(name) = ? AND LOWER(name) LIKE ? ESCAPE '\'`,
			args: []interface{}{"Århus", "%Ét%"},
		},
		{
			name: "set and range",
			cond: &Condition{Values: []Value{
				{Column: "id", Command: In(1, 2, 3)},
				{Column: "age", Command: Between(18, 30)},
				{Column: "gender", Value: "m", Command: NotEqual},
			}, OrderBy: Descending("age"), Limit: 10, Offset: 20},
			want: "WHERE id IN (?,?,?) AND age BETWEEN ? AND ? AND gender != ? ORDER BY age DESC LIMIT 10 OFFSET 20",
			args: []interface{}{int64(1), int64(2), int64(3), int64(18), int64(30), "m"},
		},
		{
			name: "nulls",
			cond: &Condition{Values: []Value{
				{Column: "deleted_at", Command: IsNull},
				{Column: "email", Command: IsNotNull},
				{Column: "nick", Value: nil},
			}},
			want: "WHERE deleted_at IS NULL AND email IS NOT NULL AND nick IS NULL",
		},
		{
			name: "empty in",
			cond: &Condition{Values: []Value{{Column: "id", Command: In()}}},
			want: "WHERE (1=0)",
		},
		{
			name: "offset only",
			cond: &Condition{Offset: 5, OrderBy: Ascending("name")},
			want: "ORDER BY name ASC LIMIT 9223372036854775807 OFFSET 5",
		},
		{
			name: "stored forms",
			cond: &Condition{Values: []Value{
				{Column: "active", Value: true},
				{Column: "born", Value: time.Date(2000, 1, 2, 0, 0, 0, 0, time.UTC)},
			}},
			want: "WHERE active = ? AND born = ?",
			args: []interface{}{int64(1), "2000-01-02 00:00:00+00:00"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, args, err := tt.cond.Build()
			require.NoError(t, err)
			assert.Equal(t, tt.want, q)
			assert.Equal(t, tt.args, args)
			assert.Equal(t, tt.want, tt.cond.Query())
		})
	}
}

func TestConditionRejectsBadIdentifiers(t *testing.T) {
	bad := []*Condition{
		{Values: []Value{{Column: "name; DROP TABLE person", Value: 1}}},
		{OrderBy: Ascending("age DESC, 1")},
		{Values: []Value{{Column: "age", Command: Command{Op: OpBetween, Values: []interface{}{1}}}}},
	}
	for _, c := range bad {
		_, _, err := c.Build()
		assert.Error(t, err)
		assert.Equal(t, "", c.Query())
		assert.Nil(t, c.Args())
	}
	_, _, err := bad[0].Build()
	assert.True(t, errors.Is(err, ErrInvalidColumn))
}

func TestConditionColumns(t *testing.T) {
	c := &Condition{
		Values:  []Value{{Column: "name"}, {Column: "age"}},
		OrderBy: Descending("created_at"),
	}
	assert.Equal(t, []string{"name", "age", "created_at"}, c.Columns())

	c.OrderBy = Random()
	assert.Equal(t, []string{"name", "age"}, c.Columns())
	assert.Nil(t, (*Condition)(nil).Columns())
}

func TestConditionApply(t *testing.T) {
	c := &Condition{
		Values:  []Value{{Column: "name", Value: "ada"}, {Column: "age", Value: 30}},
		Each:    Or,
		OrderBy: Ascending("name"),
		Limit:   2,
		Offset:  4,
	}
	b, err := c.Apply(sq.Select("*").From("person"))
	require.NoError(t, err)

	q, args, err := b.ToSql()
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM person WHERE name = ? OR age = ? ORDER BY name ASC LIMIT 2 OFFSET 4", q)
	assert.Equal(t, []interface{}{"ada", int64(30)}, args)
}

func TestPredicateEmpty(t *testing.T) {
	pred, err := (&Condition{Limit: 3}).Predicate()
	require.NoError(t, err)
	assert.Nil(t, pred)
}
