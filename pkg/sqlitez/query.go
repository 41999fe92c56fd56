package sqlitez

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"sqlitez/internal/codec"
	"sqlitez/internal/logging"
	"sqlitez/internal/schema"
	"sqlitez/pkg/sqlitez/read"
)

// GetAll returns the rows of T matching cond. A nil cond returns every row.
func GetAll[T any](ctx context.Context, db *DB, cond *read.Condition) ([]T, error) {
	table, err := ensure[T](ctx, db)
	if err != nil {
		return nil, err
	}
	return selectRows[T](ctx, db, table, table, "get_all", cond)
}

// Get returns the first row of T matching cond, or ErrNotFound.
func Get[T any](ctx context.Context, db *DB, cond *read.Condition) (T, error) {
	var zero T
	table, err := ensure[T](ctx, db)
	if err != nil {
		return zero, err
	}

	first := read.Condition{}
	if cond != nil {
		first = *cond
	}
	first.Limit = 1

	rows, err := selectRows[T](ctx, db, table, table, "get", &first)
	if err != nil {
		return zero, err
	}
	if len(rows) == 0 {
		return zero, ErrNotFound
	}
	return rows[0], nil
}

// GetByID returns the row of T with key id, or ErrNotFound. The key may
// be the hidden one.
func GetByID[T any](ctx context.Context, db *DB, id int64) (T, error) {
	var zero T
	table, err := ensure[T](ctx, db)
	if err != nil {
		return zero, err
	}
	return Get[T](ctx, db, &read.Condition{
		Values: []read.Value{{Column: table.KeyName(), Value: id}},
	})
}

// Reload reads model's row back by its primary key.
func Reload[T any](ctx context.Context, db *DB, model T) (T, error) {
	var zero T
	table, err := ensure[T](ctx, db)
	if err != nil {
		return zero, err
	}
	if table.PrimaryKey == nil {
		return zero, ErrNoPrimaryKey
	}
	v, err := structValue(reflect.ValueOf(model))
	if err != nil {
		return zero, err
	}
	id, err := codec.Encode(table.PrimaryKey, table.PrimaryKey.FieldOf(v))
	if err != nil {
		return zero, err
	}
	return Get[T](ctx, db, &read.Condition{
		Values: []read.Value{{Column: table.KeyName(), Value: id}},
	})
}

// GetAllMapOf reads T's table but decodes only the columns of the
// projection type R. Every column of R must exist on T.
func GetAllMapOf[T, R any](ctx context.Context, db *DB, cond *read.Condition) ([]R, error) {
	table, err := ensure[T](ctx, db)
	if err != nil {
		return nil, err
	}
	projection, err := schema.For[R]()
	if err != nil {
		return nil, err
	}
	for _, c := range projection.Columns {
		if !table.HasColumn(c.Name) {
			return nil, fmt.Errorf("%w: %s.%s (from %s)", ErrUnknownColumn, table.Name, c.Name, projection.Type.Name())
		}
	}
	return selectRows[R](ctx, db, table, projection, "get_all_map_of", cond)
}

// Count returns the number of rows of T matching cond.
func Count[T any](ctx context.Context, db *DB, cond *read.Condition) (int64, error) {
	table, err := ensure[T](ctx, db)
	if err != nil {
		return 0, err
	}
	b, err := filtered(table, sq.Select("COUNT(*)").From(table.Name), cond)
	if err != nil {
		return 0, err
	}
	query, args, err := b.ToSql()
	if err != nil {
		return 0, err
	}

	o := db.begin("count", table.Name)
	var n int64
	err = db.x.QueryRowxContext(ctx, query, args...).Scan(&n)
	return n, o.done(err)
}

// Exists reports whether any row of T matches cond.
func Exists[T any](ctx context.Context, db *DB, cond *read.Condition) (bool, error) {
	table, err := ensure[T](ctx, db)
	if err != nil {
		return false, err
	}
	b, err := filtered(table, sq.Select("1").From(table.Name), cond)
	if err != nil {
		return false, err
	}
	query, args, err := b.Limit(1).ToSql()
	if err != nil {
		return false, err
	}

	o := db.begin("exists", table.Name)
	var one int
	err = db.x.QueryRowxContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, o.done(nil)
	}
	return err == nil, o.done(err)
}

// Read runs r against T's table and returns raw rows. SelectCount yields
// one row with a "count" column.
func Read[T any](ctx context.Context, db *DB, r read.Readable) ([]read.RowMap, error) {
	table, err := ensure[T](ctx, db)
	if err != nil {
		return nil, err
	}
	if err := checkColumns(table, r.Columns()); err != nil {
		return nil, err
	}
	query, args, err := r.Build(table.Name)
	if err != nil {
		return nil, err
	}

	o := db.begin("read", table.Name)
	logging.QueryDebug("%s %v", query, args)
	rows, err := db.x.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, o.done(err)
	}
	res, err := scanMaps(rows)
	if err != nil {
		return nil, o.done(err)
	}
	return res.Rows, o.done(nil)
}

// filtered validates cond against table and adds its predicate to b.
// Ordering and paging are not applied.
func filtered(table *schema.Table, b sq.SelectBuilder, cond *read.Condition) (sq.SelectBuilder, error) {
	if err := checkColumns(table, cond.Columns()); err != nil {
		return b, err
	}
	pred, err := cond.Predicate()
	if err != nil {
		return b, err
	}
	if pred != nil {
		b = b.Where(pred)
	}
	return b, nil
}

// selectRows reads the columns of into from table and decodes them into R.
func selectRows[R any](ctx context.Context, db *DB, table, into *schema.Table, op string, cond *read.Condition) ([]R, error) {
	if err := checkColumns(table, cond.Columns()); err != nil {
		return nil, err
	}
	cols := make([]string, 0, len(into.Columns))
	for _, c := range into.Columns {
		cols = append(cols, c.Name)
	}
	if len(cols) == 0 {
		cols = append(cols, table.KeyName())
	}

	b, err := cond.Apply(sq.Select(cols...).From(table.Name))
	if err != nil {
		return nil, err
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}

	o := db.begin(op, table.Name)
	logging.QueryDebug("%s %v", query, args)
	rows, err := db.x.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, o.done(err)
	}
	out, err := scanStructs[R](rows, into)
	return out, o.done(err)
}

// scanStructs decodes every row, whose columns are table.Columns in order.
func scanStructs[R any](rows *sql.Rows, table *schema.Table) ([]R, error) {
	defer rows.Close()

	out := []R{}
	raw := make([]interface{}, len(table.Columns))
	ptrs := make([]interface{}, len(raw))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	if len(ptrs) == 0 {
		ptrs = []interface{}{new(interface{})}
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		var item R
		v := reflect.ValueOf(&item).Elem()
		if v.Kind() == reflect.Pointer {
			v.Set(reflect.New(v.Type().Elem()))
			v = v.Elem()
		}
		for i, c := range table.Columns {
			if err := codec.Decode(c, raw[i], c.FieldOf(v)); err != nil {
				return nil, err
			}
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func scanMaps(rows *sqlx.Rows) (*read.Result, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	res := &read.Result{Columns: cols, Rows: []read.RowMap{}}
	for rows.Next() {
		m := make(map[string]interface{}, len(cols))
		if err := rows.MapScan(m); err != nil {
			return nil, err
		}
		res.Rows = append(res.Rows, read.RowMap(m))
	}
	return res, rows.Err()
}
