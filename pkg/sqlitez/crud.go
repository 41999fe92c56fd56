package sqlitez

import (
	"context"
	"fmt"
	"reflect"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"sqlitez/internal/codec"
	"sqlitez/internal/schema"
	"sqlitez/pkg/sqlitez/read"
)

// CreateTable creates the table of T, or adds the columns T has gained
// since it was created.
func CreateTable[T any](ctx context.Context, db *DB) error {
	_, err := ensure[T](ctx, db)
	return err
}

// DropTable drops the table of T. The next call on T recreates it.
func DropTable[T any](ctx context.Context, db *DB) error {
	if db.closed.Load() {
		return ErrClosed
	}
	table, err := schema.For[T]()
	if err != nil {
		return err
	}
	o := db.begin("drop", table.Name)
	_, err = db.x.ExecContext(ctx, "DROP TABLE IF EXISTS "+table.Name)
	db.forget(table.Type)
	return o.done(err)
}

// Insert stores model and returns its row id. A zero primary key is left
// out so SQLite assigns the next id; a non-zero one is inserted as is.
func Insert[T any](ctx context.Context, db *DB, model T, opts ...InsertOption) (int64, error) {
	table, err := ensure[T](ctx, db)
	if err != nil {
		return 0, err
	}
	cfg := newInsertConfig(opts)

	o := db.begin("insert", table.Name)
	id, err := insertRow(ctx, db.x, table, reflect.ValueOf(model), cfg.conflict)
	return id, o.done(err)
}

// InsertAll stores every model in one transaction and returns their row
// ids in order. Nothing is stored if any insert fails.
func InsertAll[T any](ctx context.Context, db *DB, models []T, opts ...InsertOption) ([]int64, error) {
	table, err := ensure[T](ctx, db)
	if err != nil {
		return nil, err
	}
	cfg := newInsertConfig(opts)

	o := db.begin("insert_all", table.Name)
	ids, err := insertAll(ctx, db.x, table, models, cfg.conflict)
	return ids, o.done(err)
}

func insertAll[T any](ctx context.Context, x *sqlx.DB, table *schema.Table, models []T, conflict ConflictStrategy) ([]int64, error) {
	tx, err := x.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	ids := make([]int64, 0, len(models))
	for i, m := range models {
		id, err := insertRow(ctx, tx, table, reflect.ValueOf(m), conflict)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		ids = append(ids, id)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return ids, nil
}

func insertRow(ctx context.Context, ex sqlx.ExecerContext, table *schema.Table, v reflect.Value, conflict ConflictStrategy) (int64, error) {
	v, err := structValue(v)
	if err != nil {
		return 0, err
	}

	var cols []string
	var vals []interface{}
	for _, c := range table.Columns {
		f := c.FieldOf(v)
		if c.PrimaryKey && f.IsZero() {
			continue
		}
		val, err := codec.Encode(c, f)
		if err != nil {
			return 0, err
		}
		cols = append(cols, c.Name)
		vals = append(vals, val)
	}

	var query string
	var args []interface{}
	if len(cols) == 0 {
		query = "INSERT INTO " + table.Name + " DEFAULT VALUES"
		if clause := conflict.clause(); clause != "" {
			query = "INSERT " + clause + " INTO " + table.Name + " DEFAULT VALUES"
		}
	} else {
		b := sq.Insert(table.Name).Columns(cols...).Values(vals...)
		if clause := conflict.clause(); clause != "" {
			b = b.Options(clause)
		}
		if query, args, err = b.ToSql(); err != nil {
			return 0, err
		}
	}

	res, err := ex.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	if conflict == Ignore {
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return -1, nil
		}
	}
	return res.LastInsertId()
}

// Update rewrites the row whose primary key equals model's and returns the
// number of rows changed.
func Update[T any](ctx context.Context, db *DB, model T) (int64, error) {
	table, err := ensure[T](ctx, db)
	if err != nil {
		return 0, err
	}
	if table.PrimaryKey == nil {
		return 0, fmt.Errorf("%w: %s", ErrNoPrimaryKey, table.Name)
	}
	v, err := structValue(reflect.ValueOf(model))
	if err != nil {
		return 0, err
	}
	id, err := codec.Encode(table.PrimaryKey, table.PrimaryKey.FieldOf(v))
	if err != nil {
		return 0, err
	}

	o := db.begin("update", table.Name)
	n, err := updateRow(ctx, db.x, table, v, id)
	return n, o.done(err)
}

// UpdateByID rewrites the row with key id, which may be the hidden key.
func UpdateByID[T any](ctx context.Context, db *DB, id int64, model T) (int64, error) {
	table, err := ensure[T](ctx, db)
	if err != nil {
		return 0, err
	}
	v, err := structValue(reflect.ValueOf(model))
	if err != nil {
		return 0, err
	}

	o := db.begin("update", table.Name)
	n, err := updateRow(ctx, db.x, table, v, id)
	return n, o.done(err)
}

func updateRow(ctx context.Context, ex sqlx.ExecerContext, table *schema.Table, v reflect.Value, id interface{}) (int64, error) {
	cols := table.DataColumns()
	if len(cols) == 0 {
		return 0, nil
	}
	b := sq.Update(table.Name)
	for _, c := range cols {
		val, err := codec.Encode(c, c.FieldOf(v))
		if err != nil {
			return 0, err
		}
		b = b.Set(c.Name, val)
	}
	query, args, err := b.Where(sq.Eq{table.KeyName(): id}).ToSql()
	if err != nil {
		return 0, err
	}
	res, err := ex.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Delete removes the row whose primary key equals model's.
func Delete[T any](ctx context.Context, db *DB, model T) (int64, error) {
	table, err := ensure[T](ctx, db)
	if err != nil {
		return 0, err
	}
	if table.PrimaryKey == nil {
		return 0, fmt.Errorf("%w: %s", ErrNoPrimaryKey, table.Name)
	}
	v, err := structValue(reflect.ValueOf(model))
	if err != nil {
		return 0, err
	}
	id, err := codec.Encode(table.PrimaryKey, table.PrimaryKey.FieldOf(v))
	if err != nil {
		return 0, err
	}
	return deleteWhere(ctx, db, table, "delete", sq.Eq{table.KeyName(): id})
}

// DeleteByID removes the row with key id, which may be the hidden key.
func DeleteByID[T any](ctx context.Context, db *DB, id int64) (int64, error) {
	table, err := ensure[T](ctx, db)
	if err != nil {
		return 0, err
	}
	return deleteWhere(ctx, db, table, "delete", sq.Eq{table.KeyName(): id})
}

// DeleteAll empties the table of T.
func DeleteAll[T any](ctx context.Context, db *DB) (int64, error) {
	table, err := ensure[T](ctx, db)
	if err != nil {
		return 0, err
	}
	return deleteWhere(ctx, db, table, "delete_all", nil)
}

// DeleteWhere removes the rows matching cond. Ordering and paging of cond
// are ignored; a nil or empty cond removes every row.
func DeleteWhere[T any](ctx context.Context, db *DB, cond *read.Condition) (int64, error) {
	table, err := ensure[T](ctx, db)
	if err != nil {
		return 0, err
	}
	if err := checkColumns(table, cond.Columns()); err != nil {
		return 0, err
	}
	pred, err := cond.Predicate()
	if err != nil {
		return 0, err
	}
	return deleteWhere(ctx, db, table, "delete_where", pred)
}

func deleteWhere(ctx context.Context, db *DB, table *schema.Table, op string, pred sq.Sqlizer) (int64, error) {
	b := sq.Delete(table.Name)
	if pred != nil {
		b = b.Where(pred)
	}
	query, args, err := b.ToSql()
	if err != nil {
		return 0, err
	}

	o := db.begin(op, table.Name)
	res, err := db.x.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, o.done(err)
	}
	n, err := res.RowsAffected()
	return n, o.done(err)
}

// structValue dereferences v down to the struct it points at.
func structValue(v reflect.Value) (reflect.Value, error) {
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return v, ErrNilModel
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return v, fmt.Errorf("%w: %v", ErrNotStruct, v.Type())
	}
	return v, nil
}

func checkColumns(table *schema.Table, cols []string) error {
	for _, c := range cols {
		if !table.HasColumn(c) {
			return fmt.Errorf("%w: %s.%s", ErrUnknownColumn, table.Name, c)
		}
	}
	return nil
}
