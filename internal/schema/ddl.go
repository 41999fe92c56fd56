package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"sqlitez/internal/logging"
)

// Querier is satisfied by *sql.DB, *sql.Tx, *sqlx.DB and *sqlx.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// CreateSQL renders the CREATE TABLE IF NOT EXISTS statement for t.
func (t *Table) CreateSQL() string {
	defs := make([]string, 0, len(t.Columns)+1)
	defs = append(defs, t.KeyName()+" INTEGER PRIMARY KEY AUTOINCREMENT")
	for _, c := range t.DataColumns() {
		defs = append(defs, c.Definition())
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", t.Name, strings.Join(defs, ", "))
}

// Definition renders "name TYPE".
func (c *Column) Definition() string {
	return c.Name + " " + string(c.SQLType)
}

// EnsureResult reports what Ensure changed.
type EnsureResult struct {
	Created      bool
	AddedColumns []string
}

// Ensure creates t when it is missing and adds any column the struct has
// gained since the table was created. Columns are never dropped or retyped.
func Ensure(ctx context.Context, q Querier, t *Table) (EnsureResult, error) {
	var res EnsureResult

	existed, err := TableExists(ctx, q, t.Name)
	if err != nil {
		return res, err
	}

	if _, err := q.ExecContext(ctx, t.CreateSQL()); err != nil {
		logging.Get(logging.CategorySchema).Error("create table %s failed: %v", t.Name, err)
		return res, fmt.Errorf("create table %s: %w", t.Name, err)
	}
	if !existed {
		res.Created = true
		logging.Schema("created table %s (%d columns)", t.Name, len(t.Columns))
		return res, nil
	}

	live, err := LiveColumns(ctx, q, t.Name)
	if err != nil {
		return res, err
	}
	for _, c := range t.DataColumns() {
		if live[c.Name] {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", t.Name, c.Definition())
		logging.SchemaDebug("executing migration: %s", stmt)
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return res, fmt.Errorf("add column %s.%s: %w", t.Name, c.Name, err)
		}
		logging.Schema("migration applied: added %s.%s", t.Name, c.Name)
		res.AddedColumns = append(res.AddedColumns, c.Name)
	}
	return res, nil
}

// LiveColumns lists the columns of table using PRAGMA table_info.
func LiveColumns(ctx context.Context, q Querier, table string) (map[string]bool, error) {
	if !ValidIdentifier(table) {
		return nil, fmt.Errorf("%w: table %q", ErrInvalidName, table)
	}
	rows, err := q.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, fmt.Errorf("table_info %s: %w", table, err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var cid, notnull, pk int
		var name string
		var ctype sql.NullString
		var dflt interface{}
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("scan table_info %s: %w", table, err)
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

// ColumnExists checks if a column exists in a table.
func ColumnExists(ctx context.Context, q Querier, table, column string) (bool, error) {
	cols, err := LiveColumns(ctx, q, table)
	if err != nil {
		return false, err
	}
	return cols[column], nil
}

// TableExists checks if a table exists in the database.
func TableExists(ctx context.Context, q Querier, table string) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("table exists %s: %w", table, err)
	}
	return count > 0, nil
}

// Tables lists user tables in name order.
func Tables(ctx context.Context, q Querier) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
