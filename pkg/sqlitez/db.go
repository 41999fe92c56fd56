package sqlitez

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/singleflight"

	"sqlitez/internal/logging"
	"sqlitez/internal/metrics"
	"sqlitez/internal/schema"
	"sqlitez/pkg/sqlitez/read"
)

// DB is an open database plus the set of tables already ensured on it.
// It is safe for concurrent use.
type DB struct {
	x       *sqlx.DB
	path    string
	metrics *metrics.Metrics

	ensured sync.Map // reflect.Type -> struct{}
	group   singleflight.Group
	closed  atomic.Bool
}

// Open connects to the database at opts.Path, creating the file and its
// directory when missing.
func Open(ctx context.Context, opts Options) (*DB, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.Logger != nil {
		logging.SetLogger(opts.Logger)
	}

	timer := logging.StartTimer(logging.CategoryStore, "open "+opts.Path)
	defer timer.Stop()

	if !opts.inMemory() {
		if dir := filepath.Dir(opts.Path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				logging.StoreError("failed to create directory %s: %v", dir, err)
				return nil, fmt.Errorf("failed to create directory: %w", err)
			}
		}
	}

	x, err := sqlx.Open(opts.Driver, opts.Path)
	if err != nil {
		logging.StoreError("failed to open database at %s: %v", opts.Path, err)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db, err := wrap(ctx, x, opts)
	if err != nil {
		_ = x.Close()
		return nil, err
	}
	logging.Store("opened %s (driver=%s)", opts.Path, opts.Driver)
	return db, nil
}

// New wraps an already open handle, such as one returned by the asset
// helper. Closing the DB closes conn.
func New(ctx context.Context, conn *sql.DB, opts Options) (*DB, error) {
	opts = opts.withDefaults()
	if opts.Logger != nil {
		logging.SetLogger(opts.Logger)
	}
	return wrap(ctx, sqlx.NewDb(conn, opts.Driver), opts)
}

func wrap(ctx context.Context, x *sqlx.DB, opts Options) (*DB, error) {
	x.SetMaxOpenConns(opts.MaxOpenConns)
	x.SetMaxIdleConns(opts.MaxOpenConns)

	if err := x.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	for _, p := range opts.Pragmas {
		if _, err := x.ExecContext(ctx, "PRAGMA "+p); err != nil {
			logging.StoreDebug("failed to set PRAGMA %s: %v", p, err)
		}
	}

	m, err := metrics.New(opts.Registerer)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	return &DB{x: x, path: opts.Path, metrics: m}, nil
}

// Close releases the connection. Further calls return ErrClosed.
func (db *DB) Close() error {
	if !db.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	logging.StoreDebug("closing %s", db.path)
	return db.x.Close()
}

// SQL returns the underlying handle for statements the ORM does not cover.
func (db *DB) SQL() *sql.DB {
	return db.x.DB
}

// X returns the sqlx handle.
func (db *DB) X() *sqlx.DB {
	return db.x
}

// Path is the path the DB was opened with.
func (db *DB) Path() string {
	return db.path
}

// Tables lists the user tables of the database.
func (db *DB) Tables(ctx context.Context) ([]string, error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}
	return schema.Tables(ctx, db.x)
}

// Exec runs a raw statement.
func (db *DB) Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}
	o := db.begin("exec", "")
	res, err := db.x.ExecContext(ctx, query, args...)
	return res, o.done(err)
}

// Query runs a raw query and returns every row as a map.
func (db *DB) Query(ctx context.Context, query string, args ...interface{}) ([]read.RowMap, error) {
	res, err := db.Rows(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return res.Rows, nil
}

// Rows is Query keeping the column order of the statement.
func (db *DB) Rows(ctx context.Context, query string, args ...interface{}) (*read.Result, error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}
	o := db.begin("query", "")
	logging.QueryDebug("%s %v", query, args)
	rows, err := db.x.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, o.done(err)
	}
	res, err := scanMaps(rows)
	if err != nil {
		return nil, o.done(err)
	}
	return res, o.done(nil)
}

// ensure returns the table of T, creating or migrating it once per handle.
// Concurrent first calls share one DDL run, which outlives a cancelled
// caller so the others still get the table.
func ensure[T any](ctx context.Context, db *DB) (*schema.Table, error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}
	table, err := schema.For[T]()
	if err != nil {
		return nil, err
	}
	if _, ok := db.ensured.Load(table.Type); ok {
		return table, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := table.Name + "\x00" + table.Type.PkgPath() + "." + table.Type.Name()
	ddlCtx := context.WithoutCancel(ctx)
	ch := db.group.DoChan(key, func() (interface{}, error) {
		if _, ok := db.ensured.Load(table.Type); ok {
			return nil, nil
		}
		o := db.begin("ensure", table.Name)
		res, err := schema.Ensure(ddlCtx, db.x, table)
		if err = o.done(err); err != nil {
			return nil, err
		}
		if res.Created || len(res.AddedColumns) > 0 {
			logging.StoreDebug("ensured %s (created=%v added=%v)", table.Name, res.Created, res.AddedColumns)
		}
		db.ensured.Store(table.Type, struct{}{})
		return nil, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
	}
	return table, nil
}

// forget drops the ensured mark of t so the next call re-runs the DDL.
func (db *DB) forget(t reflect.Type) {
	db.ensured.Delete(t)
}

// operation times one statement for logs and metrics.
type operation struct {
	db    *DB
	name  string
	table string
	start time.Time
}

func (db *DB) begin(name, table string) *operation {
	return &operation{db: db, name: name, table: table, start: time.Now()}
}

func (o *operation) done(err error) error {
	elapsed := time.Since(o.start)
	o.db.metrics.Observe(o.name, o.table, elapsed, err)
	if err != nil {
		logging.StoreError("%s %s failed after %s: %v", o.name, o.table, logging.ReadableDuration(elapsed), err)
		return err
	}
	logging.StoreDebug("%s %s took %s", o.name, o.table, logging.ReadableDuration(elapsed))
	return nil
}
