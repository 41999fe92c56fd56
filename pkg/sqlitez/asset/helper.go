// Package asset ships a prebuilt SQLite database with the program and
// keeps the writable copy at the right schema version.
//
// The database lives in an fs.FS (usually an embed.FS) under AssetDir,
// optionally as a .zip or .gz archive. On first open it is copied to
// StorageDir. Later versions are reached by running upgrade scripts named
// "<Name>_upgrade_<from>-<to>.sql" from the same directory; the schema
// version is kept in PRAGMA user_version.
//
//	//go:embed databases
//	var assets embed.FS
//
//	h, err := asset.New(asset.Options{Name: "cities.db", Version: 3, Assets: assets, StorageDir: dir})
//	db, err := h.Open(ctx)
package asset

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"sqlitez/internal/logging"
	"sqlitez/pkg/sqlitez"
)

// DefaultAssetDir is the asset directory used when Options.AssetDir is empty.
const DefaultAssetDir = "databases"

var (
	// ErrMissingAsset is returned when neither the database nor a .zip or
	// .gz archive of it is among the assets.
	ErrMissingAsset = errors.New("asset: missing database file")

	// ErrEmptyArchive is returned for a .zip asset without a file entry.
	ErrEmptyArchive = errors.New("asset: archive is missing a SQLite database file")

	// ErrDowngrade is returned when the stored database is newer than the
	// requested version.
	ErrDowngrade = errors.New("asset: cannot downgrade database")

	// ErrNoUpgradePath is returned when no upgrade script leads to the
	// requested version.
	ErrNoUpgradePath = errors.New("asset: no upgrade script path")

	// ErrInvalidScriptName is returned for script names without
	// "_upgrade_<from>-<to>".
	ErrInvalidScriptName = errors.New("asset: invalid upgrade script file")

	// ErrVersionMismatch is returned by OpenReadOnly when the stored
	// database is not at the requested version.
	ErrVersionMismatch = errors.New("asset: read-only database at wrong version")
)

// Options configure a Helper.
type Options struct {
	// Name is the database file name, both in the assets and on disk.
	Name string
	// Version is the schema version the program expects, 1 or higher.
	Version int
	// Assets holds AssetDir/Name and the upgrade scripts.
	Assets fs.FS
	// AssetDir defaults to DefaultAssetDir.
	AssetDir string
	// StorageDir is where the writable copy lives. Defaults to AssetDir
	// relative to the working directory.
	StorageDir string
	// Driver is sqlitez.DriverCgo (default) or sqlitez.DriverPure.
	Driver string
	// ForcedUpgradeVersion makes stored databases older than it be
	// replaced by a fresh copy instead of upgraded by script.
	ForcedUpgradeVersion int
}

// Helper opens the copied database, copying and upgrading as needed. It is
// safe for concurrent use.
type Helper struct {
	mu       sync.Mutex
	opts     Options
	db       *sql.DB
	readOnly bool
}

// New validates opts and returns a Helper. Nothing is copied until Open.
func New(opts Options) (*Helper, error) {
	if opts.Name == "" {
		return nil, errors.New("asset: database name is required")
	}
	if opts.Version < 1 {
		return nil, fmt.Errorf("asset: version must be >= 1, was %d", opts.Version)
	}
	if opts.Assets == nil {
		return nil, errors.New("asset: assets file system is required")
	}
	if opts.AssetDir == "" {
		opts.AssetDir = DefaultAssetDir
	}
	if opts.StorageDir == "" {
		opts.StorageDir = DefaultAssetDir
	}
	if opts.Driver == "" {
		opts.Driver = sqlitez.DriverCgo
	}
	return &Helper{opts: opts}, nil
}

// Path is the location of the writable copy.
func (h *Helper) Path() string {
	return filepath.Join(h.opts.StorageDir, h.opts.Name)
}

func (h *Helper) assetPath() string {
	return path.Join(h.opts.AssetDir, h.opts.Name)
}

// SetForcedUpgrade makes stored databases below version be replaced from
// the assets on the next Open.
func (h *Helper) SetForcedUpgrade(version int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.opts.ForcedUpgradeVersion = version
}

// ForceUpgrade is SetForcedUpgrade with the target version: any stored
// database older than it is replaced rather than upgraded.
func (h *Helper) ForceUpgrade() {
	h.SetForcedUpgrade(h.opts.Version)
}

// Open returns the writable database at the target version. The handle is
// cached; later calls return it until Close.
func (h *Helper) Open(ctx context.Context) (*sql.DB, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.openWritable(ctx)
}

func (h *Helper) openWritable(ctx context.Context) (*sql.DB, error) {
	if h.db != nil && !h.readOnly {
		return h.db, nil
	}

	db, version, err := h.createOrOpen(ctx, false)
	if err != nil {
		return nil, err
	}

	target := h.opts.Version
	if version != 0 && version < h.opts.ForcedUpgradeVersion {
		logging.AssetWarn("forcing database upgrade of %s from version %d", h.opts.Name, version)
		db.Close()
		if db, _, err = h.createOrOpen(ctx, true); err != nil {
			return nil, err
		}
		if err := setUserVersion(ctx, db, target); err != nil {
			db.Close()
			return nil, err
		}
		version = target
	}

	if version != target {
		if err := h.migrate(ctx, db, version, target); err != nil {
			db.Close()
			return nil, err
		}
	}

	if h.db != nil {
		_ = h.db.Close()
	}
	h.db, h.readOnly = db, false
	logging.Asset("opened %s at version %d", h.Path(), target)
	return db, nil
}

// OpenReadOnly returns the cached handle if any, else tries Open, and
// falls back to a read-only handle when the database cannot be written.
// The read-only database must already be at the target version.
func (h *Helper) OpenReadOnly(ctx context.Context) (*sql.DB, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.db != nil {
		return h.db, nil
	}
	db, err := h.openWritable(ctx)
	if err == nil {
		return db, nil
	}
	logging.AssetError("couldn't open %s for writing (will try read-only): %v", h.opts.Name, err)

	ro, rerr := sql.Open(h.opts.Driver, "file:"+h.Path()+"?mode=ro")
	if rerr != nil {
		return nil, rerr
	}
	ro.SetMaxOpenConns(1)
	version, rerr := userVersion(ctx, ro)
	if rerr != nil {
		ro.Close()
		return nil, fmt.Errorf("%w (read-only fallback: %v)", err, rerr)
	}
	if version != h.opts.Version {
		ro.Close()
		return nil, fmt.Errorf("%w: version %d, want %d: %s", ErrVersionMismatch, version, h.opts.Version, h.Path())
	}
	logging.AssetWarn("opened %s in read-only mode", h.opts.Name)
	h.db, h.readOnly = ro, true
	return ro, nil
}

// Close closes the cached handle.
func (h *Helper) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.db == nil {
		return nil
	}
	err := h.db.Close()
	h.db = nil
	return err
}

// ORM opens the database and wraps it for the generic CRUD functions.
// opts.Path and opts.Driver are taken from the helper. The returned DB owns
// the connection; the next Open on the helper reconnects.
func (h *Helper) ORM(ctx context.Context, opts sqlitez.Options) (*sqlitez.DB, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn, err := h.openWritable(ctx)
	if err != nil {
		return nil, err
	}
	opts.Path = h.Path()
	opts.Driver = h.opts.Driver
	db, err := sqlitez.New(ctx, conn, opts)
	if err != nil {
		return nil, err
	}
	h.db = nil
	return db, nil
}

// createOrOpen opens the stored copy, copying it from the assets first when
// it is missing, unreadable or force is set.
func (h *Helper) createOrOpen(ctx context.Context, force bool) (*sql.DB, int, error) {
	dest := h.Path()
	if _, err := os.Stat(dest); err == nil && !force {
		db, version, err := h.openFile(ctx)
		if err == nil {
			return db, version, nil
		}
		logging.AssetWarn("could not open database %s - %v", h.opts.Name, err)
	}

	if err := copyDatabase(h.opts.Assets, h.assetPath(), dest); err != nil {
		logging.AssetError("copy of %s failed: %v", h.opts.Name, err)
		return nil, 0, err
	}
	return h.openFile(ctx)
}

func (h *Helper) openFile(ctx context.Context) (*sql.DB, int, error) {
	db, err := sql.Open(h.opts.Driver, h.Path())
	if err != nil {
		return nil, 0, err
	}
	db.SetMaxOpenConns(1)
	version, err := userVersion(ctx, db)
	if err != nil {
		db.Close()
		return nil, 0, err
	}
	logging.AssetDebug("successfully opened database %s (user_version=%d)", h.opts.Name, version)
	return db, version, nil
}

// migrate moves db from version to target in one transaction.
func (h *Helper) migrate(ctx context.Context, db *sql.DB, version, target int) error {
	if version > target {
		return fmt.Errorf("%w: %s from version %d to %d", ErrDowngrade, h.opts.Name, version, target)
	}

	var stmts []string
	if version != 0 {
		logging.AssetWarn("upgrading database %s from version %d to %d...", h.opts.Name, version, target)
		var err error
		if stmts, err = h.loadUpgrade(ctx, version, target); err != nil {
			return err
		}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range stmts {
		logging.AssetDebug("exec: %s", stmt)
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("upgrade %s: %w", h.opts.Name, err)
		}
	}
	if err := setUserVersion(ctx, tx, target); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	if version != 0 {
		logging.Asset("successfully upgraded database %s from version %d to %d", h.opts.Name, version, target)
	}
	return nil
}

// UpgradePath returns the asset paths of the scripts that upgrade from
// version from to version to, in the order they must run. Starting below
// to, each version is checked for a script ending at the nearest version
// reached so far.
func (h *Helper) UpgradePath(from, to int) ([]string, error) {
	var paths []string
	end := to
	for start := to - 1; start >= from; start-- {
		name := h.scriptName(start, end)
		if exists(h.opts.Assets, name) {
			paths = append(paths, name)
			end = start
		} else {
			logging.AssetDebug("missing database upgrade script: %s", name)
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w from %d to %d", ErrNoUpgradePath, from, to)
	}
	if err := SortScripts(paths); err != nil {
		return nil, err
	}
	return paths, nil
}

// loadUpgrade reads every script on the upgrade path and splits it into
// statements, preserving order.
func (h *Helper) loadUpgrade(ctx context.Context, from, to int) ([]string, error) {
	paths, err := h.UpgradePath(from, to)
	if err != nil {
		logging.AssetError("%v", err)
		return nil, err
	}

	scripts := make([][]string, len(paths))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			logging.AssetDebug("processing upgrade: %s", p)
			data, err := fs.ReadFile(h.opts.Assets, p)
			if err != nil {
				return fmt.Errorf("read %s: %w", p, err)
			}
			scripts[i] = SplitScript(string(data), ';')
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var stmts []string
	for _, s := range scripts {
		stmts = append(stmts, s...)
	}
	return stmts, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func userVersion(ctx context.Context, db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("read user_version: %w", err)
	}
	return v, nil
}

func setUserVersion(ctx context.Context, ex execer, v int) error {
	if _, err := ex.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", v)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}
