package asset

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"sqlitez/pkg/sqlitez"
	"sqlitez/pkg/sqlitez/read"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// buildDatabase returns the bytes of a fresh SQLite file with a seeded
// city table at the given user_version.
func buildDatabase(t *testing.T, version int, cities ...string) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "build.db")
	db, err := sql.Open(sqlitez.DriverCgo, path)
	require.NoError(t, err)

	_, err = db.Exec("CREATE TABLE city (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT, population INTEGER)")
	require.NoError(t, err)
	for i, c := range cities {
		_, err = db.Exec("INSERT INTO city (name, population) VALUES (?, ?)", c, (i+1)*1000)
		require.NoError(t, err)
	}
	_, err = db.Exec(fmt.Sprintf("PRAGMA user_version = %d", version))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func newHelper(t *testing.T, assets fstest.MapFS, version int, storage string) *Helper {
	t.Helper()
	h, err := New(Options{Name: "cities.db", Version: version, Assets: assets, StorageDir: storage})
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func cityNames(t *testing.T, db *sql.DB) []string {
	t.Helper()
	rows, err := db.Query("SELECT name FROM city ORDER BY id")
	require.NoError(t, err)
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		require.NoError(t, rows.Scan(&n))
		names = append(names, n)
	}
	require.NoError(t, rows.Err())
	return names
}

func storedVersion(t *testing.T, db *sql.DB) int {
	t.Helper()
	v, err := userVersion(context.Background(), db)
	require.NoError(t, err)
	return v
}

func TestNewValidates(t *testing.T) {
	fsys := fstest.MapFS{}
	_, err := New(Options{Version: 1, Assets: fsys})
	assert.Error(t, err)
	_, err = New(Options{Name: "x.db", Version: 0, Assets: fsys})
	assert.Error(t, err)
	_, err = New(Options{Name: "x.db", Version: 1})
	assert.Error(t, err)

	h, err := New(Options{Name: "x.db", Version: 1, Assets: fsys})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("databases", "x.db"), h.Path())
}

func TestOpenCopiesAsset(t *testing.T) {
	data := buildDatabase(t, 1, "Oslo", "Bergen")

	var zipped bytes.Buffer
	zw := zip.NewWriter(&zipped)
	_, err := zw.Create("nested/")
	require.NoError(t, err)
	w, err := zw.Create("cities.db")
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	var gzipped bytes.Buffer
	gw := gzip.NewWriter(&gzipped)
	_, err = gw.Write(data)
	require.NoError(t, err)
	require.NoError(t, gw.Close())

	tests := []struct {
		name string
		file string
		data []byte
	}{
		{"plain", "databases/cities.db", data},
		{"zip", "databases/cities.db.zip", zipped.Bytes()},
		{"gzip", "databases/cities.db.gz", gzipped.Bytes()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage := t.TempDir()
			h := newHelper(t, fstest.MapFS{tt.file: {Data: tt.data}}, 1, storage)

			db, err := h.Open(context.Background())
			require.NoError(t, err)
			assert.Equal(t, []string{"Oslo", "Bergen"}, cityNames(t, db))
			assert.FileExists(t, filepath.Join(storage, "cities.db"))

			again, err := h.Open(context.Background())
			require.NoError(t, err)
			assert.Same(t, db, again)

			leftovers, err := filepath.Glob(filepath.Join(storage, ".*.tmp"))
			require.NoError(t, err)
			assert.Empty(t, leftovers)
		})
	}
}

func TestOpenMissingAsset(t *testing.T) {
	h := newHelper(t, fstest.MapFS{}, 1, t.TempDir())
	_, err := h.Open(context.Background())
	assert.ErrorIs(t, err, ErrMissingAsset)
}

func TestOpenEmptyZip(t *testing.T) {
	var zipped bytes.Buffer
	zw := zip.NewWriter(&zipped)
	_, err := zw.Create("only-a-dir/")
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	h := newHelper(t, fstest.MapFS{"databases/cities.db.zip": {Data: zipped.Bytes()}}, 1, t.TempDir())
	_, err = h.Open(context.Background())
	assert.ErrorIs(t, err, ErrEmptyArchive)
}

func TestVersionZeroIsStamped(t *testing.T) {
	h := newHelper(t, fstest.MapFS{"databases/cities.db": {Data: buildDatabase(t, 0, "Oslo")}}, 4, t.TempDir())
	db, err := h.Open(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, storedVersion(t, db))
}

func upgradeAssets(t *testing.T) fstest.MapFS {
	return fstest.MapFS{
		"databases/cities.db": {Data: buildDatabase(t, 1, "Oslo")},
		"databases/cities.db_upgrade_1-2.sql": {Data: []byte(
			"ALTER TABLE city ADD COLUMN country TEXT;\n" +
				"UPDATE city SET country = 'NO';\n")},
		"databases/cities.db_upgrade_2-3.sql": {Data: []byte(
			"INSERT INTO city (name, population, country) VALUES ('Trondheim; Nidaros', 200000, 'NO');")},
	}
}

func TestUpgradeRunsScriptsInOrder(t *testing.T) {
	ctx := context.Background()
	storage := t.TempDir()
	assets := upgradeAssets(t)

	v1 := newHelper(t, assets, 1, storage)
	db, err := v1.Open(ctx)
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO city (name) VALUES ('Bergen')")
	require.NoError(t, err)
	require.NoError(t, v1.Close())

	v3 := newHelper(t, assets, 3, storage)
	paths, err := v3.UpgradePath(1, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"databases/cities.db_upgrade_1-2.sql", "databases/cities.db_upgrade_2-3.sql"}, paths)

	db, err = v3.Open(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, storedVersion(t, db))
	assert.Equal(t, []string{"Oslo", "Bergen", "Trondheim; Nidaros"}, cityNames(t, db), "user rows survive an upgrade")

	var country string
	require.NoError(t, db.QueryRow("SELECT country FROM city WHERE name = 'Bergen'").Scan(&country))
	assert.Equal(t, "NO", country)
}

func TestUpgradePathSkipsVersions(t *testing.T) {
	script := &fstest.MapFile{Data: []byte("SELECT 1;")}
	assets := fstest.MapFS{
		"databases/cities.db_upgrade_1-2.sql": script,
		"databases/cities.db_upgrade_2-4.sql": script,
		"databases/cities.db_upgrade_4-5.sql": script,
		"databases/other.db_upgrade_3-4.sql":  script,
	}
	h := newHelper(t, assets, 4, t.TempDir())

	paths, err := h.UpgradePath(1, 4)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"databases/cities.db_upgrade_1-2.sql",
		"databases/cities.db_upgrade_2-4.sql",
	}, paths)

	// The script nearest to the target wins.
	assets["databases/cities.db_upgrade_3-4.sql"] = script
	paths, err = h.UpgradePath(1, 4)
	require.NoError(t, err)
	assert.Equal(t, []string{"databases/cities.db_upgrade_3-4.sql"}, paths)

	_, err = h.UpgradePath(5, 9)
	assert.ErrorIs(t, err, ErrNoUpgradePath)
}

func TestOpenWithoutUpgradePath(t *testing.T) {
	ctx := context.Background()
	storage := t.TempDir()
	assets := fstest.MapFS{"databases/cities.db": {Data: buildDatabase(t, 1, "Oslo")}}

	v1 := newHelper(t, assets, 1, storage)
	_, err := v1.Open(ctx)
	require.NoError(t, err)
	require.NoError(t, v1.Close())

	v2 := newHelper(t, assets, 2, storage)
	_, err = v2.Open(ctx)
	assert.ErrorIs(t, err, ErrNoUpgradePath)

	again := newHelper(t, assets, 1, storage)
	db, err := again.Open(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, storedVersion(t, db), "failed upgrade leaves the version alone")
}

func TestFailedScriptRollsBack(t *testing.T) {
	ctx := context.Background()
	storage := t.TempDir()
	assets := fstest.MapFS{
		"databases/cities.db": {Data: buildDatabase(t, 1, "Oslo")},
		"databases/cities.db_upgrade_1-2.sql": {Data: []byte(
			"INSERT INTO city (name) VALUES ('Bergen'); INSERT INTO nowhere VALUES (1);")},
	}

	v1 := newHelper(t, assets, 1, storage)
	_, err := v1.Open(ctx)
	require.NoError(t, err)
	require.NoError(t, v1.Close())

	_, err = newHelper(t, assets, 2, storage).Open(ctx)
	require.Error(t, err)

	db, err := newHelper(t, assets, 1, storage).Open(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Oslo"}, cityNames(t, db))
}

func TestDowngrade(t *testing.T) {
	storage := t.TempDir()
	assets := fstest.MapFS{"databases/cities.db": {Data: buildDatabase(t, 3, "Oslo")}}

	_, err := newHelper(t, assets, 3, storage).Open(context.Background())
	require.NoError(t, err)

	_, err = newHelper(t, assets, 2, storage).Open(context.Background())
	assert.ErrorIs(t, err, ErrDowngrade)
}

func TestForcedUpgradeReplacesDatabase(t *testing.T) {
	ctx := context.Background()
	storage := t.TempDir()

	v1 := newHelper(t, fstest.MapFS{"databases/cities.db": {Data: buildDatabase(t, 1, "Oslo")}}, 1, storage)
	db, err := v1.Open(ctx)
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO city (name) VALUES ('Local')")
	require.NoError(t, err)
	require.NoError(t, v1.Close())

	fresh := fstest.MapFS{"databases/cities.db": {Data: buildDatabase(t, 1, "Tromsø", "Bodø")}}
	v2 := newHelper(t, fresh, 2, storage)
	v2.ForceUpgrade()

	db, err = v2.Open(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, storedVersion(t, db))
	assert.Equal(t, []string{"Tromsø", "Bodø"}, cityNames(t, db))
}

func TestSetForcedUpgradeBelowStoredVersion(t *testing.T) {
	ctx := context.Background()
	storage := t.TempDir()
	assets := upgradeAssets(t)

	v2 := newHelper(t, assets, 2, storage)
	_, err := v2.Open(ctx)
	require.NoError(t, err)
	require.NoError(t, v2.Close())

	v3 := newHelper(t, assets, 3, storage)
	v3.SetForcedUpgrade(2)
	db, err := v3.Open(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, storedVersion(t, db))
	assert.Contains(t, cityNames(t, db), "Trondheim; Nidaros", "upgraded by script, not replaced")
}

func TestOpenReadOnly(t *testing.T) {
	ctx := context.Background()
	storage := t.TempDir()
	assets := fstest.MapFS{"databases/cities.db": {Data: buildDatabase(t, 1, "Oslo")}}

	h := newHelper(t, assets, 1, storage)
	db, err := h.OpenReadOnly(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Oslo"}, cityNames(t, db))
	require.NoError(t, h.Close())


	// A forced re-copy with the asset gone fails for writing, but the stored
	// copy is still at the target version and opens read-only.
	gone := newHelper(t, fstest.MapFS{}, 1, storage)
	gone.SetForcedUpgrade(2)
	_, err = gone.Open(ctx)
	require.ErrorIs(t, err, ErrMissingAsset)

	ro, err := gone.OpenReadOnly(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Oslo"}, cityNames(t, ro))
	_, err = ro.Exec("INSERT INTO city (name) VALUES ('Bergen')")
	assert.Error(t, err)
}

func TestOpenReadOnlyFallback(t *testing.T) {
	ctx := context.Background()
	storage := t.TempDir()
	v2 := fstest.MapFS{"databases/cities.db": {Data: buildDatabase(t, 2, "Oslo")}}

	_, err := newHelper(t, v2, 2, storage).Open(ctx)
	require.NoError(t, err)

	// Writable open fails with a downgrade, the read-only fallback then
	// finds the stored version differs from the target.
	_, err = newHelper(t, v2, 1, storage).OpenReadOnly(ctx)
	assert.ErrorIs(t, err, ErrVersionMismatch)
}

type City struct {
	ID         int64 `sqlitez:"id,pk"`
	Name       string
	Population int
}

func TestORM(t *testing.T) {
	ctx := context.Background()
	h := newHelper(t, fstest.MapFS{"databases/cities.db": {Data: buildDatabase(t, 1, "Oslo", "Bergen")}}, 1, t.TempDir())

	db, err := h.ORM(ctx, sqlitez.Options{})
	require.NoError(t, err)
	defer db.Close()

	_, err = sqlitez.Insert(ctx, db, City{Name: "Stavanger", Population: 3000})
	require.NoError(t, err)

	big, err := sqlitez.GetAll[City](ctx, db, &read.Condition{
		Values:  []read.Value{{Column: "population", Command: read.Between(2000, 5000)}},
		OrderBy: read.Ascending("id"),
	})
	require.NoError(t, err)
	assert.Equal(t, []City{{ID: 2, Name: "Bergen", Population: 2000}, {ID: 3, Name: "Stavanger", Population: 3000}}, big)
}

func TestORMOwnsConnection(t *testing.T) {
	ctx := context.Background()
	h := newHelper(t, fstest.MapFS{"databases/cities.db": {Data: buildDatabase(t, 1, "Oslo", "Bergen")}}, 1, t.TempDir())

	orm, err := h.ORM(ctx, sqlitez.Options{})
	require.NoError(t, err)
	_, err = sqlitez.Insert(ctx, orm, City{Name: "Tromsø", Population: 77000})
	require.NoError(t, err)
	require.NoError(t, orm.Close())

	db, err := h.Open(ctx)
	require.NoError(t, err)
	var n int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM city").Scan(&n))
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"Oslo", "Bergen", "Tromsø"}, cityNames(t, db))
}
