package schema

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMemory(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

type NoteV1 struct {
	ID   int64 `sqlitez:"id,pk"`
	Body string
}

func (NoteV1) TableName() string { return "note" }

type NoteV2 struct {
	ID     int64 `sqlitez:"id,pk"`
	Body   string
	Pinned bool
	Labels []string
}

func (NoteV2) TableName() string { return "note" }

func TestEnsureCreatesTable(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)

	table, err := For[NoteV1]()
	require.NoError(t, err)

	res, err := Ensure(ctx, db, table)
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Empty(t, res.AddedColumns)

	exists, err := TableExists(ctx, db, "note")
	require.NoError(t, err)
	assert.True(t, exists)

	// Second call is a no-op.
	res, err = Ensure(ctx, db, table)
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Empty(t, res.AddedColumns)
}

func TestEnsureAddsNewColumns(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)

	v1, err := For[NoteV1]()
	require.NoError(t, err)
	_, err = Ensure(ctx, db, v1)
	require.NoError(t, err)

	_, err = db.Exec("INSERT INTO note (body) VALUES ('kept')")
	require.NoError(t, err)

	v2, err := For[NoteV2]()
	require.NoError(t, err)
	res, err := Ensure(ctx, db, v2)
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, []string{"pinned", "labels"}, res.AddedColumns)

	ok, err := ColumnExists(ctx, db, "note", "labels")
	require.NoError(t, err)
	assert.True(t, ok)

	var body string
	require.NoError(t, db.QueryRow("SELECT body FROM note").Scan(&body))
	assert.Equal(t, "kept", body)
}

func TestTables(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)

	_, err := db.Exec("CREATE TABLE b (x)")
	require.NoError(t, err)
	_, err = db.Exec("CREATE TABLE a (y INTEGER PRIMARY KEY AUTOINCREMENT)")
	require.NoError(t, err)

	names, err := Tables(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)
}

func TestLiveColumnsRejectsBadName(t *testing.T) {
	db := openMemory(t)
	_, err := LiveColumns(context.Background(), db, "x; DROP TABLE y")
	assert.ErrorIs(t, err, ErrInvalidName)
}
