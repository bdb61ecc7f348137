package metadata

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/gophblog/internal/dbx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "meta.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE metadata (key TEXT PRIMARY KEY, value BLOB NOT NULL);`)
	require.NoError(t, err)
	return db
}

func TestSetAndGet(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "session", []byte("token")))

	v, err := r.Get(ctx, "session")
	require.NoError(t, err)
	assert.Equal(t, []byte("token"), v)
}

func TestGet_Missing(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))

	v, err := r.Get(context.Background(), "absent")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Nil(t, v)
}

func TestSet_Overwrites(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "k", []byte("old")))
	require.NoError(t, r.Set(ctx, "k", []byte("new")))

	v, err := r.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), v)
}

func TestSet_NilStoresEmptyValue(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "k", nil))

	v, err := r.Get(ctx, "k")
	require.NoError(t, err)
	assert.Empty(t, v)
}

func TestDelete_Idempotent(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "x", []byte{1}))
	require.NoError(t, r.Delete(ctx, "x"))

	_, err := r.Get(ctx, "x")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, r.Delete(ctx, "x"))
}

func TestKeys_Prefix(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	for _, k := range []string{"session_key", "session", "other"} {
		require.NoError(t, r.Set(ctx, k, []byte(k)))
	}

	keys, err := r.Keys(ctx, "session")
	require.NoError(t, err)
	assert.Equal(t, []string{"session", "session_key"}, keys)

	keys, err = r.Keys(ctx, "")
	require.NoError(t, err)
	assert.Len(t, keys, 3)
}

func TestWorksInsideTransaction(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	err := dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return NewSQLiteRepository(tx).Set(ctx, "a", []byte("1"))
	})
	require.NoError(t, err)

	v, err := NewSQLiteRepository(db).Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)
}

func TestErrorsAreWrapped(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	boom := assert.AnError
	mock.ExpectQuery("SELECT value FROM metadata").WillReturnError(boom)
	mock.ExpectExec("INSERT INTO metadata").WillReturnError(boom)
	mock.ExpectExec("DELETE FROM metadata").WillReturnError(boom)
	mock.ExpectQuery("SELECT key FROM metadata").WillReturnError(boom)

	r := NewSQLiteRepository(db)
	ctx := context.Background()

	_, err = r.Get(ctx, "k")
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), `get metadata "k"`)

	err = r.Set(ctx, "k", []byte("v"))
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), `set metadata "k"`)

	err = r.Delete(ctx, "k")
	assert.ErrorIs(t, err, boom)

	_, err = r.Keys(ctx, "")
	assert.ErrorIs(t, err, boom)

	require.NoError(t, mock.ExpectationsWereMet())
}
