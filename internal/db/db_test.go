package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenCreatesDataDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "test.db")
	database, err := Open(path)
	require.NoError(t, err)
	defer database.Close()

	assert.FileExists(t, path)
}

func TestMigrateIsIdempotent(t *testing.T) {
	database, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer database.Close()

	require.NoError(t, Migrate(database))
	require.NoError(t, Migrate(database), "second run skips applied migrations")

	var count int
	require.NoError(t, database.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&count))
	assert.Equal(t, 2, count)

	_, err = database.Exec(`INSERT INTO sessions (id, cols, rows, created_at, resized_at) VALUES ('a', 80, 24, CURRENT_TIMESTAMP, NULL)`)
	assert.NoError(t, err)
}

func TestOpenMemory(t *testing.T) {
	database, err := OpenMemory()
	require.NoError(t, err)
	defer database.Close()
	require.NoError(t, Migrate(database))

	var name string
	require.NoError(t, database.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'sessions'`).Scan(&name))
	assert.Equal(t, "sessions", name)
}
