package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewTestDB_AppliesSchemas(t *testing.T) {
	db := NewTestDB(t,
		`CREATE TABLE a (id INTEGER PRIMARY KEY)`,
		`CREATE TABLE b (id INTEGER PRIMARY KEY); CREATE VIEW v AS SELECT id FROM a`,
	)

	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE name IN ('a', 'b', 'v')`).Scan(&count)
	require.NoError(t, err)
	require.Equal(t, 3, count)
}

func TestNewTestDB_SharesOneDatabase(t *testing.T) {
	db := NewTestDB(t, `CREATE TABLE t (v TEXT)`)

	_, err := db.Exec(`INSERT INTO t (v) VALUES ('x')`)
	require.NoError(t, err)

	var v string
	require.NoError(t, db.QueryRow(`SELECT v FROM t`).Scan(&v))
	require.Equal(t, "x", v)
}
