package storage

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/josedcape/codestorm-preeliminar/internal/config"
)

func TestOpenMemoryDriverReturnsNil(t *testing.T) {
	db, err := Open(config.StoreConfig{Driver: "memory"})
	require.NoError(t, err)
	require.Nil(t, db)
	require.NoError(t, Close(nil))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(config.StoreConfig{Driver: "mongo"})
	require.Error(t, err)
}

func TestOpenSQLite(t *testing.T) {
	db, err := OpenMemory()
	require.NoError(t, err)
	require.NotNil(t, db)
	require.NoError(t, db.Exec("SELECT 1").Error)
	require.NoError(t, Close(db))
}
