package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ah_scanner/models"
)

func newTestSQLite(t *testing.T) Store {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "scanner.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore(t *testing.T) {
	runStoreSuite(t, newTestSQLite)
}

func TestSQLiteStore_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scanner.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.AppendEvent(ctx, &models.Event{Type: models.EventSold, TS: day0, ItemID: "x", ItemName: "X", Price: 5, Count: 1}))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	events, err := s.EventsSince(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestSQLiteStore_NotADatabaseIsCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.db")
	garbage := make([]byte, 4096)
	for i := range garbage {
		garbage[i] = byte('x')
	}
	require.NoError(t, os.WriteFile(path, garbage, 0o644))

	_, err := NewSQLiteStore(path)
	require.Error(t, err)
	assert.True(t, IsCorrupt(err), "got %v", err)
}

func TestWrapSQLite(t *testing.T) {
	assert.NoError(t, wrapSQLite("op", nil))

	err := wrapSQLite("persist cycle", sqlite3.Error{Code: sqlite3.ErrCorrupt})
	assert.True(t, IsCorrupt(err))

	var se *StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "persist cycle", se.Op)

	err = wrapSQLite("persist cycle", sqlite3.Error{Code: sqlite3.ErrBusy})
	assert.False(t, IsCorrupt(err))
}
