package tokenstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exercise(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	token, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, token)

	require.NoError(t, s.Save(ctx, "first"))
	require.NoError(t, s.Save(ctx, "second"))
	token, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", token)

	require.NoError(t, s.Clear(ctx))
	token, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, token)

	require.NoError(t, s.Clear(ctx), "clearing twice is not an error")
}

func TestDrivers(t *testing.T) {
	dir := t.TempDir()
	cases := []struct {
		driver string
		path   string
	}{
		{DriverMemory, ""},
		{DriverFile, filepath.Join(dir, "nested", "token.json")},
		{DriverSQLite, filepath.Join(dir, "token.db")},
	}
	for _, tc := range cases {
		t.Run(tc.driver, func(t *testing.T) {
			s, cleanup, err := Open(tc.driver, tc.path)
			require.NoError(t, err)
			defer func() { require.NoError(t, cleanup()) }()
			exercise(t, s)
		})
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	ctx := context.Background()

	require.NoError(t, NewFileStore(path).Save(ctx, "persisted"))
	token, err := NewFileStore(path).Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "persisted", token)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.db")
	ctx := context.Background()

	s, cleanup, err := Open(DriverSQLite, path)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, "persisted"))
	require.NoError(t, cleanup())

	s, cleanup, err = Open(DriverSQLite, path)
	require.NoError(t, err)
	defer func() { _ = cleanup() }()
	token, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "persisted", token)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, _, err := Open("redis", "x")
	assert.Error(t, err)
	_, _, err = Open(DriverFile, "")
	assert.Error(t, err)
}
