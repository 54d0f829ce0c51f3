package baseline

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirFor(t *testing.T) {
	assert.Equal(t,
		filepath.Join("visualtests", "testdata", "visual_test.go-snapshots"),
		DirFor(filepath.Join("visualtests", "visual_test.go")))
}

func TestReadMissing(t *testing.T) {
	s := Open(t.TempDir(), false)
	_, err := s.Read("cards-0-mobile.png")

	var missing *MissingError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "cards-0-mobile.png", missing.Name)
	assert.Contains(t, err.Error(), "-update")
}

func TestWriteReadOnly(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "snapshots")
	s := Open(dir, false)

	err := s.Write("cards-0-mobile.png", []byte("png"))
	assert.ErrorIs(t, err, ErrReadOnly)

	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr), "read-only store must not create its directory")
}

func TestWriteAndRead(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "snapshots")
	s := Open(dir, true)
	assert.True(t, s.Updating())

	require.NoError(t, s.Write("cards-0-mobile.png", []byte("first")))
	require.NoError(t, s.Write("cards-0-mobile.png", []byte("second")))
	require.NoError(t, s.Write("hero-0-large.png", []byte("hero")))

	data, err := s.Read("cards-0-mobile.png")
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	names, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"cards-0-mobile.png", "hero-0-large.png"}, names)
}

func TestInvalidNames(t *testing.T) {
	s := Open(t.TempDir(), true)
	for _, name := range []string{"", "../escape.png", "sub/dir.png", ".hidden.png"} {
		assert.Error(t, s.Write(name, nil), name)
		_, err := s.Read(name)
		assert.Error(t, err, name)
	}
}

func TestListMissingDir(t *testing.T) {
	names, err := Open(filepath.Join(t.TempDir(), "none"), false).List()
	require.NoError(t, err)
	assert.Empty(t, names)
}
