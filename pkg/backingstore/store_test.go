package backingstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreReadAndSize(t *testing.T) {
	s := NewMemoryStore()
	s.Put("obj", []byte("hello world"))

	size, err := s.Size(context.Background(), "obj")
	require.NoError(t, err)
	assert.EqualValues(t, 11, size)

	dst := make([]byte, 5)
	n, err := s.Read(context.Background(), "obj", 6, 5, dst)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "world", string(dst))
}

func TestMemoryStoreUnknownObject(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Size(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	_, err = s.Read(context.Background(), "missing", 0, 1, make([]byte, 1))
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestFileStoreReadAndSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "obj.bin")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0600))

	s := NewFileStore(dir)
	size, err := s.Size(context.Background(), "obj.bin")
	require.NoError(t, err)
	assert.EqualValues(t, 10, size)

	dst := make([]byte, 4)
	n, err := s.Read(context.Background(), "obj.bin", 3, 4, dst)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "3456", string(dst))
}

func TestFileStoreUnknownObject(t *testing.T) {
	s := NewFileStore(t.TempDir())
	_, err := s.Size(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}
