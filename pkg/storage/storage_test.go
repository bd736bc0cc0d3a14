package storage

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcp-knowledge-go/internal/config"
)

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "documents/abc/spec.pdf", ObjectKey("abc", "spec.pdf"))
	assert.Equal(t, "documents/abc/passwd", ObjectKey("abc", "../../etc/passwd"))
}

func TestLocalStore_PutOpen(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	loc, err := s.Put(ctx, ObjectKey("d41d8cd9", "notes.md"), strings.NewReader("hello"), 5)
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(loc))
	assert.Equal(t, "notes.md", filepath.Base(loc))

	rc, err := s.Open(ctx, loc)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestLocalStore_Remove(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s, err := NewLocalStore(root)
	require.NoError(t, err)

	keep, err := s.Put(ctx, ObjectKey("abc", "a.md"), strings.NewReader("a"), 1)
	require.NoError(t, err)
	drop, err := s.Put(ctx, ObjectKey("abc", "b.md"), strings.NewReader("b"), 1)
	require.NoError(t, err)

	require.NoError(t, s.Remove(ctx, drop))
	require.NoError(t, s.Remove(ctx, drop))
	_, err = s.Open(ctx, drop)
	assert.ErrorIs(t, err, ErrObjectNotFound)
	assert.FileExists(t, keep)

	require.NoError(t, s.Remove(ctx, keep))
	assert.NoDirExists(t, filepath.Dir(keep))
}

func TestLocalStore_OpenMissing(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	_, err = s.Open(context.Background(), filepath.Join(t.TempDir(), "nope.txt"))
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestNew_Backends(t *testing.T) {
	s, err := New(context.Background(), config.StorageConfig{Backend: "local", LocalDir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, "local", s.Backend())

	_, err = New(context.Background(), config.StorageConfig{Backend: "ftp"})
	assert.Error(t, err)
}

func TestParseMinIOLocation(t *testing.T) {
	bucket, key, ok := parseMinIOLocation("minio://uploads/documents/abc/a.pdf")
	require.True(t, ok)
	assert.Equal(t, "uploads", bucket)
	assert.Equal(t, "documents/abc/a.pdf", key)

	_, _, ok = parseMinIOLocation("/tmp/a.pdf")
	assert.False(t, ok)
	_, _, ok = parseMinIOLocation("minio://bucket-only")
	assert.False(t, ok)
}
