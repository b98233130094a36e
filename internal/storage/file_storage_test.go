package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStorage(t *testing.T) *LocalFileStorage {
	t.Helper()
	return NewLocalFileStorage(t.TempDir(), zap.NewNop())
}

func TestLocalFileStorage_SaveAndRead(t *testing.T) {
	fs := newTestStorage(t)
	ctx := context.Background()

	content := []byte("triage report data")
	require.NoError(t, fs.Save(ctx, "reports/triage.xlsx", content))

	got, err := fs.Read(ctx, "reports/triage.xlsx")
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestLocalFileStorage_SaveCreatesParentDirs(t *testing.T) {
	fs := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, fs.Save(ctx, "a/b/c/file.txt", []byte("x")))
	assert.True(t, fs.Exists(ctx, "a/b/c/file.txt"))
}

func TestLocalFileStorage_Exists(t *testing.T) {
	fs := newTestStorage(t)
	ctx := context.Background()

	assert.False(t, fs.Exists(ctx, "missing.txt"))

	require.NoError(t, fs.Save(ctx, "present.txt", []byte("x")))
	assert.True(t, fs.Exists(ctx, "present.txt"))
}

func TestLocalFileStorage_Delete(t *testing.T) {
	fs := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, fs.Save(ctx, "doomed.txt", []byte("x")))
	require.NoError(t, fs.Delete(ctx, "doomed.txt"))
	assert.False(t, fs.Exists(ctx, "doomed.txt"))

	assert.Error(t, fs.Delete(ctx, "doomed.txt"))
}

func TestLocalFileStorage_RejectsPathTraversal(t *testing.T) {
	fs := newTestStorage(t)
	ctx := context.Background()

	err := fs.Save(ctx, "../outside.txt", []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes storage directory")

	_, err = fs.Read(ctx, "../../etc/passwd")
	assert.Error(t, err)
	assert.False(t, fs.Exists(ctx, "../outside.txt"))
}

func TestLocalFileStorage_GetFullPath(t *testing.T) {
	fs := NewLocalFileStorage("/data/reports", zap.NewNop())
	assert.Equal(t, filepath.Join("/data/reports", "triage.xlsx"), fs.GetFullPath("triage.xlsx"))
}
