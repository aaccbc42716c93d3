//go:build !windows

package filesystem

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serax/pkg/contract"
)

func TestWalkDirSkipsFifo(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, syscall.Mkfifo(filepath.Join(root, "fifo"), 0o644))
	ids, _ := collect(t, New(nil), root)
	assert.Empty(t, ids)
}

func TestSymlinks(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "real", "t.serax")
	write(t, target, "ok")

	fileLink := filepath.Join(root, "l.serax")
	require.NoError(t, os.Symlink(target, fileLink))
	ids, _ := collect(t, New(nil), fileLink)
	require.Len(t, ids, 1)
	assert.Equal(t, "l.serax", filepath.Base(ids[0]))

	// 指向目录的链接：作为 root 或在递归中都忽略
	dirLink := filepath.Join(root, "ln")
	require.NoError(t, os.Symlink(filepath.Join(root, "real"), dirLink))
	ids, _ = collect(t, New(nil), dirLink)
	assert.Empty(t, ids)

	ids, _ = collect(t, New(nil), root)
	var names []string
	for _, id := range ids {
		names = append(names, filepath.Base(id))
	}
	assert.ElementsMatch(t, []string{"t.serax", "l.serax"}, names)
}

func TestSymlinkDangling(t *testing.T) {
	dir := t.TempDir()
	link := filepath.Join(dir, "dangling")
	require.NoError(t, os.Symlink(filepath.Join(dir, "no"), link))
	err := New(nil).Iterate(context.Background(), []string{link}, func(contract.FileID, io.ReadCloser) error { return nil })
	assert.Error(t, err)
}
