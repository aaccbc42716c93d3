package filesystem

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serax/pkg/contract"
)

func collect(t *testing.T, r *FileSystem, roots ...string) (ids []string, data map[string]string) {
	t.Helper()
	data = map[string]string{}
	err := r.Iterate(context.Background(), roots, func(id contract.FileID, rc io.ReadCloser) error {
		defer rc.Close()
		b, err := io.ReadAll(rc)
		require.NoError(t, err)
		ids = append(ids, string(id))
		data[string(id)] = string(b)
		return nil
	})
	require.NoError(t, err)
	return ids, data
}

func write(t *testing.T, p, s string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(s), 0o644))
}

func TestIterateSingleFile(t *testing.T) {
	fp := filepath.Join(t.TempDir(), "a.serax")
	write(t, fp, "⟐⊶Acme⏹")
	ids, data := collect(t, New(nil), fp)
	require.Len(t, ids, 1)
	assert.Equal(t, string(contract.NormalizeFileID(fp)), ids[0])
	assert.Equal(t, "⟐⊶Acme⏹", data[ids[0]])
}

// 子目录先于同层文件，同层按字典序。
func TestIterateOrder(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "b.serax"), "b")
	write(t, filepath.Join(dir, "a.serax"), "a")
	write(t, filepath.Join(dir, "sub", "c.serax"), "c")
	ids, _ := collect(t, New(nil), dir)
	var names []string
	for _, id := range ids {
		names = append(names, filepath.Base(id))
	}
	assert.Equal(t, []string{"c.serax", "a.serax", "b.serax"}, names)
}

func TestExcludeDirAndHidden(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "keep.serax"), "k")
	write(t, filepath.Join(dir, "Out", "bad.serax"), "b")
	write(t, filepath.Join(dir, ".git", "x.serax"), "g")
	write(t, filepath.Join(dir, ".hidden.serax"), "h")

	ids, _ := collect(t, New(&Options{ExcludeDirNames: []string{"out/"}}), dir)
	require.Len(t, ids, 1)
	assert.True(t, strings.HasSuffix(ids[0], "keep.serax"))

	ids, _ = collect(t, New(&Options{ExcludeDirNames: []string{"out"}, IncludeHidden: true}), dir)
	assert.Len(t, ids, 3)
}

func TestIterateDedupOverlappingRoots(t *testing.T) {
	dir := t.TempDir()
	fp := filepath.Join(dir, "a.serax")
	write(t, fp, "a")
	ids, _ := collect(t, New(nil), dir, fp)
	assert.Len(t, ids, 1)
}

func TestIterateDashMix(t *testing.T) {
	err := New(nil).Iterate(context.Background(), []string{"-", "a"}, func(contract.FileID, io.ReadCloser) error { return nil })
	assert.ErrorIs(t, err, contract.ErrInvalidInput)
}

func TestIterateStdin(t *testing.T) {
	for _, roots := range [][]string{nil, {"-"}} {
		old := os.Stdin
		pr, pw, err := os.Pipe()
		require.NoError(t, err)
		os.Stdin = pr
		go func() {
			_, _ = pw.Write([]byte("hi"))
			_ = pw.Close()
		}()
		ids, data := collect(t, New(nil), roots...)
		os.Stdin = old
		assert.Equal(t, []string{"stdin"}, ids)
		assert.Equal(t, "hi", data["stdin"])
	}
}

func TestIterateMissingRoot(t *testing.T) {
	err := New(nil).Iterate(context.Background(), []string{filepath.Join(t.TempDir(), "nope")}, func(contract.FileID, io.ReadCloser) error { return nil })
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestIterateYieldError(t *testing.T) {
	fp := filepath.Join(t.TempDir(), "a.serax")
	write(t, fp, "a")
	boom := assert.AnError
	err := New(nil).Iterate(context.Background(), []string{fp}, func(contract.FileID, io.ReadCloser) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestIterateCtxCancel(t *testing.T) {
	fp := filepath.Join(t.TempDir(), "a.serax")
	write(t, fp, "x")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := New(nil).Iterate(ctx, []string{fp}, func(contract.FileID, io.ReadCloser) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewBufferedCloserDefault(t *testing.T) {
	bc := newBufferedCloser(io.NopCloser(strings.NewReader("")), 0)
	assert.NotNil(t, bc.Reader)
	assert.NoError(t, bc.Close())
}
