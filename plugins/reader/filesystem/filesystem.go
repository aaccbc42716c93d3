package filesystem

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"serax/pkg/contract"
)

// Options 为数据集 Reader 的可选配置。
type Options struct {
	// BufSize 为读缓冲区大小（字节）。默认 64KiB。
	BufSize int `json:"buf_size" yaml:"buf_size"`
	// ExcludeDirNames: 递归时跳过的目录基名（大小写不敏感），如 [".git","out"]。
	// 不影响直接作为 root 传入的路径。
	ExcludeDirNames []string `json:"exclude_dir_names" yaml:"exclude_dir_names"`
	// IncludeHidden: 递归时是否包含以 '.' 开头的文件与目录（默认跳过）。
	IncludeHidden bool `json:"include_hidden" yaml:"include_hidden"`
}

// FileSystem 从文件、目录或 STDIN 读取数据集。
// 同一路径在一次 Iterate 中只产出一次（多个 root 重叠时去重）。
type FileSystem struct {
	bufSize       int
	excludeDir    map[string]struct{}
	includeHidden bool
}

// New 创建 FileSystem Reader。
func New(opts *Options) *FileSystem {
	r := &FileSystem{bufSize: 64 * 1024, excludeDir: map[string]struct{}{}}
	if opts == nil {
		return r
	}
	if opts.BufSize > 0 {
		r.bufSize = opts.BufSize
	}
	for _, name := range opts.ExcludeDirNames {
		if name = strings.Trim(name, `/\ `); name != "" {
			r.excludeDir[strings.ToLower(name)] = struct{}{}
		}
	}
	r.includeHidden = opts.IncludeHidden
	return r
}

// Iterate 按稳定顺序对每个常规文件调用 yield。
// roots 为空或仅为 "-" 时读取 STDIN（FileID 为 "stdin"）。
func (r *FileSystem) Iterate(ctx context.Context, roots []string, yield func(fileID contract.FileID, rc io.ReadCloser) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(roots) == 0 || (len(roots) == 1 && roots[0] == "-") {
		return yield(contract.FileID("stdin"), newBufferedCloser(os.Stdin, r.bufSize))
	}
	for _, s := range roots {
		if s == "-" {
			return fmt.Errorf("%w: stdin '-' cannot be mixed with other roots", contract.ErrInvalidInput)
		}
	}
	w := &walker{r: r, yield: yield, seen: map[contract.FileID]struct{}{}}
	for _, root := range roots {
		if err := w.root(ctx, root); err != nil {
			return err
		}
	}
	return nil
}

type walker struct {
	r     *FileSystem
	yield func(contract.FileID, io.ReadCloser) error
	seen  map[contract.FileID]struct{}
}

func (w *walker) root(ctx context.Context, root string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := os.Lstat(root)
	if err != nil {
		return err
	}
	switch {
	case info.Mode()&os.ModeSymlink != 0:
		// 只跟随指向常规文件的链接；指向目录时忽略
		t, err := os.Stat(root)
		if err != nil {
			return err
		}
		if t.Mode().IsRegular() {
			return w.emit(root)
		}
		return nil
	case info.IsDir():
		return w.dir(ctx, root)
	case info.Mode().IsRegular():
		return w.emit(root)
	}
	return nil
}

// dir 先递归子目录，再产出本层文件；同层按名称字典序。
func (w *walker) dir(ctx context.Context, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var files []os.DirEntry
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !w.r.includeHidden && strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if !e.IsDir() {
			files = append(files, e)
			continue
		}
		if _, skip := w.r.excludeDir[strings.ToLower(e.Name())]; skip {
			continue
		}
		if err := w.dir(ctx, filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	for _, e := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		p := filepath.Join(dir, e.Name())
		mode := e.Type()
		if mode&os.ModeSymlink != 0 {
			t, err := os.Stat(p)
			if err != nil {
				return err
			}
			mode = t.Mode()
		}
		if !mode.IsRegular() {
			continue
		}
		if err := w.emit(p); err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) emit(p string) error {
	id := contract.NormalizeFileID(p)
	if _, dup := w.seen[id]; dup {
		return nil
	}
	w.seen[id] = struct{}{}
	f, err := os.Open(p)
	if err != nil {
		return err
	}
	brc := newBufferedCloser(f, w.r.bufSize)
	if err := w.yield(id, brc); err != nil {
		_ = brc.Close()
		return err
	}
	return nil
}

// bufferedCloser 将 bufio.Reader 与底层 Closer 组合为 ReadCloser。
type bufferedCloser struct {
	*bufio.Reader
	c io.Closer
}

func newBufferedCloser(c io.ReadCloser, bufSize int) *bufferedCloser {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	return &bufferedCloser{Reader: bufio.NewReaderSize(c, bufSize), c: c}
}

func (b *bufferedCloser) Close() error { return b.c.Close() }
