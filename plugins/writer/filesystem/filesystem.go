package filesystem

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"serax/pkg/contract"
)

// Options: 文件系统 Writer 选项。
type Options struct {
	// OutputDir: 输出根目录（必需）。
	OutputDir string `json:"output_dir" yaml:"output_dir"`
	// Atomic: 同目录临时文件 + rename；nil 视为 true。
	Atomic *bool `json:"atomic,omitempty" yaml:"atomic,omitempty"`
	// Flat: 仅保留文件名；nil 视为 true。
	Flat *bool `json:"flat,omitempty" yaml:"flat,omitempty"`
	// Sidecar: 是否同时写 JSONL 边车；nil 视为 true。
	Sidecar *bool `json:"sidecar,omitempty" yaml:"sidecar,omitempty"`
	// PermFile/PermDir: 为 0 使用 0644/0755。
	PermFile os.FileMode `json:"perm_file,omitempty" yaml:"perm_file,omitempty"`
	PermDir  os.FileMode `json:"perm_dir,omitempty" yaml:"perm_dir,omitempty"`
	// BufSize: 写缓冲；<=0 使用 64KiB。
	BufSize int `json:"buf_size,omitempty" yaml:"buf_size,omitempty"`
}

type FS struct {
	root    string
	atomic  bool
	flat    bool
	sidecar bool
	permF   os.FileMode
	permD   os.FileMode
	bufSize int
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// New 创建文件系统 Writer。
func New(opts *Options) (*FS, error) {
	if opts == nil || strings.TrimSpace(opts.OutputDir) == "" {
		return nil, fmt.Errorf("%w: output_dir required", contract.ErrInvalidInput)
	}
	w := &FS{
		root:    opts.OutputDir,
		atomic:  boolOr(opts.Atomic, true),
		flat:    boolOr(opts.Flat, true),
		sidecar: boolOr(opts.Sidecar, true),
		permF:   opts.PermFile,
		permD:   opts.PermDir,
		bufSize: opts.BufSize,
	}
	if w.permF == 0 {
		w.permF = 0o644
	}
	if w.permD == 0 {
		w.permD = 0o755
	}
	if w.bufSize <= 0 {
		w.bufSize = 64 * 1024
	}
	return w, nil
}

var (
	_ contract.Writer        = (*FS)(nil)
	_ contract.SidecarPolicy = (*FS)(nil)
)

// Root 返回输出根目录。
func (w *FS) Root() string { return w.root }

func (w *FS) WantsSidecar() bool { return w.sidecar }

// Write 将 r 的全部字节写入 id 映射的目标路径。
func (w *FS) Write(ctx context.Context, id contract.ArtifactID, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dest, err := w.mapPath(id)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), w.permD); err != nil {
		return err
	}
	if w.atomic {
		return w.writeAtomic(ctx, dest, r)
	}
	return w.writeOverwrite(ctx, dest, r)
}

// mapPath: Clean + Join + 越界校验。
func (w *FS) mapPath(id contract.ArtifactID) (string, error) {
	rel := filepath.Clean(filepath.FromSlash(string(id)))
	if w.flat {
		rel = filepath.Base(rel)
		if rel == "." || rel == ".." || rel == string(filepath.Separator) {
			return "", contract.ErrPathInvalid
		}
		return filepath.Join(w.root, rel), nil
	}
	switch {
	case rel == ".":
		return "", contract.ErrPathInvalid
	case filepath.IsAbs(rel), filepath.VolumeName(rel) != "":
		return "", contract.ErrPathInvalid
	case rel == "..", strings.HasPrefix(rel, ".."+string(filepath.Separator)):
		return "", contract.ErrPathInvalid
	}
	return filepath.Join(w.root, rel), nil
}

func (w *FS) writeOverwrite(ctx context.Context, dest string, r io.Reader) error {
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, w.permF)
	if err != nil {
		return err
	}
	defer f.Close()

	bw := bufio.NewWriterSize(f, w.bufSize)
	if _, err := io.Copy(bw, readerWithCtx(ctx, r)); err != nil {
		return err
	}
	return bw.Flush()
}

func (w *FS) writeAtomic(ctx context.Context, dest string, r io.Reader) (err error) {
	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()
	_ = os.Chmod(tmpPath, w.permF)

	bw := bufio.NewWriterSize(tmp, w.bufSize)
	if _, err = io.Copy(bw, readerWithCtx(ctx, r)); err != nil {
		return err
	}
	if err = bw.Flush(); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = osReplace(tmpPath, dest); err != nil {
		return err
	}
	// 尽力同步父目录元数据
	_ = syncDir(dir)
	return nil
}

// readerWithCtx: 每次 Read 前检查 ctx。
func readerWithCtx(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *ctxReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}
