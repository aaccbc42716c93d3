package stdout

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"serax/pkg/contract"
)

// Options: 标准输出 Writer 选项。
type Options struct {
	// Sidecar: 是否同时输出 JSONL 边车（默认 false，仅输出报告）。
	Sidecar bool `json:"sidecar" yaml:"sidecar"`
	// NoHeader: 不输出每个工件前的 "==> id <==" 行。
	NoHeader bool `json:"no_header" yaml:"no_header"`
}

// Stdout 将工件依次写到同一输出流。
// 报告与边车由 pipeline 并发产出，这里先完整缓冲单个工件再加锁输出，避免交错。
type Stdout struct {
	mu       sync.Mutex
	out      io.Writer
	sidecar  bool
	noHeader bool
}

// New 创建写到 os.Stdout 的 Writer。
func New(opts *Options) *Stdout { return NewTo(os.Stdout, opts) }

// NewTo 创建写到 out 的 Writer。
func NewTo(out io.Writer, opts *Options) *Stdout {
	w := &Stdout{out: out}
	if opts != nil {
		w.sidecar = opts.Sidecar
		w.noHeader = opts.NoHeader
	}
	return w
}

var (
	_ contract.Writer        = (*Stdout)(nil)
	_ contract.SidecarPolicy = (*Stdout)(nil)
)

func (w *Stdout) WantsSidecar() bool { return w.sidecar }

func (w *Stdout) Write(ctx context.Context, id contract.ArtifactID, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.noHeader {
		if _, err := fmt.Fprintf(w.out, "==> %s <==\n", id); err != nil {
			return err
		}
	}
	_, err = w.out.Write(body)
	return err
}
