package chunk

import (
	"context"
	"fmt"

	"serax/pkg/contract"
)

// DefaultMaxLines 在未配置任何上限时使用。
const DefaultMaxLines = 64

// Options 为 chunk Batcher 的默认上限；调用方传入的 BatchLimit 非零字段优先。
type Options struct {
	// MaxLines: 每批最大行数。<=0 表示不限制（两项都不限制时取 DefaultMaxLines）。
	MaxLines int `json:"max_lines" yaml:"max_lines"`
	// MaxBytes: 每批 Text 字节总和上限。<=0 表示不限制。
	MaxBytes int `json:"max_bytes" yaml:"max_bytes"`
}

// Batcher 将有序数据行切分为连续、互不重叠的批。
type Batcher struct {
	def contract.BatchLimit
}

// New 创建 chunk Batcher。
func New(opts *Options) *Batcher {
	b := &Batcher{}
	if opts != nil {
		b.def = contract.BatchLimit{MaxLines: max(opts.MaxLines, 0), MaxBytes: max(opts.MaxBytes, 0)}
	}
	return b
}

// Make 按 Index 顺序贪心装批：
// - 加入下一行会超出 MaxLines 或 MaxBytes 时开新批；
// - 单行超出 MaxBytes 时独占一批（不拆行）；
// - 输入须同一 FileID、Index 自首条起连续递增。
func (b *Batcher) Make(ctx context.Context, records []contract.Record, limit contract.BatchLimit) ([]contract.Batch, error) {
	if len(records) == 0 {
		return nil, nil
	}
	lim := b.effective(limit)
	fid := records[0].FileID
	for i := 1; i < len(records); i++ {
		if records[i].FileID != fid {
			return nil, fmt.Errorf("%w: batcher: mixed FileID %q and %q", contract.ErrSeqInvalid, fid, records[i].FileID)
		}
		if records[i].Index != records[i-1].Index+1 {
			return nil, fmt.Errorf("%w: batcher: index %d follows %d", contract.ErrSeqInvalid, records[i].Index, records[i-1].Index)
		}
	}

	var (
		out   []contract.Batch
		start int
		bytes int
	)
	flush := func(end int) {
		out = append(out, contract.Batch{FileID: fid, BatchIndex: int64(len(out)), Records: records[start:end:end]})
		start, bytes = end, 0
	}
	for i, r := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n := i - start
		if n > 0 {
			overLines := lim.MaxLines > 0 && n+1 > lim.MaxLines
			overBytes := lim.MaxBytes > 0 && bytes+len(r.Text) > lim.MaxBytes
			if overLines || overBytes {
				flush(i)
			}
		}
		bytes += len(r.Text)
	}
	flush(len(records))
	return out, nil
}

func (b *Batcher) effective(limit contract.BatchLimit) contract.BatchLimit {
	out := b.def
	if limit.MaxLines > 0 {
		out.MaxLines = limit.MaxLines
	}
	if limit.MaxBytes > 0 {
		out.MaxBytes = limit.MaxBytes
	}
	if out.MaxLines <= 0 && out.MaxBytes <= 0 {
		out.MaxLines = DefaultMaxLines
	}
	return out
}
