package contract

import (
	"context"
	"io"
)

// Splitter: 将单文件字节流拆分为有序的数据行 Record，并分配 Index（0..n-1）。
// 约束：
// 1) 不跨文件合并；
// 2) Index 严格递增且稳定，LineNo 指向原始输入行；
// 3) 仅做 CRLF→LF 与首尾空白裁剪，不改变行内容；
// 4) 无内部并发、幂等。
type Splitter interface {
	Split(ctx context.Context, fileID FileID, r io.Reader) ([]Record, error)
}
