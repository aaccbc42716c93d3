package contract

import (
	"context"
	"io"
)

// Assembler: 将同一 FileID 的解码结果渲染为可读报告。
// 编排层对每个文件依次调用 Header → Assemble（按批序，零或多次）→ Footer。
// 约束：
//  1. 仅处理同一 FileID 的 Result；
//  2. 单次调用内 Index 严格升序，违规返回 ErrSeqInvalid；
//  3. 不引入跨文件状态。
type Assembler interface {
	Header(ctx context.Context, fileID FileID) (io.Reader, error)
	Assemble(ctx context.Context, fileID FileID, results []Result) (io.Reader, error)
	Footer(ctx context.Context, fileID FileID, sum Summary) (io.Reader, error)
}
