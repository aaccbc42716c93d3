package contract

import (
	"context"
	"fmt"
)

// Decoder: 将一个 Batch 的每条 Record 解码为 Result（一一对应、顺序一致）。
// 单条记录的畸形内容体现在 Result 中，不作为错误返回；
// 错误仅用于取消与实现内部故障。
type Decoder interface {
	Decode(ctx context.Context, b Batch) ([]Result, error)
}

// ValidateResults 校验解码结果与批的一一对应关系（纯函数，无 I/O）：
// 数量相等、FileID 一致、Index 与批内 Record 逐条相同。
func ValidateResults(b Batch, results []Result) error {
	if len(results) != len(b.Records) {
		return fmt.Errorf("%w: %d results for %d records", ErrInvariantViolation, len(results), len(b.Records))
	}
	for i, r := range results {
		if r.FileID != b.FileID {
			return fmt.Errorf("%w: result %d file %q, batch file %q", ErrInvariantViolation, i, r.FileID, b.FileID)
		}
		if r.Index != b.Records[i].Index {
			return fmt.Errorf("%w: result %d index %d, want %d", ErrInvariantViolation, i, r.Index, b.Records[i].Index)
		}
	}
	return nil
}
