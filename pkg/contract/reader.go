package contract

import (
	"context"
	"io"
)

// Reader: 数据集输入源（文件/目录/STDIN）。
// 约束：
// 1) 按文件维度回调，调用方负责关闭 ReadCloser；
// 2) FileID 稳定且去平台差异化；
// 3) 只提供字节流，不解析内容；
// 4) 不在内部起并发。
type Reader interface {
	Iterate(ctx context.Context, roots []string, yield func(fileID FileID, r io.ReadCloser) error) error
}
