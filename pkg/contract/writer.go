package contract

import (
	"context"
	"io"
)

// ArtifactID: 输出工件标识，由源 FileID 派生。
type ArtifactID = FileID

const (
	// ReportSuffix: 人类可读 QA 报告后缀。
	ReportSuffix = ".qa.txt"
	// SidecarSuffix: JSONL 边车后缀（每行一条记录）。
	SidecarSuffix = ".jsonl"
)

// ReportID 返回 fileID 对应的报告工件标识。
func ReportID(fileID FileID) ArtifactID { return ArtifactID(string(fileID) + ReportSuffix) }

// SidecarID 返回 fileID 对应的 JSONL 边车工件标识。
func SidecarID(fileID FileID) ArtifactID { return ArtifactID(string(fileID) + SidecarSuffix) }

// Writer: 将报告/边车以流式方式写到目标介质。
// 约束：
//  1. 同一 ArtifactID 单写者；
//  2. 流式写入，按字节透传，不修改内容；
//  3. ctx 取消需尽快返回；
//  4. 错误直接上抛（不做重试）。
type Writer interface {
	Write(ctx context.Context, id ArtifactID, r io.Reader) error
}

// SidecarPolicy: Writer 可选实现；返回 false 时 pipeline 不生成 JSONL 边车。
type SidecarPolicy interface {
	WantsSidecar() bool
}
