package contract

import "serax/pkg/serax"

// FileID: 逻辑文档ID（通常为路径，需规范化，跨平台一致）。
type FileID string

// Index: 单文件内稳定递增的索引（0..n-1）。
type Index int64

// Meta: 可选的轻量元信息；核心流程不读取其键值。
type Meta map[string]string

// Record: 数据集中的一条待解码行（不可跨文件）。
// 约束：
// - FileID 一致；
// - Index 自 0 严格递增；
// - LineNo 为原始输入中的 1-based 行号（跳过的空行/注释行仍计数）；
// - Text 已去首尾空白，不做其他清洗。
type Record struct {
	Index  Index
	FileID FileID
	LineNo int
	Text   string
	Meta   Meta // 可为 nil
}

// Batch: 同一 FileID 内连续的 Record 片段，按 Index 严格升序。
type Batch struct {
	FileID FileID
	// BatchIndex: 同一 FileID 内的批序（0..n-1，严格递增）。
	// 仅用于跨批顺序恢复与装配门闩。
	BatchIndex int64
	Records    []Record
}

// Result: 单条 Record 的解码结果。
type Result struct {
	FileID FileID
	Index  Index
	Record serax.Record
}
