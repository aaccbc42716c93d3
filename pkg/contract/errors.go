package contract

import "errors"

// 最小错误分类（用于上层策略判定与日志/指标）。
var (
	// ErrInvalidInput: 输入不满足组件前置条件（空/超限/不支持的扩展名等）。
	ErrInvalidInput = errors.New("invalid input")
	// ErrSeqInvalid: 顺序违规（Index 非严格递增、跨文件混入）。
	ErrSeqInvalid = errors.New("sequence invalid")
	// ErrPathInvalid: 目标标识映射为无效/越界路径（例如绝对路径或 '..' 逃逸）。
	ErrPathInvalid = errors.New("path invalid")
	// ErrInvariantViolation: 领域不变量违例（通用哨兵）。
	ErrInvariantViolation = errors.New("invariant violation")
	// ErrSkip: 组件判定该文件不在处理范围内（如扩展名不匹配）；编排层静默跳过，不产出工件。
	ErrSkip = errors.New("skip")
)
