package config

import (
	"encoding/json"
)

// Config: 运行期只读配置（一次解析，运行期不变）。
// 键名 snake_case；YAML 与 JSON 同构，未知字段在解析期失败。
type Config struct {
	Inputs      []string `json:"inputs" validate:"required,min=1,dive,required"`
	Concurrency int      `json:"concurrency" validate:"gte=1,lte=1024"`
	// FailOnInvalid: 存在无效记录时以退出码 2 结束。
	FailOnInvalid bool `json:"fail_on_invalid"`
	// MetricsFile: 运行结束后写出 Prometheus text 格式指标；空为不写。
	MetricsFile string  `json:"metrics_file"`
	Logging     Logging `json:"logging"`
	Batch       Batch   `json:"batch"`

	// 组件名选择（空则使用默认名）。
	Components Components `json:"components"`

	// 各组件 Options 子树，原样 JSON 传入工厂。
	Options Options `json:"options"`
}

// Logging: 仅日志等级可配置；输出路径与轮转策略为固定默认。
type Logging struct {
	Level string `json:"level" validate:"omitempty,oneof=debug info warn error"`
}

// Batch: 批上限（覆盖 batcher 自身选项；0 表示沿用）。
type Batch struct {
	MaxLines int `json:"max_lines" validate:"gte=0"`
	MaxBytes int `json:"max_bytes" validate:"gte=0"`
}

// Components: 组件名选择（注册表中的实现名）。
type Components struct {
	Reader    string `json:"reader"`
	Splitter  string `json:"splitter"`
	Batcher   string `json:"batcher"`
	Decoder   string `json:"decoder"`
	Assembler string `json:"assembler"`
	Writer    string `json:"writer"`
}

// Options: 各组件的原样 JSON Options。
type Options struct {
	Reader    json.RawMessage `json:"reader"`
	Splitter  json.RawMessage `json:"splitter"`
	Batcher   json.RawMessage `json:"batcher"`
	Decoder   json.RawMessage `json:"decoder"`
	Assembler json.RawMessage `json:"assembler"`
	Writer    json.RawMessage `json:"writer"`
}
