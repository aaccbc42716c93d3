package config

// TemplateYAML: init-config 写出的默认配置。
// 默认输入为 STDIN（"-"），报告与 JSONL 边车写到 ./out；列出各组件全部选项键。
const TemplateYAML = `# serax 数据集 QA 配置
inputs: ["-"]
concurrency: 4
fail_on_invalid: false
metrics_file: ""
logging:
  level: info
batch:
  max_lines: 0
  max_bytes: 0

components:
  reader: fs
  splitter: lines
  batcher: chunk
  decoder: serax
  assembler: report
  writer: fs

options:
  reader:
    buf_size: 65536
    exclude_dir_names: [".git", "node_modules", "vendor", "out"]
    include_hidden: false
  splitter:
    max_line_bytes: 0
    allow_exts: [".serax", ".txt"]
    comment_prefixes: ["#", "----"]
  batcher:
    max_lines: 64
    max_bytes: 0
  decoder:
    builtin: financial
    schema_file: ""
    policy:
      expected_fields: 7
      hallucination_threshold: 30
      min_quality: 70
  assembler:
    only_invalid: false
    hide_fields: false
  writer:
    output_dir: out
    atomic: true
    flat: true
    sidecar: true
`

// TemplateEnv: init-config 写出的 .env 模板（注释行，按需取消注释）。
const TemplateEnv = `# serax 环境变量（优先级：默认 < 配置文件 < ENV < 命令行）
# SERAX_CONFIG_FILE=config.yaml
# SERAX_INPUTS=datasets
# SERAX_CONCURRENCY=4
# SERAX_FAIL_ON_INVALID=false
# SERAX_LOG_LEVEL=info
# SERAX_METRICS_FILE=out/serax.prom
# SERAX_OPTIONS_DECODER_JSON={"builtin":"financial"}
`

// DefaultTemplateConfig 返回 TemplateYAML 对应的 Config。
func DefaultTemplateConfig() Config {
	cfg, err := ParseYAML([]byte(TemplateYAML))
	if err != nil {
		panic("config: invalid template: " + err.Error())
	}
	return cfg
}
