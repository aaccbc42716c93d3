package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Defaults 返回带安全默认值的 Config 雏形（Inputs 无默认）。
func Defaults() Config {
	return Config{
		Concurrency: 1,
		Logging:     Logging{Level: "info"},
		Components: Components{
			Reader:    "fs",
			Splitter:  "lines",
			Batcher:   "chunk",
			Decoder:   "serax",
			Assembler: "report",
			Writer:    "fs",
		},
	}
}

// Load 从文件路径或原始 JSON 解析 Config（严格拒绝未知字段）。
// 文件扩展名为 .json 时按 JSON 解析，其余按 YAML 解析。
func Load(path string, raw []byte) (Config, error) {
	switch {
	case len(bytes.TrimSpace(raw)) > 0:
		return ParseJSON(raw)
	case path != "":
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if strings.EqualFold(filepath.Ext(path), ".json") {
			return ParseJSON(b)
		}
		return ParseYAML(b)
	default:
		return Config{}, errors.New("config: no config source provided")
	}
}

// ParseJSON 严格解析 JSON。
func ParseJSON(b []byte) (Config, error) {
	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// ParseYAML 将 YAML 转为等价 JSON 后严格解析；
// 组件 Options 子树由此以原样 JSON 交给工厂。空文档视为空配置。
func ParseYAML(b []byte) (Config, error) {
	var doc any
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return Config{}, fmt.Errorf("config: yaml: %w", err)
	}
	if doc == nil {
		return Config{}, nil
	}
	norm, err := jsonable(doc)
	if err != nil {
		return Config{}, err
	}
	if _, ok := norm.(map[string]any); !ok {
		return Config{}, errors.New("config: yaml root must be a mapping")
	}
	j, err := json.Marshal(norm)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return ParseJSON(j)
}

// jsonable 将 YAML 解码结果转换为 encoding/json 可编码的形态（仅字符串键）。
func jsonable(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			c, err := jsonable(e)
			if err != nil {
				return nil, err
			}
			out[k] = c
		}
		return out, nil
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			ks, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("config: non-string yaml key %v", k)
			}
			c, err := jsonable(e)
			if err != nil {
				return nil, err
			}
			out[ks] = c
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			c, err := jsonable(e)
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil
	default:
		return v, nil
	}
}

// Merge 按优先级合并（后者覆盖前者）。
// 标量/字符串/原样 JSON 为替换；不做深度合并。FailOnInvalid 只可打开。
func Merge(base, over Config) Config {
	out := base
	if len(over.Inputs) > 0 {
		out.Inputs = cloneStrings(over.Inputs)
	}
	if over.Concurrency != 0 {
		out.Concurrency = over.Concurrency
	}
	if over.FailOnInvalid {
		out.FailOnInvalid = true
	}
	if s := strings.TrimSpace(over.MetricsFile); s != "" {
		out.MetricsFile = s
	}
	if s := strings.TrimSpace(over.Logging.Level); s != "" {
		out.Logging.Level = s
	}
	if over.Batch.MaxLines != 0 {
		out.Batch.MaxLines = over.Batch.MaxLines
	}
	if over.Batch.MaxBytes != 0 {
		out.Batch.MaxBytes = over.Batch.MaxBytes
	}

	// 组件名（空不覆盖）
	mergeName(&out.Components.Reader, over.Components.Reader)
	mergeName(&out.Components.Splitter, over.Components.Splitter)
	mergeName(&out.Components.Batcher, over.Components.Batcher)
	mergeName(&out.Components.Decoder, over.Components.Decoder)
	mergeName(&out.Components.Assembler, over.Components.Assembler)
	mergeName(&out.Components.Writer, over.Components.Writer)

	// Options（完整替换对应键）
	mergeRaw(&out.Options.Reader, over.Options.Reader)
	mergeRaw(&out.Options.Splitter, over.Options.Splitter)
	mergeRaw(&out.Options.Batcher, over.Options.Batcher)
	mergeRaw(&out.Options.Decoder, over.Options.Decoder)
	mergeRaw(&out.Options.Assembler, over.Options.Assembler)
	mergeRaw(&out.Options.Writer, over.Options.Writer)
	return out
}

func mergeName(dst *string, over string) {
	if s := strings.TrimSpace(over); s != "" {
		*dst = s
	}
}

func mergeRaw(dst *json.RawMessage, over json.RawMessage) {
	if len(over) > 0 {
		*dst = cloneRaw(over)
	}
}

// EnvPrefix: 环境变量前缀。
const EnvPrefix = "SERAX_"

// EnvOverlay 从环境变量构建 Config 覆盖（仅解析有限键集合，其余忽略）。
// 支持：INPUTS, CONCURRENCY, FAIL_ON_INVALID, METRICS_FILE, LOG_LEVEL,
// BATCH_MAX_LINES, BATCH_MAX_BYTES, COMPONENTS_<COMP>, OPTIONS_<COMP>_JSON。
// SERAX_CONFIG_FILE / SERAX_CONFIG_JSON 选择配置来源，由调用方处理。
func EnvOverlay(environ []string) (Config, error) {
	var over Config
	for _, kv := range environ {
		key, val, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		nk := strings.TrimPrefix(key, EnvPrefix)
		val = strings.TrimSpace(val)
		if val == "" {
			continue
		}
		var err error
		switch nk {
		case "INPUTS":
			over.Inputs = splitComma(val)
		case "CONCURRENCY":
			over.Concurrency, err = strconv.Atoi(val)
		case "FAIL_ON_INVALID":
			over.FailOnInvalid, err = strconv.ParseBool(val)
		case "METRICS_FILE":
			over.MetricsFile = val
		case "LOG_LEVEL":
			over.Logging.Level = val
		case "BATCH_MAX_LINES":
			over.Batch.MaxLines, err = strconv.Atoi(val)
		case "BATCH_MAX_BYTES":
			over.Batch.MaxBytes, err = strconv.Atoi(val)
		case "COMPONENTS_READER":
			over.Components.Reader = val
		case "COMPONENTS_SPLITTER":
			over.Components.Splitter = val
		case "COMPONENTS_BATCHER":
			over.Components.Batcher = val
		case "COMPONENTS_DECODER":
			over.Components.Decoder = val
		case "COMPONENTS_ASSEMBLER":
			over.Components.Assembler = val
		case "COMPONENTS_WRITER":
			over.Components.Writer = val
		default:
			if rest, ok := strings.CutPrefix(nk, "OPTIONS_"); ok {
				if comp, ok := strings.CutSuffix(rest, "_JSON"); ok {
					err = setOptionJSON(&over.Options, comp, val)
				}
			}
		}
		if err != nil {
			return Config{}, fmt.Errorf("config: env %s: %w", key, err)
		}
	}
	return over, nil
}

func setOptionJSON(o *Options, comp, val string) error {
	if !json.Valid([]byte(val)) {
		return errors.New("invalid json")
	}
	raw := json.RawMessage(val)
	switch comp {
	case "READER":
		o.Reader = raw
	case "SPLITTER":
		o.Splitter = raw
	case "BATCHER":
		o.Batcher = raw
	case "DECODER":
		o.Decoder = raw
	case "ASSEMBLER":
		o.Assembler = raw
	case "WRITER":
		o.Writer = raw
	}
	return nil
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneRaw(in json.RawMessage) json.RawMessage {
	if len(in) == 0 {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}

func splitComma(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
