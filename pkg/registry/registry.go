package registry

import (
	"bytes"
	"encoding/json"
	"sort"

	"serax/pkg/contract"
	report "serax/plugins/assembler/report"
	table "serax/plugins/assembler/table"
	chunk "serax/plugins/batcher/chunk"
	dsx "serax/plugins/decoder/serax"
	rfs "serax/plugins/reader/filesystem"
	lines "serax/plugins/splitter/lines"
	wfs "serax/plugins/writer/filesystem"
	wstd "serax/plugins/writer/stdout"
)

// strictUnmarshal: DisallowUnknownFields 严格解码，拒绝未知字段。
func strictUnmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		// 保持零值（默认选项）
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// NewReader 工厂签名：接收原样 JSON Options。
type NewReader func(raw json.RawMessage) (contract.Reader, error)

// NewSplitter 工厂签名。
type NewSplitter func(raw json.RawMessage) (contract.Splitter, error)

// NewBatcher 工厂签名。
type NewBatcher func(raw json.RawMessage) (contract.Batcher, error)

// NewDecoder 工厂签名。
type NewDecoder func(raw json.RawMessage) (contract.Decoder, error)

// NewAssembler 工厂签名。
type NewAssembler func(raw json.RawMessage) (contract.Assembler, error)

// NewWriter 工厂签名。
type NewWriter func(raw json.RawMessage) (contract.Writer, error)

// Reader 工厂注册表（显式、零反射）。
var Reader = map[string]NewReader{
	// fs: 文件系统/STDIN Reader
	"fs": func(raw json.RawMessage) (contract.Reader, error) {
		var opts rfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return rfs.New(&opts), nil
	},
}

// Splitter 工厂注册表。
var Splitter = map[string]NewSplitter{
	// lines: 数据集行驱动（跳过空行与注释/分隔行）
	"lines": func(raw json.RawMessage) (contract.Splitter, error) {
		var opts lines.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return lines.New(&opts), nil
	},
}

// Batcher 工厂注册表。
var Batcher = map[string]NewBatcher{
	// chunk: 按行数/字节数切分连续批
	"chunk": func(raw json.RawMessage) (contract.Batcher, error) {
		var opts chunk.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return chunk.New(&opts), nil
	},
}

// Decoder 工厂注册表。
var Decoder = map[string]NewDecoder{
	// serax: 哨兵字符格式解码（builtin / schema_file / 内联 schema）
	"serax": func(raw json.RawMessage) (contract.Decoder, error) {
		var opts dsx.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return dsx.New(&opts)
	},
}

// Assembler 工厂注册表。
var Assembler = map[string]NewAssembler{
	// report: 人类可读 QA 报告 + 汇总统计
	"report": func(raw json.RawMessage) (contract.Assembler, error) {
		var opts report.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return report.New(&opts), nil
	},
	// csv: 每条记录一行的表格（机器可读）
	"csv": func(raw json.RawMessage) (contract.Assembler, error) {
		var opts table.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return table.New(&opts)
	},
}

// Writer 工厂注册表。
var Writer = map[string]NewWriter{
	// fs: 文件系统 Writer（原子替换、扁平化可配置）
	"fs": func(raw json.RawMessage) (contract.Writer, error) {
		var opts wfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return wfs.New(&opts)
	},
	// stdout: 标准输出，每个工件前输出标题行
	"stdout": func(raw json.RawMessage) (contract.Writer, error) {
		var opts wstd.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return wstd.New(&opts), nil
	},
}

// Names 返回注册表中的实现名（排序后）。
func Names[F any](m map[string]F) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
