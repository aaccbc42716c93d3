// Package jsonx 为解码结果与 JSONL 边车提供 JSON 编码。
// amd64/arm64 使用 sonic，其他架构退回 encoding/json；两者均不转义 HTML 字符。
package jsonx

import (
	"bytes"
	stdjson "encoding/json"
	"io"
	"runtime"

	"github.com/bytedance/sonic"
)

// Encoder 逐值编码，每个值后追加换行（JSONL）。
type Encoder interface {
	Encode(v any) error
}

var (
	// Marshal 编码为紧凑 JSON。
	Marshal func(v any) ([]byte, error)
	// MarshalIndent 编码为缩进 JSON（CLI 输出）。
	MarshalIndent func(v any, prefix, indent string) ([]byte, error)
	// Unmarshal 解码 JSON。
	Unmarshal func(data []byte, v any) error
	// NewEncoder 构造写向 w 的编码器。
	NewEncoder func(w io.Writer) Encoder

	usingSonic bool
)

func init() {
	if runtime.GOARCH == "amd64" || runtime.GOARCH == "arm64" {
		api := sonic.ConfigDefault
		Marshal = api.Marshal
		MarshalIndent = api.MarshalIndent
		Unmarshal = api.Unmarshal
		NewEncoder = func(w io.Writer) Encoder { return api.NewEncoder(w) }
		usingSonic = true
		return
	}
	Marshal = stdMarshal
	MarshalIndent = stdMarshalIndent
	Unmarshal = stdjson.Unmarshal
	NewEncoder = func(w io.Writer) Encoder {
		enc := stdjson.NewEncoder(w)
		enc.SetEscapeHTML(false)
		return enc
	}
}

func stdMarshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := stdjson.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func stdMarshalIndent(v any, prefix, indent string) ([]byte, error) {
	b, err := stdMarshal(v)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := stdjson.Indent(&out, b, prefix, indent); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// IsUsingSonic 报告当前是否使用 sonic。
func IsUsingSonic() bool { return usingSonic }
