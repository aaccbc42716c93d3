package serax

import (
	"context"
	"fmt"
	"strings"

	"serax/pkg/contract"
	sx "serax/pkg/serax"
)

// BuiltinFinancial: 内置财务分析 Schema 名。
const BuiltinFinancial = "financial"

// Options 选择 Schema 来源与阈值。
// Schema 来源优先级：schema（内联）> schema_file > builtin；均为空时使用 financial。
type Options struct {
	Builtin    string     `json:"builtin" yaml:"builtin"`
	SchemaFile string     `json:"schema_file" yaml:"schema_file"`
	Schema     *SchemaDoc `json:"schema" yaml:"schema"`
	Policy     sx.Policy  `json:"policy" yaml:"policy"`
}

// Decoder 以 serax 引擎逐行解码批内记录。引擎只读，可被多个 worker 共享。
type Decoder struct {
	engine *sx.Engine
}

// New 按选项构造解码器；Schema 或规则非法时返回 ErrSchemaInvalid。
func New(opts *Options) (*Decoder, error) {
	if opts == nil {
		opts = &Options{}
	}
	doc, err := resolve(opts)
	if err != nil {
		return nil, err
	}
	schema, rules, err := doc.Build()
	if err != nil {
		return nil, err
	}
	eng, err := sx.NewEngine(schema, sx.WithRules(rules), sx.WithPolicy(opts.Policy))
	if err != nil {
		return nil, err
	}
	return &Decoder{engine: eng}, nil
}

func resolve(opts *Options) (*SchemaDoc, error) {
	switch {
	case opts.Schema != nil:
		return opts.Schema, nil
	case strings.TrimSpace(opts.SchemaFile) != "":
		return LoadSchemaFile(opts.SchemaFile)
	}
	switch b := strings.ToLower(strings.TrimSpace(opts.Builtin)); b {
	case "", BuiltinFinancial:
		return &SchemaDoc{SchemaSpec: sx.Financial().Spec()}, nil
	default:
		return nil, fmt.Errorf("unknown builtin schema %q: %w", opts.Builtin, sx.ErrSchemaInvalid)
	}
}

// Engine 返回底层引擎（CLI 直接解码使用）。
func (d *Decoder) Engine() *sx.Engine { return d.engine }

// Decode 逐条解码；畸形行体现在结果中而非错误。仅在 ctx 取消时返回错误。
func (d *Decoder) Decode(ctx context.Context, b contract.Batch) ([]contract.Result, error) {
	out := make([]contract.Result, 0, len(b.Records))
	for _, r := range b.Records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec := d.engine.Decode(r.Text)
		rec.LineNumber = r.LineNo
		out = append(out, contract.Result{FileID: b.FileID, Index: r.Index, Record: rec})
	}
	return out, nil
}

var _ contract.Decoder = (*Decoder)(nil)
