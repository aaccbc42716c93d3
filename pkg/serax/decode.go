package serax

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"
)

// ErrPolicyInvalid: 阈值超出 [0,100] 或期望字段数为负。
var ErrPolicyInvalid = errors.New("policy invalid")

// Policy: 质量评分与有效性判定的阈值。
// 未设置（nil / 0 字段数）时使用默认值；显式 0 按字面生效：
// HallucinationThreshold=0 表示任一语义错误即判幻觉，MinQuality=0 表示不设质量下限。
type Policy struct {
	// ExpectedFields: 该 Schema 族的名义字段数（0 取默认 7）。
	ExpectedFields int `json:"expected_fields" yaml:"expected_fields"`
	// HallucinationThreshold: 幻觉百分比严格大于该值即判定幻觉（nil 取默认 30）。
	HallucinationThreshold *float64 `json:"hallucination_threshold,omitempty" yaml:"hallucination_threshold"`
	// MinQuality: 质量分低于该值判为无效（nil 取默认 70）。
	MinQuality *float64 `json:"min_quality,omitempty" yaml:"min_quality"`
}

// Float 返回 v 的指针，便于构造 Policy。
func Float(v float64) *float64 { return &v }

// DefaultPolicy 返回默认阈值。
func DefaultPolicy() Policy {
	return Policy{ExpectedFields: 7, HallucinationThreshold: Float(30), MinQuality: Float(70)}
}

// thresholds: 解析后的生效阈值。
type thresholds struct {
	expected      int
	hallucination float64
	minQuality    float64
}

func (p Policy) resolve() (thresholds, error) {
	t := thresholds{expected: 7, hallucination: 30, minQuality: 70}
	if p.ExpectedFields < 0 {
		return t, fmt.Errorf("expected_fields %d: %w", p.ExpectedFields, ErrPolicyInvalid)
	}
	if p.ExpectedFields > 0 {
		t.expected = p.ExpectedFields
	}
	if v := p.HallucinationThreshold; v != nil {
		if *v < 0 || *v > 100 || math.IsNaN(*v) {
			return t, fmt.Errorf("hallucination_threshold %v: %w", *v, ErrPolicyInvalid)
		}
		t.hallucination = *v
	}
	if v := p.MinQuality; v != nil {
		if *v < 0 || *v > 100 || math.IsNaN(*v) {
			return t, fmt.Errorf("min_quality %v: %w", *v, ErrPolicyInvalid)
		}
		t.minQuality = *v
	}
	return t, nil
}

func (t thresholds) policy() Policy {
	return Policy{ExpectedFields: t.expected, HallucinationThreshold: Float(t.hallucination), MinQuality: Float(t.minQuality)}
}

// Option 配置 Engine。
type Option func(*Engine)

// WithRules 替换规则表（nil 保持 DefaultRules）。
func WithRules(rules RuleTable) Option {
	return func(e *Engine) {
		if rules != nil {
			e.validator = NewValidator(rules)
		}
	}
}

// WithPolicy 覆盖阈值；非法阈值由 NewEngine 返回 ErrPolicyInvalid。
func WithPolicy(p Policy) Option {
	return func(e *Engine) { e.pending = p }
}

// Engine: 绑定 Schema/规则表/阈值的解码引擎。
// 构造后只读，Decode 可并发调用，无共享可变状态。
type Engine struct {
	schema    *Schema
	validator *Validator
	policy    thresholds
	pending   Policy
}

// NewEngine 构造解码引擎；schema 为 nil 视为配置错误。
func NewEngine(schema *Schema, opts ...Option) (*Engine, error) {
	if schema == nil {
		return nil, fmt.Errorf("nil schema: %w", ErrSchemaInvalid)
	}
	e := &Engine{schema: schema, validator: NewValidator(nil)}
	for _, o := range opts {
		o(e)
	}
	t, err := e.pending.resolve()
	if err != nil {
		return nil, err
	}
	e.policy = t
	return e, nil
}

// Schema 返回引擎绑定的 Schema。
func (e *Engine) Schema() *Schema { return e.schema }

// Validator 返回引擎使用的字段校验器。
func (e *Engine) Validator() *Validator { return e.validator }

// Policy 返回生效阈值。
func (e *Engine) Policy() Policy { return e.policy.policy() }

// Decode 使用默认规则与阈值解码单行。
func Decode(line string, schema *Schema) Record {
	e, err := NewEngine(schema)
	if err != nil {
		return Record{RawLine: line, ParsingErrors: []string{err.Error()}}
	}
	return e.Decode(line)
}

// Decode 解码单行。任何畸形输入都不会返回错误：
// 问题全部体现在结果的错误列表与 Valid 判定中，且已解析出的字段不会丢弃。
func (e *Engine) Decode(line string) Record {
	rec := Record{RawLine: line}
	term := e.schema.Terminator()

	if !strings.HasSuffix(line, string(term)) {
		rec.ParsingErrors = append(rec.ParsingErrors, fmt.Sprintf("CRITICAL: Missing terminator %c", term))
		rec.PartialRecovery = true
	}

	// 未知记录类型不可恢复：即使同时缺少终止符（PartialRecovery=true）也判无效。
	unknownType := false
	rest := ""
	if line != "" {
		first, size := utf8.DecodeRuneInString(line)
		if name, ok := e.schema.RecordType(first); ok {
			rec.RecordType = name
		} else {
			rec.ParsingErrors = append(rec.ParsingErrors, fmt.Sprintf("ERROR: Unknown record type: %c", first))
			unknownType = true
		}
		rest = line[size:]
	}

	var parsed int
	rec.Fields, parsed = e.tokenize(rest)

	rec.ValidationErrors = e.validateFields(rec.RecordType, rec.Fields)

	parsingSuccess := math.Min(100, float64(parsed)*100/float64(e.policy.expected))
	pct, issues := e.validator.Detect(rec.RecordType, rec.Fields)
	rec.HallucinationPercentage = pct
	rec.HallucinationIssues = issues
	if pct > e.policy.hallucination {
		rec.HallucinationDetected = true
		rec.QualityScore = math.Max(0, parsingSuccess-pct)
	} else {
		rec.QualityScore = parsingSuccess
	}

	switch {
	case unknownType, len(rec.ParsingErrors) > 0 && !rec.PartialRecovery:
		rec.Valid = false
	case rec.HallucinationDetected:
		rec.Valid = false
	case rec.HasSemanticError():
		rec.Valid = false
	case rec.QualityScore < e.policy.minQuality:
		rec.Valid = false
	default:
		rec.Valid = true
	}
	return rec
}

// tokenize 扫描记录类型之后的字符：
//   - 哨兵（字段或记录类型）：提交当前字段（若有），打开新字段；
//   - 终止符：提交当前字段并停止，忽略其后的字符；
//   - 其他：追加到当前缓冲。
//
// 行尾仍有未提交字段时（缺少终止符）按截断恢复提交。
// 同名字段重复出现时保留首次位置、以最后一次的值为准；parsed 统计每次提交。
func (e *Engine) tokenize(s string) (Fields, int) {
	var (
		fields  Fields
		pos     = map[string]int{}
		parsed  int
		current string
		open    bool
		buf     strings.Builder
	)
	commit := func() {
		if !open {
			return
		}
		v := strings.TrimSpace(buf.String())
		if i, ok := pos[current]; ok {
			fields[i].Value = v
		} else {
			pos[current] = len(fields)
			fields = append(fields, Field{Name: current, Value: v})
		}
		parsed++
		open = false
		buf.Reset()
	}

	term := e.schema.Terminator()
	for _, r := range s {
		if r == term {
			commit()
			return fields, parsed
		}
		if name, ok := e.schema.Sentinel(r); ok {
			commit()
			current, open = name, true
			continue
		}
		if open {
			buf.WriteRune(r)
		}
	}
	commit()
	return fields, parsed
}

// validateFields 逐字段校验并按首次出现顺序去重。
func (e *Engine) validateFields(recordType string, fields Fields) []Finding {
	var out []Finding
	seen := make(map[string]struct{})
	for _, f := range fields {
		for _, fd := range e.validator.Validate(f.Name, f.Value, recordType) {
			if _, dup := seen[fd.Message]; dup {
				continue
			}
			seen[fd.Message] = struct{}{}
			out = append(out, fd)
		}
	}
	return out
}
