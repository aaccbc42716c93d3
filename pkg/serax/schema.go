package serax

import (
	"errors"
	"fmt"
	"sort"
	"unicode/utf8"
)

// ErrSchemaInvalid: Schema 配置非法（终止符缺失/冲突、哨兵非单字符、名称为空等）。
var ErrSchemaInvalid = errors.New("schema invalid")

// Schema: 哨兵字符 → 语义名称的只读映射。
// 约定：
//   - 行首字符只在 recordTypes 中查找；
//   - 其余位置先查 fields，再查 recordTypes（后出现的记录类型字符同样开启字段）；
//   - terminator 永不作为字段起点。
//
// 构造后不可变，可被任意数量的 goroutine 并发读取。
type Schema struct {
	recordTypes map[rune]string
	fields      map[rune]string
	terminator  rune
}

// NewSchema 校验并构造 Schema（入参会被拷贝）。
func NewSchema(recordTypes, fields map[rune]string, terminator rune) (*Schema, error) {
	if terminator == 0 || terminator == utf8.RuneError {
		return nil, fmt.Errorf("terminator not set: %w", ErrSchemaInvalid)
	}
	if len(recordTypes) == 0 {
		return nil, fmt.Errorf("no record type sentinels: %w", ErrSchemaInvalid)
	}
	rt := make(map[rune]string, len(recordTypes))
	for r, name := range recordTypes {
		if err := checkEntry(r, name, terminator); err != nil {
			return nil, fmt.Errorf("record type %q: %w", r, err)
		}
		rt[r] = name
	}
	fs := make(map[rune]string, len(fields))
	for r, name := range fields {
		if err := checkEntry(r, name, terminator); err != nil {
			return nil, fmt.Errorf("field %q: %w", r, err)
		}
		fs[r] = name
	}
	return &Schema{recordTypes: rt, fields: fs, terminator: terminator}, nil
}

func checkEntry(r rune, name string, term rune) error {
	if r == 0 || r == utf8.RuneError {
		return ErrSchemaInvalid
	}
	if r == term {
		return fmt.Errorf("collides with terminator: %w", ErrSchemaInvalid)
	}
	if name == "" {
		return fmt.Errorf("empty name: %w", ErrSchemaInvalid)
	}
	return nil
}

// RecordType 按行首位置约定查找记录类型名。
func (s *Schema) RecordType(r rune) (string, bool) {
	name, ok := s.recordTypes[r]
	return name, ok
}

// Field 按字段位置约定查找字段名；终止符永远返回 false。
func (s *Schema) Field(r rune) (string, bool) {
	if r == s.terminator {
		return "", false
	}
	name, ok := s.fields[r]
	return name, ok
}

// Sentinel 按非行首位置约定查找字段名：fields 优先，其次 recordTypes；终止符永远返回 false。
func (s *Schema) Sentinel(r rune) (string, bool) {
	if name, ok := s.Field(r); ok {
		return name, true
	}
	if r == s.terminator {
		return "", false
	}
	name, ok := s.recordTypes[r]
	return name, ok
}

// Terminator 返回记录终止符。
func (s *Schema) Terminator() rune { return s.terminator }

// Spec 导出可序列化的描述（键按字符排序，输出稳定）。
func (s *Schema) Spec() SchemaSpec {
	return SchemaSpec{
		RecordTypes: runeMapToSpec(s.recordTypes),
		Fields:      runeMapToSpec(s.fields),
		Terminator:  string(s.terminator),
	}
}

// SchemaSpec: Schema 的文本描述形态（YAML/JSON 配置使用）。
// 每个键必须恰为一个 Unicode 字符。
type SchemaSpec struct {
	RecordTypes map[string]string `json:"record_types" yaml:"record_types"`
	Fields      map[string]string `json:"fields" yaml:"fields"`
	Terminator  string            `json:"terminator" yaml:"terminator"`
}

// Build 将文本描述转换为 Schema。
func (sp SchemaSpec) Build() (*Schema, error) {
	term, err := singleRune(sp.Terminator)
	if err != nil {
		return nil, fmt.Errorf("terminator %q: %w", sp.Terminator, err)
	}
	rt, err := specToRuneMap(sp.RecordTypes)
	if err != nil {
		return nil, fmt.Errorf("record_types: %w", err)
	}
	fs, err := specToRuneMap(sp.Fields)
	if err != nil {
		return nil, fmt.Errorf("fields: %w", err)
	}
	return NewSchema(rt, fs, term)
}

func singleRune(s string) (rune, error) {
	if utf8.RuneCountInString(s) != 1 {
		return 0, ErrSchemaInvalid
	}
	r, _ := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return 0, ErrSchemaInvalid
	}
	return r, nil
}

func specToRuneMap(in map[string]string) (map[rune]string, error) {
	out := make(map[rune]string, len(in))
	for k, v := range in {
		r, err := singleRune(k)
		if err != nil {
			return nil, fmt.Errorf("sentinel %q must be a single character: %w", k, err)
		}
		out[r] = v
	}
	return out, nil
}

func runeMapToSpec(in map[rune]string) map[string]string {
	keys := make([]rune, 0, len(in))
	for r := range in {
		keys = append(keys, r)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	out := make(map[string]string, len(in))
	for _, r := range keys {
		out[string(r)] = in[r]
	}
	return out
}

// 演示数据集所用的财务分析 Schema。
const (
	CompanyAnalysis = "CompanyAnalysis"
	AssetAnalysis   = "AssetAnalysis"
	RiskAssessment  = "RiskAssessment"

	FieldEntityName     = "entity_name"
	FieldFinancialValue = "financial_value"
	FieldTimePeriod     = "time_period"
	FieldAssessment     = "assessment"
	FieldCategory       = "category"
	FieldRating         = "rating"
	FieldAnalysis       = "analysis"

	FinancialTerminator = '⏹'
)

// Financial 返回内置的财务分析 Schema。
func Financial() *Schema {
	s, err := NewSchema(
		map[rune]string{
			'⟐': CompanyAnalysis,
			'⟑': AssetAnalysis,
			'⟔': RiskAssessment,
		},
		map[rune]string{
			'⊶': FieldEntityName,
			'⊷': FieldFinancialValue,
			'⊸': FieldTimePeriod,
			'⊹': FieldAssessment,
			'⊺': FieldCategory,
			'⊻': FieldRating,
			'⊽': FieldAnalysis,
		},
		FinancialTerminator,
	)
	if err != nil {
		panic(err)
	}
	return s
}
