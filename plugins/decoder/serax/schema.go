package serax

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	sx "serax/pkg/serax"
)

// SchemaDoc: Schema 文件（YAML 或 JSON）的内容。
// rules 为空时使用内置财务规则表（按记录类型与字段名匹配）。
//
//	record_types: {"⟐": CompanyAnalysis}
//	fields:       {"⊶": entity_name}
//	terminator:   "⏹"
//	rules:
//	  CompanyAnalysis:
//	    entity_name: {expected: Company name, invalid: ['^\d+$'], valid: ['^[A-Za-z ]+$']}
type SchemaDoc struct {
	sx.SchemaSpec `yaml:",inline"`
	Rules         map[string]map[string]sx.RuleSpec `json:"rules,omitempty" yaml:"rules,omitempty"`
}

// Build 构造 Schema 与规则表（规则表可能为 nil）。
func (d *SchemaDoc) Build() (*sx.Schema, sx.RuleTable, error) {
	schema, err := d.SchemaSpec.Build()
	if err != nil {
		return nil, nil, err
	}
	if len(d.Rules) == 0 {
		return schema, nil, nil
	}
	rules, err := sx.BuildRuleTable(d.Rules)
	if err != nil {
		return nil, nil, err
	}
	return schema, rules, nil
}

// LoadSchemaFile 读取 Schema 文件；未知键视为错误。
func LoadSchemaFile(path string) (*SchemaDoc, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc, err := ParseSchema(b)
	if err != nil {
		return nil, fmt.Errorf("schema file %s: %w", path, err)
	}
	return doc, nil
}

// ParseSchema 解析 YAML/JSON 文本（JSON 为 YAML 子集）。
func ParseSchema(b []byte) (*SchemaDoc, error) {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	var doc SchemaDoc
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty schema: %w", sx.ErrSchemaInvalid)
		}
		return nil, fmt.Errorf("%v: %w", err, sx.ErrSchemaInvalid)
	}
	return &doc, nil
}
