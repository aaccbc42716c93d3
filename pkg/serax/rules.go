package serax

import (
	"fmt"
	"regexp"
)

// Rule: 单个 (记录类型, 字段) 的校验规则。
// Invalid 命中表示内容属于"别的字段"；Valid 全不命中仅是格式告警。
type Rule struct {
	Invalid  []*regexp.Regexp
	Valid    []*regexp.Regexp
	Expected string
}

// RuleTable: 记录类型 → 字段名 → Rule。只读静态数据。
type RuleTable map[string]map[string]Rule

// NewRule 编译模式（统一大小写不敏感）。模式非法时 panic，仅用于静态表。
func NewRule(expected string, invalid, valid []string) Rule {
	return Rule{Invalid: compileAll(invalid), Valid: compileAll(valid), Expected: expected}
}

// RuleSpec: Rule 的文本描述形态（配置文件使用）。
type RuleSpec struct {
	Expected string   `json:"expected" yaml:"expected"`
	Invalid  []string `json:"invalid" yaml:"invalid"`
	Valid    []string `json:"valid" yaml:"valid"`
}

// Build 编译模式；任一模式非法时返回 ErrSchemaInvalid。
func (rs RuleSpec) Build() (Rule, error) {
	r := Rule{Expected: rs.Expected}
	for _, p := range rs.Invalid {
		re, err := regexp.Compile(`(?i)` + p)
		if err != nil {
			return Rule{}, fmt.Errorf("invalid pattern %q: %v: %w", p, err, ErrSchemaInvalid)
		}
		r.Invalid = append(r.Invalid, re)
	}
	for _, p := range rs.Valid {
		re, err := regexp.Compile(`(?i)` + p)
		if err != nil {
			return Rule{}, fmt.Errorf("valid pattern %q: %v: %w", p, err, ErrSchemaInvalid)
		}
		r.Valid = append(r.Valid, re)
	}
	return r, nil
}

// BuildRuleTable 编译 记录类型 → 字段 → RuleSpec 的描述。
func BuildRuleTable(specs map[string]map[string]RuleSpec) (RuleTable, error) {
	out := make(RuleTable, len(specs))
	for rt, byField := range specs {
		m := make(map[string]Rule, len(byField))
		for field, rs := range byField {
			r, err := rs.Build()
			if err != nil {
				return nil, fmt.Errorf("rule %s.%s: %w", rt, field, err)
			}
			m[field] = r
		}
		out[rt] = m
	}
	return out, nil
}

func compileAll(pats []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(pats))
	for _, p := range pats {
		out = append(out, regexp.MustCompile(`(?i)`+p))
	}
	return out
}

// 模式文本属于外部契约，既有 Schema 的兼容性依赖它们，不可随意调整。
const (
	patNumericToken  = `^\d+\.?\d*[%$BMKbmk]*$`
	patNumericAmount = `^\d+\.?\d*[BMKbmk%]*$`
	patMoney         = `^\$?\d+\.?\d*[BMKbmk%]*$`
	patNameChars     = `^[A-Za-z\s&\.\-,]+$`
	patCompanyChars  = `^[A-Za-z\s&\.\-,Inc]+$`
	patLetters       = `^[A-Za-z\s]+$`
	patYear          = `^\d{4}$`
	patQuarter       = `^Q[1-4]-\d{4}$`
	patFiscalYear    = `^FY\d{4}$`
)

// DefaultRules 财务分析 Schema 族的规则表。
var DefaultRules = RuleTable{
	CompanyAnalysis: {
		FieldEntityName: NewRule("Company name",
			[]string{patNumericToken, `^Revenue$`, `^Financial`},
			[]string{patCompanyChars}),
		FieldFinancialValue: NewRule("Financial amount",
			[]string{patNameChars},
			[]string{patMoney}),
		FieldTimePeriod: NewRule("Time period",
			[]string{patLetters, patNumericAmount},
			[]string{patYear, patQuarter, patFiscalYear}),
	},
	AssetAnalysis: {
		FieldEntityName: NewRule("Asset name",
			[]string{patNumericToken},
			[]string{patNameChars}),
		FieldFinancialValue: NewRule("Asset value",
			[]string{patNameChars},
			[]string{patMoney}),
		FieldTimePeriod: NewRule("Time period or context",
			[]string{patNumericAmount},
			[]string{patYear, patQuarter, patFiscalYear, `^[A-Za-z\s]+Portfolio$`, `^[A-Za-z\s]+Infrastructure$`}),
	},
	RiskAssessment: {
		FieldEntityName: NewRule("Risk description",
			[]string{patNumericToken},
			[]string{`^[A-Za-z\s&\.\-,]+Risk$`, patNameChars}),
		FieldFinancialValue: NewRule("Risk level",
			[]string{patNumericAmount},
			[]string{`^(Low|Medium|High)$`, patLetters}),
		FieldTimePeriod: NewRule("Risk context",
			[]string{patNumericAmount},
			[]string{patNameChars}),
	},
}
