package serax

import (
	"fmt"
	"regexp"
)

// Kind: 校验发现的分级。
type Kind int

const (
	// SemanticError: 内容看起来属于另一个字段（强信号，计入幻觉检测）。
	SemanticError Kind = iota + 1
	// FormatWarning: 内容不符合任何已知形态（弱信号）。
	FormatWarning
)

func (k Kind) String() string {
	switch k {
	case SemanticError:
		return "semantic_error"
	case FormatWarning:
		return "format_warning"
	default:
		return "unknown"
	}
}

// MarshalText 使 Kind 在 JSON/YAML 中以名称呈现。
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText 解析 MarshalText 的输出。
func (k *Kind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "semantic_error":
		*k = SemanticError
	case "format_warning":
		*k = FormatWarning
	default:
		return fmt.Errorf("unknown finding kind %q", b)
	}
	return nil
}

// Finding: 单条校验发现；Message 为对外文本（去重依据）。
type Finding struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// Validator 按记录类型与字段名查表校验字段内容。
// 只读；并发安全（regexp.Regexp 可并发使用）。
type Validator struct {
	rules RuleTable
}

// NewValidator 以给定规则表构造；nil 使用 DefaultRules。
func NewValidator(rules RuleTable) *Validator {
	if rules == nil {
		rules = DefaultRules
	}
	return &Validator{rules: rules}
}

// Validate 返回零或一条 Finding：
//  1. 任一 invalid 模式命中 → SemanticError（不再检查 valid 模式）；
//  2. 否则 valid 模式全不命中 → FormatWarning；
//  3. 否则无发现。
//
// 未知记录类型或未配置的字段不做校验。
func (v *Validator) Validate(field, content, recordType string) []Finding {
	byField, ok := v.rules[recordType]
	if !ok {
		return nil
	}
	rule, ok := byField[field]
	if !ok {
		return nil
	}
	if anyMatch(rule.Invalid, content) {
		return []Finding{{
			Kind:    SemanticError,
			Message: fmt.Sprintf("SEMANTIC ERROR: '%s' in %s field contains wrong data type for %s", content, field, recordType),
		}}
	}
	if !anyMatch(rule.Valid, content) {
		return []Finding{{
			Kind:    FormatWarning,
			Message: fmt.Sprintf("FORMAT WARNING: '%s' in %s doesn't match expected pattern for %s", content, field, rule.Expected),
		}}
	}
	return nil
}

func anyMatch(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
