package serax

// Field: 已解码字段（名称 + 去首尾空白后的文本）。
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Fields: 有序字段集合；顺序为字段哨兵在行内首次出现的顺序，名称唯一。
type Fields []Field

// Get 按名称取值。
func (fs Fields) Get(name string) (string, bool) {
	for _, f := range fs {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// Names 返回有序字段名。
func (fs Fields) Names() []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.Name
	}
	return out
}

// Record: 单行解码结果。一次性构造并返回，之后不再修改。
type Record struct {
	// RecordType 为空表示缺失（空行或未知记录类型）。
	RecordType       string    `json:"record_type,omitempty"`
	Fields           Fields    `json:"fields"`
	ParsingErrors    []string  `json:"parsing_errors"`
	ValidationErrors []Finding `json:"validation_errors"`
	QualityScore     float64   `json:"quality_score"`
	// HallucinationPercentage: 含语义错误的字段占比（0..100）。
	HallucinationPercentage float64  `json:"hallucination_percentage"`
	HallucinationIssues     []string `json:"hallucination_issues,omitempty"`
	HallucinationDetected   bool     `json:"hallucination_detected"`
	PartialRecovery         bool     `json:"partial_recovery"`
	Valid                   bool     `json:"valid"`
	RawLine                 string   `json:"raw_line"`
	LineNumber              int      `json:"line_number,omitempty"`
}

// HasSemanticError 报告 ValidationErrors 中是否存在 SemanticError。
func (r *Record) HasSemanticError() bool {
	for _, f := range r.ValidationErrors {
		if f.Kind == SemanticError {
			return true
		}
	}
	return false
}
