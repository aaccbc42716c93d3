package serax

// Detect 统计含 SemanticError 的字段占比（0..100），并返回这些发现的文本。
// 字段为空时返回 (0, nil)。
//
// 该比例刻画"有多少槽位装着别的字段的内容"，是字段整体错位（幻觉）
// 与普通格式噪声的分界：FormatWarning 不计入。
func (v *Validator) Detect(recordType string, fields Fields) (float64, []string) {
	if len(fields) == 0 {
		return 0, nil
	}
	hits := 0
	var issues []string
	for _, f := range fields {
		semantic := false
		for _, fd := range v.Validate(f.Name, f.Value, recordType) {
			if fd.Kind == SemanticError {
				semantic = true
				issues = append(issues, fd.Message)
			}
		}
		if semantic {
			hits++
		}
	}
	return float64(hits) * 100 / float64(len(fields)), issues
}
