package contract

import "serax/pkg/serax"

// Summary: 解码结果汇总统计。零值可用；非并发安全，由单一汇总方持有。
type Summary struct {
	Files             int     `json:"files"`
	Total             int     `json:"total"`
	Valid             int     `json:"valid"`
	PartialRecoveries int     `json:"partial_recoveries"`
	Hallucinations    int     `json:"hallucinations"`
	QualitySum        float64 `json:"quality_sum"`
}

// Add 计入一条解码结果。
func (s *Summary) Add(r serax.Record) {
	s.Total++
	if r.Valid {
		s.Valid++
	}
	if r.PartialRecovery {
		s.PartialRecoveries++
	}
	if r.HallucinationDetected {
		s.Hallucinations++
	}
	s.QualitySum += r.QualityScore
}

// Merge 合并另一份汇总（含文件数）。
func (s *Summary) Merge(o Summary) {
	s.Files += o.Files
	s.Total += o.Total
	s.Valid += o.Valid
	s.PartialRecoveries += o.PartialRecoveries
	s.Hallucinations += o.Hallucinations
	s.QualitySum += o.QualitySum
}

// Invalid 返回无效记录数。
func (s Summary) Invalid() int { return s.Total - s.Valid }

// ValidPercent 返回有效记录占比（0..100）；无记录时为 0。
func (s Summary) ValidPercent() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Valid) * 100 / float64(s.Total)
}

// AverageQuality 返回平均质量分；无记录时为 0。
func (s Summary) AverageQuality() float64 {
	if s.Total == 0 {
		return 0
	}
	return s.QualitySum / float64(s.Total)
}
