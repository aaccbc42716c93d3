package report

import (
	"context"
	"fmt"
	"io"
	"strings"

	"serax/pkg/contract"
)

// Options 控制报告内容。
type Options struct {
	// OnlyInvalid: 仅输出无效记录的明细（汇总仍统计全部记录）。
	OnlyInvalid bool `json:"only_invalid" yaml:"only_invalid"`
	// HideFields: 不输出提取出的字段。
	HideFields bool `json:"hide_fields" yaml:"hide_fields"`
}

type assembler struct {
	onlyInvalid bool
	hideFields  bool
}

// New 创建 QA 报告装配器。
func New(opts *Options) contract.Assembler {
	a := &assembler{}
	if opts != nil {
		a.onlyInvalid = opts.OnlyInvalid
		a.hideFields = opts.HideFields
	}
	return a
}

func (a *assembler) Header(ctx context.Context, fileID contract.FileID) (io.Reader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return strings.NewReader(fmt.Sprintf("=== SERAX QUALITY ASSURANCE ANALYSIS ===\nFile: %s\n", fileID)), nil
}

// Assemble 逐条渲染记录明细；FileID 混入或 Index 非严格升序返回 ErrSeqInvalid。
func (a *assembler) Assemble(ctx context.Context, fileID contract.FileID, results []contract.Result) (io.Reader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for i, r := range results {
		if r.FileID != fileID {
			return nil, fmt.Errorf("%w: result for %q in %q", contract.ErrSeqInvalid, r.FileID, fileID)
		}
		if i > 0 && r.Index <= results[i-1].Index {
			return nil, fmt.Errorf("%w: index %d after %d", contract.ErrSeqInvalid, r.Index, results[i-1].Index)
		}
	}
	var b strings.Builder
	for _, r := range results {
		if a.onlyInvalid && r.Record.Valid {
			continue
		}
		a.writeRecord(&b, r)
	}
	return strings.NewReader(b.String()), nil
}

func (a *assembler) writeRecord(b *strings.Builder, r contract.Result) {
	rec := r.Record
	fmt.Fprintf(b, "\n--- RECORD %d (line %d) ---\n", r.Index+1, rec.LineNumber)
	fmt.Fprintf(b, "Raw: %s\n", rec.RawLine)
	typ := rec.RecordType
	if typ == "" {
		typ = "<unknown>"
	}
	fmt.Fprintf(b, "Type: %s\n", typ)
	fmt.Fprintf(b, "Valid: %t\n", rec.Valid)
	fmt.Fprintf(b, "Quality Score: %.1f%%\n", rec.QualityScore)
	if len(rec.ParsingErrors) > 0 {
		b.WriteString("PARSING ERRORS:\n")
		for _, e := range rec.ParsingErrors {
			fmt.Fprintf(b, "  [x] %s\n", e)
		}
	}
	if len(rec.ValidationErrors) > 0 {
		b.WriteString("VALIDATION ERRORS:\n")
		for _, f := range rec.ValidationErrors {
			fmt.Fprintf(b, "  [!] %s\n", f.Message)
		}
	}
	if rec.HallucinationDetected {
		fmt.Fprintf(b, "HALLUCINATION DETECTED: %.1f%% of fields hold another field's content\n", rec.HallucinationPercentage)
	}
	if rec.PartialRecovery {
		fmt.Fprintf(b, "PARTIAL RECOVERY: %d fields salvaged despite errors\n", len(rec.Fields))
	}
	if !a.hideFields && len(rec.Fields) > 0 {
		b.WriteString("EXTRACTED FIELDS:\n")
		for _, f := range rec.Fields {
			fmt.Fprintf(b, "  %s: %s\n", f.Name, f.Value)
		}
	}
}

func (a *assembler) Footer(ctx context.Context, fileID contract.FileID, sum contract.Summary) (io.Reader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var b strings.Builder
	b.WriteString("\nSUMMARY STATISTICS:\n")
	fmt.Fprintf(&b, "  Total Records: %d\n", sum.Total)
	fmt.Fprintf(&b, "  Valid Records: %d (%.1f%%)\n", sum.Valid, sum.ValidPercent())
	fmt.Fprintf(&b, "  Partial Recoveries: %d\n", sum.PartialRecoveries)
	fmt.Fprintf(&b, "  Hallucinations Detected: %d\n", sum.Hallucinations)
	fmt.Fprintf(&b, "  Average Quality Score: %.1f%%\n", sum.AverageQuality())
	return strings.NewReader(b.String()), nil
}

var _ contract.Assembler = (*assembler)(nil)
