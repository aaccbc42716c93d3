package table

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"serax/pkg/contract"
)

// Options 控制表格输出。
type Options struct {
	// Delimiter: 单字符分隔符，默认 ","。
	Delimiter string `json:"delimiter" yaml:"delimiter"`
	// NoHeader: 不输出表头行。
	NoHeader bool `json:"no_header" yaml:"no_header"`
}

// Columns: 表头列。
var Columns = []string{
	"index", "line", "record_type", "valid", "quality_score",
	"hallucination_percentage", "partial_recovery", "parsing_errors", "validation_errors", "fields",
}

type assembler struct {
	comma    rune
	noHeader bool
}

// New 创建逐记录一行的表格装配器；分隔符非法时返回 ErrInvalidInput。
func New(opts *Options) (contract.Assembler, error) {
	a := &assembler{comma: ','}
	if opts == nil {
		return a, nil
	}
	a.noHeader = opts.NoHeader
	if d := opts.Delimiter; d != "" {
		r, size := utf8.DecodeRuneInString(d)
		if size != len(d) || r == '"' || r == '\r' || r == '\n' || r == utf8.RuneError {
			return nil, fmt.Errorf("%w: delimiter %q", contract.ErrInvalidInput, d)
		}
		a.comma = r
	}
	return a, nil
}

func (a *assembler) Header(ctx context.Context, _ contract.FileID) (io.Reader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if a.noHeader {
		return strings.NewReader(""), nil
	}
	return a.rows([][]string{Columns})
}

// Assemble 按 Index 严格升序逐条输出一行；FileID 混入或逆序返回 ErrSeqInvalid。
func (a *assembler) Assemble(ctx context.Context, fileID contract.FileID, results []contract.Result) (io.Reader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return strings.NewReader(""), nil
	}
	rows := make([][]string, 0, len(results))
	for i, r := range results {
		if r.FileID != fileID || (i > 0 && r.Index <= results[i-1].Index) {
			return nil, contract.ErrSeqInvalid
		}
		rows = append(rows, row(r))
	}
	return a.rows(rows)
}

// Footer 不输出内容（汇总由报告装配器负责）。
func (a *assembler) Footer(ctx context.Context, _ contract.FileID, _ contract.Summary) (io.Reader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return strings.NewReader(""), nil
}

func (a *assembler) rows(rows [][]string) (io.Reader, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = a.comma
	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	return &buf, nil
}

func row(r contract.Result) []string {
	rec := r.Record
	findings := make([]string, 0, len(rec.ValidationErrors))
	for _, f := range rec.ValidationErrors {
		findings = append(findings, f.Message)
	}
	fields := make([]string, 0, len(rec.Fields))
	for _, f := range rec.Fields {
		fields = append(fields, f.Name+"="+f.Value)
	}
	return []string{
		strconv.FormatInt(int64(r.Index), 10),
		strconv.Itoa(rec.LineNumber),
		rec.RecordType,
		strconv.FormatBool(rec.Valid),
		strconv.FormatFloat(rec.QualityScore, 'f', 2, 64),
		strconv.FormatFloat(rec.HallucinationPercentage, 'f', 2, 64),
		strconv.FormatBool(rec.PartialRecovery),
		strings.Join(rec.ParsingErrors, " | "),
		strings.Join(findings, " | "),
		strings.Join(fields, "; "),
	}
}

var _ contract.Assembler = (*assembler)(nil)
