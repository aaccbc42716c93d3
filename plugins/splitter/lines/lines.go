package lines

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"unicode/utf8"

	"serax/pkg/contract"
)

// Options 为数据行 Splitter 的可选配置。
type Options struct {
	// MaxLineBytes: 单行（裁剪后）最大字节数。0 表示不限制。
	MaxLineBytes int `json:"max_line_bytes" yaml:"max_line_bytes"`
	// AllowExts: 允许处理的扩展名（大小写不敏感，含点）。
	// nil 采用默认 [".serax", ".txt"]；显式空切片表示不限制。STDIN 总是接受。
	AllowExts []string `json:"allow_exts" yaml:"allow_exts"`
	// CommentPrefixes: 以这些前缀开头的行视为注释/分隔符并跳过。
	// nil 采用默认 ["#", "----"]；显式空切片表示不跳过任何非空行。
	CommentPrefixes []string `json:"comment_prefixes" yaml:"comment_prefixes"`
}

var (
	defaultExts     = []string{".serax", ".txt"}
	defaultComments = []string{"#", "----"}
)

// Splitter 将数据集文件按行拆分：每个非空、非注释行为一条 Record。
type Splitter struct {
	maxBytes int
	// 允许扩展名（小写），nil 表示不限制。
	allow    map[string]struct{}
	comments []string
}

// New 创建数据行 Splitter。
func New(opts *Options) *Splitter {
	if opts == nil {
		opts = &Options{}
	}
	s := &Splitter{maxBytes: opts.MaxLineBytes}
	exts := opts.AllowExts
	if exts == nil {
		exts = defaultExts
	}
	if len(exts) > 0 {
		s.allow = make(map[string]struct{}, len(exts))
		for _, e := range exts {
			if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
				s.allow[e] = struct{}{}
			}
		}
	}
	s.comments = opts.CommentPrefixes
	if s.comments == nil {
		s.comments = defaultComments
	}
	return s
}

// Split 读取全部行；行号为原始输入的 1-based 行号。
// 扩展名不在允许列表或为本工具产出的报告/边车时返回 ErrSkip。
func (s *Splitter) Split(ctx context.Context, fileID contract.FileID, r io.Reader) ([]contract.Record, error) {
	if id := string(fileID); strings.HasSuffix(id, contract.ReportSuffix) || strings.HasSuffix(id, contract.SidecarSuffix) {
		return nil, fmt.Errorf("%w: %s is a generated artifact", contract.ErrSkip, id)
	}
	if s.allow != nil && fileID != "stdin" {
		ext := strings.ToLower(path.Ext(string(fileID)))
		if _, ok := s.allow[ext]; !ok {
			return nil, fmt.Errorf("%w: extension %q not allowed", contract.ErrSkip, ext)
		}
	}
	br := bufio.NewReader(r)
	var (
		recs   []contract.Record
		idx    contract.Index
		lineNo int
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw, err := br.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		eof := err != nil
		if raw == "" && eof {
			break
		}
		lineNo++
		text := strings.TrimSpace(strings.TrimSuffix(strings.TrimSuffix(raw, "\n"), "\r"))
		if text != "" && !s.isComment(text) {
			// 非法字节替换为 U+FFFD，整行仍交给解码器
			if !utf8.ValidString(text) {
				text = strings.ToValidUTF8(text, string(utf8.RuneError))
			}
			if s.maxBytes > 0 && len(text) > s.maxBytes {
				return nil, fmt.Errorf("%w: line %d too large: %d > %d", contract.ErrInvalidInput, lineNo, len(text), s.maxBytes)
			}
			recs = append(recs, contract.Record{Index: idx, FileID: fileID, LineNo: lineNo, Text: text})
			idx++
		}
		if eof {
			break
		}
	}
	return recs, nil
}

func (s *Splitter) isComment(line string) bool {
	for _, p := range s.comments {
		if p != "" && strings.HasPrefix(line, p) {
			return true
		}
	}
	return false
}
