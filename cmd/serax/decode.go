package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"serax/internal/jsonx"
	decserax "serax/plugins/decoder/serax"
)

type decodeFlags struct {
	stdin         bool
	schemaFile    string
	builtin       string
	pretty        bool
	failOnInvalid bool
}

func newDecodeCmd() *cobra.Command {
	df := &decodeFlags{}
	cmd := &cobra.Command{
		Use:   "decode [lines...]",
		Short: "直接解码 SERAX 行并输出 JSON 记录",
		Long:  "每个参数视为一行；--stdin 时逐行读取标准输入（跳过空行）。默认每条记录输出一行 JSON。",
		RunE: func(cmd *cobra.Command, args []string) error {
			return decodeCmd(cmd, df, args)
		},
	}
	f := cmd.Flags()
	f.BoolVar(&df.stdin, "stdin", false, "从标准输入读取")
	f.StringVar(&df.schemaFile, "schema", "", "Schema 文件（YAML/JSON），缺省使用内置 Schema")
	f.StringVar(&df.builtin, "builtin", decserax.BuiltinFinancial, "内置 Schema 名")
	f.BoolVar(&df.pretty, "pretty", false, "缩进输出")
	f.BoolVar(&df.failOnInvalid, "fail-on-invalid", false, "存在无效记录时以退出码 2 结束")
	return cmd
}

func decodeCmd(cmd *cobra.Command, df *decodeFlags, args []string) error {
	if df.stdin == (len(args) > 0) {
		return exitf(exitConfig, "decode: 需要行参数或 --stdin（二选一）")
	}
	dec, err := decserax.New(&decserax.Options{Builtin: df.builtin, SchemaFile: df.schemaFile})
	if err != nil {
		return exitf(exitConfig, "decode: %w", err)
	}
	eng := dec.Engine()

	out := cmd.OutOrStdout()
	enc := jsonx.NewEncoder(out)
	invalid := 0
	emit := func(lineNo int, line string) error {
		rec := eng.Decode(line)
		rec.LineNumber = lineNo
		if !rec.Valid {
			invalid++
		}
		if !df.pretty {
			return enc.Encode(rec)
		}
		b, err := jsonx.MarshalIndent(rec, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "%s\n", b)
		return err
	}

	if df.stdin {
		err = scanLines(cmd.InOrStdin(), emit)
	} else {
		for i, a := range args {
			if err = emit(i+1, strings.TrimSpace(a)); err != nil {
				break
			}
		}
	}
	if err != nil {
		return exitf(exitRuntime, "decode: %w", err)
	}
	if df.failOnInvalid && invalid > 0 {
		return &exitError{code: exitInvalid}
	}
	return nil
}

// scanLines 逐行回调（行号 1-based，去除首尾空白，跳过空白行），与 lines 切分器一致。
func scanLines(r io.Reader, fn func(lineNo int, line string) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if err := fn(n, line); err != nil {
			return err
		}
	}
	return sc.Err()
}

