package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfgpkg "serax/internal/config"
	"serax/internal/diag"
	"serax/internal/jsonx"
	"serax/internal/pipeline"
	"serax/pkg/contract"
	sx "serax/pkg/serax"
)

const demoData = "../../testdata/files/financial.serax"

// workspace 切换到临时目录并放入演示数据 in/financial.serax。
func workspace(t *testing.T) string {
	t.Helper()
	b, err := os.ReadFile(demoData)
	require.NoError(t, err)
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.MkdirAll("in", 0o755))
	require.NoError(t, os.WriteFile(filepath.Join("in", "financial.serax"), b, 0o644))
	return dir
}

func run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var out, errb bytes.Buffer
	code := execute(context.Background(), append([]string{"--status=false"}, args...), &out, &errb)
	return code, out.String(), errb.String()
}

func TestRunWritesReportAndSidecar(t *testing.T) {
	workspace(t)
	for _, args := range [][]string{
		{"--output-dir", "out", "in"},
		{"run", "--output-dir", "out", "in"},
	} {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			require.NoError(t, os.RemoveAll("out"))
			code, _, stderr := run(t, args...)
			require.Equal(t, exitOK, code, stderr)
			assert.Contains(t, stderr, "汇总: 文件 1 | 记录 5 | 有效 4 (80.0%)")
			assert.Contains(t, stderr, "平均质量 88.6%")

			report, err := os.ReadFile(filepath.Join("out", "financial.serax"+contract.ReportSuffix))
			require.NoError(t, err)
			assert.Contains(t, string(report), "=== SERAX QUALITY ASSURANCE ANALYSIS ===")
			assert.Contains(t, string(report), "Valid Records: 4 (80.0%)")

			f, err := os.Open(filepath.Join("out", "financial.serax"+contract.SidecarSuffix))
			require.NoError(t, err)
			defer f.Close()
			var lines []sx.Record
			sc := bufio.NewScanner(f)
			for sc.Scan() {
				var rec sx.Record
				require.NoError(t, jsonx.Unmarshal(sc.Bytes(), &rec))
				lines = append(lines, rec)
			}
			require.Len(t, lines, 5)
			assert.Equal(t, 2, lines[0].LineNumber)
			assert.False(t, lines[1].Valid)
			assert.True(t, lines[1].PartialRecovery)
		})
	}
}

func TestRunFailOnInvalid(t *testing.T) {
	workspace(t)
	code, _, stderr := run(t, "--output-dir", "out", "--fail-on-invalid", "in")
	assert.Equal(t, exitInvalid, code)
	assert.Contains(t, stderr, "存在无效记录: 1/5")

	t.Setenv("SERAX_FAIL_ON_INVALID", "true")
	code, _, _ = run(t, "--output-dir", "out", "in")
	assert.Equal(t, exitInvalid, code)
}

func TestRunConfigFile(t *testing.T) {
	workspace(t)
	cfg := "inputs: [in]\nconcurrency: 2\noptions:\n  writer:\n    output_dir: qa\n    sidecar: false\n"
	require.NoError(t, os.WriteFile("config.yaml", []byte(cfg), 0o644))

	// 缺省读取 ./config.yaml
	code, _, stderr := run(t)
	require.Equal(t, exitOK, code, stderr)
	assert.FileExists(t, filepath.Join("qa", "financial.serax"+contract.ReportSuffix))
	assert.NoFileExists(t, filepath.Join("qa", "financial.serax"+contract.SidecarSuffix))

	// SERAX_CONFIG_JSON 优先于文件
	t.Setenv("SERAX_CONFIG_JSON", `{"inputs":["in"],"options":{"writer":{"output_dir":"qa2"}}}`)
	code, _, stderr = run(t)
	require.Equal(t, exitOK, code, stderr)
	assert.FileExists(t, filepath.Join("qa2", "financial.serax"+contract.SidecarSuffix))
}

func TestRunConfigErrors(t *testing.T) {
	workspace(t)
	require.NoError(t, os.WriteFile("bad.yaml", []byte("inputs: [in]\nmax_retries: 3\n"), 0o644))
	require.NoError(t, os.WriteFile("notdir", []byte("x"), 0o644))

	cases := []struct {
		name string
		args []string
		want string
	}{
		{"未知字段", []string{"--config", "bad.yaml"}, "配置解析失败"},
		{"配置不存在", []string{"--config", "missing.yaml"}, "配置解析失败"},
		{"并发非法", []string{"--output-dir", "out", "--concurrency=-1", "in"}, "concurrency"},
		{"STDIN 混用", []string{"--output-dir", "out", "-", "in"}, "'-'"},
		{"无输入", []string{"--output-dir", "out"}, "inputs"},
		{"未注册 writer", []string{"--writer", "s3", "in"}, `writer "s3"`},
		{"输出目录是文件", []string{"--output-dir", "notdir", "in"}, "输出目录不可写"},
		{"未知旗标", []string{"--max-retries", "3"}, "--help"},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := run(t, tt.args...)
			assert.Equal(t, exitConfig, code)
			assert.Contains(t, stderr, tt.want)
		})
	}
}

func TestRunPipelineError(t *testing.T) {
	workspace(t)
	old := pipelineRun
	t.Cleanup(func() { pipelineRun = old })

	pipelineRun = func(context.Context, pipeline.Components, pipeline.Settings, *diag.Logger) (contract.Summary, error) {
		return contract.Summary{}, errors.New("boom")
	}
	code, _, stderr := run(t, "--output-dir", "out", "in")
	assert.Equal(t, exitRuntime, code)
	assert.Contains(t, stderr, "运行失败: boom")

	// 取消不输出错误信息
	pipelineRun = func(context.Context, pipeline.Components, pipeline.Settings, *diag.Logger) (contract.Summary, error) {
		return contract.Summary{}, context.Canceled
	}
	code, _, stderr = run(t, "--output-dir", "out", "in")
	assert.Equal(t, exitRuntime, code)
	assert.NotContains(t, stderr, "运行失败")
}

func TestRunMetricsFile(t *testing.T) {
	workspace(t)
	code, _, stderr := run(t, "--output-dir", "out", "--metrics-file", "serax.prom", "in")
	require.Equal(t, exitOK, code, stderr)
	b, err := os.ReadFile("serax.prom")
	require.NoError(t, err)
	assert.Contains(t, string(b), "serax_records_total")
	assert.Contains(t, string(b), "serax_op_total")
}

func TestDecodeArgs(t *testing.T) {
	workspace(t)
	walmart := "⟐⊶Walmart Inc⊷574.8B⊸FY2024⊹Strong Performance⊺Retail⊻Excellent⊽Market leadership in discount retail⏹"
	tesla := "⟐⊶Revenue⊷Tesla⊸Automotive⊹96.8B⊺Q4-2023⊻Bullish⊽Excellent"

	code, stdout, stderr := run(t, "decode", walmart, tesla)
	require.Equal(t, exitOK, code, stderr)
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 2)

	var rec sx.Record
	require.NoError(t, jsonx.Unmarshal([]byte(lines[0]), &rec))
	assert.True(t, rec.Valid)
	assert.Equal(t, sx.CompanyAnalysis, rec.RecordType)
	assert.Equal(t, 1, rec.LineNumber)
	assert.Equal(t, 100.0, rec.QualityScore)

	require.NoError(t, jsonx.Unmarshal([]byte(lines[1]), &rec))
	assert.False(t, rec.Valid)
	assert.True(t, rec.HallucinationDetected)

	code, _, _ = run(t, "decode", "--fail-on-invalid", tesla)
	assert.Equal(t, exitInvalid, code)

	code, stdout, _ = run(t, "decode", "--pretty", walmart)
	require.Equal(t, exitOK, code)
	assert.Contains(t, stdout, "\n  \"valid\": true")
}

func TestDecodeStdin(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetIn(strings.NewReader("\n⟔⊶Supply Chain Risk⊷Medium⏹  \r\n\n\t⟐⊶Apple Inc⏹ \n"))
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"decode", "--stdin"})
	require.NoError(t, root.ExecuteContext(context.Background()))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	var rec sx.Record
	require.NoError(t, jsonx.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, 2, rec.LineNumber)
	assert.Equal(t, sx.RiskAssessment, rec.RecordType)
	// 终止符后的空白不算缺失终止符
	assert.Empty(t, rec.ParsingErrors)
	assert.False(t, rec.PartialRecovery)
	require.NoError(t, jsonx.Unmarshal([]byte(lines[1]), &rec))
	assert.Equal(t, 4, rec.LineNumber)
	assert.Equal(t, sx.CompanyAnalysis, rec.RecordType)
	assert.Empty(t, rec.ParsingErrors)
}

func TestDecodeUsageErrors(t *testing.T) {
	workspace(t)
	code, _, _ := run(t, "decode")
	assert.Equal(t, exitConfig, code)
	code, _, _ = run(t, "decode", "--stdin", "x")
	assert.Equal(t, exitConfig, code)
	code, _, stderr := run(t, "decode", "--builtin", "medical", "x")
	assert.Equal(t, exitConfig, code)
	assert.Contains(t, stderr, "medical")
}

func TestDecodeSchemaFile(t *testing.T) {
	workspace(t)
	schema := "record_types:\n  T: Trade\nfields:\n  p: price\nterminator: \".\"\n" +
		"rules:\n  Trade:\n    price:\n      expected: Price\n      invalid: ['^[A-Za-z]+$']\n      valid: ['^\\d+$']\n"
	require.NoError(t, os.WriteFile("trade.yaml", []byte(schema), 0o644))

	code, stdout, stderr := run(t, "decode", "--schema", "trade.yaml", "Tp12.", "TpACME.")
	require.Equal(t, exitOK, code, stderr)
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 2)
	var rec sx.Record
	require.NoError(t, jsonx.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "Trade", rec.RecordType)
	assert.Equal(t, sx.Fields{{Name: "price", Value: "12"}}, rec.Fields)
	require.NoError(t, jsonx.Unmarshal([]byte(lines[1]), &rec))
	assert.True(t, rec.HasSemanticError())
}

func TestInitConfig(t *testing.T) {
	dir := workspace(t)
	code, _, stderr := run(t, "init-config", "cfg")
	require.Equal(t, exitOK, code, stderr)
	assert.FileExists(t, filepath.Join(dir, "cfg", "config.yaml"))
	assert.FileExists(t, filepath.Join(dir, "cfg", ".env"))

	cfg, err := cfgpkg.Load(filepath.Join("cfg", "config.yaml"), nil)
	require.NoError(t, err)
	assert.Equal(t, cfgpkg.DefaultTemplateConfig(), cfg)

	// 不覆盖
	code, _, stderr = run(t, "init-config", "cfg")
	assert.Equal(t, exitConfig, code)
	assert.Contains(t, stderr, "生成默认配置失败")

	code, stdout, _ := run(t, "init-config", "-")
	require.Equal(t, exitOK, code)
	assert.Equal(t, cfgpkg.TemplateYAML, stdout)
}

func TestParseDotEnvLine(t *testing.T) {
	cases := []struct {
		in       string
		key, val string
		ok       bool
	}{
		{"", "", "", false},
		{"# comment", "", "", false},
		{"NOEQ", "", "", false},
		{"=x", "", "", false},
		{"A=1", "A", "1", true},
		{"export B = two ", "B", "two", true},
		{`C="a\nb"`, "C", "a\nb", true},
		{`D='a\nb'`, "D", `a\nb`, true},
		{`E="unbalanced'`, "E", `"unbalanced'`, true},
		{"F=x=y", "F", "x=y", true},
	}
	for _, tt := range cases {
		t.Run(tt.in, func(t *testing.T) {
			k, v, ok := parseDotEnvLine(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.key, k)
			assert.Equal(t, tt.val, v)
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(p, []byte("SERAX_TEST_NEW=fresh\nSERAX_TEST_KEEP=file\n"), 0o644))
	t.Setenv("SERAX_TEST_KEEP", "env")
	t.Setenv("SERAX_TEST_NEW", "")
	require.NoError(t, os.Unsetenv("SERAX_TEST_NEW"))

	require.NoError(t, loadDotEnv(p))
	assert.Equal(t, "fresh", os.Getenv("SERAX_TEST_NEW"))
	assert.Equal(t, "env", os.Getenv("SERAX_TEST_KEEP"))
	assert.NoError(t, loadDotEnv(filepath.Join(dir, "missing")))
}

func TestPreflight(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	with := func(writer, opts string) cfgpkg.Config {
		c := cfgpkg.Defaults()
		c.Components.Writer = writer
		c.Options.Writer = []byte(opts)
		return c
	}
	assert.NoError(t, preflightCheckOutputDir(with("fs", `{"output_dir":"`+filepath.ToSlash(dir)+`"}`)))
	assert.NoError(t, preflightCheckOutputDir(with("fs", `{"output_dir":"`+filepath.ToSlash(filepath.Join(dir, "a", "b"))+`"}`)))
	assert.Error(t, preflightCheckOutputDir(with("fs", `{"output_dir":"`+filepath.ToSlash(file)+`"}`)))
	assert.Error(t, preflightCheckOutputDir(with("fs", `{"output_dir":"`+filepath.ToSlash(filepath.Join(file, "sub"))+`"}`)))
	// 非 fs writer 不检查
	assert.NoError(t, preflightCheckOutputDir(with("stdout", `{"output_dir":"`+filepath.ToSlash(file)+`"}`)))
}

func TestSetOutputDir(t *testing.T) {
	b, err := setOutputDir([]byte(`{"output_dir":"a","flat":false}`), "b")
	require.NoError(t, err)
	assert.JSONEq(t, `{"output_dir":"b","flat":false}`, string(b))

	b, err = setOutputDir(nil, "c")
	require.NoError(t, err)
	assert.JSONEq(t, `{"output_dir":"c"}`, string(b))

	_, err = setOutputDir([]byte(`[1]`), "c")
	assert.Error(t, err)
}

func TestWatchFilter(t *testing.T) {
	dir := t.TempDir()
	skip := newWatchFilter(filepath.Join(dir, "out"))
	cases := []struct {
		name string
		want bool
	}{
		{filepath.Join(dir, "in", "a.serax"), false},
		{filepath.Join(dir, "in", "a.serax.qa.txt"), true},
		{filepath.Join(dir, "in", "a.serax.jsonl"), true},
		{filepath.Join(dir, "in", ".a.serax.swp"), true},
		{filepath.Join(dir, "in", "a.serax~"), true},
		{filepath.Join(dir, "out", "b.serax"), true},
		{filepath.Join(dir, "out"), true},
		{filepath.Join(dir, "outer", "b.serax"), false},
	}
	for _, tt := range cases {
		t.Run(filepath.Base(tt.name), func(t *testing.T) {
			assert.Equal(t, tt.want, skip(tt.name))
		})
	}
}

func TestAddWatchRoots(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "in", "sub"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "in", ".git"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "in", "out"), 0o755))
	single := filepath.Join(dir, "one.serax")
	require.NoError(t, os.WriteFile(single, nil, 0o644))

	w, err := fsnotify.NewWatcher()
	require.NoError(t, err)
	defer w.Close()

	set, err := addWatchRoots(w, []string{filepath.Join(dir, "in"), single}, newWatchFilter(filepath.Join(dir, "in", "out")))
	require.NoError(t, err)
	assert.Contains(t, set, filepath.Join(dir, "in"))
	assert.Contains(t, set, filepath.Join(dir, "in", "sub"))
	assert.Contains(t, set, single)
	assert.NotContains(t, set, filepath.Join(dir, "in", ".git"))
	assert.NotContains(t, set, filepath.Join(dir, "in", "out"))

	_, err = addWatchRoots(w, []string{filepath.Join(dir, "missing")}, newWatchFilter(""))
	assert.Error(t, err)
}

func TestWatchLoopDebounce(t *testing.T) {
	dir := t.TempDir()
	w, err := fsnotify.NewWatcher()
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, w.Add(dir))

	ctx, cancel := context.WithCancel(context.Background())
	fired := make(chan struct{}, 8)
	done := make(chan struct{})
	skip := newWatchFilter("")
	go func() {
		defer close(done)
		watchLoop(ctx, w, 200*time.Millisecond, func(n string) bool { return !skip(n) }, nil,
			func() { fired <- struct{}{} }, &bytes.Buffer{})
	}()

	// 被过滤的写入不触发
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x.qa.txt"), []byte("r"), 0o644))
	select {
	case <-fired:
		t.Fatal("generated artifact must not trigger a run")
	case <-time.After(500 * time.Millisecond):
	}

	// 连续写入合并为一次
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "a.serax"), []byte(strings.Repeat("x", i+1)), 0o644))
	}
	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("expected a debounced run")
	}
	select {
	case <-fired:
		t.Fatal("events within the window must coalesce")
	case <-time.After(600 * time.Millisecond):
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watch loop did not stop")
	}
}

func TestWatchRejectsStdin(t *testing.T) {
	workspace(t)
	code, _, stderr := run(t, "watch", "--output-dir", "out", "-")
	assert.Equal(t, exitConfig, code)
	assert.Contains(t, stderr, "STDIN")
}

func TestWatchCmdRunsOnceAndStops(t *testing.T) {
	workspace(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var out, errb bytes.Buffer
	code := execute(ctx, []string{"--status=false", "watch", "--output-dir", "out", "in"}, &out, &errb)
	assert.Equal(t, exitOK, code, errb.String())
	assert.FileExists(t, filepath.Join("out", "financial.serax"+contract.ReportSuffix))
	assert.Contains(t, errb.String(), "[watch]")
}
