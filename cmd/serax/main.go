package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	_ "go.uber.org/automaxprocs"

	"serax/internal/pipeline"
)

var pipelineRun = pipeline.Run

// 退出码
const (
	exitOK      = 0
	exitRuntime = 1
	exitInvalid = 2
	exitConfig  = 3
)

// exitError 携带退出码；err 为 nil 时不输出信息。
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func exitf(code int, format string, a ...any) error {
	return &exitError{code: code, err: fmt.Errorf(format, a...)}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// execute 构造命令树并运行，返回进程退出码。
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	// 在任何 ENV 读取前加载工作目录下的 .env（不覆盖已有 ENV）
	if err := loadDotEnv(".env"); err != nil {
		fprintf(stderr, "提示：.env 读取失败（已跳过）：%v\n", err)
	}
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil && !errors.Is(ee.err, context.Canceled) {
			fprintf(stderr, "%v\n", ee.err)
		}
		return ee.code
	}
	// cobra 自身的参数/旗标错误
	fprintf(stderr, "%v\n", err)
	fprintf(stderr, "使用 %s --help 查看用法\n", root.CommandPath())
	return exitConfig
}

// globalFlags: 所有子命令共享的旗标。
type globalFlags struct {
	config   string
	logLevel string
	status   bool
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	rf := &runFlags{}
	root := &cobra.Command{
		Use:           "serax [roots...]",
		Short:         "SERAX 数据集解码与质量评估",
		Long:          "逐行解码 SERAX 记录，输出 QA 报告（.qa.txt）与 JSONL 边车。\n位置参数为文件/目录，或 \"-\" 表示 STDIN（不能与其他根混用）。",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCmd(cmd, g, rf, args)
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&g.config, "config", "", "配置文件路径（YAML 或 JSON）；缺省读取 ./config.yaml 或 ./config.json（若存在）")
	pf.StringVar(&g.logLevel, "log-level", "", "日志等级 debug|info|warn|error（覆盖配置）")
	pf.BoolVar(&g.status, "status", true, "终端状态提示（stderr）。TTY 动态刷新；非 TTY 打点输出")
	rf.bind(root)

	root.AddCommand(newRunCmd(g), newDecodeCmd(), newWatchCmd(g), newInitConfigCmd())
	return root
}

func fprintf(w io.Writer, format string, a ...any) { _, _ = fmt.Fprintf(w, format, a...) }
