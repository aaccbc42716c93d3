package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	cfgpkg "serax/internal/config"
	"serax/internal/diag"
	"serax/internal/jsonx"
	"serax/pkg/contract"
)

// runFlags: run / 根命令 / watch 的配置覆盖旗标。零值表示不覆盖。
type runFlags struct {
	concurrency   int
	failOnInvalid bool
	metricsFile   string
	writer        string
	outputDir     string
}

func (rf *runFlags) bind(cmd *cobra.Command) {
	f := cmd.Flags()
	f.IntVar(&rf.concurrency, "concurrency", 0, "并发度（覆盖配置）")
	f.BoolVar(&rf.failOnInvalid, "fail-on-invalid", false, "存在无效记录时以退出码 2 结束")
	f.StringVar(&rf.metricsFile, "metrics-file", "", "运行结束后写出 Prometheus 文本格式指标")
	f.StringVar(&rf.writer, "writer", "", "Writer 实现名 fs|stdout（覆盖配置）")
	f.StringVar(&rf.outputDir, "output-dir", "", "fs Writer 输出目录（覆盖 options.writer.output_dir）")
}

func newRunCmd(g *globalFlags) *cobra.Command {
	rf := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run [roots...]",
		Short: "运行解码流水线并输出 QA 报告",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCmd(cmd, g, rf, args)
		},
	}
	rf.bind(cmd)
	return cmd
}

func runCmd(cmd *cobra.Command, g *globalFlags, rf *runFlags, roots []string) error {
	cfg, err := loadConfig(g, rf, roots)
	if err != nil {
		return err
	}
	_, err = runOnce(cmd.Context(), cfg, g.status, cmd.ErrOrStderr())
	return err
}

// loadConfig 按优先级合并：默认 < 配置文件 < ENV < 命令行，然后校验。
func loadConfig(g *globalFlags, rf *runFlags, roots []string) (cfgpkg.Config, error) {
	cfg := cfgpkg.Defaults()

	path := g.config
	if path == "" {
		path = os.Getenv(cfgpkg.EnvPrefix + "CONFIG_FILE")
	}
	if path == "" {
		for _, name := range []string{"config.yaml", "config.yml", "config.json"} {
			if _, err := os.Stat(name); err == nil {
				path = name
				break
			}
		}
	}
	raw := []byte(os.Getenv(cfgpkg.EnvPrefix + "CONFIG_JSON"))
	if path != "" || len(raw) > 0 {
		base, err := cfgpkg.Load(path, raw)
		if err != nil {
			return cfg, exitf(exitConfig, "配置解析失败: %w", err)
		}
		cfg = cfgpkg.Merge(cfg, base)
	}

	overEnv, err := cfgpkg.EnvOverlay(os.Environ())
	if err != nil {
		return cfg, exitf(exitConfig, "环境变量解析失败: %w", err)
	}
	cfg = cfgpkg.Merge(cfg, overEnv)

	overCLI := cfgpkg.Config{
		Inputs:        roots,
		Concurrency:   rf.concurrency,
		FailOnInvalid: rf.failOnInvalid,
		MetricsFile:   rf.metricsFile,
		Logging:       cfgpkg.Logging{Level: g.logLevel},
		Components:    cfgpkg.Components{Writer: rf.writer},
	}
	cfg = cfgpkg.Merge(cfg, overCLI)
	if strings.TrimSpace(rf.outputDir) != "" {
		if cfg.Options.Writer, err = setOutputDir(cfg.Options.Writer, rf.outputDir); err != nil {
			return cfg, exitf(exitConfig, "writer 选项解析失败: %w", err)
		}
	}

	if err := cfgpkg.Validate(cfg); err != nil {
		return cfg, exitf(exitConfig, "配置校验失败: %w", err)
	}
	return cfg, nil
}

// setOutputDir 在 writer 原样 JSON 选项上覆盖 output_dir，其余键保持不变。
func setOutputDir(raw []byte, dir string) ([]byte, error) {
	m := map[string]any{}
	if len(raw) > 0 {
		if err := jsonx.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
	}
	m["output_dir"] = dir
	return jsonx.Marshal(m)
}

// runOnce 装配并运行一次流水线，返回汇总；错误为带退出码的 exitError。
func runOnce(ctx context.Context, cfg cfgpkg.Config, status bool, stderr io.Writer) (contract.Summary, error) {
	start := time.Now()
	logger := diag.NewLogger(diag.NewCorrID(), cfg.Logging.Level)
	defer logger.Close()

	if err := preflightCheckOutputDir(cfg); err != nil {
		logger.Error("pipeline", string(diag.Classify(err)), "preflight failed", &start)
		return contract.Summary{}, exitf(exitConfig, "输出目录不可写或无法创建: %w", err)
	}
	comp, set, err := cfgpkg.Assemble(cfg)
	if err != nil {
		logger.Error("pipeline", string(diag.Classify(err)), "assemble failed", &start)
		return contract.Summary{}, exitf(exitConfig, "装配失败: %w", err)
	}
	metrics := diag.Default()
	set.Metrics = metrics

	term := diag.NewTerminal(stderr, status)
	diag.SetTerminal(term)
	defer diag.SetTerminal(nil)
	term.RunStart(cfg.Concurrency, cfg.Components.Decoder)

	logger.DebugStart("config", "effective", "", "", map[string]string{
		"inputs_count": fmt.Sprintf("%d", len(cfg.Inputs)),
		"concurrency":  fmt.Sprintf("%d", cfg.Concurrency),
		"reader":       cfg.Components.Reader,
		"splitter":     cfg.Components.Splitter,
		"batcher":      cfg.Components.Batcher,
		"decoder":      cfg.Components.Decoder,
		"assembler":    cfg.Components.Assembler,
		"writer":       cfg.Components.Writer,
	})

	t := logger.Start("pipeline", "run")
	sum, err := pipelineRun(ctx, comp, set, logger)
	if cfg.MetricsFile != "" {
		if merr := metrics.WriteTextfile(cfg.MetricsFile); merr != nil {
			logger.Warn("pipeline", "metrics", "write metrics file failed", "", map[string]string{"err": merr.Error()})
		}
	}
	if err != nil {
		code := diag.Classify(err)
		logger.Error("pipeline", string(code), "first error", &start)
		metrics.IncOp("pipeline", "error", "error")
		if code != diag.CodeUnknown {
			metrics.IncError("pipeline", code)
		}
		term.RunFinish(false, time.Since(start))
		if errors.Is(err, context.Canceled) {
			return sum, &exitError{code: exitRuntime}
		}
		return sum, exitf(exitRuntime, "运行失败: %w", err)
	}
	t.Finish("run", int64(sum.Total))
	metrics.IncOp("pipeline", "finish", "success")
	metrics.ObserveDuration("pipeline", "finish", time.Since(start).Milliseconds())
	term.RunFinish(true, time.Since(start))
	printSummary(stderr, sum)

	if cfg.FailOnInvalid && sum.Invalid() > 0 {
		return sum, &exitError{code: exitInvalid, err: fmt.Errorf("存在无效记录: %d/%d", sum.Invalid(), sum.Total)}
	}
	return sum, nil
}

func printSummary(w io.Writer, s contract.Summary) {
	fprintf(w, "汇总: 文件 %d | 记录 %d | 有效 %d (%.1f%%) | 部分恢复 %d | 幻觉 %d | 平均质量 %.1f%%\n",
		s.Files, s.Total, s.Valid, s.ValidPercent(), s.PartialRecoveries, s.Hallucinations, s.AverageQuality())
}
