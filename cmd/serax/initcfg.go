package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	cfgpkg "serax/internal/config"
)

func newInitConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config [dir]",
		Short: "生成默认 config.yaml 与 .env 模板（不覆盖已有文件）",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			if dir == "-" {
				_, err := cmd.OutOrStdout().Write([]byte(cfgpkg.TemplateYAML))
				return err
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return exitf(exitConfig, "生成默认配置失败: %w", err)
			}
			if err := writeNew(filepath.Join(dir, "config.yaml"), cfgpkg.TemplateYAML); err != nil {
				return exitf(exitConfig, "生成默认配置失败: %w", err)
			}
			// .env 已存在则跳过
			if err := writeNew(filepath.Join(dir, ".env"), cfgpkg.TemplateEnv); err != nil && !os.IsExist(err) {
				fprintf(cmd.ErrOrStderr(), "提示：.env 生成失败（已跳过）：%v\n", err)
			}
			return nil
		},
	}
}

// writeNew 仅创建新文件，不覆盖已存在文件。
func writeNew(path, body string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(body); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
